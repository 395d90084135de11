package engine

import (
	"fmt"

	"spot-trading-bot/internal/types"
)

// pnlPct is the percentage gain or loss of price relative to entry.
func pnlPct(entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (price - entry) / entry * 100
}

// planNotionalAt values a plan at a known price without touching the venue.
func planNotionalAt(plan types.TradePlan, price float64) float64 {
	if plan.Amount.IsNotional() {
		return plan.Amount.Value
	}
	return plan.Amount.Value * price
}

// validatePlan checks the shape of a plan before any venue call.
func validatePlan(plan types.TradePlan) error {
	if plan.Symbol == "" {
		return fmt.Errorf("plan has no symbol")
	}
	if plan.Side != types.SideBuy && plan.Side != types.SideSell {
		return fmt.Errorf("invalid side %q", plan.Side)
	}
	if plan.Type != types.OrderMarket && plan.Type != types.OrderLimit {
		return fmt.Errorf("invalid order type %q", plan.Type)
	}
	if err := plan.Amount.Validate(); err != nil {
		return err
	}
	if plan.Type == types.OrderLimit && plan.LimitPrice <= 0 {
		return fmt.Errorf("limit plan requires a positive limit price")
	}
	if plan.StopLossPct < 0 || plan.StopLossPct > 100 {
		return fmt.Errorf("stop loss pct must be between 0-100, got %.2f", plan.StopLossPct)
	}
	return nil
}
