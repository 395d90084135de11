package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"spot-trading-bot/internal/interfaces"
	"spot-trading-bot/internal/logger"
	"spot-trading-bot/internal/store"
	"spot-trading-bot/internal/types"
)

// Check identifiers reported in RiskDecision so callers can render
// structured explanations.
const (
	checkDailyLimit   = "daily_limit"
	checkCooldown     = "cooldown"
	checkPricing      = "pricing"
	checkBalance      = "balance"
	checkConfirmation = "confirmation"
	checkExposure     = "exposure"
	checkRiskCap      = "risk_cap"
	checkDrawdown     = "drawdown"
)

// riskGovernor validates a trade plan against the active policy before any
// order is placed. One live balance read per evaluation (plus a quote read
// for quantity-denominated plans); otherwise pure.
type riskGovernor struct {
	venue      interfaces.Venue
	store      *store.Store
	policy     *store.PolicyHandle
	quoteAsset string
	now        func() time.Time
}

func newRiskGovernor(venue interfaces.Venue, st *store.Store, policy *store.PolicyHandle, quoteAsset string) *riskGovernor {
	return &riskGovernor{
		venue:      venue,
		store:      st,
		policy:     policy,
		quoteAsset: quoteAsset,
		now:        time.Now,
	}
}

var _ interfaces.Governor = (*riskGovernor)(nil)

// Evaluate runs the fixed, short-circuiting check order:
// daily count, cooldown, balance, confirmation threshold, exposure cap.
func (g *riskGovernor) Evaluate(ctx context.Context, plan types.TradePlan) types.RiskDecision {
	pol := g.policy.Current()
	st := g.store.Snapshot()

	// 1. Daily trade-count limit.
	if pol.MaxTradesPerDay > 0 && st.TradesToday >= pol.MaxTradesPerDay {
		reason := fmt.Sprintf("daily trade limit reached (%d/%d)", st.TradesToday, pol.MaxTradesPerDay)
		logger.Risk(ctx, plan.Symbol, "TRADE_BLOCKED_DAILY_LIMIT",
			"trades_today", st.TradesToday,
			"limit", pol.MaxTradesPerDay,
		)
		return types.Blocked(checkDailyLimit, reason)
	}

	// 2. Post-loss cooldown.
	if pol.CooldownMinutes > 0 && !st.LastLossAt.IsZero() {
		cooldown := time.Duration(pol.CooldownMinutes) * time.Minute
		elapsed := g.now().Sub(st.LastLossAt)
		if elapsed < cooldown {
			remaining := int(math.Ceil((cooldown - elapsed).Minutes()))
			reason := fmt.Sprintf("post-loss cooldown active, %d minutes remaining", remaining)
			logger.Risk(ctx, plan.Symbol, "TRADE_BLOCKED_COOLDOWN",
				"last_loss_at", st.LastLossAt,
				"minutes_remaining", remaining,
			)
			return types.Blocked(checkCooldown, reason)
		}
	}

	// Price the plan. A quantity-denominated plan that cannot be priced from
	// a live quote is blocked, never estimated from a stale fallback.
	notional, err := g.planNotional(ctx, plan)
	if err != nil {
		logger.Risk(ctx, plan.Symbol, "TRADE_BLOCKED_PRICING", "error", err.Error())
		return types.Blocked(checkPricing, fmt.Sprintf("cannot price plan: %v", err))
	}

	// 3. Balance sufficiency, buys only.
	var bal types.Balance
	if plan.Side == types.SideBuy {
		bal, err = g.venue.Balance(ctx, g.quoteAsset)
		if err != nil {
			logger.Risk(ctx, plan.Symbol, "TRADE_BLOCKED_BALANCE_UNAVAILABLE", "error", err.Error())
			return types.Blocked(checkBalance, fmt.Sprintf("balance unavailable: %v", err))
		}
		if bal.Free < notional {
			reason := fmt.Sprintf("insufficient balance: need %.2f %s, free %.2f", notional, g.quoteAsset, bal.Free)
			logger.Risk(ctx, plan.Symbol, "TRADE_BLOCKED_BALANCE",
				"notional", notional,
				"free", bal.Free,
			)
			return types.Blocked(checkBalance, reason)
		}
	}

	// 4. Confirmation threshold. Not a hard block: resubmission with the
	// execute-now flag may pass.
	if pol.ConfirmAboveNotional > 0 && notional > pol.ConfirmAboveNotional && !plan.ExecuteNow {
		reason := fmt.Sprintf("notional %.2f exceeds confirmation threshold %.2f; resubmit with execute-now to proceed",
			notional, pol.ConfirmAboveNotional)
		return types.NeedsConfirmation(checkConfirmation, reason)
	}

	// 5. Per-symbol exposure cap, buys only.
	portfolio := bal.Total + totalExposure(st.Exposure)
	if plan.Side == types.SideBuy && pol.MaxSymbolExposurePct > 0 && portfolio > 0 {
		existing := st.Exposure[plan.Symbol]
		pct := (existing + notional) / portfolio * 100
		if pct > pol.MaxSymbolExposurePct {
			reason := fmt.Sprintf("symbol exposure %.1f%% would exceed cap %.1f%%", pct, pol.MaxSymbolExposurePct)
			logger.Risk(ctx, plan.Symbol, "TRADE_BLOCKED_EXPOSURE",
				"existing", existing,
				"notional", notional,
				"portfolio", portfolio,
				"exposure_pct", pct,
				"cap_pct", pol.MaxSymbolExposurePct,
			)
			return types.Blocked(checkExposure, reason)
		}
	}

	// Per-trade risk cap and daily drawdown guards run after the five
	// ordered checks.
	if plan.Side == types.SideBuy && pol.MaxRiskPct > 0 && portfolio > 0 {
		pct := notional / portfolio * 100
		if pct > pol.MaxRiskPct {
			reason := fmt.Sprintf("trade risk %.1f%% of portfolio exceeds cap %.1f%%", pct, pol.MaxRiskPct)
			logger.Risk(ctx, plan.Symbol, "TRADE_BLOCKED_RISK_CAP",
				"notional", notional,
				"portfolio", portfolio,
				"risk_pct", pct,
				"risk_limit_pct", pol.MaxRiskPct,
			)
			return types.Blocked(checkRiskCap, reason)
		}
	}
	if plan.Side == types.SideBuy && pol.MaxDailyDrawdownPct > 0 && portfolio > 0 && st.DailyPnL < 0 {
		ddPct := -st.DailyPnL / portfolio * 100
		if ddPct >= pol.MaxDailyDrawdownPct {
			reason := fmt.Sprintf("daily drawdown %.1f%% reached limit %.1f%%", ddPct, pol.MaxDailyDrawdownPct)
			logger.Risk(ctx, plan.Symbol, "TRADE_BLOCKED_DRAWDOWN",
				"daily_pnl", st.DailyPnL,
				"drawdown_pct", ddPct,
				"limit_pct", pol.MaxDailyDrawdownPct,
			)
			return types.Blocked(checkDrawdown, reason)
		}
	}

	return types.Approved()
}

// planNotional resolves the quote-currency value of the plan. Quantity plans
// need a price: the limit price when one is set, otherwise a live quote.
func (g *riskGovernor) planNotional(ctx context.Context, plan types.TradePlan) (float64, error) {
	switch {
	case plan.Amount.IsNotional():
		return plan.Amount.Value, nil
	case plan.Amount.IsQuantity():
		if plan.Type == types.OrderLimit && plan.LimitPrice > 0 {
			return plan.Amount.Value * plan.LimitPrice, nil
		}
		tick, err := g.venue.Ticker(ctx, plan.Symbol)
		if err != nil {
			return 0, fmt.Errorf("quote unavailable for %s: %w", plan.Symbol, err)
		}
		if tick.Last <= 0 {
			return 0, fmt.Errorf("quote for %s returned no price", plan.Symbol)
		}
		return plan.Amount.Value * tick.Last, nil
	default:
		return 0, fmt.Errorf("plan amount has no denomination")
	}
}

func totalExposure(exposure map[string]float64) float64 {
	var total float64
	for _, v := range exposure {
		total += v
	}
	return total
}
