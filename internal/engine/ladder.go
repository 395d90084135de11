package engine

import (
	"github.com/shopspring/decimal"

	"spot-trading-bot/internal/store"
	"spot-trading-bot/internal/types"
)

// BuildLadder computes the take-profit ladder for a position from the
// configured (gain %, sell fraction) steps. Target prices round to the price
// tick, quantities round down to the quantity step, and any entry whose
// quantity exceeds what remains is clipped. Decimal arithmetic keeps the
// tick/step rounding exact.
func BuildLadder(steps []store.LadderStep, entryPrice, entryQty, remainingQty, priceTick, qtyStep float64) []types.TPOrder {
	entry := decimal.NewFromFloat(entryPrice)
	total := decimal.NewFromFloat(entryQty)
	left := decimal.NewFromFloat(remainingQty)
	hundred := decimal.NewFromInt(100)

	var out []types.TPOrder
	for _, s := range steps {
		if !left.IsPositive() {
			break
		}

		mult := decimal.NewFromInt(1).Add(decimal.NewFromFloat(s.GainPct).Div(hundred))
		target := entry.Mul(mult)
		if priceTick > 0 {
			tick := decimal.NewFromFloat(priceTick)
			target = target.Div(tick).Round(0).Mul(tick)
		}

		qty := total.Mul(decimal.NewFromFloat(s.SellFraction))
		if qtyStep > 0 {
			step := decimal.NewFromFloat(qtyStep)
			qty = qty.Div(step).Floor().Mul(step)
		}
		if qty.GreaterThan(left) {
			qty = left
		}
		if !qty.IsPositive() {
			continue
		}
		left = left.Sub(qty)

		targetF, _ := target.Float64()
		qtyF, _ := qty.Float64()
		out = append(out, types.TPOrder{
			GainPct:      s.GainPct,
			SellFraction: s.SellFraction,
			Quantity:     qtyF,
			TargetPrice:  targetF,
			Status:       types.TPOpen,
		})
	}
	return out
}
