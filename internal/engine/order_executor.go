package engine

import (
	"context"
	"time"

	"spot-trading-bot/internal/interfaces"
	"spot-trading-bot/internal/logger"
	"spot-trading-bot/internal/store"
	"spot-trading-bot/internal/tradelog"
	"spot-trading-bot/internal/types"
)

// orderExecutor places, verifies, and records a single order. Placement is
// never auto-retried: a timed-out placement may still have landed venue-side
// and a retry would risk a duplicate order.
type orderExecutor struct {
	venue          interfaces.Venue
	store          *store.Store
	monitor        interfaces.Monitor
	venueName      string
	defaultStopPct float64
	now            func() time.Time
}

func newOrderExecutor(venue interfaces.Venue, st *store.Store, monitor interfaces.Monitor, venueName string, defaultStopPct float64) *orderExecutor {
	return &orderExecutor{
		venue:          venue,
		store:          st,
		monitor:        monitor,
		venueName:      venueName,
		defaultStopPct: defaultStopPct,
		now:            time.Now,
	}
}

var _ interfaces.Executor = (*orderExecutor)(nil)

// Execute runs one attempt: validate, place, verify, record. Every attempt
// lands in the trade history and the audit log; the daily counter increments
// once per successful placement, before verification.
func (oe *orderExecutor) Execute(ctx context.Context, plan types.TradePlan) types.ExecutionResult {
	res := types.ExecutionResult{Plan: plan, DryRun: plan.DryRun}

	if err := validatePlan(plan); err != nil {
		logger.ErrorWithErr(ctx, "Trade plan rejected by shape validation", err, "symbol", plan.Symbol)
		res.Error = err.Error()
		oe.record(ctx, &res, false)
		return res
	}

	price := oe.referencePrice(ctx, plan)
	res.Notional = planNotionalAt(plan, price)

	// Dry run stops here: all risk checks have already passed, no order is
	// placed, and the would-be trade is recorded tagged as such.
	if plan.DryRun {
		res.AvgPrice = price
		logger.Info(ctx, "Dry run, order not placed",
			"symbol", plan.Symbol,
			"side", plan.Side,
			"notional", res.Notional,
		)
		oe.record(ctx, &res, false)
		return res
	}

	resp, err := oe.venue.PlaceOrder(ctx, types.OrderReq{
		Symbol: plan.Symbol,
		Side:   plan.Side,
		Type:   plan.Type,
		Amount: plan.Amount,
		Price:  plan.LimitPrice,
		Tag:    "PLAN",
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place order", err,
			"symbol", plan.Symbol,
			"side", plan.Side,
			"type", plan.Type,
		)
		res.Error = err.Error()
		oe.record(ctx, &res, false)
		return res
	}

	res.Placed = true
	res.OrderID = resp.OrderID
	res.Status = resp.Status
	res.FilledQty = resp.Filled
	res.AvgPrice = resp.Average

	// Verify by re-fetching the order. A verification failure is degraded
	// success: the order is live regardless of inspection success.
	ver, verr := oe.venue.GetOrder(ctx, resp.OrderID, plan.Symbol)
	if verr != nil {
		logger.Warn(ctx, "Order placed but verification failed, assuming live",
			"symbol", plan.Symbol,
			"order_id", resp.OrderID,
			"error", verr.Error(),
		)
	} else {
		res.Verified = true
		res.Status = ver.Status
		res.FilledQty = ver.Filled
		if ver.Average > 0 {
			res.AvgPrice = ver.Average
		}
	}

	if res.AvgPrice <= 0 {
		res.AvgPrice = price
	}
	res.Notional = planNotionalAt(plan, res.AvgPrice)

	logger.Trade(ctx, plan.Symbol, string(plan.Side), res.FilledQty, res.AvgPrice, res.OrderID,
		"verified", res.Verified,
		"status", string(res.Status),
	)
	oe.record(ctx, &res, true)

	if plan.Side == types.SideBuy {
		oe.handOffBuy(ctx, plan, &res)
	} else if res.FilledQty > 0 && res.AvgPrice > 0 {
		if err := oe.store.AddExposure(plan.Symbol, -res.FilledQty*res.AvgPrice); err != nil {
			logger.ErrorWithErr(ctx, "Failed to reduce exposure after sell", err, "symbol", plan.Symbol)
		}
	}
	return res
}

// handOffBuy creates the position for a filled buy and hands it to the
// monitor. On an unverified buy the fill is assumed from the plan, since
// failing to track a live position is worse than tracking one with uncertain
// fill data. Sells never create positions.
func (oe *orderExecutor) handOffBuy(ctx context.Context, plan types.TradePlan, res *types.ExecutionResult) {
	qty, price := oe.entryFill(ctx, plan, res)
	if qty <= 0 || price <= 0 {
		return
	}

	stopPct := plan.StopLossPct
	if stopPct == 0 {
		stopPct = oe.defaultStopPct
	}

	now := oe.now()
	pos := &types.Position{
		ID:            types.NewPositionID(plan.Symbol, now),
		Symbol:        plan.Symbol,
		CreatedAt:     now,
		EntryPrice:    price,
		EntryQty:      qty,
		RemainingQty:  qty,
		Status:        types.PositionOpen,
		StopArmed:     stopPct > 0,
		StopLossPct:   stopPct,
		TPOverridePct: plan.TakeProfitPct,
	}

	if err := oe.store.AddPosition(pos); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist new position", err, "position", pos.ID)
	}
	if err := oe.store.AddExposure(plan.Symbol, qty*price); err != nil {
		logger.ErrorWithErr(ctx, "Failed to record exposure", err, "symbol", plan.Symbol)
	}

	logger.Info(ctx, "Position opened",
		"position", pos.ID,
		"symbol", pos.Symbol,
		"entry_price", pos.EntryPrice,
		"entry_qty", pos.EntryQty,
		"stop_armed", pos.StopArmed,
		"stop_loss_pct", pos.StopLossPct,
	)

	oe.monitor.Watch(ctx, pos)
}

// entryFill resolves the quantity and price the position opens with. A
// verified zero fill (a resting limit buy) opens nothing; an unverified
// order assumes the requested amount landed.
func (oe *orderExecutor) entryFill(ctx context.Context, plan types.TradePlan, res *types.ExecutionResult) (qty, price float64) {
	price = res.AvgPrice
	if price <= 0 {
		price = oe.referencePrice(ctx, plan)
	}

	if res.Verified {
		return res.FilledQty, price
	}
	if res.FilledQty > 0 {
		return res.FilledQty, price
	}
	if plan.Amount.IsQuantity() {
		return plan.Amount.Value, price
	}
	if price > 0 {
		return plan.Amount.Value / price, price
	}
	return 0, 0
}

// referencePrice is a best-effort price for records and fill estimation; the
// limit price when present, otherwise a live quote.
func (oe *orderExecutor) referencePrice(ctx context.Context, plan types.TradePlan) float64 {
	if plan.Type == types.OrderLimit && plan.LimitPrice > 0 {
		return plan.LimitPrice
	}
	tick, err := oe.venue.Ticker(ctx, plan.Symbol)
	if err != nil {
		return 0
	}
	return tick.Last
}

// record appends the attempt to the trade history and the audit log.
func (oe *orderExecutor) record(ctx context.Context, res *types.ExecutionResult, counted bool) {
	rec := types.TradeRecord{
		Time:     oe.now(),
		Venue:    oe.venueName,
		Symbol:   res.Plan.Symbol,
		Side:     res.Plan.Side,
		Type:     res.Plan.Type,
		Quantity: res.FilledQty,
		Price:    res.AvgPrice,
		Notional: res.Notional,
		OrderID:  res.OrderID,
		DryRun:   res.DryRun,
		Error:    res.Error,
	}
	if err := oe.store.RecordTrade(rec, counted); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist trade record", err, "symbol", rec.Symbol)
	}
	if err := tradelog.Append(tradelog.Entry{
		Venue:    rec.Venue,
		Symbol:   rec.Symbol,
		Side:     string(rec.Side),
		Type:     string(rec.Type),
		Quantity: rec.Quantity,
		Price:    rec.Price,
		Notional: rec.Notional,
		OrderID:  rec.OrderID,
		Status:   string(res.Status),
		DryRun:   rec.DryRun,
		Error:    rec.Error,
	}); err != nil {
		logger.Warn(ctx, "Failed to append audit log entry", "error", err)
	}
}
