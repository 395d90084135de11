package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spot-trading-bot/internal/interfaces"
	"spot-trading-bot/internal/logger"
	"spot-trading-bot/internal/store"
	"spot-trading-bot/internal/tradelog"
	"spot-trading-bot/internal/types"
)

// Quantities at or below this are treated as flat.
const qtyEpsilon = 1e-9

// MonitorSettings configures the reconciliation loop.
type MonitorSettings struct {
	Interval      time.Duration
	PositionDelay time.Duration
	PollRetries   int
	Ladder        []store.LadderStep
	StopLossPct   float64
	PriceTick     float64
	QtyStep       float64
}

// positionMonitor owns the lifecycle of every open position: placing the
// take-profit ladder, polling its fills, and firing the stop loss, on a fixed
// interval until each position is closed.
type positionMonitor struct {
	venue interfaces.Venue
	store *store.Store
	cfg   MonitorSettings

	// tickRunning guards against overlapping sweeps: a tick that outlives
	// the interval causes the next firing to be skipped, never run twice.
	tickRunning atomic.Bool
	// mu serializes reconciliation between the timer sweep and the
	// immediate check on position creation.
	mu  sync.Mutex
	now func() time.Time
}

func newPositionMonitor(venue interfaces.Venue, st *store.Store, cfg MonitorSettings) *positionMonitor {
	return &positionMonitor{
		venue: venue,
		store: st,
		cfg:   cfg,
		now:   time.Now,
	}
}

var _ interfaces.Monitor = (*positionMonitor)(nil)

// Run drives Tick on the configured interval until ctx is cancelled.
func (m *positionMonitor) Run(ctx context.Context) error {
	logger.Info(ctx, "Position monitor started",
		"interval", m.cfg.Interval.String(),
		"stop_loss_pct", m.cfg.StopLossPct,
		"ladder_steps", len(m.cfg.Ladder),
	)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Position monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Watch registers a freshly created position and runs an immediate check.
func (m *positionMonitor) Watch(ctx context.Context, pos *types.Position) {
	logger.Info(ctx, "Monitoring new position",
		"position", pos.ID,
		"symbol", pos.Symbol,
		"entry_qty", pos.EntryQty,
	)
	if err := m.reconcileOne(ctx, pos); err != nil {
		logger.ErrorWithErr(ctx, "Initial position check failed", err, "position", pos.ID)
	}
	if err := m.store.SavePositions(); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist positions", err)
	}
}

// Tick reconciles all open positions sequentially. A failure on one position
// never aborts the sweep for the others.
func (m *positionMonitor) Tick(ctx context.Context) {
	if !m.tickRunning.CompareAndSwap(false, true) {
		logger.Warn(ctx, "Reconciliation tick skipped, previous still running")
		return
	}
	defer m.tickRunning.Store(false)

	open := m.store.OpenPositions()
	if len(open) == 0 {
		return
	}
	timer := logger.StartOperation(ctx, "monitor.tick", "open_positions", len(open))
	defer timer.End()

	for i, p := range open {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && m.cfg.PositionDelay > 0 {
			// venue rate-limit respect between positions
			time.Sleep(m.cfg.PositionDelay)
		}
		if err := m.reconcileOne(ctx, p); err != nil {
			logger.ErrorWithErr(ctx, "Position reconciliation failed", err,
				"position", p.ID,
				"symbol", p.Symbol,
			)
		}
	}
	if err := m.store.SavePositions(); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist positions", err)
	}
}

func (m *positionMonitor) reconcileOne(ctx context.Context, p *types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconcile(ctx, p)
}

func (m *positionMonitor) reconcile(ctx context.Context, p *types.Position) error {
	if p.Status != types.PositionOpen {
		return nil
	}

	tick, err := m.venue.Ticker(ctx, p.Symbol)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}
	price := tick.Last
	p.LastPnLPct = pnlPct(p.EntryPrice, price)
	p.LastCheckedAt = m.now()

	if len(p.TPOrders) == 0 {
		m.placeLadder(ctx, p)
	} else {
		m.pollTPOrders(ctx, p)
	}

	// Take-profit is checked before the stop: a TP fill that already landed
	// venue-side may have zeroed the remaining quantity, making the stop moot.
	if p.RemainingQty <= qtyEpsilon {
		m.closePosition(ctx, p, types.CloseTakeProfit, price)
		return nil
	}
	if p.StopArmed && p.StopLossPct > 0 && p.LastPnLPct <= -p.StopLossPct {
		return m.triggerStop(ctx, p, price)
	}
	return nil
}

// placeLadder computes and places the take-profit ladder. A placement
// failure on one rung is logged and does not affect the others; failed rungs
// are not retained.
func (m *positionMonitor) placeLadder(ctx context.Context, p *types.Position) {
	steps := m.cfg.Ladder
	if p.TPOverridePct > 0 {
		// per-plan override: one full-size target instead of the ladder
		steps = []store.LadderStep{{GainPct: p.TPOverridePct, SellFraction: 1}}
	}
	ladder := BuildLadder(steps, p.EntryPrice, p.EntryQty, p.RemainingQty, m.cfg.PriceTick, m.cfg.QtyStep)
	for _, tp := range ladder {
		resp, err := m.venue.PlaceOrder(ctx, types.OrderReq{
			Symbol: p.Symbol,
			Side:   types.SideSell,
			Type:   types.OrderLimit,
			Amount: types.Quantity(tp.Quantity),
			Price:  tp.TargetPrice,
			Tag:    "TP",
		})
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to place take-profit order", err,
				"position", p.ID,
				"symbol", p.Symbol,
				"gain_pct", tp.GainPct,
				"target", tp.TargetPrice,
			)
			continue
		}
		tp.OrderID = resp.OrderID
		tp.Status = types.TPOpen
		p.TPOrders = append(p.TPOrders, tp)

		logger.Info(ctx, "Take-profit order placed",
			"position", p.ID,
			"symbol", p.Symbol,
			"order_id", tp.OrderID,
			"gain_pct", tp.GainPct,
			"target", tp.TargetPrice,
			"quantity", tp.Quantity,
		)
		_ = tradelog.Append(tradelog.Entry{
			Symbol:   p.Symbol,
			Side:     string(types.SideSell),
			Type:     string(types.OrderLimit),
			Quantity: tp.Quantity,
			Price:    tp.TargetPrice,
			Notional: tp.Quantity * tp.TargetPrice,
			OrderID:  tp.OrderID,
			Status:   string(types.OrderStatusOpen),
		})
	}
}

// pollTPOrders polls each still-open ladder order. A newly filled order
// reduces the remaining quantity; an order that cannot be polled within the
// retry budget is skipped until the next tick.
func (m *positionMonitor) pollTPOrders(ctx context.Context, p *types.Position) {
	for _, i := range p.OpenTPOrders() {
		tp := &p.TPOrders[i]
		ord, err := m.pollOrder(ctx, tp.OrderID, p.Symbol)
		if err != nil {
			logger.Warn(ctx, "Take-profit poll failed, skipping until next tick",
				"position", p.ID,
				"order_id", tp.OrderID,
				"error", err.Error(),
			)
			continue
		}
		if ord.Status != types.OrderStatusFilled {
			continue
		}

		filled := ord.Filled
		if filled <= 0 {
			filled = tp.Quantity
		}
		tp.Status = types.TPFilled
		p.RemainingQty -= filled
		if p.RemainingQty < 0 {
			p.RemainingQty = 0
		}

		realized := (tp.TargetPrice - p.EntryPrice) * filled
		if err := m.store.RecordRealizedPnL(p.Symbol, realized, m.now()); err != nil {
			logger.ErrorWithErr(ctx, "Failed to record realized PnL", err, "symbol", p.Symbol)
		}
		if err := m.store.AddExposure(p.Symbol, -filled*p.EntryPrice); err != nil {
			logger.ErrorWithErr(ctx, "Failed to reduce exposure", err, "symbol", p.Symbol)
		}

		logger.Trade(ctx, p.Symbol, string(types.SideSell), filled, tp.TargetPrice, tp.OrderID,
			"position", p.ID,
			"gain_pct", tp.GainPct,
			"realized_pnl", realized,
			"remaining_qty", p.RemainingQty,
		)
	}
}

// pollOrder fetches an order with a bounded retry budget.
func (m *positionMonitor) pollOrder(ctx context.Context, orderID, symbol string) (types.OrderResp, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.PollRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		ord, err := m.venue.GetOrder(ctx, orderID, symbol)
		if err == nil {
			return ord, nil
		}
		lastErr = err
	}
	return types.OrderResp{}, lastErr
}

// triggerStop market-sells the full remaining quantity, cancels the open
// ladder orders, and closes the position with reason stop-loss. The armed
// flag clears only after the sell lands, so a failed sell retries next tick.
func (m *positionMonitor) triggerStop(ctx context.Context, p *types.Position, price float64) error {
	logger.Risk(ctx, p.Symbol, "STOP_LOSS_TRIGGERED",
		"position", p.ID,
		"entry_price", p.EntryPrice,
		"current_price", price,
		"pnl_pct", p.LastPnLPct,
		"stop_loss_pct", p.StopLossPct,
		"remaining_qty", p.RemainingQty,
	)

	resp, err := m.venue.PlaceOrder(ctx, types.OrderReq{
		Symbol: p.Symbol,
		Side:   types.SideSell,
		Type:   types.OrderMarket,
		Amount: types.Quantity(p.RemainingQty),
		Tag:    "SL",
	})
	if err != nil {
		return fmt.Errorf("stop-loss sell: %w", err)
	}

	sold := resp.Filled
	if sold <= 0 {
		sold = p.RemainingQty
	}
	exitPrice := resp.Average
	if exitPrice <= 0 {
		exitPrice = price
	}

	p.StopSoldQty += sold
	p.RemainingQty -= sold
	if p.RemainingQty < 0 {
		p.RemainingQty = 0
	}
	p.StopArmed = false

	realized := (exitPrice - p.EntryPrice) * sold
	if err := m.store.RecordRealizedPnL(p.Symbol, realized, m.now()); err != nil {
		logger.ErrorWithErr(ctx, "Failed to record realized PnL", err, "symbol", p.Symbol)
	}
	if err := m.store.AddExposure(p.Symbol, -sold*p.EntryPrice); err != nil {
		logger.ErrorWithErr(ctx, "Failed to reduce exposure", err, "symbol", p.Symbol)
	}

	_ = tradelog.Append(tradelog.Entry{
		Symbol:   p.Symbol,
		Side:     string(types.SideSell),
		Type:     string(types.OrderMarket),
		Quantity: sold,
		Price:    exitPrice,
		Notional: sold * exitPrice,
		OrderID:  resp.OrderID,
		Status:   string(resp.Status),
	})
	logger.Trade(ctx, p.Symbol, string(types.SideSell), sold, exitPrice, resp.OrderID,
		"position", p.ID,
		"tag", "SL",
		"realized_pnl", realized,
	)

	m.closePosition(ctx, p, types.CloseStopLoss, exitPrice)
	return nil
}

// closePosition cancels any still-open ladder orders and marks the position
// closed. A position closes exactly once; callers check status first.
func (m *positionMonitor) closePosition(ctx context.Context, p *types.Position, reason types.CloseReason, exitPrice float64) {
	for _, i := range p.OpenTPOrders() {
		tp := &p.TPOrders[i]
		if err := m.venue.CancelOrder(ctx, tp.OrderID, p.Symbol); err != nil {
			logger.Warn(ctx, "Failed to cancel take-profit order",
				"position", p.ID,
				"order_id", tp.OrderID,
				"error", err.Error(),
			)
			continue
		}
		tp.Status = types.TPCancelled
	}

	p.Status = types.PositionClosed
	p.ExitPrice = exitPrice
	p.ExitAt = m.now()
	p.ExitReason = reason

	logger.Info(ctx, "Position closed",
		"position", p.ID,
		"symbol", p.Symbol,
		"reason", string(reason),
		"exit_price", exitPrice,
		"entry_price", p.EntryPrice,
		"stop_sold_qty", p.StopSoldQty,
		"pnl_pct", p.LastPnLPct,
	)
}
