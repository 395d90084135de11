package engine

import (
	"time"

	"spot-trading-bot/internal/interfaces"
	"spot-trading-bot/internal/store"
)

func New(cfg *store.Config, venue interfaces.Venue, st *store.Store, policy *store.PolicyHandle) interfaces.Engine {
	monitor := newPositionMonitor(venue, st, MonitorSettings{
		Interval:      time.Duration(cfg.Monitor.IntervalSeconds) * time.Second,
		PositionDelay: time.Duration(cfg.Monitor.PositionDelayMs) * time.Millisecond,
		PollRetries:   cfg.Monitor.PollRetries,
		Ladder:        cfg.Ladder,
		StopLossPct:   cfg.Stop.LossPct,
		PriceTick:     cfg.Market.PriceTick,
		QtyStep:       cfg.Market.QtyStep,
	})
	executor := newOrderExecutor(venue, st, monitor, cfg.Venue, cfg.Stop.LossPct)
	governor := newRiskGovernor(venue, st, policy, cfg.QuoteAsset)
	return &engine{
		governor: governor,
		executor: executor,
		monitor:  monitor,
	}
}
