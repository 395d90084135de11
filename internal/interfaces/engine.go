package interfaces

import (
	"context"

	"spot-trading-bot/internal/types"
)

// Governor validates a trade plan against the active risk policy.
type Governor interface {
	Evaluate(ctx context.Context, plan types.TradePlan) types.RiskDecision
}

// Executor places, verifies, and records a single order.
type Executor interface {
	Execute(ctx context.Context, plan types.TradePlan) types.ExecutionResult
}

// Monitor owns every open position until it is fully closed.
type Monitor interface {
	// Watch registers a freshly created position and runs an immediate check.
	Watch(ctx context.Context, pos *types.Position)
	// Tick reconciles all open positions once.
	Tick(ctx context.Context)
	// Run drives Tick on the configured interval until ctx is cancelled.
	Run(ctx context.Context) error
}

// Engine is the operator-facing surface: risk gate then execution.
type Engine interface {
	Submit(ctx context.Context, plan types.TradePlan) types.SubmitResult
	Monitor() Monitor
}
