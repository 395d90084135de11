package engine

import (
	"context"

	"spot-trading-bot/internal/interfaces"
	"spot-trading-bot/internal/logger"
	"spot-trading-bot/internal/trace"
	"spot-trading-bot/internal/types"
)

// engine composes the risk governor, order executor, and position monitor
// behind the operator-facing Submit surface.
type engine struct {
	governor interfaces.Governor
	executor interfaces.Executor
	monitor  interfaces.Monitor
}

var _ interfaces.Engine = (*engine)(nil)

// Submit evaluates a plan against the risk policy and, when approved, hands
// it to the executor. Policy rejections come back as values, never errors.
func (e *engine) Submit(ctx context.Context, plan types.TradePlan) types.SubmitResult {
	ctx, span := trace.StartSpan(ctx, "engine.Submit")
	defer span.End()

	decision := e.governor.Evaluate(ctx, plan)
	if decision.Verdict != types.VerdictApproved {
		logger.Info(ctx, "Trade plan not approved",
			"symbol", plan.Symbol,
			"side", string(plan.Side),
			"verdict", string(decision.Verdict),
			"check", decision.Check,
			"reason", decision.Reason,
		)
		return types.SubmitResult{Decision: decision}
	}

	res := e.executor.Execute(ctx, plan)
	return types.SubmitResult{Decision: decision, Execution: &res}
}

func (e *engine) Monitor() interfaces.Monitor {
	return e.monitor
}
