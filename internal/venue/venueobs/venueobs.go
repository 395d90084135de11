package venueobs

import (
	"context"

	"spot-trading-bot/internal/interfaces"
	"spot-trading-bot/internal/logger"
	"spot-trading-bot/internal/trace"
	"spot-trading-bot/internal/types"
)

// observableVenue wraps a Venue with logging and tracing.
type observableVenue struct {
	venue interfaces.Venue
}

var _ interfaces.Venue = (*observableVenue)(nil)

// Wrap wraps a venue with observability middleware.
func Wrap(venue interfaces.Venue) interfaces.Venue {
	return &observableVenue{venue: venue}
}

func (ov *observableVenue) Balance(ctx context.Context, asset string) (types.Balance, error) {
	ctx, span := trace.StartSpan(ctx, "venue.Balance")
	defer span.End()

	bal, err := ov.venue.Balance(ctx, asset)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch balance", err, "asset", asset)
		return types.Balance{}, err
	}
	logger.DebugSkip(ctx, 1, "Balance fetched", "asset", asset, "free", bal.Free, "total", bal.Total)
	return bal, nil
}

func (ov *observableVenue) Ticker(ctx context.Context, symbol string) (types.Ticker, error) {
	ctx, span := trace.StartSpan(ctx, "venue.Ticker")
	defer span.End()

	tick, err := ov.venue.Ticker(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch ticker", err, "symbol", symbol)
		return types.Ticker{}, err
	}
	logger.DebugSkip(ctx, 1, "Ticker fetched", "symbol", symbol, "last", tick.Last)
	return tick, nil
}

func (ov *observableVenue) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "venue.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", string(req.Side),
		"type", string(req.Type),
		"amount_kind", string(req.Amount.Kind),
		"amount", req.Amount.Value,
		"tag", req.Tag,
	)

	resp, err := ov.venue.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", string(req.Side),
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed",
		"symbol", req.Symbol,
		"order_id", resp.OrderID,
		"status", string(resp.Status),
		"filled", resp.Filled,
	)
	return resp, nil
}

func (ov *observableVenue) GetOrder(ctx context.Context, orderID, symbol string) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "venue.GetOrder")
	defer span.End()

	resp, err := ov.venue.GetOrder(ctx, orderID, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch order", err, "order_id", orderID, "symbol", symbol)
		return types.OrderResp{}, err
	}
	logger.DebugSkip(ctx, 1, "Order fetched", "order_id", orderID, "status", string(resp.Status), "filled", resp.Filled)
	return resp, nil
}

func (ov *observableVenue) CancelOrder(ctx context.Context, orderID, symbol string) error {
	ctx, span := trace.StartSpan(ctx, "venue.CancelOrder")
	defer span.End()

	if err := ov.venue.CancelOrder(ctx, orderID, symbol); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", orderID, "symbol", symbol)
		return err
	}
	logger.InfoSkip(ctx, 1, "Order cancelled", "order_id", orderID, "symbol", symbol)
	return nil
}
