package interfaces

import (
	"context"

	"spot-trading-bot/internal/types"
)

// Venue is the exchange adapter consumed by the engine. Any call may fail
// with a venue-specific error; callers treat failure as "no effect occurred"
// unless a later inspection proves otherwise.
type Venue interface {
	Balance(ctx context.Context, asset string) (types.Balance, error)
	Ticker(ctx context.Context, symbol string) (types.Ticker, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
	GetOrder(ctx context.Context, orderID, symbol string) (types.OrderResp, error)
	CancelOrder(ctx context.Context, orderID, symbol string) error
}
