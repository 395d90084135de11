package engine

import (
	"context"
	"fmt"

	"spot-trading-bot/internal/types"
)

// fakeVenue is a scripted venue for engine tests.
type fakeVenue struct {
	balance    types.Balance
	balanceErr error

	prices    map[string]float64
	tickerErr error

	placeErr    error
	fillOnPlace bool // market orders fill immediately at the symbol price
	placed      []types.OrderReq

	getErr     error
	fillOrders map[string]bool // orders reported filled on next GetOrder
	orders     map[string]*types.OrderResp
	orderPrice map[string]float64

	cancelErr error
	cancelled []string

	seq int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		balance:    types.Balance{Free: 1000, Used: 0, Total: 1000},
		prices:     map[string]float64{},
		fillOrders: map[string]bool{},
		orders:     map[string]*types.OrderResp{},
		orderPrice: map[string]float64{},
	}
}

func (f *fakeVenue) Balance(ctx context.Context, asset string) (types.Balance, error) {
	if f.balanceErr != nil {
		return types.Balance{}, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeVenue) Ticker(ctx context.Context, symbol string) (types.Ticker, error) {
	if f.tickerErr != nil {
		return types.Ticker{}, f.tickerErr
	}
	px, ok := f.prices[symbol]
	if !ok {
		return types.Ticker{}, fmt.Errorf("no price for %s", symbol)
	}
	return types.Ticker{Last: px, High: px, Low: px, Volume: 1}, nil
}

func (f *fakeVenue) qtyOf(req types.OrderReq) float64 {
	if req.Amount.IsQuantity() {
		return req.Amount.Value
	}
	if px := f.prices[req.Symbol]; px > 0 {
		return req.Amount.Value / px
	}
	return 0
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if f.placeErr != nil {
		return types.OrderResp{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	f.seq++
	resp := &types.OrderResp{
		OrderID: fmt.Sprintf("F-%03d", f.seq),
		Status:  types.OrderStatusOpen,
	}
	price := req.Price
	if price == 0 {
		price = f.prices[req.Symbol]
	}
	f.orderPrice[resp.OrderID] = price
	if req.Type == types.OrderMarket && f.fillOnPlace {
		resp.Status = types.OrderStatusFilled
		resp.Filled = f.qtyOf(req)
		resp.Average = price
	}
	f.orders[resp.OrderID] = resp
	return *resp, nil
}

func (f *fakeVenue) GetOrder(ctx context.Context, orderID, symbol string) (types.OrderResp, error) {
	if f.getErr != nil {
		return types.OrderResp{}, f.getErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return types.OrderResp{}, fmt.Errorf("order %s not found", orderID)
	}
	if f.fillOrders[orderID] && o.Status == types.OrderStatusOpen {
		o.Status = types.OrderStatusFilled
		o.Average = f.orderPrice[orderID]
	}
	return *o, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, orderID, symbol string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	if o, ok := f.orders[orderID]; ok && o.Status == types.OrderStatusOpen {
		o.Status = types.OrderStatusCancelled
	}
	return nil
}

// fakeMonitor records hand-offs from the executor.
type fakeMonitor struct {
	watched []*types.Position
}

func (m *fakeMonitor) Watch(ctx context.Context, pos *types.Position) {
	m.watched = append(m.watched, pos)
}
func (m *fakeMonitor) Tick(ctx context.Context)      {}
func (m *fakeMonitor) Run(ctx context.Context) error { return nil }
