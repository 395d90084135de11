package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spot-trading-bot/internal/interfaces"
	"spot-trading-bot/internal/types"
)

// Params configures the simulated venue.
type Params struct {
	QuoteAsset   string
	StartBalance float64
	// Prices seeds the starting price per symbol. Unknown symbols get a
	// random base price.
	Prices map[string]float64
	// Drift disables the random walk when false, keeping prices fixed.
	Drift bool
}

type simOrder struct {
	id      string
	symbol  string
	side    types.Side
	typ     types.OrderType
	qty     decimal.Decimal
	price   decimal.Decimal // limit price, zero for market
	status  types.OrderStatus
	filled  decimal.Decimal
	average decimal.Decimal
	created time.Time
}

// Paper is an in-process simulated venue: drifting prices, immediate market
// fills, resting limit orders that fill when the price crosses them, and
// decimal balance accounting.
type Paper struct {
	mu       sync.Mutex
	p        Params
	rng      *rand.Rand
	balances map[string]decimal.Decimal
	prices   map[string]decimal.Decimal
	orders   map[string]*simOrder
	seq      int
}

var _ interfaces.Venue = (*Paper)(nil)

func New(p Params) *Paper {
	if p.QuoteAsset == "" {
		p.QuoteAsset = "USDT"
	}
	if p.StartBalance <= 0 {
		p.StartBalance = 1000
	}
	v := &Paper{
		p:        p,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		balances: map[string]decimal.Decimal{},
		prices:   map[string]decimal.Decimal{},
		orders:   map[string]*simOrder{},
	}
	v.balances[p.QuoteAsset] = decimal.NewFromFloat(p.StartBalance)
	for sym, px := range p.Prices {
		v.prices[sym] = decimal.NewFromFloat(px)
	}
	return v
}

// SetPrice pins a symbol's price. Used by tests and dry-run scripting.
func (v *Paper) SetPrice(symbol string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prices[symbol] = decimal.NewFromFloat(price)
	v.settleLocked(symbol)
}

func (v *Paper) Balance(ctx context.Context, asset string) (types.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if asset == "" {
		asset = v.p.QuoteAsset
	}
	free := v.balances[asset]
	used := v.reservedLocked(asset)
	freeF, _ := free.Float64()
	usedF, _ := used.Float64()
	return types.Balance{Free: freeF, Used: usedF, Total: freeF + usedF}, nil
}

// reservedLocked sums base quantity locked in resting sell orders.
func (v *Paper) reservedLocked(asset string) decimal.Decimal {
	total := decimal.Zero
	for _, o := range v.orders {
		if o.status == types.OrderStatusOpen && o.side == types.SideSell && baseAsset(o.symbol) == asset {
			total = total.Add(o.qty.Sub(o.filled))
		}
	}
	return total
}

func (v *Paper) Ticker(ctx context.Context, symbol string) (types.Ticker, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	px := v.priceLocked(symbol)
	if v.p.Drift {
		// small random walk, bounded to ±0.5%
		step := (v.rng.Float64() - 0.5) / 100
		px = px.Mul(decimal.NewFromFloat(1 + step))
		v.prices[symbol] = px
		v.settleLocked(symbol)
	}
	last, _ := px.Float64()
	return types.Ticker{
		Last:   last,
		High:   last * 1.01,
		Low:    last * 0.99,
		Volume: 1000 + v.rng.Float64()*1000,
	}, nil
}

func (v *Paper) priceLocked(symbol string) decimal.Decimal {
	if px, ok := v.prices[symbol]; ok {
		return px
	}
	px := decimal.NewFromFloat(100 + v.rng.Float64()*900)
	v.prices[symbol] = px
	return px
}

func (v *Paper) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if req.Symbol == "" {
		return types.OrderResp{}, fmt.Errorf("paper: order has no symbol")
	}
	if err := req.Amount.Validate(); err != nil {
		return types.OrderResp{}, fmt.Errorf("paper: %w", err)
	}

	px := v.priceLocked(req.Symbol)
	qty, err := orderQty(req, px)
	if err != nil {
		return types.OrderResp{}, err
	}

	v.seq++
	o := &simOrder{
		id:      fmt.Sprintf("PAPER-%06d", v.seq),
		symbol:  req.Symbol,
		side:    req.Side,
		typ:     req.Type,
		qty:     qty,
		status:  types.OrderStatusOpen,
		created: time.Now(),
	}
	if req.Type == types.OrderLimit {
		if req.Price <= 0 {
			return types.OrderResp{}, fmt.Errorf("paper: limit order requires a price")
		}
		o.price = decimal.NewFromFloat(req.Price)
	}
	v.orders[o.id] = o

	if req.Type == types.OrderMarket {
		v.fillLocked(o, px)
	} else if limitCrossed(o, px) {
		v.fillLocked(o, o.price)
	}
	return v.respLocked(o), nil
}

func orderQty(req types.OrderReq, px decimal.Decimal) (decimal.Decimal, error) {
	if req.Amount.IsQuantity() {
		return decimal.NewFromFloat(req.Amount.Value), nil
	}
	if px.IsZero() {
		return decimal.Zero, fmt.Errorf("paper: no price to convert notional for %s", req.Symbol)
	}
	return decimal.NewFromFloat(req.Amount.Value).Div(px), nil
}

func limitCrossed(o *simOrder, px decimal.Decimal) bool {
	if o.side == types.SideSell {
		return px.GreaterThanOrEqual(o.price)
	}
	return px.LessThanOrEqual(o.price)
}

// fillLocked fills an open order completely at the given price and settles
// the quote balance.
func (v *Paper) fillLocked(o *simOrder, px decimal.Decimal) {
	o.status = types.OrderStatusFilled
	o.filled = o.qty
	o.average = px

	quote := v.p.QuoteAsset
	notional := o.qty.Mul(px)
	base := baseAsset(o.symbol)
	if o.side == types.SideBuy {
		v.balances[quote] = v.balances[quote].Sub(notional)
		v.balances[base] = v.balances[base].Add(o.qty)
	} else {
		v.balances[quote] = v.balances[quote].Add(notional)
		v.balances[base] = v.balances[base].Sub(o.qty)
	}
}

// settleLocked fills any resting limit order the new price crosses.
func (v *Paper) settleLocked(symbol string) {
	for _, o := range v.orders {
		if o.symbol != symbol || o.status != types.OrderStatusOpen || o.typ != types.OrderLimit {
			continue
		}
		if limitCrossed(o, v.prices[symbol]) {
			v.fillLocked(o, o.price)
		}
	}
}

func (v *Paper) GetOrder(ctx context.Context, orderID, symbol string) (types.OrderResp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return types.OrderResp{}, fmt.Errorf("paper: order %s not found", orderID)
	}
	if o.status == types.OrderStatusOpen && o.typ == types.OrderLimit && limitCrossed(o, v.priceLocked(o.symbol)) {
		v.fillLocked(o, o.price)
	}
	return v.respLocked(o), nil
}

func (v *Paper) CancelOrder(ctx context.Context, orderID, symbol string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: order %s not found", orderID)
	}
	if o.status == types.OrderStatusFilled {
		return fmt.Errorf("paper: order %s already filled", orderID)
	}
	o.status = types.OrderStatusCancelled
	return nil
}

func (v *Paper) respLocked(o *simOrder) types.OrderResp {
	filled, _ := o.filled.Float64()
	avg, _ := o.average.Float64()
	return types.OrderResp{
		OrderID: o.id,
		Status:  o.status,
		Filled:  filled,
		Average: avg,
	}
}

// baseAsset derives the base asset from a SYMBOL/QUOTE pair; a bare symbol
// is its own base.
func baseAsset(symbol string) string {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			return symbol[:i]
		}
	}
	return symbol
}
