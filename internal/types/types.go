package types

import (
	"fmt"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// AmountKind tags the Amount union: a plan is denominated either in quote
// currency (notional) or in base units (quantity), never both.
type AmountKind string

const (
	AmountNotional AmountKind = "NOTIONAL"
	AmountQuantity AmountKind = "QUANTITY"
)

type Amount struct {
	Kind  AmountKind `json:"kind" yaml:"kind"`
	Value float64    `json:"value" yaml:"value"`
}

func Notional(v float64) Amount { return Amount{Kind: AmountNotional, Value: v} }
func Quantity(v float64) Amount { return Amount{Kind: AmountQuantity, Value: v} }

func (a Amount) IsNotional() bool { return a.Kind == AmountNotional }
func (a Amount) IsQuantity() bool { return a.Kind == AmountQuantity }

func (a Amount) Validate() error {
	if a.Kind != AmountNotional && a.Kind != AmountQuantity {
		return fmt.Errorf("amount kind must be %s or %s, got %q", AmountNotional, AmountQuantity, a.Kind)
	}
	if a.Value <= 0 {
		return fmt.Errorf("amount value must be positive, got %v", a.Value)
	}
	return nil
}

// TradePlan is the normalized operator command. Immutable once created.
type TradePlan struct {
	Venue  string    `json:"venue"`
	Market string    `json:"market"`
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Type   OrderType `json:"type"`
	Amount Amount    `json:"amount"`

	// LimitPrice applies to LIMIT plans only; zero means unset.
	LimitPrice float64 `json:"limit_price,omitempty"`

	// Per-plan overrides; zero falls back to the configured defaults.
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"`
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`

	ExecuteNow bool `json:"execute_now"`
	DryRun     bool `json:"dry_run"`
}

// Venue DTOs.

type Balance struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

type Ticker struct {
	Last   float64 `json:"last"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume float64 `json:"volume"`
}

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type OrderReq struct {
	Symbol string
	Side   Side
	Type   OrderType
	Amount Amount
	// Price applies to LIMIT orders only.
	Price float64
	Tag   string
}

type OrderResp struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Filled  float64     `json:"filled"`
	Average float64     `json:"average"`
}

// Risk Governor decision.

type Verdict string

const (
	VerdictApproved          Verdict = "APPROVED"
	VerdictBlocked           Verdict = "BLOCKED"
	VerdictNeedsConfirmation Verdict = "NEEDS_CONFIRMATION"
)

// RiskDecision carries the verdict plus which check produced it, so callers
// can render structured explanations.
type RiskDecision struct {
	Verdict Verdict `json:"verdict"`
	Check   string  `json:"check,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

func Approved() RiskDecision {
	return RiskDecision{Verdict: VerdictApproved}
}
func Blocked(check, reason string) RiskDecision {
	return RiskDecision{Verdict: VerdictBlocked, Check: check, Reason: reason}
}
func NeedsConfirmation(check, reason string) RiskDecision {
	return RiskDecision{Verdict: VerdictNeedsConfirmation, Check: check, Reason: reason}
}

// ExecutionResult reports one execution attempt. Errors surface here rather
// than as thrown failures; Placed with Verified unset is degraded success
// (order live, fill data uncertain).
type ExecutionResult struct {
	Plan      TradePlan   `json:"plan"`
	DryRun    bool        `json:"dry_run"`
	Placed    bool        `json:"placed"`
	Verified  bool        `json:"verified"`
	OrderID   string      `json:"order_id,omitempty"`
	Status    OrderStatus `json:"status,omitempty"`
	FilledQty float64     `json:"filled_qty"`
	AvgPrice  float64     `json:"avg_price"`
	Notional  float64     `json:"notional"`
	Error     string      `json:"error,omitempty"`
}

// SubmitResult is the full outcome of one operator command.
type SubmitResult struct {
	Decision  RiskDecision     `json:"decision"`
	Execution *ExecutionResult `json:"execution,omitempty"`
}

// TradeRecord is one entry of the bounded trade history.
type TradeRecord struct {
	Time     time.Time `json:"time"`
	Venue    string    `json:"venue"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Type     OrderType `json:"type"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Notional float64   `json:"notional"`
	OrderID  string    `json:"order_id,omitempty"`
	DryRun   bool      `json:"dry_run,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// TradingState is the per-calendar-day durable document. Counters roll over
// lazily: every access compares Date to the current day first.
type TradingState struct {
	Date        string    `json:"date"`
	TradesToday int       `json:"trades_today"`
	DailyPnL    float64   `json:"daily_pnl"`
	LastTradeAt time.Time `json:"last_trade_at"`
	LastLossAt  time.Time `json:"last_loss_at"`
	// Exposure holds per-symbol net notional at entry, in quote currency.
	Exposure map[string]float64 `json:"exposure"`
	History  []TradeRecord      `json:"history"`
}

// Positions and take-profit ladder.

type TPOrderStatus string

const (
	TPOpen      TPOrderStatus = "OPEN"
	TPFilled    TPOrderStatus = "FILLED"
	TPCancelled TPOrderStatus = "CANCELLED"
)

type TPOrder struct {
	OrderID      string        `json:"order_id"`
	GainPct      float64       `json:"gain_pct"`
	SellFraction float64       `json:"sell_fraction"`
	Quantity     float64       `json:"quantity"`
	TargetPrice  float64       `json:"target_price"`
	Status       TPOrderStatus `json:"status"`
}

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

type CloseReason string

const (
	CloseTakeProfit CloseReason = "TAKE_PROFIT"
	CloseStopLoss   CloseReason = "STOP_LOSS"
)

// Position is created exactly once per confirmed buy fill and owned by the
// position monitor until closed. Never deleted, only marked closed.
type Position struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`

	EntryPrice   float64 `json:"entry_price"`
	EntryQty     float64 `json:"entry_qty"`
	RemainingQty float64 `json:"remaining_qty"`
	StopSoldQty  float64 `json:"stop_sold_qty"`

	Status    PositionStatus `json:"status"`
	TPOrders  []TPOrder      `json:"tp_orders"`
	StopArmed bool           `json:"stop_armed"`
	// StopLossPct is the loss percentage that triggers the stop, positive.
	StopLossPct float64 `json:"stop_loss_pct"`
	// TPOverridePct replaces the configured ladder with a single full-size
	// take-profit at this gain when set.
	TPOverridePct float64 `json:"tp_override_pct,omitempty"`

	LastPnLPct    float64   `json:"last_pnl_pct"`
	LastCheckedAt time.Time `json:"last_checked_at"`

	ExitPrice  float64     `json:"exit_price,omitempty"`
	ExitAt     time.Time   `json:"exit_at"`
	ExitReason CloseReason `json:"exit_reason,omitempty"`
}

// NewPositionID builds the symbol+creation-time identity.
func NewPositionID(symbol string, at time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, at.UnixNano())
}

// FilledTPQty sums quantities of filled ladder entries.
func (p *Position) FilledTPQty() float64 {
	var total float64
	for _, tp := range p.TPOrders {
		if tp.Status == TPFilled {
			total += tp.Quantity
		}
	}
	return total
}

// OpenTPOrders returns indexes of ladder entries still live at the venue.
func (p *Position) OpenTPOrders() []int {
	var idx []int
	for i, tp := range p.TPOrders {
		if tp.Status == TPOpen {
			idx = append(idx, i)
		}
	}
	return idx
}
