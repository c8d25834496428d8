// Package execution manages the order/position lifecycle against an abstract
// exchange adapter.
package execution

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side enumerates order directions.
type Side string

const (
	// Buy indicates a buying order.
	Buy Side = "BUY"
	// Sell indicates a selling order.
	Sell Side = "SELL"
)

// Opposite returns the closing side for a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Leg distinguishes the opening and closing halves of a round trip.
type Leg string

const (
	LegEntry Leg = "entry"
	LegExit  Leg = "exit"
)

// State is the lifecycle stage of the symbol/strategy machine.
type State int

const (
	// StateIdle means no order in flight and no open position.
	StateIdle State = iota
	// StateSignaled means a sized order exists but has not been sent yet.
	StateSignaled
	// StateSubmitted means the adapter accepted the order and fills are pending.
	StateSubmitted
	// StateOpen means the entry filled completely and a position is held.
	StateOpen
	// StateClosing means an exit order is in flight for the open position.
	StateClosing
	// StateHalted means an invariant violation stopped this machine.
	StateHalted
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateSignaled:
		return "signaled"
	case StateSubmitted:
		return "submitted"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateHalted:
		return "halted"
	default:
		return "idle"
	}
}

// Order is a sized placement request. It is owned by the machine until it
// reaches a terminal state.
type Order struct {
	ID       string          `json:"id"`
	TradeID  string          `json:"trade_id"`
	Symbol   string          `json:"symbol"`
	Strategy string          `json:"strategy"`
	Side     Side            `json:"side"`
	Leg      Leg             `json:"leg"`
	Qty      decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	Stop     decimal.Decimal `json:"stop"`
	Target   decimal.Decimal `json:"target"`
	Ts       time.Time       `json:"ts"`
	// Reason carries the originating signal's reason for audit logs.
	Reason string `json:"reason,omitempty"`
}

// NewOrderID returns a fresh order identifier.
func NewOrderID() string { return uuid.NewString() }

// Fill is the immutable record of one executed order leg (possibly partial).
type Fill struct {
	OrderID  string          `json:"order_id"`
	TradeID  string          `json:"trade_id"`
	Symbol   string          `json:"symbol"`
	Strategy string          `json:"strategy"`
	Side     Side            `json:"side"`
	Leg      Leg             `json:"leg"`
	Price    decimal.Decimal `json:"price"`
	Qty      decimal.Decimal `json:"qty"`
	Fee      decimal.Decimal `json:"fee"`
	Ts       time.Time       `json:"ts"`
}

// Position tracks the held quantity for one symbol/strategy pair. Quantity is
// always non-negative; Side carries the direction.
type Position struct {
	Symbol   string
	Strategy string
	Side     Side
	Qty      decimal.Decimal
	AvgEntry decimal.Decimal
}

// Trade is a finalized entry/exit round trip with realized P/L, the unit the
// portfolio ledger records for analytics.
type Trade struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Strategy   string          `json:"strategy"`
	Side       Side            `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	AvgEntry   decimal.Decimal `json:"avg_entry"`
	AvgExit    decimal.Decimal `json:"avg_exit"`
	Fees       decimal.Decimal `json:"fees"`
	PnL        decimal.Decimal `json:"pnl"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   time.Time       `json:"closed_at"`
	ExitReason string          `json:"exit_reason"`
}
