package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradebot-go/internal/market"
	"tradebot-go/internal/metrics"
)

// Recorder receives the immutable records the machine produces. The portfolio
// ledger is the canonical implementation.
type Recorder interface {
	RecordFill(Fill)
	RecordTrade(Trade)
}

// InvariantError reports a state that can only arise from a bug (e.g. a fill
// exceeding the held quantity). It halts the affected machine, not the process.
type InvariantError struct {
	Symbol   string
	Strategy string
	Msg      string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation sym=%s strat=%s: %s", e.Symbol, e.Strategy, e.Msg)
}

// Machine drives one symbol/strategy pair through
// Signaled -> Submitted -> {Filled, Rejected, Cancelled} -> Open -> Closed.
// It is confined to its symbol's worker goroutine, so no lock is held while an
// adapter call blocks; slow exchange calls on one symbol cannot starve others.
type Machine struct {
	log      zerolog.Logger
	adapter  Adapter
	rec      Recorder
	retry    RetryPolicy
	cooldown time.Duration

	symbol   string
	strategy string

	state  State
	order  *Order
	filled decimal.Decimal
	pos    Position

	stop   decimal.Decimal
	target decimal.Decimal

	tradeID        string
	entryNotional  decimal.Decimal
	exitNotional   decimal.Decimal
	fees           decimal.Decimal
	openedAt       time.Time
	lastCloseTs    time.Time
	lastExitReason string
}

// NewMachine wires a machine for one symbol/strategy pair.
func NewMachine(symbol, strategy string, adapter Adapter, rec Recorder, retry RetryPolicy, cooldown time.Duration, log zerolog.Logger) *Machine {
	return &Machine{
		log:      log.With().Str("sym", symbol).Str("strat", strategy).Logger(),
		adapter:  adapter,
		rec:      rec,
		retry:    retry.normalize(),
		cooldown: cooldown,
		symbol:   symbol,
		strategy: strategy,
		state:    StateIdle,
	}
}

// State exposes the current lifecycle stage.
func (m *Machine) State() State { return m.state }

// Position returns a copy of the held position.
func (m *Machine) Position() Position { return m.pos }

// ActiveOrderID returns the in-flight order id, or "" when none.
func (m *Machine) ActiveOrderID() string {
	if m.order == nil {
		return ""
	}
	return m.order.ID
}

// OnEntrySignal submits a sized entry order. A signal arriving while an order
// is in flight or a position is open is dropped, never fired concurrently.
func (m *Machine) OnEntrySignal(ctx context.Context, ord Order) error {
	if m.state != StateIdle {
		m.log.Debug().Str("state", m.state.String()).Msg("entry signal dropped, machine busy")
		return nil
	}
	if m.cooldown > 0 && !m.lastCloseTs.IsZero() && ord.Ts.Sub(m.lastCloseTs) < m.cooldown {
		m.log.Debug().Time("last_close", m.lastCloseTs).Msg("entry signal dropped, cooldown")
		return nil
	}

	ord.Leg = LegEntry
	m.tradeID = NewOrderID()
	ord.TradeID = m.tradeID
	m.state = StateSignaled
	m.order = &ord
	m.filled = decimal.Zero
	m.stop = ord.Stop
	m.target = ord.Target
	m.entryNotional = decimal.Zero
	m.exitNotional = decimal.Zero
	m.fees = decimal.Zero

	if err := m.submit(ctx, ord); err != nil {
		// Rejected: surfaced with full context, state returns to idle
		m.log.Error().Err(err).Str("order_id", ord.ID).Str("side", string(ord.Side)).
			Stringer("qty", ord.Qty).Msg("entry order rejected")
		m.reset()
		return err
	}
	m.state = StateSubmitted
	return nil
}

// OnExitSignal closes the open position at the supplied reference price.
// It is a no-op unless a position is open with no exit in flight.
func (m *Machine) OnExitSignal(ctx context.Context, price decimal.Decimal, reason string, ts time.Time) error {
	if m.state != StateOpen {
		return nil
	}
	return m.submitExit(ctx, price, reason, ts)
}

// ApplyFill folds one fill into the machine. Fills not referencing the active
// order are rejected: every fill must correspond to an order this machine
// still owns.
func (m *Machine) ApplyFill(f Fill) error {
	if m.state == StateHalted {
		return nil
	}
	if m.order == nil || f.OrderID != m.order.ID {
		m.log.Warn().Str("order_id", f.OrderID).Msg("fill for unknown order dropped")
		return nil
	}

	m.rec.RecordFill(f)
	metrics.FillsTotal.WithLabelValues(m.symbol).Inc()
	m.fees = m.fees.Add(f.Fee)
	m.filled = m.filled.Add(f.Qty)

	switch f.Leg {
	case LegEntry:
		newQty := m.pos.Qty.Add(f.Qty)
		m.entryNotional = m.entryNotional.Add(f.Price.Mul(f.Qty))
		m.pos = Position{
			Symbol:   m.symbol,
			Strategy: m.strategy,
			Side:     f.Side,
			Qty:      newQty,
			AvgEntry: m.entryNotional.Div(newQty),
		}
		if m.filled.GreaterThanOrEqual(m.order.Qty) {
			m.order = nil
			m.filled = decimal.Zero
			m.state = StateOpen
			m.openedAt = f.Ts
			metrics.OpenPositions.WithLabelValues(m.symbol, m.strategy).Set(1)
			m.log.Info().Stringer("qty", m.pos.Qty).Stringer("avg", m.pos.AvgEntry).Msg("position open")
		}
	case LegExit:
		if f.Qty.GreaterThan(m.pos.Qty) {
			m.state = StateHalted
			return &InvariantError{Symbol: m.symbol, Strategy: m.strategy,
				Msg: fmt.Sprintf("exit fill qty %s exceeds position %s", f.Qty, m.pos.Qty)}
		}
		m.pos.Qty = m.pos.Qty.Sub(f.Qty)
		m.exitNotional = m.exitNotional.Add(f.Price.Mul(f.Qty))
		if m.pos.Qty.IsZero() {
			m.finalizeTrade(f.Ts)
		}
	}
	return nil
}

// CheckBrackets tests the open position against its stop and target using the
// bar's range, submitting the closing order on a breach. When both prices are
// inside one bar the stop wins.
func (m *Machine) CheckBrackets(ctx context.Context, bar market.Bar) error {
	if m.state != StateOpen {
		return nil
	}
	low := decimal.NewFromFloat(bar.Low)
	high := decimal.NewFromFloat(bar.High)

	if m.pos.Side == Buy {
		if m.stop.IsPositive() && low.LessThanOrEqual(m.stop) {
			return m.submitExit(ctx, m.stop, "stop", bar.Ts)
		}
		if m.target.IsPositive() && high.GreaterThanOrEqual(m.target) {
			return m.submitExit(ctx, m.target, "target", bar.Ts)
		}
		return nil
	}
	if m.stop.IsPositive() && high.GreaterThanOrEqual(m.stop) {
		return m.submitExit(ctx, m.stop, "stop", bar.Ts)
	}
	if m.target.IsPositive() && low.LessThanOrEqual(m.target) {
		return m.submitExit(ctx, m.target, "target", bar.Ts)
	}
	return nil
}

// Cancel withdraws the in-flight order. Cancelling when nothing is in flight
// (already filled, already cancelled) is a no-op, not an error.
func (m *Machine) Cancel(ctx context.Context) error {
	if m.order == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, m.retry.Timeout)
	err := m.adapter.Cancel(cctx, m.order.ID)
	cancel()
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", m.order.ID, err)
	}
	leg := m.order.Leg
	m.log.Info().Str("order_id", m.order.ID).Msg("order cancelled")
	m.order = nil
	m.filled = decimal.Zero
	switch {
	case leg == LegExit, m.pos.Qty.IsPositive():
		// partial entry fills leave a live position behind
		m.state = StateOpen
	default:
		m.reset()
	}
	return nil
}

// Open reports whether a position is currently held.
func (m *Machine) Open() bool {
	return (m.state == StateOpen || m.state == StateClosing) && m.pos.Qty.IsPositive()
}

// Halted reports whether an invariant violation stopped this machine.
func (m *Machine) Halted() bool { return m.state == StateHalted }

func (m *Machine) submitExit(ctx context.Context, price decimal.Decimal, reason string, ts time.Time) error {
	ord := Order{
		ID:       NewOrderID(),
		TradeID:  m.tradeID,
		Symbol:   m.symbol,
		Strategy: m.strategy,
		Side:     m.pos.Side.Opposite(),
		Leg:      LegExit,
		Qty:      m.pos.Qty,
		Price:    price,
		Ts:       ts,
		Reason:   reason,
	}
	m.order = &ord
	m.filled = decimal.Zero
	if err := m.submit(ctx, ord); err != nil {
		// position stays in last-known state for operator intervention
		m.order = nil
		m.log.Error().Err(err).Str("order_id", ord.ID).Str("reason", reason).
			Msg("exit order rejected, position left open")
		return err
	}
	m.state = StateClosing
	m.lastExitReason = reason
	return nil
}

// submit sends the order with bounded retries and exponential backoff.
// Transient adapter errors are retried; fatal errors and exhausted retries
// surface as a rejection.
func (m *Machine) submit(ctx context.Context, ord Order) error {
	backoff := m.retry.Backoff
	for attempt := 1; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, m.retry.Timeout)
		err := m.adapter.Submit(cctx, ord)
		cancel()
		if err == nil {
			metrics.OrdersTotal.WithLabelValues(ord.Symbol, string(ord.Side)).Inc()
			m.log.Info().Str("order_id", ord.ID).Str("side", string(ord.Side)).Str("leg", string(ord.Leg)).
				Stringer("qty", ord.Qty).Stringer("px", ord.Price).Msg("order submitted")
			return nil
		}
		if IsFatal(err) {
			return fmt.Errorf("submit order %s: %w", ord.ID, err)
		}
		if attempt >= m.retry.MaxAttempts {
			return fmt.Errorf("submit order %s: retries exhausted after %d attempts: %w", ord.ID, attempt, err)
		}
		m.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
			Str("order_id", ord.ID).Msg("transient submit failure, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = m.retry.next(backoff)
	}
}

func (m *Machine) finalizeTrade(closedAt time.Time) {
	qty := m.order.Qty
	trade := Trade{
		ID:         m.tradeID,
		Symbol:     m.symbol,
		Strategy:   m.strategy,
		Side:       m.pos.Side,
		Qty:        qty,
		AvgEntry:   m.pos.AvgEntry,
		AvgExit:    m.exitNotional.Div(qty),
		Fees:       m.fees,
		OpenedAt:   m.openedAt,
		ClosedAt:   closedAt,
		ExitReason: m.lastExitReason,
	}
	if m.pos.Side == Buy {
		trade.PnL = m.exitNotional.Sub(m.entryNotional).Sub(m.fees)
	} else {
		trade.PnL = m.entryNotional.Sub(m.exitNotional).Sub(m.fees)
	}
	m.rec.RecordTrade(trade)
	metrics.OpenPositions.WithLabelValues(m.symbol, m.strategy).Set(0)
	m.log.Info().Stringer("pnl", trade.PnL).Str("exit_reason", trade.ExitReason).Msg("trade closed")
	m.lastCloseTs = closedAt
	m.reset()
}

func (m *Machine) reset() {
	m.state = StateIdle
	m.order = nil
	m.filled = decimal.Zero
	m.pos = Position{}
	m.stop = decimal.Zero
	m.target = decimal.Zero
	m.tradeID = ""
	m.entryNotional = decimal.Zero
	m.exitNotional = decimal.Zero
	m.fees = decimal.Zero
	m.lastExitReason = ""
}
