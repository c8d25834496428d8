package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradebot-go/internal/market"
)

type recordingSink struct {
	fills  []Fill
	trades []Trade
}

func (r *recordingSink) RecordFill(f Fill)   { r.fills = append(r.fills, f) }
func (r *recordingSink) RecordTrade(t Trade) { r.trades = append(r.trades, t) }

// flakyAdapter fails the first n submits with a transient error.
type flakyAdapter struct {
	PaperAdapter
	failures int
	submits  int
}

func (f *flakyAdapter) Submit(ctx context.Context, o Order) error {
	f.submits++
	if f.submits <= f.failures {
		return errors.New("connection reset")
	}
	return f.PaperAdapter.Submit(ctx, o)
}

// fatalAdapter rejects every submit with a non-retryable error.
type fatalAdapter struct{ PaperAdapter }

func (f *fatalAdapter) Submit(context.Context, Order) error {
	return Fatal(errors.New("invalid credentials"))
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Timeout: time.Second}
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func entryOrder(qty, price, stop, target float64) Order {
	return Order{
		ID:     NewOrderID(),
		Symbol: "BTC/USDT",
		Side:   Buy,
		Qty:    d(qty),
		Price:  d(price),
		Stop:   d(stop),
		Target: d(target),
		Ts:     time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
	}
}

func pump(t *testing.T, m *Machine, adapter Adapter) {
	t.Helper()
	fills, err := adapter.PollFills(context.Background())
	if err != nil {
		t.Fatalf("PollFills returned error: %v", err)
	}
	for _, f := range fills {
		if err := m.ApplyFill(f); err != nil {
			t.Fatalf("ApplyFill returned error: %v", err)
		}
	}
}

func TestMachineEntryToOpen(t *testing.T) {
	adapter := NewPaperAdapter(0, 0, 1)
	sink := &recordingSink{}
	m := NewMachine("BTC/USDT", "warrior_momentum", adapter, sink, fastRetry(), 0, zerolog.Nop())

	ord := entryOrder(1, 100, 95, 110)
	if err := m.OnEntrySignal(context.Background(), ord); err != nil {
		t.Fatalf("OnEntrySignal returned error: %v", err)
	}
	if m.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", m.State())
	}

	pump(t, m, adapter)
	if m.State() != StateOpen {
		t.Fatalf("expected open, got %s", m.State())
	}
	pos := m.Position()
	if !pos.Qty.Equal(d(1)) || !pos.AvgEntry.Equal(d(100)) {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if len(sink.fills) != 1 {
		t.Fatalf("expected 1 fill recorded, got %d", len(sink.fills))
	}
}

func TestMachinePartialFillsAccumulate(t *testing.T) {
	adapter := NewPaperAdapter(0, 0, 3)
	sink := &recordingSink{}
	m := NewMachine("BTC/USDT", "grid", adapter, sink, fastRetry(), 0, zerolog.Nop())

	if err := m.OnEntrySignal(context.Background(), entryOrder(0.9, 100, 90, 0)); err != nil {
		t.Fatalf("OnEntrySignal returned error: %v", err)
	}
	fills, _ := adapter.PollFills(context.Background())
	if len(fills) != 3 {
		t.Fatalf("expected 3 partial fills, got %d", len(fills))
	}
	// applying only the first two keeps the order pending
	for _, f := range fills[:2] {
		if err := m.ApplyFill(f); err != nil {
			t.Fatalf("ApplyFill returned error: %v", err)
		}
	}
	if m.State() != StateSubmitted {
		t.Fatalf("expected submitted after partial fills, got %s", m.State())
	}
	if err := m.ApplyFill(fills[2]); err != nil {
		t.Fatalf("ApplyFill returned error: %v", err)
	}
	if m.State() != StateOpen {
		t.Fatalf("expected open after final fill, got %s", m.State())
	}
	if !m.Position().Qty.Equal(d(0.9)) {
		t.Fatalf("partial fills should sum to order qty, got %s", m.Position().Qty)
	}
}

func TestMachineRoundTripRealizesPnL(t *testing.T) {
	adapter := NewPaperAdapter(0, 0, 1)
	sink := &recordingSink{}
	m := NewMachine("BTC/USDT", "warrior_momentum", adapter, sink, fastRetry(), 0, zerolog.Nop())

	if err := m.OnEntrySignal(context.Background(), entryOrder(2, 100, 95, 110)); err != nil {
		t.Fatalf("OnEntrySignal returned error: %v", err)
	}
	pump(t, m, adapter)

	// target breach inside the bar range
	bar := market.Bar{Symbol: "BTC/USDT", Ts: time.Now().UTC(), Open: 108, High: 111, Low: 107, Close: 110}
	if err := m.CheckBrackets(context.Background(), bar); err != nil {
		t.Fatalf("CheckBrackets returned error: %v", err)
	}
	if m.State() != StateClosing {
		t.Fatalf("expected closing, got %s", m.State())
	}
	pump(t, m, adapter)

	if m.State() != StateIdle {
		t.Fatalf("expected idle after close, got %s", m.State())
	}
	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(sink.trades))
	}
	trade := sink.trades[0]
	if trade.ExitReason != "target" {
		t.Fatalf("unexpected exit reason %q", trade.ExitReason)
	}
	// 2 units, entry 100, exit 110
	if !trade.PnL.Equal(d(20)) {
		t.Fatalf("expected PnL 20, got %s", trade.PnL)
	}
}

func TestMachineStopWinsWhenBothBreached(t *testing.T) {
	adapter := NewPaperAdapter(0, 0, 1)
	sink := &recordingSink{}
	m := NewMachine("BTC/USDT", "warrior_momentum", adapter, sink, fastRetry(), 0, zerolog.Nop())

	if err := m.OnEntrySignal(context.Background(), entryOrder(1, 100, 95, 110)); err != nil {
		t.Fatalf("OnEntrySignal returned error: %v", err)
	}
	pump(t, m, adapter)

	bar := market.Bar{Symbol: "BTC/USDT", Ts: time.Now().UTC(), Open: 100, High: 120, Low: 90, Close: 100}
	if err := m.CheckBrackets(context.Background(), bar); err != nil {
		t.Fatalf("CheckBrackets returned error: %v", err)
	}
	pump(t, m, adapter)
	if sink.trades[0].ExitReason != "stop" {
		t.Fatalf("stop should win over target, got %q", sink.trades[0].ExitReason)
	}
	if !sink.trades[0].PnL.Equal(d(-5)) {
		t.Fatalf("expected PnL -5, got %s", sink.trades[0].PnL)
	}
}

func TestMachineDropsConcurrentEntries(t *testing.T) {
	adapter := NewPaperAdapter(0, 0, 1)
	m := NewMachine("BTC/USDT", "grid", adapter, &recordingSink{}, fastRetry(), 0, zerolog.Nop())

	if err := m.OnEntrySignal(context.Background(), entryOrder(1, 100, 95, 0)); err != nil {
		t.Fatalf("first entry: %v", err)
	}
	// second signal while submitted must be ignored
	if err := m.OnEntrySignal(context.Background(), entryOrder(1, 99, 94, 0)); err != nil {
		t.Fatalf("second entry should be dropped silently: %v", err)
	}
	fills, _ := adapter.PollFills(context.Background())
	if len(fills) != 1 {
		t.Fatalf("expected exactly one submitted order, got %d fills", len(fills))
	}
}

func TestMachineRetriesTransientErrors(t *testing.T) {
	adapter := &flakyAdapter{PaperAdapter: *NewPaperAdapter(0, 0, 1), failures: 2}
	m := NewMachine("BTC/USDT", "warrior_momentum", adapter, &recordingSink{}, fastRetry(), 0, zerolog.Nop())

	if err := m.OnEntrySignal(context.Background(), entryOrder(1, 100, 95, 110)); err != nil {
		t.Fatalf("expected submit to succeed after retries: %v", err)
	}
	if adapter.submits != 3 {
		t.Fatalf("expected 3 attempts, got %d", adapter.submits)
	}
	if m.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", m.State())
	}
}

func TestMachineRejectsAfterRetriesExhausted(t *testing.T) {
	adapter := &flakyAdapter{PaperAdapter: *NewPaperAdapter(0, 0, 1), failures: 10}
	m := NewMachine("BTC/USDT", "warrior_momentum", adapter, &recordingSink{}, fastRetry(), 0, zerolog.Nop())

	err := m.OnEntrySignal(context.Background(), entryOrder(1, 100, 95, 110))
	if err == nil {
		t.Fatalf("expected rejection after exhausted retries")
	}
	if m.State() != StateIdle {
		t.Fatalf("machine should return to idle after rejection, got %s", m.State())
	}
	if adapter.submits != 3 {
		t.Fatalf("expected bounded attempts (3), got %d", adapter.submits)
	}
}

func TestMachineFatalErrorSkipsRetry(t *testing.T) {
	adapter := &fatalAdapter{}
	m := NewMachine("BTC/USDT", "warrior_momentum", adapter, &recordingSink{}, fastRetry(), 0, zerolog.Nop())

	err := m.OnEntrySignal(context.Background(), entryOrder(1, 100, 95, 110))
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestMachineCancelIdempotent(t *testing.T) {
	adapter := NewPaperAdapter(0, 0, 1)
	m := NewMachine("BTC/USDT", "grid", adapter, &recordingSink{}, fastRetry(), 0, zerolog.Nop())

	// nothing in flight: no-op
	if err := m.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel with no order should be a no-op: %v", err)
	}

	if err := m.OnEntrySignal(context.Background(), entryOrder(1, 100, 95, 0)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	pump(t, m, adapter) // order now filled
	if err := m.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel after fill should be a no-op: %v", err)
	}
	if m.State() != StateOpen {
		t.Fatalf("cancel must not disturb the open position, got %s", m.State())
	}
}

func TestMachineInvariantViolationHalts(t *testing.T) {
	adapter := NewPaperAdapter(0, 0, 1)
	sink := &recordingSink{}
	m := NewMachine("BTC/USDT", "grid", adapter, sink, fastRetry(), 0, zerolog.Nop())

	if err := m.OnEntrySignal(context.Background(), entryOrder(1, 100, 90, 0)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	pump(t, m, adapter)
	if err := m.OnExitSignal(context.Background(), d(101), "grid sell", time.Now().UTC()); err != nil {
		t.Fatalf("exit signal: %v", err)
	}

	// forge an oversized exit fill against the live exit order
	bad := Fill{OrderID: m.ActiveOrderID(), Symbol: "BTC/USDT", Side: Sell, Leg: LegExit, Price: d(101), Qty: d(5)}
	err := m.ApplyFill(bad)
	var inv *InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	if !m.Halted() {
		t.Fatalf("machine should halt on invariant violation")
	}
}

func TestMachineCooldownBlocksReentry(t *testing.T) {
	adapter := NewPaperAdapter(0, 0, 1)
	sink := &recordingSink{}
	m := NewMachine("BTC/USDT", "mean_reversion", adapter, sink, fastRetry(), time.Minute, zerolog.Nop())

	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	ord := entryOrder(1, 100, 95, 110)
	ord.Ts = base
	if err := m.OnEntrySignal(context.Background(), ord); err != nil {
		t.Fatalf("entry: %v", err)
	}
	pump(t, m, adapter)
	if err := m.OnExitSignal(context.Background(), d(101), "reverted", base.Add(time.Minute)); err != nil {
		t.Fatalf("exit: %v", err)
	}
	pump(t, m, adapter)

	// 30s after the close is inside the cooldown window
	again := entryOrder(1, 100, 95, 110)
	again.Ts = base.Add(90 * time.Second)
	if err := m.OnEntrySignal(context.Background(), again); err != nil {
		t.Fatalf("entry during cooldown should be dropped, not error: %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle during cooldown, got %s", m.State())
	}
}

func TestPaperAdapterSlippageAndFees(t *testing.T) {
	adapter := NewPaperAdapter(10, 5, 1) // 10 bps slip, 5 bps fee
	ord := entryOrder(1, 10000, 0, 0)
	if err := adapter.Submit(context.Background(), ord); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	fills, err := adapter.PollFills(context.Background())
	if err != nil || len(fills) != 1 {
		t.Fatalf("expected one fill, got %d err=%v", len(fills), err)
	}
	if !fills[0].Price.Equal(d(10010)) {
		t.Fatalf("expected buy slipped to 10010, got %s", fills[0].Price)
	}
	wantFee := d(10010).Mul(d(5)).Div(d(10000))
	if !fills[0].Fee.Equal(wantFee) {
		t.Fatalf("expected fee %s, got %s", wantFee, fills[0].Fee)
	}
	// drained
	fills, _ = adapter.PollFills(context.Background())
	if len(fills) != 0 {
		t.Fatalf("expected drained queue, got %d", len(fills))
	}
}
