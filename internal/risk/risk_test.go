package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradebot-go/internal/signal"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestSizerRisksFixedFraction(t *testing.T) {
	s := NewSizer(SizerParams{RiskPerTradePct: 1, MaxNotionalPct: 100, LotStep: d(0.001)})

	// equity 10000, risk 1% = 100, entry 100, stop 95 => qty 20
	qty, reason := s.Size(d(10000), d(100), d(95), signal.Long, 1)
	if reason != RejectNone {
		t.Fatalf("unexpected rejection %q", reason)
	}
	if !qty.Equal(d(20)) {
		t.Fatalf("expected qty 20, got %s", qty)
	}
}

func TestSizerSizesShortsAgainstUpsideStop(t *testing.T) {
	s := NewSizer(SizerParams{RiskPerTradePct: 1, MaxNotionalPct: 100, LotStep: d(0.001)})
	qty, reason := s.Size(d(10000), d(100), d(105), signal.Short, 1)
	if reason != RejectNone {
		t.Fatalf("unexpected rejection %q", reason)
	}
	if !qty.Equal(d(20)) {
		t.Fatalf("expected qty 20, got %s", qty)
	}
}

func TestSizerNegativeBudgetRejectsEverything(t *testing.T) {
	s := NewSizer(SizerParams{RiskPerTradePct: -5, MaxNotionalPct: 100, LotStep: d(0.001)})
	qty, reason := s.Size(d(10000), d(100), d(95), signal.Long, 1)
	if reason != RejectNoBudget {
		t.Fatalf("expected no budget rejection, got %q", reason)
	}
	if !qty.IsZero() {
		t.Fatalf("rejected size must be zero, got %s", qty)
	}
}

func TestSizerRiskFactorScales(t *testing.T) {
	s := NewSizer(SizerParams{RiskPerTradePct: 1, MaxNotionalPct: 100, LotStep: d(0.001)})
	qty, reason := s.Size(d(10000), d(100), d(95), signal.Long, 0.5)
	if reason != RejectNone {
		t.Fatalf("unexpected rejection %q", reason)
	}
	if !qty.Equal(d(10)) {
		t.Fatalf("expected half-size qty 10, got %s", qty)
	}
	// a zero factor falls back to full size
	qty, _ = s.Size(d(10000), d(100), d(95), signal.Long, 0)
	if !qty.Equal(d(20)) {
		t.Fatalf("expected default factor qty 20, got %s", qty)
	}
}

func TestSizerCapsNotional(t *testing.T) {
	// a tight stop would size a huge position; the notional cap clamps it
	s := NewSizer(SizerParams{RiskPerTradePct: 1, MaxNotionalPct: 10, LotStep: d(0.001)})
	qty, reason := s.Size(d(10000), d(100), d(99.9), signal.Long, 1)
	if reason != RejectNone {
		t.Fatalf("unexpected rejection %q", reason)
	}
	// cap: 10% of 10000 = 1000 notional => 10 units
	if !qty.Equal(d(10)) {
		t.Fatalf("expected capped qty 10, got %s", qty)
	}
}

func TestSizerFloorsToLotStep(t *testing.T) {
	s := NewSizer(SizerParams{RiskPerTradePct: 1, MaxNotionalPct: 100, LotStep: d(1)})
	// raw qty 100/7 = 14.28..., floored to 14
	qty, reason := s.Size(d(10000), d(107), d(100), signal.Long, 1)
	if reason != RejectNone {
		t.Fatalf("unexpected rejection %q", reason)
	}
	if !qty.Equal(d(14)) {
		t.Fatalf("expected qty floored to 14, got %s", qty)
	}
}

func TestSizerRejections(t *testing.T) {
	s := NewSizer(SizerParams{RiskPerTradePct: 1, MaxNotionalPct: 100, LotStep: d(0.001)})
	cases := []struct {
		name                string
		equity, entry, stop decimal.Decimal
		dir                 signal.Direction
		want                RejectReason
	}{
		{"no budget", decimal.Zero, d(100), d(95), signal.Long, RejectNoBudget},
		{"negative equity", d(-5), d(100), d(95), signal.Long, RejectNoBudget},
		{"stop at entry", d(10000), d(100), d(100), signal.Long, RejectBadStop},
		{"zero entry", d(10000), decimal.Zero, d(-5), signal.Long, RejectBadStop},
		{"long stop above entry", d(10000), d(100), d(105), signal.Long, RejectBadStop},
		{"short stop below entry", d(10000), d(100), d(95), signal.Short, RejectBadStop},
		{"flat direction", d(10000), d(100), d(95), signal.Flat, RejectBadStop},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qty, reason := s.Size(tc.equity, tc.entry, tc.stop, tc.dir, 1)
			if reason != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, reason)
			}
			if !qty.IsZero() {
				t.Fatalf("rejected size must be zero, got %s", qty)
			}
		})
	}
}

func TestSizerRejectsDustQty(t *testing.T) {
	s := NewSizer(SizerParams{RiskPerTradePct: 1, MaxNotionalPct: 100, LotStep: d(1)})
	// risk budget 1, distance 5 => raw 0.2, floored to 0
	_, reason := s.Size(d(100), d(100), d(95), signal.Long, 1)
	if reason != RejectZeroQty {
		t.Fatalf("expected zero qty rejection, got %q", reason)
	}
}

func TestSizerRejectsOversizedNotional(t *testing.T) {
	// a cap above 100% lets the notional outgrow equity; that is rejected
	// rather than clamped
	s := NewSizer(SizerParams{RiskPerTradePct: 50, MaxNotionalPct: 200, LotStep: d(0.001)})
	_, reason := s.Size(d(100), d(10), d(9.9), signal.Long, 1)
	if reason != RejectExceedsEquity {
		t.Fatalf("expected exceeds equity rejection, got %q", reason)
	}
}

func TestManagerMaxOpenPositions(t *testing.T) {
	m := NewManager(ManagerParams{MaxOpenPositions: 2}, d(10000))
	ts := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	if r := m.AllowEntry(ts); r != RejectNone {
		t.Fatalf("expected entry allowed, got %q", r)
	}
	m.OnOpen()
	m.OnOpen()
	if r := m.AllowEntry(ts); r != RejectMaxPositions {
		t.Fatalf("expected max positions rejection, got %q", r)
	}
	m.OnClose(d(1), ts)
	if r := m.AllowEntry(ts); r != RejectNone {
		t.Fatalf("expected slot freed after close, got %q", r)
	}
}

func TestManagerDailyLossLimitHaltsAndRollsOver(t *testing.T) {
	m := NewManager(ManagerParams{DailyLossLimitPct: 2, MaxOpenPositions: 10}, d(10000))
	day1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	m.OnOpen()
	m.OnClose(d(-150), day1)
	if r := m.AllowEntry(day1); r != RejectNone {
		t.Fatalf("loss under the limit must not halt, got %q", r)
	}

	m.OnOpen()
	m.OnClose(d(-60), day1.Add(time.Hour)) // cumulative -210 <= -200
	if r := m.AllowEntry(day1.Add(2 * time.Hour)); r != RejectDailyLossLimit {
		t.Fatalf("expected daily loss halt, got %q", r)
	}

	// next UTC day clears the halt and the accumulator
	day2 := day1.Add(24 * time.Hour)
	if r := m.AllowEntry(day2); r != RejectNone {
		t.Fatalf("expected rollover to clear the halt, got %q", r)
	}
	if !m.DailyPnL().IsZero() {
		t.Fatalf("expected daily PnL reset, got %s", m.DailyPnL())
	}
}

func TestManagerRolloverUsesUpdatedEquity(t *testing.T) {
	m := NewManager(ManagerParams{DailyLossLimitPct: 10, MaxOpenPositions: 10}, d(10000))
	day1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	m.AllowEntry(day1)

	// equity halved intraday: tomorrow's 10% limit is 500, not 1000
	m.SetEquity(d(5000))
	day2 := day1.Add(24 * time.Hour)
	m.AllowEntry(day2)
	m.OnOpen()
	m.OnClose(d(-600), day2)
	if r := m.AllowEntry(day2.Add(time.Hour)); r != RejectDailyLossLimit {
		t.Fatalf("expected halt against the updated equity base, got %q", r)
	}
}
