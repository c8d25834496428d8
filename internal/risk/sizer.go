// Package risk sizes entries and gates them behind account-level limits.
package risk

import (
	"github.com/shopspring/decimal"

	"tradebot-go/internal/signal"
)

// RejectReason explains why a proposed entry was not sized. Rejections are
// expected flow control, not errors.
type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectNoBudget       RejectReason = "no_budget"
	RejectBadStop        RejectReason = "bad_stop"
	RejectZeroQty        RejectReason = "zero_qty"
	RejectExceedsEquity  RejectReason = "exceeds_equity"
	RejectDailyLossLimit RejectReason = "daily_loss_limit"
	RejectMaxPositions   RejectReason = "max_positions"
	RejectHalted         RejectReason = "halted"
)

// SizerParams configures position sizing.
type SizerParams struct {
	// RiskPerTradePct is the fraction of equity risked between entry and
	// stop, in percent.
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
	// MaxNotionalPct caps one position's notional as a percent of equity.
	MaxNotionalPct float64 `yaml:"max_notional_pct"`
	// LotStep is the quantity increment quantities are floored to.
	LotStep decimal.Decimal `yaml:"lot_step"`
}

// Sizer converts a signal's entry/stop distance into an order quantity.
type Sizer struct {
	riskPct   decimal.Decimal
	maxNtlPct decimal.Decimal
	lotStep   decimal.Decimal
}

// NewSizer applies defaults for unset fields and builds a sizer. A negative
// risk budget is kept as-is so Size rejects every entry; config validation
// should have refused it before this point.
func NewSizer(p SizerParams) *Sizer {
	if p.RiskPerTradePct == 0 {
		p.RiskPerTradePct = 1.0
	}
	if p.MaxNotionalPct <= 0 {
		p.MaxNotionalPct = 25.0
	}
	if p.LotStep.IsZero() {
		p.LotStep = decimal.New(1, -8)
	}
	return &Sizer{
		riskPct:   decimal.NewFromFloat(p.RiskPerTradePct).Div(decimal.NewFromInt(100)),
		maxNtlPct: decimal.NewFromFloat(p.MaxNotionalPct).Div(decimal.NewFromInt(100)),
		lotStep:   p.LotStep,
	}
}

// Size returns the order quantity for an entry at entry with a protective
// stop, risking equity scaled by the signal's risk factor. A zero quantity
// with a reason means the entry must not be taken. The stop must sit on the
// losing side of the entry for the given direction.
func (s *Sizer) Size(equity, entry, stop decimal.Decimal, dir signal.Direction, riskFactor float64) (decimal.Decimal, RejectReason) {
	if !equity.IsPositive() || !s.riskPct.IsPositive() {
		return decimal.Zero, RejectNoBudget
	}
	if !entry.IsPositive() {
		return decimal.Zero, RejectBadStop
	}
	switch dir {
	case signal.Long:
		if stop.GreaterThanOrEqual(entry) {
			return decimal.Zero, RejectBadStop
		}
	case signal.Short:
		if stop.LessThanOrEqual(entry) {
			return decimal.Zero, RejectBadStop
		}
	default:
		return decimal.Zero, RejectBadStop
	}
	dist := entry.Sub(stop).Abs()
	rf := decimal.NewFromFloat(riskFactor)
	if !rf.IsPositive() {
		rf = decimal.NewFromInt(1)
	}

	budget := equity.Mul(s.riskPct).Mul(rf)
	qty := budget.Div(dist)

	// cap the notional, then floor to the lot step
	maxNotional := equity.Mul(s.maxNtlPct)
	if qty.Mul(entry).GreaterThan(maxNotional) {
		qty = maxNotional.Div(entry)
	}
	qty = floorToStep(qty, s.lotStep)

	if !qty.IsPositive() {
		return decimal.Zero, RejectZeroQty
	}
	if qty.Mul(entry).GreaterThan(equity) {
		return decimal.Zero, RejectExceedsEquity
	}
	return qty, RejectNone
}

func floorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}
