package strategy

import (
	"fmt"
	"math"

	sig "tradebot-go/internal/signal"
)

// SymbolProfile overrides thresholds per symbol tier: mega caps move slower
// and warrant smaller gaps and less risk, fast movers the opposite.
type SymbolProfile struct {
	MinRelVol  float64 `yaml:"min_rel_vol"`
	MinGapPct  float64 `yaml:"min_gap_pct"`
	RiskFactor float64 `yaml:"risk_factor"`
}

// WarriorParams configures the momentum strategy. Zero values fall back to
// the defaults applied in NewWarriorMomentum.
type WarriorParams struct {
	MinRelVol      float64                  `yaml:"min_rel_vol"`
	MinGapPct      float64                  `yaml:"min_gap_pct"`
	ATRStopMult    float64                  `yaml:"atr_stop_mult"`
	RMultiple      float64                  `yaml:"r_multiple"`
	MinPrice       float64                  `yaml:"min_price"`
	MaxPrice       float64                  `yaml:"max_price"`
	MinATRFraction float64                  `yaml:"min_atr_fraction"`
	MinBars        int                      `yaml:"min_bars"`
	Profiles       map[string]SymbolProfile `yaml:"profiles"`
}

// WarriorMomentum emits long entries on gap-and-go setups: a session-eligible
// bar with outsized relative volume, a meaningful gap, and a strictly stacked
// EMA trend. Stops are ATR-based, floored at the recent swing low; targets are
// an R-multiple of the entry-to-stop distance.
type WarriorMomentum struct {
	p WarriorParams
}

// NewWarriorMomentum applies defaults and builds the strategy.
func NewWarriorMomentum(p WarriorParams) *WarriorMomentum {
	if p.MinRelVol <= 0 {
		p.MinRelVol = 2.0
	}
	if p.MinGapPct <= 0 {
		p.MinGapPct = 0.5
	}
	if p.ATRStopMult <= 0 {
		p.ATRStopMult = 1.5
	}
	if p.RMultiple <= 0 {
		p.RMultiple = 2.0
	}
	if p.MaxPrice <= 0 {
		p.MaxPrice = math.MaxFloat64
	}
	if p.MinBars <= 0 {
		p.MinBars = 60
	}
	return &WarriorMomentum{p: p}
}

// Name returns the configured identifier for logging.
func (w *WarriorMomentum) Name() string { return ModeWarrior }

// Evaluate applies the momentum filters to one bar.
func (w *WarriorMomentum) Evaluate(ctx Context) *sig.Signal {
	snap := ctx.Snap

	if ctx.Position.Open {
		// exits normally come from the stop/target brackets; bail out early
		// if the trend that justified the entry is gone
		if snap.EMAMid.Ready && snap.Close < snap.EMAMid.V {
			return &sig.Signal{
				Symbol:   ctx.Bar.Symbol,
				Strategy: w.Name(),
				Dir:      sig.Flat,
				Reason:   "trend break below mid EMA",
				Ts:       ctx.Bar.Ts,
			}
		}
		return nil
	}

	if !ctx.SessionOK {
		return nil
	}
	if ctx.BarCount < w.p.MinBars {
		return nil
	}
	close := snap.Close
	if close < w.p.MinPrice || close > w.p.MaxPrice {
		return nil
	}

	minRelVol, minGapPct, riskFactor := w.thresholds(ctx.Bar.Symbol)
	if !snap.RelVol.Ready || snap.RelVol.V < minRelVol {
		return nil
	}
	if !snap.GapPct.Ready || snap.GapPct.V < minGapPct {
		return nil
	}
	if !snap.EMAFast.Ready || !snap.EMAMid.Ready || !snap.EMASlow.Ready {
		return nil
	}
	// strict stack with price on top
	if !(close > snap.EMAFast.V && snap.EMAFast.V > snap.EMAMid.V && snap.EMAMid.V > snap.EMASlow.V) {
		return nil
	}
	if !snap.ATR.Ready || snap.ATR.V <= 0 {
		return nil
	}
	if snap.ATR.V/close < w.p.MinATRFraction {
		return nil
	}

	stop := close - w.p.ATRStopMult*snap.ATR.V
	if snap.SwingLow.Ready && snap.SwingLow.V < stop {
		stop = snap.SwingLow.V
	}
	if stop >= close {
		return nil
	}
	risk := close - stop
	target := close + w.p.RMultiple*risk

	strength := math.Min(1, snap.RelVol.V/(2*minRelVol))
	return &sig.Signal{
		Symbol:     ctx.Bar.Symbol,
		Strategy:   w.Name(),
		Dir:        sig.Long,
		Entry:      close,
		Stop:       stop,
		Target:     target,
		Strength:   strength,
		RiskFactor: riskFactor,
		Reason:     fmt.Sprintf("gap=%.2f%% rvol=%.2f", snap.GapPct.V, snap.RelVol.V),
		Ts:         ctx.Bar.Ts,
	}
}

func (w *WarriorMomentum) thresholds(symbol string) (relVol, gapPct, riskFactor float64) {
	relVol, gapPct, riskFactor = w.p.MinRelVol, w.p.MinGapPct, 1.0
	profile, ok := w.p.Profiles[symbol]
	if !ok {
		return relVol, gapPct, riskFactor
	}
	if profile.MinRelVol > 0 {
		relVol = profile.MinRelVol
	}
	if profile.MinGapPct > 0 {
		gapPct = profile.MinGapPct
	}
	if profile.RiskFactor > 0 {
		riskFactor = profile.RiskFactor
	}
	return relVol, gapPct, riskFactor
}
