package strategy

import (
	"fmt"

	sig "tradebot-go/internal/signal"
)

// MeanRevParams configures the contrarian reversion strategy.
type MeanRevParams struct {
	RSIOversold   float64 `yaml:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	// BandDistancePct is how close (in percent of price) the close must be
	// to the outer Bollinger band to count as a touch.
	BandDistancePct float64 `yaml:"band_distance_pct"`
	ATRStopMult     float64 `yaml:"atr_stop_mult"`
	RMultiple       float64 `yaml:"r_multiple"`
	MinBars         int     `yaml:"min_bars"`
}

// MeanReversion buys oversold touches of the lower Bollinger band below VWAP
// once price starts reverting, and shorts the symmetric overbought condition.
// It needs no session gating.
type MeanReversion struct {
	p MeanRevParams
}

// NewMeanReversion applies defaults and builds the strategy.
func NewMeanReversion(p MeanRevParams) *MeanReversion {
	if p.RSIOversold <= 0 {
		p.RSIOversold = 30
	}
	if p.RSIOverbought <= 0 {
		p.RSIOverbought = 70
	}
	if p.BandDistancePct <= 0 {
		p.BandDistancePct = 0.25
	}
	if p.ATRStopMult <= 0 {
		p.ATRStopMult = 1.5
	}
	if p.RMultiple <= 0 {
		p.RMultiple = 1.5
	}
	if p.MinBars <= 0 {
		p.MinBars = 30
	}
	return &MeanReversion{p: p}
}

// Name returns the configured identifier for logging.
func (m *MeanReversion) Name() string { return ModeMeanRev }

// Evaluate checks for reversion entries, or for the exit once price has
// reverted back to the mean.
func (m *MeanReversion) Evaluate(ctx Context) *sig.Signal {
	snap := ctx.Snap

	if ctx.Position.Open {
		return m.evaluateExit(ctx)
	}
	if ctx.BarCount < m.p.MinBars {
		return nil
	}
	if !snap.RSI.Ready || !snap.Bands.Ready || !snap.VWAP.Ready || !snap.ATR.Ready {
		return nil
	}

	close := snap.Close
	reverting := snap.PrevClose > 0

	// long: oversold at the lower band, below VWAP, turning up
	if snap.RSI.V < m.p.RSIOversold &&
		withinBand(close, snap.Bands.Lower, m.p.BandDistancePct) &&
		close < snap.VWAP.V &&
		reverting && close > snap.PrevClose {
		stop := close - m.p.ATRStopMult*snap.ATR.V
		if stop >= close {
			return nil
		}
		risk := close - stop
		return &sig.Signal{
			Symbol:   ctx.Bar.Symbol,
			Strategy: m.Name(),
			Dir:      sig.Long,
			Entry:    close,
			Stop:     stop,
			Target:   close + m.p.RMultiple*risk,
			Strength: strengthFromRSI(m.p.RSIOversold - snap.RSI.V),
			Reason:   fmt.Sprintf("rsi=%.1f below lower band, under vwap", snap.RSI.V),
			Ts:       ctx.Bar.Ts,
		}
	}

	// short: overbought at the upper band, above VWAP, turning down
	if snap.RSI.V > m.p.RSIOverbought &&
		withinBand(close, snap.Bands.Upper, m.p.BandDistancePct) &&
		close > snap.VWAP.V &&
		reverting && close < snap.PrevClose {
		stop := close + m.p.ATRStopMult*snap.ATR.V
		if stop <= close {
			return nil
		}
		risk := stop - close
		return &sig.Signal{
			Symbol:   ctx.Bar.Symbol,
			Strategy: m.Name(),
			Dir:      sig.Short,
			Entry:    close,
			Stop:     stop,
			Target:   close - m.p.RMultiple*risk,
			Strength: strengthFromRSI(snap.RSI.V - m.p.RSIOverbought),
			Reason:   fmt.Sprintf("rsi=%.1f above upper band, over vwap", snap.RSI.V),
			Ts:       ctx.Bar.Ts,
		}
	}
	return nil
}

// evaluateExit closes the position once price has reverted to the mean
// (middle band or VWAP, whichever it reaches first).
func (m *MeanReversion) evaluateExit(ctx Context) *sig.Signal {
	snap := ctx.Snap
	if !snap.Bands.Ready && !snap.VWAP.Ready {
		return nil
	}
	mean := snap.Bands.Mid
	if !snap.Bands.Ready {
		mean = snap.VWAP.V
	}

	reverted := false
	switch ctx.Position.Dir {
	case sig.Long:
		reverted = snap.Close >= mean || (snap.VWAP.Ready && snap.Close >= snap.VWAP.V)
	case sig.Short:
		reverted = snap.Close <= mean || (snap.VWAP.Ready && snap.Close <= snap.VWAP.V)
	}
	if !reverted {
		return nil
	}
	return &sig.Signal{
		Symbol:   ctx.Bar.Symbol,
		Strategy: m.Name(),
		Dir:      sig.Flat,
		Reason:   "reverted to mean",
		Ts:       ctx.Bar.Ts,
	}
}

// withinBand reports whether price is within distPct percent of the band.
func withinBand(price, band, distPct float64) bool {
	if price <= 0 {
		return false
	}
	diff := price - band
	if diff < 0 {
		diff = -diff
	}
	return diff/price*100 <= distPct
}

func strengthFromRSI(excess float64) float64 {
	// 10 RSI points past the threshold saturates confidence
	s := 0.5 + excess/20
	if s > 1 {
		s = 1
	}
	if s < 0.5 {
		s = 0.5
	}
	return s
}
