package indicator

import (
	"time"

	"tradebot-go/internal/market"
	"tradebot-go/internal/session"
)

// Params sets the warm-up and window lengths. Values are configuration
// defaults, not business constants.
type Params struct {
	EMAFast      int     `yaml:"ema_fast"`
	EMAMid       int     `yaml:"ema_mid"`
	EMASlow      int     `yaml:"ema_slow"`
	RSIPeriod    int     `yaml:"rsi_period"`
	BBPeriod     int     `yaml:"bb_period"`
	BBStdevs     float64 `yaml:"bb_stdevs"`
	ATRPeriod    int     `yaml:"atr_period"`
	RVOLLookback int     `yaml:"rvol_lookback"`
	VolLookback  int     `yaml:"vol_lookback"`  // returns-stdev window for adaptive grid spacing
	SwingBars    int     `yaml:"swing_bars"`    // swing high/low window for stop placement
}

// DefaultParams mirror the conventional periods strategies threshold on.
func DefaultParams() Params {
	return Params{
		EMAFast:      9,
		EMAMid:       20,
		EMASlow:      50,
		RSIPeriod:    14,
		BBPeriod:     20,
		BBStdevs:     2.0,
		ATRPeriod:    14,
		RVOLLookback: 20,
		VolLookback:  20,
		SwingBars:    5,
	}
}

// Snapshot is the full indicator state for one symbol after one bar.
type Snapshot struct {
	Symbol    string
	Ts        time.Time
	Close     float64
	PrevClose float64

	EMAFast Value
	EMAMid  Value
	EMASlow Value
	RSI     Value
	Bands   Bands
	VWAP    Value
	ATR     Value
	RelVol  Value
	// GapPct is the percent gap between this bar's open and the prior close.
	GapPct Value
	// VolStdev is the rolling stdev of close-to-close returns.
	VolStdev  Value
	SwingLow  Value
	SwingHigh Value
}

// Engine owns the rolling indicator state for a single symbol. It is not safe
// for concurrent use: bars for one symbol must be applied by a single worker
// in timestamp order.
type Engine struct {
	symbol string
	window *session.Window // optional; anchors the VWAP reset

	emaFast *ema
	emaMid  *ema
	emaSlow *ema
	rsi     *rsi
	bb      *bollinger
	atr     *atr
	vwap    vwap
	rvol    *relVolume
	volStd  *returnsStdev
	lows    *rolling
	highs   *rolling

	prevClose float64
	prevTs    time.Time
	count     int
}

// NewEngine builds the per-symbol indicator set. window may be nil, in which
// case VWAP anchors at UTC day boundaries.
func NewEngine(symbol string, p Params, window *session.Window) *Engine {
	return &Engine{
		symbol:  symbol,
		window:  window,
		emaFast: newEMA(p.EMAFast),
		emaMid:  newEMA(p.EMAMid),
		emaSlow: newEMA(p.EMASlow),
		rsi:     newRSI(p.RSIPeriod),
		bb:      newBollinger(p.BBPeriod, p.BBStdevs),
		atr:     newATR(p.ATRPeriod),
		rvol:    newRelVolume(p.RVOLLookback),
		volStd:  newReturnsStdev(p.VolLookback),
		lows:    newRolling(p.SwingBars),
		highs:   newRolling(p.SwingBars),
	}
}

// Update folds one bar into the state and returns the resulting snapshot.
func (e *Engine) Update(bar market.Bar) Snapshot {
	if e.sessionBoundary(bar.Ts) {
		e.vwap.reset()
	}

	gap := Value{}
	if e.count > 0 && e.prevClose > 0 {
		gap = Value{V: (bar.Open - e.prevClose) / e.prevClose * 100, Ready: true}
	}
	prevClose := e.prevClose

	e.emaFast.update(bar.Close)
	e.emaMid.update(bar.Close)
	e.emaSlow.update(bar.Close)
	e.rsi.update(bar.Close)
	e.bb.update(bar.Close)
	e.atr.update(bar.High, bar.Low, bar.Close)
	e.vwap.update(bar.TypicalPrice(), bar.Volume)
	e.rvol.update(bar.Volume)
	e.volStd.update(bar.Close)
	e.lows.push(bar.Low)
	e.highs.push(bar.High)

	e.prevClose = bar.Close
	e.prevTs = bar.Ts
	e.count++

	return Snapshot{
		Symbol:    e.symbol,
		Ts:        bar.Ts,
		Close:     bar.Close,
		PrevClose: prevClose,
		EMAFast:   e.emaFast.snapshot(),
		EMAMid:    e.emaMid.snapshot(),
		EMASlow:   e.emaSlow.snapshot(),
		RSI:       e.rsi.snapshot(),
		Bands:     e.bb.snapshot(),
		VWAP:      e.vwap.snapshot(),
		ATR:       e.atr.snapshot(),
		RelVol:    e.rvol.snapshot(),
		GapPct:    gap,
		VolStdev:  e.volStd.snapshot(),
		SwingLow:  Value{V: e.lows.min(), Ready: e.lows.full()},
		SwingHigh: Value{V: e.highs.max(), Ready: e.highs.full()},
	}
}

// Count reports the number of bars consumed, used by strategies with a
// minimum-history requirement.
func (e *Engine) Count() int { return e.count }

// sessionBoundary reports whether the VWAP anchor resets before consuming a
// bar at ts: on UTC day change, or on re-entering the configured session.
func (e *Engine) sessionBoundary(ts time.Time) bool {
	if e.count == 0 {
		return false
	}
	py, pd := e.prevTs.UTC().Year(), e.prevTs.UTC().YearDay()
	cy, cd := ts.UTC().Year(), ts.UTC().YearDay()
	if py != cy || pd != cd {
		return true
	}
	if e.window != nil {
		prevIn := e.window.Eligible(e.prevTs)
		curIn := e.window.Eligible(ts)
		return curIn && !prevIn
	}
	return false
}
