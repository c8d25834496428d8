// Package indicator computes streaming technical indicators from bars.
//
// Every indicator keeps bounded per-symbol state and updates in O(1) amortized
// time; nothing is recomputed from scratch per bar. Output at time t depends
// only on bars at times <= t. Until an indicator has seen its warm-up bars it
// reports not-ready instead of a degenerate numeric value.
package indicator

import "math"

// Value pairs an indicator reading with its warm-up flag.
type Value struct {
	V     float64
	Ready bool
}

// ema is the standard exponential moving average seeded with the first close.
type ema struct {
	period int
	alpha  float64
	value  float64
	count  int
}

func newEMA(period int) *ema {
	return &ema{period: period, alpha: 2.0 / (float64(period) + 1)}
}

func (e *ema) update(price float64) {
	if e.count == 0 {
		e.value = price
	} else {
		e.value = e.alpha*price + (1-e.alpha)*e.value
	}
	e.count++
}

func (e *ema) snapshot() Value {
	return Value{V: e.value, Ready: e.count >= e.period}
}

// rsi implements Wilder's RSI: simple averages over the first period deltas,
// Wilder smoothing afterwards.
type rsi struct {
	period    int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	count     int // number of deltas consumed
	seeded    bool
}

func newRSI(period int) *rsi {
	return &rsi{period: period}
}

func (r *rsi) update(price float64) {
	if !r.seeded {
		r.prevClose = price
		r.seeded = true
		return
	}
	delta := price - r.prevClose
	r.prevClose = price
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.count++
	switch {
	case r.count < r.period:
		r.avgGain += gain
		r.avgLoss += loss
	case r.count == r.period:
		r.avgGain = (r.avgGain + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss + loss) / float64(r.period)
	default:
		n := float64(r.period)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}
}

func (r *rsi) snapshot() Value {
	if r.count < r.period {
		return Value{}
	}
	if r.avgLoss == 0 {
		return Value{V: 100, Ready: true}
	}
	rs := r.avgGain / r.avgLoss
	return Value{V: 100 - 100/(1+rs), Ready: true}
}

// Bands carries one Bollinger Band reading.
type Bands struct {
	Mid   float64
	Upper float64
	Lower float64
	Ready bool
}

// bollinger uses an SMA midline with population standard deviation bands.
type bollinger struct {
	window *rolling
	stdevs float64
}

func newBollinger(period int, stdevs float64) *bollinger {
	return &bollinger{window: newRolling(period), stdevs: stdevs}
}

func (b *bollinger) update(price float64) {
	b.window.push(price)
}

func (b *bollinger) snapshot() Bands {
	if !b.window.full() {
		return Bands{}
	}
	mid := b.window.mean()
	sd := math.Sqrt(b.window.variance())
	return Bands{
		Mid:   mid,
		Upper: mid + b.stdevs*sd,
		Lower: mid - b.stdevs*sd,
		Ready: true,
	}
}

// atr implements Wilder's average true range. The first value is a simple
// mean of the first period true ranges.
type atr struct {
	period    int
	prevClose float64
	value     float64
	trSum     float64
	count     int
	seeded    bool
}

func newATR(period int) *atr {
	return &atr{period: period}
}

func (a *atr) update(high, low, closePx float64) {
	if !a.seeded {
		a.prevClose = closePx
		a.seeded = true
		return
	}
	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	a.prevClose = closePx
	a.count++
	switch {
	case a.count < a.period:
		a.trSum += tr
	case a.count == a.period:
		a.value = (a.trSum + tr) / float64(a.period)
	default:
		n := float64(a.period)
		a.value = (a.value*(n-1) + tr) / n
	}
}

func (a *atr) snapshot() Value {
	return Value{V: a.value, Ready: a.count >= a.period}
}

// vwap accumulates typical price x volume, anchored at a session boundary.
type vwap struct {
	cumPV  float64
	cumVol float64
	seen   bool
}

func (v *vwap) reset() {
	v.cumPV = 0
	v.cumVol = 0
	v.seen = false
}

func (v *vwap) update(typical, volume float64) {
	v.cumPV += typical * volume
	v.cumVol += volume
	v.seen = true
}

func (v *vwap) snapshot() Value {
	if !v.seen || v.cumVol <= 0 {
		return Value{}
	}
	return Value{V: v.cumPV / v.cumVol, Ready: true}
}

// relVolume compares current volume against the mean of the prior lookback
// volumes (current bar excluded from the baseline).
type relVolume struct {
	baseline *rolling
	current  float64
	have     bool
}

func newRelVolume(lookback int) *relVolume {
	return &relVolume{baseline: newRolling(lookback)}
}

func (r *relVolume) update(volume float64) {
	if r.have {
		r.baseline.push(r.current)
	}
	r.current = volume
	r.have = true
}

func (r *relVolume) snapshot() Value {
	if !r.baseline.full() {
		return Value{}
	}
	avg := r.baseline.mean()
	if avg <= 0 {
		return Value{}
	}
	return Value{V: r.current / avg, Ready: true}
}

// returnsStdev keeps a rolling standard deviation of close-to-close returns,
// the volatility estimate used to space adaptive grids.
type returnsStdev struct {
	window    *rolling
	prevClose float64
	seeded    bool
}

func newReturnsStdev(lookback int) *returnsStdev {
	return &returnsStdev{window: newRolling(lookback)}
}

func (r *returnsStdev) update(closePx float64) {
	if r.seeded && r.prevClose > 0 {
		r.window.push((closePx - r.prevClose) / r.prevClose)
	}
	r.prevClose = closePx
	r.seeded = true
}

func (r *returnsStdev) snapshot() Value {
	if !r.window.full() {
		return Value{}
	}
	return Value{V: math.Sqrt(r.window.variance()), Ready: true}
}
