package strategy

import sig "tradebot-go/internal/signal"

// AdaptiveGridParams configures the volatility-scaled ladder.
type AdaptiveGridParams struct {
	Levels         int     `yaml:"levels"`
	BaseSpacingPct float64 `yaml:"base_spacing_pct"`
	VolMultiplier  float64 `yaml:"vol_multiplier"`
	// MinSpacingPct clamps how tight the ladder may get in quiet markets.
	MinSpacingPct float64 `yaml:"min_spacing_pct"`
	StopSpacings  float64 `yaml:"stop_spacings"`
}

// AdaptiveGrid behaves like Grid but recomputes the level spacing on every
// evaluation from the rolling stdev of returns: wider under high volatility,
// narrower (down to the clamp) under low. The ladder itself is rebuilt only
// while flat, so open positions keep their exit levels.
type AdaptiveGrid struct {
	grid    Grid
	p       AdaptiveGridParams
	spacing float64
}

// NewAdaptiveGrid applies defaults and builds the strategy.
func NewAdaptiveGrid(p AdaptiveGridParams) *AdaptiveGrid {
	if p.BaseSpacingPct <= 0 {
		p.BaseSpacingPct = 0.5
	}
	if p.VolMultiplier <= 0 {
		p.VolMultiplier = 1.5
	}
	if p.MinSpacingPct <= 0 {
		p.MinSpacingPct = p.BaseSpacingPct / 2
	}
	a := &AdaptiveGrid{p: p, spacing: p.BaseSpacingPct / 100}
	a.grid.name = ModeAdaptiveGrid
	a.grid.configure(p.Levels, p.BaseSpacingPct, p.StopSpacings)
	return a
}

// Name returns the configured identifier for logging.
func (a *AdaptiveGrid) Name() string { return a.grid.Name() }

// Evaluate recomputes the spacing from current volatility, then runs the
// ladder logic.
func (a *AdaptiveGrid) Evaluate(ctx Context) *sig.Signal {
	spacing := a.currentSpacing(ctx)

	// rebuild when the spacing drifted materially and no position pins the
	// ladder in place
	if !ctx.Position.Open && a.grid.ladder != nil && drift(spacing, a.spacing) > 0.25 {
		a.grid.rebuild(ctx.Snap.Close, spacing)
		a.spacing = spacing
		return nil
	}
	if a.grid.ladder == nil {
		a.spacing = spacing
	}
	return a.grid.evaluate(ctx, a.spacing)
}

func (a *AdaptiveGrid) currentSpacing(ctx Context) float64 {
	base := a.p.BaseSpacingPct / 100
	if !ctx.Snap.VolStdev.Ready {
		return base
	}
	spacing := ctx.Snap.VolStdev.V * a.p.VolMultiplier
	if min := a.p.MinSpacingPct / 100; spacing < min {
		spacing = min
	}
	return spacing
}

func drift(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	d := (a - b) / b
	if d < 0 {
		d = -d
	}
	return d
}
