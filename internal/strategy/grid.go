package strategy

import (
	"fmt"

	sig "tradebot-go/internal/signal"
)

// GridParams configures the static price ladder.
type GridParams struct {
	Levels     int     `yaml:"levels"`
	SpacingPct float64 `yaml:"spacing_pct"`
	// StopSpacings is how many grid spacings below the entry the protective
	// stop sits; ladder crossings are the normal exit path.
	StopSpacings float64 `yaml:"stop_spacings"`
}

// Grid keeps a ladder of price levels around a reference price: levels below
// the reference are buy levels, levels above are sell levels. A buy fires when
// price crosses down through an unheld buy level; the position exits when
// price crosses up through a sell level. Crossing detection is edge-triggered
// on consecutive closes, so re-evaluating at the same price never duplicates
// a signal.
type Grid struct {
	name    string
	levels  int
	spacing float64 // fraction, e.g. 0.005
	stopSp  float64

	ref    float64
	ladder []float64
}

// NewGrid applies defaults and builds the ladder strategy.
func NewGrid(p GridParams) *Grid {
	g := &Grid{name: ModeGrid}
	g.configure(p.Levels, p.SpacingPct, p.StopSpacings)
	return g
}

func (g *Grid) configure(levels int, spacingPct, stopSpacings float64) {
	if levels < 3 {
		levels = 5
	}
	if spacingPct <= 0 {
		spacingPct = 0.5
	}
	if stopSpacings <= 0 {
		stopSpacings = 2
	}
	g.levels = levels
	g.spacing = spacingPct / 100
	g.stopSp = stopSpacings
}

// Name returns the configured identifier for logging.
func (g *Grid) Name() string { return g.name }

// Evaluate runs the ladder against one bar close.
func (g *Grid) Evaluate(ctx Context) *sig.Signal {
	return g.evaluate(ctx, g.spacing)
}

func (g *Grid) evaluate(ctx Context, spacing float64) *sig.Signal {
	close := ctx.Snap.Close
	prev := ctx.Snap.PrevClose
	if close <= 0 {
		return nil
	}

	if g.ladder == nil {
		g.rebuild(close, spacing)
		return nil
	}

	// re-center once price escapes the ladder; only while flat so open
	// positions keep their exit levels
	if !ctx.Position.Open && g.outOfRange(close) {
		g.rebuild(close, spacing)
		return nil
	}
	if prev <= 0 {
		return nil
	}

	if ctx.Position.Open {
		// exit on an upward cross of any sell level (downward for shorts is
		// not modeled: the ladder only opens longs)
		for _, level := range g.ladder {
			if level <= g.ref {
				continue
			}
			if prev < level && close >= level {
				return &sig.Signal{
					Symbol:   ctx.Bar.Symbol,
					Strategy: g.Name(),
					Dir:      sig.Flat,
					Reason:   fmt.Sprintf("sell level %.6g crossed", level),
					Ts:       ctx.Bar.Ts,
				}
			}
		}
		return nil
	}

	// entry: downward cross of the nearest buy level crossed this bar
	var hit float64
	found := false
	for _, level := range g.ladder {
		if level >= g.ref {
			continue
		}
		if prev > level && close <= level {
			if !found || level > hit {
				hit = level
				found = true
			}
		}
	}
	if !found {
		return nil
	}

	stop := hit * (1 - g.stopSp*spacing)
	return &sig.Signal{
		Symbol:   ctx.Bar.Symbol,
		Strategy: g.Name(),
		Dir:      sig.Long,
		Entry:    hit,
		Stop:     stop,
		Target:   0, // ladder crossings drive the exit
		Strength: 1,
		Reason:   fmt.Sprintf("buy level %.6g crossed", hit),
		Ts:       ctx.Bar.Ts,
	}
}

func (g *Grid) rebuild(ref, spacing float64) {
	g.ref = ref
	g.ladder = make([]float64, g.levels)
	mid := g.levels / 2
	for i := range g.ladder {
		g.ladder[i] = ref * (1 + float64(i-mid)*spacing)
	}
}

func (g *Grid) outOfRange(price float64) bool {
	if len(g.ladder) == 0 {
		return true
	}
	return price < g.ladder[0] || price > g.ladder[len(g.ladder)-1]
}
