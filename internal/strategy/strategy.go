// Package strategy contains the signal generation logic evaluated per bar.
package strategy

import (
	"fmt"
	"strings"

	"tradebot-go/internal/indicator"
	"tradebot-go/internal/market"
	sig "tradebot-go/internal/signal"
)

// PositionView is the read-only position state a strategy sees for its own
// symbol. The execution machine owns the authoritative record.
type PositionView struct {
	Open  bool
	Dir   sig.Direction
	Entry float64
}

// Context is everything one evaluation may look at. Evaluations must be pure
// with respect to the clock: the bar timestamp is the only notion of "now".
type Context struct {
	Bar       market.Bar
	Snap      indicator.Snapshot
	SessionOK bool
	BarCount  int
	Position  PositionView
}

// Strategy turns indicator snapshots into trade signals. Implementations keep
// per-symbol state and are driven by a single goroutine per symbol; they must
// never emit an entry while their position is open.
type Strategy interface {
	Evaluate(ctx Context) *sig.Signal
	Name() string
}

// Params bundles the tunable knobs for every strategy variant.
type Params struct {
	Warrior  WarriorParams
	MeanRev  MeanRevParams
	Grid     GridParams
	Adaptive AdaptiveGridParams
}

// Strategy mode identifiers accepted by Build.
const (
	ModeWarrior      = "warrior_momentum"
	ModeMeanRev      = "mean_reversion"
	ModeGrid         = "grid"
	ModeAdaptiveGrid = "adaptive_grid"
)

// Build returns the strategy implementation matching the configured mode.
func Build(mode string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeWarrior, "warrior":
		return NewWarriorMomentum(params.Warrior), nil
	case ModeMeanRev, "meanrev", "mean_rev":
		return NewMeanReversion(params.MeanRev), nil
	case ModeGrid, "grid_trading":
		return NewGrid(params.Grid), nil
	case ModeAdaptiveGrid, "adaptive":
		return NewAdaptiveGrid(params.Adaptive), nil
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", mode)
	}
}
