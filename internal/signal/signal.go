// Package signal standardizes the payloads shared between the strategy and
// risk layers.
package signal

import "time"

// Direction is the trading bias carried by a signal.
type Direction int

const (
	// Flat asks to close the open position for the symbol/strategy pair.
	Flat Direction = iota
	// Long opens or holds a long position.
	Long
	// Short opens or holds a short position.
	Short
)

// String implements fmt.Stringer for log output.
func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Signal is a position-changing decision produced by exactly one strategy
// evaluation. It is immutable and consumed once by the position sizer (entry
// directions) or the execution machine (Flat exits).
type Signal struct {
	Symbol   string
	Strategy string
	Dir      Direction
	Entry    float64 // suggested entry price
	Stop     float64
	Target   float64
	Strength float64 // confidence scalar in (0, 1]
	Reason   string
	Ts       time.Time

	// RiskFactor scales the per-trade risk budget for tiered symbols.
	// Zero means "use the full budget".
	RiskFactor float64
}

// Exit reports whether the signal closes an open position rather than
// requesting a new one.
func (s *Signal) Exit() bool { return s.Dir == Flat }
