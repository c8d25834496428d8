// Package ledger is the append-only record of everything the bot executed.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"tradebot-go/internal/execution"
)

// Ledger stores fills and closed trades in memory. Writes come from the
// per-symbol execution goroutines, reads from anywhere; entries are never
// mutated after append.
type Ledger struct {
	mu     sync.RWMutex
	fills  []execution.Fill
	trades []execution.Trade
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{
		fills:  make([]execution.Fill, 0, capacity),
		trades: make([]execution.Trade, 0, capacity),
	}
}

// RecordFill appends a fill.
func (l *Ledger) RecordFill(fill execution.Fill) {
	l.mu.Lock()
	l.fills = append(l.fills, fill)
	l.mu.Unlock()
}

// RecordTrade appends a closed trade.
func (l *Ledger) RecordTrade(trade execution.Trade) {
	l.mu.Lock()
	l.trades = append(l.trades, trade)
	l.mu.Unlock()
}

// Fills returns a copy of the recorded fills in append order.
func (l *Ledger) Fills() []execution.Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]execution.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Trades returns a copy of the closed trades in append order.
func (l *Ledger) Trades() []execution.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]execution.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// TradesFor returns the closed trades for one symbol.
func (l *Ledger) TradesFor(symbol string) []execution.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []execution.Trade
	for _, t := range l.trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}

// RealizedPnL sums closed-trade profit and loss net of fees.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, t := range l.trades {
		total = total.Add(t.PnL)
	}
	return total
}

// Counts reports how many fills and trades are stored.
func (l *Ledger) Counts() (fills, trades int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fills), len(l.trades)
}

// Reset clears all stored entries.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.fills = l.fills[:0]
	l.trades = l.trades[:0]
	l.mu.Unlock()
}

// Tee fans every record out to multiple recorders in order.
type Tee []execution.Recorder

// RecordFill forwards the fill to every recorder.
func (t Tee) RecordFill(f execution.Fill) {
	for _, r := range t {
		r.RecordFill(f)
	}
}

// RecordTrade forwards the trade to every recorder.
func (t Tee) RecordTrade(tr execution.Trade) {
	for _, r := range t {
		r.RecordTrade(tr)
	}
}
