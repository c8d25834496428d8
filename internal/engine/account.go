// Package engine wires feed, indicators, strategies, risk, and execution into
// per-symbol pipelines.
package engine

import (
	"sync"

	"github.com/shopspring/decimal"

	"tradebot-go/internal/execution"
)

// Account tracks equity as closed trades realize PnL. It never goes through
// floats: money stays decimal end to end.
type Account struct {
	mu       sync.RWMutex
	starting decimal.Decimal
	equity   decimal.Decimal
	realized decimal.Decimal
}

// NewAccount seeds the account with starting equity.
func NewAccount(starting decimal.Decimal) *Account {
	return &Account{starting: starting, equity: starting}
}

// RecordFill satisfies execution.Recorder; cash moves only on closed trades.
func (a *Account) RecordFill(execution.Fill) {}

// RecordTrade folds a closed trade's net PnL into equity.
func (a *Account) RecordTrade(t execution.Trade) {
	a.mu.Lock()
	a.realized = a.realized.Add(t.PnL)
	a.equity = a.equity.Add(t.PnL)
	a.mu.Unlock()
}

// Equity returns current account equity.
func (a *Account) Equity() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.equity
}

// StartingEquity returns the initial bankroll used for drawdown math.
func (a *Account) StartingEquity() decimal.Decimal { return a.starting }

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.realized
}
