package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ManagerParams configures the account-level gates.
type ManagerParams struct {
	// DailyLossLimitPct halts new entries once the day's realized losses
	// reach this percent of starting equity. Zero disables the gate.
	DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct"`
	// MaxOpenPositions caps concurrently open positions across all symbols.
	MaxOpenPositions int `yaml:"max_open_positions"`
}

// Manager tracks realized daily PnL and open position count, answering
// whether a new entry may be taken right now. The loss window rolls over at
// UTC midnight.
type Manager struct {
	mu sync.Mutex

	lossLimitPct decimal.Decimal
	maxOpen      int

	day       time.Time
	dayStart  decimal.Decimal
	nextStart decimal.Decimal
	dayPnL    decimal.Decimal
	open      int
	halted    bool
}

// NewManager builds a manager seeded with the starting equity.
func NewManager(p ManagerParams, startingEquity decimal.Decimal) *Manager {
	if p.MaxOpenPositions <= 0 {
		p.MaxOpenPositions = 5
	}
	return &Manager{
		lossLimitPct: decimal.NewFromFloat(p.DailyLossLimitPct).Div(decimal.NewFromInt(100)),
		maxOpen:      p.MaxOpenPositions,
		dayStart:     startingEquity,
	}
}

// AllowEntry reports whether a new position may be opened at ts.
func (m *Manager) AllowEntry(ts time.Time) RejectReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(ts)
	if m.halted {
		return RejectDailyLossLimit
	}
	if m.open >= m.maxOpen {
		return RejectMaxPositions
	}
	return RejectNone
}

// OnOpen records a newly opened position.
func (m *Manager) OnOpen() {
	m.mu.Lock()
	m.open++
	m.mu.Unlock()
}

// OnClose records a closed trade's realized PnL at ts and re-evaluates the
// daily loss gate.
func (m *Manager) OnClose(pnl decimal.Decimal, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open > 0 {
		m.open--
	}
	m.rollover(ts)
	m.dayPnL = m.dayPnL.Add(pnl)
	if m.lossLimitPct.IsPositive() && m.dayStart.IsPositive() {
		limit := m.dayStart.Mul(m.lossLimitPct).Neg()
		if m.dayPnL.LessThanOrEqual(limit) {
			m.halted = true
		}
	}
}

// OpenPositions returns the current open position count.
func (m *Manager) OpenPositions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// DailyPnL returns the realized PnL accumulated since the last rollover.
func (m *Manager) DailyPnL() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dayPnL
}

// SetEquity updates the equity the next trading day's loss base is taken
// from. Before the first bar it also reseeds today's base.
func (m *Manager) SetEquity(equity decimal.Decimal) {
	m.mu.Lock()
	if m.day.IsZero() {
		m.dayStart = equity
	}
	m.nextStart = equity
	m.mu.Unlock()
}

func (m *Manager) rollover(ts time.Time) {
	day := ts.UTC().Truncate(24 * time.Hour)
	if m.day.IsZero() {
		m.day = day
		return
	}
	if day.After(m.day) {
		m.day = day
		if m.nextStart.IsPositive() {
			m.dayStart = m.nextStart
		}
		m.dayPnL = decimal.Zero
		m.halted = false
	}
}
