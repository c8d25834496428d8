package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebot-go/internal/execution"
)

// EquityPoint is one realized-equity sample on the curve.
type EquityPoint struct {
	Ts     time.Time
	Equity decimal.Decimal
}

// SymbolResult aggregates one symbol's closed trades.
type SymbolResult struct {
	Trades int
	Wins   int
	NetPnL decimal.Decimal
	Fees   decimal.Decimal
}

// Result is the aggregate outcome of one simulation run.
type Result struct {
	Start time.Time
	End   time.Time

	StartEquity decimal.Decimal
	EndEquity   decimal.Decimal

	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64

	NetPnL         decimal.Decimal
	TotalFees      decimal.Decimal
	MaxDrawdownPct float64

	PerSymbol map[string]SymbolResult
	Equity    []EquityPoint

	// OpenPositions counts positions still open when the data ran out.
	OpenPositions int
}

func buildResult(trades []execution.Trade, curve []EquityPoint, startEquity decimal.Decimal, start, end time.Time, open int) *Result {
	r := &Result{
		Start:         start,
		End:           end,
		StartEquity:   startEquity,
		EndEquity:     startEquity,
		PerSymbol:     make(map[string]SymbolResult),
		Equity:        curve,
		OpenPositions: open,
	}
	for _, t := range trades {
		r.TotalTrades++
		r.NetPnL = r.NetPnL.Add(t.PnL)
		r.TotalFees = r.TotalFees.Add(t.Fees)
		sym := r.PerSymbol[t.Symbol]
		sym.Trades++
		sym.NetPnL = sym.NetPnL.Add(t.PnL)
		sym.Fees = sym.Fees.Add(t.Fees)
		if t.PnL.IsPositive() {
			r.Wins++
			sym.Wins++
		} else {
			r.Losses++
		}
		r.PerSymbol[t.Symbol] = sym
	}
	r.EndEquity = startEquity.Add(r.NetPnL)
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.TotalTrades)
	}
	r.MaxDrawdownPct = maxDrawdownPct(curve)
	return r
}

// maxDrawdownPct walks the equity curve and returns the deepest peak-to-trough
// drop as a percent of the peak.
func maxDrawdownPct(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	worst := 0.0
	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd, _ := peak.Sub(p.Equity).Div(peak).Float64()
		if dd > worst {
			worst = dd
		}
	}
	return worst * 100
}

// String renders the run report for the terminal.
func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "===== Backtest Report =====\n")
	fmt.Fprintf(&b, "Period:           %s .. %s\n", r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Starting Equity:  %s\n", r.StartEquity)
	fmt.Fprintf(&b, "Ending Equity:    %s\n", r.EndEquity)
	fmt.Fprintf(&b, "Net PnL:          %s\n", r.NetPnL)
	fmt.Fprintf(&b, "Total Fees:       %s\n", r.TotalFees)
	fmt.Fprintf(&b, "Trades:           %d (%d wins / %d losses)\n", r.TotalTrades, r.Wins, r.Losses)
	fmt.Fprintf(&b, "Win Rate:         %.1f%%\n", r.WinRate*100)
	fmt.Fprintf(&b, "Max Drawdown:     %.2f%%\n", r.MaxDrawdownPct)
	if r.OpenPositions > 0 {
		fmt.Fprintf(&b, "Still Open:       %d\n", r.OpenPositions)
	}

	symbols := make([]string, 0, len(r.PerSymbol))
	for s := range r.PerSymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	if len(symbols) > 0 {
		fmt.Fprintf(&b, "\n-- Per Symbol --\n")
		for _, s := range symbols {
			sym := r.PerSymbol[s]
			fmt.Fprintf(&b, "%-12s trades=%-4d wins=%-4d pnl=%s\n", s, sym.Trades, sym.Wins, sym.NetPnL)
		}
	}
	return b.String()
}
