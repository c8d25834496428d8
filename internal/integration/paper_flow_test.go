package integration

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradebot-go/internal/config"
	"tradebot-go/internal/engine"
	"tradebot-go/internal/execution"
	"tradebot-go/internal/indicator"
	"tradebot-go/internal/ledger"
	"tradebot-go/internal/market"
	"tradebot-go/internal/risk"
	"tradebot-go/internal/strategy"
)

type replaySource struct {
	bars []market.Bar
}

func (s *replaySource) Run(ctx context.Context, out chan<- market.Bar) error {
	for _, b := range s.bars {
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// TestPaperFlowRoundTrip drives the full stack from config to recorded trade:
// config load, strategy build, pipeline, paper fills, ledger, JSONL events.
func TestPaperFlowRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	strat, err := strategy.Build(cfg.Strategy.Mode, cfg.StrategyParams())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	eventsPath := filepath.Join(t.TempDir(), "events.jsonl")
	events, err := ledger.NewJSONLRecorder(eventsPath)
	if err != nil {
		t.Fatalf("NewJSONLRecorder returned error: %v", err)
	}

	account := engine.NewAccount(decimal.NewFromFloat(cfg.Paper.StartingEquity))
	book := ledger.NewLedger(0)
	mgr := risk.NewManager(cfg.Risk.Manager, account.Equity())
	rec := ledger.Tee{book, account, events, engine.NewRiskRecorder(mgr, account)}

	symbol := cfg.Feed.Symbols[0]
	adapter := execution.NewPaperAdapter(cfg.Paper.SlippageBps, cfg.Paper.FeeBps, cfg.Paper.PartialFills)
	machine := execution.NewMachine(symbol, strat.Name(), adapter, rec, cfg.RetryPolicy(), cfg.Cooldown(), logger)
	sizer := risk.NewSizer(cfg.Risk.Sizer)
	ind := indicator.NewEngine(symbol, cfg.IndicatorParams(), nil)
	pipeline := engine.NewPipeline(symbol, ind, strat, machine, adapter, sizer, mgr, account, nil, logger)

	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	closes := []float64{100, 99.5, 100, 100.5, 100.5, 100.5}
	var bars []market.Bar
	for i, c := range closes {
		bars = append(bars, market.Bar{
			Symbol: symbol,
			Ts:     start.Add(time.Duration(i) * time.Minute),
			Open:   c, High: c, Low: c, Close: c, Volume: 10,
		})
	}

	eng := engine.NewEngine(&replaySource{bars: bars}, map[string]*engine.Pipeline{symbol: pipeline}, logger)
	if err := eng.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if err := events.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	trades := book.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected one completed trade, got %d", len(trades))
	}
	if !trades[0].PnL.IsPositive() {
		t.Fatalf("expected a winning grid round trip, got %s", trades[0].PnL)
	}
	if !account.Equity().GreaterThan(account.StartingEquity()) {
		t.Fatalf("expected equity growth, got %s", account.Equity())
	}
	if mgr.OpenPositions() != 0 {
		t.Fatalf("expected no open positions, got %d", mgr.OpenPositions())
	}

	if !strings.Contains(buf.String(), "order submitted") {
		t.Fatalf("expected log output to include order submitted, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), "trade closed") {
		t.Fatalf("expected log output to include trade closed, got %s", buf.String())
	}

	file, err := os.Open(eventsPath)
	if err != nil {
		t.Fatalf("open events file: %v", err)
	}
	defer file.Close()
	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines++
	}
	// two fills and one trade
	if lines != 3 {
		t.Fatalf("expected 3 event lines, got %d", lines)
	}
}
