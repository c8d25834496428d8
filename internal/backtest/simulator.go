package backtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"

	"tradebot-go/internal/engine"
	"tradebot-go/internal/execution"
	"tradebot-go/internal/indicator"
	"tradebot-go/internal/ledger"
	"tradebot-go/internal/market"
	"tradebot-go/internal/risk"
	"tradebot-go/internal/session"
	"tradebot-go/internal/strategy"
)

// Config holds everything one simulation run needs.
type Config struct {
	Mode      string
	Strategy  strategy.Params
	Indicator indicator.Params
	Sizer     risk.SizerParams
	Manager   risk.ManagerParams
	Session   *session.Window

	StartingEquity decimal.Decimal
	FillModel      FillModel
	SlippageBps    float64
	JitterBps      float64
	FeeBps         float64
	LatencyBars    int
	Seed           int64
	Cooldown       time.Duration

	ShowProgress bool
}

// Simulator replays bar series through real pipelines, one SimAdapter per
// symbol. The replay is single threaded and ordered by timestamp, so two runs
// with the same config and data are bit-identical.
type Simulator struct {
	cfg       Config
	bars      []timedBar
	pipelines map[string]*engine.Pipeline
	adapters  map[string]*SimAdapter
	account   *engine.Account
	book      *ledger.Ledger
	log       zerolog.Logger
}

type timedBar struct {
	symbol string
	bar    market.Bar
}

// NewSimulator builds pipelines for every symbol in series.
func NewSimulator(cfg Config, series map[string][]market.Bar, log zerolog.Logger) (*Simulator, error) {
	if len(series) == 0 {
		return nil, errors.New("no bar series supplied")
	}
	if !cfg.StartingEquity.IsPositive() {
		cfg.StartingEquity = decimal.NewFromInt(10000)
	}

	account := engine.NewAccount(cfg.StartingEquity)
	book := ledger.NewLedger(0)
	mgr := risk.NewManager(cfg.Manager, cfg.StartingEquity)
	rec := ledger.Tee{book, account, engine.NewRiskRecorder(mgr, account)}
	sizer := risk.NewSizer(cfg.Sizer)
	retry := execution.DefaultRetryPolicy()

	pipelines := make(map[string]*engine.Pipeline, len(series))
	adapters := make(map[string]*SimAdapter, len(series))
	var merged []timedBar

	symbols := make([]string, 0, len(series))
	for s := range series {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		strat, err := strategy.Build(cfg.Mode, cfg.Strategy)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", symbol, err)
		}
		rng := rand.New(rand.NewSource(cfg.Seed + int64(len(adapters))))
		adapter := NewSimAdapter(cfg.FillModel, cfg.SlippageBps, cfg.JitterBps, cfg.FeeBps, cfg.LatencyBars, rng)
		machine := execution.NewMachine(symbol, strat.Name(), adapter, rec, retry, cfg.Cooldown, log)
		ind := indicator.NewEngine(symbol, cfg.Indicator, cfg.Session)
		pipelines[symbol] = engine.NewPipeline(symbol, ind, strat, machine, adapter, sizer, mgr, account, cfg.Session, log)
		adapters[symbol] = adapter

		for _, b := range series[symbol] {
			merged = append(merged, timedBar{symbol: symbol, bar: b})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].bar.Ts.Equal(merged[j].bar.Ts) {
			return merged[i].bar.Ts.Before(merged[j].bar.Ts)
		}
		return merged[i].symbol < merged[j].symbol
	})

	return &Simulator{
		cfg:       cfg,
		bars:      merged,
		pipelines: pipelines,
		adapters:  adapters,
		account:   account,
		book:      book,
		log:       log,
	}, nil
}

// Run replays every bar and returns the aggregated result.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if len(s.bars) == 0 {
		return nil, errors.New("no bars to replay")
	}
	var bar *progressbar.ProgressBar
	if s.cfg.ShowProgress {
		bar = initProgressBar(len(s.bars))
	}

	var curve []EquityPoint
	for _, tb := range s.bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.adapters[tb.symbol].OnBar(tb.bar)
		if err := s.pipelines[tb.symbol].OnBar(ctx, tb.bar); err != nil {
			// an invariant violation halts the symbol; the replay goes on
			s.log.Error().Err(err).Str("symbol", tb.symbol).Msg("pipeline halted during replay")
		}
		if n := len(curve); n == 0 || !curve[n-1].Ts.Equal(tb.bar.Ts) {
			curve = append(curve, EquityPoint{Ts: tb.bar.Ts, Equity: s.account.Equity()})
		} else {
			curve[n-1].Equity = s.account.Equity()
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	open := 0
	for _, p := range s.pipelines {
		if p.Open() {
			open++
		}
	}
	return buildResult(
		s.book.Trades(),
		curve,
		s.cfg.StartingEquity,
		s.bars[0].bar.Ts,
		s.bars[len(s.bars)-1].bar.Ts,
		open,
	), nil
}

// Trades exposes the run's closed trades for inspection.
func (s *Simulator) Trades() []execution.Trade { return s.book.Trades() }

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("replaying bars..."),
	)
}
