package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"tradebot-go/internal/config"
	"tradebot-go/internal/engine"
	"tradebot-go/internal/execution"
	"tradebot-go/internal/indicator"
	"tradebot-go/internal/ledger"
	"tradebot-go/internal/market"
	"tradebot-go/internal/metrics"
	"tradebot-go/internal/repository"
	"tradebot-go/internal/risk"
	"tradebot-go/internal/strategy"
	"tradebot-go/internal/util"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()

	log := util.NewLogger("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	window, err := cfg.SessionWindow()
	if err != nil {
		log.Fatal().Err(err).Msg("session window")
	}

	account := engine.NewAccount(decimal.NewFromFloat(cfg.Paper.StartingEquity))
	book := ledger.NewLedger(0)
	mgr := risk.NewManager(cfg.Risk.Manager, account.Equity())
	recorders := ledger.Tee{book, account, engine.NewRiskRecorder(mgr, account)}
	if cfg.Paper.EventsPath != "" {
		events, err := ledger.NewJSONLRecorder(cfg.Paper.EventsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open events file")
		}
		defer events.Close()
		recorders = append(recorders, events)
	}

	sizer := risk.NewSizer(cfg.Risk.Sizer)
	retry := cfg.RetryPolicy()

	pipelines := make(map[string]*engine.Pipeline, len(cfg.Feed.Symbols))
	for _, symbol := range cfg.Feed.Symbols {
		strat, err := strategy.Build(cfg.Strategy.Mode, cfg.StrategyParams())
		if err != nil {
			log.Fatal().Err(err).Msg("build strategy")
		}
		adapter := execution.NewPaperAdapter(cfg.Paper.SlippageBps, cfg.Paper.FeeBps, cfg.Paper.PartialFills)
		machine := execution.NewMachine(symbol, strat.Name(), adapter, recorders, retry, cfg.Cooldown(), log)
		ind := indicator.NewEngine(symbol, cfg.IndicatorParams(), window)
		pipelines[symbol] = engine.NewPipeline(symbol, ind, strat, machine, adapter, sizer, mgr, account, window, log)
	}

	var source engine.Source = market.NewFeed(cfg.Feed.Provider, cfg.Feed.Symbols, log,
		market.WithInterval(cfg.Feed.Interval))

	if cfg.Database.Enabled {
		store, err := repository.NewStore(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect bar store")
		}
		defer store.Close()
		source = &recordingSource{inner: source, store: store, log: log}
		log.Info().Msg("bar persistence enabled")
	}

	eng := engine.NewEngine(source, pipelines, log)
	log.Info().Str("strategy", cfg.Strategy.Mode).Strs("symbols", cfg.Feed.Symbols).Msg("paper engine started")

	if err := eng.Run(ctx); err != nil {
		log.Error().Err(err).Msg("engine stopped")
	}

	_, trades := book.Counts()
	log.Info().
		Int("trades", trades).
		Stringer("realized_pnl", book.RealizedPnL()).
		Stringer("equity", account.Equity()).
		Msg("shutdown complete")
}
