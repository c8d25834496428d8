package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradebot-go/internal/backtest"
	"tradebot-go/internal/config"
	"tradebot-go/internal/market"
	"tradebot-go/internal/repository"
	"tradebot-go/internal/util"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	dataDir := flag.String("data", "", "CSV bar directory (overrides backtest.data_dir)")
	useDB := flag.Bool("db", false, "load bars from the configured database instead of CSV")
	fromStr := flag.String("from", "", "history start (RFC3339), database loads only")
	toStr := flag.String("to", "", "history end (RFC3339), database loads only")
	flag.Parse()

	log := util.NewLogger("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	series, err := loadSeries(ctx, cfg, *dataDir, *useDB, *fromStr, *toStr, log)
	if err != nil {
		log.Fatal().Err(err).Msg("load bars")
	}

	window, err := cfg.SessionWindow()
	if err != nil {
		log.Fatal().Err(err).Msg("session window")
	}

	simCfg := backtest.Config{
		Mode:           cfg.Strategy.Mode,
		Strategy:       cfg.StrategyParams(),
		Indicator:      cfg.IndicatorParams(),
		Sizer:          cfg.Risk.Sizer,
		Manager:        cfg.Risk.Manager,
		Session:        window,
		StartingEquity: decimal.NewFromFloat(cfg.Paper.StartingEquity),
		FillModel:      backtest.FillModel(cfg.Backtest.FillModel),
		SlippageBps:    cfg.Backtest.SlippageBps,
		JitterBps:      cfg.Backtest.JitterBps,
		FeeBps:         cfg.Backtest.FeeBps,
		LatencyBars:    cfg.Backtest.LatencyBars,
		Seed:           cfg.Backtest.Seed,
		Cooldown:       cfg.Cooldown(),
		ShowProgress:   cfg.Backtest.ShowProgress,
	}

	sim, err := backtest.NewSimulator(simCfg, series, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build simulator")
	}

	started := time.Now()
	result, err := sim.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("run backtest")
	}
	log.Info().Dur("elapsed", time.Since(started)).Msg("replay finished")

	fmt.Println()
	fmt.Print(result.String())
}

func loadSeries(ctx context.Context, cfg *config.Config, dataDir string, useDB bool,
	fromStr, toStr string, log zerolog.Logger) (map[string][]market.Bar, error) {

	if useDB {
		return loadFromDB(ctx, cfg, fromStr, toStr, log)
	}

	dir := dataDir
	if dir == "" {
		dir = cfg.Backtest.DataDir
	}
	if dir == "" {
		return nil, fmt.Errorf("no data source: set -data, backtest.data_dir, or -db")
	}

	src := market.NewCSVSource(dir)
	symbols := cfg.Feed.Symbols
	if len(symbols) == 0 {
		var err error
		if symbols, err = src.Symbols(); err != nil {
			return nil, err
		}
	}
	series := make(map[string][]market.Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := src.Bars(symbol)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", symbol, err)
		}
		series[symbol] = bars
		log.Info().Str("symbol", symbol).Int("bars", len(bars)).Msg("loaded csv history")
	}
	return series, nil
}

func loadFromDB(ctx context.Context, cfg *config.Config, fromStr, toStr string, log zerolog.Logger) (map[string][]market.Bar, error) {
	if !cfg.Database.Enabled {
		return nil, fmt.Errorf("-db requires database.enabled in config")
	}
	from, to, err := parseRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}

	store, err := repository.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	symbols := cfg.Feed.Symbols
	if len(symbols) == 0 {
		if symbols, err = store.Symbols(ctx); err != nil {
			return nil, err
		}
	}
	series := make(map[string][]market.Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := store.GetBars(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		series[symbol] = bars
		log.Info().Str("symbol", symbol).Int("bars", len(bars)).Msg("loaded db history")
	}
	return series, nil
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC()
	var err error
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return from, to, fmt.Errorf("parse -from: %w", err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return from, to, fmt.Errorf("parse -to: %w", err)
		}
	}
	if !to.After(from) {
		return from, to, fmt.Errorf("-to must be after -from")
	}
	return from, to, nil
}
