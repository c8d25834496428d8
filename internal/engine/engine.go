package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"tradebot-go/internal/execution"
	"tradebot-go/internal/market"
	"tradebot-go/internal/risk"
)

// Source streams bars into the engine until the context ends.
type Source interface {
	Run(ctx context.Context, out chan<- market.Bar) error
}

// Engine fans bars out to one worker goroutine per symbol, so each pipeline
// sees its bars in order with no shared mutable state. A halted pipeline
// stops consuming its bars; the other symbols keep trading.
type Engine struct {
	source    Source
	pipelines map[string]*Pipeline
	log       zerolog.Logger
}

// NewEngine builds the dispatcher over the supplied per-symbol pipelines.
func NewEngine(source Source, pipelines map[string]*Pipeline, log zerolog.Logger) *Engine {
	return &Engine{source: source, pipelines: pipelines, log: log}
}

// Run drives the engine until the context is cancelled or the source stops.
func (e *Engine) Run(ctx context.Context) error {
	bars := make(chan market.Bar, 1024)

	var wg sync.WaitGroup
	chans := make(map[string]chan market.Bar, len(e.pipelines))
	for symbol, p := range e.pipelines {
		ch := make(chan market.Bar, 256)
		chans[symbol] = ch
		wg.Add(1)
		go func(p *Pipeline, ch <-chan market.Bar) {
			defer wg.Done()
			e.runWorker(ctx, p, ch)
		}(p, ch)
	}

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- e.source.Run(ctx, bars)
		close(bars)
	}()

	for bar := range bars {
		ch, ok := chans[bar.Symbol]
		if !ok {
			continue
		}
		select {
		case ch <- bar:
		case <-ctx.Done():
		}
	}

	for _, ch := range chans {
		close(ch)
	}
	wg.Wait()

	err := <-feedErr
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (e *Engine) runWorker(ctx context.Context, p *Pipeline, ch <-chan market.Bar) {
	for bar := range ch {
		if p.Halted() {
			continue
		}
		if err := p.OnBar(ctx, bar); err != nil {
			e.log.Error().Err(err).Str("symbol", p.symbol).Msg("pipeline halted")
		}
	}
	if err := p.machine.Cancel(context.Background()); err != nil {
		e.log.Warn().Err(err).Str("symbol", p.symbol).Msg("cancel on shutdown failed")
	}
}

// riskRecorder feeds closed trades back into the risk manager and keeps the
// next day's loss base aligned with account equity. It must sit after the
// Account in a recorder tee.
type riskRecorder struct {
	mgr     *risk.Manager
	account *Account
}

// NewRiskRecorder wires trade closes into the risk manager.
func NewRiskRecorder(mgr *risk.Manager, account *Account) execution.Recorder {
	return &riskRecorder{mgr: mgr, account: account}
}

func (r *riskRecorder) RecordFill(execution.Fill) {}

func (r *riskRecorder) RecordTrade(t execution.Trade) {
	r.mgr.OnClose(t.PnL, t.ClosedAt)
	r.mgr.SetEquity(r.account.Equity())
}
