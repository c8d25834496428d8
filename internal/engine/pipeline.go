package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradebot-go/internal/execution"
	"tradebot-go/internal/indicator"
	"tradebot-go/internal/market"
	"tradebot-go/internal/metrics"
	"tradebot-go/internal/risk"
	"tradebot-go/internal/session"
	sig "tradebot-go/internal/signal"
	"tradebot-go/internal/strategy"
)

// Pipeline processes one symbol's bars in order: indicators, fill routing,
// bracket checks, strategy evaluation, sizing, and order submission. It is
// driven by a single goroutine and holds no locks of its own.
type Pipeline struct {
	symbol  string
	ind     *indicator.Engine
	strat   strategy.Strategy
	machine *execution.Machine
	adapter execution.Adapter
	sizer   *risk.Sizer
	riskMgr *risk.Manager
	account *Account
	window  *session.Window

	lastTs  time.Time
	wasOpen bool
	log     zerolog.Logger
}

// NewPipeline assembles the per-symbol processing chain. window may be nil
// for strategies that trade around the clock.
func NewPipeline(symbol string, ind *indicator.Engine, strat strategy.Strategy,
	machine *execution.Machine, adapter execution.Adapter, sizer *risk.Sizer,
	riskMgr *risk.Manager, account *Account, window *session.Window, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		symbol:  symbol,
		ind:     ind,
		strat:   strat,
		machine: machine,
		adapter: adapter,
		sizer:   sizer,
		riskMgr: riskMgr,
		account: account,
		window:  window,
		log:     log.With().Str("symbol", symbol).Str("strategy", strat.Name()).Logger(),
	}
}

// OnBar runs one full cycle for the bar. Out-of-order bars are skipped. An
// InvariantError from the machine halts this pipeline only.
func (p *Pipeline) OnBar(ctx context.Context, bar market.Bar) error {
	if !bar.Ts.After(p.lastTs) {
		p.log.Warn().Time("bar_ts", bar.Ts).Time("last_ts", p.lastTs).Msg("out of order bar skipped")
		return nil
	}
	p.lastTs = bar.Ts
	metrics.BarsTotal.WithLabelValues(p.symbol).Inc()

	snap := p.ind.Update(bar)

	if err := p.routeFills(ctx); err != nil {
		return err
	}
	if p.machine.Halted() {
		return nil
	}
	if err := p.machine.CheckBrackets(ctx, bar); err != nil {
		p.log.Error().Err(err).Msg("bracket exit failed")
	}

	sessionOK := p.window == nil || p.window.Eligible(bar.Ts)
	s := p.strat.Evaluate(strategy.Context{
		Bar:       bar,
		Snap:      snap,
		SessionOK: sessionOK,
		BarCount:  p.ind.Count(),
		Position:  p.positionView(),
	})
	if s == nil {
		return nil
	}
	metrics.SignalsTotal.WithLabelValues(p.symbol, s.Strategy).Inc()

	if s.Exit() {
		if err := p.machine.OnExitSignal(ctx, decimal.NewFromFloat(snap.Close), s.Reason, bar.Ts); err != nil {
			p.log.Error().Err(err).Msg("exit order failed")
		}
		return nil
	}
	p.submitEntry(ctx, s)
	return nil
}

// routeFills drains the adapter and applies fills belonging to this symbol's
// machine, tracking open/close transitions for the risk manager.
func (p *Pipeline) routeFills(ctx context.Context) error {
	fills, err := p.adapter.PollFills(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("poll fills failed")
		return nil
	}
	for _, f := range fills {
		if err := p.machine.ApplyFill(f); err != nil {
			var inv *execution.InvariantError
			if errors.As(err, &inv) {
				p.log.Error().Err(err).Msg("invariant violation, symbol halted")
				return err
			}
			p.log.Error().Err(err).Msg("apply fill failed")
		}
	}
	open := p.machine.Open()
	if open && !p.wasOpen {
		p.riskMgr.OnOpen()
	}
	p.wasOpen = open
	return nil
}

func (p *Pipeline) submitEntry(ctx context.Context, s *sig.Signal) {
	if reason := p.riskMgr.AllowEntry(s.Ts); reason != risk.RejectNone {
		metrics.RejectionsTotal.WithLabelValues(p.symbol, string(reason)).Inc()
		p.log.Debug().Str("reason", string(reason)).Msg("entry blocked by risk gates")
		return
	}
	entry := decimal.NewFromFloat(s.Entry)
	stop := decimal.NewFromFloat(s.Stop)
	qty, reject := p.sizer.Size(p.account.Equity(), entry, stop, s.Dir, s.RiskFactor)
	if reject != risk.RejectNone {
		metrics.RejectionsTotal.WithLabelValues(p.symbol, string(reject)).Inc()
		p.log.Debug().Str("reason", string(reject)).Msg("entry not sized")
		return
	}

	side := execution.Buy
	if s.Dir == sig.Short {
		side = execution.Sell
	}
	ord := execution.Order{
		ID:       execution.NewOrderID(),
		Symbol:   p.symbol,
		Strategy: s.Strategy,
		Side:     side,
		Qty:      qty,
		Price:    entry,
		Stop:     stop,
		Target:   decimal.NewFromFloat(s.Target),
		Ts:       s.Ts,
		Reason:   s.Reason,
	}
	if err := p.machine.OnEntrySignal(ctx, ord); err != nil {
		p.log.Error().Err(err).Msg("entry order rejected")
	}
}

func (p *Pipeline) positionView() strategy.PositionView {
	pos := p.machine.Position()
	if !p.machine.Open() {
		return strategy.PositionView{}
	}
	dir := sig.Long
	if pos.Side == execution.Sell {
		dir = sig.Short
	}
	entry, _ := pos.AvgEntry.Float64()
	return strategy.PositionView{Open: true, Dir: dir, Entry: entry}
}

// Halted reports whether the pipeline's machine hit an invariant violation.
func (p *Pipeline) Halted() bool { return p.machine.Halted() }

// Open reports whether the pipeline currently holds a position.
func (p *Pipeline) Open() bool { return p.machine.Open() }
