// Package backtest replays historical bars through the live pipeline with a
// deterministic simulated broker.
package backtest

import (
	"context"
	"math/rand"

	"github.com/shopspring/decimal"

	"tradebot-go/internal/execution"
	"tradebot-go/internal/market"
)

// FillModel selects the price a simulated order fills at.
type FillModel string

const (
	// FillNextOpen fills at the open of the bar after submission. This is
	// the honest model: a signal computed on a close cannot trade that close.
	FillNextOpen FillModel = "next_open"
	// FillSignalPrice fills at the order's own reference price.
	FillSignalPrice FillModel = "signal_price"
)

type pendingOrder struct {
	order   execution.Order
	barsLag int
}

// SimAdapter is the simulated broker for one symbol. Orders rest until
// OnBar matures them; slippage is a fixed base plus seeded jitter, so a run
// with the same seed produces identical fills.
type SimAdapter struct {
	model       FillModel
	slippageBps decimal.Decimal
	jitterBps   float64
	feeBps      decimal.Decimal
	latencyBars int
	rng         *rand.Rand

	pending []pendingOrder
	ready   []execution.Fill
}

// NewSimAdapter builds the broker; rng drives slippage jitter and must be
// seeded by the caller.
func NewSimAdapter(model FillModel, slippageBps, jitterBps, feeBps float64, latencyBars int, rng *rand.Rand) *SimAdapter {
	if model == "" {
		model = FillNextOpen
	}
	if latencyBars < 0 {
		latencyBars = 0
	}
	return &SimAdapter{
		model:       model,
		slippageBps: decimal.NewFromFloat(slippageBps),
		jitterBps:   jitterBps,
		feeBps:      decimal.NewFromFloat(feeBps),
		latencyBars: latencyBars,
		rng:         rng,
	}
}

// Submit queues the order for the next matching bar.
func (a *SimAdapter) Submit(_ context.Context, o execution.Order) error {
	a.pending = append(a.pending, pendingOrder{order: o})
	return nil
}

// Cancel drops the resting order if it has not matured yet.
func (a *SimAdapter) Cancel(_ context.Context, orderID string) error {
	for i, p := range a.pending {
		if p.order.ID == orderID {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

// PollFills drains the matured fills.
func (a *SimAdapter) PollFills(context.Context) ([]execution.Fill, error) {
	out := a.ready
	a.ready = nil
	return out, nil
}

// OnBar matures resting orders against the new bar. Call before the pipeline
// processes the same bar so fills land in the cycle after submission.
func (a *SimAdapter) OnBar(bar market.Bar) {
	var still []pendingOrder
	for _, p := range a.pending {
		if p.barsLag < a.latencyBars {
			p.barsLag++
			still = append(still, p)
			continue
		}
		a.ready = append(a.ready, a.fill(p.order, bar))
	}
	a.pending = still
}

func (a *SimAdapter) fill(o execution.Order, bar market.Bar) execution.Fill {
	ref := o.Price
	if a.model == FillNextOpen {
		ref = decimal.NewFromFloat(bar.Open)
	}
	slip := a.slippageBps
	if a.jitterBps > 0 {
		slip = slip.Add(decimal.NewFromFloat(a.rng.Float64() * a.jitterBps))
	}
	adj := ref.Mul(slip).Div(decimal.NewFromInt(10000))
	price := ref.Add(adj)
	if o.Side == execution.Sell {
		price = ref.Sub(adj)
	}
	return execution.Fill{
		OrderID:  o.ID,
		TradeID:  o.TradeID,
		Symbol:   o.Symbol,
		Strategy: o.Strategy,
		Side:     o.Side,
		Leg:      o.Leg,
		Price:    price,
		Qty:      o.Qty,
		Fee:      price.Mul(o.Qty).Mul(a.feeBps).Div(decimal.NewFromInt(10000)),
		Ts:       bar.Ts,
	}
}
