package execution

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

var bpsDivisor = decimal.NewFromInt(10_000)

// PaperAdapter fills orders instantly and deterministically at the order's
// reference price, worsened by a configured slippage and charged a flat fee
// rate. It backs the paper-trading engine so the decision path matches live
// trading without touching an exchange.
type PaperAdapter struct {
	slippageBps  decimal.Decimal
	feeBps       decimal.Decimal
	partialFills int

	mu      sync.Mutex
	pending []Fill
}

// NewPaperAdapter builds an adapter with slippage/fee in basis points.
// partialFills > 1 splits every fill into that many parts to exercise the
// accumulation path.
func NewPaperAdapter(slippageBps, feeBps float64, partialFills int) *PaperAdapter {
	if partialFills < 1 {
		partialFills = 1
	}
	return &PaperAdapter{
		slippageBps:  decimal.NewFromFloat(slippageBps),
		feeBps:       decimal.NewFromFloat(feeBps),
		partialFills: partialFills,
	}
}

// Submit queues deterministic fills for the order.
func (a *PaperAdapter) Submit(_ context.Context, o Order) error {
	price := a.fillPrice(o)
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, qty := range splitQty(o.Qty, a.partialFills) {
		a.pending = append(a.pending, Fill{
			OrderID:  o.ID,
			TradeID:  o.TradeID,
			Symbol:   o.Symbol,
			Strategy: o.Strategy,
			Side:     o.Side,
			Leg:      o.Leg,
			Price:    price,
			Qty:      qty,
			Fee:      price.Mul(qty).Mul(a.feeBps).Div(bpsDivisor),
			Ts:       o.Ts,
		})
	}
	return nil
}

// Cancel is a no-op: paper fills are instant, so there is never an order left
// to cancel. Idempotent by construction.
func (a *PaperAdapter) Cancel(context.Context, string) error { return nil }

// PollFills drains and returns the queued fills.
func (a *PaperAdapter) PollFills(context.Context) ([]Fill, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.pending
	a.pending = nil
	return out, nil
}

// fillPrice worsens the reference price by slippage in the taker's direction.
func (a *PaperAdapter) fillPrice(o Order) decimal.Decimal {
	slip := o.Price.Mul(a.slippageBps).Div(bpsDivisor)
	if o.Side == Buy {
		return o.Price.Add(slip)
	}
	return o.Price.Sub(slip)
}

// splitQty divides qty into n parts that sum exactly to qty; the last part
// absorbs the rounding remainder.
func splitQty(qty decimal.Decimal, n int) []decimal.Decimal {
	if n <= 1 {
		return []decimal.Decimal{qty}
	}
	parts := make([]decimal.Decimal, 0, n)
	chunk := qty.Div(decimal.NewFromInt(int64(n))).Truncate(12)
	var used decimal.Decimal
	for i := 0; i < n-1; i++ {
		parts = append(parts, chunk)
		used = used.Add(chunk)
	}
	return append(parts, qty.Sub(used))
}
