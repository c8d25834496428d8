package market

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// ProviderStub emits deterministic synthetic bars (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams closed klines from Binance public websockets.
	ProviderBinance = "binance"
)

// Feed is a pluggable live bar stream implementation.
type Feed struct {
	provider string
	symbols  []string
	interval string
	log      zerolog.Logger
	mu       sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithInterval overrides the default 1m kline interval.
func WithInterval(interval string) Option {
	return func(f *Feed) {
		if interval != "" {
			f.interval = interval
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider: strings.ToLower(provider),
		interval: "1m",
		log:      log,
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Run pushes bars onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- Bar) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

// runStub produces a gentle deterministic uptrend so downstream components
// have data without network access.
func (f *Feed) runStub(ctx context.Context, out chan<- Bar) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	// synthetic minute clock: downstream drops bars whose timestamps do not
	// strictly advance, so the tick phase must never produce duplicates
	ts := time.Now().UTC().Truncate(time.Minute)
	px := 100.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ts = ts.Add(time.Minute)
			open := px
			px += 0.1
			for _, s := range f.snapshotSymbols() {
				bar := Bar{
					Symbol: s,
					Ts:     ts,
					Open:   open,
					High:   px + 0.05,
					Low:    open - 0.05,
					Close:  px,
					Volume: 1000,
				}
				select {
				case out <- bar:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
