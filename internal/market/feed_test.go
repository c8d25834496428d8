package market

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewFeedNormalizesSymbols(t *testing.T) {
	f := NewFeed("", []string{" ETH/USDT", "BTC/USDT", "BTC/USDT", ""}, zerolog.Nop())
	if f.provider != ProviderStub {
		t.Fatalf("empty provider should default to stub, got %q", f.provider)
	}
	syms := f.snapshotSymbols()
	if len(syms) != 2 || syms[0] != "BTC/USDT" || syms[1] != "ETH/USDT" {
		t.Fatalf("unexpected symbols: %v", syms)
	}
}

func TestStubFeedEmitsBars(t *testing.T) {
	f := NewFeed(ProviderStub, []string{"BTC/USDT"}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	out := make(chan Bar, 8)
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, out) }()

	var bars []Bar
	for len(bars) < 3 {
		select {
		case bar := <-out:
			bars = append(bars, bar)
		case <-ctx.Done():
			t.Fatal("timed out waiting for stub bars")
		}
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	for _, bar := range bars {
		if bar.Symbol != "BTC/USDT" {
			t.Fatalf("unexpected symbol %q", bar.Symbol)
		}
		if bar.High < bar.Close || bar.Low > bar.Open {
			t.Fatalf("inconsistent bar %+v", bar)
		}
	}
	// timestamps must strictly advance or the pipeline's ordering guard
	// drops every bar after the first
	for i := 1; i < len(bars); i++ {
		if !bars[i].Ts.After(bars[i-1].Ts) {
			t.Fatalf("timestamps should advance: %v then %v", bars[i-1].Ts, bars[i].Ts)
		}
	}
}

func TestBinanceStreamName(t *testing.T) {
	if got := binanceStreamName("BTC/USDT", "1m"); got != "btcusdt@kline_1m" {
		t.Fatalf("got %q", got)
	}
	if got := binanceStreamName("dogeusdt", "5m"); got != "dogeusdt@kline_5m" {
		t.Fatalf("got %q", got)
	}
}

func TestParseBinanceKline(t *testing.T) {
	k := binanceKline{
		StartTime: 1700000000000,
		Symbol:    "btcusdt",
		Open:      "100.5",
		High:      "101",
		Low:       "99.75",
		Close:     "100.9",
		Volume:    "1234.5",
		Final:     true,
	}
	bar, err := parseBinanceKline(k)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if bar.Symbol != "BTCUSDT" {
		t.Fatalf("symbol %q", bar.Symbol)
	}
	if bar.Open != 100.5 || bar.High != 101 || bar.Low != 99.75 || bar.Close != 100.9 || bar.Volume != 1234.5 {
		t.Fatalf("unexpected bar %+v", bar)
	}
	if !bar.Ts.Equal(time.UnixMilli(1700000000000).UTC()) {
		t.Fatalf("unexpected ts %v", bar.Ts)
	}

	k.High = "not-a-number"
	if _, err := parseBinanceKline(k); err == nil {
		t.Fatal("expected parse error for bad high")
	}
}
