package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type binanceEnvelope struct {
	Stream string           `json:"stream"`
	Data   binanceKlineData `json:"data"`
}

type binanceKlineData struct {
	Kline binanceKline `json:"k"`
}

type binanceKline struct {
	StartTime int64  `json:"t"`
	Symbol    string `json:"s"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Final     bool   `json:"x"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- Bar) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = binanceStreamName(sym, f.interval)
	}

	url := fmt.Sprintf("wss://stream.binance.com:9443/stream?streams=%s", strings.Join(streams, "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- Bar) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Strs("symbols", f.snapshotSymbols()).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env binanceEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		k := env.Data.Kline
		if !k.Final {
			// only closed klines feed the indicator state
			continue
		}

		bar, err := parseBinanceKline(k)
		if err != nil {
			f.log.Warn().Err(err).Str("sym", k.Symbol).Msg("invalid kline from binance")
			continue
		}

		select {
		case out <- bar:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseBinanceKline(k binanceKline) (Bar, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("low: %w", err)
	}
	closePx, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("close: %w", err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("volume: %w", err)
	}
	return Bar{
		Symbol: strings.ToUpper(k.Symbol),
		Ts:     time.UnixMilli(k.StartTime).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: vol,
	}, nil
}

// binanceStreamName maps "BTC/USDT" style symbols onto binance kline streams.
func binanceStreamName(symbol, interval string) string {
	flat := strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
	return flat + "@kline_" + interval
}
