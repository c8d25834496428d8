// Package repository persists and serves historical bars from Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradebot-go/internal/market"
)

var (
	ErrNoBars         = errors.New("no bars found in datasource")
	ErrSymbolNotFound = errors.New("symbol not found in datasource")
)

// barRow is the storage shape of one bar. Prices are numeric in Postgres and
// travel as decimals; the float conversion happens at the market.Bar border.
type barRow struct {
	Symbol string
	Ts     time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

type barQuerier interface {
	SelectBars(ctx context.Context, symbol string, start, end time.Time) ([]barRow, error)
	InsertBars(ctx context.Context, rows []barRow) error
	ListSymbols(ctx context.Context) ([]string, error)
}

// Store holds the database connection for bar history.
type Store struct {
	q    barQuerier
	pool *pgxpool.Pool
}

// NewStore connects to Postgres, registers the decimal codec, and verifies
// connectivity.
func NewStore(ctx context.Context, dbURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{q: pgxQuerier{pool: pool}, pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetBars returns the stored bars for symbol in [start, end), oldest first.
func (s *Store) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	rows, err := s.q.SelectBars(ctx, symbol, start, end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("symbol %s: %w", symbol, ErrNoBars)
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("symbol %s: %w", symbol, ErrNoBars)
	}
	bars := make([]market.Bar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, market.Bar{
			Symbol: r.Symbol,
			Ts:     r.Ts,
			Open:   r.Open.InexactFloat64(),
			High:   r.High.InexactFloat64(),
			Low:    r.Low.InexactFloat64(),
			Close:  r.Close.InexactFloat64(),
			Volume: r.Volume.InexactFloat64(),
		})
	}
	return bars, nil
}

// SaveBars stores a batch of bars, overwriting duplicates on (symbol, ts).
func (s *Store) SaveBars(ctx context.Context, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([]barRow, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, barRow{
			Symbol: b.Symbol,
			Ts:     b.Ts,
			Open:   decimal.NewFromFloat(b.Open),
			High:   decimal.NewFromFloat(b.High),
			Low:    decimal.NewFromFloat(b.Low),
			Close:  decimal.NewFromFloat(b.Close),
			Volume: decimal.NewFromFloat(b.Volume),
		})
	}
	return s.q.InsertBars(ctx, rows)
}

// Symbols lists every symbol with stored history.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	symbols, err := s.q.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, ErrSymbolNotFound
	}
	return symbols, nil
}

// pgxQuerier runs the actual SQL against the pool.
type pgxQuerier struct {
	pool *pgxpool.Pool
}

const selectBarsSQL = `
SELECT symbol, ts, open, high, low, close, volume
FROM bars
WHERE symbol = $1 AND ts >= $2 AND ts < $3
ORDER BY ts`

func (q pgxQuerier) SelectBars(ctx context.Context, symbol string, start, end time.Time) ([]barRow, error) {
	rows, err := q.pool.Query(ctx, selectBarsSQL, symbol, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []barRow
	for rows.Next() {
		var r barRow
		if err := rows.Scan(&r.Symbol, &r.Ts, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const insertBarSQL = `
INSERT INTO bars (symbol, ts, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (symbol, ts) DO UPDATE
SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
    close = EXCLUDED.close, volume = EXCLUDED.volume`

func (q pgxQuerier) InsertBars(ctx context.Context, rows []barRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertBarSQL, r.Symbol, r.Ts, r.Open, r.High, r.Low, r.Close, r.Volume)
	}
	results := q.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

const listSymbolsSQL = `SELECT DISTINCT symbol FROM bars ORDER BY symbol`

func (q pgxQuerier) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := q.pool.Query(ctx, listSymbolsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
