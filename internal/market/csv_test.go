package market

import (
	"os"
	"path/filepath"
	"testing"
)

func writeBarFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write bar file: %v", err)
	}
}

func TestCSVSourceBars(t *testing.T) {
	dir := t.TempDir()
	writeBarFile(t, dir, "BTC-USDT.csv",
		"timestamp,open,high,low,close,volume\n"+
			"60000,100,101,99,100.5,1200\n"+
			"0,99,100,98,100,1000\n")

	src := NewCSVSource(dir)
	symbols, err := src.Symbols()
	if err != nil {
		t.Fatalf("Symbols returned error: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "BTC/USDT" {
		t.Fatalf("unexpected symbols: %+v", symbols)
	}

	bars, err := src.Bars("BTC/USDT")
	if err != nil {
		t.Fatalf("Bars returned error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	// rows must come back sorted by timestamp even when the file is not
	if !bars[0].Ts.Before(bars[1].Ts) {
		t.Fatalf("bars not sorted: %v then %v", bars[0].Ts, bars[1].Ts)
	}
	if bars[1].Close != 100.5 || bars[1].Volume != 1200 {
		t.Fatalf("unexpected bar fields: %+v", bars[1])
	}
	if bars[0].Symbol != "BTC/USDT" {
		t.Fatalf("symbol not applied: %+v", bars[0])
	}
}

func TestCSVSourceBadRow(t *testing.T) {
	dir := t.TempDir()
	writeBarFile(t, dir, "ETH-USDT.csv", "0,abc,1,1,1,1\n")
	if _, err := NewCSVSource(dir).Bars("ETH/USDT"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCSVSourceRestartable(t *testing.T) {
	dir := t.TempDir()
	writeBarFile(t, dir, "SOL-USDT.csv", "0,1,1,1,1,1\n60000,1,1,1,1,1\n")
	src := NewCSVSource(dir)
	first, err := src.Bars("SOL/USDT")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := src.Bars("SOL/USDT")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("reads differ: %d vs %d", len(first), len(second))
	}
}
