package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CSVSource loads historical bars from per-symbol CSV files laid out as
// <dir>/<SYMBOL>.csv with rows of timestamp_ms,open,high,low,close,volume.
// Symbols containing "/" map to files with "-" instead (BTC/USDT -> BTC-USDT.csv).
// The source is restartable: every Bars call re-reads from the beginning.
type CSVSource struct {
	dir string
}

// NewCSVSource points the source at a directory of bar files.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// Symbols lists the symbols for which a bar file exists.
func (s *CSVSource) Symbols() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read bar dir: %w", err)
	}
	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		base := strings.TrimSuffix(name, ".csv")
		symbols = append(symbols, strings.ReplaceAll(base, "-", "/"))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Bars reads the full ordered bar sequence for one symbol.
func (s *CSVSource) Bars(symbol string) ([]Bar, error) {
	path := filepath.Join(s.dir, strings.ReplaceAll(symbol, "/", "-")+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bar file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 6
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read bar file %s: %w", path, err)
	}

	bars := make([]Bar, 0, len(records))
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "timestamp") {
			continue
		}
		bar, err := parseCSVBar(symbol, rec)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Ts.Before(bars[j].Ts) })
	return bars, nil
}

func parseCSVBar(symbol string, rec []string) (Bar, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("timestamp: %w", err)
	}
	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return Bar{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		fields[i] = v
	}
	return Bar{
		Symbol: symbol,
		Ts:     time.UnixMilli(ms).UTC(),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}
