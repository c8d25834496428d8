package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"tradebot-go/internal/execution"
)

type jsonlLine struct {
	Kind  string           `json:"kind"`
	Fill  *execution.Fill  `json:"fill,omitempty"`
	Trade *execution.Trade `json:"trade,omitempty"`
}

// JSONLRecorder appends fills and trades as JSON lines for later analysis.
// Each line carries a kind tag so one file holds the full event stream.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// RecordFill writes a single fill line.
func (r *JSONLRecorder) RecordFill(fill execution.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(jsonlLine{Kind: "fill", Fill: &fill})
}

// RecordTrade writes a single trade line.
func (r *JSONLRecorder) RecordTrade(trade execution.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(jsonlLine{Kind: "trade", Trade: &trade})
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
