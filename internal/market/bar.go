// Package market defines the bar data model and the feeds that produce it.
package market

import "time"

// Bar is one OHLCV sample for a fixed interval. Bars are immutable once
// produced and arrive in timestamp order per symbol; gaps are permitted.
type Bar struct {
	Symbol string    `json:"symbol"`
	Ts     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TypicalPrice returns (high + low + close) / 3, the VWAP input.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}
