package models

import "time"

// Candle is an OHLCV summary of the trades of one pair inside one tumbling window.
type Candle struct {
	Pair            string  `json:"pair"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	WindowStartMs   int64   `json:"window_start_ms"`
	WindowEndMs     int64   `json:"window_end_ms"`
	DurationSeconds int     `json:"duration_seconds"`
}

// Start returns the window start as UTC time.
func (c Candle) Start() time.Time { return time.UnixMilli(c.WindowStartMs).UTC() }

// WindowStart floors ts to the start of its window.
func WindowStart(tsMs, durationMs int64) int64 {
	if durationMs <= 0 {
		return tsMs
	}
	start := (tsMs / durationMs) * durationMs
	if tsMs < 0 && tsMs%durationMs != 0 {
		start -= durationMs
	}
	return start
}
