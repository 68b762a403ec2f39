package models

import (
	"fmt"
	"math"
)

// Trade is a single executed trade reported by the exchange.
type Trade struct {
	Pair         string  `json:"pair"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	TimestampMs  int64   `json:"timestamp_ms"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`
}

// Validate checks the trade is usable for aggregation.
func (t Trade) Validate() error {
	var bad []string
	if t.Pair == "" {
		bad = append(bad, "pair")
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		bad = append(bad, "price")
	}
	if math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) || t.Quantity <= 0 {
		bad = append(bad, "quantity")
	}
	if t.TimestampMs <= 0 {
		bad = append(bad, "timestamp_ms")
	}
	if len(bad) > 0 {
		return &ValidationError{Subject: fmt.Sprintf("trade %s@%d", t.Pair, t.TimestampMs), Invalid: bad}
	}
	return nil
}

// DedupKey identifies a trade for idempotent ingestion.
type DedupKey struct {
	Pair        string
	TimestampMs int64
	Price       uint64
	Quantity    uint64
}

// Key returns the identity of the trade. Prices are compared bitwise.
func (t Trade) Key() DedupKey {
	return DedupKey{
		Pair:        t.Pair,
		TimestampMs: t.TimestampMs,
		Price:       math.Float64bits(t.Price),
		Quantity:    math.Float64bits(t.Quantity),
	}
}
