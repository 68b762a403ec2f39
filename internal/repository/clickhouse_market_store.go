package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
	pkgch "CandleCast/pkg/clickhouse"
)

// ClickHouseMarketStore writes candles and indicator sets.
type ClickHouseMarketStore struct {
	ch *pkgch.Client
	db string
}

func NewClickHouseMarketStore(ch *pkgch.Client) repository.MarketStore {
	return &ClickHouseMarketStore{ch: ch, db: ch.Database()}
}

func (s *ClickHouseMarketStore) StoreCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s.candles
		(pair, duration_seconds, window_start_ms, window_end_ms, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.db)
	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, []any{c.Pair, uint32(c.DurationSeconds), c.WindowStartMs, c.WindowEndMs,
			c.Open, c.High, c.Low, c.Close, c.Volume})
	}
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		return fmt.Errorf("store candles: %w", err)
	}
	return nil
}

func (s *ClickHouseMarketStore) StoreIndicators(ctx context.Context, sets []models.IndicatorSet) error {
	if len(sets) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s.technical_indicators
		(pair, duration_seconds, window_start_ms, window_end_ms, open, high, low, close, volume, indicators)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.db)
	rows := make([][]any, 0, len(sets))
	for _, set := range sets {
		vals, err := json.Marshal(set.Values)
		if err != nil {
			return fmt.Errorf("encode indicators: %w", err)
		}
		c := set.Candle
		rows = append(rows, []any{c.Pair, uint32(c.DurationSeconds), c.WindowStartMs, c.WindowEndMs,
			c.Open, c.High, c.Low, c.Close, c.Volume, string(vals)})
	}
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		return fmt.Errorf("store indicators: %w", err)
	}
	return nil
}

func (s *ClickHouseMarketStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the client is closed by the app.
func (s *ClickHouseMarketStore) Close() error { return nil }
