package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"CandleCast/internal/domain/models"
	pkgch "CandleCast/pkg/clickhouse"
	applogger "CandleCast/pkg/logger"
)

// CHFeatureStore reads indicator and prediction history for training and drift.
type CHFeatureStore struct {
	db   *sql.DB
	name string
	l    *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client, l *applogger.Logger) *CHFeatureStore {
	return &CHFeatureStore{db: ch.DB(), name: ch.Database(), l: l}
}

const indicatorColumns = `pair, duration_seconds, window_start_ms, window_end_ms, open, high, low, close, volume, indicators`

// GetIndicatorSets returns sets whose window starts in [from, to), oldest first.
// FINAL collapses rows re-inserted for the same window.
func (s *CHFeatureStore) GetIndicatorSets(ctx context.Context, pair string, durationSeconds int, from, to time.Time) ([]models.IndicatorSet, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT %s FROM %s.technical_indicators FINAL
		WHERE pair = ? AND duration_seconds = ? AND window_start_ms >= ? AND window_start_ms < ?
		ORDER BY window_start_ms ASC`, indicatorColumns, s.name)
	out, err := s.querySets(ctx, q, pair, uint32(durationSeconds), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		s.l.Error("clickhouse indicator_sets query",
			applogger.String("pair", pair),
			applogger.Int("duration_seconds", durationSeconds),
			applogger.Error(err))
		return nil, fmt.Errorf("get indicator sets: %w", err)
	}
	s.l.Debug("clickhouse indicator_sets ok",
		applogger.String("pair", pair),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)))
	return out, nil
}

// GetLatestIndicatorSets returns the newest n sets, oldest first.
func (s *CHFeatureStore) GetLatestIndicatorSets(ctx context.Context, pair string, durationSeconds int, n int) ([]models.IndicatorSet, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s.technical_indicators FINAL
		WHERE pair = ? AND duration_seconds = ?
		ORDER BY window_start_ms DESC
		LIMIT ?`, indicatorColumns, s.name)
	out, err := s.querySets(ctx, q, pair, uint32(durationSeconds), n)
	if err != nil {
		return nil, fmt.Errorf("get latest indicator sets: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *CHFeatureStore) querySets(ctx context.Context, q string, args ...any) ([]models.IndicatorSet, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IndicatorSet
	for rows.Next() {
		var (
			set models.IndicatorSet
			dur uint32
			raw string
		)
		c := &set.Candle
		if err := rows.Scan(&c.Pair, &dur, &c.WindowStartMs, &c.WindowEndMs,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &raw); err != nil {
			return nil, fmt.Errorf("scan indicator set: %w", err)
		}
		c.DurationSeconds = int(dur)
		if err := json.Unmarshal([]byte(raw), &set.Values); err != nil {
			return nil, fmt.Errorf("decode indicators at %d: %w", c.WindowStartMs, err)
		}
		out = append(out, set)
	}
	return out, rows.Err()
}

// GetPredictionFeatures returns stored predictions with their features, oldest first.
func (s *CHFeatureStore) GetPredictionFeatures(ctx context.Context, pair string, from, to time.Time) ([]models.PredictionRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s.predictions
		WHERE pair = ? AND ts_ms >= ? AND ts_ms < ?
		ORDER BY ts_ms ASC`, predictionColumns, s.name)
	recs, err := scanPredictions(ctx, s.db, q, pair, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("get prediction features: %w", err)
	}
	return recs, nil
}
