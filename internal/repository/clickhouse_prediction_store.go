package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
	"CandleCast/pkg/cache"
	pkgch "CandleCast/pkg/clickhouse"
)

const predictionColumns = `pair, model_version, ts_ms, predicted_ts_ms, predicted_price, lower, upper, features`

// PredictionStore appends predictions to ClickHouse and keeps the latest one
// per pair in the cache so the API does not scan the table.
type PredictionStore struct {
	ch    *pkgch.Client
	cache cache.Service
	ttl   time.Duration
}

func NewPredictionStore(ch *pkgch.Client, c cache.Service, ttl time.Duration) repository.PredictionStore {
	return &PredictionStore{ch: ch, cache: c, ttl: ttl}
}

func latestPredictionKey(pair string) string { return cache.Key("prediction", "latest", pair) }

func (s *PredictionStore) StorePredictions(ctx context.Context, records []models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s.predictions (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.ch.Database(), predictionColumns)
	rows := make([][]any, 0, len(records))
	latest := map[string]models.Prediction{}
	for _, r := range records {
		feats, err := json.Marshal(r.Features)
		if err != nil {
			return fmt.Errorf("encode features: %w", err)
		}
		rows = append(rows, []any{r.Pair, r.ModelVersion, r.TsMs, r.PredictedTsMs,
			r.PredictedPrice, r.ConfidenceLower, r.ConfidenceUpper, string(feats)})
		if cur, ok := latest[r.Pair]; !ok || r.TsMs >= cur.TsMs {
			latest[r.Pair] = r.Prediction
		}
	}
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		return fmt.Errorf("store predictions: %w", err)
	}
	if s.cache != nil {
		for pair, p := range latest {
			_ = s.cache.Set(ctx, latestPredictionKey(pair), p, s.ttl)
		}
	}
	return nil
}

// LatestPrediction returns ErrNotFound when the pair has never been predicted.
func (s *PredictionStore) LatestPrediction(ctx context.Context, pair string) (models.Prediction, error) {
	var p models.Prediction
	if s.cache != nil {
		if err := s.cache.Get(ctx, latestPredictionKey(pair), &p); err == nil {
			return p, nil
		}
	}
	q := fmt.Sprintf(`SELECT %s FROM %s.predictions WHERE pair = ? ORDER BY ts_ms DESC LIMIT 1`, predictionColumns, s.ch.Database())
	recs, err := scanPredictions(ctx, s.ch.DB(), q, pair)
	if err != nil {
		return p, fmt.Errorf("latest prediction: %w", err)
	}
	if len(recs) == 0 {
		return p, fmt.Errorf("prediction for %s: %w", pair, models.ErrNotFound)
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, latestPredictionKey(pair), recs[0].Prediction, s.ttl)
	}
	return recs[0].Prediction, nil
}

// QueryPredictions returns up to limit records in [from, to], newest first.
func (s *PredictionStore) QueryPredictions(ctx context.Context, pair string, from, to time.Time, limit int) ([]models.PredictionRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s.predictions
		WHERE pair = ? AND ts_ms >= ? AND ts_ms <= ?
		ORDER BY ts_ms DESC
		LIMIT ?`, predictionColumns, s.ch.Database())
	recs, err := scanPredictions(ctx, s.ch.DB(), q, pair, from.UnixMilli(), to.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	return recs, nil
}

func scanPredictions(ctx context.Context, db *sql.DB, q string, args ...any) ([]models.PredictionRecord, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PredictionRecord
	for rows.Next() {
		var (
			r   models.PredictionRecord
			raw string
		)
		if err := rows.Scan(&r.Pair, &r.ModelVersion, &r.TsMs, &r.PredictedTsMs,
			&r.PredictedPrice, &r.ConfidenceLower, &r.ConfidenceUpper, &raw); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &r.Features); err != nil {
				return nil, fmt.Errorf("decode features: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
