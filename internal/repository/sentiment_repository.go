package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
	"CandleCast/pkg/cache"
	pkgch "CandleCast/pkg/clickhouse"
)

// SentimentRepository keeps the latest snapshot per pair in the cache and the
// full history in ClickHouse.
type SentimentRepository struct {
	ch    *pkgch.Client
	cache cache.Service
	ttl   time.Duration
}

func NewSentimentRepository(ch *pkgch.Client, c cache.Service, ttl time.Duration) repository.SentimentStore {
	return &SentimentRepository{ch: ch, cache: c, ttl: ttl}
}

func sentimentKey(pair string) string { return cache.Key("sentiment", "latest", pair) }

// SaveSentiment appends to history and replaces the cached latest snapshot
// unless the cached one is newer.
func (r *SentimentRepository) SaveSentiment(ctx context.Context, s models.SentimentSnapshot) error {
	q := fmt.Sprintf(`INSERT INTO %s.sentiment
		(pair, ts_ms, sentiment, galaxy_score, alt_rank, interactions, social_dominance)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, r.ch.Database())
	if err := r.ch.InsertBatch(ctx, q, [][]any{{s.Pair, s.TsMs, s.Sentiment, s.GalaxyScore, s.AltRank, s.Interactions, s.SocialDominance}}); err != nil {
		return fmt.Errorf("store sentiment: %w", err)
	}

	var cur models.SentimentSnapshot
	if err := r.cache.Get(ctx, sentimentKey(s.Pair), &cur); err == nil && cur.TsMs > s.TsMs {
		return nil
	}
	if err := r.cache.Set(ctx, sentimentKey(s.Pair), s, r.ttl); err != nil {
		return fmt.Errorf("cache sentiment: %w", err)
	}
	return nil
}

// LatestSentiment returns nil without error when no snapshot is known.
func (r *SentimentRepository) LatestSentiment(ctx context.Context, pair string) (*models.SentimentSnapshot, error) {
	var s models.SentimentSnapshot
	err := r.cache.Get(ctx, sentimentKey(pair), &s)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("latest sentiment: %w", err)
	}

	hist, err := r.query(ctx, fmt.Sprintf(`SELECT pair, ts_ms, sentiment, galaxy_score, alt_rank, interactions, social_dominance
		FROM %s.sentiment WHERE pair = ? ORDER BY ts_ms DESC LIMIT 1`, r.ch.Database()), pair)
	if err != nil || len(hist) == 0 {
		return nil, err
	}
	_ = r.cache.Set(ctx, sentimentKey(pair), hist[0], r.ttl)
	return &hist[0], nil
}

// SentimentHistory returns snapshots in [from, to], oldest first.
func (r *SentimentRepository) SentimentHistory(ctx context.Context, pair string, from, to time.Time) ([]models.SentimentSnapshot, error) {
	return r.query(ctx, fmt.Sprintf(`SELECT pair, ts_ms, sentiment, galaxy_score, alt_rank, interactions, social_dominance
		FROM %s.sentiment FINAL WHERE pair = ? AND ts_ms >= ? AND ts_ms <= ? ORDER BY ts_ms ASC`, r.ch.Database()),
		pair, from.UnixMilli(), to.UnixMilli())
}

func (r *SentimentRepository) query(ctx context.Context, q string, args ...any) ([]models.SentimentSnapshot, error) {
	rows, err := r.ch.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sentiment: %w", err)
	}
	defer rows.Close()
	var out []models.SentimentSnapshot
	for rows.Next() {
		var s models.SentimentSnapshot
		if err := rows.Scan(&s.Pair, &s.TsMs, &s.Sentiment, &s.GalaxyScore, &s.AltRank, &s.Interactions, &s.SocialDominance); err != nil {
			return nil, fmt.Errorf("scan sentiment: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
