package repository

import (
	"context"
	"time"

	"CandleCast/internal/domain/models"
)

// FeatureStore provides read access to history for training and drift checks.
type FeatureStore interface {
	GetIndicatorSets(ctx context.Context, pair string, durationSeconds int, from, to time.Time) ([]models.IndicatorSet, error)
	GetLatestIndicatorSets(ctx context.Context, pair string, durationSeconds int, n int) ([]models.IndicatorSet, error)
	GetPredictionFeatures(ctx context.Context, pair string, from, to time.Time) ([]models.PredictionRecord, error)
}
