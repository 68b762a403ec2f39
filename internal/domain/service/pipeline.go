package service

import (
	"context"
	"time"

	"CandleCast/internal/domain/models"
)

// CandleSink receives closed candles and their indicator sets from a lane worker.
type CandleSink interface {
	OnCandle(ctx context.Context, c models.Candle, set models.IndicatorSet) error
}

// Predictor produces a prediction for a feature vector.
type Predictor interface {
	Predict(v models.FeatureVector) (models.Prediction, error)
}

// FeatureAssembler turns an indicator set into a model feature vector using
// the time-ordered sentiment history up to now.
type FeatureAssembler interface {
	Assemble(set models.IndicatorSet, history []models.SentimentSnapshot, now time.Time) (models.FeatureVector, error)
	Lookback() time.Duration
}

// SentimentSource fetches current social metrics for a pair.
type SentimentSource interface {
	Fetch(ctx context.Context, pair string) (models.SentimentSnapshot, error)
}
