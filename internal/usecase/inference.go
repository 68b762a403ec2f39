package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	domsvc "CandleCast/internal/domain/service"
	applogger "CandleCast/pkg/logger"
)

// Prediction outcomes used as metric labels.
const (
	PredictionEmitted  = "emitted"
	PredictionNotReady = "not_ready"
	PredictionNoModel  = "no_model"
	PredictionRejected = "rejected"
)

// InferenceUseCase turns an indicator set into a stored and published prediction.
type InferenceUseCase struct {
	assembler domsvc.FeatureAssembler
	predictor domsvc.Predictor
	sentiment domrepo.SentimentStore
	store     domrepo.PredictionStore
	pub       domrepo.Publisher
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewInferenceUseCase(
	assembler domsvc.FeatureAssembler,
	predictor domsvc.Predictor,
	sentiment domrepo.SentimentStore,
	store domrepo.PredictionStore,
	pub domrepo.Publisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *InferenceUseCase {
	return &InferenceUseCase{
		assembler: assembler,
		predictor: predictor,
		sentiment: sentiment,
		store:     store,
		pub:       pub,
		metrics:   metrics,
		l:         l,
	}
}

// Infer skips warm-up and unpromoted pairs without error; those are expected
// states of a running pipeline.
func (u *InferenceUseCase) Infer(ctx context.Context, set models.IndicatorSet) error {
	at := time.UnixMilli(set.WindowEndMs)
	vec, err := u.assembler.Assemble(set, u.sentimentHistory(ctx, set.Pair, at), at)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.Is(err, models.ErrNotReady):
			u.metrics.RecordPrediction(set.Pair, PredictionNotReady)
			return nil
		case errors.As(err, &verr):
			for _, f := range verr.Invalid {
				u.metrics.RecordFeatureRejected(f)
			}
			u.metrics.RecordPrediction(set.Pair, PredictionRejected)
			u.l.Warn("feature vector rejected",
				applogger.String("pair", set.Pair),
				applogger.Int64("window_start_ms", set.WindowStartMs),
				applogger.Error(err))
			return nil
		}
		return fmt.Errorf("assemble features: %w", err)
	}

	p, err := u.predictor.Predict(vec)
	switch {
	case errors.Is(err, models.ErrNoModel):
		u.metrics.RecordPrediction(set.Pair, PredictionNoModel)
		return nil
	case errors.Is(err, models.ErrNotReady):
		u.metrics.RecordPrediction(set.Pair, PredictionNotReady)
		return nil
	case err != nil:
		return fmt.Errorf("predict: %w", err)
	}

	rec := models.PredictionRecord{Prediction: p, Features: vec.Fields}
	if err := u.store.StorePredictions(ctx, []models.PredictionRecord{rec}); err != nil {
		return err
	}
	if err := u.pub.PublishPrediction(ctx, p); err != nil {
		return fmt.Errorf("publish prediction: %w", err)
	}
	u.metrics.RecordPrediction(p.Pair, PredictionEmitted)
	u.l.Debug("prediction emitted",
		applogger.String("pair", p.Pair),
		applogger.String("model_version", p.ModelVersion),
		applogger.Float("predicted_price", p.PredictedPrice))
	return nil
}

// sentimentHistory loads the snapshots the assembler needs for at. The cached
// latest snapshot is appended when the stored history has not caught up with it.
// Lookup failures only leave sentiment fields zero-filled.
func (u *InferenceUseCase) sentimentHistory(ctx context.Context, pair string, at time.Time) []models.SentimentSnapshot {
	hist, err := u.sentiment.SentimentHistory(ctx, pair, at.Add(-u.assembler.Lookback()), at)
	if err != nil {
		u.metrics.RecordError("sentiment_lookup")
		hist = nil
	}
	latest, err := u.sentiment.LatestSentiment(ctx, pair)
	if err != nil {
		u.metrics.RecordError("sentiment_lookup")
		return hist
	}
	if latest != nil && latest.TsMs <= at.UnixMilli() && (len(hist) == 0 || hist[len(hist)-1].TsMs < latest.TsMs) {
		hist = append(hist, *latest)
	}
	return hist
}
