package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	domsvc "CandleCast/internal/domain/service"
)

// Submitter queues an indicator set for inference.
type Submitter interface {
	Submit(ctx context.Context, set models.IndicatorSet) error
}

// CandleSinkUseCase publishes and stores every closed candle and its
// indicators, and forwards sets of the model duration to inference.
type CandleSinkUseCase struct {
	pub           domrepo.Publisher
	store         domrepo.MarketStore
	infer         Submitter
	metrics       domrepo.Metrics
	modelDuration int
}

func NewCandleSinkUseCase(pub domrepo.Publisher, store domrepo.MarketStore, infer Submitter, metrics domrepo.Metrics, modelDuration time.Duration) *CandleSinkUseCase {
	return &CandleSinkUseCase{
		pub:           pub,
		store:         store,
		infer:         infer,
		metrics:       metrics,
		modelDuration: int(modelDuration / time.Second),
	}
}

func (s *CandleSinkUseCase) OnCandle(ctx context.Context, c models.Candle, set models.IndicatorSet) error {
	start := time.Now()
	s.metrics.RecordCandle(c.Pair, c.DurationSeconds)
	s.metrics.RecordLastPrice(c.Pair, c.Close)

	var errs []error
	if err := s.pub.PublishCandle(ctx, c); err != nil {
		errs = append(errs, fmt.Errorf("publish candle: %w", err))
	}
	if err := s.pub.PublishIndicators(ctx, set); err != nil {
		errs = append(errs, fmt.Errorf("publish indicators: %w", err))
	}
	if err := s.store.StoreCandles(ctx, []models.Candle{c}); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.StoreIndicators(ctx, []models.IndicatorSet{set}); err != nil {
		errs = append(errs, err)
	}
	s.metrics.RecordLatency("candle_sink", time.Since(start).Seconds())

	if s.infer != nil && c.DurationSeconds == s.modelDuration {
		if err := s.infer.Submit(ctx, set); err != nil {
			errs = append(errs, fmt.Errorf("submit inference: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ domsvc.CandleSink = (*CandleSinkUseCase)(nil)
