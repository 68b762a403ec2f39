package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	"CandleCast/internal/services/drift"
	"CandleCast/internal/services/prediction"
	"CandleCast/pkg/queue"
)

// PredictionsUseCase serves the read side of the API.
type PredictionsUseCase struct {
	pairs    []string
	store    domrepo.PredictionStore
	registry domrepo.ModelRegistry
	server   *prediction.Server
	monitor  *drift.Monitor
	jobs     queue.Service
}

func NewPredictionsUseCase(
	pairs []string,
	store domrepo.PredictionStore,
	registry domrepo.ModelRegistry,
	server *prediction.Server,
	monitor *drift.Monitor,
	jobs queue.Service,
) *PredictionsUseCase {
	return &PredictionsUseCase{pairs: pairs, store: store, registry: registry, server: server, monitor: monitor, jobs: jobs}
}

// Pairs returns the configured pairs.
func (uc *PredictionsUseCase) Pairs() []string { return append([]string(nil), uc.pairs...) }

func (uc *PredictionsUseCase) known(pair string) bool {
	for _, p := range uc.pairs {
		if p == pair {
			return true
		}
	}
	return false
}

// Latest returns ErrNotFound for unknown pairs and pairs without predictions.
func (uc *PredictionsUseCase) Latest(ctx context.Context, pair string) (models.Prediction, error) {
	if !uc.known(pair) {
		return models.Prediction{}, fmt.Errorf("pair %s: %w", pair, models.ErrNotFound)
	}
	return uc.store.LatestPrediction(ctx, pair)
}

// LatestAll returns the latest prediction of every pair that has one.
func (uc *PredictionsUseCase) LatestAll(ctx context.Context) ([]models.Prediction, error) {
	out := make([]models.Prediction, 0, len(uc.pairs))
	for _, pair := range uc.pairs {
		p, err := uc.store.LatestPrediction(ctx, pair)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type HistoryParams struct {
	Pair  string
	From  time.Time
	To    time.Time
	Limit int
}

type HistoryResult struct {
	Pair        string                    `json:"pair"`
	From        time.Time                 `json:"from"`
	To          time.Time                 `json:"to"`
	Count       int                       `json:"count"`
	Predictions []models.PredictionRecord `json:"predictions"`
}

func (uc *PredictionsUseCase) History(ctx context.Context, p HistoryParams) (*HistoryResult, error) {
	if !uc.known(p.Pair) {
		return nil, fmt.Errorf("pair %s: %w", p.Pair, models.ErrNotFound)
	}
	if p.From.After(p.To) {
		return nil, &models.ValidationError{Subject: "history range", Invalid: []string{"from"}}
	}
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 5000 {
		p.Limit = 5000
	}
	recs, err := uc.store.QueryPredictions(ctx, p.Pair, p.From, p.To, p.Limit)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{Pair: p.Pair, From: p.From, To: p.To, Count: len(recs), Predictions: recs}, nil
}

func (uc *PredictionsUseCase) Models(ctx context.Context, pair string, limit int) ([]models.ModelVersion, error) {
	return uc.registry.List(ctx, pair, limit)
}

// CurrentModel reports the version bound in this process, falling back to
// the registry pointer when nothing is loaded yet.
func (uc *PredictionsUseCase) CurrentModel(ctx context.Context, pair string) (models.ModelVersion, error) {
	if b := uc.server.Current(pair); b != nil {
		return b.Version, nil
	}
	return uc.registry.GetCurrent(ctx, pair)
}

// Promote makes id current in the registry and swaps it in locally.
func (uc *PredictionsUseCase) Promote(ctx context.Context, id string) (models.ModelVersion, error) {
	mv, err := uc.registry.Get(ctx, id)
	if err != nil {
		return mv, err
	}
	if err := uc.registry.Promote(ctx, id); err != nil {
		return mv, err
	}
	if _, err := uc.server.Load(ctx, mv); err != nil {
		return mv, fmt.Errorf("bind promoted model: %w", err)
	}
	return mv, nil
}

// Train queues a training run.
func (uc *PredictionsUseCase) Train(ctx context.Context, pair string) error {
	if !uc.known(pair) {
		return fmt.Errorf("pair %s: %w", pair, models.ErrNotFound)
	}
	return uc.jobs.Enqueue(ctx, TrainJobType, TrainPayload{Pair: pair, Reason: "api"})
}

// Drift returns the last report per series.
func (uc *PredictionsUseCase) Drift(pair string, onlyTriggered bool) []models.DriftReport {
	return uc.monitor.Reports(pair, onlyTriggered)
}
