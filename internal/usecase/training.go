package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	svcmetrics "CandleCast/internal/service/metrics"
	"CandleCast/internal/services/features"
	"CandleCast/internal/services/prediction"
	"CandleCast/internal/services/training"
	"CandleCast/pkg/cache"
	applogger "CandleCast/pkg/logger"
	"CandleCast/pkg/queue"
)

// TrainJobType is the queue message type of a training request.
const TrainJobType = "train_model"

// TrainPayload requests a training run for one pair.
type TrainPayload struct {
	Pair   string `json:"pair"`
	Reason string `json:"reason,omitempty"`
}

// TrainingConfig bounds the data a run reads.
type TrainingConfig struct {
	Duration time.Duration
	Horizon  time.Duration
	Window   time.Duration
	LockTTL  time.Duration
}

// TrainingUseCase reads history from the feature store, trains a candidate
// and swaps a promoted model into the prediction server.
type TrainingUseCase struct {
	cfg       TrainingConfig
	store     domrepo.FeatureStore
	sentiment domrepo.SentimentStore
	assembler *features.Assembler
	trainer   *training.Trainer
	server    *prediction.Server
	locks     cache.Service
	l         *applogger.Logger
	now       func() time.Time
}

func NewTrainingUseCase(
	cfg TrainingConfig,
	store domrepo.FeatureStore,
	sentiment domrepo.SentimentStore,
	assembler *features.Assembler,
	trainer *training.Trainer,
	server *prediction.Server,
	locks cache.Service,
	l *applogger.Logger,
) *TrainingUseCase {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &TrainingUseCase{
		cfg:       cfg,
		store:     store,
		sentiment: sentiment,
		assembler: assembler,
		trainer:   trainer,
		server:    server,
		locks:     locks,
		l:         l.With(applogger.String("component", "training")),
		now:       time.Now,
	}
}

// ErrTrainingInProgress means another worker holds the pair's training lock.
var ErrTrainingInProgress = errors.New("training already in progress")

// Run trains one pair. Only one run per pair is active across instances.
func (u *TrainingUseCase) Run(ctx context.Context, pair string) (training.Outcome, error) {
	lockKey := cache.Key("train", pair)
	ok, err := u.locks.TryLock(ctx, lockKey, u.cfg.LockTTL)
	if err != nil {
		return training.Outcome{}, fmt.Errorf("training lock: %w", err)
	}
	if !ok {
		return training.Outcome{}, ErrTrainingInProgress
	}
	defer func() { _ = u.locks.Unlock(context.WithoutCancel(ctx), lockKey) }()

	started := u.now()
	timer := svcmetrics.TrainingDuration.WithLabelValues(pair)
	defer func() { timer.Observe(time.Since(started).Seconds()) }()

	to := started.UTC()
	from := to.Add(-u.cfg.Window)
	sets, err := u.store.GetIndicatorSets(ctx, pair, int(u.cfg.Duration/time.Second), from, to)
	if err != nil {
		svcmetrics.TrainingRuns.WithLabelValues(pair, "failed").Inc()
		return training.Outcome{}, err
	}
	snaps, err := u.sentiment.SentimentHistory(ctx, pair, from.Add(-u.assembler.Lookback()), to)
	if err != nil {
		u.l.Warn("sentiment history unavailable, training without it", applogger.String("pair", pair), applogger.Error(err))
		snaps = nil
	}

	vectors, rejected := u.assembler.AssembleAll(sets, features.NewSentimentSeries(snaps))
	u.l.Info("training data assembled",
		applogger.String("pair", pair),
		applogger.Int("sets", len(sets)),
		applogger.Int("vectors", len(vectors)),
		applogger.Int("rejected", len(rejected)))

	out, err := u.trainer.Train(ctx, vectors, u.cfg.Horizon)
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		svcmetrics.TrainingRuns.WithLabelValues(pair, "insufficient_data").Inc()
		return out, err
	case err != nil:
		svcmetrics.TrainingRuns.WithLabelValues(pair, "failed").Inc()
		return out, err
	case !out.Promoted:
		svcmetrics.TrainingRuns.WithLabelValues(pair, "rejected").Inc()
		return out, nil
	}

	u.server.Swap(&prediction.Bound{Version: out.Version, Model: out.Model})
	svcmetrics.TrainingRuns.WithLabelValues(pair, "promoted").Inc()
	svcmetrics.ValidationMAE.WithLabelValues(pair).Set(out.Version.ValidationMetrics.MAE)
	return out, nil
}

// TrainJob runs queued training requests.
type TrainJob struct {
	uc *TrainingUseCase
	l  *applogger.Logger
}

func NewTrainJob(uc *TrainingUseCase, l *applogger.Logger) *TrainJob {
	return &TrainJob{uc: uc, l: l}
}

func (j *TrainJob) Name() string { return "model training" }

func (j *TrainJob) Type() string { return TrainJobType }

// Handle does not ask for a retry when data is short or a run is already
// active; both resolve themselves by the next scheduled run.
func (j *TrainJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[TrainPayload](payload)
	if err != nil {
		return err
	}
	if p.Pair == "" {
		return fmt.Errorf("train job: empty pair")
	}
	out, err := j.uc.Run(ctx, p.Pair)
	switch {
	case errors.Is(err, models.ErrInsufficientData), errors.Is(err, ErrTrainingInProgress):
		j.l.Warn("training skipped", applogger.String("pair", p.Pair), applogger.String("reason", p.Reason), applogger.Error(err))
		return nil
	case err != nil:
		return err
	}
	j.l.Info("training finished",
		applogger.String("pair", p.Pair),
		applogger.String("reason", p.Reason),
		applogger.Bool("promoted", out.Promoted),
		applogger.String("version", out.Version.VersionID),
		applogger.String("rejection", out.Reason))
	return nil
}

var _ queue.Job = (*TrainJob)(nil)

// EnqueueTraining schedules a run for every pair.
func EnqueueTraining(ctx context.Context, q queue.Service, pairs []string, reason string) error {
	var errs []error
	for _, pair := range pairs {
		if err := q.Enqueue(ctx, TrainJobType, TrainPayload{Pair: pair, Reason: reason}); err != nil {
			errs = append(errs, fmt.Errorf("enqueue training for %s: %w", pair, err))
		}
	}
	return errors.Join(errs...)
}
