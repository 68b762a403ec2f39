// Package training fits, evaluates and registers prediction models.
package training

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
	"CandleCast/internal/services/model"
	applogger "CandleCast/pkg/logger"
)

// Config controls a training run.
type Config struct {
	Features           []string
	MinSamples         int
	ValidationRatio    float64
	Trials             int
	Folds              int
	Seed               int64
	PromotionTolerance float64
	BaselineTolerance  float64
}

// Outcome reports what a run produced.
type Outcome struct {
	Version  models.ModelVersion
	Model    *model.Model
	Promoted bool
	Reason   string
}

// Trainer runs the batch fit. It only reads the vectors it is given and the
// registry, never live stream state.
type Trainer struct {
	cfg      Config
	registry repository.ModelRegistry
	l        *applogger.Logger
	now      func() time.Time
}

func NewTrainer(cfg Config, registry repository.ModelRegistry, l *applogger.Logger) *Trainer {
	if cfg.ValidationRatio <= 0 || cfg.ValidationRatio >= 1 {
		cfg.ValidationRatio = 0.2
	}
	return &Trainer{cfg: cfg, registry: registry, l: l, now: time.Now}
}

type sample struct {
	row    []float64
	close  float64
	future float64
	tsMs   int64
}

// buildSamples pairs each vector with the close horizon later. Vectors whose
// target window is missing are skipped.
func buildSamples(vectors []models.FeatureVector, features []string, horizon time.Duration) []sample {
	byStart := make(map[int64]float64, len(vectors))
	for _, v := range vectors {
		byStart[v.WindowStartMs] = v.Close
	}
	ordered := append([]models.FeatureVector(nil), vectors...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].WindowStartMs < ordered[j].WindowStartMs })

	shift := horizon.Milliseconds()
	out := make([]sample, 0, len(ordered))
	for _, v := range ordered {
		future, ok := byStart[v.WindowStartMs+shift]
		if !ok {
			continue
		}
		row, err := v.Row(features)
		if err != nil {
			continue
		}
		out = append(out, sample{row: row, close: v.Close, future: future, tsMs: v.WindowStartMs})
	}
	return out
}

// splitSamples splits time-ordered samples into training and validation sets.
// Training rows whose label time reaches the first validation window are
// purged, so no training target is drawn from the validation period.
func splitSamples(samples []sample, validationRatio float64, horizon time.Duration) (train, valid []sample) {
	split := int(float64(len(samples)) * (1 - validationRatio))
	if split < 1 || split >= len(samples) {
		return nil, nil
	}
	valid = samples[split:]
	cutoff := valid[0].tsMs - horizon.Milliseconds()
	end := sort.Search(split, func(i int) bool { return samples[i].tsMs >= cutoff })
	return samples[:end], valid
}

// horizonRows is the number of candles a label looks ahead.
func horizonRows(horizon time.Duration, durationSeconds int) int {
	if durationSeconds <= 0 {
		return 0
	}
	step := time.Duration(durationSeconds) * time.Second
	return int((horizon + step - 1) / step)
}

// Train fits a candidate on vectors of one pair and registers it when it beats
// the baseline and the currently promoted model within tolerance.
func (t *Trainer) Train(ctx context.Context, vectors []models.FeatureVector, horizon time.Duration) (Outcome, error) {
	if len(vectors) == 0 {
		return Outcome{}, &models.InsufficientDataError{Need: t.cfg.MinSamples}
	}
	pair, duration := vectors[0].Pair, vectors[0].DurationSeconds
	for _, v := range vectors {
		if v.Pair != pair || v.DurationSeconds != duration {
			return Outcome{}, fmt.Errorf("training set mixes %s/%ds with %s/%ds: %w",
				pair, duration, v.Pair, v.DurationSeconds, models.ErrValidation)
		}
	}

	samples := buildSamples(vectors, t.cfg.Features, horizon)
	if len(samples) < t.cfg.MinSamples || len(samples) < 2 {
		return Outcome{}, &models.InsufficientDataError{Pair: pair, Have: len(samples), Need: t.cfg.MinSamples}
	}

	train, valid := splitSamples(samples, t.cfg.ValidationRatio, horizon)
	if len(train) == 0 || len(valid) == 0 {
		return Outcome{}, &models.InsufficientDataError{Pair: pair, Have: len(samples), Need: t.cfg.MinSamples}
	}
	xTrain, dyTrain := matrix(train)

	started := time.Now()
	best, trials, err := model.Search(ctx, t.cfg.Features, xTrain, dyTrain, model.SearchConfig{
		Trials: t.cfg.Trials, Folds: t.cfg.Folds, Seed: t.cfg.Seed,
		Gap: horizonRows(horizon, duration),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("hyperparameter search for %s: %w", pair, err)
	}
	candidate, err := model.Fit(t.cfg.Features, xTrain, dyTrain, best.Params)
	if err != nil {
		return Outcome{}, fmt.Errorf("fit %s: %w", pair, err)
	}

	pred, actual, baseline := make([]float64, len(valid)), make([]float64, len(valid)), make([]float64, len(valid))
	for i, s := range valid {
		pred[i] = candidate.PredictPrice(s.close, s.row)
		actual[i] = s.future
		baseline[i] = s.close
	}
	scores := model.Evaluate(pred, actual)
	baselineMAE := model.MAE(baseline, actual)

	mv := models.ModelVersion{
		VersionID:       uuid.NewString(),
		Name:            models.ModelName(pair, duration, int(horizon.Seconds())),
		Pair:            pair,
		DurationSeconds: duration,
		HorizonSeconds:  int(horizon.Seconds()),
		TrainedAt:       t.now().UTC(),
		Hyperparameters: best.Params,
		FeatureNames:    append([]string(nil), t.cfg.Features...),
		TrainingWindow: models.TrainingWindow{
			FromMs:  samples[0].tsMs,
			ToMs:    samples[len(samples)-1].tsMs,
			Samples: len(samples),
		},
		ValidationMetrics: models.ValidationMetrics{
			RMSE:        scores.RMSE,
			MAE:         scores.MAE,
			R2:          scores.R2,
			BaselineMAE: baselineMAE,
			ResidualStd: scores.ResidualStd,
			Samples:     scores.N,
		},
	}
	out := Outcome{Version: mv, Model: candidate}

	t.l.Info("candidate trained",
		applogger.String("pair", pair),
		applogger.String("name", mv.Name),
		applogger.Int("samples", len(samples)),
		applogger.Int("trials", len(trials)),
		applogger.Any("mae", scores.MAE),
		applogger.Any("baseline_mae", baselineMAE),
		applogger.Any("r2", scores.R2),
		applogger.Duration("duration_ms", time.Since(started)),
	)

	if reason := t.gate(ctx, mv, valid, actual); reason != "" {
		out.Reason = reason
		t.l.Warn("candidate not promoted",
			applogger.String("pair", pair),
			applogger.String("version", mv.VersionID),
			applogger.String("reason", reason),
		)
		return out, nil
	}

	artifact, err := candidate.Marshal()
	if err != nil {
		return out, fmt.Errorf("encode model %s: %w", mv.VersionID, err)
	}
	id, err := t.registry.Register(ctx, mv, artifact)
	if err != nil {
		return out, fmt.Errorf("register model %s: %w", mv.VersionID, err)
	}
	if err := t.registry.Promote(ctx, id); err != nil {
		return out, fmt.Errorf("promote model %s: %w", id, err)
	}
	registered, err := t.registry.Get(ctx, id)
	if err != nil {
		return out, fmt.Errorf("reload model %s: %w", id, err)
	}
	out.Version = registered
	out.Promoted = true
	return out, nil
}

// gate returns a non-empty reason when the candidate must not be promoted.
func (t *Trainer) gate(ctx context.Context, mv models.ModelVersion, valid []sample, actual []float64) string {
	vm := mv.ValidationMetrics
	if vm.MAE > vm.BaselineMAE*(1+t.cfg.BaselineTolerance) {
		return fmt.Sprintf("mae %.6f worse than baseline %.6f beyond tolerance %.2f", vm.MAE, vm.BaselineMAE, t.cfg.BaselineTolerance)
	}

	current, err := t.registry.GetCurrent(ctx, mv.Pair)
	if errors.Is(err, models.ErrNotFound) {
		return ""
	}
	if err != nil {
		return fmt.Sprintf("current model unavailable: %v", err)
	}

	currentMAE := current.ValidationMetrics.MAE
	if blob, err := t.registry.Artifact(ctx, current.ArtifactReference); err == nil {
		if m, err := model.Unmarshal(blob); err == nil && sameFeatures(m.Features, mv.FeatureNames) {
			pred := make([]float64, len(valid))
			for i, s := range valid {
				pred[i] = m.PredictPrice(s.close, s.row)
			}
			currentMAE = model.MAE(pred, actual)
		}
	}
	if vm.MAE > currentMAE*(1+t.cfg.PromotionTolerance) {
		return fmt.Sprintf("mae %.6f worse than current %s (%.6f) beyond tolerance %.2f",
			vm.MAE, current.VersionID, currentMAE, t.cfg.PromotionTolerance)
	}
	return ""
}

func sameFeatures(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func matrix(samples []sample) ([][]float64, []float64) {
	x := make([][]float64, len(samples))
	dy := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.row
		dy[i] = s.future - s.close
	}
	return x, dy
}
