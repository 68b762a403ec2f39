package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	svcmetrics "CandleCast/internal/service/metrics"
	"CandleCast/internal/services/drift"
	"CandleCast/internal/services/features"
	"CandleCast/internal/services/prediction"
	applogger "CandleCast/pkg/logger"
	"CandleCast/pkg/queue"
)

// DriftConfig sets the comparison windows.
type DriftConfig struct {
	Duration       time.Duration
	Window         time.Duration
	RetrainOnAlert bool
}

// DriftUseCase compares recent feature and prediction distributions and
// realized error with the data the current model was trained on.
type DriftUseCase struct {
	cfg       DriftConfig
	store     domrepo.FeatureStore
	assembler *features.Assembler
	monitor   *drift.Monitor
	server    *prediction.Server
	alerts    domrepo.DriftAlertLog
	pub       domrepo.Publisher
	jobs      queue.Service
	l         *applogger.Logger
	now       func() time.Time
}

func NewDriftUseCase(
	cfg DriftConfig,
	store domrepo.FeatureStore,
	assembler *features.Assembler,
	monitor *drift.Monitor,
	server *prediction.Server,
	alerts domrepo.DriftAlertLog,
	pub domrepo.Publisher,
	jobs queue.Service,
	l *applogger.Logger,
) *DriftUseCase {
	return &DriftUseCase{
		cfg:       cfg,
		store:     store,
		assembler: assembler,
		monitor:   monitor,
		server:    server,
		alerts:    alerts,
		pub:       pub,
		jobs:      jobs,
		l:         l.With(applogger.String("component", "drift")),
		now:       time.Now,
	}
}

// CheckAll runs Check for every pair and keeps going past failures.
func (u *DriftUseCase) CheckAll(ctx context.Context, pairs []string) error {
	var errs []error
	for _, pair := range pairs {
		if _, err := u.Check(ctx, pair); err != nil {
			errs = append(errs, fmt.Errorf("drift %s: %w", pair, err))
		}
	}
	return errors.Join(errs...)
}

// Check evaluates one pair. The baseline is the current model's training
// window, or the window before the recent one when no model is bound.
func (u *DriftUseCase) Check(ctx context.Context, pair string) ([]models.DriftReport, error) {
	now := u.now().UTC()
	durSec := int(u.cfg.Duration / time.Second)
	win := models.DriftWindow{
		RecentFromMs:   now.Add(-u.cfg.Window).UnixMilli(),
		RecentToMs:     now.UnixMilli(),
		BaselineFromMs: now.Add(-2 * u.cfg.Window).UnixMilli(),
		BaselineToMs:   now.Add(-u.cfg.Window).UnixMilli(),
	}
	names := u.assembler.Required()
	bound := u.server.Current(pair)
	if bound != nil {
		names = bound.Version.FeatureNames
		if tw := bound.Version.TrainingWindow; tw.ToMs > tw.FromMs {
			win.BaselineFromMs, win.BaselineToMs = tw.FromMs, tw.ToMs+1
		}
	}

	recentSets, err := u.store.GetIndicatorSets(ctx, pair, durSec, time.UnixMilli(win.RecentFromMs), time.UnixMilli(win.RecentToMs))
	if err != nil {
		return nil, err
	}
	baseSets, err := u.store.GetIndicatorSets(ctx, pair, durSec, time.UnixMilli(win.BaselineFromMs), time.UnixMilli(win.BaselineToMs))
	if err != nil {
		return nil, err
	}
	recent, _ := u.assembler.AssembleAll(recentSets, nil)
	baseline, _ := u.assembler.AssembleAll(baseSets, nil)

	reports := u.monitor.Check(pair, columns(recent, names), columns(baseline, names), win)
	if len(reports) > 0 {
		reports = append(reports, u.monitor.CheckShare(pair, reports, win))
	}

	recentPreds, err := u.store.GetPredictionFeatures(ctx, pair, time.UnixMilli(win.RecentFromMs), time.UnixMilli(win.RecentToMs))
	if err != nil {
		u.l.Warn("predictions unavailable", applogger.String("pair", pair), applogger.Error(err))
		recentPreds = nil
	}
	if len(recentPreds) > 0 {
		if r, ok, err := u.predictionDrift(ctx, pair, recentPreds, win); err != nil {
			u.l.Warn("prediction baseline unavailable", applogger.String("pair", pair), applogger.Error(err))
		} else if ok {
			reports = append(reports, r)
		}
	}

	if bound != nil {
		if mae, n := realizedMAE(recentSets, recentPreds, win); n > 0 {
			pw := win
			pw.RecentSamples = n
			pw.BaselineSamples = bound.Version.ValidationMetrics.Samples
			reports = append(reports, u.monitor.CheckPerformance(pair, mae, bound.Version.ValidationMetrics.MAE, pw))
		}
	}

	var triggered []models.DriftReport
	for _, r := range reports {
		svcmetrics.DriftStatistic.WithLabelValues(pair, r.Name, r.Method).Set(r.Statistic)
		if r.Triggered {
			triggered = append(triggered, r)
			svcmetrics.DriftAlerts.WithLabelValues(pair, r.Name).Inc()
		}
	}
	if len(triggered) == 0 {
		return reports, nil
	}

	u.l.Warn("drift detected", applogger.String("pair", pair), applogger.Int("alerts", len(triggered)))
	var errs []error
	if err := u.alerts.AppendDriftReports(ctx, triggered); err != nil {
		errs = append(errs, err)
	}
	for _, r := range triggered {
		if err := u.pub.PublishDriftReport(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("publish drift report: %w", err))
		}
	}
	if u.cfg.RetrainOnAlert && u.jobs != nil {
		if err := EnqueueTraining(ctx, u.jobs, []string{pair}, "drift"); err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// predictionDrift compares the predicted price distribution of the recent
// window with the predictions stored for the baseline window. When none were
// stored then, such as for a training window that predates the model, the
// window just before the recent one is used.
func (u *DriftUseCase) predictionDrift(ctx context.Context, pair string, recent []models.PredictionRecord, win models.DriftWindow) (models.DriftReport, bool, error) {
	pw := win
	base, err := u.store.GetPredictionFeatures(ctx, pair, time.UnixMilli(pw.BaselineFromMs), time.UnixMilli(pw.BaselineToMs))
	if err != nil {
		return models.DriftReport{}, false, err
	}
	if len(base) == 0 {
		pw.BaselineFromMs, pw.BaselineToMs = win.RecentFromMs-u.cfg.Window.Milliseconds(), win.RecentFromMs
		if base, err = u.store.GetPredictionFeatures(ctx, pair, time.UnixMilli(pw.BaselineFromMs), time.UnixMilli(pw.BaselineToMs)); err != nil {
			return models.DriftReport{}, false, err
		}
	}
	reports := u.monitor.Check(pair,
		map[string][]float64{drift.PredictionSeries: predictedPrices(recent)},
		map[string][]float64{drift.PredictionSeries: predictedPrices(base)},
		pw)
	if len(reports) == 0 {
		return models.DriftReport{}, false, nil
	}
	return reports[0], true, nil
}

func predictedPrices(recs []models.PredictionRecord) []float64 {
	out := make([]float64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.PredictedPrice)
	}
	return out
}

// realizedMAE matches stored predictions whose target time has passed with
// the close of the window ending at that time.
func realizedMAE(sets []models.IndicatorSet, preds []models.PredictionRecord, win models.DriftWindow) (float64, int) {
	closes := make(map[int64]float64, len(sets))
	for _, s := range sets {
		closes[s.WindowEndMs] = s.Close
	}
	var sum float64
	n := 0
	for _, p := range preds {
		actual, ok := closes[p.PredictedTsMs]
		if !ok || p.PredictedTsMs > win.RecentToMs {
			continue
		}
		sum += math.Abs(p.PredictedPrice - actual)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func columns(vectors []models.FeatureVector, names []string) map[string][]float64 {
	out := make(map[string][]float64, len(names))
	for _, v := range vectors {
		for _, name := range names {
			if x, ok := v.Fields[name]; ok {
				out[name] = append(out[name], x)
			}
		}
	}
	return out
}
