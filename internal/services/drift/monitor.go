// Package drift compares recent feature and prediction distributions with a
// baseline and raises alerts on sustained divergence.
package drift

import (
	"sort"
	"sync"
	"time"

	"CandleCast/internal/domain/models"
)

// Config controls drift evaluation.
type Config struct {
	Method         string
	Threshold      float64
	Consecutive    int
	Bins           int
	MAEDegradation float64
	// DatasetShare is the fraction of drifted features above which the
	// dataset as a whole counts as drifted.
	DatasetShare float64
}

// Series names of the non-feature checks.
const (
	PredictionSeries   = "predicted_price"
	DatasetShareSeries = "dataset_drift_share"
	PerformanceSeries  = "performance_mae"
)

// Monitor keeps a consecutive-breach counter per (pair, name). A report only
// triggers after Consecutive breaching checks in a row.
type Monitor struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	breaches map[string]int
	last     map[string]models.DriftReport
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Method != models.DriftKS {
		cfg.Method = models.DriftPSI
	}
	if cfg.Consecutive < 1 {
		cfg.Consecutive = 1
	}
	if cfg.DatasetShare <= 0 || cfg.DatasetShare >= 1 {
		cfg.DatasetShare = 0.1
	}
	return &Monitor{
		cfg:      cfg,
		now:      time.Now,
		breaches: make(map[string]int),
		last:     make(map[string]models.DriftReport),
	}
}

// Statistic computes the configured distance between two samples.
func (m *Monitor) Statistic(recent, baseline []float64) float64 {
	if m.cfg.Method == models.DriftKS {
		return KS(recent, baseline)
	}
	return PSI(recent, baseline, m.cfg.Bins)
}

// Check evaluates every series present in both windows.
func (m *Monitor) Check(pair string, recent, baseline map[string][]float64, w models.DriftWindow) []models.DriftReport {
	names := make([]string, 0, len(recent))
	for name, r := range recent {
		if b, ok := baseline[name]; ok && len(r) > 0 && len(b) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	reports := make([]models.DriftReport, 0, len(names))
	for _, name := range names {
		win := w
		win.RecentSamples, win.BaselineSamples = len(recent[name]), len(baseline[name])
		stat := m.Statistic(recent[name], baseline[name])
		reports = append(reports, m.record(pair, name, m.cfg.Method, stat, m.cfg.Threshold, win))
	}
	return reports
}

// CheckShare summarizes feature reports of one check as the share of series
// whose statistic exceeded the threshold this time.
func (m *Monitor) CheckShare(pair string, features []models.DriftReport, w models.DriftWindow) models.DriftReport {
	var drifted int
	for _, r := range features {
		if r.Statistic > r.Threshold {
			drifted++
		}
	}
	var share float64
	if len(features) > 0 {
		share = float64(drifted) / float64(len(features))
	}
	return m.record(pair, DatasetShareSeries, models.DriftShare, share, m.cfg.DatasetShare, w)
}

// CheckPerformance compares realized MAE against the model's validation MAE.
func (m *Monitor) CheckPerformance(pair string, recentMAE, referenceMAE float64, w models.DriftWindow) models.DriftReport {
	var increase float64
	if referenceMAE > 0 {
		increase = (recentMAE - referenceMAE) / referenceMAE
	}
	return m.record(pair, PerformanceSeries, models.DriftMAE, increase, m.cfg.MAEDegradation, w)
}

func (m *Monitor) record(pair, name, method string, stat, threshold float64, w models.DriftWindow) models.DriftReport {
	key := pair + "/" + name
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	if stat > threshold {
		n = m.breaches[key] + 1
	}
	m.breaches[key] = n
	r := models.DriftReport{
		Pair:      pair,
		Name:      name,
		Method:    method,
		Statistic: stat,
		Threshold: threshold,
		Breaches:  n,
		Triggered: n >= m.cfg.Consecutive,
		Window:    w,
		CheckedAt: m.now().UTC(),
	}
	m.last[key] = r
	return r
}

// Reports returns the latest report per series, optionally for one pair or
// only the triggered ones.
func (m *Monitor) Reports(pair string, onlyTriggered bool) []models.DriftReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DriftReport, 0, len(m.last))
	for _, r := range m.last {
		if pair != "" && r.Pair != pair {
			continue
		}
		if onlyTriggered && !r.Triggered {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pair != out[j].Pair {
			return out[i].Pair < out[j].Pair
		}
		return out[i].Name < out[j].Name
	})
	return out
}
