package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "candlecast",
			Subsystem: "model",
			Name:      "training_runs_total",
			Help:      "Training runs by outcome (promoted, rejected, insufficient_data, failed)",
		},
		[]string{"pair", "result"},
	)

	TrainingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "candlecast",
			Subsystem: "model",
			Name:      "training_duration_seconds",
			Help:      "Wall time of a training run",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"pair"},
	)

	ValidationMAE = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "candlecast",
			Subsystem: "model",
			Name:      "validation_mae",
			Help:      "Validation MAE of the promoted model",
		},
		[]string{"pair"},
	)

	DriftStatistic = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "candlecast",
			Subsystem: "drift",
			Name:      "statistic",
			Help:      "Last drift statistic per series",
		},
		[]string{"pair", "name", "method"},
	)

	DriftAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "candlecast",
			Subsystem: "drift",
			Name:      "alerts_total",
			Help:      "Triggered drift reports",
		},
		[]string{"pair", "name"},
	)

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "candlecast",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of prediction API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "candlecast",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by API endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(TrainingRuns, TrainingDuration, ValidationMAE,
			DriftStatistic, DriftAlerts, APILatency, APIErrors)
	})
}
