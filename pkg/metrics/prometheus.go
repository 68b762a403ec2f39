package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "candlecast"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trades           *prometheus.CounterVec
	candles          *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	predictions      *prometheus.CounterVec
	featuresRejected *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New registers the collectors with the default registerer.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades seen by the aggregator, by outcome (accepted, late, duplicate, invalid)",
		}, []string{"pair", "result"}),
		candles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candles_emitted_total",
			Help:      "Closed candles emitted per lane",
		}, []string{"pair", "duration"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_close",
			Help:      "Close of the last emitted candle",
		}, []string{"pair"}),
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Inference attempts by outcome",
		}, []string{"pair", "result"}),
		featuresRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_rejections_total",
			Help:      "Feature vectors rejected by validation, per failing field",
		}, []string{"field"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in internal queues",
		}, []string{"queue"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors encountered, by kind",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordTrade(pair, result string) {
	r.trades.WithLabelValues(pair, result).Inc()
}

func (r *Recorder) RecordCandle(pair string, durationSeconds int) {
	r.candles.WithLabelValues(pair, strconv.Itoa(durationSeconds)).Inc()
}

func (r *Recorder) RecordLastPrice(pair string, price float64) {
	r.lastPrice.WithLabelValues(pair).Set(price)
}

func (r *Recorder) RecordPrediction(pair, result string) {
	r.predictions.WithLabelValues(pair, result).Inc()
}

func (r *Recorder) RecordFeatureRejected(field string) {
	r.featuresRejected.WithLabelValues(field).Inc()
}

func (r *Recorder) RecordQueueDepth(queue string, depth int) {
	r.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
