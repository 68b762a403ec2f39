package repository

import (
	"context"
	"time"

	"CandleCast/internal/domain/models"
)

// TradeStream is an exchange connection producing trades.
type TradeStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher writes pipeline records to the message transport, keyed by pair.
type Publisher interface {
	PublishTrade(ctx context.Context, t *models.Trade) error
	PublishTrades(ctx context.Context, trades []*models.Trade) error
	PublishCandle(ctx context.Context, c models.Candle) error
	PublishIndicators(ctx context.Context, s models.IndicatorSet) error
	PublishPrediction(ctx context.Context, p models.Prediction) error
	PublishSentiment(ctx context.Context, s models.SentimentSnapshot) error
	PublishDriftReport(ctx context.Context, r models.DriftReport) error
	Close() error
}

// MarketStore persists candles and indicator sets.
type MarketStore interface {
	StoreCandles(ctx context.Context, candles []models.Candle) error
	StoreIndicators(ctx context.Context, sets []models.IndicatorSet) error
	Health(ctx context.Context) error
	Close() error
}

// PredictionStore is the append-only prediction table plus a latest-value view.
type PredictionStore interface {
	StorePredictions(ctx context.Context, records []models.PredictionRecord) error
	LatestPrediction(ctx context.Context, pair string) (models.Prediction, error)
	QueryPredictions(ctx context.Context, pair string, from, to time.Time, limit int) ([]models.PredictionRecord, error)
}

// SentimentStore keeps the latest snapshot per pair and the snapshot history.
type SentimentStore interface {
	SaveSentiment(ctx context.Context, s models.SentimentSnapshot) error
	LatestSentiment(ctx context.Context, pair string) (*models.SentimentSnapshot, error)
	SentimentHistory(ctx context.Context, pair string, from, to time.Time) ([]models.SentimentSnapshot, error)
}

// DriftAlertLog records triggered drift reports.
type DriftAlertLog interface {
	AppendDriftReports(ctx context.Context, reports []models.DriftReport) error
}

// ModelRegistry stores model metadata and artifacts.
type ModelRegistry interface {
	Register(ctx context.Context, mv models.ModelVersion, artifact []byte) (string, error)
	GetCurrent(ctx context.Context, pair string) (models.ModelVersion, error)
	Promote(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (models.ModelVersion, error)
	List(ctx context.Context, pair string, limit int) ([]models.ModelVersion, error)
	Artifact(ctx context.Context, ref string) ([]byte, error)
}

// Metrics is the streaming-path instrumentation.
type Metrics interface {
	RecordTrade(pair, result string)
	RecordCandle(pair string, durationSeconds int)
	RecordLastPrice(pair string, price float64)
	RecordPrediction(pair, result string)
	RecordFeatureRejected(field string)
	RecordQueueDepth(queue string, depth int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// Trade ingestion results used as metric labels.
const (
	TradeAccepted  = "accepted"
	TradeLate      = "late"
	TradeDuplicate = "duplicate"
	TradeInvalid   = "invalid"
)
