package repository

import (
	"context"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
	pkgkafka "CandleCast/pkg/kafka"
)

// Topics names every topic the publisher writes to.
type Topics struct {
	Trades     string
	Candles    string
	Indicators string
	Prediction string
	Sentiment  string
	Drift      string
}

// KafkaPublisher writes pipeline records keyed by pair, so every pair keeps
// its order within one partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topics   Topics
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topics Topics) repository.Publisher {
	return &KafkaPublisher{producer: producer, topics: topics}
}

func (p *KafkaPublisher) PublishTrade(ctx context.Context, t *models.Trade) error {
	return p.producer.Publish(ctx, p.topics.Trades, []byte(t.Pair), t)
}

func (p *KafkaPublisher) PublishTrades(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(trades))
	for _, t := range trades {
		msgs = append(msgs, pkgkafka.Message{Key: []byte(t.Pair), Value: t})
	}
	return p.producer.PublishBatch(ctx, p.topics.Trades, msgs)
}

func (p *KafkaPublisher) PublishCandle(ctx context.Context, c models.Candle) error {
	return p.producer.Publish(ctx, p.topics.Candles, []byte(c.Pair), c)
}

func (p *KafkaPublisher) PublishIndicators(ctx context.Context, s models.IndicatorSet) error {
	return p.producer.Publish(ctx, p.topics.Indicators, []byte(s.Candle.Pair), s)
}

func (p *KafkaPublisher) PublishPrediction(ctx context.Context, pr models.Prediction) error {
	return p.producer.Publish(ctx, p.topics.Prediction, []byte(pr.Pair), pr)
}

func (p *KafkaPublisher) PublishSentiment(ctx context.Context, s models.SentimentSnapshot) error {
	return p.producer.Publish(ctx, p.topics.Sentiment, []byte(s.Pair), s)
}

func (p *KafkaPublisher) PublishDriftReport(ctx context.Context, r models.DriftReport) error {
	return p.producer.Publish(ctx, p.topics.Drift, []byte(r.Pair), r)
}

// Close closes the underlying producer.
func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
