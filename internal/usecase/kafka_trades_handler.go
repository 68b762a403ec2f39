package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	pkgkafka "CandleCast/pkg/kafka"
)

// TradeRouter accepts trades for aggregation.
type TradeRouter interface {
	Route(ctx context.Context, t models.Trade) error
}

// KafkaTradesHandler feeds consumed trades into the stream router.
type KafkaTradesHandler struct {
	topic   string
	router  TradeRouter
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, router TradeRouter, metrics domrepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, router: router, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

// Handle marks undecodable and invalid trades permanent so they go straight
// to the DLQ.
func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Trade
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode trade: %w", err))
	}
	if t.TimestampMs > 0 {
		h.metrics.RecordLatency("ingest_e2e", time.Since(time.UnixMilli(t.TimestampMs)).Seconds())
	}
	if err := h.router.Route(ctx, t); err != nil {
		if models.CategoryOf(err) == models.Input {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)
