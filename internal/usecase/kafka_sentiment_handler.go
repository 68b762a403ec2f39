package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	pkgkafka "CandleCast/pkg/kafka"
)

// KafkaSentimentHandler stores consumed sentiment snapshots.
type KafkaSentimentHandler struct {
	topic   string
	store   domrepo.SentimentStore
	metrics domrepo.Metrics
}

func NewKafkaSentimentHandler(topic string, store domrepo.SentimentStore, metrics domrepo.Metrics) *KafkaSentimentHandler {
	return &KafkaSentimentHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaSentimentHandler) Topic() string { return h.topic }

func (h *KafkaSentimentHandler) Handle(ctx context.Context, b []byte) error {
	var s models.SentimentSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode sentiment: %w", err))
	}
	s.Pair = strings.ToUpper(s.Pair)
	if s.Pair == "" || s.TsMs <= 0 {
		return pkgkafka.Permanent(&models.ValidationError{
			Subject: fmt.Sprintf("sentiment %s@%d", s.Pair, s.TsMs),
			Invalid: []string{"pair", "ts_ms"},
		})
	}
	if err := h.store.SaveSentiment(ctx, s); err != nil {
		h.metrics.RecordError("sentiment_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSentimentHandler)(nil)
