package usecase

import (
	"context"
	"errors"
	"fmt"

	domrepo "CandleCast/internal/domain/repository"
	domsvc "CandleCast/internal/domain/service"
	applogger "CandleCast/pkg/logger"
)

// SentimentPoller fetches a snapshot per pair and publishes it to the
// sentiment topic, where the consumer stores it.
type SentimentPoller struct {
	pairs   []string
	source  domsvc.SentimentSource
	pub     domrepo.Publisher
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewSentimentPoller(pairs []string, source domsvc.SentimentSource, pub domrepo.Publisher, metrics domrepo.Metrics, l *applogger.Logger) *SentimentPoller {
	return &SentimentPoller{pairs: pairs, source: source, pub: pub, metrics: metrics, l: l}
}

// Poll fetches every pair once. A failing pair does not stop the others.
func (p *SentimentPoller) Poll(ctx context.Context) error {
	var errs []error
	for _, pair := range p.pairs {
		snap, err := p.source.Fetch(ctx, pair)
		if err != nil {
			p.metrics.RecordError("sentiment_fetch")
			errs = append(errs, err)
			continue
		}
		if err := p.pub.PublishSentiment(ctx, snap); err != nil {
			p.metrics.RecordError("sentiment_publish")
			errs = append(errs, fmt.Errorf("publish sentiment %s: %w", pair, err))
			continue
		}
		p.l.Debug("sentiment polled", applogger.String("pair", pair), applogger.Int64("ts_ms", snap.TsMs))
	}
	return errors.Join(errs...)
}
