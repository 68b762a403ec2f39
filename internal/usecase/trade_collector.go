package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"CandleCast/internal/domain/models"
	drepo "CandleCast/internal/domain/repository"
	applogger "CandleCast/pkg/logger"
)

// CollectorConfig controls batching and reconnect backoff.
type CollectorConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	MaxBackoff   time.Duration
}

// TradeCollector reads trades from the exchange stream and publishes them to
// the trades topic in batches.
type TradeCollector struct {
	cfg     CollectorConfig
	stream  drepo.TradeStream
	pub     drepo.Publisher
	metrics drepo.Metrics
	l       *applogger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTradeCollector creates a new TradeCollector instance.
func NewTradeCollector(cfg CollectorConfig, stream drepo.TradeStream, pub drepo.Publisher, metrics drepo.Metrics, l *applogger.Logger) *TradeCollector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	return &TradeCollector{cfg: cfg, stream: stream, pub: pub, metrics: metrics, l: l.With(applogger.String("component", "collector"))}
}

// IsConnected returns true if the exchange stream is connected.
func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TradeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(ctx)
	}()
	return nil
}

func (c *TradeCollector) loop(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		trCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, trCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.l.Warn("exchange stream lost, reconnecting", applogger.Error(err))
		for ctx.Err() == nil {
			if err := c.stream.Reconnect(ctx); err == nil {
				backoff = time.Second
				break
			} else {
				c.l.Error("reconnect failed", applogger.Duration("backoff", backoff), applogger.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}
	}
}

// consume batches trades until the stream fails or ctx ends, publishing
// whatever is buffered before returning.
func (c *TradeCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) error {
	batch := make([]*models.Trade, 0, c.cfg.BatchSize)
	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := c.pub.PublishTrades(context.WithoutCancel(ctx), batch); err != nil {
			c.metrics.RecordError("publish_trades")
			c.l.Error("publish trades", applogger.Int("count", len(batch)), applogger.Error(err))
		} else {
			c.metrics.RecordLatency("publish_trades", time.Since(start).Seconds())
		}
		batch = batch[:0]
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
			errCh = nil
		case t, ok := <-trCh:
			if !ok {
				return errStreamClosed
			}
			batch = append(batch, t)
			if len(batch) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Shutdown stops reading, publishes what is buffered and closes the stream.
func (c *TradeCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return c.stream.Close()
}

var errStreamClosed = errors.New("exchange stream closed")
