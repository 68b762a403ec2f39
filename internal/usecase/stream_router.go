package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	domsvc "CandleCast/internal/domain/service"
	"CandleCast/internal/services/aggregator"
	"CandleCast/internal/services/indicators"
	applogger "CandleCast/pkg/logger"
)

// ErrRouterStopped is returned by Route after Stop.
var ErrRouterStopped = errors.New("stream router stopped")

// RouterConfig describes the lanes of a router.
type RouterConfig struct {
	Pairs         []string
	Durations     []time.Duration
	Lateness      time.Duration
	FlushInterval time.Duration
	Buffer        int
	Indicators    indicators.Config
}

type laneWorker struct {
	lane    *aggregator.Lane
	engine  *indicators.Engine
	inbox   chan models.Trade
	primary bool
}

// StreamRouter fans trades out to one worker per (pair, duration) lane. Each
// worker owns its lane and indicator state, so no state is shared between
// goroutines.
type StreamRouter struct {
	cfg     RouterConfig
	sink    domsvc.CandleSink
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time

	lanes map[string][]*laneWorker

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewStreamRouter(cfg RouterConfig, sink domsvc.CandleSink, metrics domrepo.Metrics, l *applogger.Logger) *StreamRouter {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	r := &StreamRouter{
		cfg:     cfg,
		sink:    sink,
		metrics: metrics,
		l:       l.With(applogger.String("component", "stream_router")),
		now:     time.Now,
		lanes:   make(map[string][]*laneWorker, len(cfg.Pairs)),
	}
	for _, pair := range cfg.Pairs {
		for i, d := range cfg.Durations {
			r.lanes[pair] = append(r.lanes[pair], &laneWorker{
				lane:    aggregator.NewLane(pair, d, cfg.Lateness),
				engine:  indicators.NewEngine(pair, int(d/time.Second), cfg.Indicators),
				inbox:   make(chan models.Trade, cfg.Buffer),
				primary: i == 0,
			})
		}
	}
	return r
}

// Start launches one goroutine per lane.
func (r *StreamRouter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	work := context.WithoutCancel(ctx)
	for _, ws := range r.lanes {
		for _, w := range ws {
			r.wg.Add(1)
			go r.run(work, w)
		}
	}
	r.l.Info("stream router started", applogger.Int("pairs", len(r.lanes)), applogger.Int("durations", len(r.cfg.Durations)))
}

// Route validates a trade and hands it to every lane of its pair, blocking
// while a lane inbox is full.
func (r *StreamRouter) Route(ctx context.Context, t models.Trade) error {
	if err := t.Validate(); err != nil {
		r.metrics.RecordTrade(t.Pair, domrepo.TradeInvalid)
		return err
	}
	ws, ok := r.lanes[t.Pair]
	if !ok {
		r.metrics.RecordTrade(t.Pair, domrepo.TradeInvalid)
		return &models.ValidationError{Subject: fmt.Sprintf("trade %s@%d", t.Pair, t.TimestampMs), Invalid: []string{"pair"}}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrRouterStopped
	}
	for _, w := range ws {
		select {
		case w.inbox <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *StreamRouter) run(ctx context.Context, w *laneWorker) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case t, ok := <-w.inbox:
			if !ok {
				r.emit(ctx, w, w.lane.Drain())
				return
			}
			candles, res := w.lane.Ingest(t)
			if w.primary {
				r.metrics.RecordTrade(t.Pair, res.String())
			}
			r.emit(ctx, w, candles)
		case <-ticker.C:
			r.emit(ctx, w, w.lane.FlushDue(r.now()))
			r.metrics.RecordQueueDepth("lane_"+w.lane.Pair(), len(w.inbox))
		}
	}
}

func (r *StreamRouter) emit(ctx context.Context, w *laneWorker, candles []models.Candle) {
	for _, c := range candles {
		set, err := w.engine.OnCandle(c)
		if err != nil {
			r.metrics.RecordError("indicators")
			r.l.Warn("indicator update rejected",
				applogger.String("pair", c.Pair),
				applogger.Int64("window_start_ms", c.WindowStartMs),
				applogger.Error(err))
			continue
		}
		if err := r.sink.OnCandle(ctx, c, set); err != nil {
			r.metrics.RecordError("candle_sink")
			r.l.Error("candle sink failed",
				applogger.String("pair", c.Pair),
				applogger.Int("duration_seconds", c.DurationSeconds),
				applogger.Int64("window_start_ms", c.WindowStartMs),
				applogger.Error(err))
		}
	}
}

// Stop closes every inbox; workers finish queued trades, drain their open
// windows and exit.
func (r *StreamRouter) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	for _, ws := range r.lanes {
		for _, w := range ws {
			close(w.inbox)
		}
	}
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.l.Info("stream router drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stream router drain: %w", ctx.Err())
	}
}
