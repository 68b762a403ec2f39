package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"CandleCast/internal/domain/models"
	domrepo "CandleCast/internal/domain/repository"
	applogger "CandleCast/pkg/logger"
)

// ErrPipelineStopped is returned by Submit after Stop.
var ErrPipelineStopped = errors.New("inference pipeline stopped")

// Proc runs inference for one indicator set.
type Proc interface {
	Infer(ctx context.Context, set models.IndicatorSet) error
}

// InferencePipeline sits between the lane workers and the prediction path.
// It is a bounded queue drained by a fixed worker pool; Submit blocks when the
// queue is full so a slow model slows the lanes instead of dropping candles.
type InferencePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	l       *applogger.Logger

	workers int
	size    int
	ch      chan models.IndicatorSet

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

type PipelineOption func(*InferencePipeline)

// WithWorkers sets the number of inference workers.
func WithWorkers(n int) PipelineOption {
	return func(p *InferencePipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) PipelineOption {
	return func(p *InferencePipeline) {
		if n > 0 {
			p.size = n
		}
	}
}

func NewInferencePipeline(proc Proc, metrics domrepo.Metrics, l *applogger.Logger, opts ...PipelineOption) *InferencePipeline {
	p := &InferencePipeline{
		proc:    proc,
		metrics: metrics,
		l:       l,
		workers: 4,
		size:    1024,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ch = make(chan models.IndicatorSet, p.size)
	return p
}

// Start launches the workers. Workers run until Stop closes the queue, not
// until ctx is done, so queued sets are still processed during shutdown.
func (p *InferencePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	work := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(work)
	}
}

func (p *InferencePipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for set := range p.ch {
		start := time.Now()
		if err := p.proc.Infer(ctx, set); err != nil {
			p.metrics.RecordError("inference")
			p.l.Error("inference failed",
				applogger.String("pair", set.Pair),
				applogger.Int64("window_start_ms", set.WindowStartMs),
				applogger.Error(err))
		}
		p.metrics.RecordLatency("inference", time.Since(start).Seconds())
		p.metrics.RecordQueueDepth("inference", len(p.ch))
	}
}

// Submit enqueues a set, blocking while the queue is full.
func (p *InferencePipeline) Submit(ctx context.Context, set models.IndicatorSet) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPipelineStopped
	}
	select {
	case p.ch <- set:
		p.metrics.RecordQueueDepth("inference", len(p.ch))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len is the number of queued sets.
func (p *InferencePipeline) Len() int { return len(p.ch) }

// Stop closes the queue and waits for the workers to finish what was queued.
func (p *InferencePipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.ch)
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
