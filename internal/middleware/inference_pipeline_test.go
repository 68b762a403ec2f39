package middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
	applogger "CandleCast/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordTrade(string, string)      {}
func (nopMetrics) RecordCandle(string, int)        {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordPrediction(string, string) {}
func (nopMetrics) RecordFeatureRejected(string)    {}
func (nopMetrics) RecordQueueDepth(string, int)    {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}

type blockingProc struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []int64
	calls   atomic.Int32
}

func (b *blockingProc) Infer(_ context.Context, set models.IndicatorSet) error {
	b.calls.Add(1)
	<-b.release
	b.mu.Lock()
	b.seen = append(b.seen, set.WindowStartMs)
	b.mu.Unlock()
	return nil
}

func setAt(ms int64) models.IndicatorSet {
	return models.IndicatorSet{Candle: models.Candle{Pair: "BTCUSDT", WindowStartMs: ms}}
}

func TestSubmitBlocksWhenFull(t *testing.T) {
	proc := &blockingProc{release: make(chan struct{})}
	p := NewInferencePipeline(proc, nopMetrics{}, applogger.NewNop(), WithWorkers(1), WithQueueSize(1))
	p.Start(context.Background())

	require.NoError(t, p.Submit(context.Background(), setAt(1)))
	require.Eventually(t, func() bool { return proc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Submit(context.Background(), setAt(2)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, setAt(3))
	assert.ErrorIs(t, err, context.DeadlineExceeded, "full queue applies backpressure")

	close(proc.release)
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, []int64{1, 2}, proc.seen)
}

func TestStopDrainsQueue(t *testing.T) {
	proc := &blockingProc{release: make(chan struct{})}
	close(proc.release)
	p := NewInferencePipeline(proc, nopMetrics{}, applogger.NewNop(), WithWorkers(2), WithQueueSize(16))
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, p.Submit(ctx, setAt(i)))
	}
	cancel()

	require.NoError(t, p.Stop(context.Background()))
	assert.Len(t, proc.seen, 10)
	assert.ErrorIs(t, p.Submit(context.Background(), setAt(11)), ErrPipelineStopped)
}
