package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/services/indicators"
	applogger "CandleCast/pkg/logger"
)

type recordingSink struct {
	mu      sync.Mutex
	candles []models.Candle
	sets    []models.IndicatorSet
}

func (s *recordingSink) OnCandle(_ context.Context, c models.Candle, set models.IndicatorSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append(s.candles, c)
	s.sets = append(s.sets, set)
	return nil
}

func (s *recordingSink) snapshot() []models.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Candle(nil), s.candles...)
}

func newTestRouter(sink *recordingSink, durations ...time.Duration) *StreamRouter {
	return NewStreamRouter(RouterConfig{
		Pairs:         []string{"BTCUSDT"},
		Durations:     durations,
		Lateness:      0,
		FlushInterval: time.Hour,
		Buffer:        16,
		Indicators:    indicators.DefaultConfig(),
	}, sink, newRecorder(), applogger.NewNop())
}

func trade(ts int64, price float64) models.Trade {
	return models.Trade{Pair: "BTCUSDT", Price: price, Quantity: 1, TimestampMs: ts}
}

func TestRouterEmitsClosedWindowsInOrder(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRouter(sink, time.Minute)
	ctx := context.Background()
	r.Start(ctx)

	require.NoError(t, r.Route(ctx, trade(1_000, 10)))
	require.NoError(t, r.Route(ctx, trade(30_000, 12)))
	require.NoError(t, r.Route(ctx, trade(59_999, 11)))
	require.NoError(t, r.Route(ctx, trade(61_000, 13)))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	c := sink.snapshot()[0]
	assert.Equal(t, models.Candle{Pair: "BTCUSDT", Open: 10, High: 12, Low: 10, Close: 11, Volume: 3,
		WindowStartMs: 0, WindowEndMs: 60_000, DurationSeconds: 60}, c)

	require.NoError(t, r.Stop(ctx))
	got := sink.snapshot()
	require.Len(t, got, 2, "stop drains the open window")
	assert.Equal(t, int64(60_000), got[1].WindowStartMs)
	assert.Equal(t, got[1], sink.sets[1].Candle)

	assert.ErrorIs(t, r.Route(ctx, trade(200_000, 1)), ErrRouterStopped)
}

func TestRouterFeedsEveryDuration(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRouter(sink, time.Minute, 5*time.Minute)
	ctx := context.Background()
	r.Start(ctx)

	require.NoError(t, r.Route(ctx, trade(1_000, 10)))
	require.NoError(t, r.Stop(ctx))

	durations := map[int]bool{}
	for _, c := range sink.snapshot() {
		durations[c.DurationSeconds] = true
	}
	assert.Equal(t, map[int]bool{60: true, 300: true}, durations)
}

func TestRouterRejectsInvalidAndUnknownPairs(t *testing.T) {
	r := newTestRouter(&recordingSink{}, time.Minute)
	ctx := context.Background()

	err := r.Route(ctx, models.Trade{Pair: "BTCUSDT", Price: -1, Quantity: 1, TimestampMs: 1})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = r.Route(ctx, models.Trade{Pair: "DOGEUSDT", Price: 1, Quantity: 1, TimestampMs: 1})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, models.Input, models.CategoryOf(err))
}
