package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (h *stubHandler) Topic() string { return "trades" }

func (h *stubHandler) Handle(context.Context, []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

type stubWriter struct {
	msgs []kafka.Message
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error { return nil }

func testConsumer(workers int) *Consumer {
	return newConsumer(&ConsumerConfig{
		WorkerCount: workers,
		BufferSize:  4,
		RetryMax:    2,
		BackoffMin:  time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	})
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	c := testConsumer(1)
	h := &stubHandler{errs: []error{errors.New("broker hiccup"), errors.New("again")}}

	err := c.process(h, &message{topic: "trades", km: kafka.Message{Value: []byte("{}")}})
	require.NoError(t, err)
	assert.Equal(t, 3, h.calls)
}

func TestProcessStopsOnPermanentError(t *testing.T) {
	c := testConsumer(1)
	h := &stubHandler{errs: []error{Permanent(errors.New("bad payload"))}}

	err := c.process(h, &message{topic: "trades"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, h.calls)
}

func TestProcessGivesUpAfterRetryMax(t *testing.T) {
	c := testConsumer(1)
	boom := errors.New("down")
	h := &stubHandler{errs: []error{boom, boom, boom, boom}}

	err := c.process(h, &message{topic: "trades"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, h.calls)
}

func TestBeforeHookErrorRejects(t *testing.T) {
	c := testConsumer(1)
	c.WithConsumerHook(HookFuncs{Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
		return ctx, km, d, errors.New("schema")
	}})
	h := &stubHandler{}

	err := c.process(h, &message{topic: "trades"})
	assert.True(t, IsPermanent(err))
	assert.Zero(t, h.calls)
}

func TestDeadLetterCarriesSourceTopic(t *testing.T) {
	c := testConsumer(1)
	w := &stubWriter{}
	c.dlq = w
	c.cfg.DLQTopic = "trades.dlq"

	c.deadLetter(&message{topic: "trades", km: kafka.Message{Key: []byte("BTCUSDT"), Value: []byte("x")}}, errors.New("nope"))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "trades.dlq", w.msgs[0].Topic)
	assert.Equal(t, []byte("BTCUSDT"), w.msgs[0].Key)
	assert.Equal(t, "source_topic", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "trades", string(w.msgs[0].Headers[0].Value))
}

func TestLaneForIsStablePerKey(t *testing.T) {
	c := testConsumer(8)
	a := c.laneFor([]byte("BTCUSDT"))
	for i := 0; i < 10; i++ {
		assert.Equal(t, a, c.laneFor([]byte("BTCUSDT")))
	}
	assert.Equal(t, 0, c.laneFor(nil))
}

func TestHookChainRecoversPanics(t *testing.T) {
	chain := NewHookChain(nil, HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("boom")
	}})
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	assert.Error(t, err)
}

func TestBackoffWithinBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestPublishBatchEncodesJSON(t *testing.T) {
	w := &stubWriter{}
	p := NewProducerWithWriter(w, "lz4")
	err := p.PublishBatch(context.Background(), "candles", []Message{
		{Key: []byte("BTCUSDT"), Value: map[string]int{"a": 1}},
		{Key: []byte("ETHUSDT"), Value: []byte("raw")},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.JSONEq(t, `{"a":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "candles", w.msgs[1].Topic)
}
