package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
	pkgkafka "CandleCast/pkg/kafka"
)

type routerFunc func(ctx context.Context, t models.Trade) error

func (f routerFunc) Route(ctx context.Context, t models.Trade) error { return f(ctx, t) }

func TestTradesHandlerRoutesDecodedTrade(t *testing.T) {
	var got models.Trade
	h := NewKafkaTradesHandler("trades", routerFunc(func(_ context.Context, tr models.Trade) error {
		got = tr
		return nil
	}), newRecorder())

	assert.Equal(t, "trades", h.Topic())
	err := h.Handle(context.Background(), []byte(`{"pair":"BTCUSDT","price":43000.5,"quantity":0.1,"timestamp_ms":1700000000000,"is_buyer_maker":true}`))
	require.NoError(t, err)
	assert.Equal(t, models.Trade{Pair: "BTCUSDT", Price: 43000.5, Quantity: 0.1, TimestampMs: 1700000000000, IsBuyerMaker: true}, got)
}

func TestTradesHandlerPermanentErrors(t *testing.T) {
	h := NewKafkaTradesHandler("trades", routerFunc(func(_ context.Context, tr models.Trade) error {
		return tr.Validate()
	}), newRecorder())

	err := h.Handle(context.Background(), []byte(`{not json`))
	assert.True(t, pkgkafka.IsPermanent(err))

	err = h.Handle(context.Background(), []byte(`{"pair":"BTCUSDT","price":0,"quantity":1,"timestamp_ms":1}`))
	assert.True(t, pkgkafka.IsPermanent(err))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestTradesHandlerRetriesTransientErrors(t *testing.T) {
	h := NewKafkaTradesHandler("trades", routerFunc(func(context.Context, models.Trade) error {
		return errors.New("lane busy")
	}), newRecorder())

	err := h.Handle(context.Background(), []byte(`{"pair":"BTCUSDT","price":1,"quantity":1,"timestamp_ms":1}`))
	require.Error(t, err)
	assert.False(t, pkgkafka.IsPermanent(err))
}

func TestSentimentHandlerStoresSnapshot(t *testing.T) {
	store := &fakeSentimentStore{}
	h := NewKafkaSentimentHandler("sentiment", store, newRecorder())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"pair":"btcusdt","ts_ms":1000,"sentiment":0.4,"galaxy_score":null}`)))
	require.Len(t, store.saved, 1)
	assert.Equal(t, "BTCUSDT", store.saved[0].Pair)
	assert.Equal(t, 0.4, store.saved[0].Sentiment.V)
	assert.False(t, store.saved[0].GalaxyScore.Valid)

	err := h.Handle(context.Background(), []byte(`{"ts_ms":1000}`))
	assert.True(t, pkgkafka.IsPermanent(err))
}
