package lunarcrush

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "CandleCast/pkg/http"
)

func TestSymbol(t *testing.T) {
	assert.Equal(t, "BTC", Symbol("BTCUSDT"))
	assert.Equal(t, "ETH", Symbol("ethusd"))
	assert.Equal(t, "SOL", Symbol("SOLFDUSD"))
	assert.Equal(t, "USDT", Symbol("USDT"))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/btc/v1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"sentiment":72,"galaxy_score":65.5,"alt_rank":3,"interactions_24h":120000}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second)
	c.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	snap, err := c.Fetch(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", snap.Pair)
	assert.Equal(t, int64(1_700_000_000_000), snap.TsMs)
	assert.Equal(t, 72.0, snap.Sentiment.V)
	assert.Equal(t, 65.5, snap.GalaxyScore.V)
	assert.False(t, snap.SocialDominance.Valid)
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", time.Second).Fetch(context.Background(), "ETHUSDT")
	var se *pkghttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Temporary())
}
