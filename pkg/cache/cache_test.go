package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Pair  string  `json:"pair"`
	Score float64 `json:"score"`
}

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheWithClient(client, "cc"), mr
}

func TestMemoryRoundTripsJSON(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "s", snapshot{Pair: "BTCUSDT", Score: 71}, 0))
	got, err := GetTyped[snapshot](ctx, mc, "s")
	require.NoError(t, err)
	assert.Equal(t, snapshot{Pair: "BTCUSDT", Score: 71}, got)

	_, err = GetTyped[snapshot](ctx, mc, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryExpiresAndEvicts(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "short", "x", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	ok, _ := mc.Exists(ctx, "short")
	assert.False(t, ok)

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	time.Sleep(time.Millisecond)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	ok, _ = mc.Exists(ctx, "b")
	assert.False(t, ok, "least recently used entry is evicted")
	ok, _ = mc.Exists(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryTryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "train", time.Minute)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "train"))
	ok, _ = mc.TryLock(ctx, "train", time.Minute)
	assert.True(t, ok)
}

func TestRedisPrefixesKeys(t *testing.T) {
	ctx := context.Background()
	rc, mr := newRedis(t)

	require.NoError(t, rc.Set(ctx, "sentiment:BTCUSDT", snapshot{Pair: "BTCUSDT"}, time.Minute))
	assert.True(t, mr.Exists("cc:sentiment:BTCUSDT"))

	var got snapshot
	require.NoError(t, rc.Get(ctx, "sentiment:BTCUSDT", &got))
	assert.Equal(t, "BTCUSDT", got.Pair)

	vals, err := rc.MGet(ctx, "sentiment:BTCUSDT", "nope")
	require.NoError(t, err)
	assert.Len(t, vals, 1)

	require.NoError(t, rc.Delete(ctx, "sentiment:BTCUSDT"))
	assert.ErrorIs(t, rc.Get(ctx, "sentiment:BTCUSDT", &got), ErrCacheMiss)
}

func TestLayeredFallsBackToRedis(t *testing.T) {
	ctx := context.Background()
	rc, _ := newRedis(t)
	lc := NewLayeredCache(rc)
	defer lc.Close()

	require.NoError(t, rc.Set(ctx, "k", snapshot{Pair: "ETHUSDT", Score: 2}, 0))
	var got snapshot
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 2.0, got.Score)

	require.NoError(t, rc.Delete(ctx, "k"))
	require.NoError(t, lc.Get(ctx, "k", &got), "served from L1")

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "model:current:BTCUSDT", Key("model", "current", "BTCUSDT"))
}
