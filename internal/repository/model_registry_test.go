package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
)

func newRedisRegistry(t *testing.T) (repository.ModelRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisModelRegistry(rdb, "cc"), mr
}

func version(pair string, trainedAt time.Time) models.ModelVersion {
	return models.ModelVersion{
		Name:            models.ModelName(pair, 60, 300),
		Pair:            pair,
		DurationSeconds: 60,
		HorizonSeconds:  300,
		TrainedAt:       trainedAt,
		FeatureNames:    []string{"close", "rsi_14"},
	}
}

func registries(t *testing.T) map[string]repository.ModelRegistry {
	r, _ := newRedisRegistry(t)
	return map[string]repository.ModelRegistry{
		"redis":  r,
		"memory": NewMemoryModelRegistry(),
	}
}

func TestRegistryRegisterPromoteGet(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := reg.GetCurrent(ctx, "BTCUSDT")
			assert.ErrorIs(t, err, models.ErrNotFound)

			id, err := reg.Register(ctx, version("BTCUSDT", time.UnixMilli(1_000)), []byte("blob-1"))
			require.NoError(t, err)
			require.NotEmpty(t, id)

			_, err = reg.GetCurrent(ctx, "BTCUSDT")
			assert.ErrorIs(t, err, models.ErrNotFound, "registering does not promote")

			require.NoError(t, reg.Promote(ctx, id))
			cur, err := reg.GetCurrent(ctx, "BTCUSDT")
			require.NoError(t, err)
			assert.Equal(t, id, cur.VersionID)
			assert.Equal(t, []string{"close", "rsi_14"}, cur.FeatureNames)

			blob, err := reg.Artifact(ctx, cur.ArtifactReference)
			require.NoError(t, err)
			assert.Equal(t, []byte("blob-1"), blob)
		})
	}
}

func TestRegistryKeepsProvidedID(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mv := version("ETHUSDT", time.UnixMilli(5_000))
			mv.VersionID = "v7"
			id, err := reg.Register(ctx, mv, nil)
			require.NoError(t, err)
			assert.Equal(t, "v7", id)

			_, err = reg.Register(ctx, mv, nil)
			assert.Error(t, err, "versions are immutable")
		})
	}
}

func TestRegistryListNewestFirst(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for i := 1; i <= 3; i++ {
				id, err := reg.Register(ctx, version("BTCUSDT", time.UnixMilli(int64(i)*1_000)), nil)
				require.NoError(t, err)
				ids = append(ids, id)
			}
			_, err := reg.Register(ctx, version("ETHUSDT", time.UnixMilli(9_000)), nil)
			require.NoError(t, err)

			list, err := reg.List(ctx, "BTCUSDT", 2)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, ids[2], list[0].VersionID)
			assert.Equal(t, ids[1], list[1].VersionID)
		})
	}
}

func TestRegistryPromoteUnknown(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			err := reg.Promote(context.Background(), "missing")
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestRedisRegistryKeys(t *testing.T) {
	reg, mr := newRedisRegistry(t)
	ctx := context.Background()
	mv := version("BTCUSDT", time.UnixMilli(1_000))
	mv.VersionID = "abc"
	_, err := reg.Register(ctx, mv, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, reg.Promote(ctx, "abc"))

	assert.True(t, mr.Exists("cc:model:abc"))
	assert.True(t, mr.Exists("cc:model:artifact:abc"))
	cur, err := mr.Get("cc:model:current:BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "abc", cur)

	_, err = reg.Artifact(ctx, "s3://elsewhere/abc")
	assert.Error(t, err)
}
