package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
)

const artifactScheme = "redis://model/artifact/"

// RedisModelRegistry keeps model metadata, artifacts and the current pointer
// per pair in Redis.
//
// Keys (under prefix):
//
//	model:{id}            metadata JSON
//	model:artifact:{id}   serialized model
//	models:{pair}         ZSET of ids scored by trained_at ms
//	model:current:{pair}  promoted id
type RedisModelRegistry struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisModelRegistry(rdb redis.UniversalClient, prefix string) repository.ModelRegistry {
	if prefix == "" {
		prefix = "candlecast"
	}
	return &RedisModelRegistry{rdb: rdb, prefix: prefix}
}

func (r *RedisModelRegistry) key(parts ...string) string {
	return r.prefix + ":" + strings.Join(parts, ":")
}

// Register stores mv and its artifact atomically. An empty VersionID gets a
// fresh uuid. Registering an existing id is rejected.
func (r *RedisModelRegistry) Register(ctx context.Context, mv models.ModelVersion, artifact []byte) (string, error) {
	if mv.VersionID == "" {
		mv.VersionID = uuid.NewString()
	}
	if mv.Pair == "" {
		return "", fmt.Errorf("register model: empty pair")
	}
	if mv.TrainedAt.IsZero() {
		mv.TrainedAt = time.Now().UTC()
	}
	mv.ArtifactReference = artifactScheme + mv.VersionID

	meta, err := json.Marshal(mv)
	if err != nil {
		return "", fmt.Errorf("encode model %s: %w", mv.VersionID, err)
	}

	ok, err := r.rdb.SetNX(ctx, r.key("model", mv.VersionID), meta, 0).Result()
	if err != nil {
		return "", fmt.Errorf("register model %s: %w", mv.VersionID, err)
	}
	if !ok {
		return "", fmt.Errorf("register model %s: already exists", mv.VersionID)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.key("model", "artifact", mv.VersionID), artifact, 0)
	pipe.ZAdd(ctx, r.key("models", mv.Pair), redis.Z{Score: float64(mv.TrainedAt.UnixMilli()), Member: mv.VersionID})
	if _, err := pipe.Exec(ctx); err != nil {
		r.rdb.Del(ctx, r.key("model", mv.VersionID))
		return "", fmt.Errorf("register model %s: %w", mv.VersionID, err)
	}
	return mv.VersionID, nil
}

func (r *RedisModelRegistry) Get(ctx context.Context, id string) (models.ModelVersion, error) {
	var mv models.ModelVersion
	b, err := r.rdb.Get(ctx, r.key("model", id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return mv, fmt.Errorf("model %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return mv, fmt.Errorf("get model %s: %w", id, err)
	}
	if err := json.Unmarshal(b, &mv); err != nil {
		return mv, fmt.Errorf("decode model %s: %w", id, err)
	}
	return mv, nil
}

func (r *RedisModelRegistry) GetCurrent(ctx context.Context, pair string) (models.ModelVersion, error) {
	id, err := r.rdb.Get(ctx, r.key("model", "current", pair)).Result()
	if errors.Is(err, redis.Nil) {
		return models.ModelVersion{}, fmt.Errorf("current model for %s: %w", pair, models.ErrNotFound)
	}
	if err != nil {
		return models.ModelVersion{}, fmt.Errorf("current model for %s: %w", pair, err)
	}
	return r.Get(ctx, id)
}

// Promote makes id the current model of its pair.
func (r *RedisModelRegistry) Promote(ctx context.Context, id string) error {
	mv, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.key("model", "current", mv.Pair), id, 0).Err(); err != nil {
		return fmt.Errorf("promote model %s: %w", id, err)
	}
	return nil
}

// List returns up to limit versions of pair, newest first.
func (r *RedisModelRegistry) List(ctx context.Context, pair string, limit int) ([]models.ModelVersion, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := r.rdb.ZRevRange(ctx, r.key("models", pair), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list models for %s: %w", pair, err)
	}
	out := make([]models.ModelVersion, 0, len(ids))
	for _, id := range ids {
		mv, err := r.Get(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, nil
}

func (r *RedisModelRegistry) Artifact(ctx context.Context, ref string) ([]byte, error) {
	id, ok := strings.CutPrefix(ref, artifactScheme)
	if !ok {
		return nil, fmt.Errorf("artifact %q: unknown reference", ref)
	}
	b, err := r.rdb.Get(ctx, r.key("model", "artifact", id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("artifact %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", id, err)
	}
	return b, nil
}

// MemoryModelRegistry is an in-process registry for tests and single-node runs.
type MemoryModelRegistry struct {
	mu        sync.RWMutex
	versions  map[string]models.ModelVersion
	artifacts map[string][]byte
	current   map[string]string
}

func NewMemoryModelRegistry() *MemoryModelRegistry {
	return &MemoryModelRegistry{
		versions:  map[string]models.ModelVersion{},
		artifacts: map[string][]byte{},
		current:   map[string]string{},
	}
}

func (m *MemoryModelRegistry) Register(_ context.Context, mv models.ModelVersion, artifact []byte) (string, error) {
	if mv.VersionID == "" {
		mv.VersionID = uuid.NewString()
	}
	if mv.TrainedAt.IsZero() {
		mv.TrainedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[mv.VersionID]; ok {
		return "", fmt.Errorf("register model %s: already exists", mv.VersionID)
	}
	mv.ArtifactReference = "mem://" + mv.VersionID
	m.versions[mv.VersionID] = mv
	m.artifacts[mv.ArtifactReference] = append([]byte(nil), artifact...)
	return mv.VersionID, nil
}

func (m *MemoryModelRegistry) Get(_ context.Context, id string) (models.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mv, ok := m.versions[id]
	if !ok {
		return mv, fmt.Errorf("model %s: %w", id, models.ErrNotFound)
	}
	return mv, nil
}

func (m *MemoryModelRegistry) GetCurrent(ctx context.Context, pair string) (models.ModelVersion, error) {
	m.mu.RLock()
	id, ok := m.current[pair]
	m.mu.RUnlock()
	if !ok {
		return models.ModelVersion{}, fmt.Errorf("current model for %s: %w", pair, models.ErrNotFound)
	}
	return m.Get(ctx, id)
}

func (m *MemoryModelRegistry) Promote(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv, ok := m.versions[id]
	if !ok {
		return fmt.Errorf("model %s: %w", id, models.ErrNotFound)
	}
	m.current[mv.Pair] = id
	return nil
}

func (m *MemoryModelRegistry) List(_ context.Context, pair string, limit int) ([]models.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ModelVersion
	for _, mv := range m.versions {
		if mv.Pair == pair {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryModelRegistry) Artifact(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.artifacts[ref]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", ref, models.ErrNotFound)
	}
	return b, nil
}
