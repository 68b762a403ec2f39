// Package prediction serves point predictions from the promoted model.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
	"CandleCast/internal/services/model"
	applogger "CandleCast/pkg/logger"
)

// Bound is an immutable model snapshot.
type Bound struct {
	Version models.ModelVersion
	Model   *model.Model
}

type slot struct {
	p atomic.Pointer[Bound]
}

// Server binds every pair to at most one promoted model. Swaps are a single
// pointer store, so a Predict call always sees one consistent snapshot.
type Server struct {
	z        float64
	horizon  time.Duration
	registry repository.ModelRegistry
	l        *applogger.Logger

	mu    sync.RWMutex
	slots map[string]*slot
}

// NewServer creates a server. z scales the validation residual std into the
// confidence half-width.
func NewServer(pairs []string, z float64, horizon time.Duration, registry repository.ModelRegistry, l *applogger.Logger) *Server {
	s := &Server{z: z, horizon: horizon, registry: registry, l: l, slots: make(map[string]*slot, len(pairs))}
	for _, p := range pairs {
		s.slots[p] = &slot{}
	}
	return s
}

func (s *Server) slot(pair string, create bool) *slot {
	s.mu.RLock()
	sl, ok := s.slots[pair]
	s.mu.RUnlock()
	if ok || !create {
		return sl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[pair]; !ok {
		sl = &slot{}
		s.slots[pair] = sl
	}
	return sl
}

// Current returns the bound snapshot for a pair, nil if none.
func (s *Server) Current(pair string) *Bound {
	sl := s.slot(pair, false)
	if sl == nil {
		return nil
	}
	return sl.p.Load()
}

// Swap installs a new model for its pair.
func (s *Server) Swap(b *Bound) {
	s.slot(b.Version.Pair, true).p.Store(b)
	s.l.Info("model swapped in",
		applogger.String("pair", b.Version.Pair),
		applogger.String("version", b.Version.VersionID),
		applogger.String("name", b.Version.Name),
	)
}

// Predict produces a prediction for v with the model bound at call time.
func (s *Server) Predict(v models.FeatureVector) (models.Prediction, error) {
	b := s.Current(v.Pair)
	if b == nil {
		return models.Prediction{}, &models.NoModelError{Pair: v.Pair}
	}
	row, err := v.Row(b.Model.Features)
	if err != nil {
		return models.Prediction{}, err
	}

	price := b.Model.PredictPrice(v.Close, row)
	half := s.z * b.Version.ValidationMetrics.ResidualStd
	horizon := time.Duration(b.Version.HorizonSeconds) * time.Second
	if horizon == 0 {
		horizon = s.horizon
	}
	return models.Prediction{
		Pair:            v.Pair,
		TsMs:            v.TsMs,
		ModelVersion:    b.Version.VersionID,
		PredictedPrice:  price,
		ConfidenceLower: price - half,
		ConfidenceUpper: price + half,
		PredictedTsMs:   v.TsMs + horizon.Milliseconds(),
	}, nil
}

// Load binds a registered version by id.
func (s *Server) Load(ctx context.Context, mv models.ModelVersion) (*Bound, error) {
	blob, err := s.registry.Artifact(ctx, mv.ArtifactReference)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", mv.ArtifactReference, err)
	}
	m, err := model.Unmarshal(blob)
	if err != nil {
		return nil, err
	}
	b := &Bound{Version: mv, Model: m}
	s.Swap(b)
	return b, nil
}

// Refresh binds the registry's current version for each pair when it differs
// from what is loaded.
func (s *Server) Refresh(ctx context.Context, pairs []string) error {
	var errs []error
	for _, pair := range pairs {
		mv, err := s.registry.GetCurrent(ctx, pair)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("current model for %s: %w", pair, err))
			continue
		}
		if cur := s.Current(pair); cur != nil && cur.Version.VersionID == mv.VersionID {
			continue
		}
		if _, err := s.Load(ctx, mv); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
