package prediction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/repository"
	"CandleCast/internal/services/model"
	applogger "CandleCast/pkg/logger"
)

func testLogger() *applogger.Logger {
	return applogger.NewNop()
}

// constant returns a model that always predicts close + delta.
func constant(delta float64) *model.Model {
	return &model.Model{
		Features:   []string{"close"},
		Scaler:     model.Scaler{Mean: []float64{0}, Std: []float64{1}},
		Regressor:  model.Huber{Coef: []float64{0}, Intercept: delta},
		TargetMean: 0,
		TargetStd:  1,
	}
}

func bound(id string, delta, residualStd float64) *Bound {
	return &Bound{
		Version: models.ModelVersion{
			VersionID: id, Pair: "BTCUSDT", DurationSeconds: 60, HorizonSeconds: 300,
			ValidationMetrics: models.ValidationMetrics{ResidualStd: residualStd},
		},
		Model: constant(delta),
	}
}

func vector() models.FeatureVector {
	return models.FeatureVector{
		Pair: "BTCUSDT", DurationSeconds: 60, WindowStartMs: 0, TsMs: 60_000, Close: 100,
		Fields: map[string]float64{"close": 100},
	}
}

func TestPredict_NoModel(t *testing.T) {
	s := NewServer([]string{"BTCUSDT"}, 1.96, 5*time.Minute, repository.NewMemoryModelRegistry(), testLogger())
	_, err := s.Predict(vector())
	var nm *models.NoModelError
	require.ErrorAs(t, err, &nm)
	assert.True(t, errors.Is(err, models.ErrNoModel))

	v := vector()
	v.Pair = "DOGEUSDT"
	_, err = s.Predict(v)
	assert.ErrorIs(t, err, models.ErrNoModel)
}

func TestPredict_ConfidenceInterval(t *testing.T) {
	s := NewServer([]string{"BTCUSDT"}, 2, 5*time.Minute, repository.NewMemoryModelRegistry(), testLogger())
	s.Swap(bound("v1", 5, 1.5))

	p, err := s.Predict(vector())
	require.NoError(t, err)
	assert.Equal(t, "v1", p.ModelVersion)
	assert.InDelta(t, 105, p.PredictedPrice, 1e-12)
	assert.InDelta(t, 102, p.ConfidenceLower, 1e-12)
	assert.InDelta(t, 108, p.ConfidenceUpper, 1e-12)
	assert.Equal(t, int64(60_000), p.TsMs)
	assert.Equal(t, int64(60_000+300_000), p.PredictedTsMs)
}

func TestPredict_MissingFeatureIsNotReady(t *testing.T) {
	s := NewServer([]string{"BTCUSDT"}, 2, 5*time.Minute, repository.NewMemoryModelRegistry(), testLogger())
	s.Swap(bound("v1", 5, 1))
	v := vector()
	v.Fields = map[string]float64{}
	_, err := s.Predict(v)
	assert.ErrorIs(t, err, models.ErrNotReady)
}

func TestSwap_ReadersSeeConsistentSnapshots(t *testing.T) {
	s := NewServer([]string{"BTCUSDT"}, 1, 5*time.Minute, repository.NewMemoryModelRegistry(), testLogger())
	s.Swap(bound("a", 1, 0.5))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p, err := s.Predict(vector())
				if !assert.NoError(t, err) {
					return
				}
				switch p.ModelVersion {
				case "a":
					assert.InDelta(t, 101, p.PredictedPrice, 1e-12)
					assert.InDelta(t, 0.5, p.ConfidenceUpper-p.PredictedPrice, 1e-12)
				case "b":
					assert.InDelta(t, 102, p.PredictedPrice, 1e-12)
					assert.InDelta(t, 2, p.ConfidenceUpper-p.PredictedPrice, 1e-12)
				default:
					t.Errorf("unexpected version %q", p.ModelVersion)
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			s.Swap(bound("b", 2, 2))
		} else {
			s.Swap(bound("a", 1, 0.5))
		}
	}
	close(stop)
	wg.Wait()
}

func TestRefresh_LoadsCurrentFromRegistry(t *testing.T) {
	ctx := context.Background()
	reg := repository.NewMemoryModelRegistry()
	s := NewServer([]string{"BTCUSDT", "ETHUSDT"}, 1.96, 5*time.Minute, reg, testLogger())

	require.NoError(t, s.Refresh(ctx, []string{"BTCUSDT", "ETHUSDT"}))
	assert.Nil(t, s.Current("BTCUSDT"))

	blob, err := constant(3).Marshal()
	require.NoError(t, err)
	id, err := reg.Register(ctx, bound("v7", 3, 1).Version, blob)
	require.NoError(t, err)
	require.NoError(t, reg.Promote(ctx, id))

	require.NoError(t, s.Refresh(ctx, []string{"BTCUSDT", "ETHUSDT"}))
	cur := s.Current("BTCUSDT")
	require.NotNil(t, cur)
	assert.Equal(t, "v7", cur.Version.VersionID)
	p, err := s.Predict(vector())
	require.NoError(t, err)
	assert.InDelta(t, 103, p.PredictedPrice, 1e-12)
}
