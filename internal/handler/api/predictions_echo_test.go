package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/repository"
	"CandleCast/internal/services/drift"
	"CandleCast/internal/services/prediction"
	"CandleCast/internal/usecase"
	xhttp "CandleCast/pkg/http"
	xlogger "CandleCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictions struct {
	latest map[string]models.Prediction
	recs   []models.PredictionRecord
}

func (s *stubPredictions) StorePredictions(context.Context, []models.PredictionRecord) error {
	return nil
}

func (s *stubPredictions) LatestPrediction(_ context.Context, pair string) (models.Prediction, error) {
	p, ok := s.latest[pair]
	if !ok {
		return models.Prediction{}, models.ErrNotFound
	}
	return p, nil
}

func (s *stubPredictions) QueryPredictions(_ context.Context, pair string, _, _ time.Time, limit int) ([]models.PredictionRecord, error) {
	out := make([]models.PredictionRecord, 0, len(s.recs))
	for _, r := range s.recs {
		if r.Pair == pair && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	types []string
}

func (q *recordingQueue) Enqueue(_ context.Context, msgType string, _ interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, msgType)
	return nil
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) (*xhttp.Server, *recordingQueue) {
	t.Helper()
	store := &stubPredictions{
		latest: map[string]models.Prediction{
			"BTCUSDT": {Pair: "BTCUSDT", TsMs: 1_700_000_000_000, ModelVersion: "v1", PredictedPrice: 101.5},
		},
		recs: []models.PredictionRecord{
			{Prediction: models.Prediction{Pair: "BTCUSDT", TsMs: 1_700_000_060_000}},
			{Prediction: models.Prediction{Pair: "BTCUSDT", TsMs: 1_700_000_000_000}},
		},
	}
	registry := repository.NewMemoryModelRegistry()
	l := xlogger.NewNop()
	server := prediction.NewServer([]string{"BTCUSDT", "ETHUSDT"}, 1.96, 5*time.Minute, registry, l)
	monitor := drift.NewMonitor(drift.Config{Threshold: 0.2, Consecutive: 3})
	q := &recordingQueue{}

	uc := usecase.NewPredictionsUseCase([]string{"BTCUSDT", "ETHUSDT"}, store, registry, server, monitor, q)
	h := NewPredictionsEchoHandler(l, uc, checks)
	return xhttp.NewServer(l, []xhttp.Handler{h}), q
}

func do(s *xhttp.Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestLatestPrediction(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/predictions?pair=BTCUSDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"predicted_price":101.5`)

	rec = do(s, http.MethodGet, "/api/predictions?pair=ETHUSDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")

	rec = do(s, http.MethodGet, "/api/predictions?pair=DOGEUSDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestPredictionValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/predictions", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_REQUIRED")

	rec = do(s, http.MethodGet, "/api/predictions?pair=BTC-USDT", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_ALPHANUM")

	rec = do(s, http.MethodGet, "/api/predictions?pair="+strings.Repeat("A", 21), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_MAX")
}

func TestLatestAllSkipsPairsWithoutPredictions(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/predictions/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
	assert.Contains(t, rec.Body.String(), "BTCUSDT")
}

func TestPredictionHistory(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/predictions/history?pair=BTCUSDT&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(s, http.MethodGet, "/api/predictions/history?pair=BTCUSDT&limit=0", "")
	assert.Equal(t, http.StatusOK, rec.Code, "zero limit falls back to the default")

	rec = do(s, http.MethodGet, "/api/predictions/history?pair=BTCUSDT&limit=6000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelsWithoutPromotion(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/models?pair=BTCUSDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)

	rec = do(s, http.MethodGet, "/api/models/current?pair=BTCUSDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromoteUnknownModel(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodPost, "/api/models/not-a-uuid/promote", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_UUID")

	rec = do(s, http.MethodPost, "/api/models/1b4e28ba-2fa1-11d2-883f-0016d3cca427/promote", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrainEnqueues(t *testing.T) {
	s, q := newTestServer(t, nil)

	rec := do(s, http.MethodPost, "/api/train", `{"pair":"BTCUSDT"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{usecase.TrainJobType}, q.types)

	rec = do(s, http.MethodPost, "/api/train", `{"pair":"DOGEUSDT"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodPost, "/api/train", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, q.types, 1)
}

func TestDriftEmpty(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/drift?triggered=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, map[string]HealthCheck{
		"clickhouse": func(context.Context) error { return nil },
	})
	rec := do(s, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"clickhouse":"ok"`)

	s, _ = newTestServer(t, map[string]HealthCheck{
		"clickhouse": func(context.Context) error { return nil },
		"redis":      func(context.Context) error { return errors.New("connection refused") },
	})
	rec = do(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
