package usecase

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"CandleCast/internal/domain/models"
	pkgmetrics "CandleCast/pkg/metrics"
)

func newRecorder() *pkgmetrics.Recorder {
	return pkgmetrics.NewWithRegisterer(prometheus.NewRegistry())
}

type fakePublisher struct {
	mu          sync.Mutex
	trades      []*models.Trade
	candles     []models.Candle
	indicators  []models.IndicatorSet
	predictions []models.Prediction
	sentiment   []models.SentimentSnapshot
	drift       []models.DriftReport
	err         error
}

func (p *fakePublisher) PublishTrade(_ context.Context, t *models.Trade) error {
	return p.PublishTrades(context.Background(), []*models.Trade{t})
}

func (p *fakePublisher) PublishTrades(_ context.Context, ts []*models.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, ts...)
	return p.err
}

func (p *fakePublisher) PublishCandle(_ context.Context, c models.Candle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles = append(p.candles, c)
	return p.err
}

func (p *fakePublisher) PublishIndicators(_ context.Context, s models.IndicatorSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indicators = append(p.indicators, s)
	return p.err
}

func (p *fakePublisher) PublishPrediction(_ context.Context, pr models.Prediction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predictions = append(p.predictions, pr)
	return p.err
}

func (p *fakePublisher) PublishSentiment(_ context.Context, s models.SentimentSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sentiment = append(p.sentiment, s)
	return p.err
}

func (p *fakePublisher) PublishDriftReport(_ context.Context, r models.DriftReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drift = append(p.drift, r)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) tradeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trades)
}

type fakeMarketStore struct {
	mu      sync.Mutex
	candles []models.Candle
	sets    []models.IndicatorSet
}

func (s *fakeMarketStore) StoreCandles(_ context.Context, cs []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append(s.candles, cs...)
	return nil
}

func (s *fakeMarketStore) StoreIndicators(_ context.Context, sets []models.IndicatorSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, sets...)
	return nil
}

func (s *fakeMarketStore) Health(context.Context) error { return nil }
func (s *fakeMarketStore) Close() error                 { return nil }

type fakePredictionStore struct {
	mu      sync.Mutex
	records []models.PredictionRecord
}

func (s *fakePredictionStore) StorePredictions(_ context.Context, recs []models.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
	return nil
}

func (s *fakePredictionStore) LatestPrediction(_ context.Context, pair string) (models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Pair == pair {
			return s.records[i].Prediction, nil
		}
	}
	return models.Prediction{}, models.ErrNotFound
}

func (s *fakePredictionStore) QueryPredictions(_ context.Context, pair string, from, to time.Time, limit int) ([]models.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PredictionRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.records[i]
		if r.Pair == pair && r.TsMs >= from.UnixMilli() && r.TsMs <= to.UnixMilli() {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeSentimentStore struct {
	latest *models.SentimentSnapshot
	saved  []models.SentimentSnapshot
}

func (s *fakeSentimentStore) SaveSentiment(_ context.Context, snap models.SentimentSnapshot) error {
	s.saved = append(s.saved, snap)
	return nil
}

func (s *fakeSentimentStore) LatestSentiment(context.Context, string) (*models.SentimentSnapshot, error) {
	return s.latest, nil
}

func (s *fakeSentimentStore) SentimentHistory(context.Context, string, time.Time, time.Time) ([]models.SentimentSnapshot, error) {
	return s.saved, nil
}

// fakeFeatureStore serves sets whose window starts in [from, to).
type fakeFeatureStore struct {
	sets  []models.IndicatorSet
	preds []models.PredictionRecord
}

func (s *fakeFeatureStore) GetIndicatorSets(_ context.Context, pair string, dur int, from, to time.Time) ([]models.IndicatorSet, error) {
	var out []models.IndicatorSet
	for _, set := range s.sets {
		if set.Pair == pair && set.DurationSeconds == dur &&
			set.WindowStartMs >= from.UnixMilli() && set.WindowStartMs < to.UnixMilli() {
			out = append(out, set)
		}
	}
	return out, nil
}

func (s *fakeFeatureStore) GetLatestIndicatorSets(_ context.Context, pair string, dur int, n int) ([]models.IndicatorSet, error) {
	if len(s.sets) > n {
		return s.sets[len(s.sets)-n:], nil
	}
	return s.sets, nil
}

func (s *fakeFeatureStore) GetPredictionFeatures(_ context.Context, pair string, from, to time.Time) ([]models.PredictionRecord, error) {
	var out []models.PredictionRecord
	for _, p := range s.preds {
		if p.Pair == pair && p.TsMs >= from.UnixMilli() && p.TsMs < to.UnixMilli() {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []TrainPayload
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p, ok := payload.(TrainPayload); ok && msgType == TrainJobType {
		q.jobs = append(q.jobs, p)
	}
	return nil
}

// momentumSets builds minute sets ending at end where the next close follows
// the momentum indicator.
func momentumSets(n int, end time.Time, seed int64) []models.IndicatorSet {
	rng := rand.New(rand.NewSource(seed))
	startMs := end.Truncate(time.Minute).UnixMilli() - int64(n)*60_000
	price := 1000.0
	out := make([]models.IndicatorSet, n)
	for i := range out {
		m := rng.NormFloat64()
		ws := startMs + int64(i)*60_000
		out[i] = models.IndicatorSet{
			Candle: models.Candle{
				Pair: "BTCUSDT", Open: price, High: price, Low: price, Close: price, Volume: 1,
				WindowStartMs: ws, WindowEndMs: ws + 60_000, DurationSeconds: 60,
			},
			Values: map[string]models.NullFloat{"momentum": models.Some(m)},
		}
		price += 2*m + rng.NormFloat64()*0.05
	}
	return out
}
