package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
	"CandleCast/pkg/cache"
	pkgch "CandleCast/pkg/clickhouse"
	applogger "CandleCast/pkg/logger"
)

func newMockCH(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pkgch.NewClientWithDB(db, "cc"), mock
}

func TestMarketStoreWritesCandlesAndIndicators(t *testing.T) {
	ch, mock := newMockCH(t)
	store := NewClickHouseMarketStore(ch)
	c := models.Candle{Pair: "BTCUSDT", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
		WindowStartMs: 60_000, WindowEndMs: 120_000, DurationSeconds: 60}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO cc.candles").ExpectExec().
		WithArgs("BTCUSDT", uint32(60), int64(60_000), int64(120_000), 1.0, 2.0, 0.5, 1.5, 10.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, store.StoreCandles(context.Background(), []models.Candle{c}))

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO cc.technical_indicators").ExpectExec().
		WithArgs("BTCUSDT", uint32(60), int64(60_000), int64(120_000), 1.0, 2.0, 0.5, 1.5, 10.0,
			`{"rsi_14":55.5,"sma_20":null}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	set := models.IndicatorSet{Candle: c, Values: map[string]models.NullFloat{
		"rsi_14": models.Some(55.5),
		"sma_20": models.Null(),
	}}
	require.NoError(t, store.StoreIndicators(context.Background(), []models.IndicatorSet{set}))

	require.NoError(t, store.StoreCandles(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureStoreLatestIsOldestFirst(t *testing.T) {
	ch, mock := newMockCH(t)
	fs := NewCHFeatureStore(ch, applogger.NewNop())

	cols := []string{"pair", "duration_seconds", "window_start_ms", "window_end_ms",
		"open", "high", "low", "close", "volume", "indicators"}
	rows := sqlmock.NewRows(cols).
		AddRow("BTCUSDT", int64(60), int64(120_000), int64(180_000), 2.0, 2.0, 2.0, 2.0, 1.0, `{"rsi_14":60}`).
		AddRow("BTCUSDT", int64(60), int64(60_000), int64(120_000), 1.0, 1.0, 1.0, 1.0, 1.0, `{"rsi_14":null}`)
	mock.ExpectQuery("FROM cc.technical_indicators FINAL").
		WithArgs("BTCUSDT", uint32(60), 2).
		WillReturnRows(rows)

	sets, err := fs.GetLatestIndicatorSets(context.Background(), "BTCUSDT", 60, 2)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, int64(60_000), sets[0].Candle.WindowStartMs)
	assert.Equal(t, 60, sets[0].Candle.DurationSeconds)
	assert.False(t, sets[0].Get("rsi_14").Valid)
	assert.Equal(t, 60.0, sets[1].Get("rsi_14").V)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPredictionStoreCachesLatest(t *testing.T) {
	ch, mock := newMockCH(t)
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	store := NewPredictionStore(ch, mc, time.Hour)
	ctx := context.Background()

	rec := func(ts int64, price float64) models.PredictionRecord {
		return models.PredictionRecord{
			Prediction: models.Prediction{Pair: "BTCUSDT", TsMs: ts, ModelVersion: "v1",
				PredictedPrice: price, ConfidenceLower: price - 1, ConfidenceUpper: price + 1, PredictedTsMs: ts + 360_000},
			Features: map[string]float64{"close": price},
		}
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO cc.predictions")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, store.StorePredictions(ctx, []models.PredictionRecord{rec(120_000, 101), rec(60_000, 100)}))

	latest, err := store.LatestPrediction(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), latest.TsMs)
	assert.Equal(t, 101.0, latest.PredictedPrice)

	mock.ExpectQuery("FROM cc.predictions").WithArgs("ETHUSDT").
		WillReturnRows(sqlmock.NewRows([]string{"pair"}))
	_, err = store.LatestPrediction(ctx, "ETHUSDT")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSentimentRepositoryKeepsNewestInCache(t *testing.T) {
	ch, mock := newMockCH(t)
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	repo := NewSentimentRepository(ch, mc, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectPrepare("INSERT INTO cc.sentiment").ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}
	newer := models.SentimentSnapshot{Pair: "BTCUSDT", TsMs: 2_000, Sentiment: models.Some(0.7)}
	older := models.SentimentSnapshot{Pair: "BTCUSDT", TsMs: 1_000, Sentiment: models.Some(0.1)}
	require.NoError(t, repo.SaveSentiment(ctx, newer))
	require.NoError(t, repo.SaveSentiment(ctx, older))

	got, err := repo.LatestSentiment(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2_000), got.TsMs)
	assert.Equal(t, 0.7, got.Sentiment.V)

	mock.ExpectQuery("FROM cc.sentiment").WithArgs("ETHUSDT").
		WillReturnRows(sqlmock.NewRows([]string{"pair"}))
	got, err = repo.LatestSentiment(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriftLogSkipsEmpty(t *testing.T) {
	ch, mock := newMockCH(t)
	log := NewClickHouseDriftLog(ch)
	require.NoError(t, log.AppendDriftReports(context.Background(), nil))

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO cc.drift_alerts").ExpectExec().
		WithArgs("BTCUSDT", "rsi_14", "psi", 0.31, 0.2, uint32(3), uint8(1),
			int64(0), int64(10), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err := log.AppendDriftReports(context.Background(), []models.DriftReport{{
		Pair: "BTCUSDT", Name: "rsi_14", Method: "psi", Statistic: 0.31, Threshold: 0.2,
		Breaches: 3, Triggered: true, Window: models.DriftWindow{RecentFromMs: 0, RecentToMs: 10},
		CheckedAt: time.Unix(0, 0),
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
