package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
)

// Monday 2024-01-01 15:00 UTC
var monday = time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)

func set(values map[string]models.NullFloat) models.IndicatorSet {
	start := monday.UnixMilli()
	return models.IndicatorSet{
		Candle: models.Candle{
			Pair: "BTCUSDT", Open: 100, High: 103, Low: 99, Close: 102, Volume: 4,
			WindowStartMs: start, WindowEndMs: start + 60_000, DurationSeconds: 60,
		},
		Values: values,
	}
}

func TestAssemble_FreshSentiment(t *testing.T) {
	a := NewAssembler(time.Hour, []string{Close, "rsi_14", HourSin, Sentiment})
	s := set(map[string]models.NullFloat{"rsi_14": models.Some(55)})
	end := time.UnixMilli(s.WindowEndMs)
	snap := models.SentimentSnapshot{
		Pair: "BTCUSDT", TsMs: end.Add(-30 * time.Minute).UnixMilli(),
		Sentiment: models.Some(72), GalaxyScore: models.Some(60),
	}

	v, err := a.Assemble(s, []models.SentimentSnapshot{snap}, end)
	require.NoError(t, err)
	assert.False(t, v.SentimentStale)
	assert.Equal(t, 72.0, v.Fields[Sentiment])
	assert.Equal(t, 60.0, v.Fields[GalaxyScore])
	assert.Equal(t, 0.0, v.Fields[SocialDominance])
	assert.Equal(t, 55.0, v.Fields["rsi_14"])
	assert.Equal(t, 1.0, v.Fields[IsPeakHour])
	assert.Equal(t, 1.0, v.Fields[IsStrongDay])
	assert.Equal(t, 0.0, v.Fields[IsWeekend])
	assert.InDelta(t, math.Sin(2*math.Pi*15/24), v.Fields[HourSin], 1e-12)
	assert.InDelta(t, math.Log(102.0/100), v.Fields[Return], 1e-12)
	assert.Equal(t, end.UnixMilli(), v.TsMs)
}

func TestAssemble_StaleSentimentIsZeroFilled(t *testing.T) {
	a := NewAssembler(time.Hour, []string{Close})
	s := set(nil)
	end := time.UnixMilli(s.WindowEndMs)

	for name, snap := range map[string]*models.SentimentSnapshot{
		"none":   nil,
		"old":    {TsMs: end.Add(-2 * time.Hour).UnixMilli(), Sentiment: models.Some(80)},
		"future": {TsMs: end.Add(time.Minute).UnixMilli(), Sentiment: models.Some(80)},
	} {
		var history []models.SentimentSnapshot
		if snap != nil {
			history = append(history, *snap)
		}
		v, err := a.Assemble(s, history, end)
		require.NoError(t, err, name)
		assert.True(t, v.SentimentStale, name)
		assert.Equal(t, 1.0, v.Fields[SentimentStale], name)
		assert.Equal(t, 0.0, v.Fields[Sentiment], name)
	}
}

func TestAssemble_WarmUpNullsAreNotReady(t *testing.T) {
	a := NewAssembler(time.Hour, []string{Close, "sma_50", "rsi_14"})
	s := set(map[string]models.NullFloat{"sma_50": models.Null(), "rsi_14": models.Some(40)})

	_, err := a.Assemble(s, nil, time.UnixMilli(s.WindowEndMs))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotReady))
	assert.True(t, errors.Is(err, models.ErrValidation))

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"sma_50"}, verr.Missing)
}

func TestAssemble_RejectsInvalidValues(t *testing.T) {
	a := NewAssembler(time.Hour, []string{Close})

	s := set(map[string]models.NullFloat{
		"ema_7":            models.Some(math.Inf(1)),
		"rsi_14":           models.Some(120),
		models.IndBBLower:  models.Some(105),
		models.IndBBMiddle: models.Some(101),
		models.IndBBUpper:  models.Some(103),
	})
	_, err := a.Assemble(s, nil, time.UnixMilli(s.WindowEndMs))
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, errors.Is(err, models.ErrNotReady))
	assert.Equal(t, []string{models.IndBBMiddle, "ema_7", "rsi_14"}, verr.Invalid)

	bad := set(nil)
	bad.High = 101
	_, err = a.Assemble(bad, nil, time.UnixMilli(bad.WindowEndMs))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{High, Low}, verr.Invalid)
}

func TestSentimentSeries_At(t *testing.T) {
	series := NewSentimentSeries([]models.SentimentSnapshot{
		{TsMs: 300}, {TsMs: 100}, {TsMs: 200},
	})
	assert.Nil(t, series.At(99))
	assert.Equal(t, int64(100), series.At(100).TsMs)
	assert.Equal(t, int64(200), series.At(299).TsMs)
	assert.Equal(t, int64(300), series.At(1_000).TsMs)
}

func TestAssembleAll_SkipsRejected(t *testing.T) {
	a := NewAssembler(time.Hour, []string{"sma_7"})
	ok := set(map[string]models.NullFloat{"sma_7": models.Some(100)})
	warm := set(map[string]models.NullFloat{"sma_7": models.Null()})
	warm.WindowStartMs -= 60_000
	warm.WindowEndMs -= 60_000

	vectors, rejected := a.AssembleAll([]models.IndicatorSet{warm, ok}, nil)
	require.Len(t, vectors, 1)
	require.Len(t, rejected, 1)
	assert.Equal(t, ok.WindowStartMs, vectors[0].WindowStartMs)
}

func TestDefaultFeatureNames(t *testing.T) {
	names := DefaultFeatureNames([]string{"sma_7"})
	assert.Equal(t, Open, names[0])
	assert.Contains(t, names, "sma_7")
	assert.Contains(t, names, DowCos)
	assert.Equal(t, SentimentStale, names[len(names)-1])
	assert.Contains(t, names, "sentiment_lag_4h")
	assert.Contains(t, names, "galaxy_score_lag_2h")
	assert.Contains(t, names, SentimentMA24h)
}

func TestAssemble_SentimentLagsAndRollingStats(t *testing.T) {
	a := NewAssembler(30*time.Minute, []string{Close})
	s := set(nil)
	end := time.UnixMilli(s.WindowEndMs)
	at := func(d time.Duration) int64 { return end.Add(-d).UnixMilli() }

	history := NewSentimentSeries([]models.SentimentSnapshot{
		{TsMs: at(30 * time.Hour), Sentiment: models.Some(10), Interactions: models.Some(99)},
		{TsMs: at(4*time.Hour + 10*time.Minute), Sentiment: models.Some(40), GalaxyScore: models.Some(4)},
		{TsMs: at(2*time.Hour + 45*time.Minute), Sentiment: models.Some(50), GalaxyScore: models.Some(5)},
		{TsMs: at(time.Hour), Sentiment: models.Some(60), GalaxyScore: models.Some(6), Interactions: models.Some(math.E - 1)},
		{TsMs: at(5 * time.Minute), Sentiment: models.Some(70), GalaxyScore: models.Some(7)},
	})

	v, err := a.Assemble(s, history, end)
	require.NoError(t, err)
	assert.Equal(t, 70.0, v.Fields[Sentiment])
	assert.Equal(t, 0.0, v.Fields[SentimentStale])

	assert.Equal(t, 60.0, v.Fields["sentiment_lag_1h"])
	assert.Equal(t, 6.0, v.Fields["galaxy_score_lag_1h"])
	// the 2h look-back only finds a snapshot 45m older than itself
	assert.Equal(t, 0.0, v.Fields["sentiment_lag_2h"])
	assert.Equal(t, 40.0, v.Fields["sentiment_lag_4h"])
	assert.Equal(t, 4.0, v.Fields["galaxy_score_lag_4h"])

	// the 30h-old snapshot is outside the rolling day
	assert.InDelta(t, 55.0, v.Fields[SentimentMA24h], 1e-12)
	assert.InDelta(t, math.Sqrt(500.0/3), v.Fields[SentimentStd24h], 1e-9)
	assert.InDelta(t, 1.0, v.Fields[InteractionsMA24h], 1e-12)

	empty, err := a.Assemble(s, nil, end)
	require.NoError(t, err)
	for _, name := range SentimentFeatureNames {
		want := 0.0
		if name == SentimentStale {
			want = 1
		}
		assert.Equal(t, want, empty.Fields[name], name)
	}
}

func TestAssembler_LookbackCoversRollingDay(t *testing.T) {
	a := NewAssembler(15*time.Minute, nil)
	assert.Equal(t, 24*time.Hour+15*time.Minute, a.Lookback())
}
