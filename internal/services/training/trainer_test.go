package training

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/repository"
	applogger "CandleCast/pkg/logger"
)

func testLogger() *applogger.Logger {
	return applogger.NewNop()
}

// vectors builds a series where the next close follows the momentum feature.
func vectors(n int, seed int64) []models.FeatureVector {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.FeatureVector, n)
	price := 100.0
	for i := range out {
		momentum := rng.NormFloat64()
		out[i] = models.FeatureVector{
			Pair: "BTCUSDT", DurationSeconds: 60,
			WindowStartMs: int64(i) * 60_000, TsMs: int64(i+1) * 60_000,
			Close:  price,
			Fields: map[string]float64{"close": price, "momentum": momentum},
		}
		price += 2*momentum + rng.NormFloat64()*0.05
	}
	return out
}

func testConfig() Config {
	return Config{
		Features:           []string{"close", "momentum"},
		MinSamples:         100,
		ValidationRatio:    0.2,
		Trials:             3,
		Folds:              3,
		Seed:               1,
		PromotionTolerance: 0.05,
		BaselineTolerance:  0.5,
	}
}

func TestTrain_InsufficientDataKeepsCurrentModel(t *testing.T) {
	reg := repository.NewMemoryModelRegistry()
	tr := NewTrainer(testConfig(), reg, testLogger())

	first, err := tr.Train(context.Background(), vectors(400, 1), time.Minute)
	require.NoError(t, err)
	require.True(t, first.Promoted)

	_, err = tr.Train(context.Background(), vectors(1, 2), time.Minute)
	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
	assert.Equal(t, 0, insufficient.Have)
	assert.Equal(t, 100, insufficient.Need)

	current, err := reg.GetCurrent(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, first.Version.VersionID, current.VersionID)
}

func TestTrain_PromotesAndRecordsMetrics(t *testing.T) {
	reg := repository.NewMemoryModelRegistry()
	tr := NewTrainer(testConfig(), reg, testLogger())

	out, err := tr.Train(context.Background(), vectors(500, 3), time.Minute)
	require.NoError(t, err)
	require.True(t, out.Promoted, out.Reason)

	mv := out.Version
	assert.Equal(t, "BTCUSDT_60_60", mv.Name)
	assert.NotEmpty(t, mv.ArtifactReference)
	assert.Equal(t, 499, mv.TrainingWindow.Samples)
	assert.Less(t, mv.ValidationMetrics.MAE, mv.ValidationMetrics.BaselineMAE)
	assert.Greater(t, mv.ValidationMetrics.R2, 0.9)
	assert.False(t, math.IsNaN(mv.ValidationMetrics.ResidualStd))
	assert.Less(t, mv.TrainingWindow.FromMs, mv.TrainingWindow.ToMs)
}

func TestTrain_RejectsWorseCandidate(t *testing.T) {
	reg := repository.NewMemoryModelRegistry()
	tr := NewTrainer(testConfig(), reg, testLogger())
	data := vectors(500, 4)

	first, err := tr.Train(context.Background(), data, time.Minute)
	require.NoError(t, err)
	require.True(t, first.Promoted)

	// scramble momentum in the training part only, so the candidate learns
	// nothing while the promoted model still explains the validation rows
	noisy := make([]models.FeatureVector, len(data))
	rng := rand.New(rand.NewSource(5))
	for i, v := range data {
		if i < 390 {
			v.Fields = map[string]float64{"close": v.Fields["close"], "momentum": rng.NormFloat64()}
		}
		noisy[i] = v
	}
	second, err := tr.Train(context.Background(), noisy, time.Minute)
	require.NoError(t, err)
	assert.False(t, second.Promoted)
	assert.NotEmpty(t, second.Reason)

	current, err := reg.GetCurrent(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, first.Version.VersionID, current.VersionID)
}

func TestTrain_RejectsMixedPairs(t *testing.T) {
	tr := NewTrainer(testConfig(), repository.NewMemoryModelRegistry(), testLogger())
	data := vectors(200, 6)
	data[10].Pair = "ETHUSDT"
	_, err := tr.Train(context.Background(), data, time.Minute)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestBuildSamples_SkipsMissingTargets(t *testing.T) {
	data := vectors(10, 7)
	data = append(data[:4], data[5:]...)
	s := buildSamples(data, []string{"close"}, time.Minute)
	// the last vector has no future and the vector before the gap loses its target
	assert.Len(t, s, 7)
	for _, x := range s {
		assert.NotEqual(t, int64(3*60_000), x.tsMs)
	}
}

func TestSplitSamples_PurgesLabelsReachingValidation(t *testing.T) {
	horizon := 5 * time.Minute
	samples := buildSamples(vectors(100, 8), []string{"close"}, horizon)
	require.Len(t, samples, 95)

	train, valid := splitSamples(samples, 0.2, horizon)
	require.NotEmpty(t, train)
	require.NotEmpty(t, valid)

	lastLabel := train[len(train)-1].tsMs + horizon.Milliseconds()
	assert.Less(t, lastLabel, valid[0].tsMs)
	assert.Equal(t, int64(4_560_000), valid[0].tsMs)
	assert.Len(t, train, 71, "five rows before validation are purged")

	assert.Equal(t, 5, horizonRows(horizon, 60))
	assert.Equal(t, 1, horizonRows(90*time.Second, 120))
}

func TestTrain_LongHorizonStillTrains(t *testing.T) {
	cfg := testConfig()
	tr := NewTrainer(cfg, repository.NewMemoryModelRegistry(), testLogger())

	out, err := tr.Train(context.Background(), vectors(400, 9), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT_60_300", out.Version.Name)
	assert.Equal(t, 395, out.Version.TrainingWindow.Samples)
}
