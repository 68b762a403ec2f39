package indicators

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleCast/internal/domain/models"
)

func candles(closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Pair: "BTCUSDT", Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10,
			WindowStartMs: int64(i) * 60_000, WindowEndMs: int64(i+1) * 60_000, DurationSeconds: 60,
		}
	}
	return out
}

func randomWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 30_000.0
	for i := range out {
		p += rng.NormFloat64() * 25
		out[i] = p
	}
	return out
}

func assertRel(t *testing.T, want, got float64, msg string) {
	t.Helper()
	tol := 1e-9 * math.Max(1, math.Abs(want))
	assert.InDelta(t, want, got, tol, msg)
}

func run(t *testing.T, e *Engine, cs []models.Candle) []models.IndicatorSet {
	t.Helper()
	out := make([]models.IndicatorSet, 0, len(cs))
	for _, c := range cs {
		s, err := e.OnCandle(c)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func TestEngine_SMAAndEMAMatchDirectFormula(t *testing.T) {
	closes := randomWalk(2_000, 1)
	cfg := DefaultConfig()
	sets := run(t, NewEngine("BTCUSDT", 60, cfg), candles(closes))

	for _, k := range cfg.SMAPeriods {
		name := fmt.Sprintf("sma_%d", k)
		for i, s := range sets {
			got := s.Get(name)
			if i+1 < k {
				assert.False(t, got.Valid, "%s at %d must be null", name, i)
				continue
			}
			var sum float64
			for _, c := range closes[i+1-k : i+1] {
				sum += c
			}
			require.True(t, got.Valid)
			assertRel(t, sum/float64(k), got.V, name)
		}
	}

	for _, k := range cfg.EMAPeriods {
		name := fmt.Sprintf("ema_%d", k)
		alpha := 2 / float64(k+1)
		var ema float64
		for i, s := range sets {
			got := s.Get(name)
			switch {
			case i+1 < k:
				assert.False(t, got.Valid)
				continue
			case i+1 == k:
				var sum float64
				for _, c := range closes[:k] {
					sum += c
				}
				ema = sum / float64(k)
			default:
				ema = alpha*closes[i] + (1-alpha)*ema
			}
			require.True(t, got.Valid)
			assertRel(t, ema, got.V, name)
		}
	}
}

func TestEngine_RSIConverges(t *testing.T) {
	up := make([]float64, 100)
	down := make([]float64, 100)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 200 - float64(i)
	}

	last := run(t, NewEngine("BTCUSDT", 60, DefaultConfig()), candles(up))
	assert.InDelta(t, 100, last[len(last)-1].Get("rsi_14").V, 1e-9)

	last = run(t, NewEngine("BTCUSDT", 60, DefaultConfig()), candles(down))
	assert.InDelta(t, 0, last[len(last)-1].Get("rsi_14").V, 1e-9)

	sets := run(t, NewEngine("BTCUSDT", 60, DefaultConfig()), candles(up[:15]))
	assert.False(t, sets[13].Get("rsi_14").Valid)
	assert.True(t, sets[14].Get("rsi_14").Valid)
}

func TestEngine_BollingerAfterTwentyCandles(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = []float64{100, 101, 99, 102}[i%4] + float64(i)/10
	}
	sets := run(t, NewEngine("BTCUSDT", 60, DefaultConfig()), candles(closes))

	assert.False(t, sets[18].Get(models.IndBBMiddle).Valid)
	final := sets[19]

	var mean float64
	for _, c := range closes {
		mean += c
	}
	mean /= 20
	var variance float64
	for _, c := range closes {
		variance += (c - mean) * (c - mean)
	}
	std := math.Sqrt(variance / 20)

	assertRel(t, mean, final.Get(models.IndBBMiddle).V, "middle")
	assertRel(t, mean+2*std, final.Get(models.IndBBUpper).V, "upper")
	assertRel(t, mean-2*std, final.Get(models.IndBBLower).V, "lower")
}

func TestEngine_BollingerLongRunPrecision(t *testing.T) {
	closes := randomWalk(5_000, 3)
	sets := run(t, NewEngine("BTCUSDT", 60, DefaultConfig()), candles(closes))

	window := closes[len(closes)-20:]
	var mean float64
	for _, c := range window {
		mean += c
	}
	mean /= 20
	var variance float64
	for _, c := range window {
		variance += (c - mean) * (c - mean)
	}
	got := sets[len(sets)-1]
	assert.InDelta(t, mean+2*math.Sqrt(variance/20), got.Get(models.IndBBUpper).V, 1e-6)
}

func TestEngine_StaleCandleLeavesStateUntouched(t *testing.T) {
	cs := candles(randomWalk(30, 5))
	e := NewEngine("BTCUSDT", 60, DefaultConfig())
	sets := run(t, e, cs[:25])

	_, err := e.OnCandle(cs[10])
	require.ErrorIs(t, err, models.ErrStaleCandle)
	_, err = e.OnCandle(cs[24])
	require.ErrorIs(t, err, models.ErrStaleCandle)
	assert.Equal(t, 25, e.Processed())

	ref := NewEngine("BTCUSDT", 60, DefaultConfig())
	want := run(t, ref, cs)
	got := append(sets, run(t, e, cs[25:])...)
	assert.Equal(t, want, got)
}

func TestEngine_RejectsForeignLane(t *testing.T) {
	e := NewEngine("BTCUSDT", 60, DefaultConfig())
	_, err := e.OnCandle(models.Candle{Pair: "ETHUSDT", DurationSeconds: 60, WindowStartMs: 0})
	assert.Error(t, err)
}

func TestStochastic_FlatRange(t *testing.T) {
	s := NewStochastic(3, 3)
	for i := 0; i < 2; i++ {
		k, _ := s.Update(10, 10, 10)
		assert.False(t, k.Valid)
	}
	k, d := s.Update(10, 10, 10)
	assert.Equal(t, 50.0, k.V)
	assert.False(t, d.Valid)

	k, _ = s.Update(12, 10, 11)
	assert.InDelta(t, 50.0, k.V, 1e-12)
	k, _ = s.Update(12, 10, 12)
	assert.InDelta(t, 100.0, k.V, 1e-12)

	for i := 0; i < 3; i++ {
		k, d = s.Update(12, 12, 12)
	}
	assert.InDelta(t, 100.0, k.V, 1e-12, "flat range repeats prior %K")
	assert.True(t, d.Valid)
}

func TestStochastic_WindowExtremes(t *testing.T) {
	s := NewStochastic(3, 1)
	highs := []float64{5, 9, 4, 3, 2}
	lows := []float64{1, 2, 0, 1, 1}
	var k models.NullFloat
	for i := range highs {
		k, _ = s.Update(highs[i], lows[i], 2)
	}
	// last three highs {4,3,2}, lows {0,1,1}
	assert.InDelta(t, 100*(2.0-0)/(4-0), k.V, 1e-12)
}

func TestATRAndOBV(t *testing.T) {
	a := NewATR(3)
	assert.False(t, a.Update(11, 9, 10).Valid)
	assert.False(t, a.Update(12, 10, 11).Valid)
	v := a.Update(15, 11, 14)
	require.True(t, v.Valid)
	// TRs: 2, max(2,2,0)=2, max(4,4,0)=4
	assert.InDelta(t, 8.0/3, v.V, 1e-12)
	v = a.Update(14, 13, 13)
	// TR = max(1, 0, 1) = 1
	assert.InDelta(t, (8.0/3*2+1)/3, v.V, 1e-12)

	var o OBV
	assert.Equal(t, 0.0, o.Update(10, 5).V)
	assert.Equal(t, 7.0, o.Update(11, 7).V)
	assert.Equal(t, 7.0, o.Update(11, 3).V)
	assert.Equal(t, 5.0, o.Update(9, 2).V)
}

func TestMACD_WarmUp(t *testing.T) {
	e := NewEngine("BTCUSDT", 60, DefaultConfig())
	sets := run(t, e, candles(randomWalk(40, 9)))
	assert.False(t, sets[24].Get(models.IndMACD).Valid)
	assert.True(t, sets[25].Get(models.IndMACD).Valid)
	assert.False(t, sets[32].Get(models.IndMACDSignal).Valid)
	require.True(t, sets[33].Get(models.IndMACDSignal).Valid)
	s := sets[33]
	assert.InDelta(t, s.Get(models.IndMACD).V-s.Get(models.IndMACDSignal).V, s.Get(models.IndMACDHist).V, 1e-12)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	bad := DefaultConfig()
	bad.MACDSlow = 5
	assert.ErrorIs(t, bad.Validate(), models.ErrConfig)
	assert.Contains(t, DefaultConfig().Names(), "atr_14")
}

func TestEngine_DefaultBollingerReadsEmittedSMA20(t *testing.T) {
	cfg := DefaultConfig()
	assert.Contains(t, cfg.SMAPeriods, 20)
	assert.Contains(t, cfg.Names(), "sma_20")

	e := NewEngine("BTCUSDT", 60, cfg)
	var shared bool
	for _, s := range e.sma {
		if s.name == "sma_20" {
			shared = s.ind == e.boll
		}
	}
	assert.True(t, shared, "bands must use the sma_20 ring")

	sets := run(t, e, candles(randomWalk(60, 3)))
	last := sets[len(sets)-1]
	require.True(t, last.Get("sma_20").Valid)
	assert.Equal(t, last.Get("sma_20").V, last.Get(models.IndBBMiddle).V)
}
