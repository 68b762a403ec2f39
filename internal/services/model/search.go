package model

import (
	"context"
	"math"
	"math/rand"

	"CandleCast/internal/domain/models"
)

// SearchConfig bounds the hyperparameter search.
type SearchConfig struct {
	Trials int
	Folds  int
	Seed   int64
	// Gap is the number of rows purged between each training block and its
	// test block. It must cover the label horizon in rows.
	Gap int
}

// Trial is one evaluated hyperparameter set.
type Trial struct {
	Params models.Hyperparameters
	MAE    float64
}

// Sample draws hyperparameters from the search space.
func Sample(rng *rand.Rand) models.Hyperparameters {
	return models.Hyperparameters{
		Epsilon:      1.1 + rng.Float64()*1.9,
		Alpha:        logUniform(rng, 1e-4, 1),
		MaxIter:      50 + rng.Intn(251),
		Tol:          logUniform(rng, 1e-5, 1e-2),
		FitIntercept: rng.Intn(2) == 0,
	}
}

func logUniform(rng *rand.Rand, lo, hi float64) float64 {
	return math.Exp(math.Log(lo) + rng.Float64()*(math.Log(hi)-math.Log(lo)))
}

// Folds returns expanding-window splits: each fold trains on everything before
// its test block except the last gap rows, whose labels overlap the test block.
// Folds left without training rows are dropped.
func Folds(n, k, gap int) [][2][2]int {
	if k < 1 || n < k+1 {
		return nil
	}
	if gap < 0 {
		gap = 0
	}
	size := n / (k + 1)
	if size == 0 {
		return nil
	}
	out := make([][2][2]int, 0, k)
	for i := 1; i <= k; i++ {
		testStart, testEnd := i*size, (i+1)*size
		if i == k {
			testEnd = n
		}
		trainEnd := testStart - gap
		if trainEnd < 1 {
			continue
		}
		out = append(out, [2][2]int{{0, trainEnd}, {testStart, testEnd}})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Search runs a fixed number of random trials and returns the best one by mean
// cross-validated MAE. The first trial uses the regressor defaults.
func Search(ctx context.Context, features []string, x [][]float64, dy []float64, cfg SearchConfig) (Trial, []Trial, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	folds := Folds(len(x), cfg.Folds, cfg.Gap)
	if len(folds) == 0 {
		folds = [][2][2]int{{{0, len(x)}, {0, len(x)}}}
	}
	trials := cfg.Trials
	if trials < 1 {
		trials = 1
	}

	best := Trial{MAE: math.Inf(1)}
	all := make([]Trial, 0, trials)
	for t := 0; t < trials; t++ {
		if err := ctx.Err(); err != nil {
			return best, all, err
		}
		params := models.Hyperparameters{Epsilon: 1.35, Alpha: 1e-4, MaxIter: 100, Tol: 1e-5, FitIntercept: true}
		if t > 0 {
			params = Sample(rng)
		}

		var total float64
		var used int
		for _, f := range folds {
			tr, te := f[0], f[1]
			m, err := Fit(features, x[tr[0]:tr[1]], dy[tr[0]:tr[1]], params)
			if err != nil {
				continue
			}
			pred := make([]float64, te[1]-te[0])
			for i := range pred {
				pred[i] = m.PredictDelta(x[te[0]+i])
			}
			total += MAE(pred, dy[te[0]:te[1]])
			used++
		}
		if used == 0 {
			continue
		}
		trial := Trial{Params: params, MAE: total / float64(used)}
		all = append(all, trial)
		if trial.MAE < best.MAE {
			best = trial
		}
	}
	if math.IsInf(best.MAE, 1) {
		return best, all, errNoRows
	}
	return best, all, nil
}
