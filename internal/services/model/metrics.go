package model

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scores are regression metrics on a held-out set.
type Scores struct {
	RMSE        float64
	MAE         float64
	R2          float64
	ResidualStd float64
	N           int
}

// Evaluate scores predictions against actual values.
func Evaluate(pred, actual []float64) Scores {
	n := len(actual)
	if n == 0 {
		return Scores{}
	}
	resid := make([]float64, n)
	var se, ae float64
	for i := range actual {
		r := actual[i] - pred[i]
		resid[i] = r
		se += r * r
		ae += math.Abs(r)
	}
	s := Scores{
		RMSE: math.Sqrt(se / float64(n)),
		MAE:  ae / float64(n),
		N:    n,
	}
	if n > 1 {
		s.ResidualStd = stat.StdDev(resid, nil)
		s.R2 = stat.RSquaredFrom(pred, actual, nil)
	}
	if math.IsNaN(s.R2) || math.IsInf(s.R2, 0) {
		s.R2 = 0
	}
	return s
}

// MAE is the mean absolute error.
func MAE(pred, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var s float64
	for i := range actual {
		s += math.Abs(actual[i] - pred[i])
	}
	return s / float64(len(actual))
}

func meanStd(v []float64) (float64, float64) {
	if len(v) < 2 {
		if len(v) == 1 {
			return v[0], 0
		}
		return 0, 0
	}
	return stat.MeanStdDev(v, nil)
}
