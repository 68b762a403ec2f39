// Package model holds the regression model, its fitting and its evaluation.
package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"CandleCast/internal/domain/models"
)

// Huber is a linear regressor with Huber loss and an L2 penalty, fitted by
// iteratively reweighted least squares. The residual scale is re-estimated
// from the median absolute deviation on every iteration.
type Huber struct {
	Params    models.Hyperparameters `json:"params"`
	Coef      []float64              `json:"coef"`
	Intercept float64                `json:"intercept"`
	Iters     int                    `json:"iters"`
}

var errNoRows = errors.New("no rows to fit")

// Fit estimates coefficients. x must be standardized.
func (h *Huber) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return errNoRows
	}
	p := len(x[0])
	cols := p
	if h.Params.FitIntercept {
		cols++
	}
	if h.Params.MaxIter <= 0 {
		h.Params.MaxIter = 100
	}
	if h.Params.Epsilon < 1 {
		h.Params.Epsilon = 1.35
	}

	design := mat.NewDense(n, cols, nil)
	for i, row := range x {
		for j, v := range row {
			design.Set(i, j, v)
		}
		if h.Params.FitIntercept {
			design.Set(i, p, 1)
		}
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	beta, err := h.solve(design, y, w, p)
	if err != nil {
		return err
	}

	resid := make([]float64, n)
	for h.Iters = 1; h.Iters <= h.Params.MaxIter; h.Iters++ {
		for i := 0; i < n; i++ {
			resid[i] = y[i] - mat.Dot(design.RowView(i), beta)
		}
		scale := madScale(resid)
		if scale == 0 {
			break
		}
		cut := h.Params.Epsilon * scale
		for i, r := range resid {
			if a := math.Abs(r); a > cut {
				w[i] = cut / a
			} else {
				w[i] = 1
			}
		}
		next, err := h.solve(design, y, w, p)
		if err != nil {
			return err
		}
		var delta, size float64
		for j := 0; j < cols; j++ {
			delta = math.Max(delta, math.Abs(next.AtVec(j)-beta.AtVec(j)))
			size = math.Max(size, math.Abs(next.AtVec(j)))
		}
		beta = next
		if delta <= h.Params.Tol*(1+size) {
			break
		}
	}

	h.Coef = make([]float64, p)
	for j := 0; j < p; j++ {
		h.Coef[j] = beta.AtVec(j)
	}
	h.Intercept = 0
	if h.Params.FitIntercept {
		h.Intercept = beta.AtVec(p)
	}
	return nil
}

// solve returns argmin Σ w_i (y_i - x_iβ)² + α|β|², leaving the intercept unpenalized.
func (h *Huber) solve(design *mat.Dense, y, w []float64, p int) (*mat.VecDense, error) {
	n, cols := design.Dims()
	a := mat.NewDense(cols, cols, nil)
	b := mat.NewVecDense(cols, nil)
	for i := 0; i < n; i++ {
		row := design.RawRowView(i)
		for j := 0; j < cols; j++ {
			wj := w[i] * row[j]
			b.SetVec(j, b.AtVec(j)+wj*y[i])
			for k := j; k < cols; k++ {
				a.Set(j, k, a.At(j, k)+wj*row[k])
			}
		}
	}
	for j := 0; j < cols; j++ {
		for k := 0; k < j; k++ {
			a.Set(j, k, a.At(k, j))
		}
		if j < p {
			a.Set(j, j, a.At(j, j)+h.Params.Alpha)
		}
	}
	// keeps the system solvable when a column carries no weight
	for j := 0; j < cols; j++ {
		a.Set(j, j, a.At(j, j)+1e-10)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("solve normal equations: %w", err)
		}
	}
	return &beta, nil
}

// Predict applies the linear model to a standardized row.
func (h *Huber) Predict(row []float64) float64 {
	v := h.Intercept
	for j, c := range h.Coef {
		v += c * row[j]
	}
	return v
}

func madScale(r []float64) float64 {
	abs := make([]float64, len(r))
	for i, v := range r {
		abs[i] = math.Abs(v)
	}
	sort.Float64s(abs)
	var med float64
	if m := len(abs) / 2; len(abs)%2 == 1 {
		med = abs[m]
	} else {
		med = (abs[m-1] + abs[m]) / 2
	}
	return med / 0.6745
}
