package drift

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const psiFloor = 1e-4

// PSI is the population stability index of recent against baseline, using
// bins at the baseline quantiles.
func PSI(recent, baseline []float64, bins int) float64 {
	rec, base := sorted(recent), sorted(baseline)
	if len(rec) == 0 || len(base) == 0 {
		return 0
	}
	if bins < 2 {
		bins = 10
	}

	edges := make([]float64, 0, bins-1)
	for i := 1; i < bins; i++ {
		q := stat.Quantile(float64(i)/float64(bins), stat.Empirical, base, nil)
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}

	rp := proportions(rec, edges)
	bp := proportions(base, edges)
	var psi float64
	for i := range rp {
		r, b := math.Max(rp[i], psiFloor), math.Max(bp[i], psiFloor)
		psi += (r - b) * math.Log(r/b)
	}
	return psi
}

func proportions(values, edges []float64) []float64 {
	counts := make([]float64, len(edges)+1)
	for _, v := range values {
		i := sort.Search(len(edges), func(i int) bool { return edges[i] >= v })
		counts[i]++
	}
	n := float64(len(values))
	for i := range counts {
		counts[i] /= n
	}
	return counts
}

// KS is the two-sample Kolmogorov-Smirnov distance.
func KS(recent, baseline []float64) float64 {
	rec, base := sorted(recent), sorted(baseline)
	if len(rec) == 0 || len(base) == 0 {
		return 0
	}
	return stat.KolmogorovSmirnov(rec, nil, base, nil)
}

func sorted(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	sort.Float64s(out)
	return out
}
