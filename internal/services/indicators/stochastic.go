package indicators

import "CandleCast/internal/domain/models"

type entry struct {
	idx int
	v   float64
}

// extremum is a monotonic deque giving the max (or min) of a sliding window.
type extremum struct {
	period int
	max    bool
	q      []entry
}

func (e *extremum) push(idx int, v float64) float64 {
	for len(e.q) > 0 {
		back := e.q[len(e.q)-1].v
		if (e.max && back <= v) || (!e.max && back >= v) {
			e.q = e.q[:len(e.q)-1]
			continue
		}
		break
	}
	e.q = append(e.q, entry{idx: idx, v: v})
	for e.q[0].idx <= idx-e.period {
		e.q = e.q[1:]
	}
	return e.q[0].v
}

// Stochastic computes %K over k candles and %D as the SMA of %K.
type Stochastic struct {
	period int
	idx    int
	highs  extremum
	lows   extremum
	prevK  models.NullFloat
	d      *SMA
}

func NewStochastic(period, smooth int) *Stochastic {
	return &Stochastic{
		period: period,
		highs:  extremum{period: period, max: true},
		lows:   extremum{period: period},
		d:      NewSMA(smooth),
	}
}

func (s *Stochastic) Update(high, low, close float64) (k, d models.NullFloat) {
	hh := s.highs.push(s.idx, high)
	ll := s.lows.push(s.idx, low)
	s.idx++
	if s.idx < s.period {
		return models.Null(), models.Null()
	}

	switch {
	case hh > ll:
		k = models.Some(100 * (close - ll) / (hh - ll))
	case s.prevK.Valid:
		k = s.prevK
	default:
		k = models.Some(50)
	}
	s.prevK = k
	return k, s.d.Update(k.V)
}
