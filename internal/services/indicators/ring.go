package indicators

import (
	"math"

	"CandleCast/internal/domain/models"
)

// SMA keeps the last k values in a ring buffer with a running sum and a
// sliding mean/M2 pair for the population variance of the same window.
// The aggregates are recomputed from the buffer each time it wraps, which
// keeps float error bounded at amortized O(1) cost.
type SMA struct {
	buf  []float64
	next int
	n    int
	sum  float64
	mean float64
	m2   float64
}

func NewSMA(period int) *SMA {
	return &SMA{buf: make([]float64, period)}
}

func (s *SMA) Period() int { return len(s.buf) }

func (s *SMA) Ready() bool { return s.n == len(s.buf) }

// Update pushes x and returns the average once the window is full.
func (s *SMA) Update(x float64) models.NullFloat {
	k := len(s.buf)
	if s.n < k {
		s.buf[s.next] = x
		s.n++
		s.sum += x
		d := x - s.mean
		s.mean += d / float64(s.n)
		s.m2 += d * (x - s.mean)
	} else {
		old := s.buf[s.next]
		s.buf[s.next] = x
		s.sum += x - old
		newMean := s.mean + (x-old)/float64(k)
		s.m2 += (x - old) * (x - newMean + old - s.mean)
		s.mean = newMean
	}
	s.next++
	if s.next == k {
		s.next = 0
		if s.n == k {
			s.resum()
		}
	}
	return s.Value()
}

func (s *SMA) resum() {
	var sum float64
	for _, v := range s.buf {
		sum += v
	}
	mean := sum / float64(len(s.buf))
	var m2 float64
	for _, v := range s.buf {
		d := v - mean
		m2 += d * d
	}
	s.sum, s.mean, s.m2 = sum, mean, m2
}

func (s *SMA) Value() models.NullFloat {
	if !s.Ready() {
		return models.Null()
	}
	return models.Some(s.sum / float64(len(s.buf)))
}

// PopStdDev is the population standard deviation of the window.
func (s *SMA) PopStdDev() models.NullFloat {
	if !s.Ready() {
		return models.Null()
	}
	v := s.m2 / float64(len(s.buf))
	if v < 0 {
		v = 0
	}
	return models.Some(math.Sqrt(v))
}
