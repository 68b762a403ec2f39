package indicators

import "CandleCast/internal/domain/models"

// RSI uses Wilder smoothing seeded by the mean of the first k gains and losses.
type RSI struct {
	period  int
	prev    float64
	hasPrev bool
	count   int
	avgGain float64
	avgLoss float64
}

func NewRSI(period int) *RSI { return &RSI{period: period} }

func (r *RSI) Update(close float64) models.NullFloat {
	if !r.hasPrev {
		r.prev, r.hasPrev = close, true
		return models.Null()
	}
	delta := close - r.prev
	r.prev = close
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	k := float64(r.period)
	r.count++
	if r.count <= r.period {
		r.avgGain += gain / k
		r.avgLoss += loss / k
		if r.count < r.period {
			return models.Null()
		}
	} else {
		r.avgGain = (r.avgGain*(k-1) + gain) / k
		r.avgLoss = (r.avgLoss*(k-1) + loss) / k
	}

	if r.avgLoss == 0 {
		return models.Some(100)
	}
	rs := r.avgGain / r.avgLoss
	return models.Some(100 - 100/(1+rs))
}
