package indicators

import "CandleCast/internal/domain/models"

// EMA is seeded with the simple average of the first k values.
type EMA struct {
	period int
	alpha  float64
	count  int
	seed   float64
	value  float64
}

func NewEMA(period int) *EMA {
	return &EMA{period: period, alpha: 2 / float64(period+1)}
}

func (e *EMA) Update(x float64) models.NullFloat {
	e.count++
	switch {
	case e.count < e.period:
		e.seed += x
		return models.Null()
	case e.count == e.period:
		e.seed += x
		e.value = e.seed / float64(e.period)
	default:
		e.value = e.alpha*x + (1-e.alpha)*e.value
	}
	return models.Some(e.value)
}

func (e *EMA) Value() models.NullFloat {
	if e.count < e.period {
		return models.Null()
	}
	return models.Some(e.value)
}
