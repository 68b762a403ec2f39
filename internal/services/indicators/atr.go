package indicators

import (
	"math"

	"CandleCast/internal/domain/models"
)

// ATR is Wilder's average true range. The first candle has no previous close,
// so its true range is high - low.
type ATR struct {
	period    int
	prevClose float64
	count     int
	value     float64
}

func NewATR(period int) *ATR { return &ATR{period: period} }

func (a *ATR) Update(high, low, close float64) models.NullFloat {
	tr := high - low
	if a.count > 0 {
		tr = math.Max(tr, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	}
	a.prevClose = close
	a.count++

	k := float64(a.period)
	switch {
	case a.count < a.period:
		a.value += tr / k
		return models.Null()
	case a.count == a.period:
		a.value += tr / k
	default:
		a.value = (a.value*(k-1) + tr) / k
	}
	return models.Some(a.value)
}

// OBV accumulates volume signed by the close-to-close direction.
type OBV struct {
	prevClose float64
	started   bool
	value     float64
}

func (o *OBV) Update(close, volume float64) models.NullFloat {
	if o.started {
		switch {
		case close > o.prevClose:
			o.value += volume
		case close < o.prevClose:
			o.value -= volume
		}
	}
	o.started = true
	o.prevClose = close
	return models.Some(o.value)
}
