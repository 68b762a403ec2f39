package indicators

import "CandleCast/internal/domain/models"

// MACD is EMA(fast) - EMA(slow) with an EMA signal line over the MACD values.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fast: NewEMA(fast), slow: NewEMA(slow), signal: NewEMA(signal)}
}

func (m *MACD) Update(close float64) (macd, signal, hist models.NullFloat) {
	f := m.fast.Update(close)
	s := m.slow.Update(close)
	if !f.Valid || !s.Valid {
		return models.Null(), models.Null(), models.Null()
	}
	macd = models.Some(f.V - s.V)
	signal = m.signal.Update(macd.V)
	if !signal.Valid {
		return macd, signal, models.Null()
	}
	return macd, signal, models.Some(macd.V - signal.V)
}
