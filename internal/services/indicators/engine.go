// Package indicators maintains incremental technical indicator state per
// (pair, duration) lane.
package indicators

import (
	"fmt"
	"sort"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"CandleCast/internal/domain/models"
)

// Config selects indicator periods. Zero fields take the tag defaults.
type Config struct {
	SMAPeriods      []int   `yaml:"sma_periods" default:"[7,14,20,21,50]" validate:"dive,gte=2,lte=1000"`
	EMAPeriods      []int   `yaml:"ema_periods" default:"[7,14,21,50]" validate:"dive,gte=2,lte=1000"`
	RSIPeriods      []int   `yaml:"rsi_periods" default:"[7,14,21]" validate:"dive,gte=2,lte=1000"`
	MACDFast        int     `yaml:"macd_fast" default:"12" validate:"gte=2"`
	MACDSlow        int     `yaml:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal      int     `yaml:"macd_signal" default:"9" validate:"gte=2"`
	BollingerPeriod int     `yaml:"bollinger_period" default:"20" validate:"gte=2"`
	BollingerK      float64 `yaml:"bollinger_k" default:"2" validate:"gt=0"`
	StochPeriod     int     `yaml:"stoch_period" default:"14" validate:"gte=2"`
	StochSmooth     int     `yaml:"stoch_smooth" default:"3" validate:"gte=1"`
	ATRPeriod       int     `yaml:"atr_period" default:"14" validate:"gte=2"`
}

// DefaultConfig returns the standard indicator periods.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

// Validate checks period bounds.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return &models.ConfigError{Field: "indicators", Reason: err.Error()}
	}
	return nil
}

// Names lists every indicator an engine with this config emits.
func (c Config) Names() []string {
	var names []string
	for _, p := range c.SMAPeriods {
		names = append(names, fmt.Sprintf("sma_%d", p))
	}
	for _, p := range c.EMAPeriods {
		names = append(names, fmt.Sprintf("ema_%d", p))
	}
	for _, p := range c.RSIPeriods {
		names = append(names, fmt.Sprintf("rsi_%d", p))
	}
	names = append(names,
		models.IndMACD, models.IndMACDSignal, models.IndMACDHist,
		models.IndBBUpper, models.IndBBMiddle, models.IndBBLower,
		models.IndStochK, models.IndStochD,
		fmt.Sprintf("atr_%d", c.ATRPeriod),
		models.IndOBV,
	)
	return names
}

type named[T any] struct {
	name string
	ind  T
}

// Engine holds the indicator state of one (pair, duration) lane. It is owned
// by a single worker and is not safe for concurrent use.
type Engine struct {
	cfg             Config
	pair            string
	durationSeconds int

	sma   []named[*SMA]
	boll  *SMA
	ema   []named[*EMA]
	rsi   []named[*RSI]
	macd  *MACD
	stoch *Stochastic
	atr   *ATR
	atrN  string
	obv   OBV

	lastStart int64
	processed int
}

// NewEngine builds empty state for a lane.
func NewEngine(pair string, durationSeconds int, cfg Config) *Engine {
	_ = defaults.Set(&cfg)
	e := &Engine{
		cfg:             cfg,
		pair:            pair,
		durationSeconds: durationSeconds,
		macd:            NewMACD(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal),
		stoch:           NewStochastic(cfg.StochPeriod, cfg.StochSmooth),
		atr:             NewATR(cfg.ATRPeriod),
		atrN:            fmt.Sprintf("atr_%d", cfg.ATRPeriod),
	}

	periods := append([]int(nil), cfg.SMAPeriods...)
	sort.Ints(periods)
	for _, p := range periods {
		s := NewSMA(p)
		e.sma = append(e.sma, named[*SMA]{name: fmt.Sprintf("sma_%d", p), ind: s})
		if p == cfg.BollingerPeriod {
			e.boll = s
		}
	}
	if e.boll == nil {
		// bands need their own window when the period is not emitted as an SMA
		e.boll = NewSMA(cfg.BollingerPeriod)
	}
	for _, p := range cfg.EMAPeriods {
		e.ema = append(e.ema, named[*EMA]{name: fmt.Sprintf("ema_%d", p), ind: NewEMA(p)})
	}
	for _, p := range cfg.RSIPeriods {
		e.rsi = append(e.rsi, named[*RSI]{name: fmt.Sprintf("rsi_%d", p), ind: NewRSI(p)})
	}
	return e
}

// Processed returns the number of candles folded into the state.
func (e *Engine) Processed() int { return e.processed }

// OnCandle folds a closed candle into the state and returns the enriched record.
// Candles must arrive in window order; anything at or before the last processed
// window is rejected with ErrStaleCandle and leaves the state untouched.
func (e *Engine) OnCandle(c models.Candle) (models.IndicatorSet, error) {
	if c.Pair != e.pair || c.DurationSeconds != e.durationSeconds {
		return models.IndicatorSet{}, fmt.Errorf("engine %s/%ds got candle for %s/%ds",
			e.pair, e.durationSeconds, c.Pair, c.DurationSeconds)
	}
	if e.processed > 0 && c.WindowStartMs <= e.lastStart {
		return models.IndicatorSet{}, fmt.Errorf("%s/%ds window %d: %w", c.Pair, c.DurationSeconds, c.WindowStartMs, models.ErrStaleCandle)
	}
	e.lastStart = c.WindowStartMs
	e.processed++

	v := make(map[string]models.NullFloat, len(e.sma)+len(e.ema)+len(e.rsi)+10)
	bollShared := false
	for _, s := range e.sma {
		v[s.name] = s.ind.Update(c.Close)
		if s.ind == e.boll {
			bollShared = true
		}
	}
	if !bollShared {
		e.boll.Update(c.Close)
	}
	for _, m := range e.ema {
		v[m.name] = m.ind.Update(c.Close)
	}
	for _, r := range e.rsi {
		v[r.name] = r.ind.Update(c.Close)
	}

	v[models.IndMACD], v[models.IndMACDSignal], v[models.IndMACDHist] = e.macd.Update(c.Close)

	mid, sd := e.boll.Value(), e.boll.PopStdDev()
	if mid.Valid && sd.Valid {
		v[models.IndBBMiddle] = mid
		v[models.IndBBUpper] = models.Some(mid.V + e.cfg.BollingerK*sd.V)
		v[models.IndBBLower] = models.Some(mid.V - e.cfg.BollingerK*sd.V)
	} else {
		v[models.IndBBMiddle], v[models.IndBBUpper], v[models.IndBBLower] = models.Null(), models.Null(), models.Null()
	}

	v[models.IndStochK], v[models.IndStochD] = e.stoch.Update(c.High, c.Low, c.Close)
	v[e.atrN] = e.atr.Update(c.High, c.Low, c.Close)
	v[models.IndOBV] = e.obv.Update(c.Close, c.Volume)

	return models.IndicatorSet{Candle: c, Values: v}, nil
}
