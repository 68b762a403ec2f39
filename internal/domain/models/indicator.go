package models

import (
	"encoding/json"
	"sort"
)

// Indicator names shared by the engine, the feature assembler and storage.
const (
	IndMACD       = "macd"
	IndMACDSignal = "macd_signal"
	IndMACDHist   = "macd_hist"
	IndBBUpper    = "bb_upper"
	IndBBMiddle   = "bb_middle"
	IndBBLower    = "bb_lower"
	IndStochK     = "stoch_k"
	IndStochD     = "stoch_d"
	IndOBV        = "obv"
)

// IndicatorSet is a closed candle enriched with indicator values. Values that
// have not finished warming up are null.
type IndicatorSet struct {
	Candle
	Values map[string]NullFloat
}

// Get returns the named indicator, null if unknown.
func (s IndicatorSet) Get(name string) NullFloat {
	return s.Values[name]
}

// Names returns the indicator names in stable order.
func (s IndicatorSet) Names() []string {
	names := make([]string, 0, len(s.Values))
	for k := range s.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var candleKeys = map[string]struct{}{
	"pair": {}, "open": {}, "high": {}, "low": {}, "close": {}, "volume": {},
	"window_start_ms": {}, "window_end_ms": {}, "duration_seconds": {},
}

// MarshalJSON writes candle fields and indicators as one flat object.
func (s IndicatorSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(candleKeys)+len(s.Values))
	for k, v := range s.Values {
		out[k] = v
	}
	out["pair"] = s.Pair
	out["open"] = s.Open
	out["high"] = s.High
	out["low"] = s.Low
	out["close"] = s.Close
	out["volume"] = s.Volume
	out["window_start_ms"] = s.WindowStartMs
	out["window_end_ms"] = s.WindowEndMs
	out["duration_seconds"] = s.DurationSeconds
	return json.Marshal(out)
}

func (s *IndicatorSet) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &s.Candle); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Values = make(map[string]NullFloat, len(raw))
	for k, v := range raw {
		if _, ok := candleKeys[k]; ok {
			continue
		}
		var nf NullFloat
		if err := nf.UnmarshalJSON(v); err != nil {
			return err
		}
		s.Values[k] = nf
	}
	return nil
}
