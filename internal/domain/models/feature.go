package models

import "fmt"

// FeatureVector is a validated numeric record ready for the model.
type FeatureVector struct {
	Pair            string             `json:"pair"`
	DurationSeconds int                `json:"duration_seconds"`
	WindowStartMs   int64              `json:"window_start_ms"`
	TsMs            int64              `json:"ts_ms"`
	Close           float64            `json:"close"`
	Fields          map[string]float64 `json:"fields"`
	SentimentStale  bool               `json:"sentiment_stale"`
}

// Row returns the values for names in order. A missing name yields NotReadyError.
func (v FeatureVector) Row(names []string) ([]float64, error) {
	row := make([]float64, len(names))
	var missing []string
	for i, n := range names {
		x, ok := v.Fields[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		row[i] = x
	}
	if len(missing) > 0 {
		return nil, &NotReadyError{Pair: v.Pair, Missing: missing}
	}
	return row, nil
}

// String is used in log lines.
func (v FeatureVector) String() string {
	return fmt.Sprintf("%s/%ds@%d", v.Pair, v.DurationSeconds, v.WindowStartMs)
}
