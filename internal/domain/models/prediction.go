package models

// Prediction is an emitted price forecast. Append-only.
type Prediction struct {
	Pair            string  `json:"pair"`
	TsMs            int64   `json:"ts_ms"`
	ModelVersion    string  `json:"model_version"`
	PredictedPrice  float64 `json:"predicted_price"`
	ConfidenceLower float64 `json:"confidence_lower"`
	ConfidenceUpper float64 `json:"confidence_upper"`
	PredictedTsMs   int64   `json:"predicted_ts_ms"`
}

// PredictionRecord is a prediction stored with the features it was made from.
type PredictionRecord struct {
	Prediction
	Features map[string]float64 `json:"features,omitempty"`
}
