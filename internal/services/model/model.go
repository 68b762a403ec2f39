package model

import (
	"encoding/json"
	"fmt"

	"CandleCast/internal/domain/models"
)

// Model predicts the price change over the horizon and adds it to the
// current close.
type Model struct {
	Features   []string `json:"features"`
	Scaler     Scaler   `json:"scaler"`
	Regressor  Huber    `json:"regressor"`
	TargetMean float64  `json:"target_mean"`
	TargetStd  float64  `json:"target_std"`
}

// Fit trains a model with the given hyperparameters on raw rows and price changes.
func Fit(features []string, x [][]float64, dy []float64, params models.Hyperparameters) (*Model, error) {
	if len(x) == 0 {
		return nil, errNoRows
	}
	m := &Model{Features: append([]string(nil), features...), Scaler: FitScaler(x)}
	m.TargetMean, m.TargetStd = meanStd(dy)
	if m.TargetStd < 1e-12 {
		m.TargetStd = 1
	}
	ys := make([]float64, len(dy))
	for i, v := range dy {
		ys[i] = (v - m.TargetMean) / m.TargetStd
	}
	m.Regressor = Huber{Params: params}
	if err := m.Regressor.Fit(m.Scaler.TransformAll(x), ys); err != nil {
		return nil, err
	}
	return m, nil
}

// PredictDelta returns the expected price change for a raw feature row.
func (m *Model) PredictDelta(row []float64) float64 {
	return m.Regressor.Predict(m.Scaler.Transform(row))*m.TargetStd + m.TargetMean
}

// PredictPrice returns close plus the expected change.
func (m *Model) PredictPrice(close float64, row []float64) float64 {
	return close + m.PredictDelta(row)
}

// Marshal encodes the artifact.
func (m *Model) Marshal() ([]byte, error) { return json.Marshal(m) }

// Unmarshal decodes an artifact and checks its shape.
func Unmarshal(b []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	p := len(m.Features)
	if len(m.Scaler.Mean) != p || len(m.Scaler.Std) != p || len(m.Regressor.Coef) != p {
		return nil, fmt.Errorf("model artifact has %d features but scaler/coef sizes %d/%d/%d",
			p, len(m.Scaler.Mean), len(m.Scaler.Std), len(m.Regressor.Coef))
	}
	return &m, nil
}
