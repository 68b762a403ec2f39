package models

import (
	"fmt"
	"time"
)

// Hyperparameters of the robust regressor.
type Hyperparameters struct {
	Epsilon      float64 `json:"epsilon"`
	Alpha        float64 `json:"alpha"`
	MaxIter      int     `json:"max_iter"`
	Tol          float64 `json:"tol"`
	FitIntercept bool    `json:"fit_intercept"`
}

// TrainingWindow is the span of data a model was fitted on.
type TrainingWindow struct {
	FromMs  int64 `json:"from_ms"`
	ToMs    int64 `json:"to_ms"`
	Samples int   `json:"samples"`
}

// ValidationMetrics are measured on the held-out, later part of the window.
type ValidationMetrics struct {
	RMSE        float64 `json:"rmse"`
	MAE         float64 `json:"mae"`
	R2          float64 `json:"r2"`
	BaselineMAE float64 `json:"baseline_mae"`
	ResidualStd float64 `json:"residual_std"`
	Samples     int     `json:"samples"`
}

// ModelVersion describes a registered model. It is never modified after registration.
type ModelVersion struct {
	VersionID         string            `json:"version_id"`
	Name              string            `json:"name"`
	Pair              string            `json:"pair"`
	DurationSeconds   int               `json:"duration_seconds"`
	HorizonSeconds    int               `json:"horizon_seconds"`
	TrainedAt         time.Time         `json:"trained_at"`
	Hyperparameters   Hyperparameters   `json:"hyperparameters"`
	FeatureNames      []string          `json:"feature_names"`
	TrainingWindow    TrainingWindow    `json:"training_window"`
	ValidationMetrics ValidationMetrics `json:"validation_metrics"`
	ArtifactReference string            `json:"artifact_reference"`
}

// ModelName builds the registry name of a model, e.g. BTCUSDT_60_300.
func ModelName(pair string, durationSeconds, horizonSeconds int) string {
	return fmt.Sprintf("%s_%d_%d", pair, durationSeconds, horizonSeconds)
}
