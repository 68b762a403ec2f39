package models

import "time"

// Drift statistic methods.
const (
	DriftPSI = "psi"
	DriftKS  = "ks"
	DriftMAE = "mae_increase"
	// DriftShare is the fraction of feature series breaching their threshold.
	DriftShare = "share"
)

// DriftWindow describes what a drift check compared.
type DriftWindow struct {
	RecentFromMs    int64 `json:"recent_from_ms"`
	RecentToMs      int64 `json:"recent_to_ms"`
	BaselineFromMs  int64 `json:"baseline_from_ms"`
	BaselineToMs    int64 `json:"baseline_to_ms"`
	RecentSamples   int   `json:"recent_samples"`
	BaselineSamples int   `json:"baseline_samples"`
}

// DriftReport is the result of one check of one feature or prediction series.
type DriftReport struct {
	Pair      string      `json:"pair"`
	Name      string      `json:"name"`
	Method    string      `json:"method"`
	Statistic float64     `json:"statistic"`
	Threshold float64     `json:"threshold"`
	Breaches  int         `json:"breaches"`
	Triggered bool        `json:"triggered"`
	Window    DriftWindow `json:"window"`
	CheckedAt time.Time   `json:"checked_at"`
}
