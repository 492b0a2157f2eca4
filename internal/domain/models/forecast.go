package models

import (
	"fmt"
	"time"
)

// Horizon is the forward offset a forecast targets.
type Horizon time.Duration

func (h Horizon) Duration() time.Duration {
	return time.Duration(h)
}

// Label renders the horizon in whole minutes ("15m", "120m"), the key format
// used in reports and the prediction store.
func (h Horizon) Label() string {
	return fmt.Sprintf("%dm", int(time.Duration(h).Minutes()))
}

// Steps converts the horizon into candle steps for the given interval.
func (h Horizon) Steps(interval time.Duration) int {
	if interval <= 0 {
		return 0
	}
	return int(time.Duration(h) / interval)
}

// ConfidenceLabel grades forecast/signal confidence.
type ConfidenceLabel string

const (
	ConfidenceLow    ConfidenceLabel = "LOW"
	ConfidenceMedium ConfidenceLabel = "MEDIUM"
	ConfidenceHigh   ConfidenceLabel = "HIGH"
)

// RetrainSignal is the tracker's recommendation to the orchestration layer.
type RetrainSignal string

const (
	RetrainNone        RetrainSignal = "NONE"
	RetrainRecommended RetrainSignal = "RETRAIN_RECOMMENDED"
)

// ModelForecast is one model's point estimate for one horizon, carrying the
// model's current held-out fit-quality score. Created each cycle, never
// mutated.
type ModelForecast struct {
	Model   string
	Horizon Horizon
	Point   float64
	Score   float64 // fit quality in (-inf, 1]
}

// EnsembleForecast is the weighted combination of the model forecasts for one
// horizon and cycle. Weights are non-negative and sum to 1.
type EnsembleForecast struct {
	Horizon    Horizon
	CycleTime  time.Time
	TargetTime time.Time
	Point      float64
	Lower      float64
	Upper      float64
	Confidence ConfidenceLabel
	Score      float64            // aggregate weighted score
	Weights    map[string]float64 // model name -> weight
	Models     map[string]float64 // model name -> point estimate
}

// ChangePct is the forecast move relative to a base price, in percent.
func (e *EnsembleForecast) ChangePct(base float64) float64 {
	if base == 0 {
		return 0
	}
	return (e.Point/base - 1) * 100
}
