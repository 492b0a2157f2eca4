package models

import "time"

// PredictionStatus is the lifecycle state of a stored prediction.
// PENDING -> VALIDATED is the only legal transition; VALIDATED is terminal.
type PredictionStatus string

const (
	StatusPending   PredictionStatus = "PENDING"
	StatusValidated PredictionStatus = "VALIDATED"
)

// PredictionRecord is a persisted ensemble forecast awaiting validation.
// Records are append-only; the realized-outcome fields are written exactly
// once, when the target time has passed and a realized price is available.
type PredictionRecord struct {
	ID         string           `json:"id"`
	CycleID    string           `json:"cycle_id"`
	Symbol     string           `json:"symbol"`
	CreatedAt  time.Time        `json:"created_at"`
	TargetTime time.Time        `json:"target_time"`
	Horizon    string           `json:"horizon"`
	BasePrice  float64          `json:"base_price"` // price when the prediction was made
	Forecast   float64          `json:"forecast"`
	Lower      float64          `json:"lower"`
	Upper      float64          `json:"upper"`
	Confidence ConfidenceLabel  `json:"confidence"`
	Condition  string           `json:"condition,omitempty"` // market trend label at prediction time
	Weights    map[string]float64 `json:"weights,omitempty"`
	Models     map[string]float64 `json:"models,omitempty"` // per-model points for per-model validation
	Status     PredictionStatus `json:"status"`
	Validation *ValidationResult `json:"validation,omitempty"`
}

// PredictedUp reports the forecast direction relative to the base price.
// A forecast equal to the base counts as down, matching how directional
// correctness has always been scored here.
func (r *PredictionRecord) PredictedUp() bool {
	return r.Forecast > r.BasePrice
}

// ValidationResult holds the realized outcome attached to a record.
type ValidationResult struct {
	ValidatedAt      time.Time `json:"validated_at"`
	Realized         float64   `json:"realized"`
	SignedError      float64   `json:"signed_error"` // forecast - realized
	AbsError         float64   `json:"abs_error"`
	PctError         float64   `json:"pct_error"`
	DirectionCorrect bool      `json:"direction_correct"`
	ModelOutcomes    map[string]ModelOutcome `json:"model_outcomes,omitempty"`
}

// ModelOutcome is the per-model slice of a validation.
type ModelOutcome struct {
	AbsError         float64 `json:"abs_error"`
	PctError         float64 `json:"pct_error"`
	DirectionCorrect bool    `json:"direction_correct"`
}
