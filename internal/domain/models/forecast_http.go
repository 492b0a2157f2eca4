package models

import "time"

// Requests and responses for the forecast HTTP endpoints. Defined in domain
// for consistency and reuse.

type PredictionsRequest struct {
	Status  string `query:"status" json:"status" validate:"omitempty,oneof=PENDING VALIDATED"`
	Horizon string `query:"horizon" json:"horizon" validate:"omitempty"`
	Since   string `query:"since" json:"since" validate:"omitempty"`
	Limit   int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type AccuracyRequest struct {
	Window int `query:"window" json:"window" default:"0" validate:"gte=0,lte=1000"`
}

type ReportsRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}

type CycleTriggerRequest struct {
	Async bool `query:"async" json:"async"`
}

// HealthResponse reports service liveness and dependency checks.
type HealthResponse struct {
	Status string            `json:"status"` // ok | degraded
	Time   time.Time         `json:"time"`
	Checks map[string]string `json:"checks"`
}

// ModelsStatusResponse exposes the latest cycle's per-model scores and
// weights, the historical reliability multipliers and the current retrain
// recommendation. Performance is empty until a cycle has run.
type ModelsStatusResponse struct {
	Performance []ModelPerformance `json:"performance,omitempty"`
	Reliability map[string]float64 `json:"reliability"`
	Retrain     RetrainSignal      `json:"retrain"`
}
