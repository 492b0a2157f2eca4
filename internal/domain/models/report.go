package models

import "time"

// CycleReport is the structured record a completed cycle hands to its
// consumers (HTTP API, Kafka sink, cache). Field names are the service's
// public contract.
type CycleReport struct {
	CycleID          string             `json:"cycle_id"`
	GeneratedAt      time.Time          `json:"generated_at"`
	Symbol           string             `json:"symbol"`
	Interval         string             `json:"interval"`
	CurrentPrice     float64            `json:"current_price"`
	LastCandleAt     time.Time          `json:"last_candle_at"`
	Predictions      []PredictionEntry  `json:"predictions"`
	Signal           SignalReport       `json:"signal"`
	Trend            TrendReport        `json:"trend"`
	ModelPerformance []ModelPerformance `json:"model_performance"`
	EnsembleScore    float64            `json:"ensemble_score"`
	Accuracy         *AccuracySummary   `json:"accuracy,omitempty"`
	Retrain          RetrainSignal      `json:"retrain"`
}

// PredictionEntry is one horizon's forecast in the report.
type PredictionEntry struct {
	Horizon    string          `json:"horizon"`
	Price      float64         `json:"price"`
	ChangePct  float64         `json:"change_pct"`
	TargetTime time.Time       `json:"target_time"`
	Lower      float64         `json:"lower"`
	Upper      float64         `json:"upper"`
	Confidence ConfidenceLabel `json:"confidence"`
}

// SignalReport is the trading signal block of a report.
type SignalReport struct {
	Action     SignalAction    `json:"action"`
	Confidence ConfidenceLabel `json:"confidence"`
	Entry      float64         `json:"entry"`
	Stop       float64         `json:"stop"`
	Target     float64         `json:"target"`
	RiskReward float64         `json:"risk_reward"`
	Reasoning  []string        `json:"reasoning,omitempty"`
}

// TrendReport is the trend block of a report.
type TrendReport struct {
	Label       TrendLabel      `json:"label"`
	Confidence  ConfidenceLabel `json:"confidence"`
	MAAlignment TrendBias       `json:"ma_alignment"`
	PriceAction TrendBias       `json:"price_action"`
	Momentum    TrendBias       `json:"momentum"`
	RSI         float64         `json:"rsi"`
	MACD        string          `json:"macd"` // bullish | bearish
}

// ModelPerformance is one model's score and ensemble weight.
type ModelPerformance struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// AccuracySummary aggregates validation outcomes from the prediction store.
type AccuracySummary struct {
	TotalPredictions    int                        `json:"total_predictions"`
	TotalValidated      int                        `json:"total_validated"`
	Pending             int                        `json:"pending"`
	AvgError            float64                    `json:"avg_error"`
	AvgErrorPct         float64                    `json:"avg_error_pct"`
	DirectionalAccuracy float64                    `json:"directional_accuracy"` // percent, all-time
	RollingAccuracy     float64                    `json:"rolling_accuracy"`     // fraction over the window
	RollingWindow       int                        `json:"rolling_window"`
	BestHorizon         string                     `json:"best_horizon,omitempty"`
	ByHorizon           map[string]HorizonAccuracy `json:"by_horizon,omitempty"`
	ByModel             map[string]ModelAccuracy   `json:"by_model,omitempty"`
	ByCondition         map[string]HorizonAccuracy `json:"by_condition,omitempty"` // keyed by trend label at prediction time
	LastUpdated         time.Time                  `json:"last_updated"`
}

// HorizonAccuracy is a per-horizon accuracy breakdown.
type HorizonAccuracy struct {
	Count               int     `json:"count"`
	AvgError            float64 `json:"avg_error"`
	AvgErrorPct         float64 `json:"avg_error_pct"`
	DirectionalAccuracy float64 `json:"directional_accuracy"`
}

// ModelAccuracy is a per-model accuracy breakdown from validated records.
type ModelAccuracy struct {
	Count               int     `json:"count"`
	AvgErrorPct         float64 `json:"avg_error_pct"`
	DirectionalAccuracy float64 `json:"directional_accuracy"`
}
