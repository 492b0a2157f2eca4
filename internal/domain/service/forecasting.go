package service

import (
	"context"
	"time"

	"EthCast/internal/domain/models"
)

// FeatureBuilder derives the indicator feature frame from candle history.
type FeatureBuilder interface {
	Build(candles []models.Candle) (*models.FeatureFrame, error)
	MaxWindow() int
}

// TrainingSet is the read-only input shared by all regressors in one cycle.
// Closes and Times are aligned with Frame.Rows.
type TrainingSet struct {
	Frame    *models.FeatureFrame
	Closes   []float64
	Times    []time.Time
	Interval time.Duration
	Horizons []models.Horizon
	Holdout  int // trailing samples held out for scoring, never fitted on
}

// Regressor is one forecasting model: fit on history, forecast a number of
// candle steps ahead, and report held-out fit quality.
type Regressor interface {
	Name() string
	Fit(ctx context.Context, set *TrainingSet) error
	Forecast(steps int) (float64, error)
	Score() float64 // fit quality in (-inf, 1], valid after Fit
}

// ModelRun is the outcome of fitting the model set for one cycle.
type ModelRun struct {
	Forecasts map[models.Horizon][]models.ModelForecast
	Scores    map[string]float64
	Excluded  map[string]error // models dropped from this cycle
}

// ModelSet fits all regressors (optionally in parallel) and collects their
// per-horizon forecasts. Failing models are excluded and reported; an error
// is returned only when no model fitted at all.
type ModelSet interface {
	Run(ctx context.Context, set *TrainingSet) (*ModelRun, error)
}

// Weighter combines per-model forecasts into one ensemble forecast with
// score-proportional weights. Pure: same inputs, same output.
type Weighter interface {
	Combine(forecasts []models.ModelForecast) (models.EnsembleForecast, error)
}

// SignalBundle groups the signal deriver outputs consumed by reports and
// prediction records.
type SignalBundle struct {
	Signal *models.TradingSignal
	Trend  *models.TrendAnalysis
	Levels *models.LevelSet
}

// SignalEngine derives the discretionary trading signal from indicator state
// and support/resistance structure.
type SignalEngine interface {
	Analyze(candles []models.Candle, frame *models.FeatureFrame) (*SignalBundle, error)
}

// ValidationInput carries everything a validation pass needs to resolve
// realized prices.
type ValidationInput struct {
	Now        time.Time
	Candles    []models.Candle
	Interval   time.Duration
	LatestTick *models.Tick // stream fallback when no candle covers the target
}

// ValidationReport summarizes one validation pass.
type ValidationReport struct {
	Validated       int
	Gaps            int
	RollingAccuracy float64 // fraction over the rolling window, NaN-free
	Retrain         models.RetrainSignal
}

// AccuracyTracker owns the prediction history: it validates due records,
// computes rolling accuracy, and recommends retraining when accuracy decays.
type AccuracyTracker interface {
	Validate(ctx context.Context, input *ValidationInput) (*ValidationReport, error)
	Summary(ctx context.Context, window int) (*models.AccuracySummary, error)
	ModelReliability(ctx context.Context) (map[string]float64, error)
	RetrainState(ctx context.Context) (models.RetrainSignal, error)
}
