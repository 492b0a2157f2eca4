package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dommodels "EthCast/internal/domain/models"
	domsvc "EthCast/internal/domain/service"
	"EthCast/internal/services/features"
	"EthCast/pkg/logger"
)

type stubRegressor struct {
	name   string
	fitErr error
	score  float64
}

func (s *stubRegressor) Name() string { return s.name }

func (s *stubRegressor) Fit(_ context.Context, _ *domsvc.TrainingSet) error {
	return s.fitErr
}

func (s *stubRegressor) Forecast(steps int) (float64, error) {
	return float64(steps) * 10, nil
}

func (s *stubRegressor) Score() float64 { return s.score }

type nopMetrics struct{}

func (nopMetrics) RecordCycle(string, float64)             {}
func (nopMetrics) RecordModelFit(string, float64, float64) {}
func (nopMetrics) RecordForecast(string)                   {}
func (nopMetrics) RecordValidation(string)                 {}
func (nopMetrics) RecordRollingAccuracy(float64)           {}
func (nopMetrics) RecordRetrainSignal()                    {}
func (nopMetrics) RecordSourceRequest(string, string)      {}
func (nopMetrics) RecordLastPrice(string, float64)         {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return log
}

func TestSetRunExcludesFailingModels(t *testing.T) {
	cfg := defaultForecastConfig(t)
	set := NewSet(cfg, testLogger(t), nopMetrics{},
		&stubRegressor{name: "linear", score: 0.8},
		&stubRegressor{name: "polynomial", fitErr: errors.New("singular system")},
		&stubRegressor{name: "random_forest", score: 0.6},
	)

	training := &domsvc.TrainingSet{
		Interval: time.Minute,
		Horizons: []dommodels.Horizon{
			dommodels.Horizon(15 * time.Minute),
			dommodels.Horizon(30 * time.Minute),
		},
	}
	run, err := set.Run(context.Background(), training)
	require.NoError(t, err)

	assert.Len(t, run.Scores, 2)
	assert.Contains(t, run.Excluded, "polynomial")

	for _, horizon := range training.Horizons {
		forecasts := run.Forecasts[horizon]
		require.Len(t, forecasts, 2)
		for _, f := range forecasts {
			assert.Equal(t, horizon, f.Horizon)
			assert.InDelta(t, float64(horizon.Steps(time.Minute))*10, f.Point, 1e-9)
			assert.InDelta(t, run.Scores[f.Model], f.Score, 1e-9)
		}
	}
}

func TestSetRunAllModelsFailing(t *testing.T) {
	cfg := defaultForecastConfig(t)
	set := NewSet(cfg, testLogger(t), nopMetrics{},
		&stubRegressor{name: "linear", fitErr: errors.New("bad fit")},
		&stubRegressor{name: "polynomial", fitErr: errors.New("bad fit")},
	)

	_, err := set.Run(context.Background(), &domsvc.TrainingSet{Interval: time.Minute})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "linear")
	assert.Contains(t, err.Error(), "polynomial")
}

// A noiseless uptrend is the linear model's home turf: its held-out score
// must clear 0.9 and no other model may outrank it (the polynomial ties on
// perfectly linear data, it never wins).
func TestSetUptrendFavorsLinear(t *testing.T) {
	cfg := defaultForecastConfig(t)
	cfg.Forecast.ForestEstimators = 20

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]dommodels.Candle, 500)
	for i := range candles {
		c := 2000 + 3*float64(i)
		candles[i] = dommodels.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     c - 1.5,
			High:     c + 2,
			Low:      c - 2,
			Close:    c,
			Volume:   1000,
		}
	}
	frame, err := features.NewBuilder().Build(candles)
	require.NoError(t, err)

	tail := candles[len(candles)-frame.Len():]
	times := make([]time.Time, len(tail))
	for i, c := range tail {
		times[i] = c.OpenTime
	}
	training := &domsvc.TrainingSet{
		Frame:    frame,
		Closes:   dommodels.Closes(tail),
		Times:    times,
		Interval: time.Minute,
		Horizons: []dommodels.Horizon{dommodels.Horizon(15 * time.Minute)},
		Holdout:  cfg.Forecast.Holdout,
	}

	set := NewSet(cfg, testLogger(t), nopMetrics{},
		NewLinear(cfg), NewPolynomial(cfg), NewRandomForest(cfg))
	run, err := set.Run(context.Background(), training)
	require.NoError(t, err)

	require.Contains(t, run.Scores, "linear")
	assert.Greater(t, run.Scores["linear"], 0.9)
	for name, score := range run.Scores {
		assert.LessOrEqual(t, score, run.Scores["linear"]+1e-9, name)
	}
}

func TestSetRunSequential(t *testing.T) {
	cfg := defaultForecastConfig(t)
	cfg.Forecast.ParallelFit = false

	set := NewSet(cfg, testLogger(t), nopMetrics{},
		&stubRegressor{name: "linear", score: 0.9},
	)

	training := &domsvc.TrainingSet{
		Interval: time.Minute,
		Horizons: []dommodels.Horizon{dommodels.Horizon(time.Minute)},
	}
	run, err := set.Run(context.Background(), training)
	require.NoError(t, err)
	require.Len(t, run.Forecasts[training.Horizons[0]], 1)
	assert.InDelta(t, 10.0, run.Forecasts[training.Horizons[0]][0].Point, 1e-9)
}
