package models

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dommodels "EthCast/internal/domain/models"
	domsvc "EthCast/internal/domain/service"
	"EthCast/pkg/config"
)

func defaultForecastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func trendSet(closes []float64, holdout int) *domsvc.TrainingSet {
	return &domsvc.TrainingSet{
		Frame:    &dommodels.FeatureFrame{},
		Closes:   closes,
		Interval: time.Minute,
		Holdout:  holdout,
	}
}

func TestLinearPerfectTrend(t *testing.T) {
	m := NewLinear(defaultForecastConfig(t))

	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 2*float64(i) + 5
	}
	require.NoError(t, m.Fit(context.Background(), trendSet(closes, 30)))

	assert.InDelta(t, 1.0, m.Score(), 1e-9)

	// Window covers indices 20..119, so 15 steps past the end lands on
	// index 134 of the synthetic line.
	got, err := m.Forecast(15)
	require.NoError(t, err)
	assert.InDelta(t, 2*134+5, got, 1e-6)
}

func TestLinearInsufficientHistory(t *testing.T) {
	m := NewLinear(defaultForecastConfig(t))

	err := m.Fit(context.Background(), trendSet(make([]float64, 20), 5))

	var fitErr *dommodels.ModelFitError
	require.ErrorAs(t, err, &fitErr)
	assert.Equal(t, NameLinear, fitErr.Model)

	var insufficient *dommodels.InsufficientHistoryError
	assert.ErrorAs(t, err, &insufficient)
}

func TestLinearForecastRequiresFit(t *testing.T) {
	m := NewLinear(defaultForecastConfig(t))

	_, err := m.Forecast(5)
	assert.Error(t, err)
}

func TestLinearForecastRejectsNonPositiveSteps(t *testing.T) {
	m := NewLinear(defaultForecastConfig(t))

	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = float64(i)
	}
	require.NoError(t, m.Fit(context.Background(), trendSet(closes, 30)))

	_, err := m.Forecast(0)
	assert.Error(t, err)
}
