package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolynomialQuadraticFit(t *testing.T) {
	m := NewPolynomial(defaultForecastConfig(t))

	closes := make([]float64, 120)
	for i := range closes {
		x := float64(i)
		closes[i] = 3 + 2*x + 0.05*x*x
	}
	require.NoError(t, m.Fit(context.Background(), trendSet(closes, 30)))

	assert.InDelta(t, 1.0, m.Score(), 1e-6)

	// Window covers indices 20..119; 10 steps ahead is index 129.
	got, err := m.Forecast(10)
	require.NoError(t, err)
	x := 129.0
	assert.InDelta(t, 3+2*x+0.05*x*x, got, 0.01)
}

func TestPolynomialMatchesLineOnLinearData(t *testing.T) {
	m := NewPolynomial(defaultForecastConfig(t))

	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 10 + 0.5*float64(i)
	}
	require.NoError(t, m.Fit(context.Background(), trendSet(closes, 30)))

	got, err := m.Forecast(20)
	require.NoError(t, err)
	assert.InDelta(t, 10+0.5*119, got, 0.01)
}

func TestPolynomialSolveLinearSystem(t *testing.T) {
	a := [][]float64{
		{2, 1},
		{1, 3},
	}
	b := []float64{5, 10}

	x, err := solveLinearSystem(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, x[0], 1e-9)
	assert.InDelta(t, 3.0, x[1], 1e-9)
}

func TestPolynomialSolveSingularSystem(t *testing.T) {
	a := [][]float64{
		{1, 2},
		{2, 4},
	}
	b := []float64{3, 6}

	_, err := solveLinearSystem(a, b)
	assert.Error(t, err)
}
