package models

import (
	"context"
	"fmt"

	dommodels "EthCast/internal/domain/models"
	domsvc "EthCast/internal/domain/service"
	"EthCast/pkg/config"
)

const NameLinear = "linear"

// Linear fits ordinary least squares of close price on the candle index over
// the most recent trend window. Captures the short-term drift the other
// models anchor against.
type Linear struct {
	window     int
	minSamples int

	slope     float64
	intercept float64
	fitted    int
	score     float64
}

var _ domsvc.Regressor = (*Linear)(nil)

func NewLinear(cfg *config.Config) *Linear {
	return &Linear{
		window:     cfg.Forecast.TrendWindow,
		minSamples: cfg.Forecast.MinSamples,
	}
}

func (m *Linear) Name() string {
	return NameLinear
}

// Fit scores the model on the held-out tail first, then refits on the full
// window for production forecasts.
func (m *Linear) Fit(ctx context.Context, set *domsvc.TrainingSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	y := tail(set.Closes, m.window)
	n := len(y)
	if n < m.minSamples {
		return &dommodels.ModelFitError{
			Model: m.Name(),
			Err:   &dommodels.InsufficientHistoryError{Need: m.minSamples, Got: n},
		}
	}
	trainLen := n - set.Holdout
	if trainLen < 2 {
		return &dommodels.ModelFitError{
			Model: m.Name(),
			Err:   fmt.Errorf("holdout %d leaves %d training samples", set.Holdout, trainLen),
		}
	}

	slope, intercept := olsLine(y[:trainLen])
	predicted := make([]float64, n-trainLen)
	for i := range predicted {
		predicted[i] = intercept + slope*float64(trainLen+i)
	}
	m.score = rSquared(y[trainLen:], predicted)

	m.slope, m.intercept = olsLine(y)
	m.fitted = n
	return nil
}

// Forecast extrapolates the fitted line the given number of candle steps
// past the last training sample.
func (m *Linear) Forecast(steps int) (float64, error) {
	if m.fitted == 0 {
		return 0, fmt.Errorf("linear model not fitted")
	}
	if steps <= 0 {
		return 0, fmt.Errorf("forecast steps must be positive, got %d", steps)
	}
	x := float64(m.fitted - 1 + steps)
	return m.intercept + m.slope*x, nil
}

func (m *Linear) Score() float64 {
	return m.score
}

// olsLine solves least squares for y over x = 0..n-1 in closed form. The
// caller guarantees n >= 2, so the denominator is strictly positive.
func olsLine(y []float64) (slope, intercept float64) {
	n := float64(len(y))
	xMean := (n - 1) / 2

	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= n

	var num, den float64
	for i, v := range y {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	slope = num / den
	intercept = yMean - slope*xMean
	return slope, intercept
}
