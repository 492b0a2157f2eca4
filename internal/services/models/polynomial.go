package models

import (
	"context"
	"fmt"
	"math"

	dommodels "EthCast/internal/domain/models"
	domsvc "EthCast/internal/domain/service"
	"EthCast/pkg/config"
)

const NamePolynomial = "polynomial"

// Polynomial fits a low-degree polynomial of the candle index over the trend
// window, catching curvature the linear model misses. The index is
// normalized to [0,1] before solving so the normal equations stay well
// conditioned.
type Polynomial struct {
	window     int
	degree     int
	minSamples int

	coeffs []float64 // ascending powers over normalized time
	denom  float64
	lastX  float64
	score  float64
}

var _ domsvc.Regressor = (*Polynomial)(nil)

func NewPolynomial(cfg *config.Config) *Polynomial {
	return &Polynomial{
		window:     cfg.Forecast.TrendWindow,
		degree:     cfg.Forecast.PolyDegree,
		minSamples: cfg.Forecast.MinSamples,
	}
}

func (m *Polynomial) Name() string {
	return NamePolynomial
}

func (m *Polynomial) Fit(ctx context.Context, set *domsvc.TrainingSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.degree < 1 {
		return &dommodels.ModelFitError{
			Model: m.Name(),
			Err:   fmt.Errorf("polynomial degree must be positive, got %d", m.degree),
		}
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
	if trainLen < m.degree+1 {
		return &dommodels.ModelFitError{
			Model: m.Name(),
			Err:   fmt.Errorf("holdout %d leaves %d samples for degree %d", set.Holdout, trainLen, m.degree),
		}
	}

	// Score on the held-out tail: fit the leading slice, extrapolate into
	// the holdout with the same normalization, compare.
	trainDenom := float64(trainLen - 1)
	coeffs, err := polyFit(y[:trainLen], m.degree, trainDenom)
	if err != nil {
		return &dommodels.ModelFitError{Model: m.Name(), Err: err}
	}
	predicted := make([]float64, n-trainLen)
	for i := range predicted {
		predicted[i] = evalPoly(coeffs, float64(trainLen+i)/trainDenom)
	}
	m.score = rSquared(y[trainLen:], predicted)

	m.denom = float64(n - 1)
	m.coeffs, err = polyFit(y, m.degree, m.denom)
	if err != nil {
		return &dommodels.ModelFitError{Model: m.Name(), Err: err}
	}
	m.lastX = float64(n - 1)
	return nil
}

func (m *Polynomial) Forecast(steps int) (float64, error) {
	if m.coeffs == nil {
		return 0, fmt.Errorf("polynomial model not fitted")
	}
	if steps <= 0 {
		return 0, fmt.Errorf("forecast steps must be positive, got %d", steps)
	}
	t := (m.lastX + float64(steps)) / m.denom
	return evalPoly(m.coeffs, t), nil
}

func (m *Polynomial) Score() float64 {
	return m.score
}

// polyFit solves the least-squares polynomial of the given degree over
// t_i = i/denom via the normal equations.
func polyFit(y []float64, degree int, denom float64) ([]float64, error) {
	if denom <= 0 {
		return nil, fmt.Errorf("degenerate time axis")
	}

	size := degree + 1
	a := make([][]float64, size)
	for i := range a {
		a[i] = make([]float64, size)
	}
	b := make([]float64, size)

	powers := make([]float64, 2*degree+1)
	for i, v := range y {
		t := float64(i) / denom
		p := 1.0
		for k := 0; k <= 2*degree; k++ {
			powers[k] = p
			p *= t
		}
		for j := 0; j < size; j++ {
			b[j] += v * powers[j]
			for k := 0; k < size; k++ {
				a[j][k] += powers[j+k]
			}
		}
	}

	return solveLinearSystem(a, b)
}

// solveLinearSystem runs Gaussian elimination with partial pivoting. The
// inputs are mutated.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// evalPoly evaluates ascending-power coefficients at t via Horner's rule.
func evalPoly(coeffs []float64, t float64) float64 {
	out := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		out = out*t + coeffs[i]
	}
	return out
}
