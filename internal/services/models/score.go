package models

// rSquared computes the coefficient of determination of predictions against
// actuals. Near-zero target variance reads 0 rather than blowing up, so a
// flat holdout slice neither rewards nor punishes a model.
func rSquared(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}

	mean := 0.0
	for _, v := range actual {
		mean += v
	}
	mean /= float64(len(actual))

	var ssRes, ssTot float64
	for i, v := range actual {
		d := v - predicted[i]
		ssRes += d * d
		t := v - mean
		ssTot += t * t
	}
	if ssTot < 1e-12 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// tail returns the last n values, or the whole slice when shorter.
func tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
