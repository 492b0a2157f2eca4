package features

import "math"

// Indicator functions return slices aligned with their input: index i holds
// the indicator value at candle i, with NaN until enough trailing history
// exists. Every value depends only on candles up to and including i.

// SMA computes the simple moving average over a trailing window.
func SMA(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// EMA computes the exponential moving average with alpha = 2/(span+1),
// seeded with the first value (recursive form, no adjustment).
func EMA(values []float64, span int) []float64 {
	out := nanSlice(len(values))
	if span <= 0 || len(values) == 0 {
		return out
	}

	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI computes the relative strength index with rolling-mean smoothed gains
// and losses. A window with no losses reads 100, no gains reads 0, and a
// perfectly flat window reads 50.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(values); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}

		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)
		switch {
		case avgGain == 0 && avgLoss == 0:
			out[i] = 50
		case avgLoss == 0:
			out[i] = 100
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// MACD computes the MACD line (EMA fast − EMA slow), its signal line (EMA of
// the MACD line) and the histogram (line − signal).
func MACD(values []float64, fast, slow, signal int) (line, signalLine, hist []float64) {
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)

	line = make([]float64, len(values))
	for i := range values {
		line[i] = emaFast[i] - emaSlow[i]
	}

	signalLine = EMA(line, signal)

	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - signalLine[i]
	}
	return line, signalLine, hist
}

// RollingStd computes the rolling sample standard deviation (ddof=1).
func RollingStd(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 1 || len(values) < window {
		return out
	}

	var sum, sum2 float64
	for i, v := range values {
		sum += v
		sum2 += v * v
		if i >= window {
			old := values[i-window]
			sum -= old
			sum2 -= old * old
		}
		if i >= window-1 {
			n := float64(window)
			mean := sum / n
			variance := (sum2 - n*mean*mean) / (n - 1)
			if variance < 0 {
				variance = 0
			}
			out[i] = math.Sqrt(variance)
		}
	}
	return out
}

// Bollinger computes the 3 band lines plus the normalized position of the
// close inside the band. A zero-width band reads position 0.5.
func Bollinger(values []float64, window int, mult float64) (middle, upper, lower, position []float64) {
	middle = SMA(values, window)
	std := RollingStd(values, window)

	upper = nanSlice(len(values))
	lower = nanSlice(len(values))
	position = nanSlice(len(values))
	for i := range values {
		if math.IsNaN(middle[i]) || math.IsNaN(std[i]) {
			continue
		}
		upper[i] = middle[i] + mult*std[i]
		lower[i] = middle[i] - mult*std[i]
		if width := upper[i] - lower[i]; width > 0 {
			position[i] = (values[i] - lower[i]) / width
		} else {
			position[i] = 0.5
		}
	}
	return middle, upper, lower, position
}

// Momentum computes the fractional change over the given number of periods,
// v[i]/v[i-periods] − 1.
func Momentum(values []float64, periods int) []float64 {
	out := nanSlice(len(values))
	if periods <= 0 || len(values) <= periods {
		return out
	}

	for i := periods; i < len(values); i++ {
		prev := values[i-periods]
		if prev == 0 {
			out[i] = 0
			continue
		}
		out[i] = values[i]/prev - 1
	}
	return out
}

// ATR computes the average true range as a rolling mean of the true range,
// TR = max(high−low, |high−prevClose|, |low−prevClose|). The first bar's TR
// is its high−low span.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if period <= 0 || n < period || len(highs) != n || len(lows) != n {
		return out
	}

	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := highs[i] - lows[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	return SMA(tr, period)
}

// VolumeRatio computes volume relative to its rolling average. A zero
// average reads a neutral 1.
func VolumeRatio(volumes []float64, window int) (volSMA, ratio []float64) {
	volSMA = SMA(volumes, window)

	ratio = nanSlice(len(volumes))
	for i := range volumes {
		if math.IsNaN(volSMA[i]) {
			continue
		}
		if volSMA[i] == 0 {
			ratio[i] = 1
			continue
		}
		ratio[i] = volumes[i] / volSMA[i]
	}
	return volSMA, ratio
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
