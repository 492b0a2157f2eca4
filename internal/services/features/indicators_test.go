package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)

	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-9)
	assert.InDelta(t, 3.0, got[3], 1e-9)
	assert.InDelta(t, 4.0, got[4], 1e-9)
}

func TestSMAShortInput(t *testing.T) {
	got := SMA([]float64{1, 2}, 3)

	require.Len(t, got, 2)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
}

func TestEMARecursive(t *testing.T) {
	// span 3 gives alpha 0.5, so each value is the midpoint of the new
	// observation and the previous EMA.
	got := EMA([]float64{2, 4, 6}, 3)

	require.Len(t, got, 3)
	assert.InDelta(t, 2.0, got[0], 1e-9)
	assert.InDelta(t, 3.0, got[1], 1e-9)
	assert.InDelta(t, 4.5, got[2], 1e-9)
}

func TestRSI(t *testing.T) {
	got := RSI([]float64{1, 2, 3, 2, 3}, 2)

	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 100.0, got[2], 1e-9, "only gains in window")
	assert.InDelta(t, 50.0, got[3], 1e-9, "balanced gain and loss")
	assert.InDelta(t, 50.0, got[4], 1e-9)
}

func TestRSIFlatWindow(t *testing.T) {
	got := RSI([]float64{5, 5, 5, 5}, 2)

	assert.InDelta(t, 50.0, got[2], 1e-9)
	assert.InDelta(t, 50.0, got[3], 1e-9)
}

func TestRSIOnlyLosses(t *testing.T) {
	got := RSI([]float64{5, 4, 3, 2}, 2)

	assert.InDelta(t, 0.0, got[2], 1e-9)
	assert.InDelta(t, 0.0, got[3], 1e-9)
}

func TestMACDHistogram(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 13, 12, 11, 10, 11}
	line, signal, hist := MACD(values, 3, 6, 4)

	require.Len(t, line, len(values))
	for i := range values {
		assert.InDelta(t, line[i]-signal[i], hist[i], 1e-9)
	}
}

func TestRollingStd(t *testing.T) {
	got := RollingStd([]float64{1, 2, 3, 4}, 3)

	require.Len(t, got, 4)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 1.0, got[2], 1e-9)
	assert.InDelta(t, 1.0, got[3], 1e-9)
}

func TestBollinger(t *testing.T) {
	middle, upper, lower, position := Bollinger([]float64{1, 2, 3}, 3, 2)

	assert.InDelta(t, 2.0, middle[2], 1e-9)
	assert.InDelta(t, 4.0, upper[2], 1e-9)
	assert.InDelta(t, 0.0, lower[2], 1e-9)
	assert.InDelta(t, 0.75, position[2], 1e-9)
}

func TestBollingerZeroWidth(t *testing.T) {
	_, _, _, position := Bollinger([]float64{7, 7, 7}, 3, 2)

	assert.InDelta(t, 0.5, position[2], 1e-9)
}

func TestMomentum(t *testing.T) {
	got := Momentum([]float64{100, 110, 121, 133.1}, 2)

	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 0.21, got[2], 1e-9)
	assert.InDelta(t, 0.21, got[3], 1e-9)
}

func TestATR(t *testing.T) {
	highs := []float64{10, 12, 11}
	lows := []float64{8, 9, 10}
	closes := []float64{9, 11, 10.5}

	got := ATR(highs, lows, closes, 2)

	require.Len(t, got, 3)
	assert.True(t, math.IsNaN(got[0]))
	assert.InDelta(t, 2.5, got[1], 1e-9)
	assert.InDelta(t, 2.0, got[2], 1e-9)
}

func TestVolumeRatio(t *testing.T) {
	volSMA, ratio := VolumeRatio([]float64{10, 20, 30}, 2)

	assert.InDelta(t, 15.0, volSMA[1], 1e-9)
	assert.InDelta(t, 20.0/15.0, ratio[1], 1e-9)
	assert.InDelta(t, 30.0/25.0, ratio[2], 1e-9)
}

func TestVolumeRatioZeroAverage(t *testing.T) {
	_, ratio := VolumeRatio([]float64{0, 0, 0}, 2)

	assert.InDelta(t, 1.0, ratio[1], 1e-9)
	assert.InDelta(t, 1.0, ratio[2], 1e-9)
}
