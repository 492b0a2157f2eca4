package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthCast/internal/domain/models"
)

// spikyCandles builds a 20-candle range: flat highs at 104 and lows at 96
// with spike highs of 110 and 115 and dip lows of 90 and 85.
func spikyCandles() []models.Candle {
	start := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	out := make([]models.Candle, 20)
	for i := range out {
		out[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     100, High: 104, Low: 96, Close: 100,
			Volume: 1,
		}
	}
	out[5].High = 110
	out[12].High = 115
	out[8].Low = 90
	out[15].Low = 85
	return out
}

func TestClusterLevels(t *testing.T) {
	got := clusterLevels([]float64{120, 100, 100.5})

	require.Len(t, got, 2)
	assert.InDelta(t, 100.25, got[0], 1e-9, "touches within 1%% merge")
	assert.InDelta(t, 120.0, got[1], 1e-9)
}

func TestClusterLevelsEmpty(t *testing.T) {
	assert.Nil(t, clusterLevels(nil))
}

func TestClusterLevelsSingle(t *testing.T) {
	got := clusterLevels([]float64{3000})
	require.Len(t, got, 1)
	assert.InDelta(t, 3000.0, got[0], 1e-9)
}

func TestFindLevelsSplitsAroundPrice(t *testing.T) {
	set := FindLevels(spikyCandles(), 100)

	assert.Equal(t, []float64{104, 110, 115}, set.Resistance)
	assert.Equal(t, []float64{96, 90, 85}, set.Support)
	assert.InDelta(t, 104.0, set.NearestResistance, 1e-9)
	assert.InDelta(t, 96.0, set.NearestSupport, 1e-9)
	assert.InDelta(t, 100.0, set.CurrentPrice, 1e-9)
}

func TestFindLevelsNoSupportBelow(t *testing.T) {
	set := FindLevels(spikyCandles(), 80)

	assert.Empty(t, set.Support)
	assert.Zero(t, set.NearestSupport)
	assert.Equal(t, []float64{85, 90, 96}, set.Resistance, "top three above only")
}

func TestFindLevelsNoResistanceAbove(t *testing.T) {
	set := FindLevels(spikyCandles(), 200)

	assert.Empty(t, set.Resistance)
	assert.Zero(t, set.NearestResistance)
	assert.Equal(t, []float64{115, 110, 104}, set.Support)
}

func TestFindLevelsEmptyHistory(t *testing.T) {
	set := FindLevels(nil, 100)

	assert.Empty(t, set.Support)
	assert.Empty(t, set.Resistance)
}
