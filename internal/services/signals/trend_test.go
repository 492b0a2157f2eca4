package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"EthCast/internal/domain/models"
	"EthCast/internal/services/features"
)

func frameWith(values map[string]float64) *models.FeatureFrame {
	return &models.FeatureFrame{Rows: []models.FeatureVector{{
		Timestamp: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		Values:    values,
	}}}
}

func candlesFromLows(lows []float64) []models.Candle {
	start := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(lows))
	for i, low := range lows {
		out[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     low + 2, High: low + 5, Low: low, Close: low + 3,
			Volume: 1,
		}
	}
	return out
}

func flatTestCandles(n int, high, low, close float64) []models.Candle {
	start := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     close, High: high, Low: low, Close: close,
			Volume: 1,
		}
	}
	return out
}

func bullishRow() map[string]float64 {
	return map[string]float64{
		features.ColClose:      102,
		features.ColSMA20:      101,
		features.ColSMA50:      100,
		features.ColSMA200:     99,
		features.ColRSI:        60,
		features.ColMACD:       0.5,
		features.ColMACDSignal: 0.3,
		features.ColMACDHist:   0.2,
	}
}

func TestAnalyzeTrendStrongBullWithRisingLows(t *testing.T) {
	// Swing lows at 96 then 97.5: higher lows.
	candles := candlesFromLows([]float64{100, 98, 96, 99, 102, 100, 97.5, 99, 103, 104})

	got := AnalyzeTrend(candles, frameWith(bullishRow()))

	assert.Equal(t, 5, got.BullishVotes)
	assert.Equal(t, models.TrendStrongBull, got.Label)
	assert.Equal(t, models.ConfidenceHigh, got.Confidence)
	assert.Equal(t, models.BiasBullish, got.MAAlignment)
	assert.Equal(t, models.BiasBullish, got.PriceAction)
	assert.True(t, got.MACDBullish)
}

func TestAnalyzeTrendStrongBear(t *testing.T) {
	row := map[string]float64{
		features.ColClose:      97,
		features.ColSMA20:      98,
		features.ColSMA50:      98.5,
		features.ColSMA200:     99,
		features.ColRSI:        40,
		features.ColMACD:       -0.4,
		features.ColMACDSignal: -0.2,
		features.ColMACDHist:   -0.2,
	}

	got := AnalyzeTrend(flatTestCandles(20, 104, 96, 100), frameWith(row))

	assert.Equal(t, 0, got.BullishVotes)
	assert.Equal(t, models.TrendStrongBear, got.Label)
	assert.Equal(t, models.ConfidenceHigh, got.Confidence)
	assert.Equal(t, models.BiasBearish, got.MAAlignment)
	assert.Equal(t, models.BiasBearish, got.Momentum)
}

func TestAnalyzeTrendVoteLadder(t *testing.T) {
	tests := []struct {
		name           string
		row            map[string]float64
		wantVotes      int
		wantLabel      models.TrendLabel
		wantConfidence models.ConfidenceLabel
	}{
		{
			name:           "four votes without price action",
			row:            bullishRow(),
			wantVotes:      4,
			wantLabel:      models.TrendStrongBull,
			wantConfidence: models.ConfidenceHigh,
		},
		{
			name: "three votes",
			row: map[string]float64{
				features.ColClose:      102,
				features.ColSMA20:      101,
				features.ColSMA50:      100,
				features.ColSMA200:     99,
				features.ColRSI:        60,
				features.ColMACD:       0.1,
				features.ColMACDSignal: 0.3,
				features.ColMACDHist:   -0.2,
			},
			wantVotes: 3,
			wantLabel: models.TrendBullish,
			wantConfidence: models.ConfidenceMedium,
		},
		{
			name: "two votes",
			row: map[string]float64{
				features.ColClose:      102,
				features.ColSMA20:      101,
				features.ColSMA50:      100,
				features.ColSMA200:     101,
				features.ColRSI:        60,
				features.ColMACD:       0.1,
				features.ColMACDSignal: 0.3,
				features.ColMACDHist:   -0.2,
			},
			wantVotes: 2,
			wantLabel: models.TrendNeutral,
			wantConfidence: models.ConfidenceLow,
		},
		{
			name: "one vote",
			row: map[string]float64{
				features.ColClose:      99,
				features.ColSMA20:      100,
				features.ColSMA50:      100,
				features.ColSMA200:     99,
				features.ColRSI:        45,
				features.ColMACD:       0.4,
				features.ColMACDSignal: 0.3,
				features.ColMACDHist:   0.1,
			},
			wantVotes: 1,
			wantLabel: models.TrendBearish,
			wantConfidence: models.ConfidenceMedium,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AnalyzeTrend(flatTestCandles(20, 104, 96, 100), frameWith(tc.row))
			assert.Equal(t, tc.wantVotes, got.BullishVotes)
			assert.Equal(t, tc.wantLabel, got.Label)
			assert.Equal(t, tc.wantConfidence, got.Confidence)
		})
	}
}

func TestAnalyzeTrendMissingSlowAverage(t *testing.T) {
	row := bullishRow()
	delete(row, features.ColSMA200)

	got := AnalyzeTrend(flatTestCandles(20, 104, 96, 100), frameWith(row))

	assert.Equal(t, models.BiasInsufficient, got.MAAlignment)
	assert.Equal(t, 3, got.BullishVotes, "alignment casts no vote")
}

func TestPriceActionLowerLows(t *testing.T) {
	candles := candlesFromLows([]float64{100, 98, 97.5, 99, 102, 100, 96, 99, 103, 104})
	assert.Equal(t, models.BiasBearish, priceActionBias(candles))
}

func TestPriceActionTooFewSwings(t *testing.T) {
	candles := candlesFromLows([]float64{100, 99, 98, 97, 96, 95})
	assert.Equal(t, models.BiasNeutral, priceActionBias(candles))
}

func TestLocalExtremes(t *testing.T) {
	highs := []float64{1, 2, 5, 2, 1, 1, 1, 4, 1, 1}

	got := localExtremes(highs, true)

	assert.Equal(t, []float64{5, 4}, got)
}
