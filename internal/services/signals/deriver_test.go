package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthCast/internal/domain/models"
	"EthCast/internal/services/features"
	"EthCast/pkg/logger"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return NewEngine(log)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name           string
		scores         models.SignalScores
		wantAction     models.SignalAction
		wantConfidence models.ConfidenceLabel
	}{
		{"below threshold", models.SignalScores{Buy: 4}, models.ActionWait, models.ConfidenceLow},
		{"buy at threshold", models.SignalScores{Buy: 5}, models.ActionBuy, models.ConfidenceMedium},
		{"buy high conviction", models.SignalScores{Buy: 7}, models.ActionBuy, models.ConfidenceHigh},
		{"tie prefers buy", models.SignalScores{Buy: 5, Sell: 5}, models.ActionBuy, models.ConfidenceMedium},
		{"tie prefers sell over short", models.SignalScores{Sell: 6, Short: 6}, models.ActionSell, models.ConfidenceMedium},
		{"short wins outright", models.SignalScores{Sell: 4, Short: 8}, models.ActionShort, models.ConfidenceHigh},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			action, confidence := decide(tc.scores)
			assert.Equal(t, tc.wantAction, action)
			assert.Equal(t, tc.wantConfidence, confidence)
		})
	}
}

func TestPlanLevelsUsesStructure(t *testing.T) {
	ls := &models.LevelSet{NearestSupport: 95, NearestResistance: 115}

	entry, stop, target := planLevels(models.ActionBuy, 100, 2, ls)

	assert.InDelta(t, 100.0, entry, 1e-9)
	assert.InDelta(t, 95.0, stop, 1e-9)
	assert.InDelta(t, 115.0, target, 1e-9)
	assert.InDelta(t, 3.0, riskReward(entry, stop, target), 1e-9)
}

func TestPlanLevelsATRFallbacks(t *testing.T) {
	empty := &models.LevelSet{}

	entry, stop, target := planLevels(models.ActionBuy, 100, 2, empty)
	assert.InDelta(t, 96.0, stop, 1e-9)
	assert.InDelta(t, 106.0, target, 1e-9)
	assert.InDelta(t, 1.5, riskReward(entry, stop, target), 1e-9)

	entry, stop, target = planLevels(models.ActionShort, 100, 2, empty)
	assert.InDelta(t, 104.0, stop, 1e-9)
	assert.InDelta(t, 94.0, target, 1e-9)
	assert.InDelta(t, 1.5, riskReward(entry, stop, target), 1e-9)
}

func TestPlanLevelsSellHasZeroReward(t *testing.T) {
	entry, stop, target := planLevels(models.ActionSell, 100, 2, &models.LevelSet{})

	assert.InDelta(t, 100.0, entry, 1e-9)
	assert.InDelta(t, 103.0, stop, 1e-9)
	assert.InDelta(t, 100.0, target, 1e-9)
	assert.Zero(t, riskReward(entry, stop, target))
}

func TestPlanLevelsWait(t *testing.T) {
	entry, stop, target := planLevels(models.ActionWait, 100, 2, &models.LevelSet{})

	assert.InDelta(t, 98.0, entry, 1e-9)
	assert.InDelta(t, 0.97*98, stop, 1e-9)
	assert.InDelta(t, 1.03*98, target, 1e-9)
	assert.InDelta(t, 1.0, riskReward(entry, stop, target), 1e-6)
}

func TestAnalyzeBuySignal(t *testing.T) {
	engine := newTestEngine(t)
	candles := flatTestCandles(20, 104, 96, 100)
	frame := frameWith(map[string]float64{
		features.ColClose:       100,
		features.ColSMA20:       99,
		features.ColSMA50:       98,
		features.ColSMA200:      97,
		features.ColRSI:         28,
		features.ColMACD:        0.5,
		features.ColMACDSignal:  0.3,
		features.ColMACDHist:    0.2,
		features.ColBBPosition:  0.1,
		features.ColVolumeRatio: 2.0,
		features.ColATR:         2.0,
	})

	bundle, err := engine.Analyze(candles, frame)
	require.NoError(t, err)

	signal := bundle.Signal
	// Trend +3, oversold +2, MACD +2, lower band +2, volume +1.
	assert.Equal(t, 10, signal.Scores.Buy)
	assert.Equal(t, models.ActionBuy, signal.Action)
	assert.Equal(t, models.ConfidenceHigh, signal.Confidence)
	assert.Equal(t, models.TrendBullish, signal.Trend)
	assert.InDelta(t, 100.0, signal.Entry, 1e-9)
	assert.InDelta(t, 96.0, signal.StopLoss, 1e-9, "stop at nearest support")
	assert.InDelta(t, 104.0, signal.Target, 1e-9, "target at nearest resistance")
	assert.InDelta(t, 1.0, signal.RiskReward, 1e-9)
	assert.NotEmpty(t, signal.Reasoning)
	assert.InDelta(t, 96.0, bundle.Levels.NearestSupport, 1e-9)
}

func TestAnalyzeShortSignal(t *testing.T) {
	engine := newTestEngine(t)

	// Falling swing lows in a strong downtrend.
	start := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 20)
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     98, High: 104, Low: 95, Close: 98,
			Volume: 1,
		}
	}
	candles[6].Low = 94
	candles[16].Low = 93

	frame := frameWith(map[string]float64{
		features.ColClose:       98,
		features.ColSMA20:       99,
		features.ColSMA50:       102,
		features.ColSMA200:      103,
		features.ColRSI:         45,
		features.ColMACD:        -0.5,
		features.ColMACDSignal:  -0.3,
		features.ColMACDHist:    -0.2,
		features.ColBBPosition:  0.9,
		features.ColVolumeRatio: 1.0,
		features.ColATR:         2.0,
	})

	bundle, err := engine.Analyze(candles, frame)
	require.NoError(t, err)

	signal := bundle.Signal
	// Strong bear trend +3 short, MACD +2/+1, upper band +2/+1.
	assert.Equal(t, models.SignalScores{Sell: 4, Short: 5}, signal.Scores)
	assert.Equal(t, models.ActionShort, signal.Action)
	assert.Equal(t, models.ConfidenceMedium, signal.Confidence)
	assert.Equal(t, models.TrendStrongBear, signal.Trend)
	assert.InDelta(t, 98.0, signal.Entry, 1e-9)
	assert.InDelta(t, 104.0, signal.StopLoss, 1e-9, "stop above nearest resistance")
	assert.InDelta(t, 95.0, signal.Target, 1e-9, "target at nearest support")
	assert.InDelta(t, 0.5, signal.RiskReward, 1e-9)
}

func TestAnalyzeWaitSignal(t *testing.T) {
	engine := newTestEngine(t)
	candles := flatTestCandles(20, 104, 96, 100)
	frame := frameWith(map[string]float64{
		features.ColClose:       100,
		features.ColSMA20:       99.5,
		features.ColSMA50:       101,
		features.ColSMA200:      100,
		features.ColRSI:         55,
		features.ColMACD:        0.2,
		features.ColMACDSignal:  0.2,
		features.ColMACDHist:    0,
		features.ColBBPosition:  0.5,
		features.ColVolumeRatio: 1.0,
		features.ColATR:         2.0,
	})

	bundle, err := engine.Analyze(candles, frame)
	require.NoError(t, err)

	signal := bundle.Signal
	assert.Equal(t, models.ActionWait, signal.Action)
	assert.Equal(t, models.ConfidenceLow, signal.Confidence)
	assert.Equal(t, models.SignalScores{}, signal.Scores)
	assert.InDelta(t, 96.0, signal.Entry, 1e-9, "stalk the nearest support")
	assert.InDelta(t, 0.97*96, signal.StopLoss, 1e-9)
	assert.InDelta(t, 104.0, signal.Target, 1e-9)
	assert.InDelta(t, 8.0/(96-0.97*96), signal.RiskReward, 1e-9)
}

func TestAnalyzeEmptyFrame(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Analyze(flatTestCandles(20, 104, 96, 100), &models.FeatureFrame{})
	assert.Error(t, err)
}
