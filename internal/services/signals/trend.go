package signals

import (
	"EthCast/internal/domain/models"
	"EthCast/internal/services/features"
)

const (
	priceActionLookback = 50
	pivotWindow         = 5
)

// AnalyzeTrend runs the five-component trend vote over the latest indicator
// row: moving-average alignment, price action, momentum basket, RSI side and
// MACD cross. Each bullish component adds one vote; the vote count maps to
// the trend label.
func AnalyzeTrend(candles []models.Candle, frame *models.FeatureFrame) *models.TrendAnalysis {
	out := &models.TrendAnalysis{
		MAAlignment: models.BiasInsufficient,
		PriceAction: models.BiasNeutral,
		Momentum:    models.BiasNeutral,
	}
	row := frame.Last()
	if row == nil {
		out.Label, out.Confidence = models.TrendNeutral, models.ConfidenceLow
		return out
	}

	close := row.Values[features.ColClose]
	out.RSI = row.Values[features.ColRSI]
	votes := 0

	// 1. Moving-average alignment. A frame without the slow average cannot
	// judge alignment and casts no vote.
	sma50, ok50 := row.Values[features.ColSMA50]
	sma200, ok200 := row.Values[features.ColSMA200]
	switch {
	case !ok50 || !ok200:
		out.MAAlignment = models.BiasInsufficient
	case sma50 > sma200 && close > sma50:
		out.MAAlignment = models.BiasBullish
		votes++
	case sma50 < sma200 && close < sma50:
		out.MAAlignment = models.BiasBearish
	default:
		out.MAAlignment = models.BiasNeutral
	}

	// 2. Price action: direction of the last two swing lows.
	out.PriceAction = priceActionBias(candles)
	if out.PriceAction == models.BiasBullish {
		votes++
	}

	// 3. Momentum basket, two of three.
	hist := row.Values[features.ColMACDHist]
	sma20 := row.Values[features.ColSMA20]
	bullish := 0
	if out.RSI > 50 {
		bullish++
	}
	if hist > 0 {
		bullish++
	}
	if close > sma20 {
		bullish++
	}
	switch {
	case bullish >= 2:
		out.Momentum = models.BiasBullish
		votes++
	case bullish == 1:
		out.Momentum = models.BiasNeutral
	default:
		out.Momentum = models.BiasBearish
	}

	// 4. RSI side.
	if out.RSI > 50 {
		votes++
	}

	// 5. MACD cross.
	out.MACDBullish = row.Values[features.ColMACD] > row.Values[features.ColMACDSignal]
	if out.MACDBullish {
		votes++
	}

	out.BullishVotes = votes
	out.Label, out.Confidence = classifyVotes(votes)
	return out
}

func classifyVotes(votes int) (models.TrendLabel, models.ConfidenceLabel) {
	switch {
	case votes >= 4:
		return models.TrendStrongBull, models.ConfidenceHigh
	case votes == 3:
		return models.TrendBullish, models.ConfidenceMedium
	case votes == 2:
		return models.TrendNeutral, models.ConfidenceLow
	case votes == 1:
		return models.TrendBearish, models.ConfidenceMedium
	default:
		return models.TrendStrongBear, models.ConfidenceHigh
	}
}

// priceActionBias compares the last two swing lows over the recent window.
func priceActionBias(candles []models.Candle) models.TrendBias {
	window := candles
	if len(window) > priceActionLookback {
		window = window[len(window)-priceActionLookback:]
	}
	lows := localExtremes(models.Lows(window), false)
	if len(lows) < 2 {
		return models.BiasNeutral
	}

	last, prev := lows[len(lows)-1], lows[len(lows)-2]
	switch {
	case last > prev:
		return models.BiasBullish
	case last < prev:
		return models.BiasBearish
	default:
		return models.BiasNeutral
	}
}

// localExtremes returns the values at centered window-5 pivots, in index
// order. Ties with neighbors count, matching a rolling-window extreme scan.
func localExtremes(values []float64, findMax bool) []float64 {
	const half = pivotWindow / 2
	var out []float64
	for i := half; i < len(values)-half; i++ {
		pivot := true
		for j := i - half; j <= i+half; j++ {
			if j == i {
				continue
			}
			if findMax && values[j] > values[i] {
				pivot = false
				break
			}
			if !findMax && values[j] < values[i] {
				pivot = false
				break
			}
		}
		if pivot {
			out = append(out, values[i])
		}
	}
	return out
}
