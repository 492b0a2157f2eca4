package signals

import (
	"fmt"
	"math"
	"strings"

	"EthCast/internal/domain/models"
	domsvc "EthCast/internal/domain/service"
	"EthCast/internal/services/features"
	"EthCast/pkg/logger"
)

const (
	entryThreshold  = 5
	strongThreshold = 7
	oversoldRSI     = 30
	overboughtRSI   = 70
	bbLowEntry      = 0.2
	bbHighEntry     = 0.8
	proximityPct    = 0.01
	volumeSurge     = 1.5
)

// Engine scores BUY/SELL/SHORT entry conditions from the latest indicator
// row, the trend vote and the support/resistance structure, then plans the
// entry, stop and target for the winning side.
type Engine struct {
	log *logger.Logger
}

var _ domsvc.SignalEngine = (*Engine)(nil)

func NewEngine(log *logger.Logger) *Engine {
	return &Engine{log: log.Named("signals")}
}

func (e *Engine) Analyze(candles []models.Candle, frame *models.FeatureFrame) (*domsvc.SignalBundle, error) {
	row := frame.Last()
	if row == nil || len(candles) == 0 {
		return nil, fmt.Errorf("empty indicator frame")
	}

	trend := AnalyzeTrend(candles, frame)
	price := row.Values[features.ColClose]
	levels := FindLevels(candles, price)

	rsi := row.Values[features.ColRSI]
	macd := row.Values[features.ColMACD]
	macdSig := row.Values[features.ColMACDSignal]
	hist := row.Values[features.ColMACDHist]
	bbPos := row.Values[features.ColBBPosition]
	volRatio := row.Values[features.ColVolumeRatio]
	atr := row.Values[features.ColATR]

	bearTrend := trend.Label == models.TrendBearish || trend.Label == models.TrendStrongBear
	bullTrend := trend.Label == models.TrendBullish || trend.Label == models.TrendStrongBull

	var scores models.SignalScores
	reasons := []string{
		fmt.Sprintf("Trend %s (%d/5 bullish checks)", trend.Label, trend.BullishVotes),
	}

	// Trend conviction. A strong downtrend is the only regime that backs
	// opening shorts; an ordinary downtrend just argues for exiting.
	switch trend.Label {
	case models.TrendStrongBull, models.TrendBullish:
		scores.Buy += 3
	case models.TrendBearish:
		scores.Sell += 3
	case models.TrendStrongBear:
		scores.Short += 3
	}

	switch {
	case rsi < oversoldRSI:
		scores.Buy += 2
		reasons = append(reasons, fmt.Sprintf("RSI %.1f oversold", rsi))
	case rsi > overboughtRSI:
		scores.Sell += 2
		if bearTrend {
			scores.Short += 2
		}
		reasons = append(reasons, fmt.Sprintf("RSI %.1f overbought", rsi))
	}

	if macd > macdSig && hist > 0 {
		scores.Buy += 2
		reasons = append(reasons, "MACD above signal with rising histogram")
	} else if macd < macdSig && hist < 0 {
		scores.Sell += 2
		scores.Short++
		reasons = append(reasons, "MACD below signal with falling histogram")
	}

	if bbPos < bbLowEntry {
		scores.Buy += 2
		reasons = append(reasons, fmt.Sprintf("Price at lower Bollinger band (position %.2f)", bbPos))
	} else if bbPos > bbHighEntry {
		scores.Sell += 2
		scores.Short++
		reasons = append(reasons, fmt.Sprintf("Price at upper Bollinger band (position %.2f)", bbPos))
	}

	if near(price, levels.NearestSupport) {
		scores.Buy += 2
		reasons = append(reasons, fmt.Sprintf("Support at %.2f (%.2f%% away)", levels.NearestSupport, distPct(price, levels.NearestSupport)))
	}
	if near(price, levels.NearestResistance) {
		scores.Sell += 2
		scores.Short++
		reasons = append(reasons, fmt.Sprintf("Resistance at %.2f (%.2f%% away)", levels.NearestResistance, distPct(price, levels.NearestResistance)))
	}

	if volRatio > volumeSurge {
		leader := leadingSide(scores)
		switch leader {
		case models.ActionBuy:
			scores.Buy++
		case models.ActionSell:
			scores.Sell++
		case models.ActionShort:
			scores.Short++
		}
		reasons = append(reasons, fmt.Sprintf("Volume %.1fx average confirms %s pressure", volRatio, strings.ToLower(string(leader))))
	}

	action, confidence := decide(scores)
	entry, stop, target := planLevels(action, price, atr, levels)

	signal := &models.TradingSignal{
		Action:     action,
		Confidence: confidence,
		Scores:     scores,
		Trend:      trend.Label,
		Entry:      entry,
		StopLoss:   stop,
		Target:     target,
		RiskReward: riskReward(entry, stop, target),
		Reasoning:  reasons,
	}

	e.log.Debug("signal derived",
		logger.String("action", string(action)),
		logger.Int("buy", scores.Buy),
		logger.Int("sell", scores.Sell),
		logger.Int("short", scores.Short),
		logger.Float64("risk_reward", signal.RiskReward))

	return &domsvc.SignalBundle{Signal: signal, Trend: trend, Levels: levels}, nil
}

// decide picks the action from the side scores: below the entry threshold
// nothing trades, ties resolve buy over sell over short.
func decide(s models.SignalScores) (models.SignalAction, models.ConfidenceLabel) {
	max := s.Buy
	if s.Sell > max {
		max = s.Sell
	}
	if s.Short > max {
		max = s.Short
	}
	if max < entryThreshold {
		return models.ActionWait, models.ConfidenceLow
	}

	action := models.ActionShort
	switch {
	case s.Buy == max:
		action = models.ActionBuy
	case s.Sell == max:
		action = models.ActionSell
	}
	if max >= strongThreshold {
		return action, models.ConfidenceHigh
	}
	return action, models.ConfidenceMedium
}

func leadingSide(s models.SignalScores) models.SignalAction {
	if s.Buy >= s.Sell && s.Buy >= s.Short {
		return models.ActionBuy
	}
	if s.Sell >= s.Short {
		return models.ActionSell
	}
	return models.ActionShort
}

// planLevels sets entry, stop and target per action. Structure levels take
// priority; ATR multiples fill in when no level exists on the needed side.
func planLevels(action models.SignalAction, price, atr float64, ls *models.LevelSet) (entry, stop, target float64) {
	switch action {
	case models.ActionBuy:
		entry = price
		stop = ls.NearestSupport
		if stop == 0 {
			stop = price - 2*atr
		}
		target = ls.NearestResistance
		if target == 0 {
			target = price + 3*atr
		}
	case models.ActionShort:
		entry = price
		stop = ls.NearestResistance
		if stop == 0 {
			stop = price + 2*atr
		}
		target = ls.NearestSupport
		if target == 0 {
			target = price - 3*atr
		}
	case models.ActionSell:
		// Exit signal: no fresh position, the stop guards a failed exit.
		entry = price
		stop = price + 1.5*atr
		target = price
	default:
		entry = ls.NearestSupport
		if entry == 0 {
			entry = 0.98 * price
		}
		stop = 0.97 * entry
		target = ls.NearestResistance
		if target == 0 {
			target = 1.03 * entry
		}
	}
	return entry, stop, target
}

func riskReward(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

func near(price, level float64) bool {
	if level == 0 || price == 0 {
		return false
	}
	return math.Abs(price-level)/price < proximityPct
}

func distPct(price, level float64) float64 {
	if price == 0 {
		return 0
	}
	return math.Abs(price-level) / price * 100
}
