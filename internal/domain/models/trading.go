package models

// TrendBias is one component's vote in the trend analysis.
type TrendBias string

const (
	BiasBullish      TrendBias = "bullish"
	BiasBearish      TrendBias = "bearish"
	BiasNeutral      TrendBias = "neutral"
	BiasInsufficient TrendBias = "insufficient_data"
)

// TrendLabel is the combined market trend classification.
type TrendLabel string

const (
	TrendStrongBull TrendLabel = "STRONG_BULL"
	TrendBullish    TrendLabel = "BULLISH"
	TrendNeutral    TrendLabel = "NEUTRAL"
	TrendBearish    TrendLabel = "BEARISH"
	TrendStrongBear TrendLabel = "STRONG_BEAR"
)

// TrendAnalysis is the five-component trend vote over the latest indicator
// state: MA alignment, price action, momentum, RSI and MACD.
type TrendAnalysis struct {
	Label        TrendLabel
	Confidence   ConfidenceLabel
	MAAlignment  TrendBias
	PriceAction  TrendBias
	Momentum     TrendBias
	RSI          float64
	MACDBullish  bool
	BullishVotes int // 0..5
}

// LevelSet holds clustered support/resistance levels around the current
// price. Nearest values are 0 when no level exists on that side.
type LevelSet struct {
	CurrentPrice      float64
	Support           []float64 // descending, closest first, at most 3
	Resistance        []float64 // ascending, closest first, at most 3
	NearestSupport    float64
	NearestResistance float64
}

// SignalAction is the discrete trading recommendation.
type SignalAction string

const (
	ActionBuy   SignalAction = "BUY"
	ActionSell  SignalAction = "SELL"
	ActionShort SignalAction = "SHORT"
	ActionWait  SignalAction = "WAIT"
)

// SignalScores are the per-side points accumulated by the signal deriver.
type SignalScores struct {
	Buy   int
	Sell  int
	Short int
}

// TradingSignal is the advisory output of one cycle. Recomputed every cycle
// and embedded in the report; not persisted on its own.
type TradingSignal struct {
	Action     SignalAction
	Confidence ConfidenceLabel
	Scores     SignalScores
	Trend      TrendLabel
	Entry      float64
	StopLoss   float64
	Target     float64
	RiskReward float64
	Reasoning  []string
}
