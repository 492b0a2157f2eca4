package features

import (
	"math"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/service"
)

// Feature column names as they appear in FeatureVector.Values.
const (
	ColSMA5   = "sma_5"
	ColSMA10  = "sma_10"
	ColSMA20  = "sma_20"
	ColSMA50  = "sma_50"
	ColSMA200 = "sma_200"

	ColEMA5  = "ema_5"
	ColEMA10 = "ema_10"
	ColEMA12 = "ema_12"
	ColEMA26 = "ema_26"

	ColRSI        = "rsi_14"
	ColMACD       = "macd"
	ColMACDSignal = "macd_signal"
	ColMACDHist   = "macd_hist"

	ColBBMiddle   = "bb_middle"
	ColBBUpper    = "bb_upper"
	ColBBLower    = "bb_lower"
	ColBBPosition = "bb_position"

	ColMomentum   = "momentum_10"
	ColVolatility = "volatility_20"
	ColATR        = "atr_14"

	ColVolumeSMA   = "volume_sma_20"
	ColVolumeRatio = "volume_ratio"

	ColClose  = "close"
	ColVolume = "volume"
)

const (
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	bbWindow       = 20
	bbMult         = 2.0
	momentumPeriod = 10
	volWindow      = 20
	atrPeriod      = 14
	volumeWindow   = 20

	// Longest trailing window any indicator needs. The frame starts at the
	// first candle where every column is defined.
	maxWindow = 200
)

// ModelColumns lists the columns regression models train on, in a fixed
// order so feature matrices stay column-stable across cycles.
func ModelColumns() []string {
	return []string{
		ColSMA5, ColSMA10, ColSMA20,
		ColEMA5, ColEMA10,
		ColRSI, ColMACD, ColMACDHist,
		ColMomentum, ColVolatility, ColVolumeRatio,
	}
}

// Builder derives the indicator frame from raw candle history.
type Builder struct{}

var _ service.FeatureBuilder = (*Builder)(nil)

func NewBuilder() *Builder {
	return &Builder{}
}

// MaxWindow reports the minimum candle count Build accepts.
func (b *Builder) MaxWindow() int {
	return maxWindow
}

// Build computes every indicator column over the candle history and returns
// one row per candle from index MaxWindow−1 onward, so a history of length L
// yields exactly L−MaxWindow+1 rows with no undefined values.
func (b *Builder) Build(candles []models.Candle) (*models.FeatureFrame, error) {
	if len(candles) < maxWindow {
		return nil, &models.InsufficientHistoryError{Need: maxWindow, Got: len(candles)}
	}

	closes := models.Closes(candles)
	highs := models.Highs(candles)
	lows := models.Lows(candles)
	volumes := models.Volumes(candles)

	cols := map[string][]float64{
		ColClose:  closes,
		ColVolume: volumes,

		ColSMA5:   SMA(closes, 5),
		ColSMA10:  SMA(closes, 10),
		ColSMA20:  SMA(closes, 20),
		ColSMA50:  SMA(closes, 50),
		ColSMA200: SMA(closes, 200),

		ColEMA5:  EMA(closes, 5),
		ColEMA10: EMA(closes, 10),
		ColEMA12: EMA(closes, macdFast),
		ColEMA26: EMA(closes, macdSlow),

		ColRSI: RSI(closes, rsiPeriod),

		ColMomentum:   Momentum(closes, momentumPeriod),
		ColVolatility: RollingStd(closes, volWindow),
		ColATR:        ATR(highs, lows, closes, atrPeriod),
	}

	macdLine, signalLine, hist := MACD(closes, macdFast, macdSlow, macdSignal)
	cols[ColMACD] = macdLine
	cols[ColMACDSignal] = signalLine
	cols[ColMACDHist] = hist

	middle, upper, lower, position := Bollinger(closes, bbWindow, bbMult)
	cols[ColBBMiddle] = middle
	cols[ColBBUpper] = upper
	cols[ColBBLower] = lower
	cols[ColBBPosition] = position

	volSMA, ratio := VolumeRatio(volumes, volumeWindow)
	cols[ColVolumeSMA] = volSMA
	cols[ColVolumeRatio] = ratio

	rows := make([]models.FeatureVector, 0, len(candles)-maxWindow+1)
	for i := maxWindow - 1; i < len(candles); i++ {
		values := make(map[string]float64, len(cols))
		for name, col := range cols {
			if math.IsNaN(col[i]) {
				return nil, &models.InsufficientHistoryError{Need: maxWindow, Got: i}
			}
			values[name] = col[i]
		}
		rows = append(rows, models.FeatureVector{
			Timestamp: candles[i].OpenTime,
			Values:    values,
		})
	}

	return &models.FeatureFrame{Rows: rows}, nil
}
