package models

import "time"

// Candle is one OHLCV record. Sequences are ordered by OpenTime, fixed
// interval, and immutable once fetched.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Closes extracts the close column of a candle sequence.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high column of a candle sequence.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low column of a candle sequence.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts the volume column of a candle sequence.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// LastClose returns the most recent close, or 0 for an empty sequence.
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// CandleAt returns the candle whose interval contains ts, searching from the
// end. The second return is false when ts falls outside the sequence.
func CandleAt(candles []Candle, ts time.Time, interval time.Duration) (Candle, bool) {
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		if !c.OpenTime.After(ts) && ts.Before(c.OpenTime.Add(interval)) {
			return c, true
		}
		if !c.OpenTime.Add(interval).After(ts) {
			break
		}
	}
	return Candle{}, false
}
