package signals

import (
	"math"
	"sort"

	"EthCast/internal/domain/models"
)

const (
	levelLookback    = 100
	clusterThreshold = 0.01
	maxLevels        = 3
)

// FindLevels derives support and resistance from swing highs and lows over
// the recent lookback, clustered so that a band of touches reads as one
// level. Levels above the current price are resistance, below are support;
// a level exactly at the price belongs to neither side.
func FindLevels(candles []models.Candle, currentPrice float64) *models.LevelSet {
	window := candles
	if len(window) > levelLookback {
		window = window[len(window)-levelLookback:]
	}

	pivots := localExtremes(models.Highs(window), true)
	pivots = append(pivots, localExtremes(models.Lows(window), false)...)
	clusters := clusterLevels(pivots)

	set := &models.LevelSet{CurrentPrice: currentPrice}
	for _, level := range clusters {
		if level > currentPrice && len(set.Resistance) < maxLevels {
			set.Resistance = append(set.Resistance, level)
		}
	}
	for i := len(clusters) - 1; i >= 0; i-- {
		if clusters[i] < currentPrice && len(set.Support) < maxLevels {
			set.Support = append(set.Support, clusters[i])
		}
	}

	if len(set.Resistance) > 0 {
		set.NearestResistance = set.Resistance[0]
	}
	if len(set.Support) > 0 {
		set.NearestSupport = set.Support[0]
	}
	return set
}

// clusterLevels sorts the pivot values and merges neighbours lying within
// the threshold of the running cluster mean. Returns cluster means,
// ascending.
func clusterLevels(levels []float64) []float64 {
	if len(levels) == 0 {
		return nil
	}
	sort.Float64s(levels)

	var out []float64
	sum, count := levels[0], 1.0
	for _, level := range levels[1:] {
		mean := sum / count
		if mean != 0 && math.Abs(level-mean)/mean < clusterThreshold {
			sum += level
			count++
			continue
		}
		out = append(out, mean)
		sum, count = level, 1
	}
	return append(out, sum/count)
}
