package ensemble

import (
	"fmt"
	"math"

	"EthCast/internal/domain/models"
	domsvc "EthCast/internal/domain/service"
	"EthCast/pkg/config"
)

// Weighter blends per-model forecasts for one horizon into a single point
// with score-proportional weights and an agreement band. Pure: no clock, no
// I/O, identical inputs give identical outputs.
type Weighter struct {
	floor       float64
	bandMult    float64
	highScore   float64
	mediumScore float64
}

var _ domsvc.Weighter = (*Weighter)(nil)

func NewWeighter(cfg *config.Config) *Weighter {
	return &Weighter{
		floor:       cfg.Forecast.WeightFloor,
		bandMult:    cfg.Forecast.BandMultiplier,
		highScore:   cfg.Forecast.HighScore,
		mediumScore: cfg.Forecast.MediumScore,
	}
}

// Combine produces the ensemble forecast for the horizon shared by the given
// model forecasts. Scores are clamped to the weight floor before
// normalizing; when every score sits at or below the floor no model has
// demonstrated skill, so weights are exactly uniform and confidence is LOW.
func (w *Weighter) Combine(forecasts []models.ModelForecast) (models.EnsembleForecast, error) {
	var out models.EnsembleForecast
	if len(forecasts) == 0 {
		return out, fmt.Errorf("no model forecasts to combine")
	}

	horizon := forecasts[0].Horizon
	for _, f := range forecasts[1:] {
		if f.Horizon != horizon {
			return out, fmt.Errorf("mixed horizons %s and %s in one combine", horizon.Label(), f.Horizon.Label())
		}
	}

	n := float64(len(forecasts))
	clamped := make([]float64, len(forecasts))
	allAtFloor := true
	total := 0.0
	for i, f := range forecasts {
		c := f.Score
		if c < w.floor {
			c = w.floor
		}
		if c > w.floor {
			allAtFloor = false
		}
		clamped[i] = c
		total += c
	}

	weights := make(map[string]float64, len(forecasts))
	points := make(map[string]float64, len(forecasts))
	var point, aggregate float64
	for i, f := range forecasts {
		weight := clamped[i] / total
		if allAtFloor {
			weight = 1 / n
		}
		weights[f.Model] = weight
		points[f.Model] = f.Point
		point += weight * f.Point
		aggregate += weight * clamped[i]
	}

	var variance float64
	for _, f := range forecasts {
		d := f.Point - point
		variance += weights[f.Model] * d * d
	}
	band := w.bandMult * math.Sqrt(variance)

	confidence := models.ConfidenceLow
	switch {
	case allAtFloor:
		confidence = models.ConfidenceLow
	case aggregate >= w.highScore:
		confidence = models.ConfidenceHigh
	case aggregate >= w.mediumScore:
		confidence = models.ConfidenceMedium
	}

	out = models.EnsembleForecast{
		Horizon:    horizon,
		Point:      point,
		Lower:      point - band,
		Upper:      point + band,
		Confidence: confidence,
		Score:      aggregate,
		Weights:    weights,
		Models:     points,
	}
	return out, nil
}
