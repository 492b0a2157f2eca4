package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	modelFitSeconds *prometheus.HistogramVec
	modelScore      *prometheus.GaugeVec
	forecasts       *prometheus.CounterVec
	validations     *prometheus.CounterVec
	rollingAccuracy prometheus.Gauge
	retrainSignals  prometheus.Counter
	sourceRequests  *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cycles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethcast_cycles_total",
				Help: "Prediction cycles by terminal status",
			},
			[]string{"status"},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ethcast_cycle_duration_seconds",
				Help:    "End-to-end duration of a prediction cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		modelFitSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ethcast_model_fit_duration_seconds",
				Help:    "Duration of individual model fits",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		modelScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ethcast_model_score",
				Help: "Latest holdout score per model",
			},
			[]string{"model"},
		),
		forecasts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethcast_forecasts_total",
				Help: "Ensemble forecasts produced, by horizon",
			},
			[]string{"horizon"},
		),
		validations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethcast_validations_total",
				Help: "Validation outcomes (correct, wrong, gap)",
			},
			[]string{"outcome"},
		),
		rollingAccuracy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ethcast_rolling_directional_accuracy",
				Help: "Directional accuracy over the rolling validation window",
			},
		),
		retrainSignals: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ethcast_retrain_signals_total",
				Help: "Times the accuracy tracker recommended a retrain",
			},
		),
		sourceRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethcast_source_requests_total",
				Help: "Upstream market data requests by source and status",
			},
			[]string{"source", "status"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ethcast_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

// RecordCycle records one finished prediction cycle.
func (r *Recorder) RecordCycle(status string, seconds float64) {
	r.cycles.WithLabelValues(status).Inc()
	r.cycleDuration.Observe(seconds)
}

// RecordModelFit records a model fit attempt.
func (r *Recorder) RecordModelFit(model string, seconds float64, score float64) {
	r.modelFitSeconds.WithLabelValues(model).Observe(seconds)
	r.modelScore.WithLabelValues(model).Set(score)
}

// RecordForecast counts one produced ensemble forecast.
func (r *Recorder) RecordForecast(horizon string) {
	r.forecasts.WithLabelValues(horizon).Inc()
}

// RecordValidation counts one validation outcome.
func (r *Recorder) RecordValidation(outcome string) {
	r.validations.WithLabelValues(outcome).Inc()
}

// RecordRollingAccuracy updates the rolling accuracy gauge.
func (r *Recorder) RecordRollingAccuracy(accuracy float64) {
	r.rollingAccuracy.Set(accuracy)
}

// RecordRetrainSignal counts a retrain recommendation.
func (r *Recorder) RecordRetrainSignal() {
	r.retrainSignals.Inc()
}

// RecordSourceRequest counts an upstream market data request.
func (r *Recorder) RecordSourceRequest(source, status string) {
	r.sourceRequests.WithLabelValues(source, status).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}
