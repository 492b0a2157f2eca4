package accuracy

import (
	"context"
	"fmt"
	"math"
	"time"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	domsvc "EthCast/internal/domain/service"
	"EthCast/pkg/config"
	"EthCast/pkg/logger"
)

// Tracker validates due predictions against realized prices and aggregates
// the outcomes. Records move PENDING -> VALIDATED exactly once; a record
// with no resolvable realized price stays PENDING and is retried on the next
// pass.
type Tracker struct {
	store   repository.PredictionStore
	metrics repository.Metrics
	log     *logger.Logger

	window         int
	threshold      float64
	adaptiveWindow int
	adaptiveMin    int
	adaptiveDecay  float64
	tolerance      time.Duration
}

var _ domsvc.AccuracyTracker = (*Tracker)(nil)

func NewTracker(cfg *config.Config, log *logger.Logger, store repository.PredictionStore, metrics repository.Metrics) *Tracker {
	return &Tracker{
		store:          store,
		metrics:        metrics,
		log:            log.Named("accuracy"),
		window:         cfg.Accuracy.Window,
		threshold:      cfg.Accuracy.RetrainThreshold,
		adaptiveWindow: cfg.Accuracy.AdaptiveWindow,
		adaptiveMin:    cfg.Accuracy.AdaptiveMin,
		adaptiveDecay:  cfg.Accuracy.AdaptiveDecay,
		tolerance:      cfg.Accuracy.PriceTolerance,
	}
}

// Validate runs one validation pass: every PENDING record whose target time
// has passed gets its realized price resolved and its outcome written. Store
// failures abort the pass; resolution gaps do not.
func (t *Tracker) Validate(ctx context.Context, input *domsvc.ValidationInput) (*domsvc.ValidationReport, error) {
	pending, err := t.store.ListPending(ctx, input.Now)
	if err != nil {
		return nil, fmt.Errorf("list pending predictions: %w", err)
	}

	report := &domsvc.ValidationReport{}
	for _, record := range pending {
		realized, ok := t.resolveRealized(record.TargetTime, input)
		if !ok {
			report.Gaps++
			t.metrics.RecordValidation("gap")
			t.log.Debug("validation gap, record stays pending",
				logger.Error(&models.ValidationGapError{RecordID: record.ID, TargetTime: record.TargetTime}))
			continue
		}

		result := buildResult(record, realized, input.Now)
		if err := t.store.MarkValidated(ctx, record.ID, result); err != nil {
			return nil, fmt.Errorf("mark record %s validated: %w", record.ID, err)
		}
		report.Validated++

		outcome := "wrong"
		if result.DirectionCorrect {
			outcome = "correct"
		}
		t.metrics.RecordValidation(outcome)
	}

	rolling, count, err := t.rollingAccuracy(ctx, t.window)
	if err != nil {
		return nil, err
	}
	report.RollingAccuracy = rolling
	t.metrics.RecordRollingAccuracy(rolling)

	report.Retrain = t.retrainSignal(rolling, count)
	if report.Retrain == models.RetrainRecommended {
		t.metrics.RecordRetrainSignal()
		t.log.Warn("rolling accuracy below retrain threshold",
			logger.Float64("accuracy", rolling),
			logger.Float64("threshold", t.threshold),
			logger.Int("window", count))
	}
	return report, nil
}

// RetrainState recomputes the retrain recommendation from the store without
// validating anything.
func (t *Tracker) RetrainState(ctx context.Context) (models.RetrainSignal, error) {
	rolling, count, err := t.rollingAccuracy(ctx, t.window)
	if err != nil {
		return models.RetrainNone, err
	}
	return t.retrainSignal(rolling, count), nil
}

// Summary aggregates all validated outcomes plus the rolling window stats.
// A non-positive window falls back to the configured one.
func (t *Tracker) Summary(ctx context.Context, window int) (*models.AccuracySummary, error) {
	if window <= 0 {
		window = t.window
	}

	pending, validated, err := t.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count predictions: %w", err)
	}

	records, err := t.store.ListValidated(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list validated predictions: %w", err)
	}

	summary := &models.AccuracySummary{
		TotalPredictions: pending + validated,
		TotalValidated:   validated,
		Pending:          pending,
		RollingWindow:    window,
	}
	if len(records) == 0 {
		return summary, nil
	}

	var absSum, pctSum float64
	var correct int
	byHorizon := make(map[string]*horizonAgg)
	byModel := make(map[string]*modelAgg)
	byCondition := make(map[string]*horizonAgg)
	for _, r := range records {
		v := r.Validation
		absSum += v.AbsError
		pctSum += v.PctError
		if v.DirectionCorrect {
			correct++
		}
		if v.ValidatedAt.After(summary.LastUpdated) {
			summary.LastUpdated = v.ValidatedAt
		}

		h := byHorizon[r.Horizon]
		if h == nil {
			h = &horizonAgg{}
			byHorizon[r.Horizon] = h
		}
		h.add(v)

		if r.Condition != "" {
			c := byCondition[r.Condition]
			if c == nil {
				c = &horizonAgg{}
				byCondition[r.Condition] = c
			}
			c.add(v)
		}

		for name, outcome := range v.ModelOutcomes {
			m := byModel[name]
			if m == nil {
				m = &modelAgg{}
				byModel[name] = m
			}
			m.add(outcome)
		}
	}

	n := float64(len(records))
	summary.AvgError = absSum / n
	summary.AvgErrorPct = pctSum / n
	summary.DirectionalAccuracy = float64(correct) / n * 100

	summary.ByHorizon = make(map[string]models.HorizonAccuracy, len(byHorizon))
	best, bestPct := "", math.Inf(1)
	for label, agg := range byHorizon {
		stat := agg.stat()
		summary.ByHorizon[label] = stat
		if stat.AvgErrorPct < bestPct {
			best, bestPct = label, stat.AvgErrorPct
		}
	}
	summary.BestHorizon = best

	summary.ByModel = make(map[string]models.ModelAccuracy, len(byModel))
	for name, agg := range byModel {
		summary.ByModel[name] = agg.stat()
	}

	if len(byCondition) > 0 {
		summary.ByCondition = make(map[string]models.HorizonAccuracy, len(byCondition))
		for label, agg := range byCondition {
			summary.ByCondition[label] = agg.stat()
		}
	}

	rolling, _, err := t.rollingAccuracy(ctx, window)
	if err != nil {
		return nil, err
	}
	summary.RollingAccuracy = rolling
	return summary, nil
}

// ModelReliability scores each model's recent validation history as the
// decay-weighted mean of 1/(1+pct_error), most recent outcome first. Models
// with fewer than the configured minimum of outcomes are omitted; callers
// treat a missing model as multiplier 1.
func (t *Tracker) ModelReliability(ctx context.Context) (map[string]float64, error) {
	records, err := t.store.ListValidated(ctx, t.adaptiveWindow)
	if err != nil {
		return nil, fmt.Errorf("list validated predictions: %w", err)
	}

	type acc struct {
		weighted float64
		weight   float64
		count    int
	}
	perModel := make(map[string]*acc)
	// records arrive newest first, so decay^i discounts by age.
	for i, r := range records {
		decay := math.Pow(t.adaptiveDecay, float64(i))
		for name, outcome := range r.Validation.ModelOutcomes {
			a := perModel[name]
			if a == nil {
				a = &acc{}
				perModel[name] = a
			}
			a.weighted += decay * (1 / (1 + outcome.PctError))
			a.weight += decay
			a.count++
		}
	}

	out := make(map[string]float64)
	for name, a := range perModel {
		if a.count < t.adaptiveMin || a.weight == 0 {
			continue
		}
		out[name] = a.weighted / a.weight
	}
	return out, nil
}

func (t *Tracker) resolveRealized(target time.Time, input *domsvc.ValidationInput) (float64, bool) {
	if candle, ok := models.CandleAt(input.Candles, target, input.Interval); ok {
		return candle.Close, true
	}
	if tick := input.LatestTick; tick != nil {
		gap := tick.EventTime.Sub(target)
		if gap < 0 {
			gap = -gap
		}
		if gap <= t.tolerance {
			return tick.Price, true
		}
	}
	return 0, false
}

func (t *Tracker) rollingAccuracy(ctx context.Context, window int) (float64, int, error) {
	records, err := t.store.ListValidated(ctx, window)
	if err != nil {
		return 0, 0, fmt.Errorf("list validated predictions: %w", err)
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	correct := 0
	for _, r := range records {
		if r.Validation.DirectionCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(records)), len(records), nil
}

// retrainSignal recommends retraining only once enough outcomes exist to
// make the rolling accuracy meaningful.
func (t *Tracker) retrainSignal(rolling float64, count int) models.RetrainSignal {
	if count < t.adaptiveMin {
		return models.RetrainNone
	}
	if rolling < t.threshold {
		return models.RetrainRecommended
	}
	return models.RetrainNone
}

func buildResult(record *models.PredictionRecord, realized float64, now time.Time) *models.ValidationResult {
	signed := record.Forecast - realized
	abs := math.Abs(signed)
	pct := 0.0
	if realized != 0 {
		pct = abs / math.Abs(realized) * 100
	}

	actualUp := realized > record.BasePrice
	result := &models.ValidationResult{
		ValidatedAt:      now,
		Realized:         realized,
		SignedError:      signed,
		AbsError:         abs,
		PctError:         pct,
		DirectionCorrect: record.PredictedUp() == actualUp,
	}

	if len(record.Models) > 0 {
		result.ModelOutcomes = make(map[string]models.ModelOutcome, len(record.Models))
		for name, point := range record.Models {
			mAbs := math.Abs(point - realized)
			mPct := 0.0
			if realized != 0 {
				mPct = mAbs / math.Abs(realized) * 100
			}
			result.ModelOutcomes[name] = models.ModelOutcome{
				AbsError:         mAbs,
				PctError:         mPct,
				DirectionCorrect: (point > record.BasePrice) == actualUp,
			}
		}
	}
	return result
}

type horizonAgg struct {
	count   int
	absSum  float64
	pctSum  float64
	correct int
}

func (a *horizonAgg) add(v *models.ValidationResult) {
	a.count++
	a.absSum += v.AbsError
	a.pctSum += v.PctError
	if v.DirectionCorrect {
		a.correct++
	}
}

func (a *horizonAgg) stat() models.HorizonAccuracy {
	n := float64(a.count)
	return models.HorizonAccuracy{
		Count:               a.count,
		AvgError:            a.absSum / n,
		AvgErrorPct:         a.pctSum / n,
		DirectionalAccuracy: float64(a.correct) / n * 100,
	}
}

type modelAgg struct {
	count   int
	pctSum  float64
	correct int
}

func (a *modelAgg) add(o models.ModelOutcome) {
	a.count++
	a.pctSum += o.PctError
	if o.DirectionCorrect {
		a.correct++
	}
}

func (a *modelAgg) stat() models.ModelAccuracy {
	n := float64(a.count)
	return models.ModelAccuracy{
		Count:               a.count,
		AvgErrorPct:         a.pctSum / n,
		DirectionalAccuracy: float64(a.correct) / n * 100,
	}
}
