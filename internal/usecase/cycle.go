package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	domsvc "EthCast/internal/domain/service"
	"EthCast/pkg/config"
	applogger "EthCast/pkg/logger"
	pkgqueue "EthCast/pkg/queue"
)

// ErrCycleInProgress is returned when the cycle lock is already held, by this
// process or another replica.
var ErrCycleInProgress = errors.New("prediction cycle already in progress")

const (
	cycleLockKey   = "lock:cycle"
	retrainLockKey = "lock:retrain"
)

// TickSource exposes the freshest live tick, if any.
type TickSource interface {
	Fresh(now time.Time, maxAge time.Duration) *models.Tick
}

// Forecaster runs the prediction cycle end to end: validate due history,
// fetch market data, fit the model set, combine per horizon, derive the
// trading signal, persist the new records and hand the report off for
// distribution.
type Forecaster struct {
	cfg      *config.Config
	log      *applogger.Logger
	candles  repository.CandleSource
	quotes   repository.QuoteSource
	ticks    TickSource
	builder  domsvc.FeatureBuilder
	modelSet domsvc.ModelSet
	weighter domsvc.Weighter
	signals  domsvc.SignalEngine
	tracker  domsvc.AccuracyTracker
	store    repository.PredictionStore
	locker   repository.Locker
	metrics  repository.Metrics
	reporter *Reporter
	queue    pkgqueue.QueueService // nil when the work queue is disabled

	symbol   string
	interval repository.Interval
	horizons []models.Horizon
}

// NewForecaster creates the cycle orchestrator.
func NewForecaster(
	cfg *config.Config,
	log *applogger.Logger,
	candles repository.CandleSource,
	quotes repository.QuoteSource,
	ticks TickSource,
	builder domsvc.FeatureBuilder,
	modelSet domsvc.ModelSet,
	weighter domsvc.Weighter,
	signals domsvc.SignalEngine,
	tracker domsvc.AccuracyTracker,
	store repository.PredictionStore,
	locker repository.Locker,
	metrics repository.Metrics,
	reporter *Reporter,
	queue pkgqueue.QueueService,
) (*Forecaster, error) {
	interval := repository.NormalizeInterval(cfg.Market.Interval)

	horizons := make([]models.Horizon, 0, len(cfg.Forecast.Horizons))
	for _, s := range cfg.Forecast.Horizons {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parse horizon %q: %w", s, err)
		}
		h := models.Horizon(d)
		if h.Steps(interval.Duration()) < 1 {
			return nil, fmt.Errorf("horizon %q is shorter than the %s candle interval", s, interval)
		}
		horizons = append(horizons, h)
	}
	if len(horizons) == 0 {
		return nil, fmt.Errorf("at least one forecast horizon required")
	}

	return &Forecaster{
		cfg:      cfg,
		log:      log.Named("forecaster"),
		candles:  candles,
		quotes:   quotes,
		ticks:    ticks,
		builder:  builder,
		modelSet: modelSet,
		weighter: weighter,
		signals:  signals,
		tracker:  tracker,
		store:    store,
		locker:   locker,
		metrics:  metrics,
		reporter: reporter,
		queue:    queue,
		symbol:   cfg.Market.Symbol,
		interval: interval,
		horizons: horizons,
	}, nil
}

// RunCycle executes one full prediction cycle under the cycle lock and
// returns the generated report.
func (f *Forecaster) RunCycle(ctx context.Context) (*models.CycleReport, error) {
	ok, err := f.locker.TryLock(ctx, cycleLockKey, f.cfg.Scheduler.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, ErrCycleInProgress
	}
	defer func() {
		if err := f.locker.Unlock(context.Background(), cycleLockKey); err != nil {
			f.log.Warn("release cycle lock", applogger.Error(err))
		}
	}()

	start := time.Now().UTC()
	report, err := f.runCycleLocked(ctx, start)
	if err != nil {
		f.metrics.RecordCycle("error", time.Since(start).Seconds())
		return nil, err
	}
	f.metrics.RecordCycle("ok", time.Since(start).Seconds())
	return report, nil
}

func (f *Forecaster) runCycleLocked(ctx context.Context, now time.Time) (*models.CycleReport, error) {
	cycleID := uuid.NewString()
	f.log.Info("cycle started",
		applogger.String("cycle_id", cycleID),
		applogger.String("symbol", f.symbol),
		applogger.String("interval", string(f.interval)))

	candles, err := f.candles.RecentCandles(ctx, f.symbol, f.interval, f.cfg.Market.CandleCount)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) < f.builder.MaxWindow() {
		return nil, &models.InsufficientHistoryError{Need: f.builder.MaxWindow(), Got: len(candles)}
	}

	price, err := f.quotes.CurrentPrice(ctx, f.symbol)
	if err != nil {
		price = models.LastClose(candles)
		f.log.Warn("no live quote, using last close",
			applogger.String("cycle_id", cycleID),
			applogger.Float64("price", price),
			applogger.Error(err))
	}

	// Validate due records before forecasting so reliability weights and the
	// retrain signal reflect everything known at this instant.
	validation, err := f.validatePass(ctx, now, candles)
	if err != nil {
		f.log.Error("validation pass failed",
			applogger.String("cycle_id", cycleID),
			applogger.Error(err))
		validation = nil
	}

	frame, err := f.builder.Build(candles)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}

	run, err := f.modelSet.Run(ctx, f.trainingSet(candles, frame))
	if err != nil {
		return nil, fmt.Errorf("fit models: %w", err)
	}
	for name, fitErr := range run.Excluded {
		f.log.Warn("model excluded from cycle",
			applogger.String("cycle_id", cycleID),
			applogger.String("model", name),
			applogger.Error(fitErr))
	}

	reliability, err := f.tracker.ModelReliability(ctx)
	if err != nil {
		f.log.Warn("model reliability unavailable", applogger.Error(err))
		reliability = nil
	}

	ensembles := make([]models.EnsembleForecast, 0, len(f.horizons))
	for _, h := range f.horizons {
		forecasts := run.Forecasts[h]
		if len(forecasts) == 0 {
			return nil, fmt.Errorf("no forecasts for horizon %s", h.Label())
		}
		ens, err := f.weighter.Combine(blendReliability(forecasts, reliability))
		if err != nil {
			return nil, fmt.Errorf("combine horizon %s: %w", h.Label(), err)
		}
		ens.CycleTime = now
		ens.TargetTime = now.Add(h.Duration())
		ensembles = append(ensembles, ens)
		f.metrics.RecordForecast(h.Label())
	}

	bundle, err := f.signals.Analyze(candles, frame)
	if err != nil {
		return nil, fmt.Errorf("derive signal: %w", err)
	}

	records := f.buildRecords(cycleID, now, price, ensembles, bundle)
	if err := f.store.Append(ctx, records); err != nil {
		return nil, fmt.Errorf("append predictions: %w", err)
	}

	report := f.buildReport(ctx, cycleID, now, price, candles, ensembles, run, bundle, validation)
	f.reporter.Distribute(ctx, report)
	f.maybeRequestRetrain(ctx, validation)

	f.log.Info("cycle complete",
		applogger.String("cycle_id", cycleID),
		applogger.Float64("price", price),
		applogger.String("action", string(bundle.Signal.Action)),
		applogger.String("trend", string(bundle.Trend.Label)),
		applogger.Int("records", len(records)))
	return report, nil
}

// trainingSet aligns candle history with the feature frame. The builder
// emits one row per candle from index MaxWindow-1 onward, so the tail of the
// series lines up with Frame.Rows one to one.
func (f *Forecaster) trainingSet(candles []models.Candle, frame *models.FeatureFrame) *domsvc.TrainingSet {
	offset := len(candles) - frame.Len()
	tail := candles[offset:]
	times := make([]time.Time, len(tail))
	for i, c := range tail {
		times[i] = c.OpenTime
	}
	return &domsvc.TrainingSet{
		Frame:    frame,
		Closes:   models.Closes(tail),
		Times:    times,
		Interval: f.interval.Duration(),
		Horizons: f.horizons,
		Holdout:  f.cfg.Forecast.Holdout,
	}
}

// blendReliability discounts each model's score by its validated track
// record before weighting. Models without enough validated history keep
// their raw score; non-positive scores pass through untouched since the
// weight floor absorbs them anyway.
func blendReliability(forecasts []models.ModelForecast, reliability map[string]float64) []models.ModelForecast {
	if len(reliability) == 0 {
		return forecasts
	}
	out := make([]models.ModelForecast, len(forecasts))
	copy(out, forecasts)
	for i := range out {
		if rel, ok := reliability[out[i].Model]; ok && out[i].Score > 0 {
			out[i].Score *= rel
		}
	}
	return out
}

func (f *Forecaster) buildRecords(cycleID string, now time.Time, price float64, ensembles []models.EnsembleForecast, bundle *domsvc.SignalBundle) []*models.PredictionRecord {
	records := make([]*models.PredictionRecord, 0, len(ensembles))
	for _, ens := range ensembles {
		records = append(records, &models.PredictionRecord{
			ID:         fmt.Sprintf("%s-%s", cycleID, ens.Horizon.Label()),
			CycleID:    cycleID,
			Symbol:     f.symbol,
			CreatedAt:  now,
			TargetTime: ens.TargetTime,
			Horizon:    ens.Horizon.Label(),
			BasePrice:  price,
			Forecast:   ens.Point,
			Lower:      ens.Lower,
			Upper:      ens.Upper,
			Confidence: ens.Confidence,
			Condition:  string(bundle.Trend.Label),
			Weights:    ens.Weights,
			Models:     ens.Models,
			Status:     models.StatusPending,
		})
	}
	return records
}

// maybeRequestRetrain queues a retrain request when the tracker recommends
// one. The retrain lock throttles requests to one per cycle interval so a
// retrain-triggered cycle that still sees bad accuracy cannot queue itself a
// successor immediately.
func (f *Forecaster) maybeRequestRetrain(ctx context.Context, validation *domsvc.ValidationReport) {
	if validation == nil || validation.Retrain != models.RetrainRecommended || f.queue == nil {
		return
	}

	ok, err := f.locker.TryLock(ctx, retrainLockKey, f.cfg.Scheduler.CycleInterval)
	if err != nil {
		f.log.Warn("retrain throttle lock", applogger.Error(err))
		return
	}
	if !ok {
		return
	}

	req := RetrainRequest{
		Reason:      "rolling accuracy below threshold",
		Accuracy:    validation.RollingAccuracy,
		RequestedAt: time.Now().UTC(),
	}
	if err := f.queue.PublishMessage(ctx, TypeRetrain, req); err != nil {
		f.log.Warn("queue retrain request", applogger.Error(err))
		return
	}
	f.log.Info("retrain requested",
		applogger.Float64("rolling_accuracy", validation.RollingAccuracy))
}
