package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	domsvc "EthCast/internal/domain/service"
	pkgcache "EthCast/pkg/cache"
	"EthCast/pkg/config"
	applogger "EthCast/pkg/logger"
)

// ErrNoReport means no cycle has completed recently enough to have a cached
// report.
var ErrNoReport = errors.New("no report available yet")

// Reporter caches and publishes completed cycle reports. A distribution
// failure is logged but never fails the cycle that produced the report; the
// prediction records are already durable by the time Distribute runs.
type Reporter struct {
	cfg       *config.Config
	log       *applogger.Logger
	cache     pkgcache.Service
	publisher repository.ReportPublisher
}

// NewReporter creates the report distributor.
func NewReporter(cfg *config.Config, log *applogger.Logger, cache pkgcache.Service, publisher repository.ReportPublisher) *Reporter {
	return &Reporter{
		cfg:       cfg,
		log:       log.Named("reporter"),
		cache:     cache,
		publisher: publisher,
	}
}

// Distribute snapshots the report into the cache and hands it to the
// configured publisher.
func (r *Reporter) Distribute(ctx context.Context, report *models.CycleReport) {
	key := pkgcache.GenerateKey("report", "latest")
	if err := r.cache.Set(ctx, key, report, r.cfg.Cache.ReportTTL); err != nil {
		r.log.Warn("cache report snapshot",
			applogger.String("cycle_id", report.CycleID),
			applogger.Error(err))
	}
	if err := r.publisher.Publish(ctx, report); err != nil {
		r.log.Error("publish report",
			applogger.String("cycle_id", report.CycleID),
			applogger.Error(err))
	}
}

// Latest returns the most recent cached report, or ErrNoReport when the
// snapshot has expired or no cycle has run yet.
func (r *Reporter) Latest(ctx context.Context) (*models.CycleReport, error) {
	var report models.CycleReport
	err := r.cache.Get(ctx, pkgcache.GenerateKey("report", "latest"), &report)
	if err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, ErrNoReport
		}
		return nil, err
	}
	return &report, nil
}

func (f *Forecaster) buildReport(
	ctx context.Context,
	cycleID string,
	now time.Time,
	price float64,
	candles []models.Candle,
	ensembles []models.EnsembleForecast,
	run *domsvc.ModelRun,
	bundle *domsvc.SignalBundle,
	validation *domsvc.ValidationReport,
) *models.CycleReport {
	preds := make([]models.PredictionEntry, 0, len(ensembles))
	for i := range ensembles {
		ens := &ensembles[i]
		preds = append(preds, models.PredictionEntry{
			Horizon:    ens.Horizon.Label(),
			Price:      ens.Point,
			ChangePct:  ens.ChangePct(price),
			TargetTime: ens.TargetTime,
			Lower:      ens.Lower,
			Upper:      ens.Upper,
			Confidence: ens.Confidence,
		})
	}

	// Scores are per model, so weights come out identical across horizons;
	// report the first horizon's.
	weights := map[string]float64{}
	ensembleScore := 0.0
	if len(ensembles) > 0 {
		weights = ensembles[0].Weights
		ensembleScore = ensembles[0].Score
	}
	perf := make([]models.ModelPerformance, 0, len(run.Scores))
	for name, score := range run.Scores {
		perf = append(perf, models.ModelPerformance{
			Name:   name,
			Score:  score,
			Weight: weights[name],
		})
	}
	sort.Slice(perf, func(i, j int) bool { return perf[i].Name < perf[j].Name })

	macd := "bearish"
	if bundle.Trend.MACDBullish {
		macd = "bullish"
	}

	report := &models.CycleReport{
		CycleID:      cycleID,
		GeneratedAt:  now,
		Symbol:       f.symbol,
		Interval:     string(f.interval),
		CurrentPrice: price,
		LastCandleAt: candles[len(candles)-1].OpenTime,
		Predictions:  preds,
		Signal: models.SignalReport{
			Action:     bundle.Signal.Action,
			Confidence: bundle.Signal.Confidence,
			Entry:      bundle.Signal.Entry,
			Stop:       bundle.Signal.StopLoss,
			Target:     bundle.Signal.Target,
			RiskReward: bundle.Signal.RiskReward,
			Reasoning:  bundle.Signal.Reasoning,
		},
		Trend: models.TrendReport{
			Label:       bundle.Trend.Label,
			Confidence:  bundle.Trend.Confidence,
			MAAlignment: bundle.Trend.MAAlignment,
			PriceAction: bundle.Trend.PriceAction,
			Momentum:    bundle.Trend.Momentum,
			RSI:         bundle.Trend.RSI,
			MACD:        macd,
		},
		ModelPerformance: perf,
		EnsembleScore:    ensembleScore,
		Retrain:          models.RetrainNone,
	}
	if validation != nil {
		report.Retrain = validation.Retrain
	}

	summary, err := f.tracker.Summary(ctx, f.cfg.Accuracy.Window)
	if err != nil {
		f.log.Warn("accuracy summary unavailable", applogger.Error(err))
	} else {
		report.Accuracy = summary
	}
	return report
}
