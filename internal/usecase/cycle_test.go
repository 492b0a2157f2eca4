package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	repoimpl "EthCast/internal/repository"
	"EthCast/internal/services/accuracy"
	"EthCast/internal/services/ensemble"
	"EthCast/internal/services/features"
	modelsvc "EthCast/internal/services/models"
	"EthCast/internal/services/signals"
	pkgcache "EthCast/pkg/cache"
	"EthCast/pkg/config"
	"EthCast/pkg/logger"
)

type candleSource struct {
	candles []models.Candle
	err     error
}

func (s *candleSource) Name() string { return "stub-candles" }

func (s *candleSource) RecentCandles(_ context.Context, _ string, _ repository.Interval, _ int) ([]models.Candle, error) {
	return s.candles, s.err
}

type stubQuotes struct {
	price float64
	err   error
}

func (s *stubQuotes) Name() string { return "stub-quotes" }

func (s *stubQuotes) CurrentPrice(context.Context, string) (float64, error) {
	return s.price, s.err
}

type capturePublisher struct {
	mu      sync.Mutex
	reports []*models.CycleReport
	err     error
}

func (p *capturePublisher) Publish(_ context.Context, report *models.CycleReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reports = append(p.reports, report)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type captureQueue struct {
	mu       sync.Mutex
	messages []queuedMessage
}

type queuedMessage struct {
	Type    string
	Payload interface{}
}

func (q *captureQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, queuedMessage{Type: msgType, Payload: payload})
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordCycle(string, float64)             {}
func (nopMetrics) RecordModelFit(string, float64, float64) {}
func (nopMetrics) RecordForecast(string)                   {}
func (nopMetrics) RecordValidation(string)                 {}
func (nopMetrics) RecordRollingAccuracy(float64)           {}
func (nopMetrics) RecordRetrainSignal()                    {}
func (nopMetrics) RecordSourceRequest(string, string)      {}
func (nopMetrics) RecordLastPrice(string, float64)         {}

// trendingCandles ends its last candle just before time.Now so validation
// lookups and freshness checks behave as they would in production.
func trendingCandles(n int) []models.Candle {
	start := time.Now().UTC().Truncate(time.Minute).Add(-time.Duration(n) * time.Minute)
	candles := make([]models.Candle, n)
	for i := range candles {
		base := 3000.0 + 40*math.Sin(float64(i)/9) + 0.3*float64(i)
		candles[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     base - 1,
			High:     base + 4,
			Low:      base - 4,
			Close:    base,
			Volume:   900 + 80*math.Cos(float64(i)/5),
		}
	}
	return candles
}

type harness struct {
	cfg       *config.Config
	store     *repoimpl.FilePredictionStore
	cache     *pkgcache.MemoryCache
	candles   *candleSource
	quotes    *stubQuotes
	publisher *capturePublisher
	queue     *captureQueue
	reporter  *Reporter
	fc        *Forecaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Forecast.ForestEstimators = 20 // keep fits fast in tests

	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	store := repoimpl.NewFilePredictionStore(filepath.Join(t.TempDir(), "history.json"), log)
	require.NoError(t, store.Init(context.Background()))

	mem := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	publisher := &capturePublisher{}
	q := &captureQueue{}
	reporter := NewReporter(cfg, log, mem, publisher)

	candles := &candleSource{candles: trendingCandles(cfg.Market.CandleCount)}
	quotes := &stubQuotes{price: models.LastClose(candles.candles) + 2}

	set := modelsvc.NewSet(cfg, log, nopMetrics{},
		modelsvc.NewLinear(cfg),
		modelsvc.NewPolynomial(cfg),
		modelsvc.NewRandomForest(cfg))
	tracker := accuracy.NewTracker(cfg, log, store, nopMetrics{})

	fc, err := NewForecaster(cfg, log,
		candles, quotes, nil,
		features.NewBuilder(), set, ensemble.NewWeighter(cfg), signals.NewEngine(log), tracker,
		store, mem, nopMetrics{}, reporter, q)
	require.NoError(t, err)

	return &harness{
		cfg:       cfg,
		store:     store,
		cache:     mem,
		candles:   candles,
		quotes:    quotes,
		publisher: publisher,
		queue:     q,
		reporter:  reporter,
		fc:        fc,
	}
}

func TestRunCycleProducesReportAndRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	report, err := h.fc.RunCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.NotEmpty(t, report.CycleID)
	assert.Equal(t, "ETHUSDT", report.Symbol)
	assert.InDelta(t, h.quotes.price, report.CurrentPrice, 1e-9)
	assert.False(t, math.IsNaN(report.EnsembleScore))

	require.Len(t, report.Predictions, 4)
	labels := make([]string, 0, 4)
	for _, p := range report.Predictions {
		labels = append(labels, p.Horizon)
		assert.Equal(t, report.GeneratedAt.Add(mustDuration(t, p.Horizon)), p.TargetTime, p.Horizon)
		assert.LessOrEqual(t, p.Lower, p.Price, p.Horizon)
		assert.GreaterOrEqual(t, p.Upper, p.Price, p.Horizon)
	}
	assert.Equal(t, []string{"15m", "30m", "60m", "120m"}, labels)

	require.Len(t, report.ModelPerformance, 3)
	totalWeight := 0.0
	for _, mp := range report.ModelPerformance {
		totalWeight += mp.Weight
	}
	assert.InDelta(t, 1.0, totalWeight, 1e-9)

	// One PENDING record per horizon, keyed off the cycle ID.
	pending, validated, err := h.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, pending)
	assert.Equal(t, 0, validated)

	records, err := h.store.List(ctx, models.StatusPending, "", 0)
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, report.CycleID, r.CycleID)
		assert.Equal(t, fmt.Sprintf("%s-%s", r.CycleID, r.Horizon), r.ID)
		assert.InDelta(t, report.CurrentPrice, r.BasePrice, 1e-9)
	}

	// The report reached both distribution paths.
	require.Len(t, h.publisher.reports, 1)
	assert.Equal(t, report.CycleID, h.publisher.reports[0].CycleID)

	cached, err := h.reporter.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.CycleID, cached.CycleID)
}

func mustDuration(t *testing.T, label string) time.Duration {
	t.Helper()
	d, err := time.ParseDuration(label)
	require.NoError(t, err)
	return d
}

func TestRunCycleRespectsLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.cache.TryLock(ctx, cycleLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.fc.RunCycle(ctx)
	assert.ErrorIs(t, err, ErrCycleInProgress)

	require.NoError(t, h.cache.Unlock(ctx, cycleLockKey))

	_, err = h.fc.RunCycle(ctx)
	require.NoError(t, err)

	// The lock is released after a successful run.
	ok, err = h.cache.TryLock(ctx, cycleLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunCycleFallsBackToLastClose(t *testing.T) {
	h := newHarness(t)
	h.quotes.err = errors.New("all quote sources down")

	report, err := h.fc.RunCycle(context.Background())
	require.NoError(t, err)

	last := models.LastClose(h.candles.candles)
	assert.InDelta(t, last, report.CurrentPrice, 1e-9)
}

func TestRunCycleValidatesDueRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A record whose target time sits inside the candle history is due and
	// must be validated by the cycle before new predictions are made.
	target := h.candles.candles[len(h.candles.candles)-10].OpenTime
	seed := &models.PredictionRecord{
		ID:         "seed-15m",
		CycleID:    "seed",
		Symbol:     "ETHUSDT",
		CreatedAt:  target.Add(-15 * time.Minute),
		TargetTime: target,
		Horizon:    "15m",
		BasePrice:  3000,
		Forecast:   3100,
		Status:     models.StatusPending,
	}
	require.NoError(t, h.store.Append(ctx, []*models.PredictionRecord{seed}))

	report, err := h.fc.RunCycle(ctx)
	require.NoError(t, err)

	records, err := h.store.List(ctx, models.StatusValidated, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "seed-15m", records[0].ID)
	require.NotNil(t, records[0].Validation)

	require.NotNil(t, report.Accuracy)
	assert.Equal(t, 1, report.Accuracy.TotalValidated)
}

func TestRunCycleRequestsRetrainOnDecay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Seed enough due records with wrong direction calls to drive rolling
	// accuracy to zero. The candle series trends up, so forecasting below
	// base is always a miss.
	var seeds []*models.PredictionRecord
	for i := 0; i < 6; i++ {
		target := h.candles.candles[len(h.candles.candles)-20+i].OpenTime
		seeds = append(seeds, &models.PredictionRecord{
			ID:         fmt.Sprintf("seed-%d", i),
			CycleID:    "seed",
			Symbol:     "ETHUSDT",
			CreatedAt:  target.Add(-15 * time.Minute),
			TargetTime: target,
			Horizon:    "15m",
			BasePrice:  1000,
			Forecast:   900,
			Status:     models.StatusPending,
		})
	}
	require.NoError(t, h.store.Append(ctx, seeds))

	report, err := h.fc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RetrainRecommended, report.Retrain)

	require.Len(t, h.queue.messages, 1)
	assert.Equal(t, TypeRetrain, h.queue.messages[0].Type)
	req, ok := h.queue.messages[0].Payload.(RetrainRequest)
	require.True(t, ok)
	assert.InDelta(t, 0.0, req.Accuracy, 1e-9)

	// The throttle lock keeps an immediate follow-up cycle from queueing a
	// second request.
	_, err = h.fc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Len(t, h.queue.messages, 1)
}

func TestRunCycleInsufficientHistory(t *testing.T) {
	h := newHarness(t)
	h.candles.candles = trendingCandles(10)

	_, err := h.fc.RunCycle(context.Background())
	var insufficientErr *models.InsufficientHistoryError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 10, insufficientErr.Got)

	// A failed cycle still releases the lock.
	ok, lockErr := h.cache.TryLock(context.Background(), cycleLockKey, time.Minute)
	require.NoError(t, lockErr)
	assert.True(t, ok)
}

func TestRunValidationStandalone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	target := h.candles.candles[len(h.candles.candles)-5].OpenTime
	seed := &models.PredictionRecord{
		ID:         "standalone-15m",
		CycleID:    "standalone",
		Symbol:     "ETHUSDT",
		CreatedAt:  target.Add(-15 * time.Minute),
		TargetTime: target,
		Horizon:    "15m",
		BasePrice:  3000,
		Forecast:   3400,
		Status:     models.StatusPending,
	}
	require.NoError(t, h.store.Append(ctx, []*models.PredictionRecord{seed}))

	report, err := h.fc.RunValidation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Validated)
	assert.Equal(t, 0, report.Gaps)

	pending, validated, err := h.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, validated)
}

func TestNewForecasterRejectsBadHorizons(t *testing.T) {
	h := newHarness(t)

	cfg := *h.cfg
	cfg.Forecast.Horizons = []string{"banana"}
	_, err := NewForecaster(&cfg, h.fc.log, h.candles, h.quotes, nil,
		h.fc.builder, h.fc.modelSet, h.fc.weighter, h.fc.signals, h.fc.tracker,
		h.store, h.cache, nopMetrics{}, h.reporter, nil)
	require.Error(t, err)

	cfg.Forecast.Horizons = []string{"30s"} // shorter than the 1m interval
	_, err = NewForecaster(&cfg, h.fc.log, h.candles, h.quotes, nil,
		h.fc.builder, h.fc.modelSet, h.fc.weighter, h.fc.signals, h.fc.tracker,
		h.store, h.cache, nopMetrics{}, h.reporter, nil)
	require.Error(t, err)
}
