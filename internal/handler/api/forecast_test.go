package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
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
	"EthCast/internal/usecase"
	pkgcache "EthCast/pkg/cache"
	"EthCast/pkg/config"
	"EthCast/pkg/logger"
)

type candleSource struct {
	candles []models.Candle
}

func (s *candleSource) Name() string { return "stub-candles" }

func (s *candleSource) RecentCandles(_ context.Context, _ string, _ repository.Interval, _ int) ([]models.Candle, error) {
	return s.candles, nil
}

type quoteSource struct {
	price float64
}

func (s *quoteSource) Name() string { return "stub-quotes" }

func (s *quoteSource) CurrentPrice(context.Context, string) (float64, error) {
	return s.price, nil
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

func marketCandles(n int) []models.Candle {
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

type apiHarness struct {
	cfg      *config.Config
	store    *repoimpl.FilePredictionStore
	cache    *pkgcache.MemoryCache
	reporter *usecase.Reporter
	handler  *ForecastHandler
	echo     *echo.Echo
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Forecast.ForestEstimators = 20

	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	store := repoimpl.NewFilePredictionStore(filepath.Join(t.TempDir(), "history.json"), log)
	require.NoError(t, store.Init(context.Background()))

	mem := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	reporter := usecase.NewReporter(cfg, log, mem, repoimpl.NewLogReportPublisher(log))
	tracker := accuracy.NewTracker(cfg, log, store, nopMetrics{})

	candles := &candleSource{candles: marketCandles(cfg.Market.CandleCount)}
	set := modelsvc.NewSet(cfg, log, nopMetrics{},
		modelsvc.NewLinear(cfg),
		modelsvc.NewPolynomial(cfg),
		modelsvc.NewRandomForest(cfg))

	fc, err := usecase.NewForecaster(cfg, log,
		candles, &quoteSource{price: models.LastClose(candles.candles)}, nil,
		features.NewBuilder(), set, ensemble.NewWeighter(cfg), signals.NewEngine(log), tracker,
		store, mem, nopMetrics{}, reporter, nil)
	require.NoError(t, err)

	h := NewForecastHandler(log, cfg, fc, reporter, tracker, store, nil, nil)
	e := echo.New()
	h.RegisterRoutes(e)

	return &apiHarness{cfg: cfg, store: store, cache: mem, reporter: reporter, handler: h, echo: e}
}

func (h *apiHarness) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)
	return rec
}

// envelope mirrors the APIResponse wrapper for assertions.
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["prediction_store"])
}

func TestLatestReportLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/report/latest")
	env := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusNotFound, env.Status)

	h.reporter.Distribute(context.Background(), &models.CycleReport{CycleID: "c-1", Symbol: "ETHUSDT"})

	rec = h.do(http.MethodGet, "/api/v1/report/latest")
	env = decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	var report models.CycleReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, "c-1", report.CycleID)
}

func TestPredictionsListAndValidation(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, h.store.Append(ctx, []*models.PredictionRecord{
		{
			ID: "c0-15m", CycleID: "c0", Symbol: "ETHUSDT",
			CreatedAt: now.Add(-2 * time.Hour), TargetTime: now.Add(-105 * time.Minute),
			Horizon: "15m", BasePrice: 2990, Forecast: 3010,
			Status: models.StatusPending,
		},
		{
			ID: "c1-15m", CycleID: "c1", Symbol: "ETHUSDT",
			CreatedAt: now, TargetTime: now.Add(15 * time.Minute),
			Horizon: "15m", BasePrice: 3000, Forecast: 3050,
			Status: models.StatusPending,
		},
	}))

	rec := h.do(http.MethodGet, "/api/v1/predictions?status=PENDING&horizon=15m")
	env := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	var list struct {
		Rows  []models.PredictionRecord `json:"rows"`
		Total int64                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 2)
	assert.Equal(t, int64(2), list.Total)

	// since drops records created before the cutoff.
	cutoff := now.Add(-time.Hour).Format(time.RFC3339)
	rec = h.do(http.MethodGet, "/api/v1/predictions?since="+cutoff)
	env = decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "c1-15m", list.Rows[0].ID)

	// An unparsable since is ignored rather than rejected.
	rec = h.do(http.MethodGet, "/api/v1/predictions?since=yesterday")
	env = decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Rows, 2)

	// Out-of-range limit trips validation.
	rec = h.do(http.MethodGet, "/api/v1/predictions?limit=9999")
	env = decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusBadRequest, env.Status)
	assert.Contains(t, string(env.Data), "ERR_LTE")

	rec = h.do(http.MethodGet, "/api/v1/predictions?status=bogus")
	env = decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestAccuracyAndModelsEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/accuracy")
	env := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	var summary models.AccuracySummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 0, summary.TotalValidated)
	assert.Equal(t, h.cfg.Accuracy.Window, summary.RollingWindow)

	rec = h.do(http.MethodGet, "/api/v1/models")
	env = decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	var status models.ModelsStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, models.RetrainNone, status.Retrain)
	assert.Empty(t, status.Performance)

	// Once a report exists the endpoint carries its scores and weights.
	h.reporter.Distribute(context.Background(), &models.CycleReport{
		CycleID: "c-2",
		ModelPerformance: []models.ModelPerformance{
			{Name: "linear", Score: 0.91, Weight: 0.62},
		},
	})
	rec = h.do(http.MethodGet, "/api/v1/models")
	env = decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	require.Len(t, status.Performance, 1)
	assert.Equal(t, "linear", status.Performance[0].Name)
}

func TestTriggerCycleConflict(t *testing.T) {
	h := newAPIHarness(t)

	ok, err := h.cache.TryLock(context.Background(), "lock:cycle", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	rec := h.do(http.MethodPost, "/api/v1/cycle")
	env := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusConflict, env.Status)
	assert.Contains(t, string(env.Data), "ERR_CONFLICT")
}

func TestTriggerCycleSync(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/cycle")
	env := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	var report models.CycleReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.NotEmpty(t, report.CycleID)
	assert.Len(t, report.Predictions, 4)
}

func TestTriggerCycleAsyncNeedsQueue(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/cycle?async=true")
	env := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestTriggerCycleRateLimited(t *testing.T) {
	h := newAPIHarness(t)

	ok, err := h.cache.TryLock(context.Background(), "lock:cycle", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Burst of 2 is allowed, the third hits the limiter with a real 429.
	h.do(http.MethodPost, "/api/v1/cycle")
	h.do(http.MethodPost, "/api/v1/cycle")
	rec := h.do(http.MethodPost, "/api/v1/cycle")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
