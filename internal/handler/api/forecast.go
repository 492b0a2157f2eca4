package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	domsvc "EthCast/internal/domain/service"
	"EthCast/internal/usecase"
	"EthCast/pkg/config"
	xhttp "EthCast/pkg/http"
	"EthCast/pkg/http/middleware"
	applogger "EthCast/pkg/logger"
	pkgqueue "EthCast/pkg/queue"
)

// ForecastHandler serves the forecast API: the latest cycle report, the
// prediction history, accuracy aggregates, model status, the report archive,
// and the on-demand cycle trigger.
type ForecastHandler struct {
	log        *applogger.Logger
	cfg        *config.Config
	forecaster *usecase.Forecaster
	reporter   *usecase.Reporter
	tracker    domsvc.AccuracyTracker
	store      repository.PredictionStore
	archive    repository.ReportArchive // nil when archiving is disabled
	queue      pkgqueue.QueueService    // nil when the work queue is disabled
}

var _ xhttp.Handler = (*ForecastHandler)(nil)

func NewForecastHandler(
	log *applogger.Logger,
	cfg *config.Config,
	forecaster *usecase.Forecaster,
	reporter *usecase.Reporter,
	tracker domsvc.AccuracyTracker,
	store repository.PredictionStore,
	archive repository.ReportArchive,
	queue pkgqueue.QueueService,
) *ForecastHandler {
	return &ForecastHandler{
		log:        log.Named("api"),
		cfg:        cfg,
		forecaster: forecaster,
		reporter:   reporter,
		tracker:    tracker,
		store:      store,
		archive:    archive,
		queue:      queue,
	}
}

func (h *ForecastHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.GET("/report/latest", h.LatestReport)
	g.GET("/predictions", h.Predictions)
	g.GET("/accuracy", h.Accuracy)
	g.GET("/models", h.Models)
	if h.archive != nil {
		g.GET("/reports/archive", h.ArchivedReports)
	}
	g.POST("/cycle", h.TriggerCycle,
		middleware.RateLimit(middleware.RateLimitConfig{RPS: 0.5, Burst: 2}))
}

// Health returns liveness plus dependency checks. Unlike the API envelope it
// writes the real HTTP status so load balancer probes can read it.
func (h *ForecastHandler) Health(c echo.Context) error {
	checks := map[string]string{}
	status := "ok"
	code := http.StatusOK

	if err := h.store.Health(c.Request().Context()); err != nil {
		checks["prediction_store"] = err.Error()
		status = "degraded"
		code = http.StatusServiceUnavailable
	} else {
		checks["prediction_store"] = "ok"
	}

	return c.JSON(code, models.HealthResponse{
		Status: status,
		Time:   time.Now().UTC(),
		Checks: checks,
	})
}

func (h *ForecastHandler) LatestReport(c echo.Context) error {
	report, err := h.reporter.Latest(c.Request().Context())
	if err != nil {
		if errors.Is(err, usecase.ErrNoReport) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no report available yet"))
		}
		h.log.Error("latest report", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *ForecastHandler) Predictions(c echo.Context) error {
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	records, err := h.store.List(c.Request().Context(), models.PredictionStatus(req.Status), req.Horizon, req.Limit)
	if err != nil {
		h.log.Error("list predictions", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	// Unparsable since values fall back to the zero time, which keeps everything.
	if since := xhttp.ParseTimeDefault(req.Since, time.Time{}); !since.IsZero() {
		filtered := records[:0]
		for _, rec := range records {
			if !rec.CreatedAt.Before(since) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	return xhttp.ListResponse(c, records, int64(len(records)))
}

func (h *ForecastHandler) Accuracy(c echo.Context) error {
	req := &models.AccuracyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	window := req.Window
	if window <= 0 {
		window = h.cfg.Accuracy.Window
	}

	summary, err := h.tracker.Summary(c.Request().Context(), window)
	if err != nil {
		h.log.Error("accuracy summary", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, summary)
}

func (h *ForecastHandler) Models(c echo.Context) error {
	ctx := c.Request().Context()

	reliability, err := h.tracker.ModelReliability(ctx)
	if err != nil {
		h.log.Error("model reliability", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	state, err := h.tracker.RetrainState(ctx)
	if err != nil {
		h.log.Error("retrain state", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	resp := models.ModelsStatusResponse{
		Reliability: reliability,
		Retrain:     state,
	}
	// Scores and weights come from the latest report; absent before the
	// first cycle.
	if report, err := h.reporter.Latest(ctx); err == nil {
		resp.Performance = report.ModelPerformance
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *ForecastHandler) ArchivedReports(c echo.Context) error {
	req := &models.ReportsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	reports, err := h.archive.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		h.log.Error("archived reports", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, reports, int64(len(reports)))
}

// TriggerCycle runs a cycle synchronously, or queues one when async is set
// and the work queue is enabled.
func (h *ForecastHandler) TriggerCycle(c echo.Context) error {
	req := &models.CycleTriggerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Async {
		if h.queue == nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("async trigger requires the work queue to be enabled"))
		}
		err := h.queue.PublishMessage(c.Request().Context(), usecase.TypeCycle, usecase.CycleRequest{
			TriggeredBy: "api",
			RequestedAt: time.Now().UTC(),
		})
		if err != nil {
			h.log.Error("enqueue cycle trigger", applogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("could not enqueue cycle"))
		}
		return xhttp.AcceptedResponse(c, map[string]interface{}{"queued": true})
	}

	report, err := h.forecaster.RunCycle(c.Request().Context())
	if err != nil {
		return h.cycleError(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *ForecastHandler) cycleError(c echo.Context, err error) error {
	if errors.Is(err, usecase.ErrCycleInProgress) {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("a prediction cycle is already running"))
	}

	var dataErr *models.DataUnavailableError
	if errors.As(err, &dataErr) {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(dataErr.Error()).WithError(err))
	}
	var histErr *models.InsufficientHistoryError
	if errors.As(err, &histErr) {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(histErr.Error()).WithError(err))
	}

	h.log.Error("cycle failed", applogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
