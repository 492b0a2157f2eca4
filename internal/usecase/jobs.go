package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	applogger "EthCast/pkg/logger"
	pkgqueue "EthCast/pkg/queue"
)

// Queue message types.
const (
	TypeCycle   = "forecast.cycle"
	TypeRetrain = "forecast.retrain"
)

// CycleRequest asks for a forecast cycle outside the scheduler cadence.
type CycleRequest struct {
	TriggeredBy string    `json:"triggered_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// RetrainRequest asks for an immediate refit after accuracy decay. Models are
// refit from scratch every cycle, so a retrain is simply a cycle run ahead of
// schedule with the decayed accuracy on record.
type RetrainRequest struct {
	Reason      string    `json:"reason"`
	Accuracy    float64   `json:"accuracy"`
	RequestedAt time.Time `json:"requested_at"`
}

// CycleJob runs a forecast cycle from a queued trigger.
type CycleJob struct {
	forecaster *Forecaster
	log        *applogger.Logger
}

func NewCycleJob(forecaster *Forecaster, log *applogger.Logger) *CycleJob {
	return &CycleJob{forecaster: forecaster, log: log.Named("cycle_job")}
}

func (j *CycleJob) Name() string { return "cycle-runner" }
func (j *CycleJob) Type() string { return TypeCycle }

func (j *CycleJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := pkgqueue.ParsePayload[CycleRequest](payload)
	if err != nil {
		return fmt.Errorf("parse cycle request: %w", err)
	}

	j.log.Info("queued cycle trigger", applogger.String("triggered_by", req.TriggeredBy))
	_, err = j.forecaster.RunCycle(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		// The in-flight cycle satisfies the trigger.
		j.log.Info("cycle already running, dropping queued trigger")
		return nil
	}
	return err
}

// RetrainJob refits the model set in response to accuracy decay. Unlike
// CycleJob it propagates ErrCycleInProgress so the queue retries until the
// refit actually lands.
type RetrainJob struct {
	forecaster *Forecaster
	log        *applogger.Logger
}

func NewRetrainJob(forecaster *Forecaster, log *applogger.Logger) *RetrainJob {
	return &RetrainJob{forecaster: forecaster, log: log.Named("retrain_job")}
}

func (j *RetrainJob) Name() string { return "model-retrainer" }
func (j *RetrainJob) Type() string { return TypeRetrain }

func (j *RetrainJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := pkgqueue.ParsePayload[RetrainRequest](payload)
	if err != nil {
		return fmt.Errorf("parse retrain request: %w", err)
	}

	j.log.Warn("retrain triggered",
		applogger.String("reason", req.Reason),
		applogger.Float64("rolling_accuracy", req.Accuracy))
	_, err = j.forecaster.RunCycle(ctx)
	return err
}
