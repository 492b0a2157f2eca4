package repository

import (
	"context"
	"time"

	"EthCast/internal/domain/models"
)

// CandleSource supplies recent candle history for a symbol. Implementations
// carry their own retry/fallback policy.
type CandleSource interface {
	Name() string
	RecentCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]models.Candle, error)
}

// QuoteSource supplies a spot price for a symbol.
type QuoteSource interface {
	Name() string
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceStream delivers live ticks over a persistent connection.
type PriceStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// PredictionStore is the append-only prediction history. Records are created
// PENDING and mutated exactly once, when validation attaches the realized
// outcome; they are never deleted.
type PredictionStore interface {
	Init(ctx context.Context) error // ensure schema/files exist
	Append(ctx context.Context, records []*models.PredictionRecord) error
	ListPending(ctx context.Context, due time.Time) ([]*models.PredictionRecord, error)
	MarkValidated(ctx context.Context, id string, result *models.ValidationResult) error
	ListValidated(ctx context.Context, limit int) ([]*models.PredictionRecord, error)
	List(ctx context.Context, status models.PredictionStatus, horizon string, limit int) ([]*models.PredictionRecord, error)
	Counts(ctx context.Context) (pending int, validated int, err error)
	Health(ctx context.Context) error
	Close() error
}

// ReportPublisher pushes completed cycle reports to external consumers.
type ReportPublisher interface {
	Publish(ctx context.Context, report *models.CycleReport) error
	Close() error
}

// ReportArchive is durable storage for published reports.
type ReportArchive interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, report *models.CycleReport) error
	Recent(ctx context.Context, limit int) ([]*models.CycleReport, error)
	Close() error
}

// Locker provides scoped mutual exclusion for cycle and validation runs so
// overlapping invocations never double-write the prediction store.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Metrics is the domain-facing metrics recorder.
type Metrics interface {
	RecordCycle(status string, seconds float64)
	RecordModelFit(model string, seconds float64, score float64)
	RecordForecast(horizon string)
	RecordValidation(outcome string)
	RecordRollingAccuracy(accuracy float64)
	RecordRetrainSignal()
	RecordSourceRequest(source, status string)
	RecordLastPrice(symbol string, price float64)
}
