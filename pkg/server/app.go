package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EthCast/internal/domain/repository"
	"EthCast/internal/services/stream"
	"EthCast/internal/usecase"
	pkgcache "EthCast/pkg/cache"
	pkgch "EthCast/pkg/clickhouse"
	"EthCast/pkg/config"
	xhttp "EthCast/pkg/http"
	pkgkafka "EthCast/pkg/kafka"
	applogger "EthCast/pkg/logger"
	pkgqueue "EthCast/pkg/queue"
)

// App encapsulates the entire application lifecycle: the price stream, the
// cycle scheduler, the work queue, the report archiver and the HTTP API.
// Optional components (queue, consumer, archiver, producer, chClient) are nil
// when disabled in configuration.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	forecaster  *usecase.Forecaster
	priceStream repository.PriceStream
	latest      *stream.Latest
	metrics     repository.Metrics
	queue       *pkgqueue.RedisQueue
	consumer    *pkgkafka.Consumer
	archiver    *usecase.ReportArchiver
	producer    *pkgkafka.Producer
	chClient    *pkgch.Client
	store       repository.PredictionStore
	cache       pkgcache.Service
	httpHandler xhttp.Handler

	httpServer *xhttp.Server
	cancel     context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	forecaster *usecase.Forecaster,
	priceStream repository.PriceStream,
	latest *stream.Latest,
	metrics repository.Metrics,
	queue *pkgqueue.RedisQueue,
	consumer *pkgkafka.Consumer,
	archiver *usecase.ReportArchiver,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	store repository.PredictionStore,
	cache pkgcache.Service,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		forecaster:  forecaster,
		priceStream: priceStream,
		latest:      latest,
		metrics:     metrics,
		queue:       queue,
		consumer:    consumer,
		archiver:    archiver,
		producer:    producer,
		chClient:    chClient,
		store:       store,
		cache:       cache,
		httpHandler: httpHandler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	defer cancel()

	if a.cfg.LogCollection.Enabled && a.producer != nil {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   a.cfg.LogCollection.FlushInterval,
			CountThreshold: a.cfg.LogCollection.CountThreshold,
			Topic:          a.cfg.LogCollection.Topic,
			Publisher:      logSink{producer: a.producer},
		})
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.priceStream != nil {
		go a.runStream(ctx)
		a.log.Info("price stream started", applogger.String("symbol", a.cfg.Market.Symbol))
	}

	if a.cfg.Scheduler.Enabled {
		go a.runScheduler(ctx)
		a.log.Info("cycle scheduler started",
			applogger.Duration("interval", a.cfg.Scheduler.CycleInterval))
	}

	if a.queue != nil {
		a.queue.RegisterJobs([]pkgqueue.Job{
			usecase.NewCycleJob(a.forecaster, a.log),
			usecase.NewRetrainJob(a.forecaster, a.log),
		})
		if err := a.queue.Start(); err != nil {
			a.log.Error("queue start error", applogger.Error(err))
			return err
		}
		a.log.Info("work queue started", applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.consumer != nil && a.archiver != nil {
		a.consumer.RegisterHandler(a.archiver)
		a.consumer.WithConsumerHook(a.archiver.Hook())
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("report archiver started", applogger.String("topic", a.archiver.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(context.Background())
}

// runScheduler fires a prediction cycle immediately and then once per
// configured interval until the context is canceled.
func (a *App) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Scheduler.CycleInterval)
	defer ticker.Stop()

	a.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *App) cycle(ctx context.Context) {
	if _, err := a.forecaster.RunCycle(ctx); err != nil {
		if errors.Is(err, usecase.ErrCycleInProgress) {
			a.log.Info("cycle already running, skipping scheduled run")
			return
		}
		a.log.Error("scheduled cycle failed", applogger.Error(err))
	}
}

// runStream keeps the websocket tick feed alive. Every tick lands in the
// shared Latest slot and the last-price gauge; read errors trigger a
// reconnect with the configured backoff.
func (a *App) runStream(ctx context.Context) {
	if err := a.priceStream.Connect(ctx); err != nil {
		a.log.Warn("price stream connect failed", applogger.Error(err))
	}

	for ctx.Err() == nil {
		if !a.priceStream.IsConnected() {
			if err := a.priceStream.Reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				a.log.Warn("price stream reconnect failed", applogger.Error(err))
				continue
			}
		}

		ticks, errs := a.priceStream.Read(ctx)
		for tick := range ticks {
			a.latest.Set(tick)
			a.metrics.RecordLastPrice(tick.Symbol, tick.Price)
		}
		if err, ok := <-errs; ok && err != nil && ctx.Err() == nil {
			a.log.Warn("price stream interrupted", applogger.Error(err))
		}
		_ = a.priceStream.Close()
	}
}

// shutdown gracefully stops all services. Producers of new work stop first
// (scheduler, stream, HTTP), then the workers draining it, then the clients
// underneath.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	if a.priceStream != nil {
		if err := a.priceStream.Close(); err != nil {
			a.log.Warn("price stream close error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Flush any buffered log batches before the producer goes away.
	a.log.RemoveCollector()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("prediction store close error", applogger.Error(err))
	}

	if c, ok := a.cache.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

// logSink adapts the Kafka producer to the log collector's publisher.
type logSink struct {
	producer *pkgkafka.Producer
}

func (s logSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}
