//go:build wireinject
// +build wireinject

package di

import (
	"EthCast/internal/usecase"
	"EthCast/pkg/config"
	"EthCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Foundation
		ProvideLogger,
		ProvideMetrics,

		// Cache and locking
		ProvideCache,
		ProvideLocker,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Storage
		ProvidePredictionStore,
		ProvideReportArchive,

		// Queue
		ProvideQueue,
		ProvideQueueService,

		// Market data and price stream
		ProvideMarketData,
		ProvideCandleSource,
		ProvideQuoteSource,
		ProvidePriceStream,
		ProvideLatest,
		ProvideTickSource,

		// Domain services
		ProvideFeatureBuilder,
		ProvideModelSet,
		ProvideWeighter,
		ProvideSignalEngine,
		ProvideAccuracyTracker,

		// Use cases
		ProvideReportPublisher,
		usecase.NewReporter,
		usecase.NewForecaster,
		ProvideReportArchiver,

		// HTTP API
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeReporter builds the report distributor on its own, for the CLI
// command that prints the latest cached report.
func InitializeReporter(cfg *config.Config) (*usecase.Reporter, error) {
	wire.Build(
		ProvideLogger,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideReportPublisher,
		usecase.NewReporter,
	)
	return &usecase.Reporter{}, nil
}

// InitializeForecaster builds just the forecasting pipeline, for one-shot
// CLI commands that run a cycle or a validation pass and exit.
func InitializeForecaster(cfg *config.Config) (*usecase.Forecaster, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,
		ProvideLocker,
		ProvideRedisClient,
		ProvideQueue,
		ProvideQueueService,
		ProvideClickHouseClient,
		ProvidePredictionStore,
		ProvideKafkaProducer,
		ProvideReportPublisher,
		ProvideMarketData,
		ProvideCandleSource,
		ProvideQuoteSource,
		ProvideLatest,
		ProvideTickSource,
		ProvideFeatureBuilder,
		ProvideModelSet,
		ProvideWeighter,
		ProvideSignalEngine,
		ProvideAccuracyTracker,
		usecase.NewReporter,
		usecase.NewForecaster,
	)
	return &usecase.Forecaster{}, nil
}
