package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"EthCast/internal/domain/repository"
	domsvc "EthCast/internal/domain/service"
	"EthCast/internal/handler/api"
	internalrepo "EthCast/internal/repository"
	"EthCast/internal/services/accuracy"
	"EthCast/internal/services/ensemble"
	"EthCast/internal/services/features"
	"EthCast/internal/services/marketdata"
	svcmodels "EthCast/internal/services/models"
	"EthCast/internal/services/signals"
	"EthCast/internal/services/stream"
	"EthCast/internal/usecase"
	pkgcache "EthCast/pkg/cache"
	pkgch "EthCast/pkg/clickhouse"
	"EthCast/pkg/config"
	xhttp "EthCast/pkg/http"
	pkgkafka "EthCast/pkg/kafka"
	applogger "EthCast/pkg/logger"
	"EthCast/pkg/metrics"
	pkgqueue "EthCast/pkg/queue"
	"EthCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache creates the cache backend named in configuration.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	switch cfg.Cache.Backend {
	case "memory", "":
		return pkgcache.NewMemoryCache(), nil
	case "redis", "layered":
		host, port, err := splitHostPort(cfg.Cache.Redis.Addr)
		if err != nil {
			return nil, fmt.Errorf("cache redis addr: %w", err)
		}
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisAddr(host, port),
			pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
			pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		if cfg.Cache.Backend == "layered" {
			return pkgcache.NewLayeredCache(rc), nil
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// ProvideLocker exposes the cache's distributed locking surface. With the
// memory backend the lock only guards against overlap inside one process;
// redis makes it safe across replicas.
func ProvideLocker(c pkgcache.Service) repository.Locker {
	return c
}

// ProvideRedisClient creates the raw Redis client the work queue runs on. It
// shares the cache's Redis instance settings.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Queue.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
}

// ProvideQueue creates the Redis-backed work queue, or nil when disabled.
func ProvideQueue(cfg *config.Config, log *applogger.Logger, client *redis.Client) *pkgqueue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	return pkgqueue.NewRedisQueue(log, &pkgqueue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, pkgqueue.WithKeyPrefix("ethcast"))
}

// ProvideQueueService exposes the queue behind its publishing interface. The
// explicit nil keeps the interface itself nil when the queue is disabled; a
// typed nil would defeat the callers' nil checks.
func ProvideQueueService(q *pkgqueue.RedisQueue) pkgqueue.QueueService {
	if q == nil {
		return nil
	}
	return q
}

// ProvideClickHouseClient creates a ClickHouse client when either the
// prediction store or the report archiver needs one.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Store.Backend != "clickhouse" && !cfg.Report.Archiver.Enabled {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvidePredictionStore creates the prediction history backend named in
// configuration and ensures its schema exists.
func ProvidePredictionStore(cfg *config.Config, log *applogger.Logger, ch *pkgch.Client) (repository.PredictionStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Store.Backend {
	case "file", "":
		store := internalrepo.NewFilePredictionStore(cfg.Store.File.Path, log)
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("file store init: %w", err)
		}
		return store, nil
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("clickhouse store requires a clickhouse client")
		}
		store := internalrepo.NewCHPredictionStore(ch, cfg.ClickHouse.Database+".predictions", log)
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("clickhouse store init: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// ProvideReportArchive creates the ClickHouse report archive, or nil when
// archiving is disabled.
func ProvideReportArchive(cfg *config.Config, log *applogger.Logger, ch *pkgch.Client) (repository.ReportArchive, error) {
	if !cfg.Report.Archiver.Enabled {
		return nil, nil
	}
	if ch == nil {
		return nil, fmt.Errorf("report archiver requires a clickhouse client")
	}

	archive := internalrepo.NewCHReportArchive(ch, cfg.ClickHouse.Database+".cycle_reports", log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		return nil, fmt.Errorf("report archive init: %w", err)
	}

	return archive, nil
}

// ProvideKafkaProducer creates a Kafka producer when report publishing or log
// collection needs one.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Report.KafkaEnabled && !cfg.LogCollection.Enabled {
		return nil, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideReportPublisher routes finished reports to Kafka when enabled and to
// the log otherwise.
func ProvideReportPublisher(cfg *config.Config, log *applogger.Logger, producer *pkgkafka.Producer) repository.ReportPublisher {
	if cfg.Report.KafkaEnabled && producer != nil {
		return internalrepo.NewKafkaReportPublisher(producer, cfg.Report.Topic)
	}
	return internalrepo.NewLogReportPublisher(log)
}

// ProvideKafkaConsumer creates the consumer feeding the report archiver, or
// nil when archiving is disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Report.Archiver.Enabled {
		return nil, nil
	}

	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Report.Archiver.Workers),
		pkgkafka.WithConsumerRetry(3, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Report.Topic+".dlq"),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	return consumer, nil
}

// ProvideMarketData assembles the candle and quote source chain. Binance
// leads on both; CryptoCompare backs up candles and CoinGecko contributes to
// the quote average.
func ProvideMarketData(cfg *config.Config, log *applogger.Logger, m repository.Metrics) *marketdata.Chain {
	binance := marketdata.NewBinance(cfg, log)
	cryptocompare := marketdata.NewCryptoCompare(cfg, log)
	coingecko := marketdata.NewCoinGecko(cfg, log)

	return marketdata.NewChain(cfg, log, m,
		[]repository.CandleSource{binance, cryptocompare},
		[]repository.QuoteSource{binance, coingecko},
	)
}

// ProvideCandleSource exposes the chain as the forecaster's candle feed.
func ProvideCandleSource(chain *marketdata.Chain) repository.CandleSource {
	return chain
}

// ProvideQuoteSource exposes the chain as the forecaster's quote feed.
func ProvideQuoteSource(chain *marketdata.Chain) repository.QuoteSource {
	return chain
}

// ProvidePriceStream creates the websocket tick stream, or nil when disabled.
func ProvidePriceStream(cfg *config.Config, log *applogger.Logger) repository.PriceStream {
	if !cfg.Stream.Enabled {
		return nil
	}
	return stream.NewBinance(cfg, log)
}

// ProvideLatest creates the shared latest-tick slot.
func ProvideLatest() *stream.Latest {
	return stream.NewLatest()
}

// ProvideTickSource exposes the latest-tick slot to the forecaster. With the
// stream disabled the slot stays empty and validation falls back to candle
// closes.
func ProvideTickSource(latest *stream.Latest) usecase.TickSource {
	return latest
}

// ProvideFeatureBuilder creates the feature matrix builder.
func ProvideFeatureBuilder() domsvc.FeatureBuilder {
	return features.NewBuilder()
}

// ProvideModelSet assembles the regressor ensemble.
func ProvideModelSet(cfg *config.Config, log *applogger.Logger, m repository.Metrics) domsvc.ModelSet {
	return svcmodels.NewSet(cfg, log, m,
		svcmodels.NewLinear(cfg),
		svcmodels.NewPolynomial(cfg),
		svcmodels.NewRandomForest(cfg),
	)
}

// ProvideWeighter creates the ensemble weighter.
func ProvideWeighter(cfg *config.Config) domsvc.Weighter {
	return ensemble.NewWeighter(cfg)
}

// ProvideSignalEngine creates the trading signal engine.
func ProvideSignalEngine(log *applogger.Logger) domsvc.SignalEngine {
	return signals.NewEngine(log)
}

// ProvideAccuracyTracker creates the prediction accuracy tracker.
func ProvideAccuracyTracker(cfg *config.Config, log *applogger.Logger, store repository.PredictionStore, m repository.Metrics) domsvc.AccuracyTracker {
	return accuracy.NewTracker(cfg, log, store, m)
}

// ProvideReportArchiver creates the Kafka handler that lands reports in the
// archive, or nil when archiving is disabled.
func ProvideReportArchiver(cfg *config.Config, log *applogger.Logger, archive repository.ReportArchive) *usecase.ReportArchiver {
	if archive == nil {
		return nil
	}
	return usecase.NewReportArchiver(cfg.Report.Topic, archive, log)
}

// ProvideHTTPHandler creates the REST API handler.
func ProvideHTTPHandler(
	log *applogger.Logger,
	cfg *config.Config,
	forecaster *usecase.Forecaster,
	reporter *usecase.Reporter,
	tracker domsvc.AccuracyTracker,
	store repository.PredictionStore,
	archive repository.ReportArchive,
	queue pkgqueue.QueueService,
) xhttp.Handler {
	return api.NewForecastHandler(log, cfg, forecaster, reporter, tracker, store, archive, queue)
}

// ProvideApp constructs the application with every component wired.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	forecaster *usecase.Forecaster,
	priceStream repository.PriceStream,
	latest *stream.Latest,
	m repository.Metrics,
	queue *pkgqueue.RedisQueue,
	consumer *pkgkafka.Consumer,
	archiver *usecase.ReportArchiver,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	store repository.PredictionStore,
	cache pkgcache.Service,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, log, forecaster, priceStream, latest, m, queue, consumer, archiver, producer, chClient, store, cache, handler)
}
