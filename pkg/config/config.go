package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`

	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Market struct {
		Symbol      string `yaml:"symbol" default:"ETHUSDT"`
		BaseAsset   string `yaml:"base_asset" default:"ETH"`
		QuoteAsset  string `yaml:"quote_asset" default:"USD"`
		Interval    string `yaml:"interval" default:"1m"`
		CandleCount int    `yaml:"candle_count" default:"500"`

		Binance struct {
			BaseURL string        `yaml:"base_url" default:"https://api.binance.com"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
			Rate    float64       `yaml:"rate" default:"10"`
			Burst   int           `yaml:"burst" default:"5"`
		} `yaml:"binance"`

		CryptoCompare struct {
			BaseURL string        `yaml:"base_url" default:"https://min-api.cryptocompare.com"`
			APIKey  string        `yaml:"api_key"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
			Rate    float64       `yaml:"rate" default:"5"`
			Burst   int           `yaml:"burst" default:"2"`
		} `yaml:"cryptocompare"`

		CoinGecko struct {
			BaseURL string        `yaml:"base_url" default:"https://api.coingecko.com"`
			Timeout time.Duration `yaml:"timeout" default:"5s"`
			Rate    float64       `yaml:"rate" default:"1"`
			Burst   int           `yaml:"burst" default:"2"`
		} `yaml:"coingecko"`

		Breaker struct {
			MaxRequests uint32        `yaml:"max_requests" default:"3"`
			Interval    time.Duration `yaml:"interval" default:"2m"`
			Timeout     time.Duration `yaml:"timeout" default:"1m"`
			MinRequests uint32        `yaml:"min_requests" default:"5"`
			FailureRate float64       `yaml:"failure_rate" default:"0.6"`
		} `yaml:"breaker"`
	} `yaml:"market"`

	Stream struct {
		Enabled        bool          `yaml:"enabled" default:"true"`
		URL            string        `yaml:"url" default:"wss://stream.binance.com:9443/ws"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		BufferSize     int           `yaml:"buffer_size" default:"256"`
	} `yaml:"stream"`

	Forecast struct {
		Horizons          []string      `yaml:"horizons" default:"[\"15m\",\"30m\",\"60m\",\"120m\"]"`
		TrendWindow       int           `yaml:"trend_window" default:"100"`
		FeatureWindow     int           `yaml:"feature_window" default:"200"`
		PolyDegree        int           `yaml:"poly_degree" default:"2"`
		ForestEstimators  int           `yaml:"forest_estimators" default:"100"`
		ForestMaxDepth    int           `yaml:"forest_max_depth" default:"10"`
		ForestMinLeaf     int           `yaml:"forest_min_leaf" default:"2"`
		ForestSeed        int64         `yaml:"forest_seed" default:"42"`
		Holdout           int           `yaml:"holdout" default:"30"`
		MinSamples        int           `yaml:"min_samples" default:"30"`
		WeightFloor       float64       `yaml:"weight_floor" default:"0.01"`
		BandMultiplier    float64       `yaml:"band_multiplier" default:"1.96"`
		HighScore         float64       `yaml:"high_score" default:"0.75"`
		MediumScore       float64       `yaml:"medium_score" default:"0.40"`
		FitTimeout        time.Duration `yaml:"fit_timeout" default:"30s"`
		ParallelFit       bool          `yaml:"parallel_fit" default:"true"`
	} `yaml:"forecast"`

	Accuracy struct {
		Window           int           `yaml:"window" default:"50"`
		RetrainThreshold float64       `yaml:"retrain_threshold" default:"0.5"`
		AdaptiveWindow   int           `yaml:"adaptive_window" default:"20"`
		AdaptiveMin      int           `yaml:"adaptive_min" default:"5"`
		AdaptiveDecay    float64       `yaml:"adaptive_decay" default:"0.95"`
		PriceTolerance   time.Duration `yaml:"price_tolerance" default:"90s"`
	} `yaml:"accuracy"`

	Store struct {
		Backend string `yaml:"backend" default:"file"`
		File    struct {
			Path string `yaml:"path" default:"data/prediction_history.json"`
		} `yaml:"file"`
	} `yaml:"store"`

	Scheduler struct {
		Enabled       bool          `yaml:"enabled" default:"true"`
		CycleInterval time.Duration `yaml:"cycle_interval" default:"15m"`
		LockTTL       time.Duration `yaml:"lock_ttl" default:"10m"`
	} `yaml:"scheduler"`

	Report struct {
		KafkaEnabled bool   `yaml:"kafka_enabled" default:"false"`
		Topic        string `yaml:"topic" default:"ethcast.reports"`
		Archiver     struct {
			Enabled bool `yaml:"enabled" default:"false"`
			Workers int  `yaml:"workers" default:"1"`
		} `yaml:"archiver"`
	} `yaml:"report"`

	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async" default:"false"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"ethcast-archiver"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"250ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"ethcast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		AsyncInsert      bool          `yaml:"async_insert" default:"false"`
	} `yaml:"clickhouse"`

	Cache struct {
		Backend string `yaml:"backend" default:"memory"`
		Redis   struct {
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db" default:"0"`
		} `yaml:"redis"`
		ReportTTL time.Duration `yaml:"report_ttl" default:"1h"`
	} `yaml:"cache"`

	Queue struct {
		Enabled    bool          `yaml:"enabled" default:"false"`
		Workers    int           `yaml:"workers" default:"1"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	} `yaml:"queue"`

	LogCollection struct {
		Enabled        bool          `yaml:"enabled" default:"false"`
		Topic          string        `yaml:"topic" default:"ethcast.logs"`
		FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"log_collection"`
}

// Load reads a YAML configuration file, fills defaults and validates it.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables. A .env file in the working directory is honored when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ETHCAST_SYMBOL"); v != "" {
		c.Market.Symbol = v
	}
	if v := os.Getenv("ETHCAST_INTERVAL"); v != "" {
		c.Market.Interval = v
	}
	if v := os.Getenv("CRYPTOCOMPARE_API_KEY"); v != "" {
		c.Market.CryptoCompare.APIKey = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REPORT_TOPIC"); v != "" {
		c.Report.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}

	return c, nil
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.CandleCount <= 0 {
		return fmt.Errorf("market.candle_count must be positive")
	}
	if len(c.Forecast.Horizons) == 0 {
		return fmt.Errorf("forecast.horizons cannot be empty")
	}
	for _, h := range c.Forecast.Horizons {
		if _, err := time.ParseDuration(h); err != nil {
			return fmt.Errorf("invalid horizon %q: %w", h, err)
		}
	}
	if c.Store.Backend != "file" && c.Store.Backend != "clickhouse" {
		return fmt.Errorf("store.backend must be 'file' or 'clickhouse', got '%s'", c.Store.Backend)
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" && c.Cache.Backend != "layered" {
		return fmt.Errorf("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}
	if c.Forecast.WeightFloor <= 0 || c.Forecast.WeightFloor >= 1 {
		return fmt.Errorf("forecast.weight_floor must be in (0, 1)")
	}
	if c.Forecast.Holdout < 1 {
		return fmt.Errorf("forecast.holdout must be at least 1")
	}
	if c.Accuracy.RetrainThreshold < 0 || c.Accuracy.RetrainThreshold > 1 {
		return fmt.Errorf("accuracy.retrain_threshold must be in [0, 1]")
	}
	if c.Report.Archiver.Enabled && !c.Report.KafkaEnabled {
		return fmt.Errorf("report.archiver requires report.kafka_enabled")
	}
	return nil
}

// HorizonDurations returns the configured horizons parsed and sorted as given.
func (c *Config) HorizonDurations() ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(c.Forecast.Horizons))
	for _, h := range c.Forecast.Horizons {
		d, err := time.ParseDuration(h)
		if err != nil {
			return nil, fmt.Errorf("invalid horizon %q: %w", h, err)
		}
		out = append(out, d)
	}
	return out, nil
}
