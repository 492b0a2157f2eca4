package marketdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	"EthCast/pkg/config"
	"EthCast/pkg/logger"
)

// Chain tries candle sources in priority order until one delivers. Every
// source sits behind its own circuit breaker and rate limiter, so a flapping
// primary stops being hammered and the chain moves straight to the fallback.
// Quotes are averaged over every source that responds.
type Chain struct {
	candles []candleEntry
	quotes  []quoteEntry
	metrics repository.Metrics
	log     *logger.Logger
}

type candleEntry struct {
	src   repository.CandleSource
	guard *guard
}

type quoteEntry struct {
	src   repository.QuoteSource
	guard *guard
}

// guard is the protective wrapping around one upstream API.
type guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func (g *guard) run(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.breaker.Execute(fn)
}

func NewChain(cfg *config.Config, log *logger.Logger, metrics repository.Metrics,
	candles []repository.CandleSource, quotes []repository.QuoteSource) *Chain {
	chainLog := log.Named("marketdata")

	c := &Chain{metrics: metrics, log: chainLog}
	for _, src := range candles {
		c.candles = append(c.candles, candleEntry{
			src:   src,
			guard: newGuard(cfg, src.Name(), "candles", chainLog),
		})
	}
	for _, src := range quotes {
		c.quotes = append(c.quotes, quoteEntry{
			src:   src,
			guard: newGuard(cfg, src.Name(), "quote", chainLog),
		})
	}
	return c
}

func newGuard(cfg *config.Config, source, role string, log *logger.Logger) *guard {
	br := cfg.Market.Breaker

	st := gobreaker.Settings{
		Name:        source + "-" + role,
		MaxRequests: br.MaxRequests,
		Interval:    br.Interval,
		Timeout:     br.Timeout,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.Requests < br.MinRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= br.FailureRate
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn("circuit state changed",
			logger.String("circuit", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}

	perSecond, burst := sourceLimit(cfg, source)
	return &guard{
		breaker: gobreaker.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func sourceLimit(cfg *config.Config, source string) (float64, int) {
	switch source {
	case SourceBinance:
		return cfg.Market.Binance.Rate, cfg.Market.Binance.Burst
	case SourceCryptoCompare:
		return cfg.Market.CryptoCompare.Rate, cfg.Market.CryptoCompare.Burst
	case SourceCoinGecko:
		return cfg.Market.CoinGecko.Rate, cfg.Market.CoinGecko.Burst
	default:
		return 1, 1
	}
}

func (c *Chain) Name() string { return "chain" }

// RecentCandles returns history from the first source that answers with a
// non-empty series. When every source fails the caller gets a
// DataUnavailableError naming the sources tried, and the cycle aborts.
func (c *Chain) RecentCandles(ctx context.Context, symbol string, interval repository.Interval, limit int) ([]models.Candle, error) {
	tried := make([]string, 0, len(c.candles))
	var last error

	for i, entry := range c.candles {
		name := entry.src.Name()
		tried = append(tried, name)

		out, err := entry.guard.run(ctx, func() (interface{}, error) {
			candles, err := entry.src.RecentCandles(ctx, symbol, interval, limit)
			if err != nil {
				return nil, err
			}
			if len(candles) == 0 {
				return nil, fmt.Errorf("%s returned no candles", name)
			}
			return candles, nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			last = err
			c.metrics.RecordSourceRequest(name, requestStatus(err))
			c.log.Warn("candle source failed",
				logger.String("source", name),
				logger.String("interval", string(interval)),
				logger.Error(err))
			continue
		}

		candles := out.([]models.Candle)
		c.metrics.RecordSourceRequest(name, "ok")
		if i > 0 {
			c.log.Info("candles served by fallback source",
				logger.String("source", name),
				logger.Int("count", len(candles)))
		}
		return candles, nil
	}

	return nil, &models.DataUnavailableError{Symbol: symbol, Sources: tried, Last: last}
}

// CurrentPrice averages the spot price over every quote source that answers.
// One responding source is enough.
func (c *Chain) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var sum float64
	var n int

	for _, entry := range c.quotes {
		name := entry.src.Name()

		out, err := entry.guard.run(ctx, func() (interface{}, error) {
			return entry.src.CurrentPrice(ctx, symbol)
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			c.metrics.RecordSourceRequest(name, requestStatus(err))
			c.log.Warn("quote source failed",
				logger.String("source", name),
				logger.Error(err))
			continue
		}

		c.metrics.RecordSourceRequest(name, "ok")
		sum += out.(float64)
		n++
	}

	if n == 0 {
		return 0, fmt.Errorf("no quote source answered for %s", symbol)
	}

	price := sum / float64(n)
	c.metrics.RecordLastPrice(symbol, price)
	return price, nil
}

func requestStatus(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "open"
	}
	return "error"
}

var (
	_ repository.CandleSource = (*Chain)(nil)
	_ repository.QuoteSource  = (*Chain)(nil)
)
