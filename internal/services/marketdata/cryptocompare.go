package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	"EthCast/pkg/config"
	"EthCast/pkg/logger"
)

const SourceCryptoCompare = "cryptocompare"

// Rows per histominute/histohour request, capped by the API.
const ccMaxLimit = 2000

// CryptoCompare is the fallback candle source. The API only serves minute
// and hour resolutions, so coarser intervals are fetched at the nearest
// finer native resolution and resampled before returning.
//
// The API keys pairs by asset (fsym/tsym), not by exchange symbol, so the
// configured base and quote assets identify the pair.
type CryptoCompare struct {
	client *resty.Client
	base   string
	quote  string
	log    *logger.Logger
}

func NewCryptoCompare(cfg *config.Config, log *logger.Logger) *CryptoCompare {
	client := resty.New()
	client.SetBaseURL(cfg.Market.CryptoCompare.BaseURL)
	client.SetTimeout(cfg.Market.CryptoCompare.Timeout)
	if key := cfg.Market.CryptoCompare.APIKey; key != "" {
		client.SetHeader("Authorization", "Apikey "+key)
	}

	return &CryptoCompare{
		client: client,
		base:   cfg.Market.BaseAsset,
		quote:  cfg.Market.QuoteAsset,
		log:    log.Named("cryptocompare"),
	}
}

func (c *CryptoCompare) Name() string { return SourceCryptoCompare }

type ccCandle struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	VolumeFrom float64 `json:"volumefrom"`
}

type ccResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []ccCandle `json:"Data"`
	} `json:"Data"`
}

// RecentCandles fetches history for the configured pair. Volume is reported
// in the base asset (volumefrom), matching what the exchanges report.
func (c *CryptoCompare) RecentCandles(ctx context.Context, symbol string, interval repository.Interval, limit int) ([]models.Candle, error) {
	native, path := nativeResolution(interval)

	fetch := limit * int(interval.Duration()/native.Duration())
	if fetch > ccMaxLimit {
		fetch = ccMaxLimit
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fsym":  c.base,
			"tsym":  c.quote,
			"limit": strconv.Itoa(fetch),
		}).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare %s request: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cryptocompare %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}

	var payload ccResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("cryptocompare %s decode: %w", path, err)
	}
	if payload.Response != "Success" {
		return nil, fmt.Errorf("cryptocompare: %s", payload.Message)
	}

	candles := make([]models.Candle, 0, len(payload.Data.Data))
	for _, row := range payload.Data.Data {
		candles = append(candles, models.Candle{
			OpenTime: time.Unix(row.Time, 0).UTC(),
			Open:     row.Open,
			High:     row.High,
			Low:      row.Low,
			Close:    row.Close,
			Volume:   row.VolumeFrom,
		})
	}

	if native != interval {
		candles = repository.Resample(candles, interval)
		c.log.Debug("resampled candles",
			logger.String("from", string(native)),
			logger.String("to", string(interval)),
			logger.Int("count", len(candles)))
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	return candles, nil
}

// nativeResolution maps a requested interval to the endpoint that serves it
// at the finest sufficient resolution.
func nativeResolution(interval repository.Interval) (repository.Interval, string) {
	switch interval {
	case repository.Interval1m, repository.Interval5m, repository.Interval15m, repository.Interval30m:
		return repository.Interval1m, "/data/v2/histominute"
	default:
		return repository.Interval1h, "/data/v2/histohour"
	}
}

var _ repository.CandleSource = (*CryptoCompare)(nil)
