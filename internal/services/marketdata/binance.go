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

const SourceBinance = "binance"

// Binance serves candle history and spot quotes from the public REST API.
// It is the primary source: native support for every interval the pipeline
// uses, millisecond timestamps, prices encoded as strings.
type Binance struct {
	client *resty.Client
	log    *logger.Logger
}

func NewBinance(cfg *config.Config, log *logger.Logger) *Binance {
	client := resty.New()
	client.SetBaseURL(cfg.Market.Binance.BaseURL)
	client.SetTimeout(cfg.Market.Binance.Timeout)

	return &Binance{
		client: client,
		log:    log.Named("binance"),
	}
}

func (b *Binance) Name() string { return SourceBinance }

// RecentCandles fetches the latest klines for the symbol at the requested
// interval. Candle order follows the exchange: oldest first.
func (b *Binance) RecentCandles(ctx context.Context, symbol string, interval repository.Interval, limit int) ([]models.Candle, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": string(interval),
			"limit":    strconv.Itoa(limit),
		}).
		Get("/api/v3/klines")
	if err != nil {
		return nil, fmt.Errorf("binance klines request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("binance klines: status %d: %s", resp.StatusCode(), resp.String())
	}

	var rows [][]interface{}
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("binance klines decode: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("binance kline %d: %w", i, err)
		}
		candles = append(candles, candle)
	}

	b.log.Debug("fetched klines",
		logger.String("symbol", symbol),
		logger.String("interval", string(interval)),
		logger.Int("count", len(candles)))

	return candles, nil
}

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// CurrentPrice fetches the latest traded price for the symbol.
func (b *Binance) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		Get("/api/v3/ticker/price")
	if err != nil {
		return 0, fmt.Errorf("binance ticker request: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("binance ticker: status %d: %s", resp.StatusCode(), resp.String())
	}

	var ticker binanceTicker
	if err := json.Unmarshal(resp.Body(), &ticker); err != nil {
		return 0, fmt.Errorf("binance ticker decode: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance ticker price %q: %w", ticker.Price, err)
	}
	return price, nil
}

// parseKline converts one positional kline array: open time in epoch
// milliseconds, then open/high/low/close/volume as decimal strings.
func parseKline(row []interface{}) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("kline has %d fields, want at least 6", len(row))
	}

	ms, ok := row[0].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("kline open time %v is not a number", row[0])
	}

	var fields [5]float64
	for i := range fields {
		v, err := klineFloat(row[i+1])
		if err != nil {
			return models.Candle{}, err
		}
		fields[i] = v
	}

	return models.Candle{
		OpenTime: time.UnixMilli(int64(ms)).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

func klineFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("kline field %q: %w", t, err)
		}
		return f, nil
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected kline field type %T", v)
	}
}

var (
	_ repository.CandleSource = (*Binance)(nil)
	_ repository.QuoteSource  = (*Binance)(nil)
)
