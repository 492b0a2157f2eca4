package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"EthCast/internal/domain/repository"
	"EthCast/pkg/config"
	"EthCast/pkg/logger"
)

const SourceCoinGecko = "coingecko"

// CoinGecko keys assets by platform id rather than ticker.
var geckoIDs = map[string]string{
	"ETH": "ethereum",
	"BTC": "bitcoin",
	"SOL": "solana",
}

// CoinGecko is a quote-only source used to cross-check the exchange price.
type CoinGecko struct {
	client *resty.Client
	id     string
	vs     string
	log    *logger.Logger
}

func NewCoinGecko(cfg *config.Config, log *logger.Logger) *CoinGecko {
	client := resty.New()
	client.SetBaseURL(cfg.Market.CoinGecko.BaseURL)
	client.SetTimeout(cfg.Market.CoinGecko.Timeout)

	return &CoinGecko{
		client: client,
		id:     geckoID(cfg.Market.BaseAsset),
		vs:     strings.ToLower(cfg.Market.QuoteAsset),
		log:    log.Named("coingecko"),
	}
}

func geckoID(asset string) string {
	if id, ok := geckoIDs[strings.ToUpper(asset)]; ok {
		return id
	}
	return strings.ToLower(asset)
}

func (g *CoinGecko) Name() string { return SourceCoinGecko }

// CurrentPrice fetches the simple spot price for the configured asset.
func (g *CoinGecko) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           g.id,
			"vs_currencies": g.vs,
		}).
		Get("/api/v3/simple/price")
	if err != nil {
		return 0, fmt.Errorf("coingecko simple price request: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("coingecko simple price: status %d: %s", resp.StatusCode(), resp.String())
	}

	var payload map[string]map[string]float64
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return 0, fmt.Errorf("coingecko simple price decode: %w", err)
	}

	price, ok := payload[g.id][g.vs]
	if !ok {
		return 0, fmt.Errorf("coingecko: no %s/%s quote in response", g.id, g.vs)
	}
	return price, nil
}

var _ repository.QuoteSource = (*CoinGecko)(nil)
