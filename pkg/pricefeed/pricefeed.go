// Package pricefeed quotes the pool token in a fiat currency through the
// CoinGecko simple price API.
package pricefeed

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bankfair_client/pkg/cache"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

var ErrNoRate = errors.New("pricefeed: no rate")

type Config struct {
	BaseURL  string
	APIKey   string
	Currency string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type Client struct {
	http     *resty.Client
	currency string
	rates    *cache.RateCache
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		http.SetHeader("x-cg-demo-api-key", cfg.APIKey)
	}
	return &Client{
		http:     http,
		currency: strings.ToLower(cfg.Currency),
		rates:    cache.NewRateCache(cfg.CacheTTL),
	}
}

func (c *Client) Currency() string { return c.currency }

// Rate returns the price of one token unit in the configured currency.
func (c *Client) Rate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id := currencyID(symbol)
	key := id + "_" + c.currency
	if rate, ok := c.rates.Get(key); ok {
		return rate, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"ids": id, "vs_currencies": c.currency}).
		SetResult(map[string]map[string]decimal.Decimal{}).
		Get("/simple/price")
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "pricefeed: request")
	}
	if resp.IsError() {
		return decimal.Zero, errors.Errorf("pricefeed: status %d", resp.StatusCode())
	}

	data := *resp.Result().(*map[string]map[string]decimal.Decimal)
	rate, ok := data[id][c.currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrNoRate, "%s/%s", id, c.currency)
	}

	c.rates.Set(key, rate)
	logrus.WithFields(logrus.Fields{"id": id, "currency": c.currency, "rate": rate.String()}).Debug("pricefeed: rate fetched")
	return rate, nil
}

// Value converts a token amount to the configured currency.
func (c *Client) Value(ctx context.Context, symbol string, tokens decimal.Decimal) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return tokens.Mul(rate), nil
}

func currencyID(symbol string) string {
	switch strings.ToLower(symbol) {
	case "usdt":
		return "tether"
	case "usdc":
		return "usd-coin"
	case "dai":
		return "dai"
	case "eth", "weth":
		return "ethereum"
	case "btc", "wbtc":
		return "bitcoin"
	default:
		return strings.ToLower(symbol)
	}
}
