// Package coingecko prices coins through the public CoinGecko API.
package coingecko

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pumpmybags/pmb/pkg/price"
)

type Oracle struct {
	client *resty.Client
}

func New() *Oracle {
	return NewWithBaseURL("https://api.coingecko.com/api/v3")
}

func NewWithBaseURL(baseURL string) *Oracle {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
	return &Oracle{client: client}
}

type searchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"coins"`
}

// Price resolves a ticker to USD. It first tries the lowercased symbol as a
// CoinGecko id directly, then falls back to the search endpoint to map the
// ticker to an id.
func (o *Oracle) Price(ctx context.Context, symbol string) (float64, error) {
	id := strings.ToLower(strings.TrimSpace(symbol))
	if id == "" {
		return 0, fmt.Errorf("coingecko: empty symbol")
	}
	p, ok, err := o.simplePrice(ctx, id)
	if err != nil {
		return 0, err
	}
	if ok {
		return p, nil
	}
	id, err = o.search(ctx, id)
	if err != nil {
		return 0, err
	}
	p, ok, err = o.simplePrice(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("coingecko: no price for %s", symbol)
	}
	return p, nil
}

func (o *Oracle) simplePrice(ctx context.Context, id string) (float64, bool, error) {
	var result map[string]map[string]float64
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParam("ids", id).
		SetQueryParam("vs_currencies", "usd").
		SetResult(&result).
		Get("/simple/price")
	if err != nil {
		return 0, false, fmt.Errorf("coingecko: couldn't get price for %s: %w", id, err)
	}
	if resp.IsError() {
		return 0, false, fmt.Errorf("coingecko: price request for %s failed: %s", id, resp.Status())
	}
	usd, ok := result[id]["usd"]
	return usd, ok, nil
}

func (o *Oracle) search(ctx context.Context, query string) (string, error) {
	var result searchResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&result).
		Get("/search")
	if err != nil {
		return "", fmt.Errorf("coingecko: couldn't search %s: %w", query, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("coingecko: search for %s failed: %s", query, resp.Status())
	}
	for _, coin := range result.Coins {
		if strings.EqualFold(coin.Symbol, query) {
			return coin.ID, nil
		}
	}
	if len(result.Coins) > 0 {
		return result.Coins[0].ID, nil
	}
	return "", fmt.Errorf("coingecko: %w: unknown coin %s", price.ErrUnavailable, query)
}
