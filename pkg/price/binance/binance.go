// Package binance prices coins through the Binance spot market, used as a
// fallback when CoinGecko can't resolve a ticker.
package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/pumpmybags/pmb/pkg/price"
)

type Oracle struct {
	client *binance.Client
	quote  string
}

// New creates an oracle quoting against the given asset, usually USDT. No
// API keys are needed for public market data.
func New(quote string) *Oracle {
	return &Oracle{
		client: binance.NewClient("", ""),
		quote:  strings.ToUpper(quote),
	}
}

func (o *Oracle) Price(ctx context.Context, symbol string) (float64, error) {
	pair := strings.ToUpper(strings.TrimSpace(symbol)) + o.quote
	prices, err := o.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: couldn't get price for %s: %w", pair, err)
	}
	for _, p := range prices {
		if p.Symbol != pair {
			continue
		}
		d, err := decimal.NewFromString(p.Price)
		if err != nil {
			return 0, fmt.Errorf("binance: couldn't parse price: %s: %w", p.Price, err)
		}
		f, _ := d.Float64()
		return f, nil
	}
	return 0, fmt.Errorf("binance: %w: no market for %s", price.ErrUnavailable, pair)
}
