// Package price defines the oracle contract used to mark signals to market,
// plus a time-bounded cache and a multi-source fallback chain.
package price

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable is returned when no source can price a symbol right now.
// Callers treat it as "skip this signal this pass", never as fatal.
var ErrUnavailable = errors.New("price: unavailable")

// Oracle resolves a ticker symbol to a current USD price.
type Oracle interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Chain tries each oracle in order and returns the first price found.
type Chain []Oracle

func (c Chain) Price(ctx context.Context, symbol string) (float64, error) {
	var lastErr error
	for _, o := range c {
		p, err := o.Price(ctx, symbol)
		if err != nil {
			lastErr = err
			continue
		}
		return p, nil
	}
	if lastErr != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnavailable, symbol, lastErr)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
}

type cacheEntry struct {
	price   float64
	fetched time.Time
}

// Cache wraps an oracle with an in-memory cache so repeated lookups within
// the expiry window short-circuit network calls. Keys are normalized to
// uppercase.
type Cache struct {
	oracle Oracle
	expiry time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCache(oracle Oracle, expiry time.Duration) *Cache {
	return &Cache{
		oracle:  oracle,
		expiry:  expiry,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) Price(ctx context.Context, symbol string) (float64, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" {
		return 0, fmt.Errorf("%w: empty symbol", ErrUnavailable)
	}
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetched) < c.expiry {
		return entry.price, nil
	}
	p, err := c.oracle.Price(ctx, key)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{price: p, fetched: c.now()}
	c.mu.Unlock()
	return p, nil
}
