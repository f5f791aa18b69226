package price

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockOracle struct {
	price float64
	err   error
	calls int
}

func (o *mockOracle) Price(ctx context.Context, symbol string) (float64, error) {
	o.calls++
	if o.err != nil {
		return 0, o.err
	}
	return o.price, nil
}

func TestCacheShortCircuits(t *testing.T) {
	oracle := &mockOracle{price: 100.0}
	cache := NewCache(oracle, 5*time.Minute)

	now := time.Now()
	cache.now = func() time.Time { return now }

	for _, symbol := range []string{"BTC", "btc", " BTC "} {
		p, err := cache.Price(context.Background(), symbol)
		if err != nil {
			t.Fatal(err)
		}
		if p != 100.0 {
			t.Errorf("want 100, got %v", p)
		}
	}
	if oracle.calls != 1 {
		t.Errorf("want 1 upstream call, got %d", oracle.calls)
	}

	// Expired entries trigger a refetch.
	now = now.Add(6 * time.Minute)
	if _, err := cache.Price(context.Background(), "BTC"); err != nil {
		t.Fatal(err)
	}
	if oracle.calls != 2 {
		t.Errorf("want 2 upstream calls after expiry, got %d", oracle.calls)
	}
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	oracle := &mockOracle{err: errors.New("boom")}
	cache := NewCache(oracle, 5*time.Minute)
	if _, err := cache.Price(context.Background(), "BTC"); err == nil {
		t.Fatal("want error")
	}
	oracle.err = nil
	oracle.price = 42.0
	p, err := cache.Price(context.Background(), "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if p != 42.0 {
		t.Errorf("want 42, got %v", p)
	}
}

func TestChainFallsBack(t *testing.T) {
	bad := &mockOracle{err: errors.New("down")}
	good := &mockOracle{price: 7.5}
	chain := Chain{bad, good}

	p, err := chain.Price(context.Background(), "ETH")
	if err != nil {
		t.Fatal(err)
	}
	if p != 7.5 {
		t.Errorf("want 7.5, got %v", p)
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Errorf("want both sources tried, got %d and %d", bad.calls, good.calls)
	}
}

func TestChainUnavailable(t *testing.T) {
	chain := Chain{&mockOracle{err: errors.New("down")}}
	_, err := chain.Price(context.Background(), "ETH")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("want ErrUnavailable, got %v", err)
	}
}
