package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPriceDirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("ids") != "bitcoin" {
			t.Errorf("unexpected ids %s", r.URL.Query().Get("ids"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin":{"usd":88123.5}}`))
	}))
	defer server.Close()

	oracle := NewWithBaseURL(server.URL)
	p, err := oracle.Price(context.Background(), "BITCOIN")
	if err != nil {
		t.Fatal(err)
	}
	if p != 88123.5 {
		t.Errorf("want 88123.5, got %v", p)
	}
}

func TestPriceViaSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/simple/price":
			if r.URL.Query().Get("ids") == "bitcoin" {
				w.Write([]byte(`{"bitcoin":{"usd":88000}}`))
				return
			}
			// Ticker is not a valid id, empty result triggers the search.
			w.Write([]byte(`{}`))
		case "/search":
			if r.URL.Query().Get("query") != "btc" {
				t.Errorf("unexpected query %s", r.URL.Query().Get("query"))
			}
			w.Write([]byte(`{"coins":[{"id":"bitcoin","symbol":"btc"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	oracle := NewWithBaseURL(server.URL)
	p, err := oracle.Price(context.Background(), "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if p != 88000 {
		t.Errorf("want 88000, got %v", p)
	}
}

func TestPriceUnknownCoin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/simple/price":
			w.Write([]byte(`{}`))
		case "/search":
			w.Write([]byte(`{"coins":[]}`))
		}
	}))
	defer server.Close()

	oracle := NewWithBaseURL(server.URL)
	if _, err := oracle.Price(context.Background(), "NOPE"); err == nil {
		t.Fatal("want error")
	}
}
