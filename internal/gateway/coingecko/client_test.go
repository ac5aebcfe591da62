package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Superio-Chain/internal/gateway/httpx"
)

func TestCoinFlattensMarketData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/coins/bitcoin", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tickers") != "false" {
			t.Errorf("expected tickers=false, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"name":"Bitcoin","symbol":"btc","market_cap_rank":1,"last_updated":"2024-01-01T00:00:00Z",
			"market_data":{"current_price":{"usd":50000},"market_cap":{"usd":1e12},"total_volume":{"usd":3e10},
			"price_change_24h":-1200,"price_change_percentage_24h":-2.3}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), nil, Config{BaseURL: srv.URL})
	coin, ok := c.Coin(context.Background(), "Bitcoin")
	if !ok {
		t.Fatalf("expected coin data")
	}
	if coin.Symbol != "BTC" || coin.CurrentPrice != 50000 || coin.PriceChangePercentage24h != -2.3 {
		t.Fatalf("unexpected coin: %+v", coin)
	}
	if coin.MarketCapRank == nil || *coin.MarketCapRank != 1 {
		t.Fatalf("unexpected rank: %v", coin.MarketCapRank)
	}
}

func TestCoinReturnsFalseOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(httpx.New(time.Second, 0), nil, Config{BaseURL: srv.URL})
	if _, ok := c.Coin(context.Background(), "bitcoin"); ok {
		t.Fatalf("expected failure to be swallowed")
	}
}

func TestSimplePricesBatchesIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "solana,usd-coin" || r.Header.Get("x-cg-demo-api-key") != "k" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"solana":{"usd":150},"usd-coin":{"usd":1}}`))
	}))
	defer srv.Close()

	c := New(httpx.New(time.Second, 0), nil, Config{BaseURL: srv.URL, APIKey: "k"})
	prices, ok := c.SimplePrices(context.Background(), "solana", "usd-coin")
	if !ok || prices["solana"] != 150 || prices["usd-coin"] != 1 {
		t.Fatalf("unexpected prices: %v %v", prices, ok)
	}
}
