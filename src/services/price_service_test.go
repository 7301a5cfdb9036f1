package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceCache_ExpiryWithInjectedClock(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := newPriceCache(10*time.Minute, clock)

	c.set("BTC", dec("40000"), true)
	if price, found, cached := c.get("BTC"); !cached || !found || !price.Equal(dec("40000")) {
		t.Fatalf("get() = %s, %v, %v right after set", price, found, cached)
	}

	now = now.Add(9 * time.Minute)
	if _, _, cached := c.get("BTC"); !cached {
		t.Error("entry expired before its TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, _, cached := c.get("BTC"); cached {
		t.Error("entry survived past its TTL")
	}
}

func TestPriceCache_CachesMisses(t *testing.T) {
	c := newPriceCache(time.Minute, nil)
	c.set("NOPE", decimal.Zero, false)
	_, found, cached := c.get("NOPE")
	if !cached {
		t.Fatal("miss was not cached")
	}
	if found {
		t.Error("cached miss reported a price")
	}
}

func TestPriceService_FetchesAndCaches(t *testing.T) {
	var searchCalls, priceCalls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			searchCalls.Add(1)
			if r.URL.Query().Get("query") != "BTC" {
				t.Errorf("search query = %q, want BTC", r.URL.Query().Get("query"))
			}
			fmt.Fprint(w, `{"coins":[{"id":"bitcoin","symbol":"btc","name":"Bitcoin"}]}`)
		case "/simple/price":
			priceCalls.Add(1)
			if r.URL.Query().Get("ids") != "bitcoin" {
				t.Errorf("price ids = %q, want bitcoin", r.URL.Query().Get("ids"))
			}
			fmt.Fprint(w, `{"bitcoin":{"eur":39123.45}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	service := NewPriceService(server.URL, time.Minute, nil)

	price, ok := service.PriceEUR("btc")
	if !ok {
		t.Fatal("PriceEUR() found no price")
	}
	if !price.Equal(dec("39123.45")) {
		t.Errorf("price = %s, want 39123.45", price)
	}

	// second lookup is served from the cache
	if _, ok := service.PriceEUR("BTC"); !ok {
		t.Fatal("cached lookup failed")
	}
	if searchCalls.Load() != 1 || priceCalls.Load() != 1 {
		t.Errorf("API calls = %d search, %d price, want 1 each", searchCalls.Load(), priceCalls.Load())
	}
}

func TestPriceService_UnknownSymbolIsAMiss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"coins":[]}`)
	}))
	defer server.Close()

	service := NewPriceService(server.URL, time.Minute, nil)
	if _, ok := service.PriceEUR("NOTACOIN"); ok {
		t.Error("PriceEUR() reported a price for an unknown symbol")
	}
}

func TestStaticPriceService(t *testing.T) {
	prices := StaticPriceService{"ETH": dec("2500")}
	if price, ok := prices.PriceEUR("eth"); !ok || !price.Equal(dec("2500")) {
		t.Errorf("PriceEUR(eth) = %s, %v", price, ok)
	}
	if _, ok := prices.PriceEUR("BTC"); ok {
		t.Error("PriceEUR(BTC) found a price it should not have")
	}
}
