package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"
)

// Structs for the market data API responses.
type coinSearchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"coins"`
}

type simplePriceResponse map[string]struct {
	EUR decimal.Decimal `json:"eur"`
}

// priceCache holds recent quotes for ttl. Misses are cached too: an
// unknown symbol is not re-queried on every summary request.
type priceCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cachedPrice
}

type cachedPrice struct {
	price     decimal.Decimal
	found     bool
	expiresAt time.Time
}

func newPriceCache(ttl time.Duration, now func() time.Time) *priceCache {
	if now == nil {
		now = time.Now
	}
	return &priceCache{ttl: ttl, now: now, entries: make(map[string]cachedPrice)}
}

func (c *priceCache) get(symbol string) (decimal.Decimal, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[symbol]
	if !ok || c.now().After(entry.expiresAt) {
		return decimal.Zero, false, false
	}
	return entry.price, entry.found, true
}

func (c *priceCache) set(symbol string, price decimal.Decimal, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cachedPrice{price: price, found: found, expiresAt: c.now().Add(c.ttl)}
}

// priceServiceImpl fetches EUR spot prices from the market data API. The
// client carries a cookie jar so the API's session cookies survive between
// the search and quote requests.
type priceServiceImpl struct {
	httpClient http.Client
	baseURL    string
	cache      *priceCache

	mu      sync.Mutex
	coinIDs map[string]string // symbol -> provider coin id
}

// NewPriceService creates the live market data client. The now func feeds
// the cache clock; pass nil for wall-clock time.
func NewPriceService(baseURL string, cacheTTL time.Duration, now func() time.Time) PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	return &priceServiceImpl{
		httpClient: http.Client{Jar: jar, Timeout: 20 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cache:      newPriceCache(cacheTTL, now),
		coinIDs:    make(map[string]string),
	}
}

// PriceEUR returns the live EUR price for the symbol. The boolean is false
// when no price is known; callers surface null, never zero.
func (s *priceServiceImpl) PriceEUR(symbol string) (decimal.Decimal, bool) {
	symbol = strings.ToUpper(symbol)
	if price, found, cached := s.cache.get(symbol); cached {
		return price, found
	}

	price, err := s.fetchPrice(symbol)
	if err != nil {
		logger.L.Warn("Price fetch failed", "symbol", symbol, "error", err)
		s.cache.set(symbol, decimal.Zero, false)
		return decimal.Zero, false
	}

	s.cache.set(symbol, price, true)
	return price, true
}

func (s *priceServiceImpl) fetchPrice(symbol string) (decimal.Decimal, error) {
	coinID, err := s.coinIDForSymbol(symbol)
	if err != nil {
		return decimal.Zero, err
	}

	quoteURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=eur", s.baseURL, url.QueryEscape(coinID))
	resp, err := s.httpClient.Get(quoteURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call price API for %s: %w", coinID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price API returned status %d for %s", resp.StatusCode, coinID)
	}

	var quote simplePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response for %s: %w", coinID, err)
	}
	entry, ok := quote[coinID]
	if !ok {
		return decimal.Zero, fmt.Errorf("price API returned no result for %s", coinID)
	}
	return entry.EUR, nil
}

// coinIDForSymbol resolves a ticker to the provider's coin id via its
// search endpoint. Resolved ids are kept for the process lifetime; they do
// not change, unlike prices.
func (s *priceServiceImpl) coinIDForSymbol(symbol string) (string, error) {
	s.mu.Lock()
	if id, ok := s.coinIDs[symbol]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	searchURL := fmt.Sprintf("%s/search?query=%s", s.baseURL, url.QueryEscape(symbol))
	resp, err := s.httpClient.Get(searchURL)
	if err != nil {
		return "", fmt.Errorf("failed to call search API for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned status %d for %s", resp.StatusCode, symbol)
	}

	var searchData coinSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchData); err != nil {
		return "", fmt.Errorf("failed to decode search response for %s: %w", symbol, err)
	}

	for _, coin := range searchData.Coins {
		if strings.EqualFold(coin.Symbol, symbol) {
			s.mu.Lock()
			s.coinIDs[symbol] = coin.ID
			s.mu.Unlock()
			return coin.ID, nil
		}
	}
	return "", fmt.Errorf("no coin found for symbol %s", symbol)
}

// StaticPriceService serves fixed prices. Used in tests and offline runs.
type StaticPriceService map[string]decimal.Decimal

func (s StaticPriceService) PriceEUR(symbol string) (decimal.Decimal, bool) {
	price, ok := s[strings.ToUpper(symbol)]
	return price, ok
}
