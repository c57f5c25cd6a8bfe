package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"crypto-alerts/internal/market"
)

// Static serves fixed prices. simulate-alert and tests use it in place of a
// live provider; Fail marks symbols whose lookup errors.
type Static struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]bool
	now    func() time.Time
	calls  int
}

var _ PriceSource = (*Static)(nil)

// NewStatic returns a source answering with prices.
func NewStatic(prices map[string]float64) *Static {
	s := &Static{prices: make(map[string]float64), fail: make(map[string]bool), now: time.Now}
	for k, v := range prices {
		s.prices[market.NormalizeSymbol(k)] = v
	}
	return s
}

func (s *Static) Name() string { return "static" }

// Set changes the price of symbol.
func (s *Static) Set(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[market.NormalizeSymbol(symbol)] = price
}

// Fail makes every request containing symbol fail.
func (s *Static) Fail(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[market.NormalizeSymbol(symbol)] = true
}

// Calls counts FetchPrices invocations.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Static) FetchPrices(ctx context.Context, symbols []string) (map[string]market.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if err := ctx.Err(); err != nil {
		return nil, fetchErr(s.Name(), symbols, 0, err)
	}
	for _, symbol := range symbols {
		if s.fail[market.NormalizeSymbol(symbol)] {
			return nil, fetchErr(s.Name(), symbols, 503, errUnavailable)
		}
	}

	now := s.now().UTC()
	out := make(map[string]market.Quote, len(symbols))
	for _, symbol := range market.NormalizeSymbols(symbols) {
		if p, ok := s.prices[symbol]; ok {
			out[symbol] = market.Quote{Symbol: symbol, PriceUSD: p, ObservedAt: now}
		}
	}
	return out, nil
}

var errUnavailable = errors.New("source unavailable")
