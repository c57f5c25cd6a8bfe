package market

import (
	"sort"
	"strings"
	"time"
)

// Quote is a single price reading returned by a price source.
type Quote struct {
	Symbol           string
	Name             string
	PriceUSD         float64
	PercentChange24h float64
	Volume24h        float64
	MarketCap        float64
	ObservedAt       time.Time
}

// Observation is a persisted price reading. Rows are append-only.
type Observation struct {
	Symbol           string
	PriceUSD         float64
	PercentChange24h float64
	ObservedAt       time.Time
}

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeSymbols uppercases symbols, drops blanks and removes duplicates
// while keeping the first-seen order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		s := NormalizeSymbol(raw)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// SplitSymbols parses a comma or whitespace separated symbol list.
func SplitSymbols(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	return NormalizeSymbols(fields)
}

// Observations converts quotes to observations, stamping quotes without a
// source timestamp with fallback.
func Observations(quotes map[string]Quote, fallback time.Time) []Observation {
	out := make([]Observation, 0, len(quotes))
	for _, symbol := range SortedKeys(quotes) {
		q := quotes[symbol]
		observedAt := q.ObservedAt
		if observedAt.IsZero() {
			observedAt = fallback
		}
		out = append(out, Observation{
			Symbol:           NormalizeSymbol(symbol),
			PriceUSD:         q.PriceUSD,
			PercentChange24h: q.PercentChange24h,
			ObservedAt:       observedAt.UTC(),
		})
	}
	return out
}

// PriceMap flattens observations into symbol -> USD price.
func PriceMap(observations map[string]Observation) map[string]float64 {
	prices := make(map[string]float64, len(observations))
	for symbol, obs := range observations {
		prices[symbol] = obs.PriceUSD
	}
	return prices
}

// QuotePrices flattens quotes into symbol -> USD price.
func QuotePrices(quotes map[string]Quote) map[string]float64 {
	prices := make(map[string]float64, len(quotes))
	for symbol, q := range quotes {
		prices[symbol] = q.PriceUSD
	}
	return prices
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
