package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crypto-alerts/internal/market"
)

// PriceSource returns USD quotes for the requested symbols. Symbols the
// provider does not know are absent from the map; a failure of the whole
// request is a *FetchError.
type PriceSource interface {
	Name() string
	FetchPrices(ctx context.Context, symbols []string) (map[string]market.Quote, error)
}

// HistorySource returns past prices of one symbol, oldest first.
type HistorySource interface {
	Name() string
	FetchHistory(ctx context.Context, symbol string, from, to time.Time, interval string) ([]market.Observation, error)
}

// FetchError reports an unreachable provider or a non-200 answer.
type FetchError struct {
	Source     string
	Symbols    []string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s from %s", strings.Join(e.Symbols, ","), e.Source)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchErr(source string, symbols []string, status int, err error) *FetchError {
	return &FetchError{Source: source, Symbols: append([]string(nil), symbols...), StatusCode: status, Err: err}
}
