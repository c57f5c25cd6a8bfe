package fetcher

import (
	"context"
	"errors"
	"time"

	"crypto-alerts/internal/market"
)

// Result is the outcome of a degraded-mode fetch: whatever quotes could be
// obtained plus one FetchError per symbol that could not.
type Result struct {
	Quotes   map[string]market.Quote
	Failures []*FetchError
}

// Failed lists the symbols that produced no quote.
func (r Result) Failed() []string {
	var out []string
	for _, f := range r.Failures {
		out = append(out, f.Symbols...)
	}
	return out
}

// FetchEach fetches symbols as one batch. When the batch fails and holds more
// than one symbol, each symbol is retried on its own so one bad symbol cannot
// starve the others. Every call is bounded by timeout.
func FetchEach(ctx context.Context, src PriceSource, symbols []string, timeout time.Duration) Result {
	symbols = market.NormalizeSymbols(symbols)
	res := Result{Quotes: make(map[string]market.Quote, len(symbols))}
	if len(symbols) == 0 {
		return res
	}

	quotes, err := fetchWithTimeout(ctx, src, symbols, timeout)
	if err != nil && len(symbols) > 1 {
		for _, symbol := range symbols {
			one, oneErr := fetchWithTimeout(ctx, src, []string{symbol}, timeout)
			if oneErr != nil {
				res.Failures = append(res.Failures, asFetchError(src.Name(), []string{symbol}, oneErr))
				continue
			}
			collect(&res, one, []string{symbol}, src.Name())
		}
		return res
	}
	if err != nil {
		res.Failures = append(res.Failures, asFetchError(src.Name(), symbols, err))
		return res
	}
	collect(&res, quotes, symbols, src.Name())
	return res
}

func collect(res *Result, quotes map[string]market.Quote, wanted []string, source string) {
	for _, symbol := range wanted {
		q, ok := quotes[symbol]
		if !ok {
			res.Failures = append(res.Failures, fetchErr(source, []string{symbol}, 0, errors.New("no quote returned")))
			continue
		}
		q.Symbol = symbol
		res.Quotes[symbol] = q
	}
}

func fetchWithTimeout(ctx context.Context, src PriceSource, symbols []string, timeout time.Duration) (map[string]market.Quote, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return src.FetchPrices(ctx, symbols)
}

func asFetchError(source string, symbols []string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		if len(symbols) == 1 && len(fe.Symbols) != 1 {
			copied := *fe
			copied.Symbols = symbols
			return &copied
		}
		return fe
	}
	return fetchErr(source, symbols, 0, err)
}
