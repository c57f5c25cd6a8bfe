package fetcher

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"crypto-alerts/internal/market"
)

// paprikaAPI is the slice of the CoinPaprika SDK the fetcher needs.
type paprikaAPI interface {
	Search(opts *coinpaprika.SearchOptions) (*coinpaprika.SearchResult, error)
	Ticker(id string, opts *coinpaprika.TickersOptions) (*coinpaprika.Ticker, error)
	History(id string, opts *coinpaprika.TickersHistoricalOptions) ([]*coinpaprika.TickerHistorical, error)
}

type sdkPaprika struct {
	client *coinpaprika.Client
}

func (s sdkPaprika) Search(opts *coinpaprika.SearchOptions) (*coinpaprika.SearchResult, error) {
	return s.client.Search.Search(opts)
}

func (s sdkPaprika) Ticker(id string, opts *coinpaprika.TickersOptions) (*coinpaprika.Ticker, error) {
	return s.client.Tickers.GetByID(id, opts)
}

func (s sdkPaprika) History(id string, opts *coinpaprika.TickersHistoricalOptions) ([]*coinpaprika.TickerHistorical, error) {
	return s.client.Tickers.GetHistoricalTickersByID(id, opts)
}

// CoinPaprika fetches quotes through the CoinPaprika SDK. Symbol to coin id
// lookups are cached for the life of the fetcher.
type CoinPaprika struct {
	api    paprikaAPI
	logger zerolog.Logger

	mu  sync.Mutex
	ids map[string]string
}

var (
	_ PriceSource   = (*CoinPaprika)(nil)
	_ HistorySource = (*CoinPaprika)(nil)
)

// NewCoinPaprika builds a fetcher; an empty apiKey uses the free tier.
func NewCoinPaprika(apiKey string, timeout time.Duration, logger zerolog.Logger) *CoinPaprika {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	var client *coinpaprika.Client
	if apiKey != "" {
		client = coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiKey))
	} else {
		client = coinpaprika.NewClient(httpClient)
	}
	return newCoinPaprika(sdkPaprika{client: client}, logger)
}

func newCoinPaprika(api paprikaAPI, logger zerolog.Logger) *CoinPaprika {
	return &CoinPaprika{
		api:    api,
		logger: logger.With().Str("component", "coinpaprika").Logger(),
		ids:    make(map[string]string),
	}
}

func (p *CoinPaprika) Name() string { return "coinpaprika" }

// FetchPrices looks symbols up one by one. Unknown symbols are skipped; the
// call fails only when no symbol could be fetched at all.
func (p *CoinPaprika) FetchPrices(ctx context.Context, symbols []string) (map[string]market.Quote, error) {
	symbols = market.NormalizeSymbols(symbols)
	quotes := make(map[string]market.Quote, len(symbols))
	var lastErr error

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, fetchErr(p.Name(), symbols, 0, err)
		}

		id, err := p.coinID(symbol)
		if err != nil {
			if errors.Is(err, errUnknownSymbol) {
				p.logger.Debug().Str("symbol", symbol).Msg("symbol not listed")
				continue
			}
			lastErr = err
			continue
		}

		ticker, err := p.api.Ticker(id, &coinpaprika.TickersOptions{Quotes: "USD"})
		if err != nil {
			lastErr = errors.Wrapf(err, "ticker %s", id)
			continue
		}
		q, ok := tickerQuote(symbol, ticker)
		if !ok {
			continue
		}
		quotes[symbol] = q
	}

	if len(quotes) == 0 && lastErr != nil {
		return nil, fetchErr(p.Name(), symbols, 0, lastErr)
	}
	return quotes, nil
}

var errUnknownSymbol = errors.New("unknown symbol")

func (p *CoinPaprika) coinID(symbol string) (string, error) {
	p.mu.Lock()
	id, ok := p.ids[symbol]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	result, err := p.api.Search(&coinpaprika.SearchOptions{
		Query:      symbol,
		Categories: "currencies",
		Modifier:   "symbol_search",
	})
	if err != nil {
		return "", errors.Wrapf(err, "search %s", symbol)
	}
	if result == nil {
		return "", errUnknownSymbol
	}
	for _, coin := range result.Currencies {
		if coin == nil || coin.ID == nil || coin.Symbol == nil {
			continue
		}
		if strings.EqualFold(*coin.Symbol, symbol) {
			p.mu.Lock()
			p.ids[symbol] = *coin.ID
			p.mu.Unlock()
			return *coin.ID, nil
		}
	}
	return "", errUnknownSymbol
}

func tickerQuote(symbol string, ticker *coinpaprika.Ticker) (market.Quote, bool) {
	if ticker == nil || ticker.Quotes == nil {
		return market.Quote{}, false
	}
	usd, ok := ticker.Quotes["USD"]
	if !ok || usd.Price == nil {
		return market.Quote{}, false
	}

	q := market.Quote{Symbol: symbol, PriceUSD: *usd.Price}
	if ticker.Name != nil {
		q.Name = *ticker.Name
	}
	if usd.PercentChange24h != nil {
		q.PercentChange24h = *usd.PercentChange24h
	}
	if usd.Volume24h != nil {
		q.Volume24h = *usd.Volume24h
	}
	if usd.MarketCap != nil {
		q.MarketCap = *usd.MarketCap
	}
	return q, true
}

// FetchHistory returns historical USD prices of symbol between from and to,
// sampled at interval ("5m", "1h", "1d" ...). Observations come back oldest
// first.
func (p *CoinPaprika) FetchHistory(ctx context.Context, symbol string, from, to time.Time, interval string) ([]market.Observation, error) {
	symbol = market.NormalizeSymbol(symbol)
	if err := ctx.Err(); err != nil {
		return nil, fetchErr(p.Name(), []string{symbol}, 0, err)
	}
	id, err := p.coinID(symbol)
	if err != nil {
		return nil, fetchErr(p.Name(), []string{symbol}, 0, err)
	}

	ticks, err := p.api.History(id, &coinpaprika.TickersHistoricalOptions{
		Start:    from.UTC(),
		End:      to.UTC(),
		Quote:    "USD",
		Interval: interval,
		Limit:    5000,
	})
	if err != nil {
		return nil, fetchErr(p.Name(), []string{symbol}, 0, errors.Wrapf(err, "historical tickers %s", id))
	}

	out := make([]market.Observation, 0, len(ticks))
	for _, tick := range ticks {
		if tick == nil || tick.Timestamp == nil || tick.Price == nil {
			continue
		}
		out = append(out, market.Observation{
			Symbol:     symbol,
			PriceUSD:   *tick.Price,
			ObservedAt: tick.Timestamp.UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}
