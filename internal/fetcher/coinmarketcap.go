package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crypto-alerts/internal/market"
)

const (
	cmcQuotesPath = "/v2/cryptocurrency/quotes/latest"
	// cmcMaxBodyBytes caps how much of a quotes response is read.
	cmcMaxBodyBytes = 4 << 20
)

// CoinMarketCapOptions parameterise the CoinMarketCap fetcher.
type CoinMarketCapOptions struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// CoinMarketCap fetches quotes from the CoinMarketCap pro API.
type CoinMarketCap struct {
	opts    CoinMarketCapOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

var _ PriceSource = (*CoinMarketCap)(nil)

// NewCoinMarketCap constructs a CoinMarketCap fetcher.
func NewCoinMarketCap(opts CoinMarketCapOptions, logger zerolog.Logger) *CoinMarketCap {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://pro-api.coinmarketcap.com"
	}

	return &CoinMarketCap{
		opts:    opts,
		logger:  logger.With().Str("component", "coinmarketcap").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *CoinMarketCap) Name() string { return "coinmarketcap" }

// FetchPrices requests all symbols in one call. Unknown symbols are skipped
// by the API and simply missing from the result.
func (c *CoinMarketCap) FetchPrices(ctx context.Context, symbols []string) (map[string]market.Quote, error) {
	symbols = market.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		return map[string]market.Quote{}, nil
	}
	if c.opts.APIKey == "" {
		return nil, fetchErr(c.Name(), symbols, 0, errors.New("api key not configured"))
	}

	query := url.Values{}
	query.Set("symbol", strings.Join(symbols, ","))
	query.Set("convert", "USD")
	query.Set("skip_invalid", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+cmcQuotesPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fetchErr(c.Name(), symbols, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", c.opts.APIKey)
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "cryptoalerts/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fetchErr(c.Name(), symbols, 0, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, cmcMaxBodyBytes+1))
	if err != nil {
		return nil, fetchErr(c.Name(), symbols, resp.StatusCode, err)
	}
	if len(payload) > cmcMaxBodyBytes {
		return nil, fetchErr(c.Name(), symbols, resp.StatusCode, fmt.Errorf("response body exceeds %d bytes", cmcMaxBodyBytes))
	}

	var body cmcResponse
	decodeErr := json.Unmarshal(payload, &body)

	if resp.StatusCode != http.StatusOK {
		return nil, fetchErr(c.Name(), symbols, resp.StatusCode, parseCMCError(body, decodeErr, payload))
	}
	if decodeErr != nil {
		return nil, fetchErr(c.Name(), symbols, resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr))
	}
	if body.Status.ErrorCode != 0 {
		return nil, fetchErr(c.Name(), symbols, resp.StatusCode, parseCMCError(body, nil, payload))
	}

	quotes := make(map[string]market.Quote, len(symbols))
	for _, symbol := range symbols {
		entries, ok := body.Data[symbol]
		if !ok || len(entries) == 0 {
			c.logger.Debug().Str("symbol", symbol).Msg("no quote returned")
			continue
		}
		// The first entry is the highest ranked coin using the symbol.
		entry := entries[0]
		usd, ok := entry.Quote["USD"]
		if !ok {
			continue
		}
		quotes[symbol] = market.Quote{
			Symbol:           symbol,
			Name:             entry.Name,
			PriceUSD:         usd.Price,
			PercentChange24h: usd.PercentChange24h,
			Volume24h:        usd.Volume24h,
			MarketCap:        usd.MarketCap,
			ObservedAt:       usd.LastUpdated.UTC(),
		}
	}
	return quotes, nil
}

type cmcResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string][]struct {
		ID     int64                    `json:"id"`
		Name   string                   `json:"name"`
		Symbol string                   `json:"symbol"`
		Quote  map[string]cmcQuoteEntry `json:"quote"`
	} `json:"data"`
}

type cmcQuoteEntry struct {
	Price            float64   `json:"price"`
	PercentChange24h float64   `json:"percent_change_24h"`
	Volume24h        float64   `json:"volume_24h"`
	MarketCap        float64   `json:"market_cap"`
	LastUpdated      time.Time `json:"last_updated"`
}

func parseCMCError(body cmcResponse, decodeErr error, payload []byte) error {
	if decodeErr == nil && body.Status.ErrorMessage != "" {
		return fmt.Errorf("coinmarketcap error %d: %s", body.Status.ErrorCode, body.Status.ErrorMessage)
	}
	if decodeErr == nil && body.Status.ErrorCode != 0 {
		return fmt.Errorf("coinmarketcap error %d", body.Status.ErrorCode)
	}
	if len(payload) > 0 {
		return fmt.Errorf("coinmarketcap error: %s", strings.TrimSpace(string(payload)))
	}
	return errors.New("coinmarketcap error: empty response")
}
