package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCoinMarketCapFetchSuccess(t *testing.T) {
	var gotKey, gotSymbols string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, cmcQuotesPath, r.URL.Path)
		gotKey = r.Header.Get("X-CMC_PRO_API_KEY")
		gotSymbols = r.URL.Query().Get("symbol")
		assert.Equal(t, "USD", r.URL.Query().Get("convert"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": {"error_code": 0, "error_message": null},
			"data": {
				"BTC": [{"id": 1, "name": "Bitcoin", "symbol": "BTC", "quote": {"USD": {
					"price": 51000.5, "percent_change_24h": 2.5, "volume_24h": 1000, "market_cap": 9000,
					"last_updated": "2026-03-01T12:00:00.000Z"}}}],
				"ETH": [{"id": 1027, "name": "Ethereum", "symbol": "ETH", "quote": {"USD": {
					"price": 2000, "percent_change_24h": -1.25, "last_updated": "2026-03-01T12:00:00.000Z"}}}]
			}
		}`))
	}))
	defer srv.Close()

	cmc := NewCoinMarketCap(CoinMarketCapOptions{APIKey: "key", BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	quotes, err := cmc.FetchPrices(context.Background(), []string{"btc", "ETH", "NOPE"})
	require.NoError(t, err)

	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "BTC,ETH,NOPE", gotSymbols)
	require.Len(t, quotes, 2)
	assert.Equal(t, 51000.5, quotes["BTC"].PriceUSD)
	assert.Equal(t, "Bitcoin", quotes["BTC"].Name)
	assert.Equal(t, -1.25, quotes["ETH"].PercentChange24h)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), quotes["ETH"].ObservedAt)
}

func TestCoinMarketCapHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status": {"error_code": 1001, "error_message": "This API Key is invalid."}}`))
	}))
	defer srv.Close()

	cmc := NewCoinMarketCap(CoinMarketCapOptions{APIKey: "bad", BaseURL: srv.URL}, noopLogger())
	_, err := cmc.FetchPrices(context.Background(), []string{"BTC"})

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusUnauthorized, fe.StatusCode)
	assert.Equal(t, "coinmarketcap", fe.Source)
	assert.Contains(t, err.Error(), "API Key is invalid")
}

func TestCoinMarketCapOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {}, "padding": "`))
		_, _ = w.Write([]byte(strings.Repeat("x", cmcMaxBodyBytes)))
		_, _ = w.Write([]byte(`"}`))
	}))
	defer srv.Close()

	cmc := NewCoinMarketCap(CoinMarketCapOptions{APIKey: "k", BaseURL: srv.URL}, noopLogger())
	_, err := cmc.FetchPrices(context.Background(), []string{"BTC"})

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusOK, fe.StatusCode)
	assert.Contains(t, err.Error(), "response body exceeds")
}

func TestCoinMarketCapMissingKey(t *testing.T) {
	cmc := NewCoinMarketCap(CoinMarketCapOptions{}, noopLogger())
	_, err := cmc.FetchPrices(context.Background(), []string{"BTC"})
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestCoinMarketCapTimeoutIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cmc := NewCoinMarketCap(CoinMarketCapOptions{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, noopLogger())
	_, err := cmc.FetchPrices(context.Background(), []string{"BTC"})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"BTC"}, fe.Symbols)
}

type fakePaprika struct {
	coins   map[string]string
	prices  map[string]string
	fail    map[string]bool
	lookups int
}

func (f *fakePaprika) Search(opts *coinpaprika.SearchOptions) (*coinpaprika.SearchResult, error) {
	f.lookups++
	var res coinpaprika.SearchResult
	id, ok := f.coins[opts.Query]
	if !ok {
		return &res, nil
	}
	raw := `{"currencies":[{"id":"` + id + `","name":"` + opts.Query + `","symbol":"` + opts.Query + `"}]}`
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (f *fakePaprika) Ticker(id string, _ *coinpaprika.TickersOptions) (*coinpaprika.Ticker, error) {
	if f.fail[id] {
		return nil, errors.New("rate limited")
	}
	var ticker coinpaprika.Ticker
	raw := `{"id":"` + id + `","name":"` + id + `","symbol":"X","quotes":{"USD":{"price":` + f.prices[id] + `,"percent_change_24h":1.5}}}`
	if err := json.Unmarshal([]byte(raw), &ticker); err != nil {
		return nil, err
	}
	return &ticker, nil
}

func (f *fakePaprika) History(id string, opts *coinpaprika.TickersHistoricalOptions) ([]*coinpaprika.TickerHistorical, error) {
	if f.fail[id] {
		return nil, errors.New("rate limited")
	}
	start := opts.Start.Format(time.RFC3339)
	later := opts.Start.Add(time.Hour).Format(time.RFC3339)
	raw := `[{"timestamp":"` + later + `","price":101},{"timestamp":"` + start + `","price":100},{"timestamp":"` + later + `"}]`
	var ticks []*coinpaprika.TickerHistorical
	if err := json.Unmarshal([]byte(raw), &ticks); err != nil {
		return nil, err
	}
	return ticks, nil
}

func TestCoinPaprikaHistory(t *testing.T) {
	api := &fakePaprika{
		coins: map[string]string{"BTC": "btc-bitcoin"},
		fail:  map[string]bool{},
	}
	p := newCoinPaprika(api, noopLogger())
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	obs, err := p.FetchHistory(context.Background(), "btc", from, from.Add(24*time.Hour), "1h")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 100.0, obs[0].PriceUSD)
	assert.True(t, obs[0].ObservedAt.Equal(from))
	assert.Equal(t, "BTC", obs[1].Symbol)

	_, err = p.FetchHistory(context.Background(), "nope", from, from.Add(time.Hour), "1h")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}

func TestCoinPaprikaFetch(t *testing.T) {
	api := &fakePaprika{
		coins:  map[string]string{"BTC": "btc-bitcoin", "ETH": "eth-ethereum"},
		prices: map[string]string{"btc-bitcoin": "50000", "eth-ethereum": "2000"},
		fail:   map[string]bool{},
	}
	p := newCoinPaprika(api, noopLogger())

	quotes, err := p.FetchPrices(context.Background(), []string{"btc", "eth", "zzz"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 50000.0, quotes["BTC"].PriceUSD)
	assert.Equal(t, 1.5, quotes["ETH"].PercentChange24h)

	_, err = p.FetchPrices(context.Background(), []string{"BTC"})
	require.NoError(t, err)
	// BTC is cached by the first call.
	assert.Equal(t, 3, api.lookups)
}

func TestCoinPaprikaAllFailed(t *testing.T) {
	api := &fakePaprika{
		coins:  map[string]string{"BTC": "btc-bitcoin"},
		prices: map[string]string{},
		fail:   map[string]bool{"btc-bitcoin": true},
	}
	p := newCoinPaprika(api, noopLogger())

	_, err := p.FetchPrices(context.Background(), []string{"BTC"})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestFetchEachFallsBackPerSymbol(t *testing.T) {
	src := NewStatic(map[string]float64{"BTC": 50000, "ETH": 2000})
	src.Fail("XRP")

	res := FetchEach(context.Background(), src, []string{"BTC", "XRP", "ETH"}, time.Second)

	require.Len(t, res.Quotes, 2)
	assert.Equal(t, 50000.0, res.Quotes["BTC"].PriceUSD)
	assert.Equal(t, []string{"XRP"}, res.Failed())
	// One failed batch plus one call per symbol.
	assert.Equal(t, 4, src.Calls())
}

func TestFetchEachReportsMissingSymbols(t *testing.T) {
	src := NewStatic(map[string]float64{"BTC": 1})

	res := FetchEach(context.Background(), src, []string{"BTC", "DOGE"}, 0)

	assert.Len(t, res.Quotes, 1)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, []string{"DOGE"}, res.Failures[0].Symbols)
	assert.Equal(t, 1, src.Calls())
}

func TestFetchEachSingleSymbolFailure(t *testing.T) {
	src := NewStatic(nil)
	src.Fail("BTC")

	res := FetchEach(context.Background(), src, []string{"BTC"}, 0)

	assert.Empty(t, res.Quotes)
	assert.Equal(t, []string{"BTC"}, res.Failed())
	assert.Equal(t, 1, src.Calls())
}

func TestWalletsFetchBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result any
		switch req.Method {
		case "eth_blockNumber":
			result = "0x10"
		case "eth_getBalance":
			result = "0x14d1120d7b160000" // 1.5 ETH
		case "alchemy_getTokenBalances":
			result = map[string]any{
				"address": "0x0",
				"tokenBalances": []map[string]any{
					{"contractAddress": "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48", "tokenBalance": "0x00000000000000000000000000000000000000000000000000000000000f4240"},
					{"contractAddress": "0xdAC17F958D2ee523a2206206994597C13D831ec7", "tokenBalance": "0x0000000000000000000000000000000000000000000000000000000000000000"},
				},
			}
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	defer srv.Close()

	wallets := NewWallets(WalletOptions{RPCURL: srv.URL, Timeout: time.Second, IncludeTokens: true}, noopLogger())
	defer wallets.Close()

	bal, err := wallets.FetchBalance(context.Background(), "0x00000000219ab540356cBB839Cbe05303d7705Fa")
	require.NoError(t, err)
	assert.EqualValues(t, 16, bal.BlockNumber)
	assert.Equal(t, "1.5", bal.BalanceETH.String())
	require.Len(t, bal.Tokens, 1)
	assert.True(t, strings.HasPrefix(bal.Tokens[0].Contract, "0xa0b8"))
	assert.EqualValues(t, 1000000, bal.Tokens[0].Balance.Int64())
}

func TestWalletsRejectsBadInput(t *testing.T) {
	w := NewWallets(WalletOptions{}, noopLogger())
	_, err := w.FetchBalance(context.Background(), "0x00000000219ab540356cBB839Cbe05303d7705Fa")
	assert.Error(t, err)

	w = NewWallets(WalletOptions{RPCURL: "http://127.0.0.1:1"}, noopLogger())
	_, err = w.FetchBalance(context.Background(), "not-an-address")
	assert.Error(t, err)
}
