package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbolsDedupesAndKeepsOrder(t *testing.T) {
	got := NormalizeSymbols([]string{" eth", "BTC", "", "Eth", "xrp "})
	assert.Equal(t, []string{"ETH", "BTC", "XRP"}, got)
}

func TestSplitSymbols(t *testing.T) {
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, SplitSymbols("btc, eth sol,,"))
	assert.Empty(t, SplitSymbols(" , "))
}

func TestObservationsStampsMissingTimestamps(t *testing.T) {
	fallback := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	source := fallback.Add(-time.Minute)

	obs := Observations(map[string]Quote{
		"eth": {PriceUSD: 2000, PercentChange24h: -1.5},
		"BTC": {PriceUSD: 50000, ObservedAt: source},
	}, fallback)

	require.Len(t, obs, 2)
	assert.Equal(t, "BTC", obs[0].Symbol)
	assert.Equal(t, source, obs[0].ObservedAt)
	assert.Equal(t, "ETH", obs[1].Symbol)
	assert.Equal(t, fallback, obs[1].ObservedAt)
	assert.Equal(t, -1.5, obs[1].PercentChange24h)
}
