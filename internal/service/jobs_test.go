package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-alerts/internal/alerting"
	"crypto-alerts/internal/fetcher"
	"crypto-alerts/internal/market"
)

func TestDigestReport(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, h.store.Record(ctx, []market.Observation{
		{Symbol: "BTC", PriceUSD: 50000, PercentChange24h: 1.5, ObservedAt: now.Add(-3 * time.Hour)},
		{Symbol: "BTC", PriceUSD: 55000, PercentChange24h: 2.5, ObservedAt: now.Add(-time.Minute)},
		{Symbol: "ETH", PriceUSD: 3000, PercentChange24h: -0.4, ObservedAt: now.Add(-2 * time.Hour)},
		{Symbol: "ETH", PriceUSD: 3030, PercentChange24h: -0.2, ObservedAt: now.Add(-time.Minute)},
	}))

	var got []alerting.Notification
	notifier := alerting.NotifierFunc(func(_ context.Context, n alerting.Notification) error {
		got = append(got, n)
		return nil
	})
	digest := NewDigest(h.store, notifier, DigestOptions{
		Symbols:          []string{"BTC", "ETH", "DOGE"},
		Window:           4 * time.Hour,
		MoveThresholdPct: 5,
		Owner:            "ops",
	}, zerolog.Nop())

	report, err := digest.Build(ctx)
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)
	assert.Equal(t, []string{"DOGE"}, report.Missing)
	require.NotNil(t, report.Lines[0].WindowChange)
	assert.Equal(t, 10.0, *report.Lines[0].WindowChange)
	assert.True(t, report.Lines[0].Mover)
	assert.False(t, report.Lines[1].Mover)

	text := report.Render()
	assert.Contains(t, text, "BTC: $55,000.00, 24h +2.50%, window +10.00%")
	assert.Contains(t, text, "Big movers (>= 5.00%): BTC")
	assert.Contains(t, text, "No data: DOGE")

	require.NoError(t, digest.Send(ctx, now))
	require.Len(t, got, 1)
	assert.Equal(t, "ops", got[0].OwnerID)
	assert.Equal(t, 55000.0, got[0].Prices["BTC"])
}

func TestDigestWithoutDataSendsNothing(t *testing.T) {
	h := newHarness(t, nil)
	called := false
	notifier := alerting.NotifierFunc(func(context.Context, alerting.Notification) error {
		called = true
		return nil
	})
	digest := NewDigest(h.store, notifier, DigestOptions{Symbols: []string{"BTC"}}, zerolog.Nop())
	require.NoError(t, digest.Send(context.Background(), time.Now()))
	assert.False(t, called)
}

type fakeWallets struct {
	balances map[string]fetcher.WalletBalance
}

func (f fakeWallets) FetchBalance(_ context.Context, address string) (fetcher.WalletBalance, error) {
	bal, ok := f.balances[address]
	if !ok {
		return fetcher.WalletBalance{}, errors.New("rpc: unknown address")
	}
	return bal, nil
}

func TestWalletSyncStoresValuedSnapshots(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.store.Record(ctx, []market.Observation{{Symbol: "ETH", PriceUSD: 2000, ObservedAt: time.Now().UTC()}}))

	good := "0x00000000219ab540356cBB839Cbe05303d7705Fa"
	bad := "0x000000000000000000000000000000000000dEaD"
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	reader := fakeWallets{balances: map[string]fetcher.WalletBalance{
		good: {
			Address:     good,
			BlockNumber: 19000000,
			BalanceWei:  wei,
			BalanceETH:  decimal.NewFromBigInt(wei, -18),
			Tokens:      []fetcher.TokenBalance{{Contract: "0xa0b8", Balance: big.NewInt(42)}},
		},
	}}

	job := NewWalletSync(reader, h.store, h.store, []string{good, " ", bad}, zerolog.Nop())
	err := job.Sync(ctx, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown address")

	snaps, err := h.store.ListWalletSnapshots(ctx, good, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "1.5", snaps[0].BalanceETH.String())
	require.NotNil(t, snaps[0].ValueUSD)
	assert.Equal(t, "3000", snaps[0].ValueUSD.String())
	require.Len(t, snaps[0].Tokens, 1)
	assert.Equal(t, "42", snaps[0].Tokens[0].Balance)

	// same block again is ignored
	require.Error(t, job.Sync(ctx, time.Now()))
	snaps, err = h.store.ListWalletSnapshots(ctx, good, 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}
