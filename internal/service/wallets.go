package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/fetcher"
	"crypto-alerts/internal/storage"
)

// WalletSync snapshots configured addresses into the wallet store.
type WalletSync struct {
	reader    fetcher.WalletReader
	store     storage.WalletStore
	prices    alert.PriceReader
	addresses []string
	logger    zerolog.Logger
}

// NewWalletSync builds the wallet job. prices may be nil, in which case
// snapshots carry no USD value.
func NewWalletSync(reader fetcher.WalletReader, store storage.WalletStore, prices alert.PriceReader, addresses []string, logger zerolog.Logger) *WalletSync {
	cleaned := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			cleaned = append(cleaned, addr)
		}
	}
	return &WalletSync{
		reader:    reader,
		store:     store,
		prices:    prices,
		addresses: cleaned,
		logger:    logger.With().Str("component", "wallet_sync").Logger(),
	}
}

// Sync snapshots every address once. One failing address does not stop the
// rest; all failures are returned joined.
func (w *WalletSync) Sync(ctx context.Context, at time.Time) error {
	ethUSD := w.ethPrice(ctx)

	var errs []error
	stored := 0
	for _, addr := range w.addresses {
		inserted, err := w.syncOne(ctx, addr, ethUSD, at)
		if err != nil {
			w.logger.Error().Err(err).Str("address", addr).Msg("wallet sync failed")
			errs = append(errs, err)
			continue
		}
		if inserted {
			stored++
		}
	}
	w.logger.Info().Int("addresses", len(w.addresses)).Int("stored", stored).Msg("wallet sync finished")
	return errors.Join(errs...)
}

func (w *WalletSync) syncOne(ctx context.Context, addr string, ethUSD *decimal.Decimal, at time.Time) (bool, error) {
	bal, err := w.reader.FetchBalance(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", addr, err)
	}

	snap := storage.WalletSnapshot{
		Address:     bal.Address,
		BlockNumber: bal.BlockNumber,
		BalanceWei:  bal.BalanceWei.String(),
		BalanceETH:  bal.BalanceETH,
		TakenAt:     at.UTC(),
	}
	if ethUSD != nil {
		value := bal.BalanceETH.Mul(*ethUSD).Round(2)
		snap.ValueUSD = &value
	}
	for _, tok := range bal.Tokens {
		snap.Tokens = append(snap.Tokens, storage.TokenBalance{Contract: tok.Contract, Balance: tok.Balance.String()})
	}

	inserted, err := w.store.InsertWalletSnapshot(ctx, snap)
	if err != nil {
		return false, err
	}
	if !inserted {
		w.logger.Debug().Str("address", bal.Address).Uint64("block", bal.BlockNumber).Msg("snapshot already recorded for block")
	}
	return inserted, nil
}

func (w *WalletSync) ethPrice(ctx context.Context) *decimal.Decimal {
	if w.prices == nil {
		return nil
	}
	latest, err := w.prices.Latest(ctx, []string{"ETH"})
	if err != nil {
		w.logger.Warn().Err(err).Msg("eth price unavailable, snapshots will not be valued")
		return nil
	}
	obs, ok := latest["ETH"]
	if !ok || obs.PriceUSD <= 0 {
		return nil
	}
	price := decimal.NewFromFloat(obs.PriceUSD)
	return &price
}
