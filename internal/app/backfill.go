package app

import (
	"context"
	"errors"
	"fmt"

	"crypto-alerts/internal/fetcher"
	"crypto-alerts/internal/market"
	"crypto-alerts/internal/service"
	"crypto-alerts/internal/storage"
)

// Backfill loads historical prices for the given symbols into the price
// table. History always comes from CoinPaprika.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	source := fetcher.NewCoinPaprika(a.Config.Price.CoinPaprika.APIKey, a.Config.Poller.FetchTimeout, a.Logger)
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
		return a.backfill(ctx, source, nil, opts)
	}
	return a.withStore(ctx, func(store *storage.Store) error {
		return a.backfill(ctx, source, store, opts)
	})
}

func (a *App) backfill(ctx context.Context, source fetcher.HistorySource, sink service.PriceRecorder, opts BackfillOptions) error {
	symbols := market.NormalizeSymbols(opts.Symbols)
	if len(symbols) == 0 {
		symbols = market.NormalizeSymbols(a.Config.Poller.TrackedSymbols)
	}
	if len(symbols) == 0 {
		return errors.New("no symbols to backfill")
	}
	from, to := opts.From.UTC(), opts.To.UTC()
	if !from.Before(to) {
		return errors.New("backfill range is empty, check --from/--to")
	}
	interval := opts.Interval
	if interval == "" {
		interval = "1h"
	}

	var failed []error
	total := 0
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := a.Logger.With().Str("symbol", symbol).Logger()

		observations, err := source.FetchHistory(ctx, symbol, from, to, interval)
		if err != nil {
			log.Error().Err(err).Msg("history fetch failed")
			failed = append(failed, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		if sink != nil && len(observations) > 0 {
			if err := sink.Record(ctx, observations); err != nil {
				log.Error().Err(err).Msg("could not store history")
				failed = append(failed, fmt.Errorf("%s: %w", symbol, err))
				continue
			}
		}
		total += len(observations)
		log.Info().Int("points", len(observations)).Msg("symbol backfilled")
		fmt.Fprintf(a.Out, "%s\t%d points\n", symbol, len(observations))
	}

	a.Logger.Info().Int("symbols", len(symbols)).Int("points", total).Int("failed", len(failed)).Msg("backfill complete")
	return errors.Join(failed...)
}
