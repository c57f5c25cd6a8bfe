package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"crypto-alerts/internal/format"
	"crypto-alerts/internal/market"
	"crypto-alerts/internal/storage"
)

// ShowPrices prints the latest stored observation per symbol.
func (a *App) ShowPrices(ctx context.Context, opts ShowOptions) error {
	symbols := market.NormalizeSymbols(opts.Symbols)
	if len(symbols) == 0 {
		symbols = market.NormalizeSymbols(a.Config.Poller.TrackedSymbols)
	}
	return a.withStore(ctx, func(store *storage.Store) error {
		latest, err := store.Latest(ctx, symbols)
		if err != nil {
			return err
		}
		now := time.Now()
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Symbol\tPrice\t24h\tObserved")
		for _, symbol := range symbols {
			obs, ok := latest[symbol]
			if !ok {
				fmt.Fprintf(writer, "%s\t-\t-\tno data\n", symbol)
				continue
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", symbol, format.USD(obs.PriceUSD), format.Percent(obs.PercentChange24h), format.Ago(obs.ObservedAt, now))
		}
		return writer.Flush()
	})
}

// PriceHistory prints the most recent observations of one symbol.
func (a *App) PriceHistory(ctx context.Context, opts HistoryOptions) error {
	symbol := market.NormalizeSymbol(opts.Symbol)
	if symbol == "" {
		return errors.New("symbol is required")
	}
	return a.withStore(ctx, func(store *storage.Store) error {
		history, err := store.History(ctx, symbol, opts.Window)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Fprintln(a.Out, "no observations found")
			return nil
		}
		if opts.Limit > 0 && len(history) > opts.Limit {
			history = history[len(history)-opts.Limit:]
		}
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tPrice\t24h")
		for _, obs := range history {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", obs.ObservedAt.UTC().Format(time.RFC3339), format.Price(obs.PriceUSD), format.Percent(obs.PercentChange24h))
		}
		return writer.Flush()
	})
}

// ShowNotifications prints the notification history of an owner.
func (a *App) ShowNotifications(ctx context.Context, owner string, limit int) error {
	return a.withStore(ctx, func(store *storage.Store) error {
		records, err := store.ListNotifications(ctx, owner, limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(a.Out, "no notifications found")
			return nil
		}
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tAlert\tMessage")
		for _, rec := range records {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", rec.CreatedAt.UTC().Format(time.RFC3339), rec.AlertID, sanitizeInline(rec.Message))
		}
		return writer.Flush()
	})
}

// ShowWallets prints stored snapshots for the configured addresses, or for
// address when given.
func (a *App) ShowWallets(ctx context.Context, address string, limit int) error {
	addresses := a.Config.Wallets.Addresses
	if address != "" {
		addresses = []string{address}
	}
	if len(addresses) == 0 {
		return errors.New("no wallet addresses configured")
	}
	return a.withStore(ctx, func(store *storage.Store) error {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Address\tBlock\tETH\tUSD\tTokens\tTaken (UTC)")
		for _, addr := range addresses {
			snaps, err := store.ListWalletSnapshots(ctx, strings.TrimSpace(addr), limit)
			if err != nil {
				return err
			}
			for _, snap := range snaps {
				usd := "-"
				if snap.ValueUSD != nil {
					usd = format.USD(snap.ValueUSD.InexactFloat64())
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%s\n",
					snap.Address,
					format.Count(int64(snap.BlockNumber)),
					snap.BalanceETH.StringFixed(6),
					usd,
					len(snap.Tokens),
					snap.TakenAt.UTC().Format(time.RFC3339),
				)
			}
		}
		return writer.Flush()
	})
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	return strings.ReplaceAll(cleaned, "\r", " ")
}
