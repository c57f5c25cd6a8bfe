package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/alerting"
	"crypto-alerts/internal/fetcher"
	"crypto-alerts/internal/service"
	"crypto-alerts/internal/storage"
)

// AlertCommand runs one alert action against the registry and prints its
// message. A failed action is returned as an error.
func (a *App) AlertCommand(ctx context.Context, run func(context.Context, *alert.Actions) alert.ActionResult) error {
	return a.withStore(ctx, func(store *storage.Store) error {
		registry, err := a.newRegistry(store, a.Config.IDs.CLINode)
		if err != nil {
			return err
		}
		res := run(ctx, alert.NewActions(registry, a.Logger))
		fmt.Fprintln(a.Out, res.Message)
		if !res.Success {
			if res.Error != nil {
				return res.Error
			}
			return errors.New(res.Message)
		}
		return nil
	})
}

// Digest prints the market digest and, with send, delivers it through the
// configured channels.
func (a *App) Digest(ctx context.Context, send bool) error {
	return a.withStore(ctx, func(store *storage.Store) error {
		var notifier alerting.Notifier
		if send {
			multi, closeNotifier, err := a.newNotifier(store)
			if err != nil {
				return err
			}
			defer closeNotifier()
			notifier = multi
		}
		digest := a.newDigest(store, notifier)

		report, err := digest.Build(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Out, report.Render())
		if !send {
			return nil
		}
		return digest.Send(ctx, time.Now().UTC())
	})
}

// SyncWallets takes one snapshot of every configured wallet.
func (a *App) SyncWallets(ctx context.Context) error {
	if a.Config.Wallets.RPCURL == "" {
		return errors.New("wallets.rpc_url is required")
	}
	if len(a.Config.Wallets.Addresses) == 0 {
		return errors.New("no wallet addresses configured")
	}
	return a.withStore(ctx, func(store *storage.Store) error {
		wallets := fetcher.NewWallets(a.walletOptions(), a.Logger)
		defer wallets.Close()
		job := service.NewWalletSync(wallets, store, store, a.Config.Wallets.Addresses, a.Logger)
		return job.Sync(ctx, time.Now().UTC())
	})
}
