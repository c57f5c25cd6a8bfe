package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/alerting"
	"crypto-alerts/internal/config"
	"crypto-alerts/internal/fetcher"
	"crypto-alerts/internal/format"
	"crypto-alerts/internal/market"
	"crypto-alerts/internal/service"
	"crypto-alerts/internal/storage"
)

// SimulateOptions describe a replay of one alert against a price path.
type SimulateOptions struct {
	Alert  alert.CreateParams
	Start  map[string]float64
	Steps  []map[string]float64
	Notify bool
}

// SimulateAlert replays a price path through the poller against a throwaway
// database. Each trigger is printed; with Notify it is also delivered
// through the configured channels.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if len(opts.Start) == 0 {
		return errors.New("starting prices are required")
	}
	if len(opts.Steps) == 0 {
		return errors.New("at least one price step is required")
	}

	dir, err := os.MkdirTemp("", "cryptoalerts-sim-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	cfg := *a.Config
	cfg.Database = config.DatabaseConfig{Driver: storage.DriverSQLite, Path: filepath.Join(dir, "simulate.db")}
	cfg.Alerting.Enabled = true
	cfg.Alerting.Cooldown = 0
	cfg.Poller.AdvisoryLockKey = 0
	cfg.Poller.TrackedSymbols = nil

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := a.newRegistry(store, a.Config.IDs.CLINode)
	if err != nil {
		return err
	}

	step := 0
	printer := alerting.NotifierFunc(func(_ context.Context, note alerting.Notification) error {
		fmt.Fprintf(a.Out, "step %d: TRIGGERED %s\n", step, note.Message)
		return nil
	})
	var notifier alerting.Notifier = printer
	if opts.Notify {
		live, closeLive, err := a.newNotifier(store, alerting.Channel{Name: "simulate", Notifier: printer})
		if err != nil {
			return err
		}
		defer closeLive()
		notifier = live
	}

	source := fetcher.NewStatic(opts.Start)
	svc := service.New(&cfg, source, store, registry, notifier, a.Logger)

	if err := store.Record(ctx, market.Observations(quotes(opts.Start), time.Now().UTC())); err != nil {
		return err
	}
	if opts.Alert.Owner == "" {
		opts.Alert.Owner = "simulate"
	}
	def, err := registry.Create(ctx, opts.Alert)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "simulating: %s\n", alert.Describe(def))

	for i, prices := range opts.Steps {
		step = i + 1
		for symbol, price := range prices {
			source.Set(symbol, price)
		}
		if err := svc.PriceTick(ctx, time.Now().UTC()); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		current, err := registry.Get(ctx, def.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "step %d: %s baseline %s\n", step, describePrices(prices), describePrices(current.LastKnownPrices))
	}
	return nil
}

func quotes(prices map[string]float64) map[string]market.Quote {
	out := make(map[string]market.Quote, len(prices))
	for symbol, price := range prices {
		symbol = market.NormalizeSymbol(symbol)
		out[symbol] = market.Quote{Symbol: symbol, PriceUSD: price}
	}
	return out
}

func describePrices(prices map[string]float64) string {
	if len(prices) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(prices))
	for _, symbol := range market.SortedKeys(prices) {
		parts = append(parts, symbol+"="+format.Price(prices[symbol]))
	}
	return strings.Join(parts, ", ")
}
