package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/app"
	"crypto-alerts/internal/market"
)

var (
	simulateKind      string
	simulateCondition string
	simulateValue     float64
	simulateSymbols   []string
	simulateStart     string
	simulateSteps     []string
	simulateNotify    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Replay a price path against one alert without touching the real database",
	Example: `  cryptoalerts simulate-alert --kind percent --condition below --value 5 --symbols BTC \
    --start BTC=60000 --step BTC=58000 --step BTC=56500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := alert.ParseKind(simulateKind)
		if err != nil {
			return err
		}
		cond, err := alert.ParseCondition(simulateCondition)
		if err != nil {
			return err
		}
		start, err := parsePrices(simulateStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		steps := make([]map[string]float64, 0, len(simulateSteps))
		for _, raw := range simulateSteps {
			step, err := parsePrices(raw)
			if err != nil {
				return fmt.Errorf("invalid --step %q: %w", raw, err)
			}
			steps = append(steps, step)
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Alert: alert.CreateParams{
				Symbols:   splitArgs(simulateSymbols),
				Kind:      kind,
				Condition: cond,
				Value:     simulateValue,
			},
			Start:  start,
			Steps:  steps,
			Notify: simulateNotify,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateKind, "kind", "threshold", "threshold, percent or multi")
	simulateCmd.Flags().StringVar(&simulateCondition, "condition", "above", "above or below")
	simulateCmd.Flags().Float64Var(&simulateValue, "value", 0, "USD price for threshold alerts, percent otherwise")
	simulateCmd.Flags().StringSliceVar(&simulateSymbols, "symbols", nil, "Symbols the alert watches")
	simulateCmd.Flags().StringVar(&simulateStart, "start", "", "Starting prices, e.g. BTC=60000,ETH=3000")
	simulateCmd.Flags().StringArrayVar(&simulateSteps, "step", nil, "Prices for one poll, repeatable")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "Deliver triggers through the configured channels")
}

// parsePrices reads SYM=price pairs separated by commas.
func parsePrices(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		symbol, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected SYM=price, got %q", pair)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid price for %s: %q", symbol, value)
		}
		out[market.NormalizeSymbol(symbol)] = price
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no prices given")
	}
	return out, nil
}
