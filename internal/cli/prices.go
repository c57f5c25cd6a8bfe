package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crypto-alerts/internal/app"
	"crypto-alerts/internal/market"
)

var (
	historyWindow time.Duration
	historyLimit  int
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Inspect stored price observations",
}

var pricesShowCmd = &cobra.Command{
	Use:   "show [SYMBOL...]",
	Short: "Display the latest price per symbol (defaults to tracked symbols)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowPrices(cmd.Context(), app.ShowOptions{Symbols: splitArgs(args)})
	},
}

var pricesHistoryCmd = &cobra.Command{
	Use:   "history SYMBOL",
	Short: "Display recent observations of one symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyWindow <= 0 {
			return fmt.Errorf("--window must be greater than zero")
		}
		return getApp().PriceHistory(cmd.Context(), app.HistoryOptions{
			Symbol: args[0],
			Window: historyWindow,
			Limit:  historyLimit,
		})
	},
}

func init() {
	pricesHistoryCmd.Flags().DurationVar(&historyWindow, "window", 24*time.Hour, "How far back to look")
	pricesHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of observations to display (0 for all)")

	pricesCmd.AddCommand(pricesShowCmd)
	pricesCmd.AddCommand(pricesHistoryCmd)
}

func splitArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		out = append(out, market.SplitSymbols(arg)...)
	}
	return out
}
