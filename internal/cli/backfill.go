package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crypto-alerts/internal/app"
)

var (
	backfillFrom     string
	backfillTo       string
	backfillSymbols  []string
	backfillInterval string
	backfillDryRun   bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Load historical prices from CoinPaprika",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" {
			return fmt.Errorf("--from must be provided")
		}

		from, err := time.Parse(time.RFC3339, backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to := time.Now().UTC()
		if backfillTo != "" {
			to, err = time.Parse(time.RFC3339, backfillTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		return getApp().Backfill(cmd.Context(), app.BackfillOptions{
			Symbols:  splitArgs(backfillSymbols),
			From:     from,
			To:       to,
			Interval: backfillInterval,
			DryRun:   backfillDryRun,
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End timestamp (RFC3339, defaults to now)")
	backfillCmd.Flags().StringSliceVar(&backfillSymbols, "symbols", nil, "Symbols to backfill (defaults to tracked symbols)")
	backfillCmd.Flags().StringVar(&backfillInterval, "interval", "1h", "History granularity: 5m, 15m, 30m, 1h, 6h, 12h, 24h")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Fetch without writing to storage")
}
