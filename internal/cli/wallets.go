package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	walletsAddress string
	walletsLimit   int
)

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "Snapshot and inspect on-chain wallet balances",
}

var walletsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Take one balance snapshot of every configured wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SyncWallets(cmd.Context())
	},
}

var walletsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display stored wallet snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if walletsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().ShowWallets(cmd.Context(), walletsAddress, walletsLimit)
	},
}

func init() {
	walletsShowCmd.Flags().StringVar(&walletsAddress, "address", "", "Only show this address")
	walletsShowCmd.Flags().IntVar(&walletsLimit, "limit", 5, "Snapshots per address")

	walletsCmd.AddCommand(walletsSyncCmd)
	walletsCmd.AddCommand(walletsShowCmd)
}
