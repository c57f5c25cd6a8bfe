package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	notificationsOwner string
	notificationsLimit int
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Display delivered notifications of an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if notificationsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().ShowNotifications(cmd.Context(), notificationsOwner, notificationsLimit)
	},
}

func init() {
	notificationsCmd.Flags().StringVar(&notificationsOwner, "owner", "cli", "Owner whose notifications to show")
	notificationsCmd.Flags().IntVar(&notificationsLimit, "limit", 20, "Number of notifications to display")
}
