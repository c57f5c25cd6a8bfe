package cli

import (
	"github.com/spf13/cobra"
)

var digestSend bool

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Print the market digest for tracked symbols",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Digest(cmd.Context(), digestSend)
	},
}

func init() {
	digestCmd.Flags().BoolVar(&digestSend, "send", false, "Also deliver the digest through the configured channels")
}
