package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crypto-alerts/internal/alert"
)

var (
	alertOwner      string
	alertKind       string
	alertCondition  string
	alertValue      float64
	alertSymbols    []string
	alertActiveOnly bool
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage price alerts",
}

var alertCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := alert.ParseKind(alertKind)
		if err != nil {
			return err
		}
		cond, err := alert.ParseCondition(alertCondition)
		if err != nil {
			return err
		}
		params := alert.CreateParams{
			Owner:     alertOwner,
			Symbols:   splitArgs(alertSymbols),
			Kind:      kind,
			Condition: cond,
			Value:     alertValue,
		}
		return getApp().AlertCommand(cmd.Context(), func(ctx context.Context, actions *alert.Actions) alert.ActionResult {
			return actions.Create(ctx, params)
		})
	},
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the alerts of an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter alert.ListFilter
		if alertActiveOnly {
			active := true
			filter.Active = &active
		}
		return getApp().AlertCommand(cmd.Context(), func(ctx context.Context, actions *alert.Actions) alert.ActionResult {
			return actions.List(ctx, alertOwner, filter)
		})
	},
}

var alertDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AlertCommand(cmd.Context(), func(ctx context.Context, actions *alert.Actions) alert.ActionResult {
			return actions.Delete(ctx, args[0])
		})
	},
}

var alertUpdateCmd = &cobra.Command{
	Use:   "update ID VALUE",
	Short: "Change the trigger value of an alert",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(strings.TrimSuffix(args[1], "%"), 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[1])
		}
		return getApp().AlertCommand(cmd.Context(), func(ctx context.Context, actions *alert.Actions) alert.ActionResult {
			return actions.Update(ctx, args[0], alert.Patch{Value: &value})
		})
	},
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getApp().AlertCommand(cmd.Context(), func(ctx context.Context, actions *alert.Actions) alert.ActionResult {
				return actions.Update(ctx, args[0], alert.Patch{Active: &active})
			})
		},
	}
}

func init() {
	alertCmd.PersistentFlags().StringVar(&alertOwner, "owner", "cli", "Alert owner (a Telegram chat id for bot delivery)")

	alertCreateCmd.Flags().StringVar(&alertKind, "kind", "threshold", "threshold, percent or multi")
	alertCreateCmd.Flags().StringVar(&alertCondition, "condition", "above", "above or below")
	alertCreateCmd.Flags().Float64Var(&alertValue, "value", 0, "USD price for threshold alerts, percent otherwise")
	alertCreateCmd.Flags().StringSliceVar(&alertSymbols, "symbols", nil, "Symbols to watch, e.g. BTC or BTC,ETH")
	_ = alertCreateCmd.MarkFlagRequired("symbols")
	_ = alertCreateCmd.MarkFlagRequired("value")

	alertListCmd.Flags().BoolVar(&alertActiveOnly, "active", false, "Only list active alerts")

	alertCmd.AddCommand(alertCreateCmd)
	alertCmd.AddCommand(alertListCmd)
	alertCmd.AddCommand(alertDeleteCmd)
	alertCmd.AddCommand(alertUpdateCmd)
	alertCmd.AddCommand(setActiveCmd("pause", "Stop evaluating an alert", false))
	alertCmd.AddCommand(setActiveCmd("resume", "Resume evaluating an alert", true))
}
