package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetAll bool

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Inspect or reset notification flags",
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every notification flag",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListFlags(cmd.Context(), cmd.OutOrStdout())
	},
}

var flagsResetCmd = &cobra.Command{
	Use:   "reset [event...]",
	Short: "Clear flags so the next run notifies again",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := getApp().ResetFlags(cmd.Context(), args, resetAll)
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", e)
		}
		return nil
	},
}

func init() {
	flagsResetCmd.Flags().BoolVar(&resetAll, "all", false, "Reset every event")
	flagsCmd.AddCommand(flagsListCmd)
	flagsCmd.AddCommand(flagsResetCmd)
}
