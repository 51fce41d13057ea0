package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDirsCmd = &cobra.Command{
	Use:   "init-dirs",
	Short: "Create the data directory layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := getApp().InitDirs()
		if err != nil {
			return err
		}
		for _, d := range dirs {
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return nil
	},
}

var testMessageCmd = &cobra.Command{
	Use:   "test-message",
	Short: "Send a test notification; flags are not touched",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getApp().TestMessage(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "test message sent")
		return nil
	},
}
