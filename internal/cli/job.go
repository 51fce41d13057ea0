package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"etfwatch/internal/jobs"
)

var jobNames = []string{jobs.NameNewStockInfo, jobs.NameNewListings, jobs.NameArbitrageScan, jobs.NameCleanup}

var jobCmd = &cobra.Command{
	Use:       "job <name>",
	Short:     "Run one job and exit",
	Long:      "Run one job and exit. Known jobs: " + strings.Join(jobNames, ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: jobNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := getApp().RunJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job=%s status=%s run_id=%s", res.Job, res.Status, res.RunID)
		if res.Reason != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " reason=%q", res.Reason)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}
