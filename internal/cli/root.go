package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"etfwatch/internal/app"
	"etfwatch/internal/config"
	"etfwatch/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
	closeLogs = func() {}
)

var rootCmd = &cobra.Command{
	Use:           "etfwatch",
	Short:         "Push ETF and new-share notifications without duplicates",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger, closer := logging.NewLogger(cfg.Logging)
		closeLogs = closer
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLogs()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		closeLogs()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(flagsCmd)
	rootCmd.AddCommand(initDirsCmd)
	rootCmd.AddCommand(testMessageCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
