package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "checkout-agent",
	Short: "Detects checkout pages in a live browser and reports them",
	Long: `checkout-agent watches a Chrome instance over the DevTools protocol,
classifies pages that look like checkout or payment flows, shows an on-page
acknowledgement, and delivers each detection once to a collector endpoint.

It also bundles the reference collector that journals detections to SQLite.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
