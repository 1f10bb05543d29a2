// Package cmd implements the manifestd CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"manifestd/internal/logger"
)

var (
	cfgFile  string
	logLevel string

	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "manifestd",
	Short: "Fetch and watch DASH/HLS manifests",
	Long: `manifestd parses a DASH MPD or HLS master playlist into a single
presentation model and prints its resolved segment timeline.

It supports one-shot inspection of a static (VOD) manifest and continuous
watching of a live presentation as the parser's own update scheduler
refreshes it.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		log = logger.NewLogger(logLevel)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./manifestd.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
