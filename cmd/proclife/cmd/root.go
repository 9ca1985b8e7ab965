//go:build linux

// Package cmd provides the CLI commands for proclife
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jrepp/proclife/internal/config"
	"github.com/jrepp/proclife/internal/observability"
	"github.com/jrepp/proclife/pkg/process"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	configPath string
	logLevel   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "proclife",
	Short: "proclife - process lifecycle scenarios",
	Long: `proclife creates child processes, replaces their program image, collects
their exit status and passes messages between them over pipes.

Each scenario is a small program showing how these steps compose, and
which of them the scheduler is free to reorder.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}

		logger, err = observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("configure logging: %w", err)
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command. Errors from the process layer exit with
// their distinct status; anything else exits 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(process.ExitStatusFor(err))
	}
}

func init() {
	rootCmd.Version = "0.1.0"

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default: proclife.yaml in $HOME/.proclife or the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level: debug, info, warn or error")
}
