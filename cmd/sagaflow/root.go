package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sagaflow",
	Short: "sagaflow runs the saga orchestrator reference host",
	Long: `sagaflow hosts a single demo workflow — user creation — that
exercises the saga orchestrator's retries, compensation, and combinators
against a real Postgres table, a downstream HTTP service, and an event bus.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an engine config YAML file (optional)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runDemoCmd)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
