// Package main is the entry point for the telemetry gateway CLI.
//
// Usage:
//
//	gateway serve                      # run the sampling pipeline + API
//	gateway replay --session <id>      # replay a recorded session
//	gateway prune --older-than 720h    # delete old readings
//	gateway rules list                 # inspect alert rules
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Vehicle telemetry gateway",
	Long: `ST Telemetry Gateway — samples OBD-II PIDs, stores them per session,
evaluates threshold alert rules, and streams enriched readings to
websocket subscribers.

Configuration is read from environment variables (and an optional .env
file). See internal/config for the full list; the important ones:

  STORE_BACKEND    postgres | memory        (default postgres)
  REDIS_ADDR       host:port, empty = off   (default off)
  SAMPLE_RATE_HZ   sampling rate            (default 10)
  HTTP_PORT        API/websocket port       (default 8000)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// no .env file just means system environment only
		_ = godotenv.Load()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gateway %s (%s)\n", version, commit)
	},
}

// newLogger creates the JSON logger handed to every component.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
