package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/propsignal/crosscheck/internal/config"
)

const (
	appName = "crosscheck"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-source sports data validation service",
		Version: version,
		Long: `crosscheck validates the same player or game statistics as reported by
multiple upstream providers, reconciles conflicting values into a single
consensus record, and serves the result with a traceable confidence score.`,
	}

	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the YAML configuration file")

	// accept --validation_timeout style flags from older deployment scripts
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the validation service and monitor server",
		Long:  "Runs the orchestrator with its HTTP surface: /health, /metrics, /status, /ws, and /api/v1/validate",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides config)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Run one cross-validation and print the report",
		Long:  "Reads per-source records from a JSON file, validates them, and writes the report to stdout",
		RunE:  runValidate,
	}
	validateCmd.Flags().String("kind", "player", "Entity kind (player|game)")
	validateCmd.Flags().Int64("id", 0, "Entity ID")
	validateCmd.Flags().String("input", "", "Path to a JSON file of per-source records (required)")
	_ = validateCmd.MarkFlagRequired("input")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running service's health endpoint",
		RunE:  runHealth,
	}
	healthCmd.Flags().String("addr", "http://localhost:8090", "Base URL of the running service")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
