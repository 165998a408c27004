// Package cmd provides the sage CLI.
//
// Commands:
//   - serve: HTTP API server for conversational turns
//   - index: ingest local documents into the knowledge base
//   - token: mint a signed identity token for the HTTP API
//   - version: version information
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagehq/sage/internal/config"
	"github.com/sagehq/sage/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "sage",
	Short: "sage - a retrieval-grounded study assistant",
	Long: `sage answers questions from an indexed knowledge base over HTTP.

Run "sage serve" to start the API server, "sage index <dir>" to ingest
documents, and "sage token <user>" to mint an access token.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and installs the configured logger as the
// process default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}

	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})
	slog.SetDefault(logger)
	return cfg, logger, nil
}
