package main

import (
	"os"

	"github.com/spf13/cobra"

	"impactmap/internal/logging"
	"impactmap/internal/version"
)

var (
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "impactmap",
	Short: "impactmap - cross-service impact analysis",
	Long: `impactmap performs static cross-service impact analysis: given unified-diff
patches against a multi-project workspace, it computes the transitive blast
radius of the changes across method calls, HTTP endpoints, Feign clients,
Kafka topics, database tables, and Redis key prefixes.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("impactmap version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info",
		"Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "human",
		"Log format: human or json")
}

// newLogger builds the logger from the persistent flags. Logs go to stderr;
// stdout carries the graph output.
func newLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(logFormatFlag),
		Level:  logging.LogLevel(logLevelFlag),
		Output: os.Stderr,
	})
}
