package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "mesflow",
	Short:   "Extract production records from the MES API",
	Version: version,
	Long: `mesflow pulls manufacturing-execution production records from the
MES API, reconciles metadata across endpoints, and writes one merged
table per lot for downstream loading.

Bulk mode scans an id range and resumes from its checkpoint; incremental
mode processes one 6-hour discovery window per invocation and is meant
to run on a schedule.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func main() {
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(incrementalCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("MESFLOW_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("mesflow version %s\n", version))
}
