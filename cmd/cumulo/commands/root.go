// Package commands implements the cumulo CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	statePath  string
	logLevel   string
	logFormat  string
	jsonOutput bool
	traceRuns  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cumulo",
		Short: "Cumulo - Stack Orchestration Engine",
		Long: `Cumulo orchestrates declarative stacks of cloud resources through their
lifecycle: create, update, delete, suspend, resume, check, and snapshot.

Features:
  - Dependency-ordered execution over a validated acyclic graph
  - Cooperative task scheduling (single dispatch loop, no thread-per-resource)
  - In-place vs replacement updates driven by per-type policy tables
  - Automatic rollback on create and update failures
  - Hook pause points with operator signaling
  - Durable state and event timeline in SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "cumulo.db", "state database path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&traceRuns, "trace", false, "emit OpenTelemetry spans to stdout")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCreateCommand())
	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newSuspendCommand())
	rootCmd.AddCommand(newResumeCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newSnapshotCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newEventsCommand())

	return rootCmd
}
