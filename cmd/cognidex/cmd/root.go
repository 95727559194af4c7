// Package cmd provides the CLI commands for cognidex.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/logging"
	"github.com/cognidex/cognidex/pkg/version"
)

var (
	cfgPath        string
	plainOutput    bool
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the cognidex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cognidex",
		Short: "Multi-tenant RAG ingestion and retrieval engine",
		Long: `Cognidex ingests documents into per-tenant knowledge bases and
answers questions over them.

Content is chunked, embedded and stored in a per-tenant vector index
backed by a SQLite metadata store. Queries retrieve the most relevant
chunks, weighted by freshness, and compose an answer from them.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("cognidex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to cognidex.yaml (default: built-in defaults)")
	cmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable styled terminal output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = startDebugLogging
	cmd.PersistentPostRunE = stopDebugLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newDeprecateCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startDebugLogging switches the process logger to debug level when --debug
// is set. Normal-level logging is set up per command by openApp, which knows
// the configured level.
func startDebugLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", "log_file", logging.DefaultLogPath())
	return nil
}

func stopDebugLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}
