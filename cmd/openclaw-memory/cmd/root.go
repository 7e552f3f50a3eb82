// Package cmd provides the CLI commands for openclaw-memory.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/engine"
	"github.com/openclaw/openclaw-memory/internal/logging"
	"github.com/openclaw/openclaw-memory/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command. Running with no subcommand serves
// MCP over stdio, which is what editor configs invoke.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openclaw-memory",
		Short: "Local memory service for AI coding agents",
		Long: `openclaw-memory persists agent memories as Markdown files and serves
them back as salience-ranked, token-budgeted context over MCP.

Memories live in ~/.openclaw_memory (global) and <project>/.openclaw_memory
(per repository). The files are the source of truth; the index is derived
and can be rebuilt at any time.

Run 'openclaw-memory' with no arguments to serve MCP over stdio.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd.Context(), false)
		},
	}

	cmd.SetVersionTemplate("openclaw-memory version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging to ~/.openclaw_memory/logs/")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		// Logging must never block the service; fall back to stderr.
		fmt.Fprintf(os.Stderr, "warning: file logging unavailable: %v\n", err)
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

// buildEngine assembles an engine for the project containing the working
// directory.
func buildEngine(ctx context.Context, watch bool) (*engine.Engine, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	projectRoot, err := config.FindProjectRoot(cwd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(ctx, cfg, engine.Options{
		ProjectRoot: projectRoot,
		Watch:       watch,
		Logger:      slog.Default(),
	})
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}
