package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory tools over MCP stdio",
		Long: `Serve the six memory tools over the Model Context Protocol on stdio.

This is what editor and agent configs should invoke. Logs go to
~/.openclaw_memory/logs/ because stdout belongs to the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable the file watcher")
	return cmd
}

func runServe(ctx context.Context, noWatch bool) error {
	eng, _, err := buildEngine(ctx, !noWatch)
	if err != nil {
		return err
	}
	defer eng.Close()

	server := mcp.NewServer(eng, slog.Default())
	return server.Run(ctx)
}
