package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild both scope indexes from the Markdown files",
		Long: `Walk every memory file in the global and project scopes and rebuild
the derived index. Safe to run any time; the Markdown files are the
source of truth.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.IndexAll(ctx); err != nil {
				return err
			}

			stats, err := eng.Stats(ctx)
			if err != nil {
				return err
			}
			for _, scope := range []string{"global", "project"} {
				s := stats[scope]
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks across %d files\n",
					scope, s.Chunks, s.Files)
			}
			return nil
		},
	}
}
