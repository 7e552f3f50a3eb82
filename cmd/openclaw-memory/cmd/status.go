package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-scope index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, cfg, err := buildEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			stats, err := eng.Stats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "embedding provider: %s (%s, %d dims)\n\n",
				cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimension)

			roots := map[string]string{
				"global":  eng.GlobalRoot(),
				"project": eng.ProjectRoot(),
			}
			for _, scope := range []string{"global", "project"} {
				s := stats[scope]
				fmt.Fprintf(out, "%s (%s)\n", scope, roots[scope])
				fmt.Fprintf(out, "  files:  %d\n", s.Files)
				fmt.Fprintf(out, "  chunks: %d (%d tokens)\n", s.Chunks, s.TotalTokens)

				types := make([]string, 0, len(s.ByType))
				for k := range s.ByType {
					types = append(types, k)
				}
				sort.Strings(types)
				for _, k := range types {
					ts := s.ByType[k]
					fmt.Fprintf(out, "    %s: %d chunks, %d tokens\n", k, ts.Chunks, ts.Tokens)
				}
			}
			return nil
		},
	}
}
