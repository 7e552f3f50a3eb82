package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/retrieve"
)

func newSearchCmd() *cobra.Command {
	var scope string
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories from the command line",
		Long: `Search memories with the same pipeline the MCP tools use.

Examples:
  openclaw-memory search "tab width preference"
  openclaw-memory search "最近做了什么"
  openclaw-memory search "auth decisions" --scope agent`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			eng, _, err := buildEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			resp, err := eng.Search(ctx, query, scope, maxTokens)
			if err != nil {
				return err
			}
			printSearchResults(cmd, resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&scope, "scope", "s", "", "Restrict to one scope: global, project, user, agent, journal")
	cmd.Flags().IntVarP(&maxTokens, "max-tokens", "m", 0, "Token budget for results (0 = default)")
	return cmd
}

func printSearchResults(cmd *cobra.Command, resp *retrieve.Response) {
	out := cmd.OutOrStdout()
	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No matching memories found.")
		return
	}

	// Colorize headers only when writing to a terminal.
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	for i, r := range resp.Results {
		if i > 0 {
			fmt.Fprintln(out)
		}
		header := fmt.Sprintf("[salience: %.2f | reinforcement: %d | %s]",
			r.Salience, r.Reinforcement, r.URI)
		if color {
			header = "\x1b[36m" + header + "\x1b[0m"
		}
		fmt.Fprintln(out, header)
		fmt.Fprintln(out, strings.TrimRight(r.Content, "\n"))
	}
	fmt.Fprintf(out, "\n[total tokens: %d | budget remaining: %d]\n",
		resp.TotalTokens, resp.BudgetRemaining)
}
