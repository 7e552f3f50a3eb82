package mcp

import (
	"fmt"
	"strings"

	"github.com/openclaw/openclaw-memory/internal/retrieve"
)

const previewMaxRunes = 60

// formatDetail renders full result content with salience headers and a
// budget trailer.
func formatDetail(resp *retrieve.Response) string {
	parts := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		header := fmt.Sprintf("[salience: %.2f | reinforcement: %d | %s]",
			r.Salience, r.Reinforcement, r.URI)
		parts = append(parts, header+"\n"+r.Content)
	}

	footer := fmt.Sprintf("\n[total tokens: %d | budget remaining: %d]",
		resp.TotalTokens, resp.BudgetRemaining)
	if resp.FastPath {
		footer += " (fast path)"
	}
	return strings.Join(parts, "\n\n---\n\n") + footer
}

// formatCompact renders one table row per result so the agent can decide
// what to read in full.
func formatCompact(resp *retrieve.Response) string {
	var sb strings.Builder
	sb.WriteString("| # | Salience | Source | Preview | Tokens |\n")
	sb.WriteString("|---|----------|--------|---------|--------|\n")
	for i, r := range resp.Results {
		fmt.Fprintf(&sb, "| %d | %.2f | `%s` | %s | ~%d |\n",
			i+1, r.Salience, r.URI, preview(r.Content), r.Tokens)
	}
	fmt.Fprintf(&sb, "\n**%d results** (total ~%d tokens, budget remaining: %d)\n\n",
		len(resp.Results), resp.TotalTokens, resp.BudgetRemaining)
	sb.WriteString("_Tip: set detail=true for full content, or memory_read(path) for a whole file._")
	return sb.String()
}

// preview extracts the first meaningful line, trimmed to table width.
// Frontmatter is skipped since fast-path results carry whole files.
func preview(content string) string {
	inFrontmatter := false
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" {
			inFrontmatter = i == 0
			continue
		}
		if inFrontmatter {
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "#- ")
		if trimmed == "" {
			continue
		}
		trimmed = strings.ReplaceAll(trimmed, "|", "\\|")
		runes := []rune(trimmed)
		if len(runes) > previewMaxRunes {
			return string(runes[:previewMaxRunes]) + "…"
		}
		return trimmed
	}
	return ""
}
