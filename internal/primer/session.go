package primer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
)

// Items accepts either a JSON string or an array of strings, since agents
// send both shapes.
type Items []string

func (it *Items) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*it = nil
		} else {
			*it = Items{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*it = many
	return nil
}

// SessionSummary is the structured end-of-session report.
type SessionSummary struct {
	Request   Items `json:"request"`
	Learned   Items `json:"learned"`
	Completed Items `json:"completed"`
	NextSteps Items `json:"next_steps"`
}

// WriteSession appends a session block to today's journal file, bumping the
// sessions counter in its frontmatter. Returns the journal file name.
func WriteSession(projectRoot string, summary SessionSummary, now time.Time) (string, error) {
	today := now.Format("2006-01-02")
	name := today + ".md"
	dir := filepath.Join(projectRoot, "journal")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", memerr.StorageError("failed to create journal directory", err)
	}
	path := filepath.Join(dir, name)

	block := renderSessionBlock(summary, now)

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		meta := chunk.Meta{Type: "event", Created: today, Updated: today, Sessions: 1}
		if err := writeJournal(path, meta, strings.TrimSpace(block)+"\n"); err != nil {
			return "", err
		}
	case err != nil:
		return "", memerr.StorageError("failed to read journal", err)
	default:
		meta, body, _ := chunk.ParseFrontmatter(string(data))
		meta.Sessions++
		meta.Updated = today
		body = strings.TrimRight(body, "\n") + "\n\n---\n" + block
		if err := writeJournal(path, meta, body); err != nil {
			return "", err
		}
	}
	return name, nil
}

// renderSessionBlock builds the "## Session HH:MM" block with its four
// subsections. Empty fields are omitted.
func renderSessionBlock(summary SessionSummary, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("\n## Session " + now.Format("15:04") + "\n\n")

	if len(summary.Request) > 0 {
		sb.WriteString("### 请求\n")
		sb.WriteString(strings.Join(summary.Request, "\n"))
		sb.WriteString("\n\n")
	}
	writeItemSection(&sb, "### 学到了什么", summary.Learned)
	writeItemSection(&sb, "### 完成了什么", summary.Completed)
	writeItemSection(&sb, "### 下一步", summary.NextSteps)
	return sb.String()
}

func writeItemSection(sb *strings.Builder, heading string, items Items) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(heading + "\n")
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
	sb.WriteString("\n")
}

func writeJournal(path string, meta chunk.Meta, body string) error {
	fm, err := chunk.RenderFrontmatter(meta)
	if err != nil {
		return memerr.StorageError("failed to render frontmatter", err)
	}
	if err := os.WriteFile(path, []byte(fm+body), 0o644); err != nil {
		return memerr.StorageError("failed to write journal", err)
	}
	return nil
}
