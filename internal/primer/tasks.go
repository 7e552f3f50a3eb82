package primer

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
)

// Task is one entry of the task list.
type Task struct {
	Title        string   `json:"title"`
	Status       string   `json:"status"` // done | pending | in_progress
	Progress     string   `json:"progress,omitempty"`
	NextStep     string   `json:"next_step,omitempty"`
	RelatedFiles []string `json:"related_files,omitempty"`
}

// WriteTasks rewrites TASKS.md from the given task list.
func WriteTasks(projectRoot string, tasks []Task, now time.Time) (string, error) {
	var sb strings.Builder
	for _, task := range tasks {
		checkbox := "[ ]"
		if task.Status == "done" {
			checkbox = "[x]"
		}
		title := task.Title
		if title == "" {
			title = "Untitled"
		}
		sb.WriteString("- " + checkbox + " " + title + "\n")

		if task.Progress != "" {
			sb.WriteString("  - 进展：" + task.Progress + "\n")
		}
		if task.NextStep != "" {
			sb.WriteString("  - 下一步：" + task.NextStep + "\n")
		}
		if len(task.RelatedFiles) > 0 {
			sb.WriteString("  - 相关文件：" + strings.Join(task.RelatedFiles, ", ") + "\n")
		}
	}

	fm, err := chunk.RenderFrontmatter(chunk.Meta{Type: "tasks", Updated: now.Format("2006-01-02")})
	if err != nil {
		return "", memerr.StorageError("failed to render frontmatter", err)
	}
	if err := os.MkdirAll(projectRoot, 0o755); err != nil {
		return "", memerr.StorageError("failed to create project scope", err)
	}
	path := filepath.Join(projectRoot, config.TasksFileName)
	if err := os.WriteFile(path, []byte(fm+sb.String()), 0o644); err != nil {
		return "", memerr.StorageError("failed to write tasks", err)
	}
	return path, nil
}
