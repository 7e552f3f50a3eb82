// Package primer renders the derived files: PRIMER.md for cold-start
// context, session blocks in the daily journal, and TASKS.md. Everything is
// template assembly over the Markdown memory files, no model calls.
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

const (
	recentDays   = 3
	maxItems     = 5
	maxRecent    = 10
	emptyRecord  = "（暂无记录）"
	emptySection = "（暂无）"
)

// Builder assembles PRIMER.md from the two scope roots.
type Builder struct {
	GlobalRoot  string
	ProjectRoot string
	Project     config.ProjectConfig
	Now         func() time.Time
}

// NewBuilder creates a primer builder over the scope roots.
func NewBuilder(globalRoot, projectRoot string, project config.ProjectConfig) *Builder {
	return &Builder{
		GlobalRoot:  globalRoot,
		ProjectRoot: projectRoot,
		Project:     project,
		Now:         time.Now,
	}
}

// Build renders the primer content.
func (b *Builder) Build() string {
	var sb strings.Builder

	writeSection(&sb, "## 指令", bulletize(
		extractItems(filepath.Join(b.GlobalRoot, "user", "instructions.md"), maxItems)))
	writeSection(&sb, "## 用户身份", bulletize(
		extractItems(filepath.Join(b.GlobalRoot, "user", "entities.md"), maxItems)))
	writeSection(&sb, "## 项目概况", b.projectInfo())
	writeSection(&sb, "## 关键偏好", bulletize(
		extractItems(filepath.Join(b.GlobalRoot, "user", "preferences.md"), maxItems)))
	writeSection(&sb, "## 近期上下文（最近 3 天）", bulletize(
		recentCompleted(filepath.Join(b.ProjectRoot, "journal"), b.Now(), recentDays)))

	sb.WriteString("## 进行中任务\n")
	sb.WriteString(b.tasksBody())
	sb.WriteString("\n")
	return sb.String()
}

// Write renders the primer and writes PRIMER.md into the project scope.
func (b *Builder) Write() (string, error) {
	path := filepath.Join(b.ProjectRoot, config.PrimerFileName)
	if err := os.MkdirAll(b.ProjectRoot, 0o755); err != nil {
		return "", memerr.StorageError("failed to create project scope", err)
	}
	if err := os.WriteFile(path, []byte(b.Build()), 0o644); err != nil {
		return "", memerr.StorageError("failed to write primer", err)
	}
	return path, nil
}

func (b *Builder) projectInfo() string {
	if b.Project.Name == "" {
		return emptyRecord
	}
	info := "- " + b.Project.Name
	if b.Project.Description != "" {
		info += " | " + b.Project.Description
	}
	return info
}

func (b *Builder) tasksBody() string {
	data, err := os.ReadFile(filepath.Join(b.ProjectRoot, config.TasksFileName))
	if err != nil {
		return emptySection
	}
	_, body, _ := chunk.ParseFrontmatter(string(data))
	body = strings.TrimSpace(body)
	if body == "" {
		return emptySection
	}
	return body
}

func writeSection(sb *strings.Builder, heading, body string) {
	sb.WriteString(heading)
	sb.WriteString("\n")
	sb.WriteString(body)
	sb.WriteString("\n\n")
}

func bulletize(items []string) string {
	if len(items) == 0 {
		return emptyRecord
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

// extractItems returns the last max bullet items of a memory file.
func extractItems(path string, max int) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	_, body, _ := chunk.ParseFrontmatter(string(data))

	var items []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") {
			items = append(items, strings.TrimSpace(trimmed[2:]))
		}
	}
	if len(items) > max {
		items = items[len(items)-max:]
	}
	return items
}

// recentCompleted collects "completed" bullets from the last few journal
// days, each prefixed with its date and session heading.
func recentCompleted(journalDir string, now time.Time, days int) []string {
	var entries []string
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		data, err := os.ReadFile(filepath.Join(journalDir, day+".md"))
		if err != nil {
			continue
		}

		inCompleted := false
		session := ""
		for _, line := range strings.Split(string(data), "\n") {
			stripped := strings.TrimSpace(line)
			lower := strings.ToLower(stripped)

			switch {
			case strings.HasPrefix(lower, "## session"):
				session = strings.TrimSpace(strings.TrimPrefix(stripped, "## "))
				inCompleted = false
			case strings.HasPrefix(stripped, "### 完成了什么") || strings.HasPrefix(lower, "### completed"):
				inCompleted = true
			case strings.HasPrefix(stripped, "###"):
				inCompleted = false
			case inCompleted && strings.HasPrefix(stripped, "- "):
				prefix := day
				if session != "" {
					prefix += " " + session
				}
				entries = append(entries, prefix+"："+stripped[2:])
			}
		}
	}
	if len(entries) > maxRecent {
		entries = entries[:maxRecent]
	}
	return entries
}
