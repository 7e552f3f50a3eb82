package primer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
)

var primerNow = time.Date(2026, 8, 25, 16, 45, 0, 0, time.UTC)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder(t.TempDir(), t.TempDir(), config.ProjectConfig{})
	b.Now = func() time.Time { return primerNow }
	return b
}

func TestBuild_EmptyScopesUsePlaceholders(t *testing.T) {
	content := newBuilder(t).Build()

	assert.Contains(t, content, "## 用户身份\n（暂无记录）")
	assert.Contains(t, content, "## 项目概况\n（暂无记录）")
	assert.Contains(t, content, "## 关键偏好\n（暂无记录）")
	assert.Contains(t, content, "## 近期上下文（最近 3 天）\n（暂无记录）")
	assert.Contains(t, content, "## 进行中任务\n（暂无）")
}

func TestBuild_TakesLastFivePreferences(t *testing.T) {
	b := newBuilder(t)
	var bullets []string
	for _, s := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		bullets = append(bullets, "- likes "+s)
	}
	writeFile(t, b.GlobalRoot, "user/preferences.md",
		"---\ntype: preference\n---\n"+strings.Join(bullets, "\n")+"\n")

	content := b.Build()
	assert.NotContains(t, content, "- likes one")
	assert.NotContains(t, content, "- likes two")
	assert.Contains(t, content, "- likes three")
	assert.Contains(t, content, "- likes seven")
}

func TestBuild_ProjectInfoAndTasks(t *testing.T) {
	b := newBuilder(t)
	b.Project = config.ProjectConfig{Name: "payments", Description: "billing service"}
	writeFile(t, b.ProjectRoot, "TASKS.md", "---\ntype: tasks\n---\n- [ ] ship the retriever\n")

	content := b.Build()
	assert.Contains(t, content, "## 项目概况\n- payments | billing service")
	assert.Contains(t, content, "## 进行中任务\n- [ ] ship the retriever")
}

func TestBuild_RecentContextFromJournals(t *testing.T) {
	b := newBuilder(t)
	journal := "---\ntype: event\nsessions: 1\n---\n" +
		"## Session 10:00\n\n" +
		"### 完成了什么\n- fixed the watcher\n- wrote store tests\n\n" +
		"### 下一步\n- wire the mcp server\n"
	writeFile(t, b.ProjectRoot, "journal/2026-08-25.md", journal)
	// Older than the three-day window.
	writeFile(t, b.ProjectRoot, "journal/2026-08-20.md",
		"## Session 09:00\n\n### 完成了什么\n- ancient work\n")

	content := b.Build()
	assert.Contains(t, content, "- 2026-08-25 Session 10:00：fixed the watcher")
	assert.Contains(t, content, "- 2026-08-25 Session 10:00：wrote store tests")
	assert.NotContains(t, content, "ancient work")
	assert.NotContains(t, content, "wire the mcp server")
}

func TestWrite_CreatesPrimerFile(t *testing.T) {
	b := newBuilder(t)
	path, err := b.Write()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.ProjectRoot, "PRIMER.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## 用户身份")
}

func TestWriteSession_CreatesJournalWithFrontmatter(t *testing.T) {
	root := t.TempDir()
	summary := SessionSummary{
		Request:   Items{"add retry logic to the fetcher"},
		Learned:   Items{"the client already retries once"},
		Completed: Items{"added exponential backoff"},
		NextSteps: Items{"tune the cap"},
	}

	name, err := WriteSession(root, summary, primerNow)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-25.md", name)

	data, err := os.ReadFile(filepath.Join(root, "journal", name))
	require.NoError(t, err)
	meta, body, _ := chunk.ParseFrontmatter(string(data))
	assert.Equal(t, "event", meta.Type)
	assert.Equal(t, 1, meta.Sessions)
	assert.Contains(t, body, "## Session 16:45")
	assert.Contains(t, body, "### 请求\nadd retry logic to the fetcher")
	assert.Contains(t, body, "### 学到了什么\n- the client already retries once")
	assert.Contains(t, body, "### 完成了什么\n- added exponential backoff")
	assert.Contains(t, body, "### 下一步\n- tune the cap")
}

func TestWriteSession_AppendsWithSeparator(t *testing.T) {
	root := t.TempDir()
	_, err := WriteSession(root, SessionSummary{Completed: Items{"first block"}}, primerNow)
	require.NoError(t, err)

	later := primerNow.Add(2 * time.Hour)
	_, err = WriteSession(root, SessionSummary{Completed: Items{"second block"}}, later)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "journal", "2026-08-25.md"))
	require.NoError(t, err)
	meta, body, _ := chunk.ParseFrontmatter(string(data))
	assert.Equal(t, 2, meta.Sessions)
	assert.Contains(t, body, "## Session 16:45")
	assert.Contains(t, body, "## Session 18:45")
	assert.Equal(t, 1, strings.Count(body, "\n---\n"))
}

func TestItems_UnmarshalStringOrArray(t *testing.T) {
	var s SessionSummary
	require.NoError(t, json.Unmarshal([]byte(
		`{"request": "one thing", "learned": ["a", "b"], "completed": "", "next_steps": []}`), &s))
	assert.Equal(t, Items{"one thing"}, s.Request)
	assert.Equal(t, Items{"a", "b"}, s.Learned)
	assert.Empty(t, s.Completed)
	assert.Empty(t, s.NextSteps)
}

func TestWriteTasks(t *testing.T) {
	root := t.TempDir()
	tasks := []Task{
		{Title: "ship retriever", Status: "done", Progress: "merged"},
		{Title: "wire watcher", Status: "in_progress", NextStep: "debounce tests",
			RelatedFiles: []string{"watcher.go", "debounce.go"}},
		{Title: "write docs", Status: "pending"},
	}

	path, err := WriteTasks(root, tasks, primerNow)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	meta, body, _ := chunk.ParseFrontmatter(string(data))
	assert.Equal(t, "tasks", meta.Type)
	assert.Equal(t, "2026-08-25", meta.Updated)
	assert.Contains(t, body, "- [x] ship retriever\n  - 进展：merged")
	assert.Contains(t, body, "- [ ] wire watcher\n  - 下一步：debounce tests\n  - 相关文件：watcher.go, debounce.go")
	assert.Contains(t, body, "- [ ] write docs")
}
