package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/config"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/primer"
	"github.com/openclaw/openclaw-memory/internal/writer"
)

var engineNow = time.Date(2026, 8, 25, 11, 15, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Embedding.Model = "hash-v1"
	cfg.Embedding.Dimension = 384
	cfg.Privacy.Patterns = config.DefaultPrivacyPatterns
	return cfg
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), testConfig(), Options{
		ProjectRoot: t.TempDir(),
		GlobalDir:   t.TempDir(),
	})
	require.NoError(t, err)
	e.Now = func() time.Time { return engineNow }
	t.Cleanup(e.Close)
	return e
}

func TestEngine_LogThenSearch(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res, err := e.Log(ctx, "decided to adopt sqlite for the local index", "")
	require.NoError(t, err)
	assert.Equal(t, writer.ActionAppended, res.Action)
	assert.Equal(t, "agent/decisions.md", res.URI)

	resp, err := e.Search(ctx, "sqlite local index", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "agent/decisions.md", resp.Results[0].URI)
}

func TestEngine_PrimerReflectsWrites(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Log(ctx, "User prefers table driven tests over ad hoc assertions", "")
	require.NoError(t, err)

	content, err := e.Primer(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "## 关键偏好")
	assert.Contains(t, content, "User prefers table driven tests over ad hoc assertions")

	// The primer file is regenerated alongside the blob.
	data, err := os.ReadFile(filepath.Join(e.ProjectRoot(), "PRIMER.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "## 关键偏好")
}

func TestEngine_SessionEndWritesJournalAndPrimer(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	name, err := e.SessionEnd(ctx, primer.SessionSummary{
		Request:   primer.Items{"wire the session path"},
		Completed: primer.Items{"journal block rendering"},
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-08-25.md", name)

	content, err := e.Read(ctx, "journal/"+name)
	require.NoError(t, err)
	assert.Contains(t, content, "## Session 11:15")

	primerText, err := e.Read(ctx, "PRIMER.md")
	require.NoError(t, err)
	assert.Contains(t, primerText, "2026-08-25 Session 11:15：journal block rendering")

	// The journal is indexed synchronously.
	resp, err := e.Search(ctx, "journal block rendering", "journal", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
}

func TestEngine_SessionEndNextStepsBecomeTasks(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.SessionEnd(ctx, primer.SessionSummary{
		Request:   primer.Items{"finish the watcher"},
		NextSteps: primer.Items{"wire the debouncer", "cover rename events"},
	})
	require.NoError(t, err)

	tasks, err := e.Read(ctx, "TASKS.md")
	require.NoError(t, err)
	assert.Contains(t, tasks, "- [ ] wire the debouncer")
	assert.Contains(t, tasks, "- [ ] cover rename events")

	primerText, err := e.Read(ctx, "PRIMER.md")
	require.NoError(t, err)
	assert.Contains(t, primerText, "- [ ] wire the debouncer")
}

func TestEngine_UpdateTasks(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	err := e.UpdateTasks(ctx, []primer.Task{
		{Title: "finish the retriever", Status: "in_progress", NextStep: "budget tests"},
	})
	require.NoError(t, err)

	tasks, err := e.Read(ctx, "TASKS.md")
	require.NoError(t, err)
	assert.Contains(t, tasks, "- [ ] finish the retriever")

	primerText, err := e.Read(ctx, "PRIMER.md")
	require.NoError(t, err)
	assert.Contains(t, primerText, "- [ ] finish the retriever")
}

func TestEngine_ReadPrefersProjectScope(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(e.GlobalRoot(), "user"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.GlobalRoot(), "user", "notes.md"),
		[]byte("global copy\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(e.ProjectRoot(), "user"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.ProjectRoot(), "user", "notes.md"),
		[]byte("project copy\n"), 0o644))

	content, err := e.Read(ctx, "user/notes.md")
	require.NoError(t, err)
	assert.Equal(t, "project copy\n", content)
}

func TestEngine_ReadMissingAndEscaping(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Read(ctx, "user/nope.md")
	assert.Equal(t, memerr.CodeNotFound, memerr.CodeOf(err))

	_, err = e.Read(ctx, "../outside.md")
	assert.Equal(t, memerr.CodeNotFound, memerr.CodeOf(err))
}

func TestEngine_Stats(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Log(ctx, "User prefers tabs over spaces for indentation", "")
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["global"].Chunks)
	assert.Equal(t, 0, stats["project"].Chunks)
}
