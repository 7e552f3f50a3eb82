package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/engine"
	"github.com/openclaw/openclaw-memory/internal/primer"
	"github.com/openclaw/openclaw-memory/internal/retrieve"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.New()
	cfg.Embedding.Model = "hash-v1"
	cfg.Embedding.Dimension = 384
	cfg.Privacy.Patterns = config.DefaultPrivacyPatterns

	eng, err := engine.New(context.Background(), cfg, engine.Options{
		ProjectRoot: t.TempDir(),
		GlobalDir:   t.TempDir(),
	})
	require.NoError(t, err)
	eng.Now = func() time.Time { return time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(eng.Close)
	return NewServer(eng, nil)
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleLog_SavedReply(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleLog(context.Background(), nil,
		LogInput{Content: "User prefers tabs over spaces for indentation"})
	require.NoError(t, err)
	assert.Equal(t, "Memory saved to user/preferences.md (type: preference)", textOf(t, res))
}

func TestHandleLog_ReinforcedReply(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	content := "User prefers tabs over spaces for indentation"

	_, _, err := s.handleLog(ctx, nil, LogInput{Content: content})
	require.NoError(t, err)
	res, _, err := s.handleLog(ctx, nil, LogInput{Content: content})
	require.NoError(t, err)

	reply := textOf(t, res)
	assert.True(t, strings.HasPrefix(reply, "Existing memory reinforced (score="), reply)
	assert.Contains(t, reply, "in user/preferences.md")
}

func TestHandleLog_RejectedReply(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleLog(context.Background(), nil, LogInput{Content: "too short"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(textOf(t, res), "Rejected: "))
}

func TestHandleSearch_NoResults(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "nothing indexed yet"})
	require.NoError(t, err)
	assert.Equal(t, "No matching memories found.", textOf(t, res))
}

func TestHandleSearch_DetailAndCompact(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, _, err := s.handleLog(ctx, nil,
		LogInput{Content: "decided to adopt sqlite for the local index"})
	require.NoError(t, err)

	res, _, err := s.handleSearch(ctx, nil, SearchInput{Query: "sqlite index", Detail: true})
	require.NoError(t, err)
	detail := textOf(t, res)
	assert.Contains(t, detail, "[salience: ")
	assert.Contains(t, detail, "| agent/decisions.md]")
	assert.Contains(t, detail, "[total tokens: ")

	res, _, err = s.handleSearch(ctx, nil, SearchInput{Query: "sqlite index"})
	require.NoError(t, err)
	compact := textOf(t, res)
	assert.Contains(t, compact, "| # | Salience | Source | Preview | Tokens |")
	assert.Contains(t, compact, "`agent/decisions.md`")
}

func TestHandleSessionEndAndUpdateTasks(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, _, err := s.handleSessionEnd(ctx, nil, primer.SessionSummary{
		Completed: primer.Items{"wired the tool surface"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"Session summary written to 2026-08-25.md. PRIMER.md and TASKS.md updated.",
		textOf(t, res))

	res, _, err = s.handleUpdateTasks(ctx, nil, TasksInput{Tasks: []primer.Task{
		{Title: "ship it", Status: "pending"},
		{Title: "test it", Status: "done"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "TASKS.md updated with 2 tasks. PRIMER.md refreshed.", textOf(t, res))
}

func TestHandleRead(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, _, err := s.handleLog(ctx, nil,
		LogInput{Content: "User prefers tabs over spaces for indentation"})
	require.NoError(t, err)

	res, _, err := s.handleRead(ctx, nil, ReadInput{Path: "user/preferences.md"})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), "- User prefers tabs over spaces for indentation")

	_, _, err = s.handleRead(ctx, nil, ReadInput{Path: "user/missing.md"})
	assert.Error(t, err)
}

func TestFormatDetail(t *testing.T) {
	resp := &retrieve.Response{
		Results: []retrieve.Result{
			{URI: "user/preferences.md", Content: "- likes tabs", Salience: 0.84, Reinforcement: 2, Tokens: 4},
			{URI: "agent/decisions.md", Content: "- chose sqlite", Salience: 0.61, Tokens: 4},
		},
		TotalTokens:     8,
		BudgetRemaining: 1492,
	}
	out := formatDetail(resp)
	assert.Contains(t, out, "[salience: 0.84 | reinforcement: 2 | user/preferences.md]\n- likes tabs")
	assert.Contains(t, out, "\n\n---\n\n")
	assert.True(t, strings.HasSuffix(out, "[total tokens: 8 | budget remaining: 1492]"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "likes tabs", preview("- likes tabs\n- more"))
	assert.Equal(t, "first bullet", preview("---\ntype: preference\n---\n- first bullet\n"))
	long := strings.Repeat("a", 80)
	assert.Equal(t, strings.Repeat("a", 60)+"…", preview(long))
	assert.Equal(t, "has \\| pipe", preview("has | pipe"))
}
