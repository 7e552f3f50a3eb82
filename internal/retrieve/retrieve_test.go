package retrieve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/config"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/store"
)

var searchCfg = config.SearchConfig{
	DefaultMaxTokens:    1500,
	RecencyHalfLifeDays: 30,
	DefaultTopK:         10,
}

// axisEmbedder maps each known text to a fixed 4-dim vector so similarity
// is fully controlled by the test.
type axisEmbedder struct {
	vecs map[string][]float32
	fail bool
}

func (e *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, memerr.EmbeddingUnavailable("provider down", errors.New("dial refused"))
	}
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (e *axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *axisEmbedder) Dimensions() int                { return 4 }
func (e *axisEmbedder) ModelName() string              { return "axis" }
func (e *axisEmbedder) Available(context.Context) bool { return !e.fail }
func (e *axisEmbedder) Close() error                   { return nil }

func newTestScope(t *testing.T) *Scope {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "index"), 4, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &Scope{Root: root, Store: st}
}

func newRetriever(t *testing.T, emb *axisEmbedder) *Retriever {
	t.Helper()
	r := New(newTestScope(t), newTestScope(t), emb, searchCfg, nil)
	r.Now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return r
}

func writeScopeFile(t *testing.T, scope *Scope, uri, content string) {
	t.Helper()
	path := filepath.Join(scope.Root, filepath.FromSlash(uri))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func seedChunk(t *testing.T, st *store.Store, id, uri, content string, tokens int, vec []float32) {
	t.Helper()
	rec := store.Record{
		ID:          id,
		URI:         uri,
		Content:     content,
		ContentHash: id + "-hash",
		ParentDir:   parentDir(uri),
		Type:        "preference",
		TokenCount:  tokens,
		CreatedAt:   time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.Upsert(context.Background(), rec, vec))
}

func parentDir(uri string) string {
	if i := len(uri) - len(filepath.Base(uri)) - 1; i > 0 {
		return uri[:i]
	}
	return ""
}

func TestSearch_FastPathReturnsWholeFile(t *testing.T) {
	emb := &axisEmbedder{}
	r := newRetriever(t, emb)
	content := "---\ntype: preference\n---\n- likes tabs\n- likes dark themes\n"
	writeScopeFile(t, r.Global, "user/preferences.md", content)

	resp, err := r.Search(context.Background(), "我的偏好是什么", "", 0)
	require.NoError(t, err)
	assert.True(t, resp.FastPath)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "user/preferences.md", resp.Results[0].URI)
	assert.Equal(t, content, resp.Results[0].Content)
	assert.Equal(t, resp.Results[0].Tokens, resp.TotalTokens)
}

func TestSearch_FastPathMissingFileFallsThrough(t *testing.T) {
	r := newRetriever(t, &axisEmbedder{})
	resp, err := r.Search(context.Background(), "what are my preferences", "", 0)
	require.NoError(t, err)
	assert.False(t, resp.FastPath)
	assert.Empty(t, resp.Results)
}

func TestSearch_TimelineReadsJournalNewestFirst(t *testing.T) {
	r := newRetriever(t, &axisEmbedder{})
	writeScopeFile(t, r.Project, "journal/2026-08-23.md", "older entry about the parser\n")
	writeScopeFile(t, r.Project, "journal/2026-08-25.md", "newest entry about the retriever\n")

	resp, err := r.Search(context.Background(), "最近做了什么", "", 0)
	require.NoError(t, err)
	assert.False(t, resp.FastPath)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "journal/2026-08-25.md", resp.Results[0].URI)
	assert.Equal(t, "journal/2026-08-23.md", resp.Results[1].URI)
}

func TestSearch_JournalScopeFilterUsesTimeline(t *testing.T) {
	r := newRetriever(t, &axisEmbedder{})
	writeScopeFile(t, r.Project, "journal/2026-08-25.md", "today's entry\n")

	resp, err := r.Search(context.Background(), "parser refactor", "journal", 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "journal/2026-08-25.md", resp.Results[0].URI)
}

func TestSearch_HybridRanksAndBumpsAccessCounts(t *testing.T) {
	emb := &axisEmbedder{vecs: map[string][]float32{"tab width question": {1, 0, 0, 0}}}
	r := newRetriever(t, emb)
	ctx := context.Background()

	seedChunk(t, r.Global.Store, "c1", "user/a.md", "tab width is four spaces", 10, []float32{1, 0, 0, 0})
	seedChunk(t, r.Global.Store, "c2", "user/b.md", "unrelated note about builds", 10, []float32{0, 1, 0, 0})

	resp, err := r.Search(ctx, "tab width question", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "c1", resp.Results[0].ID)
	assert.False(t, resp.Partial)
	assert.Greater(t, resp.Results[0].Salience, 0.0)

	rec, err := r.Global.Store.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AccessCount)
}

func TestSearch_BudgetStopsAtFirstOverflow(t *testing.T) {
	emb := &axisEmbedder{vecs: map[string][]float32{"q": {1, 0, 0, 0}}}
	r := newRetriever(t, emb)

	for i := 0; i < 10; i++ {
		seedChunk(t, r.Global.Store, fmt.Sprintf("c%02d", i), fmt.Sprintf("user/f%02d.md", i),
			fmt.Sprintf("note number %02d about the query topic", i), 400, []float32{1, 0, 0, 0})
	}

	resp, err := r.Search(context.Background(), "q", "", 1500)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 1200, resp.TotalTokens)
	assert.Equal(t, 300, resp.BudgetRemaining)
}

func TestSearch_EmbedderDownFallsBackToFTS(t *testing.T) {
	emb := &axisEmbedder{fail: true}
	r := newRetriever(t, emb)

	seedChunk(t, r.Global.Store, "c1", "user/a.md", "retriever fallback note", 10, nil)

	resp, err := r.Search(context.Background(), "retriever fallback", "", 0)
	require.NoError(t, err)
	assert.True(t, resp.Partial)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].ID)
}

func TestSearch_ScopeFilterRestrictsResults(t *testing.T) {
	emb := &axisEmbedder{vecs: map[string][]float32{"shared topic": {1, 0, 0, 0}}}
	r := newRetriever(t, emb)

	seedChunk(t, r.Global.Store, "g1", "user/a.md", "shared topic in the global scope", 10, []float32{1, 0, 0, 0})
	seedChunk(t, r.Project.Store, "p1", "agent/d.md", "shared topic in the project scope", 10, []float32{1, 0, 0, 0})

	resp, err := r.Search(context.Background(), "shared topic", "agent", 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].ID)
}

func TestSearch_ScopeFilterNotStarvedByCloserNeighbors(t *testing.T) {
	emb := &axisEmbedder{vecs: map[string][]float32{"deployment decision": {1, 0, 0, 0}}}
	r := newRetriever(t, emb)

	// Far more than one fetch window of closer non-agent chunks: the filter
	// has to apply inside the store query, not on a truncated top list.
	for i := 0; i < 25; i++ {
		seedChunk(t, r.Project.Store, fmt.Sprintf("n%02d", i), fmt.Sprintf("notes/f%02d.md", i),
			fmt.Sprintf("note %02d", i), 10, []float32{1, 0, 0, 0})
	}
	seedChunk(t, r.Project.Store, "a1", "agent/decisions.md",
		"chose blue-green deployment", 10, []float32{0.9, 0.435, 0, 0})

	resp, err := r.Search(context.Background(), "deployment decision", "agent", 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a1", resp.Results[0].ID)
}

func TestRRFFuse_BothListsBeatsSingleList(t *testing.T) {
	mk := func(id string, score float64) store.Hit {
		return store.Hit{Record: store.Record{ID: id}, Score: score}
	}
	vec := rankedList{
		hits: []store.Hit{mk("a", 0.95), mk("b", 0.90)},
		src:  map[string]*store.Store{},
	}
	fts := rankedList{
		hits: []store.Hit{mk("b", 5.0), mk("c", 4.0)},
		src:  map[string]*store.Store{},
	}

	out := rrfFuse(vec, fts)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].rec.ID)
	// Rank-0 entries of each remaining list tie exactly; id breaks it.
	assert.Equal(t, "a", out[1].rec.ID)
	assert.Equal(t, "c", out[2].rec.ID)
	assert.InDelta(t, 1.0/61+1.0/62, out[0].rrf, 1e-9)
}

func TestSalience_RecencyHalvesAtHalfLife(t *testing.T) {
	now := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	fresh := fused{rec: store.Record{UpdatedAt: now}}
	stale := fused{rec: store.Record{UpdatedAt: now.AddDate(0, 0, -30)}}

	sFresh := salience(fresh, 0, 0, 30, now)
	sStale := salience(stale, 0, 0, 30, now)
	assert.InDelta(t, weightRecency, sFresh, 1e-9)
	assert.InDelta(t, weightRecency/2, sStale, 1e-6)
}

func TestLogNorm(t *testing.T) {
	assert.Equal(t, 0.0, logNorm(0, 5))
	assert.InDelta(t, math.Log(6)/math.Log(7), logNorm(5, 5), 1e-9)
	assert.Less(t, logNorm(5, 5), 1.0)
}
