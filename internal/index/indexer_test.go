package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/embed"
	"github.com/openclaw/openclaw-memory/internal/store"
)

func newTestIndexer(t *testing.T) (*Indexer, *store.Store, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "index"), embed.LocalDimensions, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(root, st, embed.NewLocalEmbedder(), nil), st, root
}

func write(t *testing.T, root, uri, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(uri))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexFile_CreatesChunksWithVectors(t *testing.T) {
	ix, st, root := newTestIndexer(t)
	ctx := context.Background()

	write(t, root, "user/preferences.md", "# Preferences\n\n- prefers tabs\n- hates yaml\n")
	require.NoError(t, ix.IndexFile(ctx, "user/preferences.md"))

	recs, err := st.ChunksByURI(ctx, "user/preferences.md")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "preference", recs[0].Type)
	assert.Equal(t, 4, recs[0].Importance)
	assert.Equal(t, "user", recs[0].ParentDir)
	assert.True(t, st.HasVector(recs[0].ID))
}

func TestIndexFile_JournalTypeInferred(t *testing.T) {
	ix, st, root := newTestIndexer(t)
	ctx := context.Background()

	write(t, root, "journal/2026-08-25.md", "## Session 10:00\n\nfixed the indexer\n")
	require.NoError(t, ix.IndexFile(ctx, "journal/2026-08-25.md"))

	recs, err := st.ChunksByURI(ctx, "journal/2026-08-25.md")
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "event", recs[0].Type)
	assert.Equal(t, 1, recs[0].Importance)
}

func TestIndexFile_FrontmatterTypeWins(t *testing.T) {
	ix, st, root := newTestIndexer(t)
	ctx := context.Background()

	write(t, root, "journal/2026-08-25.md", "---\ntype: decision\nimportance: 5\n---\nchose sqlite\n")
	require.NoError(t, ix.IndexFile(ctx, "journal/2026-08-25.md"))

	recs, err := st.ChunksByURI(ctx, "journal/2026-08-25.md")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "decision", recs[0].Type)
	assert.Equal(t, 5, recs[0].Importance)
}

func TestIndexFile_EditPreservesCountersForUnchangedContent(t *testing.T) {
	ix, st, root := newTestIndexer(t)
	ctx := context.Background()

	write(t, root, "user/preferences.md", "# Preferences\n\n- prefers tabs\n")
	require.NoError(t, ix.IndexFile(ctx, "user/preferences.md"))
	recs, err := st.ChunksByURI(ctx, "user/preferences.md")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NoError(t, st.IncrementReinforcement(ctx, recs[0].ID))

	// Insert a new section above; the old section shifts lines but its
	// content hash is unchanged.
	write(t, root, "user/preferences.md", "# Notes\n\nnew stuff first\n\n# Preferences\n\n- prefers tabs\n")
	require.NoError(t, ix.IndexFile(ctx, "user/preferences.md"))

	recs, err = st.ChunksByURI(ctx, "user/preferences.md")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	var reinforced int
	for _, r := range recs {
		reinforced += r.Reinforcement
	}
	assert.Equal(t, 1, reinforced, "counter should survive the edit")
}

func TestIndexFile_RemovedContentSwept(t *testing.T) {
	ix, st, root := newTestIndexer(t)
	ctx := context.Background()

	write(t, root, "user/a.md", "# One\n\nfirst\n\n# Two\n\nsecond\n")
	require.NoError(t, ix.IndexFile(ctx, "user/a.md"))
	recs, _ := st.ChunksByURI(ctx, "user/a.md")
	require.Len(t, recs, 2)

	write(t, root, "user/a.md", "# One\n\nfirst\n")
	require.NoError(t, ix.IndexFile(ctx, "user/a.md"))
	recs, _ = st.ChunksByURI(ctx, "user/a.md")
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Content, "first")
}

func TestIndexFile_MissingFileDeletes(t *testing.T) {
	ix, st, root := newTestIndexer(t)
	ctx := context.Background()

	write(t, root, "user/a.md", "# One\n\nfirst\n")
	require.NoError(t, ix.IndexFile(ctx, "user/a.md"))
	require.NoError(t, os.Remove(filepath.Join(root, "user", "a.md")))

	require.NoError(t, ix.IndexFile(ctx, "user/a.md"))
	recs, err := st.ChunksByURI(ctx, "user/a.md")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestIndexAll_SkipsGeneratedAndHidden(t *testing.T) {
	ix, st, root := newTestIndexer(t)
	ctx := context.Background()

	write(t, root, "user/prefs.md", "# P\n\ncontent\n")
	write(t, root, "PRIMER.md", "# Primer\n\ngenerated\n")
	write(t, root, "TASKS.md", "# Tasks\n\ngenerated\n")
	write(t, root, ".hidden/secret.md", "# S\n\nhidden\n")
	write(t, root, "notes.txt", "not markdown")

	require.NoError(t, ix.IndexAll(ctx))

	uris, err := st.URIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user/prefs.md"}, uris)
}

func TestIndexAll_SweepsDeletedFiles(t *testing.T) {
	ix, st, root := newTestIndexer(t)
	ctx := context.Background()

	write(t, root, "user/a.md", "# A\n\nalpha\n")
	write(t, root, "user/b.md", "# B\n\nbeta\n")
	require.NoError(t, ix.IndexAll(ctx))

	require.NoError(t, os.Remove(filepath.Join(root, "user", "b.md")))
	require.NoError(t, ix.IndexAll(ctx))

	uris, err := st.URIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user/a.md"}, uris)
}

func TestIndexable(t *testing.T) {
	assert.True(t, Indexable("user/preferences.md"))
	assert.True(t, Indexable("journal/2026-08-25.md"))
	assert.False(t, Indexable("PRIMER.md"))
	assert.False(t, Indexable("TASKS.md"))
	assert.False(t, Indexable("index/index.db"))
	assert.False(t, Indexable(".hidden.md"))
	assert.False(t, Indexable("user/.draft.md"))
	assert.False(t, Indexable("user/notes.txt"))
}
