// Package index keeps a scope's derived index in sync with its Markdown
// files. Chunking and embedding run per file; stale chunks are swept by
// comparing content hashes, which preserves reinforcement and access
// counters across edits that only move text around.
package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/store"
)

// indexWorkers bounds concurrent file indexing. Chunking and embedding
// parallelize; SQLite serializes the writes itself.
const indexWorkers = 4

// typeByPath infers a memory type from the file location when frontmatter
// does not declare one.
var typeByPath = map[string]string{
	"user/preferences.md":  "preference",
	"user/instructions.md": "instruction",
	"user/entities.md":     "entity",
	"agent/decisions.md":   "decision",
	"agent/patterns.md":    "pattern",
}

// defaultImportance by memory type, matching what the write path puts in
// frontmatter when it creates the file.
var defaultImportance = map[string]int{
	"instruction": 5,
	"decision":    5,
	"preference":  4,
	"entity":      3,
	"pattern":     3,
	"event":       1,
}

// Indexer synchronizes one scope's Markdown tree with its store.
type Indexer struct {
	root    string // scope directory holding the Markdown tree
	store   *store.Store
	embed   embed.Embedder
	chunker *chunk.Chunker
	logger  *slog.Logger

	mu sync.Mutex // serializes whole-file index operations
}

// New creates an indexer for the scope rooted at root.
func New(root string, st *store.Store, emb embed.Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		root:    root,
		store:   st,
		embed:   emb,
		chunker: chunk.NewChunker(),
		logger:  logger,
	}
}

// Indexable reports whether a path under the scope participates in the
// index. Generated artifacts and non-Markdown files never do.
func Indexable(uri string) bool {
	base := filepath.Base(uri)
	if base == config.PrimerFileName || base == config.TasksFileName {
		return false
	}
	if strings.HasPrefix(base, ".") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(uri), "/") {
		if strings.HasPrefix(part, ".") || part == config.IndexDirName {
			return false
		}
	}
	return strings.HasSuffix(base, ".md")
}

// URIFor converts an absolute path inside the scope to its index URI.
func (ix *Indexer) URIFor(path string) (string, bool) {
	rel, err := filepath.Rel(ix.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// IndexFile re-indexes a single file identified by its URI.
// A missing file is treated as a delete.
func (ix *Indexer) IndexFile(ctx context.Context, uri string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.indexFileLocked(ctx, uri)
}

func (ix *Indexer) indexFileLocked(ctx context.Context, uri string) error {
	if !Indexable(uri) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(ix.root, filepath.FromSlash(uri)))
	if os.IsNotExist(err) {
		n, derr := ix.store.DeleteByURI(ctx, uri)
		if derr == nil && n > 0 {
			ix.logger.Info("removed deleted file from index",
				slog.String("uri", uri), slog.Int("chunks", n))
		}
		return derr
	}
	if err != nil {
		return memerr.StorageError("failed to read "+uri, err)
	}

	chunks := ix.chunker.Chunk(uri, string(data))
	applyInference(uri, chunks)

	vectors := ix.embedChunks(ctx, chunks)

	// Sweep chunks whose content disappeared from the file. Matching is by
	// content hash so unchanged text keeps its row and counters.
	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.ContentHash] = true
	}
	existing, err := ix.store.ChunksByURI(ctx, uri)
	if err != nil {
		return err
	}
	var stale []string
	for _, rec := range existing {
		if !keep[rec.ContentHash] {
			stale = append(stale, rec.ID)
		}
	}
	if err := ix.store.DeleteChunks(ctx, stale); err != nil {
		return err
	}

	for i, c := range chunks {
		rec := store.Record{
			ID:          c.ID,
			URI:         c.URI,
			Content:     c.Content,
			ContentHash: c.ContentHash,
			ParentDir:   parentDir(c.URI),
			Type:        c.Type,
			Section:     c.Section,
			Importance:  c.Importance,
			TokenCount:  c.TokenCount,
		}
		var vec []float32
		if vectors != nil {
			vec = vectors[i]
		}
		if err := ix.store.Upsert(ctx, rec, vec); err != nil {
			return err
		}
	}

	ix.logger.Debug("indexed file",
		slog.String("uri", uri),
		slog.Int("chunks", len(chunks)),
		slog.Int("stale", len(stale)),
		slog.Bool("vectors", vectors != nil))
	return ix.store.Flush()
}

// embedChunks embeds chunk contents, degrading to nil when the provider is
// down so full-text search keeps working.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []*chunk.Chunk) [][]float32 {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embed.EmbedBatch(ctx, texts)
	if err != nil {
		ix.logger.Warn("embedding unavailable, indexing without vectors",
			slog.String("error", err.Error()))
		return nil
	}
	return vectors
}

// IndexAll walks the scope and re-indexes every Markdown file, then removes
// index entries for files that no longer exist.
func (ix *Indexer) IndexAll(ctx context.Context) error {
	var uris []string
	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || d.Name() == config.IndexDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if uri, ok := ix.URIFor(path); ok && Indexable(uri) {
			uris = append(uris, uri)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return memerr.StorageError("failed to walk scope", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexWorkers)
	for _, uri := range uris {
		g.Go(func() error {
			return ix.IndexFile(gctx, uri)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Sweep deleted files.
	present := make(map[string]bool, len(uris))
	for _, uri := range uris {
		present[uri] = true
	}
	indexed, err := ix.store.URIs(ctx)
	if err != nil {
		return err
	}
	for _, uri := range indexed {
		if !present[uri] {
			if _, err := ix.store.DeleteByURI(ctx, uri); err != nil {
				return err
			}
		}
	}
	return ix.store.Flush()
}

// applyInference fills type and importance for chunks whose frontmatter
// left them empty.
func applyInference(uri string, chunks []*chunk.Chunk) {
	inferred := typeByPath[uri]
	if inferred == "" && strings.HasPrefix(uri, "journal/") {
		inferred = "event"
	}
	for _, c := range chunks {
		if c.Type == "" {
			c.Type = inferred
		}
		if c.Importance == 0 {
			if imp, ok := defaultImportance[c.Type]; ok {
				c.Importance = imp
			} else {
				c.Importance = 1
			}
		}
	}
}

// parentDir returns the first path segment of a URI, or "" for top-level
// files.
func parentDir(uri string) string {
	if i := strings.IndexByte(uri, '/'); i >= 0 {
		return uri[:i]
	}
	return ""
}
