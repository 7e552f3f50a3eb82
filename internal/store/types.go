// Package store persists the derived index for one memory scope.
//
// Chunk metadata and full-text search live in a single SQLite database so
// they mutate in the same transaction; vectors live in an HNSW graph
// persisted beside it. Markdown files remain the source of truth, so the
// whole directory can be deleted and rebuilt at any time.
package store

import (
	"fmt"
	"time"
)

// Record is one indexed chunk row.
type Record struct {
	ID            string
	URI           string // path relative to the scope root
	Content       string
	ContentHash   string
	ParentDir     string // first path segment of URI, "" for top-level files
	Type          string
	Section       string
	Importance    int
	Reinforcement int
	AccessCount   int
	TokenCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Hit is a search result with its backend score. Vector hits carry cosine
// similarity in [0,1]; FTS hits carry a bm25-derived score where higher is
// better. The two are never compared directly, only rank-fused.
type Hit struct {
	Record
	Score float64
}

// TypeStats aggregates the chunks of one memory type.
type TypeStats struct {
	Chunks int
	Tokens int
}

// Stats summarizes a scope's index.
type Stats struct {
	Chunks           int
	Files            int
	TotalTokens      int
	ByType           map[string]TypeStats
	MaxReinforcement int
	MaxAccessCount   int
}

// ErrDimensionMismatch is returned when a vector does not match the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
