// Package writer implements the smart write pipeline: quality gate, privacy
// filter, keyword routing, similarity branching, and the Markdown file
// mutations that follow. The index updates synchronously so a memory is
// searchable the moment the write returns.
package writer

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/embed"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/index"
	"github.com/openclaw/openclaw-memory/internal/privacy"
	"github.com/openclaw/openclaw-memory/internal/store"
)

// Similarity thresholds for the three-way write branch.
const (
	// ReinforceThreshold and above: same fact, bump the counter.
	ReinforceThreshold = 0.92
	// ConflictThreshold up to ReinforceThreshold: contradicting variant,
	// replace in place. Below: new fact, append.
	ConflictThreshold = 0.85

	// similarCandidates is how many same-file neighbors to consider.
	similarCandidates = 5
)

// Action taken by a write.
type Action string

const (
	ActionAppended   Action = "appended"
	ActionReplaced   Action = "replaced"
	ActionReinforced Action = "reinforced"
)

// Scope is one write destination: a Markdown root with its index.
type Scope struct {
	Root    string
	Store   *store.Store
	Indexer *index.Indexer
}

// Result describes what a write did.
type Result struct {
	Action Action
	URI    string
	Type   string
	Score  float64 // similarity for reinforced/replaced
}

// Writer routes memories into the right scope and file.
type Writer struct {
	Global   *Scope
	Project  *Scope
	Embedder embed.Embedder
	Privacy  *privacy.Filter
	Logger   *slog.Logger
	Now      func() time.Time
}

// New creates a writer over the two scopes.
func New(global, project *Scope, emb embed.Embedder, priv *privacy.Filter, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		Global:   global,
		Project:  project,
		Embedder: emb,
		Privacy:  priv,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Write runs the full pipeline for one memory.
// explicitType, when non-empty, overrides keyword routing.
func (w *Writer) Write(ctx context.Context, content, explicitType string) (*Result, error) {
	if ok, reason := CheckQuality(content); !ok {
		return nil, memerr.QualityRejected(reason)
	}
	if w.Privacy != nil && w.Privacy.ContainsSensitive(content) {
		violations := w.Privacy.Violations(content)
		pattern := ""
		if len(violations) > 0 {
			pattern = violations[0]
		}
		return nil, memerr.PrivacyRejected(pattern)
	}

	now := w.Now()
	route := ResolveRoute(content, explicitType, now)
	scope := w.Project
	if route.Global {
		scope = w.Global
	}
	path := filepath.Join(scope.Root, filepath.FromSlash(route.URI))
	today := now.Format("2006-01-02")

	// Without an embedding the reinforce/replace branches cannot run, and
	// appending blind would duplicate facts they exist to catch. Surface
	// the retryable error instead of guessing.
	vec, err := w.Embedder.Embed(ctx, content)
	if err != nil {
		w.Logger.Warn("embedding unavailable, write refused",
			slog.String("uri", route.URI), slog.String("error", err.Error()))
		return nil, err
	}

	best, err := w.bestMatch(ctx, scope, vec, route.URI)
	if err != nil {
		return nil, err
	}

	switch {
	case best != nil && best.Score >= ReinforceThreshold:
		if err := w.reinforce(ctx, scope, path, best, today); err != nil {
			return nil, err
		}
		return &Result{Action: ActionReinforced, URI: route.URI, Type: route.Type, Score: best.Score}, nil

	case best != nil && best.Score >= ConflictThreshold:
		replaced, err := w.replace(ctx, scope, path, best, content, today)
		if err != nil {
			return nil, err
		}
		if replaced {
			return &Result{Action: ActionReplaced, URI: route.URI, Type: route.Type, Score: best.Score}, nil
		}
		// Conflict chunk had no matching bullet (free-form section);
		// fall through to append rather than lose the memory.
		fallthrough

	default:
		if err := w.append(ctx, scope, path, route, content, today); err != nil {
			return nil, err
		}
		return &Result{Action: ActionAppended, URI: route.URI, Type: route.Type}, nil
	}
}

// bestMatch returns the most similar chunk in the route's file, if any.
func (w *Writer) bestMatch(ctx context.Context, scope *Scope, vec []float32, uri string) (*store.Hit, error) {
	hits, err := scope.Store.FindSimilar(ctx, vec, similarCandidates, uri)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	best := hits[0]
	for _, h := range hits[1:] {
		if h.Score > best.Score {
			best = h
		}
	}
	return &best, nil
}

func (w *Writer) reinforce(ctx context.Context, scope *Scope, path string, best *store.Hit, today string) error {
	if err := scope.Store.IncrementReinforcement(ctx, best.ID); err != nil {
		return err
	}
	if err := bumpReinforcement(path, today); err != nil {
		return err
	}
	return scope.Indexer.IndexFile(ctx, best.URI)
}

func (w *Writer) replace(ctx context.Context, scope *Scope, path string, best *store.Hit, content, today string) (bool, error) {
	replaced, err := replaceBullet(path, best.Content, content, today)
	if err != nil {
		return false, err
	}
	if !replaced {
		return false, nil
	}
	return true, scope.Indexer.IndexFile(ctx, best.URI)
}

func (w *Writer) append(ctx context.Context, scope *Scope, path string, route Route, content, today string) error {
	if err := ensureFile(path, chunk.Meta{
		Type:       route.Type,
		Importance: route.Importance,
		Created:    today,
		Updated:    today,
		Status:     "active",
	}); err != nil {
		return err
	}
	if err := appendBullet(path, content, today); err != nil {
		return err
	}
	return scope.Indexer.IndexFile(ctx, route.URI)
}
