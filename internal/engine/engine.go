// Package engine wires the two memory scopes together and exposes the six
// operations the tool surface and CLI call into. It owns the lifecycle of
// the embedder, the per-scope stores and indexers, and the optional
// watchers.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/index"
	"github.com/openclaw/openclaw-memory/internal/primer"
	"github.com/openclaw/openclaw-memory/internal/privacy"
	"github.com/openclaw/openclaw-memory/internal/retrieve"
	"github.com/openclaw/openclaw-memory/internal/store"
	"github.com/openclaw/openclaw-memory/internal/watcher"
	"github.com/openclaw/openclaw-memory/internal/writer"
)

// Options configures engine construction.
type Options struct {
	// ProjectRoot is the repository root; the project scope lives in its
	// .openclaw_memory directory. Empty disables the project scope paths
	// that depend on it.
	ProjectRoot string
	// GlobalDir overrides the global scope directory, for tests.
	GlobalDir string
	// Watch starts a file watcher per scope.
	Watch  bool
	Logger *slog.Logger
}

// scope bundles everything owned per memory root.
type scope struct {
	root    string
	store   *store.Store
	indexer *index.Indexer
	watcher *watcher.Watcher
}

// Engine is the assembled memory service.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	embedder embed.Embedder

	global  *scope
	project *scope

	writer    *writer.Writer
	retriever *retrieve.Retriever
	primer    *primer.Builder

	Now func() time.Time
}

// New builds the engine: directories ensured, stores opened, pipelines
// wired. Close releases everything.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	globalDir := opts.GlobalDir
	if globalDir == "" {
		globalDir = config.GlobalDir()
	}
	projectDir := config.ProjectDir(opts.ProjectRoot)

	if err := config.EnsureScopeDirs(globalDir, true); err != nil {
		return nil, err
	}
	if err := config.EnsureScopeDirs(projectDir, false); err != nil {
		return nil, err
	}

	emb, err := embed.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, logger: logger, embedder: emb, Now: time.Now}

	e.global, err = e.openScope(globalDir)
	if err != nil {
		_ = emb.Close()
		return nil, err
	}
	e.project, err = e.openScope(projectDir)
	if err != nil {
		e.closeScopes()
		_ = emb.Close()
		return nil, err
	}

	priv, err := privacy.NewFilter(cfg.Privacy.Patterns, cfg.Privacy.Enabled)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.writer = writer.New(
		&writer.Scope{Root: e.global.root, Store: e.global.store, Indexer: e.global.indexer},
		&writer.Scope{Root: e.project.root, Store: e.project.store, Indexer: e.project.indexer},
		emb, priv, logger)
	e.retriever = retrieve.New(
		&retrieve.Scope{Root: e.global.root, Store: e.global.store},
		&retrieve.Scope{Root: e.project.root, Store: e.project.store},
		emb, cfg.Search, logger)
	e.primer = primer.NewBuilder(e.global.root, e.project.root, cfg.Project)

	if opts.Watch {
		for _, s := range []*scope{e.global, e.project} {
			w := watcher.New(s.root, s.indexer, s.store, logger)
			if err := w.Start(ctx); err != nil {
				logger.Warn("failed to start watcher",
					slog.String("root", s.root), slog.String("error", err.Error()))
				continue
			}
			s.watcher = w
		}
	}

	return e, nil
}

func (e *Engine) openScope(root string) (*scope, error) {
	st, err := store.Open(filepath.Join(root, config.IndexDirName), e.embedder.Dimensions(), e.logger)
	if err != nil {
		return nil, err
	}
	return &scope{
		root:    root,
		store:   st,
		indexer: index.New(root, st, e.embedder, e.logger),
	}, nil
}

// Close stops watchers and releases stores and the embedder.
func (e *Engine) Close() {
	e.closeScopes()
	if e.embedder != nil {
		_ = e.embedder.Close()
	}
}

func (e *Engine) closeScopes() {
	for _, s := range []*scope{e.global, e.project} {
		if s == nil {
			continue
		}
		if s.watcher != nil {
			s.watcher.Stop()
		}
		if err := s.store.Close(); err != nil {
			e.logger.Warn("failed to close store",
				slog.String("root", s.root), slog.String("error", err.Error()))
		}
	}
}

// Primer assembles the cold-start context blob and refreshes PRIMER.md.
func (e *Engine) Primer(_ context.Context) (string, error) {
	e.primer.Now = e.Now
	content := e.primer.Build()
	if _, err := e.primer.Write(); err != nil {
		e.logger.Warn("failed to refresh primer file", slog.String("error", err.Error()))
	}
	return content, nil
}

// Search runs the read pipeline.
func (e *Engine) Search(ctx context.Context, query, scopeFilter string, maxTokens int) (*retrieve.Response, error) {
	e.retriever.Now = e.Now
	return e.retriever.Search(ctx, query, scopeFilter, maxTokens)
}

// Log runs the write pipeline.
func (e *Engine) Log(ctx context.Context, content, explicitType string) (*writer.Result, error) {
	e.writer.Now = e.Now
	return e.writer.Write(ctx, content, explicitType)
}

// SessionEnd appends the session block to today's journal, re-indexes it,
// rewrites TASKS.md from the next steps, and regenerates PRIMER.md.
// Returns the journal file name.
func (e *Engine) SessionEnd(ctx context.Context, summary primer.SessionSummary) (string, error) {
	name, err := primer.WriteSession(e.project.root, summary, e.Now())
	if err != nil {
		return "", err
	}
	if err := e.project.indexer.IndexFile(ctx, "journal/"+name); err != nil {
		e.logger.Warn("failed to index journal", slog.String("error", err.Error()))
	}
	if len(summary.NextSteps) > 0 {
		tasks := make([]primer.Task, 0, len(summary.NextSteps))
		for _, step := range summary.NextSteps {
			tasks = append(tasks, primer.Task{Title: step, Status: "pending"})
		}
		if _, err := primer.WriteTasks(e.project.root, tasks, e.Now()); err != nil {
			return "", err
		}
	}
	e.primer.Now = e.Now
	if _, err := e.primer.Write(); err != nil {
		return "", err
	}
	return name, nil
}

// UpdateTasks rewrites TASKS.md and regenerates PRIMER.md.
func (e *Engine) UpdateTasks(_ context.Context, tasks []primer.Task) error {
	if _, err := primer.WriteTasks(e.project.root, tasks, e.Now()); err != nil {
		return err
	}
	e.primer.Now = e.Now
	_, err := e.primer.Write()
	return err
}

// Read returns a memory file verbatim, trying the project scope first.
func (e *Engine) Read(_ context.Context, relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", memerr.NotFound(relPath)
	}
	for _, root := range []string{e.project.root, e.global.root} {
		data, err := os.ReadFile(filepath.Join(root, clean))
		if err == nil {
			return string(data), nil
		}
	}
	return "", memerr.NotFound(relPath)
}

// IndexAll rebuilds both scope indexes from the Markdown files.
func (e *Engine) IndexAll(ctx context.Context) error {
	if err := e.global.indexer.IndexAll(ctx); err != nil {
		return err
	}
	return e.project.indexer.IndexAll(ctx)
}

// Stats returns per-scope index statistics keyed by scope name.
func (e *Engine) Stats(ctx context.Context) (map[string]*store.Stats, error) {
	out := make(map[string]*store.Stats, 2)
	for name, s := range map[string]*scope{"global": e.global, "project": e.project} {
		stats, err := s.store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		out[name] = stats
	}
	return out, nil
}

// GlobalRoot returns the global scope directory.
func (e *Engine) GlobalRoot() string { return e.global.root }

// ProjectRoot returns the project scope directory.
func (e *Engine) ProjectRoot() string { return e.project.root }
