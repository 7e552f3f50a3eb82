// Package watcher keeps the index in sync with external edits to the memory
// files. It watches a scope root recursively with fsnotify and re-indexes
// after a per-path quiescence window, so manual edits and editor save bursts
// both land as a single index update.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	memerr "github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/index"
	"github.com/openclaw/openclaw-memory/internal/store"
)

// DefaultQuiescence is how long a path must stay quiet before its events
// flush to the indexer.
const DefaultQuiescence = 1500 * time.Millisecond

// Watcher syncs one scope's index with filesystem changes.
type Watcher struct {
	root     string
	indexer  *index.Indexer
	store    *store.Store
	logger   *slog.Logger
	debounce *debouncer

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New creates a watcher for the scope rooted at root.
func New(root string, idx *index.Indexer, st *store.Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:     root,
		indexer:  idx,
		store:    st,
		logger:   logger,
		debounce: newDebouncer(DefaultQuiescence),
	}
}

// Start begins watching. It returns once the recursive watches are in place;
// event handling continues in the background until Stop or context cancel.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return memerr.StorageError("failed to create file watcher", err)
	}
	w.fsw = fsw

	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.started = true

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.applyLoop(ctx)
	return nil
}

// Stop halts watching and waits for in-flight index updates.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	w.cancel()
	_ = w.fsw.Close()
	w.debounce.stop()
	w.wg.Wait()
}

// addRecursive registers watches for root and every subdirectory, skipping
// hidden directories and the index directory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "index") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

// eventLoop converts raw fsnotify events into debounced memory-file events.
func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// New directories need their own watch for recursion to hold.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return
		}
	}

	uri, ok := w.indexer.URIFor(ev.Name)
	if !ok || !index.Indexable(uri) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		w.debounce.add(Event{URI: uri, Op: OpCreate})
	case ev.Op.Has(fsnotify.Write):
		w.debounce.add(Event{URI: uri, Op: OpModify})
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.debounce.add(Event{URI: uri, Op: OpDelete})
	}
}

// applyLoop consumes debounced batches and updates the index.
func (w *Watcher) applyLoop(ctx context.Context) {
	defer w.wg.Done()
	for batch := range w.debounce.output {
		for _, ev := range batch {
			w.apply(ctx, ev)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, ev Event) {
	var err error
	switch ev.Op {
	case OpCreate, OpModify:
		err = w.indexer.IndexFile(ctx, ev.URI)
	case OpDelete:
		_, err = w.store.DeleteByURI(ctx, ev.URI)
	}
	if err != nil {
		w.logger.Warn("failed to apply file event",
			slog.String("uri", ev.URI),
			slog.String("op", ev.Op.String()),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("applied file event",
		slog.String("uri", ev.URI), slog.String("op", ev.Op.String()))
}
