// Package watcher keeps indexes in step with files dropped into the upload root.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
	"github.com/Ranjithnathk/ClauseWise/internal/indexer"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

// Event names passed to the event callback.
const (
	EventIndex  = "index"
	EventDelete = "delete"
	EventError  = "error"
)

// Watcher watches the upload root and its user directories. Files directly
// under the root are public; files in a user directory belong to that user.
type Watcher struct {
	root    string
	indexer *indexer.Indexer
	cfg     *config.Config

	// debounce holds pending file events to batch process
	debounce     map[string]fsnotify.Op
	debounceMu   sync.Mutex
	debounceTime time.Duration

	// callback for status updates
	onEvent func(event string, scope store.Scope)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets the debounce duration for batching events.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceTime = d
		}
	}
}

// WithEventCallback sets a callback for processed events.
func WithEventCallback(fn func(event string, scope store.Scope)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// New creates a watcher over cfg.Storage.UploadDir.
func New(idx *indexer.Indexer, cfg *config.Config, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(cfg.Storage.UploadDir)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:         absRoot,
		indexer:      idx,
		cfg:          cfg,
		debounce:     make(map[string]fsnotify.Op),
		debounceTime: cfg.Watch.Debounce,
		onEvent:      func(string, store.Scope) {}, // noop default
	}
	if w.debounceTime <= 0 {
		w.debounceTime = 500 * time.Millisecond
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching for file changes. Blocks until context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher); err != nil {
		return err
	}

	log.Info("Watching for document changes", "root", w.root, "debounce", w.debounceTime)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories watches the root and every user directory directly under it.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(w.root); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || !isUserDir(e.Name()) {
			continue
		}
		path := filepath.Join(w.root, e.Name())
		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
	}
	return nil
}

// isUserDir reports whether a directory under the root holds a user's documents.
func isUserDir(name string) bool {
	return !strings.HasPrefix(name, ".") && name != store.PublicOwner && store.ValidateOwner(name) == nil
}

// ownerOf returns the owner of a file path, or false for paths outside the
// two watched levels.
func (w *Watcher) ownerOf(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, filepath.Dir(path))
	if err != nil {
		return "", false
	}
	if rel == "." {
		return store.PublicOwner, true
	}
	if strings.ContainsRune(rel, filepath.Separator) || !isUserDir(rel) {
		return "", false
	}
	return rel, true
}

// handleEvent processes a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name

	// Partial uploads and editor files are hidden
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	// New user directory
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if filepath.Dir(path) == w.root && isUserDir(filepath.Base(path)) {
				watcher.Add(path)
				log.Debug("Added directory to watch", "path", path)
			}
			return
		}
	}

	if !fs.IsSupported(path) {
		return
	}
	if _, ok := w.ownerOf(path); !ok {
		return
	}

	w.debounceMu.Lock()
	w.debounce[path] |= event.Op
	w.debounceMu.Unlock()
}

// processDebounced processes debounced file events periodically.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced(ctx)
		}
	}
}

// flushDebounced processes all pending events. The file's presence on disk,
// not the event type, decides between re-indexing and removal.
func (w *Watcher) flushDebounced(ctx context.Context) {
	w.debounceMu.Lock()
	if len(w.debounce) == 0 {
		w.debounceMu.Unlock()
		return
	}
	events := w.debounce
	w.debounce = make(map[string]fsnotify.Op)
	w.debounceMu.Unlock()

	for path, op := range events {
		select {
		case <-ctx.Done():
			return
		default:
		}

		owner, _ := w.ownerOf(path)
		scope := store.NewScope(owner, filepath.Base(path))

		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := w.indexer.Remove(owner, filepath.Base(path)); err != nil {
				log.Error("Failed to remove index", "scope", scope, "error", err)
				w.onEvent(EventError, scope)
				continue
			}
			w.onEvent(EventDelete, scope)
			continue
		}

		res, err := w.indexer.IndexFile(ctx, owner, path, false)
		if err != nil {
			log.Error("Failed to index document", "scope", scope, "op", op, "error", err)
			w.onEvent(EventError, scope)
			continue
		}
		if !res.Skipped {
			w.onEvent(EventIndex, scope)
		}
	}
}
