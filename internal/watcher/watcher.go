// Package watcher keeps the index in sync with directories on disk. File events are
// debounced per path and handed to a Handler, normally the indexer.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/extract"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/scheduler"
)

// DefaultDebounce is the quiet period after the last write before a file is re-indexed.
const DefaultDebounce = 400 * time.Millisecond

// Handler receives debounced file changes.
type Handler interface {
	IndexFile(ctx context.Context, path string) (*indexer.Result, error)
	RemovePath(ctx context.Context, path string) (bool, error)
}

// Watcher watches root directories and forwards changes to a Handler.
type Watcher struct {
	handler    Handler
	extensions []string
	recursive  bool
	debounce   time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	roots     []string
	rootPaths map[string][]string // root -> directories added to fsnotify
	fsw       *fsnotify.Watcher
	pending   *scheduler.Debouncer
	ctx       context.Context
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithExtensions restricts events to files with these extensions. Empty means every file.
func WithExtensions(exts []string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

// WithRecursive controls whether subdirectories are watched. Default true.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithDebounce sets the per-path debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for roots. Nothing is watched until Start.
func NewWatcher(roots []string, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		handler:   handler,
		recursive: true,
		debounce:  DefaultDebounce,
		logger:    zap.NewNop(),
		roots:     append([]string(nil), roots...),
		rootPaths: make(map[string][]string),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. The watcher runs until ctx is cancelled
// or Stop is called; ctx is also passed to the Handler.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	select {
	case <-w.done:
		return errors.New("watcher: already stopped")
	default:
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.pending = scheduler.NewDebouncer(w.debounce)
	w.ctx = ctx
	w.started = true
	w.logger.Debug("watcher starting",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive),
		zap.Duration("debounce", w.debounce),
	)
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) || hidden(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if matchExtension(path, w.extensions) {
			w.scheduleIndex(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		// The new name of a renamed file arrives as its own Create.
		w.scheduleRemove(path)
	}
}

func (w *Watcher) pendingWork() (*scheduler.Debouncer, context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending, w.ctx
}

func (w *Watcher) scheduleIndex(path string) {
	pending, ctx := w.pendingWork()
	if pending == nil {
		return
	}
	pending.Schedule(path, func() { w.index(ctx, path) })
}

func (w *Watcher) scheduleRemove(path string) {
	pending, ctx := w.pendingWork()
	if pending == nil {
		return
	}
	pending.Schedule(path, func() { w.remove(ctx, path) })
}

func (w *Watcher) index(ctx context.Context, path string) {
	if w.handler == nil || ctx.Err() != nil {
		return
	}
	res, err := w.handler.IndexFile(ctx, path)
	switch {
	case errors.Is(err, extract.ErrUnsupported):
		w.logger.Debug("watcher skipping unsupported file", zap.String("path", path))
	case err != nil:
		w.logger.Warn("watcher failed to index file", zap.String("path", path), zap.Error(err))
	default:
		w.logger.Debug("watcher indexed file", zap.String("path", path), zap.String("status", string(res.Status)))
	}
}

func (w *Watcher) remove(ctx context.Context, path string) {
	if w.handler == nil || ctx.Err() != nil {
		return
	}
	// Editors that save by rename recreate the file before the delay elapses.
	if _, err := os.Stat(path); err == nil {
		return
	}
	removed, err := w.handler.RemovePath(ctx, path)
	if err != nil {
		w.logger.Warn("watcher failed to remove file", zap.String("path", path), zap.Error(err))
		return
	}
	if removed {
		w.logger.Debug("watcher removed file", zap.String("path", path))
	}
}

// handleNewDirectory watches a directory that appeared under a root and indexes its files.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	w.logger.Debug("watcher handling new directory", zap.String("path", dir))

	if !w.recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && hidden(path) {
				return filepath.SkipDir
			}
			if err := fsw.Add(path); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if !hidden(path) && matchExtension(path, w.extensions) {
			w.scheduleIndex(path)
		}
		return nil
	})
}

func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.Directories() {
		if inDir(filepath.Clean(root), path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func matchExtension(path string, extensions []string) bool {
	return indexer.ExtensionAllowed(filepath.Ext(path), extensions)
}

// AddDirectory starts watching root. With syncExisting, files already in it are indexed.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	for _, r := range w.roots {
		if filepath.Clean(r) == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if w.fsw != nil {
		if err := w.addRootLocked(abs); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	w.roots = append(w.roots, abs)
	ctx := w.ctx
	w.mu.Unlock()

	w.logger.Info("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting && ctx != nil {
		go w.syncDirectory(ctx, abs)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		w.rootPaths[root] = []string{root}
		return nil
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.rootPaths[root] = paths
	return nil
}

// RemoveDirectory stops watching root. Indexed documents are left in place.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := -1
	for i, r := range w.roots {
		if filepath.Clean(r) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if w.fsw != nil {
		for _, p := range w.rootPaths[abs] {
			_ = w.fsw.Remove(p)
		}
	}
	delete(w.rootPaths, abs)
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	w.logger.Info("watcher directory removed", zap.String("path", abs))
	return nil
}

// Directories returns a copy of the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles indexes the files already present in every root. Call it after Start.
// It blocks until every file has been handed to the Handler.
func (w *Watcher) SyncExistingFiles() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		return
	}
	for _, root := range w.Directories() {
		w.syncDirectory(ctx, root)
	}
}

func (w *Watcher) syncDirectory(ctx context.Context, root string) {
	w.logger.Debug("watcher syncing directory", zap.String("root", root))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != root && (hidden(path) || !w.recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden(path) && matchExtension(path, w.extensions) {
			w.index(ctx, path)
		}
		return nil
	})
}

// Stop cancels pending debounced work and releases the fsnotify watcher. A stopped
// Watcher cannot be started again.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.pending.Stop()
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
