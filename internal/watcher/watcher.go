// Package watcher imports playlists dropped into a directory. It is the
// unattended counterpart of the upload endpoint: each file is imported once,
// as a fixed user, and then moved out of the way.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voyagen/channelvault/internal/cache"
	"github.com/voyagen/channelvault/internal/fetcher"
	"github.com/voyagen/channelvault/internal/models"
)

const (
	// DefaultDebounce is how long a file must stay quiet before it is imported.
	DefaultDebounce = 2 * time.Second

	// ImportedDir and FailedDir are created inside the watched directory.
	ImportedDir = "imported"
	FailedDir   = "failed"

	lockTTL = 15 * time.Minute
)

// Importer runs one import.
type Importer interface {
	Run(ctx context.Context, r io.Reader, fileName string, fileSize int64, actingUserID int64) (*models.ImportRun, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a file is imported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLock makes replicas sharing the directory take a Redis lock per file.
func WithLock(r *cache.Redis) Option {
	return func(w *Watcher) { w.lock = r }
}

// Watcher monitors one directory for new playlist files.
type Watcher struct {
	fs       *fsnotify.Watcher
	dir      string
	userID   int64
	importer Importer
	lock     *cache.Redis
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New returns a Watcher for dir. Nothing happens until Start.
func New(dir string, userID int64, importer Importer, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		dir:      dir,
		userID:   userID,
		importer: importer,
		logger:   logger.With("component", "watcher", "dir", dir),
		debounce: DefaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching and schedules files already present in the directory.
func (w *Watcher) Start(ctx context.Context) error {
	for _, sub := range []string{ImportedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	if err := w.fs.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		cancel()
		return fmt.Errorf("read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && fetcher.IsPlaylistFile(e.Name()) {
			w.schedule(ctx, filepath.Join(w.dir, e.Name()))
		}
	}

	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("drop folder watcher started", "existing", len(entries))
	return nil
}

// Stop ends watching, drops pending files and waits for running imports.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	w.fs.Close()
	w.wg.Wait()
	w.logger.Info("drop folder watcher stopped")
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !fetcher.IsPlaylistFile(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// schedule (re)starts the debounce timer of path. Every write restarts it, so
// a file still being copied is not imported half-written.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		if t.Stop() {
			t.Reset(w.debounce)
			return
		}
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		stopped := w.stopped
		w.mu.Unlock()
		if !stopped {
			w.importFile(ctx, path)
		}
	})
	w.timers[path] = t
}

// importFile imports path and moves it to the imported or failed directory.
func (w *Watcher) importFile(ctx context.Context, path string) {
	logger := w.logger.With("path", path)

	if w.lock != nil {
		unlock, err := cache.TryLock(ctx, w.lock, "lock:watch:"+path, lockTTL)
		if errors.Is(err, cache.ErrLocked) {
			logger.Debug("file is being imported elsewhere")
			return
		}
		if err != nil {
			logger.Warn("lock unavailable, importing anyway", "error", err)
		} else {
			defer unlock()
		}
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Error("open dropped file", "error", err)
		return
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		logger.Error("stat dropped file", "error", err)
		return
	}

	run, err := w.importer.Run(ctx, f, filepath.Base(path), info.Size(), w.userID)
	f.Close()
	if err != nil {
		logger.Error("import dropped file", "error", err)
	}

	dest := ImportedDir
	if run == nil || run.FatalError != nil {
		dest = FailedDir
	}
	if err := os.Rename(path, filepath.Join(w.dir, dest, filepath.Base(path))); err != nil {
		logger.Error("move dropped file", "error", err)
		return
	}
	if run != nil {
		logger.Info("dropped file imported", "moved_to", dest, "imported", run.Imported,
			"skipped", run.Skipped, "errors", run.Errors)
	}
}
