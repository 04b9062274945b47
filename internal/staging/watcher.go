package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"curator/internal/logging"
)

// Watcher stages files as soon as the filesystem reports them. Events are
// debounced per path so a file being copied is staged once it settles.
type Watcher struct {
	scanner  *Scanner
	roots    []string
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewWatcher constructs a Watcher over roots.
func NewWatcher(scanner *Scanner, roots []string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{
		scanner:  scanner,
		roots:    roots,
		debounce: debounce,
		logger:   logging.NewComponentLogger(logger, "staging-watch"),
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fs = fsw
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		for path, timer := range w.pending {
			if timer.Stop() {
				w.wg.Done()
			}
			delete(w.pending, path)
		}
		w.mu.Unlock()
		_ = fsw.Close()
		w.wg.Wait()
	}()

	watched := 0
	for _, root := range w.roots {
		watched += w.addRecursive(filepath.Clean(root))
	}
	w.logger.Info("library watcher started",
		logging.Int("directories", watched),
		logging.Duration("debounce", w.debounce),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("library watcher error", logging.Error(err))
		}
	}
}

func (w *Watcher) addRecursive(root string) int {
	count := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return fs.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("watch directory failed", logging.String("path", path), logging.Error(err))
			return nil
		}
		count++
		return nil
	})
	return count
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if skipDir(filepath.Base(event.Name)) {
				return
			}
			w.addRecursive(event.Name)
			w.schedule(ctx, event.Name)
			return
		}
	}
	if _, ok := Classify(event.Name); !ok {
		if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
			return
		}
	}
	w.schedule(ctx, event.Name)
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok && timer.Stop() {
		timer.Reset(w.debounce)
		return
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		result, err := w.scanner.ScanPath(ctx, path)
		if err != nil {
			w.logger.Warn("staging path failed", logging.String("path", path), logging.Error(err))
			return
		}
		if result.Enqueued > 0 || result.Deleted > 0 {
			w.logger.Debug("staged path",
				logging.String("path", path),
				logging.Int("enqueued", result.Enqueued),
				logging.Int("deleted", result.Deleted),
			)
		}
	})
	w.pending[path] = timer
}
