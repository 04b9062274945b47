package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Live holds the active configuration for a running daemon. Readers call Get
// on every use so edits to the file take effect without a restart.
type Live struct {
	path    string
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)
}

// NewLive wraps cfg. path is the file Reload and Watch read from.
func NewLive(cfg *Config, path string) *Live {
	live := &Live{path: path}
	live.current.Store(cfg)
	return live
}

// Get returns the current configuration snapshot. Callers must not mutate it.
func (l *Live) Get() *Config {
	return l.current.Load()
}

// Path returns the watched config file.
func (l *Live) Path() string {
	return l.path
}

// OnChange registers fn to run after every successful reload.
func (l *Live) OnChange(fn func(*Config)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Reload re-reads the config file. On any error the previous configuration
// stays active.
func (l *Live) Reload() error {
	cfg, _, exists, err := Load(l.path)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("reload config: %s does not exist", l.path)
	}
	l.current.Store(cfg)

	l.mu.Lock()
	listeners := append([]func(*Config){}, l.listeners...)
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads the configuration whenever the file changes until ctx is
// cancelled. The parent directory is watched so editors that replace the file
// by rename are handled.
func (l *Live) Watch(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config directory %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(l.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if err := l.Reload(); err != nil {
					logger.Warn("config reload failed; keeping previous configuration",
						slog.String("path", l.path),
						slog.String("error", err.Error()),
						slog.String("event_type", "config_reload_failed"),
						slog.String("error_hint", "fix the file; curator config validate shows the problem"),
					)
					continue
				}
				logger.Info("config reloaded", slog.String("path", l.path), slog.String("event_type", "config_reloaded"))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
