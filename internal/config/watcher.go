package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadSettleDelay = 150 * time.Millisecond

// Watcher serves the most recently loaded configuration and reloads it when
// the backing file changes. Workers read Current at the start of each attempt
// so trigger phrases, the volume curve, and budgets apply without a restart.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]

	mu       sync.Mutex
	onReload []func(*Config)
	onError  []func(error)
}

// NewWatcher wraps an already-loaded config. A blank path disables reloads.
func NewWatcher(path string, initial *Config) *Watcher {
	w := &Watcher{path: path}
	w.current.Store(initial)
	return w
}

// Current returns the active configuration snapshot. Callers must not mutate it.
func (w *Watcher) Current() *Config {
	if w == nil {
		return nil
	}
	return w.current.Load()
}

// OnReload registers a callback invoked after each successful reload.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// OnError registers a callback invoked when a changed file fails to parse or
// validate. The previous snapshot stays active.
func (w *Watcher) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = append(w.onError, fn)
}

// Reload re-reads the config file immediately.
func (w *Watcher) Reload() error {
	if w.path == "" {
		return nil
	}
	cfg, err := parse(w.path, true)
	if err != nil {
		w.emitError(err)
		return err
	}
	w.current.Store(cfg)
	w.mu.Lock()
	callbacks := append([]func(*Config){}, w.onReload...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

// Run watches the config directory until ctx is cancelled. Editors commonly
// replace files via rename, so the parent directory is watched rather than
// the file itself.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	target := filepath.Clean(w.path)
	var pendingSince time.Time
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pendingSince = time.Now()
			}
		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(fmt.Errorf("config watcher: %w", watchErr))
		case <-ticker.C:
			if pendingSince.IsZero() || time.Since(pendingSince) < reloadSettleDelay {
				continue
			}
			pendingSince = time.Time{}
			_ = w.Reload()
		}
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	callbacks := append([]func(error){}, w.onError...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(err)
	}
}
