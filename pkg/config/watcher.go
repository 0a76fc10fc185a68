package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is the quiet period after a file event before reloading,
// preventing reload storms from editors that write in several steps.
const watchDebounce = 100 * time.Millisecond

// Watcher hot-reloads the RAG section of the configuration file. Only the
// RAG knobs are reloadable; server address and MCP topology are fixed for
// the process lifetime.
type Watcher struct {
	path    string
	store   *Store
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		path:    path,
		store:   store,
		watcher: fsw,
		logger:  slog.Default().With("component", "config"),
	}, nil
}

// Watch blocks processing file events until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.path, err)
	}
	defer w.watcher.Close()

	w.logger.Info("config watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounce(w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// debounce schedules fn after the quiet period, resetting on new events.
func (w *Watcher) debounce(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, fn)
}

// reload re-reads the file and swaps the RAG section into the store.
func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous configuration", "error", err)
		return
	}

	w.store.swapRag(cfg.Rag)
	w.logger.Info("rag configuration reloaded", "enabled", cfg.Rag != nil && cfg.Rag.Enable)
}
