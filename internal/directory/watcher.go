package directory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of editor writes into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a file-backed catalog when the file changes.
type Watcher struct {
	catalog  *YAMLCatalog
	logger   *slog.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer

	// OnReload, if set, is called after every reload attempt.
	OnReload func(err error)
}

// NewWatcher creates a watcher for a catalog loaded from a file.
func NewWatcher(catalog *YAMLCatalog, logger *slog.Logger) (*Watcher, error) {
	if catalog.Path() == "" {
		return nil, fmt.Errorf("catalog has no backing file to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		catalog:  catalog,
		logger:   logger,
		debounce: DefaultDebounce,
		fsw:      fsw,
	}, nil
}

// Start watches the catalog's directory until ctx is done.
// The directory is watched rather than the file so atomic renames are seen.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.catalog.Path())
	if err := w.fsw.Add(dir); err != nil {
		_ = w.fsw.Close()
		return fmt.Errorf("failed to add path to watcher: %w", err)
	}

	w.logger.Info("watching catalog", "path", w.catalog.Path(), "debounce", w.debounce)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		_ = w.fsw.Close()
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		w.logger.Info("catalog watcher stopped")
	}()

	target := filepath.Clean(w.catalog.Path())

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("catalog watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	err := w.catalog.Reload()
	if err != nil {
		w.logger.Error("catalog reload failed, keeping previous contents", "path", w.catalog.Path(), "error", err)
	} else {
		w.logger.Info("catalog reloaded", "path", w.catalog.Path())
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
