// Package reload picks up parameters registered on disk while a session is
// running, so `tweaker register` does not have to wait for a restart.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kalambet/tweaker/internal/store"
)

// Watcher merges new registrations from the snapshot file into a live store.
type Watcher struct {
	store  *store.Store
	logger *slog.Logger
}

func New(st *store.Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{store: st, logger: logger.With("component", "reload")}
}

// Reload reads the snapshot file and adopts any parameter the live store
// does not have. Values of known parameters are left alone.
func (w *Watcher) Reload() ([]string, error) {
	disk, err := store.Load(w.store.Path())
	if err != nil {
		return nil, err
	}
	added := w.store.Adopt(disk)
	for _, name := range added {
		w.logger.Info("parameter registered on disk", "name", name)
	}
	return added, nil
}

// Run watches the snapshot file's directory until ctx is cancelled. The
// directory is watched rather than the file because saves replace the file
// by rename.
func (w *Watcher) Run(ctx context.Context) error {
	path := filepath.Clean(w.store.Path())
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Debug("watching store file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if _, err := w.Reload(); err != nil {
					// A half-written file from another editor is not fatal.
					w.logger.Warn("failed to reload store file", "error", err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}
