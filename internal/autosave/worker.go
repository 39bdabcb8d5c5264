// Package autosave periodically writes a changed store to disk so a crash
// loses at most one interval of edits.
package autosave

import (
	"context"
	"log/slog"
	"time"
)

// Snapshotter is the part of the store the worker needs.
type Snapshotter interface {
	Version() uint64
	Save() error
}

// Worker saves the store whenever its version has moved since the last save.
type Worker struct {
	store  Snapshotter
	every  time.Duration
	saved  uint64
	logger *slog.Logger
}

// NewWorker creates a Worker. If interval is <= 0, it defaults to 30s.
func NewWorker(store Snapshotter, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  store,
		every:  interval,
		saved:  store.Version(),
		logger: logger.With("component", "autosave"),
	}
}

// Run saves on every tick until ctx is cancelled. Failed saves are logged
// and retried on the next tick.
func (w *Worker) Run(ctx context.Context) {
	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		if _, err := w.RunOnce(); err != nil {
			w.logger.Error("autosave failed", "error", err)
		}
	}
}

// RunOnce saves if anything changed. It reports whether a save happened.
func (w *Worker) RunOnce() (bool, error) {
	v := w.store.Version()
	if v == w.saved {
		return false, nil
	}
	if err := w.store.Save(); err != nil {
		return false, err
	}
	w.saved = v
	w.logger.Debug("store saved", "version", v)
	return true, nil
}
