package policypack

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce is how long the watcher waits after the last file event
// before re-applying, so editors that write in several steps trigger one
// reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher re-applies a pack file whenever it changes on disk. A pack that
// fails to load or apply is logged and skipped; the stored policies keep
// their previous state.
type Watcher struct {
	path    string
	applier *Applier
	logger  *zap.Logger
}

func NewWatcher(path string, applier *Applier, logger *zap.Logger) *Watcher {
	return &Watcher{path: filepath.Clean(path), applier: applier, logger: logger}
}

// Run blocks until ctx is cancelled. The watch is on the directory rather
// than the file so editors that replace the file by rename keep triggering.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("Run: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("Run: watch %s: %w", filepath.Dir(w.path), err)
	}

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounce.C:
			w.reload(ctx)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("pack watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	if _, err := w.applier.ApplyFile(ctx, w.path); err != nil {
		w.logger.Warn("policy pack reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("policy pack reloaded", zap.String("path", w.path))
}
