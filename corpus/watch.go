package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// sourceListDebounce is the quiet period after a file event before the
// list is re-synced. Editors and atomic writers emit bursts of events
// for a single save; the timer resets on each one.
const sourceListDebounce = 500 * time.Millisecond

// WatchSourceList re-syncs the registry whenever the source list file
// changes, so operator edits land without a restart. It watches the
// file's parent directory rather than the file itself, which survives
// editors and deployments that replace the file via rename. Blocks until
// ctx is cancelled.
func (s *Service) WatchSourceList(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	log := s.logger.With("path", path)
	log.Info("corpus: watching source list", "debounce", sourceListDebounce)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Info("corpus: source list watch stopped")
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			// Create covers atomic replace (write tmp + rename over target).
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(sourceListDebounce)
			debounceCh = debounceTimer.C
			log.Debug("corpus: source list changed, debouncing", "op", ev.Op.String())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("corpus: source list watch error", "error", err)

		case <-debounceCh:
			debounceCh = nil
			s.resyncSourceList(ctx, path, log)
		}
	}
}

func (s *Service) resyncSourceList(ctx context.Context, path string, log *slog.Logger) {
	specs, err := LoadSourceList(path)
	if err != nil {
		log.Warn("corpus: source list reload failed", "error", err)
		return
	}
	added, updated, err := s.SyncSources(ctx, specs)
	if err != nil {
		log.Warn("corpus: source list sync failed", "error", err)
		return
	}
	log.Info("corpus: source list reloaded", "added", added, "updated", updated)
}
