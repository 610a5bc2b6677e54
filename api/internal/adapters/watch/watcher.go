// Package watch reloads model documents when they change on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Target is one watched document and what to do with it after it changed.
type Target struct {
	Path string
	Load func(ctx context.Context, path string) error
}

// DocumentWatcher watches the directories of its targets, so that editors
// replacing a file through rename are seen too, and coalesces bursts of
// events into one Load per target.
type DocumentWatcher struct {
	targets  map[string]Target
	debounce time.Duration
	logger   *slog.Logger
}

func NewDocumentWatcher(debounce time.Duration, logger *slog.Logger, targets ...Target) *DocumentWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	w := &DocumentWatcher{targets: make(map[string]Target), debounce: debounce, logger: logger}
	for _, t := range targets {
		w.targets[filepath.Clean(t.Path)] = t
	}
	return w
}

// Run blocks until ctx is done. Loads run one at a time on the caller's goroutine.
func (w *DocumentWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dirs := map[string]bool{}
	for path := range w.targets {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	w.logger.Info("watching model documents", slog.Int("documents", len(w.targets)))

	fire := make(chan string, len(w.targets))
	timers := map[string]*time.Timer{}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if _, watched := w.targets[path]; !watched {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if t, ok := timers[path]; ok {
				t.Reset(w.debounce)
				continue
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- path:
				default:
				}
			})

		case path := <-fire:
			delete(timers, path)
			w.reload(ctx, w.targets[path])

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("document watcher error", slog.Any("error", err))

		case <-ctx.Done():
			w.logger.Info("document watcher stopping")
			return nil
		}
	}
}

func (w *DocumentWatcher) reload(ctx context.Context, t Target) {
	start := time.Now()
	if err := t.Load(ctx, t.Path); err != nil {
		// the running model stays as it is until the document is fixed
		w.logger.Error("document reload rejected", slog.String("path", t.Path), slog.Any("error", err))
		return
	}
	w.logger.Info("document reloaded", slog.String("path", t.Path), slog.Duration("took", time.Since(start)))
}
