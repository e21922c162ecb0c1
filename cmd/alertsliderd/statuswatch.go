package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// statusWatchSource is the KeyEvent source used for changes noticed on the
// status file. It is always accepted by the key filter when the watcher is
// enabled.
const statusWatchSource = "status-file"

// StatusWatcher turns writes to the position status file into synthetic
// key releases. It covers kernels that update the status node without
// emitting an input event. procfs nodes do not raise inotify events, so
// this is only useful for status files on a regular filesystem.
type StatusWatcher struct {
	path   string
	settle time.Duration
	post   func(Event)
	logger *slog.Logger
}

// NewStatusWatcher watches path. Bursts of writes closer together than
// settle produce one event.
func NewStatusWatcher(path string, settle time.Duration, post func(Event), logger *slog.Logger) *StatusWatcher {
	return &StatusWatcher{path: filepath.Clean(path), settle: settle, post: post, logger: logger}
}

// Run watches until ctx is canceled.
func (w *StatusWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so that atomic replacement (write temp, rename)
	// is seen too.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching slider status file", "path", w.path)

	var settleC <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				timer.Reset(w.settle)
			}
			settleC = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("status watcher error", "error", err)

		case now := <-settleC:
			settleC = nil
			w.post(KeyInput{Key: KeyEvent{
				Source: statusWatchSource,
				Phase:  KeyPhaseUp,
				At:     now,
			}})
		}
	}
}
