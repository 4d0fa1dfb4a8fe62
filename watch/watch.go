// Package watch triggers a sync when a new activity export settles in the
// source directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lucasjlepore/fitsync/locate"
)

// DefaultDebounce is the quiet period after the last matching event.
const DefaultDebounce = 5 * time.Second

// Watcher runs Sync once writes to matching files in Dir have been quiet for
// Debounce. Sync calls never overlap.
type Watcher struct {
	Dir      string
	Pattern  locate.Pattern
	Debounce time.Duration
	Logger   *slog.Logger
	Sync     func(ctx context.Context)
}

// Run blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Sync == nil {
		return errors.New("watch: sync callback is required")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	logger.Info("watching for activities", "dir", w.Dir, "debounce", debounce)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := ""

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopping", "reason", ctx.Err())
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watch: event stream closed")
			}
			logger.Warn("watch error", "error", err)
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watch: event stream closed")
			}
			if !w.relevant(ev) {
				continue
			}
			logger.Debug("activity changed", "path", ev.Name, "op", ev.Op.String())
			pending = ev.Name
			timer.Reset(debounce)
		case <-timer.C:
			logger.Info("activity settled, syncing", "path", pending)
			pending = ""
			w.Sync(ctx)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	_, ok := w.Pattern.Match(filepath.Base(ev.Name))
	return ok
}
