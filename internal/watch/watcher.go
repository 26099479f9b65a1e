package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler receives a batch of changed paths, deduplicated and sorted.
type Handler func(paths []string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the watcher waits for changes to stop before
// calling the handler. The default is 200ms.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher batches file system events for agent files under a root.
type Watcher struct {
	root     string
	filter   *Filter
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// New creates a watcher for root. Call Run to start it.
func New(root string, handler Handler, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		root:     root,
		filter:   NewFilter(root),
		handler:  handler,
		debounce: 200 * time.Millisecond,
		logger:   slog.New(slog.DiscardHandler),
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if w.filter.SkipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

// Run watches until ctx is done. Pending changes are flushed before it
// returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	var batch []string
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		slices.Sort(batch)
		paths := slices.Compact(batch)
		batch = nil
		w.logger.Debug("files changed", slog.Int("count", len(paths)))
		w.handler(paths)
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			flush()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						w.logger.Warn("watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.filter.Match(ev.Name) {
				continue
			}
			batch = append(batch, ev.Name)
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				flush()
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		case <-timer.C:
			flush()
		}
	}
}
