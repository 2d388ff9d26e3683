package prompts

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a prompt directory into a live registry when files change.
type Watcher struct {
	dir      string
	live     *Registry
	opts     []Option
	logger   *slog.Logger
	debounce time.Duration
	onReload func(LoadResult)
}

func NewWatcher(dir string, live *Registry, logger *slog.Logger, opts ...Option) *Watcher {
	return &Watcher{
		dir:      dir,
		live:     live,
		opts:     opts,
		logger:   logger,
		debounce: 250 * time.Millisecond,
	}
}

// OnReload registers a callback that fires after each successful reload.
func (w *Watcher) OnReload(fn func(LoadResult)) {
	w.onReload = fn
}

// Reload loads the directory into a fresh registry and swaps it in.
func (w *Watcher) Reload() (LoadResult, error) {
	fresh := NewRegistry(append([]Option{WithLogger(w.logger)}, w.opts...)...)
	res, err := LoadDir(fresh, w.dir, w.logger)
	if err != nil {
		return res, err
	}
	if res.Templates == 0 {
		return res, fmt.Errorf("no templates loaded from %s", w.dir)
	}
	w.live.Replace(fresh)
	return res, nil
}

// Watch starts watching until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watch prompts dir %s: %w", w.dir, err)
	}

	go func() {
		defer watcher.Close()
		var timer <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".yaml") {
					if event.Has(fsnotify.Create) {
						// New subdirectories need their own watch.
						_ = watcher.Add(event.Name)
					}
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					timer = time.After(w.debounce)
				}
			case <-timer:
				timer = nil
				w.logger.Info("prompt files changed, reloading", "dir", w.dir)
				res, err := w.Reload()
				if err != nil {
					w.logger.Error("failed to reload prompts", "error", err)
					continue
				}
				if w.onReload != nil {
					w.onReload(res)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("fsnotify error", "error", err)
			}
		}
	}()
	return nil
}
