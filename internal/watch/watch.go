// Package watch reports changes to a single file, debounced.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// Option configures a File watcher.
type Option func(*File)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option { return func(f *File) { f.debounce = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(f *File) { f.logger = l } }

// File watches one file through its parent directory, so atomic
// replace-by-rename saves are seen too.
type File struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger
}

// NewFile returns a watcher for path.
func NewFile(path string, opts ...Option) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	f := &File{path: abs, debounce: DefaultDebounce, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("component", "watch"), zap.String("path", abs))
	return f, nil
}

// Path returns the absolute path being watched.
func (f *File) Path() string { return f.path }

// Run calls onChange once per burst of writes to the file until ctx ends.
// onChange runs on the watcher goroutine; events arriving meanwhile are
// coalesced into the next call.
func (f *File) Run(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}
	f.logger.Info("watching for changes", zap.Duration("debounce", f.debounce))

	timer := time.NewTimer(f.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			f.logger.Debug("file event", zap.String("op", ev.Op.String()))
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(f.debounce)
			pending = true
		case <-timer.C:
			pending = false
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("watch error", zap.Error(err))
		}
	}
}
