// Package watcher feeds files dropped into the uploads directory into
// document ingestion, with debouncing for editors and copy tools that write
// in bursts.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// UploadWatcher watches a single uploads directory and invokes callbacks when
// files appear, change, or disappear.
type UploadWatcher struct {
	dir        string
	extensions []string
	onUpload   func(path string)
	onRemove   func(path string)
	debounce   time.Duration
	fsw        *fsnotify.Watcher
	mu         sync.Mutex
	timers     map[string]*time.Timer
	done       chan struct{}
	started    bool
	stopOnce   sync.Once
	logger     *zap.Logger
}

// WatcherOption configures an UploadWatcher.
type WatcherOption func(*UploadWatcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *UploadWatcher) { w.logger = l }
}

// WithDebounce overrides the write-settle delay before a file is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *UploadWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewUploadWatcher creates a watcher over dir. extensions filters which files
// trigger callbacks (empty = all). onUpload runs after a file settles;
// onRemove runs when a watched file is deleted.
func NewUploadWatcher(dir string, extensions []string, onUpload, onRemove func(path string), opts ...WatcherOption) *UploadWatcher {
	w := &UploadWatcher{
		dir:        filepath.Clean(dir),
		extensions: extensions,
		onUpload:   onUpload,
		onRemove:   onRemove,
		debounce:   defaultDebounce,
		timers:     make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The uploads directory is created if missing. Runs
// until ctx is cancelled or Stop is called.
func (w *UploadWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Info("watching uploads directory",
			zap.String("dir", w.dir), zap.Strings("extensions", w.extensions))
	}
	go w.run(ctx)
	return nil
}

func (w *UploadWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *UploadWatcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.matchExtension(path) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		w.debounceUpload(path)
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

func (w *UploadWatcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// debounceUpload resets the settle timer for path; onUpload fires only after
// writes have stopped for the debounce window.
func (w *UploadWatcher) debounceUpload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		logger := w.logger
		w.mu.Unlock()
		if logger != nil {
			logger.Debug("upload settled", zap.String("path", path))
		}
		if w.onUpload != nil {
			w.onUpload(path)
		}
	})
}

func (w *UploadWatcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

// SyncExisting invokes onUpload for every matching file already present in
// the uploads directory. Call after Start to pick up files dropped while the
// service was down.
func (w *UploadWatcher) SyncExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if w.matchExtension(path) && w.onUpload != nil {
			w.onUpload(path)
		}
	}
	return nil
}

// Stop stops the watcher and cancels pending debounce timers.
func (w *UploadWatcher) Stop() {
	w.mu.Lock()
	if !w.started || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
