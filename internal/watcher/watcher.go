// Package watcher re-runs work when watched source files change, using fsnotify with
// a debounce so that a burst of writes triggers a single run.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches files (and directories) and invokes onChange after changes settle.
// onChange never runs concurrently with itself; changes arriving during a run queue
// at most one follow-up run.
type Watcher struct {
	paths    []string
	onChange func(ctx context.Context)
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	files    map[string]bool // cleaned file paths we care about
	dirs     map[string]bool // cleaned directory roots we care about
	timer    *time.Timer
	trigger  chan struct{}
	done     chan struct{}
	started  bool
	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long changes must be quiet before onChange runs.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over paths. A path naming a file is watched through its
// parent directory so editors that replace files on save are still seen.
func NewWatcher(paths []string, onChange func(ctx context.Context), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		paths:    append([]string(nil), paths...),
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns once the watches are registered; events are
// handled in the background until ctx is cancelled or Stop is called. A stopped
// watcher cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errors.New("watcher already stopped")
	}
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, p := range w.paths {
		if err := w.addLocked(fw, p); err != nil {
			_ = fw.Close()
			return err
		}
	}
	w.watcher = fw
	w.started = true
	w.logger.Debug("watcher starting", zap.Strings("paths", w.paths), zap.Duration("debounce", w.debounce))

	w.wg.Add(2)
	go w.run(ctx, fw)
	go w.worker(ctx)
	return nil
}

func (w *Watcher) addLocked(fw *fsnotify.Watcher, p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		w.dirs[abs] = true
		return fw.Add(abs)
	case err == nil || os.IsNotExist(err):
		// A missing file may appear later; its directory must exist.
		w.files[abs] = true
		return fw.Add(filepath.Dir(abs))
	default:
		return err
	}
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.trigger:
			w.logger.Debug("watcher triggering run")
			if w.onChange != nil {
				w.onChange(ctx)
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || !w.relevant(ev.Name) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	w.schedule()
}

func (w *Watcher) relevant(path string) bool {
	clean := filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[clean] {
		return true
	}
	return w.dirs[filepath.Dir(clean)] || w.dirs[clean]
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.trigger <- struct{}{}:
		default:
			// a run is already queued
		}
	})
}

// Paths returns the watched paths as given.
func (w *Watcher) Paths() []string {
	return append([]string(nil), w.paths...)
}

// Stop stops the watcher, waits for an in-flight onChange to return and releases resources.
// Every call waits, including calls made after ctx was cancelled and concurrent calls.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.started = false
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	if fw != nil {
		_ = fw.Close()
	}
}
