package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to collect events before flushing one batch.
	Debounce time.Duration

	// Excludes are basedir-relative paths (files or directory prefixes)
	// whose events are dropped — the state file, the build log, scratch
	// directories.
	Excludes []string

	// Logger receives watcher diagnostics; nil uses the process default.
	Logger *slog.Logger
}

// Watcher delivers debounced batches of changed paths under one base
// directory.
type Watcher struct {
	fs       *fsnotify.Watcher
	basedir  string
	excludes []string
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	paths   map[string]struct{}
	pending map[string]struct{}
	closed  bool

	changes chan []string
	done    chan struct{}
}

// New starts watching basedir recursively. Directories created later are
// picked up from their create events.
func New(basedir string, options Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := options.Debounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		fs:       fsw,
		basedir:  basedir,
		excludes: options.Excludes,
		debounce: debounce,
		logger:   logger,
		paths:    make(map[string]struct{}),
		pending:  make(map[string]struct{}),
		changes:  make(chan []string, 1),
		done:     make(chan struct{}),
	}

	if err := w.addRecursive(basedir); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// SetPaths replaces the set of watched relative paths. Events for paths
// outside the set are dropped.
func (w *Watcher) SetPaths(paths []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = make(map[string]struct{}, len(paths))
	for _, p := range paths {
		w.paths[p] = struct{}{}
	}
}

// Changes returns the queue of debounced change batches. The channel is
// closed when the watcher shuts down.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

// Close stops event processing. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	return w.fs.Close()
}

// run is the event loop: collect relevant events into the pending set and
// flush it as one batch once the debounce interval passes without activity.
func (w *Watcher) run() {
	defer close(w.changes)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.handleEvent(event) {
				if timerActive && !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
				timerActive = true
			}

		case <-timer.C:
			timerActive = false
			batch := w.takePending()
			if len(batch) == 0 {
				continue
			}
			select {
			case w.changes <- batch:
			case <-w.done:
				return
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)

		case <-w.done:
			return
		}
	}
}

// handleEvent filters one event and reports whether it added to the
// pending set. New directories are subscribed as a side effect.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	rel, err := filepath.Rel(w.basedir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	if w.excluded(rel) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", rel, "error", err)
			}
			return false
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.paths[rel]; !ok {
		return false
	}
	w.pending[rel] = struct{}{}
	return true
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]struct{})
	return batch
}

func (w *Watcher) excluded(rel string) bool {
	for _, ex := range w.excludes {
		if rel == ex || strings.HasPrefix(rel, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addRecursive subscribes a directory and all its subdirectories.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, rerr := filepath.Rel(w.basedir, path); rerr == nil && w.excluded(rel) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}
