// Package watcher re-runs a callback when watched documents change,
// coalescing bursts of filesystem events with a debouncer.
package watcher

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned when operations are called on a closed Watcher.
var ErrClosed = errors.New("watcher: watcher is closed")

// DefaultDebounce is the default event coalescing window.
const DefaultDebounce = 250 * time.Millisecond

// Handler is called with the changed file paths. Bursts of events within
// the debounce window coalesce into one call.
type Handler func(paths []string)

// ErrorHandler is called when the underlying watch fails.
type ErrorHandler func(err error)

// Watcher watches documents for changes. Editors commonly replace files by
// rename, so the parent directory is watched and events are filtered to the
// registered files.
type Watcher struct {
	fs           *fsnotify.Watcher
	debouncer    *Debouncer
	handler      Handler
	errorHandler ErrorHandler

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]bool
	pending map[string]bool
	closed  bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the event coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debouncer = NewDebouncer(d)
		}
	}
}

// WithErrorHandler sets the error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(w *Watcher) {
		w.errorHandler = h
	}
}

// New creates a Watcher delivering changes to handler.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:        fs,
		debouncer: NewDebouncer(DefaultDebounce),
		handler:   handler,
		files:     map[string]bool{},
		dirs:      map[string]bool{},
		pending:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w, nil
}

// Add registers a file to watch.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.files[abs] {
		return nil
	}
	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[abs] = true
	return nil
}

// Files returns the watched file paths.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.debouncer.Cancel()
	return w.fs.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if w.errorHandler != nil {
				w.errorHandler(err)
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	if !w.files[abs] {
		w.mu.Unlock()
		return
	}
	w.pending[abs] = true
	w.mu.Unlock()

	w.debouncer.Trigger(func() {
		w.mu.Lock()
		paths := make([]string, 0, len(w.pending))
		for p := range w.pending {
			paths = append(paths, p)
		}
		w.pending = map[string]bool{}
		w.mu.Unlock()
		if len(paths) > 0 && w.handler != nil {
			w.handler(paths)
		}
	})
}
