// Package watcher detects on-disk changes to resident documents and
// publishes them as doc.source.changed events, so sessions can refresh
// live copies whose source was edited outside the editor.
package watcher

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alphapapa/org-transclusion/internal/event"
	"github.com/alphapapa/org-transclusion/internal/project/workspace"
)

// ErrClosed is returned when operations are attempted on a closed watcher.
var ErrClosed = errors.New("watcher closed")

// DefaultSuppressWindow is how long after a workspace save a disk event
// on the same file is treated as our own write and ignored.
const DefaultSuppressWindow = 500 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithSuppressWindow overrides the own-write suppression window.
func WithSuppressWindow(d time.Duration) Option {
	return func(w *Watcher) {
		w.suppress = d
	}
}

// Watcher bridges fsnotify events onto the engine bus.
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	bus      *event.Bus
	ws       *workspace.Workspace
	suppress time.Duration
	paths    map[string]bool
	closed   bool
	done     chan struct{}
}

// New creates a watcher and starts its event loop.
func New(bus *event.Bus, ws *workspace.Workspace, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		bus:      bus,
		ws:       ws,
		suppress: DefaultSuppressWindow,
		paths:    make(map[string]bool),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.loop()
	return w, nil
}

// Watch starts watching a file.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.paths[abs] {
		return nil
	}
	if err := w.fsw.Add(abs); err != nil {
		return err
	}
	w.paths[abs] = true
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if w.ws.SavedWithin(ev.Name, w.suppress) {
				continue
			}
			w.bus.Publish(event.TopicSourceChanged, event.DocEvent{Path: ev.Name})
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}
