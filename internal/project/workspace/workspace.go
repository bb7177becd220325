// Package workspace manages the set of resident documents.
//
// A Document bundles a buffer with the position-tracking machinery every
// consumer needs wired in one fixed order: the marker set observes the
// buffer first, so stable positions are already adjusted by the time any
// later observer (such as the mirror) runs.
//
// The Workspace loads documents from disk on first reference, tracks
// their modified state, and publishes save lifecycle events on the bus so
// per-document sessions can strip and restore live copies around every
// persist.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/engine/marker"
	"github.com/alphapapa/org-transclusion/internal/engine/region"
	"github.com/alphapapa/org-transclusion/internal/event"
)

// ErrNotResident is returned when an operation needs a document that has
// not been opened.
var ErrNotResident = errors.New("document not resident")

// Document is one resident document.
type Document struct {
	// Path is the document's absolute path. Scratch documents carry a
	// caller-chosen identifier instead.
	Path string

	// Buf holds the document text.
	Buf *buffer.Buffer

	// Markers owns every stable position handle into Buf.
	Markers *marker.Set

	// Regions holds the live transclusion occurrences in this document.
	Regions *region.Table

	// Cursor is the last reported cursor position, used to keep the
	// cursor stable across a save cycle.
	Cursor buffer.ByteOffset

	mu       sync.Mutex
	modified bool
}

// newDocument wires a document's buffer, markers, and region table.
func newDocument(path, content string) *Document {
	d := &Document{
		Path:    path,
		Buf:     buffer.FromString(content),
		Markers: marker.NewSet(),
		Regions: region.NewTable(),
	}
	d.Buf.Observe(d.Markers.Apply)
	d.Buf.Observe(func(buffer.Change) { d.markModified() })
	return d
}

// Modified reports whether the document has unsaved changes.
func (d *Document) Modified() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modified
}

// ClearModified resets the modified flag.
func (d *Document) ClearModified() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modified = false
}

func (d *Document) markModified() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modified = true
}

// Workspace is the registry of resident documents.
type Workspace struct {
	mu      sync.Mutex
	bus     *event.Bus
	docs    map[string]*Document
	saving  map[string]bool
	savedAt map[string]time.Time
}

// New creates an empty workspace publishing on the given bus.
func New(bus *event.Bus) *Workspace {
	return &Workspace{
		bus:     bus,
		docs:    make(map[string]*Document),
		saving:  make(map[string]bool),
		savedAt: make(map[string]time.Time),
	}
}

// Open returns the resident document for path, loading it from disk if
// needed. This is the engine's one blocking step.
func (w *Workspace) Open(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	w.mu.Lock()
	if d, ok := w.docs[abs]; ok {
		w.mu.Unlock()
		return d, nil
	}
	w.mu.Unlock()

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", abs, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.docs[abs]; ok {
		return d, nil
	}
	d := newDocument(abs, string(data))
	w.docs[abs] = d
	return d, nil
}

// NewScratch registers an in-memory document that is not backed by disk
// until first saved. The key must be an absolute path or a stable
// identifier.
func (w *Workspace) NewScratch(key, content string) *Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := newDocument(key, content)
	w.docs[key] = d
	return d
}

// Get returns the resident document for path, or nil.
func (w *Workspace) Get(path string) *Document {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.docs[path]
}

// Documents returns a snapshot of all resident documents.
func (w *Workspace) Documents() []*Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Document, 0, len(w.docs))
	for _, d := range w.docs {
		out = append(out, d)
	}
	return out
}

// Save persists a document's current content. It publishes
// doc.save.before, writes, then publishes doc.save.after, so session
// hooks can strip live copies before the write and restore them after.
// Reentrant saves of the same document (a save cycle that saves its own
// sources in a reference loop) are skipped.
func (w *Workspace) Save(d *Document) error {
	if d == nil {
		return ErrNotResident
	}

	w.mu.Lock()
	if w.saving[d.Path] {
		w.mu.Unlock()
		return nil
	}
	w.saving[d.Path] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.saving, d.Path)
		w.mu.Unlock()
	}()

	w.bus.Publish(event.TopicSaveBefore, event.DocEvent{Path: d.Path})

	if err := os.WriteFile(d.Path, []byte(d.Buf.Text()), 0o644); err != nil {
		return fmt.Errorf("saving %s: %w", d.Path, err)
	}
	w.mu.Lock()
	w.savedAt[d.Path] = time.Now()
	w.mu.Unlock()
	d.ClearModified()

	w.bus.Publish(event.TopicSaveAfter, event.DocEvent{Path: d.Path})
	return nil
}

// Reload replaces a resident document's content with the current disk
// content. Markers over replaced spans clamp or invalidate, and any live
// pairs on the document collapse through the normal rules.
func (w *Workspace) Reload(path string) error {
	d := w.Get(path)
	if d == nil {
		return fmt.Errorf("%w: %s", ErrNotResident, path)
	}

	data, err := os.ReadFile(d.Path)
	if err != nil {
		return fmt.Errorf("reloading %s: %w", d.Path, err)
	}

	if _, err := d.Buf.Replace(0, d.Buf.Len(), string(data)); err != nil {
		return err
	}
	d.ClearModified()
	return nil
}

// SavedWithin reports whether the workspace itself wrote the file within
// the given window. The disk watcher uses this to ignore its own writes.
func (w *Workspace) SavedWithin(path string, window time.Duration) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.savedAt[path]
	return ok && time.Since(at) <= window
}

// Bus returns the workspace's event bus.
func (w *Workspace) Bus() *event.Bus {
	return w.bus
}
