// Package session ties transclusion lifecycle to document lifecycle.
//
// An active session owns every live region in its document. It strips
// copies back to their links around each save, so persisted files carry
// links only, never copy text. It does the same when the document's
// window loses focus, which keeps live propagation confined to visible
// documents. When a source file changes on disk behind the editor, the
// session refreshes every copy fetched from it.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/engine/marker"
	"github.com/alphapapa/org-transclusion/internal/event"
	"github.com/alphapapa/org-transclusion/internal/link"
	"github.com/alphapapa/org-transclusion/internal/project/workspace"
	"github.com/alphapapa/org-transclusion/internal/transclude"
)

// ErrAlreadyActive is returned when activating a document that already
// has a session.
var ErrAlreadyActive = errors.New("session already active")

// ErrNotActive is returned when deactivating a document without a
// session.
var ErrNotActive = errors.New("session not active")

// Manager owns the per-document sessions.
type Manager struct {
	ws        *workspace.Workspace
	tm        *transclude.Manager
	notify    transclude.NotifyFunc
	intercept bool

	mu       sync.Mutex
	sessions map[*workspace.Document]*Session

	srcSub *event.Subscription
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotify installs the notice sink.
func WithNotify(fn transclude.NotifyFunc) Option {
	return func(m *Manager) {
		m.notify = fn
	}
}

// WithLinkOpenInterception controls whether OpenLinkAt redirects
// transcludable links into Create. Defaults to true.
func WithLinkOpenInterception(intercept bool) Option {
	return func(m *Manager) {
		m.intercept = intercept
	}
}

// New creates a session manager over a workspace and transclusion
// manager, listening for on-disk source changes on the workspace bus.
func New(ws *workspace.Workspace, tm *transclude.Manager, opts ...Option) *Manager {
	m := &Manager{
		ws:        ws,
		tm:        tm,
		notify:    func(string) {},
		intercept: true,
		sessions:  make(map[*workspace.Document]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.srcSub = ws.Bus().Subscribe(event.TopicSourceChanged, m.onSourceChanged)
	return m
}

// Close deactivates every session and stops listening on the bus.
func (m *Manager) Close() {
	m.mu.Lock()
	docs := make([]*workspace.Document, 0, len(m.sessions))
	for d := range m.sessions {
		docs = append(docs, d)
	}
	m.mu.Unlock()

	for _, d := range docs {
		_ = m.Deactivate(d)
	}
	m.srcSub.Unsubscribe()
}

// Session is the live transclusion state of one document.
type Session struct {
	m   *Manager
	doc *workspace.Document

	subs []*event.Subscription

	// cursor survives a save cycle: the strip and restore around the
	// write move text under the caller's feet.
	cursor *marker.Marker
}

// Activate creates a session for a document and installs its save and
// focus hooks. Activating an active document is a no-op with a notice.
func (m *Manager) Activate(doc *workspace.Document) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[doc]; ok {
		m.mu.Unlock()
		m.notify(fmt.Sprintf("transclusion already active in %s", doc.Path))
		return s, ErrAlreadyActive
	}
	s := &Session{m: m, doc: doc}
	m.sessions[doc] = s
	m.mu.Unlock()

	bus := m.ws.Bus()
	s.subs = []*event.Subscription{
		bus.Subscribe(event.TopicSaveBefore, s.onDoc(s.onSaveBefore)),
		bus.Subscribe(event.TopicSaveAfter, s.onDoc(s.onSaveAfter)),
		bus.Subscribe(event.TopicFocusLost, s.onDoc(func() { s.RemoveAll() })),
		bus.Subscribe(event.TopicFocusGained, s.onDoc(func() { s.AddAll() })),
	}
	return s, nil
}

// Deactivate strips the document's live copies, uninstalls its hooks,
// and destroys the session. Deactivating an inactive document is a
// no-op with a notice.
func (m *Manager) Deactivate(doc *workspace.Document) error {
	m.mu.Lock()
	s, ok := m.sessions[doc]
	if ok {
		delete(m.sessions, doc)
	}
	m.mu.Unlock()

	if !ok {
		m.notify(fmt.Sprintf("transclusion not active in %s", doc.Path))
		return ErrNotActive
	}
	s.RemoveAll()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	return nil
}

// Active reports whether a document has a session.
func (m *Manager) Active(doc *workspace.Document) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[doc]
	return ok
}

// OpenLinkAt intercepts the generic link-open action. A transcludable
// link in an active document is routed into Create instead of default
// navigation, unless override requests navigation. The first return
// reports whether the action was intercepted.
func (m *Manager) OpenLinkAt(doc *workspace.Document, point buffer.ByteOffset, override bool) (bool, error) {
	if override || !m.intercept || !m.Active(doc) {
		return false, nil
	}
	lnk, ok := link.ParseAt(doc.Buf, point)
	if !ok || !lnk.Transcludable {
		return false, nil
	}
	_, err := m.tm.Create(doc, point)
	return true, err
}

// onDoc filters a bus handler down to this session's document.
func (s *Session) onDoc(fn func()) event.Handler {
	return func(ev event.Event) {
		if de, ok := ev.Payload.(event.DocEvent); ok && de.Path == s.doc.Path {
			fn()
		}
	}
}

func (s *Session) onSaveBefore() {
	s.cursor = s.doc.Markers.At(s.doc.Cursor, marker.GravityLeft, marker.WithClampOnDelete())
	s.RemoveAll()
}

func (s *Session) onSaveAfter() {
	s.AddAll()

	for _, path := range s.doc.Regions.SourcePaths() {
		src := s.m.ws.Get(path)
		if src == nil || !src.Modified() {
			continue
		}
		if err := s.m.ws.Save(src); err != nil {
			s.m.notify(fmt.Sprintf("saving source %s: %v", path, err))
		}
	}

	if s.cursor != nil {
		if s.cursor.Valid() {
			s.doc.Cursor = s.cursor.Offset()
		}
		s.cursor.Release()
		s.cursor = nil
	}
	s.doc.ClearModified()
}

// AddAll establishes a transclusion for every keyword line in the
// document, in document order, skipping over each inserted copy so copy
// content is never scanned for further occurrences. Failed lines are
// reported as notices and left as links.
func (s *Session) AddAll() {
	buf := s.doc.Buf
	for off := buffer.ByteOffset(0); off < buf.Len(); {
		end := buf.LineEndAt(off)
		if link.IsTranscludable(buf.TextRange(off, end)) {
			r, err := s.m.tm.Create(s.doc, off)
			if err == nil {
				off = r.End.Offset()
				continue
			}
			s.m.notify(fmt.Sprintf("transclusion failed in %s: %v", s.doc.Path, err))
		}
		off = end + 1
	}
}

// RemoveAll reverts every live copy in the document back to its link.
func (s *Session) RemoveAll() {
	for _, r := range s.doc.Regions.All() {
		if !r.Valid() {
			continue
		}
		if err := s.m.tm.Remove(s.doc, r.Bounds().Start); err != nil {
			s.m.notify(fmt.Sprintf("removing transclusion in %s: %v", s.doc.Path, err))
		}
	}
}

// onSourceChanged refreshes every active document that transcludes from
// the changed file, and the changed document itself when it is active.
func (m *Manager) onSourceChanged(ev event.Event) {
	de, ok := ev.Payload.(event.DocEvent)
	if !ok {
		return
	}

	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	var refs []*Session
	for _, s := range all {
		if s.doc.Path == de.Path {
			refs = append(refs, s)
			continue
		}
		for _, p := range s.doc.Regions.SourcePaths() {
			if p == de.Path {
				refs = append(refs, s)
				break
			}
		}
	}
	if len(refs) == 0 {
		return
	}

	for _, s := range refs {
		s.RemoveAll()
	}
	if m.ws.Get(de.Path) != nil {
		if err := m.ws.Reload(de.Path); err != nil {
			m.notify(fmt.Sprintf("reloading %s: %v", de.Path, err))
		}
	}
	for _, s := range refs {
		s.AddAll()
	}
}
