// Package transclude implements the occurrence state machine: a link
// line becomes a live, mirrored copy of its target, and later either
// reverts to the link or detaches into plain text.
//
// Each occurrence moves between three states. A LINK is a keyword line
// whose text is the document's own. TRANSCLUDED replaces that line with
// a tagged copy of the fetched content, bound to its source by a mirror
// pair. Remove returns the occurrence to LINK byte-identically; Detach
// leaves the copy behind as untagged text under the keyword-stripped
// link.
package transclude

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/engine/marker"
	"github.com/alphapapa/org-transclusion/internal/engine/mirror"
	"github.com/alphapapa/org-transclusion/internal/engine/region"
	"github.com/alphapapa/org-transclusion/internal/link"
	"github.com/alphapapa/org-transclusion/internal/project/workspace"
)

// NotifyFunc receives short user-facing notices. Notices report expected
// conditions (a collapsed region, a skipped no-op); they are never fatal.
type NotifyFunc func(msg string)

// Manager creates and tears down transclusion occurrences.
type Manager struct {
	ws       *workspace.Workspace
	resolver *link.Resolver
	mirror   *mirror.Mirror
	margin   bool
	notify   NotifyFunc

	mu     sync.Mutex
	shapes map[string]*regexp.Regexp
	pairs  map[uuid.UUID]*mirror.Pair
}

// Option configures a Manager.
type Option func(*Manager)

// WithMargin controls whether copy bounds use joining gravity, so text
// typed at a copy boundary becomes part of the copy. Defaults to true.
// The source side's gravity is fixed at fetch time by the providers.
func WithMargin(margin bool) Option {
	return func(m *Manager) {
		m.margin = margin
	}
}

// WithShape constrains copies produced by the given handler type to keep
// matching a pattern; a copy that stops matching shrinks or collapses.
func WithShape(typeTag string, re *regexp.Regexp) Option {
	return func(m *Manager) {
		m.shapes[typeTag] = re
	}
}

// WithNotify installs the notice sink.
func WithNotify(fn NotifyFunc) Option {
	return func(m *Manager) {
		m.notify = fn
	}
}

// New creates a manager over a workspace and resolver.
func New(ws *workspace.Workspace, resolver *link.Resolver, opts ...Option) *Manager {
	m := &Manager{
		ws:       ws,
		resolver: resolver,
		mirror:   mirror.New(),
		margin:   true,
		notify:   func(string) {},
		shapes:   make(map[string]*regexp.Regexp),
		pairs:    make(map[uuid.UUID]*mirror.Pair),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create turns the link line at point into a live copy of its target.
// Inside an existing copy it returns that region unchanged. The link
// line, including its newline when present, is replaced by the fetched
// content; a trailing newline is synthesized outside the copy when the
// content lacks one, so removal restores the document byte-identically.
func (m *Manager) Create(doc *workspace.Document, point buffer.ByteOffset) (*region.Region, error) {
	if r := doc.Regions.At(point); r != nil {
		m.notify("already transcluded here")
		return r, nil
	}

	lnk, ok := link.ParseAt(doc.Buf, point)
	if !ok || !lnk.Transcludable {
		return nil, ErrNoLink
	}

	h, target, ok := m.resolver.Resolve(lnk.Body)
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %q", link.ErrUnresolvedTarget, lnk.Body)
	}
	p, err := h.Fetch(target)
	if err != nil {
		return nil, fmt.Errorf("transcluding %q: %w", lnk.Body, err)
	}

	// An empty copy would be a zero-length region no point can address,
	// with no way back to the link. Leave the link line alone instead.
	if p.Content == "" {
		p.Begin.Release()
		p.End.Release()
		return nil, fmt.Errorf("%w: %q", ErrEmptyContent, lnk.Body)
	}

	// A source range that contains the link line would mirror the copy
	// into itself.
	if p.SourcePath == doc.Path && lnk.Begin >= p.Begin.Offset() && lnk.Begin < p.End.Offset() {
		p.Begin.Release()
		p.End.Release()
		return nil, fmt.Errorf("%w: %q", ErrRecursive, lnk.Body)
	}

	srcDoc := m.ws.Get(p.SourcePath)
	if srcDoc == nil {
		p.Begin.Release()
		p.End.Release()
		return nil, fmt.Errorf("%w: %s", workspace.ErrNotResident, p.SourcePath)
	}

	linkEOL := lnk.End < doc.Buf.Len()
	delEnd := lnk.End
	if linkEOL {
		delEnd++
	}
	insert := p.Content
	synthEOL := false
	if linkEOL && !strings.HasSuffix(insert, "\n") {
		insert += "\n"
		synthEOL = true
	}
	if _, err := doc.Buf.Replace(lnk.Begin, delEnd, insert); err != nil {
		p.Begin.Release()
		p.End.Release()
		return nil, err
	}

	startGravity, endGravity := marker.GravityRight, marker.GravityLeft
	if m.margin {
		startGravity, endGravity = marker.GravityLeft, marker.GravityRight
	}
	copyEnd := lnk.Begin + buffer.ByteOffset(len(p.Content))
	r := doc.Regions.Add(&region.Region{
		TypeTag:    h.TypeTag,
		RawLink:    lnk.Raw,
		LinkEOL:    linkEOL,
		SynthEOL:   synthEOL,
		Start:      doc.Markers.At(lnk.Begin, startGravity, marker.WithClampOnDelete()),
		End:        doc.Markers.At(copyEnd, endGravity, marker.WithClampOnDelete()),
		SourcePath: p.SourcePath,
		SrcBegin:   p.Begin,
		SrcEnd:     p.End,
	})

	var popts []mirror.Option
	if re, ok := m.shape(h.TypeTag); ok {
		popts = append(popts, mirror.WithShape(re))
	}
	popts = append(popts, mirror.WithCollapseFunc(func(*mirror.Pair) {
		m.dropRegion(doc, r)
		m.notify(fmt.Sprintf("transclusion collapsed: %s", lnk.Body))
	}))

	pair, err := m.mirror.NewPair(
		mirror.SideSpec{Buf: srcDoc.Buf, Start: p.Begin, End: p.End},
		mirror.SideSpec{Buf: doc.Buf, Start: r.Start, End: r.End},
		popts...,
	)
	if err != nil {
		m.dropRegion(doc, r)
		return nil, err
	}

	m.mu.Lock()
	m.pairs[r.ID] = pair
	m.mu.Unlock()
	return r, nil
}

// Remove reverts the copy containing point back to its link line. The
// document text is restored byte-identically to the pre-create state,
// up to edits made elsewhere in the meantime.
func (m *Manager) Remove(doc *workspace.Document, point buffer.ByteOffset) error {
	r := doc.Regions.At(point)
	if r == nil {
		return ErrNoActiveTransclusion
	}
	m.closePair(r.ID)

	start, end := r.Start.Offset(), r.End.Offset()
	end = m.pastSynthEOL(doc, r, end)

	restored := r.RawLink
	if r.LinkEOL {
		restored += "\n"
	}
	if _, err := doc.Buf.Replace(start, end, restored); err != nil {
		return err
	}
	m.dropRegion(doc, r)
	return nil
}

// Detach unhooks the copy containing point, leaving its text in place as
// plain content, and restores the link on its own line at the former
// region's start with the transclusion keyword stripped, so the line is
// no longer an occurrence.
func (m *Manager) Detach(doc *workspace.Document, point buffer.ByteOffset) error {
	r := doc.Regions.At(point)
	if r == nil {
		return ErrNoActiveTransclusion
	}
	m.closePair(r.ID)

	at := r.Start.Offset()
	restored := link.StripKeyword(r.RawLink) + "\n"
	if at > 0 && doc.Buf.TextRange(at-1, at) != "\n" {
		restored = "\n" + restored
	}
	if _, err := doc.Buf.Insert(at, restored); err != nil {
		return err
	}
	m.dropRegion(doc, r)
	return nil
}

// SaveSource persists the source document of the copy containing point.
func (m *Manager) SaveSource(doc *workspace.Document, point buffer.ByteOffset) error {
	r := doc.Regions.At(point)
	if r == nil {
		return ErrNoActiveTransclusion
	}
	src := m.ws.Get(r.SourcePath)
	if src == nil {
		return fmt.Errorf("%w: %s", workspace.ErrNotResident, r.SourcePath)
	}
	return m.ws.Save(src)
}

func (m *Manager) shape(typeTag string) (*regexp.Regexp, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	re, ok := m.shapes[typeTag]
	return re, ok
}

// pastSynthEOL extends a restore range over the newline synthesized at
// creation, if it is still there.
func (m *Manager) pastSynthEOL(doc *workspace.Document, r *region.Region, end buffer.ByteOffset) buffer.ByteOffset {
	if r.SynthEOL && end < doc.Buf.Len() && doc.Buf.TextRange(end, end+1) == "\n" {
		return end + 1
	}
	return end
}

func (m *Manager) closePair(id uuid.UUID) {
	m.mu.Lock()
	pair := m.pairs[id]
	delete(m.pairs, id)
	m.mu.Unlock()
	if pair != nil {
		pair.Close()
	}
}

// dropRegion removes a region from its table and frees its markers. The
// pair, if any, must already be closed or collapsing.
func (m *Manager) dropRegion(doc *workspace.Document, r *region.Region) {
	m.mu.Lock()
	delete(m.pairs, r.ID)
	m.mu.Unlock()
	if doc.Regions.Remove(r.ID) != nil {
		r.Release()
	}
}
