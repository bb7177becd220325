package mirror

import (
	"errors"
	"regexp"
	"sync"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/engine/marker"
)

// ErrSideInvalid is returned when a pair is created over released or
// misordered markers.
var ErrSideInvalid = errors.New("mirror side has invalid bounds")

// SideSpec names one side of a pair at creation time.
type SideSpec struct {
	Buf        *buffer.Buffer
	Start, End *marker.Marker
}

// side is the live state of one half of a pair.
type side struct {
	buf        *buffer.Buffer
	start, end *marker.Marker

	// prev caches the side's bounds as of the last observed change on
	// its buffer. It supplies old-coordinate bounds when the next
	// change arrives, since the markers have already been adjusted by
	// the time the mirror sees it.
	prev buffer.Range
}

func (s *side) bounds() buffer.Range {
	return buffer.Range{Start: s.start.Offset(), End: s.end.Offset()}
}

func (s *side) valid() bool {
	return s.start.Valid() && s.end.Valid() && s.bounds().IsValid()
}

// Pair links two ranges for bidirectional propagation.
type Pair struct {
	m     *Mirror
	sides [2]*side
	shape *regexp.Regexp

	// propagating guards this pair only; propagation on one pair is a
	// fresh edit as far as other pairs on the same buffer are concerned.
	propagating bool

	alive      bool
	onCollapse func(*Pair)
}

// Option configures a Pair.
type Option func(*Pair)

// WithShape constrains the mirrored content to keep matching the given
// pattern. When an edit breaks the match, the pair shrinks to the last
// matching span, or collapses if nothing matches.
func WithShape(re *regexp.Regexp) Option {
	return func(p *Pair) {
		p.shape = re
	}
}

// WithCollapseFunc registers a callback invoked when the pair collapses
// on its own (it is not called on explicit Close).
func WithCollapseFunc(fn func(*Pair)) Option {
	return func(p *Pair) {
		p.onCollapse = fn
	}
}

// Alive reports whether the pair is still propagating edits.
func (p *Pair) Alive() bool {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.alive
}

// Close tears the pair down without invoking the collapse callback.
func (p *Pair) Close() {
	p.m.mu.Lock()
	alive := p.alive
	p.alive = false
	p.m.mu.Unlock()

	if alive {
		p.m.detach(p)
	}
}

// collapse tears the pair down and notifies the owner.
func (p *Pair) collapse() {
	p.m.mu.Lock()
	alive := p.alive
	p.alive = false
	p.m.mu.Unlock()

	if !alive {
		return
	}
	p.m.detach(p)
	if p.onCollapse != nil {
		p.onCollapse(p)
	}
}

// Mirror owns all live pairs and their buffer subscriptions.
type Mirror struct {
	mu       sync.Mutex
	pairs    map[*buffer.Buffer][]*Pair
	attached map[*buffer.Buffer]bool
}

// New creates an empty mirror.
func New() *Mirror {
	return &Mirror{
		pairs:    make(map[*buffer.Buffer][]*Pair),
		attached: make(map[*buffer.Buffer]bool),
	}
}

// NewPair links two ranges whose content is identical by construction.
// Both sides' marker sets must already be observing their buffers.
func (m *Mirror) NewPair(a, b SideSpec, opts ...Option) (*Pair, error) {
	p := &Pair{
		m: m,
		sides: [2]*side{
			{buf: a.Buf, start: a.Start, end: a.End},
			{buf: b.Buf, start: b.Start, end: b.End},
		},
		alive: true,
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, s := range p.sides {
		if !s.valid() {
			return nil, ErrSideInvalid
		}
		s.prev = s.bounds()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range p.sides {
		m.pairs[s.buf] = append(m.pairs[s.buf], p)
		if !m.attached[s.buf] {
			m.attached[s.buf] = true
			buf := s.buf
			buf.Observe(func(c buffer.Change) {
				m.onChange(buf, c)
			})
		}
		if p.sides[0].buf == p.sides[1].buf {
			break // same buffer, register once
		}
	}
	return p, nil
}

// pairCount returns the number of live pairs registered on a buffer.
func (m *Mirror) pairCount(buf *buffer.Buffer) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pairs[buf])
}

// detach removes a dead pair from the per-buffer lists.
func (m *Mirror) detach(p *Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range p.sides {
		list := m.pairs[s.buf]
		for i, other := range list {
			if other == p {
				m.pairs[s.buf] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// onChange dispatches a committed change to every pair on the buffer.
func (m *Mirror) onChange(buf *buffer.Buffer, c buffer.Change) {
	m.mu.Lock()
	list := make([]*Pair, len(m.pairs[buf]))
	copy(list, m.pairs[buf])
	m.mu.Unlock()

	for _, p := range list {
		p.onEdit(buf, c)
	}
}

// onEdit propagates one side's change to the other side.
func (p *Pair) onEdit(buf *buffer.Buffer, c buffer.Change) {
	p.m.mu.Lock()
	if !p.alive {
		p.m.mu.Unlock()
		return
	}
	if p.propagating {
		// Counterpart of an in-flight propagation on this pair; the
		// markers have done their work, just refresh the caches.
		p.refreshLocked()
		p.m.mu.Unlock()
		return
	}
	p.m.mu.Unlock()

	edited := p.affectedSide(buf, c)
	if edited < 0 {
		p.m.mu.Lock()
		p.refreshLocked()
		p.m.mu.Unlock()
		return
	}

	s, o := p.sides[edited], p.sides[1-edited]
	if !s.valid() || !o.valid() {
		p.collapse()
		return
	}

	old := s.prev
	cur := s.bounds()

	// Portion of the side's old text that was replaced, relative to the
	// old start.
	relStart := clampOffset(c.Range.Start, old.Start, old.End) - old.Start
	relEnd := clampOffset(c.Range.End, old.Start, old.End) - old.Start

	// Replacement text, clipped to the side's current bounds.
	newSpan := c.NewRange.Intersect(cur)
	newText := s.buf.TextRange(newSpan.Start, newSpan.End)

	oBounds := o.bounds()
	dstStart := oBounds.Start + relStart
	dstEnd := oBounds.Start + relEnd
	if dstEnd > oBounds.End {
		p.collapse()
		return
	}

	p.m.mu.Lock()
	p.propagating = true
	p.m.mu.Unlock()
	_, err := o.buf.Replace(dstStart, dstEnd, newText)
	p.m.mu.Lock()
	p.propagating = false
	p.refreshLocked()
	p.m.mu.Unlock()

	if err != nil {
		p.collapse()
		return
	}

	if p.shape != nil && !p.enforceShape(s, o) {
		return // enforceShape collapsed the pair
	}

	// A pair whose sides have emptied out has nothing left to mirror.
	if s.bounds().IsEmpty() || o.bounds().IsEmpty() {
		p.collapse()
	}
}

// affectedSide returns the index of the side the change landed in, or -1.
func (p *Pair) affectedSide(buf *buffer.Buffer, c buffer.Change) int {
	for i, s := range p.sides {
		if s.buf != buf || !s.valid() {
			continue
		}
		if c.Range.IsEmpty() {
			// Pure insertion: it joined the side iff the markers let
			// the new text inside the current bounds.
			if !c.NewRange.IsEmpty() &&
				c.NewRange.Start >= s.start.Offset() && c.NewRange.End <= s.end.Offset() {
				return i
			}
			continue
		}
		if c.Range.Overlaps(s.prev) {
			return i
		}
	}
	return -1
}

// enforceShape shrinks the pair to the last span still matching the
// configured pattern, or collapses it when nothing matches. Returns false
// if the pair collapsed.
func (p *Pair) enforceShape(s, o *side) bool {
	cur := s.bounds()
	text := s.buf.TextRange(cur.Start, cur.End)

	locs := p.shape.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		p.collapse()
		return false
	}

	last := locs[len(locs)-1]
	ms, me := buffer.ByteOffset(last[0]), buffer.ByteOffset(last[1])
	if ms == 0 && me == cur.Len() {
		return true // still matches in full
	}

	oBounds := o.bounds()
	s.start.MoveTo(cur.Start + ms)
	s.end.MoveTo(cur.Start + me)
	o.start.MoveTo(oBounds.Start + ms)
	o.end.MoveTo(oBounds.Start + me)

	p.m.mu.Lock()
	p.refreshLocked()
	p.m.mu.Unlock()
	return true
}

// refreshLocked re-caches both sides' bounds. Caller holds m.mu.
func (p *Pair) refreshLocked() {
	for _, s := range p.sides {
		if s.valid() {
			s.prev = s.bounds()
		}
	}
}

func clampOffset(v, lo, hi buffer.ByteOffset) buffer.ByteOffset {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
