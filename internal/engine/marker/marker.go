package marker

import (
	"fmt"
	"sync"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
)

// Gravity decides which side of an insertion at the marker's exact
// position the marker ends up on.
type Gravity uint8

const (
	// GravityLeft keeps the marker before text inserted at its position.
	GravityLeft Gravity = iota

	// GravityRight moves the marker past text inserted at its position.
	GravityRight
)

// String returns a human-readable representation of the gravity.
func (g Gravity) String() string {
	if g == GravityRight {
		return "right"
	}
	return "left"
}

// Marker is a stable position handle owned by a Set.
// It is invalid once the span containing it has been deleted, unless it
// was created with WithClampOnDelete.
type Marker struct {
	set      *Set
	offset   buffer.ByteOffset
	gravity  Gravity
	clamp    bool
	valid    bool
	released bool
}

// Option configures a Marker at creation.
type Option func(*Marker)

// WithClampOnDelete makes the marker clamp to the edge of a deletion that
// covers it instead of becoming invalid. Used for region bounds, which
// shrink under partial deletion rather than dying.
func WithClampOnDelete() Option {
	return func(m *Marker) {
		m.clamp = true
	}
}

// Offset returns the marker's current byte offset.
func (m *Marker) Offset() buffer.ByteOffset {
	m.set.mu.RLock()
	defer m.set.mu.RUnlock()
	return m.offset
}

// Valid reports whether the marker still points at live text. Consumers
// must check this before using the offset.
func (m *Marker) Valid() bool {
	m.set.mu.RLock()
	defer m.set.mu.RUnlock()
	return m.valid && !m.released
}

// MoveTo repositions a valid marker. Used when a mirrored region is
// shrunk to a constrained span; not for general position arithmetic.
func (m *Marker) MoveTo(offset buffer.ByteOffset) {
	m.set.mu.Lock()
	defer m.set.mu.Unlock()
	if m.valid && !m.released {
		m.offset = offset
	}
}

// Release detaches the marker from its set. A released marker is invalid
// and no longer adjusted.
func (m *Marker) Release() {
	m.set.release(m)
}

// String returns a human-readable representation of the marker.
func (m *Marker) String() string {
	m.set.mu.RLock()
	defer m.set.mu.RUnlock()
	state := "valid"
	if !m.valid || m.released {
		state = "invalid"
	}
	return fmt.Sprintf("marker(%d, %s, %s)", m.offset, m.gravity, state)
}

// Set owns the markers of one buffer and adjusts them on every change.
// Wire it up with buf.Observe(set.Apply).
type Set struct {
	mu      sync.RWMutex
	markers []*Marker
}

// NewSet creates an empty marker set.
func NewSet() *Set {
	return &Set{}
}

// At creates a new valid marker at the given offset.
func (s *Set) At(offset buffer.ByteOffset, gravity Gravity, opts ...Option) *Marker {
	m := &Marker{set: s, offset: offset, gravity: gravity, valid: true}
	for _, opt := range opts {
		opt(m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
	return m
}

// Len returns the number of live markers in the set.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

// Apply adjusts every live marker for a committed buffer change.
func (s *Set) Apply(c buffer.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := c.Range.Start, c.Range.End
	grown := buffer.ByteOffset(len(c.NewText))

	for _, m := range s.markers {
		if !m.valid {
			continue
		}
		switch {
		case m.offset < a:
			// Before the edit, untouched.
		case m.offset == a && b == a:
			// Pure insertion at the marker position.
			if m.gravity == GravityRight {
				m.offset += grown
			}
		case m.offset == a:
			// Deletion or replacement starting exactly at the marker;
			// the marker sits on the surviving edge.
		case m.offset >= b:
			m.offset += grown - (b - a)
		default:
			// Strictly inside the replaced span.
			if !m.clamp {
				m.offset = a
				m.valid = false
				continue
			}
			if m.gravity == GravityRight {
				m.offset = a + grown
			} else {
				m.offset = a
			}
		}
	}
}

// release removes a marker from the set.
func (s *Set) release(m *Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.released {
		return
	}
	m.released = true
	m.valid = false
	for i, other := range s.markers {
		if other == m {
			s.markers = append(s.markers[:i], s.markers[i+1:]...)
			break
		}
	}
}
