// Package region tracks live transcluded ranges within a document.
//
// A Region is a pure record: the tagged copy range in the host document
// plus the metadata needed to restore or re-fetch it (type tag, the raw
// link text it replaced, and stable bounds into the source document). It
// carries no rendering state; presentation layers query the table and
// decide styling on their own.
package region

import (
	"sync"

	"github.com/google/uuid"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/engine/marker"
)

// Region is one live transclusion occurrence in a host document.
type Region struct {
	// ID uniquely identifies the region across its lifetime.
	ID uuid.UUID

	// TypeTag names the handler that produced this region.
	TypeTag string

	// RawLink is the full link line text that the copy replaced,
	// without its trailing newline.
	RawLink string

	// LinkEOL records whether the replaced link line had a trailing
	// newline, so removal can restore the document byte-identically.
	LinkEOL bool

	// SynthEOL records that creation appended a newline after the copy
	// because the fetched content did not end in one; the newline sits
	// outside the region and is removed with it.
	SynthEOL bool

	// Start and End bound the copy text in the host document.
	Start, End *marker.Marker

	// SourcePath is the document the content was fetched from.
	SourcePath string

	// SrcBegin and SrcEnd bound the mirrored range in the source document.
	SrcBegin, SrcEnd *marker.Marker
}

// Bounds returns the copy range in the host document.
func (r *Region) Bounds() buffer.Range {
	return buffer.Range{Start: r.Start.Offset(), End: r.End.Offset()}
}

// Valid reports whether both copy bounds still point at live text.
func (r *Region) Valid() bool {
	return r.Start.Valid() && r.End.Valid() && r.Bounds().IsValid()
}

// Release frees all markers held by the region.
func (r *Region) Release() {
	r.Start.Release()
	r.End.Release()
	if r.SrcBegin != nil {
		r.SrcBegin.Release()
	}
	if r.SrcEnd != nil {
		r.SrcEnd.Release()
	}
}

// Table holds the live regions of one document.
type Table struct {
	mu      sync.RWMutex
	regions []*Region
}

// NewTable creates an empty region table.
func NewTable() *Table {
	return &Table{}
}

// Add inserts a region, assigning it a fresh ID if it has none.
func (t *Table) Add(r *Region) *Region {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	t.regions = append(t.regions, r)
	return r
}

// Remove deletes a region from the table without releasing its markers.
func (t *Table) Remove(id uuid.UUID) *Region {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, r := range t.regions {
		if r.ID == id {
			t.regions = append(t.regions[:i], t.regions[i+1:]...)
			return r
		}
	}
	return nil
}

// At returns the region containing the given offset, or nil. The start
// bound is inclusive and the end bound exclusive, so a point on the first
// byte of a copy counts as inside it.
func (t *Table) At(offset buffer.ByteOffset) *Region {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.regions {
		if !r.Valid() {
			continue
		}
		if offset >= r.Start.Offset() && offset < r.End.Offset() {
			return r
		}
	}
	return nil
}

// All returns a stable snapshot of the live regions.
func (t *Table) All() []*Region {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Region, len(t.regions))
	copy(out, t.regions)
	return out
}

// SourcePaths returns the distinct source documents referenced by any
// region in the table.
func (t *Table) SourcePaths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]bool, len(t.regions))
	var paths []string
	for _, r := range t.regions {
		if r.SourcePath == "" || seen[r.SourcePath] {
			continue
		}
		seen[r.SourcePath] = true
		paths = append(paths, r.SourcePath)
	}
	return paths
}

// Len returns the number of regions in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.regions)
}
