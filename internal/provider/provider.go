// Package provider implements the built-in content-fetch strategies:
// by unique identifier, by heading path, by dedicated paragraph target,
// and whole document.
//
// Each strategy resolves its target to a range in the owning document
// (loading it through the workspace if it is not resident), narrows to
// the relevant substructure, and returns the text together with stable
// markers bounding exactly that substructure. On failure nothing is
// allocated: no markers, no partial content.
package provider

import (
	"fmt"
	"strings"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/engine/marker"
	"github.com/alphapapa/org-transclusion/internal/link"
	"github.com/alphapapa/org-transclusion/internal/project/workspace"
)

// Type tags of the built-in handlers.
const (
	TagID       = "org-id"
	TagHeading  = "org-heading"
	TagTarget   = "org-target"
	TagDocument = "document"
)

// Providers builds the built-in handlers over a workspace.
type Providers struct {
	ws     *workspace.Workspace
	margin bool
}

// Option configures the providers.
type Option func(*Providers)

// WithMargin controls whether fetched source bounds use joining gravity,
// so insertions at a mirrored boundary become part of the region.
// Defaults to true.
func WithMargin(margin bool) Option {
	return func(p *Providers) {
		p.margin = margin
	}
}

// New creates the built-in providers.
func New(ws *workspace.Workspace, opts ...Option) *Providers {
	p := &Providers{ws: ws, margin: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register installs the built-in handlers on a resolver: the id handler
// ahead of both registries, heading-path then dedicated-target in the
// document-link registry, and the whole-document default.
func (p *Providers) Register(r *link.Resolver) {
	r.SetID(link.Handler{TypeTag: TagID, Match: matchAny, Fetch: p.fetchID})
	r.DocLinks().Register(link.Handler{TypeTag: TagHeading, Match: matchHeading, Fetch: p.fetchHeading})
	r.DocLinks().Register(link.Handler{TypeTag: TagTarget, Match: matchTarget, Fetch: p.fetchTarget})
	r.SetDefault(link.Handler{TypeTag: TagDocument, Match: matchAny, Fetch: p.fetchDocument})
}

func matchAny(string) bool { return true }

func matchHeading(body string) bool {
	_, search, ok := link.ParseFileLink(body)
	return ok && strings.HasPrefix(search, "*")
}

func matchTarget(body string) bool {
	_, search, ok := link.ParseFileLink(body)
	return ok && search != "" && !strings.HasPrefix(search, "*") && !strings.HasPrefix(search, "id:")
}

// fetchHeading retrieves the subtree named by a *Heading/Path search.
func (p *Providers) fetchHeading(target string) (*link.Payload, error) {
	path, search, ok := link.ParseFileLink(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", link.ErrUnresolvedTarget, target)
	}
	doc, err := p.ws.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", link.ErrUnresolvedTarget, err)
	}

	segs := strings.Split(strings.TrimPrefix(search, "*"), "/")
	rng, found := findHeadingPath(doc.Buf, segs)
	if !found {
		return nil, fmt.Errorf("%w: heading %q in %s", link.ErrUnresolvedTarget, search, path)
	}
	return p.payload(doc, rng), nil
}

// fetchTarget retrieves the paragraph bounded by a dedicated <<name>>
// target.
func (p *Providers) fetchTarget(target string) (*link.Payload, error) {
	path, search, ok := link.ParseFileLink(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", link.ErrUnresolvedTarget, target)
	}
	doc, err := p.ws.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", link.ErrUnresolvedTarget, err)
	}

	rng, found := findTarget(doc.Buf, search)
	if !found {
		return nil, fmt.Errorf("%w: target %q in %s", link.ErrUnresolvedTarget, search, path)
	}
	return p.payload(doc, rng), nil
}

// fetchID retrieves the subtree carrying an :ID: or :CUSTOM_ID: property
// matching the identifier. Only resident documents are searched; an
// identifier in a never-opened file is an unresolved target.
func (p *Providers) fetchID(target string) (*link.Payload, error) {
	for _, doc := range p.ws.Documents() {
		if rng, found := findID(doc.Buf, target); found {
			return p.payload(doc, rng), nil
		}
	}
	return nil, fmt.Errorf("%w: id %q", link.ErrUnresolvedTarget, target)
}

// fetchDocument retrieves an entire document. Any search term in the
// body is ignored; this is the fallback strategy.
func (p *Providers) fetchDocument(target string) (*link.Payload, error) {
	path := target
	if fp, _, ok := link.ParseFileLink(target); ok {
		path = fp
	}
	doc, err := p.ws.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", link.ErrUnresolvedTarget, err)
	}
	return p.payload(doc, buffer.Range{Start: 0, End: doc.Buf.Len()}), nil
}

// payload snapshots a source range behind stable clamping markers.
func (p *Providers) payload(doc *workspace.Document, rng buffer.Range) *link.Payload {
	startGravity, endGravity := marker.GravityRight, marker.GravityLeft
	if p.margin {
		startGravity, endGravity = marker.GravityLeft, marker.GravityRight
	}
	return &link.Payload{
		Content:    doc.Buf.TextRange(rng.Start, rng.End),
		SourcePath: doc.Path,
		Begin:      doc.Markers.At(rng.Start, startGravity, marker.WithClampOnDelete()),
		End:        doc.Markers.At(rng.End, endGravity, marker.WithClampOnDelete()),
	}
}
