package link

import (
	"strings"
	"sync"
)

// MatchFunc decides whether a handler accepts a link body. Predicates
// gate shape; the fetch function may assume its expected shape.
type MatchFunc func(body string) bool

// FetchFunc retrieves content for an accepted target.
type FetchFunc func(target string) (*Payload, error)

// Handler pairs a link shape with its content-fetch strategy.
type Handler struct {
	TypeTag string
	Match   MatchFunc
	Fetch   FetchFunc
}

// Registry is an ordered handler list; registration order is match
// priority.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a handler. Earlier registrations win ties.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Find returns the first handler whose predicate accepts the body.
func (r *Registry) Find(body string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.Match(body) {
			return h, true
		}
	}
	return Handler{}, false
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Resolver matches a raw link body against the id handler, then the
// document-link registry, then the scheme registry, in that fixed order,
// falling back to the whole-document default. Pure and deterministic.
type Resolver struct {
	mu       sync.RWMutex
	id       Handler
	hasID    bool
	docLinks *Registry
	schemes  *Registry
	fallback Handler
	hasFall  bool
}

// NewResolver creates a resolver with empty registries.
func NewResolver() *Resolver {
	return &Resolver{
		docLinks: NewRegistry(),
		schemes:  NewRegistry(),
	}
}

// DocLinks returns the document-link registry.
func (r *Resolver) DocLinks() *Registry {
	return r.docLinks
}

// Schemes returns the scheme-link registry.
func (r *Resolver) Schemes() *Registry {
	return r.schemes
}

// SetID installs the handler for id: bodies, consulted before either
// registry.
func (r *Resolver) SetID(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = h
	r.hasID = true
}

// SetDefault installs the whole-document fallback handler.
func (r *Resolver) SetDefault(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
	r.hasFall = true
}

// Resolve returns the winning handler and the target string its fetch
// function receives. The second return is false only when no handler
// matched and no default is installed.
func (r *Resolver) Resolve(body string) (Handler, string, bool) {
	body = strings.TrimSpace(body)

	r.mu.RLock()
	id, hasID := r.id, r.hasID
	fallback, hasFall := r.fallback, r.hasFall
	r.mu.RUnlock()

	if hasID {
		if target, ok := strings.CutPrefix(body, "id:"); ok {
			return id, target, true
		}
	}
	if h, ok := r.docLinks.Find(body); ok {
		return h, body, true
	}
	if h, ok := r.schemes.Find(body); ok {
		return h, body, true
	}
	if hasFall {
		return fallback, body, true
	}
	return Handler{}, "", false
}
