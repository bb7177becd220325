// Package lua hosts user-defined link handlers written in Lua.
//
// A script calls transclusion.register(tag, match, fetch) to add a
// handler to the scheme registry. match(body) returns whether the
// handler accepts a link body. fetch(target) returns a table with a
// "path" field plus optional "from"/"to" byte offsets (0-based, end
// exclusive) selecting a slice of that document; omitted offsets mean
// the whole document. The engine reads the content out of the resident
// buffer itself, so the payload invariant holds no matter what the
// script returns.
package lua

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/alphapapa/org-transclusion/internal/engine/buffer"
	"github.com/alphapapa/org-transclusion/internal/engine/marker"
	"github.com/alphapapa/org-transclusion/internal/link"
	"github.com/alphapapa/org-transclusion/internal/project/workspace"
)

// Engine runs handler scripts in one Lua state.
type Engine struct {
	ws       *workspace.Workspace
	resolver *link.Resolver
	margin   bool

	mu    sync.Mutex
	state *lua.LState
}

// Option configures the engine.
type Option func(*Engine)

// WithMargin controls the gravity of source bounds created for Lua
// handlers, matching the built-in providers. Defaults to true.
func WithMargin(margin bool) Option {
	return func(e *Engine) {
		e.margin = margin
	}
}

// New creates an engine whose scripts register handlers on the given
// resolver's scheme registry. Only the base, table, and string
// libraries are opened; scripts have no process or io access.
func New(ws *workspace.Workspace, resolver *link.Resolver, opts ...Option) (*Engine, error) {
	e := &Engine{ws: ws, resolver: resolver, margin: true}
	for _, opt := range opts {
		opt(e)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("opening lua lib %s: %w", lib.name, err)
		}
	}

	mod := L.NewTable()
	L.SetField(mod, "register", L.NewFunction(e.register))
	L.SetGlobal("transclusion", mod)
	e.state = L
	return e, nil
}

// LoadFile executes a handler script.
func (e *Engine) LoadFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.DoFile(path); err != nil {
		return fmt.Errorf("loading plugin %s: %w", path, err)
	}
	return nil
}

// LoadString executes a handler script from source text.
func (e *Engine) LoadString(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.DoString(src); err != nil {
		return fmt.Errorf("loading plugin: %w", err)
	}
	return nil
}

// Close shuts the Lua state down. Handlers registered by scripts stop
// matching afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}

// register implements transclusion.register(tag, match, fetch).
func (e *Engine) register(L *lua.LState) int {
	tag := L.CheckString(1)
	match := L.CheckFunction(2)
	fetch := L.CheckFunction(3)

	e.resolver.Schemes().Register(link.Handler{
		TypeTag: tag,
		Match:   e.matchFunc(match),
		Fetch:   e.fetchFunc(tag, fetch),
	})
	return 0
}

func (e *Engine) matchFunc(fn *lua.LFunction) link.MatchFunc {
	return func(body string) bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.state == nil {
			return false
		}
		if err := e.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(body)); err != nil {
			return false
		}
		ret := e.state.Get(-1)
		e.state.Pop(1)
		return lua.LVAsBool(ret)
	}
}

func (e *Engine) fetchFunc(tag string, fn *lua.LFunction) link.FetchFunc {
	return func(target string) (*link.Payload, error) {
		e.mu.Lock()
		if e.state == nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s handler closed", link.ErrUnresolvedTarget, tag)
		}
		if err := e.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(target)); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s: %v", link.ErrUnresolvedTarget, tag, err)
		}
		ret := e.state.Get(-1)
		e.state.Pop(1)
		e.mu.Unlock()

		tbl, ok := ret.(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("%w: %s returned no result for %q", link.ErrUnresolvedTarget, tag, target)
		}
		path := lua.LVAsString(tbl.RawGetString("path"))
		if path == "" {
			return nil, fmt.Errorf("%w: %s returned no path for %q", link.ErrUnresolvedTarget, tag, target)
		}

		doc, err := e.ws.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", link.ErrUnresolvedTarget, err)
		}
		rng := buffer.Range{Start: 0, End: doc.Buf.Len()}
		if n, ok := tbl.RawGetString("from").(lua.LNumber); ok {
			rng.Start = buffer.ByteOffset(n)
		}
		if n, ok := tbl.RawGetString("to").(lua.LNumber); ok {
			rng.End = buffer.ByteOffset(n)
		}
		if rng.Start < 0 || rng.End > doc.Buf.Len() || rng.Start > rng.End {
			return nil, fmt.Errorf("%w: %s returned bad range %s for %q", link.ErrUnresolvedTarget, tag, rng, target)
		}

		startGravity, endGravity := marker.GravityRight, marker.GravityLeft
		if e.margin {
			startGravity, endGravity = marker.GravityLeft, marker.GravityRight
		}
		return &link.Payload{
			Content:    doc.Buf.TextRange(rng.Start, rng.End),
			SourcePath: doc.Path,
			Begin:      doc.Markers.At(rng.Start, startGravity, marker.WithClampOnDelete()),
			End:        doc.Markers.At(rng.End, endGravity, marker.WithClampOnDelete()),
		}, nil
	}
}
