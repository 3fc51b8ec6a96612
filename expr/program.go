// Package expr is a small interpreter for the JavaScript-like expressions
// found in directive attributes. Bare identifiers resolve against a
// scope.Stack, so expressions read and write component state directly.
package expr

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/sparkdom/loop"
	"github.com/delaneyj/sparkdom/scope"
)

// Program is a parsed expression. Async is set when the top level awaits.
type Program struct {
	Source string
	Body   []Node
	Async  bool
}

type Runtime struct {
	loop     *loop.Loop
	logger   *slog.Logger
	globals  map[string]any
	builtins map[string]any
}

type RuntimeOption func(*Runtime)

func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		rt.logger = logger
	}
}

// WithGlobals adds names visible to every program after the scope stack.
func WithGlobals(globals map[string]any) RuntimeOption {
	return func(rt *Runtime) {
		for k, v := range globals {
			rt.globals[k] = v
		}
	}
}

func NewRuntime(l *loop.Loop, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		loop:    l,
		logger:  slog.Default(),
		globals: map[string]any{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.builtins = rt.newBuiltins()
	return rt
}

func (rt *Runtime) Loop() *loop.Loop {
	return rt.loop
}

func (rt *Runtime) SetGlobal(name string, v any) {
	rt.setGlobal(name, v)
}

func (rt *Runtime) setGlobal(name string, v any) {
	rt.globals[name] = v
}

func (rt *Runtime) global(name string) (any, bool) {
	if v, ok := rt.globals[name]; ok {
		return v, true
	}
	v, ok := rt.builtins[name]
	return v, ok
}

// Run executes p against s. this defaults to the stack itself.
//
// Programs without a top level await run on the calling goroutine. Others
// run as a coroutine; if it finishes without waiting on a pending promise
// its result is returned directly, otherwise Run returns the pending
// *loop.Promise.
func (rt *Runtime) Run(p *Program, s *scope.Stack, this any) (result any, err error) {
	if s == nil {
		s = scope.New()
	}
	if this == nil {
		this = s
	}
	if !p.Async {
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		in := &interp{rt: rt, scope: s, this: this}
		return in.program(p.Body)
	}

	promise := rt.runAsync(func(co *coroutine) (any, error) {
		in := &interp{rt: rt, scope: s, this: this, co: co}
		return in.program(p.Body)
	})
	if promise.State() != loop.Pending {
		return promise.Result()
	}
	return promise, nil
}

// Call invokes fn with this and args.
func Call(fn any, this any, args ...any) (any, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCallable, TypeOf(fn))
	}
	return c.Call(this, args)
}

// Cache memoises compiled programs by source text. Parse failures are
// cached too. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]cacheEntry
	hits    int
	misses  int
}

type cacheEntry struct {
	src  string
	prog *Program
	err  error
}

func NewCache() *Cache {
	return &Cache{entries: map[uint64]cacheEntry{}}
}

func (c *Cache) Compile(src string) (*Program, error) {
	key := xxhash.Sum64String(src)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.src == src {
		c.hits++
		return e.prog, e.err
	}
	c.misses++
	prog, err := Parse(src)
	c.entries[key] = cacheEntry{src: src, prog: prog, err: err}
	return prog, err
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache hits and misses.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
