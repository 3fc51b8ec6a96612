package engine

import (
	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/reactivity"
	"github.com/delaneyj/sparkdom/scope"
)

// elementState is everything the engine knows about one node. It lives in
// the engine, keyed by node, never on the node itself.
type elementState struct {
	marker                 int
	ignore                 bool
	ignoreSelf             bool
	ignoreMutationObserver bool

	dataStack []scope.Layer
	hasState  bool

	effects      mapset.Set[*reactivity.EffectRunner]
	cleanups     []func()
	attrCleanups map[string][]func()
	attrOrder    []string

	refs          map[string]*html.Node
	transitioning bool
	shown         *bool
	bindings      map[string]any
	idRoots       map[string]int
	idCache       map[string]string
}

func (e *Engine) state(n *html.Node) *elementState {
	s, ok := e.states[n]
	if !ok {
		s = &elementState{}
		e.states[n] = s
	}
	return s
}

func (e *Engine) peek(n *html.Node) *elementState {
	return e.states[n]
}

// Marker returns the stamp given to el when its directives were applied, or
// zero if it has not been initialised.
func (e *Engine) Marker(el *html.Node) int {
	if s := e.peek(el); s != nil {
		return s.marker
	}
	return 0
}

// Ignored reports whether el or its subtree is excluded from initialisation.
func (e *Engine) Ignored(el *html.Node) (ignore, ignoreSelf bool) {
	if s := e.peek(el); s != nil {
		return s.ignore, s.ignoreSelf
	}
	return false, false
}

func (e *Engine) SetIgnore(el *html.Node, ignore bool) {
	e.state(el).ignore = ignore
}

func (e *Engine) SetIgnoreSelf(el *html.Node, ignore bool) {
	e.state(el).ignoreSelf = ignore
}

// SetIgnoreMutationObserver makes the mutation pipeline skip records whose
// target is el.
func (e *Engine) SetIgnoreMutationObserver(el *html.Node, ignore bool) {
	e.state(el).ignoreMutationObserver = ignore
}

func (e *Engine) SetTransitioning(el *html.Node, v bool) {
	e.state(el).transitioning = v
}

func (e *Engine) Transitioning(el *html.Node) bool {
	s := e.peek(el)
	return s != nil && s.transitioning
}

func (e *Engine) SetShown(el *html.Node, shown bool) {
	e.state(el).shown = &shown
}

// Shown reports the visibility last applied by a show toggle. Elements that
// were never toggled report false.
func (e *Engine) Shown(el *html.Node) bool {
	s := e.peek(el)
	return s != nil && s.shown != nil && *s.shown
}

// SetBinding records the value last bound to an attribute name.
func (e *Engine) SetBinding(el *html.Node, name string, v any) {
	s := e.state(el)
	if s.bindings == nil {
		s.bindings = map[string]any{}
	}
	s.bindings[name] = v
}

func (e *Engine) Binding(el *html.Node, name string) (any, bool) {
	s := e.peek(el)
	if s == nil {
		return nil, false
	}
	v, ok := s.bindings[name]
	return v, ok
}

// SetHasState flags el as carrying data grafted from a live tree.
func (e *Engine) SetHasState(el *html.Node) {
	e.state(el).hasState = true
}

func (e *Engine) HasState(el *html.Node) bool {
	s := e.peek(el)
	return s != nil && s.hasState
}

// Refs returns the refs registered directly on root.
func (e *Engine) Refs(root *html.Node) map[string]*html.Node {
	s := e.state(root)
	if s.refs == nil {
		s.refs = map[string]*html.Node{}
	}
	return s.refs
}

// Discard forgets every node under root without running cleanups. It is
// used for detached trees that were only initialised to be read, such as
// morph targets.
func (e *Engine) Discard(root *html.Node) {
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if s := e.peek(n); s != nil && s.effects != nil {
			for _, runner := range s.effects.ToSlice() {
				reactivity.Release(e.sys, runner)
			}
		}
		delete(e.states, n)
		delete(e.listeners, n)
		if target := e.teleports.target(n); target != nil {
			e.teleports.unlink(n)
			visit(target)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
}

// teleportRegistry links a <template> to the node it placed elsewhere, and
// back.
type teleportRegistry struct {
	targets map[*html.Node]*html.Node
	backs   map[*html.Node]*html.Node
}

func newTeleportRegistry() *teleportRegistry {
	return &teleportRegistry{
		targets: map[*html.Node]*html.Node{},
		backs:   map[*html.Node]*html.Node{},
	}
}

func (r *teleportRegistry) link(template, clone *html.Node) {
	r.targets[template] = clone
	r.backs[clone] = template
}

func (r *teleportRegistry) unlink(template *html.Node) {
	if clone, ok := r.targets[template]; ok {
		delete(r.backs, clone)
	}
	delete(r.targets, template)
}

func (r *teleportRegistry) target(template *html.Node) *html.Node {
	return r.targets[template]
}

func (r *teleportRegistry) back(clone *html.Node) *html.Node {
	return r.backs[clone]
}

// SetTeleport links template to the clone it placed in the document.
func (e *Engine) SetTeleport(template, clone *html.Node) {
	e.teleports.link(template, clone)
}

func (e *Engine) ClearTeleport(template *html.Node) {
	e.teleports.unlink(template)
}

// Teleport returns the node template placed elsewhere, if any.
func (e *Engine) Teleport(template *html.Node) *html.Node {
	return e.teleports.target(template)
}

// TeleportBack returns the template a teleported node came from.
func (e *Engine) TeleportBack(clone *html.Node) *html.Node {
	return e.teleports.back(clone)
}
