package engine

import (
	"errors"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/dom"
)

// Walker visits a subtree the way dom.Walk does.
type Walker func(el *html.Node, fn func(el *html.Node, skip func()))

// AddRootSelector registers a selector marking component roots.
func (e *Engine) AddRootSelector(fn func() string) {
	e.rootSelectors = append(e.rootSelectors, fn)
}

// AddInitSelector registers a selector for elements that initialise on
// start without being roots.
func (e *Engine) AddInitSelector(fn func() string) {
	e.initSelectors = append(e.initSelectors, fn)
}

func (e *Engine) rootSelectorList() []string {
	out := make([]string, 0, len(e.rootSelectors))
	for _, fn := range e.rootSelectors {
		out = append(out, fn())
	}
	return out
}

func (e *Engine) allSelectors() []string {
	out := e.rootSelectorList()
	for _, fn := range e.initSelectors {
		out = append(out, fn())
	}
	return out
}

func (e *Engine) selector(list []string) (*dom.Selector, error) {
	if len(list) == 0 {
		return nil, nil
	}
	src := strings.Join(list, ", ")
	if sel, ok := e.selectorCache[src]; ok {
		return sel, nil
	}
	sel, err := dom.Compile(src)
	if err != nil {
		return nil, err
	}
	e.selectorCache[src] = sel
	return sel, nil
}

func (e *Engine) matchesAny(el *html.Node, list []string) bool {
	sel, err := e.selector(list)
	if err != nil {
		e.logger.Warn("invalid root selector", "err", err)
		return false
	}
	return sel != nil && sel.Matches(el)
}

// IsRoot reports whether el matches a root selector.
func (e *Engine) IsRoot(el *html.Node) bool {
	return e.matchesAny(el, e.rootSelectorList())
}

// ClosestRoot returns the nearest inclusive ancestor matching a root
// selector, or any selector when includeInit is set.
func (e *Engine) ClosestRoot(el *html.Node, includeInit bool) *html.Node {
	list := e.rootSelectorList()
	if includeInit {
		list = e.allSelectors()
	}
	return e.FindClosest(el, func(n *html.Node) bool {
		return e.matchesAny(n, list)
	})
}

// FindClosest walks from el up through its ancestors and returns the first
// element fn accepts. A teleported element continues from the template that
// placed it.
func (e *Engine) FindClosest(el *html.Node, fn func(*html.Node) bool) *html.Node {
	for el != nil {
		if fn(el) {
			return el
		}
		if back := e.teleports.back(el); back != nil {
			el = back
		}
		el = dom.ParentElement(el)
	}
	return nil
}

// InterceptInit registers fn to run for every element before its
// directives. Calling skip keeps the walk out of the element's children.
func (e *Engine) InterceptInit(fn func(el *html.Node, skip func())) {
	e.initInterceptors = append(e.initInterceptors, fn)
}

// InitTree applies directives to every uninitialised element under el.
// Handlers are deferred until the walk is over and then run in document
// order. A failing handler stops the rest of its element's directives; the
// failures are logged and returned joined.
func (e *Engine) InitTree(el *html.Node) error {
	return e.initTree(el, dom.Walk, nil)
}

func (e *Engine) initTree(el *html.Node, walker Walker, intercept func(el *html.Node, skip func())) error {
	if e.FindClosest(el, func(n *html.Node) bool {
		ignore, _ := e.Ignored(n)
		return ignore
	}) != nil {
		return nil
	}

	err := e.deferHandlingDirectives(func(stack *handlerStack) {
		walker(el, func(el *html.Node, skip func()) {
			if e.Marker(el) != 0 {
				return
			}
			if intercept != nil {
				intercept(el, skip)
			}
			for _, fn := range e.initInterceptors {
				fn(el, skip)
			}
			for _, handle := range e.directivesFor(el, el.Attr, "") {
				if stack.failed[el] {
					break
				}
				if err := handle(); err != nil {
					stack.fail(el, err)
				}
			}
			ignore, _ := e.Ignored(el)
			if !ignore {
				e.markerSeq++
				e.state(el).marker = e.markerSeq
			} else {
				skip()
			}
		})
	})
	if err != nil {
		e.logger.Error("initialise tree", "el", el.Data, "err", err)
	}
	return err
}

func (e *Engine) deferHandlingDirectives(fn func(stack *handlerStack)) error {
	prev := e.handlerStack
	stack := &handlerStack{}
	e.handlerStack = stack
	fn(stack)
	e.handlerStack = prev

	for len(stack.handlers) > 0 {
		h := stack.handlers[0]
		stack.handlers = stack.handlers[1:]
		if stack.failed[h.el] {
			continue
		}
		if err := h.run(); err != nil {
			stack.fail(h.el, err)
		}
	}
	return errors.Join(stack.errs...)
}

// DestroyTree runs every cleanup registered under root, releases its
// effects and clears markers.
func (e *Engine) DestroyTree(root *html.Node) {
	e.destroyTree(root, dom.Walk)
}

func (e *Engine) destroyTree(root *html.Node, walker Walker) {
	walker(root, func(el *html.Node, _ func()) {
		e.cleanupElement(el)
		e.cleanupAttributes(el, nil)
		if s := e.peek(el); s != nil {
			s.marker = 0
		}
	})
}

// Cleanup registers fn to run when el is destroyed.
func (e *Engine) Cleanup(el *html.Node, fn func()) {
	s := e.state(el)
	s.cleanups = append(s.cleanups, fn)
}

// OnAttributeRemoved registers fn to run when the attribute name is removed
// from el, or el is destroyed.
func (e *Engine) OnAttributeRemoved(el *html.Node, name string, fn func()) {
	s := e.state(el)
	if s.attrCleanups == nil {
		s.attrCleanups = map[string][]func(){}
	}
	if _, ok := s.attrCleanups[name]; !ok {
		s.attrOrder = append(s.attrOrder, name)
	}
	s.attrCleanups[name] = append(s.attrCleanups[name], fn)
}

func (e *Engine) cleanupElement(el *html.Node) {
	s := e.peek(el)
	if s == nil {
		return
	}
	if s.effects != nil {
		for _, runner := range s.effects.ToSlice() {
			e.Release(runner)
		}
		s.effects.Clear()
	}
	for len(s.cleanups) > 0 {
		last := len(s.cleanups) - 1
		fn := s.cleanups[last]
		s.cleanups = s.cleanups[:last]
		fn()
	}
}

// cleanupAttributes runs the cleanups of names, or of every attribute when
// names is nil.
func (e *Engine) cleanupAttributes(el *html.Node, names []string) {
	s := e.peek(el)
	if s == nil || s.attrCleanups == nil {
		return
	}
	var kept []string
	for _, name := range slices.Clone(s.attrOrder) {
		if names != nil && !slices.Contains(names, name) {
			kept = append(kept, name)
			continue
		}
		fns := s.attrCleanups[name]
		delete(s.attrCleanups, name)
		for _, fn := range fns {
			fn()
		}
	}
	s.attrOrder = kept
}
