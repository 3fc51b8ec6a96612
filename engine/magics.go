package engine

import (
	"fmt"
	"maps"
	"slices"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/scope"
)

// MagicFactory produces the value of a $name property for el.
type MagicFactory func(el *html.Node, u *Utilities) any

// Magic makes $name available to every expression.
func (e *Engine) Magic(name string, factory MagicFactory) {
	if _, ok := e.magics[name]; !ok {
		e.magicOrder = append(e.magicOrder, name)
	}
	e.magics[name] = factory
}

// magicsLayer is computed lazily so only magics an expression touches are
// built. Utilities are shared by the layer and cleaned up with el.
func (e *Engine) magicsLayer(el *html.Node) scope.Layer {
	layer := scope.NewLazy()
	var u *Utilities
	utilities := func() *Utilities {
		if u == nil {
			u = e.newUtilities(el)
			e.Cleanup(el, u.runCleanups)
		}
		return u
	}
	for _, name := range e.magicOrder {
		factory := e.magics[name]
		layer.Define("$"+name, func() any {
			return factory(el, utilities())
		})
	}
	return layer
}

func (e *Engine) registerMagics() {
	e.Magic("el", func(el *html.Node, _ *Utilities) any {
		return el
	})
	e.Magic("data", func(el *html.Node, _ *Utilities) any {
		return e.MergedScope(el)
	})
	e.Magic("root", func(el *html.Node, _ *Utilities) any {
		return e.ClosestRoot(el, false)
	})
	e.Magic("refs", func(el *html.Node, _ *Utilities) any {
		return &refsView{e: e, el: el}
	})
	e.Magic("watch", func(el *html.Node, u *Utilities) any {
		return expr.Func(func(_ any, args []any) (any, error) {
			key := expr.ToString(arg(args, 0))
			callback := arg(args, 1)
			evaluate := u.EvaluateLater(key)
			unwatch := e.Watch(func() any {
				var value any
				evaluate(func(v any) { value = v })
				return value
			}, func(value, oldValue any) {
				if _, err := expr.Call(callback, nil, value, oldValue); err != nil {
					e.handleError(el, key, err)
				}
			})
			u.Cleanup(unwatch)
			return nil, nil
		})
	})
	e.Magic("nextTick", func(el *html.Node, _ *Utilities) any {
		return expr.Func(func(_ any, args []any) (any, error) {
			callback := arg(args, 0)
			return e.NextTick(func() {
				if callback == nil {
					return
				}
				if _, err := expr.Call(callback, nil); err != nil {
					e.handleError(el, "$nextTick", err)
				}
			}), nil
		})
	})
	e.Magic("dispatch", func(el *html.Node, _ *Utilities) any {
		return expr.Func(func(_ any, args []any) (any, error) {
			detail := arg(args, 1)
			if detail == nil {
				detail = expr.NewRecord()
			}
			return e.Dispatch(el, NewEvent(expr.ToString(arg(args, 0)), detail)), nil
		})
	})
	e.Magic("id", func(el *html.Node, u *Utilities) any {
		return expr.Func(func(_ any, args []any) (any, error) {
			name := expr.ToString(arg(args, 0))
			var key string
			if k := arg(args, 1); k != nil {
				key = expr.ToString(k)
			}
			return e.elementID(el, name, key, u), nil
		})
	})
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// SetIdRoot makes el the root that $id(name) resolves against below it.
func (e *Engine) SetIdRoot(el *html.Node, name string) {
	s := e.state(el)
	if s.idRoots == nil {
		s.idRoots = map[string]int{}
	}
	if _, ok := s.idRoots[name]; !ok {
		s.idRoots[name] = e.nextID(name)
	}
}

// IdRoots returns the id roots declared on el.
func (e *Engine) IdRoots(el *html.Node) map[string]int {
	if s := e.peek(el); s != nil {
		return s.idRoots
	}
	return nil
}

// CloneIdRoots shares from's id roots with to.
func (e *Engine) CloneIdRoots(from, to *html.Node) {
	if roots := e.IdRoots(from); roots != nil {
		e.state(to).idRoots = roots
	}
}

func (e *Engine) nextID(name string) int {
	e.idCounters[name]++
	return e.idCounters[name]
}

func (e *Engine) elementID(el *html.Node, name, key string, u *Utilities) string {
	cacheKey := name
	if key != "" {
		cacheKey += "-" + key
	}
	s := e.state(el)
	if id, ok := s.idCache[cacheKey]; ok {
		return id
	}

	var n int
	root := e.FindClosest(el, func(node *html.Node) bool {
		_, ok := e.IdRoots(node)[name]
		return ok
	})
	if root != nil {
		n = e.IdRoots(root)[name]
	} else {
		n = e.nextID(name)
	}
	id := fmt.Sprintf("%s-%d", name, n)
	if key != "" {
		id += "-" + key
	}

	if s.idCache == nil {
		s.idCache = map[string]string{}
	}
	s.idCache[cacheKey] = id
	u.Cleanup(func() {
		delete(s.idCache, cacheKey)
	})
	return id
}

// refsView merges the refs of an element and its ancestors, nearest first.
type refsView struct {
	e  *Engine
	el *html.Node
}

func (r *refsView) layers() []map[string]*html.Node {
	var out []map[string]*html.Node
	r.e.FindClosest(r.el, func(n *html.Node) bool {
		if s := r.e.peek(n); s != nil && len(s.refs) > 0 {
			out = append(out, s.refs)
		}
		return false
	})
	return out
}

func (r *refsView) Get(name string) (any, bool) {
	for _, refs := range r.layers() {
		if el, ok := refs[name]; ok {
			return el, true
		}
	}
	return nil, false
}

func (r *refsView) Set(string, any) {}

func (r *refsView) Keys() []string {
	seen := map[string]bool{}
	var keys []string
	for _, refs := range r.layers() {
		for _, k := range slices.Sorted(maps.Keys(refs)) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}
