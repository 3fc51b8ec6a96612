package engine

import (
	"reflect"
	"slices"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/scope"
)

// AddScopeToNode gives node its own data stack: layer in front of the stack
// inherited from referenceNode, or from node itself when referenceNode is
// nil. The returned func takes layer back out.
func (e *Engine) AddScopeToNode(node *html.Node, layer scope.Layer, referenceNode *html.Node) (undo func()) {
	if referenceNode == nil {
		referenceNode = node
	}
	inherited := e.ClosestDataStack(referenceNode)
	stack := make([]scope.Layer, 0, len(inherited)+1)
	stack = append(stack, layer)
	stack = append(stack, inherited...)

	s := e.state(node)
	s.dataStack = stack
	return func() {
		s.dataStack = slices.DeleteFunc(slices.Clone(s.dataStack), func(l scope.Layer) bool {
			return sameLayer(l, layer)
		})
	}
}

// ClosestDataStack returns the data stack of node or its nearest ancestor
// that has one.
func (e *Engine) ClosestDataStack(node *html.Node) []scope.Layer {
	for n := node; n != nil; n = n.Parent {
		if s := e.peek(n); s != nil && s.dataStack != nil {
			return s.dataStack
		}
	}
	return nil
}

// DataStack returns the stack set on el itself, nil when it inherits.
func (e *Engine) DataStack(el *html.Node) []scope.Layer {
	if s := e.peek(el); s != nil {
		return s.dataStack
	}
	return nil
}

func (e *Engine) SetDataStack(el *html.Node, stack []scope.Layer) {
	e.state(el).dataStack = stack
}

// InheritDataStack seeds to with the data stack around from when from has none
// of its own. It reports whether there was anything to inherit.
func (e *Engine) InheritDataStack(from, to *html.Node) bool {
	if e.DataStack(from) != nil {
		return false
	}
	stack := e.ClosestDataStack(from)
	if len(stack) == 0 {
		return false
	}
	e.SetDataStack(to, stack)
	return true
}

// MergedScope returns a single view over el's data stack.
func (e *Engine) MergedScope(el *html.Node) *scope.Stack {
	return scope.New(e.ClosestDataStack(el)...)
}

// Data registers a named data provider callable from data expressions.
func (e *Engine) Data(name string, provider expr.Callable) {
	e.dataProviders[name] = provider
}

// DataProviders returns the registered providers keyed by name.
func (e *Engine) DataProviders() map[string]any {
	out := make(map[string]any, len(e.dataProviders))
	for name, p := range e.dataProviders {
		out[name] = p
	}
	return out
}

func sameLayer(a, b scope.Layer) bool {
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}
