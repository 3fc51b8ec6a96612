package engine

import (
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/reactivity"
)

// InterceptClone registers fn to run before a node is initialised as a
// clone of a live one.
func (e *Engine) InterceptClone(fn func(from, to *html.Node)) {
	e.cloneInterceptors = append(e.cloneInterceptors, fn)
}

// CloneNode initialises to, but not its children, as a copy of the live
// node from. Effects created meanwhile run once and are released, so the
// clone reflects from's state without reacting to it.
func (e *Engine) CloneNode(from, to *html.Node) {
	for _, fn := range e.cloneInterceptors {
		fn(from, to)
	}
	e.cloning++
	defer func() { e.cloning-- }()
	// Effects and watchers set up on the clone only run their first pass.
	stop := reactivity.Scope(e.sys, func() {
		e.initTree(to, func(el *html.Node, fn func(el *html.Node, skip func())) {
			fn(el, func() {})
		}, nil)
	})
	stop()
}

func (e *Engine) IsCloning() bool {
	return e.cloning > 0
}

// SkipDuringClone wraps handler so it is not applied to clones. fallback,
// if set, runs instead.
func SkipDuringClone(handler, fallback DirectiveHandler) DirectiveHandler {
	return func(el *html.Node, d Directive, u *Utilities) error {
		if u.Engine.IsCloning() {
			if fallback != nil {
				return fallback(el, d, u)
			}
			return nil
		}
		return handler(el, d, u)
	}
}

// OnlyDuringClone wraps handler so it is only applied to clones.
func OnlyDuringClone(handler DirectiveHandler) DirectiveHandler {
	return func(el *html.Node, d Directive, u *Utilities) error {
		if !u.Engine.IsCloning() {
			return nil
		}
		return handler(el, d, u)
	}
}
