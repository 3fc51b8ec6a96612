// Package directives installs the built in attribute directives on an
// engine: data, init, effect, text, html, bind, on, show, ignore, ref, id
// and teleport.
package directives

import (
	"errors"
	"strings"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/expr"
)

var (
	ErrDataNotObject    = errors.New("directives: data expression must produce an object")
	ErrRefOutsideRoot   = errors.New("directives: ref used outside of a component")
	ErrTeleportTemplate = errors.New("directives: teleport must be used on a <template> with an element child")
	ErrTeleportTarget   = errors.New("directives: teleport target not found")
)

// Register installs every built in directive, the ":" and "@" shorthands
// and the root and init selectors.
func Register(e *engine.Engine) {
	e.AddRootSelector(func() string { return "[" + e.Prefixed("data") + "]" })
	e.AddInitSelector(func() string { return "[" + e.Prefixed("init") + "]" })
	e.MapAttributes(engine.StartingWith(":", e.Prefixed("bind:")))
	e.MapAttributes(engine.StartingWith("@", e.Prefixed("on:")))

	registerData(e)
	registerID(e)
	e.Directive("init", engine.SkipDuringClone(initDirective, nil))
	e.Directive("effect", engine.SkipDuringClone(effectDirective, nil))
	e.Directive("text", textDirective)
	e.Directive("html", htmlDirective)
	e.Directive("bind", bindDirective)
	e.Directive("on", engine.SkipDuringClone(onDirective, nil))
	e.Directive("show", showDirective)
	e.Directive("ignore", ignoreDirective).Inline(ignoreDirective)
	e.Directive("ref", func(*html.Node, engine.Directive, *engine.Utilities) error { return nil }).Inline(refDirective)
	e.Directive("teleport", teleportDirective)
}

func initDirective(_ *html.Node, d engine.Directive, u *engine.Utilities) error {
	if strings.TrimSpace(d.Expression) == "" {
		return nil
	}
	u.Evaluate(d.Expression)
	return nil
}

func effectDirective(_ *html.Node, d engine.Directive, u *engine.Utilities) error {
	evaluate := u.EvaluateLater(d.Expression)
	u.Effect(func() {
		evaluate(nil)
	})
	return nil
}

func textDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	e := u.Engine
	evaluate := u.EvaluateLater(d.Expression)
	u.Effect(func() {
		evaluate(func(v any) {
			e.MutateDom(func() {
				e.Document().SetTextContent(el, display(v))
			})
		})
	})
	return nil
}

// htmlDirective replaces el's children and initialises what was inserted.
// The previous children are torn down first.
func htmlDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	e := u.Engine
	evaluate := u.EvaluateLater(d.Expression)
	u.Effect(func() {
		evaluate(func(v any) {
			e.MutateDom(func() {
				for c := el.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode {
						e.DestroyTree(c)
					}
				}
				if err := e.Document().SetInnerHTML(el, display(v)); err != nil {
					e.Logger().Warn("set inner html", "el", el.Data, "err", err)
					return
				}
				e.SetIgnoreSelf(el, true)
				e.InitTree(el)
				e.SetIgnoreSelf(el, false)
			})
		})
	})
	return nil
}

func ignoreDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	e := u.Engine
	self := d.HasModifier("self")
	if self {
		e.SetIgnoreSelf(el, true)
	} else {
		e.SetIgnore(el, true)
	}
	u.Cleanup(func() {
		if self {
			e.SetIgnoreSelf(el, false)
		} else {
			e.SetIgnore(el, false)
		}
	})
	return nil
}

func refDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	e := u.Engine
	root := e.ClosestRoot(el, false)
	if root == nil {
		return ErrRefOutsideRoot
	}
	name := d.Expression
	e.Refs(root)[name] = el
	u.Cleanup(func() {
		if e.Refs(root)[name] == el {
			delete(e.Refs(root), name)
		}
	})
	return nil
}

func registerID(e *engine.Engine) {
	e.Directive("id", func(el *html.Node, d engine.Directive, u *engine.Utilities) error {
		for _, name := range elements(u.Evaluate(d.Expression)) {
			e.SetIdRoot(el, expr.ToString(name))
		}
		return nil
	})
	e.InterceptClone(e.CloneIdRoots)
}

// display formats a value the way text content shows it.
func display(v any) string {
	if v == nil {
		return ""
	}
	return expr.ToString(v)
}

type indexed interface {
	Len() int
	At(i int) any
}

func elements(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case indexed:
		out := make([]any, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			out = append(out, x.At(i))
		}
		return out
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}
