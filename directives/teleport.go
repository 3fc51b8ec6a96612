package directives

import (
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/scope"
)

// teleportDirective renders a <template>'s element somewhere else in the
// document while it keeps the template's scope.
func teleportDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	e := u.Engine
	doc := e.Document()
	source := dom.FirstElementChild(el)
	if el.DataAtom != atom.Template || source == nil {
		return ErrTeleportTemplate
	}
	target, err := teleportTarget(e, d.Expression)
	if err != nil {
		return err
	}

	clone := dom.Clone(source, true)
	e.SetTeleport(el, clone)
	e.AddScopeToNode(clone, scope.Map{}, el)

	e.MutateDom(func() {
		if err = place(doc, clone, target, d); err != nil {
			return
		}
		if !e.IsCloning() {
			e.InitTree(clone)
		}
	})
	if err != nil {
		e.ClearTeleport(el)
		return err
	}

	u.Cleanup(func() {
		e.MutateDom(func() {
			doc.Remove(clone)
			e.DestroyTree(clone)
		})
		e.ClearTeleport(el)
	})
	return nil
}

// teleportTarget resolves the selector in the document. Clones are placed in
// a detached container instead.
func teleportTarget(e *engine.Engine, selector string) (*html.Node, error) {
	if e.IsCloning() {
		return &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}, nil
	}
	sel, err := dom.Compile(selector)
	if err != nil {
		return nil, err
	}
	target := sel.Query(e.Document().Root)
	if target == nil {
		return nil, fmt.Errorf("%w: %q", ErrTeleportTarget, selector)
	}
	return target, nil
}

func place(doc *dom.Document, clone, target *html.Node, d engine.Directive) error {
	switch {
	case target.Parent == nil:
		return doc.AppendChild(target, clone)
	case d.HasModifier("prepend"):
		return doc.Before(target, clone)
	case d.HasModifier("append"):
		return doc.After(target, clone)
	default:
		return doc.AppendChild(target, clone)
	}
}
