package directives

import (
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/expr"
)

var booleanAttributes = []string{
	"allowfullscreen", "async", "autofocus", "autoplay", "checked", "controls",
	"default", "defer", "disabled", "formnovalidate", "hidden", "inert",
	"ismap", "itemscope", "loop", "multiple", "muted", "nomodule",
	"novalidate", "open", "playsinline", "readonly", "required", "reversed",
	"selected",
}

// preserved attributes keep "false" instead of being removed.
var preservedIfFalsy = []string{"aria-pressed", "aria-checked", "aria-expanded", "aria-selected"}

func bindDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	e := u.Engine
	evaluate := u.EvaluateLater(d.Expression)
	b := &binder{e: e, el: el}
	u.Cleanup(b.undo)

	u.Effect(func() {
		evaluate(func(v any) {
			e.MutateDom(func() {
				if d.Value != "" {
					b.bind(d.Value, v)
					return
				}
				obj, ok := v.(expr.ObjectLike)
				if !ok {
					return
				}
				for _, name := range obj.Keys() {
					value, _ := obj.Get(name)
					b.bind(name, value)
				}
			})
		})
	})
	return nil
}

// binder applies bound values to one element and remembers the classes and
// styles it added so they can be taken back.
type binder struct {
	e           *engine.Engine
	el          *html.Node
	undoClasses func()
	undoStyles  func()
}

func (b *binder) undo() {
	b.e.MutateDom(func() {
		if b.undoClasses != nil {
			b.undoClasses()
			b.undoClasses = nil
		}
		if b.undoStyles != nil {
			b.undoStyles()
			b.undoStyles = nil
		}
	})
}

func (b *binder) bind(name string, v any) {
	b.e.SetBinding(b.el, name, v)
	switch name {
	case "class":
		if b.undoClasses != nil {
			b.undoClasses()
		}
		b.undoClasses = setClasses(b.e.Document(), b.el, v)
	case "style":
		if b.undoStyles != nil {
			b.undoStyles()
		}
		b.undoStyles = setStyles(b.e.Document(), b.el, v)
	default:
		bindAttribute(b.e.Document(), b.el, name, v)
	}
}

func bindAttribute(doc *dom.Document, el *html.Node, name string, v any) {
	isBool := slices.Contains(booleanAttributes, name)
	falsy := v == nil || v == false || (isBool && !expr.Truthy(v))
	if falsy && !slices.Contains(preservedIfFalsy, name) {
		if dom.HasAttr(el, name) {
			doc.RemoveAttribute(el, name)
		}
		return
	}
	value := expr.ToString(v)
	if isBool {
		value = name
	}
	if current, ok := dom.Attr(el, name); !ok || current != value {
		doc.SetAttribute(el, name, value)
	}
}

func classList(el *html.Node) []string {
	v, _ := dom.Attr(el, "class")
	return strings.Fields(v)
}

func setClassList(doc *dom.Document, el *html.Node, classes []string) {
	value := strings.Join(classes, " ")
	if current, ok := dom.Attr(el, "class"); ok && current == value {
		return
	}
	doc.SetAttribute(el, "class", value)
}

// setClasses adds the classes described by v, a string, a list or an
// object of class names to booleans, on top of the ones el already has.
func setClasses(doc *dom.Document, el *html.Node, v any) (undo func()) {
	switch x := v.(type) {
	case expr.ObjectLike:
		var added, removed []string
		classes := classList(el)
		for _, key := range x.Keys() {
			on, _ := x.Get(key)
			for _, c := range strings.Fields(key) {
				has := slices.Contains(classes, c)
				switch {
				case expr.Truthy(on) && !has:
					classes = append(classes, c)
					added = append(added, c)
				case !expr.Truthy(on) && has:
					classes = slices.DeleteFunc(classes, func(s string) bool { return s == c })
					removed = append(removed, c)
				}
			}
		}
		setClassList(doc, el, classes)
		return func() {
			classes := classList(el)
			classes = slices.DeleteFunc(classes, func(s string) bool { return slices.Contains(added, s) })
			for _, c := range removed {
				if !slices.Contains(classes, c) {
					classes = append(classes, c)
				}
			}
			setClassList(doc, el, classes)
		}
	}

	var names []string
	switch x := v.(type) {
	case nil, bool:
	case string:
		names = strings.Fields(x)
	default:
		for _, item := range elements(v) {
			names = append(names, strings.Fields(expr.ToString(item))...)
		}
	}
	classes := classList(el)
	var added []string
	for _, c := range names {
		if !slices.Contains(classes, c) {
			classes = append(classes, c)
			added = append(added, c)
		}
	}
	setClassList(doc, el, classes)
	return func() {
		classes := slices.DeleteFunc(classList(el), func(s string) bool { return slices.Contains(added, s) })
		setClassList(doc, el, classes)
	}
}

// setStyles applies an object of properties, or a declaration string, and
// returns a func restoring the properties it replaced.
func setStyles(doc *dom.Document, el *html.Node, v any) (undo func()) {
	var props []styleProp
	switch x := v.(type) {
	case expr.ObjectLike:
		for _, key := range x.Keys() {
			value, _ := x.Get(key)
			props = append(props, styleProp{name: kebab(key), value: display(value)})
		}
	case nil, bool:
	default:
		props = parseStyle(expr.ToString(x))
	}

	type saved struct {
		name, value string
		had         bool
	}
	style := parseStyleAttr(el)
	previous := make([]saved, 0, len(props))
	for _, p := range props {
		old, had := style.get(p.name)
		previous = append(previous, saved{name: p.name, value: old, had: had})
		if p.value == "" {
			style.remove(p.name)
		} else {
			style.set(p.name, p.value)
		}
	}
	style.write(doc, el)
	return func() {
		style := parseStyleAttr(el)
		for _, p := range previous {
			if p.had {
				style.set(p.name, p.value)
			} else {
				style.remove(p.name)
			}
		}
		style.write(doc, el)
	}
}

func kebab(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
