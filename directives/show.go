package directives

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/expr"
)

// showDirective toggles display: none on el. The first evaluation is always
// applied, later ones only when the value changed.
func showDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	e := u.Engine
	evaluate := u.EvaluateLater(d.Expression)
	important := d.HasModifier("important")

	var (
		oldValue  any
		firstTime = true
	)
	u.Effect(func() {
		evaluate(func(v any) {
			if !firstTime && expr.StrictEquals(v, oldValue) {
				return
			}
			oldValue, firstTime = v, false
			shown := expr.Truthy(v)
			e.MutateDom(func() {
				if shown {
					doShow(e.Document(), el)
				} else {
					doHide(e.Document(), el, important)
				}
			})
			e.SetShown(el, shown)
		})
	})
	return nil
}

func doHide(doc *dom.Document, el *html.Node, important bool) {
	style := parseStyleAttr(el)
	value := "none"
	if important {
		value += " !important"
	}
	style.set("display", value)
	style.write(doc, el)
}

func doShow(doc *dom.Document, el *html.Node) {
	style := parseStyleAttr(el)
	style.remove("display")
	style.write(doc, el)
}

type styleProp struct {
	name, value string
}

type styleDecl []styleProp

func parseStyle(src string) styleDecl {
	var out styleDecl
	for _, part := range strings.Split(src, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if name == "" {
			continue
		}
		out.set(name, value)
	}
	return out
}

func parseStyleAttr(el *html.Node) styleDecl {
	v, _ := dom.Attr(el, "style")
	return parseStyle(v)
}

func (s styleDecl) get(name string) (string, bool) {
	for _, p := range s {
		if p.name == name {
			return p.value, true
		}
	}
	return "", false
}

func (s *styleDecl) set(name, value string) {
	for i, p := range *s {
		if p.name == name {
			(*s)[i].value = value
			return
		}
	}
	*s = append(*s, styleProp{name: name, value: value})
}

func (s *styleDecl) remove(name string) {
	out := (*s)[:0]
	for _, p := range *s {
		if p.name != name {
			out = append(out, p)
		}
	}
	*s = out
}

func (s styleDecl) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = p.name + ": " + p.value + ";"
	}
	return strings.Join(parts, " ")
}

// write stores the declarations, dropping the attribute once it is empty.
func (s styleDecl) write(doc *dom.Document, el *html.Node) {
	current, had := dom.Attr(el, "style")
	if len(s) == 0 {
		if had {
			doc.RemoveAttribute(el, "style")
		}
		return
	}
	if v := s.String(); !had || v != current {
		doc.SetAttribute(el, "style", v)
	}
}
