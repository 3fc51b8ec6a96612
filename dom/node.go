package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Walk visits el and its element descendants depth first. Calling skip stops
// the walk from descending into the current element. Template contents are
// inert and never visited. Siblings are read after each subtree is walked so
// fn may insert or move nodes.
func Walk(el *html.Node, fn func(el *html.Node, skip func())) {
	skipped := false
	fn(el, func() { skipped = true })
	if skipped || el.DataAtom == atom.Template {
		return
	}
	for c := FirstElementChild(el); c != nil; {
		Walk(c, fn)
		c = NextElementSibling(c)
	}
}

func FirstElementChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func NextElementSibling(n *html.Node) *html.Node {
	for c := n.NextSibling; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// ParentElement returns n's parent when it is an element.
func ParentElement(n *html.Node) *html.Node {
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		return n.Parent
	}
	return nil
}

// FirstElement returns the first element in nodes.
func FirstElement(nodes []*html.Node) *html.Node {
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Contains reports whether other is n or one of its descendants.
func Contains(n, other *html.Node) bool {
	for p := other; p != nil; p = p.Parent {
		if p == n {
			return true
		}
	}
	return false
}

// Clone copies n, and its subtree when deep is set. The copy is detached.
func Clone(n *html.Node, deep bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	if deep {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.AppendChild(Clone(child, true))
		}
	}
	return c
}

// IsEqualNode compares type, name, attributes regardless of order and
// children recursively.
func IsEqualNode(a, b *html.Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Type != b.Type || a.Data != b.Data || a.Namespace != b.Namespace {
		return false
	}
	if len(a.Attr) != len(b.Attr) {
		return false
	}
	for _, attr := range a.Attr {
		v, ok := attrNS(b, attr.Namespace, attr.Key)
		if !ok || v != attr.Val {
			return false
		}
	}
	ca, cb := a.FirstChild, b.FirstChild
	for ca != nil && cb != nil {
		if !IsEqualNode(ca, cb) {
			return false
		}
		ca, cb = ca.NextSibling, cb.NextSibling
	}
	return ca == nil && cb == nil
}

func Attr(n *html.Node, name string) (string, bool) {
	return attrNS(n, "", name)
}

func attrNS(n *html.Node, ns, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == ns && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func HasAttr(n *html.Node, name string) bool {
	_, ok := Attr(n, name)
	return ok
}

// AttrNames lists n's attribute names in document order.
func AttrNames(n *html.Node) []string {
	names := make([]string, 0, len(n.Attr))
	for _, a := range n.Attr {
		names = append(names, a.Key)
	}
	return names
}

func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// TagName returns the element name the way the DOM reports it, upper cased
// for HTML elements.
func TagName(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	if n.Namespace == "" {
		return strings.ToUpper(n.Data)
	}
	return n.Data
}
