// Package dom is the document model the engine drives. Nodes are
// golang.org/x/net/html nodes; every write goes through a Document so that
// writes on connected nodes are recorded for observers, the way a browser
// MutationObserver sees them.
package dom

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var ErrHierarchy = errors.New("dom: node cannot be inserted here")

type RecordType int

const (
	ChildList RecordType = iota
	Attributes
	CharacterData
)

func (t RecordType) String() string {
	switch t {
	case ChildList:
		return "childList"
	case Attributes:
		return "attributes"
	case CharacterData:
		return "characterData"
	default:
		return "unknown"
	}
}

// Record describes one write. For attribute records HadOldValue tells an
// attribute that was just created apart from one that was set to "".
type Record struct {
	Type          RecordType
	Target        *html.Node
	Added         []*html.Node
	Removed       []*html.Node
	AttributeName string
	OldValue      string
	HadOldValue   bool
}

type Document struct {
	Root           *html.Node
	queueMicrotask func(func())
	observers      []*Observer
}

// NewDocument wraps root. queueMicrotask is used to deliver records to
// observers.
func NewDocument(root *html.Node, queueMicrotask func(func())) *Document {
	return &Document{Root: root, queueMicrotask: queueMicrotask}
}

// ParseHTML parses a full document.
func ParseHTML(src string) (*html.Node, error) {
	return html.Parse(strings.NewReader(src))
}

// ParseFragment parses src as the children of a <body>, or of context when
// it is given.
func ParseFragment(src string, context *html.Node) ([]*html.Node, error) {
	if context == nil || context.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	return html.ParseFragment(strings.NewReader(src), context)
}

// Body returns the document's <body>, or the root when there is none.
func (d *Document) Body() *html.Node {
	var body *html.Node
	Walk(d.Root, func(n *html.Node, skip func()) {
		if body != nil {
			skip()
			return
		}
		if n.DataAtom == atom.Body {
			body = n
			skip()
		}
	})
	if body == nil {
		return d.Root
	}
	return body
}

// IsConnected reports whether n hangs off the document root.
func (d *Document) IsConnected(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.Root {
			return true
		}
	}
	return false
}

func (d *Document) record(r Record) {
	if !d.IsConnected(r.Target) {
		return
	}
	for _, o := range d.observers {
		o.enqueue(r)
	}
}

func (d *Document) AppendChild(parent, child *html.Node) error {
	return d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child into parent before ref, or last when ref is nil.
// A child that already has a parent is moved.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if Contains(child, parent) {
		return ErrHierarchy
	}
	if ref != nil && ref.Parent != parent {
		return ErrHierarchy
	}
	if child == ref {
		return nil
	}
	if child.Parent != nil {
		d.Remove(child)
	}
	parent.InsertBefore(child, ref)
	d.record(Record{Type: ChildList, Target: parent, Added: []*html.Node{child}})
	return nil
}

// Before inserts nodes in front of ref.
func (d *Document) Before(ref *html.Node, nodes ...*html.Node) error {
	if ref.Parent == nil {
		return ErrHierarchy
	}
	for _, n := range nodes {
		if err := d.InsertBefore(ref.Parent, n, ref); err != nil {
			return err
		}
	}
	return nil
}

// After inserts nodes right behind ref, keeping their order.
func (d *Document) After(ref *html.Node, nodes ...*html.Node) error {
	parent := ref.Parent
	if parent == nil {
		return ErrHierarchy
	}
	next := ref.NextSibling
	for _, n := range nodes {
		if n == next {
			next = next.NextSibling
			continue
		}
		if err := d.InsertBefore(parent, n, next); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(n)
	d.record(Record{Type: ChildList, Target: parent, Removed: []*html.Node{n}})
}

// ReplaceWith swaps old for n in a single record.
func (d *Document) ReplaceWith(old, n *html.Node) error {
	parent := old.Parent
	if parent == nil || Contains(n, parent) {
		return ErrHierarchy
	}
	if old == n {
		return nil
	}
	if n.Parent != nil {
		d.Remove(n)
	}
	parent.InsertBefore(n, old)
	parent.RemoveChild(old)
	d.record(Record{
		Type:    ChildList,
		Target:  parent,
		Added:   []*html.Node{n},
		Removed: []*html.Node{old},
	})
	return nil
}

func (d *Document) SetAttribute(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			old := a.Val
			n.Attr[i].Val = value
			d.record(Record{Type: Attributes, Target: n, AttributeName: name, OldValue: old, HadOldValue: true})
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
	d.record(Record{Type: Attributes, Target: n, AttributeName: name})
}

func (d *Document) RemoveAttribute(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			d.record(Record{Type: Attributes, Target: n, AttributeName: name, OldValue: a.Val, HadOldValue: true})
			return
		}
	}
}

// SetNodeValue replaces the data of a text or comment node.
func (d *Document) SetNodeValue(n *html.Node, value string) {
	if n.Data == value {
		return
	}
	old := n.Data
	n.Data = value
	d.record(Record{Type: CharacterData, Target: n, OldValue: old, HadOldValue: true})
}

// SetTextContent replaces every child of n with a single text node.
func (d *Document) SetTextContent(n *html.Node, text string) {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		d.SetNodeValue(n, text)
		return
	}
	if c := n.FirstChild; c != nil && c == n.LastChild && c.Type == html.TextNode {
		d.SetNodeValue(c, text)
		return
	}
	removed := detachChildren(n)
	var added []*html.Node
	if text != "" {
		t := &html.Node{Type: html.TextNode, Data: text}
		n.AppendChild(t)
		added = append(added, t)
	}
	if len(removed) > 0 || len(added) > 0 {
		d.record(Record{Type: ChildList, Target: n, Added: added, Removed: removed})
	}
}

// SetInnerHTML parses src in the context of n and replaces n's children.
func (d *Document) SetInnerHTML(n *html.Node, src string) error {
	nodes, err := ParseFragment(src, n)
	if err != nil {
		return err
	}
	removed := detachChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
	if len(removed) > 0 || len(nodes) > 0 {
		d.record(Record{Type: ChildList, Target: n, Added: nodes, Removed: removed})
	}
	return nil
}

func detachChildren(n *html.Node) []*html.Node {
	var removed []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	return removed
}

// TextContent concatenates every descendant text node.
func TextContent(n *html.Node) string {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return n.Data
	}
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

// OuterHTML renders n to a string.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	Render(&buf, n)
	return buf.String()
}

// InnerHTML renders n's children.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Render(&buf, c)
	}
	return buf.String()
}
