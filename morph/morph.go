// Package morph rewrites a live DOM tree in place to match a target tree,
// keeping the live nodes, and the reactive state attached to them, wherever
// the two trees agree.
package morph

import (
	"errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/expr"
)

var ErrNoElement = errors.New("morph: target markup has no element")

// Runtime is the engine state the morph consults. *engine.Engine
// implements it.
type Runtime interface {
	// CloneNode initialises to against from's state.
	CloneNode(from, to *html.Node)
	InheritDataStack(from, to *html.Node) bool
	Teleport(template *html.Node) *html.Node
	Transitioning(el *html.Node) bool
	Shown(el *html.Node) bool
	Binding(el *html.Node, name string) (any, bool)
	// Discard forgets the state of a target tree once it has been used.
	Discard(root *html.Node)
}

// Update lets an Updating hook veto or narrow the patch of one node.
type Update struct {
	skip         bool
	skipChildren bool
	childrenOnly bool
	m            *morpher
}

// Skip leaves the node and its children untouched.
func (u *Update) Skip() { u.skip = true }

// SkipChildren patches the node but not its children.
func (u *Update) SkipChildren() { u.skipChildren = true }

// ChildrenOnly leaves the node's attributes alone.
func (u *Update) ChildrenOnly() { u.childrenOnly = true }

// SkipUntil skips siblings on both sides until fn matches a node on each.
func (u *Update) SkipUntil(fn func(*html.Node) bool) { u.m.skipUntil = fn }

// Options configure a morph. Every hook is optional.
type Options struct {
	// Key identifies nodes across moves. It defaults to the key attribute.
	Key       func(el *html.Node) string
	Lookahead bool

	Updating func(from, to *html.Node, u *Update)
	Updated  func(from, to *html.Node)
	Removing func(n *html.Node, skip func())
	Removed  func(n *html.Node)
	Adding   func(n *html.Node, skip func())
	Added    func(n *html.Node)
}

func defaultKey(el *html.Node) string {
	v, _ := dom.Attr(el, "key")
	return v
}

type morpher struct {
	doc       *dom.Document
	rt        Runtime
	opts      Options
	skipUntil func(*html.Node) bool
	errs      []error
}

func newMorpher(doc *dom.Document, rt Runtime, opts Options) *morpher {
	if opts.Key == nil {
		opts.Key = defaultKey
	}
	if opts.Updating == nil {
		opts.Updating = func(*html.Node, *html.Node, *Update) {}
	}
	if opts.Updated == nil {
		opts.Updated = func(*html.Node, *html.Node) {}
	}
	if opts.Removing == nil {
		opts.Removing = func(*html.Node, func()) {}
	}
	if opts.Removed == nil {
		opts.Removed = func(*html.Node) {}
	}
	if opts.Adding == nil {
		opts.Adding = func(*html.Node, func()) {}
	}
	if opts.Added == nil {
		opts.Added = func(*html.Node) {}
	}
	return &morpher{doc: doc, rt: rt, opts: opts}
}

// Morph patches from to look like to. When from has no data stack of its
// own, to borrows the one around from so its expressions resolve against
// the live state.
func Morph(doc *dom.Document, rt Runtime, from, to *html.Node, opts Options) error {
	m := newMorpher(doc, rt, opts)
	if rt != nil {
		defer rt.Discard(to)
		if rt.InheritDataStack(from, to) {
			rt.CloneNode(from, to)
		}
	}
	m.patch(from, to)
	return errors.Join(m.errs...)
}

// MorphHTML parses src and morphs from against its first element.
func MorphHTML(doc *dom.Document, rt Runtime, from *html.Node, src string, opts Options) error {
	nodes, err := dom.ParseFragment(src, nil)
	if err != nil {
		return err
	}
	to := dom.FirstElement(nodes)
	if to == nil {
		return ErrNoElement
	}
	return Morph(doc, rt, from, to, opts)
}

// MorphBetween morphs the siblings between the start and end markers
// against the nodes parsed from src.
func MorphBetween(doc *dom.Document, rt Runtime, start, end *html.Node, src string, opts Options) error {
	fromParent := start.Parent
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := dom.ParseFragment(src, fromParent)
	if err != nil {
		return err
	}
	toStart := &html.Node{Type: html.CommentNode, Data: "[morph-start]"}
	toEnd := &html.Node{Type: html.CommentNode, Data: "[morph-end]"}
	container.AppendChild(toStart)
	for _, n := range nodes {
		container.AppendChild(n)
	}
	container.AppendChild(toEnd)

	m := newMorpher(doc, rt, opts)
	if rt != nil {
		defer rt.Discard(container)
		if fromParent != nil {
			// A parent with its own stack hands it over through the clone
			// interceptors instead.
			rt.InheritDataStack(fromParent, container)
			rt.CloneNode(fromParent, container)
		}
	}
	m.patchChildren(NewBlock(start, end), NewBlock(toStart, toEnd))
	return errors.Join(m.errs...)
}

func (m *morpher) check(err error) {
	if err != nil {
		m.errs = append(m.errs, err)
	}
}

func (m *morpher) key(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return m.opts.Key(n)
}

func (m *morpher) differentIdentity(from, to *html.Node) bool {
	if from.Type != to.Type {
		return true
	}
	if from.Type == html.ElementNode && (from.Data != to.Data || from.Namespace != to.Namespace) {
		return true
	}
	return m.key(from) != m.key(to)
}

func (m *morpher) patch(from, to *html.Node) {
	if m.differentIdentity(from, to) {
		m.swap(from, to)
		return
	}

	u := &Update{m: m}
	m.opts.Updating(from, to, u)
	if u.skip {
		return
	}

	if from.Type == html.ElementNode && m.rt != nil {
		m.rt.CloneNode(from, to)
		if ft, tt := m.rt.Teleport(from), m.rt.Teleport(to); ft != nil && tt != nil {
			m.patch(ft, tt)
		}
	}

	if to.Type == html.TextNode || to.Type == html.CommentNode {
		m.doc.SetNodeValue(from, to.Data)
		m.opts.Updated(from, to)
		return
	}

	if !u.childrenOnly {
		m.patchAttributes(from, to)
	}
	m.opts.Updated(from, to)
	if !u.skipChildren {
		m.patchChildren(element{from}, element{to})
	}
}

// swap replaces from with a copy of to.
func (m *morpher) swap(from, to *html.Node) {
	if m.vetoed(m.opts.Removing, from) {
		return
	}
	clone := dom.Clone(to, true)
	if m.vetoed(m.opts.Adding, clone) {
		return
	}
	if err := m.doc.ReplaceWith(from, clone); err != nil {
		m.check(err)
		return
	}
	m.opts.Removed(from)
	m.opts.Added(clone)
}

func (m *morpher) vetoed(hook func(*html.Node, func()), n *html.Node) bool {
	skip := false
	hook(n, func() { skip = true })
	return skip
}

// patchAttributes is left out while from is transitioning or while its
// visibility disagrees with the target's, so an in flight show or hide is
// not undone.
func (m *morpher) patchAttributes(from, to *html.Node) {
	if m.rt != nil {
		if m.rt.Transitioning(from) || m.rt.Shown(from) != m.rt.Shown(to) {
			return
		}
	}
	for _, name := range dom.AttrNames(from) {
		if !dom.HasAttr(to, name) {
			m.doc.RemoveAttribute(from, name)
		}
	}
	for _, a := range to.Attr {
		if v, ok := dom.Attr(from, a.Key); !ok || v != a.Val {
			m.doc.SetAttribute(from, a.Key, a.Val)
		}
	}
}

// keyMap indexes keyed nodes. The first node with a key wins.
func (m *morpher) keyMap(nodes []*html.Node) map[string]*html.Node {
	keys := map[string]*html.Node{}
	for _, n := range nodes {
		if k := m.key(n); k != "" {
			if _, ok := keys[k]; !ok {
				keys[k] = n
			}
		}
	}
	return keys
}

func (m *morpher) patchChildren(from, to parent) {
	fromKeys := m.keyMap(from.Children())
	holdovers := map[string]*html.Node{}

	currentTo := to.FirstChild()
	currentFrom := from.FirstChild()

	for currentTo != nil {
		m.seedMatchingID(currentTo, currentFrom)

		toKey, fromKey := m.key(currentTo), m.key(currentFrom)

		if m.skipUntil != nil {
			fromDone := currentFrom == nil || m.skipUntil(currentFrom)
			toDone := m.skipUntil(currentTo)
			if fromDone && toDone {
				m.skipUntil = nil
			} else {
				if !fromDone {
					currentFrom = from.Next(currentFrom)
				}
				if !toDone {
					currentTo = to.Next(currentTo)
				}
				continue
			}
		}

		if currentFrom == nil {
			holdover, ok := holdovers[toKey]
			if toKey == "" || !ok {
				if !m.vetoed(m.opts.Adding, currentTo) {
					clone := dom.Clone(currentTo, true)
					m.check(from.AppendChild(m.doc, clone))
					m.opts.Added(clone)
				}
				currentTo = to.Next(currentTo)
				continue
			}
			m.check(from.AppendChild(m.doc, holdover))
			currentFrom = holdover
			fromKey = m.key(currentFrom)
		}

		if isBlockOpen(currentTo) && isBlockOpen(currentFrom) {
			fromStart, toStart := currentFrom, currentTo
			fromEnd, toEnd := blockEnd(from, fromStart), blockEnd(to, toStart)
			m.patchChildren(NewBlock(fromStart, fromEnd), NewBlock(toStart, toEnd))
			// The closing markers are patched like any other pair of nodes.
			currentFrom, currentTo = fromEnd, toEnd
			continue
		}

		if m.opts.Lookahead && currentFrom.Type == html.ElementNode && !dom.IsEqualNode(currentFrom, currentTo) {
			for next := to.Next(currentTo); next != nil; next = to.Next(next) {
				if next.Type == html.ElementNode && dom.IsEqualNode(currentFrom, next) {
					currentFrom = m.addNodeBefore(from, currentTo, currentFrom)
					fromKey = m.key(currentFrom)
					break
				}
			}
		}

		if toKey != fromKey {
			switch {
			case toKey == "" && fromKey != "":
				// The target has an unkeyed node here: insert it and hold
				// the keyed one back in case it shows up later.
				holdovers[fromKey] = currentFrom
				following := from.Next(currentFrom)
				m.addNodeBefore(from, currentTo, currentFrom)
				m.doc.Remove(currentFrom)
				currentFrom, currentTo = following, to.Next(currentTo)
				continue

			case toKey != "" && fromKey == "":
				if keyed, ok := fromKeys[toKey]; ok {
					m.check(m.doc.ReplaceWith(currentFrom, keyed))
					currentFrom = keyed
					fromKey = m.key(currentFrom)
				}

			case toKey != "" && fromKey != "":
				if keyed, ok := fromKeys[toKey]; ok {
					holdovers[fromKey] = currentFrom
					m.check(m.doc.ReplaceWith(currentFrom, keyed))
					currentFrom = keyed
					fromKey = m.key(currentFrom)
				} else {
					holdovers[fromKey] = currentFrom
					following := from.Next(currentFrom)
					m.addNodeBefore(from, currentTo, currentFrom)
					m.doc.Remove(currentFrom)
					currentFrom, currentTo = following, to.Next(currentTo)
					continue
				}
			}
		}

		// The next live sibling is read before patching since the patch may
		// replace currentFrom.
		currentFromNext := from.Next(currentFrom)
		m.patch(currentFrom, currentTo)
		currentTo = to.Next(currentTo)
		currentFrom = currentFromNext
	}

	// Collect first so removing does not disturb the walk.
	var removals []*html.Node
	for ; currentFrom != nil; currentFrom = from.Next(currentFrom) {
		if !m.vetoed(m.opts.Removing, currentFrom) {
			removals = append(removals, currentFrom)
		}
	}
	for _, n := range removals {
		m.doc.Remove(n)
		m.opts.Removed(n)
	}
}

// addNodeBefore inserts a copy of node in front of before and returns it,
// or returns before when an Adding hook vetoes the insert.
func (m *morpher) addNodeBefore(p parent, node, before *html.Node) *html.Node {
	if m.vetoed(m.opts.Adding, node) {
		return before
	}
	clone := dom.Clone(node, true)
	if err := p.InsertBefore(m.doc, clone, before); err != nil {
		m.check(err)
		return before
	}
	m.opts.Added(clone)
	return clone
}

// seedMatchingID copies an id bound on the live node onto the target so
// the attribute patch does not overwrite it.
func (m *morpher) seedMatchingID(to, from *html.Node) {
	if m.rt == nil || from == nil || from.Type != html.ElementNode || to.Type != html.ElementNode {
		return
	}
	v, ok := m.rt.Binding(from, "id")
	if !ok || v == nil {
		return
	}
	id := expr.ToString(v)
	if id == "" {
		return
	}
	m.doc.SetAttribute(to, "id", id)
}
