package morph

import (
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/dom"
)

// Block is the run of siblings between two marker nodes, exclusive. It lets
// a range of a parent's children be morphed as if it were a parent itself.
type Block struct {
	Start, End *html.Node
}

func NewBlock(start, end *html.Node) *Block {
	return &Block{Start: start, End: end}
}

// Children returns the nodes between the markers.
func (b *Block) Children() []*html.Node {
	var out []*html.Node
	for n := b.Start.NextSibling; n != nil && n != b.End; n = n.NextSibling {
		out = append(out, n)
	}
	return out
}

func (b *Block) FirstChild() *html.Node {
	return b.Next(b.Start)
}

// Next returns the sibling after n, or nil once the end marker is reached.
func (b *Block) Next(n *html.Node) *html.Node {
	next := n.NextSibling
	if next == b.End {
		return nil
	}
	return next
}

// AppendChild inserts n before the end marker. A block without one runs to
// the end of its parent.
func (b *Block) AppendChild(doc *dom.Document, n *html.Node) error {
	if b.End == nil {
		return doc.AppendChild(b.Start.Parent, n)
	}
	return doc.Before(b.End, n)
}

func (b *Block) InsertBefore(doc *dom.Document, n, ref *html.Node) error {
	return doc.Before(ref, n)
}

// parent is what children are reconciled in: an element or a Block.
type parent interface {
	Children() []*html.Node
	FirstChild() *html.Node
	Next(n *html.Node) *html.Node
	AppendChild(doc *dom.Document, n *html.Node) error
	InsertBefore(doc *dom.Document, n, ref *html.Node) error
}

type element struct {
	n *html.Node
}

func (e element) Children() []*html.Node {
	return dom.Children(e.n)
}

func (e element) FirstChild() *html.Node {
	return e.n.FirstChild
}

func (e element) Next(n *html.Node) *html.Node {
	return n.NextSibling
}

func (e element) AppendChild(doc *dom.Document, n *html.Node) error {
	return doc.AppendChild(e.n, n)
}

func (e element) InsertBefore(doc *dom.Document, n, ref *html.Node) error {
	return doc.InsertBefore(e.n, n, ref)
}

const (
	blockOpen  = "[if BLOCK]><![endif]"
	blockClose = "[if ENDBLOCK]><![endif]"
)

func isBlockOpen(n *html.Node) bool {
	return n != nil && n.Type == html.CommentNode && n.Data == blockOpen
}

func isBlockClose(n *html.Node) bool {
	return n != nil && n.Type == html.CommentNode && n.Data == blockClose
}

// blockEnd walks from an opening marker to its matching closing marker,
// counting nested pairs on the way. It returns nil when the block is never
// closed.
func blockEnd(p parent, start *html.Node) *html.Node {
	depth := 0
	for current := start; current != nil; {
		next := p.Next(current)
		switch {
		case isBlockOpen(next):
			depth++
		case isBlockClose(next) && depth > 0:
			depth--
		case isBlockClose(next):
			return next
		}
		current = next
	}
	return nil
}
