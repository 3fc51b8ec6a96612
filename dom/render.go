package dom

import (
	"io"

	qt "github.com/valyala/quicktemplate"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Track: true,
	atom.Wbr: true,
}

var rawTextElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Xmp: true, atom.Iframe: true,
	atom.Noembed: true, atom.Noframes: true, atom.Plaintext: true,
}

// Render serialises n. Attribute names are written exactly as stored, so
// names such as @click, :class or x-on:keydown.enter survive a round trip.
func Render(w io.Writer, n *html.Node) error {
	bb := qt.AcquireByteBuffer()
	defer qt.ReleaseByteBuffer(bb)

	qw := qt.AcquireWriter(bb)
	renderNode(qw, n)
	qt.ReleaseWriter(qw)

	_, err := w.Write(bb.B)
	return err
}

func renderNode(qw *qt.Writer, n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderNode(qw, c)
		}
	case html.DoctypeNode:
		qw.N().S("<!DOCTYPE ")
		qw.N().S(n.Data)
		qw.N().S(">")
	case html.CommentNode:
		qw.N().S("<!--")
		qw.N().S(n.Data)
		qw.N().S("-->")
	case html.TextNode:
		if p := n.Parent; p != nil && p.Type == html.ElementNode && rawTextElements[p.DataAtom] {
			qw.N().S(n.Data)
			return
		}
		qw.E().S(n.Data)
	case html.ElementNode:
		qw.N().S("<")
		qw.N().S(n.Data)
		for _, a := range n.Attr {
			qw.N().S(" ")
			if a.Namespace != "" {
				qw.N().S(a.Namespace)
				qw.N().S(":")
			}
			qw.N().S(a.Key)
			qw.N().S(`="`)
			qw.E().S(a.Val)
			qw.N().S(`"`)
		}
		qw.N().S(">")
		if voidElements[n.DataAtom] && n.FirstChild == nil {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderNode(qw, c)
		}
		qw.N().S("</")
		qw.N().S(n.Data)
		qw.N().S(">")
	}
}
