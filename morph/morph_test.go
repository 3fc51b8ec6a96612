package morph_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/directives"
	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/loop"
	"github.com/delaneyj/sparkdom/morph"
)

var _ morph.Runtime = (*engine.Engine)(nil)

func golden(t *testing.T, name string, n *html.Node) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(dom.OuterHTML(n)+"\n"))
}

// plain parses src into a document with no engine attached and returns the
// first element of the body.
func plain(t *testing.T, src string) (*dom.Document, *html.Node) {
	t.Helper()
	doc, err := engine.NewDocument(src, loop.New())
	require.NoError(t, err)
	root := dom.FirstElementChild(doc.Body())
	require.NotNil(t, root)
	return doc, root
}

func live(t *testing.T, src string) (*engine.Engine, *loop.Loop) {
	t.Helper()
	l := loop.New()
	doc, err := engine.NewDocument(src, l)
	require.NoError(t, err)
	e, err := engine.New(doc, engine.WithLoop(l))
	require.NoError(t, err)
	directives.Register(e)
	require.NoError(t, e.Start())
	return e, l
}

func byID(t *testing.T, e *engine.Engine, id string) *html.Node {
	t.Helper()
	n := dom.MustCompile("#" + id).Query(e.Document().Root)
	require.NotNil(t, n, id)
	return n
}

type counts struct {
	added, removed int
}

func (c *counts) options() morph.Options {
	return morph.Options{
		Added:   func(*html.Node) { c.added++ },
		Removed: func(*html.Node) { c.removed++ },
	}
}

func TestKeyedListIsReordered(t *testing.T) {
	e, l := live(t, `<ul id="list" x-data="{ n: 0 }"><li key="a">a</li><li key="b">b</li><li key="c">c</li></ul>`)
	list := byID(t, e, "list")
	before := dom.Children(list)
	require.Len(t, before, 3)
	a, b, c := before[0], before[1], before[2]

	var n counts
	err := morph.MorphHTML(e.Document(), e, list,
		`<ul id="list" x-data="{ n: 0 }"><li key="c">c</li><li key="a">a</li><li key="b">b</li></ul>`, n.options())
	require.NoError(t, err)
	l.RunMicrotasks()

	assert.Equal(t, []*html.Node{c, a, b}, dom.Children(list))
	assert.Zero(t, n.added)
	assert.Zero(t, n.removed)
	for _, li := range []*html.Node{a, b, c} {
		assert.NotZero(t, e.Marker(li), "moved nodes are not torn down")
	}
	golden(t, "list_reorder", list)
}

func TestKeyedNodeKeepsState(t *testing.T) {
	e, l := live(t, `<div id="root" x-data="{ n: 0 }"><div key="a" id="a"><button id="inc" @click="n++"></button><span id="out" x-text="n"></span></div><div key="b"></div></div>`)
	root, a := byID(t, e, "root"), byID(t, e, "a")
	click := func() {
		e.Dispatch(byID(t, e, "inc"), engine.NewEvent("click", nil))
		l.RunMicrotasks()
	}
	click()
	click()
	require.Equal(t, "2", dom.TextContent(byID(t, e, "out")))

	err := morph.MorphHTML(e.Document(), e, root,
		`<div id="root" x-data="{ n: 0 }"><div key="b"></div><div key="a" id="a"><button id="inc" @click="n++"></button><span id="out" x-text="n"></span></div></div>`,
		morph.Options{})
	require.NoError(t, err)
	l.RunMicrotasks()

	assert.Same(t, a, dom.Children(root)[1])
	assert.Equal(t, "2", dom.TextContent(byID(t, e, "out")), "the target's markup is read against live state")
	assert.Equal(t, 2.0, e.Evaluate(root, "n"))

	click()
	assert.Equal(t, "3", dom.TextContent(byID(t, e, "out")), "listeners survive the move")
}

func TestMorphInitialisesAddedNodes(t *testing.T) {
	e, l := live(t, `<div id="root" x-data="{ msg: 'hi' }"><p>old</p></div>`)
	root := byID(t, e, "root")
	err := morph.MorphHTML(e.Document(), e, root,
		`<div id="root" x-data="{ msg: 'hi' }"><p>old</p><p id="new" x-text="msg"></p></div>`, morph.Options{})
	require.NoError(t, err)
	l.RunMicrotasks()
	assert.Equal(t, "hi", dom.TextContent(byID(t, e, "new")))
}

func TestMorphTargetBorrowsScope(t *testing.T) {
	e, _ := live(t, `<div x-data="{ msg: 'live' }"><p id="p" x-text="msg"></p></div>`)
	p := byID(t, e, "p")
	err := morph.MorphHTML(e.Document(), e, p, `<p id="p" x-text="msg">stale</p>`, morph.Options{})
	require.NoError(t, err)
	assert.Equal(t, "live", dom.TextContent(p))
}

// the target is initialised as a throwaway clone, so watchers it sets up
// must not outlive the patch
func TestMorphCloneWatchersAreInert(t *testing.T) {
	e, l := live(t, `<div id="root" x-data="{ a: 1 }"><p id="p"></p></div>`)
	var seen []any
	e.Magic("record", func(*html.Node, *engine.Utilities) any {
		return expr.Func(func(_ any, args []any) (any, error) {
			seen = append(seen, args[0])
			return nil, nil
		})
	})
	root, p := byID(t, e, "root"), byID(t, e, "p")

	err := morph.MorphHTML(e.Document(), e, p,
		`<p id="p" x-data="{ init() { $watch('a', v => $record(v)) } }"></p>`, morph.Options{})
	require.NoError(t, err)
	l.RunMicrotasks()

	e.Evaluate(root, "a = 2")
	l.RunMicrotasks()
	assert.Equal(t, []any{2.0}, seen)
}

func TestShownElementsKeepAttributes(t *testing.T) {
	e, l := live(t, `<div id="root" x-data="{ open: false }"><p id="p" x-show="open" class="a"></p></div>`)
	root, p := byID(t, e, "root"), byID(t, e, "p")
	e.Evaluate(root, "open = true")
	l.RunMicrotasks()
	require.True(t, e.Shown(p))

	e.SetTransitioning(p, true)
	err := morph.MorphHTML(e.Document(), e, root,
		`<div id="root" x-data="{ open: false }"><p id="p" x-show="open" class="b"></p></div>`, morph.Options{})
	require.NoError(t, err)
	v, _ := dom.Attr(p, "class")
	assert.Equal(t, "a", v, "attributes of a transitioning element are left alone")

	e.SetTransitioning(p, false)
	err = morph.MorphHTML(e.Document(), e, root,
		`<div id="root" x-data="{ open: false }"><p id="p" x-show="open" class="b"></p></div>`, morph.Options{})
	require.NoError(t, err)
	v, _ = dom.Attr(p, "class")
	assert.Equal(t, "b", v)
}

func TestBoundIDsAreSeeded(t *testing.T) {
	e, _ := live(t, `<div id="root" x-data="{ name: 'dyn' }"><p :id="name"></p></div>`)
	root := byID(t, e, "root")
	p := byID(t, e, "dyn")
	err := morph.MorphHTML(e.Document(), e, root,
		`<div id="root" x-data="{ name: 'dyn' }"><p :id="name"></p></div>`, morph.Options{})
	require.NoError(t, err)
	v, _ := dom.Attr(p, "id")
	assert.Equal(t, "dyn", v)
}

func TestNestedBlocks(t *testing.T) {
	doc, root := plain(t, `<div id="r"><p id="before">before</p><!--[if BLOCK]><![endif]--><p id="outer">outer</p><!--[if BLOCK]><![endif]--><span id="inner">old</span><!--[if ENDBLOCK]><![endif]--><p id="tail">tail</p><!--[if ENDBLOCK]><![endif]--><p id="after">after</p></div>`)
	untouched := map[string]*html.Node{}
	for _, id := range []string{"before", "outer", "tail", "after"} {
		untouched[id] = dom.MustCompile("#" + id).Query(root)
	}
	inner := dom.MustCompile("#inner").Query(root)

	var records []dom.Record
	obs := doc.NewObserver(func([]dom.Record) {})
	obs.Observe()
	err := morph.MorphHTML(doc, nil, root, `<div id="r"><p id="before">before</p><!--[if BLOCK]><![endif]--><p id="outer">outer</p><!--[if BLOCK]><![endif]--><span id="inner">new</span><span>extra</span><!--[if ENDBLOCK]><![endif]--><p id="tail">tail</p><!--[if ENDBLOCK]><![endif]--><p id="after">after</p></div>`, morph.Options{})
	require.NoError(t, err)
	records = obs.TakeRecords()
	obs.Disconnect()

	want := []string{"text old -> new", "add <span>extra</span>"}
	assert.Empty(t, cmp.Diff(want, summarize(records)), "only the inner block changes")
	for id, n := range untouched {
		assert.Same(t, n, dom.MustCompile("#"+id).Query(root), id)
	}
	assert.Same(t, inner, dom.MustCompile("#inner").Query(root))
	golden(t, "nested_blocks", root)
}

func summarize(records []dom.Record) []string {
	var out []string
	for _, r := range records {
		switch r.Type {
		case dom.CharacterData:
			out = append(out, "text "+r.OldValue+" -> "+r.Target.Data)
		case dom.Attributes:
			out = append(out, "attr "+r.AttributeName)
		case dom.ChildList:
			for _, n := range r.Removed {
				out = append(out, "remove "+dom.OuterHTML(n))
			}
			for _, n := range r.Added {
				out = append(out, "add "+dom.OuterHTML(n))
			}
		}
	}
	return out
}

func TestMorphBetween(t *testing.T) {
	doc, root := plain(t, `<ul><li>keep</li><!--start--><li>old</li><!--end--><li>tail</li></ul>`)
	children := dom.Children(root)
	require.Len(t, children, 5)
	keep, start, end, tail := children[0], children[1], children[3], children[4]

	var n counts
	require.NoError(t, morph.MorphBetween(doc, nil, start, end, `<li>new</li><li>added</li>`, n.options()))

	assert.Equal(t, `<ul><li>keep</li><!--start--><li>new</li><li>added</li><!--end--><li>tail</li></ul>`, dom.OuterHTML(root))
	got := dom.Children(root)
	assert.Same(t, keep, got[0])
	assert.Same(t, tail, got[len(got)-1])
	assert.Equal(t, 1, n.added)
	assert.Zero(t, n.removed)
}

func TestMorphBetweenUsesLiveScope(t *testing.T) {
	e, l := live(t, `<div id="root" x-data="{ msg: 'hi' }"><!--start--><p id="p" x-text="msg"></p><!--end--></div>`)
	root := byID(t, e, "root")
	children := dom.Children(root)
	p := children[1]
	require.NoError(t, morph.MorphBetween(e.Document(), e, children[0], children[2],
		`<p id="p" x-text="msg"></p><b id="b" x-text="msg + '!'"></b>`, morph.Options{}))
	l.RunMicrotasks()

	assert.Same(t, p, byID(t, e, "p"))
	assert.Equal(t, "hi", dom.TextContent(p))
	assert.Equal(t, "hi!", dom.TextContent(byID(t, e, "b")))
}

func TestReconciliation(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		opts func(*counts) morph.Options
		want string
		adds int
		rems int
	}{
		{
			name: "text",
			from: `<div><p>a</p></div>`,
			to:   `<div><p>b</p></div>`,
			want: `<div><p>b</p></div>`,
		},
		{
			name: "attributes",
			from: `<div class="x" title="t"><p></p></div>`,
			to:   `<div class="y" lang="en"><p></p></div>`,
			want: `<div class="y" lang="en"><p></p></div>`,
		},
		{
			name: "swap tag",
			from: `<div><p>a</p></div>`,
			to:   `<div><span>a</span></div>`,
			want: `<div><span>a</span></div>`,
			adds: 1, rems: 1,
		},
		{
			name: "extra live nodes",
			from: `<div><p>a</p><p>b</p><p>c</p></div>`,
			to:   `<div><p>a</p></div>`,
			want: `<div><p>a</p></div>`,
			rems: 2,
		},
		{
			name: "new key",
			from: `<div><p key="a">a</p></div>`,
			to:   `<div><p key="b">b</p></div>`,
			want: `<div><p key="b">b</p></div>`,
			adds: 1,
		},
		{
			name: "unkeyed in front of keyed",
			from: `<div><p key="a">a</p></div>`,
			to:   `<div><p>x</p><p key="a">a</p></div>`,
			want: `<div><p>x</p><p key="a">a</p></div>`,
			adds: 1,
		},
		{
			name: "custom key",
			from: `<div><p data-id="1">one</p><p data-id="2">two</p></div>`,
			to:   `<div><p data-id="2">two</p><p data-id="1">one</p></div>`,
			opts: func(c *counts) morph.Options {
				o := c.options()
				o.Key = func(el *html.Node) string {
					v, _ := dom.Attr(el, "data-id")
					return v
				}
				return o
			},
			want: `<div><p data-id="2">two</p><p data-id="1">one</p></div>`,
		},
		{
			name: "removal vetoed",
			from: `<div><p>a</p><p>b</p></div>`,
			to:   `<div><p>a</p></div>`,
			opts: func(c *counts) morph.Options {
				o := c.options()
				o.Removing = func(_ *html.Node, skip func()) { skip() }
				return o
			},
			want: `<div><p>a</p><p>b</p></div>`,
		},
		{
			name: "add vetoed",
			from: `<div><p>a</p></div>`,
			to:   `<div><p>a</p><p>b</p></div>`,
			opts: func(c *counts) morph.Options {
				o := c.options()
				o.Adding = func(_ *html.Node, skip func()) { skip() }
				return o
			},
			want: `<div><p>a</p></div>`,
		},
		{
			name: "update skipped",
			from: `<div class="x"><p>a</p></div>`,
			to:   `<div class="y"><p>b</p></div>`,
			opts: func(c *counts) morph.Options {
				o := c.options()
				o.Updating = func(from, _ *html.Node, u *morph.Update) {
					if from.Data == "div" {
						u.Skip()
					}
				}
				return o
			},
			want: `<div class="x"><p>a</p></div>`,
		},
		{
			name: "children only",
			from: `<div class="x"><p>a</p></div>`,
			to:   `<div class="y"><p>b</p></div>`,
			opts: func(c *counts) morph.Options {
				o := c.options()
				o.Updating = func(from, _ *html.Node, u *morph.Update) {
					if from.Data == "div" {
						u.ChildrenOnly()
					}
				}
				return o
			},
			want: `<div class="x"><p>b</p></div>`,
		},
		{
			name: "children skipped",
			from: `<div class="x"><p>a</p></div>`,
			to:   `<div class="y"><p>b</p></div>`,
			opts: func(c *counts) morph.Options {
				o := c.options()
				o.Updating = func(from, _ *html.Node, u *morph.Update) {
					if from.Data == "div" {
						u.SkipChildren()
					}
				}
				return o
			},
			want: `<div class="y"><p>a</p></div>`,
		},
		{
			name: "skip until",
			from: `<div><p>a</p><hr><p>b</p></div>`,
			to:   `<div><p>x</p><p>y</p><hr><p>z</p></div>`,
			opts: func(c *counts) morph.Options {
				o := c.options()
				o.Updating = func(from, _ *html.Node, u *morph.Update) {
					if from.Data == "p" && dom.TextContent(from) == "a" {
						u.Skip()
						u.SkipUntil(func(n *html.Node) bool { return n.Data == "hr" })
					}
				}
				return o
			},
			want: `<div><p>a</p><hr><p>z</p></div>`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, root := plain(t, tc.from)
			var c counts
			opts := c.options()
			if tc.opts != nil {
				opts = tc.opts(&c)
			}
			require.NoError(t, morph.MorphHTML(doc, nil, root, tc.to, opts))
			assert.Equal(t, tc.want, dom.OuterHTML(root))
			assert.Equal(t, tc.adds, c.added, "added")
			assert.Equal(t, tc.rems, c.removed, "removed")
		})
	}
}

func TestLookahead(t *testing.T) {
	for _, lookahead := range []bool{false, true} {
		doc, root := plain(t, `<div><p>b</p></div>`)
		b := dom.FirstElementChild(root)
		require.NoError(t, morph.MorphHTML(doc, nil, root, `<div><p>a</p><p>b</p></div>`, morph.Options{Lookahead: lookahead}))
		assert.Equal(t, `<div><p>a</p><p>b</p></div>`, dom.OuterHTML(root))
		if lookahead {
			assert.Same(t, b, dom.NextElementSibling(dom.FirstElementChild(root)), "the equal node is kept")
		} else {
			assert.Same(t, b, dom.FirstElementChild(root), "the first node is patched in place")
		}
	}
}

func TestBlock(t *testing.T) {
	_, root := plain(t, `<div><!--a--><p>1</p><p>2</p><!--b--><p>3</p></div>`)
	kids := dom.Children(root)
	b := morph.NewBlock(kids[0], kids[3])
	assert.Equal(t, kids[1:3], b.Children())
	assert.Same(t, kids[1], b.FirstChild())
	assert.Nil(t, b.Next(kids[2]))

	empty := morph.NewBlock(kids[0], kids[1])
	assert.Nil(t, empty.FirstChild())
	assert.Empty(t, empty.Children())
}

func TestNoElement(t *testing.T) {
	doc, root := plain(t, `<div></div>`)
	assert.ErrorIs(t, morph.MorphHTML(doc, nil, root, `just text`, morph.Options{}), morph.ErrNoElement)
}
