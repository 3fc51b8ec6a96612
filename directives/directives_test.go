package directives_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/directives"
	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/loop"
	"github.com/delaneyj/sparkdom/scope"
)

func setup(t *testing.T, src string) (*engine.Engine, *loop.Loop) {
	t.Helper()
	l := loop.New()
	doc, err := engine.NewDocument(src, l)
	require.NoError(t, err)
	e, err := engine.New(doc, engine.WithLoop(l))
	require.NoError(t, err)
	directives.Register(e)
	return e, l
}

func start(t *testing.T, src string) (*engine.Engine, *loop.Loop) {
	t.Helper()
	e, l := setup(t, src)
	require.NoError(t, e.Start())
	return e, l
}

func byID(t *testing.T, e *engine.Engine, id string) *html.Node {
	t.Helper()
	n := dom.MustCompile("#" + id).Query(e.Document().Root)
	require.NotNil(t, n, id)
	return n
}

func attr(n *html.Node, name string) string {
	v, _ := dom.Attr(n, name)
	return v
}

// recorder installs a $record magic that collects its first argument.
func recorder(e *engine.Engine) *[]any {
	var got []any
	e.Magic("record", func(*html.Node, *engine.Utilities) any {
		return expr.Func(func(_ any, args []any) (any, error) {
			if len(args) > 0 {
				got = append(got, args[0])
			}
			return nil, nil
		})
	})
	return &got
}

func TestCounter(t *testing.T) {
	e, l := start(t, `<div x-data="{ count: 0 }">
		<span id="out" x-text="count"></span>
		<button id="inc" @click="count++"></button>
	</div>`)
	out, inc := byID(t, e, "out"), byID(t, e, "inc")
	assert.Equal(t, "0", dom.TextContent(out))

	for i := 0; i < 3; i++ {
		e.Dispatch(inc, engine.NewEvent("click", nil))
	}
	assert.Equal(t, "0", dom.TextContent(out), "effects flush on the next microtask")
	l.RunMicrotasks()
	assert.Equal(t, "3", dom.TextContent(out))
}

func TestAddedComponentsInitialise(t *testing.T) {
	e, l := start(t, `<main id="main"></main>`)
	doc := e.Document()
	nodes, err := dom.ParseFragment(`<div x-data="{ msg: 'late' }"><p id="late" x-text="msg"></p></div>`, nil)
	require.NoError(t, err)
	require.NoError(t, doc.AppendChild(byID(t, e, "main"), nodes[0]))
	l.RunMicrotasks()
	assert.Equal(t, "late", dom.TextContent(byID(t, e, "late")))

	doc.Remove(nodes[0])
	l.RunMicrotasks()
	assert.Zero(t, e.Marker(nodes[0]))
}

func TestData(t *testing.T) {
	t.Run("init and destroy", func(t *testing.T) {
		e, _ := start(t, `<div id="c" x-data="{ ready: false, init() { this.ready = true }, destroy() { this.ready = 'gone' } }">
			<span id="s" x-text="ready"></span>
		</div>`)
		c := byID(t, e, "c")
		assert.Equal(t, "true", dom.TextContent(byID(t, e, "s")))

		stack := e.DataStack(c)
		require.Len(t, stack, 1)
		layer := stack[0]
		e.DestroyTree(c)
		v, _ := layer.Get("ready")
		assert.Equal(t, "gone", v)
		assert.Empty(t, e.DataStack(c))
	})

	t.Run("empty expression", func(t *testing.T) {
		e, _ := start(t, `<div id="c" x-data><span id="s" x-text="typeof $data"></span></div>`)
		assert.Equal(t, "object", dom.TextContent(byID(t, e, "s")))
		assert.Len(t, e.DataStack(byID(t, e, "c")), 1)
	})

	t.Run("nested scopes shadow", func(t *testing.T) {
		e, _ := start(t, `<div x-data="{ a: 1, b: 2 }">
			<div x-data="{ b: 3 }"><span id="s" x-text="a + b"></span></div>
		</div>`)
		assert.Equal(t, "4", dom.TextContent(byID(t, e, "s")))
	})

	t.Run("providers", func(t *testing.T) {
		e, _ := setup(t, `<div x-data="counter(5)"><span id="s" x-text="count"></span></div>`)
		e.Data("counter", expr.Func(func(_ any, args []any) (any, error) {
			r := expr.NewRecord()
			r.Set("count", args[0])
			return r, nil
		}))
		require.NoError(t, e.Start())
		assert.Equal(t, "5", dom.TextContent(byID(t, e, "s")))
	})

	t.Run("non object", func(t *testing.T) {
		e, _ := setup(t, `<div x-data="5"></div>`)
		assert.ErrorIs(t, e.Start(), directives.ErrDataNotObject)
	})

	t.Run("clones keep state", func(t *testing.T) {
		e, _ := start(t, `<div id="from" x-data="{ n: 1 }"><span x-text="n"></span></div>`)
		from := byID(t, e, "from")
		e.Evaluate(from, "n = 7")

		to := dom.Clone(from, true)
		e.CloneNode(from, to)
		assert.Equal(t, 7.0, e.Evaluate(to, "n"))
		assert.True(t, e.HasState(to))
	})
}

func TestInitAndEffect(t *testing.T) {
	e, l := setup(t, `<div x-data="{ n: 1 }" x-init="$record('init')">
		<p id="p" x-effect="$record(n)"></p>
	</div>`)
	got := recorder(e)
	require.NoError(t, e.Start())
	assert.Equal(t, []any{"init", 1.0}, *got)

	e.Evaluate(byID(t, e, "p"), "n = 2")
	l.RunMicrotasks()
	assert.Equal(t, []any{"init", 1.0, 2.0}, *got)
}

func TestText(t *testing.T) {
	e, _ := start(t, `<div x-data="{ none: null, list: [1, 2] }">
		<p id="none" x-text="none">old</p>
		<p id="list" x-text="list"></p>
	</div>`)
	assert.Equal(t, "", dom.TextContent(byID(t, e, "none")))
	assert.Equal(t, "1,2", dom.TextContent(byID(t, e, "list")))
}

func TestHTML(t *testing.T) {
	e, l := start(t, `<div x-data="{ markup: '<b id=inner x-text=msg></b>', msg: 'bold' }">
		<div id="h" x-html="markup"></div>
	</div>`)
	h := byID(t, e, "h")
	inner := byID(t, e, "inner")
	assert.Equal(t, "bold", dom.TextContent(h), "inserted markup is initialised")
	assert.NotZero(t, e.Marker(inner))

	e.Evaluate(h, "markup = '<i>plain</i>'")
	l.RunMicrotasks()
	assert.Equal(t, "plain", dom.TextContent(h))
	assert.Zero(t, e.Marker(inner), "replaced children are torn down")
}

func TestBind(t *testing.T) {
	e, l := start(t, `<div x-data="{ on: true, dis: false, color: 'red', attrs: { 'data-kind': 'x' } }">
		<p id="p" class="base" :class="{ active: on }" :disabled="dis" :style="{ color: color }" :title="on ? 'yes' : null"></p>
		<p id="o" x-bind="attrs"></p>
		<p id="l" :class="['a', on ? 'b' : '']"></p>
		<p id="aria" :aria-expanded="on"></p>
	</div>`)
	p := byID(t, e, "p")
	assert.Equal(t, "base active", attr(p, "class"))
	assert.False(t, dom.HasAttr(p, "disabled"))
	assert.Equal(t, "color: red;", attr(p, "style"))
	assert.Equal(t, "yes", attr(p, "title"))
	assert.Equal(t, "x", attr(byID(t, e, "o"), "data-kind"))
	assert.Equal(t, "a b", attr(byID(t, e, "l"), "class"))
	assert.Equal(t, "true", attr(byID(t, e, "aria"), "aria-expanded"))

	v, ok := e.Binding(p, "title")
	require.True(t, ok)
	assert.Equal(t, "yes", v)

	e.Evaluate(p, "on = false")
	e.Evaluate(p, "dis = true")
	e.Evaluate(p, "color = 'blue'")
	l.RunMicrotasks()

	assert.Equal(t, "base", attr(p, "class"), "classes outside the binding survive")
	assert.Equal(t, "disabled", attr(p, "disabled"))
	assert.Equal(t, "color: blue;", attr(p, "style"))
	assert.False(t, dom.HasAttr(p, "title"))
	assert.Equal(t, "a", attr(byID(t, e, "l"), "class"))
	assert.Equal(t, "false", attr(byID(t, e, "aria"), "aria-expanded"))
}

func TestBindUndoesOnRemoval(t *testing.T) {
	e, l := start(t, `<div x-data><p id="p" class="base" :class="'extra'" :style="'color: red'"></p></div>`)
	p := byID(t, e, "p")
	assert.Equal(t, "base extra", attr(p, "class"))

	e.Document().RemoveAttribute(p, ":class")
	e.Document().RemoveAttribute(p, ":style")
	l.RunMicrotasks()
	assert.Equal(t, "base", attr(p, "class"))
	assert.False(t, dom.HasAttr(p, "style"))
}

func TestShow(t *testing.T) {
	e, l := start(t, `<div x-data="{ open: false }">
		<p id="p" style="color: red" x-show="open"></p>
		<p id="i" x-show.important="open"></p>
	</div>`)
	p, i := byID(t, e, "p"), byID(t, e, "i")
	assert.Equal(t, "color: red; display: none;", attr(p, "style"))
	assert.Equal(t, "display: none !important;", attr(i, "style"))
	assert.False(t, e.Shown(p))

	e.Evaluate(p, "open = true")
	l.RunMicrotasks()
	assert.Equal(t, "color: red;", attr(p, "style"))
	assert.False(t, dom.HasAttr(i, "style"))
	assert.True(t, e.Shown(p))
}

func TestIgnore(t *testing.T) {
	e, _ := start(t, `<div x-data="{ msg: 'hi' }">
		<p id="a" x-text="msg"></p>
		<div x-ignore><p id="b" x-text="msg">raw</p></div>
		<div id="self" x-ignore.self x-text="msg"><p id="c" x-text="msg"></p></div>
	</div>`)
	assert.Equal(t, "hi", dom.TextContent(byID(t, e, "a")))
	assert.Equal(t, "raw", dom.TextContent(byID(t, e, "b")))
	assert.Zero(t, e.Marker(byID(t, e, "b")))
	assert.Equal(t, "hi", dom.TextContent(byID(t, e, "c")), "ignore.self still walks children")
}

func TestRef(t *testing.T) {
	e, _ := start(t, `<div id="root" x-data><span id="label" x-ref="label"></span><p id="p"></p></div>`)
	root, label := byID(t, e, "root"), byID(t, e, "label")
	assert.Same(t, label, e.Evaluate(byID(t, e, "p"), "$refs.label"))
	assert.Contains(t, e.Refs(root), "label")

	e.DestroyTree(label)
	assert.Nil(t, e.Evaluate(byID(t, e, "p"), "$refs.label"))

	outside, _ := setup(t, `<span id="lost" x-ref="x"></span>`)
	assert.ErrorIs(t, outside.InitTree(byID(t, outside, "lost")), directives.ErrRefOutsideRoot)
}

func TestID(t *testing.T) {
	e, _ := start(t, `<div x-data>
		<div x-id="['tab']"><p id="a" :aria-labelledby="$id('tab')"></p><p id="b" :aria-labelledby="$id('tab')"></p></div>
		<div x-id="['tab']"><p id="c" :aria-labelledby="$id('tab')"></p></div>
	</div>`)
	assert.Equal(t, "tab-1", attr(byID(t, e, "a"), "aria-labelledby"))
	assert.Equal(t, "tab-1", attr(byID(t, e, "b"), "aria-labelledby"))
	assert.Equal(t, "tab-2", attr(byID(t, e, "c"), "aria-labelledby"))
}

func TestOnModifiers(t *testing.T) {
	e, _ := start(t, `<div id="root" x-data="{ n: 0, outside: 0, seen: null }">
		<button id="btn" @click.prevent="n++"></button>
		<div id="box" @click.self="n += 10"><span id="inner"></span></div>
		<button id="once" @click.once="n += 100"></button>
		<p id="away" @click.outside="outside++"></p>
		<p id="ev" @ping="seen = $event.detail"></p>
	</div>`)
	root := byID(t, e, "root")
	click := func(id string) bool {
		return e.Dispatch(byID(t, e, id), engine.NewEvent("click", nil))
	}

	assert.False(t, click("btn"), "prevent cancels the default")
	assert.Equal(t, 1.0, e.Evaluate(root, "n"))

	assert.True(t, click("inner"))
	assert.Equal(t, 1.0, e.Evaluate(root, "n"), "self ignores bubbled events")
	click("box")
	assert.Equal(t, 11.0, e.Evaluate(root, "n"))

	click("once")
	click("once")
	assert.Equal(t, 111.0, e.Evaluate(root, "n"))

	assert.Equal(t, 5.0, e.Evaluate(root, "outside"))
	click("away")
	assert.Equal(t, 5.0, e.Evaluate(root, "outside"), "clicks inside do not count")

	e.Dispatch(byID(t, e, "ev"), engine.NewEvent("ping", "payload"))
	assert.Equal(t, "payload", e.Evaluate(root, "seen"))
}

func TestOnTiming(t *testing.T) {
	e, l := start(t, `<div id="root" x-data="{ d: 0, th: 0 }">
		<input id="d" @input.debounce.5ms="d++">
		<input id="th" @input.throttle.5ms="th++">
	</div>`)
	root := byID(t, e, "root")
	for i := 0; i < 3; i++ {
		e.Dispatch(byID(t, e, "d"), engine.NewEvent("input", nil))
		e.Dispatch(byID(t, e, "th"), engine.NewEvent("input", nil))
	}
	assert.Equal(t, 0.0, e.Evaluate(root, "d"))
	assert.Equal(t, 1.0, e.Evaluate(root, "th"))

	require.NoError(t, l.Drain(context.Background()))
	assert.Equal(t, 1.0, e.Evaluate(root, "d"))
	assert.Equal(t, 1.0, e.Evaluate(root, "th"))
}

func TestTeleport(t *testing.T) {
	e, l := start(t, `<div id="root" x-data="{ msg: 'hi' }">
		<template id="tpl" x-teleport="#dest"><p x-text="msg"></p></template>
		<template id="before" x-teleport.prepend="#dest"><i></i></template>
	</div>
	<section id="dest"></section>`)
	root, tpl, dest := byID(t, e, "root"), byID(t, e, "tpl"), byID(t, e, "dest")

	clone := e.Teleport(tpl)
	require.NotNil(t, clone)
	assert.Same(t, dest, clone.Parent)
	assert.Same(t, tpl, e.TeleportBack(clone))
	assert.Equal(t, "hi", dom.TextContent(clone), "the clone keeps the template's scope")
	assert.Equal(t, "", dom.TextContent(dom.FirstElementChild(tpl)), "template content stays inert")

	before := e.Teleport(byID(t, e, "before"))
	require.NotNil(t, before)
	assert.Same(t, dest, dom.NextElementSibling(before))

	e.Evaluate(root, "msg = 'moved'")
	l.RunMicrotasks()
	assert.Equal(t, "moved", dom.TextContent(clone))

	e.DestroyTree(root)
	assert.Nil(t, clone.Parent)
	assert.Nil(t, before.Parent)
	assert.Nil(t, e.Teleport(tpl))
	assert.Zero(t, e.Marker(clone))
}

func TestTeleportErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"not a template", `<div x-data><div x-teleport="body"><p></p></div></div>`, directives.ErrTeleportTemplate},
		{"empty template", `<div x-data><template x-teleport="body"></template></div>`, directives.ErrTeleportTemplate},
		{"missing target", `<div x-data><template x-teleport="#nowhere"><p></p></template></div>`, directives.ErrTeleportTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := setup(t, tc.src)
			assert.ErrorIs(t, e.Start(), tc.want)
		})
	}
}

func TestScopeOfTeleportedClone(t *testing.T) {
	e, _ := start(t, `<div x-data="{ msg: 'hi' }"><template id="tpl" x-teleport="body"><p></p></template></div>`)
	stack := e.DataStack(e.Teleport(byID(t, e, "tpl")))
	require.Len(t, stack, 2)
	_, ok := stack[0].(scope.Map)
	assert.True(t, ok, "a fresh layer sits in front of the template's stack")
}
