package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/loop"
	"github.com/delaneyj/sparkdom/reactivity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func newEngine(t *testing.T, src string, opts ...engine.Option) (*engine.Engine, *loop.Loop) {
	t.Helper()
	l := loop.New()
	doc, err := engine.NewDocument(src, l)
	require.NoError(t, err)
	e, err := engine.New(doc, append([]engine.Option{engine.WithLoop(l)}, opts...)...)
	require.NoError(t, err)
	return e, l
}

func byID(t *testing.T, e *engine.Engine, id string) *html.Node {
	t.Helper()
	n := dom.MustCompile("#" + id).Query(e.Document().Root)
	require.NotNil(t, n, id)
	return n
}

func noop(*html.Node, engine.Directive, *engine.Utilities) error { return nil }

func TestNewRequiresDocument(t *testing.T) {
	_, err := engine.New(nil)
	assert.ErrorIs(t, err, engine.ErrNoDocument)
}

func TestParseDirective(t *testing.T) {
	e, _ := newEngine(t, `<div></div>`)
	e.MapAttributes(engine.StartingWith("@", "x-on:"))

	cases := []struct {
		name string
		want engine.Directive
		ok   bool
	}{
		{"x-text", engine.Directive{Type: "text", Original: "x-text", Name: "x-text"}, true},
		{"x-on:click.prevent.stop", engine.Directive{Type: "on", Value: "click", Modifiers: []string{"prevent", "stop"}, Original: "x-on:click.prevent.stop", Name: "x-on:click.prevent.stop"}, true},
		{"@click.outside", engine.Directive{Type: "on", Value: "click", Modifiers: []string{"outside"}, Original: "@click.outside", Name: "x-on:click.outside"}, true},
		{"x-model.debounce.500ms", engine.Directive{Type: "model", Modifiers: []string{"debounce", "500ms"}, Original: "x-model.debounce.500ms", Name: "x-model.debounce.500ms"}, true},
		{"class", engine.Directive{}, false},
		{"data-x-text", engine.Directive{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok := e.ParseDirective(tc.name, "")
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, d)
		})
	}

	d, _ := e.ParseDirective("x-model.debounce.500ms", "q")
	wait, ok := d.ModifierAfter("debounce")
	assert.True(t, ok)
	assert.Equal(t, "500ms", wait)
}

func TestCustomPrefix(t *testing.T) {
	e, _ := newEngine(t, `<div></div>`, engine.WithPrefix("v-"))
	_, ok := e.ParseDirective("x-text", "")
	assert.False(t, ok)
	d, ok := e.ParseDirective("v-text", "msg")
	require.True(t, ok)
	assert.Equal(t, "text", d.Type)
	assert.Equal(t, "v-data", e.Prefixed("data"))
}

func TestDirectiveOrder(t *testing.T) {
	e, _ := newEngine(t, `<div></div>`)
	for _, name := range []string{"text", "teleport", "on", "show", "data", "bind"} {
		e.Directive(name, noop)
	}
	assert.Equal(t, []string{"data", "bind", "show", "on", "text", "teleport"}, e.DirectiveOrder())

	e.Directive("custom", noop).Before("data")
	e.Directive("late", noop).After("teleport")
	assert.Equal(t, []string{"custom", "data", "bind", "show", "on", "text", "teleport", "late"}, e.DirectiveOrder())
}

func TestDirectivesRunByPriorityThenName(t *testing.T) {
	e, _ := newEngine(t, `<div id="root" x-zeta x-alpha x-show="a" x-bind:title="t" x-data="{}"></div>`)
	var ran []string
	record := func(_ *html.Node, d engine.Directive, _ *engine.Utilities) error {
		ran = append(ran, d.Original)
		return nil
	}
	for _, name := range []string{"zeta", "alpha", "show", "bind", "data"} {
		e.Directive(name, record)
	}

	require.NoError(t, e.InitTree(byID(t, e, "root")))
	assert.Equal(t, []string{"x-data", "x-bind:title", "x-show", "x-alpha", "x-zeta"}, ran)
}

func TestHandlerErrorStopsOnlyThatElement(t *testing.T) {
	e, _ := newEngine(t, `<main id="root"><div id="one" x-boom x-mark></div><div id="two" x-mark></div></main>`)
	boom := errors.New("boom")
	e.Directive("boom", func(*html.Node, engine.Directive, *engine.Utilities) error { return boom })
	var marked []string
	e.Directive("mark", func(el *html.Node, _ engine.Directive, _ *engine.Utilities) error {
		id, _ := dom.Attr(el, "id")
		marked = append(marked, id)
		return nil
	})

	err := e.InitTree(byID(t, e, "root"))
	require.ErrorIs(t, err, boom)
	var derr *engine.DirectiveError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "x-boom", derr.Directive.Original)
	assert.Equal(t, []string{"two"}, marked)
	assert.NotZero(t, e.Marker(byID(t, e, "one")), "already applied work is not rolled back")
}

func TestInitTreeSkipsInitialisedAndIgnored(t *testing.T) {
	e, _ := newEngine(t, `<div id="root" x-mark><p id="skip" x-mark><span x-mark></span></p></div>`)
	calls := 0
	e.Directive("mark", func(*html.Node, engine.Directive, *engine.Utilities) error {
		calls++
		return nil
	})
	e.SetIgnore(byID(t, e, "skip"), true)

	root := byID(t, e, "root")
	require.NoError(t, e.InitTree(root))
	assert.Equal(t, 1, calls)
	require.NoError(t, e.InitTree(root))
	assert.Equal(t, 1, calls, "marked elements are not initialised twice")
	assert.Zero(t, e.Marker(byID(t, e, "skip")))
}

func TestLifecycleSymmetry(t *testing.T) {
	e, l := newEngine(t, `<div id="el" x-track></div>`)
	state := e.Reactive(map[string]any{"n": 0}).(*reactivity.Object)
	runs, cleanups := 0, 0
	e.Directive("track", func(_ *html.Node, _ engine.Directive, u *engine.Utilities) error {
		u.Effect(func() {
			state.Get("n")
			runs++
		})
		u.Cleanup(func() { cleanups++ })
		return nil
	})

	el := byID(t, e, "el")
	require.NoError(t, e.InitTree(el))
	assert.Equal(t, 1, e.EffectCount(el))
	assert.NotZero(t, e.Marker(el))

	e.DestroyTree(el)
	assert.Zero(t, e.EffectCount(el))
	assert.Equal(t, 1, cleanups)
	assert.Zero(t, e.Marker(el))

	state.Set("n", 1)
	l.RunMicrotasks()
	assert.Equal(t, 1, runs, "released effects never run again")
}

func TestTeardownWhileQueued(t *testing.T) {
	e, l := newEngine(t, `<div id="a" x-track></div><div id="b" x-track></div>`)
	state := e.Reactive(map[string]any{"n": 0}).(*reactivity.Object)
	runs := map[string]int{}
	e.Directive("track", func(el *html.Node, _ engine.Directive, u *engine.Utilities) error {
		id, _ := dom.Attr(el, "id")
		u.Effect(func() {
			state.Get("n")
			runs[id]++
		})
		return nil
	})
	a, b := byID(t, e, "a"), byID(t, e, "b")
	require.NoError(t, e.InitTree(a))
	require.NoError(t, e.InitTree(b))

	state.Set("n", 1)
	assert.Equal(t, 2, e.System().Scheduler().Pending())
	e.DestroyTree(b)
	l.RunMicrotasks()

	assert.Equal(t, 2, runs["a"])
	assert.Equal(t, 1, runs["b"])
}

func TestMutationPipeline(t *testing.T) {
	e, l := newEngine(t, `<main id="root"><section id="other"></section></main>`)
	var inits, destroys []string
	e.Directive("track", func(el *html.Node, _ engine.Directive, u *engine.Utilities) error {
		id, _ := dom.Attr(el, "id")
		inits = append(inits, id)
		u.Cleanup(func() { destroys = append(destroys, id) })
		return nil
	})
	require.NoError(t, e.Start())
	doc := e.Document()
	root, other := byID(t, e, "root"), byID(t, e, "other")

	nodes, err := dom.ParseFragment(`<p id="p" x-track><b id="b" x-track></b></p>`, nil)
	require.NoError(t, err)
	p := nodes[0]
	require.NoError(t, doc.AppendChild(root, p))
	assert.Empty(t, inits, "records are processed on the next microtask")
	l.RunMicrotasks()
	assert.Equal(t, []string{"p", "b"}, inits)

	t.Run("moves are neither added nor removed", func(t *testing.T) {
		require.NoError(t, doc.AppendChild(other, p))
		l.RunMicrotasks()
		assert.Equal(t, []string{"p", "b"}, inits)
		assert.Empty(t, destroys)
	})

	t.Run("attributes", func(t *testing.T) {
		doc.SetAttribute(other, "x-track", "")
		l.RunMicrotasks()
		assert.Equal(t, []string{"p", "b", "other"}, inits)

		doc.RemoveAttribute(other, "x-track")
		l.RunMicrotasks()
		assert.Equal(t, []string{"other"}, destroys)
	})

	t.Run("removal", func(t *testing.T) {
		doc.Remove(p)
		l.RunMicrotasks()
		assert.Equal(t, []string{"other", "p", "b"}, destroys)
	})
}

func TestMutateDomSuppressesObservation(t *testing.T) {
	e, l := newEngine(t, `<main id="root"></main>`)
	inits := 0
	e.Directive("track", func(*html.Node, engine.Directive, *engine.Utilities) error {
		inits++
		return nil
	})
	require.NoError(t, e.Start())
	root := byID(t, e, "root")

	e.MutateDom(func() {
		e.Document().SetAttribute(root, "x-track", "")
		e.MutateDom(func() {
			require.NoError(t, e.Document().AppendChild(root, &html.Node{
				Type: html.ElementNode,
				Data: "i",
				Attr: []html.Attribute{{Key: "x-track"}},
			}))
		})
	})
	l.RunMicrotasks()
	assert.Zero(t, inits)

	e.Document().SetAttribute(root, "title", "still observing")
	e.Document().SetAttribute(root, "x-track", "again")
	l.RunMicrotasks()
	assert.Equal(t, 1, inits)
}

func TestDeferMutations(t *testing.T) {
	e, l := newEngine(t, `<main id="root"></main>`)
	inits := 0
	e.Directive("track", func(*html.Node, engine.Directive, *engine.Utilities) error {
		inits++
		return nil
	})
	require.NoError(t, e.Start())

	e.DeferMutations()
	e.Document().SetAttribute(byID(t, e, "root"), "x-track", "")
	l.RunMicrotasks()
	assert.Zero(t, inits)

	e.FlushAndStopDeferringMutations()
	assert.Equal(t, 1, inits)
}

func TestIgnoreMutationObserver(t *testing.T) {
	e, l := newEngine(t, `<main id="root"></main>`)
	inits := 0
	e.Directive("track", func(*html.Node, engine.Directive, *engine.Utilities) error {
		inits++
		return nil
	})
	require.NoError(t, e.Start())
	root := byID(t, e, "root")
	e.SetIgnoreMutationObserver(root, true)
	e.Document().SetAttribute(root, "x-track", "")
	l.RunMicrotasks()
	assert.Zero(t, inits)
}

func TestStartInitialisesOutermostRoots(t *testing.T) {
	e, _ := newEngine(t, `<div id="outer" x-data><div id="inner" x-data></div></div><p id="solo" x-init></p>`)
	e.AddRootSelector(func() string { return "[x-data]" })
	e.AddInitSelector(func() string { return "[x-init]" })
	var seen []string
	record := func(el *html.Node, _ engine.Directive, _ *engine.Utilities) error {
		id, _ := dom.Attr(el, "id")
		seen = append(seen, id)
		return nil
	}
	e.Directive("data", record)
	e.Directive("init", record)

	initialized := 0
	e.AddEventListener(e.Document().Root, "sparkdom:initialized", func(*engine.Event) { initialized++ })

	require.NoError(t, e.Start())
	assert.Equal(t, []string{"outer", "inner", "solo"}, seen)
	assert.Equal(t, 1, initialized)
	assert.ErrorIs(t, e.Start(), engine.ErrAlreadyStarted)

	inner := byID(t, e, "inner")
	assert.True(t, e.IsRoot(inner))
	assert.Equal(t, inner, e.ClosestRoot(inner, false))
	assert.Equal(t, byID(t, e, "solo"), e.ClosestRoot(byID(t, e, "solo"), true))
	assert.Nil(t, e.ClosestRoot(byID(t, e, "solo"), false))
}

func TestEvaluate(t *testing.T) {
	e, _ := newEngine(t, `<div id="el"></div>`)
	el := byID(t, e, "el")
	state := e.Reactive(map[string]any{"count": 2}).(*reactivity.Object)
	e.AddScopeToNode(el, state, nil)

	assert.Equal(t, 3.0, e.Evaluate(el, "1 + 2"))
	assert.Equal(t, 4.0, e.Evaluate(el, "count * 2"))
	assert.Equal(t, 7.0, e.Evaluate(el, "count + n", engine.WithScope(map[string]any{"n": 5.0})))
	assert.Equal(t, 3.0, e.Evaluate(el, "() => count + 1"), "functions are invoked")
	assert.Equal(t, 5.0, e.Evaluate(el, "(a, b) => a + b", engine.WithParams(2, 3)))
	assert.Same(t, el, e.Evaluate(el, "$el"))

	e.Evaluate(el, "count++")
	v, _ := state.Get("count")
	assert.Equal(t, 3.0, v, "writes land in the data stack")

	var fn any
	e.DontAutoEvaluateFunctions(func() {
		fn = e.Evaluate(el, "() => 1")
	})
	assert.Implements(t, (*expr.Callable)(nil), fn)

	double := expr.Func(func(this any, args []any) (any, error) {
		return expr.ToNumber(args[0]) * 2, nil
	})
	assert.Equal(t, 8.0, e.Evaluate(el, double, engine.WithParams(4)))
}

func TestEvaluateAsync(t *testing.T) {
	e, l := newEngine(t, `<div id="el"></div>`)
	el := byID(t, e, "el")
	p, resolve, _ := loop.NewPromise(l)

	var got []any
	e.EvaluateLater(el, "await later + 1")(func(v any) {
		got = append(got, v)
	}, engine.WithScope(map[string]any{"later": p}))
	assert.Empty(t, got)

	resolve(41.0)
	l.RunMicrotasks()
	assert.Equal(t, []any{42.0}, got)
}

func TestExpressionErrorsAreRethrown(t *testing.T) {
	var handled []*engine.ExpressionError
	e, l := newEngine(t, `<div id="el"></div>`, engine.WithErrorHandler(func(err *engine.ExpressionError) {
		handled = append(handled, err)
	}))
	el := byID(t, e, "el")

	assert.Nil(t, e.Evaluate(el, "missing.prop"))
	e.EvaluateLater(el, "1 +")
	require.Len(t, handled, 2)
	assert.Equal(t, "missing.prop", handled[0].Expression)
	assert.Same(t, el, handled[0].El)
	var xerr *expr.Error
	require.ErrorAs(t, handled[0], &xerr)
	assert.Equal(t, expr.ReferenceError, xerr.Kind)

	assert.Empty(t, l.Errors(), "errors are rethrown on a later macrotask")
	require.NoError(t, l.Drain(context.Background()))
	require.Len(t, l.Errors(), 2)
	var rethrown *engine.ExpressionError
	assert.ErrorAs(t, l.Errors()[0], &rethrown)
}

func TestCloneNode(t *testing.T) {
	t.Run("initialises only the node", func(t *testing.T) {
		e, _ := newEngine(t, `<div id="from" x-tracked><span x-tracked></span></div>`)
		state := e.Reactive(map[string]any{"n": 0}).(*reactivity.Object)
		var cloning []bool
		e.Directive("tracked", func(_ *html.Node, _ engine.Directive, u *engine.Utilities) error {
			cloning = append(cloning, u.Engine.IsCloning())
			u.Effect(func() { state.Get("n") })
			return nil
		})
		e.Directive("live", engine.SkipDuringClone(func(*html.Node, engine.Directive, *engine.Utilities) error {
			t.Fatal("skipped while cloning")
			return nil
		}, nil))
		var intercepted [][2]*html.Node
		e.InterceptClone(func(from, to *html.Node) {
			intercepted = append(intercepted, [2]*html.Node{from, to})
		})

		from := byID(t, e, "from")
		to := dom.Clone(from, true)
		to.Attr = append(to.Attr, html.Attribute{Key: "x-live"})
		e.CloneNode(from, to)

		assert.Equal(t, []bool{true}, cloning, "only the node itself is initialised")
		assert.Equal(t, [][2]*html.Node{{from, to}}, intercepted)
		assert.Zero(t, e.EffectCount(to))
		assert.False(t, e.IsCloning())
	})

	t.Run("watchers on the clone stay inert", func(t *testing.T) {
		e, l := newEngine(t, `<div id="from" x-watched></div>`)
		state := e.Reactive(map[string]any{"n": 0}).(*reactivity.Object)
		e.InterceptClone(func(_, to *html.Node) {
			e.AddScopeToNode(to, state, nil)
		})
		var seen []any
		e.Directive("watched", func(_ *html.Node, _ engine.Directive, u *engine.Utilities) error {
			u.Evaluate("$watch('n', v => record(v))", engine.WithScope(map[string]any{
				"record": expr.Func(func(_ any, args []any) (any, error) {
					seen = append(seen, args[0])
					return nil, nil
				}),
			}))
			return nil
		})
		nestedRuns := 0
		e.Directive("nested", func(_ *html.Node, _ engine.Directive, u *engine.Utilities) error {
			u.Effect(func() {
				nestedRuns++
				u.Engine.Watch(func() any {
					v, _ := state.Get("n")
					return v
				}, func(value, _ any) {
					t.Errorf("watcher created inside a clone effect fired with %v", value)
				})
			})
			return nil
		})

		from := byID(t, e, "from")
		to := dom.Clone(from, true)
		to.Attr = append(to.Attr, html.Attribute{Key: "x-nested"})
		e.CloneNode(from, to)

		state.Set("n", 1)
		l.RunMicrotasks()
		assert.Empty(t, seen)
		assert.Equal(t, 1, nestedRuns)
		assert.Zero(t, e.EffectCount(to))
	})
}

func TestInheritDataStack(t *testing.T) {
	e, _ := newEngine(t, `<div id="root"><p id="from"></p></div>`)
	root, from := byID(t, e, "root"), byID(t, e, "from")
	to := dom.Clone(from, true)
	assert.False(t, e.InheritDataStack(from, to))

	layer := e.Reactive(map[string]any{"msg": "hi"}).(*reactivity.Object)
	undo := e.AddScopeToNode(root, layer, nil)
	require.True(t, e.InheritDataStack(from, to))
	assert.Equal(t, "hi", e.Evaluate(to, "msg"))

	undo()
	assert.Empty(t, e.DataStack(root))
}

func TestEventsBubble(t *testing.T) {
	e, _ := newEngine(t, `<div id="outer"><button id="btn"></button></div>`)
	outer, btn := byID(t, e, "outer"), byID(t, e, "btn")
	var seen []string
	e.AddEventListener(btn, "ping", func(ev *engine.Event) {
		seen = append(seen, "btn")
		assert.Same(t, btn, ev.CurrentTarget)
	})
	remove := e.AddEventListener(outer, "ping", func(ev *engine.Event) {
		seen = append(seen, "outer")
		assert.Same(t, btn, ev.Target)
		ev.PreventDefault()
	})

	assert.False(t, e.Dispatch(btn, engine.NewEvent("ping", nil)))
	assert.Equal(t, []string{"btn", "outer"}, seen)

	remove()
	stopped := e.AddEventListener(btn, "ping", func(ev *engine.Event) { ev.StopPropagation() })
	defer stopped()
	seen = nil
	assert.True(t, e.Dispatch(btn, engine.NewEvent("ping", nil)))
	assert.Equal(t, []string{"btn"}, seen)
}

func TestMagics(t *testing.T) {
	e, l := newEngine(t, `<div id="root" x-data><span id="a"></span><span id="b"></span></div>`)
	e.AddRootSelector(func() string { return "[x-data]" })
	root, a, b := byID(t, e, "root"), byID(t, e, "a"), byID(t, e, "b")
	e.AddScopeToNode(root, e.Reactive(map[string]any{"n": 1}).(*reactivity.Object), nil)

	t.Run("root and refs", func(t *testing.T) {
		assert.Same(t, root, e.Evaluate(a, "$root"))
		e.Refs(root)["other"] = b
		assert.Same(t, b, e.Evaluate(a, "$refs.other"))
		assert.Equal(t, 1.0, e.Evaluate(a, "$data.n"))
	})

	t.Run("id", func(t *testing.T) {
		e.SetIdRoot(root, "tab")
		first := e.Evaluate(a, "$id('tab')")
		assert.Equal(t, "tab-1", first)
		assert.Equal(t, "tab-1", e.Evaluate(b, "$id('tab')"), "siblings share the id root")
		assert.Equal(t, "tab-1-x", e.Evaluate(a, "$id('tab', 'x')"))
		assert.Equal(t, "other-1", e.Evaluate(a, "$id('other')"))
		assert.Equal(t, "other-2", e.Evaluate(b, "$id('other')"))
	})

	t.Run("dispatch", func(t *testing.T) {
		var detail any
		e.AddEventListener(root, "notify", func(ev *engine.Event) { detail = ev.Detail })
		e.Evaluate(a, "$dispatch('notify', { n: 5 })")
		rec, ok := detail.(expr.ObjectLike)
		require.True(t, ok)
		n, _ := rec.Get("n")
		assert.Equal(t, 5.0, n)
	})

	t.Run("watch", func(t *testing.T) {
		var changes [][2]any
		e.Evaluate(a, "$watch('n', (v, old) => record(v, old))", engine.WithScope(map[string]any{
			"record": expr.Func(func(_ any, args []any) (any, error) {
				changes = append(changes, [2]any{args[0], args[1]})
				return nil, nil
			}),
		}))
		e.Evaluate(a, "n = 2")
		l.RunMicrotasks()
		assert.Equal(t, [][2]any{{2.0, 1.0}}, changes)
	})

	t.Run("nextTick", func(t *testing.T) {
		ticked := false
		e.Evaluate(a, "$nextTick(() => done())", engine.WithScope(map[string]any{
			"done": expr.Func(func(any, []any) (any, error) {
				ticked = true
				return nil, nil
			}),
		}))
		l.RunMicrotasks()
		assert.False(t, ticked, "ticks wait for a macrotask")
		require.NoError(t, l.Drain(context.Background()))
		assert.True(t, ticked)
	})

	t.Run("custom", func(t *testing.T) {
		e.Magic("tag", func(el *html.Node, _ *engine.Utilities) any { return el.Data })
		assert.Equal(t, "span", e.Evaluate(a, "$tag"))
	})
}

func TestNextTickHold(t *testing.T) {
	e, l := newEngine(t, `<div></div>`)
	ran := 0
	e.HoldNextTicks()
	p := e.NextTick(func() { ran++ })
	require.NoError(t, l.Drain(context.Background()))
	assert.Zero(t, ran)
	assert.Equal(t, loop.Pending, p.State())

	e.ReleaseNextTicks()
	assert.Equal(t, 1, ran)
	assert.Equal(t, loop.Fulfilled, p.State())
}

func TestAttributeTransforms(t *testing.T) {
	e, _ := newEngine(t, `<div id="el" :title="t"></div>`)
	e.MapAttributes(engine.StartingWith(":", "x-bind:"))
	ds := e.Directives(byID(t, e, "el"))
	require.Len(t, ds, 1)
	assert.Equal(t, "bind", ds[0].Type)
	assert.Equal(t, "title", ds[0].Value)
	assert.Equal(t, ":title", ds[0].Original)
}
