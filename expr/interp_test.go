package expr_test

import (
	"errors"
	"math"
	"testing"

	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/loop"
	"github.com/delaneyj/sparkdom/reactivity"
	"github.com/delaneyj/sparkdom/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, src string, layers ...scope.Layer) (any, error) {
	t.Helper()
	p, err := expr.Parse(src)
	require.NoError(t, err, src)
	rt := expr.NewRuntime(loop.New())
	return rt.Run(p, scope.New(layers...), nil)
}

func mustEval(t *testing.T, src string, layers ...scope.Layer) any {
	t.Helper()
	v, err := eval(t, src, layers...)
	require.NoError(t, err, src)
	return v
}

func TestEvalValues(t *testing.T) {
	cases := []struct {
		src  string
		want any
	}{
		{"1 + 2 * 3", 7.0},
		{"10 / 4", 2.5},
		{"7 % 3", 1.0},
		{"2 ** 3 ** 2", 512.0},
		{"0.1 + 0.2", 0.30000000000000004},
		{"'a' + 1", "a1"},
		{"'5' * '2'", 10.0},
		{"1 == '1'", true},
		{"1 === '1'", false},
		{"null == undefined", true},
		{"!''", true},
		{"null ?? 'x'", "x"},
		{"0 ?? 'x'", 0.0},
		{"0 || 'y'", "y"},
		{"1 && 'z'", "z"},
		{"typeof missing", "undefined"},
		{"typeof 'a'", "string"},
		{"typeof (() => 1)", "function"},
		{"`x=${1 + 1}`", "x=2"},
		{"{a: 1}.a", 1.0},
		{"[...[1, 2], 3].length", 3.0},
		{"[1, 2, 3].map(x => x * 2).join('-')", "2-4-6"},
		{"[3, 1, 2].filter(x => x > 1).includes(3)", true},
		{"[1, 2, 3].reduce((a, b) => a + b)", 6.0},
		{"[1, 2, 3].find(x => x > 1)", 2.0},
		{"'abc'.toUpperCase()", "ABC"},
		{"'a,b'.split(',').length", 2.0},
		{"'hello'.slice(-3)", "llo"},
		{"'7'.padStart(3, '0')", "007"},
		{"(1.005).toFixed(1)", "1.0"},
		{"Math.max(1, 5, 3)", 5.0},
		{"Math.round(2.5)", 3.0},
		{"parseInt('42px')", 42.0},
		{"parseFloat('3.5rem')", 3.5},
		{"String(12)", "12"},
		{"Object.keys({b: 1, a: 2}).join()", "b,a"},
		{"Array.isArray([])", true},
		{"JSON.stringify({b: 1, a: [1, 'x', null]})", `{"b":1,"a":[1,"x",null]}`},
		{"JSON.parse('{\"z\": 1, \"a\": [true]}').a[0]", true},
		{"1e21 + ''", "1e+21"},
		{"let a = 1; a += 2; return a", 3.0},
		{"const f = (a, b = 10, ...rest) => a + b + rest.length; return f(1)", 11.0},
		{"if (2 > 1) { return 'big' } else { return 'small' }", "big"},
		{"a = 1; b = 2", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, mustEval(t, tc.src, scope.Map{}))
		})
	}
}

func TestEvalNaN(t *testing.T) {
	v := mustEval(t, "'x' * 2")
	assert.True(t, math.IsNaN(v.(float64)))
	assert.Equal(t, "NaN", expr.ToString(v))
}

// bare names read and write through the scope stack
func TestScopeReadsAndWrites(t *testing.T) {
	inner := scope.Map{"item": "x"}
	outer := scope.Map{"count": 1.0}

	assert.Equal(t, 1.0, mustEval(t, "count++", inner, outer))
	assert.Equal(t, 2.0, outer["count"])

	mustEval(t, "count += 5; fresh = item", inner, outer)
	assert.Equal(t, 7.0, outer["count"])
	assert.Equal(t, "x", outer["fresh"], "unknown names are written to the outermost layer")
	assert.NotContains(t, inner, "fresh")
}

func TestOptionalChaining(t *testing.T) {
	layer := scope.Map{"a": nil, "o": map[string]any{"b": map[string]any{"c": 3.0}}}
	assert.Nil(t, mustEval(t, "a?.b.c", layer))
	assert.Nil(t, mustEval(t, "a?.b()", layer))
	assert.Equal(t, 3.0, mustEval(t, "o?.b.c", layer))

	_, err := eval(t, "a.b", layer)
	var e *expr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, expr.TypeError, e.Kind)
}

// bare calls receive the merged scope as this, member calls the receiver
func TestThisBinding(t *testing.T) {
	rec := mustEval(t, "({ name: 'scoped', hi() { return this.name } })")
	layer, ok := rec.(scope.Layer)
	require.True(t, ok)

	assert.Equal(t, "scoped", mustEval(t, "hi()", scope.Map{"other": 1.0}, layer))
	assert.Equal(t, "inner", mustEval(t, "hi()", scope.Map{"name": "inner"}, layer), "this is the whole stack, nearest layer first")
	assert.Equal(t, "own", mustEval(t, "({ name: 'own', hi() { return this.name } }).hi()"))
}

func TestGetters(t *testing.T) {
	assert.Equal(t, "ab", mustEval(t, "({ first: 'a', last: 'b', get full() { return this.first + this.last } }).full"))
}

// getters adopted into reactive objects are re-evaluated by effects
func TestReactiveGetter(t *testing.T) {
	l := loop.New()
	sys := reactivity.NewSystem(l)
	rt := expr.NewRuntime(l)

	p, err := expr.Parse("({ n: 1, get double() { return this.n * 2 } })")
	require.NoError(t, err)
	rec, err := rt.Run(p, scope.New(), nil)
	require.NoError(t, err)
	data := reactivity.Wrap(sys, rec).(*reactivity.Object)

	read, err := expr.Parse("double")
	require.NoError(t, err)
	seen := []any{}
	reactivity.Effect(sys, func() {
		v, err := rt.Run(read, scope.New(data), nil)
		require.NoError(t, err)
		seen = append(seen, v)
	})
	data.Set("n", 5)
	l.RunMicrotasks()
	assert.Equal(t, []any{2.0, 10.0}, seen)
}

func TestRuntimeErrors(t *testing.T) {
	_, err := eval(t, "missing + 1")
	var e *expr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, expr.ReferenceError, e.Kind)

	_, err = eval(t, "count()", scope.Map{"count": 1.0})
	assert.ErrorIs(t, err, expr.ErrNotCallable)

	_, err = eval(t, "const x = 1; x = 2")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, expr.TypeError, e.Kind)
}

func TestNativeFunctions(t *testing.T) {
	boom := errors.New("boom")
	layer := scope.Map{
		"add": expr.Func(func(_ any, args []any) (any, error) {
			return expr.ToNumber(args[0]) + expr.ToNumber(args[1]), nil
		}),
		"fail": expr.Func(func(any, []any) (any, error) { return nil, boom }),
	}
	assert.Equal(t, 5.0, mustEval(t, "add(2, 3)", layer))

	_, err := eval(t, "fail()", layer)
	assert.ErrorIs(t, err, boom)
}

func TestClosuresCaptureLocals(t *testing.T) {
	v := mustEval(t, "let n = 0; const inc = () => { n++; return n }; inc(); inc(); return n")
	assert.Equal(t, 2.0, v)
}

func TestSetTimeoutUsesLoop(t *testing.T) {
	l := loop.New()
	rt := expr.NewRuntime(l)
	state := scope.Map{"done": false}
	p, err := expr.Parse("setTimeout(() => done = true, 0)")
	require.NoError(t, err)
	_, err = rt.Run(p, scope.New(state), nil)
	require.NoError(t, err)

	assert.Equal(t, false, state["done"])
	require.True(t, l.Tick())
	assert.Equal(t, true, state["done"])
}

func TestCache(t *testing.T) {
	c := expr.NewCache()
	a, err := c.Compile("a + 1")
	require.NoError(t, err)
	b, err := c.Compile("a + 1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = c.Compile("a +")
	assert.Error(t, err)
	_, err = c.Compile("a +")
	assert.Error(t, err, "parse failures are remembered")

	hits, misses := c.Stats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 2, misses)
	assert.Equal(t, 2, c.Len())
}
