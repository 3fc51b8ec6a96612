package reactivity

import (
	"reflect"
	"slices"
)

const iterateKey = "\x00iterate"

// Object is a reactive string keyed record. Nested maps and slices are
// wrapped as *Object and *Array when stored.
type Object struct {
	sys    *System
	values map[string]any
	keys   []string
	deps   map[string]*dep
}

// Reactive deep-wraps m. Keys of m are ordered lexically since Go maps carry
// no order.
func Reactive(sys *System, m map[string]any) *Object {
	o := &Object{
		sys:    sys,
		values: make(map[string]any, len(m)),
		deps:   map[string]*dep{},
	}
	for k, v := range m {
		o.keys = append(o.keys, k)
		o.values[k] = sys.wrap(v)
	}
	slices.Sort(o.keys)
	return o
}

// NewObject is the ordered counterpart of Reactive: keys are kept in the
// order given.
func NewObject(sys *System, keys []string, values []any) *Object {
	o := &Object{
		sys:    sys,
		values: make(map[string]any, len(keys)),
		deps:   map[string]*dep{},
	}
	for i, k := range keys {
		if _, ok := o.values[k]; !ok {
			o.keys = append(o.keys, k)
		}
		o.values[k] = sys.wrap(values[i])
	}
	return o
}

func (o *Object) depFor(key string) *dep {
	d, ok := o.deps[key]
	if !ok {
		d = o.sys.newDep()
		o.deps[key] = d
	}
	return d
}

func (o *Object) Get(key string) (any, bool) {
	o.sys.track(o.depFor(key))
	v, ok := o.values[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

func (o *Object) Set(key string, v any) {
	v = o.sys.wrap(v)
	old, had := o.values[key]
	if had && same(old, v) {
		return
	}
	o.values[key] = v
	if !had {
		o.keys = append(o.keys, key)
		o.sys.trigger(o.deps[iterateKey])
	}
	o.sys.trigger(o.deps[key])
}

func (o *Object) Delete(key string) {
	if _, had := o.values[key]; !had {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	o.sys.trigger(o.deps[iterateKey])
	o.sys.trigger(o.deps[key])
}

// Keys returns keys in insertion order and tracks structural changes.
func (o *Object) Keys() []string {
	o.sys.track(o.depFor(iterateKey))
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Peek reads key without tracking.
func (o *Object) Peek(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *Object) Len() int {
	o.sys.track(o.depFor(iterateKey))
	return len(o.keys)
}

// Array is a reactive list. All reads share one dependency.
type Array struct {
	sys   *System
	items []any
	dep   *dep
}

func NewArray(sys *System, items []any) *Array {
	a := &Array{
		sys:   sys,
		items: make([]any, len(items)),
		dep:   sys.newDep(),
	}
	for i, v := range items {
		a.items[i] = sys.wrap(v)
	}
	return a
}

func (a *Array) Len() int {
	a.sys.track(a.dep)
	return len(a.items)
}

func (a *Array) At(i int) any {
	a.sys.track(a.dep)
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return a.items[i]
}

func (a *Array) SetAt(i int, v any) {
	if i < 0 {
		return
	}
	v = a.sys.wrap(v)
	for i >= len(a.items) {
		a.items = append(a.items, nil)
	}
	if same(a.items[i], v) {
		return
	}
	a.items[i] = v
	a.sys.trigger(a.dep)
}

func (a *Array) Append(vs ...any) {
	if len(vs) == 0 {
		return
	}
	for _, v := range vs {
		a.items = append(a.items, a.sys.wrap(v))
	}
	a.sys.trigger(a.dep)
}

// Splice removes count items at start and inserts vs in their place,
// returning the removed items.
func (a *Array) Splice(start, count int, vs ...any) []any {
	if start < 0 {
		start = max(len(a.items)+start, 0)
	}
	start = min(start, len(a.items))
	count = max(min(count, len(a.items)-start), 0)

	removed := make([]any, count)
	copy(removed, a.items[start:start+count])

	wrapped := make([]any, len(vs))
	for i, v := range vs {
		wrapped[i] = a.sys.wrap(v)
	}
	tail := append(wrapped, a.items[start+count:]...)
	a.items = append(a.items[:start], tail...)
	if count > 0 || len(vs) > 0 {
		a.sys.trigger(a.dep)
	}
	return removed
}

// Items returns a tracked copy of the items.
func (a *Array) Items() []any {
	a.sys.track(a.dep)
	items := make([]any, len(a.items))
	copy(items, a.items)
	return items
}

// entrySource and elementSource are ordered records and lists built outside
// this package, such as object and array literals from expressions.
type entrySource interface {
	Entries() ([]string, []any)
}

type elementSource interface {
	Elements() []any
}

func (sys *System) wrap(v any) any {
	switch x := v.(type) {
	case *Object, *Array:
		return v
	case entrySource:
		keys, values := x.Entries()
		return NewObject(sys, keys, values)
	case elementSource:
		return NewArray(sys, x.Elements())
	case map[string]any:
		return Reactive(sys, x)
	case []any:
		return NewArray(sys, x)
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return NewArray(sys, items)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// Wrap converts plain Go values the same way stored values are converted.
func Wrap(sys *System, v any) any {
	return sys.wrap(v)
}

func same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	if fa, ok := a.(float64); ok {
		fb := b.(float64)
		return fa == fb || (fa != fa && fb != fb)
	}
	return a == b
}
