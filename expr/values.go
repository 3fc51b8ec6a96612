package expr

import (
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/delaneyj/sparkdom/loop"
)

// ObjectLike is a string keyed value. Reactive objects, scope layers, scope
// stacks and records all satisfy it.
type ObjectLike interface {
	Get(key string) (any, bool)
	Set(key string, v any)
	Keys() []string
}

// ListLike is an indexable, mutable sequence.
type ListLike interface {
	Len() int
	At(i int) any
	SetAt(i int, v any)
	Splice(start, count int, vs ...any) []any
}

type deleter interface {
	Delete(key string)
}

// Callable is anything an expression can call.
type Callable interface {
	Call(this any, args []any) (any, error)
}

// Func adapts a Go function into a Callable.
type Func func(this any, args []any) (any, error)

func (f Func) Call(this any, args []any) (any, error) {
	return f(this, args)
}

// Accessor is a computed property. Reading it calls Getter with the object
// it was read from as this.
type Accessor struct {
	Getter Callable
}

// Record is the ordered object produced by object literals.
type Record struct {
	keys   []string
	values map[string]any
}

func NewRecord() *Record {
	return &Record{values: map[string]any{}}
}

func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

func (r *Record) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	r.keys = slices.DeleteFunc(r.keys, func(k string) bool { return k == key })
}

func (r *Record) Keys() []string {
	return slices.Clone(r.keys)
}

func (r *Record) Len() int {
	return len(r.keys)
}

// Entries returns keys and values in insertion order.
func (r *Record) Entries() ([]string, []any) {
	keys := r.Keys()
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = r.values[k]
	}
	return keys, values
}

// Array is the list produced by array literals and list builtins.
type Array struct {
	items []any
}

func NewArray(items ...any) *Array {
	return &Array{items: items}
}

func (a *Array) Len() int { return len(a.items) }

func (a *Array) At(i int) any {
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return a.items[i]
}

func (a *Array) SetAt(i int, v any) {
	if i < 0 {
		return
	}
	for i >= len(a.items) {
		a.items = append(a.items, nil)
	}
	a.items[i] = v
}

func (a *Array) Splice(start, count int, vs ...any) []any {
	start = min(max(start, 0), len(a.items))
	count = max(min(count, len(a.items)-start), 0)
	removed := slices.Clone(a.items[start : start+count])
	a.items = slices.Replace(a.items, start, start+count, vs...)
	return removed
}

// Elements returns a copy of the items.
func (a *Array) Elements() []any {
	return slices.Clone(a.items)
}

// listItems reads every item of a list-ish value.
func listItems(v any) ([]any, bool) {
	switch x := v.(type) {
	case *Array:
		return x.Elements(), true
	case []any:
		return x, true
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return items, true
	case ListLike:
		n := x.Len()
		items := make([]any, n)
		for i := range n {
			items[i] = x.At(i)
		}
		return items, true
	}
	return nil, false
}

// asObject views plain Go maps as objects.
func asObject(v any) (ObjectLike, bool) {
	switch x := v.(type) {
	case ObjectLike:
		return x, true
	case map[string]any:
		return plainMap(x), true
	}
	return nil, false
}

type plainMap map[string]any

func (m plainMap) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m plainMap) Set(key string, v any) { m[key] = v }

func (m plainMap) Delete(key string) { delete(m, key) }

func (m plainMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func asList(v any) (ListLike, bool) {
	switch x := v.(type) {
	case ListLike:
		return x, true
	case []any:
		return &Array{items: x}, true
	}
	return nil, false
}

// Truthy reports whether v counts as true in a condition.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case string:
		return x != ""
	}
	return true
}

// TypeOf names the type of v the way the typeof operator does. nil is
// reported as undefined.
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case string:
		return "string"
	case Callable:
		return "function"
	}
	return "object"
}

// ToString converts v to its string form. Whole numbers print without a
// fraction and lists join their items with commas.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	case int:
		return strconv.Itoa(x)
	case Callable:
		return "function"
	case *loop.Promise:
		return "[object Promise]"
	case error:
		return x.Error()
	}
	if items, ok := listItems(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			if item != nil {
				parts[i] = ToString(item)
			}
		}
		return strings.Join(parts, ",")
	}
	if _, ok := asObject(v); ok {
		return "[object Object]"
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return reflect.TypeOf(v).String()
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToNumber converts v to a number. nil converts to 0.
func ToNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return parseNumber(x)
	}
	if items, ok := listItems(v); ok {
		switch len(items) {
		case 0:
			return 0
		case 1:
			return ToNumber(ToString(items[0]))
		}
	}
	return math.NaN()
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	if strings.ContainsAny(s, "_pPxXiInN") {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// StrictEquals compares without conversion. Reference values are equal
// only to themselves.
func StrictEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := numeric(a); ok {
		fb, ok := numeric(b)
		return ok && fa == fb
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Pointer, reflect.Chan:
		return va.Pointer() == vb.Pointer()
	}
	return false
}

// LooseEquals compares the way == does, converting between numbers,
// strings and booleans.
func LooseEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	_, aNum := numeric(a)
	_, bNum := numeric(b)
	_, aStr := a.(string)
	_, bStr := b.(string)
	_, aBool := a.(bool)
	_, bBool := b.(bool)
	switch {
	case aNum && bNum, aStr && bStr:
		return StrictEquals(a, b)
	case aBool || bBool:
		return ToNumber(a) == ToNumber(b)
	case (aNum || aStr) && (bNum || bStr):
		return ToNumber(a) == ToNumber(b)
	case isPrimitive(a) != isPrimitive(b):
		return ToString(a) == ToString(b)
	}
	return StrictEquals(a, b)
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, bool, float64, int, string:
		return true
	}
	return false
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

// compare orders a and b for < and friends. ok is false when either side is
// NaN after conversion.
func compare(a, b any) (int, bool) {
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(sa, sb), true
	}
	na, nb := ToNumber(a), ToNumber(b)
	if math.IsNaN(na) || math.IsNaN(nb) {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	}
	return 0, true
}

func add(a, b any) any {
	_, aStr := a.(string)
	_, bStr := b.(string)
	if aStr || bStr || !isPrimitive(a) || !isPrimitive(b) {
		return ToString(a) + ToString(b)
	}
	return ToNumber(a) + ToNumber(b)
}
