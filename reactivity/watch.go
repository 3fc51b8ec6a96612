package reactivity

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
)

var snapshotEncoder = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Watch re-evaluates getter whenever anything it touches changes, including
// nested reactive values, and queues cb as a microtask when the serialized
// result differs. The first evaluation only records the starting value.
func Watch(sys *System, getter func() any, cb func(value, oldValue any)) (stop func()) {
	firstTime := true
	var (
		oldValue  any
		oldDigest uint64
	)
	var e *EffectRunner
	e = Effect(sys, func() {
		value := getter()
		digest := Digest(value)
		if firstTime {
			firstTime = false
			oldValue = value
			oldDigest = digest
			return
		}
		if digest == oldDigest {
			return
		}
		oldDigest = digest
		sys.loop.QueueMicrotask(func() {
			if !e.Active() {
				return
			}
			cb(value, oldValue)
			oldValue = value
		})
	})
	return func() {
		Release(sys, e)
	}
}

// Digest deep reads v and hashes its canonical encoding. Reading through
// reactive values registers dependencies on every nested key.
func Digest(v any) uint64 {
	b, err := snapshotEncoder.Marshal(Snapshot(v))
	if err != nil {
		return xxhash.Sum64String(fmt.Sprintf("%#v", v))
	}
	return xxhash.Sum64(b)
}

// Snapshot converts reactive values into plain maps and slices. Values that
// are not data (functions, nodes, channels) are replaced by a type and
// identity marker.
func Snapshot(v any) any {
	return snapshot(v, map[any]bool{})
}

func snapshot(v any, seen map[any]bool) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case *Object:
		if seen[x] {
			return "[Circular]"
		}
		seen[x] = true
		defer delete(seen, x)
		m := map[string]any{}
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			m[k] = snapshot(val, seen)
		}
		return m
	case *Array:
		if seen[x] {
			return "[Circular]"
		}
		seen[x] = true
		defer delete(seen, x)
		items := x.Items()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = snapshot(item, seen)
		}
		return out
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = snapshot(val, seen)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = snapshot(item, seen)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.Pointer, reflect.Func, reflect.Chan, reflect.Map, reflect.Slice, reflect.UnsafePointer:
		return fmt.Sprintf("%T@%x", v, rv.Pointer())
	default:
		return fmt.Sprintf("%T", v)
	}
}
