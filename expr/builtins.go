package expr

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/delaneyj/sparkdom/loop"
)

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func fn(f func(args []any) (any, error)) Func {
	return func(_ any, args []any) (any, error) {
		return f(args)
	}
}

func math1(f func(float64) float64) Func {
	return fn(func(args []any) (any, error) {
		return f(ToNumber(arg(args, 0))), nil
	})
}

func (rt *Runtime) newBuiltins() map[string]any {
	mathObj := NewRecord()
	mathObj.Set("PI", math.Pi)
	mathObj.Set("E", math.E)
	mathObj.Set("abs", math1(math.Abs))
	mathObj.Set("ceil", math1(math.Ceil))
	mathObj.Set("floor", math1(math.Floor))
	mathObj.Set("round", math1(func(f float64) float64 { return math.Floor(f + 0.5) }))
	mathObj.Set("trunc", math1(math.Trunc))
	mathObj.Set("sqrt", math1(math.Sqrt))
	mathObj.Set("sign", math1(func(f float64) float64 {
		switch {
		case f > 0:
			return 1
		case f < 0:
			return -1
		}
		return f
	}))
	mathObj.Set("pow", fn(func(args []any) (any, error) {
		return math.Pow(ToNumber(arg(args, 0)), ToNumber(arg(args, 1))), nil
	}))
	mathObj.Set("random", fn(func([]any) (any, error) { return rand.Float64(), nil }))
	mathObj.Set("max", fn(func(args []any) (any, error) {
		out := math.Inf(-1)
		for _, a := range args {
			out = math.Max(out, ToNumber(a))
		}
		return out, nil
	}))
	mathObj.Set("min", fn(func(args []any) (any, error) {
		out := math.Inf(1)
		for _, a := range args {
			out = math.Min(out, ToNumber(a))
		}
		return out, nil
	}))

	jsonObj := NewRecord()
	jsonObj.Set("stringify", fn(func(args []any) (any, error) {
		indent := ""
		switch x := arg(args, 2).(type) {
		case float64:
			indent = strings.Repeat(" ", min(int(x), 10))
		case string:
			indent = x
		}
		return Stringify(arg(args, 0), indent)
	}))
	jsonObj.Set("parse", fn(func(args []any) (any, error) {
		return ParseJSON(ToString(arg(args, 0)))
	}))

	arrayObj := NewRecord()
	arrayObj.Set("isArray", fn(func(args []any) (any, error) {
		_, ok := listItems(arg(args, 0))
		return ok, nil
	}))
	arrayObj.Set("from", fn(func(args []any) (any, error) {
		v := arg(args, 0)
		if s, ok := v.(string); ok {
			items := []any{}
			for _, r := range s {
				items = append(items, string(r))
			}
			return NewArray(items...), nil
		}
		items, _ := listItems(v)
		return NewArray(items...), nil
	}))

	objectObj := NewRecord()
	objectObj.Set("keys", fn(func(args []any) (any, error) {
		return NewArray(toAny(objectKeys(arg(args, 0)))...), nil
	}))
	objectObj.Set("values", fn(func(args []any) (any, error) {
		v := arg(args, 0)
		var out []any
		for _, k := range objectKeys(v) {
			out = append(out, readKey(v, k))
		}
		return NewArray(out...), nil
	}))
	objectObj.Set("entries", fn(func(args []any) (any, error) {
		v := arg(args, 0)
		var out []any
		for _, k := range objectKeys(v) {
			out = append(out, NewArray(k, readKey(v, k)))
		}
		return NewArray(out...), nil
	}))
	objectObj.Set("assign", fn(func(args []any) (any, error) {
		target, ok := asObject(arg(args, 0))
		if !ok {
			return nil, errors.New("Object.assign target is not an object")
		}
		for _, src := range args[1:] {
			for _, k := range objectKeys(src) {
				target.Set(k, readKey(src, k))
			}
		}
		return args[0], nil
	}))

	console := NewRecord()
	logAt := func(level func(msg string, args ...any)) Func {
		return fn(func(args []any) (any, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = ToString(a)
			}
			level(strings.Join(parts, " "))
			return nil, nil
		})
	}
	console.Set("log", logAt(rt.logger.Info))
	console.Set("info", logAt(rt.logger.Info))
	console.Set("debug", logAt(rt.logger.Debug))
	console.Set("warn", logAt(rt.logger.Warn))
	console.Set("error", logAt(rt.logger.Error))

	promiseObj := NewRecord()
	promiseObj.Set("resolve", fn(func(args []any) (any, error) {
		return loop.Resolved(rt.loop, arg(args, 0)), nil
	}))
	promiseObj.Set("reject", fn(func(args []any) (any, error) {
		return loop.RejectedWith(rt.loop, errors.New(ToString(arg(args, 0)))), nil
	}))

	return map[string]any{
		"Math":     mathObj,
		"JSON":     jsonObj,
		"Array":    arrayObj,
		"Object":   objectObj,
		"console":  console,
		"Promise":  promiseObj,
		"NaN":      math.NaN(),
		"Infinity": math.Inf(1),
		"String": fn(func(args []any) (any, error) {
			if len(args) == 0 {
				return "", nil
			}
			return ToString(args[0]), nil
		}),
		"Number": fn(func(args []any) (any, error) {
			return ToNumber(arg(args, 0)), nil
		}),
		"Boolean": fn(func(args []any) (any, error) {
			return Truthy(arg(args, 0)), nil
		}),
		"isNaN": fn(func(args []any) (any, error) {
			return math.IsNaN(ToNumber(arg(args, 0))), nil
		}),
		"parseFloat": fn(func(args []any) (any, error) {
			return parseFloatPrefix(ToString(arg(args, 0))), nil
		}),
		"parseInt": fn(func(args []any) (any, error) {
			radix := 10
			if r := arg(args, 1); r != nil {
				radix = int(ToNumber(r))
			}
			return parseIntPrefix(ToString(arg(args, 0)), radix), nil
		}),
		"setTimeout": fn(func(args []any) (any, error) {
			cb := arg(args, 0)
			delay := time.Duration(ToNumber(arg(args, 1))) * time.Millisecond
			rest := slices.Clone(args[min(2, len(args)):])
			id := rt.loop.SetTimeout(func() error {
				_, err := Call(cb, nil, rest...)
				return err
			}, delay)
			return float64(id), nil
		}),
		"clearTimeout": fn(func(args []any) (any, error) {
			rt.loop.ClearTimeout(uint64(ToNumber(arg(args, 0))))
			return nil, nil
		}),
	}
}

func toAny(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func objectKeys(v any) []string {
	if items, ok := listItems(v); ok {
		keys := make([]string, len(items))
		for i := range items {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	if o, ok := asObject(v); ok {
		return o.Keys()
	}
	return nil
}

func readKey(v any, key string) any {
	if l, ok := asList(v); ok {
		i, _ := strconv.Atoi(key)
		return l.At(i)
	}
	if o, ok := asObject(v); ok {
		val, _ := o.Get(key)
		if a, ok := val.(*Accessor); ok {
			val, _ = a.Getter.Call(v, nil)
		}
		return val
	}
	return nil
}

func parseFloatPrefix(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDot, seenExp := false, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case isDigit(c):
		case (c == '+' || c == '-') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && !seenExp && end > 0:
			seenExp = true
		default:
			break scan
		}
		end++
	}
	for end > 0 {
		if n, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return n
		}
		end--
	}
	if strings.HasPrefix(s, "Infinity") {
		return math.Inf(1)
	}
	return math.NaN()
}

func parseIntPrefix(s string, radix int) float64 {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if (radix == 16 || radix == 0) && len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s, radix = s[2:], 16
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN()
	}
	end := 0
	for end < len(s) {
		d, err := strconv.ParseInt(s[end:end+1], radix, 64)
		if err != nil || d < 0 {
			break
		}
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	n, err := strconv.ParseInt(s[:end], radix, 64)
	if err != nil {
		return math.NaN()
	}
	if neg {
		return -float64(n)
	}
	return float64(n)
}

func (rt *Runtime) stringMember(s string, key any, name string) any {
	if i, ok := index(key); ok {
		runes := []rune(s)
		if i < len(runes) {
			return string(runes[i])
		}
		return nil
	}
	switch name {
	case "length":
		return float64(utf8.RuneCountInString(s))
	case "toUpperCase":
		return fn(func([]any) (any, error) { return strings.ToUpper(s), nil })
	case "toLowerCase":
		return fn(func([]any) (any, error) { return strings.ToLower(s), nil })
	case "trim":
		return fn(func([]any) (any, error) { return strings.TrimSpace(s), nil })
	case "trimStart":
		return fn(func([]any) (any, error) { return strings.TrimLeft(s, " \t\n\r\f\v"), nil })
	case "trimEnd":
		return fn(func([]any) (any, error) { return strings.TrimRight(s, " \t\n\r\f\v"), nil })
	case "toString", "valueOf":
		return fn(func([]any) (any, error) { return s, nil })
	case "includes":
		return fn(func(args []any) (any, error) { return strings.Contains(s, ToString(arg(args, 0))), nil })
	case "startsWith":
		return fn(func(args []any) (any, error) { return strings.HasPrefix(s, ToString(arg(args, 0))), nil })
	case "endsWith":
		return fn(func(args []any) (any, error) { return strings.HasSuffix(s, ToString(arg(args, 0))), nil })
	case "indexOf":
		return fn(func(args []any) (any, error) {
			i := strings.Index(s, ToString(arg(args, 0)))
			if i < 0 {
				return -1.0, nil
			}
			return float64(utf8.RuneCountInString(s[:i])), nil
		})
	case "charAt", "at":
		return fn(func(args []any) (any, error) {
			runes := []rune(s)
			i := int(ToNumber(arg(args, 0)))
			if i < 0 && name == "at" {
				i += len(runes)
			}
			if i < 0 || i >= len(runes) {
				if name == "at" {
					return nil, nil
				}
				return "", nil
			}
			return string(runes[i]), nil
		})
	case "slice", "substring":
		return fn(func(args []any) (any, error) {
			runes := []rune(s)
			start, end := sliceBounds(len(runes), args, name == "slice")
			return string(runes[start:end]), nil
		})
	case "split":
		return fn(func(args []any) (any, error) {
			sep := arg(args, 0)
			if sep == nil {
				return NewArray(s), nil
			}
			parts := strings.Split(s, ToString(sep))
			return NewArray(toAny(parts)...), nil
		})
	case "replace":
		return fn(func(args []any) (any, error) {
			return strings.Replace(s, ToString(arg(args, 0)), ToString(arg(args, 1)), 1), nil
		})
	case "replaceAll":
		return fn(func(args []any) (any, error) {
			return strings.ReplaceAll(s, ToString(arg(args, 0)), ToString(arg(args, 1))), nil
		})
	case "repeat":
		return fn(func(args []any) (any, error) {
			n := int(ToNumber(arg(args, 0)))
			if n < 0 {
				return nil, &Error{Kind: RangeError, Msg: "invalid count value"}
			}
			return strings.Repeat(s, n), nil
		})
	case "padStart", "padEnd":
		return fn(func(args []any) (any, error) {
			width := int(ToNumber(arg(args, 0)))
			pad := " "
			if p := arg(args, 1); p != nil {
				pad = ToString(p)
			}
			missing := width - utf8.RuneCountInString(s)
			if missing <= 0 || pad == "" {
				return s, nil
			}
			fill := []rune(strings.Repeat(pad, missing/utf8.RuneCountInString(pad)+1))[:missing]
			if name == "padStart" {
				return string(fill) + s, nil
			}
			return s + string(fill), nil
		})
	case "concat":
		return fn(func(args []any) (any, error) {
			out := s
			for _, a := range args {
				out += ToString(a)
			}
			return out, nil
		})
	}
	return nil
}

// sliceBounds resolves slice/substring style start and end arguments.
// Negative positions count from the end when fromEnd is set.
func sliceBounds(n int, args []any, fromEnd bool) (int, int) {
	resolve := func(v any, def int) int {
		if v == nil {
			return def
		}
		i := int(ToNumber(v))
		if i < 0 {
			if fromEnd {
				i += n
			}
			i = max(i, 0)
		}
		return min(i, n)
	}
	start := resolve(arg(args, 0), 0)
	end := resolve(arg(args, 1), n)
	if start > end {
		if fromEnd {
			return start, start
		}
		start, end = end, start
	}
	return start, end
}

func (rt *Runtime) numberMember(f float64, name string) any {
	switch name {
	case "toFixed":
		return fn(func(args []any) (any, error) {
			digits := int(ToNumber(arg(args, 0)))
			return strconv.FormatFloat(f, 'f', digits, 64), nil
		})
	case "toString":
		return fn(func(args []any) (any, error) {
			if r := arg(args, 0); r != nil && ToNumber(r) != 10 && f == math.Trunc(f) {
				return strconv.FormatInt(int64(f), int(ToNumber(r))), nil
			}
			return ToString(f), nil
		})
	}
	return nil
}

func (rt *Runtime) objectMember(o ObjectLike, name string) any {
	switch name {
	case "hasOwnProperty":
		return fn(func(args []any) (any, error) {
			_, ok := o.Get(ToString(arg(args, 0)))
			return ok, nil
		})
	case "toString":
		return fn(func([]any) (any, error) { return "[object Object]", nil })
	}
	return nil
}

func (rt *Runtime) promiseMember(v any, name string) (any, bool) {
	p, ok := v.(*loop.Promise)
	if !ok {
		return nil, false
	}
	settleWith := func(onFulfilled, onRejected any) *loop.Promise {
		next, resolve, reject := loop.NewPromise(rt.loop)
		p.Then(func(v any, err error) {
			handler := onFulfilled
			in := v
			if err != nil {
				handler, in = onRejected, err.Error()
			}
			if handler == nil {
				if err != nil {
					reject(err)
				} else {
					resolve(v)
				}
				return
			}
			out, herr := Call(handler, nil, in)
			if herr != nil {
				reject(herr)
				return
			}
			resolve(out)
		})
		return next
	}
	switch name {
	case "then":
		return fn(func(args []any) (any, error) {
			return settleWith(arg(args, 0), arg(args, 1)), nil
		}), true
	case "catch":
		return fn(func(args []any) (any, error) {
			return settleWith(nil, arg(args, 0)), nil
		}), true
	}
	return nil, true
}

func (rt *Runtime) listMember(l ListLike, name string) any {
	items := func() []any {
		all, _ := listItems(l)
		return all
	}
	each := func(cb any, visit func(i int, item, result any) bool) error {
		for i, item := range items() {
			out, err := Call(cb, nil, item, float64(i), l)
			if err != nil {
				return err
			}
			if !visit(i, item, out) {
				return nil
			}
		}
		return nil
	}
	switch name {
	case "push":
		return fn(func(args []any) (any, error) {
			l.Splice(l.Len(), 0, args...)
			return float64(l.Len()), nil
		})
	case "pop":
		return fn(func([]any) (any, error) {
			n := l.Len()
			if n == 0 {
				return nil, nil
			}
			return l.Splice(n-1, 1)[0], nil
		})
	case "shift":
		return fn(func([]any) (any, error) {
			if l.Len() == 0 {
				return nil, nil
			}
			return l.Splice(0, 1)[0], nil
		})
	case "unshift":
		return fn(func(args []any) (any, error) {
			l.Splice(0, 0, args...)
			return float64(l.Len()), nil
		})
	case "splice":
		return fn(func(args []any) (any, error) {
			n := l.Len()
			start := int(ToNumber(arg(args, 0)))
			if start < 0 {
				start = max(n+start, 0)
			}
			count := n - start
			if len(args) > 1 {
				count = int(ToNumber(args[1]))
			}
			var insert []any
			if len(args) > 2 {
				insert = args[2:]
			}
			return NewArray(l.Splice(start, count, insert...)...), nil
		})
	case "slice":
		return fn(func(args []any) (any, error) {
			all := items()
			start, end := sliceBounds(len(all), args, true)
			return NewArray(slices.Clone(all[start:end])...), nil
		})
	case "concat":
		return fn(func(args []any) (any, error) {
			out := items()
			for _, a := range args {
				if more, ok := listItems(a); ok {
					out = append(out, more...)
					continue
				}
				out = append(out, a)
			}
			return NewArray(out...), nil
		})
	case "join":
		return fn(func(args []any) (any, error) {
			sep := ","
			if s := arg(args, 0); s != nil {
				sep = ToString(s)
			}
			parts := []string{}
			for _, item := range items() {
				if item == nil {
					parts = append(parts, "")
					continue
				}
				parts = append(parts, ToString(item))
			}
			return strings.Join(parts, sep), nil
		})
	case "includes":
		return fn(func(args []any) (any, error) {
			return slices.ContainsFunc(items(), func(item any) bool { return StrictEquals(item, arg(args, 0)) }), nil
		})
	case "indexOf":
		return fn(func(args []any) (any, error) {
			return float64(slices.IndexFunc(items(), func(item any) bool { return StrictEquals(item, arg(args, 0)) })), nil
		})
	case "at":
		return fn(func(args []any) (any, error) {
			i := int(ToNumber(arg(args, 0)))
			if i < 0 {
				i += l.Len()
			}
			return l.At(i), nil
		})
	case "reverse":
		return fn(func([]any) (any, error) {
			all := items()
			slices.Reverse(all)
			l.Splice(0, l.Len(), all...)
			return l, nil
		})
	case "sort":
		return fn(func(args []any) (any, error) {
			all := items()
			cmp := arg(args, 0)
			var sortErr error
			slices.SortStableFunc(all, func(a, b any) int {
				if cmp == nil {
					return strings.Compare(ToString(a), ToString(b))
				}
				out, err := Call(cmp, nil, a, b)
				if err != nil {
					sortErr = err
				}
				n := ToNumber(out)
				switch {
				case n < 0:
					return -1
				case n > 0:
					return 1
				}
				return 0
			})
			if sortErr != nil {
				return nil, sortErr
			}
			l.Splice(0, l.Len(), all...)
			return l, nil
		})
	case "forEach":
		return fn(func(args []any) (any, error) {
			return nil, each(arg(args, 0), func(int, any, any) bool { return true })
		})
	case "map":
		return fn(func(args []any) (any, error) {
			var out []any
			err := each(arg(args, 0), func(_ int, _, result any) bool {
				out = append(out, result)
				return true
			})
			return NewArray(out...), err
		})
	case "filter":
		return fn(func(args []any) (any, error) {
			var out []any
			err := each(arg(args, 0), func(_ int, item, result any) bool {
				if Truthy(result) {
					out = append(out, item)
				}
				return true
			})
			return NewArray(out...), err
		})
	case "find", "findIndex":
		return fn(func(args []any) (any, error) {
			var found any
			at := -1
			err := each(arg(args, 0), func(i int, item, result any) bool {
				if Truthy(result) {
					found, at = item, i
					return false
				}
				return true
			})
			if name == "findIndex" {
				return float64(at), err
			}
			return found, err
		})
	case "some", "every":
		return fn(func(args []any) (any, error) {
			want := name == "some"
			out := !want
			err := each(arg(args, 0), func(_ int, _, result any) bool {
				if Truthy(result) == want {
					out = want
					return false
				}
				return true
			})
			return out, err
		})
	case "reduce":
		return fn(func(args []any) (any, error) {
			all := items()
			cb := arg(args, 0)
			var acc any
			start := 0
			if len(args) > 1 {
				acc = args[1]
			} else if len(all) > 0 {
				acc, start = all[0], 1
			} else {
				return nil, typeErrorf(0, "reduce of empty array with no initial value")
			}
			for i := start; i < len(all); i++ {
				var err error
				if acc, err = Call(cb, nil, acc, all[i], float64(i), l); err != nil {
					return nil, err
				}
			}
			return acc, nil
		})
	case "toString":
		return fn(func([]any) (any, error) { return ToString(l), nil })
	}
	return nil
}
