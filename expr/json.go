package expr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Stringify encodes v as JSON keeping object key order. Functions are
// dropped from objects and written as null inside lists.
func Stringify(v any, indent string) (string, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, map[any]bool{}); err != nil {
		return "", err
	}
	if indent == "" {
		return buf.String(), nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", indent); err != nil {
		return "", err
	}
	return out.String(), nil
}

func writeJSON(buf *bytes.Buffer, v any, seen map[any]bool) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool, string:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(formatNumber(x))
		return nil
	case int:
		fmt.Fprint(buf, x)
		return nil
	case Callable:
		buf.WriteString("null")
		return nil
	}

	if items, ok := listItems(v); ok {
		if isComparable(v) {
			if seen[v] {
				return typeErrorf(0, "converting circular structure to JSON")
			}
			seen[v] = true
			defer delete(seen, v)
		}
		buf.WriteByte('[')
		for i, item := range items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item, seen); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}

	if o, ok := asObject(v); ok {
		if isComparable(v) {
			if seen[v] {
				return typeErrorf(0, "converting circular structure to JSON")
			}
			seen[v] = true
			defer delete(seen, v)
		}
		buf.WriteByte('{')
		first := true
		for _, k := range o.Keys() {
			val, _ := o.Get(k)
			if a, ok := val.(*Accessor); ok {
				var err error
				if val, err = a.Getter.Call(v, nil); err != nil {
					return err
				}
			}
			if _, ok := val.(Callable); ok {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			key, _ := json.Marshal(k)
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, val, seen); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("expr: cannot encode %T as JSON: %w", v, err)
	}
	buf.Write(b)
	return nil
}

func isComparable(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return false
	}
	return true
}

// ParseJSON decodes src into records, arrays, strings, float64s, bools and
// nil. Object key order follows the source.
func ParseJSON(src string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(src))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return nil, &Error{Kind: SyntaxError, Msg: "invalid JSON: " + err.Error(), Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, syntaxErrorf(int(dec.InputOffset()), "unexpected data after JSON value")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			arr := NewArray()
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				arr.items = append(arr.items, item)
			}
			_, err := dec.Token()
			return arr, err
		case '{':
			rec := NewRecord()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				rec.Set(keyTok.(string), val)
			}
			_, err := dec.Token()
			return rec, err
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case json.Number:
		return t.Float64()
	default:
		return t, nil
	}
}
