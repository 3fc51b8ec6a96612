package dom

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Selector is a comma separated list of compound selectors made of a tag
// name or *, #id, .class and [attr], [attr=value], [attr^=value],
// [attr$=value], [attr*=value] parts. Combinators are not supported.
type Selector struct {
	src    string
	groups []compound
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name  string
	op    string
	value string
}

func Compile(src string) (*Selector, error) {
	s := &Selector{src: src}
	for _, part := range strings.Split(src, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("dom: empty selector in %q", src)
		}
		c, err := parseCompound(part)
		if err != nil {
			return nil, fmt.Errorf("dom: invalid selector %q: %w", src, err)
		}
		s.groups = append(s.groups, c)
	}
	return s, nil
}

func MustCompile(src string) *Selector {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Selector) String() string {
	return s.src
}

func parseCompound(src string) (compound, error) {
	var c compound
	i := 0
	if i < len(src) && src[i] == '*' {
		i++
	} else if i < len(src) && isNameByte(src[i]) {
		name, n := readName(src[i:])
		c.tag = strings.ToLower(name)
		i += n
	}
	for i < len(src) {
		switch src[i] {
		case '#':
			name, n := readName(src[i+1:])
			if n == 0 {
				return c, fmt.Errorf("missing id at %d", i)
			}
			c.id = name
			i += 1 + n
		case '.':
			name, n := readName(src[i+1:])
			if n == 0 {
				return c, fmt.Errorf("missing class at %d", i)
			}
			c.classes = append(c.classes, name)
			i += 1 + n
		case '[':
			m, n, err := parseAttr(src[i+1:])
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, m)
			i += 1 + n
		default:
			return c, fmt.Errorf("unexpected %q at %d", src[i], i)
		}
	}
	return c, nil
}

func parseAttr(src string) (attrMatch, int, error) {
	end := strings.IndexByte(src, ']')
	if end < 0 {
		return attrMatch{}, 0, fmt.Errorf("unterminated attribute selector")
	}
	body := src[:end]
	name, n := readName(body)
	if n == 0 {
		return attrMatch{}, 0, fmt.Errorf("missing attribute name")
	}
	m := attrMatch{name: strings.ToLower(name)}
	rest := strings.TrimSpace(body[n:])
	if rest == "" {
		return m, end + 1, nil
	}
	for _, op := range []string{"^=", "$=", "*=", "~=", "="} {
		if strings.HasPrefix(rest, op) {
			m.op = op
			m.value = unquote(strings.TrimSpace(rest[len(op):]))
			return m, end + 1, nil
		}
	}
	return attrMatch{}, 0, fmt.Errorf("unknown attribute operator in %q", body)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// readName reads an identifier, honouring backslash escapes such as
// x-on\:click.
func readName(src string) (string, int) {
	var sb strings.Builder
	i := 0
	for i < len(src) {
		c := src[i]
		if c == '\\' && i+1 < len(src) {
			sb.WriteByte(src[i+1])
			i += 2
			continue
		}
		if !isNameByte(c) {
			break
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String(), i
}

func isNameByte(c byte) bool {
	return c == '-' || c == '_' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// Matches reports whether n is an element matched by any group.
func (s *Selector) Matches(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, c := range s.groups {
		if c.matches(n) {
			return true
		}
	}
	return false
}

func (c compound) matches(n *html.Node) bool {
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" {
		if v, ok := Attr(n, "id"); !ok || v != c.id {
			return false
		}
	}
	if len(c.classes) > 0 {
		v, _ := Attr(n, "class")
		have := strings.Fields(v)
		for _, want := range c.classes {
			if !slices.Contains(have, want) {
				return false
			}
		}
	}
	for _, m := range c.attrs {
		v, ok := Attr(n, m.name)
		if !ok {
			return false
		}
		switch m.op {
		case "=":
			ok = v == m.value
		case "^=":
			ok = m.value != "" && strings.HasPrefix(v, m.value)
		case "$=":
			ok = m.value != "" && strings.HasSuffix(v, m.value)
		case "*=":
			ok = m.value != "" && strings.Contains(v, m.value)
		case "~=":
			ok = slices.Contains(strings.Fields(v), m.value)
		}
		if !ok {
			return false
		}
	}
	return true
}

// QueryAll returns matching descendants of root in document order. root
// itself is never included.
func (s *Selector) QueryAll(root *html.Node) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node, _ func()) {
		if n != root && s.Matches(n) {
			out = append(out, n)
		}
	})
	return out
}

// Query returns the first matching descendant of root.
func (s *Selector) Query(root *html.Node) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node, skip func()) {
		if found != nil {
			skip()
			return
		}
		if n != root && s.Matches(n) {
			found = n
			skip()
		}
	})
	return found
}

// Closest returns the nearest inclusive ancestor of n that matches.
func (s *Selector) Closest(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if s.Matches(p) {
			return p
		}
	}
	return nil
}
