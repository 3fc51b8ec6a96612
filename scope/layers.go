package scope

import "slices"

// Map is a plain, non reactive layer.
type Map map[string]any

func (m Map) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func (m Map) Set(name string, v any) {
	m[name] = v
}

func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Lazy is a layer of accessors computed on first read and then memoised.
// Its names are not enumerable. Writes shadow the accessor.
type Lazy struct {
	factories map[string]func() any
	values    map[string]any
}

func NewLazy() *Lazy {
	return &Lazy{
		factories: map[string]func() any{},
		values:    map[string]any{},
	}
}

func (l *Lazy) Define(name string, factory func() any) {
	l.factories[name] = factory
	delete(l.values, name)
}

func (l *Lazy) Get(name string) (any, bool) {
	if v, ok := l.values[name]; ok {
		return v, true
	}
	factory, ok := l.factories[name]
	if !ok {
		return nil, false
	}
	v := factory()
	l.values[name] = v
	return v, true
}

func (l *Lazy) Set(name string, v any) {
	l.values[name] = v
}

func (l *Lazy) Keys() []string {
	return nil
}
