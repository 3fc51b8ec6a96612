// Package scope resolves bare names against an ordered chain of mutable
// namespaces. Reads take the first layer that has the name. Writes go to the
// innermost layer that already owns the name, or to the outermost layer.
package scope

// Layer is one namespace in a Stack.
type Layer interface {
	Get(name string) (any, bool)
	Set(name string, v any)
	Keys() []string
}

type Stack struct {
	layers []Layer
}

// New builds a stack from layers, nearest first. Nil layers are dropped.
func New(layers ...Layer) *Stack {
	s := &Stack{layers: make([]Layer, 0, len(layers))}
	for _, l := range layers {
		if l != nil {
			s.layers = append(s.layers, l)
		}
	}
	return s
}

// Prepend returns a new stack with layers in front of the receiver's.
func (s *Stack) Prepend(layers ...Layer) *Stack {
	all := make([]Layer, 0, len(layers)+len(s.layers))
	all = append(all, layers...)
	all = append(all, s.layers...)
	return New(all...)
}

func (s *Stack) Layers() []Layer {
	out := make([]Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

func (s *Stack) Len() int {
	return len(s.layers)
}

func (s *Stack) Get(name string) (any, bool) {
	for _, l := range s.layers {
		if v, ok := l.Get(name); ok {
			return v, true
		}
	}
	return nil, false
}

func (s *Stack) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Owner returns the layer that Set would write name to.
func (s *Stack) Owner(name string) Layer {
	if len(s.layers) == 0 {
		return nil
	}
	for _, l := range s.layers {
		if _, ok := l.Get(name); ok {
			return l
		}
	}
	return s.layers[len(s.layers)-1]
}

func (s *Stack) Set(name string, v any) {
	if owner := s.Owner(name); owner != nil {
		owner.Set(name, v)
	}
}

// Keys lists every enumerable name once, nearest layer first.
func (s *Stack) Keys() []string {
	seen := map[string]struct{}{}
	keys := []string{}
	for _, l := range s.layers {
		for _, k := range l.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}
