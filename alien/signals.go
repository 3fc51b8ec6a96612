package alien

type WriteableSignal[T comparable] struct {
	signal
	rs    *ReactiveSystem
	value T
}

func (s *WriteableSignal[T]) isSignalAware() {}

func (s *WriteableSignal[T]) Value() T {
	if s.rs.activeSub != nil {
		s.rs.link(&s.signal, s.rs.activeSub)
	}
	return s.value
}

// Peek reads the value without subscribing the active effect.
func (s *WriteableSignal[T]) Peek() T {
	return s.value
}

func (s *WriteableSignal[T]) SetValue(v T) {
	if s.value == v {
		return
	}
	s.value = v
	subs := s.subs
	if subs != nil {
		s.rs.propagate(subs)
		if s.rs.batchDepth == 0 {
			s.rs.processEffectNotifications()
		}
	}
}

// Subscribers counts the subscribers currently linked to s.
func (s *WriteableSignal[T]) Subscribers() int {
	n := 0
	for l := s.subs; l != nil; l = l.nextSub {
		n++
	}
	return n
}

func Signal[T comparable](rs *ReactiveSystem, initialValue T) *WriteableSignal[T] {
	s := &WriteableSignal[T]{
		rs:    rs,
		value: initialValue,
	}
	return s
}
