package loop

import "errors"

type PromiseState int

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

var ErrPromiseRejected = errors.New("loop: promise rejected")

// Promise is a value that settles once. Continuations always run as
// microtasks, even when attached to an already settled promise.
type Promise struct {
	l         *Loop
	state     PromiseState
	value     any
	err       error
	callbacks []func(any, error)
}

type ResolveFunc func(v any)
type RejectFunc func(err error)

func NewPromise(l *Loop) (*Promise, ResolveFunc, RejectFunc) {
	p := &Promise{l: l}
	return p, p.resolve, p.reject
}

// Resolved returns an already fulfilled promise.
func Resolved(l *Loop, v any) *Promise {
	p := &Promise{l: l}
	p.resolve(v)
	return p
}

// RejectedWith returns an already rejected promise.
func RejectedWith(l *Loop, err error) *Promise {
	p := &Promise{l: l}
	p.reject(err)
	return p
}

func (p *Promise) State() PromiseState {
	return p.state
}

func (p *Promise) Result() (any, error) {
	return p.value, p.err
}

// Then registers fn to receive the settled value.
func (p *Promise) Then(fn func(v any, err error)) {
	if p.state != Pending {
		v, err := p.value, p.err
		p.l.QueueMicrotask(func() { fn(v, err) })
		return
	}
	p.callbacks = append(p.callbacks, fn)
}

func (p *Promise) resolve(v any) {
	if p.state != Pending {
		return
	}
	if inner, ok := v.(*Promise); ok && inner != p {
		inner.Then(func(v any, err error) {
			if err != nil {
				p.reject(err)
				return
			}
			p.resolve(v)
		})
		return
	}
	p.state = Fulfilled
	p.value = v
	p.flush()
}

func (p *Promise) reject(err error) {
	if p.state != Pending {
		return
	}
	if err == nil {
		err = ErrPromiseRejected
	}
	p.state = Rejected
	p.err = err
	p.flush()
}

func (p *Promise) flush() {
	callbacks := p.callbacks
	p.callbacks = nil
	v, err := p.value, p.err
	for _, cb := range callbacks {
		cb := cb
		p.l.QueueMicrotask(func() { cb(v, err) })
	}
}
