package expr

import (
	"fmt"

	"github.com/delaneyj/sparkdom/loop"
)

// coroutine runs an async body on its own goroutine. Control is handed back
// and forth over unbuffered channels so only one side ever runs at a time:
// the body yields a pending promise and the loop side resumes it from that
// promise's continuation.
type coroutine struct {
	yield  chan *loop.Promise
	resume chan settlement
	done   chan settlement
}

type settlement struct {
	value any
	err   error
}

// runAsync starts body and runs it until it finishes or awaits a pending
// promise. The returned promise is already settled when body never had to
// wait.
func (rt *Runtime) runAsync(body func(co *coroutine) (any, error)) *loop.Promise {
	p, resolve, reject := loop.NewPromise(rt.loop)
	co := &coroutine{
		yield:  make(chan *loop.Promise),
		resume: make(chan settlement),
		done:   make(chan settlement, 1),
	}

	go func() {
		var s settlement
		defer func() {
			if r := recover(); r != nil {
				s = settlement{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
			co.done <- s
		}()
		s.value, s.err = body(co)
	}()

	var step func()
	step = func() {
		select {
		case pending := <-co.yield:
			pending.Then(func(v any, err error) {
				co.resume <- settlement{value: v, err: err}
				step()
			})
		case s := <-co.done:
			if s.err != nil {
				reject(s.err)
				return
			}
			resolve(s.value)
		}
	}
	step()
	return p
}

// await suspends the coroutine until v settles. Values that are not
// promises, and promises that already settled, return straight away.
func (co *coroutine) await(v any) (any, error) {
	p, ok := v.(*loop.Promise)
	if !ok {
		return v, nil
	}
	if p.State() != loop.Pending {
		return p.Result()
	}
	co.yield <- p
	s := <-co.resume
	return s.value, s.err
}
