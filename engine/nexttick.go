package engine

import (
	"github.com/delaneyj/sparkdom/loop"
)

// NextTick runs fn once the current round of effects has flushed and
// returns a promise resolved right after it.
func (e *Engine) NextTick(fn func()) *loop.Promise {
	e.loop.QueueMicrotask(func() {
		if e.holdingTick {
			return
		}
		e.loop.SetTimeout(func() error {
			e.ReleaseNextTicks()
			return nil
		}, 0)
	})
	p, resolve, _ := loop.NewPromise(e.loop)
	e.tickStack = append(e.tickStack, func() {
		if fn != nil {
			fn()
		}
		resolve(nil)
	})
	return p
}

// HoldNextTicks keeps queued ticks from running until ReleaseNextTicks.
func (e *Engine) HoldNextTicks() {
	e.holdingTick = true
}

func (e *Engine) ReleaseNextTicks() {
	e.holdingTick = false
	for len(e.tickStack) > 0 {
		fn := e.tickStack[0]
		e.tickStack = e.tickStack[1:]
		fn()
	}
}
