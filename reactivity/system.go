// Package reactivity provides fine grained dependency tracking over reactive
// objects and arrays, effects that re-run through a microtask batching
// scheduler, and watchers built on top of them.
package reactivity

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/delaneyj/sparkdom/alien"
	"github.com/delaneyj/sparkdom/loop"
)

type System struct {
	loop      *loop.Loop
	scheduler *Scheduler
	rs        *alien.ReactiveSystem

	// notified collects effects marked dirty by the current write.
	notified []*EffectRunner

	schedulingDisabled int
	effectSeq          uint64
}

func NewSystem(l *loop.Loop) *System {
	return &System{
		loop:      l,
		scheduler: NewScheduler(l.QueueMicrotask),
		rs: alien.CreateReactiveSystem(func(from alien.SignalAware, err error) {
			panic(fmt.Errorf("reactivity: %w", err))
		}),
	}
}

func (sys *System) Loop() *loop.Loop {
	return sys.loop
}

func (sys *System) Scheduler() *Scheduler {
	return sys.scheduler
}

func (sys *System) PauseTracking() {
	sys.rs.PauseTracking()
}

func (sys *System) ResumeTracking() {
	sys.rs.ResumeTracking()
}

// Untracked runs fn without registering dependencies on the active effect.
func Untracked(sys *System, fn func()) {
	sys.PauseTracking()
	defer sys.ResumeTracking()
	fn()
}

// DisableEffectScheduling runs fn with triggered effects executed
// synchronously instead of being queued.
func DisableEffectScheduling(sys *System, fn func()) {
	sys.schedulingDisabled++
	defer func() { sys.schedulingDisabled-- }()
	fn()
}

// Scope runs fn and returns a function that releases every effect created
// while fn ran, including effects created by those effects.
func Scope(sys *System, fn func()) (stop func()) {
	stopScope := alien.EffectScope(sys.rs, func() error {
		fn()
		return nil
	})
	return func() {
		_ = stopScope()
	}
}

// dep is a version counter. Reading it subscribes the active effect,
// bumping it notifies every subscriber.
type dep = alien.WriteableSignal[uint64]

func (sys *System) newDep() *dep {
	return alien.Signal[uint64](sys.rs, 0)
}

func (sys *System) track(d *dep) {
	if d == nil || !sys.rs.Tracking() {
		return
	}
	d.Value()
}

func (sys *System) trigger(d *dep) {
	if d == nil {
		return
	}
	sys.rs.Batch(func() {
		d.SetValue(d.Peek() + 1)
	})

	notified := sys.notified
	sys.notified = nil
	slices.SortFunc(notified, func(a, b *EffectRunner) int {
		return cmp.Compare(a.id, b.id)
	})
	for _, e := range notified {
		if !e.active {
			continue
		}
		if sys.schedulingDisabled > 0 {
			e.run()
			continue
		}
		sys.scheduler.Schedule(e.job)
	}
}

// EffectRunner is a reactive computation. It re-runs whenever something it
// read during its last run changes.
type EffectRunner struct {
	id     uint64
	sys    *System
	fn     func()
	runner *alien.EffectRunner
	job    *Job
	active bool
	runs   int
}

// Effect runs fn once to collect its dependencies and returns the handle used
// to release it.
func Effect(sys *System, fn func()) *EffectRunner {
	sys.effectSeq++
	e := &EffectRunner{
		id:     sys.effectSeq,
		sys:    sys,
		fn:     fn,
		active: true,
	}
	e.job = NewJob(e.run)
	e.runner = alien.ScheduledEffect(sys.rs, func() error {
		e.runs++
		e.fn()
		return nil
	}, func(*alien.EffectRunner) {
		sys.notified = append(sys.notified, e)
	})
	e.runner.OnStop(e.deactivate)
	if !e.active {
		e.runner.Stop()
	}
	return e
}

func (e *EffectRunner) Job() *Job {
	return e.job
}

func (e *EffectRunner) Active() bool {
	return e.active
}

// Runs counts how many times the effect body executed.
func (e *EffectRunner) Runs() int {
	return e.runs
}

func (e *EffectRunner) run() {
	if !e.active {
		return
	}
	e.runner.Run()
}

func (e *EffectRunner) deactivate() {
	e.active = false
	e.sys.scheduler.Dequeue(e.job)
}

// Release permanently stops e. If e is queued but has not run yet in the
// current flush it is dropped from the queue.
func Release(sys *System, e *EffectRunner) {
	if e == nil || !e.active {
		return
	}
	if e.runner == nil {
		// released from inside its own first run
		e.deactivate()
		return
	}
	e.runner.Stop()
}
