package alien

type ErrFn func() error

type EffectRunner struct {
	signal
	rs     *ReactiveSystem
	fn     ErrFn
	notify func(*EffectRunner)
	onStop []func()
}

func (e *EffectRunner) isSignalAware() {}

// Effect runs fn now and again, synchronously, whenever a signal it read
// changes.
func Effect(rs *ReactiveSystem, fn ErrFn) *EffectRunner {
	return newEffect(rs, fn, nil)
}

// ScheduledEffect runs fn now. Later changes call notify instead of
// re-running fn; the owner decides when to call Run. notify is called once
// per change until the effect runs again.
func ScheduledEffect(rs *ReactiveSystem, fn ErrFn, notify func(*EffectRunner)) *EffectRunner {
	return newEffect(rs, fn, notify)
}

func newEffect(rs *ReactiveSystem, fn ErrFn, notify func(*EffectRunner)) *EffectRunner {
	e := &EffectRunner{
		rs:     rs,
		fn:     fn,
		notify: notify,
		signal: signal{
			flags: fEffect,
		},
	}
	e.ref = e

	if rs.activeScope != nil {
		rs.link(&e.signal, rs.activeScope)
	}
	e.Run()

	return e
}

// Run executes the effect and records what it reads.
func (e *EffectRunner) Run() {
	if e.flags&fStopped != 0 {
		return
	}
	rs := e.rs
	prevSub := rs.activeSub
	rs.activeSub = &e.signal
	rs.startTracking(&e.signal)
	defer func() {
		rs.endTracking(&e.signal)
		rs.activeSub = prevSub
	}()
	if err := e.fn(); err != nil {
		if rs.onError != nil {
			rs.onError(e, err)
		}
	}
}

// OnStop registers fn to run when the effect is stopped.
func (e *EffectRunner) OnStop(fn func()) {
	if e.flags&fStopped != 0 {
		fn()
		return
	}
	e.onStop = append(e.onStop, fn)
}

// Stop unlinks the effect from everything it read. A scope also stops every
// effect created inside it.
func (e *EffectRunner) Stop() {
	if e.flags&fStopped != 0 {
		return
	}
	rs := e.rs
	var owned []*EffectRunner
	if e.flags&fEffectScope != 0 {
		for l := e.deps; l != nil; l = l.nextDep {
			owned = append(owned, mustEffect(l.dep))
		}
	}
	rs.startTracking(&e.signal)
	rs.endTracking(&e.signal)
	e.flags = e.flags&^(fDirty|fNotified) | fStopped

	for _, child := range owned {
		child.Stop()
	}
	onStop := e.onStop
	e.onStop = nil
	for _, fn := range onStop {
		fn()
	}
}

func (e *EffectRunner) Stopped() bool {
	return e.flags&fStopped != 0
}

// Dirty reports whether a change has been seen since the last run.
func (e *EffectRunner) Dirty() bool {
	return e.flags&fDirty != 0
}

func (rs *ReactiveSystem) notifyEffect(e *EffectRunner) {
	if e.flags&fStopped != 0 {
		return
	}
	if e.notify != nil {
		e.notify(e)
		return
	}
	e.Run()
}

// EffectScope runs scopedFn and collects every effect created meanwhile,
// at any depth. The returned function stops them all.
func EffectScope(rs *ReactiveSystem, scopedFn ErrFn) (stopScope ErrFn) {
	e := &EffectRunner{
		rs: rs,
		signal: signal{
			flags: fEffectScope,
		},
	}
	e.ref = e
	if rs.activeScope != nil {
		rs.link(&e.signal, rs.activeScope)
	}
	rs.runEffectScope(e, scopedFn)
	return func() error {
		e.Stop()
		return nil
	}
}

func (rs *ReactiveSystem) runEffectScope(e *EffectRunner, scopedFn ErrFn) {
	prevScope := rs.activeScope
	rs.activeScope = &e.signal
	rs.startTracking(&e.signal)
	defer func() {
		rs.activeScope = prevScope
		rs.endTracking(&e.signal)
	}()

	if err := scopedFn(); err != nil {
		if rs.onError != nil {
			rs.onError(e, err)
		}
	}
}
