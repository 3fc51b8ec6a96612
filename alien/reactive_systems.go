package alien

type OnErrorFunc func(from SignalAware, err error)

type ReactiveSystem struct {
	batchDepth    int
	activeSub     *signal
	activeScope   *signal
	queuedEffects []*EffectRunner

	onError    OnErrorFunc
	pauseStack []*signal
}

type SignalAware interface {
	isSignalAware()
}

func CreateReactiveSystem(onError OnErrorFunc) *ReactiveSystem {
	rs := &ReactiveSystem{onError: onError}

	return rs
}

func (rs *ReactiveSystem) StartBatch() {
	rs.batchDepth++
}

func (rs *ReactiveSystem) EndBatch() {
	rs.batchDepth--
	if rs.batchDepth == 0 {
		rs.processEffectNotifications()
	}
}

func (rs *ReactiveSystem) Batch(cb func()) {
	rs.StartBatch()
	defer rs.EndBatch()
	cb()
}

func (rs *ReactiveSystem) PauseTracking() {
	rs.pauseStack = append(rs.pauseStack, rs.activeSub)
	rs.activeSub = nil
}

func (rs *ReactiveSystem) ResumeTracking() {
	lastIdx := len(rs.pauseStack) - 1
	rs.activeSub = rs.pauseStack[lastIdx]
	rs.pauseStack = rs.pauseStack[:lastIdx]
}

// Tracking reports whether a read right now would be recorded.
func (rs *ReactiveSystem) Tracking() bool {
	return rs.activeSub != nil
}

// Links a given dependency and subscriber if they are not already linked.
//
// Links are reused in the order the subscriber read them on its previous
// run, so a run that reads the same dependencies allocates nothing.
func (rs *ReactiveSystem) link(dep, sub *signal) *link {
	if sub.flags&fStopped != 0 {
		return nil
	}
	currentDep := sub.depsTail
	if currentDep != nil && currentDep.dep == dep {
		return nil
	}

	var nextDep *link
	if currentDep != nil {
		nextDep = currentDep.nextDep
	} else {
		nextDep = sub.deps
	}
	if nextDep != nil && nextDep.dep == dep {
		sub.depsTail = nextDep
		return nil
	}

	depLastSub := dep.subsTail
	if depLastSub != nil && depLastSub.sub == sub && rs.isValidLink(depLastSub, sub) {
		return nil
	}

	return rs.linkNewDep(dep, sub, nextDep, currentDep)
}

// Verifies whether the given link is part of sub's chain between its first
// dependency and depsTail.
func (rs *ReactiveSystem) isValidLink(checkLink *link, sub *signal) bool {
	depsTail := sub.depsTail
	if depsTail != nil {
		link := sub.deps
		for {
			if link == checkLink {
				return true
			}
			if link == depsTail {
				break
			}
			link = link.nextDep

			if link == nil {
				break
			}
		}
	}
	return false
}

// Creates a link and attaches it to the end of dep's subscribers and after
// depsTail in sub's dependencies.
func (rs *ReactiveSystem) linkNewDep(dep, sub *signal, nextDep, depsTail *link) *link {
	newLink := &link{
		dep:     dep,
		sub:     sub,
		nextDep: nextDep,
	}

	if depsTail == nil {
		sub.deps = newLink
	} else {
		depsTail.nextDep = newLink
	}

	if dep.subs == nil {
		dep.subs = newLink
	} else {
		oldTail := dep.subsTail
		newLink.prevSub = oldTail
		oldTail.nextSub = newLink
	}

	sub.depsTail = newLink
	dep.subsTail = newLink

	return newLink
}

// Marks every subscriber from link onwards dirty and queues the effects
// among them. Subscribers that are running, already dirty or stopped are
// left alone, so an effect never queues itself.
func (rs *ReactiveSystem) propagate(link *link) {
	for ; link != nil; link = link.nextSub {
		sub := link.sub
		subFlags := sub.flags
		if subFlags&(fTracking|fDirty|fStopped) != 0 {
			continue
		}
		sub.flags = subFlags | fDirty | fNotified
		if subFlags&fEffect != 0 {
			rs.queuedEffects = append(rs.queuedEffects, mustEffect(sub))
		}
	}
}

func mustEffect(s *signal) *EffectRunner {
	e, ok := s.ref.(*EffectRunner)
	if !ok {
		panic("alien: subscriber is not an effect")
	}
	return e
}

// Prepares sub to record a fresh set of dependencies.
func (rs *ReactiveSystem) startTracking(sub *signal) {
	sub.depsTail = nil
	sub.flags = sub.flags&^(fNotified|fDirty) | fTracking
}

// Unlinks every dependency sub did not read again since startTracking.
func (rs *ReactiveSystem) endTracking(sub *signal) {
	depsTail := sub.depsTail
	if depsTail != nil {
		nextDep := depsTail.nextDep
		if nextDep != nil {
			rs.clearTracking(nextDep)
			depsTail.nextDep = nil
		}
	} else {
		deps := sub.deps
		if deps != nil {
			rs.clearTracking(deps)
		}
		sub.deps = nil
	}
	sub.flags &^= fTracking
}

// Detaches each link in the chain from its dependency's subscriber list.
func (rs *ReactiveSystem) clearTracking(link *link) {
	for link != nil {
		dep := link.dep
		nextDep := link.nextDep
		nextSub := link.nextSub
		prevSub := link.prevSub

		if nextSub != nil {
			nextSub.prevSub = prevSub
		} else {
			dep.subsTail = prevSub
		}

		if prevSub != nil {
			prevSub.nextSub = nextSub
		} else {
			dep.subs = nextSub
		}

		link.dep, link.sub = nil, nil
		link.prevSub, link.nextSub, link.nextDep = nil, nil, nil
		link = nextDep
	}
}

// Processes queued effect notifications once the outermost batch ends.
func (rs *ReactiveSystem) processEffectNotifications() {
	for len(rs.queuedEffects) > 0 {
		effect := rs.queuedEffects[0]
		rs.queuedEffects = rs.queuedEffects[1:]
		effect.flags &^= fNotified
		rs.notifyEffect(effect)
	}
	rs.queuedEffects = nil
}
