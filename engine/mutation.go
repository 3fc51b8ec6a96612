package engine

import (
	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/dom"
)

// OnElAdded registers fn for elements inserted into the document.
func (e *Engine) OnElAdded(fn func(el *html.Node)) {
	e.onElAddeds = append(e.onElAddeds, fn)
}

// OnElRemoved registers fn for initialised elements removed from the
// document. Elements that were moved are not reported.
func (e *Engine) OnElRemoved(fn func(el *html.Node)) {
	e.onElRemoveds = append(e.onElRemoveds, fn)
}

// OnAttributesAdded registers fn for attributes set on an element, grouped
// per element and batch.
func (e *Engine) OnAttributesAdded(fn func(el *html.Node, attrs []html.Attribute)) {
	e.onAttributeAddeds = append(e.onAttributeAddeds, fn)
}

func (e *Engine) StartObservingMutations() {
	e.observer.Observe()
	e.observing = true
}

// StopObservingMutations disconnects the observer. Records that were
// pending are still processed on the next microtask.
func (e *Engine) StopObservingMutations() {
	e.flushObserver()
	e.observer.Disconnect()
	e.observing = false
}

func (e *Engine) flushObserver() {
	records := e.observer.TakeRecords()
	e.queuedMutations = append(e.queuedMutations, func() {
		if len(records) > 0 {
			e.onMutate(records)
		}
	})
	queued := len(e.queuedMutations)
	e.loop.QueueMicrotask(func() {
		if len(e.queuedMutations) != queued {
			return
		}
		for len(e.queuedMutations) > 0 {
			fn := e.queuedMutations[0]
			e.queuedMutations = e.queuedMutations[1:]
			fn()
		}
	})
}

// MutateDom runs fn with the observer disconnected, so writes made by
// directives are not fed back into the pipeline.
func (e *Engine) MutateDom(fn func()) {
	if !e.observing {
		fn()
		return
	}
	e.StopObservingMutations()
	defer e.StartObservingMutations()
	fn()
}

// DeferMutations collects records instead of processing them until
// FlushAndStopDeferringMutations is called.
func (e *Engine) DeferMutations() {
	e.collecting = true
}

func (e *Engine) FlushAndStopDeferringMutations() {
	e.collecting = false
	records := e.deferredMutations
	e.deferredMutations = nil
	e.onMutate(records)
}

func (e *Engine) onMutate(records []dom.Record) {
	if e.collecting {
		e.deferredMutations = append(e.deferredMutations, records...)
		return
	}

	var (
		added      []*html.Node
		removed    []*html.Node
		removedSet = mapset.NewThreadUnsafeSet[*html.Node]()
		addedSet   = mapset.NewThreadUnsafeSet[*html.Node]()

		attrTargets       []*html.Node
		addedAttributes   = map[*html.Node][]html.Attribute{}
		removedAttributes = map[*html.Node][]string{}
	)
	touch := func(el *html.Node) {
		_, a := addedAttributes[el]
		_, r := removedAttributes[el]
		if !a && !r {
			attrTargets = append(attrTargets, el)
		}
	}

	for _, r := range records {
		if s := e.peek(r.Target); s != nil && s.ignoreMutationObserver {
			continue
		}
		switch r.Type {
		case dom.ChildList:
			for _, n := range r.Removed {
				if !dom.IsElement(n) || e.Marker(n) == 0 {
					continue
				}
				if removedSet.Add(n) {
					removed = append(removed, n)
				}
			}
			for _, n := range r.Added {
				if !dom.IsElement(n) {
					continue
				}
				if removedSet.Contains(n) {
					removedSet.Remove(n)
					continue
				}
				if e.Marker(n) != 0 {
					continue
				}
				if addedSet.Add(n) {
					added = append(added, n)
				}
			}
		case dom.Attributes:
			el, name := r.Target, r.AttributeName
			value, has := dom.Attr(el, name)
			touch(el)
			switch {
			case has && !r.HadOldValue:
				addedAttributes[el] = append(addedAttributes[el], html.Attribute{Key: name, Val: value})
			case has:
				removedAttributes[el] = append(removedAttributes[el], name)
				addedAttributes[el] = append(addedAttributes[el], html.Attribute{Key: name, Val: value})
			default:
				removedAttributes[el] = append(removedAttributes[el], name)
			}
		}
	}

	for _, el := range attrTargets {
		if names := removedAttributes[el]; len(names) > 0 {
			e.cleanupAttributes(el, names)
		}
	}
	for _, el := range attrTargets {
		attrs := addedAttributes[el]
		if len(attrs) == 0 || addedSet.Contains(el) {
			continue
		}
		for _, fn := range e.onAttributeAddeds {
			fn(el, attrs)
		}
	}

	for _, n := range removed {
		if !removedSet.Contains(n) {
			continue
		}
		if containedInAny(added, n) {
			continue
		}
		for _, fn := range e.onElRemoveds {
			fn(n)
		}
	}

	for _, n := range added {
		// An earlier added ancestor may already have initialised it.
		if !e.doc.IsConnected(n) || e.Marker(n) != 0 {
			continue
		}
		for _, fn := range e.onElAddeds {
			fn(n)
		}
	}
}

func containedInAny(roots []*html.Node, n *html.Node) bool {
	for _, root := range roots {
		if dom.Contains(root, n) {
			return true
		}
	}
	return false
}
