package engine

import (
	"slices"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/expr"
)

// Event is dispatched through the element tree. Expressions see it as an
// object with type, detail, target and the preventDefault and
// stopPropagation methods.
type Event struct {
	Type          string
	Detail        any
	Bubbles       bool
	Target        *html.Node
	CurrentTarget *html.Node

	defaultPrevented bool
	stopped          bool
}

// NewEvent returns a bubbling event.
func NewEvent(typ string, detail any) *Event {
	return &Event{Type: typ, Detail: detail, Bubbles: true}
}

func (ev *Event) PreventDefault() {
	ev.defaultPrevented = true
}

func (ev *Event) DefaultPrevented() bool {
	return ev.defaultPrevented
}

func (ev *Event) StopPropagation() {
	ev.stopped = true
}

func (ev *Event) Get(key string) (any, bool) {
	switch key {
	case "type":
		return ev.Type, true
	case "detail":
		return ev.Detail, true
	case "bubbles":
		return ev.Bubbles, true
	case "target":
		return ev.Target, true
	case "currentTarget":
		return ev.CurrentTarget, true
	case "defaultPrevented":
		return ev.defaultPrevented, true
	case "preventDefault":
		return expr.Func(func(any, []any) (any, error) {
			ev.PreventDefault()
			return nil, nil
		}), true
	case "stopPropagation":
		return expr.Func(func(any, []any) (any, error) {
			ev.StopPropagation()
			return nil, nil
		}), true
	}
	return nil, false
}

// Set only accepts detail.
func (ev *Event) Set(key string, v any) {
	if key == "detail" {
		ev.Detail = v
	}
}

func (ev *Event) Keys() []string {
	return []string{"type", "detail", "bubbles", "target", "currentTarget", "defaultPrevented"}
}

type listener struct {
	typ     string
	fn      func(*Event)
	removed bool
}

// AddEventListener calls fn for events of type typ reaching el. The returned
// func removes the listener.
func (e *Engine) AddEventListener(el *html.Node, typ string, fn func(*Event)) (remove func()) {
	l := &listener{typ: typ, fn: fn}
	e.listeners[el] = append(e.listeners[el], l)
	return func() {
		l.removed = true
		e.listeners[el] = slices.DeleteFunc(e.listeners[el], func(other *listener) bool {
			return other == l
		})
		if len(e.listeners[el]) == 0 {
			delete(e.listeners, el)
		}
	}
}

// Dispatch delivers ev to el and, when it bubbles, to every ancestor up to
// the document. It reports false when a listener prevented the default.
func (e *Engine) Dispatch(el *html.Node, ev *Event) bool {
	ev.Target = el
	for n := el; n != nil; n = n.Parent {
		ev.CurrentTarget = n
		for _, l := range slices.Clone(e.listeners[n]) {
			if l.removed || l.typ != ev.Type {
				continue
			}
			l.fn(ev)
		}
		if ev.stopped || !ev.Bubbles {
			break
		}
	}
	ev.CurrentTarget = nil
	return !ev.defaultPrevented
}
