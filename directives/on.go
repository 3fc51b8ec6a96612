package directives

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/loop"
)

const defaultWait = 250 * time.Millisecond

func onDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	var evaluate engine.Evaluator
	if strings.TrimSpace(d.Expression) != "" {
		evaluate = u.EvaluateLater(d.Expression)
	}
	remove := listen(u.Engine, el, d.Value, d.Modifiers, func(ev *engine.Event) {
		if evaluate == nil {
			return
		}
		evaluate(nil, engine.WithScope(map[string]any{"$event": ev}), engine.WithParams(ev))
	})
	u.Cleanup(remove)
	return nil
}

// listen attaches handler for event on el with modifiers applied.
func listen(e *engine.Engine, el *html.Node, event string, modifiers []string, handler func(*engine.Event)) (remove func()) {
	has := func(m string) bool {
		return slices.Contains(modifiers, m)
	}

	target := el
	if has("window") || has("document") || has("outside") {
		target = e.Document().Root
	}

	next := handler
	if has("debounce") {
		next = debounce(e.Loop(), next, waitFor(modifiers, "debounce"))
	}
	if has("throttle") {
		next = throttle(e.Loop(), next, waitFor(modifiers, "throttle"))
	}

	remove = e.AddEventListener(target, event, func(ev *engine.Event) {
		if has("self") && ev.Target != el {
			return
		}
		if has("outside") {
			if !e.Document().IsConnected(el) || dom.Contains(el, ev.Target) {
				return
			}
		}
		if has("prevent") {
			ev.PreventDefault()
		}
		if has("stop") {
			ev.StopPropagation()
		}
		if has("once") {
			remove()
		}
		next(ev)
	})
	return remove
}

// waitFor reads the duration following modifier, as in .debounce.500ms.
// Bare numbers are milliseconds.
func waitFor(modifiers []string, modifier string) time.Duration {
	for i, m := range modifiers {
		if m != modifier || i+1 >= len(modifiers) {
			continue
		}
		raw := modifiers[i+1]
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
		if n, err := strconv.Atoi(raw); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return defaultWait
}

func debounce(l *loop.Loop, fn func(*engine.Event), wait time.Duration) func(*engine.Event) {
	var timer uint64
	return func(ev *engine.Event) {
		l.ClearTimeout(timer)
		timer = l.SetTimeout(func() error {
			fn(ev)
			return nil
		}, wait)
	}
}

func throttle(l *loop.Loop, fn func(*engine.Event), wait time.Duration) func(*engine.Event) {
	waiting := false
	return func(ev *engine.Event) {
		if waiting {
			return
		}
		fn(ev)
		waiting = true
		l.SetTimeout(func() error {
			waiting = false
			return nil
		}, wait)
	}
}
