package directives

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/scope"
)

func registerData(e *engine.Engine) {
	e.Directive("data", dataDirective)
	e.InterceptClone(func(from, to *html.Node) {
		if stack := e.DataStack(from); stack != nil {
			e.SetDataStack(to, stack)
			e.SetHasState(to)
		}
	})
}

// dataDirective evaluates the component state, makes it reactive and puts
// it on top of el's data stack. init and destroy methods on the state run
// when the element is initialised and torn down.
func dataDirective(el *html.Node, d engine.Directive, u *engine.Utilities) error {
	e := u.Engine
	if e.IsCloning() && e.HasState(el) {
		return nil
	}

	expression := d.Expression
	if strings.TrimSpace(expression) == "" {
		expression = "{}"
	}
	value := u.Evaluate(expression, engine.WithScope(e.DataProviders()))
	if value == nil || value == true {
		value = expr.NewRecord()
	}
	layer, ok := e.Reactive(value).(scope.Layer)
	if !ok {
		return fmt.Errorf("%w, got %s", ErrDataNotObject, expr.TypeOf(value))
	}

	undo := e.AddScopeToNode(el, layer, nil)
	if init, ok := layer.Get("init"); ok && init != nil {
		u.Evaluate(init)
	}
	u.Cleanup(func() {
		if destroy, ok := layer.Get("destroy"); ok && destroy != nil {
			u.Evaluate(destroy)
		}
		undo()
	})
	return nil
}
