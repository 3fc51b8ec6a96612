package engine

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/loop"
	"github.com/delaneyj/sparkdom/scope"
)

// ExpressionError is reported for any expression that fails to parse, run or
// settle.
type ExpressionError struct {
	El         *html.Node
	Expression string
	Err        error
}

func (e *ExpressionError) Error() string {
	tag := ""
	if e.El != nil {
		tag = e.El.Data
	}
	return fmt.Sprintf("expression error on <%s>: %v (expression: %q)", tag, e.Err, e.Expression)
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}

type evalConfig struct {
	scope  scope.Layer
	params []any
	this   any
}

type EvalOption func(*evalConfig)

// WithScope adds vars in front of the element's data stack.
func WithScope(vars map[string]any) EvalOption {
	return func(c *evalConfig) {
		c.scope = scope.Map(vars)
	}
}

// WithParams passes args when the result is a function that gets invoked.
func WithParams(args ...any) EvalOption {
	return func(c *evalConfig) {
		c.params = args
	}
}

// WithContext sets this for the expression.
func WithContext(this any) EvalOption {
	return func(c *evalConfig) {
		c.this = this
	}
}

// Evaluator runs a prepared expression and hands the result to receiver,
// possibly later when the expression awaits.
type Evaluator func(receiver func(any), opts ...EvalOption)

// Evaluate runs expression against el's scope and returns its result.
// Results that only settle later are not waited for.
func (e *Engine) Evaluate(el *html.Node, expression any, opts ...EvalOption) any {
	var result any
	e.EvaluateLater(el, expression)(func(v any) {
		result = v
	}, opts...)
	return result
}

// EvaluateLater prepares expression, a source string or an expr.Callable,
// for repeated evaluation against el's data stack.
func (e *Engine) EvaluateLater(el *html.Node, expression any) Evaluator {
	layers := append([]scope.Layer{e.magicsLayer(el)}, e.ClosestDataStack(el)...)

	switch x := expression.(type) {
	case string:
		return e.stringEvaluator(el, layers, x)
	case expr.Callable:
		return func(receiver func(any), opts ...EvalOption) {
			cfg := newEvalConfig(opts)
			stack := scope.New(append([]scope.Layer{cfg.scope}, layers...)...)
			result, err := x.Call(stack, cfg.params)
			if err != nil {
				e.handleError(el, expression, err)
				return
			}
			e.runIfTypeOfFunction(receiver, result, stack, nil, el, expression)
		}
	default:
		return func(receiver func(any), _ ...EvalOption) {
			if receiver != nil {
				receiver(expression)
			}
		}
	}
}

func newEvalConfig(opts []EvalOption) *evalConfig {
	cfg := &evalConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (e *Engine) stringEvaluator(el *html.Node, layers []scope.Layer, src string) Evaluator {
	prog, err := e.cache.Compile(src)
	if err != nil {
		e.handleError(el, src, err)
		return func(func(any), ...EvalOption) {}
	}
	return func(receiver func(any), opts ...EvalOption) {
		cfg := newEvalConfig(opts)
		stack := scope.New(append([]scope.Layer{cfg.scope}, layers...)...)
		result, err := e.rt.Run(prog, stack, cfg.this)
		if err != nil {
			e.handleError(el, src, err)
			return
		}
		e.runIfTypeOfFunction(receiver, result, stack, cfg.params, el, src)
	}
}

// runIfTypeOfFunction delivers value to receiver. Functions are called with
// the merged scope as this, and promises are waited for.
func (e *Engine) runIfTypeOfFunction(receiver func(any), value, this any, params []any, el *html.Node, expression any) {
	if receiver == nil {
		receiver = func(any) {}
	}
	if fn, ok := value.(expr.Callable); ok && e.autoEvalFunctions {
		result, err := fn.Call(this, params)
		if err != nil {
			e.handleError(el, expression, err)
			return
		}
		if p, ok := result.(*loop.Promise); ok {
			p.Then(func(v any, err error) {
				if err != nil {
					e.handleError(el, expression, err)
					return
				}
				e.runIfTypeOfFunction(receiver, v, this, params, el, expression)
			})
			return
		}
		receiver(result)
		return
	}
	if p, ok := value.(*loop.Promise); ok {
		p.Then(func(v any, err error) {
			if err != nil {
				e.handleError(el, expression, err)
				return
			}
			receiver(v)
		})
		return
	}
	receiver(value)
}

// DontAutoEvaluateFunctions runs fn with function results delivered as is
// instead of being invoked.
func (e *Engine) DontAutoEvaluateFunctions(fn func()) {
	prev := e.autoEvalFunctions
	e.autoEvalFunctions = false
	defer func() { e.autoEvalFunctions = prev }()
	fn()
}

// handleError reports err and rethrows it as an unhandled loop error on the
// next macrotask.
func (e *Engine) handleError(el *html.Node, expression any, err error) {
	xerr := &ExpressionError{El: el, Expression: describeExpression(expression), Err: err}
	if e.onError != nil {
		e.onError(xerr)
	} else {
		tag := ""
		if el != nil {
			tag = el.Data
		}
		e.logger.Warn("expression error", "el", tag, "expression", xerr.Expression, "err", err)
	}
	e.loop.SetTimeout(func() error {
		return xerr
	}, 0)
}

func describeExpression(expression any) string {
	switch x := expression.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprintf("<%T>", x)
	}
}
