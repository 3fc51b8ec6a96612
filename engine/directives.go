package engine

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/reactivity"
)

// DefaultSlot is where directives without an explicit position sort.
const DefaultSlot = "DEFAULT"

var defaultDirectiveOrder = []string{
	"ignore", "ref", "data", "id", "anchor", "bind", "init", "for", "model",
	"modelable", "transition", "show", "if", DefaultSlot, "teleport",
}

// Directive is one parsed directive attribute. For x-on:click.prevent="go()"
// Type is "on", Value "click", Modifiers ["prevent"] and Expression "go()".
type Directive struct {
	Type       string
	Value      string
	Modifiers  []string
	Expression string
	Original   string
	Name       string
}

func (d Directive) HasModifier(m string) bool {
	return slices.Contains(d.Modifiers, m)
}

// ModifierAfter returns the modifier following m, e.g. the "500ms" in
// .debounce.500ms.
func (d Directive) ModifierAfter(m string) (string, bool) {
	i := slices.Index(d.Modifiers, m)
	if i < 0 || i+1 >= len(d.Modifiers) {
		return "", false
	}
	return d.Modifiers[i+1], true
}

// DirectiveHandler binds one directive to an element. Returning an error
// stops the element's remaining directives from being applied.
type DirectiveHandler func(el *html.Node, d Directive, u *Utilities) error

type DirectiveRegistration struct {
	e       *Engine
	name    string
	handler DirectiveHandler
	inline  DirectiveHandler
}

// Directive registers handler for prefix+name attributes, replacing any
// previous handler for name.
func (e *Engine) Directive(name string, handler DirectiveHandler) *DirectiveRegistration {
	r := &DirectiveRegistration{e: e, name: name, handler: handler}
	e.handlers[name] = r
	return r
}

func (r *DirectiveRegistration) Name() string {
	return r.name
}

// Inline sets a variant that runs immediately while the tree is walked,
// before deferred handlers run.
func (r *DirectiveRegistration) Inline(fn DirectiveHandler) *DirectiveRegistration {
	r.inline = fn
	return r
}

// Before positions the directive right before other in execution order.
func (r *DirectiveRegistration) Before(other string) *DirectiveRegistration {
	return r.place(other, 0)
}

// After positions the directive right after other in execution order.
func (r *DirectiveRegistration) After(other string) *DirectiveRegistration {
	return r.place(other, 1)
}

func (r *DirectiveRegistration) place(other string, offset int) *DirectiveRegistration {
	e := r.e
	if _, ok := e.handlers[other]; !ok && !slices.Contains(e.order, other) {
		e.logger.Warn("cannot find directive to position against", "directive", r.name, "other", other)
		return r
	}
	if i := slices.Index(e.order, r.name); i >= 0 {
		e.order = slices.Delete(e.order, i, i+1)
	}
	pos := slices.Index(e.order, other)
	if pos < 0 {
		pos = slices.Index(e.order, DefaultSlot)
		offset = 0
	}
	e.order = slices.Insert(e.order, pos+offset, r.name)
	return r
}

// DirectiveOrder lists directive names in the order they run on an element.
// Registered directives without a position share the DEFAULT slot and run
// alphabetically by attribute name.
func (e *Engine) DirectiveOrder() []string {
	var out []string
	var unplaced []string
	for name := range e.handlers {
		if !slices.Contains(e.order, name) {
			unplaced = append(unplaced, name)
		}
	}
	slices.Sort(unplaced)
	for _, name := range e.order {
		if name == DefaultSlot {
			out = append(out, unplaced...)
			continue
		}
		if _, ok := e.handlers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (e *Engine) priority(typ string) int {
	if i := slices.Index(e.order, typ); i >= 0 {
		return i
	}
	return slices.Index(e.order, DefaultSlot)
}

// AttributeTransform rewrites an attribute before it is parsed.
type AttributeTransform func(name, value string) (string, string)

// MapAttributes adds an attribute transform, applied in registration order.
func (e *Engine) MapAttributes(fn AttributeTransform) {
	e.attributeTransforms = append(e.attributeTransforms, fn)
}

// StartingWith rewrites attribute names beginning with subject to start
// with replacement instead.
func StartingWith(subject, replacement string) AttributeTransform {
	return func(name, value string) (string, string) {
		if strings.HasPrefix(name, subject) {
			name = replacement + strings.TrimPrefix(name, subject)
		}
		return name, value
	}
}

var valueRegex = regexp.MustCompile(`:([a-zA-Z0-9\-_:]+)`)

func typeRegex(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `([^:^.]+)\b`)
}

// ParseDirective parses a single attribute. ok is false for attributes that
// are not directives.
func (e *Engine) ParseDirective(name, value string) (Directive, bool) {
	original := name
	for _, transform := range e.attributeTransforms {
		name, value = transform(name, value)
	}
	m := e.typeRe.FindStringSubmatch(name)
	if m == nil {
		return Directive{}, false
	}
	d := Directive{
		Type:       m[1],
		Modifiers:  parseModifiers(name),
		Expression: value,
		Original:   original,
		Name:       name,
	}
	if vm := valueRegex.FindStringSubmatch(name); vm != nil {
		d.Value = vm[1]
	}
	return d, true
}

// parseModifiers returns the dot separated segments after the last closing
// bracket, so dots inside x-bind:[a.b] are not modifiers.
func parseModifiers(name string) []string {
	tail := name
	if i := strings.LastIndexByte(name, ']'); i >= 0 {
		tail = name[i+1:]
	}
	parts := strings.Split(tail, ".")
	if len(parts) < 2 {
		return nil
	}
	mods := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p != "" {
			mods = append(mods, p)
		}
	}
	return mods
}

// Directives parses el's directive attributes and returns them in execution
// order: by directive priority, then alphabetically by attribute name.
func (e *Engine) Directives(el *html.Node) []Directive {
	return e.parseDirectives(el.Attr, "")
}

func (e *Engine) parseDirectives(attrs []html.Attribute, originalOverride string) []Directive {
	var out []Directive
	for _, a := range attrs {
		if a.Namespace != "" {
			continue
		}
		d, ok := e.ParseDirective(a.Key, a.Val)
		if !ok {
			continue
		}
		if originalOverride != "" {
			d.Original = originalOverride
		}
		out = append(out, d)
	}
	slices.SortStableFunc(out, func(a, b Directive) int {
		if c := cmp.Compare(e.priority(a.Type), e.priority(b.Type)); c != 0 {
			return c
		}
		return cmp.Compare(a.Original, b.Original)
	})
	return out
}

// DirectiveError wraps a failure from a directive handler.
type DirectiveError struct {
	El        *html.Node
	Directive Directive
	Err       error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("directive %s on <%s>: %v", e.Directive.Original, e.El.Data, e.Err)
}

func (e *DirectiveError) Unwrap() error {
	return e.Err
}

type deferredHandler struct {
	el  *html.Node
	run func() error
}

type handlerStack struct {
	handlers []deferredHandler
	failed   map[*html.Node]bool
	errs     []error
}

func (s *handlerStack) fail(el *html.Node, err error) {
	if s.failed == nil {
		s.failed = map[*html.Node]bool{}
	}
	s.failed[el] = true
	s.errs = append(s.errs, err)
}

// directivesFor returns one handle per directive attribute in attrs. A handle
// runs the inline variant immediately and either defers the handler, when
// a tree is being initialised, or runs it.
func (e *Engine) directivesFor(el *html.Node, attrs []html.Attribute, originalOverride string) []func() error {
	directives := e.parseDirectives(attrs, originalOverride)
	handles := make([]func() error, 0, len(directives))
	for _, d := range directives {
		handles = append(handles, e.directiveHandle(el, d))
	}
	return handles
}

func (e *Engine) directiveHandle(el *html.Node, d Directive) func() error {
	var handler, inline DirectiveHandler
	if r, ok := e.handlers[d.Type]; ok {
		handler, inline = r.handler, r.inline
	}
	u := e.newUtilities(el)
	e.OnAttributeRemoved(el, d.Original, u.runCleanups)

	return func() error {
		if ignore, ignoreSelf := e.Ignored(el); ignore || ignoreSelf {
			return nil
		}
		wrap := func(err error) error {
			if err == nil {
				return nil
			}
			return &DirectiveError{El: el, Directive: d, Err: err}
		}
		if inline != nil {
			if err := inline(el, d, u); err != nil {
				return wrap(err)
			}
		}
		if handler == nil {
			return nil
		}
		run := func() error { return wrap(handler(el, d, u)) }
		if stack := e.handlerStack; stack != nil {
			stack.handlers = append(stack.handlers, deferredHandler{el: el, run: run})
			return nil
		}
		return run()
	}
}

// Utilities are handed to directive handlers. Effects and cleanups
// registered through them are released when the element is torn down or
// the directive attribute is removed.
type Utilities struct {
	Engine   *Engine
	El       *html.Node
	effects  []*reactivity.EffectRunner
	cleanups []func()
}

func (e *Engine) newUtilities(el *html.Node) *Utilities {
	return &Utilities{Engine: e, El: el}
}

// Effect runs fn as an effect owned by the element.
func (u *Utilities) Effect(fn func()) *reactivity.EffectRunner {
	runner := u.Engine.ElementEffect(u.El, fn)
	u.effects = append(u.effects, runner)
	return runner
}

// Cleanup registers fn to run when the directive is torn down.
func (u *Utilities) Cleanup(fn func()) {
	u.cleanups = append(u.cleanups, fn)
}

func (u *Utilities) Evaluate(expression any, opts ...EvalOption) any {
	return u.Engine.Evaluate(u.El, expression, opts...)
}

func (u *Utilities) EvaluateLater(expression any) Evaluator {
	return u.Engine.EvaluateLater(u.El, expression)
}

func (u *Utilities) runCleanups() {
	for _, runner := range u.effects {
		u.Engine.releaseElementEffect(u.El, runner)
	}
	u.effects = nil
	cleanups := u.cleanups
	u.cleanups = nil
	for _, fn := range cleanups {
		fn()
	}
}

// ElementEffect runs fn as an effect tracked on el so tearing el down
// releases it, even while it waits in the scheduler.
func (e *Engine) ElementEffect(el *html.Node, fn func()) *reactivity.EffectRunner {
	runner := e.Effect(fn)
	if !runner.Active() {
		return runner
	}
	s := e.state(el)
	if s.effects == nil {
		s.effects = mapset.NewThreadUnsafeSet[*reactivity.EffectRunner]()
	}
	s.effects.Add(runner)
	return runner
}

func (e *Engine) releaseElementEffect(el *html.Node, runner *reactivity.EffectRunner) {
	if s := e.peek(el); s != nil && s.effects != nil {
		s.effects.Remove(runner)
	}
	reactivity.Release(e.sys, runner)
}

// EffectCount reports how many live effects el owns.
func (e *Engine) EffectCount(el *html.Node) int {
	s := e.peek(el)
	if s == nil || s.effects == nil {
		return 0
	}
	return s.effects.Cardinality()
}
