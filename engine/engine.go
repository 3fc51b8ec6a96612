// Package engine binds attribute directives to a live document. It walks
// the DOM, runs directive handlers with element bound utilities, evaluates
// attribute expressions against the element's data stack and keeps the
// document observed so added and removed elements are initialised and torn
// down.
package engine

import (
	"errors"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/expr"
	"github.com/delaneyj/sparkdom/loop"
	"github.com/delaneyj/sparkdom/reactivity"
)

var (
	ErrNoDocument     = errors.New("engine: no document")
	ErrAlreadyStarted = errors.New("engine: already started")
)

const DefaultPrefix = "x-"

type Option func(*Engine)

// WithLoop runs the engine on l instead of a fresh loop.
func WithLoop(l *loop.Loop) Option {
	return func(e *Engine) {
		e.loop = l
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithPrefix changes the directive attribute prefix, "x-" by default.
func WithPrefix(prefix string) Option {
	return func(e *Engine) {
		e.prefix = prefix
	}
}

// WithErrorHandler receives expression errors in place of the warning log.
// They are still rethrown on the loop afterwards.
func WithErrorHandler(fn func(*ExpressionError)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

type Engine struct {
	id      uuid.UUID
	doc     *dom.Document
	loop    *loop.Loop
	sys     *reactivity.System
	rt      *expr.Runtime
	cache   *expr.Cache
	logger  *slog.Logger
	prefix  string
	typeRe  *regexp.Regexp
	onError func(*ExpressionError)
	started bool

	states    map[*html.Node]*elementState
	teleports *teleportRegistry
	listeners map[*html.Node][]*listener

	// directives
	handlers            map[string]*DirectiveRegistration
	order               []string
	attributeTransforms []AttributeTransform
	rootSelectors       []func() string
	initSelectors       []func() string
	initInterceptors    []func(el *html.Node, skip func())
	selectorCache       map[string]*dom.Selector
	markerSeq           int
	handlerStack        *handlerStack

	// mutations
	observer          *dom.Observer
	observing         bool
	queuedMutations   []func()
	collecting        bool
	deferredMutations []dom.Record
	onElAddeds        []func(*html.Node)
	onElRemoveds      []func(*html.Node)
	onAttributeAddeds []func(*html.Node, []html.Attribute)

	// evaluation
	magics            map[string]MagicFactory
	magicOrder        []string
	dataProviders     map[string]expr.Callable
	autoEvalFunctions bool

	// cloning
	cloneInterceptors []func(from, to *html.Node)
	cloning           int

	tickStack   []func()
	holdingTick bool
	idCounters  map[string]int
}

// New builds an engine over doc. Nothing is observed or initialised until
// Start is called.
func New(doc *dom.Document, opts ...Option) (*Engine, error) {
	if doc == nil || doc.Root == nil {
		return nil, ErrNoDocument
	}
	e := &Engine{
		id:                uuid.New(),
		doc:               doc,
		logger:            slog.Default(),
		prefix:            DefaultPrefix,
		states:            map[*html.Node]*elementState{},
		teleports:         newTeleportRegistry(),
		listeners:         map[*html.Node][]*listener{},
		handlers:          map[string]*DirectiveRegistration{},
		order:             append([]string(nil), defaultDirectiveOrder...),
		selectorCache:     map[string]*dom.Selector{},
		magics:            map[string]MagicFactory{},
		dataProviders:     map[string]expr.Callable{},
		autoEvalFunctions: true,
		idCounters:        map[string]int{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loop == nil {
		e.loop = loop.New(loop.WithLogger(e.logger))
	}
	e.typeRe = typeRegex(e.prefix)
	e.logger = e.logger.With("engine", e.id.String())
	e.sys = reactivity.NewSystem(e.loop)
	e.rt = expr.NewRuntime(e.loop, expr.WithLogger(e.logger))
	e.cache = expr.NewCache()
	e.observer = doc.NewObserver(e.onMutate)
	e.registerMagics()
	return e, nil
}

// NewDocument parses src and wraps it in a document bound to l.
func NewDocument(src string, l *loop.Loop) (*dom.Document, error) {
	root, err := dom.ParseHTML(src)
	if err != nil {
		return nil, err
	}
	return dom.NewDocument(root, l.QueueMicrotask), nil
}

func (e *Engine) ID() uuid.UUID {
	return e.id
}

func (e *Engine) Document() *dom.Document {
	return e.doc
}

func (e *Engine) Loop() *loop.Loop {
	return e.loop
}

func (e *Engine) System() *reactivity.System {
	return e.sys
}

func (e *Engine) Runtime() *expr.Runtime {
	return e.rt
}

func (e *Engine) Cache() *expr.Cache {
	return e.cache
}

func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

func (e *Engine) Prefix() string {
	return e.prefix
}

// Prefixed returns name with the directive prefix, e.g. "data" -> "x-data".
func (e *Engine) Prefixed(name string) string {
	return e.prefix + name
}

// Start observes the document and initialises every root that is not
// nested inside another root.
func (e *Engine) Start() error {
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	e.StartObservingMutations()
	e.OnElAdded(func(el *html.Node) {
		e.InitTree(el)
	})
	e.OnElRemoved(func(el *html.Node) {
		e.DestroyTree(el)
	})
	e.OnAttributesAdded(func(el *html.Node, attrs []html.Attribute) {
		for _, handle := range e.directivesFor(el, attrs, "") {
			if err := handle(); err != nil {
				e.logger.Error("apply added attribute", "err", err)
				return
			}
		}
	})

	sel, err := e.selector(e.allSelectors())
	if err != nil {
		return err
	}
	var errs []error
	if sel != nil {
		for _, el := range sel.QueryAll(e.doc.Root) {
			if e.ClosestRoot(dom.ParentElement(el), true) != nil {
				continue
			}
			if err := e.InitTree(el); err != nil {
				errs = append(errs, err)
			}
		}
	}
	e.Dispatch(e.doc.Root, NewEvent("sparkdom:initialized", nil))
	e.logger.Debug("started", "directives", len(e.handlers))
	return errors.Join(errs...)
}

// Stop disconnects the observer. Initialised elements keep their state and
// StartObservingMutations resumes observation.
func (e *Engine) Stop() {
	e.StopObservingMutations()
}

// Reactive wraps v so reads inside effects are tracked.
func (e *Engine) Reactive(v any) any {
	return reactivity.Wrap(e.sys, v)
}

// Effect runs fn as a reactive effect. While cloning, effects run once and
// are released straight away.
func (e *Engine) Effect(fn func()) *reactivity.EffectRunner {
	runner := reactivity.Effect(e.sys, fn)
	if e.cloning > 0 {
		reactivity.Release(e.sys, runner)
	}
	return runner
}

func (e *Engine) Release(runner *reactivity.EffectRunner) {
	reactivity.Release(e.sys, runner)
}

// Watch calls cb with the new and previous value whenever getter's result
// changes structurally.
func (e *Engine) Watch(getter func() any, cb func(value, oldValue any)) (stop func()) {
	return reactivity.Watch(e.sys, getter, cb)
}
