package expr

import (
	"fmt"
	"math"
	"strconv"

	"github.com/delaneyj/sparkdom/scope"
)

type binding struct {
	value    any
	constant bool
}

// env holds the locals of one block or function body.
type env struct {
	vars   map[string]*binding
	parent *env
}

func newEnv(parent *env) *env {
	return &env{vars: map[string]*binding{}, parent: parent}
}

func (e *env) lookup(name string) *binding {
	for ; e != nil; e = e.parent {
		if b, ok := e.vars[name]; ok {
			return b
		}
	}
	return nil
}

func (e *env) declare(name string, v any, constant bool) {
	e.vars[name] = &binding{value: v, constant: constant}
}

type interp struct {
	rt    *Runtime
	scope *scope.Stack
	this  any
	co    *coroutine
}

type completion struct {
	value    any
	returned bool
}

func (in *interp) program(body []Node) (any, error) {
	e := newEnv(nil)
	var result any
	for i, stmt := range body {
		c, err := in.exec(stmt, e)
		if err != nil {
			return nil, err
		}
		if c.returned {
			return c.value, nil
		}
		if _, ok := stmt.(*ExprStmt); ok && i == 0 {
			result = c.value
		}
	}
	return result, nil
}

func (in *interp) exec(n Node, e *env) (completion, error) {
	switch s := n.(type) {
	case *ExprStmt:
		v, err := in.eval(s.X, e)
		return completion{value: v}, err
	case *VarDecl:
		for i, name := range s.Names {
			var v any
			if s.Inits[i] != nil {
				var err error
				if v, err = in.eval(s.Inits[i], e); err != nil {
					return completion{}, err
				}
			}
			e.declare(name, v, s.Kind == CONST)
		}
		return completion{}, nil
	case *If:
		test, err := in.eval(s.Test, e)
		if err != nil {
			return completion{}, err
		}
		if Truthy(test) {
			return in.exec(s.Then, e)
		}
		if s.Else != nil {
			return in.exec(s.Else, e)
		}
		return completion{}, nil
	case *Return:
		if s.Arg == nil {
			return completion{returned: true}, nil
		}
		v, err := in.eval(s.Arg, e)
		return completion{value: v, returned: true}, err
	case *Block:
		return in.execBlock(s.Body, newEnv(e))
	case *Empty:
		return completion{}, nil
	}
	return completion{}, fmt.Errorf("expr: unknown statement %T", n)
}

func (in *interp) execBlock(body []Node, e *env) (completion, error) {
	for _, stmt := range body {
		c, err := in.exec(stmt, e)
		if err != nil || c.returned {
			return c, err
		}
	}
	return completion{}, nil
}

func (in *interp) eval(n Node, e *env) (any, error) {
	switch x := n.(type) {
	case *NumberLit:
		return x.Value, nil
	case *StringLit:
		return x.Value, nil
	case *BoolLit:
		return x.Value, nil
	case *NullLit, *UndefinedLit:
		return nil, nil
	case *This:
		return in.this, nil
	case *Ident:
		return in.lookup(x, e)
	case *TemplateLit:
		return in.template(x, e)
	case *ArrayLit:
		return in.array(x, e)
	case *ObjectLit:
		return in.object(x, e)
	case *Member:
		obj, err := in.eval(x.Object, e)
		if err != nil {
			return nil, err
		}
		if obj == nil && x.Optional {
			return nil, nil
		}
		key, err := in.propertyKey(x, e)
		if err != nil {
			return nil, err
		}
		return in.getMember(obj, key, x.Pos)
	case *CallExpr:
		return in.call(x, e)
	case *Unary:
		return in.unary(x, e)
	case *Update:
		ref, err := in.reference(x.Target, e)
		if err != nil {
			return nil, err
		}
		old, err := ref.get()
		if err != nil {
			return nil, err
		}
		n := ToNumber(old)
		next := n + 1
		if x.Op == DEC {
			next = n - 1
		}
		if err := ref.set(next); err != nil {
			return nil, err
		}
		if x.Prefix {
			return next, nil
		}
		return n, nil
	case *Binary:
		left, err := in.eval(x.Left, e)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(x.Right, e)
		if err != nil {
			return nil, err
		}
		return binary(x.Op, left, right), nil
	case *Logical:
		left, err := in.eval(x.Left, e)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case AND:
			if !Truthy(left) {
				return left, nil
			}
		case OR:
			if Truthy(left) {
				return left, nil
			}
		case NULLISH:
			if left != nil {
				return left, nil
			}
		}
		return in.eval(x.Right, e)
	case *Conditional:
		test, err := in.eval(x.Test, e)
		if err != nil {
			return nil, err
		}
		if Truthy(test) {
			return in.eval(x.Consequent, e)
		}
		return in.eval(x.Alternate, e)
	case *Assign:
		return in.assign(x, e)
	case *Arrow:
		return &Closure{fn: x, env: e, in: in, this: in.this}, nil
	case *Await:
		v, err := in.eval(x.Arg, e)
		if err != nil {
			return nil, err
		}
		if in.co == nil {
			return nil, syntaxErrorf(0, "await is only valid in async functions")
		}
		return in.co.await(v)
	case *Sequence:
		var last any
		for _, item := range x.Exprs {
			v, err := in.eval(item, e)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil
	case *Spread:
		return nil, syntaxErrorf(0, "unexpected spread")
	}
	return nil, fmt.Errorf("expr: unknown expression %T", n)
}

func (in *interp) lookup(id *Ident, e *env) (any, error) {
	v, ok, err := in.resolve(id.Name, e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, referenceErrorf(id.Pos, "%s is not defined", id.Name)
	}
	return v, nil
}

// resolve looks name up in the locals, then the scope stack, then the
// runtime globals.
func (in *interp) resolve(name string, e *env) (any, bool, error) {
	if b := e.lookup(name); b != nil {
		return b.value, true, nil
	}
	if in.scope != nil {
		if v, ok := in.scope.Get(name); ok {
			if a, ok := v.(*Accessor); ok {
				v, err := a.Getter.Call(in.scope, nil)
				return v, true, err
			}
			return v, true, nil
		}
	}
	if v, ok := in.rt.global(name); ok {
		return v, true, nil
	}
	return nil, false, nil
}

func (in *interp) template(t *TemplateLit, e *env) (any, error) {
	out := t.Quasis[0]
	for i, part := range t.Exprs {
		v, err := in.eval(part, e)
		if err != nil {
			return nil, err
		}
		out += ToString(v) + t.Quasis[i+1]
	}
	return out, nil
}

func (in *interp) spreadItems(v any) ([]any, error) {
	if s, ok := v.(string); ok {
		items := []any{}
		for _, r := range s {
			items = append(items, string(r))
		}
		return items, nil
	}
	items, ok := listItems(v)
	if !ok {
		return nil, typeErrorf(0, "%s is not iterable", TypeOf(v))
	}
	return items, nil
}

func (in *interp) list(nodes []Node, e *env) ([]any, error) {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		if sp, ok := n.(*Spread); ok {
			v, err := in.eval(sp.Arg, e)
			if err != nil {
				return nil, err
			}
			items, err := in.spreadItems(v)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
			continue
		}
		v, err := in.eval(n, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (in *interp) array(a *ArrayLit, e *env) (any, error) {
	items, err := in.list(a.Elements, e)
	if err != nil {
		return nil, err
	}
	return NewArray(items...), nil
}

func (in *interp) object(o *ObjectLit, e *env) (any, error) {
	rec := NewRecord()
	for _, prop := range o.Props {
		key := prop.Key
		if prop.Computed {
			k, err := in.eval(prop.KeyExpr, e)
			if err != nil {
				return nil, err
			}
			key = ToString(k)
		}
		switch prop.Kind {
		case PropInit, PropShorthand:
			v, err := in.eval(prop.Value, e)
			if err != nil {
				return nil, err
			}
			rec.Set(key, v)
		case PropMethod:
			rec.Set(key, &Closure{fn: prop.Value.(*Arrow), env: e, in: in})
		case PropGetter:
			rec.Set(key, &Accessor{Getter: &Closure{fn: prop.Value.(*Arrow), env: e, in: in}})
		case PropSpread:
			v, err := in.eval(prop.Value, e)
			if err != nil {
				return nil, err
			}
			if err := in.spreadInto(rec, v); err != nil {
				return nil, err
			}
		}
	}
	return rec, nil
}

func (in *interp) spreadInto(rec *Record, v any) error {
	if v == nil {
		return nil
	}
	if items, ok := listItems(v); ok {
		for i, item := range items {
			rec.Set(strconv.Itoa(i), item)
		}
		return nil
	}
	obj, ok := asObject(v)
	if !ok {
		return nil
	}
	for _, k := range obj.Keys() {
		val, _ := obj.Get(k)
		if a, ok := val.(*Accessor); ok {
			var err error
			if val, err = a.Getter.Call(v, nil); err != nil {
				return err
			}
		}
		rec.Set(k, val)
	}
	return nil
}

func (in *interp) propertyKey(m *Member, e *env) (any, error) {
	if !m.Computed {
		return m.Property.(*StringLit).Value, nil
	}
	return in.eval(m.Property, e)
}

func (in *interp) call(c *CallExpr, e *env) (any, error) {
	var fn, this any
	switch callee := c.Callee.(type) {
	case *Member:
		obj, err := in.eval(callee.Object, e)
		if err != nil {
			return nil, err
		}
		if obj == nil && callee.Optional {
			return nil, nil
		}
		key, err := in.propertyKey(callee, e)
		if err != nil {
			return nil, err
		}
		if fn, err = in.getMember(obj, key, callee.Pos); err != nil {
			return nil, err
		}
		this = obj
	default:
		var err error
		if fn, err = in.eval(callee, e); err != nil {
			return nil, err
		}
		this = in.scopeThis()
	}
	if fn == nil && c.Optional {
		return nil, nil
	}
	args, err := in.list(c.Args, e)
	if err != nil {
		return nil, err
	}
	callable, ok := fn.(Callable)
	if !ok {
		return nil, &Error{Kind: TypeError, Pos: c.Pos, Msg: describe(c.Callee) + " is not a function", Err: ErrNotCallable}
	}
	v, err := callable.Call(this, args)
	if err != nil {
		return nil, wrapNative(c.Pos, err)
	}
	return v, nil
}

// scopeThis is the receiver of bare calls: the merged scope.
func (in *interp) scopeThis() any {
	if in.scope == nil {
		return nil
	}
	return in.scope
}

func describe(n Node) string {
	switch x := n.(type) {
	case *Ident:
		return x.Name
	case *Member:
		if s, ok := x.Property.(*StringLit); ok && !x.Computed {
			return describe(x.Object) + "." + s.Value
		}
		return describe(x.Object) + "[...]"
	case *This:
		return "this"
	case *CallExpr:
		return describe(x.Callee) + "(...)"
	}
	return "expression"
}

func (in *interp) unary(u *Unary, e *env) (any, error) {
	if u.Op == TYPEOF {
		if id, ok := u.Operand.(*Ident); ok {
			v, _, err := in.resolve(id.Name, e)
			if err != nil {
				return nil, err
			}
			return TypeOf(v), nil
		}
	}
	v, err := in.eval(u.Operand, e)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case NOT:
		return !Truthy(v), nil
	case MINUS:
		return -ToNumber(v), nil
	case PLUS:
		return ToNumber(v), nil
	case TYPEOF:
		return TypeOf(v), nil
	}
	return nil, fmt.Errorf("expr: unknown unary operator %s", u.Op)
}

func binary(op TokenType, a, b any) any {
	switch op {
	case PLUS:
		return add(a, b)
	case MINUS:
		return ToNumber(a) - ToNumber(b)
	case STAR:
		return ToNumber(a) * ToNumber(b)
	case SLASH:
		return ToNumber(a) / ToNumber(b)
	case PERCENT:
		return math.Mod(ToNumber(a), ToNumber(b))
	case POW:
		return math.Pow(ToNumber(a), ToNumber(b))
	case EQ:
		return LooseEquals(a, b)
	case NEQ:
		return !LooseEquals(a, b)
	case STRICT_EQ:
		return StrictEquals(a, b)
	case STRICT_NEQ:
		return !StrictEquals(a, b)
	case LT:
		c, ok := compare(a, b)
		return ok && c < 0
	case LTE:
		c, ok := compare(a, b)
		return ok && c <= 0
	case GT:
		c, ok := compare(a, b)
		return ok && c > 0
	case GTE:
		c, ok := compare(a, b)
		return ok && c >= 0
	}
	return nil
}

// reference is an assignable location resolved once, so compound
// assignments evaluate their target's object a single time.
type reference struct {
	get func() (any, error)
	set func(v any) error
}

func (in *interp) reference(target Node, e *env) (reference, error) {
	switch t := target.(type) {
	case *Ident:
		return reference{
			get: func() (any, error) { return in.lookup(t, e) },
			set: func(v any) error { return in.setVariable(t, v, e) },
		}, nil
	case *Member:
		obj, err := in.eval(t.Object, e)
		if err != nil {
			return reference{}, err
		}
		key, err := in.propertyKey(t, e)
		if err != nil {
			return reference{}, err
		}
		return reference{
			get: func() (any, error) { return in.getMember(obj, key, t.Pos) },
			set: func(v any) error { return in.setMember(obj, key, v, t.Pos) },
		}, nil
	}
	return reference{}, syntaxErrorf(0, "invalid assignment target")
}

func (in *interp) setVariable(id *Ident, v any, e *env) error {
	if b := e.lookup(id.Name); b != nil {
		if b.constant {
			return typeErrorf(id.Pos, "assignment to constant variable %s", id.Name)
		}
		b.value = v
		return nil
	}
	if in.scope != nil && in.scope.Len() > 0 {
		in.scope.Set(id.Name, v)
		return nil
	}
	in.rt.setGlobal(id.Name, v)
	return nil
}

func (in *interp) assign(a *Assign, e *env) (any, error) {
	ref, err := in.reference(a.Target, e)
	if err != nil {
		return nil, err
	}
	if a.Op == ASSIGN {
		v, err := in.eval(a.Value, e)
		if err != nil {
			return nil, err
		}
		return v, ref.set(v)
	}

	cur, err := ref.get()
	if err != nil {
		return nil, err
	}
	switch a.Op {
	case AND_ASSIGN:
		if !Truthy(cur) {
			return cur, nil
		}
	case OR_ASSIGN:
		if Truthy(cur) {
			return cur, nil
		}
	case NULLISH_ASSIGN:
		if cur != nil {
			return cur, nil
		}
	}
	v, err := in.eval(a.Value, e)
	if err != nil {
		return nil, err
	}
	switch a.Op {
	case PLUS_ASSIGN:
		v = binary(PLUS, cur, v)
	case MINUS_ASSIGN:
		v = binary(MINUS, cur, v)
	case STAR_ASSIGN:
		v = binary(STAR, cur, v)
	case SLASH_ASSIGN:
		v = binary(SLASH, cur, v)
	case PERCENT_ASSIGN:
		v = binary(PERCENT, cur, v)
	}
	return v, ref.set(v)
}

// index converts a property key to a list index.
func index(key any) (int, bool) {
	switch k := key.(type) {
	case float64:
		if k >= 0 && k == math.Trunc(k) {
			return int(k), true
		}
	case int:
		return k, k >= 0
	case string:
		n, err := strconv.Atoi(k)
		if err == nil && n >= 0 {
			return n, true
		}
	}
	return 0, false
}

func (in *interp) getMember(obj, key any, pos int) (any, error) {
	name := ToString(key)
	switch o := obj.(type) {
	case nil:
		return nil, typeErrorf(pos, "cannot read properties of null (reading '%s')", name)
	case string:
		return in.rt.stringMember(o, key, name), nil
	case float64:
		return in.rt.numberMember(o, name), nil
	case bool:
		if name == "toString" {
			return Func(func(any, []any) (any, error) { return ToString(o), nil }), nil
		}
		return nil, nil
	}
	if p, ok := in.rt.promiseMember(obj, name); ok {
		return p, nil
	}
	if l, ok := asList(obj); ok {
		if i, ok := index(key); ok {
			return l.At(i), nil
		}
		if name == "length" {
			return float64(l.Len()), nil
		}
		return in.rt.listMember(l, name), nil
	}
	if o, ok := asObject(obj); ok {
		v, found := o.Get(name)
		if a, ok := v.(*Accessor); ok {
			return a.Getter.Call(obj, nil)
		}
		if !found {
			return in.rt.objectMember(o, name), nil
		}
		return v, nil
	}
	return nil, nil
}

func (in *interp) setMember(obj, key, v any, pos int) error {
	name := ToString(key)
	if obj == nil {
		return typeErrorf(pos, "cannot set properties of null (setting '%s')", name)
	}
	if l, ok := asList(obj); ok {
		if i, ok := index(key); ok {
			l.SetAt(i, v)
			return nil
		}
		if name == "length" {
			n := int(ToNumber(v))
			switch cur := l.Len(); {
			case n < cur:
				l.Splice(n, cur-n)
			case n > cur:
				l.SetAt(n-1, nil)
			}
			return nil
		}
		return typeErrorf(pos, "cannot set property '%s' of a list", name)
	}
	if o, ok := asObject(obj); ok {
		o.Set(name, v)
		return nil
	}
	return typeErrorf(pos, "cannot set property '%s' of %s", name, TypeOf(obj))
}

// Closure is a function defined by an expression.
type Closure struct {
	fn   *Arrow
	env  *env
	in   *interp
	this any
}

func (c *Closure) Async() bool {
	return c.fn.Async
}

func (c *Closure) Call(this any, args []any) (any, error) {
	if !c.fn.Method {
		this = c.this
	}
	if !c.fn.Async {
		in := &interp{rt: c.in.rt, scope: c.in.scope, this: this}
		return in.invoke(c, args)
	}
	return c.in.rt.runAsync(func(co *coroutine) (any, error) {
		in := &interp{rt: c.in.rt, scope: c.in.scope, this: this, co: co}
		return in.invoke(c, args)
	}), nil
}

func (in *interp) invoke(c *Closure, args []any) (any, error) {
	e := newEnv(c.env)
	for i, p := range c.fn.Params {
		if p.Rest {
			var rest []any
			if i < len(args) {
				rest = append(rest, args[i:]...)
			}
			e.declare(p.Name, NewArray(rest...), false)
			break
		}
		var v any
		if i < len(args) {
			v = args[i]
		}
		if v == nil && p.Default != nil {
			var err error
			if v, err = in.eval(p.Default, e); err != nil {
				return nil, err
			}
		}
		e.declare(p.Name, v, false)
	}
	if c.fn.Expr {
		return in.eval(c.fn.Body, e)
	}
	comp, err := in.execBlock(c.fn.Body.(*Block).Body, e)
	if err != nil {
		return nil, err
	}
	return comp.value, nil
}
