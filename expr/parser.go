package expr

// Parse compiles src into a program without caching.
func Parse(src string) (*Program, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: src, async: []bool{true}}
	body, err := p.program()
	if err != nil {
		return nil, err
	}
	return &Program{Source: src, Body: body, Async: p.topAwait}, nil
}

type parser struct {
	toks []Token
	i    int
	src  string

	// async holds one entry per enclosing function, innermost last. The
	// program itself is async.
	async    []bool
	topAwait bool
}

func (p *parser) atEnd() bool { return p.peek().Type == EOF }
func (p *parser) peek() Token {
	if p.i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}
func (p *parser) peekAt(n int) Token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}
func (p *parser) prev() Token { return p.toks[p.i-1] }

func (p *parser) match(tt ...TokenType) bool {
	if p.atEnd() {
		return false
	}
	for _, t := range tt {
		if p.peek().Type == t {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) need(t TokenType) (Token, error) {
	if p.match(t) {
		return p.prev(), nil
	}
	return Token{}, p.unexpected(t.String())
}

func (p *parser) unexpected(want string) error {
	g := p.peek()
	if g.Type == EOF {
		return syntaxErrorf(g.Pos, "unexpected end of input, expected %s", want)
	}
	lit := g.Lit
	if lit == "" {
		lit = g.Type.String()
	}
	return syntaxErrorf(g.Pos, "unexpected token %q, expected %s", lit, want)
}

func lbp(t TokenType) (int, bool) {
	switch t {
	case NULLISH, OR:
		return 1, true
	case AND:
		return 2, true
	case EQ, NEQ, STRICT_EQ, STRICT_NEQ:
		return 3, true
	case LT, LTE, GT, GTE:
		return 4, true
	case PLUS, MINUS:
		return 5, true
	case STAR, SLASH, PERCENT:
		return 6, true
	case POW:
		return 7, true
	}
	return 0, false
}

func isAssignOp(t TokenType) bool {
	switch t {
	case ASSIGN, PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN, PERCENT_ASSIGN,
		AND_ASSIGN, OR_ASSIGN, NULLISH_ASSIGN:
		return true
	}
	return false
}

// propertyName accepts identifiers and keywords after a dot or as an object
// key.
func propertyName(t Token) (string, bool) {
	if t.Type == IDENT {
		return t.Lit, true
	}
	if _, ok := keywords[t.Lit]; ok && t.Lit != "" {
		return t.Lit, true
	}
	return "", false
}

// statements

func (p *parser) program() ([]Node, error) {
	var body []Node
	for !p.atEnd() {
		stmt, err := p.statement(true)
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	return body, nil
}

func (p *parser) statement(top bool) (Node, error) {
	switch p.peek().Type {
	case SEMI:
		p.i++
		return &Empty{}, nil
	case LBRACE:
		// A leading brace at the top of an expression is an object literal.
		if !top {
			return p.block()
		}
	case LET, CONST, VAR:
		decl, err := p.varDecl()
		if err != nil {
			return nil, err
		}
		return decl, p.endStatement()
	case IF:
		return p.ifStatement()
	case RETURN:
		p.i++
		ret := &Return{}
		if t := p.peek(); t.Type != SEMI && t.Type != RBRACE && t.Type != EOF && !t.NewlineBefore {
			arg, err := p.expression()
			if err != nil {
				return nil, err
			}
			ret.Arg = arg
		}
		return ret, p.endStatement()
	}

	x, err := p.expression()
	if err != nil {
		return nil, err
	}
	return &ExprStmt{X: x}, p.endStatement()
}

func (p *parser) endStatement() error {
	if p.match(SEMI) {
		return nil
	}
	t := p.peek()
	if t.Type == EOF || t.Type == RBRACE || t.NewlineBefore {
		return nil
	}
	return p.unexpected("';'")
}

func (p *parser) block() (*Block, error) {
	if _, err := p.need(LBRACE); err != nil {
		return nil, err
	}
	b := &Block{}
	for p.peek().Type != RBRACE {
		if p.atEnd() {
			return nil, p.unexpected("'}'")
		}
		stmt, err := p.statement(false)
		if err != nil {
			return nil, err
		}
		b.Body = append(b.Body, stmt)
	}
	p.i++
	return b, nil
}

func (p *parser) varDecl() (*VarDecl, error) {
	decl := &VarDecl{Kind: p.peek().Type}
	p.i++
	for {
		name, err := p.need(IDENT)
		if err != nil {
			return nil, err
		}
		var init Node
		if p.match(ASSIGN) {
			if init, err = p.assignment(); err != nil {
				return nil, err
			}
		} else if decl.Kind == CONST {
			return nil, syntaxErrorf(name.Pos, "missing initializer in const declaration")
		}
		decl.Names = append(decl.Names, name.Lit)
		decl.Inits = append(decl.Inits, init)
		if !p.match(COMMA) {
			return decl, nil
		}
	}
}

func (p *parser) ifStatement() (Node, error) {
	p.i++
	if _, err := p.need(LPAREN); err != nil {
		return nil, err
	}
	test, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RPAREN); err != nil {
		return nil, err
	}
	then, err := p.statement(false)
	if err != nil {
		return nil, err
	}
	stmt := &If{Test: test, Then: then}
	if p.match(ELSE) {
		if stmt.Else, err = p.statement(false); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// expressions

func (p *parser) expression() (Node, error) {
	x, err := p.assignment()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != COMMA {
		return x, nil
	}
	seq := &Sequence{Exprs: []Node{x}}
	for p.match(COMMA) {
		next, err := p.assignment()
		if err != nil {
			return nil, err
		}
		seq.Exprs = append(seq.Exprs, next)
	}
	return seq, nil
}

func (p *parser) assignment() (Node, error) {
	if p.arrowAhead() {
		return p.arrow()
	}

	left, err := p.conditional()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if !isAssignOp(t.Type) {
		return left, nil
	}
	switch left.(type) {
	case *Ident, *Member:
	default:
		return nil, syntaxErrorf(t.Pos, "invalid assignment target")
	}
	p.i++
	value, err := p.assignment()
	if err != nil {
		return nil, err
	}
	return &Assign{Op: t.Type, Target: left, Value: value, Pos: t.Pos}, nil
}

// arrowAhead reports whether the tokens at the cursor start an arrow
// function.
func (p *parser) arrowAhead() bool {
	i := 0
	if p.peek().Type == ASYNC {
		i = 1
	}
	switch p.peekAt(i).Type {
	case IDENT:
		return p.peekAt(i+1).Type == ARROW
	case LPAREN:
		depth := 0
		for j := p.i + i; j < len(p.toks); j++ {
			switch p.toks[j].Type {
			case LPAREN, LBRACKET, LBRACE:
				depth++
			case RPAREN, RBRACKET, RBRACE:
				depth--
				if depth == 0 {
					return j+1 < len(p.toks) && p.toks[j+1].Type == ARROW
				}
			case EOF:
				return false
			}
		}
	}
	return false
}

func (p *parser) arrow() (Node, error) {
	fn := &Arrow{}
	if p.match(ASYNC) {
		fn.Async = true
	}
	if p.peek().Type == IDENT {
		fn.Params = []Param{{Name: p.peek().Lit}}
		p.i++
	} else {
		params, err := p.params()
		if err != nil {
			return nil, err
		}
		fn.Params = params
	}
	if _, err := p.need(ARROW); err != nil {
		return nil, err
	}
	return fn, p.functionBody(fn, true)
}

func (p *parser) params() ([]Param, error) {
	if _, err := p.need(LPAREN); err != nil {
		return nil, err
	}
	var params []Param
	for !p.match(RPAREN) {
		var param Param
		if p.match(ELLIPSIS) {
			param.Rest = true
		}
		name, err := p.need(IDENT)
		if err != nil {
			return nil, err
		}
		param.Name = name.Lit
		if !param.Rest && p.match(ASSIGN) {
			if param.Default, err = p.assignment(); err != nil {
				return nil, err
			}
		}
		params = append(params, param)
		if param.Rest {
			if _, err := p.need(RPAREN); err != nil {
				return nil, err
			}
			break
		}
		if !p.match(COMMA) && p.peek().Type != RPAREN {
			return nil, p.unexpected("',' or ')'")
		}
	}
	return params, nil
}

// functionBody parses either a block or, when allowExpr is set, a single
// expression.
func (p *parser) functionBody(fn *Arrow, allowExpr bool) error {
	p.async = append(p.async, fn.Async)
	defer func() { p.async = p.async[:len(p.async)-1] }()

	if p.peek().Type == LBRACE || !allowExpr {
		b, err := p.block()
		if err != nil {
			return err
		}
		fn.Body = b
		return nil
	}
	body, err := p.assignment()
	if err != nil {
		return err
	}
	fn.Body, fn.Expr = body, true
	return nil
}

func (p *parser) conditional() (Node, error) {
	test, err := p.binary(1)
	if err != nil {
		return nil, err
	}
	if !p.match(QUESTION) {
		return test, nil
	}
	cons, err := p.assignment()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(COLON); err != nil {
		return nil, err
	}
	alt, err := p.assignment()
	if err != nil {
		return nil, err
	}
	return &Conditional{Test: test, Consequent: cons, Alternate: alt}, nil
}

func (p *parser) binary(minBP int) (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().Type
		bp, ok := lbp(op)
		if !ok || bp < minBP {
			return left, nil
		}
		p.i++
		next := bp + 1
		if op == POW {
			next = bp
		}
		right, err := p.binary(next)
		if err != nil {
			return nil, err
		}
		switch op {
		case AND, OR, NULLISH:
			left = &Logical{Op: op, Left: left, Right: right}
		default:
			left = &Binary{Op: op, Left: left, Right: right}
		}
	}
}

func (p *parser) unary() (Node, error) {
	t := p.peek()
	switch t.Type {
	case NOT, MINUS, PLUS, TYPEOF:
		p.i++
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: t.Type, Operand: operand}, nil
	case INC, DEC:
		p.i++
		target, err := p.unary()
		if err != nil {
			return nil, err
		}
		if !assignable(target) {
			return nil, syntaxErrorf(t.Pos, "invalid update target")
		}
		return &Update{Op: t.Type, Prefix: true, Target: target, Pos: t.Pos}, nil
	case AWAIT:
		if !p.async[len(p.async)-1] {
			return nil, syntaxErrorf(t.Pos, "await is only valid in async functions")
		}
		if len(p.async) == 1 {
			p.topAwait = true
		}
		p.i++
		arg, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Await{Arg: arg}, nil
	}
	return p.postfix()
}

func assignable(n Node) bool {
	switch n.(type) {
	case *Ident, *Member:
		return true
	}
	return false
}

func (p *parser) postfix() (Node, error) {
	x, err := p.callOrMember()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); (t.Type == INC || t.Type == DEC) && !t.NewlineBefore {
		if !assignable(x) {
			return nil, syntaxErrorf(t.Pos, "invalid update target")
		}
		p.i++
		return &Update{Op: t.Type, Target: x, Pos: t.Pos}, nil
	}
	return x, nil
}

// callOrMember parses a primary followed by any chain of property reads and
// calls. Once a link is optional the rest of the chain is too, so a nil
// base short-circuits the whole chain.
func (p *parser) callOrMember() (Node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	optional := false
	for {
		t := p.peek()
		switch t.Type {
		case DOT:
			p.i++
			name, ok := propertyName(p.peek())
			if !ok {
				return nil, p.unexpected("property name")
			}
			p.i++
			x = &Member{Object: x, Property: &StringLit{Value: name}, Optional: optional, Pos: t.Pos}
		case OPTDOT:
			p.i++
			optional = true
			switch p.peek().Type {
			case LPAREN:
				args, err := p.arguments()
				if err != nil {
					return nil, err
				}
				x = &CallExpr{Callee: x, Args: args, Optional: true, Pos: t.Pos}
			case LBRACKET:
				p.i++
				prop, err := p.expression()
				if err != nil {
					return nil, err
				}
				if _, err := p.need(RBRACKET); err != nil {
					return nil, err
				}
				x = &Member{Object: x, Property: prop, Computed: true, Optional: true, Pos: t.Pos}
			default:
				name, ok := propertyName(p.peek())
				if !ok {
					return nil, p.unexpected("property name")
				}
				p.i++
				x = &Member{Object: x, Property: &StringLit{Value: name}, Optional: true, Pos: t.Pos}
			}
		case LBRACKET:
			p.i++
			prop, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.need(RBRACKET); err != nil {
				return nil, err
			}
			x = &Member{Object: x, Property: prop, Computed: true, Optional: optional, Pos: t.Pos}
		case LPAREN:
			args, err := p.arguments()
			if err != nil {
				return nil, err
			}
			x = &CallExpr{Callee: x, Args: args, Optional: optional, Pos: t.Pos}
		default:
			return x, nil
		}
	}
}

func (p *parser) arguments() ([]Node, error) {
	if _, err := p.need(LPAREN); err != nil {
		return nil, err
	}
	var args []Node
	for !p.match(RPAREN) {
		arg, err := p.spreadOrAssignment()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.match(COMMA) && p.peek().Type != RPAREN {
			return nil, p.unexpected("',' or ')'")
		}
	}
	return args, nil
}

func (p *parser) spreadOrAssignment() (Node, error) {
	if p.match(ELLIPSIS) {
		arg, err := p.assignment()
		if err != nil {
			return nil, err
		}
		return &Spread{Arg: arg}, nil
	}
	return p.assignment()
}

func (p *parser) primary() (Node, error) {
	t := p.peek()
	switch t.Type {
	case NUMBER:
		p.i++
		return &NumberLit{Value: t.Num}, nil
	case STRING:
		p.i++
		return &StringLit{Value: t.Lit}, nil
	case TEMPLATE:
		p.i++
		return p.template(t)
	case TRUE, FALSE:
		p.i++
		return &BoolLit{Value: t.Type == TRUE}, nil
	case NULL:
		p.i++
		return &NullLit{}, nil
	case UNDEFINED:
		p.i++
		return &UndefinedLit{}, nil
	case THIS:
		p.i++
		return &This{}, nil
	case IDENT:
		p.i++
		return &Ident{Name: t.Lit, Pos: t.Pos}, nil
	case LPAREN:
		p.i++
		x, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RPAREN); err != nil {
			return nil, err
		}
		return x, nil
	case LBRACKET:
		return p.arrayLiteral()
	case LBRACE:
		return p.objectLiteral()
	}
	return nil, p.unexpected("expression")
}

// template parses the embedded expressions of a template token with a
// nested parser that shares the enclosing async context.
func (p *parser) template(t Token) (Node, error) {
	lit := &TemplateLit{Quasis: t.Quasis}
	for i, src := range t.Exprs {
		toks, err := Lex(src)
		if err != nil {
			return nil, shiftPos(err, t.ExprPos[i])
		}
		sub := &parser{toks: toks, src: src, async: p.async}
		x, err := sub.expression()
		if err != nil {
			return nil, shiftPos(err, t.ExprPos[i])
		}
		if !sub.atEnd() {
			return nil, shiftPos(sub.unexpected("'}'"), t.ExprPos[i])
		}
		if sub.topAwait {
			p.topAwait = true
		}
		lit.Exprs = append(lit.Exprs, x)
	}
	return lit, nil
}

func shiftPos(err error, by int) error {
	if e, ok := err.(*Error); ok {
		e.Pos += by
	}
	return err
}

func (p *parser) arrayLiteral() (Node, error) {
	p.i++
	arr := &ArrayLit{}
	for !p.match(RBRACKET) {
		el, err := p.spreadOrAssignment()
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, el)
		if !p.match(COMMA) && p.peek().Type != RBRACKET {
			return nil, p.unexpected("',' or ']'")
		}
	}
	return arr, nil
}

func (p *parser) objectLiteral() (Node, error) {
	p.i++
	obj := &ObjectLit{}
	for !p.match(RBRACE) {
		prop, err := p.property()
		if err != nil {
			return nil, err
		}
		obj.Props = append(obj.Props, prop)
		if !p.match(COMMA) && p.peek().Type != RBRACE {
			return nil, p.unexpected("',' or '}'")
		}
	}
	return obj, nil
}

func (p *parser) property() (Prop, error) {
	if p.match(ELLIPSIS) {
		arg, err := p.assignment()
		return Prop{Kind: PropSpread, Value: arg}, err
	}

	var (
		async  bool
		getter bool
	)
	// get and async only act as modifiers when another key follows them.
	if t := p.peek(); t.Lit == "get" || t.Type == ASYNC {
		switch p.peekAt(1).Type {
		case COLON, LPAREN, COMMA, RBRACE:
		default:
			p.i++
			getter, async = t.Lit == "get", t.Type == ASYNC
		}
	}

	var prop Prop
	t := p.peek()
	switch t.Type {
	case LBRACKET:
		p.i++
		key, err := p.assignment()
		if err != nil {
			return prop, err
		}
		if _, err := p.need(RBRACKET); err != nil {
			return prop, err
		}
		prop.KeyExpr, prop.Computed = key, true
	case STRING:
		p.i++
		prop.Key = t.Lit
	case NUMBER:
		p.i++
		prop.Key = ToString(t.Num)
	default:
		name, ok := propertyName(t)
		if !ok {
			return prop, p.unexpected("property name")
		}
		p.i++
		prop.Key = name
	}

	switch {
	case p.peek().Type == LPAREN:
		fn := &Arrow{Async: async, Method: true, Name: prop.Key}
		params, err := p.params()
		if err != nil {
			return prop, err
		}
		fn.Params = params
		if err := p.functionBody(fn, false); err != nil {
			return prop, err
		}
		prop.Kind, prop.Value = PropMethod, fn
		if getter {
			if len(params) > 0 {
				return prop, syntaxErrorf(t.Pos, "getter must not have parameters")
			}
			prop.Kind = PropGetter
		}
		return prop, nil
	case getter || async:
		return prop, p.unexpected("'('")
	case p.match(COLON):
		value, err := p.assignment()
		prop.Kind, prop.Value = PropInit, value
		return prop, err
	case !prop.Computed && t.Type == IDENT:
		prop.Kind = PropShorthand
		prop.Value = &Ident{Name: prop.Key, Pos: t.Pos}
		return prop, nil
	}
	return prop, p.unexpected("':'")
}
