package expr

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type lexer struct {
	src     string
	pos     int
	newline bool
}

// Lex splits src into tokens, ending with EOF.
func Lex(src string) ([]Token, error) {
	lx := &lexer{src: src}
	var toks []Token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks, nil
		}
	}
}

func (lx *lexer) peekByte(offset int) byte {
	if lx.pos+offset >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos+offset]
}

func (lx *lexer) skipSpaceAndComments() error {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			lx.newline = true
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			lx.pos++
		case c == '/' && lx.peekByte(1) == '/':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == '/' && lx.peekByte(1) == '*':
			end := strings.Index(lx.src[lx.pos+2:], "*/")
			if end < 0 {
				return syntaxErrorf(lx.pos, "unterminated comment")
			}
			if strings.Contains(lx.src[lx.pos:lx.pos+2+end], "\n") {
				lx.newline = true
			}
			lx.pos += end + 4
		default:
			r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
			switch r {
			case '\u2028', '\u2029':
				lx.newline = true
				fallthrough
			case '\u00a0', '\ufeff':
				lx.pos += size
				continue
			}
			return nil
		}
	}
	return nil
}

var punctuators = []struct {
	lit string
	typ TokenType
}{
	{"...", ELLIPSIS}, {"===", STRICT_EQ}, {"!==", STRICT_NEQ}, {"**", POW},
	{"&&=", AND_ASSIGN}, {"||=", OR_ASSIGN}, {"??=", NULLISH_ASSIGN},
	{"=>", ARROW}, {"==", EQ}, {"!=", NEQ}, {"<=", LTE}, {">=", GTE},
	{"&&", AND}, {"||", OR}, {"??", NULLISH}, {"?.", OPTDOT},
	{"++", INC}, {"--", DEC}, {"+=", PLUS_ASSIGN}, {"-=", MINUS_ASSIGN},
	{"*=", STAR_ASSIGN}, {"/=", SLASH_ASSIGN}, {"%=", PERCENT_ASSIGN},
	{"(", LPAREN}, {")", RPAREN}, {"[", LBRACKET}, {"]", RBRACKET},
	{"{", LBRACE}, {"}", RBRACE}, {",", COMMA}, {";", SEMI}, {":", COLON},
	{".", DOT}, {"?", QUESTION}, {"+", PLUS}, {"-", MINUS}, {"*", STAR},
	{"/", SLASH}, {"%", PERCENT}, {"!", NOT}, {"=", ASSIGN}, {"<", LT}, {">", GT},
}

func (lx *lexer) next() (Token, error) {
	lx.newline = false
	if err := lx.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	start := lx.pos
	nl := lx.newline
	if lx.pos >= len(lx.src) {
		return Token{Type: EOF, Pos: start, NewlineBefore: nl}, nil
	}

	c := lx.src[lx.pos]
	switch {
	case c == '"' || c == '\'':
		s, err := lx.readString(c)
		if err != nil {
			return Token{}, err
		}
		return Token{Type: STRING, Lit: s, Pos: start, NewlineBefore: nl}, nil
	case c == '`':
		tok, err := lx.readTemplate()
		tok.Pos, tok.NewlineBefore = start, nl
		return tok, err
	case isDigit(c) || (c == '.' && isDigit(lx.peekByte(1))):
		n, lit, err := lx.readNumber()
		if err != nil {
			return Token{}, err
		}
		return Token{Type: NUMBER, Lit: lit, Num: n, Pos: start, NewlineBefore: nl}, nil
	}

	r, _ := utf8.DecodeRuneInString(lx.src[lx.pos:])
	if isIdentStart(r) {
		name := lx.readIdent()
		typ := IDENT
		if kw, ok := keywords[name]; ok {
			typ = kw
		}
		return Token{Type: typ, Lit: name, Pos: start, NewlineBefore: nl}, nil
	}

	for _, p := range punctuators {
		if strings.HasPrefix(lx.src[lx.pos:], p.lit) {
			// "?." followed by a digit is a conditional, as in a?.5:1
			if p.typ == OPTDOT && isDigit(lx.peekByte(2)) {
				continue
			}
			lx.pos += len(p.lit)
			return Token{Type: p.typ, Lit: p.lit, Pos: start, NewlineBefore: nl}, nil
		}
	}
	return Token{}, syntaxErrorf(start, "unexpected character %q", r)
}

func (lx *lexer) readIdent() string {
	start := lx.pos
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !isIdentPart(r) {
			break
		}
		lx.pos += size
	}
	return lx.src[start:lx.pos]
}

func (lx *lexer) readNumber() (float64, string, error) {
	start := lx.pos
	if lx.src[lx.pos] == '0' && (lx.peekByte(1) == 'x' || lx.peekByte(1) == 'X') {
		lx.pos += 2
		for lx.pos < len(lx.src) && isHexDigit(lx.src[lx.pos]) {
			lx.pos++
		}
		lit := lx.src[start:lx.pos]
		n, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			return 0, "", syntaxErrorf(start, "invalid number %q", lit)
		}
		return float64(n), lit, nil
	}
	for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '_') {
		lx.pos++
	}
	if lx.peekByte(0) == '.' && isDigit(lx.peekByte(1)) {
		lx.pos++
		for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '_') {
			lx.pos++
		}
	} else if lx.peekByte(0) == '.' && !isIdentStartByte(lx.peekByte(1)) && lx.peekByte(1) != '.' {
		lx.pos++
	}
	if c := lx.peekByte(0); c == 'e' || c == 'E' {
		save := lx.pos
		lx.pos++
		if c := lx.peekByte(0); c == '+' || c == '-' {
			lx.pos++
		}
		if !isDigit(lx.peekByte(0)) {
			lx.pos = save
		}
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.pos++
		}
	}
	lit := lx.src[start:lx.pos]
	n, err := strconv.ParseFloat(strings.ReplaceAll(lit, "_", ""), 64)
	if err != nil {
		return 0, "", syntaxErrorf(start, "invalid number %q", lit)
	}
	return n, lit, nil
}

func (lx *lexer) readString(quote byte) (string, error) {
	start := lx.pos
	lx.pos++
	var sb strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return "", syntaxErrorf(start, "unterminated string")
		}
		c := lx.src[lx.pos]
		switch c {
		case quote:
			lx.pos++
			return sb.String(), nil
		case '\n':
			return "", syntaxErrorf(start, "unterminated string")
		case '\\':
			if err := lx.readEscape(&sb); err != nil {
				return "", err
			}
		default:
			sb.WriteByte(c)
			lx.pos++
		}
	}
}

func (lx *lexer) readEscape(sb *strings.Builder) error {
	at := lx.pos
	lx.pos++
	if lx.pos >= len(lx.src) {
		return syntaxErrorf(at, "unterminated escape")
	}
	c := lx.src[lx.pos]
	lx.pos++
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	case '\n':
	case 'u':
		var hex string
		if lx.peekByte(0) == '{' {
			end := strings.IndexByte(lx.src[lx.pos:], '}')
			if end < 0 {
				return syntaxErrorf(at, "invalid unicode escape")
			}
			hex = lx.src[lx.pos+1 : lx.pos+end]
			lx.pos += end + 1
		} else {
			if lx.pos+4 > len(lx.src) {
				return syntaxErrorf(at, "invalid unicode escape")
			}
			hex = lx.src[lx.pos : lx.pos+4]
			lx.pos += 4
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return syntaxErrorf(at, "invalid unicode escape")
		}
		sb.WriteRune(rune(n))
	case 'x':
		if lx.pos+2 > len(lx.src) {
			return syntaxErrorf(at, "invalid hex escape")
		}
		n, err := strconv.ParseUint(lx.src[lx.pos:lx.pos+2], 16, 8)
		if err != nil {
			return syntaxErrorf(at, "invalid hex escape")
		}
		lx.pos += 2
		sb.WriteRune(rune(n))
	default:
		sb.WriteByte(c)
	}
	return nil
}

// readTemplate reads a backtick literal, keeping the source of each ${...}
// part so the parser can compile it separately.
func (lx *lexer) readTemplate() (Token, error) {
	start := lx.pos
	lx.pos++
	tok := Token{Type: TEMPLATE}
	var sb strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return tok, syntaxErrorf(start, "unterminated template literal")
		}
		c := lx.src[lx.pos]
		switch {
		case c == '`':
			lx.pos++
			tok.Quasis = append(tok.Quasis, sb.String())
			tok.Lit = lx.src[start:lx.pos]
			return tok, nil
		case c == '\\':
			if err := lx.readEscape(&sb); err != nil {
				return tok, err
			}
		case c == '$' && lx.peekByte(1) == '{':
			tok.Quasis = append(tok.Quasis, sb.String())
			sb.Reset()
			lx.pos += 2
			exprStart := lx.pos
			if err := lx.skipBalanced(); err != nil {
				return tok, err
			}
			tok.Exprs = append(tok.Exprs, lx.src[exprStart:lx.pos])
			tok.ExprPos = append(tok.ExprPos, exprStart)
			lx.pos++
		default:
			sb.WriteByte(c)
			lx.pos++
		}
	}
}

// skipBalanced advances to the '}' closing a template substitution.
func (lx *lexer) skipBalanced() error {
	start := lx.pos
	depth := 0
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch c {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return nil
			}
			depth--
		case '"', '\'':
			if _, err := lx.readString(c); err != nil {
				return err
			}
			continue
		case '`':
			if _, err := lx.readTemplate(); err != nil {
				return err
			}
			continue
		}
		lx.pos++
	}
	return syntaxErrorf(start, "unterminated template substitution")
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStartByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '\u200c' || r == '\u200d'
}
