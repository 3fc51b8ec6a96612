package expr

import "fmt"

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota
	ILLEGAL

	// Literals & identifiers
	IDENT
	NUMBER
	STRING
	TEMPLATE

	// Punctuation
	LPAREN   // "("
	RPAREN   // ")"
	LBRACKET // "["
	RBRACKET // "]"
	LBRACE   // "{"
	RBRACE   // "}"
	COMMA    // ","
	SEMI     // ";"
	COLON    // ":"
	DOT      // "."
	OPTDOT   // "?."
	QUESTION // "?"
	ARROW    // "=>"
	ELLIPSIS // "..."

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	POW
	INC
	DEC
	NOT
	ASSIGN
	PLUS_ASSIGN
	MINUS_ASSIGN
	STAR_ASSIGN
	SLASH_ASSIGN
	PERCENT_ASSIGN
	AND_ASSIGN
	OR_ASSIGN
	NULLISH_ASSIGN
	EQ
	NEQ
	STRICT_EQ
	STRICT_NEQ
	LT
	LTE
	GT
	GTE
	AND
	OR
	NULLISH

	// Keywords
	TRUE
	FALSE
	NULL
	UNDEFINED
	THIS
	TYPEOF
	LET
	CONST
	VAR
	IF
	ELSE
	RETURN
	ASYNC
	AWAIT
)

var tokenNames = map[TokenType]string{
	EOF: "end of input", ILLEGAL: "illegal", IDENT: "identifier", NUMBER: "number",
	STRING: "string", TEMPLATE: "template",
	LPAREN: "(", RPAREN: ")", LBRACKET: "[", RBRACKET: "]", LBRACE: "{", RBRACE: "}",
	COMMA: ",", SEMI: ";", COLON: ":", DOT: ".", OPTDOT: "?.", QUESTION: "?",
	ARROW: "=>", ELLIPSIS: "...",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", PERCENT: "%", POW: "**",
	INC: "++", DEC: "--", NOT: "!",
	ASSIGN: "=", PLUS_ASSIGN: "+=", MINUS_ASSIGN: "-=", STAR_ASSIGN: "*=",
	SLASH_ASSIGN: "/=", PERCENT_ASSIGN: "%=", AND_ASSIGN: "&&=", OR_ASSIGN: "||=",
	NULLISH_ASSIGN: "??=", EQ: "==", NEQ: "!=", STRICT_EQ: "===", STRICT_NEQ: "!==",
	LT: "<", LTE: "<=", GT: ">", GTE: ">=", AND: "&&", OR: "||", NULLISH: "??",
	TRUE: "true", FALSE: "false", NULL: "null", UNDEFINED: "undefined", THIS: "this",
	TYPEOF: "typeof", LET: "let", CONST: "const", VAR: "var", IF: "if", ELSE: "else",
	RETURN: "return", ASYNC: "async", AWAIT: "await",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"true":      TRUE,
	"false":     FALSE,
	"null":      NULL,
	"undefined": UNDEFINED,
	"this":      THIS,
	"typeof":    TYPEOF,
	"let":       LET,
	"const":     CONST,
	"var":       VAR,
	"if":        IF,
	"else":      ELSE,
	"return":    RETURN,
	"async":     ASYNC,
	"await":     AWAIT,
}

// Token is a lexed token. Template tokens carry their literal chunks and the
// source of each embedded expression.
type Token struct {
	Type          TokenType
	Lit           string
	Num           float64
	Pos           int
	NewlineBefore bool

	Quasis  []string
	Exprs   []string
	ExprPos []int
}
