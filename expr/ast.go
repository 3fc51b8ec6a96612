package expr

// Node is any expression or statement in a parsed program.
type Node interface {
	node()
}

type (
	NumberLit struct {
		Value float64
	}
	StringLit struct {
		Value string
	}
	BoolLit struct {
		Value bool
	}
	NullLit      struct{}
	UndefinedLit struct{}
	This         struct{}

	TemplateLit struct {
		Quasis []string
		Exprs  []Node
	}

	Ident struct {
		Name string
		Pos  int
	}

	ArrayLit struct {
		Elements []Node
	}

	ObjectLit struct {
		Props []Prop
	}

	Member struct {
		Object   Node
		Property Node
		Computed bool
		Optional bool
		Pos      int
	}

	CallExpr struct {
		Callee   Node
		Args     []Node
		Optional bool
		Pos      int
	}

	Unary struct {
		Op      TokenType
		Operand Node
	}

	Update struct {
		Op     TokenType
		Prefix bool
		Target Node
		Pos    int
	}

	Binary struct {
		Op    TokenType
		Left  Node
		Right Node
	}

	Logical struct {
		Op    TokenType
		Left  Node
		Right Node
	}

	Conditional struct {
		Test       Node
		Consequent Node
		Alternate  Node
	}

	Assign struct {
		Op     TokenType
		Target Node
		Value  Node
		Pos    int
	}

	Arrow struct {
		Params []Param
		Body   Node
		// Expr is set when Body is a single expression rather than a block.
		Expr  bool
		Async bool
		// Method functions take this from the call site instead of capturing
		// it where they are defined.
		Method bool
		Name   string
	}

	Await struct {
		Arg Node
	}

	Spread struct {
		Arg Node
	}

	Sequence struct {
		Exprs []Node
	}
)

type PropKind int

const (
	PropInit PropKind = iota
	PropShorthand
	PropMethod
	PropGetter
	PropSpread
)

type Prop struct {
	Kind     PropKind
	Key      string
	KeyExpr  Node
	Computed bool
	Value    Node
}

type Param struct {
	Name    string
	Default Node
	Rest    bool
}

type (
	ExprStmt struct {
		X Node
	}

	VarDecl struct {
		Kind  TokenType
		Names []string
		Inits []Node
	}

	If struct {
		Test Node
		Then Node
		Else Node
	}

	Return struct {
		Arg Node
	}

	Block struct {
		Body []Node
	}

	Empty struct{}
)

func (*NumberLit) node()    {}
func (*StringLit) node()    {}
func (*BoolLit) node()      {}
func (*NullLit) node()      {}
func (*UndefinedLit) node() {}
func (*This) node()         {}
func (*TemplateLit) node()  {}
func (*Ident) node()        {}
func (*ArrayLit) node()     {}
func (*ObjectLit) node()    {}
func (*Member) node()       {}
func (*CallExpr) node()     {}
func (*Unary) node()        {}
func (*Update) node()       {}
func (*Binary) node()       {}
func (*Logical) node()      {}
func (*Conditional) node()  {}
func (*Assign) node()       {}
func (*Arrow) node()        {}
func (*Await) node()        {}
func (*Spread) node()       {}
func (*Sequence) node()     {}
func (*ExprStmt) node()     {}
func (*VarDecl) node()      {}
func (*If) node()           {}
func (*Return) node()       {}
func (*Block) node()        {}
func (*Empty) node()        {}
