package formula

// Node is one node of the expression tree. The variants below are the
// complete set the parser can produce; the validator's switch over them is
// exhaustive, so a new variant cannot slip past validation unnoticed.
type Node interface {
	nodeKind() string
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// BoolLit is True or False.
type BoolLit struct {
	Value bool
}

// NoneLit is the None constant. Parsed, never accepted.
type NoneLit struct{}

// StringLit is a plain string literal. Parsed, never accepted.
type StringLit struct {
	Raw string
}

// FStringLit is an interpolated string literal. Parsed, never accepted.
type FStringLit struct {
	Raw string
}

// ListLit is a bracketed display. Parsed, never accepted.
type ListLit struct {
	Elems []Node
}

// Name is a variable reference resolved from the namespace.
type Name struct {
	Ident string
}

// Unary is a prefix operation: "-", "+", or "not".
type Unary struct {
	Op string
	X  Node
}

// Binary is an arithmetic operation: + - * / // % **.
type Binary struct {
	Op   string
	X, Y Node
}

// BoolOp is an "and"/"or" chain with short-circuit value semantics.
type BoolOp struct {
	Op     string // "and" or "or"
	Values []Node
}

// Compare is a (possibly chained) comparison: a < b <= c.
type Compare struct {
	X   Node
	Ops []string
	Ys  []Node
}

// Call is a function call. Only positional calls to max/min survive
// validation; keyword and starred arguments are carried so the validator
// can reject them by name.
type Call struct {
	Func     Node
	Args     []Node
	Keywords []KeywordArg
}

// KeywordArg is a name=value argument inside a call.
type KeywordArg struct {
	Name  string
	Value Node
}

// Starred is a *expr spread argument. Parsed, never accepted.
type Starred struct {
	X Node
}

// Attribute is member access: x.attr. Parsed, never accepted.
type Attribute struct {
	X    Node
	Attr string
}

// Subscript is indexing: x[i]. Parsed, never accepted.
type Subscript struct {
	X     Node
	Index Node
}

func (*NumberLit) nodeKind() string  { return "number literal" }
func (*BoolLit) nodeKind() string    { return "boolean literal" }
func (*NoneLit) nodeKind() string    { return "None literal" }
func (*StringLit) nodeKind() string  { return "string literal" }
func (*FStringLit) nodeKind() string { return "string interpolation" }
func (*ListLit) nodeKind() string    { return "list literal" }
func (*Name) nodeKind() string       { return "name" }
func (*Unary) nodeKind() string      { return "unary operator" }
func (*Binary) nodeKind() string     { return "binary operator" }
func (*BoolOp) nodeKind() string     { return "boolean operator" }
func (*Compare) nodeKind() string    { return "comparison" }
func (*Call) nodeKind() string       { return "function call" }
func (*Starred) nodeKind() string    { return "starred argument" }
func (*Attribute) nodeKind() string  { return "attribute access" }
func (*Subscript) nodeKind() string  { return "subscript" }
