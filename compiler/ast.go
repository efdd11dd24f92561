package compiler

// ---------------------------------------------------------------------------
// AST: a closed set of node kinds produced by the parser
// ---------------------------------------------------------------------------

// Node is the interface shared by every AST node.
type Node interface {
	Position() Position
}

// Expr marks expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Stmt marks statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// node carries the source position every AST node has.
type node struct {
	Pos Position
}

func (n node) Position() Position { return n.Pos }

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// LiteralKind distinguishes literal values.
type LiteralKind int

const (
	LitNumber LiteralKind = iota
	LitString
	LitBool
	LitNull
)

// Literal is a number, string, boolean or null literal.
type Literal struct {
	node
	Kind LiteralKind
	Num  uint64 // LitNumber
	Str  string // LitString
	Bool bool   // LitBool
}

// Identifier is a variable reference.
type Identifier struct {
	node
	Name string
}

// BinaryExpr is a binary operation. Op is the operator token type.
type BinaryExpr struct {
	node
	Op    TokenType
	Left  Expr
	Right Expr
}

// UnaryExpr is a prefix operation: -, !, ~.
type UnaryExpr struct {
	node
	Op      TokenType
	Operand Expr
}

// CallExpr is a function call by name.
type CallExpr struct {
	node
	Name string
	Args []Expr
}

// IndexExpr is array[index].
type IndexExpr struct {
	node
	Array Expr
	Index Expr
}

// ArrayLiteral is [e1, e2, ...].
type ArrayLiteral struct {
	node
	Elements []Expr
}

// ObjectLiteral is {k: v, ...}. Parsed but not compilable.
type ObjectLiteral struct {
	node
	Keys   []string
	Values []Expr
}

// Lambda is function(params) { body } in expression position.
// Parsed but not compilable.
type Lambda struct {
	node
	Params []string
	Body   *BlockStmt
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// BlockStmt is { statements }.
type BlockStmt struct {
	node
	Statements []Stmt
}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	node
	Expr Expr
}

// VarDecl is var name = value; or var name;
type VarDecl struct {
	node
	Name  string
	Value Expr // nil when declared without initializer
}

// AssignStmt is name = value; or array[index] = value;
type AssignStmt struct {
	node
	Target Expr // *Identifier or *IndexExpr
	Value  Expr
}

// IfStmt is if (cond) { then } else { else }.
type IfStmt struct {
	node
	Cond Expr
	Then *BlockStmt
	Else *BlockStmt // nil when absent
}

// WhileStmt is while (cond) { body }.
type WhileStmt struct {
	node
	Cond Expr
	Body *BlockStmt
}

// ForStmt is for (init; cond; update) { body }.
type ForStmt struct {
	node
	Init   Stmt // nil when absent
	Cond   Expr // nil when absent
	Update Stmt // nil when absent
	Body   *BlockStmt
}

// FunctionDecl is function name(params) { body }.
type FunctionDecl struct {
	node
	Name   string
	Params []string
	Body   *BlockStmt
}

// ClassDecl is class name { ... }. Parsed but not compilable.
type ClassDecl struct {
	node
	Name string
}

// ReturnStmt is return; or return expr;
type ReturnStmt struct {
	node
	Value Expr // nil when absent
}

// BreakStmt is break;
type BreakStmt struct {
	node
}

// ContinueStmt is continue;
type ContinueStmt struct {
	node
}

// ThrowStmt is throw expr;. Parsed but not compilable.
type ThrowStmt struct {
	node
	Value Expr
}

// TryStmt is try { } catch (name) { }. Parsed but not compilable.
type TryStmt struct {
	node
	Body      *BlockStmt
	CatchName string
	Catch     *BlockStmt
}

// Program is a whole source file: top-level statements and function
// declarations in source order.
type Program struct {
	node
	Statements []Stmt
}

func (*Literal) exprNode()       {}
func (*Identifier) exprNode()    {}
func (*BinaryExpr) exprNode()    {}
func (*UnaryExpr) exprNode()     {}
func (*CallExpr) exprNode()      {}
func (*IndexExpr) exprNode()     {}
func (*ArrayLiteral) exprNode()  {}
func (*ObjectLiteral) exprNode() {}
func (*Lambda) exprNode()        {}

func (*BlockStmt) stmtNode()    {}
func (*ExprStmt) stmtNode()     {}
func (*VarDecl) stmtNode()      {}
func (*AssignStmt) stmtNode()   {}
func (*IfStmt) stmtNode()       {}
func (*WhileStmt) stmtNode()    {}
func (*ForStmt) stmtNode()      {}
func (*FunctionDecl) stmtNode() {}
func (*ClassDecl) stmtNode()    {}
func (*ReturnStmt) stmtNode()   {}
func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}
func (*ThrowStmt) stmtNode()    {}
func (*TryStmt) stmtNode()      {}
