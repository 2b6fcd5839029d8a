// Package ast defines the syntax tree produced by the parser.
//
// Node categories are closed: Statement and Expression carry unexported
// marker methods so only this package can add variants, and consumers
// dispatch with type switches. Every syntax token a node was built from is
// kept as a Tok, and each Tok owns the trivia (whitespace, comments, code
// delimiters, separators) that preceded it. Printing the tokens of a tree
// in order therefore reproduces the source.
package ast

import (
	"strings"

	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// Trivia is source text with no meaning to evaluation.
type Trivia struct {
	Type lexer.TokenType
	Text string
}

// Tok is a syntax token together with its leading trivia.
type Tok struct {
	Type    lexer.TokenType
	Text    string
	Span    lexer.Span
	Leading []Trivia
}

// Is reports whether the token is an identifier spelled word.
func (t *Tok) Is(word string) bool {
	return t != nil && t.Type == lexer.Identifier && t.Text == word
}

// Node is implemented by every tree node.
type Node interface {
	Span() lexer.Span
}

// Statement is a node that executes for its effect.
type Statement interface {
	Node
	statementNode()
}

// Expression is a node that produces a value.
type Expression interface {
	Node
	expressionNode()
}

// Loc holds the source range of a node.
type Loc struct {
	Range lexer.Span
}

// Span returns the node's source range.
func (l *Loc) Span() lexer.Span { return l.Range }

// Page is the root of a parsed template.
type Page struct {
	Loc
	FrontMatter *Block
	Body        *Block
	// Trailing holds trivia after the last token of the page.
	Trailing []Trivia
}

// Block is a sequence of statements.
type Block struct {
	Loc
	Statements []Statement
}

// ---------------------------------------------------------------------------
// Statements

// RawStatement outputs template text verbatim. Escaped is set for the
// content of escape blocks.
type RawStatement struct {
	Loc
	Text    Tok
	Escaped bool
}

// ExpressionStatement evaluates an expression and outputs its value.
type ExpressionStatement struct {
	Loc
	Expr Expression
}

// AssignStatement stores a value into a variable, member or index.
type AssignStatement struct {
	Loc
	Keyword *Tok // Liquid "assign"
	Target  Expression
	Assign  Tok
	Value   Expression
}

// IfStatement is an if, elseif or Liquid unless branch. For elseif
// branches ElseKeyword holds a separate "else" in "else if" and End is
// nil; the outermost branch owns End.
type IfStatement struct {
	Loc
	ElseKeyword *Tok
	Keyword     Tok
	Negate      bool
	Condition   Expression
	Then        *Block
	ElseIf      *IfStatement
	Else        *ElseClause
	End         *Tok
}

// ElseClause is a trailing else block of if, for or case.
type ElseClause struct {
	Loc
	Keyword Tok
	Body    *Block
}

// ForParam is a loop modifier: offset:n, limit:n or reversed.
type ForParam struct {
	Loc
	Name  Tok
	Colon *Tok
	Value Expression
}

// ForStatement iterates over a list, range or object.
type ForStatement struct {
	Loc
	Keyword  Tok
	Variable Expression
	In       Tok
	Iterable Expression
	Params   []*ForParam
	Body     *Block
	Else     *ElseClause
	End      Tok
}

// WhileStatement loops while a condition holds.
type WhileStatement struct {
	Loc
	Keyword   Tok
	Condition Expression
	Body      *Block
	End       Tok
}

// WithStatement evaluates its body with an object as the innermost scope.
type WithStatement struct {
	Loc
	Keyword Tok
	Target  Expression
	Body    *Block
	End     Tok
}

// CaptureStatement stores the output of its body in a variable.
type CaptureStatement struct {
	Loc
	Keyword Tok
	Target  Expression
	Body    *Block
	End     Tok
}

// Param is a declared function parameter.
type Param struct {
	Loc
	Name     Tok
	Assign   *Tok
	Default  Expression
	Variadic []Tok // the ".." and "." of "name..."
	Comma    *Tok
}

// FuncStatement declares a template function.
type FuncStatement struct {
	Loc
	Keyword Tok
	Name    Tok
	Open    *Tok
	Params  []*Param
	Close   *Tok
	Body    *Block
	End     Tok
}

// WhenClause is one branch of a case statement.
type WhenClause struct {
	Loc
	Keyword Tok
	Values  []Expression
	Seps    []Tok // "," or "or" between values
	Body    *Block
}

// CaseStatement selects the first when clause equal to Value.
type CaseStatement struct {
	Loc
	Keyword Tok
	Value   Expression
	Whens   []*WhenClause
	Else    *ElseClause
	End     Tok
	// Leading holds statements between the case header and the first when,
	// which may only be raw whitespace.
	Leading *Block
}

// LoopControl is break or continue.
type LoopControl struct {
	Loc
	Keyword Tok
}

// IsBreak reports whether this is a break.
func (l *LoopControl) IsBreak() bool { return l.Keyword.Text == "break" }

// ReturnStatement leaves the current function or template.
type ReturnStatement struct {
	Loc
	Keyword Tok
	Value   Expression
}

// ImportStatement copies an object's members into the current scope.
type ImportStatement struct {
	Loc
	Keyword Tok
	Value   Expression
}

// IncludeStatement is the Liquid include tag.
type IncludeStatement struct {
	Loc
	Keyword Tok
	Name    Expression
	// Mode is "with" or "for" with Target as its operand.
	Mode   *Tok
	Target Expression
	Alias  []Tok // "as" name
	Args   []*Arg
}

// CounterStatement is Liquid increment or decrement.
type CounterStatement struct {
	Loc
	Keyword Tok
	Name    Tok
}

// IsIncrement reports whether the counter is incremented.
func (c *CounterStatement) IsIncrement() bool { return c.Keyword.Text == "increment" }

func (*RawStatement) statementNode()        {}
func (*ExpressionStatement) statementNode() {}
func (*AssignStatement) statementNode()     {}
func (*IfStatement) statementNode()         {}
func (*ForStatement) statementNode()        {}
func (*WhileStatement) statementNode()      {}
func (*WithStatement) statementNode()       {}
func (*CaptureStatement) statementNode()    {}
func (*FuncStatement) statementNode()       {}
func (*CaseStatement) statementNode()       {}
func (*LoopControl) statementNode()         {}
func (*ReturnStatement) statementNode()     {}
func (*ImportStatement) statementNode()     {}
func (*IncludeStatement) statementNode()    {}
func (*CounterStatement) statementNode()    {}

// ---------------------------------------------------------------------------
// Expressions

// Literal is a number, string, boolean or null.
type Literal struct {
	Loc
	Tok   Tok
	Value any
}

// Identifier names a variable or function.
type Identifier struct {
	Loc
	Tok Tok
}

// Name returns the identifier text.
func (i *Identifier) Name() string { return i.Tok.Text }

// SpecialVar is $, $0..$n or $name.
type SpecialVar struct {
	Loc
	Tok Tok
}

// Name returns the text after the dollar sign.
func (s *SpecialVar) Name() string { return strings.TrimPrefix(s.Tok.Text, "$") }

// Binary applies an infix operator.
type Binary struct {
	Loc
	Left  Expression
	Op    Tok
	Right Expression
}

// Unary applies a prefix operator.
type Unary struct {
	Loc
	Op      Tok
	Operand Expression
}

// FuncRef is @expr: a function value that is not invoked.
type FuncRef struct {
	Loc
	At     Tok
	Target Expression
}

// Paren is a parenthesized expression.
type Paren struct {
	Loc
	Open  Tok
	Inner Expression
	Close Tok
}

// Member is target.name.
type Member struct {
	Loc
	Target Expression
	Dot    Tok
	Name   Tok
}

// Index is target[index].
type Index struct {
	Loc
	Target Expression
	Open   Tok
	Index  Expression
	Close  Tok
}

// Arg is a call argument, array item or similar list element together
// with the comma that follows it.
type Arg struct {
	Loc
	Value Expression
	Comma *Tok
}

// Call invokes Callee. Open and Close are the parentheses of f(a, b); for
// implicit calls (f a b) both are nil, and for Liquid filters Open holds
// the colon.
type Call struct {
	Loc
	Callee Expression
	Open   *Tok
	Args   []*Arg
	Close  *Tok
}

// Implicit reports whether the call was written without parentheses.
func (c *Call) Implicit() bool { return c.Open == nil || c.Open.Type != lexer.OpenParen }

// NamedArg is name: value in an argument list.
type NamedArg struct {
	Loc
	Name  Tok
	Colon Tok
	Value Expression
}

// Pipe is left | right.
type Pipe struct {
	Loc
	Left  Expression
	Bar   Tok
	Right Expression
}

// ArrayLiteral is [a, b, c].
type ArrayLiteral struct {
	Loc
	Open  Tok
	Items []*Arg
	Close Tok
}

// ObjectMember is key: value inside an object literal.
type ObjectMember struct {
	Loc
	Key   Tok
	Colon Tok
	Value Expression
	Comma *Tok
}

// KeyName returns the member name, unquoting string keys.
func (m *ObjectMember) KeyName() string {
	if m.Key.Type == lexer.String || m.Key.Type == lexer.VerbatimString {
		if s, err := lexer.Unquote(m.Key.Text); err == nil {
			return s
		}
	}
	return m.Key.Text
}

// ObjectLiteral is {a: 1, b: 2}.
type ObjectLiteral struct {
	Loc
	Open    Tok
	Members []*ObjectMember
	Close   Tok
}

func (*Literal) expressionNode()       {}
func (*Identifier) expressionNode()    {}
func (*SpecialVar) expressionNode()    {}
func (*Binary) expressionNode()        {}
func (*Unary) expressionNode()         {}
func (*FuncRef) expressionNode()       {}
func (*Paren) expressionNode()         {}
func (*Member) expressionNode()        {}
func (*Index) expressionNode()         {}
func (*Call) expressionNode()          {}
func (*NamedArg) expressionNode()      {}
func (*Pipe) expressionNode()          {}
func (*ArrayLiteral) expressionNode()  {}
func (*ObjectLiteral) expressionNode() {}
