package ast

import "iter"

// Walk calls fn for n and each of its descendants in source order. When fn
// returns false the children of that node are skipped.
func Walk(n Node, fn func(Node) bool) {
	traverse(n, fn, nil)
}

// Tokens yields every token of the tree rooted at n in source order.
// Concatenating each token's leading trivia and text, followed by the
// page's trailing trivia, reproduces the parsed source.
func Tokens(n Node) iter.Seq[*Tok] {
	return func(yield func(*Tok) bool) {
		traverse(n, nil, yield)
	}
}

// ReferencesDollar reports whether e mentions the bare special variable $.
func ReferencesDollar(e Expression) bool {
	found := false
	Walk(e, func(n Node) bool {
		if found {
			return false
		}
		if sv, ok := n.(*SpecialVar); ok && sv.Tok.Text == "$" {
			found = true
		}
		return !found
	})
	return found
}

type walker struct {
	node    func(Node) bool
	tok     func(*Tok) bool
	stopped bool
}

func traverse(n Node, onNode func(Node) bool, onTok func(*Tok) bool) {
	w := &walker{node: onNode, tok: onTok}
	w.visit(n)
}

func (w *walker) t(tok *Tok) {
	if w.stopped || tok == nil || w.tok == nil {
		return
	}
	if !w.tok(tok) {
		w.stopped = true
	}
}

func (w *walker) toks(toks []Tok) {
	for i := range toks {
		w.t(&toks[i])
	}
}

func (w *walker) block(b *Block) {
	if b != nil {
		w.visit(b)
	}
}

func (w *walker) args(args []*Arg) {
	for _, a := range args {
		w.visit(a)
	}
}

func (w *walker) elseClause(e *ElseClause) {
	if e != nil {
		w.visit(e)
	}
}

func (w *walker) visit(n Node) {
	if w.stopped || isNil(n) {
		return
	}
	if w.node != nil && !w.node(n) {
		return
	}

	switch n := n.(type) {
	case *Page:
		w.block(n.FrontMatter)
		w.block(n.Body)
	case *Block:
		for _, s := range n.Statements {
			w.visit(s)
		}
	case *ElseClause:
		w.t(&n.Keyword)
		w.block(n.Body)

	case *RawStatement:
		w.t(&n.Text)
	case *ExpressionStatement:
		w.visit(n.Expr)
	case *AssignStatement:
		w.t(n.Keyword)
		w.visit(n.Target)
		w.t(&n.Assign)
		w.visit(n.Value)
	case *IfStatement:
		w.t(n.ElseKeyword)
		w.t(&n.Keyword)
		w.visit(n.Condition)
		w.block(n.Then)
		if n.ElseIf != nil {
			w.visit(n.ElseIf)
		}
		w.elseClause(n.Else)
		w.t(n.End)
	case *ForStatement:
		w.t(&n.Keyword)
		w.visit(n.Variable)
		w.t(&n.In)
		w.visit(n.Iterable)
		for _, p := range n.Params {
			w.visit(p)
		}
		w.block(n.Body)
		w.elseClause(n.Else)
		w.t(&n.End)
	case *ForParam:
		w.t(&n.Name)
		w.t(n.Colon)
		w.visit(n.Value)
	case *WhileStatement:
		w.t(&n.Keyword)
		w.visit(n.Condition)
		w.block(n.Body)
		w.t(&n.End)
	case *WithStatement:
		w.t(&n.Keyword)
		w.visit(n.Target)
		w.block(n.Body)
		w.t(&n.End)
	case *CaptureStatement:
		w.t(&n.Keyword)
		w.visit(n.Target)
		w.block(n.Body)
		w.t(&n.End)
	case *FuncStatement:
		w.t(&n.Keyword)
		w.t(&n.Name)
		w.t(n.Open)
		for _, p := range n.Params {
			w.visit(p)
		}
		w.t(n.Close)
		w.block(n.Body)
		w.t(&n.End)
	case *Param:
		w.t(&n.Name)
		w.t(n.Assign)
		w.visit(n.Default)
		w.toks(n.Variadic)
		w.t(n.Comma)
	case *CaseStatement:
		w.t(&n.Keyword)
		w.visit(n.Value)
		w.block(n.Leading)
		for _, c := range n.Whens {
			w.visit(c)
		}
		w.elseClause(n.Else)
		w.t(&n.End)
	case *WhenClause:
		w.t(&n.Keyword)
		for i, v := range n.Values {
			w.visit(v)
			if i < len(n.Seps) {
				w.t(&n.Seps[i])
			}
		}
		w.block(n.Body)
	case *LoopControl:
		w.t(&n.Keyword)
	case *ReturnStatement:
		w.t(&n.Keyword)
		w.visit(n.Value)
	case *ImportStatement:
		w.t(&n.Keyword)
		w.visit(n.Value)
	case *IncludeStatement:
		w.t(&n.Keyword)
		w.visit(n.Name)
		w.t(n.Mode)
		w.visit(n.Target)
		w.toks(n.Alias)
		w.args(n.Args)
	case *CounterStatement:
		w.t(&n.Keyword)
		w.t(&n.Name)

	case *Literal:
		w.t(&n.Tok)
	case *Identifier:
		w.t(&n.Tok)
	case *SpecialVar:
		w.t(&n.Tok)
	case *Binary:
		w.visit(n.Left)
		w.t(&n.Op)
		w.visit(n.Right)
	case *Unary:
		w.t(&n.Op)
		w.visit(n.Operand)
	case *FuncRef:
		w.t(&n.At)
		w.visit(n.Target)
	case *Paren:
		w.t(&n.Open)
		w.visit(n.Inner)
		w.t(&n.Close)
	case *Member:
		w.visit(n.Target)
		w.t(&n.Dot)
		w.t(&n.Name)
	case *Index:
		w.visit(n.Target)
		w.t(&n.Open)
		w.visit(n.Index)
		w.t(&n.Close)
	case *Arg:
		w.visit(n.Value)
		w.t(n.Comma)
	case *Call:
		w.visit(n.Callee)
		w.t(n.Open)
		w.args(n.Args)
		w.t(n.Close)
	case *NamedArg:
		w.t(&n.Name)
		w.t(&n.Colon)
		w.visit(n.Value)
	case *Pipe:
		w.visit(n.Left)
		w.t(&n.Bar)
		w.visit(n.Right)
	case *ArrayLiteral:
		w.t(&n.Open)
		w.args(n.Items)
		w.t(&n.Close)
	case *ObjectLiteral:
		w.t(&n.Open)
		for _, m := range n.Members {
			w.visit(m)
		}
		w.t(&n.Close)
	case *ObjectMember:
		w.t(&n.Key)
		w.t(&n.Colon)
		w.visit(n.Value)
		w.t(n.Comma)
	}
}

// isNil reports whether n is nil or a typed nil pointer.
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	switch v := n.(type) {
	case *Page:
		return v == nil
	case *Block:
		return v == nil
	case *ElseClause:
		return v == nil
	case *IfStatement:
		return v == nil
	case *ForParam:
		return v == nil
	case *Param:
		return v == nil
	case *WhenClause:
		return v == nil
	case *Arg:
		return v == nil
	case *ObjectMember:
		return v == nil
	}
	return false
}
