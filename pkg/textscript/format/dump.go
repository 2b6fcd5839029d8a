package format

import (
	"fmt"
	"strings"

	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// Dump returns an indented outline of the tree rooted at n, one node per
// line with its position.
func Dump(n ast.Node) string {
	p := NewPrinter()
	var stack []lexer.Span
	ast.Walk(n, func(node ast.Node) bool {
		span := node.Span()
		for len(stack) > 0 && !contains(stack[len(stack)-1], span) {
			stack = stack[:len(stack)-1]
		}
		p.indent = len(stack)
		p.writeIndent()
		p.write(describe(node))
		p.write(" @")
		p.write(span.Start.String())
		p.newline()
		stack = append(stack, span)
		return true
	})
	return p.String()
}

func contains(outer, inner lexer.Span) bool {
	return outer.Start.Offset <= inner.Start.Offset && inner.End.Offset <= outer.End.Offset
}

func describe(n ast.Node) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
	switch n := n.(type) {
	case *ast.RawStatement:
		return fmt.Sprintf("%s %q", name, n.Text.Text)
	case *ast.Literal:
		return fmt.Sprintf("%s %s", name, n.Tok.Text)
	case *ast.Identifier:
		return fmt.Sprintf("%s %s", name, n.Name())
	case *ast.SpecialVar:
		return fmt.Sprintf("%s %s", name, n.Tok.Text)
	case *ast.Binary:
		return fmt.Sprintf("%s %s", name, n.Op.Text)
	case *ast.Unary:
		return fmt.Sprintf("%s %s", name, n.Op.Text)
	case *ast.Member:
		return fmt.Sprintf("%s .%s", name, n.Name.Text)
	case *ast.NamedArg:
		return fmt.Sprintf("%s %s", name, n.Name.Text)
	case *ast.ObjectMember:
		return fmt.Sprintf("%s %s", name, n.KeyName())
	case *ast.IfStatement:
		return fmt.Sprintf("%s %s", name, n.Keyword.Text)
	case *ast.FuncStatement:
		return fmt.Sprintf("%s %s", name, n.Name.Text)
	case *ast.LoopControl:
		return fmt.Sprintf("%s %s", name, n.Keyword.Text)
	case *ast.CounterStatement:
		return fmt.Sprintf("%s %s %s", name, n.Keyword.Text, n.Name.Text)
	}
	return name
}
