package parser

import (
	"strings"

	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// liquidFunctions maps Liquid filter names to namespaced builtins.
var liquidFunctions = map[string]string{
	"abs":            "math.abs",
	"append":         "string.append",
	"capitalize":     "string.capitalize",
	"ceil":           "math.ceil",
	"compact":        "array.compact",
	"concat":         "array.concat",
	"date":           "date.to_string",
	"default":        "object.default",
	"divided_by":     "math.divided_by",
	"downcase":       "string.downcase",
	"escape":         "html.escape",
	"escape_once":    "html.escape",
	"first":          "array.first",
	"floor":          "math.floor",
	"join":           "array.join",
	"last":           "array.last",
	"lstrip":         "string.lstrip",
	"map":            "array.map",
	"minus":          "math.minus",
	"modulo":         "math.modulo",
	"plus":           "math.plus",
	"prepend":        "string.prepend",
	"remove":         "string.remove",
	"remove_first":   "string.remove_first",
	"replace":        "string.replace",
	"replace_first":  "string.replace_first",
	"reverse":        "array.reverse",
	"round":          "math.round",
	"rstrip":         "string.rstrip",
	"size":           "object.size",
	"slice":          "string.slice",
	"sort":           "array.sort",
	"split":          "string.split",
	"strip":          "string.strip",
	"strip_html":     "html.strip",
	"strip_newlines": "string.strip_newlines",
	"times":          "math.times",
	"truncate":       "string.truncate",
	"truncatewords":  "string.truncatewords",
	"uniq":           "array.uniq",
	"upcase":         "string.upcase",
	"url_encode":     "html.url_encode",
	"url_decode":     "html.url_decode",
}

// LiquidFunction returns the namespaced name of a Liquid filter.
func LiquidFunction(name string) (string, bool) {
	full, ok := liquidFunctions[name]
	return full, ok
}

// parseLiquidOutput parses the expression of {{ ... }}.
func (p *Parser) parseLiquidOutput() ast.Statement {
	if p.atTerminator() {
		return nil
	}
	start := p.cur.Start
	expr := p.parseExpr(precLowest, false)
	if expr == nil {
		p.recover()
		return nil
	}
	stmt := &ast.ExpressionStatement{Loc: ast.Loc{Range: p.spanFrom(start)}, Expr: expr}
	p.endOfStatement()
	return stmt
}

// parseLiquidTag parses the body of {% ... %}.
func (p *Parser) parseLiquidTag() ast.Statement {
	if p.cur.Type != lexer.Identifier {
		p.errorAt("PARSE-0002", p.cur.Span(), map[string]any{"Token": p.describe()})
		p.recover()
		return nil
	}
	switch tag := p.text(); tag {
	case "assign":
		start := p.cur.Start
		kw := p.takePtr()
		target := p.parsePostfix(p.parsePrimary(), false)
		if target == nil {
			p.recover()
			return nil
		}
		return p.finishAssign(kw, target, start)
	case "capture":
		return p.parseCapture("endcapture")
	case "if":
		return p.parseIf(ifWords{elseIf: "elsif", end: "endif"})
	case "unless":
		return p.parseIf(ifWords{elseIf: "elsif", end: "endunless"})
	case "case":
		return p.parseCase("endcase")
	case "for":
		return p.parseFor("endfor")
	case "break", "continue":
		return p.parseLoopControl()
	case "include":
		return p.parseLiquidInclude()
	case "increment", "decrement":
		start := p.cur.Start
		n := &ast.CounterStatement{Keyword: p.take()}
		n.Name = p.expect(lexer.Identifier, "a variable name")
		n.Range = p.spanFrom(start)
		return n
	case "else", "elsif", "endif", "endunless":
		p.unmatched("if")
		return nil
	case "endfor":
		p.unmatched("for")
		return nil
	case "when", "endcase":
		p.unmatched("case")
		return nil
	case "endcapture":
		p.unmatched("capture")
		return nil
	default:
		p.errorAt("PARSE-0013", p.cur.Span(), map[string]any{"Tag": tag})
		p.recover()
		return nil
	}
}

func (p *Parser) parseLiquidInclude() ast.Statement {
	start := p.cur.Start
	n := &ast.IncludeStatement{Keyword: p.take()}
	n.Name = p.parsePostfix(p.parsePrimary(), false)
	if p.atWord("with", "for") {
		n.Mode = p.takePtr()
		n.Target = p.parseExpr(precCoalesce, false)
	}
	if p.atWord("as") {
		n.Alias = []ast.Tok{p.take(), p.expect(lexer.Identifier, "an alias name")}
	}
	for !p.aborted && p.cur.Type == lexer.Identifier && p.peek(1).Type == lexer.Colon {
		astart := p.cur.Start
		a := &ast.Arg{Value: p.parseArg(precCoalesce)}
		if p.cur.Type == lexer.Comma {
			a.Comma = p.takePtr()
		}
		a.Range = p.spanFrom(astart)
		n.Args = append(n.Args, a)
	}
	n.Range = p.spanFrom(start)
	return n
}

// parseLiquidFilter parses the right side of a Liquid pipe: name or
// name: arg, arg.
func (p *Parser) parseLiquidFilter() ast.Expression {
	start := p.cur.Start
	callee := p.parsePostfix(p.parsePrimary(), false)
	if callee == nil {
		return nil
	}
	callee = p.convertFunction(callee)
	if p.cur.Type != lexer.Colon {
		return callee
	}
	call := &ast.Call{Callee: callee, Open: p.takePtr()}
	call.Args = p.parseArgList(lexer.LiquidTagExit, precCoalesce)
	call.Range = p.spanFrom(start)
	return call
}

// convertFunction rewrites a Liquid filter name when conversion is enabled.
// The rewritten tokens print as the namespaced name.
func (p *Parser) convertFunction(e ast.Expression) ast.Expression {
	id, ok := e.(*ast.Identifier)
	if !ok || !p.opts.ConvertLiquidFunctions {
		return e
	}
	full, ok := liquidFunctions[id.Name()]
	if !ok {
		return e
	}
	ns, name, _ := strings.Cut(full, ".")
	span := id.Tok.Span
	return &ast.Member{
		Loc: id.Loc,
		Target: &ast.Identifier{
			Loc: id.Loc,
			Tok: ast.Tok{Type: lexer.Identifier, Text: ns, Span: span, Leading: id.Tok.Leading},
		},
		Dot:  ast.Tok{Type: lexer.Dot, Text: ".", Span: span},
		Name: ast.Tok{Type: lexer.Identifier, Text: name, Span: span},
	}
}
