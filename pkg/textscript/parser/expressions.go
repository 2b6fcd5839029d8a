package parser

import (
	"strconv"

	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// Operator precedence, lowest first.
const (
	_ int = iota
	precLowest
	precPipe
	precCoalesce
	precOr
	precAnd
	precEquality
	precRelational
	precRange
	precAdditive
	precMultiplicative
	precPower
)

// infix returns the precedence of cur as a binary operator.
func (p *Parser) infix() (int, bool) {
	switch p.cur.Type {
	case lexer.Pipe:
		return precPipe, true
	case lexer.DoubleQuestion:
		return precCoalesce, true
	case lexer.Or:
		return precOr, true
	case lexer.And:
		return precAnd, true
	case lexer.Equal, lexer.NotEqual, lexer.LessGreater:
		return precEquality, true
	case lexer.Less, lexer.LessEqual, lexer.Greater, lexer.GreaterEqual:
		return precRelational, true
	case lexer.DoubleDot, lexer.DoubleDotLess:
		return precRange, true
	case lexer.Plus, lexer.Minus:
		return precAdditive, true
	case lexer.Asterisk, lexer.Divide, lexer.DoubleDivide, lexer.Percent:
		return precMultiplicative, true
	case lexer.Caret:
		return precPower, true
	case lexer.Identifier:
		switch p.text() {
		case "or":
			return precOr, true
		case "and":
			return precAnd, true
		case "contains":
			if p.liquid {
				return precEquality, true
			}
		}
	}
	return 0, false
}

// parseExpr parses a binary expression whose operators bind at least as
// tightly as minPrec. In command position a leading function name may take
// space-separated arguments.
func (p *Parser) parseExpr(minPrec int, command bool) ast.Expression {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	start := p.cur.Start
	left := p.parseOperand(command)
	if left == nil {
		return nil
	}
	for !p.aborted {
		prec, ok := p.infix()
		if !ok || prec < minPrec {
			break
		}
		if prec == precPipe {
			bar := p.take()
			right := p.parsePipeTarget()
			left = &ast.Pipe{Loc: ast.Loc{Range: p.spanFrom(start)}, Left: left, Bar: bar, Right: right}
			if right == nil {
				break
			}
			continue
		}
		op := p.take()
		next := prec + 1
		if prec == precPower {
			next = prec
		}
		right := p.parseExpr(next, false)
		left = &ast.Binary{Loc: ast.Loc{Range: p.spanFrom(start)}, Left: left, Op: op, Right: right}
		if right == nil {
			break
		}
	}
	return left
}

func (p *Parser) parseOperand(command bool) ast.Expression {
	left := p.parseUnary(command)
	if left != nil && command && !p.liquid && callable(left) && p.argStarts() {
		left = p.parseImplicitCall(left)
	}
	return left
}

func callable(e ast.Expression) bool {
	switch e.(type) {
	case *ast.Identifier, *ast.Member, *ast.Index, *ast.SpecialVar:
		return true
	}
	return false
}

// argStarts reports whether cur begins an argument of an implicit call.
func (p *Parser) argStarts() bool {
	switch p.cur.Type {
	case lexer.Integer, lexer.Float, lexer.String, lexer.VerbatimString, lexer.ImplicitString,
		lexer.IdentifierSpecial, lexer.OpenBrace, lexer.At, lexer.Not:
		return true
	case lexer.OpenBracket, lexer.OpenParen:
		return p.gapBefore()
	case lexer.Identifier:
		switch p.text() {
		case "and", "or", "contains", "in":
			return false
		}
		return true
	}
	return false
}

func operandStart(t lexer.TokenType) bool {
	switch t {
	case lexer.Identifier, lexer.IdentifierSpecial, lexer.Integer, lexer.Float,
		lexer.String, lexer.VerbatimString, lexer.OpenParen, lexer.OpenBracket,
		lexer.OpenBrace, lexer.Not, lexer.Minus, lexer.Plus, lexer.At:
		return true
	}
	return false
}

func (p *Parser) parseImplicitCall(callee ast.Expression) ast.Expression {
	start := callee.Span().Start
	call := &ast.Call{Callee: callee}
	for !p.aborted && p.argStarts() {
		astart := p.cur.Start
		v := p.parseArg(precCoalesce)
		if v == nil {
			break
		}
		call.Args = append(call.Args, &ast.Arg{Loc: ast.Loc{Range: p.spanFrom(astart)}, Value: v})
	}
	call.Range = p.spanFrom(start)
	return call
}

// parseArg parses a positional or name: value argument.
func (p *Parser) parseArg(minPrec int) ast.Expression {
	if p.cur.Type == lexer.Identifier && p.peek(1).Type == lexer.Colon {
		start := p.cur.Start
		n := &ast.NamedArg{Name: p.take()}
		n.Colon = p.take()
		n.Value = p.parseExpr(minPrec, false)
		n.Range = p.spanFrom(start)
		return n
	}
	return p.parseExpr(minPrec, false)
}

// parseArgList parses comma separated arguments up to a closing token.
func (p *Parser) parseArgList(closing lexer.TokenType, minPrec int) []*ast.Arg {
	var args []*ast.Arg
	for !p.aborted && p.cur.Type != closing && p.cur.Type != lexer.Eof {
		start := p.cur.Start
		v := p.parseArg(minPrec)
		if v == nil {
			break
		}
		a := &ast.Arg{Value: v}
		if p.cur.Type == lexer.Comma {
			a.Comma = p.takePtr()
		}
		a.Range = p.spanFrom(start)
		args = append(args, a)
		if a.Comma == nil {
			break
		}
	}
	return args
}

func (p *Parser) parsePipeTarget() ast.Expression {
	if p.liquid {
		return p.parseLiquidFilter()
	}
	return p.parseOperand(true)
}

func (p *Parser) parseUnary(command bool) ast.Expression {
	start := p.cur.Start
	switch p.cur.Type {
	case lexer.Not, lexer.Minus, lexer.Plus:
		return p.parsePrefix(start)
	case lexer.At:
		at := p.take()
		target := p.parsePostfix(p.parsePrimary(), false)
		return &ast.FuncRef{Loc: ast.Loc{Range: p.spanFrom(start)}, At: at, Target: target}
	case lexer.Identifier:
		if p.text() == "not" && operandStart(p.peek(1).Type) {
			return p.parsePrefix(start)
		}
	}
	return p.parsePostfix(p.parsePrimary(), command)
}

// parsePrefix parses a prefix operator. Its operand extends over a power
// expression, so -2 ^ 2 is -(2 ^ 2).
func (p *Parser) parsePrefix(start lexer.Position) ast.Expression {
	op := p.take()
	operand := p.parseExpr(precPower, false)
	return &ast.Unary{Loc: ast.Loc{Range: p.spanFrom(start)}, Op: op, Operand: operand}
}

// parsePostfix applies member access, indexing and parenthesized calls.
// With command set, a bracket separated by whitespace is left for the
// caller as an argument.
func (p *Parser) parsePostfix(expr ast.Expression, command bool) ast.Expression {
	for expr != nil && !p.aborted {
		start := expr.Span().Start
		switch p.cur.Type {
		case lexer.Dot:
			dot := p.take()
			name := p.expect(lexer.Identifier, "a member name")
			expr = &ast.Member{Loc: ast.Loc{Range: p.spanFrom(start)}, Target: expr, Dot: dot, Name: name}

		case lexer.OpenBracket:
			if command && p.gapBefore() {
				return expr
			}
			p.nest++
			open := p.take()
			index := p.parseExpr(precLowest, false)
			p.nest--
			closeTok := p.expect(lexer.CloseBracket, "']'")
			expr = &ast.Index{Loc: ast.Loc{Range: p.spanFrom(start)}, Target: expr, Open: open, Index: index, Close: closeTok}

		case lexer.OpenParen:
			if p.gapBefore() {
				return expr
			}
			p.nest++
			call := &ast.Call{Callee: expr, Open: p.takePtr()}
			call.Args = p.parseArgList(lexer.CloseParen, precLowest)
			p.nest--
			closeTok := p.expect(lexer.CloseParen, "')'")
			call.Close = &closeTok
			call.Range = p.spanFrom(start)
			expr = call

		default:
			return expr
		}
	}
	return expr
}

func (p *Parser) parsePrimary() ast.Expression {
	start := p.cur.Start
	switch p.cur.Type {
	case lexer.Integer:
		tok := p.take()
		var value any
		if i, err := strconv.ParseInt(tok.Text, 10, 64); err == nil {
			value = i
		} else if f, err := strconv.ParseFloat(tok.Text, 64); err == nil {
			value = f
		} else {
			p.errorAt("PARSE-0006", tok.Span, map[string]any{"Literal": tok.Text})
		}
		return &ast.Literal{Loc: ast.Loc{Range: tok.Span}, Tok: tok, Value: value}

	case lexer.Float:
		tok := p.take()
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			p.errorAt("PARSE-0006", tok.Span, map[string]any{"Literal": tok.Text})
		}
		return &ast.Literal{Loc: ast.Loc{Range: tok.Span}, Tok: tok, Value: f}

	case lexer.String, lexer.VerbatimString:
		tok := p.take()
		// Malformed strings were reported by the lexer.
		s, _ := lexer.Unquote(tok.Text)
		return &ast.Literal{Loc: ast.Loc{Range: tok.Span}, Tok: tok, Value: s}

	case lexer.ImplicitString:
		tok := p.take()
		return &ast.Literal{Loc: ast.Loc{Range: tok.Span}, Tok: tok, Value: tok.Text}

	case lexer.Identifier:
		tok := p.take()
		switch tok.Text {
		case "true":
			return &ast.Literal{Loc: ast.Loc{Range: tok.Span}, Tok: tok, Value: true}
		case "false":
			return &ast.Literal{Loc: ast.Loc{Range: tok.Span}, Tok: tok, Value: false}
		case "null", "nil":
			return &ast.Literal{Loc: ast.Loc{Range: tok.Span}, Tok: tok}
		}
		return &ast.Identifier{Loc: ast.Loc{Range: tok.Span}, Tok: tok}

	case lexer.IdentifierSpecial:
		tok := p.take()
		return &ast.SpecialVar{Loc: ast.Loc{Range: tok.Span}, Tok: tok}

	case lexer.OpenParen:
		p.nest++
		open := p.take()
		inner := p.parseExpr(precLowest, true)
		p.nest--
		closeTok := p.expect(lexer.CloseParen, "')'")
		return &ast.Paren{Loc: ast.Loc{Range: p.spanFrom(start)}, Open: open, Inner: inner, Close: closeTok}

	case lexer.OpenBracket:
		p.nest++
		n := &ast.ArrayLiteral{Open: p.take()}
		n.Items = p.parseArgList(lexer.CloseBracket, precLowest)
		p.nest--
		n.Close = p.expect(lexer.CloseBracket, "']'")
		n.Range = p.spanFrom(start)
		return n

	case lexer.OpenBrace:
		return p.parseObject()
	}

	if !p.aborted {
		p.errorAt("PARSE-0009", p.cur.Span(), map[string]any{"Got": p.describe()})
	}
	return nil
}

func (p *Parser) parseObject() ast.Expression {
	start := p.cur.Start
	p.nest++
	n := &ast.ObjectLiteral{Open: p.take()}
loop:
	for !p.aborted {
		switch p.cur.Type {
		case lexer.Identifier, lexer.String, lexer.VerbatimString:
		default:
			break loop
		}
		mstart := p.cur.Start
		m := &ast.ObjectMember{Key: p.take()}
		m.Colon = p.expect(lexer.Colon, "':'")
		m.Value = p.parseExpr(precLowest, false)
		if p.cur.Type == lexer.Comma {
			m.Comma = p.takePtr()
		}
		m.Range = p.spanFrom(mstart)
		n.Members = append(n.Members, m)
		if m.Comma == nil || m.Value == nil {
			break
		}
	}
	p.nest--
	n.Close = p.expect(lexer.CloseBrace, "'}'")
	n.Range = p.spanFrom(start)
	return n
}
