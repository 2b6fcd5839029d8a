// Package parser builds a syntax tree from the lexer's token stream.
//
// The parser never panics on malformed input. Problems are recorded as
// messages and the parser skips to the next statement boundary, so callers
// always get a tree back. Nesting is bounded by an explicit depth counter
// rather than the Go call stack.
package parser

import (
	"slices"
	"sort"

	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// DefaultExpressionDepthLimit bounds statement and expression nesting when
// Options.ExpressionDepthLimit is zero.
const DefaultExpressionDepthLimit = 250

// Options configures parsing.
type Options struct {
	// ExpressionDepthLimit caps nested statements and expressions. Zero
	// selects DefaultExpressionDepthLimit.
	ExpressionDepthLimit int
	// ConvertLiquidFunctions rewrites Liquid filter names to their
	// namespaced equivalents, for example upcase to string.upcase.
	ConvertLiquidFunctions bool
}

// Parser turns one token stream into one Page.
type Parser struct {
	lex     *lexer.Lexer
	src     string
	opts    Options
	lexOpts lexer.Options
	liquid  bool

	toks  []lexer.Token // lookahead buffer
	pos   int           // index of cur in toks
	cur   lexer.Token
	last  lexer.Token // last token taken
	moved int         // tokens consumed so far

	pending []ast.Trivia

	messages errors.Messages
	depth    int
	aborted  bool

	nest          int // open ( [ { inside code
	loops         int
	funcs         int
	inCode        bool
	inFrontMatter bool
}

// New creates a parser reading from l.
func New(l *lexer.Lexer, opts Options) *Parser {
	if opts.ExpressionDepthLimit <= 0 {
		opts.ExpressionDepthLimit = DefaultExpressionDepthLimit
	}
	p := &Parser{
		lex:     l,
		src:     l.Source(),
		opts:    opts,
		lexOpts: l.Options(),
		liquid:  l.Options().Mode == lexer.ModeLiquid,
		pos:     -1,
	}
	p.advance()
	return p
}

// Parse parses the token stream of l into a page.
func Parse(l *lexer.Lexer, opts Options) (*ast.Page, errors.Messages) {
	return New(l, opts).ParsePage()
}

// ParseString lexes and parses text.
func ParseString(text string, lexOpts lexer.Options, opts Options) (*ast.Page, errors.Messages) {
	return Parse(lexer.New(text, lexOpts), opts)
}

// ParsePage parses the whole input.
func (p *Parser) ParsePage() (*ast.Page, errors.Messages) {
	page := &ast.Page{}

	switch p.lexOpts.Mode {
	case lexer.ModeFrontMatterOnly, lexer.ModeFrontMatterAndContent:
		if p.cur.Type == lexer.FrontMatterMarker {
			p.skipAsTrivia()
			p.inFrontMatter = true
			page.FrontMatter = p.parseStatements()
			p.inFrontMatter = false
			if p.cur.Type == lexer.FrontMatterMarker {
				p.skipAsTrivia()
			}
		}
	}
	page.Body = p.parseStatements()

	if p.inCode && !p.aborted {
		p.errorAt("PARSE-0007", p.cur.Span(), nil)
	}
	// Anything left (after an abort) is kept for round-tripping.
	for p.cur.Type != lexer.Eof {
		p.skipAsTrivia()
	}
	page.Trailing = p.pending
	p.pending = nil
	page.Range = lexer.Span{End: p.cur.End}

	return page, p.collectMessages()
}

func (p *Parser) collectMessages() errors.Messages {
	var out errors.Messages
	for _, e := range p.lex.Errors() {
		out.Add(errors.FromLexer(e))
	}
	out = append(out, p.messages...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Span.Start.Offset < out[j].Span.Start.Offset
	})
	return out
}

// ---------------------------------------------------------------------------
// Token handling

func (p *Parser) fill(i int) lexer.Token {
	for len(p.toks) <= i {
		if n := len(p.toks); n > 0 && p.toks[n-1].Type == lexer.Eof {
			return p.toks[n-1]
		}
		p.toks = append(p.toks, p.lex.Next())
	}
	return p.toks[i]
}

func (p *Parser) isTrivia(t lexer.TokenType) bool {
	switch t {
	case lexer.Whitespace, lexer.WhitespaceFull, lexer.Comment, lexer.CommentMulti:
		return true
	case lexer.NewLine:
		return p.liquid || p.nest > 0
	}
	return false
}

// advance moves to the next token, moving trivia into pending.
func (p *Parser) advance() {
	if p.cur.Type == lexer.Eof && p.pos >= 0 {
		return
	}
	p.pos++
	p.moved++
	for {
		t := p.fill(p.pos)
		if !p.isTrivia(t.Type) {
			p.cur = t
			// Release consumed tokens; only lookahead is kept.
			if p.pos > 64 {
				p.toks = slices.Clone(p.toks[p.pos:])
				p.pos = 0
			}
			return
		}
		p.pending = append(p.pending, ast.Trivia{Type: t.Type, Text: t.Text(p.src)})
		p.pos++
	}
}

// peek returns the n-th significant token after cur.
func (p *Parser) peek(n int) lexer.Token {
	i := p.pos
	for n > 0 {
		i++
		t := p.fill(i)
		if t.Type == lexer.Eof {
			return t
		}
		if !p.isTrivia(t.Type) {
			n--
		}
	}
	return p.fill(i)
}

// take consumes cur as a syntax token.
func (p *Parser) take() ast.Tok {
	t := ast.Tok{
		Type:    p.cur.Type,
		Text:    p.cur.Text(p.src),
		Span:    p.cur.Span(),
		Leading: p.pending,
	}
	p.pending = nil
	p.last = p.cur
	p.advance()
	return t
}

func (p *Parser) takePtr() *ast.Tok {
	t := p.take()
	return &t
}

// skipAsTrivia consumes cur without giving it meaning.
func (p *Parser) skipAsTrivia() {
	if p.cur.Type == lexer.Eof {
		return
	}
	p.pending = append(p.pending, ast.Trivia{Type: p.cur.Type, Text: p.cur.Text(p.src)})
	p.advance()
}

func (p *Parser) text() string { return p.cur.Text(p.src) }

func (p *Parser) atWord(words ...string) bool {
	return p.cur.Type == lexer.Identifier && slices.Contains(words, p.text())
}

// gapBefore reports whether trivia separates cur from the previous token.
func (p *Parser) gapBefore() bool {
	return p.cur.Start.Offset > p.last.End.Offset
}

func (p *Parser) spanFrom(start lexer.Position) lexer.Span {
	end := p.last.End
	if end.Offset < start.Offset {
		end = start
	}
	return lexer.Span{Start: start, End: end}
}

func (p *Parser) atTerminator() bool {
	switch p.cur.Type {
	case lexer.Eof, lexer.SemiColon, lexer.CodeExit, lexer.LiquidTagExit:
		return true
	case lexer.NewLine:
		return !p.isTrivia(lexer.NewLine)
	case lexer.FrontMatterMarker:
		return p.inFrontMatter
	}
	return false
}

func (p *Parser) expect(typ lexer.TokenType, what string) ast.Tok {
	if p.cur.Type == typ {
		return p.take()
	}
	p.errorAt("PARSE-0001", p.cur.Span(), map[string]any{"Expected": what, "Got": p.describe()})
	return ast.Tok{Type: typ, Span: lexer.Span{Start: p.cur.Start, End: p.cur.Start}}
}

func (p *Parser) describe() string {
	switch p.cur.Type {
	case lexer.Eof:
		return "<end of input>"
	case lexer.NewLine:
		return "<new line>"
	}
	return p.text()
}

// ---------------------------------------------------------------------------
// Diagnostics and depth

func (p *Parser) errorAt(code string, span lexer.Span, data map[string]any) {
	p.messages.Add(errors.NewAt(code, span, data))
}

func (p *Parser) enter() bool {
	if p.aborted {
		return false
	}
	p.depth++
	if p.depth > p.opts.ExpressionDepthLimit {
		p.errorAt("PARSE-0005", p.cur.Span(), map[string]any{"Limit": p.opts.ExpressionDepthLimit})
		p.aborted = true
		return false
	}
	return true
}

func (p *Parser) leave() { p.depth-- }

// recover skips to the next statement boundary.
func (p *Parser) recover() {
	for !p.atTerminator() {
		p.skipAsTrivia()
	}
}

// endOfStatement requires a statement boundary at cur.
func (p *Parser) endOfStatement() {
	if p.aborted || p.atTerminator() {
		return
	}
	p.errorAt("PARSE-0002", p.cur.Span(), map[string]any{"Token": p.describe()})
	p.recover()
}

// ---------------------------------------------------------------------------
// Statements

// parseStatements parses until Eof or one of the stop keywords at the
// start of a statement.
func (p *Parser) parseStatements(stops ...string) *ast.Block {
	block := &ast.Block{}
	start := p.cur.Start
	if !p.enter() {
		return block
	}
	defer p.leave()

loop:
	for !p.aborted {
		switch p.cur.Type {
		case lexer.Eof:
			break loop

		case lexer.Raw:
			tok := p.take()
			block.Statements = append(block.Statements, &ast.RawStatement{Loc: ast.Loc{Range: tok.Span}, Text: tok})

		case lexer.Escape:
			tok := p.take()
			block.Statements = append(block.Statements, &ast.RawStatement{Loc: ast.Loc{Range: tok.Span}, Text: tok, Escaped: true})

		case lexer.CodeEnter:
			p.inCode = true
			p.skipAsTrivia()
			if p.liquid {
				if s := p.parseLiquidOutput(); s != nil {
					block.Statements = append(block.Statements, s)
				}
			}

		case lexer.CodeExit, lexer.LiquidTagExit:
			p.inCode = false
			p.skipAsTrivia()

		case lexer.LiquidTagEnter:
			p.inCode = true
			p.skipAsTrivia()

		case lexer.NewLine, lexer.SemiColon, lexer.EscapeEnter, lexer.EscapeExit:
			p.skipAsTrivia()

		case lexer.FrontMatterMarker:
			if p.inFrontMatter {
				break loop
			}
			p.skipAsTrivia()

		default:
			if len(stops) > 0 && p.atWord(stops...) {
				break loop
			}
			before := p.moved
			var s ast.Statement
			if p.liquid {
				s = p.parseLiquidTag()
			} else {
				s = p.parseStatement()
			}
			if s != nil {
				block.Statements = append(block.Statements, s)
			}
			p.endOfStatement()
			if p.moved == before && !p.aborted && p.cur.Type != lexer.Eof {
				// No progress: drop the token so parsing can continue.
				p.skipAsTrivia()
			}
		}
	}
	block.Range = p.spanFrom(start)
	return block
}

func (p *Parser) parseStatement() ast.Statement {
	if p.cur.Type == lexer.Identifier {
		next := p.peek(1).Type
		if next != lexer.Dot && next != lexer.Assign {
			switch p.text() {
			case "if":
				return p.parseIf(defaultIfWords)
			case "for":
				return p.parseFor("end")
			case "while":
				return p.parseWhile()
			case "with":
				return p.parseWith()
			case "capture":
				return p.parseCapture("end")
			case "func":
				return p.parseFunc()
			case "case":
				return p.parseCase("end")
			case "break", "continue":
				return p.parseLoopControl()
			case "ret":
				return p.parseReturn()
			case "import":
				return p.parseImport()
			case "end", "else", "elseif", "when":
				p.unmatched(map[string]string{"end": "block", "else": "if", "elseif": "if", "when": "case"}[p.text()])
				return nil
			}
		}
	}
	return p.parseExpressionStatement()
}

func (p *Parser) unmatched(block string) {
	p.errorAt("PARSE-0004", p.cur.Span(), map[string]any{"Keyword": p.text(), "Block": block})
	p.skipAsTrivia()
	p.recover()
}

func (p *Parser) parseExpressionStatement() ast.Statement {
	start := p.cur.Start
	expr := p.parseExpr(precLowest, true)
	if expr == nil {
		p.recover()
		return nil
	}
	if p.cur.Type == lexer.Assign {
		return p.finishAssign(nil, expr, start)
	}
	return &ast.ExpressionStatement{Loc: ast.Loc{Range: p.spanFrom(start)}, Expr: expr}
}

func (p *Parser) finishAssign(keyword *ast.Tok, target ast.Expression, start lexer.Position) ast.Statement {
	if !assignable(target) {
		p.errorAt("PARSE-0008", target.Span(), map[string]any{"Target": p.src[target.Span().Start.Offset:target.Span().End.Offset]})
	}
	assign := p.expect(lexer.Assign, "'='")
	value := p.parseExpr(precLowest, true)
	return &ast.AssignStatement{
		Loc:     ast.Loc{Range: p.spanFrom(start)},
		Keyword: keyword,
		Target:  target,
		Assign:  assign,
		Value:   value,
	}
}

func assignable(e ast.Expression) bool {
	switch e := e.(type) {
	case *ast.Identifier, *ast.Member, *ast.Index:
		return true
	case *ast.SpecialVar:
		name := e.Name()
		return name != "" && !lexerIsDigit(name[0])
	}
	return false
}

func lexerIsDigit(c byte) bool { return c >= '0' && c <= '9' }

// expectEnd consumes the closing keyword of a block.
func (p *Parser) expectEnd(word, statement string) *ast.Tok {
	if p.atWord(word) {
		return p.takePtr()
	}
	if !p.aborted {
		p.errorAt("PARSE-0003", p.cur.Span(), map[string]any{"Statement": statement, "End": word})
	}
	return nil
}

func derefTok(t *ast.Tok) ast.Tok {
	if t == nil {
		return ast.Tok{}
	}
	return *t
}

type ifWords struct {
	elseIf string
	end    string
}

var defaultIfWords = ifWords{elseIf: "elseif", end: "end"}

func (p *Parser) parseIf(words ifWords) ast.Statement {
	start := p.cur.Start
	kw := p.take()
	n := p.parseIfChain(kw, nil, words)
	n.End = p.expectEnd(words.end, kw.Text)
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseIfChain(kw ast.Tok, elseKw *ast.Tok, words ifWords) *ast.IfStatement {
	start := kw.Span.Start
	if elseKw != nil {
		start = elseKw.Span.Start
	}
	n := &ast.IfStatement{ElseKeyword: elseKw, Keyword: kw, Negate: kw.Text == "unless"}
	n.Condition = p.parseExpr(precLowest, false)
	p.endOfStatement()
	n.Then = p.parseStatements(words.elseIf, "else", words.end)

	switch {
	case p.atWord(words.elseIf):
		next := p.take()
		n.ElseIf = p.parseIfChain(next, nil, words)
	case p.atWord("else"):
		e := p.take()
		if !p.liquid && p.atWord("if") {
			next := p.take()
			n.ElseIf = p.parseIfChain(next, &e, words)
		} else {
			p.endOfStatement()
			body := p.parseStatements(words.end)
			n.Else = &ast.ElseClause{Loc: ast.Loc{Range: p.spanFrom(e.Span.Start)}, Keyword: e, Body: body}
		}
	}
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseFor(end string) ast.Statement {
	start := p.cur.Start
	n := &ast.ForStatement{Keyword: p.take()}

	switch p.cur.Type {
	case lexer.Identifier:
		id := p.take()
		n.Variable = &ast.Identifier{Loc: ast.Loc{Range: id.Span}, Tok: id}
	case lexer.IdentifierSpecial:
		id := p.take()
		n.Variable = &ast.SpecialVar{Loc: ast.Loc{Range: id.Span}, Tok: id}
	default:
		p.errorAt("PARSE-0001", p.cur.Span(), map[string]any{"Expected": "a loop variable", "Got": p.describe()})
	}
	if p.atWord("in") {
		n.In = p.take()
	} else {
		p.errorAt("PARSE-0001", p.cur.Span(), map[string]any{"Expected": "'in'", "Got": p.describe()})
	}
	n.Iterable = p.parseExpr(precLowest, false)
	for p.atWord("offset", "limit", "reversed") {
		pstart := p.cur.Start
		param := &ast.ForParam{Name: p.take()}
		if param.Name.Text != "reversed" {
			colon := p.expect(lexer.Colon, "':'")
			param.Colon = &colon
			param.Value = p.parseExpr(precCoalesce, false)
		}
		param.Range = p.spanFrom(pstart)
		n.Params = append(n.Params, param)
	}
	p.endOfStatement()

	p.loops++
	n.Body = p.parseStatements("else", end)
	p.loops--
	if p.atWord("else") {
		e := p.take()
		p.endOfStatement()
		body := p.parseStatements(end)
		n.Else = &ast.ElseClause{Loc: ast.Loc{Range: p.spanFrom(e.Span.Start)}, Keyword: e, Body: body}
	}
	n.End = derefTok(p.expectEnd(end, "for"))
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseWhile() ast.Statement {
	start := p.cur.Start
	n := &ast.WhileStatement{Keyword: p.take()}
	n.Condition = p.parseExpr(precLowest, false)
	p.endOfStatement()
	p.loops++
	n.Body = p.parseStatements("end")
	p.loops--
	n.End = derefTok(p.expectEnd("end", "while"))
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseWith() ast.Statement {
	start := p.cur.Start
	n := &ast.WithStatement{Keyword: p.take()}
	n.Target = p.parseExpr(precLowest, false)
	p.endOfStatement()
	n.Body = p.parseStatements("end")
	n.End = derefTok(p.expectEnd("end", "with"))
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseCapture(end string) ast.Statement {
	start := p.cur.Start
	n := &ast.CaptureStatement{Keyword: p.take()}
	n.Target = p.parsePostfix(p.parsePrimary(), false)
	if n.Target == nil || !assignable(n.Target) {
		p.errorAt("PARSE-0001", p.cur.Span(), map[string]any{"Expected": "a variable to capture into", "Got": p.describe()})
	}
	p.endOfStatement()
	n.Body = p.parseStatements(end)
	n.End = derefTok(p.expectEnd(end, "capture"))
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseFunc() ast.Statement {
	start := p.cur.Start
	n := &ast.FuncStatement{Keyword: p.take()}
	n.Name = p.expect(lexer.Identifier, "a function name")

	if p.cur.Type == lexer.OpenParen {
		p.nest++
		n.Open = p.takePtr()
		n.Params = p.parseParams()
		p.nest--
		closeTok := p.expect(lexer.CloseParen, "')'")
		n.Close = &closeTok
	}
	p.endOfStatement()

	p.funcs++
	loops := p.loops
	p.loops = 0
	n.Body = p.parseStatements("end")
	p.loops = loops
	p.funcs--
	n.End = derefTok(p.expectEnd("end", "func"))
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseParams() []*ast.Param {
	var params []*ast.Param
	seen := map[string]bool{}
	optional := false
	for p.cur.Type == lexer.Identifier {
		start := p.cur.Start
		param := &ast.Param{Name: p.take()}
		name := param.Name.Text
		if seen[name] {
			p.errorAt("PARSE-0011", param.Name.Span, map[string]any{"Name": name})
		}
		seen[name] = true

		switch {
		case p.cur.Type == lexer.Assign:
			param.Assign = p.takePtr()
			param.Default = p.parseExpr(precCoalesce, false)
			optional = true
		case p.cur.Type == lexer.DoubleDot && p.peek(1).Type == lexer.Dot:
			param.Variadic = []ast.Tok{p.take(), p.take()}
		default:
			if optional {
				p.errorAt("PARSE-0012", param.Name.Span, map[string]any{"Name": name})
			}
		}
		if len(params) > 0 && params[len(params)-1].Variadic != nil {
			prev := params[len(params)-1]
			p.errorAt("PARSE-0015", prev.Name.Span, map[string]any{"Name": prev.Name.Text})
		}
		if p.cur.Type == lexer.Comma {
			param.Comma = p.takePtr()
		}
		param.Range = p.spanFrom(start)
		params = append(params, param)
		if param.Comma == nil {
			break
		}
	}
	return params
}

func (p *Parser) parseCase(end string) ast.Statement {
	start := p.cur.Start
	n := &ast.CaseStatement{Keyword: p.take()}
	n.Value = p.parseExpr(precLowest, false)
	p.endOfStatement()

	n.Leading = p.parseStatements("when", "else", end)
	for _, s := range n.Leading.Statements {
		if _, ok := s.(*ast.RawStatement); !ok {
			p.errorAt("PARSE-0001", s.Span(), map[string]any{"Expected": "'when'", "Got": p.src[s.Span().Start.Offset:s.Span().End.Offset]})
			break
		}
	}

	for p.atWord("when") {
		wstart := p.cur.Start
		w := &ast.WhenClause{Keyword: p.take()}
		for {
			v := p.parseExpr(precAnd, false)
			if v == nil {
				break
			}
			w.Values = append(w.Values, v)
			if p.cur.Type != lexer.Comma && !p.atWord("or") {
				break
			}
			w.Seps = append(w.Seps, p.take())
		}
		p.endOfStatement()
		w.Body = p.parseStatements("when", "else", end)
		w.Range = p.spanFrom(wstart)
		n.Whens = append(n.Whens, w)
	}
	if p.atWord("else") {
		e := p.take()
		p.endOfStatement()
		body := p.parseStatements(end)
		n.Else = &ast.ElseClause{Loc: ast.Loc{Range: p.spanFrom(e.Span.Start)}, Keyword: e, Body: body}
	}
	n.End = derefTok(p.expectEnd(end, "case"))
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseLoopControl() ast.Statement {
	kw := p.take()
	if p.loops == 0 {
		p.errorAt("PARSE-0010", kw.Span, map[string]any{"Keyword": kw.Text, "Context": "loop"})
	}
	return &ast.LoopControl{Loc: ast.Loc{Range: kw.Span}, Keyword: kw}
}

func (p *Parser) parseReturn() ast.Statement {
	start := p.cur.Start
	n := &ast.ReturnStatement{Keyword: p.take()}
	if !p.atTerminator() {
		n.Value = p.parseExpr(precLowest, true)
	}
	n.Range = p.spanFrom(start)
	return n
}

func (p *Parser) parseImport() ast.Statement {
	start := p.cur.Start
	n := &ast.ImportStatement{Keyword: p.take()}
	n.Value = p.parseExpr(precLowest, false)
	n.Range = p.spanFrom(start)
	return n
}
