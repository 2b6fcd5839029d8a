// Package lexer turns template source into a lazy stream of positioned
// tokens.
//
// The lexer is error tolerant: malformed input is reported through Errors
// and tokenization continues, so the stream always ends with an Eof token.
// Every byte of the source is covered by exactly one token when trivia is
// kept, which is what makes lossless round-tripping possible.
package lexer

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

// Mode selects how top-level text is interpreted.
type Mode int

const (
	// ModeDefault lexes raw text with embedded {{ }} code blocks.
	ModeDefault Mode = iota
	// ModeLiquid lexes raw text with {{ }} output tags and {% %} statement tags.
	ModeLiquid
	// ModeScriptOnly lexes the whole input as code.
	ModeScriptOnly
	// ModeFrontMatterOnly lexes the front matter and stops at its closing marker.
	ModeFrontMatterOnly
	// ModeFrontMatterAndContent lexes the front matter as code and the
	// remainder as a template.
	ModeFrontMatterAndContent
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeLiquid:
		return "liquid"
	case ModeScriptOnly:
		return "script"
	case ModeFrontMatterOnly:
		return "frontmatter"
	case ModeFrontMatterAndContent:
		return "frontmatter+content"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// DefaultFrontMatterMarker delimits the front matter block.
const DefaultFrontMatterMarker = "+++"

// Options configures a Lexer.
type Options struct {
	Mode Mode
	// KeepTrivia emits whitespace and comment tokens inside code. Without it
	// they are skipped and round-tripping is not possible.
	KeepTrivia bool
	// StartPosition begins lexing part way into the source.
	StartPosition Position
	// EnableIncludeImplicitString lexes a bare path after a Liquid include
	// tag as an ImplicitString token.
	EnableIncludeImplicitString bool
	// FrontMatterMarker overrides DefaultFrontMatterMarker.
	FrontMatterMarker string
}

// Error is a lexical error. Code identifies the error in the diagnostics
// catalog and Data holds its template values.
type Error struct {
	Span    Span
	Code    string
	Message string
	Data    map[string]any
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Span.Start, e.Message)
}

type state int

const (
	stateRaw    state = iota
	stateCode         // {{ ... }}
	stateTag          // {% ... %}
	stateScript       // script-only input or front matter
	stateDone
)

type trim int

const (
	trimNone trim = iota
	trimSpaces
	trimFull
)

// Lexer produces tokens from a single source text. A Lexer is consumed
// once; create a new one to lex again.
type Lexer struct {
	text   string
	opts   Options
	marker string

	pos      Position
	state    state
	depth    int
	trimNext trim

	frontMatter  bool
	expectMarker bool

	// tagTokens counts significant tokens since the last statement boundary.
	tagTokens    int
	implicitNext bool

	queue  []Token
	errors []Error
}

// New creates a Lexer over text.
func New(text string, opts Options) *Lexer {
	l := &Lexer{text: text, opts: opts, marker: opts.FrontMatterMarker}
	if l.marker == "" {
		l.marker = DefaultFrontMatterMarker
	}
	if sp := opts.StartPosition; sp.Offset > 0 && sp.Offset <= len(text) {
		l.pos = sp
	}
	switch opts.Mode {
	case ModeScriptOnly:
		l.state = stateScript
	case ModeFrontMatterOnly, ModeFrontMatterAndContent:
		l.state = stateScript
		l.frontMatter = true
		l.expectMarker = true
	default:
		l.state = stateRaw
	}
	return l
}

// Tokenize lexes text completely.
func Tokenize(text string, opts Options) ([]Token, []Error) {
	l := New(text, opts)
	var toks []Token
	for tok := range l.Tokens() {
		toks = append(toks, tok)
	}
	return toks, l.Errors()
}

// Source returns the text being lexed.
func (l *Lexer) Source() string { return l.text }

// Options returns the options the lexer was created with.
func (l *Lexer) Options() Options { return l.opts }

// Errors returns the lexical errors found so far.
func (l *Lexer) Errors() []Error { return l.errors }

// HasErrors reports whether any lexical error was found.
func (l *Lexer) HasErrors() bool { return len(l.errors) > 0 }

// Tokens returns the remaining tokens as a single-use sequence ending
// with Eof.
func (l *Lexer) Tokens() iter.Seq[Token] {
	return func(yield func(Token) bool) {
		for {
			tok := l.Next()
			if !yield(tok) || tok.Type == Eof {
				return
			}
		}
	}
}

// Next returns the next token. After Eof it keeps returning Eof.
func (l *Lexer) Next() Token {
	if len(l.queue) > 0 {
		tok := l.queue[0]
		l.queue = l.queue[1:]
		return tok
	}
	for {
		var (
			tok Token
			ok  bool
		)
		switch l.state {
		case stateRaw:
			tok, ok = l.lexRaw()
		case stateCode, stateTag, stateScript:
			tok, ok = l.lexCode()
		default:
			tok, ok = l.eofToken(), true
		}
		if ok {
			return tok
		}
	}
}

func (l *Lexer) eofToken() Token {
	l.state = stateDone
	return Token{Type: Eof, Start: l.pos, End: l.pos}
}

// at returns the byte i positions ahead, or 0 past the end.
func (l *Lexer) at(i int) byte {
	if j := l.pos.Offset + i; j < len(l.text) {
		return l.text[j]
	}
	return 0
}

func (l *Lexer) rest() string { return l.text[l.pos.Offset:] }

func (l *Lexer) atEnd() bool { return l.pos.Offset >= len(l.text) }

// advance moves n bytes forward, tracking lines and columns.
func (l *Lexer) advance(n int) {
	end := min(l.pos.Offset+n, len(l.text))
	for l.pos.Offset < end {
		r, size := utf8.DecodeRuneInString(l.text[l.pos.Offset:])
		l.pos.Offset += size
		if r == '\n' {
			l.pos.Line++
			l.pos.Column = 0
		} else {
			l.pos.Column++
		}
	}
}

// take advances n bytes and returns the token covering them.
func (l *Lexer) take(typ TokenType, n int) Token {
	start := l.pos
	l.advance(n)
	return Token{Type: typ, Start: start, End: l.pos}
}

func (l *Lexer) errorAt(span Span, code string, data map[string]any, format string, args ...any) {
	l.errors = append(l.errors, Error{
		Span:    span,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Data:    data,
	})
}

// ---------------------------------------------------------------------------
// Raw text

func (l *Lexer) lexRaw() (Token, bool) {
	if t := l.trimNext; t != trimNone {
		l.trimNext = trimNone
		if n := whitespacePrefix(l.rest(), t == trimFull); n > 0 {
			return l.take(trimType(t), n), true
		}
	}
	if l.atEnd() {
		return l.eofToken(), true
	}

	off := l.pos.Offset
	open := l.findOpener(off)
	if open > off {
		end := open
		if open < len(l.text) {
			if t := l.openerTrim(open); t != trimNone {
				end = off + len(strings.TrimRight(l.text[off:open], trimCutset(t)))
			}
		}
		if end > off {
			return l.take(Raw, end-off), true
		}
		return l.take(trimType(l.openerTrim(open)), open-off), true
	}
	if open >= len(l.text) {
		return l.eofToken(), true
	}
	return l.lexOpener()
}

// findOpener returns the offset of the next code, tag or escape opener at
// or after off, or len(text).
func (l *Lexer) findOpener(off int) int {
	for i := off; i < len(l.text); {
		j := strings.IndexByte(l.text[i:], '{')
		if j < 0 {
			break
		}
		i += j
		if l.openerKind(i) != 0 {
			return i
		}
		i++
	}
	return len(l.text)
}

const (
	openCode   = 1
	openTag    = 2
	openEscape = 3
)

func (l *Lexer) openerKind(i int) int {
	if i+1 >= len(l.text) || l.text[i] != '{' {
		return 0
	}
	switch l.text[i+1] {
	case '{':
		return openCode
	case '%':
		if l.opts.Mode == ModeLiquid {
			return openTag
		}
		j := i + 1
		for j < len(l.text) && l.text[j] == '%' {
			j++
		}
		if j < len(l.text) && l.text[j] == '{' {
			return openEscape
		}
	}
	return 0
}

func (l *Lexer) openerTrim(i int) trim {
	if k := l.openerKind(i); k != openCode && k != openTag {
		return trimNone
	}
	if i+2 < len(l.text) {
		switch l.text[i+2] {
		case '~':
			return trimSpaces
		case '-':
			return trimFull
		}
	}
	return trimNone
}

func (l *Lexer) lexOpener() (Token, bool) {
	i := l.pos.Offset
	switch l.openerKind(i) {
	case openCode:
		n := 2
		if l.openerTrim(i) != trimNone {
			n++
		}
		l.state = stateCode
		l.depth = 0
		l.tagTokens = 0
		return l.take(CodeEnter, n), true

	case openTag:
		if n := l.matchLiquidTag(i, "raw"); n > 0 {
			return l.lexLiquidRaw(n), true
		}
		if n := l.matchLiquidTag(i, "comment"); n > 0 {
			return l.lexLiquidComment(n)
		}
		n := 2
		if l.openerTrim(i) != trimNone {
			n++
		}
		l.state = stateTag
		l.tagTokens = 0
		return l.take(LiquidTagEnter, n), true

	default:
		return l.lexEscapeBlock(), true
	}
}

// lexEscapeBlock handles {%{ ... }%}, where the number of % signs in the
// closing fence must match the opening one.
func (l *Lexer) lexEscapeBlock() Token {
	i := l.pos.Offset
	j := i + 1
	for l.text[j] == '%' {
		j++
	}
	percents := j - i - 1
	enter := l.take(EscapeEnter, percents+2)

	closing := "}" + strings.Repeat("%", percents) + "}"
	body := l.rest()
	k := strings.Index(body, closing)
	if k < 0 {
		if len(body) > 0 {
			l.queue = append(l.queue, l.take(Escape, len(body)))
		}
		l.errorAt(enter.Span(), "LEX-0005", map[string]any{"Fence": closing},
			"unterminated escape block, expected %q", closing)
		return enter
	}
	if k > 0 {
		l.queue = append(l.queue, l.take(Escape, k))
	}
	l.queue = append(l.queue, l.take(EscapeExit, len(closing)))
	return enter
}

// matchLiquidTag returns the length of a {% name %} tag at i, allowing
// whitespace control markers, or 0.
func (l *Lexer) matchLiquidTag(i int, name string) int {
	s := l.text[i:]
	if !strings.HasPrefix(s, "{%") {
		return 0
	}
	j := 2
	if j < len(s) && (s[j] == '-' || s[j] == '~') {
		j++
	}
	j += whitespacePrefix(s[j:], true)
	if !strings.HasPrefix(s[j:], name) {
		return 0
	}
	j += len(name)
	if j < len(s) && isIdentPart(s[j]) {
		return 0
	}
	j += whitespacePrefix(s[j:], true)
	if j < len(s) && (s[j] == '-' || s[j] == '~') {
		j++
	}
	if !strings.HasPrefix(s[j:], "%}") {
		return 0
	}
	return j + 2
}

// findLiquidTag finds the next {% name %} tag at or after off.
func (l *Lexer) findLiquidTag(off int, name string) (int, int) {
	for i := off; i < len(l.text); {
		j := strings.Index(l.text[i:], "{%")
		if j < 0 {
			break
		}
		i += j
		if n := l.matchLiquidTag(i, name); n > 0 {
			return i, n
		}
		i += 2
	}
	return -1, 0
}

func (l *Lexer) closeTrim(tagEnd int) trim {
	if tagEnd >= 3 {
		switch l.text[tagEnd-3] {
		case '~':
			return trimSpaces
		case '-':
			return trimFull
		}
	}
	return trimNone
}

func (l *Lexer) lexLiquidRaw(n int) Token {
	enter := l.take(EscapeEnter, n)
	at, size := l.findLiquidTag(l.pos.Offset, "endraw")
	if at < 0 {
		if !l.atEnd() {
			l.queue = append(l.queue, l.take(Escape, len(l.rest())))
		}
		l.errorAt(enter.Span(), "LEX-0006", map[string]any{"Tag": "endraw"},
			"missing {%% endraw %%} for raw block")
		return enter
	}
	if at > l.pos.Offset {
		l.queue = append(l.queue, l.take(Escape, at-l.pos.Offset))
	}
	l.queue = append(l.queue, l.take(EscapeExit, size))
	l.trimNext = l.closeTrim(l.pos.Offset)
	return enter
}

func (l *Lexer) lexLiquidComment(n int) (Token, bool) {
	start := l.pos
	at, size := l.findLiquidTag(l.pos.Offset+n, "endcomment")
	var tok Token
	if at < 0 {
		tok = l.take(CommentMulti, len(l.rest()))
		l.errorAt(Span{Start: start, End: start}, "LEX-0006", map[string]any{"Tag": "endcomment"},
			"missing {%% endcomment %%} for comment block")
	} else {
		tok = l.take(CommentMulti, at+size-l.pos.Offset)
		l.trimNext = l.closeTrim(l.pos.Offset)
	}
	return tok, l.opts.KeepTrivia
}

// ---------------------------------------------------------------------------
// Code

func (l *Lexer) lexCode() (Token, bool) {
	if l.expectMarker {
		return l.lexFrontMatterStart()
	}
	if l.frontMatter && l.pos.Column == 0 && strings.HasPrefix(l.rest(), l.marker) {
		tok := l.take(FrontMatterMarker, len(l.marker))
		l.frontMatter = false
		if l.opts.Mode == ModeFrontMatterOnly {
			l.state = stateDone
			l.queue = append(l.queue, Token{Type: Eof, Start: l.pos, End: l.pos})
		} else {
			l.state = stateRaw
		}
		return tok, true
	}
	if l.atEnd() {
		return l.eofToken(), true
	}

	c := l.at(0)
	switch {
	case c == ' ' || c == '\t' || c == '\f' || c == '\v':
		n := whitespacePrefix(l.rest(), false)
		tok := l.take(Whitespace, n)
		return tok, l.opts.KeepTrivia

	case c == '\r' || c == '\n':
		n := 0
		for s := l.rest(); n < len(s) && (s[n] == '\r' || s[n] == '\n'); n++ {
		}
		l.tagTokens = 0
		return l.take(NewLine, n), true

	case c == '#':
		return l.lexComment()
	}

	if n, t, ok := l.exitAt(l.pos.Offset); ok {
		typ := CodeExit
		if l.state == stateTag {
			typ = LiquidTagExit
		}
		l.state = stateRaw
		l.trimNext = t
		l.implicitNext = false
		return l.take(typ, n), true
	}

	if l.implicitNext {
		l.implicitNext = false
		if c != '"' && c != '\'' && c != '`' {
			if n := l.implicitStringLen(); n > 0 {
				l.tagTokens++
				return l.take(ImplicitString, n), true
			}
		}
	}

	tok := l.lexSignificant()
	switch tok.Type {
	case SemiColon:
		l.tagTokens = 0
	default:
		l.tagTokens++
	}
	return tok, true
}

func (l *Lexer) lexFrontMatterStart() (Token, bool) {
	if n := whitespacePrefix(l.rest(), true); n > 0 {
		return l.take(WhitespaceFull, n), true
	}
	l.expectMarker = false
	if strings.HasPrefix(l.rest(), l.marker) {
		return l.take(FrontMatterMarker, len(l.marker)), true
	}
	l.errorAt(Span{Start: l.pos, End: l.pos}, "LEX-0008", map[string]any{"Marker": l.marker},
		"expected front matter marker %q", l.marker)
	l.frontMatter = false
	if l.opts.Mode == ModeFrontMatterOnly {
		return l.eofToken(), true
	}
	l.state = stateRaw
	return Token{}, false
}

// exitAt reports whether a code or tag exit starts at i.
func (l *Lexer) exitAt(i int) (int, trim, bool) {
	s := l.text[i:]
	t := trimNone
	n := 0
	if len(s) > 0 && (s[0] == '~' || s[0] == '-') {
		if s[0] == '~' {
			t = trimSpaces
		} else {
			t = trimFull
		}
		n = 1
	}
	switch l.state {
	case stateCode:
		if l.depth == 0 && strings.HasPrefix(s[n:], "}}") {
			return n + 2, t, true
		}
	case stateTag:
		if strings.HasPrefix(s[n:], "%}") {
			return n + 2, t, true
		}
	}
	return 0, trimNone, false
}

func (l *Lexer) lexComment() (Token, bool) {
	s := l.rest()
	if strings.HasPrefix(s, "##") {
		n := len(s)
		if k := strings.Index(s[2:], "##"); k >= 0 {
			n = k + 4
		}
		tok := l.take(CommentMulti, n)
		return tok, l.opts.KeepTrivia
	}
	n := 0
	for n < len(s) {
		if s[n] == '\r' || s[n] == '\n' {
			break
		}
		if _, _, ok := l.exitAt(l.pos.Offset + n); ok {
			break
		}
		n++
	}
	tok := l.take(Comment, n)
	return tok, l.opts.KeepTrivia
}

func (l *Lexer) implicitStringLen() int {
	s := l.rest()
	n := 0
	for n < len(s) {
		c := s[n]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			break
		}
		if _, _, ok := l.exitAt(l.pos.Offset + n); ok {
			break
		}
		n++
	}
	return n
}

func (l *Lexer) lexSignificant() Token {
	c := l.at(0)
	switch {
	case isIdentStart(c):
		n := 1
		for isIdentPart(l.at(n)) {
			n++
		}
		tok := l.take(Identifier, n)
		if l.opts.EnableIncludeImplicitString && l.state == stateTag &&
			l.tagTokens == 0 && tok.Text(l.text) == "include" {
			l.implicitNext = true
		}
		return tok

	case c == '$':
		n := 1
		if isDigit(l.at(1)) {
			for isDigit(l.at(n)) {
				n++
			}
		} else if isIdentStart(l.at(1)) {
			for isIdentPart(l.at(n)) {
				n++
			}
		}
		return l.take(IdentifierSpecial, n)

	case isDigit(c):
		return l.lexNumber(0)

	case c == '-' && l.opts.Mode == ModeLiquid && isDigit(l.at(1)):
		return l.lexNumber(1)

	case c == '"' || c == '\'':
		return l.lexString(c)

	case c == '`':
		return l.lexVerbatim()
	}
	return l.lexOperator()
}

func (l *Lexer) lexNumber(n int) Token {
	start := l.pos
	typ := Integer
	for isDigit(l.at(n)) {
		n++
	}
	if l.at(n) == '.' && isDigit(l.at(n+1)) {
		typ = Float
		n++
		for isDigit(l.at(n)) {
			n++
		}
	}
	if c := l.at(n); c == 'e' || c == 'E' {
		k := n + 1
		if s := l.at(k); s == '+' || s == '-' {
			k++
		}
		typ = Float
		if !isDigit(l.at(k)) {
			tok := l.take(typ, k)
			l.errorAt(Span{Start: start, End: l.pos}, "LEX-0004", map[string]any{"Literal": tok.Text(l.text)},
				"expecting a digit after the exponent in %q", tok.Text(l.text))
			return tok
		}
		n = k
		for isDigit(l.at(n)) {
			n++
		}
	}
	return l.take(typ, n)
}

func (l *Lexer) lexString(quote byte) Token {
	start := l.pos
	s := l.rest()
	i := 1
	for i < len(s) && s[i] != quote {
		if s[i] != '^' {
			i++
			continue
		}
		if i+1 >= len(s) {
			i++
			break
		}
		n, ok := escapeLen(s[i:])
		if !ok {
			escStart := l.positionAt(start, s[:i])
			escEnd := l.positionAt(escStart, s[i:i+n])
			l.errorAt(Span{Start: escStart, End: escEnd}, "LEX-0002", map[string]any{"Escape": s[i : i+n]},
				"invalid escape sequence %q", s[i:i+n])
		}
		i += n
	}
	if i >= len(s) {
		tok := l.take(String, len(s))
		l.errorAt(tok.Span(), "LEX-0001", map[string]any{"Quote": string(quote)},
			"unterminated string, expecting a closing %c", quote)
		return tok
	}
	return l.take(String, i+1)
}

func (l *Lexer) lexVerbatim() Token {
	s := l.rest()
	k := strings.IndexByte(s[1:], '`')
	if k < 0 {
		tok := l.take(VerbatimString, len(s))
		l.errorAt(tok.Span(), "LEX-0009", nil, "unterminated verbatim string, expecting a closing `")
		return tok
	}
	return l.take(VerbatimString, k+2)
}

func (l *Lexer) lexOperator() Token {
	c, c1, c2 := l.at(0), l.at(1), l.at(2)
	typ, n := Invalid, 1
	switch c {
	case ';':
		typ = SemiColon
	case ':':
		typ = Colon
	case ',':
		typ = Comma
	case '.':
		typ = Dot
		if c1 == '.' {
			typ, n = DoubleDot, 2
			if c2 == '<' {
				typ, n = DoubleDotLess, 3
			}
		}
	case '|':
		typ = Pipe
		if c1 == '|' {
			typ, n = Or, 2
		}
	case '&':
		if c1 == '&' {
			typ, n = And, 2
		}
	case '+':
		typ = Plus
	case '-':
		typ = Minus
	case '*':
		typ = Asterisk
	case '/':
		typ = Divide
		if c1 == '/' {
			typ, n = DoubleDivide, 2
		}
	case '%':
		typ = Percent
	case '^':
		typ = Caret
	case '!':
		typ = Not
		if c1 == '=' {
			typ, n = NotEqual, 2
		}
	case '=':
		typ = Assign
		if c1 == '=' {
			typ, n = Equal, 2
		}
	case '<':
		typ = Less
		switch c1 {
		case '=':
			typ, n = LessEqual, 2
		case '>':
			typ, n = LessGreater, 2
		}
	case '>':
		typ = Greater
		if c1 == '=' {
			typ, n = GreaterEqual, 2
		}
	case '?':
		typ = Question
		if c1 == '?' {
			typ, n = DoubleQuestion, 2
		}
	case '@':
		typ = At
	case '(':
		typ = OpenParen
	case ')':
		typ = CloseParen
	case '[':
		typ = OpenBracket
	case ']':
		typ = CloseBracket
	case '{':
		typ = OpenBrace
		l.depth++
	case '}':
		typ = CloseBrace
		if l.depth > 0 {
			l.depth--
		} else {
			tok := l.take(typ, 1)
			l.errorAt(tok.Span(), "LEX-0003", nil, "unexpected '}' without a matching '{'")
			return tok
		}
	default:
		_, n = utf8.DecodeRuneInString(l.rest())
		tok := l.take(Invalid, n)
		l.errorAt(tok.Span(), "LEX-0007", map[string]any{"Char": tok.Text(l.text)},
			"unexpected character %q", tok.Text(l.text))
		return tok
	}

	if l.opts.Mode == ModeLiquid {
		switch typ {
		case Plus, Minus, Asterisk, Divide, DoubleDivide, Percent, Caret, Not, And, Or:
			typ = Invalid
		}
	} else if typ == Question {
		typ = Invalid
	}
	return l.take(typ, n)
}

// positionAt returns the position reached by advancing from p over s.
func (l *Lexer) positionAt(p Position, s string) Position {
	for _, r := range s {
		p.Offset += utf8.RuneLen(r)
		if r == '\n' {
			p.Line++
			p.Column = 0
		} else {
			p.Column++
		}
	}
	return p
}

// ---------------------------------------------------------------------------
// helpers

func trimType(t trim) TokenType {
	if t == trimFull {
		return WhitespaceFull
	}
	return Whitespace
}

func trimCutset(t trim) string {
	if t == trimFull {
		return " \t\f\v\r\n"
	}
	return " \t\f\v"
}

// whitespacePrefix returns the length of the leading whitespace of s,
// including line breaks when newlines is set.
func whitespacePrefix(s string, newlines bool) int {
	n := 0
	for n < len(s) {
		switch s[n] {
		case ' ', '\t', '\f', '\v':
		case '\r', '\n':
			if !newlines {
				return n
			}
		default:
			return n
		}
		n++
	}
	return n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
