package lexer

import "fmt"

// Position is a zero-based location in source text. Offset counts bytes,
// Column counts runes from the start of the line.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Line, p.Column)
}

// Span is the half-open source range [Start, End).
type Span struct {
	Start Position
	End   Position
}

// IsZero reports whether the span is unset.
func (s Span) IsZero() bool { return s == Span{} }

// Join returns the smallest span covering both s and o.
func (s Span) Join(o Span) Span {
	if s.IsZero() {
		return o
	}
	if o.IsZero() {
		return s
	}
	out := s
	if o.Start.Offset < out.Start.Offset {
		out.Start = o.Start
	}
	if o.End.Offset > out.End.Offset {
		out.End = o.End
	}
	return out
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	Invalid TokenType = iota
	Eof

	// Template structure
	Raw
	CodeEnter
	CodeExit
	LiquidTagEnter
	LiquidTagExit
	FrontMatterMarker
	EscapeEnter
	Escape
	EscapeExit

	// Trivia
	Whitespace
	WhitespaceFull
	NewLine
	Comment
	CommentMulti

	// Literals
	Identifier
	IdentifierSpecial
	Integer
	Float
	String
	VerbatimString
	ImplicitString

	// Operators and punctuation
	SemiColon      // ;
	Colon          // :
	Comma          // ,
	Dot            // .
	DoubleDot      // ..
	DoubleDotLess  // ..<
	Pipe           // |
	Plus           // +
	Minus          // -
	Asterisk       // *
	Divide         // /
	DoubleDivide   // //
	Percent        // %
	Caret          // ^
	Not            // !
	Assign         // =
	Equal          // ==
	NotEqual       // !=
	LessGreater    // <>
	Less           // <
	LessEqual      // <=
	Greater        // >
	GreaterEqual   // >=
	And            // &&
	Or             // ||
	DoubleQuestion // ??
	Question       // ?
	At             // @
	OpenParen      // (
	CloseParen     // )
	OpenBracket    // [
	CloseBracket   // ]
	OpenBrace      // {
	CloseBrace     // }
)

var tokenNames = [...]string{
	Invalid:           "Invalid",
	Eof:               "Eof",
	Raw:               "Raw",
	CodeEnter:         "CodeEnter",
	CodeExit:          "CodeExit",
	LiquidTagEnter:    "LiquidTagEnter",
	LiquidTagExit:     "LiquidTagExit",
	FrontMatterMarker: "FrontMatterMarker",
	EscapeEnter:       "EscapeEnter",
	Escape:            "Escape",
	EscapeExit:        "EscapeExit",
	Whitespace:        "Whitespace",
	WhitespaceFull:    "WhitespaceFull",
	NewLine:           "NewLine",
	Comment:           "Comment",
	CommentMulti:      "CommentMulti",
	Identifier:        "Identifier",
	IdentifierSpecial: "IdentifierSpecial",
	Integer:           "Integer",
	Float:             "Float",
	String:            "String",
	VerbatimString:    "VerbatimString",
	ImplicitString:    "ImplicitString",
	SemiColon:         ";",
	Colon:             ":",
	Comma:             ",",
	Dot:               ".",
	DoubleDot:         "..",
	DoubleDotLess:     "..<",
	Pipe:              "|",
	Plus:              "+",
	Minus:             "-",
	Asterisk:          "*",
	Divide:            "/",
	DoubleDivide:      "//",
	Percent:           "%",
	Caret:             "^",
	Not:               "!",
	Assign:            "=",
	Equal:             "==",
	NotEqual:          "!=",
	LessGreater:       "<>",
	Less:              "<",
	LessEqual:         "<=",
	Greater:           ">",
	GreaterEqual:      ">=",
	And:               "&&",
	Or:                "||",
	DoubleQuestion:    "??",
	Question:          "?",
	At:                "@",
	OpenParen:         "(",
	CloseParen:        ")",
	OpenBracket:       "[",
	CloseBracket:      "]",
	OpenBrace:         "{",
	CloseBrace:        "}",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// IsTrivia reports whether tokens of this type carry no meaning for the
// parser beyond their presence in round-trip output.
func (t TokenType) IsTrivia() bool {
	switch t {
	case Whitespace, WhitespaceFull, Comment, CommentMulti:
		return true
	}
	return false
}

// Token is a typed source range. It holds no text; use Text to slice the
// source it was produced from.
type Token struct {
	Type  TokenType
	Start Position
	End   Position
}

// Span returns the token's source range.
func (t Token) Span() Span { return Span{Start: t.Start, End: t.End} }

// Len returns the token length in bytes.
func (t Token) Len() int { return t.End.Offset - t.Start.Offset }

// Text returns the source substring the token covers.
func (t Token) Text(source string) string {
	if t.Start.Offset < 0 || t.End.Offset > len(source) || t.Start.Offset > t.End.Offset {
		return ""
	}
	return source[t.Start.Offset:t.End.Offset]
}

func (t Token) String() string {
	return fmt.Sprintf("%s%s", t.Type, t.Span())
}
