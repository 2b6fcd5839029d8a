// Package format turns syntax trees back into text.
//
// ToText reproduces the source a tree was parsed from: every token keeps its
// leading trivia, so printing tokens in order restores whitespace, comments
// and code delimiters. Dump renders an indented outline of a tree for
// debugging.
package format

import (
	"io"

	"github.com/sambeau/textscript/pkg/textscript/ast"
)

// ToText prints page as template text.
func ToText(page *ast.Page) string {
	p := NewPrinter()
	p.text(page)
	return p.String()
}

// WriteText prints page to w.
func WriteText(w io.Writer, page *ast.Page) error {
	_, err := io.WriteString(w, ToText(page))
	return err
}

// NodeText prints a single node without the trivia before its first token.
func NodeText(n ast.Node) string {
	p := NewPrinter()
	first := true
	for tok := range ast.Tokens(n) {
		if !first {
			p.trivia(tok.Leading)
		}
		first = false
		p.write(tok.Text)
	}
	return p.String()
}

func (p *Printer) text(page *ast.Page) {
	if page == nil {
		return
	}
	for tok := range ast.Tokens(page) {
		p.trivia(tok.Leading)
		p.write(tok.Text)
	}
	p.trivia(page.Trailing)
}

func (p *Printer) trivia(ts []ast.Trivia) {
	for _, t := range ts {
		p.write(t.Text)
	}
}
