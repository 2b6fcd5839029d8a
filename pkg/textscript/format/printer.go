package format

import (
	"strings"
)

// IndentString is written once per nesting level by Dump.
const IndentString = "  "

// Printer manages output state for the printers in this package
type Printer struct {
	output strings.Builder
	indent int // current nesting level
}

// NewPrinter creates a new Printer instance
func NewPrinter() *Printer {
	return &Printer{}
}

// String returns the printed output
func (p *Printer) String() string {
	return p.output.String()
}

func (p *Printer) write(s string) {
	p.output.WriteString(s)
}

func (p *Printer) newline() {
	p.output.WriteString("\n")
}

// writeIndent writes the current indentation
func (p *Printer) writeIndent() {
	p.write(strings.Repeat(IndentString, p.indent))
}
