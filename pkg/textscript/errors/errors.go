// Package errors provides the structured diagnostics of the template
// engine.
//
// ScriptError represents lexer, parser and runtime failures alike. Parse
// time problems are collected into Messages and never returned as Go
// errors by the parser; runtime problems are returned as *ScriptError
// carrying the source span of the offending node and, when relevant, the
// underlying cause.
package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"

	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// ErrorClass categorizes errors for filtering and templating.
type ErrorClass string

const (
	ClassLex       ErrorClass = "lex"       // Malformed tokens
	ClassParse     ErrorClass = "parse"     // Syntax errors
	ClassUndefined ErrorClass = "undefined" // Variable or member not found
	ClassType      ErrorClass = "type"      // Conversion failures
	ClassArity     ErrorClass = "arity"     // Wrong argument count
	ClassReadOnly  ErrorClass = "readonly"  // Mutation of read-only values
	ClassLimit     ErrorClass = "limit"     // Loop, recursion and time budgets
	ClassInclude   ErrorClass = "include"   // Template loading
	ClassInvoke    ErrorClass = "invoke"    // Failures inside called functions
	ClassOperator  ErrorClass = "operator"  // Invalid operations
	ClassState     ErrorClass = "state"     // Precondition failures
)

// Severity distinguishes errors from warnings in parse diagnostics.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ScriptError represents any error from lexing, parsing or evaluation.
type ScriptError struct {
	Class    ErrorClass     `json:"class"`
	Code     string         `json:"code"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Hints    []string       `json:"hints,omitempty"`
	Span     lexer.Span     `json:"-"`
	File     string         `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Cause    error          `json:"-"`
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return e.String()
}

// Unwrap returns the underlying cause.
func (e *ScriptError) Unwrap() error { return e.Cause }

// Line returns the one-based line of the error, or 0 when unknown.
func (e *ScriptError) Line() int {
	if e.Span.IsZero() {
		return 0
	}
	return e.Span.Start.Line + 1
}

// Column returns the one-based column of the error, or 0 when unknown.
func (e *ScriptError) Column() int {
	if e.Span.IsZero() {
		return 0
	}
	return e.Span.Start.Column + 1
}

// String returns a single line location prefix, the message, any hints,
// and the cause chain.
func (e *ScriptError) String() string {
	var sb strings.Builder
	e.writeLocation(&sb)
	sb.WriteString(e.Message)
	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}
	if e.Cause != nil {
		sb.WriteString("\n  caused by: ")
		sb.WriteString(strings.ReplaceAll(e.Cause.Error(), "\n", "\n  "))
	}
	return sb.String()
}

func (e *ScriptError) writeLocation(sb *strings.Builder) {
	if e.File != "" {
		sb.WriteString(e.File)
		if line := e.Line(); line > 0 {
			fmt.Fprintf(sb, "(%d,%d)", line, e.Column())
		}
		sb.WriteString(": ")
	} else if line := e.Line(); line > 0 {
		fmt.Fprintf(sb, "(%d,%d): ", line, e.Column())
	}
	if e.Severity == SeverityWarning {
		sb.WriteString("warning: ")
	}
}

// PrettyString returns a multi-line formatted string for display.
func (e *ScriptError) PrettyString() string {
	var sb strings.Builder

	switch e.Class {
	case ClassLex, ClassParse:
		sb.WriteString("Parser ")
	default:
		sb.WriteString("Runtime ")
	}
	sb.WriteString(e.Severity.String())

	if e.File != "" {
		sb.WriteString(":\n  in: ")
		sb.WriteString(e.File)
		if e.Line() > 0 {
			fmt.Fprintf(&sb, "\n  at: line %d, column %d", e.Line(), e.Column())
		}
		sb.WriteString("\n  ")
	} else if e.Line() > 0 {
		fmt.Fprintf(&sb, ": line %d, column %d\n  ", e.Line(), e.Column())
	} else {
		sb.WriteString(":\n  ")
	}

	sb.WriteString(e.Message)

	for i, hint := range e.Hints {
		sb.WriteString("\n  ")
		if i == 0 {
			sb.WriteString("Hint: ")
		} else {
			sb.WriteString("  or: ")
		}
		sb.WriteString(hint)
	}

	var inner *ScriptError
	if errors.As(e.Cause, &inner) {
		sb.WriteString("\n")
		sb.WriteString(inner.PrettyString())
	} else if e.Cause != nil {
		sb.WriteString("\n  caused by: ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *ScriptError) ToJSON() ([]byte, error) {
	return json.Marshal(e.jsonView())
}

// ToJSONIndent returns the error as indented JSON bytes.
func (e *ScriptError) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(e.jsonView(), "", "  ")
}

type jsonError struct {
	*ScriptError
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Cause  string `json:"cause,omitempty"`
}

func (e *ScriptError) jsonView() jsonError {
	v := jsonError{ScriptError: e, Line: e.Line(), Column: e.Column()}
	if e.Cause != nil {
		v.Cause = e.Cause.Error()
	}
	return v
}

// LogValue implements slog.LogValuer.
func (e *ScriptError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", e.Code),
		slog.String("class", string(e.Class)),
		slog.String("message", e.Message),
	}
	if e.File != "" {
		attrs = append(attrs, slog.String("file", e.File))
	}
	if e.Line() > 0 {
		attrs = append(attrs, slog.Int("line", e.Line()), slog.Int("column", e.Column()))
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}
	return slog.GroupValue(attrs...)
}

// WithFile returns a copy of the error with the file path set.
func (e *ScriptError) WithFile(file string) *ScriptError {
	c := *e
	c.File = file
	return &c
}

// WithSpan returns a copy of the error located at span.
func (e *ScriptError) WithSpan(span lexer.Span) *ScriptError {
	c := *e
	c.Span = span
	return &c
}

// Wrap returns a copy of the error with cause attached.
func (e *ScriptError) Wrap(cause error) *ScriptError {
	c := *e
	c.Cause = cause
	return &c
}

// IsParseError reports whether this is a lexer or parser error.
func (e *ScriptError) IsParseError() bool {
	return e.Class == ClassParse || e.Class == ClassLex
}

// IsRuntimeError reports whether this error was raised during evaluation.
func (e *ScriptError) IsRuntimeError() bool {
	return !e.IsParseError()
}

// HasCode reports whether err or any error it wraps is a ScriptError with
// the given code.
func HasCode(err error, code string) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *ScriptError:
		return e.Code == code || HasCode(e.Cause, code)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return HasCode(e.Unwrap(), code)
	}
	return false
}

// Sentinel errors returned by the public API.
var (
	ErrTemplateHasErrors              = errors.New("template has errors")
	ErrNoLoader                       = errors.New("no template loader configured")
	ErrProviderDoesNotSupportWildcard = errors.New("wildcards are only supported in the last path segment")
)

// Is, As and Join re-export the standard helpers so callers need a single
// errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// ============================================================================
// Catalog
// ============================================================================

// New creates a ScriptError from the catalog.
func New(code string, data map[string]any) *ScriptError {
	def, ok := ErrorCatalog[code]
	if !ok {
		return &ScriptError{
			Class:   ClassState,
			Code:    code,
			Message: fmt.Sprintf("unknown error code: %s", code),
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		if rendered := renderTemplate(hintTmpl, data); rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &ScriptError{
		Class:    def.Class,
		Code:     code,
		Severity: def.Severity,
		Message:  msg,
		Hints:    hints,
		Data:     data,
	}
}

// NewAt creates a catalog error located at span.
func NewAt(code string, span lexer.Span, data map[string]any) *ScriptError {
	err := New(code, data)
	err.Span = span
	return err
}

// NewSimple creates an error without using the catalog.
func NewSimple(class ErrorClass, span lexer.Span, message string) *ScriptError {
	return &ScriptError{Class: class, Span: span, Message: message}
}

// FromLexer converts a lexical error.
func FromLexer(e lexer.Error) *ScriptError {
	if _, ok := ErrorCatalog[e.Code]; ok {
		return NewAt(e.Code, e.Span, e.Data)
	}
	return &ScriptError{Class: ClassLex, Code: e.Code, Message: e.Message, Span: e.Span}
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	tmpl, err := template.New("").Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}
	return strings.ReplaceAll(buf.String(), "<no value>", "")
}

// ============================================================================
// Fuzzy matching
// ============================================================================

func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func matchThreshold(input string) int {
	switch {
	case len(input) >= 7:
		return 3
	case len(input) >= 4:
		return 2
	}
	return 1
}

// FindClosestMatch returns the candidate closest to input, or "" when none
// is within an edit distance proportional to the input length.
func FindClosestMatch(input string, candidates []string) string {
	if m := FindTopMatches(input, candidates, 1); len(m) > 0 {
		return m[0]
	}
	return ""
}

// FindTopMatches returns up to n candidates closest to input, nearest first.
func FindTopMatches(input string, candidates []string, n int) []string {
	if input == "" || len(candidates) == 0 || n <= 0 {
		return nil
	}
	type match struct {
		value    string
		distance int
	}
	in := strings.ToLower(input)
	threshold := matchThreshold(input)
	var matches []match
	for _, c := range candidates {
		d := levenshteinDistance(in, strings.ToLower(c))
		if d > 0 && d <= threshold {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})
	var out []string
	for i := 0; i < len(matches) && i < n; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// NewUndefinedVariable creates a variable-not-found error with a
// "did you mean" hint when a close match exists.
func NewUndefinedVariable(span lexer.Span, name string, available []string) *ScriptError {
	err := NewAt("UNDEF-0001", span, map[string]any{"Name": name})
	if suggestion := FindClosestMatch(name, available); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}
	return err
}

// NewUndefinedMember creates a member-not-found error with a "did you mean"
// hint when a close match exists.
func NewUndefinedMember(span lexer.Span, member, typeName string, available []string) *ScriptError {
	err := NewAt("UNDEF-0002", span, map[string]any{"Member": member, "Type": typeName})
	if suggestion := FindClosestMatch(member, available); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}
	return err
}

// Keywords are the reserved words of the language, used for typo hints.
var Keywords = []string{
	"if", "else", "elseif", "end", "for", "in", "while", "with", "capture",
	"func", "ret", "break", "continue", "case", "when", "import", "include",
	"true", "false", "null", "and", "or", "not",
}
