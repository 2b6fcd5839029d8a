package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

func span(line, col int) lexer.Span {
	start := lexer.Position{Line: line - 1, Column: col - 1, Offset: 1}
	return lexer.Span{Start: start, End: start}
}

func TestScriptError_String(t *testing.T) {
	tests := []struct {
		name     string
		err      *ScriptError
		expected string
	}{
		{
			name:     "message only",
			err:      &ScriptError{Message: "something went wrong"},
			expected: "something went wrong",
		},
		{
			name:     "with span",
			err:      &ScriptError{Message: "unexpected token", Span: span(5, 10)},
			expected: "(5,10): unexpected token",
		},
		{
			name:     "with file",
			err:      &ScriptError{Message: "parse error", File: "page.txt", Span: span(3, 1)},
			expected: "page.txt(3,1): parse error",
		},
		{
			name:     "warning",
			err:      &ScriptError{Message: "empty code block", Severity: SeverityWarning},
			expected: "warning: empty code block",
		},
		{
			name:     "with hints",
			err:      &ScriptError{Message: "not found: fo", Hints: []string{"Did you mean `for`?"}},
			expected: "not found: fo\n  Did you mean `for`?",
		},
		{
			name: "with cause",
			err: &ScriptError{
				Message: "failed to load the template 'a'",
				Cause:   &ScriptError{Message: "boom", File: "a", Span: span(1, 2)},
			},
			expected: "failed to load the template 'a'\n  caused by: a(1,2): boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestScriptError_PrettyString(t *testing.T) {
	inner := NewAt("PARSE-0002", span(1, 4), map[string]any{"Token": "}"}).WithFile("inner.txt")
	outer := NewAt("INCL-0004", span(2, 3), map[string]any{"Name": "inner.txt"}).WithFile("outer.txt").Wrap(inner)

	got := outer.PrettyString()
	for _, want := range []string{
		"Runtime error",
		"in: outer.txt",
		"at: line 2, column 3",
		"the template 'inner.txt' has errors",
		"Parser error",
		"in: inner.txt",
		"at: line 1, column 4",
		"unexpected token '}'",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("PrettyString() missing %q in:\n%s", want, got)
		}
	}
}

func TestNewFromCatalog(t *testing.T) {
	tests := []struct {
		code    string
		data    map[string]any
		class   ErrorClass
		message string
	}{
		{
			code:    "ARITY-0001",
			data:    map[string]any{"Got": 0, "Name": "add", "Min": 2},
			class:   ClassArity,
			message: "invalid number of arguments 0 passed to 'add', at least 2 argument(s) must be specified",
		},
		{
			code:    "LIMIT-0001",
			data:    map[string]any{"Limit": 10},
			class:   ClassLimit,
			message: "exceeding the number of iterations limit of 10 for loops",
		},
		{
			code:    "UNDEF-0002",
			data:    map[string]any{"Member": "x", "Type": "object"},
			class:   ClassUndefined,
			message: "cannot find member 'x' on object",
		},
		{
			code:    "PARSE-0003",
			data:    map[string]any{"Statement": "if"},
			class:   ClassParse,
			message: "missing 'end' for 'if' statement",
		},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, tt.data)
			if err.Class != tt.class {
				t.Errorf("Class = %q, want %q", err.Class, tt.class)
			}
			if err.Message != tt.message {
				t.Errorf("Message = %q, want %q", err.Message, tt.message)
			}
		})
	}
}

func TestCatalogHint(t *testing.T) {
	err := New("PARSE-0003", map[string]any{"Statement": "for"})
	if len(err.Hints) != 1 || err.Hints[0] != "close the block with {{ end }}" {
		t.Fatalf("unexpected hints %q", err.Hints)
	}
}

func TestUnknownCode(t *testing.T) {
	err := New("NOPE-9999", nil)
	if !strings.Contains(err.Message, "NOPE-9999") {
		t.Fatalf("expected the unknown code in the message, got %q", err.Message)
	}
}

func TestCatalogTemplatesRender(t *testing.T) {
	for code, def := range ErrorCatalog {
		if _, err := renderCheck(def.Template); err != nil {
			t.Errorf("%s: %v", code, err)
		}
		prefix := strings.SplitN(code, "-", 2)[0]
		switch prefix {
		case "LEX", "PARSE", "UNDEF", "TYPE", "OP", "ARITY", "RO", "LIMIT", "INCL", "INVOKE", "STATE":
		default:
			t.Errorf("%s: unexpected code prefix", code)
		}
	}
}

func renderCheck(tmpl string) (string, error) {
	out := renderTemplate(tmpl, nil)
	if out == tmpl && strings.Contains(tmpl, "{{.") {
		return "", fmt.Errorf("template did not render: %q", tmpl)
	}
	return out, nil
}

func TestFromLexer(t *testing.T) {
	_, lexErrs := lexer.Tokenize("{{ '^q' }}", lexer.Options{})
	if len(lexErrs) != 1 {
		t.Fatalf("expected one lexer error, got %d", len(lexErrs))
	}
	err := FromLexer(lexErrs[0])
	if err.Class != ClassLex || err.Code != "LEX-0002" {
		t.Fatalf("unexpected error %+v", err)
	}
	if err.Message != "invalid escape sequence '^q'" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if err.Span.Start.Offset != 4 {
		t.Fatalf("expected the span at the escape, got %v", err.Span)
	}
}

func TestHasCodeAndUnwrap(t *testing.T) {
	inner := New("UNDEF-0001", map[string]any{"Name": "x"})
	outer := New("INCL-0003", map[string]any{"Name": "t"}).Wrap(inner)
	wrapped := fmt.Errorf("render: %w", outer)

	if !HasCode(wrapped, "UNDEF-0001") {
		t.Fatalf("expected to find the inner code")
	}
	if !HasCode(wrapped, "INCL-0003") {
		t.Fatalf("expected to find the outer code")
	}
	if HasCode(wrapped, "TYPE-0001") {
		t.Fatalf("did not expect TYPE-0001")
	}
	var se *ScriptError
	if !As(wrapped, &se) || se.Code != "INCL-0003" {
		t.Fatalf("expected errors.As to find the outer error")
	}
}

func TestToJSON(t *testing.T) {
	err := NewAt("TYPE-0001", span(2, 5), map[string]any{"From": "string", "To": "int"}).Wrap(fmt.Errorf("bad"))
	data, jerr := err.ToJSON()
	if jerr != nil {
		t.Fatal(jerr)
	}
	var out map[string]any
	if jerr := json.Unmarshal(data, &out); jerr != nil {
		t.Fatal(jerr)
	}
	if out["code"] != "TYPE-0001" || out["line"] != float64(2) || out["column"] != float64(5) {
		t.Fatalf("unexpected json %s", data)
	}
	if out["cause"] != "bad" || out["severity"] != "error" {
		t.Fatalf("unexpected json %s", data)
	}
}

func TestMessages(t *testing.T) {
	var m Messages
	if m.HasErrors() || m.Err() != nil {
		t.Fatalf("expected empty messages to have no errors")
	}
	m.Add(New("PARSE-0014", nil))
	if m.HasErrors() {
		t.Fatalf("warnings must not count as errors")
	}
	m.Add(New("PARSE-0002", map[string]any{"Token": ")"}))
	if !m.HasErrors() {
		t.Fatalf("expected errors")
	}
	err := m.Err()
	var se *ScriptError
	if !As(err, &se) || se.Code != "PARSE-0002" {
		t.Fatalf("expected the parse error to be reachable, got %v", err)
	}
	if got := m.WithFile("f.txt")[1].File; got != "f.txt" {
		t.Fatalf("expected file to be set, got %q", got)
	}
}

func TestFindClosestMatch(t *testing.T) {
	candidates := []string{"name", "title", "items"}
	if got := FindClosestMatch("nmae", candidates); got != "name" {
		t.Fatalf("expected name, got %q", got)
	}
	if got := FindClosestMatch("zzzzzz", candidates); got != "" {
		t.Fatalf("expected no match, got %q", got)
	}
	if got := FindClosestMatch("name", candidates); got != "" {
		t.Fatalf("exact matches are not suggestions, got %q", got)
	}
}
