package evaluator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
	"github.com/sambeau/textscript/pkg/textscript/parser"
)

// mapLoader serves includes from memory.
type mapLoader map[string]string

func (m mapLoader) GetPath(_ *TemplateContext, _ lexer.Span, name string) (string, error) {
	if _, ok := m[name]; !ok {
		return "", nil
	}
	return name, nil
}

func (m mapLoader) Load(_ *TemplateContext, _ lexer.Span, path string) (string, error) {
	return m[path], nil
}

func (m mapLoader) PathExists(_ *TemplateContext, _ lexer.Span, path string, _ PathType) bool {
	_, ok := m[path]
	return ok
}

func (m mapLoader) Enumerate(*TemplateContext, lexer.Span, string, PathType) ([]string, error) {
	return nil, nil
}

func render(tc *TemplateContext, input string) (string, error) {
	page, msgs := parser.ParseString(input, tc.LexerOptions, tc.ParserOptions)
	if msgs.HasErrors() {
		return "", msgs.Err()
	}
	return tc.Render(context.Background(), page)
}

func mustRender(t *testing.T, tc *TemplateContext, input string) string {
	t.Helper()
	out, err := render(tc, input)
	if err != nil {
		t.Fatalf("unexpected error for %q: %v", input, err)
	}
	return out
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got no error", code)
	}
	if !errors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestRenderExpressions(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello {{ 1 + 2 * 3 }}!", "Hello 7!"},
		{"{{ 7 / 2 }}", "3.5"},
		{"{{ 6 / 2 }}", "3"},
		{"{{ 7 // 2 }}", "3"},
		{"{{ 7 % 3 }}", "1"},
		{"{{ 2 ^ 10 }}", "1024"},
		{"{{ -2 ^ 2 }}", "-4"},
		{"{{ (-2) ^ 2 }}", "4"},
		{"{{ 'a' + 1 }}", "a1"},
		{"{{ 1 < 2 }}", "true"},
		{"{{ !true }}", "false"},
		{"{{ -(1 + 1) }}", "-2"},
		{"{{ missing ?? 'fallback' }}", "fallback"},
		{"{{ null }}", ""},
		{"{{ [1, 2, 3][-1] }}", "3"},
		{"{{ [1, 2][5] }}", ""},
		{"{{ [1, 2, 3].size }}", "3"},
		{"{{ 'abc'.size }}", "3"},
		{"{{ 'abc'[1] }}", "b"},
		{"{{ (1..4).size }}", "4"},
		{"{{ o = {a: 1, b: 'x'} }}{{ o.a }}{{ o['b'] }}", "1x"},
		{"{{ a = [1, 2] }}{{ a[3] = 4 }}{{ a.size }}", "4"},
		{"{{ 1 == 1.0 }}", "true"},
		{"{{ '' == empty }}", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out := mustRender(t, New(), tt.input)
			if out != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, out)
			}
		})
	}
}

func TestRenderStatements(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"if", "{{ if 0 }}yes{{ else }}no{{ end }}", "yes"},
		{"if null", "{{ if null }}yes{{ else }}no{{ end }}", "no"},
		{"elseif", "{{ x = 2 }}{{ if x == 1 }}a{{ else if x == 2 }}b{{ else }}c{{ end }}", "b"},
		{"for", "{{ for i in [1, 2, 3] }}{{ for.index }}{{ i }}{{ end }}", "011223"},
		{"for range", "{{ for i in 1..3 }}{{ i }}{{ end }}", "123"},
		{"for reversed", "{{ for i in 1..3 reversed }}{{ i }}{{ end }}", "321"},
		{"for limit offset", "{{ for i in [1, 2, 3, 4] limit: 2 offset: 1 }}{{ i }}{{ end }}", "23"},
		{"for else", "{{ for i in [] }}x{{ else }}none{{ end }}", "none"},
		{"for first last", "{{ for i in [1, 2, 3] }}{{ if for.first }}[{{ end }}{{ i }}{{ if for.last }}]{{ end }}{{ end }}", "[123]"},
		{"break", "{{ for i in 1..5 }}{{ if i == 3 }}{{ break }}{{ end }}{{ i }}{{ end }}", "12"},
		{"continue", "{{ for i in 1..5 }}{{ if i == 3 }}{{ continue }}{{ end }}{{ i }}{{ end }}", "1245"},
		{"while", "{{ i = 0 }}{{ while i < 3 }}{{ i }}{{ i = i + 1 }}{{ end }}", "012"},
		{"capture", "{{ capture x }}hello {{ 1 + 1 }}{{ end }}{{ x }}!", "hello 2!"},
		{"case", "{{ case 3 }}{{ when 1, 2 }}a{{ when 3 or 4 }}b{{ else }}c{{ end }}", "b"},
		{"case else", "{{ case 9 }}{{ when 1 }}a{{ else }}c{{ end }}", "c"},
		{"with", "{{ o = {} }}{{ with o }}{{ a = 1 }}{{ end }}{{ o.a }}", "1"},
		{"loop variable scope", "{{ for i in [1] }}{{ y = i }}{{ end }}{{ y }}", "1"},
		{"func", "{{ func add(a, b = 1) }}{{ ret a + b }}{{ end }}{{ add 2 }} {{ add 2 3 }}", "3 5"},
		{"named args", "{{ func add(a, b = 1) }}{{ ret a + b }}{{ end }}{{ add(1, b: 5) }}", "6"},
		{"anonymous func", "{{ func twice }}{{ ret $0 * 2 }}{{ end }}{{ twice 4 }}", "8"},
		{"variadic func", "{{ func count(rest...) }}{{ ret rest.size }}{{ end }}{{ count 1 2 3 }}", "3"},
		{"import", "{{ import {greeting: 'hi'} }}{{ greeting }}", "hi"},
		{"ret stops output", "a{{ ret }}b", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustRender(t, New(), tt.input)
			if out != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, out)
			}
		})
	}
}

func TestRelaxedAndStrictMemberAccess(t *testing.T) {
	inputs := []struct {
		input string
		code  string
	}{
		{"{{ a.property_a.null_ref }}", "UNDEF-0003"},
		{"{{ list[-1].null_ref }}", "UNDEF-0002"},
		{"{{ dictionary['missing'].null_ref }}", "UNDEF-0002"},
	}
	setup := func(strict bool) *TemplateContext {
		tc := New()
		tc.Strict = strict
		tc.SetValue("a", ObjectOf("property_a", nil))
		tc.SetValue("list", NewScriptArray(int64(1), int64(2)))
		tc.SetValue("dictionary", map[string]any{})
		return tc
	}

	for _, tt := range inputs {
		t.Run(tt.input, func(t *testing.T) {
			out := mustRender(t, setup(false), tt.input)
			if out != "" {
				t.Fatalf("expected empty output in relaxed mode, got %q", out)
			}
			_, err := render(setup(true), tt.input)
			expectCode(t, err, tt.code)
		})
	}
}

func TestStrictVariableSuggestion(t *testing.T) {
	tc := New()
	tc.Strict = true
	tc.SetValue("food", "pizza")
	_, err := render(tc, "{{ foo }}")
	expectCode(t, err, "UNDEF-0001")

	var se *errors.ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("expected a ScriptError, got %T", err)
	}
	if len(se.Hints) == 0 || !strings.Contains(se.Hints[0], "food") {
		t.Fatalf("expected a hint suggesting food, got %v", se.Hints)
	}
}

func TestLoopLimit(t *testing.T) {
	const input = "{{ for i in 1..5 }}{{ i }}{{ end }}"

	tc := New()
	tc.LoopLimit = 5
	if out := mustRender(t, tc, input); out != "12345" {
		t.Fatalf("expected %q, got %q", "12345", out)
	}

	tc = New()
	tc.LoopLimit = 4
	_, err := render(tc, input)
	expectCode(t, err, "LIMIT-0001")

	tc = New()
	tc.LoopLimit = 0
	if out := mustRender(t, tc, input); out != "12345" {
		t.Fatalf("expected no limit when LoopLimit is 0, got %q", out)
	}
}

func TestRecursionLimit(t *testing.T) {
	tc := New()
	tc.RecursiveLimit = 10
	_, err := render(tc, "{{ func r }}{{ r }}{{ end }}{{ r }}")
	expectCode(t, err, "LIMIT-0002")
}

func TestAbort(t *testing.T) {
	tc := New()
	tc.CheckAbort = func() error { return fmt.Errorf("stopped by host") }
	_, err := render(tc, "{{ 1 }}")
	expectCode(t, err, "LIMIT-0003")

	tc = New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page, _ := parser.ParseString("{{ 1 }}", lexer.Options{}, parser.Options{})
	_, err = tc.Render(ctx, page)
	expectCode(t, err, "LIMIT-0003")
}

func TestTimeout(t *testing.T) {
	tc := New()
	tc.LoopLimit = 0
	tc.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := render(tc, "{{ while true; end }}")
	expectCode(t, err, "LIMIT-0003")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("expected the render to stop near its deadline, took %v", elapsed)
	}
}

func TestWhere(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"{{ [1, 20, 30] | where $ < 10 }}", "[1]"},
		{"{{ [1, 20, 30] | where }}", "[1, 20, 30]"},
		{"{{ [1, 4, 5] | where 4 < $ }}", "[5]"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out := mustRender(t, New(), tt.input)
			if out != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, out)
			}
		})
	}
}

func TestPipesAndFunctionValues(t *testing.T) {
	tc := New()
	tc.SetFunction("upper", strings.ToUpper)
	tc.SetFunction("join2", func(a, b string) string { return a + "-" + b })
	tc.SetFunction("year", func() any { return 2024 })

	tests := []struct {
		input    string
		expected string
	}{
		{"{{ 'abc' | upper }}", "ABC"},
		{"{{ 'x' | join2 'y' }}", "x-y"},
		{"{{ 'x' | join2 'y' | upper }}", "X-Y"},
		{"{{ f = @upper }}{{ f 'q' }}", "Q"},
		{"{{ year }}", "2024"},
		{"{{ year + 1 }}", "2025"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out := mustRender(t, tc, tt.input)
			if out != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, out)
			}
		})
	}
}

func TestCallErrors(t *testing.T) {
	errBoom := fmt.Errorf("boom")
	tc := New()
	tc.SetFunction("add", func(a, b int64) int64 { return a + b })
	tc.SetFunction("fail", func() (string, error) { return "", errBoom })
	tc.SetFunction("explode", func() string { panic("bad") })

	_, err := render(tc, "{{ add 1 }}")
	expectCode(t, err, "ARITY-0001")
	if !strings.Contains(err.Error(), "at least 2 argument(s) must be specified") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	_, err = render(tc, "{{ add 1 2 3 }}")
	expectCode(t, err, "ARITY-0002")

	_, err = render(tc, "{{ add 1 'x' }}")
	expectCode(t, err, "ARITY-0005")

	_, err = render(tc, "{{ fail }}")
	expectCode(t, err, "INVOKE-0001")
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected the cause to be kept, got %v", err)
	}

	_, err = render(tc, "{{ explode }}")
	expectCode(t, err, "INVOKE-0001")

	_, err = render(tc, "{{ x = 1 }}{{ x 2 }}")
	expectCode(t, err, "TYPE-0002")

	_, err = render(tc, "{{ include = 1 }}")
	expectCode(t, err, "RO-0001")

	_, err = render(tc, "{{ 1 / 0 }}")
	expectCode(t, err, "OP-0003")
}

func TestInclude(t *testing.T) {
	tc := New()
	tc.Loader = mapLoader{
		"arguments":                  "{{ $1 }} + {{ $2 }}",
		"recursive_nested_templates": "{{ $1 }}{{ x = $1 + 1 }}{{ if x < 10 }}{{ include 'recursive_nested_templates' x }}{{ end }}",
		"broken_at_runtime":          "{{ 1 / 0 }}",
		"broken_syntax":              "{{ if }}",
		"name":                       "{{ $0 }}",
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"{{ include 'arguments' 1 2 }}", "1 + 2"},
		{"{{ include 'recursive_nested_templates' 5 }}", "56789"},
		{"{{ include 'name' }}", "name"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out := mustRender(t, tc, tt.input)
			if out != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, out)
			}
		})
	}

	_, err := render(tc, "{{ include 'missing' }}")
	expectCode(t, err, "INCL-0002")

	_, err = render(tc, "{{ include 'broken_at_runtime' }}")
	expectCode(t, err, "INCL-0006")
	expectCode(t, err, "OP-0003")

	_, err = render(tc, "{{ include 'broken_syntax' }}")
	expectCode(t, err, "INCL-0004")

	_, err = render(New(), "{{ include 'arguments' }}")
	expectCode(t, err, "INCL-0005")
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"{{ x = 1 }}{{ x + 41 }}", int64(42)},
		{"{{ ret 7 }}{{ 8 }}", int64(7)},
		{"text {{ 'value' }}", "value"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			page, msgs := parser.ParseString(tt.input, lexer.Options{}, parser.Options{})
			if msgs.HasErrors() {
				t.Fatalf("unexpected errors: %s", msgs)
			}
			v, err := New().Evaluate(context.Background(), page)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v != tt.expected {
				t.Fatalf("expected %v, got %v", tt.expected, v)
			}
		})
	}
}

func TestGlobalsPersistAcrossRenders(t *testing.T) {
	tc := New()
	mustRender(t, tc, "{{ counter = 41 }}")
	if out := mustRender(t, tc, "{{ counter + 1 }}"); out != "42" {
		t.Fatalf("expected %q, got %q", "42", out)
	}
	if v, ok := tc.GetValue("counter"); !ok || v != int64(41) {
		t.Fatalf("expected counter to be 41, got %v", v)
	}
}

func TestLiquid(t *testing.T) {
	newLiquid := func() *TemplateContext {
		tc := New()
		tc.LexerOptions = lexer.Options{Mode: lexer.ModeLiquid}
		tc.Loader = mapLoader{"card": "{{ item.name }}-{{ size }}"}
		tc.SetValue("p", ObjectOf("name", "Pen"))
		tc.SetValue("ps", NewScriptArray(ObjectOf("name", "a"), ObjectOf("name", "b")))
		return tc
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"{% assign x = 5 %}{{ x }}", "5"},
		{"{% for i in (1..3) %}{{ forloop.index }}{% endfor %}", "123"},
		{"{% for i in (1..3) %}{{ forloop.rindex0 }}{% endfor %}", "210"},
		{"{% increment c %}{% increment c %}{% decrement d %}", "01-1"},
		{"{% unless false %}yes{% endunless %}", "yes"},
		{"{% capture x %}hi{% endcapture %}{{ x }}", "hi"},
		{"{% include 'card' with p as item size: 2 %}", "Pen-2"},
		{"{% include 'card' for ps as item size: 1 %}", "a-1b-1"},
		{"{% if 'abc' contains 'b' %}yes{% endif %}", "yes"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out := mustRender(t, newLiquid(), tt.input)
			if out != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, out)
			}
		})
	}
}
