package textscript

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

func TestHelloWorld(t *testing.T) {
	tmpl := Parse("This is a {{ text }} World from textscript!")
	if tmpl.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", tmpl.Messages())
	}
	got, err := tmpl.RenderModel(context.Background(), map[string]any{"text": "Hello"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "This is a Hello World from textscript!" {
		t.Fatalf("expected %q, got %q", "This is a Hello World from textscript!", got)
	}
}

func TestParseBytes(t *testing.T) {
	null := ParseBytes(nil)
	if null.Page() != nil || null.HasErrors() {
		t.Fatalf("expected no page and no errors for nil input")
	}
	empty := ParseBytes([]byte{})
	if empty.Page() == nil || empty.HasErrors() {
		t.Fatalf("expected an empty page and no errors for empty input")
	}
	for _, tmpl := range []*Template{null, empty} {
		got, err := tmpl.Render(context.Background(), nil)
		if err != nil || got != "" {
			t.Fatalf("expected empty output, got %q (%v)", got, err)
		}
		if tmpl.ToText() != "" {
			t.Fatalf("expected empty text, got %q", tmpl.ToText())
		}
	}
}

func TestTemplateWithErrors(t *testing.T) {
	tmpl := Parse("{{ if }}", WithSourcePath("page.html"))
	if !tmpl.HasErrors() {
		t.Fatalf("expected errors")
	}
	if tmpl.SourcePath() != "page.html" {
		t.Fatalf("expected %q, got %q", "page.html", tmpl.SourcePath())
	}
	if f := tmpl.Messages()[0].File; f != "page.html" {
		t.Fatalf("expected messages attributed to %q, got %q", "page.html", f)
	}

	_, err := tmpl.Render(context.Background(), nil)
	if !stderrors.Is(err, errors.ErrTemplateHasErrors) || !errors.HasCode(err, "STATE-0001") {
		t.Fatalf("expected STATE-0001, got %v", err)
	}
	if _, err := tmpl.Evaluate(context.Background(), nil); !errors.HasCode(err, "STATE-0001") {
		t.Fatalf("expected STATE-0001, got %v", err)
	}
	if _, err := tmpl.EvaluateFrontMatter(context.Background(), nil); !errors.HasCode(err, "STATE-0001") {
		t.Fatalf("expected STATE-0001, got %v", err)
	}
}

func TestRelaxedAndStrict(t *testing.T) {
	model := map[string]any{
		"a":          map[string]any{"property_a": "A"},
		"list":       []any{1, 2},
		"dictionary": map[string]any{"x": 1},
	}
	inputs := []string{
		"{{ a.property_a.null_ref }}",
		"{{ list[-1].null_ref }}",
		"{{ dictionary['missing'].null_ref }}",
	}
	for _, input := range inputs {
		tmpl := Parse(input)

		got, err := tmpl.RenderModel(context.Background(), model, nil, nil)
		if err != nil || got != "" {
			t.Fatalf("relaxed %q: expected empty output, got %q (%v)", input, got, err)
		}

		tc := evaluator.New()
		tc.Strict = true
		if err := tc.Import(model); err != nil {
			t.Fatal(err)
		}
		if _, err := tmpl.Render(context.Background(), tc); err == nil {
			t.Fatalf("strict %q: expected an error", input)
		}
	}
}

type article struct {
	Title     string
	PageCount int
}

func TestRenderModel(t *testing.T) {
	tmpl := Parse("{{ title }}:{{ page_count }}")
	a := article{Title: "Go", PageCount: 3}

	got, err := tmpl.RenderModel(context.Background(), a, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Go:3" {
		t.Fatalf("expected %q, got %q", "Go:3", got)
	}

	hide := func(name string) bool { return name != "PageCount" }
	got, err = tmpl.RenderModel(context.Background(), a, nil, hide)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Go:" {
		t.Fatalf("expected %q, got %q", "Go:", got)
	}

	got, err = Parse("{{ Title }}").RenderModel(context.Background(), a, func(s string) string { return s }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Go" {
		t.Fatalf("expected %q, got %q", "Go", got)
	}
}

func TestEvaluate(t *testing.T) {
	v, err := Evaluate(context.Background(), "x * 2", map[string]any{"x": 21})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(v) != "42" {
		t.Fatalf("expected 42, got %v", v)
	}
	if _, err := Evaluate(context.Background(), "x +", nil); err == nil {
		t.Fatalf("expected a parse error")
	}

	v, err = Parse("{{ ret 1 + 1 }}ignored").Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(v) != "2" {
		t.Fatalf("expected 2, got %v", v)
	}
}

func TestFrontMatter(t *testing.T) {
	src := "+++\ntitle = 'T'\n+++\n# {{ title }}"
	tmpl := Parse(src, WithLexerOptions(lexer.Options{Mode: lexer.ModeFrontMatterAndContent, KeepTrivia: true}))
	if tmpl.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", tmpl.Messages())
	}
	if tmpl.ToText() != src {
		t.Fatalf("expected %q, got %q", src, tmpl.ToText())
	}

	tc := evaluator.New()
	if _, err := tmpl.EvaluateFrontMatter(context.Background(), tc); err != nil {
		t.Fatal(err)
	}
	got, err := tmpl.Render(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(got) != "# T" {
		t.Fatalf("expected %q, got %q", "# T", got)
	}
}

func TestParseLiquid(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"{% if true %}yes{% endif %}", "yes"},
		{"{% for i in (1..3) %}{{ forloop.index }}{% endfor %}", "123"},
		{"{% assign x = 2 %}{{ x }}", "2"},
	}
	for _, tt := range tests {
		tmpl := ParseLiquid(tt.input)
		if tmpl.HasErrors() {
			t.Fatalf("unexpected errors for %q:\n%s", tt.input, tmpl.Messages())
		}
		got, err := tmpl.Render(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.expected {
			t.Fatalf("expected %q, got %q", tt.expected, got)
		}
		if tmpl.ToText() != tt.input {
			t.Fatalf("expected %q, got %q", tt.input, tmpl.ToText())
		}
	}
}

func render(t *testing.T, src string) (string, bool) {
	tmpl := Parse(src)
	if tmpl.HasErrors() {
		return "", false
	}
	tc := evaluator.New()
	tc.SetValue("name", "world")
	tc.SetValue("items", []any{1, 2, 3})
	out, err := tmpl.Render(context.Background(), tc)
	if err != nil {
		return "", false
	}
	return out, true
}

// Rendering a template and rendering its printed text give the same output.
func TestReparseProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	pieces := []string{
		"Hello ", "\n", "  ", "{{ name }}", "{{ 1 + 2 * 3 }}", "{{~ 'trim' ~}}",
		"{{ if name == 'world' }}yes{{ else }}no{{ end }}",
		"{{ for i in items }}{{ i }}{{ end }}",
		"{{ x = 5 }}{{ x ^ 2 }}", "{{ items | where }}", "{{ name + ' ' + name }}",
		"{{ # comment }}", "{%%{ {{ raw }} }%%}",
	}
	templates := gen.SliceOf(gen.IntRange(0, len(pieces)-1)).Map(func(picks []int) string {
		var sb strings.Builder
		for _, i := range picks {
			sb.WriteString(pieces[i])
		}
		return sb.String()
	})

	properties.Property("re-parse renders the same", prop.ForAll(
		func(src string) bool {
			first, ok := render(t, src)
			if !ok {
				return false
			}
			second, ok := render(t, Parse(src).ToText())
			return ok && first == second
		},
		templates,
	))

	properties.TestingRun(t)
}
