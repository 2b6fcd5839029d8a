package loader

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
	"github.com/sambeau/textscript/pkg/textscript/parser"
)

var noSpan lexer.Span

// renderWith renders input with l serving includes.
func renderWith(t *testing.T, l evaluator.TemplateLoader, input string) string {
	t.Helper()
	tc := evaluator.New()
	tc.Loader = l
	page, msgs := parser.ParseString(input, tc.LexerOptions, tc.ParserOptions)
	if msgs.HasErrors() {
		t.Fatalf("parse error for %q: %v", input, msgs.Err())
	}
	out, err := tc.Render(context.Background(), page)
	if err != nil {
		t.Fatalf("unexpected error for %q: %v", input, err)
	}
	return out
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		err      bool
	}{
		{"header", "header", false},
		{"/partials/header.html", "partials/header.html", false},
		{"partials//./footer", "partials/footer", false},
		{`partials\nav`, "partials/nav", false},
		{"../secret", "", true},
		{"a/../../b", "", true},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := cleanName(tt.input)
		if (err != nil) != tt.err {
			t.Fatalf("cleanName(%q): unexpected error state %v", tt.input, err)
		}
		if got != tt.expected {
			t.Fatalf("cleanName(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		input    string
		expected pattern
	}{
		{"*", pattern{base: "*"}},
		{"", pattern{base: "*"}},
		{"partials/*.html", pattern{dir: "partials", base: "*.html"}},
		{"**/*.html", pattern{base: "*.html", recursive: true}},
		{"/site/**/page?", pattern{dir: "site", base: "page?", recursive: true}},
	}
	for _, tt := range tests {
		got, err := parsePattern(tt.input)
		if err != nil {
			t.Fatalf("parsePattern(%q): %v", tt.input, err)
		}
		if got != tt.expected {
			t.Fatalf("parsePattern(%q): expected %+v, got %+v", tt.input, tt.expected, got)
		}
	}

	for _, bad := range []string{"*/x", "a*/b/*.html", "a/**/b/*"} {
		if _, err := parsePattern(bad); err != errors.ErrProviderDoesNotSupportWildcard {
			t.Fatalf("parsePattern(%q): expected wildcard error, got %v", bad, err)
		}
	}
	if _, err := parsePattern("[a"); err == nil {
		t.Fatalf("expected an error for a malformed pattern")
	}
}

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		matches bool
	}{
		{"*", "index", true},
		{"*", "partials/nav", false},
		{"partials/*", "partials/nav", true},
		{"partials/*", "partials/deep/nav", false},
		{"**/*", "partials/deep/nav", true},
		{"partials/**/n*", "partials/deep/nav", true},
		{"partials/**/n*", "partials/nav", true},
		{"partials/**/n*", "other/nav", false},
		{"*.html", "index.html", true},
		{"*.html", "index.txt", false},
		{"**/*.html", "index.html", true},
		{"**/*.html", "a/b/c/d/index.html", true},
		{"*.{html,txt}", "index.txt", true},
		{"*.{html,txt}", "index.md", false},
		{"{a,b}/*", "{a,b}/nav", true},
		{"{a,b}/*", "a/nav", false},
	}
	for _, tt := range tests {
		pt, err := parsePattern(tt.pattern)
		if err != nil {
			t.Fatalf("parsePattern(%q): %v", tt.pattern, err)
		}
		if got := pt.match(tt.name); got != tt.matches {
			t.Fatalf("%q matching %q: expected %v, got %v", tt.pattern, tt.name, tt.matches, got)
		}
	}
}

func TestCache(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCache[string](2, time.Minute)
	c.now = func() time.Time { return now }

	c.put("a", "A")
	now = now.Add(time.Second)
	c.put("b", "B")
	now = now.Add(time.Second)
	if v, ok := c.get("a"); !ok || v != "A" {
		t.Fatalf("expected %q, got %q (%v)", "A", v, ok)
	}

	// b is now the least recently used entry
	now = now.Add(time.Second)
	c.put("c", "C")
	if _, ok := c.get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if c.size() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.size())
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.get("a"); ok {
		t.Fatalf("expected a to expire")
	}

	c.put("d", "D")
	c.remove("d")
	if _, ok := c.get("d"); ok {
		t.Fatalf("expected d to be removed")
	}
	c.put("e", "E")
	c.remove("")
	if c.size() != 0 {
		t.Fatalf("expected an empty cache, got %d entries", c.size())
	}
}

func TestMapLoader(t *testing.T) {
	m := NewMapLoader(map[string]string{
		"header":             "<h1>{{ $1 }}</h1>",
		"/partials/nav.html": "nav",
		"partials/deep/foot": "foot",
	})

	got := renderWith(t, m, "{{ include 'header' 'Title' }}|{{ include 'partials/nav.html' }}")
	if got != "<h1>Title</h1>|nav" {
		t.Fatalf("expected %q, got %q", "<h1>Title</h1>|nav", got)
	}

	if p, _ := m.GetPath(nil, noSpan, "missing"); p != "" {
		t.Fatalf("expected no path, got %q", p)
	}
	if _, err := m.Load(nil, noSpan, "missing"); err == nil {
		t.Fatalf("expected an error loading a missing template")
	}
	if _, err := m.GetPath(nil, noSpan, "../x"); err == nil {
		t.Fatalf("expected an error for a name outside the root")
	}

	exists := []struct {
		path     string
		typ      evaluator.PathType
		expected bool
	}{
		{"header", evaluator.PathLeaf, true},
		{"header", evaluator.PathContainer, false},
		{"partials", evaluator.PathContainer, true},
		{"partials/deep", evaluator.PathAny, true},
		{"partials/none", evaluator.PathAny, false},
	}
	for _, tt := range exists {
		if got := m.PathExists(nil, noSpan, tt.path, tt.typ); got != tt.expected {
			t.Fatalf("PathExists(%q, %v): expected %v, got %v", tt.path, tt.typ, tt.expected, got)
		}
	}

	enumerate := []struct {
		pattern  string
		typ      evaluator.PathType
		expected []string
	}{
		{"*", evaluator.PathAny, []string{"header", "partials"}},
		{"*", evaluator.PathLeaf, []string{"header"}},
		{"partials/*", evaluator.PathAny, []string{"partials/deep", "partials/nav.html"}},
		{"**/*", evaluator.PathLeaf, []string{"header", "partials/deep/foot", "partials/nav.html"}},
		{"**/*", evaluator.PathContainer, []string{"partials", "partials/deep"}},
	}
	for _, tt := range enumerate {
		got, err := m.Enumerate(nil, noSpan, tt.pattern, tt.typ)
		if err != nil {
			t.Fatalf("Enumerate(%q): %v", tt.pattern, err)
		}
		if !reflect.DeepEqual(got, tt.expected) {
			t.Fatalf("Enumerate(%q, %v): expected %v, got %v", tt.pattern, tt.typ, tt.expected, got)
		}
	}

	m.Remove("header")
	if m.PathExists(nil, noSpan, "header", evaluator.PathAny) {
		t.Fatalf("expected header to be removed")
	}
}
