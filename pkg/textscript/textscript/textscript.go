// Package textscript parses and renders templates.
//
// Parse turns template text into a Template; Render and Evaluate run it
// against a TemplateContext. A Template is immutable once parsed and may be
// rendered concurrently with separate contexts.
package textscript

import (
	"context"
	"log/slog"

	"github.com/sambeau/textscript/pkg/log"
	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/format"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
	"github.com/sambeau/textscript/pkg/textscript/parser"
)

// Template is a parsed template.
type Template struct {
	page       *ast.Page
	sourcePath string
	lexOpts    lexer.Options
	parserOpts parser.Options
	messages   errors.Messages
}

type settings struct {
	sourcePath string
	lexOpts    lexer.Options
	parserOpts parser.Options
	logger     log.Logger
}

// Option configures Parse.
type Option func(*settings)

// WithSourcePath names the file the text came from in diagnostics.
func WithSourcePath(path string) Option {
	return func(s *settings) { s.sourcePath = path }
}

// WithParserOptions sets the parser options.
func WithParserOptions(opts parser.Options) Option {
	return func(s *settings) { s.parserOpts = opts }
}

// WithLexerOptions sets the lexer options. Parse keeps trivia by default
// so ToText can reproduce the input; these options replace that default.
func WithLexerOptions(opts lexer.Options) Option {
	return func(s *settings) { s.lexOpts = opts }
}

// WithLogger logs parse diagnostics at debug level.
func WithLogger(logger log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func makeSettings(opts []Option) settings {
	s := settings{lexOpts: lexer.Options{KeepTrivia: true}}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Parse parses template text. Errors do not stop parsing; they are
// recorded in Messages.
func Parse(text string, opts ...Option) *Template {
	s := makeSettings(opts)
	return parse(text, s)
}

// ParseBytes parses b like Parse. A nil slice yields a template with no
// page, an empty one an empty page; both render as empty text.
func ParseBytes(b []byte, opts ...Option) *Template {
	s := makeSettings(opts)
	if b == nil {
		return &Template{sourcePath: s.sourcePath, lexOpts: s.lexOpts, parserOpts: s.parserOpts}
	}
	return parse(string(b), s)
}

// ParseLiquid parses Liquid template text.
func ParseLiquid(text string, opts ...Option) *Template {
	s := makeSettings(opts)
	s.lexOpts.Mode = lexer.ModeLiquid
	return parse(text, s)
}

func parse(text string, s settings) *Template {
	t := &Template{sourcePath: s.sourcePath, lexOpts: s.lexOpts, parserOpts: s.parserOpts}
	page, messages := parser.ParseString(text, s.lexOpts, s.parserOpts)
	t.page = page
	t.messages = messages.WithFile(s.sourcePath)
	if len(t.messages) > 0 {
		s.logger.Debug("template parsed with diagnostics",
			slog.String("path", s.sourcePath),
			slog.Bool("errors", t.messages.HasErrors()),
			slog.Any("messages", t.messages))
	}
	return t
}

// Page returns the syntax tree, or nil when the template was parsed from a
// nil slice.
func (t *Template) Page() *ast.Page { return t.page }

// SourcePath returns the path given with WithSourcePath.
func (t *Template) SourcePath() string { return t.sourcePath }

// HasErrors reports whether parsing produced error messages.
func (t *Template) HasErrors() bool { return t.messages.HasErrors() }

// Messages returns the parse diagnostics.
func (t *Template) Messages() errors.Messages { return t.messages }

// ToText reproduces the template text. It is exact when trivia was kept,
// which Parse does by default.
func (t *Template) ToText() string {
	if t.page == nil {
		return ""
	}
	return format.ToText(t.page)
}

func (t *Template) check() error {
	if t.HasErrors() {
		return errors.New("STATE-0001", nil).Wrap(errors.ErrTemplateHasErrors)
	}
	return nil
}

// prepare points tc at the options the template was parsed with, so
// includes are parsed the same way.
func (t *Template) prepare(tc *evaluator.TemplateContext) {
	tc.LexerOptions = t.lexOpts
	tc.ParserOptions = t.parserOpts
}

// Render runs the template with tc and returns the output. Front matter is
// not run; use EvaluateFrontMatter for it.
func (t *Template) Render(ctx context.Context, tc *evaluator.TemplateContext) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	if tc == nil {
		tc = evaluator.New()
	}
	t.prepare(tc)
	return tc.Render(ctx, t.page)
}

// RenderModel renders with a fresh context whose globals expose model.
// Go members of model are named by renamer and filtered by filter; nil
// selects the defaults.
func (t *Template) RenderModel(ctx context.Context, model any, renamer evaluator.MemberRenamer, filter evaluator.MemberFilter) (string, error) {
	tc := evaluator.New()
	if renamer != nil {
		tc.MemberRenamer = renamer
	}
	tc.MemberFilter = filter
	if model != nil {
		if err := tc.Import(model); err != nil {
			return "", err
		}
	}
	return t.Render(ctx, tc)
}

// Evaluate runs the template without output and returns the value of its
// ret statement or last expression.
func (t *Template) Evaluate(ctx context.Context, tc *evaluator.TemplateContext) (any, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if tc == nil {
		tc = evaluator.New()
	}
	t.prepare(tc)
	return tc.Evaluate(ctx, t.page)
}

// EvaluateFrontMatter runs the front matter, if any, like Evaluate.
func (t *Template) EvaluateFrontMatter(ctx context.Context, tc *evaluator.TemplateContext) (any, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if tc == nil {
		tc = evaluator.New()
	}
	t.prepare(tc)
	return tc.EvaluateFrontMatter(ctx, t.page)
}

// Evaluate evaluates a script expression against model and returns its
// value.
func Evaluate(ctx context.Context, expr string, model any) (any, error) {
	t := Parse(expr, WithLexerOptions(lexer.Options{Mode: lexer.ModeScriptOnly}))
	if t.HasErrors() {
		return nil, t.messages.Err()
	}
	tc := evaluator.New()
	if model != nil {
		if err := tc.Import(model); err != nil {
			return nil, err
		}
	}
	return t.Evaluate(ctx, tc)
}
