package evaluator

import (
	"log/slog"
	"path"
	"strings"

	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
	"github.com/sambeau/textscript/pkg/textscript/parser"
)

// PathType restricts what Enumerate and PathExists match.
type PathType int

const (
	PathAny       PathType = iota
	PathContainer          // directories and similar
	PathLeaf               // templates
)

func (t PathType) String() string {
	switch t {
	case PathContainer:
		return "container"
	case PathLeaf:
		return "leaf"
	}
	return "any"
}

// TemplateLoader supplies included templates. GetPath resolves an include
// name to a path, returning "" when there is no such template; Load
// returns the text at a path.
type TemplateLoader interface {
	GetPath(tc *TemplateContext, span lexer.Span, name string) (string, error)
	Load(tc *TemplateContext, span lexer.Span, path string) (string, error)
	PathExists(tc *TemplateContext, span lexer.Span, path string, typ PathType) bool
	Enumerate(tc *TemplateContext, span lexer.Span, pattern string, typ PathType) ([]string, error)
}

type cachedInclude struct {
	page *ast.Page
}

// Invalidate drops the parsed include cached for path, or every cached
// include when path is empty.
func (tc *TemplateContext) Invalidate(path string) {
	if path == "" {
		clear(tc.includes)
		return
	}
	delete(tc.includes, path)
}

// loadInclude resolves, loads and parses an include, using the cache.
func (tc *TemplateContext) loadInclude(span lexer.Span, name string) (string, *ast.Page, error) {
	if name == "" {
		return "", nil, errors.NewAt("INCL-0001", span, nil)
	}
	if tc.Loader == nil {
		return "", nil, errors.NewAt("INCL-0005", span, map[string]any{"Name": name}).Wrap(errors.ErrNoLoader)
	}
	p, err := tc.Loader.GetPath(tc, span, name)
	if err != nil || p == "" {
		e := errors.NewAt("INCL-0002", span, map[string]any{"Name": name})
		if err != nil {
			e = e.Wrap(err)
		}
		return "", nil, e
	}
	if c, ok := tc.includes[p]; ok {
		tc.Logger.Trace("include cache hit", slog.String("path", p))
		return p, c.page, nil
	}

	text, err := tc.Loader.Load(tc, span, p)
	if err != nil {
		return "", nil, errors.NewAt("INCL-0003", span, map[string]any{"Name": name}).Wrap(err)
	}
	lexOpts := tc.LexerOptions
	lexOpts.KeepTrivia = false
	lexOpts.StartPosition = lexer.Position{}
	if lexOpts.Mode != lexer.ModeLiquid {
		lexOpts.Mode = lexer.ModeDefault
	}
	page, messages := parser.ParseString(text, lexOpts, tc.ParserOptions)
	if messages.HasErrors() {
		return "", nil, errors.NewAt("INCL-0004", span, map[string]any{"Name": name}).Wrap(messages.WithFile(p).Err())
	}
	if tc.includes == nil {
		tc.includes = map[string]*cachedInclude{}
	}
	tc.includes[p] = &cachedInclude{page: page}
	tc.Logger.Debug("include loaded", slog.String("name", name), slog.String("path", p))
	return p, page, nil
}

// include renders a template with args as $0..$n and returns its output.
// Included templates share the caller's scopes.
func (tc *TemplateContext) include(span lexer.Span, name string, args []any) (string, error) {
	p, page, err := tc.loadInclude(span, name)
	if err != nil {
		return "", err
	}
	if err := tc.checkpoint(span); err != nil {
		return "", err
	}
	if err := tc.enter(span); err != nil {
		return "", err
	}
	defer tc.leave()

	tc.pushFrame(NewScriptArray(args...))
	defer tc.popFrame()

	return tc.capture(func() error {
		if _, err := tc.execBlock(page.Body); err != nil {
			return includeError(span, name, p, err)
		}
		return nil
	})
}

// includeError attributes a failure inside an include to its file and
// wraps it with the include site. Limit errors pass through unchanged.
func includeError(span lexer.Span, name, file string, err error) error {
	se, ok := err.(*errors.ScriptError)
	if !ok {
		return errors.NewAt("INCL-0006", span, map[string]any{"Name": name}).Wrap(err)
	}
	if se.Class == errors.ClassLimit {
		return se
	}
	if se.File == "" {
		se = se.WithFile(file)
	}
	return errors.NewAt("INCL-0006", span, map[string]any{"Name": name}).Wrap(se)
}

// templateName is the variable name Liquid gives the with/for value of an
// include: the base name without extension.
func templateName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
