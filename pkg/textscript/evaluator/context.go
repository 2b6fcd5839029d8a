// Package evaluator runs parsed templates.
//
// A TemplateContext holds everything one evaluation needs: the stack of
// variable scopes, the output stack used by capture and include, the
// argument frames behind $ and $0..$n, limits, culture and host hooks.
// Evaluation is single-threaded; a context must not be shared between
// concurrent renders, while parsed pages may be.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"golang.org/x/text/language"

	"github.com/sambeau/textscript/pkg/log"
	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
	"github.com/sambeau/textscript/pkg/textscript/parser"
)

// Default limits.
const (
	DefaultLoopLimit      = 1000
	DefaultRecursiveLimit = 100
	DefaultTimeout        = 30 * time.Second
)

// MemberRenamer maps a Go field or method name to its script name.
type MemberRenamer func(name string) string

// MemberFilter reports whether a Go field or method is visible to scripts.
type MemberFilter func(name string) bool

// DefaultMemberRenamer converts PascalCase Go names to snake_case.
func DefaultMemberRenamer(name string) string { return strcase.ToSnake(name) }

type flow int

const (
	flowNone flow = iota
	flowBreak
	flowContinue
	flowReturn
)

// scope is one level of variable lookup. Loop scopes only hold the loop
// variables; assignments pass through them.
type scope struct {
	target any
	loop   bool
}

// frame holds the arguments and $name locals of a function call or
// include.
type frame struct {
	args   *ScriptArray
	locals *ScriptObject
}

// TemplateContext is the state of an evaluation. Configure the exported
// fields before rendering; a context may be reused for several renders,
// keeping its global variables.
type TemplateContext struct {
	// Strict makes unknown variables and members errors instead of null.
	Strict bool
	// LoopLimit bounds the loop iterations of a whole render; zero or less
	// disables the check.
	LoopLimit int
	// RecursiveLimit bounds the nesting of calls and includes.
	RecursiveLimit int
	// Timeout bounds the duration of a render; zero disables it.
	Timeout time.Duration
	// CheckAbort is polled at every checkpoint; a non-nil error aborts.
	CheckAbort func() error

	Culture    language.Tag
	DateFormat string

	Loader        TemplateLoader
	LexerOptions  lexer.Options
	ParserOptions parser.Options

	// TryGetVariable resolves variables not found in any scope.
	TryGetVariable func(tc *TemplateContext, span lexer.Span, name string) (any, bool)
	// TryGetMember resolves members the value's accessor does not have.
	TryGetMember func(tc *TemplateContext, span lexer.Span, target any, name string) (any, bool)

	MemberRenamer MemberRenamer
	MemberFilter  MemberFilter

	Logger log.Logger

	ctx      context.Context
	builtins *ScriptObject
	globals  *ScriptObject
	scopes   []scope
	frames   []*frame
	dollars  []any
	out      []*strings.Builder
	silent   bool

	loops int
	depth int

	result any
	last   any

	includes map[string]*cachedInclude
	counters map[string]int64
	renamed  map[*typedObjectAccessor]map[string]int
}

// New creates a context with default limits, the builtin functions and an
// empty global object.
func New() *TemplateContext {
	tc := &TemplateContext{
		LoopLimit:      DefaultLoopLimit,
		RecursiveLimit: DefaultRecursiveLimit,
		Timeout:        DefaultTimeout,
		Culture:        language.Und,
		MemberRenamer:  DefaultMemberRenamer,
		ctx:            context.Background(),
		builtins:       newBuiltins(),
		globals:        NewScriptObject(),
	}
	tc.scopes = []scope{{target: tc.builtins}, {target: tc.globals}}
	tc.frames = []*frame{{args: NewScriptArray(), locals: NewScriptObject()}}
	return tc
}

// Context returns the context of the render in progress.
func (tc *TemplateContext) Context() context.Context { return tc.ctx }

// Builtins returns the read-only object holding the builtin functions.
func (tc *TemplateContext) Builtins() *ScriptObject { return tc.builtins }

// Globals returns the global variable object.
func (tc *TemplateContext) Globals() *ScriptObject { return tc.globals }

// SetValue defines a global variable.
func (tc *TemplateContext) SetValue(name string, value any) {
	tc.globals.SetValue(name, value, false)
}

// SetFunction defines a global function from a Function or Go func.
func (tc *TemplateContext) SetFunction(name string, fn any) {
	tc.globals.SetValue(name, wrapNamed(fn, name), true)
}

// PushGlobal makes target the innermost scope. Writes to new variables go
// to the innermost scope.
func (tc *TemplateContext) PushGlobal(target any) { tc.pushScope(target, false) }

// PopGlobal removes the innermost scope pushed with PushGlobal.
func (tc *TemplateContext) PopGlobal() any {
	if len(tc.scopes) <= 2 {
		return nil
	}
	s := tc.scopes[len(tc.scopes)-1]
	tc.popScope()
	return s.target
}

// Import copies the members of a host value into the global object,
// honoring the member renamer and filter.
func (tc *TemplateContext) Import(value any) error {
	return tc.importInto(lexer.Span{}, tc.globals, value)
}

func (tc *TemplateContext) importInto(span lexer.Span, dst any, value any) error {
	if IsEmpty(value) {
		return nil
	}
	acc := tc.objectAccessor(value)
	if _, ok := acc.(primitiveAccessor); ok {
		return errors.NewAt("TYPE-0005", span, map[string]any{"Type": TypeName(value)})
	}
	dstAcc := tc.objectAccessor(dst)
	for _, name := range acc.Members(tc, span, value) {
		v, _ := acc.TryGetValue(tc, span, value, name)
		if err := dstAcc.TrySetValue(tc, span, dst, name, v); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TemplateContext) renameMember(name string) string {
	if tc.MemberRenamer == nil {
		return name
	}
	return tc.MemberRenamer(name)
}

// ============================================================================
// Rendering
// ============================================================================

// Render evaluates the body of page and returns its output.
func (tc *TemplateContext) Render(ctx context.Context, page *ast.Page) (string, error) {
	if page == nil || page.Body == nil {
		return "", nil
	}
	tc.pushOutput()
	_, err := tc.run(ctx, page.Body)
	out := tc.popOutput()
	if err != nil {
		return "", err
	}
	return out, nil
}

// Evaluate runs the body of page without writing output and returns the
// value of a ret statement or of the last expression.
func (tc *TemplateContext) Evaluate(ctx context.Context, page *ast.Page) (any, error) {
	if page == nil || page.Body == nil {
		return nil, nil
	}
	return tc.evaluateBlock(ctx, page.Body)
}

// EvaluateFrontMatter runs the front matter of page, if any, like Evaluate.
func (tc *TemplateContext) EvaluateFrontMatter(ctx context.Context, page *ast.Page) (any, error) {
	if page == nil || page.FrontMatter == nil {
		return nil, nil
	}
	return tc.evaluateBlock(ctx, page.FrontMatter)
}

func (tc *TemplateContext) evaluateBlock(ctx context.Context, b *ast.Block) (any, error) {
	silent := tc.silent
	tc.silent = true
	defer func() { tc.silent = silent }()
	tc.pushOutput()
	defer tc.popOutput()
	return tc.run(ctx, b)
}

func (tc *TemplateContext) run(ctx context.Context, b *ast.Block) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tc.Timeout)
		defer cancel()
	}
	prev := tc.ctx
	tc.ctx = ctx
	defer func() { tc.ctx = prev }()

	tc.loops, tc.depth = 0, 0
	tc.result, tc.last = nil, nil
	clear(tc.counters)

	start := time.Now()
	flow, err := tc.execBlock(b)
	if err != nil {
		tc.Logger.DebugContext(ctx, "evaluation failed", slog.Any("error", err))
		return nil, err
	}
	tc.Logger.TraceContext(ctx, "evaluation done",
		slog.Duration("elapsed", time.Since(start)), slog.Int("loops", tc.loops))
	if flow == flowReturn {
		return tc.result, nil
	}
	return tc.last, nil
}

// ============================================================================
// Output
// ============================================================================

// Write appends text to the current output.
func (tc *TemplateContext) Write(s string) {
	if tc.silent || len(tc.out) == 0 {
		return
	}
	tc.out[len(tc.out)-1].WriteString(s)
}

func (tc *TemplateContext) pushOutput() {
	tc.out = append(tc.out, &strings.Builder{})
}

func (tc *TemplateContext) popOutput() string {
	b := tc.out[len(tc.out)-1]
	tc.out = tc.out[:len(tc.out)-1]
	return b.String()
}

// ============================================================================
// Scopes and frames
// ============================================================================

func (tc *TemplateContext) pushScope(target any, loop bool) {
	tc.scopes = append(tc.scopes, scope{target: target, loop: loop})
}

func (tc *TemplateContext) popScope() {
	tc.scopes = tc.scopes[:len(tc.scopes)-1]
}

func (tc *TemplateContext) pushFrame(args *ScriptArray) {
	tc.frames = append(tc.frames, &frame{args: args, locals: NewScriptObject()})
}

func (tc *TemplateContext) popFrame() {
	tc.frames = tc.frames[:len(tc.frames)-1]
}

func (tc *TemplateContext) currentFrame() *frame {
	return tc.frames[len(tc.frames)-1]
}

// GetValue looks a variable up through the scopes and the TryGetVariable
// hook.
func (tc *TemplateContext) GetValue(name string) (any, bool) {
	return tc.find(lexer.Span{}, name)
}

func (tc *TemplateContext) find(span lexer.Span, name string) (any, bool) {
	for i := len(tc.scopes) - 1; i >= 0; i-- {
		s := tc.scopes[i]
		if v, ok := tc.objectAccessor(s.target).TryGetValue(tc, span, s.target, name); ok {
			return v, true
		}
	}
	if tc.TryGetVariable != nil {
		return tc.TryGetVariable(tc, span, name)
	}
	return nil, false
}

// lookup resolves a variable, failing in strict mode when it is unknown.
func (tc *TemplateContext) lookup(span lexer.Span, name string) (any, error) {
	if v, ok := tc.find(span, name); ok {
		return v, nil
	}
	if tc.Strict {
		return nil, errors.NewUndefinedVariable(span, name, tc.variableNames())
	}
	return nil, nil
}

func (tc *TemplateContext) variableNames() []string {
	var names []string
	for _, s := range tc.scopes {
		names = append(names, tc.objectAccessor(s.target).Members(tc, lexer.Span{}, s.target)...)
	}
	return append(names, errors.Keywords...)
}

// assignVariable writes into the innermost scope that has the variable,
// or defines it in the innermost scope that is not a loop scope.
func (tc *TemplateContext) assignVariable(span lexer.Span, name string, value any) error {
	for i := len(tc.scopes) - 1; i >= 0; i-- {
		s := tc.scopes[i]
		acc := tc.objectAccessor(s.target)
		if acc.HasMember(tc, span, s.target, name) {
			return acc.TrySetValue(tc, span, s.target, name, value)
		}
	}
	for i := len(tc.scopes) - 1; i >= 0; i-- {
		if s := tc.scopes[i]; !s.loop {
			return tc.objectAccessor(s.target).TrySetValue(tc, span, s.target, name, value)
		}
	}
	return nil
}

// ============================================================================
// Limits
// ============================================================================

// checkpoint fails when the render was cancelled, timed out or aborted by
// the host.
func (tc *TemplateContext) checkpoint(span lexer.Span) error {
	if err := tc.ctx.Err(); err != nil {
		reason := err.Error()
		if err == context.DeadlineExceeded && tc.Timeout > 0 {
			reason = fmt.Sprintf("the timeout of %s was exceeded", tc.Timeout)
		}
		tc.Logger.Debug("evaluation aborted", slog.String("reason", reason))
		return errors.NewAt("LIMIT-0003", span, map[string]any{"Reason": reason}).Wrap(err)
	}
	if tc.CheckAbort != nil {
		if err := tc.CheckAbort(); err != nil {
			return errors.NewAt("LIMIT-0003", span, map[string]any{"Reason": err.Error()}).Wrap(err)
		}
	}
	return nil
}

// iteration counts one loop iteration against LoopLimit.
func (tc *TemplateContext) iteration(span lexer.Span) error {
	tc.loops++
	if tc.LoopLimit > 0 && tc.loops > tc.LoopLimit {
		tc.Logger.Debug("loop limit exceeded", slog.Int("limit", tc.LoopLimit))
		return errors.NewAt("LIMIT-0001", span, map[string]any{"Limit": tc.LoopLimit})
	}
	return tc.checkpoint(span)
}

// enter counts one level of call or include nesting.
func (tc *TemplateContext) enter(span lexer.Span) error {
	tc.depth++
	if tc.RecursiveLimit > 0 && tc.depth > tc.RecursiveLimit {
		tc.depth--
		tc.Logger.Debug("recursion limit exceeded", slog.Int("limit", tc.RecursiveLimit))
		return errors.NewAt("LIMIT-0002", span, map[string]any{"Limit": tc.RecursiveLimit})
	}
	return nil
}

func (tc *TemplateContext) leave() { tc.depth-- }
