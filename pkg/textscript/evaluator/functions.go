package evaluator

import (
	"fmt"
	"log/slog"

	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// maxParams is the number of parameters the argument binder can track.
const maxParams = 64

// Function is a callable value. Invoke receives one argument per parameter
// of its signature, already converted to the parameter kinds; a variadic
// parameter receives a []any.
type Function interface {
	Signature() Signature
	Invoke(tc *TemplateContext, span lexer.Span, args []any) (any, error)
}

// Signature describes the parameters of a function.
type Signature struct {
	Name   string
	Params []Parameter
}

// Parameter is one declared parameter. Default is used for optional
// parameters that were not given.
type Parameter struct {
	Name     string
	Kind     Kind
	Optional bool
	Default  any
	Variadic bool
}

func (s Signature) index(name string) int {
	for i, p := range s.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (s Signature) variadic() int {
	if n := len(s.Params); n > 0 && s.Params[n-1].Variadic {
		return n - 1
	}
	return -1
}

// minimum is the number of arguments that must be given.
func (s Signature) minimum() int {
	n := 0
	for _, p := range s.Params {
		if !p.Optional && !p.Variadic {
			n++
		}
	}
	return n
}

func (s Signature) defers() bool {
	for _, p := range s.Params {
		if p.Kind == KindExpression {
			return true
		}
	}
	return false
}

// Func adapts a signature and a Go function to Function.
type Func struct {
	Sig Signature
	Fn  func(tc *TemplateContext, span lexer.Span, args []any) (any, error)
}

// NewFunc creates a Func.
func NewFunc(name string, params []Parameter, fn func(tc *TemplateContext, span lexer.Span, args []any) (any, error)) *Func {
	return &Func{Sig: Signature{Name: name, Params: params}, Fn: fn}
}

func (f *Func) Signature() Signature { return f.Sig }

func (f *Func) Invoke(tc *TemplateContext, span lexer.Span, args []any) (any, error) {
	return f.Fn(tc, span, args)
}

// Lambda is an argument whose evaluation is deferred to the callee, which
// evaluates it with $ bound to a value of its choosing.
type Lambda struct {
	Expr     ast.Expression
	value    any
	constant bool
}

// Invoke evaluates the expression with $ bound to dollar.
func (l *Lambda) Invoke(tc *TemplateContext, dollar any) (any, error) {
	if l.constant {
		return l.value, nil
	}
	tc.dollars = append(tc.dollars, dollar)
	defer func() { tc.dollars = tc.dollars[:len(tc.dollars)-1] }()
	return tc.eval(l.Expr)
}

// ============================================================================
// Template functions
// ============================================================================

// defaultExpr is the default of a template function parameter, evaluated
// in the function's scope when the argument is missing.
type defaultExpr struct {
	expr ast.Expression
}

// ScriptFunction is a function declared with func in a template.
type ScriptFunction struct {
	Decl *ast.FuncStatement
	sig  Signature
	// anonymous functions declare no parameter list and receive their
	// arguments through $ and $0..$n only.
	anonymous bool
}

func newScriptFunction(decl *ast.FuncStatement) (*ScriptFunction, error) {
	f := &ScriptFunction{Decl: decl, sig: Signature{Name: decl.Name.Text}}
	if decl.Open == nil {
		f.anonymous = true
		f.sig.Params = []Parameter{{Name: "args", Variadic: true}}
		return f, nil
	}
	if len(decl.Params) > maxParams {
		return nil, errors.NewAt("ARITY-0006", decl.Name.Span, map[string]any{"Name": decl.Name.Text, "Max": maxParams})
	}
	for _, p := range decl.Params {
		param := Parameter{Name: p.Name.Text, Variadic: len(p.Variadic) > 0}
		if p.Default != nil {
			param.Optional = true
			param.Default = defaultExpr{p.Default}
		}
		f.sig.Params = append(f.sig.Params, param)
	}
	return f, nil
}

func (f *ScriptFunction) Signature() Signature { return f.sig }

func (f *ScriptFunction) Invoke(tc *TemplateContext, span lexer.Span, args []any) (any, error) {
	var positional []any
	locals := NewScriptObject()
	if f.anonymous {
		positional, _ = args[0].([]any)
	}

	tc.pushFrame(NewScriptArray(positional...))
	defer tc.popFrame()
	tc.pushScope(locals, false)
	defer tc.popScope()

	if !f.anonymous {
		for i, p := range f.sig.Params {
			v := args[i]
			if d, ok := v.(defaultExpr); ok {
				var err error
				if v, err = tc.eval(d.expr); err != nil {
					return nil, err
				}
			}
			if p.Variadic {
				rest, _ := v.([]any)
				positional = append(positional, rest...)
				v = NewScriptArray(rest...)
			} else {
				positional = append(positional, v)
			}
			locals.SetValue(p.Name, v, false)
		}
		tc.currentFrame().args = NewScriptArray(positional...)
	}

	flow, err := tc.execBlock(f.Decl.Body)
	if err != nil {
		return nil, err
	}
	if flow == flowReturn {
		result := tc.result
		tc.result = nil
		return result, nil
	}
	return nil, nil
}

// ============================================================================
// Argument binding
// ============================================================================

// callArg is one argument at a call site: an expression to evaluate, or a
// value supplied by a pipe.
type callArg struct {
	name  string
	expr  ast.Expression
	value any
	given bool
	span  lexer.Span
}

func (tc *TemplateContext) argValue(a callArg) (any, error) {
	if a.given {
		return a.value, nil
	}
	return tc.eval(a.expr)
}

// bindArguments matches call-site arguments to the parameters of sig and
// converts each to its parameter kind.
func (tc *TemplateContext) bindArguments(span lexer.Span, sig Signature, args []callArg) ([]any, error) {
	n := len(sig.Params)
	variadic := sig.variadic()
	minimum := sig.minimum()

	if len(args) < minimum {
		return nil, errors.NewAt("ARITY-0001", span, map[string]any{"Got": len(args), "Name": sig.Name, "Min": minimum})
	}
	if variadic < 0 && len(args) > n {
		return nil, errors.NewAt("ARITY-0002", span, map[string]any{"Got": len(args), "Name": sig.Name, "Max": n})
	}

	values := make([]any, n)
	var filled uint64
	var rest []any
	ordinal := 0

	convert := func(p Parameter, a callArg) (any, error) {
		if p.Kind == KindExpression && !a.given {
			return &Lambda{Expr: a.expr}, nil
		}
		v, err := tc.argValue(a)
		if err != nil {
			return nil, err
		}
		out, err := tc.ToObject(a.span, v, p.Kind)
		if err != nil {
			return nil, errors.NewAt("ARITY-0005", a.span, map[string]any{"Param": p.Name, "Name": sig.Name, "To": p.Kind.String()}).Wrap(err)
		}
		return out, nil
	}

	for _, a := range args {
		idx := -1
		if a.name != "" {
			if idx = sig.index(a.name); idx < 0 {
				return nil, errors.NewAt("ARITY-0003", a.span, map[string]any{"Name": sig.Name, "Param": a.name})
			}
			if idx != variadic && filled&(1<<idx) != 0 {
				return nil, errors.NewAt("ARITY-0004", a.span, map[string]any{"Name": sig.Name, "Param": a.name})
			}
		} else {
			for ordinal < n && ordinal != variadic && filled&(1<<ordinal) != 0 {
				ordinal++
			}
			if variadic >= 0 && ordinal >= variadic {
				idx = variadic
			} else if ordinal >= n {
				return nil, errors.NewAt("ARITY-0002", a.span, map[string]any{"Got": len(args), "Name": sig.Name, "Max": n})
			} else {
				idx = ordinal
				ordinal++
			}
		}

		v, err := convert(sig.Params[idx], a)
		if err != nil {
			return nil, err
		}
		if idx == variadic {
			rest = append(rest, v)
			continue
		}
		values[idx] = v
		filled |= 1 << idx
	}

	for i, p := range sig.Params {
		if i == variadic || filled&(1<<i) != 0 {
			continue
		}
		if !p.Optional {
			return nil, errors.NewAt("ARITY-0001", span, map[string]any{"Got": len(args), "Name": sig.Name, "Min": minimum})
		}
		values[i] = p.Default
	}
	if variadic >= 0 {
		if rest == nil {
			rest = []any{}
		}
		values[variadic] = rest
	}
	return values, nil
}

// call binds args and invokes fn, named name at the call site. Errors
// that are not already script errors are wrapped with the call site.
func (tc *TemplateContext) call(span lexer.Span, name string, fn Function, args []callArg) (result any, err error) {
	sig := fn.Signature()
	if sig.Name == "" {
		sig.Name = name
	}
	values, err := tc.bindArguments(span, sig, args)
	if err != nil {
		return nil, err
	}
	if err := tc.checkpoint(span); err != nil {
		return nil, err
	}
	if err := tc.enter(span); err != nil {
		return nil, err
	}
	defer tc.leave()

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewAt("INVOKE-0001", span, map[string]any{"Name": sig.Name}).Wrap(fmt.Errorf("panic: %v", r))
			tc.Logger.Debug("function panicked", slog.String("name", sig.Name), slog.Any("panic", r))
		}
	}()

	result, err = fn.Invoke(tc, span, values)
	if err != nil {
		if _, ok := err.(*errors.ScriptError); ok {
			return nil, withSpan(err, span)
		}
		return nil, errors.NewAt("INVOKE-0001", span, map[string]any{"Name": sig.Name}).Wrap(err)
	}
	return normalize(result), nil
}
