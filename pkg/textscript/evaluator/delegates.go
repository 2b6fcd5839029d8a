package evaluator

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// invoker calls a wrapped Go function with bound arguments.
type invoker func(tc *TemplateContext, span lexer.Span, args []any) (any, error)

// fastPaths maps common Go function types to invokers that avoid
// reflect.Value.Call. The table is built on first use and never modified.
var fastPaths = sync.OnceValue(func() map[reflect.Type]func(fn any) invoker {
	return map[reflect.Type]func(fn any) invoker{
		reflect.TypeFor[func() any](): func(fn any) invoker {
			f := fn.(func() any)
			return func(*TemplateContext, lexer.Span, []any) (any, error) { return f(), nil }
		},
		reflect.TypeFor[func() string](): func(fn any) invoker {
			f := fn.(func() string)
			return func(*TemplateContext, lexer.Span, []any) (any, error) { return f(), nil }
		},
		reflect.TypeFor[func() time.Time](): func(fn any) invoker {
			f := fn.(func() time.Time)
			return func(*TemplateContext, lexer.Span, []any) (any, error) { return f(), nil }
		},
		reflect.TypeFor[func(any) any](): func(fn any) invoker {
			f := fn.(func(any) any)
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) { return f(args[0]), nil }
		},
		reflect.TypeFor[func(string) string](): func(fn any) invoker {
			f := fn.(func(string) string)
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) {
				return f(args[0].(string)), nil
			}
		},
		reflect.TypeFor[func(string) (string, error)](): func(fn any) invoker {
			f := fn.(func(string) (string, error))
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) {
				return f(args[0].(string))
			}
		},
		reflect.TypeFor[func(string, string) string](): func(fn any) invoker {
			f := fn.(func(string, string) string)
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) {
				return f(args[0].(string), args[1].(string)), nil
			}
		},
		reflect.TypeFor[func(string) bool](): func(fn any) invoker {
			f := fn.(func(string) bool)
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) {
				return f(args[0].(string)), nil
			}
		},
		reflect.TypeFor[func(int) int](): func(fn any) invoker {
			f := fn.(func(int) int)
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) {
				return f(int(args[0].(int64))), nil
			}
		},
		reflect.TypeFor[func(int64, int64) int64](): func(fn any) invoker {
			f := fn.(func(int64, int64) int64)
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) {
				return f(args[0].(int64), args[1].(int64)), nil
			}
		},
		reflect.TypeFor[func(float64) float64](): func(fn any) invoker {
			f := fn.(func(float64) float64)
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) {
				return f(args[0].(float64)), nil
			}
		},
		reflect.TypeFor[func(...any) any](): func(fn any) invoker {
			f := fn.(func(...any) any)
			return func(_ *TemplateContext, _ lexer.Span, args []any) (any, error) {
				return f(args[0].([]any)...), nil
			}
		},
	}
})

var (
	errorType   = reflect.TypeFor[error]()
	tcType      = reflect.TypeFor[*TemplateContext]()
	contextType = reflect.TypeFor[context.Context]()
	lambdaType  = reflect.TypeFor[*Lambda]()
	funcType    = reflect.TypeFor[Function]()
	anyListType = reflect.TypeFor[[]any]()
)

// goFunction is a Go function exposed to templates.
type goFunction struct {
	sig    Signature
	invoke invoker
}

func (f *goFunction) Signature() Signature { return f.sig }

func (f *goFunction) Invoke(tc *TemplateContext, span lexer.Span, args []any) (any, error) {
	return f.invoke(tc, span, args)
}

// Wrap adapts a Go function to Function. Parameters are positional and
// named arg0, arg1 and so on. A leading *TemplateContext or
// context.Context parameter is supplied by the evaluator. The function may
// return nothing, a value, an error, or a value and an error. Wrap panics
// if fn is not a function.
func Wrap(fn any) Function {
	return wrapNamed(fn, "")
}

func wrapNamed(fn any, name string) Function {
	if f, ok := fn.(Function); ok {
		return f
	}
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		panic(fmt.Sprintf("evaluator: Wrap expects a function, got %T", fn))
	}
	sig := signatureOf(t)
	sig.Name = name
	if build, ok := fastPaths()[t]; ok {
		return &goFunction{sig: sig, invoke: build(fn)}
	}
	return &goFunction{sig: sig, invoke: reflectInvoker(reflect.ValueOf(fn))}
}

// signatures caches the parameter analysis of Go function types.
var signatures sync.Map // reflect.Type -> Signature

func signatureOf(t reflect.Type) Signature {
	if sig, ok := signatures.Load(t); ok {
		return sig.(Signature)
	}
	var sig Signature
	for i := injected(t); i < t.NumIn(); i++ {
		in := t.In(i)
		p := Parameter{Name: fmt.Sprintf("arg%d", len(sig.Params))}
		if t.IsVariadic() && i == t.NumIn()-1 {
			p.Variadic = true
			in = in.Elem()
		}
		p.Kind = kindOf(in)
		sig.Params = append(sig.Params, p)
	}
	actual, _ := signatures.LoadOrStore(t, sig)
	return actual.(Signature)
}

// injected counts the leading parameters supplied by the evaluator.
func injected(t reflect.Type) int {
	n := 0
	for n < t.NumIn() && n < 2 {
		in := t.In(n)
		if in != tcType && in != contextType {
			break
		}
		n++
	}
	return n
}

func kindOf(t reflect.Type) Kind {
	switch t {
	case lambdaType:
		return KindExpression
	case funcType:
		return KindFunction
	case timeType:
		return KindTime
	case anyListType:
		return KindList
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	}
	return KindAny
}

func reflectInvoker(fv reflect.Value) invoker {
	t := fv.Type()
	skip := injected(t)
	return func(tc *TemplateContext, span lexer.Span, args []any) (any, error) {
		in := make([]reflect.Value, 0, t.NumIn())
		for i := range skip {
			if t.In(i) == tcType {
				in = append(in, reflect.ValueOf(tc))
			} else {
				in = append(in, reflect.ValueOf(tc.Context()))
			}
		}
		for i, a := range args {
			pt := t.In(skip + i)
			if t.IsVariadic() && skip+i == t.NumIn()-1 {
				rest, _ := a.([]any)
				for _, r := range rest {
					v, err := tc.convertTo(span, r, pt.Elem())
					if err != nil {
						return nil, err
					}
					in = append(in, v)
				}
				continue
			}
			v, err := tc.convertTo(span, a, pt)
			if err != nil {
				return nil, err
			}
			in = append(in, v)
		}
		return results(fv.Call(in))
	}
}

func results(out []reflect.Value) (any, error) {
	var value any
	for _, v := range out {
		if v.Type() == errorType {
			if !v.IsNil() {
				return nil, v.Interface().(error)
			}
			continue
		}
		value = v.Interface()
	}
	return value, nil
}
