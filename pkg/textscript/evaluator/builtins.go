package evaluator

import (
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// newBuiltins creates the outermost scope. Its members cannot be
// reassigned by templates.
func newBuiltins() *ScriptObject {
	o := NewScriptObject()
	o.SetValue("empty", Empty, true)
	o.SetValue("include", NewFunc("include", []Parameter{
		{Name: "name", Kind: KindString},
		{Name: "args", Kind: KindAny, Variadic: true},
	}, builtinInclude), true)
	o.SetValue("where", NewFunc("where", []Parameter{
		{Name: "list", Kind: KindList},
		{Name: "condition", Kind: KindExpression, Optional: true},
	}, builtinWhere), true)
	return o
}

// builtinInclude renders a template. The template sees its name as $0 and
// the remaining arguments as $1..$n.
func builtinInclude(tc *TemplateContext, span lexer.Span, args []any) (any, error) {
	name := args[0].(string)
	rest, _ := args[1].([]any)
	return tc.include(span, name, append([]any{name}, rest...))
}

// builtinWhere keeps the items for which condition, evaluated with $ bound
// to the item, is true. Without a condition the list is returned as is.
func builtinWhere(tc *TemplateContext, span lexer.Span, args []any) (any, error) {
	items, _ := args[0].([]any)
	cond, _ := args[1].(*Lambda)
	if cond == nil {
		return NewScriptArray(items...), nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := cond.Invoke(tc, item)
		if err != nil {
			return nil, err
		}
		if tc.ToBool(v) {
			out = append(out, item)
		}
	}
	return NewScriptArray(out...), nil
}
