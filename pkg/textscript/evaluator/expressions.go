package evaluator

import (
	"strconv"

	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// eval evaluates an expression. A function read through a variable,
// member or index is invoked without arguments unless referenced with @.
func (tc *TemplateContext) eval(e ast.Expression) (any, error) {
	v, err := tc.evalValue(e)
	if err != nil {
		return nil, err
	}
	if fn, ok := v.(Function); ok {
		switch e.(type) {
		case *ast.Identifier, *ast.Member, *ast.Index:
			return tc.call(e.Span(), calleeName(e), fn, nil)
		}
	}
	return v, nil
}

// evalValue evaluates an expression without invoking a function result.
func (tc *TemplateContext) evalValue(e ast.Expression) (any, error) {
	switch e := e.(type) {
	case nil:
		return nil, nil
	case *ast.Literal:
		return e.Value, nil
	case *ast.Identifier:
		return tc.lookup(e.Span(), e.Name())
	case *ast.SpecialVar:
		return tc.special(e)
	case *ast.Paren:
		return tc.eval(e.Inner)
	case *ast.FuncRef:
		return tc.evalValue(e.Target)
	case *ast.Unary:
		v, err := tc.eval(e.Operand)
		if err != nil {
			return nil, err
		}
		return tc.unary(e.Span(), e.Op.Text, v)
	case *ast.Binary:
		return tc.evalBinary(e)
	case *ast.Member:
		target, err := tc.eval(e.Target)
		if err != nil {
			return nil, err
		}
		return tc.getMember(e.Name.Span, target, e.Name.Text)
	case *ast.Index:
		target, err := tc.eval(e.Target)
		if err != nil {
			return nil, err
		}
		key, err := tc.eval(e.Index)
		if err != nil {
			return nil, err
		}
		return tc.getIndex(e.Span(), target, key)
	case *ast.Call:
		return tc.evalCall(e)
	case *ast.Pipe:
		return tc.evalPipe(e)
	case *ast.NamedArg:
		return tc.eval(e.Value)
	case *ast.ArrayLiteral:
		items := make([]any, 0, len(e.Items))
		for _, a := range e.Items {
			v, err := tc.eval(a.Value)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return NewScriptArray(items...), nil
	case *ast.ObjectLiteral:
		o := NewScriptObject()
		for _, m := range e.Members {
			v, err := tc.eval(m.Value)
			if err != nil {
				return nil, err
			}
			o.SetValue(m.KeyName(), v, false)
		}
		return o, nil
	}
	return nil, errors.NewSimple(errors.ClassState, e.Span(), "unsupported expression")
}

func (tc *TemplateContext) evalBinary(e *ast.Binary) (any, error) {
	left, err := tc.eval(e.Left)
	if err != nil {
		return nil, err
	}
	switch op := e.Op.Text; op {
	case "&&", "and":
		if !tc.ToBool(left) {
			return false, nil
		}
		right, err := tc.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return tc.ToBool(right), nil
	case "||", "or":
		if tc.ToBool(left) {
			return true, nil
		}
		right, err := tc.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return tc.ToBool(right), nil
	case "??":
		if !IsEmpty(left) {
			return left, nil
		}
		return tc.eval(e.Right)
	default:
		right, err := tc.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return tc.binary(e.Op.Span, op, left, right)
	}
}

// special resolves $, $0..$n and $name.
func (tc *TemplateContext) special(sv *ast.SpecialVar) (any, error) {
	name := sv.Name()
	fr := tc.currentFrame()
	if name == "" {
		if n := len(tc.dollars); n > 0 {
			return tc.dollars[n-1], nil
		}
		return fr.args, nil
	}
	if i, err := strconv.Atoi(name); err == nil {
		if i >= fr.args.Len() {
			return nil, nil
		}
		return fr.args.Get(i), nil
	}
	if v, ok := fr.locals.Get(name); ok {
		return v, nil
	}
	if tc.Strict {
		return nil, errors.NewUndefinedVariable(sv.Span(), sv.Tok.Text, fr.locals.Keys())
	}
	return nil, nil
}

// getMember reads a named member of a value.
func (tc *TemplateContext) getMember(span lexer.Span, target any, name string) (any, error) {
	if target == Empty {
		return Empty, nil
	}
	if target == nil {
		if tc.Strict {
			return nil, errors.NewAt("UNDEF-0003", span, map[string]any{"Member": name})
		}
		return nil, nil
	}
	acc := tc.objectAccessor(target)
	if v, ok := acc.TryGetValue(tc, span, target, name); ok {
		return v, nil
	}
	if tc.TryGetMember != nil {
		if v, ok := tc.TryGetMember(tc, span, target, name); ok {
			return v, nil
		}
	}
	if tc.Strict {
		return nil, errors.NewUndefinedMember(span, name, TypeName(target), acc.Members(tc, span, target))
	}
	return nil, nil
}

// getIndex reads target[key]. Integer keys index lists, counting from the
// end when negative; other keys name members.
func (tc *TemplateContext) getIndex(span lexer.Span, target, key any) (any, error) {
	if target == Empty {
		return Empty, nil
	}
	if target == nil {
		if tc.Strict {
			return nil, errors.NewAt("UNDEF-0004", span, map[string]any{"Index": tc.ToString(key)})
		}
		return nil, nil
	}
	la, isList := tc.listAccessor(target)
	if isList {
		if n, ok := toNumber(key); ok {
			i := int(n.i)
			if n.isFloat {
				i = int(n.f)
			}
			length := la.Length(tc, span, target)
			if i < 0 {
				i += length
			}
			if i < 0 || i >= length {
				return nil, nil
			}
			return la.GetValue(tc, span, target, i), nil
		}
	}
	if _, ok := tc.objectAccessor(target).(primitiveAccessor); ok && !isList {
		return nil, errors.NewAt("TYPE-0003", span, map[string]any{"Type": TypeName(target)})
	}
	return tc.getMember(span, target, tc.ToString(key))
}

func (tc *TemplateContext) setIndex(span lexer.Span, target, key, value any) error {
	if IsEmpty(target) {
		return errors.NewAt("UNDEF-0004", span, map[string]any{"Index": tc.ToString(key)})
	}
	if la, ok := tc.listAccessor(target); ok {
		if n, ok := toNumber(key); ok {
			i := int(n.i)
			if n.isFloat {
				i = int(n.f)
			}
			if i < 0 {
				i += la.Length(tc, span, target)
				if i < 0 {
					return errors.NewAt("TYPE-0006", span, map[string]any{"Index": n.i, "Type": TypeName(target)})
				}
			}
			return la.SetValue(tc, span, target, i, value)
		}
	}
	return tc.objectAccessor(target).TrySetValue(tc, span, target, tc.ToString(key), value)
}

// assign stores value into a variable, $name, member or index target.
func (tc *TemplateContext) assign(target ast.Expression, value any) error {
	switch t := target.(type) {
	case *ast.Identifier:
		return tc.assignVariable(t.Span(), t.Name(), value)
	case *ast.SpecialVar:
		if err := tc.currentFrame().locals.Set(t.Name(), value); err != nil {
			return withSpan(err, t.Span())
		}
		return nil
	case *ast.Member:
		obj, err := tc.eval(t.Target)
		if err != nil {
			return err
		}
		return tc.objectAccessor(obj).TrySetValue(tc, t.Name.Span, obj, t.Name.Text, value)
	case *ast.Index:
		obj, err := tc.eval(t.Target)
		if err != nil {
			return err
		}
		key, err := tc.eval(t.Index)
		if err != nil {
			return err
		}
		return tc.setIndex(t.Span(), obj, key, value)
	}
	return errors.NewAt("PARSE-0008", target.Span(), map[string]any{"Target": calleeName(target)})
}

// ============================================================================
// Calls and pipes
// ============================================================================

func calleeName(e ast.Expression) string {
	switch e := e.(type) {
	case *ast.Identifier:
		return e.Name()
	case *ast.Member:
		return e.Name.Text
	case *ast.SpecialVar:
		return e.Tok.Text
	case *ast.FuncRef:
		return calleeName(e.Target)
	case *ast.Index:
		return calleeName(e.Target)
	}
	return ""
}

func (tc *TemplateContext) function(callee ast.Expression) (Function, error) {
	v, err := tc.evalValue(callee)
	if err != nil {
		return nil, err
	}
	if fn, ok := v.(Function); ok {
		return fn, nil
	}
	name := calleeName(callee)
	if v == nil {
		return nil, errors.NewUndefinedVariable(callee.Span(), name, tc.variableNames())
	}
	return nil, errors.NewAt("TYPE-0002", callee.Span(), map[string]any{"Name": name})
}

func callArgs(args []*ast.Arg) []callArg {
	out := make([]callArg, 0, len(args))
	for _, a := range args {
		if n, ok := a.Value.(*ast.NamedArg); ok {
			out = append(out, callArg{name: n.Name.Text, expr: n.Value, span: n.Span()})
			continue
		}
		out = append(out, callArg{expr: a.Value, span: a.Value.Span()})
	}
	return out
}

func (tc *TemplateContext) evalCall(c *ast.Call) (any, error) {
	fn, err := tc.function(c.Callee)
	if err != nil {
		return nil, err
	}
	return tc.call(c.Span(), calleeName(c.Callee), fn, callArgs(c.Args))
}

// evalPipe passes the left value to the function on the right. The value
// becomes the first argument, unless an argument mentions $ and the
// function evaluates all of its arguments eagerly, in which case $ is bound
// to the value instead.
func (tc *TemplateContext) evalPipe(p *ast.Pipe) (any, error) {
	left, err := tc.eval(p.Left)
	if err != nil {
		return nil, err
	}
	callee, args := p.Right, []*ast.Arg(nil)
	if c, ok := p.Right.(*ast.Call); ok {
		callee, args = c.Callee, c.Args
	}
	fn, err := tc.function(callee)
	if err != nil {
		return nil, err
	}
	cargs := callArgs(args)
	name := calleeName(callee)

	if !fn.Signature().defers() && referencesDollar(args) {
		tc.dollars = append(tc.dollars, left)
		defer func() { tc.dollars = tc.dollars[:len(tc.dollars)-1] }()
		return tc.call(p.Span(), name, fn, cargs)
	}
	piped := callArg{value: left, given: true, span: p.Left.Span()}
	return tc.call(p.Span(), name, fn, append([]callArg{piped}, cargs...))
}

func referencesDollar(args []*ast.Arg) bool {
	for _, a := range args {
		if ast.ReferencesDollar(a.Value) {
			return true
		}
	}
	return false
}
