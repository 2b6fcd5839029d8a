package evaluator

import (
	"strconv"

	"github.com/sambeau/textscript/pkg/textscript/ast"
	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// execBlock runs statements until one of them breaks, continues or
// returns.
func (tc *TemplateContext) execBlock(b *ast.Block) (flow, error) {
	if b == nil {
		return flowNone, nil
	}
	for _, stmt := range b.Statements {
		f, err := tc.exec(stmt)
		if err != nil || f != flowNone {
			return f, err
		}
	}
	return flowNone, nil
}

func (tc *TemplateContext) exec(stmt ast.Statement) (flow, error) {
	if err := tc.checkpoint(stmt.Span()); err != nil {
		return flowNone, err
	}
	switch s := stmt.(type) {
	case *ast.RawStatement:
		tc.Write(s.Text.Text)

	case *ast.ExpressionStatement:
		v, err := tc.eval(s.Expr)
		if err != nil {
			return flowNone, err
		}
		tc.last = v
		if v != nil {
			tc.Write(tc.ToString(v))
		}

	case *ast.AssignStatement:
		v, err := tc.eval(s.Value)
		if err != nil {
			return flowNone, err
		}
		return flowNone, tc.assign(s.Target, v)

	case *ast.IfStatement:
		return tc.execIf(s)

	case *ast.ForStatement:
		return tc.execFor(s)

	case *ast.WhileStatement:
		return tc.execWhile(s)

	case *ast.WithStatement:
		target, err := tc.eval(s.Target)
		if err != nil {
			return flowNone, err
		}
		if IsEmpty(target) {
			target = NewScriptObject()
			if err := tc.assign(s.Target, target); err != nil {
				return flowNone, err
			}
		} else if _, ok := tc.objectAccessor(target).(primitiveAccessor); ok {
			return flowNone, errors.NewAt("TYPE-0005", s.Target.Span(), map[string]any{"Type": TypeName(target)})
		}
		tc.pushScope(target, false)
		defer tc.popScope()
		return tc.execBlock(s.Body)

	case *ast.CaptureStatement:
		var f flow
		out, err := tc.capture(func() (err error) {
			f, err = tc.execBlock(s.Body)
			return err
		})
		if err != nil {
			return flowNone, err
		}
		if err := tc.assign(s.Target, out); err != nil {
			return flowNone, err
		}
		return f, nil

	case *ast.FuncStatement:
		fn, err := newScriptFunction(s)
		if err != nil {
			return flowNone, err
		}
		return flowNone, tc.assignVariable(s.Name.Span, s.Name.Text, fn)

	case *ast.CaseStatement:
		return tc.execCase(s)

	case *ast.LoopControl:
		if s.IsBreak() {
			return flowBreak, nil
		}
		return flowContinue, nil

	case *ast.ReturnStatement:
		var v any
		if s.Value != nil {
			var err error
			if v, err = tc.eval(s.Value); err != nil {
				return flowNone, err
			}
		}
		tc.result = v
		return flowReturn, nil

	case *ast.ImportStatement:
		v, err := tc.eval(s.Value)
		if err != nil {
			return flowNone, err
		}
		return flowNone, tc.importInto(s.Value.Span(), tc.writableScope(), v)

	case *ast.IncludeStatement:
		return flowNone, tc.execInclude(s)

	case *ast.CounterStatement:
		tc.execCounter(s)

	default:
		return flowNone, errors.NewSimple(errors.ClassState, stmt.Span(), "unsupported statement")
	}
	return flowNone, nil
}

// writableScope is the innermost scope that is not a loop scope.
func (tc *TemplateContext) writableScope() any {
	for i := len(tc.scopes) - 1; i >= 0; i-- {
		if !tc.scopes[i].loop {
			return tc.scopes[i].target
		}
	}
	return tc.globals
}

// capture runs fn with a fresh output buffer and returns what it wrote.
// Output is captured even while evaluating silently.
func (tc *TemplateContext) capture(fn func() error) (string, error) {
	silent := tc.silent
	tc.silent = false
	tc.pushOutput()
	err := fn()
	out := tc.popOutput()
	tc.silent = silent
	return out, err
}

func (tc *TemplateContext) execIf(s *ast.IfStatement) (flow, error) {
	for n := s; n != nil; n = n.ElseIf {
		c, err := tc.eval(n.Condition)
		if err != nil {
			return flowNone, err
		}
		ok := tc.ToBool(c)
		if n.Negate {
			ok = !ok
		}
		if ok {
			return tc.execBlock(n.Then)
		}
		if n.ElseIf == nil && n.Else != nil {
			return tc.execBlock(n.Else.Body)
		}
	}
	return flowNone, nil
}

func (tc *TemplateContext) execWhile(s *ast.WhileStatement) (flow, error) {
	for {
		c, err := tc.eval(s.Condition)
		if err != nil {
			return flowNone, err
		}
		if !tc.ToBool(c) {
			return flowNone, nil
		}
		if err := tc.iteration(s.Span()); err != nil {
			return flowNone, err
		}
		f, err := tc.execBlock(s.Body)
		if err != nil {
			return flowNone, err
		}
		switch f {
		case flowBreak:
			return flowNone, nil
		case flowReturn:
			return f, nil
		}
	}
}

func (tc *TemplateContext) execCase(s *ast.CaseStatement) (flow, error) {
	v, err := tc.eval(s.Value)
	if err != nil {
		return flowNone, err
	}
	for _, w := range s.Whens {
		for _, e := range w.Values {
			wv, err := tc.eval(e)
			if err != nil {
				return flowNone, err
			}
			if tc.equal(v, wv) {
				return tc.execBlock(w.Body)
			}
		}
	}
	if s.Else != nil {
		return tc.execBlock(s.Else.Body)
	}
	return flowNone, nil
}

// ============================================================================
// Loops
// ============================================================================

// sequence is an indexable view of something a for loop can iterate.
type sequence struct {
	length int
	at     func(i int) any
}

func (tc *TemplateContext) sequenceOf(span lexer.Span, v any) (sequence, error) {
	if IsEmpty(v) {
		return sequence{}, nil
	}
	if la, ok := tc.listAccessor(v); ok {
		return sequence{
			length: la.Length(tc, span, v),
			at:     func(i int) any { return la.GetValue(tc, span, v, i) },
		}, nil
	}
	acc := tc.objectAccessor(v)
	if _, ok := acc.(primitiveAccessor); ok {
		return sequence{}, errors.NewAt("TYPE-0004", span, map[string]any{"Type": TypeName(v)})
	}
	names := acc.Members(tc, span, v)
	return sequence{
		length: len(names),
		at: func(i int) any {
			value, _ := acc.TryGetValue(tc, span, v, names[i])
			return ObjectOf("key", names[i], "value", value)
		},
	}, nil
}

type loopParams struct {
	offset   int
	limit    int
	reversed bool
}

func (tc *TemplateContext) forParams(params []*ast.ForParam) (loopParams, error) {
	lp := loopParams{limit: -1}
	for _, p := range params {
		switch p.Name.Text {
		case "reversed":
			lp.reversed = true
		case "offset", "limit":
			v, err := tc.eval(p.Value)
			if err != nil {
				return lp, err
			}
			n, err := tc.ToInt(p.Value.Span(), v)
			if err != nil {
				return lp, err
			}
			if p.Name.Text == "offset" {
				lp.offset = int(max(n, 0))
			} else {
				lp.limit = int(max(n, 0))
			}
		}
	}
	return lp, nil
}

func (tc *TemplateContext) liquid() bool {
	return tc.LexerOptions.Mode == lexer.ModeLiquid
}

func (tc *TemplateContext) execFor(s *ast.ForStatement) (flow, error) {
	iterable, err := tc.eval(s.Iterable)
	if err != nil {
		return flowNone, err
	}
	seq, err := tc.sequenceOf(s.Iterable.Span(), iterable)
	if err != nil {
		return flowNone, err
	}
	lp, err := tc.forParams(s.Params)
	if err != nil {
		return flowNone, err
	}

	start := min(lp.offset, seq.length)
	count := seq.length - start
	if lp.limit >= 0 {
		count = min(count, lp.limit)
	}
	if count == 0 {
		if s.Else != nil {
			return tc.execBlock(s.Else.Body)
		}
		return flowNone, nil
	}

	vars := NewScriptObject()
	tc.pushScope(vars, true)
	defer tc.popScope()

	loop := NewScriptObject()
	loopName := "for"
	if tc.liquid() {
		loopName = "forloop"
	}
	vars.SetValue(loopName, loop, false)

	var previous any
	for k := range count {
		if err := tc.iteration(s.Span()); err != nil {
			return flowNone, err
		}
		idx := start + k
		if lp.reversed {
			idx = start + count - 1 - k
		}
		item := seq.at(idx)

		switch v := s.Variable.(type) {
		case *ast.SpecialVar:
			tc.currentFrame().locals.SetValue(v.Name(), item, false)
		case *ast.Identifier:
			vars.SetValue(v.Name(), item, false)
		}
		tc.setLoopState(loop, k, count, k > 0 && !tc.equal(previous, item))
		previous = item

		f, err := tc.execBlock(s.Body)
		if err != nil {
			return flowNone, err
		}
		switch f {
		case flowBreak:
			return flowNone, nil
		case flowReturn:
			return f, nil
		}
	}
	return flowNone, nil
}

// setLoopState updates the for (or Liquid forloop) object at iteration k
// of count.
func (tc *TemplateContext) setLoopState(loop *ScriptObject, k, count int, changed bool) {
	first, last := k == 0, k == count-1
	length := int64(count)
	if tc.liquid() {
		loop.SetValue("index", int64(k+1), false)
		loop.SetValue("index0", int64(k), false)
		loop.SetValue("rindex", int64(count-k), false)
		loop.SetValue("rindex0", int64(count-k-1), false)
		loop.SetValue("first", first, false)
		loop.SetValue("last", last, false)
		loop.SetValue("length", length, false)
		return
	}
	loop.SetValue("index", int64(k), false)
	loop.SetValue("index0", int64(k), false)
	loop.SetValue("rindex", int64(count-k-1), false)
	loop.SetValue("first", first, false)
	loop.SetValue("last", last, false)
	loop.SetValue("even", k%2 == 0, false)
	loop.SetValue("odd", k%2 == 1, false)
	loop.SetValue("length", length, false)
	loop.SetValue("changed", first || changed, false)
}

// ============================================================================
// Liquid statements
// ============================================================================

// execInclude renders a Liquid include tag. Named arguments and the with or
// for value are visible to the included template; assignments it makes
// stay visible to the caller.
func (tc *TemplateContext) execInclude(s *ast.IncludeStatement) error {
	nv, err := tc.eval(s.Name)
	if err != nil {
		return err
	}
	name := tc.ToString(nv)

	vars := NewScriptObject()
	for _, a := range s.Args {
		n, ok := a.Value.(*ast.NamedArg)
		if !ok {
			continue
		}
		v, err := tc.eval(n.Value)
		if err != nil {
			return err
		}
		vars.SetValue(n.Name.Text, v, false)
	}
	tc.pushScope(vars, true)
	defer tc.popScope()

	render := func() error {
		out, err := tc.include(s.Span(), name, []any{name})
		if err != nil {
			return err
		}
		tc.Write(out)
		return nil
	}
	if s.Mode == nil {
		return render()
	}

	alias := templateName(name)
	if len(s.Alias) == 2 {
		alias = s.Alias[1].Text
	}
	target, err := tc.eval(s.Target)
	if err != nil {
		return err
	}
	if s.Mode.Text == "with" {
		vars.SetValue(alias, target, false)
		return render()
	}
	seq, err := tc.sequenceOf(s.Target.Span(), target)
	if err != nil {
		return err
	}
	for i := range seq.length {
		if err := tc.iteration(s.Span()); err != nil {
			return err
		}
		vars.SetValue(alias, seq.at(i), false)
		if err := render(); err != nil {
			return err
		}
	}
	return nil
}

// execCounter runs increment, which outputs the counter and then adds
// one, or decrement, which subtracts one and then outputs it. Counters
// are separate from variables.
func (tc *TemplateContext) execCounter(s *ast.CounterStatement) {
	if tc.counters == nil {
		tc.counters = map[string]int64{}
	}
	name := s.Name.Text
	v := tc.counters[name]
	if s.IsIncrement() {
		tc.Write(strconv.FormatInt(v, 10))
		tc.counters[name] = v + 1
		return
	}
	v--
	tc.counters[name] = v
	tc.Write(strconv.FormatInt(v, 10))
}
