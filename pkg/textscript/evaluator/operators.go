package evaluator

import (
	"cmp"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// number is an integer or float operand.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func toNumber(v any) (number, bool) {
	switch v := v.(type) {
	case int64:
		return number{i: v}, true
	case int:
		return number{i: int64(v)}, true
	case float64:
		return number{f: v, isFloat: true}, true
	case int32:
		return number{i: int64(v)}, true
	case float32:
		return number{f: float64(v), isFloat: true}, true
	case nil, bool, string:
		return number{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return number{i: int64(rv.Uint())}, true
	case reflect.Float32, reflect.Float64:
		return number{f: rv.Float(), isFloat: true}, true
	}
	return number{}, false
}

func binaryError(span lexer.Span, op string, left, right any) error {
	return errors.NewAt("OP-0001", span, map[string]any{"Operator": op, "Left": TypeName(left), "Right": TypeName(right)})
}

// binary applies an operator that does not short-circuit.
func (tc *TemplateContext) binary(span lexer.Span, op string, left, right any) (any, error) {
	switch op {
	case "==":
		return tc.equal(left, right), nil
	case "!=", "<>":
		return !tc.equal(left, right), nil
	case "<", "<=", ">", ">=":
		return tc.compare(span, op, left, right)
	case "..", "..<":
		from, err := tc.ToInt(span, left)
		if err != nil {
			return nil, err
		}
		to, err := tc.ToInt(span, right)
		if err != nil {
			return nil, err
		}
		return &Range{From: from, To: to, Exclusive: op == "..<"}, nil
	case "contains":
		return tc.contains(span, left, right)
	case "+":
		if s, ok := left.(string); ok {
			return s + tc.ToString(right), nil
		}
		if s, ok := right.(string); ok {
			return tc.ToString(left) + s, nil
		}
		if l, ok := left.(*ScriptArray); ok {
			if r, ok := right.(*ScriptArray); ok {
				return NewScriptArray(append(append([]any{}, l.Items()...), r.Items()...)...), nil
			}
		}
		if t, ok := left.(time.Time); ok {
			if n, ok := toNumber(right); ok {
				return t.Add(time.Duration(n.float() * float64(time.Second))), nil
			}
		}
	case "-":
		if t, ok := left.(time.Time); ok {
			if r, ok := right.(time.Time); ok {
				return t.Sub(r).Seconds(), nil
			}
		}
	}
	return tc.arithmetic(span, op, left, right)
}

func (tc *TemplateContext) arithmetic(span lexer.Span, op string, left, right any) (any, error) {
	l, lok := toNumber(left)
	r, rok := toNumber(right)
	if !lok || !rok {
		return nil, binaryError(span, op, left, right)
	}
	if !l.isFloat && !r.isFloat {
		a, b := l.i, r.i
		switch op {
		case "+":
			return a + b, nil
		case "-":
			return a - b, nil
		case "*":
			return a * b, nil
		case "/":
			if b == 0 {
				return nil, errors.NewAt("OP-0003", span, nil)
			}
			if a%b == 0 {
				return a / b, nil
			}
			return float64(a) / float64(b), nil
		case "//":
			if b == 0 {
				return nil, errors.NewAt("OP-0003", span, nil)
			}
			return int64(math.Floor(float64(a) / float64(b))), nil
		case "%":
			if b == 0 {
				return nil, errors.NewAt("OP-0003", span, nil)
			}
			return a % b, nil
		case "^":
			if b >= 0 {
				p := math.Pow(float64(a), float64(b))
				if p <= math.MaxInt64 && p >= math.MinInt64 {
					return int64(p), nil
				}
				return p, nil
			}
			return math.Pow(float64(a), float64(b)), nil
		}
		return nil, binaryError(span, op, left, right)
	}
	a, b := l.float(), r.float()
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, errors.NewAt("OP-0003", span, nil)
		}
		return a / b, nil
	case "//":
		if b == 0 {
			return nil, errors.NewAt("OP-0003", span, nil)
		}
		return int64(math.Floor(a / b)), nil
	case "%":
		if b == 0 {
			return nil, errors.NewAt("OP-0003", span, nil)
		}
		return math.Mod(a, b), nil
	case "^":
		return math.Pow(a, b), nil
	}
	return nil, binaryError(span, op, left, right)
}

// equal compares two values. Numbers compare by value across integer and
// float, and Empty equals null, empty strings and empty collections.
func (tc *TemplateContext) equal(left, right any) bool {
	if left == Empty || right == Empty {
		other := right
		if right == Empty {
			other = left
		}
		return tc.isEmptyish(other)
	}
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if l, ok := toNumber(left); ok {
		if r, ok := toNumber(right); ok {
			if !l.isFloat && !r.isFloat {
				return l.i == r.i
			}
			return l.float() == r.float()
		}
		return false
	}
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case time.Time:
		r, ok := right.(time.Time)
		return ok && l.Equal(r)
	case *ScriptObject, *ScriptArray, *Range:
		return left == right
	}
	lt, rt := reflect.TypeOf(left), reflect.TypeOf(right)
	if lt != rt {
		return false
	}
	if lt.Comparable() {
		return left == right
	}
	switch lv := reflect.ValueOf(left); lv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Pointer:
		return lv.UnsafePointer() == reflect.ValueOf(right).UnsafePointer()
	}
	return false
}

func (tc *TemplateContext) isEmptyish(v any) bool {
	switch v := v.(type) {
	case nil, emptyValue:
		return true
	case string:
		return v == ""
	case *ScriptObject:
		return v.Len() == 0
	case *ScriptArray:
		return v.Len() == 0
	}
	if la, ok := tc.listAccessor(v); ok {
		return la.Length(tc, lexer.Span{}, v) == 0
	}
	return false
}

func (tc *TemplateContext) compare(span lexer.Span, op string, left, right any) (any, error) {
	var c int
	l, lok := toNumber(left)
	r, rok := toNumber(right)
	switch {
	case lok && rok:
		if !l.isFloat && !r.isFloat {
			c = cmp.Compare(l.i, r.i)
		} else {
			c = cmp.Compare(l.float(), r.float())
		}
	default:
		switch lv := left.(type) {
		case string:
			rv, ok := right.(string)
			if !ok {
				return nil, binaryError(span, op, left, right)
			}
			c = strings.Compare(lv, rv)
		case time.Time:
			rv, ok := right.(time.Time)
			if !ok {
				return nil, binaryError(span, op, left, right)
			}
			c = lv.Compare(rv)
		default:
			if IsEmpty(left) || IsEmpty(right) {
				return false, nil
			}
			return nil, binaryError(span, op, left, right)
		}
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	}
	return c >= 0, nil
}

// contains implements the Liquid contains operator on strings, lists and
// objects.
func (tc *TemplateContext) contains(span lexer.Span, left, right any) (any, error) {
	switch l := left.(type) {
	case nil, emptyValue:
		return false, nil
	case string:
		return strings.Contains(l, tc.ToString(right)), nil
	case *ScriptObject:
		return l.Contains(tc.ToString(right)), nil
	}
	if la, ok := tc.listAccessor(left); ok {
		for i := range la.Length(tc, span, left) {
			if tc.equal(la.GetValue(tc, span, left, i), right) {
				return true, nil
			}
		}
		return false, nil
	}
	acc := tc.objectAccessor(left)
	if _, ok := acc.(primitiveAccessor); !ok {
		return acc.HasMember(tc, span, left, tc.ToString(right)), nil
	}
	return nil, binaryError(span, "contains", left, right)
}

// unary applies a prefix operator.
func (tc *TemplateContext) unary(span lexer.Span, op string, v any) (any, error) {
	switch op {
	case "!", "not":
		return !tc.ToBool(v), nil
	case "-", "+":
		n, ok := toNumber(v)
		if !ok {
			return nil, errors.NewAt("OP-0002", span, map[string]any{"Operator": op, "Type": TypeName(v)})
		}
		if op == "+" {
			if n.isFloat {
				return n.f, nil
			}
			return n.i, nil
		}
		if n.isFloat {
			return -n.f, nil
		}
		return -n.i, nil
	}
	return nil, errors.NewAt("OP-0002", span, map[string]any{"Operator": op, "Type": TypeName(v)})
}
