package evaluator

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/goodsign/monday"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// maxPrintDepth bounds the nesting printed for self-referencing values.
const maxPrintDepth = 16

// Kind is the static type of a function parameter.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindObject
	KindFunction
	KindExpression
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindList:
		return "array"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	case KindExpression:
		return "expression"
	case KindTime:
		return "date"
	}
	return "any"
}

// TypeName returns the script name of a value's type for messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil, emptyValue:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "float"
	case *ScriptArray:
		return "array"
	case *ScriptObject:
		return "object"
	case *Range:
		return "range"
	case Function:
		return "function"
	case time.Time:
		return "date"
	}
	t := reflect.TypeOf(v)
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map:
		return "object"
	}
	return t.String()
}

func conversionError(span lexer.Span, v any, to string) *errors.ScriptError {
	return errors.NewAt("TYPE-0001", span, map[string]any{"From": TypeName(v), "To": to})
}

// ToBool converts a value to a boolean. Only null, Empty and false are
// falsy.
func (tc *TemplateContext) ToBool(v any) bool {
	switch v := v.(type) {
	case nil, emptyValue:
		return false
	case bool:
		return v
	}
	return true
}

// ToString converts a value to its output text.
func (tc *TemplateContext) ToString(v any) string {
	var sb strings.Builder
	tc.writeString(&sb, v, false, 0)
	return sb.String()
}

func (tc *TemplateContext) writeString(sb *strings.Builder, v any, nested bool, depth int) {
	if depth > maxPrintDepth {
		sb.WriteString("...")
		return
	}
	switch v := v.(type) {
	case nil, emptyValue:
		if nested {
			sb.WriteString("null")
		}
		return
	case string:
		if nested {
			sb.WriteString(strconv.Quote(v))
		} else {
			sb.WriteString(v)
		}
		return
	case bool:
		sb.WriteString(strconv.FormatBool(v))
		return
	case int64:
		sb.WriteString(strconv.FormatInt(v, 10))
		return
	case int:
		sb.WriteString(strconv.Itoa(v))
		return
	case float64:
		sb.WriteString(tc.formatFloat(v))
		return
	case float32:
		sb.WriteString(tc.formatFloat(float64(v)))
		return
	case time.Time:
		layout := tc.DateFormat
		if layout == "" {
			layout = DefaultDateFormat
		}
		sb.WriteString(monday.Format(v, layout, mondayLocale(tc.Culture)))
		return
	case *ScriptArray:
		tc.writeList(sb, v.Len(), v.Get, depth)
		return
	case *Range:
		tc.writeList(sb, v.Len(), func(i int) any { return v.At(i) }, depth)
		return
	case *ScriptObject:
		sb.WriteByte('{')
		i := 0
		for k, mv := range v.All {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			tc.writeString(sb, mv, true, depth+1)
			i++
		}
		sb.WriteByte('}')
		return
	case Function:
		return
	case fmt.Stringer:
		sb.WriteString(v.String())
		return
	case error:
		sb.WriteString(v.Error())
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		sb.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sb.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.String:
		tc.writeString(sb, rv.String(), nested, depth)
	case reflect.Slice, reflect.Array:
		tc.writeList(sb, rv.Len(), func(i int) any { return rv.Index(i).Interface() }, depth)
	case reflect.Map, reflect.Struct, reflect.Pointer:
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			if nested {
				sb.WriteString("null")
			}
			return
		}
		acc := tc.objectAccessor(v)
		if _, ok := acc.(primitiveAccessor); ok {
			fmt.Fprint(sb, v)
			return
		}
		sb.WriteByte('{')
		for i, name := range acc.Members(tc, lexer.Span{}, v) {
			if i > 0 {
				sb.WriteString(", ")
			}
			mv, _ := acc.TryGetValue(tc, lexer.Span{}, v, name)
			sb.WriteString(name)
			sb.WriteString(": ")
			tc.writeString(sb, mv, true, depth+1)
		}
		sb.WriteByte('}')
	default:
		fmt.Fprint(sb, v)
	}
}

func (tc *TemplateContext) writeList(sb *strings.Builder, n int, at func(int) any, depth int) {
	sb.WriteByte('[')
	for i := range n {
		if i > 0 {
			sb.WriteString(", ")
		}
		tc.writeString(sb, at(i), true, depth+1)
	}
	sb.WriteByte(']')
}

// formatFloat prints f with the culture's decimal separator.
func (tc *TemplateContext) formatFloat(f float64) string {
	format := byte('f')
	if a := math.Abs(f); a >= 1e21 || (a != 0 && a < 1e-7) {
		format = 'g'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if sep := decimalSeparator(tc.Culture); sep != "." {
		s = strings.Replace(s, ".", sep, 1)
	}
	return s
}

// parseFloat parses a number written with either '.' or the culture's
// decimal separator.
func (tc *TemplateContext) parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if sep := decimalSeparator(tc.Culture); sep != "." {
		s = strings.Replace(s, sep, ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

// ToInt converts a value to an integer. Floats round half to even.
func (tc *TemplateContext) ToInt(span lexer.Span, v any) (int64, error) {
	switch v := v.(type) {
	case nil, emptyValue:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(math.RoundToEven(v)), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, nil
		}
		if f, err := tc.parseFloat(v); err == nil {
			return int64(math.RoundToEven(f)), nil
		}
		return 0, conversionError(span, v, "integer")
	}
	if n, ok := toNumber(v); ok {
		if n.isFloat {
			return int64(math.RoundToEven(n.f)), nil
		}
		return n.i, nil
	}
	return 0, conversionError(span, v, "integer")
}

// ToFloat converts a value to a float.
func (tc *TemplateContext) ToFloat(span lexer.Span, v any) (float64, error) {
	switch v := v.(type) {
	case nil, emptyValue:
		return 0, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := tc.parseFloat(v)
		if err != nil {
			return 0, conversionError(span, v, "float")
		}
		return f, nil
	}
	if n, ok := toNumber(v); ok {
		return n.float(), nil
	}
	return 0, conversionError(span, v, "float")
}

// ToTime converts a value to a time. Strings are parsed in any common
// layout and integers are Unix seconds.
func (tc *TemplateContext) ToTime(span lexer.Span, v any) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := dateparse.ParseIn(strings.TrimSpace(v), time.Local)
		if err != nil {
			return time.Time{}, conversionError(span, v, "date").Wrap(err)
		}
		return t, nil
	}
	if n, ok := toNumber(v); ok && !n.isFloat {
		return time.Unix(n.i, 0), nil
	}
	return time.Time{}, conversionError(span, v, "date")
}

// ToList converts a value to a slice of items. Null converts to an empty
// list.
func (tc *TemplateContext) ToList(span lexer.Span, v any) ([]any, error) {
	switch v := v.(type) {
	case nil, emptyValue:
		return nil, nil
	case *ScriptArray:
		return v.Items(), nil
	case []any:
		return v, nil
	case *Range:
		items := make([]any, v.Len())
		for i := range items {
			items[i] = v.At(i)
		}
		return items, nil
	case string:
		return nil, conversionError(span, v, "array")
	}
	if la, ok := tc.listAccessor(v); ok {
		n := la.Length(tc, span, v)
		items := make([]any, n)
		for i := range n {
			items[i] = la.GetValue(tc, span, v, i)
		}
		return items, nil
	}
	return nil, conversionError(span, v, "array")
}

// ToObject converts a value to a parameter kind.
func (tc *TemplateContext) ToObject(span lexer.Span, v any, kind Kind) (any, error) {
	switch kind {
	case KindString:
		return tc.ToString(v), nil
	case KindInt:
		return tc.ToInt(span, v)
	case KindFloat:
		return tc.ToFloat(span, v)
	case KindBool:
		return tc.ToBool(v), nil
	case KindList:
		return tc.ToList(span, v)
	case KindTime:
		return tc.ToTime(span, v)
	case KindObject:
		if IsEmpty(v) {
			return nil, nil
		}
		if _, ok := tc.objectAccessor(v).(primitiveAccessor); ok {
			return nil, conversionError(span, v, "object")
		}
		return v, nil
	case KindFunction:
		if IsEmpty(v) {
			return nil, nil
		}
		if _, ok := v.(Function); !ok {
			return nil, conversionError(span, v, "function")
		}
		return v, nil
	case KindExpression:
		if l, ok := v.(*Lambda); ok {
			return l, nil
		}
		return &Lambda{value: v, constant: true}, nil
	}
	if v == Empty {
		return nil, nil
	}
	return v, nil
}

// convertTo converts a value to a Go type for reflective calls and field
// assignment.
func (tc *TemplateContext) convertTo(span lexer.Span, v any, t reflect.Type) (reflect.Value, error) {
	if IsEmpty(v) {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	switch t {
	case timeType:
		tv, err := tc.ToTime(span, v)
		return reflect.ValueOf(tv), err
	}
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(tc.ToString(v)).Convert(t), nil
	case reflect.Bool:
		return reflect.ValueOf(tc.ToBool(v)).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := tc.ToInt(span, v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(i).Convert(t), nil
	case reflect.Float32, reflect.Float64:
		f, err := tc.ToFloat(span, v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(t), nil
	case reflect.Slice:
		items, err := tc.ToList(span, v)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			ev, err := tc.convertTo(span, item, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			break
		}
		acc := tc.objectAccessor(v)
		if _, ok := acc.(primitiveAccessor); ok {
			break
		}
		out := reflect.MakeMap(t)
		for _, name := range acc.Members(tc, span, v) {
			mv, _ := acc.TryGetValue(tc, span, v, name)
			ev, err := tc.convertTo(span, mv, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(reflect.ValueOf(name).Convert(t.Key()), ev)
		}
		return out, nil
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, conversionError(span, v, t.String())
}

var timeType = reflect.TypeFor[time.Time]()

// normalize maps host results onto the script's value types.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return NewScriptArray(items...)
	case []any:
		return NewScriptArray(v...)
	}
	return v
}

// sortedKeys returns the keys of a string-keyed map in order.
func sortedKeys(rv reflect.Value) []string {
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}
