package evaluator

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// ObjectAccessor reads and writes the named members of one shape of value.
type ObjectAccessor interface {
	MemberCount(tc *TemplateContext, span lexer.Span, target any) int
	Members(tc *TemplateContext, span lexer.Span, target any) []string
	HasMember(tc *TemplateContext, span lexer.Span, target any, name string) bool
	TryGetValue(tc *TemplateContext, span lexer.Span, target any, name string) (any, bool)
	TrySetValue(tc *TemplateContext, span lexer.Span, target any, name string, value any) error
}

// ListAccessor reads and writes items by position. Indexes passed to it are
// already normalized to be non-negative.
type ListAccessor interface {
	Length(tc *TemplateContext, span lexer.Span, target any) int
	GetValue(tc *TemplateContext, span lexer.Span, target any, index int) any
	SetValue(tc *TemplateContext, span lexer.Span, target any, index int, value any) error
}

// accessors holds the accessor of each host type. Entries are never
// replaced once stored.
var accessors sync.Map // reflect.Type -> ObjectAccessor

// RegisterAccessor installs acc for values of type t. An accessor that also
// implements ListAccessor serves indexing. It reports false when t already
// has an accessor.
func RegisterAccessor(t reflect.Type, acc ObjectAccessor) bool {
	_, loaded := accessors.LoadOrStore(t, acc)
	return !loaded
}

func typeAccessor(t reflect.Type) ObjectAccessor {
	if acc, ok := accessors.Load(t); ok {
		return acc.(ObjectAccessor)
	}
	var acc ObjectAccessor = primitiveAccessor{}
	switch t.Kind() {
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			acc = &genericDictionaryAccessor{typ: t}
		}
	case reflect.Slice, reflect.Array:
		acc = &listAccessor{typ: t}
	case reflect.Struct:
		acc = newTypedObjectAccessor(t)
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			acc = newTypedObjectAccessor(t)
		}
	}
	actual, _ := accessors.LoadOrStore(t, acc)
	return actual.(ObjectAccessor)
}

// objectAccessor selects the accessor for a value.
func (tc *TemplateContext) objectAccessor(v any) ObjectAccessor {
	switch v.(type) {
	case nil, emptyValue:
		return nullAccessor{}
	case *ScriptObject:
		return scriptObjectAccessor{}
	case *ScriptArray:
		return arrayAccessor{}
	case map[string]any:
		return dictionaryAccessor{}
	case string, bool, int64, int, float64, *Range, time.Time, Function:
		return primitiveAccessor{}
	}
	return typeAccessor(reflect.TypeOf(v))
}

// listAccessor selects the list accessor for a value, if it has one.
func (tc *TemplateContext) listAccessor(v any) (ListAccessor, bool) {
	switch v.(type) {
	case nil, emptyValue, *ScriptObject, map[string]any, bool, int64, int, float64, time.Time, Function:
		return nil, false
	case *ScriptArray:
		return arrayAccessor{}, true
	case *Range:
		return rangeAccessor{}, true
	case string:
		return primitiveAccessor{}, true
	}
	la, ok := typeAccessor(reflect.TypeOf(v)).(ListAccessor)
	return la, ok
}

// listMember answers the size, first and last members shared by lists.
func listMember(tc *TemplateContext, span lexer.Span, la ListAccessor, target any, name string) (any, bool) {
	n := la.Length(tc, span, target)
	switch name {
	case "size":
		return int64(n), true
	case "first":
		if n == 0 {
			return nil, true
		}
		return la.GetValue(tc, span, target, 0), true
	case "last":
		if n == 0 {
			return nil, true
		}
		return la.GetValue(tc, span, target, n-1), true
	}
	return nil, false
}

var listMembers = []string{"size", "first", "last"}

// ============================================================================
// null
// ============================================================================

type nullAccessor struct{}

func (nullAccessor) MemberCount(*TemplateContext, lexer.Span, any) int { return 0 }
func (nullAccessor) Members(*TemplateContext, lexer.Span, any) []string {
	return nil
}
func (nullAccessor) HasMember(*TemplateContext, lexer.Span, any, string) bool { return false }
func (nullAccessor) TryGetValue(*TemplateContext, lexer.Span, any, string) (any, bool) {
	return nil, false
}
func (nullAccessor) TrySetValue(_ *TemplateContext, span lexer.Span, _ any, name string, _ any) error {
	return errors.NewAt("UNDEF-0003", span, map[string]any{"Member": name})
}

// ============================================================================
// primitive: strings, numbers, booleans, ranges, dates and functions
// ============================================================================

type primitiveAccessor struct{}

func (primitiveAccessor) MemberCount(*TemplateContext, lexer.Span, any) int { return 0 }
func (primitiveAccessor) Members(_ *TemplateContext, _ lexer.Span, target any) []string {
	switch target.(type) {
	case string, *Range:
		return []string{"size"}
	}
	return nil
}
func (a primitiveAccessor) HasMember(tc *TemplateContext, span lexer.Span, target any, name string) bool {
	_, ok := a.TryGetValue(tc, span, target, name)
	return ok
}
func (primitiveAccessor) TryGetValue(_ *TemplateContext, _ lexer.Span, target any, name string) (any, bool) {
	if name != "size" {
		return nil, false
	}
	switch v := target.(type) {
	case string:
		return int64(len([]rune(v))), true
	case *Range:
		return int64(v.Len()), true
	}
	return nil, false
}
func (primitiveAccessor) TrySetValue(_ *TemplateContext, span lexer.Span, target any, name string, _ any) error {
	return errors.NewAt("RO-0003", span, map[string]any{"Member": name, "Type": TypeName(target)})
}

// Strings index by character.
func (primitiveAccessor) Length(_ *TemplateContext, _ lexer.Span, target any) int {
	s, _ := target.(string)
	return len([]rune(s))
}
func (primitiveAccessor) GetValue(_ *TemplateContext, _ lexer.Span, target any, index int) any {
	r := []rune(target.(string))
	if index >= len(r) {
		return nil
	}
	return string(r[index])
}
func (primitiveAccessor) SetValue(_ *TemplateContext, span lexer.Span, target any, _ int, _ any) error {
	return errors.NewAt("RO-0002", span, map[string]any{"Type": TypeName(target)})
}

type rangeAccessor struct{}

func (rangeAccessor) Length(_ *TemplateContext, _ lexer.Span, target any) int {
	return target.(*Range).Len()
}
func (rangeAccessor) GetValue(_ *TemplateContext, _ lexer.Span, target any, index int) any {
	r := target.(*Range)
	if index >= r.Len() {
		return nil
	}
	return r.At(index)
}
func (rangeAccessor) SetValue(_ *TemplateContext, span lexer.Span, _ any, _ int, _ any) error {
	return errors.NewAt("RO-0002", span, map[string]any{"Type": "range"})
}

// ============================================================================
// ScriptObject
// ============================================================================

type scriptObjectAccessor struct{}

func (scriptObjectAccessor) MemberCount(_ *TemplateContext, _ lexer.Span, target any) int {
	return target.(*ScriptObject).Len()
}
func (scriptObjectAccessor) Members(_ *TemplateContext, _ lexer.Span, target any) []string {
	return target.(*ScriptObject).Keys()
}
func (scriptObjectAccessor) HasMember(_ *TemplateContext, _ lexer.Span, target any, name string) bool {
	return target.(*ScriptObject).Contains(name)
}
func (scriptObjectAccessor) TryGetValue(_ *TemplateContext, _ lexer.Span, target any, name string) (any, bool) {
	return target.(*ScriptObject).Get(name)
}
func (scriptObjectAccessor) TrySetValue(_ *TemplateContext, span lexer.Span, target any, name string, value any) error {
	if err := target.(*ScriptObject).Set(name, value); err != nil {
		return withSpan(err, span)
	}
	return nil
}

// ============================================================================
// ScriptArray
// ============================================================================

type arrayAccessor struct{}

func (arrayAccessor) MemberCount(*TemplateContext, lexer.Span, any) int { return 0 }
func (arrayAccessor) Members(*TemplateContext, lexer.Span, any) []string {
	return listMembers
}
func (a arrayAccessor) HasMember(tc *TemplateContext, span lexer.Span, target any, name string) bool {
	_, ok := listMember(tc, span, a, target, name)
	return ok
}
func (a arrayAccessor) TryGetValue(tc *TemplateContext, span lexer.Span, target any, name string) (any, bool) {
	return listMember(tc, span, a, target, name)
}
func (arrayAccessor) TrySetValue(_ *TemplateContext, span lexer.Span, _ any, name string, _ any) error {
	return errors.NewAt("RO-0003", span, map[string]any{"Member": name, "Type": "array"})
}
func (arrayAccessor) Length(_ *TemplateContext, _ lexer.Span, target any) int {
	return target.(*ScriptArray).Len()
}
func (arrayAccessor) GetValue(_ *TemplateContext, _ lexer.Span, target any, index int) any {
	return target.(*ScriptArray).Get(index)
}
func (arrayAccessor) SetValue(_ *TemplateContext, span lexer.Span, target any, index int, value any) error {
	if err := target.(*ScriptArray).Set(index, value); err != nil {
		return withSpan(err, span)
	}
	return nil
}

// ============================================================================
// map[string]any
// ============================================================================

type dictionaryAccessor struct{}

func (dictionaryAccessor) MemberCount(_ *TemplateContext, _ lexer.Span, target any) int {
	return len(target.(map[string]any))
}
func (dictionaryAccessor) Members(_ *TemplateContext, _ lexer.Span, target any) []string {
	m := target.(map[string]any)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func (dictionaryAccessor) HasMember(_ *TemplateContext, _ lexer.Span, target any, name string) bool {
	_, ok := target.(map[string]any)[name]
	return ok
}
func (dictionaryAccessor) TryGetValue(_ *TemplateContext, _ lexer.Span, target any, name string) (any, bool) {
	v, ok := target.(map[string]any)[name]
	return v, ok
}
func (dictionaryAccessor) TrySetValue(_ *TemplateContext, _ lexer.Span, target any, name string, value any) error {
	target.(map[string]any)[name] = value
	return nil
}

// withSpan locates an error raised without position information.
func withSpan(err error, span lexer.Span) error {
	if se, ok := err.(*errors.ScriptError); ok && se.Span.IsZero() {
		return se.WithSpan(span)
	}
	return err
}
