package evaluator

import (
	"reflect"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// ============================================================================
// maps with string keys
// ============================================================================

type genericDictionaryAccessor struct {
	typ reflect.Type
}

func (a *genericDictionaryAccessor) key(name string) reflect.Value {
	return reflect.ValueOf(name).Convert(a.typ.Key())
}

func (a *genericDictionaryAccessor) MemberCount(_ *TemplateContext, _ lexer.Span, target any) int {
	return reflect.ValueOf(target).Len()
}

func (a *genericDictionaryAccessor) Members(_ *TemplateContext, _ lexer.Span, target any) []string {
	return sortedKeys(reflect.ValueOf(target))
}

func (a *genericDictionaryAccessor) HasMember(tc *TemplateContext, span lexer.Span, target any, name string) bool {
	_, ok := a.TryGetValue(tc, span, target, name)
	return ok
}

func (a *genericDictionaryAccessor) TryGetValue(_ *TemplateContext, _ lexer.Span, target any, name string) (any, bool) {
	v := reflect.ValueOf(target).MapIndex(a.key(name))
	if !v.IsValid() {
		return nil, false
	}
	return normalize(v.Interface()), true
}

func (a *genericDictionaryAccessor) TrySetValue(tc *TemplateContext, span lexer.Span, target any, name string, value any) error {
	rv := reflect.ValueOf(target)
	if rv.IsNil() {
		return errors.NewAt("RO-0003", span, map[string]any{"Member": name, "Type": a.typ.String()})
	}
	ev, err := tc.convertTo(span, value, a.typ.Elem())
	if err != nil {
		return err
	}
	rv.SetMapIndex(a.key(name), ev)
	return nil
}

// ============================================================================
// slices and arrays
// ============================================================================

type listAccessor struct {
	typ reflect.Type
}

func (a *listAccessor) MemberCount(*TemplateContext, lexer.Span, any) int { return 0 }

func (a *listAccessor) Members(*TemplateContext, lexer.Span, any) []string { return listMembers }

func (a *listAccessor) HasMember(tc *TemplateContext, span lexer.Span, target any, name string) bool {
	_, ok := listMember(tc, span, a, target, name)
	return ok
}

func (a *listAccessor) TryGetValue(tc *TemplateContext, span lexer.Span, target any, name string) (any, bool) {
	return listMember(tc, span, a, target, name)
}

func (a *listAccessor) TrySetValue(_ *TemplateContext, span lexer.Span, _ any, name string, _ any) error {
	return errors.NewAt("RO-0003", span, map[string]any{"Member": name, "Type": a.typ.String()})
}

func (a *listAccessor) Length(_ *TemplateContext, _ lexer.Span, target any) int {
	return reflect.ValueOf(target).Len()
}

func (a *listAccessor) GetValue(_ *TemplateContext, _ lexer.Span, target any, index int) any {
	rv := reflect.ValueOf(target)
	if index >= rv.Len() {
		return nil
	}
	return normalize(rv.Index(index).Interface())
}

// SetValue writes into an existing slice element. Host slices cannot grow
// because the caller's slice header would not see the new length.
func (a *listAccessor) SetValue(tc *TemplateContext, span lexer.Span, target any, index int, value any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Slice {
		return errors.NewAt("RO-0002", span, map[string]any{"Type": a.typ.String()})
	}
	if index >= rv.Len() {
		return errors.NewAt("TYPE-0006", span, map[string]any{"Index": index, "Type": a.typ.String()})
	}
	ev, err := tc.convertTo(span, value, a.typ.Elem())
	if err != nil {
		return err
	}
	rv.Index(index).Set(ev)
	return nil
}

// ============================================================================
// structs
// ============================================================================

// typedMember is an exported field or method of a struct type.
type typedMember struct {
	name   string // Go name
	field  []int  // field index path, nil for methods
	method int
}

// typedObjectAccessor exposes the exported fields and methods of a struct
// or struct pointer type. Script names are derived per context by the
// member renamer, so the accessor itself only records Go names.
type typedObjectAccessor struct {
	typ     reflect.Type
	members []typedMember
}

func newTypedObjectAccessor(t reflect.Type) *typedObjectAccessor {
	a := &typedObjectAccessor{typ: t}
	st := t
	if t.Kind() == reflect.Pointer {
		st = t.Elem()
	}
	for _, f := range reflect.VisibleFields(st) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		a.members = append(a.members, typedMember{name: f.Name, field: f.Index})
	}
	for i := range t.NumMethod() {
		m := t.Method(i)
		if m.IsExported() {
			a.members = append(a.members, typedMember{name: m.Name, method: i})
		}
	}
	return a
}

// names returns the script-visible members of the accessor for tc.
func (a *typedObjectAccessor) names(tc *TemplateContext) map[string]int {
	if idx, ok := tc.renamed[a]; ok {
		return idx
	}
	idx := make(map[string]int, len(a.members))
	for i, m := range a.members {
		if tc.MemberFilter != nil && !tc.MemberFilter(m.name) {
			continue
		}
		name := tc.renameMember(m.name)
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	if tc.renamed == nil {
		tc.renamed = map[*typedObjectAccessor]map[string]int{}
	}
	tc.renamed[a] = idx
	return idx
}

func (a *typedObjectAccessor) MemberCount(tc *TemplateContext, _ lexer.Span, _ any) int {
	return len(a.names(tc))
}

func (a *typedObjectAccessor) Members(tc *TemplateContext, _ lexer.Span, _ any) []string {
	idx := a.names(tc)
	out := make([]string, 0, len(idx))
	for i, m := range a.members {
		name := tc.renameMember(m.name)
		if j, ok := idx[name]; ok && j == i {
			out = append(out, name)
		}
	}
	return out
}

func (a *typedObjectAccessor) HasMember(tc *TemplateContext, _ lexer.Span, _ any, name string) bool {
	_, ok := a.names(tc)[name]
	return ok
}

func (a *typedObjectAccessor) TryGetValue(tc *TemplateContext, _ lexer.Span, target any, name string) (any, bool) {
	i, ok := a.names(tc)[name]
	if !ok {
		return nil, false
	}
	m := a.members[i]
	rv := reflect.ValueOf(target)
	if m.field == nil {
		fn := rv.Method(m.method).Interface()
		return wrapNamed(fn, name), true
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	fv, err := rv.FieldByIndexErr(m.field)
	if err != nil {
		return nil, true
	}
	return normalize(fv.Interface()), true
}

func (a *typedObjectAccessor) TrySetValue(tc *TemplateContext, span lexer.Span, target any, name string, value any) error {
	readOnly := errors.NewAt("RO-0003", span, map[string]any{"Member": name, "Type": a.typ.String()})
	i, ok := a.names(tc)[name]
	if !ok || a.members[i].field == nil {
		return readOnly
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return readOnly
	}
	fv, err := rv.Elem().FieldByIndexErr(a.members[i].field)
	if err != nil || !fv.CanSet() {
		return readOnly
	}
	ev, err := tc.convertTo(span, value, fv.Type())
	if err != nil {
		return err
	}
	fv.Set(ev)
	return nil
}
