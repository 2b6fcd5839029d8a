package evaluator

import (
	"slices"

	"github.com/sambeau/textscript/pkg/textscript/errors"
)

// emptyValue is the type of Empty.
type emptyValue struct{}

func (emptyValue) String() string { return "" }

// Empty is the shared empty value. It is falsy, prints as nothing, equals
// null, empty strings and empty collections, and any member of it is Empty.
var Empty any = emptyValue{}

// IsEmpty reports whether v is null or Empty.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(emptyValue)
	return ok
}

// ============================================================================
// ScriptObject
// ============================================================================

type member struct {
	value    any
	readOnly bool
}

// ScriptObject is an insertion-ordered set of named values. Members may be
// individually read-only; a read-only object rejects every write.
type ScriptObject struct {
	keys     []string
	members  map[string]*member
	readOnly bool
}

// NewScriptObject creates an empty object.
func NewScriptObject() *ScriptObject {
	return &ScriptObject{members: map[string]*member{}}
}

// ObjectOf creates an object from alternating name, value pairs.
func ObjectOf(pairs ...any) *ScriptObject {
	o := NewScriptObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		o.SetValue(name, pairs[i+1], false)
	}
	return o
}

// Len returns the number of members.
func (o *ScriptObject) Len() int { return len(o.keys) }

// Keys returns member names in insertion order.
func (o *ScriptObject) Keys() []string { return slices.Clone(o.keys) }

// Contains reports whether the object has a member called name.
func (o *ScriptObject) Contains(name string) bool {
	_, ok := o.members[name]
	return ok
}

// Get returns the value of a member.
func (o *ScriptObject) Get(name string) (any, bool) {
	m, ok := o.members[name]
	if !ok {
		return nil, false
	}
	return m.value, true
}

// Set assigns a member, failing when the object or the member is read-only.
func (o *ScriptObject) Set(name string, value any) error {
	if o.readOnly {
		return errors.New("RO-0002", map[string]any{"Type": "object"})
	}
	if m, ok := o.members[name]; ok {
		if m.readOnly {
			return errors.New("RO-0001", map[string]any{"Member": name})
		}
		m.value = value
		return nil
	}
	o.add(name, value, false)
	return nil
}

// SetValue assigns a member and its read-only flag, ignoring any existing
// protection. It is meant for hosts populating an object.
func (o *ScriptObject) SetValue(name string, value any, readOnly bool) {
	if m, ok := o.members[name]; ok {
		m.value = value
		m.readOnly = readOnly
		return
	}
	o.add(name, value, readOnly)
}

func (o *ScriptObject) add(name string, value any, readOnly bool) {
	if o.members == nil {
		o.members = map[string]*member{}
	}
	o.keys = append(o.keys, name)
	o.members[name] = &member{value: value, readOnly: readOnly}
}

// Remove deletes a member and reports whether it existed.
func (o *ScriptObject) Remove(name string) bool {
	if _, ok := o.members[name]; !ok {
		return false
	}
	delete(o.members, name)
	o.keys = slices.DeleteFunc(o.keys, func(k string) bool { return k == name })
	return true
}

// IsReadOnly reports whether a member is read-only.
func (o *ScriptObject) IsReadOnly(name string) bool {
	if o.readOnly {
		return true
	}
	m, ok := o.members[name]
	return ok && m.readOnly
}

// SetReadOnly changes the read-only flag of an existing member.
func (o *ScriptObject) SetReadOnly(name string, readOnly bool) {
	if m, ok := o.members[name]; ok {
		m.readOnly = readOnly
	}
}

// Freeze makes the whole object read-only.
func (o *ScriptObject) Freeze() { o.readOnly = true }

// Frozen reports whether the object is read-only.
func (o *ScriptObject) Frozen() bool { return o.readOnly }

// Clone copies the object. Nested objects and arrays are copied when deep
// is set. The copy is writable.
func (o *ScriptObject) Clone(deep bool) *ScriptObject {
	c := &ScriptObject{keys: slices.Clone(o.keys), members: make(map[string]*member, len(o.members))}
	for k, m := range o.members {
		v := m.value
		if deep {
			v = cloneValue(v)
		}
		c.members[k] = &member{value: v, readOnly: m.readOnly}
	}
	return c
}

// All yields members in insertion order.
func (o *ScriptObject) All(yield func(string, any) bool) {
	for _, k := range o.keys {
		if !yield(k, o.members[k].value) {
			return
		}
	}
}

// ============================================================================
// ScriptArray
// ============================================================================

// ScriptArray is a growable list. Setting past the end extends the array
// with nulls; it never shrinks on assignment.
type ScriptArray struct {
	items    []any
	readOnly bool
}

// NewScriptArray creates an array holding items.
func NewScriptArray(items ...any) *ScriptArray {
	return &ScriptArray{items: items}
}

// Len returns the number of items.
func (a *ScriptArray) Len() int { return len(a.items) }

// Items returns the backing slice.
func (a *ScriptArray) Items() []any { return a.items }

// Get returns the item at i, or nil when i is out of range. Negative
// indexes count from the end.
func (a *ScriptArray) Get(i int) any {
	if i < 0 {
		i += len(a.items)
	}
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return a.items[i]
}

// Set stores value at i, growing the array when needed. Negative indexes
// count from the end and must land inside the array.
func (a *ScriptArray) Set(i int, value any) error {
	if a.readOnly {
		return errors.New("RO-0002", map[string]any{"Type": "array"})
	}
	if i < 0 {
		i += len(a.items)
		if i < 0 {
			return errors.New("TYPE-0003", map[string]any{"Type": "a negative index"})
		}
	}
	for len(a.items) <= i {
		a.items = append(a.items, nil)
	}
	a.items[i] = value
	return nil
}

// Add appends value.
func (a *ScriptArray) Add(value any) error {
	if a.readOnly {
		return errors.New("RO-0002", map[string]any{"Type": "array"})
	}
	a.items = append(a.items, value)
	return nil
}

// Freeze makes the array read-only.
func (a *ScriptArray) Freeze() { a.readOnly = true }

// Frozen reports whether the array is read-only.
func (a *ScriptArray) Frozen() bool { return a.readOnly }

// Clone copies the array, recursively when deep is set.
func (a *ScriptArray) Clone(deep bool) *ScriptArray {
	c := &ScriptArray{items: slices.Clone(a.items)}
	if deep {
		for i, v := range c.items {
			c.items[i] = cloneValue(v)
		}
	}
	return c
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case *ScriptObject:
		return v.Clone(true)
	case *ScriptArray:
		return v.Clone(true)
	}
	return v
}

// ============================================================================
// Range
// ============================================================================

// Range is a lazy sequence of integers from From towards To. Ranges with
// From greater than To count down.
type Range struct {
	From, To  int64
	Exclusive bool
}

// Len returns the number of values in the range.
func (r *Range) Len() int {
	n := r.To - r.From
	if n < 0 {
		n = -n
	}
	if !r.Exclusive {
		n++
	}
	return int(n)
}

// At returns the i-th value.
func (r *Range) At(i int) int64 {
	if r.From > r.To {
		return r.From - int64(i)
	}
	return r.From + int64(i)
}
