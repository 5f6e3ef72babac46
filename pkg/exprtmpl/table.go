package exprtmpl

import (
	"slices"
	"sort"
)

// Table is a string keyed collection of values.
type Table interface {
	// Keys enumerates the keys of the table.
	Keys() []string
	// Get returns the value stored under key. Missing keys are not an
	// error.
	Get(key string) (Value, bool)
}

// Sequence is an integer indexed, length bearing collection of values.
type Sequence interface {
	Len() int
	// Index returns the element at i, or false when i is out of range.
	Index(i int) (Value, bool)
}

// MapTable is an in-memory table that enumerates keys in insertion order.
type MapTable struct {
	keys   []string
	values map[string]Value
}

// NewMapTable returns an empty table with room for size keys.
func NewMapTable(size int) *MapTable {
	return &MapTable{
		keys:   make([]string, 0, size),
		values: make(map[string]Value, size),
	}
}

// MapTableOf builds a table from m with keys in sorted order.
func MapTableOf(m map[string]Value) *MapTable {
	t := NewMapTable(len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.Set(k, m[k])
	}
	return t
}

// Set stores v under key. A new key is appended to the enumeration order;
// an existing key keeps its position. Tables handed to a render must not
// be modified while it runs.
func (t *MapTable) Set(key string, v Value) *MapTable {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = v
	return t
}

func (t *MapTable) Keys() []string {
	return slices.Clone(t.keys)
}

func (t *MapTable) Get(key string) (Value, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Len returns the number of keys.
func (t *MapTable) Len() int {
	return len(t.keys)
}

// ListSequence is an in-memory sequence.
type ListSequence struct {
	values []Value
}

// NewListSequence returns a sequence holding values.
func NewListSequence(values ...Value) *ListSequence {
	return &ListSequence{values: values}
}

func (s *ListSequence) Len() int {
	return len(s.values)
}

func (s *ListSequence) Index(i int) (Value, bool) {
	if i < 0 || i >= len(s.values) {
		return Null, false
	}
	return s.values[i], true
}

// Values returns a copy of the elements.
func (s *ListSequence) Values() []Value {
	return slices.Clone(s.values)
}

// sequenceValues copies any sequence into a slice.
func sequenceValues(q Sequence) []Value {
	if l, ok := q.(*ListSequence); ok {
		return l.Values()
	}
	n := q.Len()
	out := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		v, _ := q.Index(i)
		out = append(out, v)
	}
	return out
}

type emptyTable struct{}

func (emptyTable) Keys() []string           { return nil }
func (emptyTable) Get(string) (Value, bool) { return Null, false }
func (emptyTable) identity() any            { return emptyTable{} }
