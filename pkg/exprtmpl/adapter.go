package exprtmpl

import (
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// FromGo converts a host value into a Value.
//
// Booleans, all numeric kinds and strings convert directly; []byte is a
// String and time.Time becomes a date table. Maps with string keys,
// slices, arrays and structs are wrapped lazily: a member is converted on
// first access and cached, so repeated reads return identical values.
// Pointers and interfaces are followed; nil is Null. Anything else fails
// with ErrUnsupportedHost.
func FromGo(x any) (Value, error) {
	if v, ok, err := fromKnown(x); ok {
		return v, err
	}
	return fromReflect(reflect.ValueOf(x))
}

// ToTable converts a host value that must have a table shape. nil yields
// an empty table.
func ToTable(x any) (Table, error) {
	v, err := FromGo(x)
	if err != nil {
		return nil, err
	}
	switch v.kind {
	case KindNull:
		return emptyTable{}, nil
	case KindTable:
		return v.t, nil
	}
	return nil, newRenderError(ErrTypeMismatch, "expected table, got %s", v.kind)
}

// ToSequence converts a host value that must have a sequence shape.
func ToSequence(x any) (Sequence, error) {
	v, err := FromGo(x)
	if err != nil {
		return nil, err
	}
	return v.AsSequence()
}

func fromKnown(x any) (Value, bool, error) {
	switch v := x.(type) {
	case nil:
		return Null, true, nil
	case Value:
		return v, true, nil
	case Table:
		return TableValue(v), true, nil
	case Sequence:
		return SequenceValue(v), true, nil
	case bool:
		return BoolValue(v), true, nil
	case string:
		return StringValue(v), true, nil
	case float64:
		return NumberValue(v), true, nil
	case int:
		return NumberValue(float64(v)), true, nil
	case int64:
		return NumberValue(float64(v)), true, nil
	case []byte:
		return StringValue(string(v)), true, nil
	case time.Time:
		return TableValue(dateTable(v)), true, nil
	case cty.Value:
		cv, err := FromCty(v)
		return cv, true, err
	}
	return Null, false, nil
}

var timeType = reflect.TypeOf(time.Time{})

func fromReflect(rv reflect.Value) (Value, error) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Null, nil
		}
		if rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Struct && rv.Elem().Type() != timeType {
			if v, ok, err := fromInterface(rv); ok {
				return v, err
			}
			return TableValue(newHostStruct(rv.Elem(), hostIdentity(rv))), nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return Null, nil
	}
	if v, ok, err := fromInterface(rv); ok {
		return v, err
	}

	switch rv.Kind() {
	case reflect.Bool:
		return BoolValue(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumberValue(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return NumberValue(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return NumberValue(rv.Float()), nil
	case reflect.String:
		return StringValue(rv.String()), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return Null, nil
		}
		return TableValue(&hostMap{v: rv}), nil
	case reflect.Slice:
		if rv.IsNil() {
			return Null, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return StringValue(string(rv.Bytes())), nil
		}
		return SequenceValue(&hostSlice{v: rv, id: hostIdentity(rv)}), nil
	case reflect.Array:
		return SequenceValue(&hostSlice{v: rv}), nil
	case reflect.Struct:
		return TableValue(newHostStruct(rv, nil)), nil
	}
	return Null, newRenderError(ErrUnsupportedHost, "cannot convert host value of type %s", rv.Type())
}

// fromInterface routes values whose dynamic type is handled by fromKnown,
// such as a named type implementing Table or a time.Time field.
func fromInterface(rv reflect.Value) (Value, bool, error) {
	if !rv.CanInterface() {
		return Null, false, nil
	}
	switch rv.Kind() {
	case reflect.Bool, reflect.String, reflect.Float64, reflect.Int, reflect.Int64:
		// handled by kind, including named types
		return Null, false, nil
	}
	return fromKnown(rv.Interface())
}

// convertMember converts a lazily read child. Adapters cannot return an
// error from Get or Index, so a failure panics with a hostPanic that the
// render recovers.
func convertMember(rv reflect.Value, where string) Value {
	v, err := fromReflect(rv)
	if err != nil {
		re := err.(*RenderError).clone()
		re.Message = where + ": " + re.Message
		panicHost(re)
	}
	return v
}

// hostKey identifies the host data behind an adapter so that two
// adapters over the same map, slice or struct pointer compare equal.
type hostKey struct {
	t reflect.Type
	p uintptr
	n int
}

// hostIdentity returns the hostKey of a slice or struct pointer, or nil
// when rv owns no storage. Zero-capacity slices and pointers to zero-size
// values may all share one address, so those adapters compare by
// themselves.
func hostIdentity(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Cap() == 0 {
			return nil
		}
		return hostKey{t: rv.Type(), p: rv.Pointer(), n: rv.Len()}
	case reflect.Pointer:
		if rv.Type().Elem().Size() == 0 {
			return nil
		}
		return hostKey{t: rv.Type(), p: rv.Pointer()}
	}
	return nil
}

type hostMap struct {
	v     reflect.Value
	once  sync.Once
	keys  []string
	cache sync.Map
}

// Keys returns the map keys sorted, since Go maps have no order.
func (m *hostMap) Keys() []string {
	m.once.Do(func() {
		keys := make([]string, 0, m.v.Len())
		iter := m.v.MapRange()
		for iter.Next() {
			keys = append(keys, iter.Key().String())
		}
		sort.Strings(keys)
		m.keys = keys
	})
	return slices.Clone(m.keys)
}

func (m *hostMap) Get(key string) (Value, bool) {
	if v, ok := m.cache.Load(key); ok {
		return v.(Value), true
	}
	ev := m.v.MapIndex(reflect.ValueOf(key).Convert(m.v.Type().Key()))
	if !ev.IsValid() {
		return Null, false
	}
	v, _ := m.cache.LoadOrStore(key, convertMember(ev, "key "+key))
	return v.(Value), true
}

func (m *hostMap) identity() any {
	return hostKey{t: m.v.Type(), p: m.v.Pointer()}
}

type hostSlice struct {
	v  reflect.Value
	id any

	mu    sync.Mutex
	cache map[int]Value
}

func (s *hostSlice) Len() int {
	return s.v.Len()
}

func (s *hostSlice) Index(i int) (Value, bool) {
	if i < 0 || i >= s.v.Len() {
		return Null, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache[i]; ok {
		return v, true
	}
	if s.cache == nil {
		s.cache = make(map[int]Value)
	}
	v := convertMember(s.v.Index(i), "element "+formatNumber(float64(i)))
	s.cache[i] = v
	return v, true
}

func (s *hostSlice) identity() any {
	if s.id == nil {
		return s
	}
	return s.id
}

// structDescriptor lists the readable fields of a struct type. Field
// names come from the `tmpl` tag when present; "-" hides a field.
type structDescriptor struct {
	keys   []string
	fields map[string][]int
}

var descriptors sync.Map

func describe(t reflect.Type) *structDescriptor {
	if d, ok := descriptors.Load(t); ok {
		return d.(*structDescriptor)
	}
	d := &structDescriptor{fields: make(map[string][]int)}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || (f.Anonymous && f.Type.Kind() == reflect.Struct) {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("tmpl"); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		if _, dup := d.fields[name]; dup {
			continue
		}
		d.keys = append(d.keys, name)
		d.fields[name] = f.Index
	}
	actual, _ := descriptors.LoadOrStore(t, d)
	return actual.(*structDescriptor)
}

type hostStruct struct {
	v     reflect.Value
	desc  *structDescriptor
	id    any
	cache sync.Map
}

func newHostStruct(rv reflect.Value, id any) *hostStruct {
	return &hostStruct{v: rv, desc: describe(rv.Type()), id: id}
}

// Keys returns field names in declaration order.
func (s *hostStruct) Keys() []string {
	return slices.Clone(s.desc.keys)
}

func (s *hostStruct) Get(key string) (Value, bool) {
	if v, ok := s.cache.Load(key); ok {
		return v.(Value), true
	}
	index, ok := s.desc.fields[key]
	if !ok {
		return Null, false
	}
	fv, err := s.v.FieldByIndexErr(index)
	if err != nil {
		// promoted through a nil embedded pointer
		return Null, true
	}
	v, _ := s.cache.LoadOrStore(key, convertMember(fv, "field "+key))
	return v.(Value), true
}

func (s *hostStruct) identity() any {
	if s.id == nil {
		return s
	}
	return s.id
}
