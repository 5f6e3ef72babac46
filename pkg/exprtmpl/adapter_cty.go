package exprtmpl

import (
	"slices"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// FromCty converts a cty value, as produced by HCL evaluation. Objects
// and maps become tables, lists and tuples become sequences and sets
// become sequences in cty's set order. Null and unknown values are Null.
// Collections are wrapped lazily with the same caching as FromGo.
func FromCty(v cty.Value) (Value, error) {
	v, _ = v.UnmarkDeep()
	return fromCtyValue(v)
}

func fromCtyValue(v cty.Value) (Value, error) {
	if v.IsNull() || !v.IsKnown() {
		return Null, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return StringValue(v.AsString()), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return NumberValue(f), nil
	case ty == cty.Bool:
		return BoolValue(v.True()), nil
	case ty.IsObjectType(), ty.IsMapType():
		return TableValue(&ctyTable{v: v}), nil
	case ty.IsListType(), ty.IsTupleType():
		return SequenceValue(&ctySequence{v: v, n: v.LengthInt()}), nil
	case ty.IsSetType():
		elems := v.AsValueSlice()
		return SequenceValue(&ctySequence{v: v, elems: elems, n: len(elems)}), nil
	}
	return Null, newRenderError(ErrUnsupportedHost, "cannot convert cty value of type %s", ty.FriendlyName())
}

func convertCtyMember(v cty.Value, where string) Value {
	out, err := fromCtyValue(v)
	if err != nil {
		re := err.(*RenderError).clone()
		re.Message = where + ": " + re.Message
		panicHost(re)
	}
	return out
}

type ctyTable struct {
	v     cty.Value
	once  sync.Once
	keys  []string
	cache sync.Map
}

// Keys returns attribute or map keys in cty's lexical order.
func (t *ctyTable) Keys() []string {
	t.once.Do(func() {
		keys := make([]string, 0, t.v.LengthInt())
		for it := t.v.ElementIterator(); it.Next(); {
			k, _ := it.Element()
			keys = append(keys, k.AsString())
		}
		t.keys = keys
	})
	return slices.Clone(t.keys)
}

func (t *ctyTable) Get(key string) (Value, bool) {
	if v, ok := t.cache.Load(key); ok {
		return v.(Value), true
	}
	var child cty.Value
	if t.v.Type().IsObjectType() {
		if !t.v.Type().HasAttribute(key) {
			return Null, false
		}
		child = t.v.GetAttr(key)
	} else {
		k := cty.StringVal(key)
		if !t.v.HasIndex(k).True() {
			return Null, false
		}
		child = t.v.Index(k)
	}
	v, _ := t.cache.LoadOrStore(key, convertCtyMember(child, "key "+key))
	return v.(Value), true
}

type ctySequence struct {
	v     cty.Value
	elems []cty.Value // sets only
	n     int

	mu    sync.Mutex
	cache map[int]Value
}

func (s *ctySequence) Len() int {
	return s.n
}

func (s *ctySequence) Index(i int) (Value, bool) {
	if i < 0 || i >= s.n {
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
	var child cty.Value
	if s.elems != nil {
		child = s.elems[i]
	} else {
		child = s.v.Index(cty.NumberIntVal(int64(i)))
	}
	v := convertCtyMember(child, "element "+formatNumber(float64(i)))
	s.cache[i] = v
	return v, true
}
