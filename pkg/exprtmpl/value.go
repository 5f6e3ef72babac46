package exprtmpl

import (
	"math"
	"reflect"
	"strconv"
)

// Epsilon is the tolerance used for number equality, integer index
// conversion and range bounds.
const Epsilon = 1e-9

// Kind is the tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindTable
	KindSequence
)

// String returns the name reported by the type() builtin.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindSequence:
		return "array"
	}
	return "unknown"
}

// Value is an immutable dynamically typed template value. The zero Value
// is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	t    Table
	q    Sequence
}

// Null is the null value.
var Null = Value{}

// BoolValue returns a Boolean.
func BoolValue(b bool) Value {
	return Value{kind: KindBoolean, b: b}
}

// NumberValue returns a Number.
func NumberValue(n float64) Value {
	return Value{kind: KindNumber, n: n}
}

// StringValue returns a String.
func StringValue(s string) Value {
	return Value{kind: KindString, s: s}
}

// TableValue wraps t. A nil table is Null.
func TableValue(t Table) Value {
	if t == nil {
		return Null
	}
	return Value{kind: KindTable, t: t}
}

// SequenceValue wraps q. A nil sequence is Null.
func SequenceValue(q Sequence) Value {
	if q == nil {
		return Null
	}
	return Value{kind: KindSequence, q: q}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, error) {
	if v.kind == KindBoolean {
		return v.b, nil
	}
	return false, v.castError(KindBoolean)
}

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, error) {
	if v.kind == KindNumber {
		return v.n, nil
	}
	return 0, v.castError(KindNumber)
}

// AsString returns the string held by v.
func (v Value) AsString() (string, error) {
	if v.kind == KindString {
		return v.s, nil
	}
	return "", v.castError(KindString)
}

// AsTable returns the table held by v.
func (v Value) AsTable() (Table, error) {
	if v.kind == KindTable {
		return v.t, nil
	}
	return nil, v.castError(KindTable)
}

// AsSequence returns the sequence held by v.
func (v Value) AsSequence() (Sequence, error) {
	if v.kind == KindSequence {
		return v.q, nil
	}
	return nil, v.castError(KindSequence)
}

// AsIndex converts a Number to an int. The number must be integral
// within Epsilon and fit in an int.
func (v Value) AsIndex() (int, error) {
	n, err := v.AsNumber()
	if err != nil {
		return 0, err
	}
	r := math.Round(n)
	if math.Abs(n-r) >= Epsilon || r > math.MaxInt32 || r < math.MinInt32 {
		return 0, newRenderError(ErrTypeMismatch, "%s is not an integer index", formatNumber(n))
	}
	return int(r), nil
}

func (v Value) castError(want Kind) error {
	if v.kind == KindNull {
		return newRenderError(ErrNullOperand, "expected %s, got null", want)
	}
	return newRenderError(ErrTypeMismatch, "expected %s, got %s", want, v.kind)
}

// Text returns the output form of v. Booleans print as true/false and
// numbers in their shortest round-trip form. Null, tables and sequences
// have no output form.
func (v Value) Text() (string, error) {
	switch v.kind {
	case KindBoolean:
		return strconv.FormatBool(v.b), nil
	case KindNumber:
		return formatNumber(v.n), nil
	case KindString:
		return v.s, nil
	case KindNull:
		return "", newRenderError(ErrNullOperand, "cannot convert null to string")
	}
	return "", newRenderError(ErrTypeMismatch, "cannot convert %s to string", v.kind)
}

// String implements fmt.Stringer for debugging.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.s)
	case KindTable, KindSequence:
		return v.kind.String()
	}
	s, _ := v.Text()
	return s
}

// Export converts v into plain Go values: nil, bool, float64, string,
// map[string]any or []any.
func (v Value) Export() any {
	switch v.kind {
	case KindBoolean:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindTable:
		keys := v.t.Keys()
		m := make(map[string]any, len(keys))
		for _, k := range keys {
			child, _ := v.t.Get(k)
			m[k] = child.Export()
		}
		return m
	case KindSequence:
		n := v.q.Len()
		out := make([]any, n)
		for i := 0; i < n; i++ {
			child, _ := v.q.Index(i)
			out[i] = child.Export()
		}
		return out
	}
	return nil
}

func formatNumber(n float64) string {
	if n == 0 {
		return "0"
	}
	abs := math.Abs(n)
	if abs >= 1e21 || abs < 1e-6 {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Equal reports whether a and b are equal. Values of different kinds are
// never equal; tables and sequences compare by identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBoolean:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n || math.Abs(a.n-b.n) < Epsilon
	case KindString:
		return a.s == b.s
	case KindTable:
		return sameHandle(a.t, b.t)
	case KindSequence:
		return sameHandle(a.q, b.q)
	}
	return false
}

// identifier is implemented by adapters whose identity is the host value
// they wrap rather than the adapter itself.
type identifier interface {
	identity() any
}

func sameHandle(x, y any) bool {
	if ix, ok := x.(identifier); ok {
		iy, ok := y.(identifier)
		return ok && ix.identity() == iy.identity()
	}
	tx := reflect.TypeOf(x)
	if tx != reflect.TypeOf(y) {
		return false
	}
	if tx.Comparable() {
		return x == y
	}
	vx, vy := reflect.ValueOf(x), reflect.ValueOf(y)
	switch vx.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func:
		return vx.Pointer() == vy.Pointer()
	}
	return false
}
