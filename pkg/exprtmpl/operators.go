package exprtmpl

import (
	"math"
	"strings"
	"unicode/utf8"
)

// numbers extracts both operands of a strict numeric operator.
func numbers(op string, a, b Value) (float64, float64, error) {
	if a.kind == KindNull || b.kind == KindNull {
		return 0, 0, newRenderError(ErrNullOperand, "null operand to %s", op)
	}
	if a.kind != KindNumber || b.kind != KindNumber {
		return 0, 0, newRenderError(ErrTypeMismatch, "cannot apply %s to %s and %s", op, a.kind, b.kind)
	}
	return a.n, b.n, nil
}

// Add returns a + b.
func Add(a, b Value) (Value, error) {
	x, y, err := numbers("+", a, b)
	if err != nil {
		return Null, err
	}
	return NumberValue(x + y), nil
}

// Sub returns a - b.
func Sub(a, b Value) (Value, error) {
	x, y, err := numbers("-", a, b)
	if err != nil {
		return Null, err
	}
	return NumberValue(x - y), nil
}

// Mul returns a * b.
func Mul(a, b Value) (Value, error) {
	x, y, err := numbers("*", a, b)
	if err != nil {
		return Null, err
	}
	return NumberValue(x * y), nil
}

// Div returns a / b with IEEE semantics for a zero divisor.
func Div(a, b Value) (Value, error) {
	x, y, err := numbers("/", a, b)
	if err != nil {
		return Null, err
	}
	return NumberValue(x / y), nil
}

// Mod returns the remainder of a / b with the sign of a.
func Mod(a, b Value) (Value, error) {
	x, y, err := numbers("%", a, b)
	if err != nil {
		return Null, err
	}
	return NumberValue(math.Mod(x, y)), nil
}

// Pow returns a raised to b.
func Pow(a, b Value) (Value, error) {
	x, y, err := numbers("^", a, b)
	if err != nil {
		return Null, err
	}
	return NumberValue(math.Pow(x, y)), nil
}

// Negate returns -a.
func Negate(a Value) (Value, error) {
	switch a.kind {
	case KindNumber:
		return NumberValue(-a.n), nil
	case KindNull:
		return Null, newRenderError(ErrNullOperand, "null operand to unary -")
	}
	return Null, newRenderError(ErrTypeMismatch, "cannot negate %s", a.kind)
}

// Not returns the logical negation of a Boolean.
func Not(a Value) (Value, error) {
	b, err := a.AsBool()
	if err != nil {
		return Null, err
	}
	return BoolValue(!b), nil
}

// Concat joins two strings.
func Concat(a, b Value) (Value, error) {
	if a.kind == KindNull || b.kind == KindNull {
		return Null, newRenderError(ErrNullOperand, "null operand to ..")
	}
	if a.kind != KindString || b.kind != KindString {
		return Null, newRenderError(ErrTypeMismatch, "cannot concatenate %s and %s", a.kind, b.kind)
	}
	return StringValue(a.s + b.s), nil
}

// Compare orders two numbers or two strings. It returns -1, 0 or +1.
func Compare(a, b Value) (int, error) {
	if a.kind == KindNull || b.kind == KindNull {
		return 0, newRenderError(ErrNullOperand, "cannot order null")
	}
	switch {
	case a.kind == KindNumber && b.kind == KindNumber:
		if math.Abs(a.n-b.n) < Epsilon {
			return 0, nil
		}
		if a.n < b.n {
			return -1, nil
		}
		return 1, nil
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.s, b.s), nil
	}
	return 0, newRenderError(ErrTypeMismatch, "cannot order %s and %s", a.kind, b.kind)
}

func compareWith(test func(int) bool) func(a, b Value) (Value, error) {
	return func(a, b Value) (Value, error) {
		c, err := Compare(a, b)
		if err != nil {
			return Null, err
		}
		return BoolValue(test(c)), nil
	}
}

var binaryOperators = map[string]func(a, b Value) (Value, error){
	"+":  Add,
	"-":  Sub,
	"*":  Mul,
	"/":  Div,
	"%":  Mod,
	"^":  Pow,
	"..": Concat,
	"==": func(a, b Value) (Value, error) { return BoolValue(Equal(a, b)), nil },
	"!=": func(a, b Value) (Value, error) { return BoolValue(!Equal(a, b)), nil },
	"<":  compareWith(func(c int) bool { return c < 0 }),
	"<=": compareWith(func(c int) bool { return c <= 0 }),
	">":  compareWith(func(c int) bool { return c > 0 }),
	">=": compareWith(func(c int) bool { return c >= 0 }),
}

// Member returns x.name. Strings and sequences expose length; tables
// look the name up and yield Null when it is absent.
func Member(x Value, name string) (Value, error) {
	switch x.kind {
	case KindTable:
		v, _ := x.t.Get(name)
		return v, nil
	case KindString:
		if name == "length" {
			return NumberValue(float64(utf8.RuneCountInString(x.s))), nil
		}
	case KindSequence:
		if name == "length" {
			return NumberValue(float64(x.q.Len())), nil
		}
	case KindNull:
		return Null, newRenderError(ErrNullOperand, "cannot read member %q of null", name)
	}
	return Null, newRenderError(ErrTypeMismatch, "%s has no member %q", x.kind, name)
}

// Index returns x[i]. Tables take a string key. Strings and sequences
// take a 0-based position where negative positions count from the end.
// A sequence position out of range yields Null; a string position out of
// range fails.
func Index(x, i Value) (Value, error) {
	switch x.kind {
	case KindTable:
		key, err := i.AsString()
		if err != nil {
			return Null, err
		}
		v, _ := x.t.Get(key)
		return v, nil
	case KindSequence:
		n, err := i.AsIndex()
		if err != nil {
			return Null, err
		}
		if n < 0 {
			n += x.q.Len()
		}
		v, _ := x.q.Index(n)
		return v, nil
	case KindString:
		n, err := i.AsIndex()
		if err != nil {
			return Null, err
		}
		return Substring(x.s, n)
	case KindNull:
		return Null, newRenderError(ErrNullOperand, "cannot index null")
	}
	return Null, newRenderError(ErrTypeMismatch, "cannot index %s", x.kind)
}

// Substring returns the character at 0-based position i. Negative
// positions count from the end, so -1 is the last character.
func Substring(s string, i int) (Value, error) {
	runes := []rune(s)
	if i < 0 {
		i += len(runes)
	}
	if i < 0 || i >= len(runes) {
		return Null, newRenderError(ErrIndexOutOfDomain, "index %d out of range for string of length %d", i, len(runes))
	}
	return StringValue(string(runes[i])), nil
}

// sliceBounds resolves a closed 1-based [from, to] range over n elements
// into a half-open 0-based [lo, hi). A negative from means n+from+1 and a
// negative to means n+to.
func sliceBounds(from, to, n int) (lo, hi int, err error) {
	if from < 0 {
		from = n + from + 1
	}
	if to < 0 {
		to = n + to
	}
	if from < 1 || from > n+1 || to > n || to < from-1 {
		return 0, 0, newRenderError(ErrIndexOutOfDomain, "range [%d:%d] out of bounds for length %d", from, to, n)
	}
	return from - 1, to, nil
}

// Slice returns x[from:to] for strings and sequences.
func Slice(x, from, to Value) (Value, error) {
	if x.kind == KindNull {
		return Null, newRenderError(ErrNullOperand, "cannot slice null")
	}
	f, err := from.AsIndex()
	if err != nil {
		return Null, err
	}
	t, err := to.AsIndex()
	if err != nil {
		return Null, err
	}
	switch x.kind {
	case KindString:
		runes := []rune(x.s)
		lo, hi, err := sliceBounds(f, t, len(runes))
		if err != nil {
			return Null, err
		}
		return StringValue(string(runes[lo:hi])), nil
	case KindSequence:
		lo, hi, err := sliceBounds(f, t, x.q.Len())
		if err != nil {
			return Null, err
		}
		out := make([]Value, 0, hi-lo)
		for i := lo; i < hi; i++ {
			v, _ := x.q.Index(i)
			out = append(out, v)
		}
		return SequenceValue(NewListSequence(out...)), nil
	}
	return Null, newRenderError(ErrTypeMismatch, "cannot slice %s", x.kind)
}
