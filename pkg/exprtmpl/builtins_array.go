package exprtmpl

import (
	"sort"
)

func registerArrayFunctions(registry *DefaultFunctionRegistry) {
	registry.RegisterFunction(NewSimpleFunction("array.concat", 1, -1, func(args ...Value) (Value, error) {
		var out []Value
		for i := range args {
			q, err := sequenceArg(args, i)
			if err != nil {
				return Null, err
			}
			out = append(out, sequenceValues(q)...)
		}
		return SequenceValue(NewListSequence(out...)), nil
	}))

	// compact() drops nulls, empty strings and empty arrays
	registry.RegisterFunction(NewSimpleFunction("array.compact", 1, 1, func(args ...Value) (Value, error) {
		q, err := sequenceArg(args, 0)
		if err != nil {
			return Null, err
		}
		var out []Value
		for _, v := range sequenceValues(q) {
			switch {
			case v.kind == KindNull:
			case v.kind == KindString && v.s == "":
			case v.kind == KindSequence && v.q.Len() == 0:
			default:
				out = append(out, v)
			}
		}
		return SequenceValue(NewListSequence(out...)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("array.limit", 2, 2, func(args ...Value) (Value, error) {
		q, err := sequenceArg(args, 0)
		if err != nil {
			return Null, err
		}
		n, err := intArg(args, 1)
		if err != nil {
			return Null, err
		}
		if n < 0 {
			return Null, argError("limit must not be negative, got %d", n)
		}
		values := sequenceValues(q)
		if n < len(values) {
			values = values[:n]
		}
		return SequenceValue(NewListSequence(values...)), nil
	}))

	// map() projects each element through an index or a member name
	registry.RegisterFunction(NewSimpleFunction("array.map", 2, 2, func(args ...Value) (Value, error) {
		q, err := sequenceArg(args, 0)
		if err != nil {
			return Null, err
		}
		values := sequenceValues(q)
		for i, v := range values {
			if values[i], err = selectKey(v, args[1]); err != nil {
				return Null, err
			}
		}
		return SequenceValue(NewListSequence(values...)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("array.sort", 1, 2, func(args ...Value) (Value, error) {
		q, err := sequenceArg(args, 0)
		if err != nil {
			return Null, err
		}
		values := sequenceValues(q)
		keys := values
		if len(args) == 2 {
			keys = make([]Value, len(values))
			for i, v := range values {
				if keys[i], err = selectKey(v, args[1]); err != nil {
					return Null, err
				}
			}
		}
		return sortByKeys(values, keys)
	}))

	// unique() keeps the first of equal scalars; tables and arrays are
	// never treated as duplicates
	registry.RegisterFunction(NewSimpleFunction("array.unique", 1, 1, func(args ...Value) (Value, error) {
		q, err := sequenceArg(args, 0)
		if err != nil {
			return Null, err
		}
		var out []Value
		for _, v := range sequenceValues(q) {
			if v.kind == KindTable || v.kind == KindSequence || !containsValue(out, v) {
				out = append(out, v)
			}
		}
		return SequenceValue(NewListSequence(out...)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("array.contains", 2, 2, func(args ...Value) (Value, error) {
		q, err := sequenceArg(args, 0)
		if err != nil {
			return Null, err
		}
		return BoolValue(containsValue(sequenceValues(q), args[1])), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("array.reverse", 1, 1, func(args ...Value) (Value, error) {
		q, err := sequenceArg(args, 0)
		if err != nil {
			return Null, err
		}
		values := sequenceValues(q)
		for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
			values[i], values[j] = values[j], values[i]
		}
		return SequenceValue(NewListSequence(values...)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("array.length", 1, 1, func(args ...Value) (Value, error) {
		q, err := sequenceArg(args, 0)
		if err != nil {
			return Null, err
		}
		return NumberValue(float64(q.Len())), nil
	}))
}

// selectKey applies a map/sort selector to one element: a number indexes
// into an array element, a string reads a table member.
func selectKey(elem, key Value) (Value, error) {
	switch key.kind {
	case KindNumber, KindString:
		return Index(elem, key)
	}
	return Null, argError("selector must be a number or string, got %s", key.kind)
}

func containsValue(values []Value, v Value) bool {
	for _, x := range values {
		if Equal(x, v) {
			return true
		}
	}
	return false
}

// sortByKeys stably sorts values by the parallel keys. Nulls sort last;
// numbers and strings sort among their own kind; anything else, or a mix
// of numbers and strings, fails.
func sortByKeys(values, keys []Value) (Value, error) {
	kind := KindNull
	for _, k := range keys {
		switch k.kind {
		case KindNull:
			continue
		case KindNumber, KindString:
		default:
			return Null, argError("cannot sort by %s", k.kind)
		}
		if kind != KindNull && kind != k.kind {
			return Null, argError("cannot sort mixed %s and %s", kind, k.kind)
		}
		kind = k.kind
	}

	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.kind == KindNull || kb.kind == KindNull {
			return kb.kind == KindNull && ka.kind != KindNull
		}
		if ka.kind == KindNumber {
			return ka.n < kb.n
		}
		return ka.s < kb.s
	})

	out := make([]Value, len(values))
	for i, j := range idx {
		out[i] = values[j]
	}
	return SequenceValue(NewListSequence(out...)), nil
}
