package exprtmpl

import (
	"strconv"
	"strings"
)

func argError(format string, args ...interface{}) error {
	return newRenderError(ErrInvalidArgument, format, args...)
}

func numberArg(args []Value, i int) (float64, error) {
	if args[i].kind != KindNumber {
		return 0, argError("argument %d must be a number, got %s", i+1, args[i].kind)
	}
	return args[i].n, nil
}

func intArg(args []Value, i int) (int, error) {
	if args[i].kind != KindNumber {
		return 0, argError("argument %d must be a number, got %s", i+1, args[i].kind)
	}
	n, err := args[i].AsIndex()
	if err != nil {
		return 0, argError("argument %d must be an integer, got %s", i+1, formatNumber(args[i].n))
	}
	return n, nil
}

func stringArg(args []Value, i int) (string, error) {
	if args[i].kind != KindString {
		return "", argError("argument %d must be a string, got %s", i+1, args[i].kind)
	}
	return args[i].s, nil
}

func sequenceArg(args []Value, i int) (Sequence, error) {
	if args[i].kind != KindSequence {
		return nil, argError("argument %d must be an array, got %s", i+1, args[i].kind)
	}
	return args[i].q, nil
}

func tableArg(args []Value, i int) (Table, error) {
	if args[i].kind != KindTable {
		return nil, argError("argument %d must be a table, got %s", i+1, args[i].kind)
	}
	return args[i].t, nil
}

func textArg(args []Value, i int) (string, error) {
	s, err := args[i].Text()
	if err != nil {
		return "", argError("argument %d has no string form: %s", i+1, args[i].kind)
	}
	return s, nil
}

func stringsValue(parts []string) Value {
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = StringValue(p)
	}
	return SequenceValue(NewListSequence(out...))
}

func registerBaseFunctions(registry *DefaultFunctionRegistry) {
	// empty() reports whether a string, array or table has no content
	registry.RegisterFunction(NewSimpleFunction("empty", 1, 1, func(args ...Value) (Value, error) {
		v := args[0]
		switch v.kind {
		case KindNull:
			return BoolValue(true), nil
		case KindString:
			return BoolValue(v.s == ""), nil
		case KindSequence:
			return BoolValue(v.q.Len() == 0), nil
		case KindTable:
			return BoolValue(len(v.t.Keys()) == 0), nil
		}
		return Null, argError("empty() does not apply to %s", v.kind)
	}))

	registry.RegisterFunction(NewSimpleFunction("type", 1, 1, func(args ...Value) (Value, error) {
		return StringValue(args[0].kind.String()), nil
	}))

	// number() parses strings; unparsable input yields null
	registry.RegisterFunction(NewSimpleFunction("number", 1, 1, func(args ...Value) (Value, error) {
		v := args[0]
		switch v.kind {
		case KindNumber:
			return v, nil
		case KindString:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
			if err != nil {
				return Null, nil
			}
			return NumberValue(f), nil
		}
		return Null, argError("cannot convert %s to number", v.kind)
	}))

	registry.RegisterFunction(NewSimpleFunction("string", 1, 1, func(args ...Value) (Value, error) {
		s, err := textArg(args, 0)
		if err != nil {
			return Null, err
		}
		return StringValue(s), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("condition", 3, 3, func(args ...Value) (Value, error) {
		if args[0].kind != KindBoolean {
			return Null, argError("condition must be a boolean, got %s", args[0].kind)
		}
		if args[0].b {
			return args[1], nil
		}
		return args[2], nil
	}))
}
