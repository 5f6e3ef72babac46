package exprtmpl

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func stringFunc(name string, fn func(s string) string) Function {
	return NewSimpleFunction(name, 1, 1, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		return StringValue(fn(s)), nil
	})
}

func stringPredicate(name string, fn func(s, sub string) bool) Function {
	return NewSimpleFunction(name, 2, 2, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		sub, err := stringArg(args, 1)
		if err != nil {
			return Null, err
		}
		return BoolValue(fn(s, sub)), nil
	})
}

func registerStringFunctions(registry *DefaultFunctionRegistry) {
	// Casers carry state, so each call builds its own.
	registry.RegisterFunction(stringFunc("string.upper", func(s string) string {
		return cases.Upper(language.Und).String(s)
	}))
	registry.RegisterFunction(stringFunc("string.lower", func(s string) string {
		return cases.Lower(language.Und).String(s)
	}))
	registry.RegisterFunction(stringFunc("string.title", func(s string) string {
		return cases.Title(language.Und).String(s)
	}))
	registry.RegisterFunction(stringFunc("string.reverse", func(s string) string {
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes)
	}))

	registry.RegisterFunction(trimFunction("string.strip", strings.TrimSpace, strings.Trim))
	registry.RegisterFunction(trimFunction("string.lstrip", func(s string) string {
		return strings.TrimLeftFunc(s, unicode.IsSpace)
	}, strings.TrimLeft))
	registry.RegisterFunction(trimFunction("string.rstrip", func(s string) string {
		return strings.TrimRightFunc(s, unicode.IsSpace)
	}, strings.TrimRight))

	registry.RegisterFunction(stringPredicate("string.contains", strings.Contains))
	registry.RegisterFunction(stringPredicate("string.starts", strings.HasPrefix))
	registry.RegisterFunction(stringPredicate("string.ends", strings.HasSuffix))

	registry.RegisterFunction(NewSimpleFunction("string.repeat", 2, 2, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		n, err := intArg(args, 1)
		if err != nil {
			return Null, err
		}
		if n < 0 {
			return Null, argError("repeat count must not be negative, got %d", n)
		}
		return StringValue(strings.Repeat(s, n)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("string.remove", 2, 2, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		sub, err := stringArg(args, 1)
		if err != nil {
			return Null, err
		}
		if sub == "" {
			return StringValue(s), nil
		}
		return StringValue(strings.ReplaceAll(s, sub, "")), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("string.replace", 3, 3, func(args ...Value) (Value, error) {
		var parts [3]string
		for i := range parts {
			s, err := stringArg(args, i)
			if err != nil {
				return Null, err
			}
			parts[i] = s
		}
		if parts[1] == "" {
			return Null, argError("replace needs a non-empty search string")
		}
		return StringValue(strings.ReplaceAll(parts[0], parts[1], parts[2])), nil
	}))

	// split() cuts at any of the given separators
	registry.RegisterFunction(NewSimpleFunction("string.split", 2, -1, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		seps := make([]string, 0, len(args)-1)
		for i := 1; i < len(args); i++ {
			sep, err := stringArg(args, i)
			if err != nil {
				return Null, err
			}
			if sep != "" {
				seps = append(seps, sep)
			}
		}
		return stringsValue(splitAny(s, seps)), nil
	}))

	registry.RegisterFunction(padFunction("string.left", true))
	registry.RegisterFunction(padFunction("string.right", false))

	registry.RegisterFunction(findFunction("string.find", false))
	registry.RegisterFunction(findFunction("string.findlast", true))

	registry.RegisterFunction(NewSimpleFunction("string.concat", 1, -1, func(args ...Value) (Value, error) {
		parts, err := joinArgs(args)
		if err != nil {
			return Null, err
		}
		return StringValue(strings.Join(parts, "")), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("string.join", 2, -1, func(args ...Value) (Value, error) {
		sep, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		parts, err := joinArgs(args[1:])
		if err != nil {
			return Null, err
		}
		return StringValue(strings.Join(parts, sep)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("string.format", 1, -1, func(args ...Value) (Value, error) {
		format, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		s, err := formatComposite(format, args[1:])
		if err != nil {
			return Null, err
		}
		return StringValue(s), nil
	}))
}

func trimFunction(name string, space func(string) string, cutset func(string, string) string) Function {
	return NewSimpleFunction(name, 1, 2, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		if len(args) == 1 {
			return StringValue(space(s)), nil
		}
		chars, err := stringArg(args, 1)
		if err != nil {
			return Null, err
		}
		return StringValue(cutset(s, chars)), nil
	})
}

// padFunction pads to a width. string.left aligns text to the right by
// padding on the left; string.right pads on the right.
func padFunction(name string, left bool) Function {
	return NewSimpleFunction(name, 2, 3, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		width, err := intArg(args, 1)
		if err != nil {
			return Null, err
		}
		pad := " "
		if len(args) == 3 {
			if pad, err = stringArg(args, 2); err != nil {
				return Null, err
			}
			if utf8.RuneCountInString(pad) != 1 {
				return Null, argError("padding must be a single character, got %q", pad)
			}
		}
		n := width - utf8.RuneCountInString(s)
		if n <= 0 {
			return StringValue(s), nil
		}
		if left {
			return StringValue(strings.Repeat(pad, n) + s), nil
		}
		return StringValue(s + strings.Repeat(pad, n)), nil
	})
}

// findFunction returns the character position of sub, or null. The
// optional start and count bound the searched window; findlast searches
// backwards from start.
func findFunction(name string, last bool) Function {
	return NewSimpleFunction(name, 2, 4, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		sub, err := stringArg(args, 1)
		if err != nil {
			return Null, err
		}
		runes := []rune(s)
		n := len(runes)

		start := 0
		if last {
			start = n - 1
		}
		if len(args) >= 3 {
			if start, err = intArg(args, 2); err != nil {
				return Null, err
			}
		}
		count := n - start
		if last {
			count = start + 1
		}
		if len(args) == 4 {
			if count, err = intArg(args, 3); err != nil {
				return Null, err
			}
		}

		lo, hi := start, start+count
		if last {
			lo, hi = start-count+1, start+1
		}
		if n == 0 && lo == 0 && hi <= 0 {
			lo, hi = 0, 0
		}
		if count < 0 || lo < 0 || hi > n || lo > hi {
			return Null, argError("search window [%d, %d) out of range for length %d", lo, hi, n)
		}

		window := string(runes[lo:hi])
		var i int
		if last {
			i = strings.LastIndex(window, sub)
		} else {
			i = strings.Index(window, sub)
		}
		if i < 0 {
			return Null, nil
		}
		return NumberValue(float64(lo + utf8.RuneCountInString(window[:i]))), nil
	})
}

func splitAny(s string, seps []string) []string {
	if len(seps) == 0 {
		return []string{s}
	}
	var parts []string
	for {
		at, width := -1, 0
		for _, sep := range seps {
			if i := strings.Index(s, sep); i >= 0 && (at < 0 || i < at) {
				at, width = i, len(sep)
			}
		}
		if at < 0 {
			return append(parts, s)
		}
		parts = append(parts, s[:at])
		s = s[at+width:]
	}
}

// joinArgs accepts either one array or any number of scalars and returns
// their string forms.
func joinArgs(args []Value) ([]string, error) {
	if len(args) == 1 && args[0].kind == KindSequence {
		args = sequenceValues(args[0].q)
	}
	parts := make([]string, len(args))
	for i := range args {
		s, err := textArg(args, i)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return parts, nil
}

// formatComposite expands {N} and {N:spec} placeholders. {{ and }} are
// literal braces.
func formatComposite(format string, args []Value) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", argError("unclosed '{' at position %d", i)
			}
			body := format[i+1 : i+end]
			if strings.ContainsRune(body, '{') {
				return "", argError("nested '{' at position %d", i)
			}
			s, err := formatPlaceholder(body, args)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			i += end
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", argError("unmatched '}' at position %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func formatPlaceholder(body string, args []Value) (string, error) {
	index, spec, hasSpec := strings.Cut(body, ":")
	n, err := strconv.Atoi(strings.TrimSpace(index))
	if err != nil || n < 0 {
		return "", argError("invalid placeholder {%s}", body)
	}
	if n >= len(args) {
		return "", argError("placeholder {%d} has no argument", n)
	}
	v := args[n]
	if hasSpec {
		switch v.kind {
		case KindNumber:
			return formatNumberPattern(v.n, spec)
		case KindTable:
			t, err := timeFromTable(v.t)
			if err != nil {
				return "", err
			}
			return formatDate(t, spec), nil
		}
	}
	s, err := v.Text()
	if err != nil {
		return "", argError("placeholder {%d}: %s has no string form", n, v.kind)
	}
	return s, nil
}
