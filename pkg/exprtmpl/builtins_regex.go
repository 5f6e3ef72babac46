package exprtmpl

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// regexCache holds compiled patterns keyed by source. Patterns are
// compiled in dot-matches-newline mode.
var regexCache sync.Map

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?s)" + pattern)
	if err != nil {
		return nil, argError("invalid regular expression %q: %v", pattern, err)
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// regexArgs extracts the subject string and compiled pattern.
func regexArgs(args []Value) (string, *regexp.Regexp, error) {
	s, err := stringArg(args, 0)
	if err != nil {
		return "", nil, err
	}
	pattern, err := stringArg(args, 1)
	if err != nil {
		return "", nil, err
	}
	re, err := compileRegex(pattern)
	if err != nil {
		return "", nil, err
	}
	return s, re, nil
}

// matchTable binds "*" to the whole match and each named group to its
// text. Unnamed groups are not captured.
func matchTable(re *regexp.Regexp, s string, loc []int) *MapTable {
	names := re.SubexpNames()
	t := NewMapTable(len(names) + 1)
	t.Set("*", StringValue(s[loc[0]:loc[1]]))
	for i := 1; i < len(names); i++ {
		if names[i] == "" {
			continue
		}
		if loc[2*i] < 0 {
			t.Set(names[i], Null)
			continue
		}
		t.Set(names[i], StringValue(s[loc[2*i]:loc[2*i+1]]))
	}
	return t
}

func registerRegexFunctions(registry *DefaultFunctionRegistry) {
	registry.RegisterFunction(NewSimpleFunction("regex.escape", 1, 1, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		return StringValue(regexp.QuoteMeta(s)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("regex.unescape", 1, 1, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		out, err := unescapeRegex(s)
		if err != nil {
			return Null, err
		}
		return StringValue(out), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("regex.remove", 2, 2, func(args ...Value) (Value, error) {
		s, re, err := regexArgs(args)
		if err != nil {
			return Null, err
		}
		return StringValue(re.ReplaceAllString(s, "")), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("regex.replace", 3, 3, func(args ...Value) (Value, error) {
		s, re, err := regexArgs(args)
		if err != nil {
			return Null, err
		}
		repl, err := stringArg(args, 2)
		if err != nil {
			return Null, err
		}
		return StringValue(re.ReplaceAllString(s, repl)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("regex.split", 2, 2, func(args ...Value) (Value, error) {
		s, re, err := regexArgs(args)
		if err != nil {
			return Null, err
		}
		return stringsValue(re.Split(s, -1)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("regex.match", 2, 2, func(args ...Value) (Value, error) {
		s, re, err := regexArgs(args)
		if err != nil {
			return Null, err
		}
		loc := re.FindStringSubmatchIndex(s)
		if loc == nil {
			return Null, nil
		}
		return TableValue(matchTable(re, s, loc)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("regex.matches", 2, 2, func(args ...Value) (Value, error) {
		s, re, err := regexArgs(args)
		if err != nil {
			return Null, err
		}
		all := re.FindAllStringSubmatchIndex(s, -1)
		out := make([]Value, len(all))
		for i, loc := range all {
			out[i] = TableValue(matchTable(re, s, loc))
		}
		return SequenceValue(NewListSequence(out...)), nil
	}))
}

// unescapeRegex reverses regex.escape and also decodes \n \r \t \f \v
// \xHH and \uXXXX.
func unescapeRegex(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", argError("trailing backslash in %q", s)
		}
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'x', 'u':
			width := 2
			if s[i] == 'u' {
				width = 4
			}
			if i+width >= len(s) {
				return "", argError("truncated escape in %q", s)
			}
			n, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil {
				return "", argError("invalid escape in %q", s)
			}
			b.WriteRune(rune(n))
			i += width
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}
