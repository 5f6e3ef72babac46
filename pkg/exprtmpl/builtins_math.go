package exprtmpl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

func mathFunc(name string, fn func(float64) float64) Function {
	return NewSimpleFunction(name, 1, 1, func(args ...Value) (Value, error) {
		x, err := numberArg(args, 0)
		if err != nil {
			return Null, err
		}
		return NumberValue(fn(x)), nil
	})
}

func registerMathFunctions(registry *DefaultFunctionRegistry) {
	registry.RegisterFunction(mathFunc("math.abs", math.Abs))
	registry.RegisterFunction(mathFunc("math.floor", math.Floor))
	registry.RegisterFunction(mathFunc("math.ceil", math.Ceil))
	registry.RegisterFunction(mathFunc("math.exp", math.Exp))
	registry.RegisterFunction(mathFunc("math.sqrt", math.Sqrt))
	registry.RegisterFunction(mathFunc("math.sin", math.Sin))
	registry.RegisterFunction(mathFunc("math.cos", math.Cos))
	registry.RegisterFunction(mathFunc("math.tan", math.Tan))
	registry.RegisterFunction(mathFunc("math.asin", math.Asin))
	registry.RegisterFunction(mathFunc("math.acos", math.Acos))

	// round() rounds half away from zero, optionally to a number of digits
	registry.RegisterFunction(NewSimpleFunction("math.round", 1, 2, func(args ...Value) (Value, error) {
		x, err := numberArg(args, 0)
		if err != nil {
			return Null, err
		}
		if len(args) == 1 {
			return NumberValue(math.Round(x)), nil
		}
		digits, err := intArg(args, 1)
		if err != nil {
			return Null, err
		}
		if digits < 0 || digits > 15 {
			return Null, argError("digits must be between 0 and 15, got %d", digits)
		}
		scale := math.Pow(10, float64(digits))
		return NumberValue(math.Round(x*scale) / scale), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("math.log", 1, 2, func(args ...Value) (Value, error) {
		x, err := numberArg(args, 0)
		if err != nil {
			return Null, err
		}
		if len(args) == 1 {
			return NumberValue(math.Log(x)), nil
		}
		base, err := numberArg(args, 1)
		if err != nil {
			return Null, err
		}
		return NumberValue(math.Log(x) / math.Log(base)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("math.atan", 1, 2, func(args ...Value) (Value, error) {
		y, err := numberArg(args, 0)
		if err != nil {
			return Null, err
		}
		if len(args) == 1 {
			return NumberValue(math.Atan(y)), nil
		}
		x, err := numberArg(args, 1)
		if err != nil {
			return Null, err
		}
		return NumberValue(math.Atan2(y, x)), nil
	}))

	registry.RegisterFunction(extremum("math.min", func(a, b float64) bool { return a < b }))
	registry.RegisterFunction(extremum("math.max", func(a, b float64) bool { return a > b }))

	registry.RegisterFunction(NewSimpleFunction("math.format", 2, 2, func(args ...Value) (Value, error) {
		x, err := numberArg(args, 0)
		if err != nil {
			return Null, err
		}
		pattern, err := stringArg(args, 1)
		if err != nil {
			return Null, err
		}
		s, err := formatNumberPattern(x, pattern)
		if err != nil {
			return Null, err
		}
		return StringValue(s), nil
	}))
}

// extremum accepts numbers or a single array of numbers.
func extremum(name string, better func(a, b float64) bool) Function {
	return NewSimpleFunction(name, 1, -1, func(args ...Value) (Value, error) {
		if len(args) == 1 && args[0].kind == KindSequence {
			args = sequenceValues(args[0].q)
			if len(args) == 0 {
				return Null, argError("%s of an empty array", name)
			}
		}
		best, err := numberArg(args, 0)
		if err != nil {
			return Null, err
		}
		for i := 1; i < len(args); i++ {
			x, err := numberArg(args, i)
			if err != nil {
				return Null, err
			}
			if better(x, best) {
				best = x
			}
		}
		return NumberValue(best), nil
	})
}

// formatNumberPattern formats x with either a printf verb ("%.2f"), a
// standard specifier (F2, N0, E3, P1, D4, G) or a digit pattern
// ("#,##0.00", "000").
func formatNumberPattern(x float64, pattern string) (string, error) {
	switch {
	case pattern == "":
		return formatNumber(x), nil
	case strings.HasPrefix(pattern, "%"):
		return formatPrintf(x, pattern)
	case !isLetter(pattern[0]) && strings.ContainsAny(pattern, "0#"):
		return formatDigitPattern(x, pattern), nil
	}

	spec := pattern[0]
	digits := -1
	if len(pattern) > 1 {
		n, err := strconv.Atoi(pattern[1:])
		if err != nil || n < 0 || n > 20 {
			return "", argError("invalid number format %q", pattern)
		}
		digits = n
	}
	withDefault := func(d int) int {
		if digits < 0 {
			return d
		}
		return digits
	}

	switch spec {
	case 'F', 'f':
		return strconv.FormatFloat(x, 'f', withDefault(2), 64), nil
	case 'N', 'n':
		return groupedNumber(x, withDefault(2)), nil
	case 'E', 'e':
		s := strconv.FormatFloat(x, 'e', withDefault(6), 64)
		if spec == 'E' {
			s = strings.ToUpper(s)
		}
		return s, nil
	case 'P', 'p':
		return strconv.FormatFloat(x*100, 'f', withDefault(2), 64) + "%", nil
	case 'D', 'd':
		if math.Abs(x-math.Round(x)) >= Epsilon {
			return "", argError("format %q needs an integer, got %s", pattern, formatNumber(x))
		}
		s := strconv.FormatInt(int64(math.Abs(math.Round(x))), 10)
		if pad := withDefault(0) - len(s); pad > 0 {
			s = strings.Repeat("0", pad) + s
		}
		if x < 0 {
			s = "-" + s
		}
		return s, nil
	case 'G', 'g':
		if digits <= 0 {
			return formatNumber(x), nil
		}
		return strconv.FormatFloat(x, 'g', digits, 64), nil
	}
	return "", argError("invalid number format %q", pattern)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func formatPrintf(x float64, pattern string) (string, error) {
	verb := pattern[len(pattern)-1]
	switch verb {
	case 'e', 'E', 'f', 'F', 'g', 'G':
		return fmt.Sprintf(pattern, x), nil
	case 'd':
		return fmt.Sprintf(pattern, int64(math.Round(x))), nil
	}
	return "", argError("unsupported format verb %q", string(verb))
}

func groupedNumber(x float64, digits int) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%v", number.Decimal(x,
		number.MinFractionDigits(digits),
		number.MaxFractionDigits(digits),
	))
}

// formatDigitPattern handles patterns built from 0 (required digit),
// # (optional digit), one '.' and ',' for grouping.
func formatDigitPattern(x float64, pattern string) string {
	intPart, fracPart, _ := strings.Cut(pattern, ".")
	minFrac := strings.Count(fracPart, "0")
	maxFrac := minFrac + strings.Count(fracPart, "#")
	minInt := strings.Count(intPart, "0")

	s := strconv.FormatFloat(math.Abs(x), 'f', maxFrac, 64)
	whole, frac, _ := strings.Cut(s, ".")
	for len(frac) > minFrac && strings.HasSuffix(frac, "0") {
		frac = frac[:len(frac)-1]
	}
	for len(whole) < minInt {
		whole = "0" + whole
	}
	if minInt == 0 && whole == "0" && frac != "" {
		whole = ""
	}
	if strings.Contains(intPart, ",") {
		whole = groupDigits(whole)
	}

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if x < 0 && strings.Trim(out, "0.,") != "" {
		out = "-" + out
	}
	return out
}

func groupDigits(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
