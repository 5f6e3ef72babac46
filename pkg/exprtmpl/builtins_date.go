package exprtmpl

import (
	"strconv"
	"strings"
	"time"
)

// commonDateFormats are tried in order by date.parse.
var commonDateFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"2006/01/02",
	"02.01.2006",
	"02.01.2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, 02 Jan 2006",
	"Mon, 02 Jan 2006 15:04:05",
	"Monday, 02 January 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// now is replaced in tests.
var now = time.Now

var dateKeys = []string{"year", "month", "day", "hour", "minute", "second", "millisecond", "dayofyear", "dayofweek"}

// dateTable exposes t as a table. dayofweek counts from Sunday = 0.
func dateTable(t time.Time) *MapTable {
	fields := []int{
		t.Year(), int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond() / int(time.Millisecond),
		t.YearDay(), int(t.Weekday()),
	}
	table := NewMapTable(len(dateKeys))
	for i, k := range dateKeys {
		table.Set(k, NumberValue(float64(fields[i])))
	}
	return table
}

func dateField(t Table, key string, def int) (int, error) {
	v, ok := t.Get(key)
	if !ok || v.kind == KindNull {
		return def, nil
	}
	n, err := v.AsIndex()
	if err != nil {
		return 0, argError("date field %q must be an integer", key)
	}
	return n, nil
}

// timeFromTable reads a table produced by dateTable (or built by hand)
// back into a local time.
func timeFromTable(t Table) (time.Time, error) {
	var f [7]int
	defaults := [7]int{1, 1, 1, 0, 0, 0, 0}
	for i := range f {
		n, err := dateField(t, dateKeys[i], defaults[i])
		if err != nil {
			return time.Time{}, err
		}
		f[i] = n
	}
	return time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], f[6]*int(time.Millisecond), time.Local), nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range commonDateFormats {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, argError("could not parse date %q", s)
}

// addMonths adds months clamping the day to the end of the target month,
// so Jan 31 + 1 month is the last day of February.
func addMonths(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}
	y, m, d := t.Date()
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, months, 0)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func registerDateFunctions(registry *DefaultFunctionRegistry) {
	registry.RegisterFunction(NewSimpleFunction("date.now", 0, 0, func(args ...Value) (Value, error) {
		return TableValue(dateTable(now())), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("date.parse", 1, 1, func(args ...Value) (Value, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return Null, err
		}
		t, err := parseDate(s)
		if err != nil {
			return Null, err
		}
		return TableValue(dateTable(t)), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("date.format", 1, 2, func(args ...Value) (Value, error) {
		table, err := tableArg(args, 0)
		if err != nil {
			return Null, err
		}
		t, err := timeFromTable(table)
		if err != nil {
			return Null, err
		}
		pattern := ""
		if len(args) == 2 {
			if pattern, err = stringArg(args, 1); err != nil {
				return Null, err
			}
		}
		return StringValue(formatDate(t, pattern)), nil
	}))

	// add() shifts a date by the fields of a delta table
	registry.RegisterFunction(NewSimpleFunction("date.add", 2, 2, func(args ...Value) (Value, error) {
		table, err := tableArg(args, 0)
		if err != nil {
			return Null, err
		}
		delta, err := tableArg(args, 1)
		if err != nil {
			return Null, err
		}
		t, err := timeFromTable(table)
		if err != nil {
			return Null, err
		}
		var d [7]int
		for i := range d {
			if d[i], err = dateField(delta, dateKeys[i], 0); err != nil {
				return Null, err
			}
		}
		t = addMonths(t, d[0]*12+d[1])
		t = t.AddDate(0, 0, d[2])
		t = t.Add(time.Duration(d[3])*time.Hour +
			time.Duration(d[4])*time.Minute +
			time.Duration(d[5])*time.Second +
			time.Duration(d[6])*time.Millisecond)
		return TableValue(dateTable(t)), nil
	}))
}

var monthNames = []string{"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

// formatDate renders t with a pattern of yyyy yy MMMM MMM MM M dddd ddd dd
// d HH H hh h mm m ss s fff ff f tt. Text in single quotes is copied
// verbatim. An empty pattern means "yyyy-MM-dd HH:mm:ss".
func formatDate(t time.Time, pattern string) string {
	if pattern == "" {
		pattern = "yyyy-MM-dd HH:mm:ss"
	}

	var b strings.Builder
	pad := func(n, width int) {
		s := strconv.Itoa(n)
		for i := len(s); i < width; i++ {
			b.WriteByte('0')
		}
		b.WriteString(s)
	}

	for i := 0; i < len(pattern); {
		c := pattern[i]
		if c == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				b.WriteString(pattern[i+1:])
				break
			}
			b.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}

		run := 1
		for i+run < len(pattern) && pattern[i+run] == c {
			run++
		}

		switch c {
		case 'y':
			if run <= 2 {
				pad(t.Year()%100, 2)
			} else {
				pad(t.Year(), run)
			}
		case 'M':
			switch {
			case run >= 4:
				b.WriteString(monthNames[t.Month()-1])
			case run == 3:
				b.WriteString(monthNames[t.Month()-1][:3])
			default:
				pad(int(t.Month()), run)
			}
		case 'd':
			switch {
			case run >= 4:
				b.WriteString(t.Weekday().String())
			case run == 3:
				b.WriteString(t.Weekday().String()[:3])
			default:
				pad(t.Day(), run)
			}
		case 'H':
			pad(t.Hour(), min(run, 2))
		case 'h':
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}
			pad(h, min(run, 2))
		case 'm':
			pad(t.Minute(), min(run, 2))
		case 's':
			pad(t.Second(), min(run, 2))
		case 'f':
			digits := min(run, 9)
			frac := t.Nanosecond()
			for k := 9; k > digits; k-- {
				frac /= 10
			}
			pad(frac, digits)
		case 't':
			if t.Hour() < 12 {
				b.WriteString("AM"[:min(run, 2)])
			} else {
				b.WriteString("PM"[:min(run, 2)])
			}
		default:
			b.WriteString(pattern[i : i+run])
		}
		i += run
	}
	return b.String()
}
