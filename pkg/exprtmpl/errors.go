package exprtmpl

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Every CompileError and RenderError unwraps to exactly one
// of these, so callers can test with errors.Is.
var (
	ErrUnbalancedBlock = errors.New("unbalanced block")
	ErrMissingFunction = errors.New("missing function")
	ErrSyntax          = errors.New("syntax error")
	ErrLoad            = errors.New("load error")
	ErrCircularInclude = errors.New("circular include")

	ErrTypeMismatch     = errors.New("type mismatch")
	ErrNullOperand      = errors.New("null operand")
	ErrIndexOutOfDomain = errors.New("index out of domain")
	ErrDivideByZero     = errors.New("divide by zero")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnsupportedHost  = errors.New("unsupported host value")
)

// CompileError reports a template that cannot be compiled.
type CompileError struct {
	Kind    error
	File    string
	Offset  int
	Line    int
	Column  int
	Message string
	Cause   error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile error")
	if e.File != "" {
		b.WriteString(" in ")
		b.WriteString(e.File)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d, column %d", e.Line, e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *CompileError) Unwrap() []error {
	return nonNil(e.Kind, e.Cause)
}

// NewCompileError creates a compile error of the given kind.
func NewCompileError(kind error, file, message string) error {
	return &CompileError{Kind: kind, File: file, Message: message}
}

// RenderError reports a failure while rendering. The render that raised
// it produced no output.
type RenderError struct {
	Kind     error
	File     string
	Offset   int
	Line     int
	Column   int
	Function string
	Message  string
	Cause    error
}

func (e *RenderError) Error() string {
	var b strings.Builder
	b.WriteString("render error")
	if e.File != "" {
		b.WriteString(" in ")
		b.WriteString(e.File)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d, column %d", e.Line, e.Column)
	}
	if e.Function != "" {
		fmt.Fprintf(&b, " calling %s", e.Function)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *RenderError) Unwrap() []error {
	return nonNil(e.Kind, e.Cause)
}

// NewRenderError creates a render error of the given kind. Custom
// functions return it to report a typed failure.
func NewRenderError(kind error, message string) error {
	return &RenderError{Kind: kind, Message: message}
}

func (e *RenderError) clone() *RenderError {
	c := *e
	return &c
}

func newRenderError(kind error, format string, args ...interface{}) *RenderError {
	return &RenderError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func nonNil(errs ...error) []error {
	out := errs[:0:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// IsCompileError reports whether err is or wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// IsRenderError reports whether err is or wraps a RenderError.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

// location is a source position captured at compile time and attached to
// render errors raised by the node compiled there.
type location struct {
	file   string
	offset int
	line   int
	column int
}

// wrap attaches l to a copy of err. Functions may return a shared
// *RenderError, which is never written to.
func (l location) wrap(err error) error {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RenderError); ok {
		if re.File != "" || re.Line != 0 {
			return err
		}
		located := re.clone()
		located.File, located.Offset, located.Line, located.Column = l.file, l.offset, l.line, l.column
		return located
	}
	kind := ErrInvalidArgument
	var re *RenderError
	if errors.As(err, &re) {
		kind = re.Kind
	}
	return &RenderError{
		Kind:   kind,
		File:   l.file,
		Offset: l.offset,
		Line:   l.line,
		Column: l.column,
		Cause:  err,
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	errors []error
}

// NewMultiError creates a new multi-error collector
func NewMultiError() *MultiError {
	return &MultiError{}
}

// Add adds an error to the collection (ignores nil errors)
func (m *MultiError) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Len returns the number of errors
func (m *MultiError) Len() int {
	return len(m.errors)
}

// Err returns the multi-error or nil if empty
func (m *MultiError) Err() error {
	if len(m.errors) == 0 {
		return nil
	}
	if len(m.errors) == 1 {
		return m.errors[0]
	}
	return m
}

func (m *MultiError) Error() string {
	parts := make([]string, 0, len(m.errors)+1)
	parts = append(parts, fmt.Sprintf("%d errors occurred:", len(m.errors)))
	for _, err := range m.errors {
		parts = append(parts, "  - "+err.Error())
	}
	return strings.Join(parts, "\n")
}

func (m *MultiError) Unwrap() []error {
	return m.errors
}

// hostPanic carries a conversion failure out of a Table or Sequence
// adapter, whose Get and Index cannot return errors.
type hostPanic struct {
	err *RenderError
}

func panicHost(err *RenderError) {
	panic(hostPanic{err: err})
}

// RecoverError converts a value recovered from a host adapter panic into
// its *RenderError. nil yields nil. Any other panic value is raised again.
func RecoverError(r interface{}) error {
	switch v := r.(type) {
	case nil:
		return nil
	case hostPanic:
		return v.err
	}
	panic(r)
}
