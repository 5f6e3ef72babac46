package exprtmpl

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/benjaminschreck/go-exprtmpl/pkg/exprtmpl/parse"
)

// evalFunc is a compiled expression. It reads scope and never modifies
// it, so one evalFunc is shared by every render of a template.
type evalFunc func(scope Table) (Value, error)

func constant(v Value) evalFunc {
	return func(Table) (Value, error) { return v, nil }
}

// exprCompiler turns expression ASTs of one source file into closures.
type exprCompiler struct {
	file      string
	src       string
	overrides []FunctionSource
	registry  FunctionSource
}

func (c *exprCompiler) at(offset int) location {
	line, col := parse.Position(c.src, offset)
	return location{file: c.file, offset: offset, line: line, column: col}
}

func (c *exprCompiler) errorf(kind error, offset int, format string, args ...interface{}) *CompileError {
	l := c.at(offset)
	return &CompileError{
		Kind:    kind,
		File:    l.file,
		Offset:  l.offset,
		Line:    l.line,
		Column:  l.column,
		Message: fmt.Sprintf(format, args...),
	}
}

func (c *exprCompiler) compile(e parse.Expr) (evalFunc, error) {
	switch n := e.(type) {
	case *parse.NumberLit:
		return constant(NumberValue(n.Value)), nil
	case *parse.StringLit:
		s, err := c.unquote(n)
		if err != nil {
			return nil, err
		}
		return constant(StringValue(s)), nil
	case *parse.BoolLit:
		return constant(BoolValue(n.Value)), nil
	case *parse.NullLit:
		return constant(Null), nil
	case *parse.Ident:
		name := n.Name
		return func(scope Table) (Value, error) {
			v, _ := scope.Get(name)
			return v, nil
		}, nil
	case *parse.MemberExpr:
		return c.compileMember(n)
	case *parse.IndexExpr:
		return c.compileIndex(n)
	case *parse.SliceExpr:
		return c.compileSlice(n)
	case *parse.CallExpr:
		return c.compileCall(n)
	case *parse.UnaryExpr:
		return c.compileUnary(n)
	case *parse.BinaryExpr:
		return c.compileBinary(n)
	case *parse.TableLit:
		return c.compileTable(n)
	case *parse.ArrayLit:
		return c.compileArray(n)
	}
	return nil, c.errorf(ErrSyntax, e.Pos(), "unsupported expression %s", e)
}

func (c *exprCompiler) compileAll(exprs []parse.Expr) ([]evalFunc, error) {
	out := make([]evalFunc, len(exprs))
	for i, e := range exprs {
		f, err := c.compile(e)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func (c *exprCompiler) compileMember(n *parse.MemberExpr) (evalFunc, error) {
	x, err := c.compile(n.X)
	if err != nil {
		return nil, err
	}
	name, loc := n.Name, c.at(n.Offset)
	return func(scope Table) (Value, error) {
		xv, err := x(scope)
		if err != nil {
			return Null, err
		}
		v, err := Member(xv, name)
		return v, loc.wrap(err)
	}, nil
}

func (c *exprCompiler) compileIndex(n *parse.IndexExpr) (evalFunc, error) {
	x, err := c.compile(n.X)
	if err != nil {
		return nil, err
	}
	index, err := c.compile(n.Index)
	if err != nil {
		return nil, err
	}
	loc := c.at(n.Offset)
	return func(scope Table) (Value, error) {
		xv, err := x(scope)
		if err != nil {
			return Null, err
		}
		iv, err := index(scope)
		if err != nil {
			return Null, err
		}
		v, err := Index(xv, iv)
		return v, loc.wrap(err)
	}, nil
}

func (c *exprCompiler) compileSlice(n *parse.SliceExpr) (evalFunc, error) {
	parts, err := c.compileAll([]parse.Expr{n.X, n.From, n.To})
	if err != nil {
		return nil, err
	}
	loc := c.at(n.Offset)
	return func(scope Table) (Value, error) {
		var vals [3]Value
		for i, f := range parts {
			v, err := f(scope)
			if err != nil {
				return Null, err
			}
			vals[i] = v
		}
		v, err := Slice(vals[0], vals[1], vals[2])
		return v, loc.wrap(err)
	}, nil
}

// compileCall binds the function at compile time. Arity is checked on
// every call since custom functions need not check it themselves.
func (c *exprCompiler) compileCall(n *parse.CallExpr) (evalFunc, error) {
	fn, err := resolveFunction(n.Func, c.overrides, c.registry)
	if err != nil {
		ce := err.(*CompileError)
		l := c.at(n.Offset)
		ce.File, ce.Offset, ce.Line, ce.Column = l.file, l.offset, l.line, l.column
		return nil, ce
	}
	args, err := c.compileAll(n.Args)
	if err != nil {
		return nil, err
	}
	name, loc := n.Func, c.at(n.Offset)
	minArgs, maxArgs := fn.MinArgs(), fn.MaxArgs()
	return func(scope Table) (Value, error) {
		if len(args) < minArgs || (maxArgs >= 0 && len(args) > maxArgs) {
			return Null, loc.wrap(&RenderError{
				Kind:     ErrInvalidArgument,
				Function: name,
				Message:  fmt.Sprintf("expects %s, got %d", arityText(minArgs, maxArgs), len(args)),
			})
		}
		vals := make([]Value, len(args))
		for i, a := range args {
			v, err := a(scope)
			if err != nil {
				return Null, err
			}
			vals[i] = v
		}
		v, err := fn.Call(vals...)
		if err != nil {
			return Null, loc.wrap(callError(name, err))
		}
		return v, nil
	}, nil
}

// callError names the failing function on err. A plain error from a
// custom function becomes an InvalidArgument render error.
func callError(name string, err error) error {
	re, ok := err.(*RenderError)
	if !ok {
		return &RenderError{Kind: ErrInvalidArgument, Function: name, Cause: err}
	}
	if re.Function != "" {
		return re
	}
	named := re.clone()
	named.Function = name
	return named
}

func (c *exprCompiler) compileUnary(n *parse.UnaryExpr) (evalFunc, error) {
	if lit, ok := n.X.(*parse.NumberLit); ok && n.Op == "-" {
		return constant(NumberValue(-lit.Value)), nil
	}
	x, err := c.compile(n.X)
	if err != nil {
		return nil, err
	}
	op := Negate
	if n.Op == "not" {
		op = Not
	}
	loc := c.at(n.Offset)
	return func(scope Table) (Value, error) {
		xv, err := x(scope)
		if err != nil {
			return Null, err
		}
		v, err := op(xv)
		return v, loc.wrap(err)
	}, nil
}

func (c *exprCompiler) compileBinary(n *parse.BinaryExpr) (evalFunc, error) {
	x, err := c.compile(n.X)
	if err != nil {
		return nil, err
	}
	y, err := c.compile(n.Y)
	if err != nil {
		return nil, err
	}
	loc := c.at(n.Offset)

	if n.Op == "and" || n.Op == "or" {
		// the right operand runs only when the left does not decide
		decides := n.Op == "or"
		return func(scope Table) (Value, error) {
			for _, operand := range [2]evalFunc{x, y} {
				v, err := operand(scope)
				if err != nil {
					return Null, err
				}
				b, err := v.AsBool()
				if err != nil {
					return Null, loc.wrap(err)
				}
				if b == decides {
					return BoolValue(decides), nil
				}
			}
			return BoolValue(!decides), nil
		}, nil
	}

	op, ok := binaryOperators[n.Op]
	if !ok {
		return nil, c.errorf(ErrSyntax, n.Offset, "unknown operator %q", n.Op)
	}
	return func(scope Table) (Value, error) {
		xv, err := x(scope)
		if err != nil {
			return Null, err
		}
		yv, err := y(scope)
		if err != nil {
			return Null, err
		}
		v, err := op(xv, yv)
		return v, loc.wrap(err)
	}, nil
}

// compileTable builds a fresh table on every evaluation.
func (c *exprCompiler) compileTable(n *parse.TableLit) (evalFunc, error) {
	keys := make([]string, len(n.Keys))
	for i, k := range n.Keys {
		switch key := k.(type) {
		case *parse.Ident:
			keys[i] = key.Name
		case *parse.StringLit:
			s, err := c.unquote(key)
			if err != nil {
				return nil, err
			}
			keys[i] = s
		default:
			return nil, c.errorf(ErrSyntax, k.Pos(), "table key must be a name or string, got %s", k)
		}
	}
	values, err := c.compileAll(n.Values)
	if err != nil {
		return nil, err
	}
	return func(scope Table) (Value, error) {
		t := NewMapTable(len(keys))
		for i, f := range values {
			v, err := f(scope)
			if err != nil {
				return Null, err
			}
			t.Set(keys[i], v)
		}
		return TableValue(t), nil
	}, nil
}

func (c *exprCompiler) compileArray(n *parse.ArrayLit) (evalFunc, error) {
	elems, err := c.compileAll(n.Elems)
	if err != nil {
		return nil, err
	}
	return func(scope Table) (Value, error) {
		out := make([]Value, len(elems))
		for i, f := range elems {
			v, err := f(scope)
			if err != nil {
				return Null, err
			}
			out[i] = v
		}
		return SequenceValue(NewListSequence(out...)), nil
	}, nil
}

// unquote strips the quotes of a string literal and resolves \f \n \r
// \t \" \' \\ and \uXXXX.
func (c *exprCompiler) unquote(n *parse.StringLit) (string, error) {
	raw := n.Raw
	if len(raw) < 2 {
		return "", c.errorf(ErrSyntax, n.Offset, "malformed string literal %s", raw)
	}
	body := raw[1 : len(raw)-1]
	if !strings.Contains(body, `\`) {
		return body, nil
	}

	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch != '\\' {
			b.WriteByte(ch)
			continue
		}
		// offset of the backslash in the source, for error reporting
		at := n.Offset + 1 + i
		i++
		if i >= len(body) {
			return "", c.errorf(ErrSyntax, at, "unterminated escape sequence")
		}
		switch body[i] {
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"', '\'', '\\':
			b.WriteByte(body[i])
		case 'u':
			if i+4 >= len(body) {
				return "", c.errorf(ErrSyntax, at, `\u needs four hex digits`)
			}
			r, err := strconv.ParseUint(body[i+1:i+5], 16, 32)
			if err != nil {
				return "", c.errorf(ErrSyntax, at, `invalid \u escape %q`, body[i-1:i+5])
			}
			b.WriteRune(rune(r))
			i += 4
		default:
			ch, _ := utf8.DecodeRuneInString(body[i:])
			return "", c.errorf(ErrSyntax, at, "unknown escape sequence \\%c", ch)
		}
	}
	return b.String(), nil
}
