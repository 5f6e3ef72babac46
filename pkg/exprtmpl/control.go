package exprtmpl

import (
	"math"

	"github.com/benjaminschreck/go-exprtmpl/pkg/exprtmpl/parse"
)

// execFunc is a compiled statement. It appends output to st and reads
// names through scope.
type execFunc func(st *renderState, scope Table) error

type blockKind int

const (
	blockRoot blockKind = iota
	blockIf
	blockElseIf
	blockFor
	blockRange
)

func (k blockKind) String() string {
	switch k {
	case blockRoot:
		return "template"
	case blockIf:
		return "if"
	case blockElseIf:
		return "elseif"
	case blockFor, blockRange:
		return "for"
	}
	return "block"
}

// builder accumulates the statements of one open block. Conditionals
// fill then until else is seen; loops only use then.
type builder struct {
	kind   blockKind
	offset int
	then   []execFunc
	els    []execFunc
	inElse bool

	// close wraps the finished body into the node added to the parent
	close func(then, els execFunc) execFunc
}

func (b *builder) add(n execFunc) {
	if b.inElse {
		b.els = append(b.els, n)
	} else {
		b.then = append(b.then, n)
	}
}

func (b *builder) conditional() bool {
	return b.kind == blockIf || b.kind == blockElseIf
}

// includeFunc compiles the template at path, included from offset, and
// returns its body.
type includeFunc func(path string, offset int) (execFunc, error)

// assembler consumes the events of one source file and builds its
// executable.
type assembler struct {
	exprs   *exprCompiler
	include includeFunc
	stack   []*builder
}

func newAssembler(exprs *exprCompiler, include includeFunc) *assembler {
	return &assembler{
		exprs:   exprs,
		include: include,
		stack:   []*builder{{kind: blockRoot}},
	}
}

func (a *assembler) top() *builder {
	return a.stack[len(a.stack)-1]
}

func (a *assembler) push(b *builder) {
	a.stack = append(a.stack, b)
}

func (a *assembler) unbalanced(offset int, format string, args ...interface{}) error {
	return a.exprs.errorf(ErrUnbalancedBlock, offset, format, args...)
}

func (a *assembler) event(ev parse.Event) error {
	switch ev.Type {
	case parse.EventText:
		a.top().add(textNode(ev.Text))
		return nil
	case parse.EventExpr:
		f, err := a.exprs.compile(ev.Expr)
		if err != nil {
			return err
		}
		a.top().add(emitNode(f, a.exprs.at(ev.Offset)))
		return nil
	}

	switch d := ev.Directive.(type) {
	case *parse.If:
		return a.openIf(blockIf, d.Offset, d.Cond)
	case *parse.ElseIf:
		b := a.top()
		if !b.conditional() || b.inElse {
			return a.unbalanced(d.Offset, "elseif without a matching if")
		}
		b.inElse = true
		return a.openIf(blockElseIf, d.Offset, d.Cond)
	case *parse.Else:
		b := a.top()
		if !b.conditional() || b.inElse {
			return a.unbalanced(d.Offset, "else without a matching if")
		}
		b.inElse = true
		return nil
	case *parse.End:
		if len(a.stack) == 1 {
			return a.unbalanced(d.Offset, "end without an open block")
		}
		a.end()
		return nil
	case *parse.For:
		return a.openFor(d)
	case *parse.Range:
		return a.openRange(d)
	case *parse.Include:
		return a.openInclude(d)
	}
	return a.exprs.errorf(ErrSyntax, ev.Offset, "unknown directive %s", ev.Directive)
}

// end pops the innermost block into its parent. A block opened by elseif
// sits in the else arm of its parent, so closing it closes the parent
// too, and one end closes the whole chain.
func (a *assembler) end() {
	b := a.top()
	a.stack = a.stack[:len(a.stack)-1]

	var els execFunc
	if b.inElse {
		els = sequence(b.els)
	}
	a.top().add(b.close(sequence(b.then), els))

	if b.kind == blockElseIf {
		a.end()
	}
}

// finish checks that every block was closed and returns the body.
func (a *assembler) finish() (execFunc, error) {
	if len(a.stack) > 1 {
		b := a.top()
		return nil, a.unbalanced(b.offset, "%s block is never closed", b.kind)
	}
	return sequence(a.stack[0].then), nil
}

func (a *assembler) openIf(kind blockKind, offset int, cond parse.Expr) error {
	f, err := a.exprs.compile(cond)
	if err != nil {
		return err
	}
	loc := a.exprs.at(cond.Pos())
	a.push(&builder{
		kind:   kind,
		offset: offset,
		close: func(then, els execFunc) execFunc {
			return ifNode(f, loc, then, els)
		},
	})
	return nil
}

func (a *assembler) openFor(d *parse.For) error {
	x, err := a.exprs.compile(d.X)
	if err != nil {
		return err
	}
	names, loc := d.Names, a.exprs.at(d.X.Pos())
	a.push(&builder{
		kind:   blockFor,
		offset: d.Offset,
		close: func(body, _ execFunc) execFunc {
			return forNode(names, x, loc, body)
		},
	})
	return nil
}

func (a *assembler) openRange(d *parse.Range) error {
	exprs := []parse.Expr{d.From, d.To}
	if d.Step != nil {
		exprs = append(exprs, d.Step)
	}
	bounds, err := a.exprs.compileAll(exprs)
	if err != nil {
		return err
	}
	name, loc := d.Name, a.exprs.at(d.Offset)
	a.push(&builder{
		kind:   blockRange,
		offset: d.Offset,
		close: func(body, _ execFunc) execFunc {
			return rangeNode(name, bounds, loc, body)
		},
	})
	return nil
}

func (a *assembler) openInclude(d *parse.Include) error {
	var with evalFunc
	if d.With != nil {
		f, err := a.exprs.compile(d.With)
		if err != nil {
			return err
		}
		with = f
	}
	body, err := a.include(d.Path, d.Offset)
	if err != nil {
		return err
	}
	a.top().add(includeNode(body, with, a.exprs.at(d.Offset), d.Newline))
	return nil
}

func sequence(nodes []execFunc) execFunc {
	switch len(nodes) {
	case 0:
		return func(*renderState, Table) error { return nil }
	case 1:
		return nodes[0]
	}
	return func(st *renderState, scope Table) error {
		for _, n := range nodes {
			if err := n(st, scope); err != nil {
				return err
			}
		}
		return nil
	}
}

func textNode(s string) execFunc {
	return func(st *renderState, _ Table) error {
		st.out.WriteString(s)
		return nil
	}
}

func emitNode(f evalFunc, loc location) execFunc {
	return func(st *renderState, scope Table) error {
		v, err := f(scope)
		if err != nil {
			return err
		}
		s, err := v.Text()
		if err != nil {
			return loc.wrap(err)
		}
		st.out.WriteString(s)
		return nil
	}
}

func ifNode(cond evalFunc, loc location, then, els execFunc) execFunc {
	return func(st *renderState, scope Table) error {
		v, err := cond(scope)
		if err != nil {
			return err
		}
		ok, err := v.AsBool()
		if err != nil {
			return loc.wrap(err)
		}
		if ok {
			return then(st, scope)
		}
		if els != nil {
			return els(st, scope)
		}
		return nil
	}
}

// forNode iterates a table by key or a sequence by element. With two
// names a table binds key and value and a sequence binds index and
// element. One frame serves every iteration.
func forNode(names []string, x evalFunc, loc location, body execFunc) execFunc {
	pair := len(names) == 2
	return func(st *renderState, scope Table) error {
		v, err := x(scope)
		if err != nil {
			return err
		}

		switch v.kind {
		case KindTable:
			keys := v.t.Keys()
			f := st.frames.push(scope)
			defer st.frames.pop(f)
			for _, k := range keys {
				f.Set(names[0], StringValue(k))
				if pair {
					val, _ := v.t.Get(k)
					f.Set(names[1], val)
				}
				if err := body(st, f); err != nil {
					return err
				}
			}
			return nil

		case KindSequence:
			n := v.q.Len()
			f := st.frames.push(scope)
			defer st.frames.pop(f)
			for i := 0; i < n; i++ {
				elem, _ := v.q.Index(i)
				if pair {
					f.Set(names[0], NumberValue(float64(i)))
					f.Set(names[1], elem)
				} else {
					f.Set(names[0], elem)
				}
				if err := body(st, f); err != nil {
					return err
				}
			}
			return nil

		case KindNull:
			return loc.wrap(newRenderError(ErrNullOperand, "cannot iterate null"))
		}
		return loc.wrap(newRenderError(ErrTypeMismatch, "cannot iterate %s", v.kind))
	}
}

// rangeNode counts from bounds[0] to bounds[1] inclusive within Epsilon.
// The step is bounds[2] when given, otherwise 1 or -1 toward the end.
func rangeNode(name string, bounds []evalFunc, loc location, body execFunc) execFunc {
	return func(st *renderState, scope Table) error {
		var nums [3]float64
		for i, b := range bounds {
			v, err := b(scope)
			if err != nil {
				return err
			}
			n, err := v.AsNumber()
			if err != nil {
				return loc.wrap(err)
			}
			nums[i] = n
		}
		from, to, step := nums[0], nums[1], nums[2]
		if len(bounds) == 2 {
			step = 1
			if from > to {
				step = -1
			}
		}
		if math.Abs(step) < Epsilon {
			return loc.wrap(newRenderError(ErrDivideByZero, "range step is zero"))
		}

		f := st.frames.push(scope)
		defer st.frames.pop(f)
		for i := 0; ; i++ {
			x := from + float64(i)*step
			if step > 0 && !(x-to < Epsilon) || step < 0 && !(x-to > -Epsilon) {
				return nil
			}
			f.Set(name, NumberValue(x))
			if err := body(st, f); err != nil {
				return err
			}
		}
	}
}

// includeNode runs an included body. With parameters the body sees only
// the parameter table; without, it shares the caller's scope. The line
// terminator of the import line follows the included output.
func includeNode(body execFunc, with evalFunc, loc location, newline string) execFunc {
	return func(st *renderState, scope Table) error {
		if with == nil {
			if err := body(st, scope); err != nil {
				return err
			}
		} else {
			v, err := with(scope)
			if err != nil {
				return err
			}
			params, err := v.AsTable()
			if err != nil {
				return loc.wrap(err)
			}
			if err := runFramed(st, params, body); err != nil {
				return err
			}
		}
		st.out.WriteString(newline)
		return nil
	}
}

func runFramed(st *renderState, prev Table, body execFunc) error {
	f := st.frames.push(prev)
	defer st.frames.pop(f)
	return body(st, f)
}
