package parse

import (
	"strings"
)

// EventType identifies the kind of an Event.
type EventType int

const (
	// EventText is literal content copied to the output unchanged.
	EventText EventType = iota
	// EventExpr is an ={expression} span.
	EventExpr
	// EventDirective is a control line.
	EventDirective
)

func (t EventType) String() string {
	switch t {
	case EventText:
		return "text"
	case EventExpr:
		return "expr"
	case EventDirective:
		return "directive"
	}
	return "unknown"
}

// Event is one element of a parsed template in source order.
type Event struct {
	Type      EventType
	Offset    int
	Text      string
	Expr      Expr
	Directive Directive
}

// Directive is the parsed content of a control line.
type Directive interface {
	Pos() int
	String() string
	directive()
}

// If opens a conditional.
type If struct {
	Offset int
	Cond   Expr
}

// ElseIf closes the current arm and opens a nested conditional.
type ElseIf struct {
	Offset int
	Cond   Expr
}

// Else switches the open conditional to its else arm.
type Else struct {
	Offset int
}

// End closes the innermost open block.
type End struct {
	Offset int
}

// For iterates a table or sequence with one or two bindings.
type For struct {
	Offset int
	Names  []string
	X      Expr
}

// Range iterates a numeric range. Step is nil for the two argument form.
type Range struct {
	Offset int
	Name   string
	From   Expr
	To     Expr
	Step   Expr
}

// Include renders another template. With is nil when no parameter table
// is given. Newline is the line terminator of the control line, written
// after the included output.
type Include struct {
	Offset  int
	Path    string
	With    Expr
	Newline string
}

func (d *If) Pos() int      { return d.Offset }
func (d *ElseIf) Pos() int  { return d.Offset }
func (d *Else) Pos() int    { return d.Offset }
func (d *End) Pos() int     { return d.Offset }
func (d *For) Pos() int     { return d.Offset }
func (d *Range) Pos() int   { return d.Offset }
func (d *Include) Pos() int { return d.Offset }

func (*If) directive()      {}
func (*ElseIf) directive()  {}
func (*Else) directive()    {}
func (*End) directive()     {}
func (*For) directive()     {}
func (*Range) directive()   {}
func (*Include) directive() {}

func (d *If) String() string     { return "if " + d.Cond.String() }
func (d *ElseIf) String() string { return "elseif " + d.Cond.String() }
func (d *Else) String() string   { return "else" }
func (d *End) String() string    { return "end" }

func (d *For) String() string {
	return "for " + strings.Join(d.Names, ", ") + " in " + d.X.String()
}

func (d *Range) String() string {
	s := "for " + d.Name + " = " + d.From.String() + ", " + d.To.String()
	if d.Step != nil {
		s += ", " + d.Step.String()
	}
	return s
}

func (d *Include) String() string {
	if d.With != nil {
		return "import " + d.Path + " with " + d.With.String()
	}
	return "import " + d.Path
}

// Template splits src into content and control lines and parses both.
//
// A line whose first character after spaces and tabs is '#' is a control
// line. Its line terminator is consumed, except for import which keeps it
// in Include.Newline. Everything else is content, in which ={expr} spans
// are interpolated.
func Template(file, src string) ([]Event, error) {
	s := &splitter{file: file, src: src}

	pending := 0
	for start := 0; start < len(src); {
		end, next := lineBounds(src, start)

		i := start
		for i < end && (src[i] == ' ' || src[i] == '\t') {
			i++
		}
		if i < end && src[i] == '#' {
			if err := s.content(pending, start); err != nil {
				return nil, err
			}
			d, err := s.directive(i, end)
			if err != nil {
				return nil, err
			}
			if inc, ok := d.(*Include); ok {
				inc.Newline = src[end:next]
			}
			s.events = append(s.events, Event{Type: EventDirective, Offset: i, Directive: d})
			pending = next
		}
		start = next
	}

	if err := s.content(pending, len(src)); err != nil {
		return nil, err
	}
	return s.events, nil
}

// lineBounds returns the end of the line starting at start, excluding the
// terminator, and the offset of the following line. CR, LF and CRLF are
// all accepted.
func lineBounds(src string, start int) (end, next int) {
	for i := start; i < len(src); i++ {
		switch src[i] {
		case '\n':
			return i, i + 1
		case '\r':
			if i+1 < len(src) && src[i+1] == '\n' {
				return i, i + 2
			}
			return i, i + 1
		}
	}
	return len(src), len(src)
}

type splitter struct {
	file   string
	src    string
	events []Event
}

func (s *splitter) content(start, end int) error {
	pos := start
	for pos < end {
		open := strings.Index(s.src[pos:end], "={")
		if open < 0 {
			break
		}
		open += pos
		if open > pos {
			s.text(pos, open)
		}

		exprStart := open + 2
		closing := expressionEnd(s.src, exprStart, end)
		if closing < 0 {
			return newError(s.file, s.src, open, "unterminated ={ expression")
		}
		if strings.TrimSpace(s.src[exprStart:closing]) == "" {
			return newError(s.file, s.src, open, "empty ={} expression")
		}
		expr, err := parseSpan(s.file, s.src, exprStart, closing)
		if err != nil {
			return err
		}
		s.events = append(s.events, Event{Type: EventExpr, Offset: exprStart, Expr: expr})
		pos = closing + 1
	}
	if pos < end {
		s.text(pos, end)
	}
	return nil
}

func (s *splitter) text(start, end int) {
	s.events = append(s.events, Event{Type: EventText, Offset: start, Text: s.src[start:end]})
}

// directive parses the control line src[hash:end], where src[hash] is '#'.
func (s *splitter) directive(hash, end int) (Directive, error) {
	tokens, err := Tokenize(s.file, s.src, hash+1, end)
	if err != nil {
		// import paths are free text and may not tokenize
		if kw, rest := s.keyword(hash+1, end); kw == "import" || kw == "include" {
			return s.include(hash, rest, end)
		}
		return nil, err
	}
	p := &parser{file: s.file, src: s.src, tokens: tokens}

	kw := p.current()
	if kw.Type != TokenIdentifier {
		return nil, p.errorf(kw, "expected directive after '#'")
	}

	var d Directive
	switch kw.Value {
	case "if", "elseif":
		p.advance()
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if kw.Value == "if" {
			d = &If{Offset: hash, Cond: cond}
		} else {
			d = &ElseIf{Offset: hash, Cond: cond}
		}
	case "else":
		p.advance()
		d = &Else{Offset: hash}
	case "end":
		p.advance()
		d = &End{Offset: hash}
	case "for":
		p.advance()
		d, err = s.parseFor(p, hash)
		if err != nil {
			return nil, err
		}
	case "import", "include":
		_, rest := s.keyword(hash+1, end)
		return s.include(hash, rest, end)
	default:
		return nil, p.errorf(kw, "unknown directive %q", kw.Value)
	}

	if tok := p.current(); tok.Type != TokenEOF {
		return nil, p.errorf(tok, "unexpected %q after %s", tok.Value, kw.Value)
	}
	return d, nil
}

func (s *splitter) parseFor(p *parser, hash int) (Directive, error) {
	first, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	names := []string{first.Value}

	if p.current().Type == TokenComma {
		p.advance()
		second, err := p.expect(TokenIdentifier)
		if err != nil {
			return nil, err
		}
		names = append(names, second.Value)
	}
	for _, n := range names {
		if reserved[n] {
			return nil, p.errorf(first, "cannot bind keyword %q", n)
		}
	}

	if len(names) == 1 && p.isOperator("=") {
		p.advance()
		bounds, err := p.parseRangeBounds()
		if err != nil {
			return nil, err
		}
		r := &Range{Offset: hash, Name: names[0], From: bounds[0], To: bounds[1]}
		if len(bounds) == 3 {
			r.Step = bounds[2]
		}
		return r, nil
	}

	if !p.isKeyword("in") {
		return nil, p.errorf(p.current(), "expected 'in' in for directive")
	}
	p.advance()
	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &For{Offset: hash, Names: names, X: x}, nil
}

func (p *parser) parseRangeBounds() ([]Expr, error) {
	var bounds []Expr
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, e)
		if p.current().Type != TokenComma {
			break
		}
		p.advance()
	}
	if len(bounds) < 2 || len(bounds) > 3 {
		return nil, p.errorf(p.current(), "range needs 2 or 3 bounds, got %d", len(bounds))
	}
	return bounds, nil
}

// keyword returns the first word of src[start:end] and the offset just
// after it.
func (s *splitter) keyword(start, end int) (string, int) {
	for start < end && (s.src[start] == ' ' || s.src[start] == '\t') {
		start++
	}
	i := start
	for i < end && s.src[i] != ' ' && s.src[i] != '\t' {
		i++
	}
	return s.src[start:i], i
}

// include parses "<path> [with <expr>]" from src[start:end]. The path is
// either quoted or runs up to the next blank.
func (s *splitter) include(hash, start, end int) (Directive, error) {
	for start < end && (s.src[start] == ' ' || s.src[start] == '\t') {
		start++
	}
	if start >= end {
		return nil, newError(s.file, s.src, hash, "import needs a template path")
	}

	var path string
	i := start
	if q := s.src[i]; q == '"' || q == '\'' {
		closing := strings.IndexByte(s.src[i+1:end], q)
		if closing < 0 {
			return nil, newError(s.file, s.src, i, "unterminated import path")
		}
		path = s.src[i+1 : i+1+closing]
		i += closing + 2
	} else {
		for i < end && s.src[i] != ' ' && s.src[i] != '\t' {
			i++
		}
		path = s.src[start:i]
	}

	inc := &Include{Offset: hash, Path: path}
	kw, rest := s.keyword(i, end)
	switch kw {
	case "":
		return inc, nil
	case "with":
		with, err := parseSpan(s.file, s.src, rest, end)
		if err != nil {
			return nil, err
		}
		inc.With = with
		return inc, nil
	}
	return nil, newError(s.file, s.src, i, "expected 'with' after import path, found %q", kw)
}
