package parse

import (
	"strconv"
	"strings"
)

var reserved = map[string]bool{
	"true":  true,
	"false": true,
	"null":  true,
	"and":   true,
	"or":    true,
	"not":   true,
}

// ParseExpression parses a standalone expression.
func ParseExpression(src string) (Expr, error) {
	return parseSpan("", src, 0, len(src))
}

// parseSpan parses src[start:end] as exactly one expression.
func parseSpan(file, src string, start, end int) (Expr, error) {
	tokens, err := Tokenize(file, src, start, end)
	if err != nil {
		return nil, err
	}
	p := &parser{file: file, src: src, tokens: tokens}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.current(); tok.Type != TokenEOF {
		return nil, p.errorf(tok, "unexpected %q after expression", tok.Value)
	}
	return expr, nil
}

// parser is a precedence-climbing recursive descent parser. From lowest
// to highest binding: or, and, comparison, concat (..), additive,
// multiplicative, power (right associative), unary, postfix.
type parser struct {
	file   string
	src    string
	tokens []Token
	pos    int
}

func (p *parser) current() Token {
	return p.peek(0)
}

func (p *parser) peek(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *parser) errorf(tok Token, format string, args ...interface{}) error {
	return newError(p.file, p.src, tok.Pos, format, args...)
}

func (p *parser) isOperator(values ...string) bool {
	tok := p.current()
	if tok.Type != TokenOperator {
		return false
	}
	for _, v := range values {
		if tok.Value == v {
			return true
		}
	}
	return false
}

func (p *parser) isKeyword(word string) bool {
	tok := p.current()
	return tok.Type == TokenIdentifier && tok.Value == word
}

func (p *parser) expect(typ TokenType) (Token, error) {
	tok := p.current()
	if tok.Type != typ {
		if tok.Type == TokenEOF {
			return tok, p.errorf(tok, "expected %s, found end of expression", typ)
		}
		return tok, p.errorf(tok, "expected %s, found %q", typ, tok.Value)
	}
	p.advance()
	return tok, nil
}

func (p *parser) parseExpression() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isOperator("||") {
		tok := p.current()
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Offset: tok.Pos, Op: "or", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") || p.isOperator("&&") {
		tok := p.current()
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Offset: tok.Pos, Op: "and", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.isOperator("==", "!=", "<", "<=", ">", ">=") {
		tok := p.current()
		p.advance()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Offset: tok.Pos, Op: tok.Value, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseConcat() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.isOperator("..") {
		tok := p.current()
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Offset: tok.Pos, Op: "..", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOperator("+", "-") {
		tok := p.current()
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Offset: tok.Pos, Op: tok.Value, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.isOperator("*", "/", "%") {
		tok := p.current()
		p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Offset: tok.Pos, Op: tok.Value, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if !p.isOperator("^") {
		return base, nil
	}
	tok := p.current()
	p.advance()
	exp, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Offset: tok.Pos, Op: "^", X: base, Y: exp}, nil
}

func (p *parser) parseUnary() (Expr, error) {
	tok := p.current()
	var op string
	switch {
	case p.isOperator("-"):
		op = "-"
	case p.isOperator("!"), p.isKeyword("not"):
		op = "not"
	default:
		return p.parsePostfix()
	}
	p.advance()
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryExpr{Offset: tok.Pos, Op: op, X: x}, nil
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		switch tok.Type {
		case TokenDot:
			p.advance()
			name, err := p.expect(TokenIdentifier)
			if err != nil {
				return nil, err
			}
			x = &MemberExpr{Offset: tok.Pos, X: x, Name: name.Value}
		case TokenLeftBracket:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if p.current().Type == TokenColon {
				p.advance()
				to, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(TokenRightBracket); err != nil {
					return nil, err
				}
				x = &SliceExpr{Offset: tok.Pos, X: x, From: index, To: to}
				continue
			}
			if _, err := p.expect(TokenRightBracket); err != nil {
				return nil, err
			}
			x = &IndexExpr{Offset: tok.Pos, X: x, Index: index}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.advance()
		return p.parseNumber(tok)

	case TokenString:
		p.advance()
		return &StringLit{Offset: tok.Pos, Raw: tok.Value}, nil

	case TokenIdentifier:
		switch tok.Value {
		case "true", "false":
			p.advance()
			return &BoolLit{Offset: tok.Pos, Value: tok.Value == "true"}, nil
		case "null":
			p.advance()
			return &NullLit{Offset: tok.Pos}, nil
		}
		if reserved[tok.Value] {
			return nil, p.errorf(tok, "unexpected keyword %q", tok.Value)
		}
		if name, n := p.callName(); n > 0 {
			for i := 0; i < n; i++ {
				p.advance()
			}
			return p.parseCall(tok, name)
		}
		p.advance()
		return &Ident{Offset: tok.Pos, Name: tok.Value}, nil

	case TokenLeftParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen); err != nil {
			return nil, err
		}
		return expr, nil

	case TokenLeftBracket:
		p.advance()
		elems, err := p.parseList(TokenRightBracket)
		if err != nil {
			return nil, err
		}
		return &ArrayLit{Offset: tok.Pos, Elems: elems}, nil

	case TokenLeftBrace:
		p.advance()
		return p.parseTable(tok)

	case TokenEOF:
		return nil, p.errorf(tok, "unexpected end of expression")
	}

	return nil, p.errorf(tok, "unexpected %q", tok.Value)
}

// callName looks ahead for NAME ('.' NAME)* '(' and returns the dotted
// name with the number of tokens it spans, or 0 when no call follows.
func (p *parser) callName() (string, int) {
	parts := []string{p.current().Value}
	i := 1
	for p.peek(i).Type == TokenDot && p.peek(i+1).Type == TokenIdentifier {
		parts = append(parts, p.peek(i+1).Value)
		i += 2
	}
	if p.peek(i).Type != TokenLeftParen {
		return "", 0
	}
	return strings.Join(parts, "."), i
}

func (p *parser) parseCall(start Token, name string) (Expr, error) {
	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, err
	}
	args, err := p.parseList(TokenRightParen)
	if err != nil {
		return nil, err
	}
	return &CallExpr{Offset: start.Pos, Func: name, Args: args}, nil
}

// parseList parses comma separated expressions up to and including the
// closing token.
func (p *parser) parseList(closing TokenType) ([]Expr, error) {
	var list []Expr
	if p.current().Type == closing {
		p.advance()
		return list, nil
	}
	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		list = append(list, expr)

		tok := p.current()
		if tok.Type == TokenComma {
			p.advance()
			continue
		}
		if tok.Type == closing {
			p.advance()
			return list, nil
		}
		return nil, p.errorf(tok, "expected ',' or %s", closing)
	}
}

func (p *parser) parseTable(start Token) (Expr, error) {
	table := &TableLit{Offset: start.Pos}
	if p.current().Type == TokenRightBrace {
		p.advance()
		return table, nil
	}
	for {
		tok := p.current()
		var key Expr
		switch tok.Type {
		case TokenIdentifier:
			key = &Ident{Offset: tok.Pos, Name: tok.Value}
		case TokenString:
			key = &StringLit{Offset: tok.Pos, Raw: tok.Value}
		default:
			return nil, p.errorf(tok, "expected table key, found %q", tok.Value)
		}
		p.advance()
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		table.Keys = append(table.Keys, key)
		table.Values = append(table.Values, value)

		tok = p.current()
		if tok.Type == TokenComma {
			p.advance()
			continue
		}
		if tok.Type == TokenRightBrace {
			p.advance()
			return table, nil
		}
		return nil, p.errorf(tok, "expected ',' or '}' in table literal")
	}
}

func (p *parser) parseNumber(tok Token) (Expr, error) {
	text := tok.Value
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		n, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid hex literal %q", text)
		}
		return &NumberLit{Offset: tok.Pos, Value: float64(n), Text: text}, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf(tok, "invalid number %q", text)
	}
	return &NumberLit{Offset: tok.Pos, Value: f, Text: text}, nil
}
