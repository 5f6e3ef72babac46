package parse

import (
	"regexp"
)

// TokenType identifies the lexical class of a Token.
type TokenType int

const (
	TokenIdentifier TokenType = iota
	TokenNumber
	TokenString
	TokenOperator
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenLeftBrace
	TokenRightBrace
	TokenComma
	TokenColon
	TokenDot
	TokenEOF
)

func (t TokenType) String() string {
	switch t {
	case TokenIdentifier:
		return "identifier"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenOperator:
		return "operator"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenLeftBracket:
		return "'['"
	case TokenRightBracket:
		return "']'"
	case TokenLeftBrace:
		return "'{'"
	case TokenRightBrace:
		return "'}'"
	case TokenComma:
		return "','"
	case TokenColon:
		return "':'"
	case TokenDot:
		return "'.'"
	case TokenEOF:
		return "end of expression"
	}
	return "unknown"
}

// Token is one lexical unit of an expression. Pos is an absolute byte
// offset into the template source.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

var (
	identifierRegex  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*`)
	hexRegex         = regexp.MustCompile(`^0[xX][0-9a-fA-F]+`)
	numberRegex      = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?`)
	stringRegex      = regexp.MustCompile(`^"([^"\\]|\\.)*"`)
	singleQuoteRegex = regexp.MustCompile(`^'([^'\\]|\\.)*'`)
	operatorRegex    = regexp.MustCompile(`^(\.\.|==|!=|<=|>=|&&|\|\||\+|-|\*|/|%|\^|<|>|!|=)`)
)

var punctuation = map[byte]TokenType{
	'(': TokenLeftParen,
	')': TokenRightParen,
	'[': TokenLeftBracket,
	']': TokenRightBracket,
	'{': TokenLeftBrace,
	'}': TokenRightBrace,
	',': TokenComma,
	':': TokenColon,
	'.': TokenDot,
}

// Tokenize splits src[start:end] into tokens. Positions are reported
// relative to the beginning of src so errors point into the template.
func Tokenize(file, src string, start, end int) ([]Token, error) {
	var tokens []Token
	pos := start

	for pos < end {
		c := src[pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			pos++
			continue
		}

		remaining := src[pos:end]

		if match := identifierRegex.FindString(remaining); match != "" {
			tokens = append(tokens, Token{Type: TokenIdentifier, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := hexRegex.FindString(remaining); match != "" {
			tokens = append(tokens, Token{Type: TokenNumber, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := numberRegex.FindString(remaining); match != "" {
			tokens = append(tokens, Token{Type: TokenNumber, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if c == '"' || c == '\'' {
			re := stringRegex
			if c == '\'' {
				re = singleQuoteRegex
			}
			match := re.FindString(remaining)
			if match == "" {
				return nil, newError(file, src, pos, "unterminated string literal")
			}
			tokens = append(tokens, Token{Type: TokenString, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := operatorRegex.FindString(remaining); match != "" {
			tokens = append(tokens, Token{Type: TokenOperator, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if typ, ok := punctuation[c]; ok {
			tokens = append(tokens, Token{Type: typ, Value: string(c), Pos: pos})
			pos++
			continue
		}

		return nil, newError(file, src, pos, "unexpected character %q", rune(c))
	}

	tokens = append(tokens, Token{Type: TokenEOF, Pos: end})
	return tokens, nil
}

// expressionEnd returns the offset of the '}' that closes an expression
// starting at start. Nested braces and string literals are skipped.
func expressionEnd(src string, start, end int) int {
	depth := 0
	for i := start; i < end; i++ {
		switch src[i] {
		case '"', '\'':
			quote := src[i]
			for i++; i < end && src[i] != quote; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}
