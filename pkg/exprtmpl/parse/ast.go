package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a node of a parsed expression.
type Expr interface {
	// Pos returns the byte offset of the node in the template source.
	Pos() int
	String() string
}

// NumberLit is a numeric literal. Hex literals are already converted.
type NumberLit struct {
	Offset int
	Value  float64
	Text   string
}

// StringLit is a quoted string literal. Raw keeps the quotes and the
// escape sequences exactly as written.
type StringLit struct {
	Offset int
	Raw    string
}

// BoolLit is true or false.
type BoolLit struct {
	Offset int
	Value  bool
}

// NullLit is the null keyword.
type NullLit struct {
	Offset int
}

// Ident is a root name looked up in the current scope.
type Ident struct {
	Offset int
	Name   string
}

// MemberExpr is x.name.
type MemberExpr struct {
	Offset int
	X      Expr
	Name   string
}

// IndexExpr is x[index].
type IndexExpr struct {
	Offset int
	X      Expr
	Index  Expr
}

// SliceExpr is x[from:to].
type SliceExpr struct {
	Offset int
	X      Expr
	From   Expr
	To     Expr
}

// CallExpr is a call of a builtin. Func holds the dotted name, e.g.
// "string.upper".
type CallExpr struct {
	Offset int
	Func   string
	Args   []Expr
}

// UnaryExpr is -x or not x.
type UnaryExpr struct {
	Offset int
	Op     string
	X      Expr
}

// BinaryExpr is x op y.
type BinaryExpr struct {
	Offset int
	Op     string
	X      Expr
	Y      Expr
}

// TableLit is {key: value, ...}. Each key is an *Ident or a *StringLit.
type TableLit struct {
	Offset int
	Keys   []Expr
	Values []Expr
}

// ArrayLit is [a, b, ...].
type ArrayLit struct {
	Offset int
	Elems  []Expr
}

func (n *NumberLit) Pos() int  { return n.Offset }
func (n *StringLit) Pos() int  { return n.Offset }
func (n *BoolLit) Pos() int    { return n.Offset }
func (n *NullLit) Pos() int    { return n.Offset }
func (n *Ident) Pos() int      { return n.Offset }
func (n *MemberExpr) Pos() int { return n.Offset }
func (n *IndexExpr) Pos() int  { return n.Offset }
func (n *SliceExpr) Pos() int  { return n.Offset }
func (n *CallExpr) Pos() int   { return n.Offset }
func (n *UnaryExpr) Pos() int  { return n.Offset }
func (n *BinaryExpr) Pos() int { return n.Offset }
func (n *TableLit) Pos() int   { return n.Offset }
func (n *ArrayLit) Pos() int   { return n.Offset }

func (n *NumberLit) String() string {
	if n.Text != "" {
		return n.Text
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (n *StringLit) String() string { return n.Raw }

func (n *BoolLit) String() string { return strconv.FormatBool(n.Value) }

func (n *NullLit) String() string { return "null" }

func (n *Ident) String() string { return n.Name }

func (n *MemberExpr) String() string { return n.X.String() + "." + n.Name }

func (n *IndexExpr) String() string {
	return fmt.Sprintf("%s[%s]", n.X, n.Index)
}

func (n *SliceExpr) String() string {
	return fmt.Sprintf("%s[%s:%s]", n.X, n.From, n.To)
}

func (n *CallExpr) String() string {
	return n.Func + "(" + joinExprs(n.Args) + ")"
}

func (n *UnaryExpr) String() string {
	if n.Op == "not" {
		return fmt.Sprintf("(not %s)", n.X)
	}
	return fmt.Sprintf("(%s%s)", n.Op, n.X)
}

func (n *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", n.X, n.Op, n.Y)
}

func (n *TableLit) String() string {
	parts := make([]string, len(n.Keys))
	for i := range n.Keys {
		parts[i] = n.Keys[i].String() + ": " + n.Values[i].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (n *ArrayLit) String() string {
	return "[" + joinExprs(n.Elems) + "]"
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
