// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plandef

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ebay/querygap/util/cmp"
)

// An Expr is a scalar expression evaluated against the rows of a node's
// inputs. Exprs are immutable.
type Expr interface {
	// Returns a human-readable single-line string describing the expression.
	String() string
	cmp.Key
	anExpr()
}

// ImplementExpr is a list of types that implement Expr.
// This serves as documentation and as a compile-time check.
var ImplementExpr = []Expr{
	new(ColumnRef),
	new(OuterRef),
	new(Literal),
	new(Compare),
	new(And),
	new(Or),
	new(Not),
	new(IsNull),
	new(InList),
	new(Func),
	new(Exists),
}

// ColumnRef refers to a column of the node's input(s) by qualifier and name.
type ColumnRef struct {
	Table string
	Name  string
}

// Col is a shorthand to create a ColumnRef from "table.name" or "name".
func Col(qualified string) *ColumnRef {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return &ColumnRef{Table: qualified[:i], Name: qualified[i+1:]}
	}
	return &ColumnRef{Name: qualified}
}

func (*ColumnRef) anExpr() {}

func (e *ColumnRef) String() string {
	if e.Table == "" {
		return e.Name
	}
	return e.Table + "." + e.Name
}

// Key implements cmp.Key.
func (e *ColumnRef) Key(b *strings.Builder) {
	b.WriteString(strings.ToLower(e.String()))
}

// OuterRef refers to a column of an enclosing scope: the outer row of a
// Correlate, or the outer query of an EXISTS subquery.
type OuterRef struct {
	Table string
	Name  string
}

func (*OuterRef) anExpr() {}

func (e *OuterRef) String() string {
	return "$outer." + (&ColumnRef{Table: e.Table, Name: e.Name}).String()
}

// Key implements cmp.Key.
func (e *OuterRef) Key(b *strings.Builder) {
	b.WriteString(strings.ToLower(e.String()))
}

// Column returns the reference this OuterRef makes, as seen from the outer
// scope.
func (e *OuterRef) Column() *ColumnRef {
	return &ColumnRef{Table: e.Table, Name: e.Name}
}

// Literal is a constant. Value is one of nil (SQL NULL), int64, float64,
// string, or bool.
type Literal struct {
	Value interface{}
}

// Lit is a shorthand to create a Literal. Any Go integer becomes an int64.
func Lit(v interface{}) *Literal {
	switch v := v.(type) {
	case int:
		return &Literal{Value: int64(v)}
	case int32:
		return &Literal{Value: int64(v)}
	case float32:
		return &Literal{Value: float64(v)}
	}
	return &Literal{Value: v}
}

func (*Literal) anExpr() {}

func (e *Literal) String() string {
	switch v := e.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprint(e.Value)
}

// Key implements cmp.Key.
func (e *Literal) Key(b *strings.Builder) {
	if _, isFloat := e.Value.(float64); isFloat {
		b.WriteString("f:")
	}
	b.WriteString(e.String())
}

// Int returns the literal's value if it's an integer.
func (e *Literal) Int() (int64, bool) {
	v, ok := e.Value.(int64)
	return v, ok
}

// CompareOp is a comparison operator.
type CompareOp int

// CompareOp values.
const (
	OpEq CompareOp = iota
	OpNotEq
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
)

var compareOpStrings = []string{"=", "<>", "<", "<=", ">", ">="}

func (op CompareOp) String() string {
	if int(op) < len(compareOpStrings) {
		return compareOpStrings[op]
	}
	return fmt.Sprintf("CompareOp(%d)", int(op))
}

// ParseCompareOp returns the operator written as s ("!=" is accepted for
// "<>").
func ParseCompareOp(s string) (CompareOp, bool) {
	if s == "!=" {
		return OpNotEq, true
	}
	for i, str := range compareOpStrings {
		if str == s {
			return CompareOp(i), true
		}
	}
	return 0, false
}

// Inequality returns true for every operator except OpEq.
func (op CompareOp) Inequality() bool {
	return op != OpEq
}

// Reverse returns the operator that gives the same result when the operands
// are swapped.
func (op CompareOp) Reverse() CompareOp {
	switch op {
	case OpLess:
		return OpGreater
	case OpLessEq:
		return OpGreaterEq
	case OpGreater:
		return OpLess
	case OpGreaterEq:
		return OpLessEq
	}
	return op
}

// Compare is a binary comparison.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

// Cmp is a shorthand to create a Compare.
func Cmp(left Expr, op CompareOp, right Expr) *Compare {
	return &Compare{Op: op, Left: left, Right: right}
}

// Eq is a shorthand to create an equality Compare.
func Eq(left, right Expr) *Compare {
	return Cmp(left, OpEq, right)
}

func (*Compare) anExpr() {}

func (e *Compare) String() string {
	return fmt.Sprintf("%v %v %v", e.Left, e.Op, e.Right)
}

// Key implements cmp.Key.
func (e *Compare) Key(b *strings.Builder) {
	b.WriteByte('(')
	e.Left.Key(b)
	b.WriteByte(' ')
	b.WriteString(e.Op.String())
	b.WriteByte(' ')
	e.Right.Key(b)
	b.WriteByte(')')
}

// And is a conjunction of two or more expressions.
type And struct {
	Args []Expr
}

func (*And) anExpr() {}

func (e *And) String() string {
	return joinExprs(e.Args, " AND ")
}

// Key implements cmp.Key.
func (e *And) Key(b *strings.Builder) {
	b.WriteString("and(")
	cmp.JoinKeys(b, e.Args, ", ")
	b.WriteByte(')')
}

// Or is a disjunction of two or more expressions.
type Or struct {
	Args []Expr
}

func (*Or) anExpr() {}

func (e *Or) String() string {
	return "(" + joinExprs(e.Args, " OR ") + ")"
}

// Key implements cmp.Key.
func (e *Or) Key(b *strings.Builder) {
	b.WriteString("or(")
	cmp.JoinKeys(b, e.Args, ", ")
	b.WriteByte(')')
}

// Not negates a boolean expression.
type Not struct {
	Arg Expr
}

func (*Not) anExpr() {}

func (e *Not) String() string {
	return fmt.Sprintf("NOT (%v)", e.Arg)
}

// Key implements cmp.Key.
func (e *Not) Key(b *strings.Builder) {
	b.WriteString("not(")
	e.Arg.Key(b)
	b.WriteByte(')')
}

// IsNull tests whether Arg is NULL, or with Negated, whether it is not NULL.
type IsNull struct {
	Arg     Expr
	Negated bool
}

func (*IsNull) anExpr() {}

func (e *IsNull) String() string {
	if e.Negated {
		return fmt.Sprintf("%v IS NOT NULL", e.Arg)
	}
	return fmt.Sprintf("%v IS NULL", e.Arg)
}

// Key implements cmp.Key.
func (e *IsNull) Key(b *strings.Builder) {
	if e.Negated {
		b.WriteString("notnull(")
	} else {
		b.WriteString("isnull(")
	}
	e.Arg.Key(b)
	b.WriteByte(')')
}

// InList tests whether Arg equals any of Values, or with Negated, none of them.
type InList struct {
	Arg     Expr
	Values  []Expr
	Negated bool
}

func (*InList) anExpr() {}

func (e *InList) String() string {
	op := "IN"
	if e.Negated {
		op = "NOT IN"
	}
	return fmt.Sprintf("%v %v (%v)", e.Arg, op, joinExprs(e.Values, ", "))
}

// Key implements cmp.Key.
func (e *InList) Key(b *strings.Builder) {
	if e.Negated {
		b.WriteString("notin(")
	} else {
		b.WriteString("in(")
	}
	e.Arg.Key(b)
	b.WriteString("; ")
	cmp.JoinKeys(b, e.Values, ", ")
	b.WriteByte(')')
}

// Func is a call to a scalar function or arithmetic operator, such as
// "upper", "+", or "coalesce".
type Func struct {
	Name string
	Args []Expr
}

func (*Func) anExpr() {}

func (e *Func) String() string {
	return fmt.Sprintf("%v(%v)", e.Name, joinExprs(e.Args, ", "))
}

// Key implements cmp.Key.
func (e *Func) Key(b *strings.Builder) {
	b.WriteString(strings.ToLower(e.Name))
	b.WriteByte('(')
	cmp.JoinKeys(b, e.Args, ", ")
	b.WriteByte(')')
}

// Exists is true if Subquery produces at least one row (or, with Negated, if
// it produces none). The subquery may contain OuterRefs to the enclosing
// node's input.
type Exists struct {
	Subquery Node
	Negated  bool
}

func (*Exists) anExpr() {}

func (e *Exists) String() string {
	op := "EXISTS"
	if e.Negated {
		op = "NOT EXISTS"
	}
	return fmt.Sprintf("%v(%v)", op, Inline(e.Subquery))
}

// Key implements cmp.Key.
func (e *Exists) Key(b *strings.Builder) {
	if e.Negated {
		b.WriteString("notexists(")
	} else {
		b.WriteString("exists(")
	}
	writeTreeKey(b, e.Subquery)
	b.WriteByte(')')
}

func joinExprs(exprs []Expr, sep string) string {
	strs := make([]string, len(exprs))
	for i, e := range exprs {
		strs[i] = e.String()
	}
	return strings.Join(strs, sep)
}

// ExprKey returns the identity of the expression.
func ExprKey(e Expr) string {
	if e == nil {
		return ""
	}
	return cmp.GetKey(e)
}

// EqualExprs returns true if the two expressions are identical.
func EqualExprs(a, b Expr) bool {
	return ExprKey(a) == ExprKey(b)
}
