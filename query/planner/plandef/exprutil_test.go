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
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ExprString(t *testing.T) {
	tests := []struct {
		expr   Expr
		expStr string
		expKey string
	}{
		{Col("o.id"), "o.id", "o.id"},
		{Col("ID"), "ID", "id"},
		{&OuterRef{Table: "c", Name: "id"}, "$outer.c.id", "$outer.c.id"},
		{Lit(nil), "NULL", "NULL"},
		{Lit("it's"), "'it''s'", "'it''s'"},
		{Lit(1.5), "1.5", "f:1.5"},
		{Lit(true), "true", "true"},
		{Cmp(Col("a"), OpLessEq, Lit(3)), "a <= 3", "(a <= 3)"},
		{&And{Args: []Expr{Eq(Col("a"), Lit(1)), Eq(Col("b"), Lit(2))}}, "a = 1 AND b = 2", "and((a = 1), (b = 2))"},
		{&Or{Args: []Expr{Eq(Col("a"), Lit(1)), Eq(Col("b"), Lit(2))}}, "(a = 1 OR b = 2)", "or((a = 1), (b = 2))"},
		{&Not{Arg: Eq(Col("a"), Lit(1))}, "NOT (a = 1)", "not((a = 1))"},
		{&IsNull{Arg: Col("a"), Negated: true}, "a IS NOT NULL", "notnull(a)"},
		{&InList{Arg: Col("a"), Values: []Expr{Lit(1), Lit(2)}}, "a IN (1, 2)", "in(a; 1, 2)"},
		{&Func{Name: "UPPER", Args: []Expr{Col("a")}}, "UPPER(a)", "upper(a)"},
	}
	for _, test := range tests {
		t.Run(test.expStr, func(t *testing.T) {
			assert.Equal(t, test.expStr, test.expr.String())
			assert.Equal(t, test.expKey, ExprKey(test.expr))
		})
	}
	assert.Equal(t, "", ExprKey(nil))
}

func Test_CompareOp(t *testing.T) {
	op, ok := ParseCompareOp("!=")
	assert.True(t, ok)
	assert.Equal(t, OpNotEq, op)
	op, ok = ParseCompareOp(">=")
	assert.True(t, ok)
	assert.Equal(t, OpGreaterEq, op)
	_, ok = ParseCompareOp("=~")
	assert.False(t, ok)
	assert.False(t, OpEq.Inequality())
	assert.True(t, OpLess.Inequality())
	assert.Equal(t, OpGreater, OpLess.Reverse())
	assert.Equal(t, OpLessEq, OpGreaterEq.Reverse())
	assert.Equal(t, OpNotEq, OpNotEq.Reverse())
}

func Test_Conjuncts(t *testing.T) {
	a, b, c := Eq(Col("a"), Lit(1)), Eq(Col("b"), Lit(2)), Eq(Col("c"), Lit(3))
	nested := &And{Args: []Expr{a, &And{Args: []Expr{b, c}}}}
	assert.Equal(t, []Expr{a, b, c}, Conjuncts(nested))
	assert.Nil(t, Conjuncts(nil))
	assert.Nil(t, Conjoin(nil))
	assert.Equal(t, a, Conjoin([]Expr{a}))
	assert.Equal(t, "a = 1 AND b = 2 AND c = 3", Conjoin([]Expr{a, &And{Args: []Expr{b, c}}}).String())
}

func Test_ColumnRefs(t *testing.T) {
	e := &And{Args: []Expr{
		Eq(Col("o.cid"), &OuterRef{Table: "c", Name: "id"}),
		&Func{Name: "upper", Args: []Expr{Col("o.status")}},
		&Exists{Subquery: customersScan()},
	}}
	refs := ColumnRefs(e)
	assert.Equal(t, []*ColumnRef{Col("o.cid"), Col("o.status")}, refs)
	outer := OuterRefs(e)
	if assert.Len(t, outer, 1) {
		assert.Equal(t, "c.id", outer[0].Column().String())
	}
	assert.True(t, HasSubquery(e))
	assert.False(t, HasSubquery(Eq(Col("a"), Lit(1))))
}

func Test_TransformExpr(t *testing.T) {
	e := &And{Args: []Expr{Eq(Col("o.cid"), Col("c.id")), Cmp(Col("o.total"), OpGreater, Lit(5))}}
	res := TransformExpr(e, func(x Expr) Expr {
		if ref, ok := x.(*ColumnRef); ok && ref.Table == "c" {
			return &OuterRef{Table: ref.Table, Name: ref.Name}
		}
		return nil
	})
	assert.Equal(t, "o.cid = $outer.c.id AND o.total > 5", res.String())
	assert.Equal(t, "o.cid = c.id AND o.total > 5", e.String())
}

func Test_SplitEquiJoin(t *testing.T) {
	o, c := ordersScan().Schema(), customersScan().Schema()
	cond := &And{Args: []Expr{
		Eq(Col("c.id"), Col("o.cid")),
		Cmp(Col("o.total"), OpGreater, Lit(5)),
		Eq(Col("o.id"), Col("o.cid")),
	}}
	pairs, rest := SplitEquiJoin(cond, o, c)
	if assert.Len(t, pairs, 1) {
		assert.Equal(t, "o.cid", pairs[0].Left.String())
		assert.Equal(t, "c.id", pairs[0].Right.String())
	}
	assert.Equal(t, "o.total > 5 o.id = o.cid", joinExprs(rest, " "))
}

func Test_NullRejecting(t *testing.T) {
	c := customersScan().Schema()
	tests := []struct {
		expr Expr
		exp  bool
	}{
		{Eq(Col("c.name"), Lit("x")), true},
		{Cmp(Col("c.id"), OpGreater, Col("o.id")), true},
		{&IsNull{Arg: Col("c.id"), Negated: true}, true},
		{&IsNull{Arg: Col("c.id")}, false},
		{Eq(Col("o.status"), Lit("x")), false},
		{Eq(&Func{Name: "COALESCE", Args: []Expr{Col("c.name"), Lit("")}}, Lit("x")), false},
		{&InList{Arg: Col("c.id"), Values: []Expr{Lit(1)}}, true},
		{&Or{Args: []Expr{Eq(Col("c.id"), Lit(1)), Eq(Col("c.name"), Lit("x"))}}, true},
		{&Or{Args: []Expr{Eq(Col("c.id"), Lit(1)), Eq(Col("o.id"), Lit(1))}}, false},
		{&And{Args: []Expr{Eq(Col("o.id"), Lit(1)), Eq(Col("c.id"), Lit(1))}}, true},
		{&Not{Arg: Eq(Col("c.id"), Lit(1))}, false},
	}
	for _, test := range tests {
		t.Run(test.expr.String(), func(t *testing.T) {
			assert.Equal(t, test.exp, NullRejecting(test.expr, c))
		})
	}
}

func Test_ExprType(t *testing.T) {
	s := ordersScan().Schema()
	assert.Equal(t, TypeFloat, ExprType(Col("o.total"), s))
	assert.Equal(t, TypeUnknown, ExprType(Col("x.y"), s))
	assert.Equal(t, TypeString, ExprType(Lit("a"), s))
	assert.Equal(t, TypeBool, ExprType(Eq(Col("o.id"), Lit(1)), s))
	assert.Equal(t, TypeUnknown, ExprType(&Func{Name: "f"}, s))
}
