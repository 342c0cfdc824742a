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

func samplePlan() Node {
	return NewLimit(10, 0,
		NewProject(Cols("o.id", "c.name"),
			NewJoin(JoinInner, Eq(Col("o.cid"), Col("c.id")),
				NewFilter(Eq(Col("o.status"), Lit("open")), ordersScan()),
				customersScan())))
}

func Test_Format(t *testing.T) {
	assert.Equal(t, ""+
		"Limit 10\n"+
		"\tProject [o.id, c.name]\n"+
		"\t\tJoin inner ON o.cid = c.id\n"+
		"\t\t\tFilter o.status = 'open'\n"+
		"\t\t\t\tScan orders AS o\n"+
		"\t\t\tScan customers AS c\n",
		Format(samplePlan()))
}

func Test_Inline(t *testing.T) {
	assert.Equal(t,
		"Filter o.status = 'open' (Scan orders AS o)",
		Inline(NewFilter(Eq(Col("o.status"), Lit("open")), ordersScan())))
	assert.Equal(t,
		"Join inner (Scan orders AS o, Scan customers AS c)",
		Inline(NewJoin(JoinInner, nil, ordersScan(), customersScan())))
}

func Test_Key(t *testing.T) {
	assert.Equal(t,
		"filter (o.status = 'open') (scan orders as o [id cid status total])",
		Key(NewFilter(Eq(Col("o.status"), Lit("open")), ordersScan())))
	assert.Equal(t, Key(samplePlan()), Key(samplePlan()))
	assert.Equal(t, Fingerprint(samplePlan()), Fingerprint(samplePlan()))
	other := NewLimit(11, 0, samplePlan().Inputs()[0])
	assert.NotEqual(t, Key(samplePlan()), Key(other))
	assert.NotEqual(t, Fingerprint(samplePlan()), Fingerprint(other))
	assert.True(t, Equal(samplePlan(), samplePlan()))
	assert.False(t, Equal(samplePlan(), other))
	assert.False(t, Equal(samplePlan(), nil))
	assert.True(t, Equal(nil, nil))
}

func Test_KeyDistinguishesFloatLiterals(t *testing.T) {
	a := NewFilter(Eq(Col("o.total"), Lit(2)), ordersScan())
	b := NewFilter(Eq(Col("o.total"), Lit(2.0)), ordersScan())
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, Key(a), Key(b))
}

func Test_TreeString(t *testing.T) {
	s := TreeString(samplePlan())
	assert.Contains(t, s, "Limit 10\n")
	assert.Contains(t, s, "Project [o.id, c.name]")
	assert.Contains(t, s, "o.status, o.total]")
	assert.Contains(t, s, "Scan customers AS c")
	assert.Contains(t, s, "└──")
}

func Test_Walk(t *testing.T) {
	var ops []string
	Walk(samplePlan(), func(n Node) bool {
		ops = append(ops, n.String())
		_, isFilter := n.(*Filter)
		return !isFilter
	})
	assert.Equal(t, []string{
		"Limit 10",
		"Project [o.id, c.name]",
		"Join inner ON o.cid = c.id",
		"Filter o.status = 'open'",
		"Scan customers AS c",
	}, ops)
	assert.Equal(t, 6, Count(samplePlan()))
}

func Test_NodeExprs(t *testing.T) {
	w := NewWindow(WinSum, []Expr{Col("o.total")}, []Expr{Col("o.cid")},
		[]SortKey{{Expr: Col("o.id")}}, "running", ordersScan())
	assert.Equal(t, "o.total o.cid o.id", joinExprs(NodeExprs(w), " "))
	a := NewAggregate([]Expr{Col("o.cid")}, []AggCall{{Func: AggCount, Alias: "n"},
		{Func: AggMin, Arg: Col("o.total"), Alias: "m"}}, ordersScan())
	assert.Equal(t, "o.cid o.total", joinExprs(NodeExprs(a), " "))
	assert.Nil(t, NodeExprs(ordersScan()))
	assert.Nil(t, NodeExprs(NewJoin(JoinInner, nil, ordersScan(), customersScan())))
}

func Test_Subqueries(t *testing.T) {
	sub := NewFilter(Eq(Col("o.cid"), &OuterRef{Table: "c", Name: "id"}), ordersScan())
	f := NewFilter(&And{Args: []Expr{
		Eq(Col("c.name"), Lit("x")),
		&Exists{Subquery: sub, Negated: true},
	}}, customersScan())
	subs := Subqueries(f)
	if assert.Len(t, subs, 1) {
		assert.True(t, subs[0].Subquery == Node(sub))
		assert.True(t, subs[0].Negated)
	}
	assert.Equal(t,
		"c.name = 'x' AND NOT EXISTS(Filter o.cid = $outer.c.id (Scan orders AS o))",
		f.Predicate.String())
}

func Test_BaseScans(t *testing.T) {
	c := NewCorrelate(JoinInner, customersScan(), NewLimit(1, 0, ordersScan()))
	scans := BaseScans(NewProject(Cols("c.id"), c))
	if assert.Len(t, scans, 1) {
		assert.Equal(t, "customers", scans[0].Table)
	}
	assert.Len(t, BaseScans(samplePlan()), 2)
}

func Test_TransformSharesUnchangedAndCTEs(t *testing.T) {
	cte := NewCTE("recent", NewFilter(Eq(Col("o.status"), Lit("open")), ordersScan()))
	plan := NewSetOp(Union, true, NewLimit(5, 0, cte), cte)
	calls := 0
	res := Transform(plan, func(n Node) Node {
		if f, ok := n.(*Filter); ok {
			calls++
			return NewFilter(Eq(Col("o.status"), Lit("closed")), f.Input)
		}
		return nil
	})
	assert.Equal(t, 1, calls)
	u := res.(*SetOp)
	lim := u.Input[0].(*Limit)
	assert.True(t, lim.Input == u.Input[1], "CTE should remain shared")
	assert.Equal(t, "Filter o.status = 'closed'", u.Input[1].Inputs()[0].String())

	unchanged := Transform(plan, func(Node) Node { return nil })
	assert.True(t, unchanged == Node(plan))
}
