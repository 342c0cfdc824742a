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

package rules

import (
	"testing"

	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/stretchr/testify/assert"
)

func ordersCustomersJoin(typ plandef.JoinType) *plandef.Join {
	return plandef.NewJoin(typ, eq(col("o.cid"), col("c.id")), orders(), customers())
}

func Test_FKJoinEliminationInner(t *testing.T) {
	env := testEnv(t)
	plan := plandef.NewProject(plandef.Cols("o.id", "o.total"), ordersCustomersJoin(plandef.JoinInner))
	res := apply(t, env, FKJoinElimination, plan)
	if !assert.NotNil(t, res) {
		return
	}
	assert.Equal(t, ""+
		"Project [o.id, o.total]\n"+
		"\tFilter o.cid IS NOT NULL\n"+
		"\t\tScan orders AS o\n", plandef.Format(res))

	notNullFilters := 0
	plandef.Walk(res, func(n plandef.Node) bool {
		switch n := n.(type) {
		case *plandef.Filter:
			if isNull, ok := n.Predicate.(*plandef.IsNull); ok && isNull.Negated {
				assert.Equal(t, "o.cid", isNull.Arg.String())
				notNullFilters++
			}
		case *plandef.Join:
			assert.Fail(t, "unexpected join", "%v", n)
		case *plandef.Scan:
			assert.NotEqual(t, "customers", n.Table)
		}
		return true
	})
	assert.Equal(t, 1, notNullFilters)
}

func Test_FKJoinEliminationLeft(t *testing.T) {
	env := testEnv(t)
	plan := plandef.NewProject(plandef.Cols("o.id"), ordersCustomersJoin(plandef.JoinLeft))
	assertRewrite(t, env, FKJoinElimination, plan, ""+
		"Project [o.id]\n"+
		"\tScan orders AS o\n")
}

func Test_FKJoinEliminationAggregate(t *testing.T) {
	env := testEnv(t)
	project := plandef.NewProject(plandef.Cols("o.status", "o.total"), ordersCustomersJoin(plandef.JoinInner))
	plan := plandef.NewAggregate([]plandef.Expr{col("o.status")},
		[]plandef.AggCall{{Func: plandef.AggSum, Arg: col("o.total"), Alias: "revenue"}}, project)
	assertRewrite(t, env, FKJoinElimination, plan, ""+
		"Aggregate [o.status] [SUM(o.total) AS revenue]\n"+
		"\tProject [o.status, o.total]\n"+
		"\t\tFilter o.cid IS NOT NULL\n"+
		"\t\t\tScan orders AS o\n")
}

func Test_FKJoinEliminationRightProject(t *testing.T) {
	env := testEnv(t)
	right := plandef.NewProject(plandef.Cols("c.id"), customers())
	join := plandef.NewJoin(plandef.JoinLeft, eq(col("o.cid"), col("c.id")), orders(), right)
	assertRewrite(t, env, FKJoinElimination, plandef.NewProject(plandef.Cols("o.id"), join), ""+
		"Project [o.id]\n"+
		"\tScan orders AS o\n")
}

func Test_FKJoinEliminationInferredUnique(t *testing.T) {
	data := testData(10000)
	// Drop the declared unique key; NDV equal to the row count still makes
	// customers.id unique.
	data.Tables[1].UniqueKeys = nil
	env := testEnvWith(t, data)
	plan := plandef.NewProject(plandef.Cols("o.id"), ordersCustomersJoin(plandef.JoinLeft))
	assert.NotNil(t, apply(t, env, FKJoinElimination, plan))
}

func Test_FKJoinEliminationDeclines(t *testing.T) {
	env := testEnv(t)
	tests := []struct {
		name string
		plan plandef.Node
	}{
		{
			name: "right column projected",
			plan: plandef.NewProject(plandef.Cols("o.id", "c.name"), ordersCustomersJoin(plandef.JoinInner)),
		},
		{
			name: "right column in computed expression",
			plan: plandef.NewProject([]plandef.NamedExpr{{
				Expr:  &plandef.Func{Name: "concat", Args: []plandef.Expr{col("o.status"), col("c.name")}},
				Alias: "label",
			}}, ordersCustomersJoin(plandef.JoinLeft)),
		},
		{
			name: "full join",
			plan: plandef.NewProject(plandef.Cols("o.id"), ordersCustomersJoin(plandef.JoinFull)),
		},
		{
			name: "non-equi condition",
			plan: plandef.NewProject(plandef.Cols("o.id"), plandef.NewJoin(plandef.JoinInner,
				and(eq(col("o.cid"), col("c.id")), eq(col("c.name"), lit("bob"))), orders(), customers())),
		},
		{
			name: "filtered right side",
			plan: plandef.NewProject(plandef.Cols("o.id"), plandef.NewJoin(plandef.JoinInner,
				eq(col("o.cid"), col("c.id")), orders(),
				plandef.NewFilter(eq(col("c.name"), lit("bob")), customers()))),
		},
		{
			name: "not unique",
			plan: plandef.NewProject(plandef.Cols("c.id"), plandef.NewJoin(plandef.JoinInner,
				eq(col("c.id"), col("o.cid")), customers(), orders())),
		},
		{
			name: "no foreign key",
			plan: plandef.NewProject(plandef.Cols("i.id"), plandef.NewJoin(plandef.JoinInner,
				eq(col("i.qty"), col("c.id")), items(), customers())),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assertDeclines(t, env, FKJoinElimination, test.plan)
		})
	}
}

func Test_FKJoinEliminationNeedsForeignKey(t *testing.T) {
	data := testData(10000)
	data.ForeignKeys = nil
	env := testEnvWith(t, data)
	for _, typ := range []plandef.JoinType{plandef.JoinInner, plandef.JoinLeft} {
		assertDeclines(t, env, FKJoinElimination,
			plandef.NewProject(plandef.Cols("o.id"), ordersCustomersJoin(typ)))
	}
}
