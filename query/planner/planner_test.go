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

package planner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/qerrors"
	"github.com/ebay/querygap/query/planner/cost"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/query/rules"
	"github.com/ebay/querygap/stats"
	"github.com/ebay/querygap/util/clocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	col = plandef.Col
	eq  = plandef.Eq
)

func ndv(v int64) *int64 { return &v }

func orders() *plandef.Scan {
	return plandef.NewScan("orders", "o",
		plandef.Column{Name: "id", Type: plandef.TypeInt},
		plandef.Column{Name: "cid", Type: plandef.TypeInt},
		plandef.Column{Name: "total", Type: plandef.TypeFloat})
}

func customers() *plandef.Scan {
	return plandef.NewScan("customers", "c",
		plandef.Column{Name: "id", Type: plandef.TypeInt},
		plandef.Column{Name: "name", Type: plandef.TypeString})
}

func items() *plandef.Scan {
	return plandef.NewScan("items", "i",
		plandef.Column{Name: "id", Type: plandef.TypeInt},
		plandef.Column{Name: "oid", Type: plandef.TypeInt})
}

func testEnv(t *testing.T, cidNDV int64) (*rules.Env, *cost.Model) {
	snap, err := stats.NewSnapshot(stats.Data{
		Tables: []stats.Table{
			{
				Name:     "orders",
				RowCount: 1000000,
				Columns: []stats.Column{
					{Name: "id", NDV: ndv(1000000)},
					{Name: "cid", NDV: ndv(cidNDV)},
				},
				UniqueKeys: [][]string{{"id"}},
			},
			{
				Name:       "customers",
				RowCount:   10000,
				Columns:    []stats.Column{{Name: "id", NDV: ndv(10000)}},
				UniqueKeys: [][]string{{"id"}},
			},
			{
				Name:     "items",
				RowCount: 5000000,
				Columns:  []stats.Column{{Name: "oid", NDV: ndv(1000000)}},
			},
		},
		ForeignKeys: []stats.ForeignKey{
			{Table: "orders", Columns: []string{"cid"}, RefTable: "customers", RefColumns: []string{"id"}},
		},
	})
	require.NoError(t, err)
	model := cost.NewModel(snap, nil)
	return &rules.Env{Stats: snap, Estimator: model}, model
}

func threeWayJoin() plandef.Node {
	ordersCustomers := plandef.NewJoin(plandef.JoinInner, eq(col("o.cid"), col("c.id")), orders(), customers())
	return plandef.NewJoin(plandef.JoinInner, eq(col("i.oid"), col("o.id")), ordersCustomers, items())
}

func Test_OptimizeFKJoinElimination(t *testing.T) {
	env, model := testEnv(t, 10000)
	join := plandef.NewJoin(plandef.JoinInner, eq(col("o.cid"), col("c.id")), orders(), customers())
	plan := plandef.NewProject(plandef.Cols("o.id", "o.total"), join)
	res, err := Optimize(context.Background(), plan,
		[]*rules.Rule{rules.FKJoinElimination}, env, model, Options{CheckInvariants: true})
	require.NoError(t, err)
	assert.Equal(t, ""+
		"Project [o.id, o.total]\n"+
		"\tFilter o.cid IS NOT NULL\n"+
		"\t\tScan orders AS o\n", plandef.Format(res.Plan))
	assert.False(t, res.Partial)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Cost < model.Cost(plan))
	assert.Equal(t, model.Cost(res.Plan), res.Cost)
	assert.True(t, res.RulesFired["FK_JOIN_ELIMINATION"] >= 1)
	// The original plan remains in the search space next to the rewrite.
	assert.True(t, res.Space.Contains(`
Join inner ON o.cid = c.id
	Scan orders AS o
	Scan customers AS c
`))
}

func Test_OptimizeWithoutRules(t *testing.T) {
	env, model := testEnv(t, 10000)
	plan := threeWayJoin()
	res, err := Optimize(context.Background(), plan, nil, env, model, Options{})
	require.NoError(t, err)
	assert.Equal(t, plandef.Key(plan), plandef.Key(res.Plan))
	assert.Equal(t, model.Cost(plan), res.Cost)
	assert.False(t, res.Partial)
	assert.Equal(t, 5, res.Alternatives)
}

func Test_OptimizeJoinOrderNeverCostsMore(t *testing.T) {
	env, model := testEnv(t, 10000)
	plan := threeWayJoin()
	res, err := Optimize(context.Background(), plan,
		[]*rules.Rule{rules.JoinCommute, rules.JoinAssociate, rules.MultiJoinOptimize},
		env, model, Options{CheckInvariants: true})
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.True(t, res.Alternatives > 5)
	assert.True(t, res.Cost <= model.Cost(plan))
	assert.ElementsMatch(t, []string{"customers", "items", "orders"}, scanTables(res.Plan))
}

func scanTables(n plandef.Node) []string {
	var tables []string
	for _, scan := range plandef.BaseScans(n) {
		tables = append(tables, scan.Table)
	}
	return tables
}

func Test_OptimizeMaxAlternatives(t *testing.T) {
	env, model := testEnv(t, 10000)
	plan := threeWayJoin()
	res, err := Optimize(context.Background(), plan,
		[]*rules.Rule{rules.JoinCommute, rules.JoinAssociate}, env, model,
		Options{MaxAlternatives: 3})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.NotNil(t, res.Plan)
	assert.Equal(t, 5, res.Alternatives)
	if assert.Len(t, res.Warnings, 1) {
		assert.True(t, errors.Is(res.Warnings[0], qerrors.ErrCostBudgetExceeded))
	}
	assert.False(t, qerrors.Fatal(res.Warnings[0]))
}

func Test_OptimizeTimeout(t *testing.T) {
	env, model := testEnv(t, 10000)
	clock := clocks.NewMock()
	clock.AutoAdvance(time.Second)
	res, err := Optimize(context.Background(), threeWayJoin(),
		[]*rules.Rule{rules.JoinCommute, rules.JoinAssociate}, env, model,
		Options{Timeout: time.Millisecond, Clock: clock})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.NotNil(t, res.Plan)
	assert.True(t, res.Cost <= model.Cost(threeWayJoin()))
}

func Test_OptimizeCanceled(t *testing.T) {
	env, model := testEnv(t, 10000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Optimize(ctx, threeWayJoin(), []*rules.Rule{rules.JoinCommute}, env, model, Options{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func Test_OptimizeAddsLateralAlternative(t *testing.T) {
	env, model := testEnv(t, 400)
	window := plandef.NewWindow(plandef.WinRowNumber, nil,
		[]plandef.Expr{col("o.cid")},
		[]plandef.SortKey{{Expr: col("o.total"), Desc: true}},
		"rn", orders())
	project := plandef.NewProject(plandef.Cols("o.id", "o.cid", "rn"), window)
	plan := plandef.NewFilter(plandef.Cmp(col("rn"), plandef.OpLessEq, plandef.Lit(3)), project)
	res, err := Optimize(context.Background(), plan,
		[]*rules.Rule{rules.GroupedTopNToLateral}, env, model, Options{CheckInvariants: true})
	require.NoError(t, err)
	assert.True(t, res.RulesFired["GROUPED_TOPN_TO_LATERAL"] >= 1)
	var space strings.Builder
	res.Space.Debug(&space)
	assert.Contains(t, space.String(), "Correlate inner")
	assert.True(t, res.Cost <= model.Cost(plan))
}

func Test_OptimizeSharesCTEs(t *testing.T) {
	env, model := testEnv(t, 10000)
	cte := plandef.NewCTE("recent", plandef.NewFilter(
		plandef.Cmp(col("o.total"), plandef.OpGreater, plandef.Lit(100)), orders()))
	plan := plandef.NewSetOp(plandef.Union, false,
		plandef.NewProject(plandef.Cols("o.id"), cte),
		plandef.NewProject(plandef.Cols("o.cid"), cte))
	res, err := Optimize(context.Background(), plan, nil, env, model, Options{})
	require.NoError(t, err)
	var ctes []plandef.Node
	plandef.Walk(res.Plan, func(n plandef.Node) bool {
		if _, ok := n.(*plandef.CTE); ok {
			ctes = append(ctes, n)
		}
		return true
	})
	require.Len(t, ctes, 2)
	assert.True(t, ctes[0] == ctes[1])
	assert.Equal(t, plandef.Count(plan), plandef.Count(res.Plan))
}

func Test_OptimizeRejectsGroupRef(t *testing.T) {
	env, model := testEnv(t, 10000)
	_, err := Optimize(context.Background(), &plandef.GroupRef{ID: 1}, nil, env, model, Options{})
	assert.True(t, errors.Is(err, qerrors.ErrUnsupportedConstruct))
}

func Test_OptimizeSkipsFailingRules(t *testing.T) {
	env, model := testEnv(t, 10000)
	boom := &rules.Rule{
		Name:  "BOOM",
		Match: func(*rules.Env, plandef.Node) bool { return true },
		Apply: func(*rules.Env, plandef.Node) (plandef.Node, error) {
			panic("kaboom")
		},
	}
	plan := threeWayJoin()
	res, err := Optimize(context.Background(), plan, []*rules.Rule{boom, rules.JoinCommute}, env, model, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warnings)
	for _, w := range res.Warnings {
		assert.Contains(t, w.Error(), "rule BOOM panicked on ")
	}
	assert.True(t, res.RulesFired["JOIN_COMMUTE"] >= 1)
}

func Test_bindings(t *testing.T) {
	env, model := testEnv(t, 10000)
	res, err := Optimize(context.Background(), threeWayJoin(), nil, env, model, Options{})
	require.NoError(t, err)
	b := newBinder()
	top := res.Space.Root().Exprs[0]
	var formatted []string
	for _, n := range b.expr(top, 1) {
		formatted = append(formatted, plandef.Inline(n))
	}
	assert.Equal(t, []string{
		"Join inner ON i.oid = o.id (Group 3, Group 4)",
		"Join inner ON i.oid = o.id (Group 3, Scan items AS i)",
	}, formatted)
}
