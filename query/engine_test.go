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

package query

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/config"
	"github.com/ebay/querygap/qerrors"
	"github.com/ebay/querygap/query/gaps"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/query/rules"
	"github.com/ebay/querygap/stats"
	"github.com/ebay/querygap/util/clocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	col = plandef.Col
	eq  = plandef.Eq
	lit = plandef.Lit
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
		plandef.Column{Name: "oid", Type: plandef.TypeInt},
		plandef.Column{Name: "qty", Type: plandef.TypeInt})
}

func testStats(t *testing.T) *stats.Snapshot {
	snap, err := stats.NewSnapshot(stats.Data{
		Tables: []stats.Table{
			{
				Name:     "orders",
				RowCount: 1000000,
				Columns: []stats.Column{
					{Name: "id", NDV: ndv(1000000)},
					{Name: "cid", NDV: ndv(10000)},
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
	return snap
}

func threeWayJoin() plandef.Node {
	ordersCustomers := plandef.NewJoin(plandef.JoinInner, eq(col("o.cid"), col("c.id")), orders(), customers())
	return plandef.NewJoin(plandef.JoinInner, eq(col("i.oid"), col("o.id")), ordersCustomers, items())
}

// notExistsPlan selects the orders without any item of a larger quantity
// than the order's total.
func notExistsPlan() plandef.Node {
	sub := plandef.NewLimit(1, 0, plandef.NewFilter(
		plandef.Cmp(col("i.qty"), plandef.OpGreater, &plandef.OuterRef{Table: "o", Name: "total"}),
		items()))
	return plandef.NewFilter(&plandef.Exists{Subquery: sub, Negated: true}, orders())
}

func Test_RunSemiJoinInequality(t *testing.T) {
	e := New(config.Config{}, testStats(t), nil)
	analysis, res := e.Run(context.Background(), notExistsPlan(), Options{})
	require.Len(t, analysis.Gaps, 1)
	assert.Equal(t, gaps.SemiJoinInequality, analysis.Gaps[0].Gap)
	require.False(t, res.HasError(), "%v", res.Err)
	assert.Equal(t, gaps.Heuristic, res.Strategy)
	assert.Equal(t, ""+
		"Join anti ON i.qty > o.total\n"+
		"\tScan orders AS o\n"+
		"\tScan items AS i\n", plandef.Format(res.Plan))
	assert.Equal(t, []string{"JOIN_TO_SEMI_JOIN"}, res.RulesApplied)
	assert.Len(t, res.Steps, 1)
	assert.False(t, res.Partial)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Cost > 0)
	assert.True(t, res.OriginalCost > 0)
}

func Test_RunNoGaps(t *testing.T) {
	e := New(config.Config{}, testStats(t), nil)
	plan := plandef.NewLimit(5, 0, plandef.NewFilter(eq(col("o.id"), lit(42)), orders()))
	analysis, res := e.Run(context.Background(), plan, Options{})
	assert.Empty(t, analysis.Gaps)
	require.False(t, res.HasError())
	assert.Equal(t, gaps.None, res.Strategy)
	assert.True(t, res.Plan == plandef.Node(plan))
	assert.Equal(t, res.OriginalCost, res.Cost)
	assert.Equal(t, 0.0, res.Improvement())
}

func Test_OptimizeCostBasedFKJoinElimination(t *testing.T) {
	e := New(config.Config{}, testStats(t), nil)
	join := plandef.NewJoin(plandef.JoinInner, eq(col("o.cid"), col("c.id")), orders(), customers())
	plan := plandef.NewProject(plandef.Cols("o.id", "o.total"), join)
	res := e.Optimize(context.Background(), plan, gaps.CostBased,
		[]string{"fk_join_elimination", "NO_SUCH_RULE"}, Options{})
	require.False(t, res.HasError(), "%v", res.Err)
	assert.Equal(t, ""+
		"Project [o.id, o.total]\n"+
		"\tFilter o.cid IS NOT NULL\n"+
		"\t\tScan orders AS o\n", plandef.Format(res.Plan))
	assert.True(t, res.Cost < res.OriginalCost)
	assert.True(t, res.Improvement() > 0)
	assert.Contains(t, res.RulesApplied, "FK_JOIN_ELIMINATION")
	if assert.Len(t, res.Warnings, 1) {
		assert.True(t, errors.Is(res.Warnings[0], qerrors.ErrRuleNotFound))
	}
}

func Test_OptimizeCostBasedBudget(t *testing.T) {
	cfg := config.Config{CostBased: config.CostBased{MaxAlternatives: 3}}
	e := New(cfg, testStats(t), nil)
	before := testutil.ToFloat64(metrics.budgetExhausted)
	res := e.Optimize(context.Background(), threeWayJoin(), gaps.CostBased,
		[]string{"JOIN_COMMUTE", "JOIN_ASSOCIATE"}, Options{})
	require.False(t, res.HasError(), "%v", res.Err)
	assert.True(t, res.Partial)
	assert.NotNil(t, res.Plan)
	if assert.Len(t, res.Warnings, 1) {
		assert.True(t, errors.Is(res.Warnings[0], qerrors.ErrCostBudgetExceeded))
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.budgetExhausted))
	assert.Contains(t, res.String(), "(best found within budget)")
}

var flip = &rules.Rule{
	Name:        "FLIP",
	Description: "Swaps the inputs of every join.",
	Category:    rules.CategoryJoin,
	Match: func(env *rules.Env, n plandef.Node) bool {
		_, ok := n.(*plandef.Join)
		return ok
	},
	Apply: func(env *rules.Env, n plandef.Node) (plandef.Node, error) {
		j := n.(*plandef.Join)
		return plandef.NewJoin(j.Type, j.Condition, j.Right, j.Left), nil
	},
}

func Test_OptimizeHeuristicIterationCap(t *testing.T) {
	catalog, err := rules.NewCatalog(append(rules.Default().Rules(), flip)...)
	require.NoError(t, err)
	cfg := config.Config{Heuristic: config.Heuristic{MaxIterations: 3}}
	e := New(cfg, testStats(t), catalog)
	before := testutil.ToFloat64(metrics.iterationCapHits)
	join := plandef.NewJoin(plandef.JoinInner, eq(col("o.cid"), col("c.id")), orders(), customers())
	res := e.Optimize(context.Background(), join, gaps.Heuristic, []string{"FLIP"}, Options{})
	require.False(t, res.HasError())
	assert.True(t, res.Partial)
	assert.Equal(t, []string{"FLIP"}, res.RulesApplied)
	assert.Len(t, res.Steps, 3)
	assert.Equal(t, "Scan customers AS c", res.Plan.Inputs()[0].String())
	if assert.Len(t, res.Warnings, 1) {
		assert.True(t, errors.Is(res.Warnings[0], qerrors.ErrIterationLimitExceeded))
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.iterationCapHits))
}

func Test_OptimizeMissingStatistics(t *testing.T) {
	e := New(config.Config{}, nil, nil)
	res := e.Optimize(context.Background(), notExistsPlan(), gaps.None, nil, Options{})
	require.False(t, res.HasError())
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.True(t, errors.Is(w, qerrors.ErrStatisticsMissing))
		assert.False(t, qerrors.Fatal(w))
	}
	// The subquery's tables are reported before the tables below the
	// Filter that evaluates it.
	assert.Equal(t, "no statistics for table items, assuming 1000 rows: statistics missing",
		res.Warnings[0].Error())
	assert.True(t, strings.HasPrefix(res.Warnings[1].Error(), "no statistics for table orders"))
}

func Test_OptimizeErrors(t *testing.T) {
	e := New(config.Config{}, testStats(t), nil)
	res := e.Optimize(context.Background(), nil, gaps.Heuristic, nil, Options{})
	assert.True(t, res.HasError())
	assert.True(t, errors.Is(res.Err, qerrors.ErrParse))
	assert.Nil(t, res.Plan)

	res = e.Optimize(context.Background(), orders(), gaps.Strategy("GENETIC"), nil, Options{})
	assert.True(t, res.HasError())
	assert.EqualError(t, res.Err, `unknown optimizer strategy "GENETIC"`)
	assert.Nil(t, res.Plan)
	assert.Equal(t, 0.0, res.Cost)
	assert.Equal(t, "Strategy: GENETIC\nError: unknown optimizer strategy \"GENETIC\"\n", res.String())

	group := &plandef.GroupRef{ID: 1, Rows: 10}
	res = e.Optimize(context.Background(), group, gaps.CostBased, nil, Options{})
	assert.True(t, res.HasError())
	assert.True(t, errors.Is(res.Err, qerrors.ErrUnsupportedConstruct))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = e.Optimize(ctx, threeWayJoin(), gaps.CostBased, []string{"JOIN_COMMUTE"}, Options{})
	assert.True(t, res.HasError())
}

func Test_OptimizeAll(t *testing.T) {
	e := New(config.Config{}, testStats(t), nil)
	plans := []plandef.Node{notExistsPlan(), nil, threeWayJoin()}
	results := e.OptimizeAll(context.Background(), plans, gaps.Heuristic,
		[]string{"JOIN_TO_SEMI_JOIN", "JOIN_COMMUTE"}, 2, Options{})
	require.Len(t, results, 3)
	assert.False(t, results[0].HasError())
	assert.Equal(t, []string{"JOIN_TO_SEMI_JOIN"}, results[0].RulesApplied)
	assert.True(t, results[1].HasError())
	assert.False(t, results[2].HasError())
	assert.ElementsMatch(t, []string{"customers", "items", "orders"}, scanTables(results[2].Plan))
}

func scanTables(n plandef.Node) []string {
	var tables []string
	for _, scan := range plandef.BaseScans(n) {
		tables = append(tables, scan.Table)
	}
	return tables
}

func Test_RunDebugReport(t *testing.T) {
	e := New(config.Config{}, testStats(t), nil)
	out := strings.Builder{}
	_, res := e.Run(context.Background(), notExistsPlan(), Options{
		Debug:    true,
		DebugOut: &out,
		Clock:    clocks.NewMock(),
	})
	require.False(t, res.HasError())
	report := out.String()
	assert.Contains(t, report, "Started at: 1970-01-01 00:00:00.000000 UTC\n")
	assert.Contains(t, report, "1. SEMI_JOIN_INEQUALITY\n")
	assert.Contains(t, report, "Optimizer HEURISTIC, cost ")
	assert.Contains(t, report, "\tScan items AS i\n")
	assert.Contains(t, report, "Statistics Used:\n")
}

func Test_Analyze(t *testing.T) {
	e := New(config.Config{Gaps: config.Gaps{LargeTableRows: 100}}, testStats(t), nil)
	before := testutil.ToFloat64(metrics.gapsDetected.WithLabelValues("JOIN_ORDER"))
	analysis := e.Analyze(context.Background(), threeWayJoin(), Options{})
	assert.True(t, analysis.Has(gaps.JoinOrder))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.gapsDetected.WithLabelValues("JOIN_ORDER")))

	analysis = e.Analyze(context.Background(), threeWayJoin(), Options{Explain: "Leading(o c i)"})
	assert.False(t, analysis.Has(gaps.JoinOrder))
}
