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

	"github.com/ebay/querygap/query/planner/cost"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	col = plandef.Col
	lit = plandef.Lit
	eq  = plandef.Eq
	cmp = plandef.Cmp
)

func ndv(v int64) *int64 { return &v }

func and(args ...plandef.Expr) plandef.Expr {
	return &plandef.And{Args: args}
}

func outer(qualified string) *plandef.OuterRef {
	ref := col(qualified)
	return &plandef.OuterRef{Table: ref.Table, Name: ref.Name}
}

func orders() *plandef.Scan {
	return plandef.NewScan("orders", "o",
		plandef.Column{Name: "id", Type: plandef.TypeInt},
		plandef.Column{Name: "cid", Type: plandef.TypeInt},
		plandef.Column{Name: "status", Type: plandef.TypeString},
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

// testData returns statistics for orders, customers and items, with orders.cid
// having the given NDV.
func testData(cidNDV int64) stats.Data {
	return stats.Data{
		Tables: []stats.Table{
			{
				Name:     "orders",
				RowCount: 1000000,
				Columns: []stats.Column{
					{Name: "id", NDV: ndv(1000000)},
					{Name: "cid", NDV: ndv(cidNDV)},
					{Name: "status", NDV: ndv(5)},
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
			{Table: "items", Columns: []string{"oid"}, RefTable: "orders", RefColumns: []string{"id"}},
		},
	}
}

func testEnvWith(t *testing.T, data stats.Data) *Env {
	snap, err := stats.NewSnapshot(data)
	require.NoError(t, err)
	return &Env{Stats: snap, Estimator: cost.NewModel(snap, nil)}
}

func testEnv(t *testing.T) *Env {
	return testEnvWith(t, testData(10000))
}

// apply runs the rule on n, checking that Match accepts it, and returns the
// result, which is nil if the rule declined.
func apply(t *testing.T, env *Env, rule *Rule, n plandef.Node) plandef.Node {
	t.Helper()
	require.True(t, rule.Match(env, n), "%v should match:\n%v", rule.Name, plandef.Format(n))
	res, err := rule.Apply(env, n)
	require.NoError(t, err)
	return res
}

// assertRewrite checks that the rule rewrites n into the plan formatted as
// exp.
func assertRewrite(t *testing.T, env *Env, rule *Rule, n plandef.Node, exp string) {
	t.Helper()
	res := apply(t, env, rule, n)
	if assert.NotNil(t, res, "%v declined", rule.Name) {
		assert.Equal(t, exp, plandef.Format(res))
	}
}

// assertDeclines checks that the rule either doesn't match n or declines to
// rewrite it.
func assertDeclines(t *testing.T, env *Env, rule *Rule, n plandef.Node) {
	t.Helper()
	if !rule.Match(env, n) {
		return
	}
	res, err := rule.Apply(env, n)
	assert.NoError(t, err)
	if res != nil {
		assert.Fail(t, "rule should have declined", "%v rewrote\n%vinto\n%v",
			rule.Name, plandef.Format(n), plandef.Format(res))
	}
}
