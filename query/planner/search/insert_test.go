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

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_IntoExpr_String(t *testing.T) {
	expr := rel("InnerJoin",
		rel("InnerJoin",
			rel("Scan orders"),
			rel("Scan users")),
		&Group{ID: 5})
	assert.Equal(t, `
InnerJoin
	InnerJoin
		Scan orders
		Scan users
	Group 5
`, "\n"+expr.String())
}

// The space checks its invariants after every insert, so most of these tests
// only look at the outcome.

func Test_insertEquivalent_newAlternative(t *testing.T) {
	space := selfJoinSpace(t)
	expr := space.insertEquivalent(rel("Materialized"), space.root.Exprs[0])
	assert.Equal(t, "Materialized", expr.String())
	assert.Equal(t, space.root, expr.Group)
	assert.Len(t, space.root.Exprs, 2)
}

func Test_insertEquivalent_duplicate(t *testing.T) {
	space := selfJoinSpace(t)
	existing := space.groups()[2].Exprs[0]
	expr := space.insertEquivalent(
		rel("InnerJoin", rel("Scan orders"), rel("Scan items")),
		existing)
	assert.Equal(t, existing, expr)
	assert.Equal(t, "InnerJoin [1 2]", expr.String())
	assert.Len(t, existing.Group.Exprs, 1)
	assert.Equal(t, 4, space.Len())
}

func Test_insertEquivalent_mixedInputs(t *testing.T) {
	space := selfJoinSpace(t)
	items := space.groups()[1]
	expr := space.insertEquivalent(
		rel("MultiJoin",
			rel("Scan orders"), // found in group 1
			rel("Scan users"),  // new group 5
			items),             // group 2 as is
		space.root.Exprs[0])
	assert.Equal(t, "MultiJoin [1 5 2]", expr.String())
	assert.Equal(t, space.root, expr.Group)
	assert.Len(t, space.groups(), 5)
	var inputs []string
	for _, input := range expr.Inputs {
		require.Len(t, input.Exprs, 1)
		inputs = append(inputs, input.Exprs[0].String())
	}
	assert.Equal(t, []string{"Scan orders", "Scan users", "Scan items"}, inputs)
}

func Test_insertEquivalent_mergesGroups(t *testing.T) {
	space := selfJoinSpace(t)
	orders := space.root.Exprs[0].Inputs[0]
	inner := space.root.Exprs[0].Inputs[1]

	// An index scan of orders joined to items lands in group 3, with the
	// index scan in a group of its own.
	expr := space.insertEquivalent(
		rel("InnerJoin",
			rel("IndexScan orders"),
			rel("Scan items")),
		inner.Exprs[0])
	assert.Equal(t, `
Group 1 []
	Scan orders
Group 2 []
	Scan items
Group 5 []
	IndexScan orders
Group 3 []
	InnerJoin [1 2]
	InnerJoin [5 2]
Group 4 []
	InnerJoin [1 3]
`, "\n"+space.String())
	indexGroup := expr.Inputs[0]
	index := indexGroup.Exprs[0]
	assert.Equal(t, "IndexScan orders", index.String())

	// Learning that the index scan is equivalent to the table scan merges
	// group 5 into group 1, and the two joins in group 3 collapse into one.
	space.insertEquivalent(rel("Scan orders"), index)
	assert.Equal(t, `
Group 1 []
	Scan orders
	IndexScan orders
Group 2 []
	Scan items
Group 3 []
	InnerJoin [1 2]
Group 4 []
	InnerJoin [1 3]
`, "\n"+space.String())

	// The merged group can still be used as an input.
	assert.Equal(t, orders, indexGroup.mergedInto)
	filter := space.insertEquivalent(rel("Filter", indexGroup), space.root.Exprs[0])
	assert.Equal(t, "Filter [1]", filter.String())
}

func Test_insertEquivalent_ownGroupAsInput(t *testing.T) {
	space := selfJoinSpace(t)
	from := space.root.Exprs[0]
	expr := space.insertEquivalent(rel("Filter", space.root), from)
	assert.Equal(t, from, expr)
	assert.Len(t, space.root.Exprs, 1)
}

func Test_insertEquivalent_mergeIntoInput(t *testing.T) {
	space := newSpace(t, rel("Filter", rel("Scan orders")))
	filter := space.root.Exprs[0]
	scan := filter.Inputs[0].Exprs[0]
	// Claiming the filter is a no-op merges the scan's group into the root,
	// which would leave the filter reading its own group.
	space.insertEquivalent(rel("Scan orders"), filter)
	assert.True(t, filter.isStale())
	assert.Equal(t, space.root, scan.Group)
	assert.Equal(t, `
Group 1 []
	Scan orders
`, "\n"+space.String())
}

// Test_Explore_mergesDuringExploration runs rules that keep producing
// alternatives which force group merges while Explore is still walking the
// space. Explore must skip the expressions those merges made stale.
func Test_Explore_mergesDuringExploration(t *testing.T) {
	isTable := func(e *Expr) bool { return len(e.Operator.String()) == 1 }
	commute := func(e *Expr) []*IntoExpr {
		if e.Operator.String() != "join" {
			return nil
		}
		alts := []*IntoExpr{
			rel("join", e.Inputs[1], e.Inputs[0]),
			rel("mergeJoin", e.Inputs[0], e.Inputs[1]),
		}
		for _, right := range e.Inputs[1].Exprs {
			if isTable(right) {
				alts = append(alts, rel("join", e.Inputs[0], rel("*"+right.Operator.String())))
			}
		}
		return alts
	}
	rotate := func(e *Expr) []*IntoExpr {
		var alts []*IntoExpr
		if e.Operator.String() != "join" {
			return nil
		}
		for _, left := range e.Inputs[0].Exprs {
			if left.Operator.String() == "join" {
				alts = append(alts, rel("join", left.Inputs[0], rel("join", e.Inputs[1], left.Inputs[1])))
			}
		}
		return alts
	}
	pushFilter := func(e *Expr) []*IntoExpr {
		var alts []*IntoExpr
		if e.Operator.String() != "filter" {
			return nil
		}
		for _, input := range e.Inputs[0].Exprs {
			if input.Operator.String() == "join" {
				alts = append(alts, rel("join", rel("filter", input.Inputs[0]), input.Inputs[1]))
			}
		}
		return alts
	}
	def := &fakeDef{rules: []ExplorationRule{
		{Name: "pushFilter", Apply: pushFilter},
		{Name: "commute", Apply: commute},
		{Name: "rotate", Apply: rotate},
	}}
	start := rel("filter",
		rel("join",
			rel("w"),
			rel("join",
				rel("x"),
				rel("join", rel("y"), rel("z")))))
	space := NewSpace(start, def, Options{CheckInternalInvariants: true})
	require.NoError(t, space.CheckInvariants())
	assert.NotPanics(t, space.Explore)
	assert.NoError(t, space.CheckInvariants())
}
