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
	"sort"

	"github.com/ebay/querygap/query/planner/plandef"
)

func innerJoin(n plandef.Node) (*plandef.Join, bool) {
	j, ok := n.(*plandef.Join)
	if !ok || j.Type != plandef.JoinInner {
		return nil, false
	}
	return j, true
}

// JoinCommute swaps the inputs of an inner join so the larger input is on the
// left and the smaller one, which is built into a hash table, on the right.
var JoinCommute = &Rule{
	Name:        "JOIN_COMMUTE",
	Description: "Swaps the inputs of an inner join so that the smaller input is the build side.",
	Category:    CategoryJoin,
	Match: func(env *Env, n plandef.Node) bool {
		_, ok := innerJoin(n)
		return ok && env.estimator() != nil
	},
	Apply: func(env *Env, n plandef.Node) (plandef.Node, error) {
		j := n.(*plandef.Join)
		est := env.estimator()
		if est.Rows(j.Left) >= est.Rows(j.Right) {
			return nil, nil
		}
		return plandef.NewJoin(j.Type, j.Condition, j.Right, j.Left), nil
	},
}

// JoinAssociate rotates ((A ⋈ B) ⋈ C) into (A ⋈ (B ⋈ C)) when B ⋈ C is
// connected and estimated to be smaller than A ⋈ B.
var JoinAssociate = &Rule{
	Name:        "JOIN_ASSOCIATE",
	Description: "Re-associates nested inner joins, (A JOIN B) JOIN C to A JOIN (B JOIN C), when that shrinks the intermediate result.",
	Category:    CategoryJoin,
	Match: func(env *Env, n plandef.Node) bool {
		top, ok := innerJoin(n)
		if !ok || env.estimator() == nil {
			return false
		}
		_, ok = innerJoin(top.Left)
		return ok
	},
	Apply: applyJoinAssociate,
}

func applyJoinAssociate(env *Env, n plandef.Node) (plandef.Node, error) {
	top := n.(*plandef.Join)
	bottom := top.Left.(*plandef.Join)
	a, b, c := bottom.Left, bottom.Right, top.Right
	bc := plandef.Schema(append(append(plandef.Schema(nil), b.Schema()...), c.Schema()...))
	var lower, upper []plandef.Expr
	for _, e := range append(plandef.Conjuncts(bottom.Condition), plandef.Conjuncts(top.Condition)...) {
		switch exprSide(e, a.Schema(), bc) {
		case sideRight:
			lower = append(lower, e)
		case sideUnknown:
			return nil, nil
		default:
			upper = append(upper, e)
		}
	}
	if len(lower) == 0 {
		return nil, nil
	}
	newBottom := plandef.NewJoin(plandef.JoinInner, plandef.Conjoin(lower), b, c)
	est := env.estimator()
	if est.Rows(newBottom) >= est.Rows(bottom) {
		return nil, nil
	}
	return plandef.NewJoin(plandef.JoinInner, plandef.Conjoin(upper), a, newBottom), nil
}

// MultiJoinOptimize reorders a tree of inner joins into a linear tree,
// greedily adding the connected input that yields the smallest intermediate
// result. Each join has its larger input on the left.
var MultiJoinOptimize = &Rule{
	Name:        "MULTI_JOIN_OPTIMIZE",
	Description: "Flattens a tree of three or more inner joins and rebuilds it in a greedy, cardinality-driven join order.",
	Category:    CategoryJoin,
	Match: func(env *Env, n plandef.Node) bool {
		j, ok := innerJoin(n)
		if !ok || env.estimator() == nil {
			return false
		}
		_, leftJoin := innerJoin(j.Left)
		_, rightJoin := innerJoin(j.Right)
		return leftJoin || rightJoin
	},
	Apply: applyMultiJoinOptimize,
}

// flattenJoins collects the non-join leaves and conjuncts of a tree of inner
// joins.
func flattenJoins(n plandef.Node, leaves []plandef.Node, conds []plandef.Expr) ([]plandef.Node, []plandef.Expr) {
	j, ok := innerJoin(n)
	if !ok {
		return append(leaves, n), conds
	}
	leaves, conds = flattenJoins(j.Left, leaves, conds)
	leaves, conds = flattenJoins(j.Right, leaves, conds)
	return leaves, append(conds, plandef.Conjuncts(j.Condition)...)
}

func applyMultiJoinOptimize(env *Env, n plandef.Node) (plandef.Node, error) {
	est := env.estimator()
	leaves, pending := flattenJoins(n, nil, nil)
	if len(leaves) < 3 {
		return nil, nil
	}
	for _, c := range pending {
		if plandef.HasSubquery(c) {
			return nil, nil
		}
	}
	// The result depends only on the set of leaves and conjuncts, so
	// reapplying the rule to its own output changes nothing.
	sort.SliceStable(pending, func(i, j int) bool {
		return plandef.ExprKey(pending[i]) < plandef.ExprKey(pending[j])
	})
	keys := make([]string, len(leaves))
	for i, leaf := range leaves {
		keys[i] = plandef.Key(leaf)
	}
	better := func(i, j int, rowsI, rowsJ float64) bool {
		return rowsI < rowsJ || (rowsI == rowsJ && keys[i] < keys[j])
	}
	used := make([]bool, len(leaves))
	start := 0
	for i := 1; i < len(leaves); i++ {
		if better(i, start, est.Rows(leaves[i]), est.Rows(leaves[start])) {
			start = i
		}
	}
	used[start] = true
	current := leaves[start]

	for step := 1; step < len(leaves); step++ {
		best := -1
		var bestJoin *plandef.Join
		var bestRest []plandef.Expr
		bestConnected := false
		bestRows := 0.0
		for i, leaf := range leaves {
			if used[i] {
				continue
			}
			covered, rest, connected := attach(pending, current.Schema(), leaf.Schema())
			join := plandef.NewJoin(plandef.JoinInner, plandef.Conjoin(covered), current, leaf)
			if est.Rows(current) < est.Rows(leaf) {
				join = plandef.NewJoin(plandef.JoinInner, plandef.Conjoin(covered), leaf, current)
			}
			rows := est.Rows(join)
			if best < 0 ||
				(connected && !bestConnected) ||
				(connected == bestConnected && better(i, best, rows, bestRows)) {
				best, bestJoin, bestRest, bestConnected, bestRows = i, join, rest, connected, rows
			}
		}
		used[best] = true
		current = bestJoin
		pending = bestRest
	}
	if len(pending) > 0 {
		j := current.(*plandef.Join)
		cond := plandef.Conjoin(append(plandef.Conjuncts(j.Condition), pending...))
		current = plandef.NewJoin(plandef.JoinInner, cond, j.Left, j.Right)
	}
	if sameKey(current, n) {
		return nil, nil
	}
	return current, nil
}

// attach splits the pending conjuncts into those that can be evaluated once
// 'next' is joined to 'current', and the rest. connected is true if some
// covered conjunct relates the two.
func attach(pending []plandef.Expr, current, next plandef.Schema) (covered, rest []plandef.Expr, connected bool) {
	for _, c := range pending {
		switch exprSide(c, current, next) {
		case sideBoth:
			connected = true
			covered = append(covered, c)
		case sideLeft, sideRight, sideNone:
			covered = append(covered, c)
		default:
			rest = append(rest, c)
		}
	}
	return covered, rest, connected
}
