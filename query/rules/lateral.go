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
	"github.com/ebay/querygap/query/planner/plandef"
)

// GroupedTopNToLateral rewrites "top K rows per group", expressed as a
// filter on a ranking window, into a lateral join: the distinct partition
// keys drive one sorted, limited probe of the input each.
//
//	Filter(rk <= K)                 Project
//	  Project                         Correlate(inner)
//	    Window(PARTITION BY P,   =>     Distinct(P, Project(P, child))
//	           ORDER BY O) AS rk        Limit(K)
//	      child                           Window(ORDER BY O) AS rk
//	                                        Sort(O)
//	                                          Filter(P = $outer.P, child)
//
// The rule fires only when the partition keys have few distinct values
// compared to the input's rows, since each probe costs about one pass over a
// partition. For RANK and DENSE_RANK, rows tied at rank K must all be
// returned, so the probe keeps the filter on the rank instead of the Limit.
var GroupedTopNToLateral = &Rule{
	Name:        "GROUPED_TOPN_TO_LATERAL",
	Description: "Rewrites a per-group top-K filter on ROW_NUMBER/RANK/DENSE_RANK into a lateral join probing each distinct group, when groups are few.",
	Category:    CategoryWindow,
	Match: func(env *Env, n plandef.Node) bool {
		m, ok := matchGroupedTopN(n)
		return ok && fewGroups(env, m.window)
	},
	Apply: applyGroupedTopNToLateral,
}

type groupedTopN struct {
	project *plandef.Project
	window  *plandef.Window
	k       int64
}

// matchGroupedTopN checks the structure of the plan, but not profitability.
func matchGroupedTopN(n plandef.Node) (groupedTopN, bool) {
	f, ok := n.(*plandef.Filter)
	if !ok {
		return groupedTopN{}, false
	}
	p, ok := f.Input.(*plandef.Project)
	if !ok {
		return groupedTopN{}, false
	}
	w, ok := p.Input.(*plandef.Window)
	if !ok || !w.Func.Ranking() || len(w.OrderBy) == 0 || !allColumnRefs(w.PartitionBy) {
		return groupedTopN{}, false
	}
	ref, k, ok := upperBound(f.Predicate)
	if !ok {
		return groupedTopN{}, false
	}
	// The bounded column must be the window's output, passed through the
	// Project.
	i := columnIndex(p.Schema(), ref)
	if i < 0 {
		return groupedTopN{}, false
	}
	src, ok := p.Exprs[i].Expr.(*plandef.ColumnRef)
	if !ok || columnIndex(w.Schema(), src) != len(w.Schema())-1 {
		return groupedTopN{}, false
	}
	return groupedTopN{project: p, window: w, k: k}, true
}

// upperBound recognizes "col <= K", "col < K+1" and "col = 1", in either
// operand order, with K a positive integer literal.
func upperBound(pred plandef.Expr) (*plandef.ColumnRef, int64, bool) {
	c, ok := pred.(*plandef.Compare)
	if !ok {
		return nil, 0, false
	}
	op, left, right := c.Op, c.Left, c.Right
	if _, isLit := left.(*plandef.Literal); isLit {
		op, left, right = op.Reverse(), right, left
	}
	ref, ok := left.(*plandef.ColumnRef)
	if !ok {
		return nil, 0, false
	}
	lit, ok := right.(*plandef.Literal)
	if !ok {
		return nil, 0, false
	}
	k, ok := lit.Int()
	if !ok {
		return nil, 0, false
	}
	switch op {
	case plandef.OpLessEq:
	case plandef.OpLess:
		k--
	case plandef.OpEq:
		if k != 1 {
			return nil, 0, false
		}
	default:
		return nil, 0, false
	}
	if k < 1 {
		return nil, 0, false
	}
	return ref, k, true
}

// fewGroups returns true if the window's partition keys have few enough
// distinct values, relative to its input's rows, for a lookup per group to pay
// off.
func fewGroups(env *Env, w *plandef.Window) bool {
	est := env.estimator()
	if est == nil {
		return false
	}
	rows := est.Rows(w.Input)
	ndv := est.Distinct(w.Input, w.PartitionBy)
	return rows > ndv && ndv/rows <= env.lateralMaxNDVRatio()
}

func applyGroupedTopNToLateral(env *Env, n plandef.Node) (plandef.Node, error) {
	m, ok := matchGroupedTopN(n)
	if !ok || !fewGroups(env, m.window) {
		return nil, nil
	}
	w := m.window
	child := w.Input

	keys := make([]plandef.NamedExpr, len(w.PartitionBy))
	probe := make([]plandef.Expr, len(w.PartitionBy))
	for i, e := range w.PartitionBy {
		ref := e.(*plandef.ColumnRef)
		keys[i] = plandef.NamedExpr{Expr: ref}
		probe[i] = plandef.Eq(ref, &plandef.OuterRef{Table: ref.Table, Name: ref.Name})
	}
	outer := plandef.NewDistinct(w.PartitionBy, plandef.NewProject(keys, child))

	var inner plandef.Node = plandef.NewFilter(plandef.Conjoin(probe), child)
	if w.Func == plandef.WinRowNumber {
		inner = plandef.NewSort(w.OrderBy, inner)
		inner = plandef.NewWindow(w.Func, w.Args, nil, w.OrderBy, w.Alias, inner)
		inner = plandef.NewLimit(m.k, 0, inner)
	} else {
		inner = plandef.NewWindow(w.Func, w.Args, nil, w.OrderBy, w.Alias, inner)
		bound := plandef.Cmp(&plandef.ColumnRef{Name: w.Alias}, plandef.OpLessEq, plandef.Lit(m.k))
		inner = plandef.NewFilter(bound, inner)
	}
	return plandef.NewProject(m.project.Exprs, plandef.NewCorrelate(plandef.JoinInner, outer, inner)), nil
}
