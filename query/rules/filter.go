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

// FilterMerge combines two stacked Filters into one.
var FilterMerge = &Rule{
	Name:        "FILTER_MERGE",
	Description: "Merges adjacent Filter operators into a single Filter with a combined predicate.",
	Category:    CategoryFilter,
	Match: func(env *Env, n plandef.Node) bool {
		f, ok := n.(*plandef.Filter)
		if !ok {
			return false
		}
		_, ok = f.Input.(*plandef.Filter)
		return ok
	},
	Apply: func(env *Env, n plandef.Node) (plandef.Node, error) {
		outer := n.(*plandef.Filter)
		inner := outer.Input.(*plandef.Filter)
		pred := plandef.Conjoin([]plandef.Expr{inner.Predicate, outer.Predicate})
		return plandef.NewFilter(pred, inner.Input), nil
	},
}

// FilterIntoJoin pushes filter conjuncts into join inputs or the join
// condition.
var FilterIntoJoin = &Rule{
	Name:        "FILTER_INTO_JOIN",
	Description: "Pushes filter conditions above a join into the join condition or down into the join inputs.",
	Category:    CategoryFilter,
	Match: func(env *Env, n plandef.Node) bool {
		f, ok := n.(*plandef.Filter)
		if !ok {
			return false
		}
		j, ok := f.Input.(*plandef.Join)
		return ok && j.Type != plandef.JoinFull
	},
	Apply: applyFilterIntoJoin,
}

func applyFilterIntoJoin(env *Env, n plandef.Node) (plandef.Node, error) {
	f := n.(*plandef.Filter)
	j := f.Input.(*plandef.Join)
	ls, rs := j.Left.Schema(), j.Right.Schema()
	var above, toLeft, toRight, cond []plandef.Expr
	pushed := false
	// Single-sided conjuncts of the join condition can move into the input
	// whose rows they restrict without changing which rows are preserved.
	for _, c := range plandef.Conjuncts(j.Condition) {
		s := exprSide(c, ls, rs)
		switch {
		case s == sideLeft && (j.Type == plandef.JoinInner || j.Type == plandef.JoinRight || j.Type == plandef.JoinSemi):
			toLeft = append(toLeft, c)
			pushed = true
		case s == sideRight && j.Type != plandef.JoinRight:
			toRight = append(toRight, c)
			pushed = true
		default:
			cond = append(cond, c)
		}
	}
	for _, c := range plandef.Conjuncts(f.Predicate) {
		s := exprSide(c, ls, rs)
		switch {
		case s == sideLeft && j.Type != plandef.JoinRight:
			toLeft = append(toLeft, c)
			pushed = true
		case s == sideRight && (j.Type == plandef.JoinInner || j.Type == plandef.JoinRight):
			toRight = append(toRight, c)
			pushed = true
		case s == sideBoth && j.Type == plandef.JoinInner:
			cond = append(cond, c)
			pushed = true
		default:
			above = append(above, c)
		}
	}
	if !pushed {
		return nil, nil
	}
	join := plandef.NewJoin(j.Type, plandef.Conjoin(cond),
		withFilter(toLeft, j.Left), withFilter(toRight, j.Right))
	return withFilter(above, join), nil
}

// FilterProjectTranspose moves a Filter below a Project.
var FilterProjectTranspose = &Rule{
	Name:        "FILTER_PROJECT_TRANSPOSE",
	Description: "Moves a Filter below a Project by rewriting the predicate in terms of the Project's input.",
	Category:    CategoryFilter,
	Match: func(env *Env, n plandef.Node) bool {
		f, ok := n.(*plandef.Filter)
		if !ok {
			return false
		}
		_, ok = f.Input.(*plandef.Project)
		return ok
	},
	Apply: func(env *Env, n plandef.Node) (plandef.Node, error) {
		f := n.(*plandef.Filter)
		p := f.Input.(*plandef.Project)
		pred, ok := substitute(f.Predicate, p)
		if !ok {
			return nil, nil
		}
		return plandef.NewProject(p.Exprs, plandef.NewFilter(pred, p.Input)), nil
	},
}

// OuterJoinSimplify turns outer joins into inner (or less outer) joins when a
// Filter above discards the NULL-extended rows anyway.
var OuterJoinSimplify = &Rule{
	Name:        "OUTER_JOIN_SIMPLIFY",
	Description: "Converts LEFT/RIGHT/FULL joins to INNER (or one-sided) joins when a filter above rejects NULLs from the outer side.",
	Category:    CategoryJoin,
	Match: func(env *Env, n plandef.Node) bool {
		f, ok := n.(*plandef.Filter)
		if !ok {
			return false
		}
		j, ok := f.Input.(*plandef.Join)
		if !ok {
			return false
		}
		switch j.Type {
		case plandef.JoinLeft, plandef.JoinRight, plandef.JoinFull:
			return true
		}
		return false
	},
	Apply: func(env *Env, n plandef.Node) (plandef.Node, error) {
		f := n.(*plandef.Filter)
		j := f.Input.(*plandef.Join)
		rejectsLeft := plandef.NullRejecting(f.Predicate, j.Left.Schema())
		rejectsRight := plandef.NullRejecting(f.Predicate, j.Right.Schema())
		typ := j.Type
		switch j.Type {
		case plandef.JoinLeft:
			if rejectsRight {
				typ = plandef.JoinInner
			}
		case plandef.JoinRight:
			if rejectsLeft {
				typ = plandef.JoinInner
			}
		case plandef.JoinFull:
			switch {
			case rejectsLeft && rejectsRight:
				typ = plandef.JoinInner
			case rejectsRight:
				typ = plandef.JoinRight
			case rejectsLeft:
				typ = plandef.JoinLeft
			}
		}
		if typ == j.Type {
			return nil, nil
		}
		return plandef.NewFilter(f.Predicate, plandef.NewJoin(typ, j.Condition, j.Left, j.Right)), nil
	},
}
