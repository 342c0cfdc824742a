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

// ProjectToSemiJoin turns an inner join against a de-duplicated input, whose
// columns are then projected away, into a semi join.
var ProjectToSemiJoin = &Rule{
	Name:        "PROJECT_TO_SEMI_JOIN",
	Description: "Converts an inner join with a DISTINCT input whose columns are not projected into a semi join.",
	Category:    CategorySubquery,
	Match: func(env *Env, n plandef.Node) bool {
		p, ok := n.(*plandef.Project)
		if !ok {
			return false
		}
		j, ok := innerJoin(p.Input)
		if !ok {
			return false
		}
		agg, ok := j.Right.(*plandef.Aggregate)
		return ok && agg.IsDistinct()
	},
	Apply: applyProjectToSemiJoin,
}

func applyProjectToSemiJoin(env *Env, n plandef.Node) (plandef.Node, error) {
	p := n.(*plandef.Project)
	j := p.Input.(*plandef.Join)
	distinct := j.Right.(*plandef.Aggregate)
	ls, rs := j.Left.Schema(), distinct.Schema()
	for _, e := range p.Exprs {
		if refersTo(e.Expr, rs) || !ls.Has(e.Expr) {
			return nil, nil
		}
	}
	pairs, rest := plandef.SplitEquiJoin(j.Condition, ls, rs)
	for _, c := range rest {
		if exprSide(c, ls, rs) == sideUnknown {
			return nil, nil
		}
	}
	// Every distinct key must be equated to the left side; otherwise the
	// inner join could multiply left rows.
	covered := make([]bool, len(rs))
	for _, pair := range pairs {
		if i := columnIndex(rs, pair.Right); i >= 0 {
			covered[i] = true
		}
	}
	for _, c := range covered {
		if !c {
			return nil, nil
		}
	}
	var right plandef.Node = distinct
	if allColumnRefs(distinct.GroupKeys) {
		right = distinct.Input
	}
	semi := plandef.NewJoin(plandef.JoinSemi, j.Condition, j.Left, right)
	return plandef.NewProject(p.Exprs, semi), nil
}

func allColumnRefs(exprs []plandef.Expr) bool {
	for _, e := range exprs {
		if _, ok := e.(*plandef.ColumnRef); !ok {
			return false
		}
	}
	return len(exprs) > 0
}

// JoinToSemiJoin decorrelates EXISTS and NOT EXISTS subqueries in a Filter
// into semi and anti joins. The correlated predicates may use any comparison,
// not just equality.
var JoinToSemiJoin = &Rule{
	Name:        "JOIN_TO_SEMI_JOIN",
	Description: "Rewrites correlated EXISTS / NOT EXISTS subqueries, including inequality correlations, as semi or anti joins.",
	Category:    CategorySubquery,
	Match: func(env *Env, n plandef.Node) bool {
		f, ok := n.(*plandef.Filter)
		if !ok {
			return false
		}
		for _, c := range plandef.Conjuncts(f.Predicate) {
			if _, ok := existsConjunct(c); ok {
				return true
			}
		}
		return false
	},
	Apply: applyJoinToSemiJoin,
}

// existsConjunct returns the subquery tested by c, with Negated set for NOT
// EXISTS.
func existsConjunct(c plandef.Expr) (*plandef.Exists, bool) {
	switch c := c.(type) {
	case *plandef.Exists:
		return c, true
	case *plandef.Not:
		if ex, ok := c.Arg.(*plandef.Exists); ok {
			return &plandef.Exists{Subquery: ex.Subquery, Negated: !ex.Negated}, true
		}
	}
	return nil, false
}

func applyJoinToSemiJoin(env *Env, n plandef.Node) (plandef.Node, error) {
	f := n.(*plandef.Filter)
	var res plandef.Node = f.Input
	var keep []plandef.Expr
	converted := false
	for _, c := range plandef.Conjuncts(f.Predicate) {
		ex, ok := existsConjunct(c)
		if ok {
			if join := decorrelate(res, ex); join != nil {
				res = join
				converted = true
				continue
			}
		}
		keep = append(keep, c)
	}
	if !converted {
		return nil, nil
	}
	return withFilter(keep, res), nil
}

// decorrelate returns a semi or anti join of outer with the subquery, or nil
// if the subquery has a shape that can't be converted.
func decorrelate(outer plandef.Node, ex *plandef.Exists) plandef.Node {
	sub := ex.Subquery
	var preds []plandef.Expr
	for done := false; !done; {
		switch x := sub.(type) {
		case *plandef.Project:
			sub = x.Input
		case *plandef.Limit:
			if x.Offset != 0 || x.Count < 1 {
				return nil
			}
			sub = x.Input
		case *plandef.Filter:
			preds = append(preds, plandef.Conjuncts(x.Predicate)...)
			sub = x.Input
		default:
			done = true
		}
	}
	if hasOuterRefs(sub) || len(plandef.Subqueries(sub)) > 0 {
		return nil
	}
	os, is := outer.Schema(), sub.Schema()
	outerQuals := qualifiers(os)
	for q := range qualifiers(is) {
		if outerQuals[q] {
			return nil
		}
	}
	var correlated, local []plandef.Expr
	for _, p := range preds {
		if plandef.HasSubquery(p) {
			return nil
		}
		refs := plandef.OuterRefs(p)
		if len(refs) == 0 {
			local = append(local, p)
			continue
		}
		for _, ref := range refs {
			if _, ok := os.Resolve(ref.Column()); !ok {
				return nil
			}
		}
		correlated = append(correlated, plandef.TransformExpr(p, func(x plandef.Expr) plandef.Expr {
			if ref, ok := x.(*plandef.OuterRef); ok {
				return ref.Column()
			}
			return nil
		}))
	}
	if len(correlated) == 0 {
		return nil
	}
	typ := plandef.JoinSemi
	if ex.Negated {
		typ = plandef.JoinAnti
	}
	return plandef.NewJoin(typ, plandef.Conjoin(correlated), outer, withFilter(local, sub))
}

// correlatedOps returns the comparison operators that relate the subquery to
// its enclosing scope, in order of appearance.
func correlatedOps(sub plandef.Node) []plandef.CompareOp {
	var ops []plandef.CompareOp
	plandef.Walk(sub, func(x plandef.Node) bool {
		for _, e := range plandef.NodeExprs(x) {
			plandef.WalkExpr(e, func(y plandef.Expr) bool {
				if c, ok := y.(*plandef.Compare); ok && len(plandef.OuterRefs(c)) > 0 {
					ops = append(ops, c.Op)
				}
				return true
			})
		}
		return true
	})
	return ops
}

// CorrelatedInequality returns true if the subquery relates to its enclosing
// scope through a comparison other than equality. Such subqueries are
// commonly left correlated by query engines.
func CorrelatedInequality(ex *plandef.Exists) bool {
	for _, op := range correlatedOps(ex.Subquery) {
		if op.Inequality() {
			return true
		}
	}
	return false
}
