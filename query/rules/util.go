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
	"strings"

	"github.com/ebay/querygap/query/planner/plandef"
)

// columnIndex returns the position of the first column in s that ref
// resolves to, or -1.
func columnIndex(s plandef.Schema, ref *plandef.ColumnRef) int {
	for i, c := range s {
		if strings.EqualFold(c.Name, ref.Name) &&
			(ref.Table == "" || strings.EqualFold(c.Table, ref.Table)) {
			return i
		}
	}
	return -1
}

// refersTo returns true if e references a column that resolves in s.
func refersTo(e plandef.Expr, s plandef.Schema) bool {
	for _, ref := range plandef.ColumnRefs(e) {
		if _, ok := s.Resolve(ref); ok {
			return true
		}
	}
	return false
}

// side describes which input(s) of a join an expression reads.
type side int

const (
	sideNone side = iota
	sideLeft
	sideRight
	sideBoth
	// The expression can't be placed: it references unknown columns, columns
	// that resolve on both sides, or contains a subquery.
	sideUnknown
)

func exprSide(e plandef.Expr, left, right plandef.Schema) side {
	if plandef.HasSubquery(e) {
		return sideUnknown
	}
	res := sideNone
	for _, ref := range plandef.ColumnRefs(e) {
		_, inLeft := left.Resolve(ref)
		_, inRight := right.Resolve(ref)
		var s side
		switch {
		case inLeft && inRight:
			return sideUnknown
		case inLeft:
			s = sideLeft
		case inRight:
			s = sideRight
		default:
			return sideUnknown
		}
		if res == sideNone {
			res = s
		} else if res != s {
			res = sideBoth
		}
	}
	return res
}

// substitute rewrites e, which is evaluated over the output of p, into an
// expression over p's input. It returns false if e refers to a column p does
// not produce, or contains a subquery.
func substitute(e plandef.Expr, p *plandef.Project) (plandef.Expr, bool) {
	if plandef.HasSubquery(e) {
		return nil, false
	}
	out := p.Schema()
	ok := true
	res := plandef.TransformExpr(e, func(x plandef.Expr) plandef.Expr {
		ref, isRef := x.(*plandef.ColumnRef)
		if !isRef {
			return nil
		}
		i := columnIndex(out, ref)
		if i < 0 {
			ok = false
			return nil
		}
		return p.Exprs[i].Expr
	})
	return res, ok
}

// withFilter returns 'in' filtered by the conjunction of preds, or 'in' itself
// if there are none.
func withFilter(preds []plandef.Expr, in plandef.Node) plandef.Node {
	if pred := plandef.Conjoin(preds); pred != nil {
		return plandef.NewFilter(pred, in)
	}
	return in
}

// sameKey returns true if a and b are structurally equal plans.
func sameKey(a, b plandef.Node) bool {
	return plandef.Key(a) == plandef.Key(b)
}

// hasOuterRefs returns true if any expression in the plan rooted at n refers
// to an enclosing scope.
func hasOuterRefs(n plandef.Node) bool {
	found := false
	plandef.Walk(n, func(x plandef.Node) bool {
		for _, e := range plandef.NodeExprs(x) {
			if len(plandef.OuterRefs(e)) > 0 {
				found = true
			}
		}
		return !found
	})
	return found
}

// qualifiers returns the lower-cased set of column qualifiers in s.
func qualifiers(s plandef.Schema) map[string]bool {
	res := make(map[string]bool, len(s))
	for _, c := range s {
		if c.Table != "" {
			res[strings.ToLower(c.Table)] = true
		}
	}
	return res
}
