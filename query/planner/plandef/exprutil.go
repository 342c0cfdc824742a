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

package plandef

import (
	"strings"
)

// Children returns the direct sub-expressions of e. It does not look inside
// Exists subqueries.
func Children(e Expr) []Expr {
	switch e := e.(type) {
	case *Compare:
		return []Expr{e.Left, e.Right}
	case *And:
		return e.Args
	case *Or:
		return e.Args
	case *Not:
		return []Expr{e.Arg}
	case *IsNull:
		return []Expr{e.Arg}
	case *InList:
		return append([]Expr{e.Arg}, e.Values...)
	case *Func:
		return e.Args
	}
	return nil
}

// WalkExpr calls fn on e and its sub-expressions in pre-order. If fn returns
// false, the sub-expressions of that expression are skipped.
func WalkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, child := range Children(e) {
		WalkExpr(child, fn)
	}
}

// TransformExpr rebuilds e bottom-up, replacing each sub-expression x with
// fn(x) when that returns a non-nil value. The input is not modified.
func TransformExpr(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	rebuilt := e
	switch e := e.(type) {
	case *Compare:
		rebuilt = &Compare{Op: e.Op, Left: TransformExpr(e.Left, fn), Right: TransformExpr(e.Right, fn)}
	case *And:
		rebuilt = &And{Args: transformAll(e.Args, fn)}
	case *Or:
		rebuilt = &Or{Args: transformAll(e.Args, fn)}
	case *Not:
		rebuilt = &Not{Arg: TransformExpr(e.Arg, fn)}
	case *IsNull:
		rebuilt = &IsNull{Arg: TransformExpr(e.Arg, fn), Negated: e.Negated}
	case *InList:
		rebuilt = &InList{Arg: TransformExpr(e.Arg, fn), Values: transformAll(e.Values, fn), Negated: e.Negated}
	case *Func:
		rebuilt = &Func{Name: e.Name, Args: transformAll(e.Args, fn)}
	}
	if replaced := fn(rebuilt); replaced != nil {
		return replaced
	}
	return rebuilt
}

func transformAll(exprs []Expr, fn func(Expr) Expr) []Expr {
	res := make([]Expr, len(exprs))
	for i, e := range exprs {
		res[i] = TransformExpr(e, fn)
	}
	return res
}

// ColumnRefs returns the columns referenced by e, in order of appearance,
// excluding OuterRefs and anything inside Exists subqueries.
func ColumnRefs(e Expr) []*ColumnRef {
	var refs []*ColumnRef
	WalkExpr(e, func(x Expr) bool {
		if ref, ok := x.(*ColumnRef); ok {
			refs = append(refs, ref)
		}
		return true
	})
	return refs
}

// OuterRefs returns the outer references made by e, excluding anything inside
// Exists subqueries.
func OuterRefs(e Expr) []*OuterRef {
	var refs []*OuterRef
	WalkExpr(e, func(x Expr) bool {
		if ref, ok := x.(*OuterRef); ok {
			refs = append(refs, ref)
		}
		return true
	})
	return refs
}

// HasSubquery returns true if e contains an Exists.
func HasSubquery(e Expr) bool {
	found := false
	WalkExpr(e, func(x Expr) bool {
		if _, ok := x.(*Exists); ok {
			found = true
		}
		return !found
	})
	return found
}

// Conjuncts splits e into the list of expressions that are ANDed together.
// Nested Ands are flattened. A nil expression has no conjuncts.
func Conjuncts(e Expr) []Expr {
	if e == nil {
		return nil
	}
	and, ok := e.(*And)
	if !ok {
		return []Expr{e}
	}
	var res []Expr
	for _, arg := range and.Args {
		res = append(res, Conjuncts(arg)...)
	}
	return res
}

// Conjoin returns the AND of the given expressions: nil for none, the
// expression itself for one.
func Conjoin(exprs []Expr) Expr {
	var flat []Expr
	for _, e := range exprs {
		flat = append(flat, Conjuncts(e)...)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return &And{Args: flat}
}

// EquiPair is one "left = right" conjunct of a join condition, oriented so
// that Left resolves in the join's left input and Right in its right input.
type EquiPair struct {
	Left  *ColumnRef
	Right *ColumnRef
}

// SplitEquiJoin splits a join condition into column equalities between the
// two sides and any remaining conjuncts.
func SplitEquiJoin(cond Expr, left, right Schema) (pairs []EquiPair, rest []Expr) {
	for _, c := range Conjuncts(cond) {
		cmp, ok := c.(*Compare)
		if ok && cmp.Op == OpEq {
			l, lok := cmp.Left.(*ColumnRef)
			r, rok := cmp.Right.(*ColumnRef)
			if lok && rok {
				_, lInLeft := left.Resolve(l)
				_, rInRight := right.Resolve(r)
				if lInLeft && rInRight {
					pairs = append(pairs, EquiPair{Left: l, Right: r})
					continue
				}
				_, lInRight := right.Resolve(l)
				_, rInLeft := left.Resolve(r)
				if lInRight && rInLeft {
					pairs = append(pairs, EquiPair{Left: r, Right: l})
					continue
				}
			}
		}
		rest = append(rest, c)
	}
	return pairs, rest
}

// NullRejecting returns true if e is false or unknown whenever every column
// of 'cols' it references is NULL, and it references at least one of them.
// The check is conservative: it may return false for some null-rejecting
// predicates.
func NullRejecting(e Expr, cols Schema) bool {
	refsCols := false
	for _, ref := range ColumnRefs(e) {
		if _, ok := cols.Resolve(ref); ok {
			refsCols = true
			break
		}
	}
	if !refsCols {
		return false
	}
	switch e := e.(type) {
	case *Compare, *InList:
		return !nullTolerant(e)
	case *IsNull:
		return e.Negated
	case *And:
		for _, arg := range e.Args {
			if NullRejecting(arg, cols) {
				return true
			}
		}
		return false
	case *Or:
		for _, arg := range e.Args {
			if !NullRejecting(arg, cols) {
				return false
			}
		}
		return true
	}
	return false
}

// ExprType returns the type of e evaluated against the given input schema.
func ExprType(e Expr, input Schema) DataType {
	switch e := e.(type) {
	case *ColumnRef:
		if c, ok := input.Resolve(e); ok {
			return c.Type
		}
	case *Literal:
		switch e.Value.(type) {
		case int64:
			return TypeInt
		case float64:
			return TypeFloat
		case string:
			return TypeString
		case bool:
			return TypeBool
		}
	case *Compare, *And, *Or, *Not, *IsNull, *InList, *Exists:
		return TypeBool
	}
	return TypeUnknown
}

// nullTolerantFuncs can produce a non-NULL result from NULL arguments.
var nullTolerantFuncs = map[string]bool{
	"coalesce": true,
	"ifnull":   true,
	"nvl":      true,
	"nullif":   true,
}

func nullTolerant(e Expr) bool {
	found := false
	WalkExpr(e, func(x Expr) bool {
		switch x := x.(type) {
		case *Func:
			if nullTolerantFuncs[strings.ToLower(x.Name)] {
				found = true
			}
		case *IsNull:
			found = true
		}
		return !found
	})
	return found
}
