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
	"fmt"
	"io"
	"strings"

	"github.com/ebay/querygap/util/cmp"
)

// IntoExpr is an expression tree that hasn't been added to the space yet.
// Its inputs are either further *IntoExpr values or existing *Group values.
// Build one with NewExpr.
type IntoExpr struct {
	Operator Operator
	Inputs   []IntoExprInput
}

// IntoExprInput is implemented by *IntoExpr and *Group only.
type IntoExprInput interface {
	isIntoExprInput()
}

func (*IntoExpr) isIntoExprInput() {}
func (*Group) isIntoExprInput()    {}

// NewExpr returns an IntoExpr for the operator. Permissible inputs are either
// *Group or *IntoExpr.
func NewExpr(operator Operator, inputs ...IntoExprInput) *IntoExpr {
	return &IntoExpr{
		Operator: operator,
		Inputs:   inputs,
	}
}

// String returns a multi-line, tab indented description of the tree.
func (expr *IntoExpr) String() string {
	var b strings.Builder
	writeIntoExpr(&b, expr, "")
	return b.String()
}

func writeIntoExpr(w io.Writer, input IntoExprInput, indent string) {
	switch input := input.(type) {
	case *IntoExpr:
		fmt.Fprintf(w, "%v%v\n", indent, input.Operator)
		for _, child := range input.Inputs {
			writeIntoExpr(w, child, indent+"\t")
		}
	case *Group:
		fmt.Fprintf(w, "%vGroup %v\n", indent, input.ID)
	}
}

// insertEquivalent adds newExpr to the group of 'from', which it must be
// logically equivalent to. Returns the expression in the space that is
// identical to newExpr, which may be one that was already there. Adding the
// expression can merge groups; any Expr obtained before this call must be
// checked with isStale before it's used again.
func (space *Space) insertEquivalent(newExpr *IntoExpr, from *Expr) *Expr {
	if space.options.Invariants != nil {
		defer space.options.Invariants(space, space.root)
	}
	if space.options.CheckInternalInvariants {
		defer space.MustCheckInvariants()
	}
	if from.isStale() {
		panic(fmt.Sprintf("insertEquivalent: expr %d (%v) is stale: %s",
			from.id, from, from.staleReason))
	}
	if from.Group.mergedInto != nil {
		panic(fmt.Sprintf("insertEquivalent: expr %d (%v) is in group %d, which was merged into %d",
			from.id, from, from.Group.ID, from.Group.mergedInto.ID))
	}
	expr := space.insertInputs(newExpr)
	expr.Group = from.Group
	if expr.hasInput(expr.Group.ID) {
		// An expression over its own group adds no alternative.
		return from
	}
	key := cmp.GetKey(expr)
	if existing, found := space.exprHash[key]; found {
		if existing.Group != expr.Group {
			space.mergeGroups(expr.Group, existing.Group)
		}
		return existing
	}
	space.exprHash[key] = expr
	expr.Group.Exprs = append(expr.Group.Exprs, expr)
	return expr
}

// insertInputs adds the inputs of newExpr to the space. The returned Expr
// refers to those groups but isn't itself in the space yet.
func (space *Space) insertInputs(newExpr *IntoExpr) *Expr {
	expr := space.newExpr(newExpr.Operator, make([]*Group, 0, len(newExpr.Inputs)))
	for _, input := range newExpr.Inputs {
		switch input := input.(type) {
		case *IntoExpr:
			expr.Inputs = append(expr.Inputs, space.insertAnywhere(input).Group)
		case *Group:
			expr.Inputs = append(expr.Inputs, input.current())
		}
	}
	return expr
}

// insertAnywhere returns the existing expression identical to newExpr, or
// adds newExpr to a new group of its own.
func (space *Space) insertAnywhere(newExpr *IntoExpr) *Expr {
	expr := space.insertInputs(newExpr)
	key := cmp.GetKey(expr)
	if existing, found := space.exprHash[key]; found {
		return existing
	}
	space.exprHash[key] = expr
	inputs := make([]LogicalProperties, len(expr.Inputs))
	for i, input := range expr.Inputs {
		inputs[i] = input.LogicalProp
	}
	expr.Group = &Group{
		ID:          space.nextGroupID,
		Exprs:       []*Expr{expr},
		LogicalProp: space.def.LogicalProperties(expr.Operator, inputs),
	}
	space.nextGroupID++
	return expr
}

func (space *Space) newExpr(op Operator, inputs []*Group) *Expr {
	expr := &Expr{
		Operator: op,
		Inputs:   inputs,
		id:       space.nextExprID,
	}
	space.nextExprID++
	return expr
}

// mergeGroups is called once 'from' and 'into' are known to be equivalent.
// Afterwards 'from' is empty and every expression that used it as an input
// has been replaced by one using 'into'. Replaced expressions are marked
// stale.
func (space *Space) mergeGroups(from *Group, into *Group) {
	reason := fmt.Sprintf("Group %d was merged to %d", from.ID, into.ID)
	for _, expr := range from.Exprs {
		expr.staleReason = reason
		if expr.hasInput(into.ID) {
			delete(space.exprHash, cmp.GetKey(expr))
			continue
		}
		moved := &Expr{
			Operator: expr.Operator,
			Inputs:   expr.Inputs,
			Group:    into,
			id:       expr.id,
		}
		into.Exprs = append(into.Exprs, moved)
		space.exprHash[cmp.GetKey(expr)] = moved
	}
	from.Exprs = nil
	from.mergedInto = into
	if space.root == from {
		space.root = into
	}

	// Only groups after 'from' in the topological order can use it.
	groups := space.groups()
	for i, group := range groups {
		if group == from {
			groups = groups[i+1:]
			break
		}
	}
	for _, group := range groups {
		space.rewireInputs(group, from, into, reason)
	}
}

// rewireInputs replaces the expressions in group that take 'from' as input
// with ones that take 'into'. Replacements that turn out to be duplicates are
// dropped.
func (space *Space) rewireInputs(group, from, into *Group, reason string) {
	affected := false
	for _, expr := range group.Exprs {
		if expr.hasInput(from.ID) {
			affected = true
			break
		}
	}
	if !affected {
		return
	}
	old := group.Exprs
	group.Exprs = nil
	for _, expr := range old {
		delete(space.exprHash, cmp.GetKey(expr))
	}
	for _, expr := range old {
		replacement := expr
		if expr.hasInput(from.ID) {
			expr.staleReason = reason
			inputs := make([]*Group, len(expr.Inputs))
			for i, input := range expr.Inputs {
				if input.ID == from.ID {
					inputs[i] = into
				} else {
					inputs[i] = input
				}
			}
			replacement = space.newExpr(expr.Operator, inputs)
			replacement.Group = group
			if replacement.hasInput(group.ID) {
				continue
			}
		}
		key := cmp.GetKey(replacement)
		if _, found := space.exprHash[key]; !found {
			space.exprHash[key] = replacement
			group.Exprs = append(group.Exprs, replacement)
		}
	}
}
