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

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/util/cmp"
	"github.com/golang-collections/collections/stack"
)

// Space is the memo of the search: a DAG of equivalence groups, each holding
// the alternative expressions found so far.
type Space struct {
	root        *Group
	exprHash    map[string]*Expr
	nextExprID  int
	nextGroupID int
	options     Options
	def         Definition
	// Set once the search ran out of budget; explains why.
	exhausted error
}

// A Group is an equivalence class: every expression in it produces the same
// results.
type Group struct {
	ID          int
	Exprs       []*Expr
	LogicalProp LogicalProperties
	// The lowest-cost expression in Exprs, set by PredictCosts.
	Best *Expr
	// Set when this group was found equivalent to another.
	mergedInto *Group
}

// An Expr is one operator applied to input groups.
type Expr struct {
	Operator     Operator
	Inputs       []*Group
	Group        *Group
	LocalCost    Cost
	CombinedCost Cost
	id           int
	// Non-empty once the Expr has been replaced in the space.
	staleReason string
}

// current follows merges to the group that now represents this one.
func (group *Group) current() *Group {
	for group.mergedInto != nil {
		group = group.mergedInto
	}
	return group
}

func (group *Group) String() string {
	return fmt.Sprintf("Group %d [%v]", group.ID, group.LogicalProp)
}

func (expr *Expr) isStale() bool {
	return expr.staleReason != ""
}

func (expr *Expr) hasInput(groupID int) bool {
	for _, input := range expr.Inputs {
		if input.ID == groupID {
			return true
		}
	}
	return false
}

// String returns the operator followed by the input group IDs.
func (expr *Expr) String() string {
	var b strings.Builder
	b.WriteString(expr.Operator.String())
	writeInputIDs(&b, expr.Inputs)
	return b.String()
}

// Key implements cmp.Key. Two Exprs with equal keys are duplicates.
func (expr *Expr) Key(b *strings.Builder) {
	expr.Operator.Key(b)
	writeInputIDs(b, expr.Inputs)
}

func writeInputIDs(b *strings.Builder, inputs []*Group) {
	if len(inputs) == 0 {
		return
	}
	b.WriteString(" [")
	for i, input := range inputs {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(b, "%d", input.ID)
	}
	b.WriteByte(']')
}

// Root returns the group that represents the whole query.
func (space *Space) Root() *Group {
	return space.root
}

// Len returns the number of expressions in the space.
func (space *Space) Len() int {
	return len(space.exprHash)
}

// Exhausted returns nil if the search ran to completion, or an error marked
// with qerrors.ErrCostBudgetExceeded explaining which budget ran out.
func (space *Space) Exhausted() error {
	return space.exhausted
}

// groups returns every group reachable from the root, with inputs ahead of
// the groups that use them.
func (space *Space) groups() []*Group {
	var order []*Group
	visited := make(map[*Group]struct{})
	var visit func(group *Group)
	visit = func(group *Group) {
		if _, found := visited[group]; found {
			return
		}
		visited[group] = struct{}{}
		for _, expr := range group.Exprs {
			for _, input := range expr.Inputs {
				visit(input)
			}
		}
		order = append(order, group)
	}
	visit(space.root)
	return order
}

// String lists every group and its expressions.
func (space *Space) String() string {
	var b strings.Builder
	for _, group := range space.groups() {
		fmt.Fprintf(&b, "%v\n", group)
		for _, expr := range group.Exprs {
			fmt.Fprintf(&b, "\t%v\n", expr)
		}
	}
	return b.String()
}

// Graphviz writes the space in the dot language. Each group is a cluster and
// each expression a node with edges to its input groups.
func (space *Space) Graphviz(w io.Writer) {
	fmt.Fprintf(w, "digraph {\n")
	fmt.Fprintf(w, "\tcompound = true;\n")
	for _, group := range space.groups() {
		fmt.Fprintf(w, "\tsubgraph cluster_%d {\n", group.ID)
		fmt.Fprintf(w, "\t\tlabel = %q;\n", group.String())
		fmt.Fprintf(w, "\t\tg%d [shape=point style=invis];\n", group.ID)
		for _, expr := range group.Exprs {
			fmt.Fprintf(w, "\t\te%d [label=%q];\n", expr.id, expr.String())
		}
		fmt.Fprintf(w, "\t}\n")
	}
	for _, group := range space.groups() {
		for _, expr := range group.Exprs {
			for _, input := range expr.Inputs {
				fmt.Fprintf(w, "\te%d -> g%d [lhead=cluster_%d];\n",
					expr.id, input.ID, input.ID)
			}
		}
	}
	fmt.Fprintf(w, "}\n")
}

// patternTree is a parsed Contains pattern.
type patternTree struct {
	op     string
	inputs []*patternTree
}

// leftSpace returns the leading whitespace of line.
func leftSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// parsePattern parses an indented tree with one operator per line. It panics
// if the pattern is empty or has more than one root.
func parsePattern(pattern string) *patternTree {
	type frame struct {
		indent int
		node   *patternTree
	}
	var root *patternTree
	var open []frame
	for _, line := range strings.Split(pattern, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(leftSpace(line))
		node := &patternTree{op: strings.TrimSpace(line)}
		for len(open) > 0 && open[len(open)-1].indent >= indent {
			open = open[:len(open)-1]
		}
		if len(open) == 0 {
			if root != nil {
				panic(fmt.Sprintf("pattern has multiple roots: %q", pattern))
			}
			root = node
		} else {
			parent := open[len(open)-1].node
			parent.inputs = append(parent.inputs, node)
		}
		open = append(open, frame{indent: indent, node: node})
	}
	if root == nil {
		panic("empty pattern")
	}
	return root
}

// matches returns true if expr has the given operator string and exactly
// the given input groups.
func matches(expr *Expr, op string, inputIDs []int) bool {
	if expr.Operator.String() != op || len(expr.Inputs) != len(inputIDs) {
		return false
	}
	for i, input := range expr.Inputs {
		if input.ID != inputIDs[i] {
			return false
		}
	}
	return true
}

// Contains returns true if some group in the space can produce the
// expression tree given by pattern. The pattern has one operator string per
// line, with inputs indented below their parent.
func (space *Space) Contains(pattern string) bool {
	tree := parsePattern(pattern)
	var groupMatches func(group *Group, tree *patternTree) bool
	groupMatches = func(group *Group, tree *patternTree) bool {
	exprs:
		for _, expr := range group.Exprs {
			if expr.Operator.String() != tree.op || len(expr.Inputs) != len(tree.inputs) {
				continue
			}
			for i, input := range expr.Inputs {
				if !groupMatches(input, tree.inputs[i]) {
					continue exprs
				}
			}
			return true
		}
		return false
	}
	for _, group := range space.groups() {
		if groupMatches(group, tree) {
			return true
		}
	}
	return false
}

// CheckInvariants verifies the internal structure of the space.
func (space *Space) CheckInvariants() error {
	if space.root == nil {
		return errors.New("space has no root group")
	}
	if space.root.mergedInto != nil {
		return errors.Newf("root group %d was merged into %d",
			space.root.ID, space.root.mergedInto.ID)
	}
	groupIDs := make(map[int]*Group)
	for _, group := range space.groups() {
		if other, found := groupIDs[group.ID]; found && other != group {
			return errors.Newf("two groups have ID %d", group.ID)
		}
		groupIDs[group.ID] = group
		if group.mergedInto != nil {
			return errors.Newf("group %d is reachable but was merged into %d",
				group.ID, group.mergedInto.ID)
		}
		if group.Best != nil && group.Best.Group != group {
			return errors.Newf("group %d has best expr %v from group %d",
				group.ID, group.Best, group.Best.Group.ID)
		}
		for _, expr := range group.Exprs {
			if expr.isStale() {
				return errors.Newf("group %d contains stale expr %v: %v",
					group.ID, expr, expr.staleReason)
			}
			if expr.Group != group {
				return errors.Newf("expr %v is in group %d but points to group %d",
					expr, group.ID, expr.Group.ID)
			}
			key := cmp.GetKey(expr)
			if space.exprHash[key] != expr {
				return errors.Newf("expr %v in group %d is missing from the hash",
					expr, group.ID)
			}
			for _, input := range expr.Inputs {
				if input == group {
					return errors.Newf("expr %v in group %d uses its own group", expr, group.ID)
				}
			}
		}
	}
	for key, expr := range space.exprHash {
		if expr.isStale() {
			return errors.Newf("hash entry %v is stale: %v", key, expr.staleReason)
		}
	}
	return nil
}

// MustCheckInvariants panics if CheckInvariants fails.
func (space *Space) MustCheckInvariants() {
	if err := space.CheckInvariants(); err != nil {
		panic(fmt.Sprintf("search space invariant failed: %v\n%v", err, space))
	}
}

// DebugCostedBest writes the best plan as an indented tree along with the
// costs and logical properties of each node.
func (space *Space) DebugCostedBest(w io.Writer) {
	if space.root.Best == nil {
		fmt.Fprintf(w, "no plan found\n")
		return
	}
	type line struct {
		label string
		expr  *Expr
	}
	var lines []line
	width := 0
	var walk func(group *Group, indent string)
	walk = func(group *Group, indent string) {
		label := indent + group.Best.Operator.String()
		if len(label) > width {
			width = len(label)
		}
		lines = append(lines, line{label: label, expr: group.Best})
		for _, input := range group.Best.Inputs {
			walk(input, indent+"    ")
		}
	}
	walk(space.root, "")
	for _, l := range lines {
		fmt.Fprintf(w, "%-*s costs local %v combined %v logicalProps: %v\n",
			width+1, l.label, l.expr.LocalCost, l.expr.CombinedCost, l.expr.Group.LogicalProp)
	}
}

// Debug writes every group reachable from the root along with the costs of
// its expressions. The best expression of each group is flagged, as is
// whether it's part of the selected plan.
func (space *Space) Debug(w io.Writer) {
	selected := make(map[*Expr]bool)
	var choose func(group *Group)
	choose = func(group *Group) {
		if group.Best == nil {
			return
		}
		selected[group.Best] = true
		for _, input := range group.Best.Inputs {
			choose(input)
		}
	}
	choose(space.root)

	pending := stack.New()
	pushed := map[*Group]bool{space.root: true}
	pending.Push(space.root)
	for pending.Len() > 0 {
		group := pending.Pop().(*Group)
		fmt.Fprintf(w, "%v\n", group)
		for _, expr := range group.Exprs {
			if expr.LocalCost == nil || expr.CombinedCost == nil {
				fmt.Fprintf(w, "\t%v\n", expr)
			} else {
				marker := ""
				switch {
				case selected[expr]:
					marker = " [best,selected]"
				case group.Best == expr:
					marker = " [best]"
				}
				fmt.Fprintf(w, "\t%-32v costs local %v combined %v%s\n",
					expr, expr.LocalCost, expr.CombinedCost, marker)
			}
			for _, input := range expr.Inputs {
				if !pushed[input] {
					pushed[input] = true
					pending.Push(input)
				}
			}
		}
	}
}
