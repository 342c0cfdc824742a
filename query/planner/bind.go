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

package planner

import (
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/query/planner/search"
	"github.com/ebay/querygap/query/rules"
	log "github.com/sirupsen/logrus"
)

const (
	// How many levels of operators below an expression are bound to concrete
	// nodes before a rule sees it. Inputs further down appear as GroupRefs.
	bindDepth = 4
	// Caps the number of fragments bound per input and per expression.
	maxBindings = 64
)

// binder builds the plan fragments that rules are matched against. Each
// fragment has the expression's operator at the root, and each input is
// either a GroupRef or, up to bindDepth, one of the group's expressions.
type binder struct {
	groups map[int]*search.Group
}

func newBinder() *binder {
	return &binder{groups: make(map[int]*search.Group)}
}

func (b *binder) expr(expr *search.Expr, depth int) []plandef.Node {
	op := nodeOf(expr.Operator)
	if len(expr.Inputs) == 0 {
		return []plandef.Node{op}
	}
	combos := [][]plandef.Node{nil}
	for _, input := range expr.Inputs {
		alts := b.group(input, depth-1)
		next := make([][]plandef.Node, 0, len(combos))
	combine:
		for _, combo := range combos {
			for _, alt := range alts {
				if len(next) == maxBindings {
					break combine
				}
				next = append(next, append(combo[:len(combo):len(combo)], alt))
			}
		}
		combos = next
	}
	res := make([]plandef.Node, len(combos))
	for i, inputs := range combos {
		res[i] = op.WithInputs(inputs)
	}
	return res
}

// group returns the GroupRef for the group followed by its expressions
// bound to the given depth. Leaf expressions are bound at any depth.
func (b *binder) group(group *search.Group, depth int) []plandef.Node {
	b.groups[group.ID] = group
	alts := []plandef.Node{groupRef(group)}
	for _, expr := range group.Exprs {
		if depth <= 0 && len(expr.Inputs) > 0 {
			continue
		}
		for _, n := range b.expr(expr, depth) {
			if len(alts) == maxBindings {
				return alts
			}
			alts = append(alts, n)
		}
	}
	return alts
}

// into converts a rule's output into an expression for the space. GroupRefs
// in the output become the groups they were bound from.
func (b *binder) into(n plandef.Node) search.IntoExprInput {
	if ref, ok := n.(*plandef.GroupRef); ok {
		return b.groups[ref.ID]
	}
	inputs := n.Inputs()
	children := make([]search.IntoExprInput, len(inputs))
	for i, input := range inputs {
		children[i] = b.into(input)
	}
	return search.NewExpr(&operator{node: n}, children...)
}

// refsKnown returns true if every GroupRef in n was handed out by the binder.
func (b *binder) refsKnown(n plandef.Node) bool {
	known := true
	plandef.Walk(n, func(x plandef.Node) bool {
		if ref, ok := x.(*plandef.GroupRef); ok && b.groups[ref.ID] == nil {
			known = false
		}
		return known
	})
	return known
}

// apply runs one rule against every fragment bound at expr and returns the
// distinct alternatives it produced.
func (p *planner) apply(rule *rules.Rule, expr *search.Expr) []*search.IntoExpr {
	b := newBinder()
	b.groups[expr.Group.ID] = expr.Group
	var res []*search.IntoExpr
	seen := make(map[string]bool)
	for _, fragment := range b.expr(expr, bindDepth) {
		out, err := rule.Try(p.env, fragment)
		if err != nil {
			log.WithFields(log.Fields{
				"rule":  rule.Name,
				"node":  fragment,
				"error": err,
			}).Warn("Skipping rule that failed")
			p.warn(err)
			continue
		}
		if out == nil {
			continue
		}
		if _, bare := out.(*plandef.GroupRef); bare {
			// The rewrite reduced the fragment to one of its input groups.
			// search can't express that equivalence without merging groups.
			continue
		}
		if !b.refsKnown(out) {
			continue
		}
		key := plandef.Key(out)
		if seen[key] || key == plandef.Key(fragment) {
			continue
		}
		seen[key] = true
		p.fired[rule.Name]++
		res = append(res, b.into(out).(*search.IntoExpr))
	}
	return res
}
