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

	"github.com/cespare/xxhash/v2"
	"github.com/xlab/treeprint"
)

// Key returns the identity of the entire plan rooted at n. Two plans with the
// same Key compute the same result the same way.
func Key(n Node) string {
	var b strings.Builder
	writeTreeKey(&b, n)
	return b.String()
}

func writeTreeKey(b *strings.Builder, n Node) {
	n.OpKey(b)
	inputs := n.Inputs()
	if len(inputs) == 0 {
		return
	}
	b.WriteString(" (")
	for i, input := range inputs {
		if i > 0 {
			b.WriteString("; ")
		}
		writeTreeKey(b, input)
	}
	b.WriteByte(')')
}

// Fingerprint returns a 64-bit hash of Key(n).
func Fingerprint(n Node) uint64 {
	d := xxhash.New()
	d.WriteString(Key(n))
	return d.Sum64()
}

// Equal returns true if the two plans are structurally identical.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return Key(a) == Key(b)
}

// Format returns a multi-line string describing the plan, with each input
// indented by one more tab than its parent.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n, 0)
	return b.String()
}

func format(b *strings.Builder, n Node, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteByte('\t')
	}
	b.WriteString(n.String())
	b.WriteByte('\n')
	for _, input := range n.Inputs() {
		format(b, input, depth+1)
	}
}

// Inline returns a single-line string describing the plan, with inputs in
// parentheses after each operator.
func Inline(n Node) string {
	var b strings.Builder
	inline(&b, n)
	return b.String()
}

func inline(b *strings.Builder, n Node) {
	b.WriteString(n.String())
	inputs := n.Inputs()
	if len(inputs) == 0 {
		return
	}
	b.WriteString(" (")
	for i, input := range inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		inline(b, input)
	}
	b.WriteByte(')')
}

// TreeString returns the plan drawn as a tree with box-drawing characters.
// Each line also shows the operator's output columns.
func TreeString(n Node) string {
	tree := treeprint.NewWithRoot(n.String())
	for _, input := range n.Inputs() {
		addTree(tree, input)
	}
	return tree.String()
}

func addTree(tree treeprint.Tree, n Node) {
	inputs := n.Inputs()
	if len(inputs) == 0 {
		tree.AddMetaNode(n.Schema().String(), n.String())
		return
	}
	branch := tree.AddMetaBranch(n.Schema().String(), n.String())
	for _, input := range inputs {
		addTree(branch, input)
	}
}

// Walk calls fn on n and every node below it in pre-order. If fn returns
// false, the inputs of that node are skipped. A CTE referenced from several
// places is visited once per reference.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, input := range n.Inputs() {
		Walk(input, fn)
	}
}

// NodeExprs returns the scalar expressions evaluated directly by n.
func NodeExprs(n Node) []Expr {
	switch n := n.(type) {
	case *Filter:
		return []Expr{n.Predicate}
	case *Project:
		res := make([]Expr, len(n.Exprs))
		for i, e := range n.Exprs {
			res[i] = e.Expr
		}
		return res
	case *Join:
		if n.Condition != nil {
			return []Expr{n.Condition}
		}
	case *Aggregate:
		res := append([]Expr(nil), n.GroupKeys...)
		for _, agg := range n.Aggs {
			if agg.Arg != nil {
				res = append(res, agg.Arg)
			}
		}
		return res
	case *Sort:
		res := make([]Expr, len(n.Keys))
		for i, k := range n.Keys {
			res[i] = k.Expr
		}
		return res
	case *Window:
		res := append([]Expr(nil), n.Args...)
		res = append(res, n.PartitionBy...)
		for _, k := range n.OrderBy {
			res = append(res, k.Expr)
		}
		return res
	}
	return nil
}

// Subqueries returns the plans of the Exists expressions evaluated by n.
func Subqueries(n Node) []*Exists {
	var res []*Exists
	for _, e := range NodeExprs(n) {
		WalkExpr(e, func(x Expr) bool {
			if ex, ok := x.(*Exists); ok {
				res = append(res, ex)
			}
			return true
		})
	}
	return res
}

// BaseScans returns the Scans reachable from n without passing through a
// Correlate's inner side or an Exists subquery.
func BaseScans(n Node) []*Scan {
	var res []*Scan
	Walk(n, func(x Node) bool {
		switch x := x.(type) {
		case *Scan:
			res = append(res, x)
		case *Correlate:
			res = append(res, BaseScans(x.Outer)...)
			return false
		}
		return true
	})
	return res
}

// Transform rebuilds the plan bottom-up, replacing each node x with fn(x)
// when that returns a non-nil node. Unchanged subtrees are shared with the
// input plan, and a node reachable along several paths (such as a CTE) is
// transformed only once.
func Transform(n Node, fn func(Node) Node) Node {
	memo := make(map[Node]Node)
	var visit func(Node) Node
	visit = func(x Node) Node {
		if res, ok := memo[x]; ok {
			return res
		}
		inputs := x.Inputs()
		res := x
		if len(inputs) > 0 {
			changed := false
			newInputs := make([]Node, len(inputs))
			for i, input := range inputs {
				newInputs[i] = visit(input)
				if newInputs[i] != input {
					changed = true
				}
			}
			if changed {
				res = x.WithInputs(newInputs)
			}
		}
		if replaced := fn(res); replaced != nil {
			res = replaced
		}
		memo[x] = res
		return res
	}
	return visit(n)
}

// Count returns the number of distinct nodes in the plan. A shared CTE
// counts once.
func Count(n Node) int {
	seen := make(map[Node]bool)
	Walk(n, func(x Node) bool {
		if seen[x] {
			return false
		}
		seen[x] = true
		return true
	})
	return len(seen)
}

