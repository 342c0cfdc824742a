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

// SortProjectTranspose moves a Sort or Limit below a Project, so that it
// can meet the operators underneath, such as a CTE's own ORDER BY.
var SortProjectTranspose = &Rule{
	Name:        "SORT_PROJECT_TRANSPOSE",
	Description: "Moves a Sort or Limit below a Project so it can be combined with sorts and limits underneath.",
	Category:    CategorySort,
	Match: func(env *Env, n plandef.Node) bool {
		var in plandef.Node
		switch n := n.(type) {
		case *plandef.Sort:
			in = n.Input
		case *plandef.Limit:
			in = n.Input
		default:
			return false
		}
		_, ok := in.(*plandef.Project)
		return ok
	},
	Apply: func(env *Env, n plandef.Node) (plandef.Node, error) {
		switch n := n.(type) {
		case *plandef.Sort:
			p := n.Input.(*plandef.Project)
			keys := make([]plandef.SortKey, len(n.Keys))
			for i, k := range n.Keys {
				sub, ok := substitute(k.Expr, p)
				if !ok {
					return nil, nil
				}
				keys[i] = plandef.SortKey{Expr: sub, Desc: k.Desc}
			}
			return plandef.NewProject(p.Exprs, plandef.NewSort(keys, p.Input)), nil
		case *plandef.Limit:
			p := n.Input.(*plandef.Project)
			return plandef.NewProject(p.Exprs, plandef.NewLimit(n.Count, n.Offset, p.Input)), nil
		}
		return nil, nil
	},
}

// LimitMerge combines two stacked Limits.
var LimitMerge = &Rule{
	Name:        "LIMIT_MERGE",
	Description: "Merges adjacent Limit operators into one, combining their counts and offsets.",
	Category:    CategorySort,
	Match: func(env *Env, n plandef.Node) bool {
		l, ok := n.(*plandef.Limit)
		if !ok {
			return false
		}
		_, ok = l.Input.(*plandef.Limit)
		return ok
	},
	Apply: func(env *Env, n plandef.Node) (plandef.Node, error) {
		outer := n.(*plandef.Limit)
		inner := outer.Input.(*plandef.Limit)
		count := inner.Count - outer.Offset
		if count < 0 {
			count = 0
		}
		if outer.Count < count {
			count = outer.Count
		}
		return plandef.NewLimit(count, inner.Offset+outer.Offset, inner.Input), nil
	},
}
