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

// ProjectMerge combines two stacked Projects into one.
var ProjectMerge = &Rule{
	Name:        "PROJECT_MERGE",
	Description: "Merges adjacent Project operators by substituting the inner expressions into the outer ones.",
	Category:    CategoryProject,
	Match: func(env *Env, n plandef.Node) bool {
		p, ok := n.(*plandef.Project)
		if !ok {
			return false
		}
		_, ok = p.Input.(*plandef.Project)
		return ok
	},
	Apply: applyProjectMerge,
}

func applyProjectMerge(env *Env, n plandef.Node) (plandef.Node, error) {
	outer := n.(*plandef.Project)
	inner := outer.Input.(*plandef.Project)
	in := inner.Input.Schema()
	want := outer.Schema()
	exprs := make([]plandef.NamedExpr, len(outer.Exprs))
	for i, e := range outer.Exprs {
		sub, ok := substitute(e.Expr, inner)
		if !ok {
			return nil, nil
		}
		ne := plandef.NamedExpr{Expr: sub, Alias: e.Alias}
		if !sameColumn(ne.Output(in), want[i]) {
			// Keep the output name the outer Project gave this column.
			if want[i].Table != "" {
				return nil, nil
			}
			ne.Alias = want[i].Name
		}
		exprs[i] = ne
	}
	return plandef.NewProject(exprs, inner.Input), nil
}

func sameColumn(a, b plandef.Column) bool {
	return strings.EqualFold(a.Table, b.Table) && strings.EqualFold(a.Name, b.Name)
}

// ProjectRemove drops Projects that output their input unchanged.
var ProjectRemove = &Rule{
	Name:        "PROJECT_REMOVE",
	Description: "Removes a Project that outputs exactly its input columns in order.",
	Category:    CategoryProject,
	Match: func(env *Env, n plandef.Node) bool {
		p, ok := n.(*plandef.Project)
		return ok && isIdentity(p)
	},
	Apply: func(env *Env, n plandef.Node) (plandef.Node, error) {
		return n.(*plandef.Project).Input, nil
	},
}

func isIdentity(p *plandef.Project) bool {
	in := p.Input.Schema()
	out := p.Schema()
	if len(in) != len(out) {
		return false
	}
	for i, e := range p.Exprs {
		ref, ok := e.Expr.(*plandef.ColumnRef)
		if !ok || columnIndex(in, ref) != i || !sameColumn(in[i], out[i]) {
			return false
		}
	}
	return true
}
