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

// FKJoinElimination removes a join to a table whose columns are never read,
// when a foreign key guarantees the join neither drops nor duplicates rows.
//
// It matches Project(Join(Left, Right)) and Aggregate(Project(Join(Left,
// Right))) where:
//   - every conjunct of the join condition equates a Left column with a
//     Right column;
//   - Right is a Scan, or a Project over a Scan, and its join columns form a
//     unique key, either declared or inferred from NDV equal to the row count;
//   - nothing above the join reads a Right column;
//   - the join is INNER or LEFT, and a declared foreign key relates Left's
//     join columns to Right's.
//
// For an INNER join, Left rows with a NULL join column never matched, so a
// Filter of IS NOT NULL on those columns replaces the join.
var FKJoinElimination = &Rule{
	Name:        "FK_JOIN_ELIMINATION",
	Description: "Removes a join to a unique-keyed table along a foreign key when no column of that table is used above the join.",
	Category:    CategoryJoin,
	Match: func(env *Env, n plandef.Node) bool {
		_, ok := fkProject(n)
		return ok
	},
	Apply: applyFKJoinElimination,
}

// fkProject returns the Project over a Join that the rule operates on.
func fkProject(n plandef.Node) (*plandef.Project, bool) {
	if agg, ok := n.(*plandef.Aggregate); ok {
		n = agg.Input
	}
	p, ok := n.(*plandef.Project)
	if !ok {
		return nil, false
	}
	j, ok := p.Input.(*plandef.Join)
	if !ok || (j.Type != plandef.JoinInner && j.Type != plandef.JoinLeft) {
		return nil, false
	}
	return p, true
}

func applyFKJoinElimination(env *Env, n plandef.Node) (plandef.Node, error) {
	p, _ := fkProject(n)
	left, ok := eliminateFKJoin(env, p)
	if !ok {
		return nil, nil
	}
	project := plandef.NewProject(p.Exprs, left)
	if agg, ok := n.(*plandef.Aggregate); ok {
		return plandef.NewAggregate(agg.GroupKeys, agg.Aggs, project), nil
	}
	return project, nil
}

// eliminateFKJoin returns the input that can replace p's join.
func eliminateFKJoin(env *Env, p *plandef.Project) (plandef.Node, bool) {
	j := p.Input.(*plandef.Join)
	ls, rs := j.Left.Schema(), j.Right.Schema()
	for _, e := range p.Exprs {
		if refersTo(e.Expr, rs) || plandef.HasSubquery(e.Expr) {
			return nil, false
		}
	}
	pairs, rest := plandef.SplitEquiJoin(j.Condition, ls, rs)
	if len(pairs) == 0 || len(rest) > 0 {
		return nil, false
	}
	scan, ok := j.Right.(*plandef.Scan)
	if !ok {
		rp, isProject := j.Right.(*plandef.Project)
		if !isProject {
			return nil, false
		}
		if scan, ok = rp.Input.(*plandef.Scan); !ok {
			return nil, false
		}
	}
	var leftTable string
	leftCols := make([]string, len(pairs))
	rightCols := make([]string, len(pairs))
	for i, pair := range pairs {
		lc, _ := ls.Resolve(pair.Left)
		rc, _ := rs.Resolve(pair.Right)
		if lc.BaseColumn == "" || rc.BaseColumn == "" || !strings.EqualFold(rc.BaseTable, scan.Table) {
			return nil, false
		}
		if i == 0 {
			leftTable = lc.BaseTable
		} else if !strings.EqualFold(leftTable, lc.BaseTable) {
			return nil, false
		}
		leftCols[i] = lc.BaseColumn
		rightCols[i] = rc.BaseColumn
	}
	st := env.stats()
	if !uniqueKey(env, scan.Table, rightCols) {
		return nil, false
	}
	if !st.References(leftTable, leftCols, scan.Table, rightCols) {
		return nil, false
	}
	if j.Type == plandef.JoinLeft {
		return j.Left, true
	}
	notNull := make([]plandef.Expr, len(pairs))
	for i, pair := range pairs {
		notNull[i] = &plandef.IsNull{Arg: pair.Left, Negated: true}
	}
	return plandef.NewFilter(plandef.Conjoin(notNull), j.Left), true
}

// uniqueKey returns true if the columns are known to be unique in the table,
// either declared or because a column's NDV equals the table's row count.
func uniqueKey(env *Env, table string, columns []string) bool {
	st := env.stats()
	if st.IsUnique(table, columns) {
		return true
	}
	if !st.HasTable(table) {
		return false
	}
	rows := st.RowCount(table)
	for _, c := range columns {
		if ndv, ok := st.ColumnNDV(table, c); ok && rows > 0 && ndv == rows {
			return true
		}
	}
	return false
}
