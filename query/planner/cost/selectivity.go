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

package cost

import (
	"math"

	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/stats"
)

const (
	// MinSelectivity is the smallest selectivity ever estimated.
	MinSelectivity = 1.0 / float64(stats.MaxRowCount)
	// NullFraction is the assumed fraction of NULLs in a column.
	NullFraction = 0.1
)

func clampSelectivity(s float64) float64 {
	if math.IsNaN(s) {
		return stats.DefaultSelectivity
	}
	return math.Max(math.Min(s, 1), MinSelectivity)
}

// Selectivity returns the estimated fraction of the input's rows for which
// the predicate is true. A nil predicate has selectivity 1.
func (m *Model) Selectivity(pred plandef.Expr, input plandef.Node) float64 {
	return m.selectivity(pred, input.Schema(), m.Rows(input))
}

func (m *Model) selectivity(pred plandef.Expr, schema plandef.Schema, rows float64) float64 {
	if pred == nil {
		return 1
	}
	sel := 1.0
	for _, c := range plandef.Conjuncts(pred) {
		sel *= m.conjunctSelectivity(c, schema, rows)
	}
	return clampSelectivity(sel)
}

func (m *Model) conjunctSelectivity(e plandef.Expr, schema plandef.Schema, rows float64) float64 {
	switch e := e.(type) {
	case *plandef.Compare:
		return clampSelectivity(m.compareSelectivity(e, schema, rows))
	case *plandef.IsNull:
		if e.Negated {
			return 1 - NullFraction
		}
		return NullFraction
	case *plandef.InList:
		s := math.Min(1, float64(len(e.Values))*m.eqSelectivity(e.Arg, schema, rows))
		if e.Negated {
			return clampSelectivity(1 - s)
		}
		return clampSelectivity(s)
	case *plandef.And:
		return m.selectivity(e, schema, rows)
	case *plandef.Or:
		none := 1.0
		for _, arg := range e.Args {
			none *= 1 - m.selectivity(arg, schema, rows)
		}
		return clampSelectivity(1 - none)
	case *plandef.Not:
		return clampSelectivity(1 - m.selectivity(e.Arg, schema, rows))
	case *plandef.Literal:
		if b, ok := e.Value.(bool); ok && b {
			return 1
		}
		return MinSelectivity
	case *plandef.Exists:
		if e.Negated {
			return 1 - stats.DefaultSelectivity
		}
		return stats.DefaultSelectivity
	}
	return stats.DefaultSelectivity
}

func (m *Model) compareSelectivity(e *plandef.Compare, schema plandef.Schema, rows float64) float64 {
	lref, lok := e.Left.(*plandef.ColumnRef)
	rref, rok := e.Right.(*plandef.ColumnRef)
	if lok && rok {
		_, lfound := schema.Resolve(lref)
		_, rfound := schema.Resolve(rref)
		if lfound && rfound {
			eq := 1 / math.Max(m.columnNDV(schema, rows, lref), m.columnNDV(schema, rows, rref))
			switch e.Op {
			case plandef.OpEq:
				return eq
			case plandef.OpNotEq:
				return 1 - eq
			}
			return stats.DefaultSelectivity
		}
	}
	col := lref
	if !lok {
		col = rref
	}
	if col == nil {
		return stats.DefaultSelectivity
	}
	switch e.Op {
	case plandef.OpEq:
		return m.eqSelectivity(col, schema, rows)
	case plandef.OpNotEq:
		return 1 - m.eqSelectivity(col, schema, rows)
	}
	if hint, found := m.hint(schema, col); found {
		return hint
	}
	return stats.DefaultSelectivity
}

// eqSelectivity returns the selectivity of "e = constant".
func (m *Model) eqSelectivity(e plandef.Expr, schema plandef.Schema, rows float64) float64 {
	ref, ok := e.(*plandef.ColumnRef)
	if !ok {
		return stats.DefaultSelectivity
	}
	if hint, found := m.hint(schema, ref); found {
		return hint
	}
	if ndv, found := m.statsNDV(schema, ref); found {
		return 1 / ndv
	}
	return stats.DefaultSelectivity
}

func (m *Model) hint(schema plandef.Schema, ref *plandef.ColumnRef) (float64, bool) {
	c, ok := schema.Resolve(ref)
	if !ok || c.BaseTable == "" {
		return 0, false
	}
	return m.stats.Selectivity(c.BaseTable, c.BaseColumn)
}
