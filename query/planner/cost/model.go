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

// Package cost estimates the number of rows produced by plan nodes and the
// cost of executing plans. Estimates are derived from a stats.Provider and are
// always finite and non-negative: missing statistics fall back to defaults.
package cost

import (
	"math"
	"sort"
	"strings"

	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/stats"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

// Infinite is the largest cost or row estimate ever returned. Estimates that
// overflow, or come out as NaN, are replaced by it.
const Infinite = 1e18

// Operator names, used as keys for weights.
const (
	OpScan      = "scan"
	OpFilter    = "filter"
	OpProject   = "project"
	OpJoin      = "join"
	OpAggregate = "aggregate"
	OpSort      = "sort"
	OpLimit     = "limit"
	OpWindow    = "window"
	OpSetOp     = "setop"
	OpCorrelate = "correlate"
	OpCTE       = "cte"
	OpGroup     = "group"
)

// DefaultWeights gives the cost per output row of each operator.
var DefaultWeights = map[string]float64{
	OpScan:      1.0,
	OpFilter:    0.2,
	OpProject:   0.1,
	OpJoin:      1.0,
	OpAggregate: 1.0,
	OpSort:      1.5,
	OpLimit:     0.05,
	OpWindow:    1.5,
	OpSetOp:     0.5,
	OpCorrelate: 0.5,
	OpCTE:       0.1,
	OpGroup:     0,
}

// OpName returns the weight key for the node's operator.
func OpName(n plandef.Node) string {
	switch n.(type) {
	case *plandef.Scan:
		return OpScan
	case *plandef.Filter:
		return OpFilter
	case *plandef.Project:
		return OpProject
	case *plandef.Join:
		return OpJoin
	case *plandef.Aggregate:
		return OpAggregate
	case *plandef.Sort:
		return OpSort
	case *plandef.Limit:
		return OpLimit
	case *plandef.Window:
		return OpWindow
	case *plandef.SetOp:
		return OpSetOp
	case *plandef.Correlate:
		return OpCorrelate
	case *plandef.CTE:
		return OpCTE
	case *plandef.GroupRef:
		return OpGroup
	}
	return "unknown"
}

// A Model estimates rows and costs. Row estimates are cached per node; since
// nodes are immutable, cached values stay valid for as long as the Model is
// used. A Model is safe for concurrent use.
type Model struct {
	stats   stats.Provider
	weights map[string]float64
	rows    *xsync.MapOf[plandef.Node, float64]
}

// NewModel returns a Model that reads statistics from 'provider'. Entries in
// 'weights' override DefaultWeights; negative and non-finite weights are
// ignored.
func NewModel(provider stats.Provider, weights map[string]float64) *Model {
	if provider == nil {
		provider = stats.Empty
	}
	m := &Model{
		stats:   provider,
		weights: make(map[string]float64, len(DefaultWeights)),
		rows:    xsync.NewMapOf[plandef.Node, float64](),
	}
	for op, w := range DefaultWeights {
		m.weights[op] = w
	}
	for op, w := range weights {
		op = strings.ToLower(op)
		if _, known := DefaultWeights[op]; !known || w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			log.WithFields(log.Fields{"op": op, "weight": w}).Warn("Ignoring cost weight")
			continue
		}
		m.weights[op] = w
	}
	return m
}

// Stats returns the statistics the Model reads.
func (m *Model) Stats() stats.Provider {
	return m.stats
}

// Weight returns the cost per row of the named operator.
func (m *Model) Weight(op string) float64 {
	return m.weights[op]
}

// Weights returns a copy of the Model's weights, sorted by operator name.
func (m *Model) Weights() []Weight {
	res := make([]Weight, 0, len(m.weights))
	for op, w := range m.weights {
		res = append(res, Weight{Op: op, Weight: w})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Op < res[j].Op })
	return res
}

// Weight is one entry of Model.Weights.
type Weight struct {
	Op     string
	Weight float64
}

// finite clamps an estimate into [0, Infinite].
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v), v > Infinite:
		return Infinite
	case v < 0:
		return 0
	}
	return v
}

// Rows returns the estimated number of rows produced by n.
func (m *Model) Rows(n plandef.Node) float64 {
	if r, found := m.rows.Load(n); found {
		return r
	}
	// Not LoadOrCompute: estimating n recurses into Rows for its inputs.
	r := math.Min(finite(m.estimateRows(n)), float64(stats.MaxRowCount))
	m.rows.Store(n, r)
	return r
}

func (m *Model) estimateRows(n plandef.Node) float64 {
	switch n := n.(type) {
	case *plandef.Scan:
		return float64(m.stats.RowCount(n.Table))
	case *plandef.Filter:
		return m.Rows(n.Input) * m.Selectivity(n.Predicate, n.Input)
	case *plandef.Project:
		return m.Rows(n.Input)
	case *plandef.Sort:
		return m.Rows(n.Input)
	case *plandef.Window:
		return m.Rows(n.Input)
	case *plandef.CTE:
		return m.Rows(n.Input)
	case *plandef.Join:
		return m.joinRows(n)
	case *plandef.Aggregate:
		if len(n.GroupKeys) == 0 {
			return 1
		}
		return math.Min(m.Rows(n.Input), m.Distinct(n.Input, n.GroupKeys))
	case *plandef.Limit:
		return math.Min(math.Max(m.Rows(n.Input)-float64(n.Offset), 0), float64(n.Count))
	case *plandef.SetOp:
		return m.setOpRows(n)
	case *plandef.Correlate:
		outer := m.Rows(n.Outer)
		rows := outer * m.Rows(n.Inner)
		if n.Type == plandef.JoinLeft {
			rows = math.Max(rows, outer)
		}
		return rows
	case *plandef.GroupRef:
		return n.Rows
	}
	log.WithField("node", n).Warn("Unsupported node in cost model; using default row count")
	return float64(stats.DefaultRowCount)
}

func (m *Model) setOpRows(n *plandef.SetOp) float64 {
	if len(n.Input) == 0 {
		return 0
	}
	switch n.Kind {
	case plandef.Intersect:
		res := m.Rows(n.Input[0])
		for _, in := range n.Input[1:] {
			res = math.Min(res, m.Rows(in))
		}
		return res
	case plandef.Except:
		return m.Rows(n.Input[0])
	}
	sum := 0.0
	for _, in := range n.Input {
		sum += m.Rows(in)
	}
	return sum
}

func (m *Model) joinRows(j *plandef.Join) float64 {
	l, r := m.Rows(j.Left), m.Rows(j.Right)
	ls, rs := j.Left.Schema(), j.Right.Schema()
	pairs, rest := plandef.SplitEquiJoin(j.Condition, ls, rs)
	both := plandef.Schema(append(append(plandef.Schema(nil), ls...), rs...))
	restSel := m.selectivity(plandef.Conjoin(rest), both, l*r)

	switch j.Type {
	case plandef.JoinSemi, plandef.JoinAnti:
		frac := restSel
		if len(pairs) == 0 && len(rest) == 0 {
			frac = 1
		}
		for _, p := range pairs {
			ln, rn := m.columnNDV(ls, l, p.Left), m.columnNDV(rs, r, p.Right)
			frac *= math.Min(1, rn/math.Max(ln, 1))
		}
		if j.Type == plandef.JoinAnti {
			frac = math.Max(1-frac, stats.DefaultNDVFraction)
		}
		return math.Max(l*frac, math.Min(l, 1))
	}

	denom := 1.0
	for _, p := range pairs {
		denom *= math.Max(m.columnNDV(ls, l, p.Left), m.columnNDV(rs, r, p.Right))
	}
	denom = math.Max(math.Min(denom, math.Max(l, r)), 1)
	est := math.Max(l*r/denom*restSel, 1)
	switch j.Type {
	case plandef.JoinLeft:
		est = math.Max(est, l)
	case plandef.JoinRight:
		est = math.Max(est, r)
	case plandef.JoinFull:
		est = math.Max(est, math.Max(l, r))
	}
	return est
}

// Distinct returns the estimated number of distinct combinations of the
// given expressions over the rows produced by n. The result is at least 1 and
// at most Rows(n).
func (m *Model) Distinct(n plandef.Node, exprs []plandef.Expr) float64 {
	rows := m.Rows(n)
	schema := n.Schema()
	ndv := 1.0
	for _, e := range exprs {
		ndv *= m.exprNDV(schema, rows, e)
		if ndv >= rows {
			break
		}
	}
	return math.Max(math.Min(ndv, rows), 1)
}

func (m *Model) exprNDV(schema plandef.Schema, rows float64, e plandef.Expr) float64 {
	switch e := e.(type) {
	case *plandef.ColumnRef:
		return m.columnNDV(schema, rows, e)
	case *plandef.Literal, *plandef.OuterRef:
		return 1
	}
	return math.Max(rows*stats.DefaultNDVFraction, 1)
}

// columnNDV returns the NDV of the referenced column, capped by rows. Columns
// without statistics get DefaultNDVFraction of their base table's rows.
func (m *Model) columnNDV(schema plandef.Schema, rows float64, ref *plandef.ColumnRef) float64 {
	ndv, found := m.statsNDV(schema, ref)
	if !found {
		base := rows
		if c, ok := schema.Resolve(ref); ok && c.BaseTable != "" {
			base = float64(m.stats.RowCount(c.BaseTable))
		}
		ndv = base * stats.DefaultNDVFraction
	}
	return math.Max(math.Min(ndv, rows), 1)
}

// statsNDV returns the NDV statistic for the base column of 'ref', if there
// is one.
func (m *Model) statsNDV(schema plandef.Schema, ref *plandef.ColumnRef) (float64, bool) {
	c, ok := schema.Resolve(ref)
	if !ok || c.BaseTable == "" {
		return 0, false
	}
	ndv, found := m.stats.ColumnNDV(c.BaseTable, c.BaseColumn)
	if !found {
		return 0, false
	}
	return math.Max(float64(ndv), 1), true
}

// OperatorCost returns the cost of n itself, excluding its inputs.
func (m *Model) OperatorCost(n plandef.Node) float64 {
	return finite(m.Weight(OpName(n)) * m.Rows(n))
}

// Cost returns the total cost of the plan rooted at n: the sum of every
// operator's cost. A CTE referenced several times is counted once. The inner
// side of a Correlate is paid once per outer row.
func (m *Model) Cost(n plandef.Node) float64 {
	return finite(m.cost(n, make(map[*plandef.CTE]bool)))
}

func (m *Model) cost(n plandef.Node, seen map[*plandef.CTE]bool) float64 {
	switch n := n.(type) {
	case *plandef.CTE:
		if seen[n] {
			return 0
		}
		seen[n] = true
	case *plandef.Correlate:
		return m.OperatorCost(n) + m.cost(n.Outer, seen) + m.Rows(n.Outer)*m.cost(n.Inner, seen)
	case *plandef.Filter:
		if _, isScan := n.Input.(*plandef.Scan); isScan && IsIndexProbe(n) {
			return m.OperatorCost(n) + m.ProbeCost(n)
		}
	}
	total := m.OperatorCost(n)
	for _, input := range n.Inputs() {
		total += m.cost(input, seen)
	}
	return total
}

// ProbeCost returns the cost of reading only the rows of the filter's input
// that match its outer-reference equality, rather than the whole input.
func (m *Model) ProbeCost(f *plandef.Filter) float64 {
	return finite(m.Weight(OpScan) * m.Rows(f))
}

// IsIndexProbe returns true if the filter's predicate includes an equality
// between one of its input's columns and an outer reference. Such a filter
// directly over a Scan is costed as a keyed lookup.
func IsIndexProbe(f *plandef.Filter) bool {
	for _, c := range plandef.Conjuncts(f.Predicate) {
		cmp, ok := c.(*plandef.Compare)
		if !ok || cmp.Op != plandef.OpEq {
			continue
		}
		_, lcol := cmp.Left.(*plandef.ColumnRef)
		_, rcol := cmp.Right.(*plandef.ColumnRef)
		_, louter := cmp.Left.(*plandef.OuterRef)
		_, router := cmp.Right.(*plandef.OuterRef)
		if (lcol && router) || (louter && rcol) {
			return true
		}
	}
	return false
}
