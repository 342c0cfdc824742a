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

package gaps

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/query/rules"
	"github.com/ebay/querygap/stats"
	"github.com/golang-collections/collections/stack"
	log "github.com/sirupsen/logrus"
)

// Options are the thresholds of the detector. Zero fields take the defaults.
type Options struct {
	// A relation with more rows than this is large. Defaults to 1,000,000.
	LargeTableRows int64
	// Minimum number of relations in one join for JOIN_ORDER. Defaults to 3.
	MinJoinRelations int
	// Largest K of a grouped top-K. Defaults to 100.
	MaxTopK int64
	// Minimum number of LEFT JOINs against one relation for
	// MULTIPLE_LEFT_JOINS. Defaults to 3.
	MinLeftJoins int
}

// Defaults for Options.
const (
	DefaultLargeTableRows   int64 = 1000000
	DefaultMinJoinRelations       = 3
	DefaultMaxTopK          int64 = 100
	DefaultMinLeftJoins           = 3
)

func (opts Options) withDefaults() Options {
	if opts.LargeTableRows <= 0 {
		opts.LargeTableRows = DefaultLargeTableRows
	}
	if opts.MinJoinRelations <= 0 {
		opts.MinJoinRelations = DefaultMinJoinRelations
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = DefaultMaxTopK
	}
	if opts.MinLeftJoins <= 0 {
		opts.MinLeftJoins = DefaultMinLeftJoins
	}
	return opts
}

// Input is what the detector examines.
type Input struct {
	Plan plandef.Node
	// Optional EXPLAIN output of the target engine. Join-order hints found in
	// it suppress JOIN_ORDER.
	Explain string
	// Optional row counts reported by the target engine, by table name. They
	// take precedence over the statistics.
	RowCounts map[string]int64
}

// Detector finds gaps in plans. It's immutable and safe for concurrent use.
type Detector struct {
	opts  Options
	stats stats.Provider
}

// NewDetector returns a detector that uses 'provider' for table row counts.
// provider may be nil.
func NewDetector(provider stats.Provider, opts Options) *Detector {
	if provider == nil {
		provider = stats.Empty
	}
	return &Detector{opts: opts.withDefaults(), stats: provider}
}

// Options returns the thresholds in use.
func (d *Detector) Options() Options {
	return d.opts
}

// Analyze returns every gap found in the input. Gaps are detected
// independently of each other.
func (d *Detector) Analyze(in Input) *Analysis {
	res := &Analysis{Gaps: []DetectedGap{}}
	if in.Plan == nil {
		return res
	}
	s := analysisState{detector: d, in: in, nodes: allNodes(in.Plan)}
	for _, detect := range []func() *DetectedGap{
		s.joinOrder,
		s.semiJoinInequality,
		s.groupedTopN,
		s.cteLimit,
		s.setOps,
		s.multipleLeftJoins,
	} {
		if gap := detect(); gap != nil {
			res.Gaps = append(res.Gaps, *gap)
		}
	}
	log.WithField("gaps", len(res.Gaps)).Debug("Analyzed plan")
	return res
}

// allNodes returns every distinct node of the plan, including the plans of
// EXISTS subqueries, in pre-order.
func allNodes(plan plandef.Node) []plandef.Node {
	var res []plandef.Node
	seen := make(map[plandef.Node]bool)
	pending := stack.New()
	pending.Push(plan)
	for pending.Len() > 0 {
		n := pending.Pop().(plandef.Node)
		if seen[n] {
			continue
		}
		seen[n] = true
		res = append(res, n)
		for _, ex := range plandef.Subqueries(n) {
			pending.Push(ex.Subquery)
		}
		inputs := n.Inputs()
		for i := len(inputs) - 1; i >= 0; i-- {
			pending.Push(inputs[i])
		}
	}
	return res
}

// analysisState holds the state of one Analyze call.
type analysisState struct {
	detector *Detector
	in       Input
	nodes    []plandef.Node
}

func (s *analysisState) rowCount(table string) (int64, bool) {
	for name, rows := range s.in.RowCounts {
		if strings.EqualFold(name, table) {
			return rows, true
		}
	}
	if s.detector.stats.HasTable(table) {
		return s.detector.stats.RowCount(table), true
	}
	return 0, false
}

// joinOrderHints match EXPLAIN text showing that the join order was fixed by
// the query author. Hints are matched as whole words so that operator
// annotations such as "ORDERED FORWARD" or "UNORDERED" do not count.
var joinOrderHints = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bLEADING\s*\(`),
	regexp.MustCompile(`(?i)\bSTRAIGHT_JOIN\b`),
	regexp.MustCompile(`(?i)\bFORCE\s+ORDER\b`),
	regexp.MustCompile(`(?i)\bJOIN_ORDER\s*\(`),
	regexp.MustCompile(`(?i)\bFIXED\s+JOIN\s+ORDER\b`),
}

// hintComments finds optimizer hint comments, like "/*+ ORDERED */".
var hintComments = regexp.MustCompile(`(?s)/\*\+(.*?)\*/`)

// orderedHint is only a join order hint inside a hint comment.
var orderedHint = regexp.MustCompile(`(?i)\bORDERED\b`)

func hasJoinOrderHint(explain string) bool {
	for _, hint := range joinOrderHints {
		if hint.MatchString(explain) {
			return true
		}
	}
	for _, m := range hintComments.FindAllStringSubmatch(explain, -1) {
		if orderedHint.MatchString(m[1]) {
			return true
		}
	}
	return false
}

// joinLeaves returns the inputs of the tree of Joins rooted at j that are
// not themselves Joins.
func joinLeaves(j *plandef.Join) []plandef.Node {
	var leaves []plandef.Node
	for _, input := range j.Inputs() {
		if child, ok := input.(*plandef.Join); ok {
			leaves = append(leaves, joinLeaves(child)...)
		} else {
			leaves = append(leaves, input)
		}
	}
	return leaves
}

func (s *analysisState) joinOrder() *DetectedGap {
	opts := s.detector.opts
	if hasJoinOrderHint(s.in.Explain) {
		return nil
	}
	for _, n := range s.nodes {
		j, ok := n.(*plandef.Join)
		if !ok {
			continue
		}
		leaves := joinLeaves(j)
		if len(leaves) < opts.MinJoinRelations {
			continue
		}
		large := mapset.NewThreadUnsafeSet[string]()
		for _, leaf := range leaves {
			for _, sc := range plandef.BaseScans(leaf) {
				if rows, found := s.rowCount(sc.Table); found && rows > opts.LargeTableRows {
					large.Add(sc.Table)
				}
			}
		}
		if large.Cardinality() == 0 {
			continue
		}
		tables := large.ToSlice()
		sort.Strings(tables)
		return &DetectedGap{
			Gap: JoinOrder,
			Note: fmt.Sprintf("%d relations are joined, including large table(s) %v, "+
				"and no join order hint was given; the engine's join order is likely poor",
				len(leaves), strings.Join(tables, ", ")),
			Optimizer: CostBased,
			Rules: []string{
				rules.JoinCommute.Name,
				rules.JoinAssociate.Name,
				rules.MultiJoinOptimize.Name,
				rules.FilterIntoJoin.Name,
			},
		}
	}
	return nil
}

// inequalityJoin returns true for a semi or anti join with a condition
// conjunct that compares the two sides through something other than
// equality. Equi-join conjuncts alongside it don't matter.
func inequalityJoin(j *plandef.Join) bool {
	if j.Type != plandef.JoinSemi && j.Type != plandef.JoinAnti {
		return false
	}
	left, right := j.Left.Schema(), j.Right.Schema()
	_, rest := plandef.SplitEquiJoin(j.Condition, left, right)
	for _, e := range rest {
		if c, ok := e.(*plandef.Compare); ok && c.Op.Inequality() && crossesSides(c, left, right) {
			return true
		}
	}
	return false
}

// crossesSides returns true if e references columns from both 'left' and
// 'right'.
func crossesSides(e plandef.Expr, left, right plandef.Schema) bool {
	inLeft, inRight := false, false
	for _, ref := range plandef.ColumnRefs(e) {
		if _, ok := left.Resolve(ref); ok {
			inLeft = true
		} else if _, ok := right.Resolve(ref); ok {
			inRight = true
		}
	}
	return inLeft && inRight
}

func (s *analysisState) semiJoinInequality() *DetectedGap {
	for _, n := range s.nodes {
		for _, ex := range plandef.Subqueries(n) {
			if rules.CorrelatedInequality(ex) {
				kind := "EXISTS"
				if ex.Negated {
					kind = "NOT EXISTS"
				}
				return semiJoinGap(kind + " subquery is correlated through an inequality")
			}
		}
		if j, ok := n.(*plandef.Join); ok && inequalityJoin(j) {
			return semiJoinGap(fmt.Sprintf("%v join relates its inputs through an inequality", j.Type))
		}
	}
	return nil
}

func semiJoinGap(what string) *DetectedGap {
	return &DetectedGap{
		Gap:       SemiJoinInequality,
		Note:      what + "; the engine is likely to evaluate it as a nested loop",
		Optimizer: Heuristic,
		Rules: []string{
			rules.ProjectToSemiJoin.Name,
			rules.JoinToSemiJoin.Name,
		},
	}
}

// rankingWindow looks through Projects below n for a ranking Window with a
// PARTITION BY.
func rankingWindow(n plandef.Node) *plandef.Window {
	for {
		switch x := n.(type) {
		case *plandef.Project:
			n = x.Input
			continue
		case *plandef.Window:
			if !x.Func.Ranking() || len(x.PartitionBy) == 0 {
				return nil
			}
			return x
		}
		return nil
	}
}

// rankBound returns K if e bounds the column named alias to at most K, as
// in "alias <= K", "alias < K+1" or "alias = 1".
func rankBound(e plandef.Expr, alias string) (int64, bool) {
	c, ok := e.(*plandef.Compare)
	if !ok {
		return 0, false
	}
	ref, lit, op := c.Left, c.Right, c.Op
	if _, isLit := ref.(*plandef.Literal); isLit {
		ref, lit, op = c.Right, c.Left, c.Op.Reverse()
	}
	col, ok := ref.(*plandef.ColumnRef)
	if !ok || !strings.EqualFold(col.Name, alias) {
		return 0, false
	}
	l, ok := lit.(*plandef.Literal)
	if !ok {
		return 0, false
	}
	k, ok := l.Int()
	if !ok {
		return 0, false
	}
	switch op {
	case plandef.OpLessEq:
		return k, k >= 1
	case plandef.OpEq:
		return k, k == 1
	case plandef.OpLess:
		return k - 1, k > 1
	}
	return 0, false
}

func (s *analysisState) groupedTopN() *DetectedGap {
	for _, n := range s.nodes {
		f, ok := n.(*plandef.Filter)
		if !ok {
			continue
		}
		window := rankingWindow(f.Input)
		if window == nil {
			continue
		}
		for _, conj := range plandef.Conjuncts(f.Predicate) {
			k, ok := rankBound(conj, window.Alias)
			if !ok || k > s.detector.opts.MaxTopK {
				continue
			}
			return &DetectedGap{
				Gap: GroupedTopN,
				Note: fmt.Sprintf("top %d rows per %v group are selected by filtering %v(); "+
					"the engine computes the window over every row. "+
					"QUALIFY or a LATERAL join per group are alternatives",
					k, partitionString(window), window.Func),
				Optimizer: Heuristic,
				Rules:     []string{rules.GroupedTopNToLateral.Name},
			}
		}
	}
	return nil
}

func partitionString(w *plandef.Window) string {
	keys := make([]string, len(w.PartitionBy))
	for i, e := range w.PartitionBy {
		keys[i] = e.String()
	}
	return "(" + strings.Join(keys, ", ") + ")"
}

// sortedCTE returns true if the CTE's own subtree contains a Sort.
func sortedCTE(c *plandef.CTE) bool {
	found := false
	plandef.Walk(c.Input, func(n plandef.Node) bool {
		switch n.(type) {
		case *plandef.Sort:
			found = true
		case *plandef.CTE:
			return false
		}
		return !found
	})
	return found
}

func (s *analysisState) cteLimit() *DetectedGap {
	for _, n := range s.nodes {
		limit, ok := n.(*plandef.Limit)
		if !ok {
			continue
		}
		var cte *plandef.CTE
		plandef.Walk(limit.Input, func(x plandef.Node) bool {
			if c, ok := x.(*plandef.CTE); ok && cte == nil && sortedCTE(c) {
				cte = c
			}
			return cte == nil
		})
		if cte != nil {
			return &DetectedGap{
				Gap: CTELimit,
				Note: fmt.Sprintf("CTE %v is sorted but LIMIT %d is applied only after it is consumed; "+
					"the engine sorts the whole CTE", cte.Name, limit.Count),
				Optimizer: Heuristic,
				Rules: []string{
					rules.SortProjectTranspose.Name,
					rules.LimitMerge.Name,
				},
			}
		}
	}
	return nil
}

func (s *analysisState) setOps() *DetectedGap {
	kinds := mapset.NewThreadUnsafeSet[string]()
	for _, n := range s.nodes {
		if op, ok := n.(*plandef.SetOp); ok && op.Kind != plandef.Union {
			kinds.Add(strings.ToUpper(op.Kind.String()))
		}
	}
	if kinds.Cardinality() == 0 {
		return nil
	}
	names := kinds.ToSlice()
	sort.Strings(names)
	return &DetectedGap{
		Gap: SetOpNoShortCircuit,
		Note: fmt.Sprintf("%v evaluates every input in full, even when one input is empty; "+
			"no rule rewrites this", strings.Join(names, " and ")),
		Optimizer: None,
		Rules:     []string{},
	}
}

// leftJoinTarget describes the relation a LEFT JOIN reads on its right side
// and the columns it joins on, such as "customers(id)". It returns "" if the
// right side isn't a single table.
func leftJoinTarget(j *plandef.Join) string {
	scans := plandef.BaseScans(j.Right)
	if len(scans) != 1 {
		return ""
	}
	pairs, _ := plandef.SplitEquiJoin(j.Condition, j.Left.Schema(), j.Right.Schema())
	if len(pairs) == 0 {
		return ""
	}
	cols := make([]string, len(pairs))
	for i, p := range pairs {
		cols[i] = strings.ToLower(p.Right.Name)
	}
	sort.Strings(cols)
	return fmt.Sprintf("%v(%v)", strings.ToLower(scans[0].Table), strings.Join(cols, ", "))
}

// nullRejectedAbove returns true if a Filter above j rejects NULLs in a
// column from j's right side.
func (s *analysisState) nullRejectedAbove(j *plandef.Join) bool {
	right := j.Right.Schema()
	for _, n := range s.nodes {
		f, ok := n.(*plandef.Filter)
		if !ok || !plandef.NullRejecting(f.Predicate, right) {
			continue
		}
		below := false
		plandef.Walk(f.Input, func(x plandef.Node) bool {
			if x == plandef.Node(j) {
				below = true
			}
			return !below
		})
		if below {
			return true
		}
	}
	return false
}

func (s *analysisState) multipleLeftJoins() *DetectedGap {
	byTarget := make(map[string][]*plandef.Join)
	var targets []string
	for _, n := range s.nodes {
		j, ok := n.(*plandef.Join)
		if !ok || j.Type != plandef.JoinLeft {
			continue
		}
		target := leftJoinTarget(j)
		if target == "" {
			continue
		}
		if _, found := byTarget[target]; !found {
			targets = append(targets, target)
		}
		byTarget[target] = append(byTarget[target], j)
	}
	for _, target := range targets {
		joins := byTarget[target]
		if len(joins) < s.detector.opts.MinLeftJoins {
			continue
		}
		note := fmt.Sprintf("%d LEFT JOINs read %v", len(joins), target)
		for _, j := range joins {
			if s.nullRejectedAbove(j) {
				note += "; a WHERE predicate on a joined column is null-rejecting, " +
					"so some of these LEFT JOINs can become INNER JOINs"
				break
			}
		}
		return &DetectedGap{
			Gap:       MultipleLeftJoins,
			Note:      note,
			Optimizer: CostBased,
			Rules: []string{
				rules.OuterJoinSimplify.Name,
				rules.FilterIntoJoin.Name,
				rules.FKJoinElimination.Name,
			},
		}
	}
	return nil
}
