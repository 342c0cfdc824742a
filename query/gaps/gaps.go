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

// Package gaps detects query shapes that a target engine's own optimizer is
// known to handle poorly, and recommends the rules and the optimizer that
// repair them.
package gaps

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Gap names a class of query shapes.
type Gap string

// Gap values.
const (
	JoinOrder           Gap = "JOIN_ORDER"
	SemiJoinInequality  Gap = "SEMI_JOIN_INEQUALITY"
	GroupedTopN         Gap = "GROUPED_TOPN"
	CTELimit            Gap = "CTE_LIMIT"
	SetOpNoShortCircuit Gap = "SET_OP_NO_SHORTCIRCUIT"
	MultipleLeftJoins   Gap = "MULTIPLE_LEFT_JOINS"
)

// Strategy selects an optimizer.
type Strategy string

// Strategy values.
const (
	// None means no optimization is needed.
	None      Strategy = "NONE"
	Heuristic Strategy = "HEURISTIC"
	CostBased Strategy = "COST_BASED"
)

// ParseStrategy returns the strategy with the given name, ignoring case.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case Heuristic:
		return Heuristic, true
	case CostBased:
		return CostBased, true
	case None:
		return None, true
	}
	return "", false
}

// DetectedGap is one gap found in a query.
type DetectedGap struct {
	Gap  Gap
	Note string
	// The optimizer this gap calls for. None for gaps that are reported for
	// information only.
	Optimizer Strategy
	// Names of the catalog rules that address the gap, in the order they
	// should be applied.
	Rules []string
}

// Analysis is the outcome of Detector.Analyze.
type Analysis struct {
	// In detection order: JOIN_ORDER, SEMI_JOIN_INEQUALITY, GROUPED_TOPN,
	// CTE_LIMIT, SET_OP_NO_SHORTCIRCUIT, MULTIPLE_LEFT_JOINS.
	Gaps []DetectedGap
}

// Has returns true if the gap was detected.
func (a *Analysis) Has(gap Gap) bool {
	for _, g := range a.Gaps {
		if g.Gap == gap {
			return true
		}
	}
	return false
}

// RecommendedOptimizer returns CostBased if any detected gap calls for it,
// otherwise Heuristic if any gap was detected, otherwise None.
func (a *Analysis) RecommendedOptimizer() Strategy {
	if len(a.Gaps) == 0 {
		return None
	}
	for _, g := range a.Gaps {
		if g.Optimizer == CostBased {
			return CostBased
		}
	}
	return Heuristic
}

// AllRecommendedRules returns the union of the rules of every detected gap,
// in order of first occurrence.
func (a *Analysis) AllRecommendedRules() []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	res := []string{}
	for _, g := range a.Gaps {
		for _, rule := range g.Rules {
			if seen.Add(rule) {
				res = append(res, rule)
			}
		}
	}
	return res
}

// Format renders the analysis as a report: a title, the detected gaps and
// the recommendation.
func (a *Analysis) Format() string {
	var b strings.Builder
	b.WriteString("QUERY OPTIMIZER GAP ANALYSIS\n")
	b.WriteString("============================\n\n")
	b.WriteString("DETECTED GAPS\n")
	if len(a.Gaps) == 0 {
		b.WriteString("  No known gaps detected\n")
	}
	for i, g := range a.Gaps {
		fmt.Fprintf(&b, "  %d. %v\n", i+1, g.Gap)
		fmt.Fprintf(&b, "     Note: %v\n", g.Note)
		if len(g.Rules) > 0 {
			fmt.Fprintf(&b, "     Rules: %v\n", strings.Join(g.Rules, ", "))
		} else {
			b.WriteString("     Rules: none (informational)\n")
		}
	}
	b.WriteString("\nRECOMMENDATION\n")
	switch opt := a.RecommendedOptimizer(); opt {
	case None:
		b.WriteString("  Optimizer: NONE (no optimization needed)\n")
	default:
		fmt.Fprintf(&b, "  Optimizer: %v\n", opt)
		if rules := a.AllRecommendedRules(); len(rules) > 0 {
			fmt.Fprintf(&b, "  Rules: %v\n", strings.Join(rules, ", "))
		}
	}
	return b.String()
}
