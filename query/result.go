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

package query

import (
	"fmt"
	"strings"

	"github.com/ebay/querygap/query/gaps"
	"github.com/ebay/querygap/query/planner/heuristic"
	"github.com/ebay/querygap/query/planner/plandef"
)

// OptimizationResult is the outcome of optimizing one plan. It carries
// either a usable Plan and Cost, or an Err; callers must check HasError
// before reading the plan.
type OptimizationResult struct {
	Strategy gaps.Strategy
	// The optimized plan. It's nil if Err is set.
	Plan plandef.Node
	// The estimated cost of Plan.
	Cost float64
	// The estimated cost of the input plan. It's 0 if the input plan was
	// unusable.
	OriginalCost float64
	// Set if the optimizer stopped at its iteration cap or search budget.
	// Plan is the best found so far.
	Partial bool
	// Names of the rules that rewrote the plan, in the order they first did
	// so for the heuristic optimizer and sorted for the cost-based one.
	RulesApplied []string
	// The rewrites made by the heuristic optimizer.
	Steps []heuristic.Step
	// Non-fatal problems: unknown rule names, missing statistics, rule
	// failures, exhausted budgets.
	Warnings []error
	Err      error
}

// HasError returns true if the optimization failed and Plan is unusable.
func (r *OptimizationResult) HasError() bool {
	return r.Err != nil
}

// Improvement returns the fraction of the original cost the optimizer saved,
// or 0 if either cost is unknown.
func (r *OptimizationResult) Improvement() float64 {
	if r.HasError() || r.OriginalCost <= 0 {
		return 0
	}
	return (r.OriginalCost - r.Cost) / r.OriginalCost
}

// String returns a short multi-line summary.
func (r *OptimizationResult) String() string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "Strategy: %v\n", r.Strategy)
	if r.HasError() {
		fmt.Fprintf(b, "Error: %v\n", r.Err)
		return b.String()
	}
	partial := ""
	if r.Partial {
		partial = " (best found within budget)"
	}
	fmt.Fprintf(b, "Cost: %.1f -> %.1f%s\n", r.OriginalCost, r.Cost, partial)
	if len(r.RulesApplied) > 0 {
		fmt.Fprintf(b, "Rules applied: %v\n", strings.Join(r.RulesApplied, ", "))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(b, "Warning: %v\n", w)
	}
	return b.String()
}
