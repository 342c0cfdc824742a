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

// Package search implements a generic rule-driven plan search. It's loosely
// based on the Volcano/Cascades line of optimizers: equivalent expressions are
// kept together in groups of a memo, rules add alternatives to the groups,
// and the cheapest alternative of each group is then chosen bottom-up.
//
// Unlike a full Cascades optimizer the search is bounded. Options limit the
// number of expressions in the memo and the time spent exploring; when a limit
// is hit, exploration stops and the best plan among the alternatives found so
// far is returned, flagged through Space.Exhausted.
package search

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/qerrors"
	"github.com/ebay/querygap/util/clocks"
	opentracing "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"
)

// Prepare searches for the lowest cost plan equivalent to expr. It returns the
// space along with the plan, also when an error occurs, so the caller can
// inspect it. Running out of budget is not an error: check Space.Exhausted.
//
// The context is used for tracing spans and to cancel the search between
// steps.
func Prepare(ctx context.Context, expr *IntoExpr, def Definition, options Options) (*Space, PlanNode, error) {
	space := NewSpace(expr, def, options)
	step := func(name string, run func()) {
		span, cctx := opentracing.StartSpanFromContext(ctx, name)
		defer span.Finish()
		run()
		if options.CheckInvariantsAfterMajorSteps {
			cispan, _ := opentracing.StartSpanFromContext(cctx, "CheckInvariants")
			space.MustCheckInvariants()
			cispan.Finish()
		}
	}
	step("Explore Plan", func() { space.ExploreContext(ctx) })
	if ctx.Err() != nil {
		return space, nil, ctx.Err()
	}
	step("Predict Plan Costs", space.PredictCosts)
	if ctx.Err() != nil {
		return space, nil, ctx.Err()
	}
	span, _ := opentracing.StartSpanFromContext(ctx, "BestPlan")
	plan, err := space.BestPlan()
	span.Finish()
	if err != nil {
		return space, nil, err
	}
	return space, plan, nil
}

// Options are configuration settings for the Space.
type Options struct {
	// Stop exploring once the space holds this many expressions. 0 means no
	// limit.
	MaxExprs int
	// Stop exploring once this much time has passed since exploration began.
	// 0 means no limit.
	Timeout time.Duration
	// Clock measures the Timeout. Defaults to clocks.Wall.
	Clock clocks.Source

	// Used in testing: If set, checks the integrity of the Space's internal
	// structure after changes, and panics on errors.
	CheckInternalInvariants bool
	// Used in testing: If set, called to test the validity of expressions in the
	// Space.
	Invariants func(space *Space, root *Group)
	// If set Prepare will check the invariants after each of the major steps.
	CheckInvariantsAfterMajorSteps bool
}

func (options *Options) clock() clocks.Source {
	if options.Clock == nil {
		return clocks.Wall
	}
	return options.Clock
}

// NewSpace creates a search space from the given expression tree.
func NewSpace(expr *IntoExpr, def Definition, options Options) *Space {
	space := &Space{
		exprHash:    make(map[string]*Expr),
		nextExprID:  1,
		nextGroupID: 1,
		options:     options,
		def:         def,
	}
	space.root = space.insertAnywhere(expr).Group
	if space.options.Invariants != nil {
		space.options.Invariants(space, space.root)
	}
	return space
}

// Explore applies the exploration rules to every expression in the space
// until no rule adds anything new or the budget runs out.
func (space *Space) Explore() {
	space.ExploreContext(context.Background())
}

// ExploreContext is like Explore but also stops once ctx is done.
func (space *Space) ExploreContext(ctx context.Context) {
	clock := space.options.clock()
	start := clock.Now()
	var deadline time.Time
	if space.options.Timeout > 0 {
		deadline = start.Add(space.options.Timeout)
	}
	outOfBudget := func() bool {
		switch {
		case space.exhausted != nil:
			return true
		case ctx.Err() != nil:
			return true
		case space.options.MaxExprs > 0 && space.Len() >= space.options.MaxExprs:
			space.exhausted = errors.Wrapf(qerrors.ErrCostBudgetExceeded,
				"search space reached %d alternatives", space.Len())
		case !deadline.IsZero() && !clock.Now().Before(deadline):
			space.exhausted = errors.Wrapf(qerrors.ErrCostBudgetExceeded,
				"search ran out of time after %v", space.options.Timeout)
		default:
			return false
		}
		log.WithFields(log.Fields{
			"exprs":  space.Len(),
			"groups": space.nextGroupID - 1,
		}).Warnf("Stopping plan exploration: %v", space.exhausted)
		return true
	}

	explored := make(map[int]struct{})
	steps := 0
	var exploreExpr func(expr *Expr)
	exploreGroup := func(group *Group) {
		for i := 0; i < len(group.Exprs); i++ {
			exploreExpr(group.Exprs[i])
		}
	}
	exploreExpr = func(expr *Expr) {
		if _, found := explored[expr.id]; found || expr.isStale() {
			return
		}
		explored[expr.id] = struct{}{}
		for _, input := range expr.Inputs {
			exploreGroup(input)
			if expr.isStale() {
				return
			}
		}
		for _, rule := range space.def.ExplorationRules() {
			if outOfBudget() {
				return
			}
			steps++
			for _, alt := range rule.Apply(expr) {
				added := space.insertEquivalent(alt, expr)
				exploreExpr(added)
				// The rest of the alternatives can't be inserted once expr is
				// stale, so the space may not be fully explored.
				if expr.isStale() {
					return
				}
			}
		}
	}
	exploreGroup(space.root)
	log.Debugf("explore tried to apply rules %v times and took %v",
		steps, clock.Now().Sub(start))
}

// PredictCosts assigns estimated costs to every expression and picks the
// cheapest expression of each group. An expression whose inputs have no
// usable plan is left without a combined cost.
func (space *Space) PredictCosts() {
	groups := space.groups()
	for _, group := range groups {
		group.Best = nil
	}
	for _, group := range groups {
	exprs:
		for _, expr := range group.Exprs {
			expr.LocalCost = space.def.LocalCost(expr)
			expr.CombinedCost = nil
			for _, input := range expr.Inputs {
				if input.Best == nil {
					continue exprs
				}
			}
			cost := space.def.CombinedCost(expr)
			expr.CombinedCost = cost
			if !cost.Infinite() && (group.Best == nil || cost.Less(group.Best.CombinedCost)) {
				group.Best = expr
			}
		}
	}
}

// BestPlan returns the plan with the lowest cost. If multiple plans have the
// same cost, it returns the one found first. Returns an error if no finite
// cost plan was found.
func (space *Space) BestPlan() (PlanNode, error) {
	var build func(*Group) (PlanNode, error)
	build = func(group *Group) (PlanNode, error) {
		if group.Best == nil {
			return nil, errors.Newf("no plan found for group %d (missing or infinite cost predictions)",
				group.ID)
		}
		inputs := make([]PlanNode, len(group.Best.Inputs))
		for i, input := range group.Best.Inputs {
			var err error
			inputs[i], err = build(input)
			if err != nil {
				return nil, err
			}
		}
		return space.def.MakePlanNode(group.Best.Operator, inputs, group.LogicalProp), nil
	}
	return build(space.root)
}
