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

// Package planner is the cost-based query optimizer. It adapts the catalog
// rules to the search subpackage: each plan node becomes an operator whose
// inputs are equivalence groups, rules are applied to small plan fragments
// bound from the groups, and the cost model picks the cheapest alternative of
// every group.
package planner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/qerrors"
	"github.com/ebay/querygap/query/planner/cost"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/query/planner/search"
	"github.com/ebay/querygap/query/rules"
	"github.com/ebay/querygap/util/clocks"
	opentracing "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"
)

// Options control the cost-based optimizer.
type Options struct {
	// Stop exploring once the search space holds this many alternatives. 0
	// means no limit.
	MaxAlternatives int
	// Stop exploring after this long. 0 means no limit.
	Timeout time.Duration
	// Measures Timeout. Defaults to clocks.Wall.
	Clock clocks.Source
	// Used in testing: checks the search space after each major step.
	CheckInvariants bool
}

// Result is the outcome of Optimize.
type Result struct {
	// The cheapest plan found. It's the input plan if no alternative was
	// cheaper.
	Plan plandef.Node
	// Cost of Plan according to the cost model.
	Cost float64
	// True if the search stopped at its budget. Plan is still usable but
	// cheaper alternatives may not have been explored.
	Partial bool
	// Number of alternatives in the search space.
	Alternatives int
	// Number of alternatives each rule added, by rule name.
	RulesFired map[string]int
	// Rule failures and budget exhaustion are reported here.
	Warnings []error
	// The search space, for diagnostics.
	Space *search.Space
}

// Optimize searches for the cheapest plan equivalent to 'plan' that the
// rules can produce. The input plan is not modified. Running out of budget
// is not an error: the best plan found so far is returned with Partial set.
// Optimize returns an error only if ctx is canceled or the plan can't be
// costed.
func Optimize(ctx context.Context, plan plandef.Node, ruleList []*rules.Rule, env *rules.Env, model *cost.Model, opts Options) (*Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "cost-based optimize")
	defer span.Finish()
	if env == nil {
		env = new(rules.Env)
	}
	if env.Estimator == nil {
		withModel := *env
		withModel.Estimator = model
		env = &withModel
	}
	p := newPlanner(ruleList, env, model)
	root, err := p.intoExpr(plan)
	if err != nil {
		return nil, err
	}
	space, best, err := search.Prepare(ctx, root, p, search.Options{
		MaxExprs:                       opts.MaxAlternatives,
		Timeout:                        opts.Timeout,
		Clock:                          opts.Clock,
		CheckInvariantsAfterMajorSteps: opts.CheckInvariants,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cost-based search failed")
	}
	res := &Result{
		Plan:         best.(plandef.Node),
		Alternatives: space.Len(),
		RulesFired:   p.fired,
		Warnings:     p.warnings,
		Space:        space,
	}
	res.Cost = model.Cost(res.Plan)
	// Group estimates come from the first alternative of each group, so the
	// chosen plan can cost more than the input once estimated on its own.
	if original := model.Cost(plan); original < res.Cost {
		res.Plan, res.Cost = plan, original
	}
	if exhausted := space.Exhausted(); exhausted != nil {
		res.Partial = true
		res.Warnings = append(res.Warnings, exhausted)
	}
	span.SetTag("alternatives", res.Alternatives)
	span.SetTag("partial", res.Partial)
	log.WithFields(log.Fields{
		"alternatives": res.Alternatives,
		"partial":      res.Partial,
		"cost":         res.Cost,
	}).Debug("Cost-based optimizer finished")
	return res, nil
}

// planner implements search.Definition over plandef nodes.
type planner struct {
	env     *rules.Env
	model   *cost.Model
	explore []search.ExplorationRule
	// Plan nodes already built by MakePlanNode, so that a group used in
	// several places (such as a CTE) becomes one shared node.
	built    map[string]plandef.Node
	fired    map[string]int
	warnings []error
	warned   map[string]bool
}

var _ search.Definition = (*planner)(nil)

func newPlanner(ruleList []*rules.Rule, env *rules.Env, model *cost.Model) *planner {
	p := &planner{
		env:    env,
		model:  model,
		built:  make(map[string]plandef.Node),
		fired:  make(map[string]int),
		warned: make(map[string]bool),
	}
	for _, rule := range ruleList {
		rule := rule
		p.explore = append(p.explore, search.ExplorationRule{
			Name: rule.Name,
			Apply: func(expr *search.Expr) []*search.IntoExpr {
				return p.apply(rule, expr)
			},
		})
	}
	return p
}

// operator is a plan node used only for its own parameters: its inputs are
// given by the groups of the search.Expr it's attached to.
type operator struct {
	node plandef.Node
}

func (op *operator) String() string {
	return op.node.String()
}

func (op *operator) Key(b *strings.Builder) {
	op.node.OpKey(b)
}

func nodeOf(op search.Operator) plandef.Node {
	return op.(*operator).node
}

type logicalProperties struct {
	schema plandef.Schema
	rows   float64
}

func (lprop *logicalProperties) String() string {
	return fmt.Sprintf("rows: %.0f", lprop.rows)
}

func (lprop *logicalProperties) DetailString() string {
	return fmt.Sprintf("cols: %v rows: %.0f", lprop.schema, lprop.rows)
}

func lpropsOf(group *search.Group) *logicalProperties {
	return group.LogicalProp.(*logicalProperties)
}

// planCost is the cost of an Expr, as computed by the cost model.
type planCost float64

func (c planCost) String() string {
	return fmt.Sprintf("%.1f", float64(c))
}

func (c planCost) Infinite() bool {
	return float64(c) >= cost.Infinite
}

func (c planCost) Less(other search.Cost) bool {
	return c < other.(planCost)
}

func (p *planner) ExplorationRules() []search.ExplorationRule {
	return p.explore
}

func (p *planner) LogicalProperties(op search.Operator, inputs []search.LogicalProperties) search.LogicalProperties {
	refs := make([]plandef.Node, len(inputs))
	for i, input := range inputs {
		lprop := input.(*logicalProperties)
		refs[i] = &plandef.GroupRef{Rows: lprop.rows, Cols: lprop.schema}
	}
	n := withInputs(nodeOf(op), refs)
	return &logicalProperties{
		schema: n.Schema(),
		rows:   p.model.Rows(n),
	}
}

// instantiate returns the operator of expr with GroupRefs for its inputs.
func instantiate(expr *search.Expr) plandef.Node {
	refs := make([]plandef.Node, len(expr.Inputs))
	for i, input := range expr.Inputs {
		refs[i] = groupRef(input)
	}
	return withInputs(nodeOf(expr.Operator), refs)
}

func groupRef(group *search.Group) *plandef.GroupRef {
	lprop := lpropsOf(group)
	return &plandef.GroupRef{ID: group.ID, Rows: lprop.rows, Cols: lprop.schema}
}

func withInputs(n plandef.Node, inputs []plandef.Node) plandef.Node {
	if len(inputs) == 0 {
		return n
	}
	return n.WithInputs(inputs)
}

// probesScan returns true if expr is a Filter that is costed as a keyed
// lookup into the table of its input group.
func probesScan(expr *search.Expr, n plandef.Node) bool {
	f, ok := n.(*plandef.Filter)
	if !ok || !cost.IsIndexProbe(f) {
		return false
	}
	for _, e := range expr.Inputs[0].Exprs {
		if _, isScan := nodeOf(e.Operator).(*plandef.Scan); isScan {
			return true
		}
	}
	return false
}

func (p *planner) LocalCost(expr *search.Expr) search.Cost {
	n := instantiate(expr)
	local := p.model.OperatorCost(n)
	if probesScan(expr, n) {
		local += p.model.ProbeCost(n.(*plandef.Filter))
	}
	return planCost(math.Min(local, cost.Infinite))
}

func (p *planner) CombinedCost(expr *search.Expr) search.Cost {
	total := float64(expr.LocalCost.(planCost))
	best := func(i int) float64 {
		return float64(expr.Inputs[i].Best.CombinedCost.(planCost))
	}
	n := nodeOf(expr.Operator)
	switch {
	case probesScan(expr, instantiate(expr)):
	case isCorrelate(n):
		total += best(0) + lpropsOf(expr.Inputs[0]).rows*best(1)
	default:
		for i := range expr.Inputs {
			total += best(i)
		}
	}
	return planCost(math.Min(total, cost.Infinite))
}

func isCorrelate(n plandef.Node) bool {
	_, ok := n.(*plandef.Correlate)
	return ok
}

func (p *planner) MakePlanNode(op search.Operator, inputs []search.PlanNode, lprop search.LogicalProperties) search.PlanNode {
	nodes := make([]plandef.Node, len(inputs))
	var key strings.Builder
	nodeOf(op).OpKey(&key)
	for i, input := range inputs {
		nodes[i] = input.(plandef.Node)
		fmt.Fprintf(&key, " %p", nodes[i])
	}
	if n, found := p.built[key.String()]; found {
		return n
	}
	n := withInputs(nodeOf(op), nodes)
	p.built[key.String()] = n
	return n
}

// intoExpr converts a plan into the initial expression tree of the search.
func (p *planner) intoExpr(n plandef.Node) (*search.IntoExpr, error) {
	if _, isRef := n.(*plandef.GroupRef); isRef {
		return nil, qerrors.Unsupportedf("plan contains a search group reference: %v", n)
	}
	inputs := n.Inputs()
	children := make([]search.IntoExprInput, len(inputs))
	for i, input := range inputs {
		child, err := p.intoExpr(input)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return search.NewExpr(&operator{node: n}, children...), nil
}

func (p *planner) warn(err error) {
	msg := err.Error()
	if p.warned[msg] {
		return
	}
	p.warned[msg] = true
	p.warnings = append(p.warnings, err)
}
