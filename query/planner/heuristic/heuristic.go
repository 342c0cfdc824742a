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

// Package heuristic implements a rule-driven query optimizer without cost
// comparison. It rewrites a plan with an ordered list of rules until it
// reaches a fixpoint or an iteration cap.
package heuristic

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/qerrors"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/query/rules"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pmezard/go-difflib/difflib"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxIterations is used when Options.MaxIterations is not positive.
const DefaultMaxIterations = 16

// Options control the optimizer.
type Options struct {
	// The maximum number of passes over the plan.
	MaxIterations int
}

// Step records one successful rule application.
type Step struct {
	Rule string
	// The subtree the rule matched and its replacement, as formatted by
	// plandef.Format.
	Before string
	After  string
}

// Result is the outcome of Optimize.
type Result struct {
	// The rewritten plan. It's the input plan if no rule applied.
	Plan plandef.Node
	// True if at least one rule changed the plan.
	Changed bool
	// True if the optimizer stopped at the iteration cap while rules were
	// still changing the plan. Plan is still valid.
	CapReached bool
	// The number of passes over the plan.
	Iterations int
	Steps      []Step
	// Rules that failed and were skipped, the iteration cap, and
	// cancellation are reported here.
	Warnings []error
}

// Optimize applies the rules to the plan bottom-up: each node's inputs are
// rewritten before the node itself, and at each node the rules are tried in
// order, each on the output of the previous one. Passes repeat until one
// makes no change or MaxIterations is reached. A rule that returns an error
// or panics is skipped for that node.
//
// The input plan is not modified. If ctx is canceled, Optimize stops after
// the current pass.
func Optimize(ctx context.Context, plan plandef.Node, ruleList []*rules.Rule, env *rules.Env, opts Options) *Result {
	span, ctx := opentracing.StartSpanFromContext(ctx, "heuristic optimize")
	defer span.Finish()
	limit := opts.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}
	res := &Result{Plan: plan}
	if len(ruleList) == 0 {
		return res
	}
	for {
		if err := ctx.Err(); err != nil {
			res.Warnings = append(res.Warnings, err)
			break
		}
		if res.Iterations == limit {
			res.CapReached = true
			res.Warnings = append(res.Warnings, errors.Wrapf(qerrors.ErrIterationLimitExceeded,
				"plan still changing after %d passes", limit))
			log.WithField("passes", limit).Warn("Heuristic optimizer reached its iteration cap")
			break
		}
		res.Iterations++
		p := pass{env: env, rules: ruleList, res: res}
		next := plandef.Transform(res.Plan, p.rewrite)
		if !p.changed {
			break
		}
		res.Plan = next
		res.Changed = true
	}
	span.SetTag("passes", res.Iterations)
	span.SetTag("steps", len(res.Steps))
	log.WithFields(log.Fields{
		"passes":  res.Iterations,
		"steps":   len(res.Steps),
		"changed": res.Changed,
	}).Debug("Heuristic optimizer finished")
	return res
}

type pass struct {
	env     *rules.Env
	rules   []*rules.Rule
	res     *Result
	changed bool
}

// rewrite is called by plandef.Transform for each node, after its inputs
// have been rewritten.
func (p *pass) rewrite(n plandef.Node) plandef.Node {
	current := n
	key := plandef.Key(n)
	for _, rule := range p.rules {
		next, err := rule.Try(p.env, current)
		if err != nil {
			p.res.Warnings = append(p.res.Warnings, err)
			log.WithFields(log.Fields{
				"rule":  rule.Name,
				"node":  current,
				"error": err,
			}).Warn("Skipping rule that failed")
			continue
		}
		if next == nil {
			continue
		}
		nextKey := plandef.Key(next)
		if nextKey == key {
			continue
		}
		p.res.Steps = append(p.res.Steps, Step{
			Rule:   rule.Name,
			Before: plandef.Format(current),
			After:  plandef.Format(next),
		})
		log.WithFields(log.Fields{"rule": rule.Name, "node": current}).Debug("Applied rule")
		current, key = next, nextKey
		p.changed = true
	}
	if current == n {
		return nil
	}
	return current
}

// Trace renders each step as a unified diff of the rewritten subtree.
func (r *Result) Trace() (string, error) {
	var b strings.Builder
	for i, step := range r.Steps {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(step.Before),
			FromFile: fmt.Sprintf("a/%s", step.Rule),
			B:        difflib.SplitLines(step.After),
			ToFile:   fmt.Sprintf("b/%s", step.Rule),
			Context:  10000,
		}
		diffStr, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "step %d: %s\n", i+1, step.Rule)
		b.WriteString(strings.TrimRight(diffStr, " \r\t\n"))
		b.WriteString("\n")
	}
	return b.String(), nil
}
