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

// Package query provides a high level entry point for optimizing plans. It
// runs the entire pipeline: gap detection, the choice of optimizer and rules,
// and the optimizer itself.
package query

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/config"
	"github.com/ebay/querygap/qerrors"
	"github.com/ebay/querygap/query/gaps"
	"github.com/ebay/querygap/query/internal/debug"
	"github.com/ebay/querygap/query/planner"
	"github.com/ebay/querygap/query/planner/cost"
	"github.com/ebay/querygap/query/planner/heuristic"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/query/rules"
	"github.com/ebay/querygap/stats"
	"github.com/ebay/querygap/util/clocks"
	"github.com/ebay/querygap/util/parallel"
	"github.com/ebay/querygap/util/tracing"
	log "github.com/sirupsen/logrus"
)

// Options contains various settings that affect the processing of one plan.
type Options struct {
	// EXPLAIN output of the target engine for the plan, if available.
	Explain string
	// Row counts reported by the target engine, by table name. They take
	// precedence over the statistics during gap detection.
	RowCounts map[string]int64
	// If set, diagnostic information about the processing is collected into a
	// report.
	Debug bool
	// The report is written here. Defaults to os.Stderr.
	DebugOut io.Writer
	// If set, timing and search deadlines use this clock instead of
	// clocks.Wall.
	Clock clocks.Source
}

func (opts Options) clock() clocks.Source {
	if opts.Clock == nil {
		return clocks.Wall
	}
	return opts.Clock
}

func (opts Options) tracker(plan plandef.Node) debug.Tracker {
	out := opts.DebugOut
	if out == nil {
		out = os.Stderr
	}
	return debug.New(opts.Debug, out, opts.clock(), plan)
}

// Engine optimizes plans. The statistics and the rule catalog are read-only,
// so an Engine may be used concurrently.
type Engine struct {
	cfg      config.Config
	stats    stats.Provider
	catalog  *rules.Catalog
	detector *gaps.Detector
}

// New creates a new Engine. Unset configuration values take their defaults.
// provider may be nil, in which case every statistic takes its default.
// catalog may be nil, in which case rules.Default() is used.
func New(cfg config.Config, provider stats.Provider, catalog *rules.Catalog) *Engine {
	cfg = cfg.WithDefaults()
	if provider == nil {
		provider = stats.Empty
	}
	if catalog == nil {
		catalog = rules.Default()
	}
	return &Engine{
		cfg:     cfg,
		stats:   provider,
		catalog: catalog,
		detector: gaps.NewDetector(provider, gaps.Options{
			LargeTableRows:   cfg.Gaps.LargeTableRows,
			MinJoinRelations: cfg.Gaps.MinJoinRelations,
			MaxTopK:          cfg.Gaps.MaxTopK,
			MinLeftJoins:     cfg.Gaps.MinLeftJoins,
		}),
	}
}

// Catalog returns the rules available to the engine.
func (e *Engine) Catalog() *rules.Catalog {
	return e.catalog
}

// Analyze detects the gaps in a plan.
func (e *Engine) Analyze(ctx context.Context, plan plandef.Node, opts Options) *gaps.Analysis {
	return e.analyze(ctx, plan, opts, debug.New(false, nil, nil, nil))
}

func (e *Engine) analyze(ctx context.Context, plan plandef.Node, opts Options, tracker debug.Tracker) *gaps.Analysis {
	span, _ := tracing.StartSpan(ctx, "analyze plan", metrics.analyzeDurationSeconds)
	defer span.Finish()
	analysis := e.detector.Analyze(gaps.Input{
		Plan:      plan,
		Explain:   opts.Explain,
		RowCounts: opts.RowCounts,
	})
	for _, g := range analysis.Gaps {
		metrics.gapsDetected.WithLabelValues(string(g.Gap)).Inc()
	}
	span.SetTag("gaps", len(analysis.Gaps))
	tracker.Analyzed(analysis)
	return analysis
}

// Optimize rewrites the plan with the given strategy and the named rules.
// Unknown rule names are reported as warnings and otherwise ignored. With
// the None strategy, the plan is returned unchanged along with its cost.
func (e *Engine) Optimize(ctx context.Context, plan plandef.Node, strategy gaps.Strategy, ruleNames []string, opts Options) *OptimizationResult {
	tracker := opts.tracker(plan)
	defer tracker.Close()
	return e.optimize(ctx, plan, strategy, ruleNames, opts, tracker)
}

// Run analyzes the plan, then optimizes it with the recommended strategy
// and rules.
func (e *Engine) Run(ctx context.Context, plan plandef.Node, opts Options) (*gaps.Analysis, *OptimizationResult) {
	tracker := opts.tracker(plan)
	defer tracker.Close()
	analysis := e.analyze(ctx, plan, opts, tracker)
	res := e.optimize(ctx, plan, analysis.RecommendedOptimizer(), analysis.AllRecommendedRules(), opts, tracker)
	return analysis, res
}

// OptimizeAll optimizes independent plans concurrently, running at most
// 'limit' optimizations at once (limit <= 0 means no limit). The i-th result
// belongs to the i-th plan. A failure of one plan doesn't affect the others.
func (e *Engine) OptimizeAll(ctx context.Context, plans []plandef.Node, strategy gaps.Strategy, ruleNames []string, limit int, opts Options) []*OptimizationResult {
	results := make([]*OptimizationResult, len(plans))
	opts.Debug = false
	parallel.InvokeN(ctx, len(plans), limit, func(ctx context.Context, i int) error {
		results[i] = e.Optimize(ctx, plans[i], strategy, ruleNames, opts)
		return nil
	})
	for i := range results {
		if results[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = &OptimizationResult{Strategy: strategy, Err: errors.Wrap(err, "not optimized")}
		}
	}
	return results
}

func (e *Engine) optimize(ctx context.Context, plan plandef.Node, strategy gaps.Strategy, ruleNames []string,
	opts Options, tracker debug.Tracker) *OptimizationResult {

	span, ctx := tracing.StartSpan(ctx, "optimize plan", metrics.optimizeDurationSeconds)
	defer span.Finish()
	span.SetTag("strategy", string(strategy))
	res := &OptimizationResult{Strategy: strategy}
	defer func() {
		outcome := "ok"
		switch {
		case res.HasError():
			outcome = "error"
		case res.Partial:
			outcome = "partial"
		}
		metrics.optimizations.WithLabelValues(string(strategy), outcome).Inc()
		tracker.Optimized(strategy, res.Plan, res.Cost, res.Err)
	}()
	if plan == nil {
		res.Err = errors.Wrap(qerrors.ErrParse, "no plan to optimize")
		return res
	}

	ruleList, errs := e.catalog.Select(ruleNames)
	res.Warnings = append(res.Warnings, errs...)
	provider := tracker.Stats(e.stats)
	model := cost.NewModel(provider, e.cfg.CostBased.Weights)
	env := &rules.Env{
		Stats:     provider,
		Estimator: model,
		Options:   rules.Options{LateralMaxNDVRatio: e.cfg.Rules.LateralMaxNDVRatio},
	}
	res.Warnings = append(res.Warnings, e.missingStats(plan)...)
	res.OriginalCost = model.Cost(plan)

	switch strategy {
	case gaps.None:
		res.Plan, res.Cost = plan, res.OriginalCost

	case gaps.Heuristic:
		hres := heuristic.Optimize(ctx, plan, ruleList, env, heuristic.Options{
			MaxIterations: e.cfg.Heuristic.MaxIterations,
		})
		res.Plan = hres.Plan
		res.Cost = model.Cost(hres.Plan)
		res.Partial = hres.CapReached
		res.Steps = hres.Steps
		res.Warnings = append(res.Warnings, hres.Warnings...)
		for _, step := range hres.Steps {
			metrics.ruleApplications.WithLabelValues(step.Rule).Inc()
			if !contains(res.RulesApplied, step.Rule) {
				res.RulesApplied = append(res.RulesApplied, step.Rule)
			}
		}
		if hres.CapReached {
			metrics.iterationCapHits.Inc()
		}

	case gaps.CostBased:
		cres, err := planner.Optimize(ctx, plan, ruleList, env, model, planner.Options{
			MaxAlternatives: e.cfg.CostBased.MaxAlternatives,
			Timeout:         time.Duration(e.cfg.CostBased.Timeout),
			Clock:           opts.clock(),
		})
		if err != nil {
			res.Err = err
			break
		}
		res.Plan = cres.Plan
		res.Cost = cres.Cost
		res.Partial = cres.Partial
		res.Warnings = append(res.Warnings, cres.Warnings...)
		metrics.searchAlternatives.Observe(float64(cres.Alternatives))
		for rule, n := range cres.RulesFired {
			metrics.ruleApplications.WithLabelValues(rule).Add(float64(n))
			res.RulesApplied = append(res.RulesApplied, rule)
		}
		sort.Strings(res.RulesApplied)
		if cres.Partial {
			metrics.budgetExhausted.Inc()
		}

	default:
		res.Err = errors.Newf("unknown optimizer strategy %q", strategy)
	}

	if res.HasError() {
		res.Plan, res.Cost = nil, 0
		log.WithFields(log.Fields{
			"strategy": strategy,
			"error":    res.Err,
		}).Warn("Optimizer failed")
		return res
	}
	span.SetTag("partial", res.Partial)
	log.WithFields(log.Fields{
		"strategy":     strategy,
		"originalCost": res.OriginalCost,
		"cost":         res.Cost,
		"partial":      res.Partial,
		"warnings":     len(res.Warnings),
	}).Debug("Optimized plan")
	return res
}

// missingStats returns a warning for each table scanned by the plan that
// has no statistics.
func (e *Engine) missingStats(plan plandef.Node) []error {
	var res []error
	seen := make(map[string]bool)
	var visit func(n plandef.Node) bool
	visit = func(n plandef.Node) bool {
		if s, ok := n.(*plandef.Scan); ok && !seen[s.Table] {
			seen[s.Table] = true
			if !e.stats.HasTable(s.Table) {
				res = append(res, errors.Wrapf(qerrors.ErrStatisticsMissing,
					"no statistics for table %v, assuming %d rows", s.Table, stats.DefaultRowCount))
			}
		}
		for _, ex := range plandef.Subqueries(n) {
			plandef.Walk(ex.Subquery, visit)
		}
		return true
	}
	plandef.Walk(plan, visit)
	return res
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
