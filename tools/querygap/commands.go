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

package main

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/query"
	"github.com/ebay/querygap/query/planner/heuristic"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/util/parallel"
	"github.com/ebay/querygap/util/table"
)

// command runs one subcommand against an engine.
type command struct {
	engine  *query.Engine
	options *options
	out     io.Writer
	stdin   io.Reader
}

// readFile returns the contents of the named file, or of stdin for "-".
func (c *command) readFile(name string) ([]byte, error) {
	if name == "-" {
		return ioutil.ReadAll(c.stdin)
	}
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %v", name)
	}
	return data, nil
}

func (c *command) readPlan(name string) (plandef.Node, error) {
	data, err := c.readFile(name)
	if err != nil {
		return nil, err
	}
	plan, err := plandef.ParsePlan(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid plan in %v", name)
	}
	return plan, nil
}

func (c *command) queryOptions() (query.Options, error) {
	opts := query.Options{Debug: c.options.Debug}
	if c.options.ExplainFile != "" {
		explain, err := c.readFile(c.options.ExplainFile)
		if err != nil {
			return opts, err
		}
		opts.Explain = string(explain)
	}
	return opts, nil
}

// listRules prints the rule catalog as a table.
func (c *command) listRules() {
	t := [][]string{{"Rule", "Category", "Description"}}
	for _, r := range c.engine.Catalog().Rules() {
		t = append(t, []string{r.Name, string(r.Category), r.Description})
	}
	table.PrettyPrint(c.out, t, table.HeaderRow)
}

// parseRules prints the catalog rule names found in free text, one per line.
func (c *command) parseRules() error {
	text, err := c.readFile(c.options.File)
	if err != nil {
		return err
	}
	names, err := c.engine.Catalog().ParseRulesFromResponse(string(text))
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(c.out, name)
	}
	return nil
}

func (c *command) analyze(ctx context.Context) error {
	plan, err := c.readPlan(c.options.PlanFile)
	if err != nil {
		return err
	}
	opts, err := c.queryOptions()
	if err != nil {
		return err
	}
	analysis := c.engine.Analyze(ctx, plan, opts)
	io.WriteString(c.out, analysis.Format())
	return nil
}

func (c *command) optimize(ctx context.Context) error {
	plan, err := c.readPlan(c.options.PlanFile)
	if err != nil {
		return err
	}
	opts, err := c.queryOptions()
	if err != nil {
		return err
	}
	strategy, ruleNames := c.options.Strategy, c.options.RuleNames
	if strategy == "" || len(ruleNames) == 0 {
		analysis := c.engine.Analyze(ctx, plan, opts)
		io.WriteString(c.out, analysis.Format())
		io.WriteString(c.out, "\n")
		if strategy == "" {
			strategy = analysis.RecommendedOptimizer()
		}
		if len(ruleNames) == 0 {
			ruleNames = analysis.AllRecommendedRules()
		}
	}
	res := c.engine.Optimize(ctx, plan, strategy, ruleNames, opts)
	if res.HasError() {
		return res.Err
	}
	c.writeResult(res)
	if c.options.Steps && len(res.Steps) > 0 {
		trace, err := (&heuristic.Result{Steps: res.Steps}).Trace()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "\nRewrites:\n%s", trace)
	}
	if c.options.OutFile != "" {
		data, err := plandef.MarshalPlan(res.Plan)
		if err != nil {
			return err
		}
		if err := ioutil.WriteFile(c.options.OutFile, append(data, '\n'), 0644); err != nil {
			return errors.Wrapf(err, "unable to write %v", c.options.OutFile)
		}
	}
	return nil
}

func (c *command) writeResult(res *query.OptimizationResult) {
	fmtr.Fprintf(c.out, "Optimizer: %v\n", res.Strategy)
	partial := ""
	if res.Partial {
		partial = " (best found within budget)"
	}
	fmtr.Fprintf(c.out, "Cost: %.1f -> %.1f%s\n", res.OriginalCost, res.Cost, partial)
	if len(res.RulesApplied) > 0 {
		fmt.Fprintf(c.out, "Rules applied: %v\n", strings.Join(res.RulesApplied, ", "))
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(c.out, "Warning: %v\n", w)
	}
	fmt.Fprintf(c.out, "\n%s", plandef.Format(res.Plan))
}

// batch optimizes several plans concurrently and prints a summary table.
func (c *command) batch(ctx context.Context) error {
	plans := make([]plandef.Node, len(c.options.Plans))
	for i, name := range c.options.Plans {
		plan, err := c.readPlan(name)
		if err != nil {
			return err
		}
		plans[i] = plan
	}
	opts, err := c.queryOptions()
	if err != nil {
		return err
	}
	var results []*query.OptimizationResult
	if c.options.Strategy == "" {
		results = make([]*query.OptimizationResult, len(plans))
		parallel.InvokeN(ctx, len(plans), c.options.Parallel, func(ctx context.Context, i int) error {
			_, results[i] = c.engine.Run(ctx, plans[i], opts)
			return nil
		})
	} else {
		results = c.engine.OptimizeAll(ctx, plans, c.options.Strategy, c.options.RuleNames,
			c.options.Parallel, opts)
	}
	t := [][]string{{"Plan", "Optimizer", "Original Cost", "Cost", "Rules Applied", "Notes"}}
	failed := 0
	for i, res := range results {
		if res == nil {
			res = &query.OptimizationResult{Strategy: c.options.Strategy, Err: errors.New("not optimized")}
		}
		row := []string{c.options.Plans[i], string(res.Strategy)}
		switch {
		case res.HasError():
			failed++
			row = append(row, "", "", "", res.Err.Error())
		default:
			notes := ""
			if res.Partial {
				notes = "partial"
			}
			if len(res.Warnings) > 0 {
				notes = strings.TrimSpace(notes + fmtr.Sprintf(" %d warnings", len(res.Warnings)))
			}
			row = append(row,
				fmtr.Sprintf("%.1f", res.OriginalCost),
				fmtr.Sprintf("%.1f", res.Cost),
				strings.Join(res.RulesApplied, "\n"),
				notes)
		}
		t = append(t, row)
	}
	table.PrettyPrint(c.out, t, table.HeaderRow)
	if failed > 0 {
		return errors.Newf("%d of %d plans failed", failed, len(plans))
	}
	return nil
}
