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
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	docopt "github.com/docopt/docopt-go"
	"github.com/ebay/querygap/config"
	"github.com/ebay/querygap/query"
	"github.com/ebay/querygap/query/gaps"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseArgs(t *testing.T) {
	var tests = []struct {
		name         string
		inputArgv    []string
		expValidArgs bool
		check        func(t *testing.T, opts *options)
	}{
		{
			name:         "rules",
			inputArgv:    []string{"rules"},
			expValidArgs: true,
			check: func(t *testing.T, opts *options) {
				assert.True(t, opts.Rules)
				assert.False(t, opts.Optimize)
				assert.Equal(t, 4, opts.Parallel)
				assert.Equal(t, "", opts.ConfigFile)
			},
		}, {
			name:         "analyze",
			inputArgv:    []string{"--stats=catalog.db", "analyze", "--explain=explain.txt", "plan.json"},
			expValidArgs: true,
			check: func(t *testing.T, opts *options) {
				assert.True(t, opts.Analyze)
				assert.Equal(t, "catalog.db", opts.StatsFile)
				assert.Equal(t, "explain.txt", opts.ExplainFile)
				assert.Equal(t, "plan.json", opts.PlanFile)
			},
		}, {
			name: "optimize",
			inputArgv: []string{"--debug", "optimize", "--strategy=cost_based",
				"--rules=JOIN_COMMUTE, join_associate,", "--out=out.json", "plan.json"},
			expValidArgs: true,
			check: func(t *testing.T, opts *options) {
				assert.True(t, opts.Optimize)
				assert.True(t, opts.Debug)
				assert.Equal(t, gaps.CostBased, opts.Strategy)
				assert.Equal(t, []string{"JOIN_COMMUTE", "join_associate"}, opts.RuleNames)
				assert.Equal(t, "out.json", opts.OutFile)
				assert.Equal(t, "plan.json", opts.PlanFile)
			},
		}, {
			name:         "batch",
			inputArgv:    []string{"batch", "--parallel=2", "a.json", "b.json"},
			expValidArgs: true,
			check: func(t *testing.T, opts *options) {
				assert.True(t, opts.Batch)
				assert.Equal(t, 2, opts.Parallel)
				assert.Equal(t, []string{"a.json", "b.json"}, opts.Plans)
				assert.Equal(t, gaps.Strategy(""), opts.Strategy)
			},
		}, {
			name:         "unknown_strategy",
			inputArgv:    []string{"optimize", "--strategy=GENETIC", "plan.json"},
			expValidArgs: false,
		}, {
			name:         "bad_parallel",
			inputArgv:    []string{"batch", "--parallel=0", "a.json"},
			expValidArgs: false,
		}, {
			name:         "unknown_command",
			inputArgv:    []string{"unknown"},
			expValidArgs: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			docopt.DefaultParser.HelpHandler = func(err error, usage string) {}
			opts, err := parseArgs(test.inputArgv)
			if !test.expValidArgs {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			test.check(t, opts)
		})
	}
}

const scanItems = `{"op": "scan", "table": "items", "alias": "i",
  "columns": [{"name": "id", "type": "int"}, {"name": "oid", "type": "int"}, {"name": "qty", "type": "int"}]}`

const scanOrders = `{"op": "scan", "table": "orders", "alias": "o",
  "columns": [{"name": "id", "type": "int"}, {"name": "total", "type": "float"}]}`

// notExistsJSON selects the orders without any item of a larger quantity
// than the order's total.
const notExistsJSON = `{
  "op": "filter",
  "predicate": {"negated": true, "exists": {"op": "limit", "count": 1, "input": {
    "op": "filter",
    "predicate": {"cmp": ">", "left": {"col": "i.qty"}, "right": {"outer": "o.total"}},
    "input": ` + scanItems + `}}},
  "input": ` + scanOrders + `
}`

const pointLookupJSON = `{
  "op": "limit", "count": 5, "input": {
    "op": "filter",
    "predicate": {"cmp": "=", "left": {"col": "o.id"}, "right": {"lit": 42}},
    "input": ` + scanOrders + `}
}`

func writeFile(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
	return path
}

func testCommand(opts *options) (*command, *bytes.Buffer) {
	out := new(bytes.Buffer)
	if opts.Parallel == 0 {
		opts.Parallel = 4
	}
	return &command{
		engine:  query.New(config.Config{}, nil, nil),
		options: opts,
		out:     out,
		stdin:   strings.NewReader(""),
	}, out
}

func Test_listRules(t *testing.T) {
	cmd, out := testCommand(&options{})
	cmd.listRules()
	lines := strings.Split(out.String(), "\n")
	require.True(t, len(lines) > 15)
	assert.True(t, strings.HasPrefix(lines[0], " Rule "))
	assert.True(t, strings.HasPrefix(lines[1], " ----"))
	assert.True(t, strings.HasPrefix(lines[2], " FILTER_INTO_JOIN "), lines[2])
	assert.Contains(t, out.String(), " LIMIT_MERGE ")
}

func Test_parseRules(t *testing.T) {
	cmd, out := testCommand(&options{File: "-"})
	cmd.stdin = strings.NewReader("Try filter_into_join, then JOIN_COMMUTE.\nAvoid DROP_EVERYTHING.")
	require.NoError(t, cmd.parseRules())
	assert.Equal(t, "FILTER_INTO_JOIN\nJOIN_COMMUTE\n", out.String())

	cmd, _ = testCommand(&options{File: "-"})
	cmd.stdin = strings.NewReader("\n")
	assert.Error(t, cmd.parseRules())
}

func Test_analyze(t *testing.T) {
	dir := t.TempDir()
	cmd, out := testCommand(&options{PlanFile: writeFile(t, dir, "plan.json", notExistsJSON)})
	require.NoError(t, cmd.analyze(context.Background()))
	assert.Contains(t, out.String(), "  1. SEMI_JOIN_INEQUALITY\n")
	assert.Contains(t, out.String(), "  Optimizer: HEURISTIC\n")

	cmd, _ = testCommand(&options{PlanFile: writeFile(t, dir, "bad.json", `{"op": "teleport"}`)})
	err := cmd.analyze(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
}

func Test_optimize(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.json")
	cmd, out := testCommand(&options{
		PlanFile: writeFile(t, dir, "plan.json", notExistsJSON),
		OutFile:  outFile,
		Steps:    true,
	})
	require.NoError(t, cmd.optimize(context.Background()))
	assert.Contains(t, out.String(), "QUERY OPTIMIZER GAP ANALYSIS\n")
	assert.Contains(t, out.String(), "Optimizer: HEURISTIC\n")
	assert.Contains(t, out.String(), "Rules applied: JOIN_TO_SEMI_JOIN\n")
	assert.Contains(t, out.String(), "Warning: no statistics for table items")
	assert.Contains(t, out.String(), "\nJoin anti ON i.qty > o.total\n")
	assert.Contains(t, out.String(), "step 1: JOIN_TO_SEMI_JOIN\n")

	data, err := ioutil.ReadFile(outFile)
	require.NoError(t, err)
	plan, err := plandef.ParsePlan(data)
	require.NoError(t, err)
	assert.Equal(t, ""+
		"Join anti ON i.qty > o.total\n"+
		"\tScan orders AS o\n"+
		"\tScan items AS i\n", plandef.Format(plan))
}

func Test_optimizeExplicit(t *testing.T) {
	dir := t.TempDir()
	cmd, out := testCommand(&options{
		PlanFile:  writeFile(t, dir, "plan.json", notExistsJSON),
		Strategy:  gaps.None,
		RuleNames: []string{"LIMIT_MERGE"},
	})
	require.NoError(t, cmd.optimize(context.Background()))
	assert.NotContains(t, out.String(), "GAP ANALYSIS")
	assert.Contains(t, out.String(), "Optimizer: NONE\n")
	assert.Contains(t, out.String(), "\nFilter NOT EXISTS(")
}

func Test_batch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", notExistsJSON)
	b := writeFile(t, dir, "b.json", pointLookupJSON)
	cmd, out := testCommand(&options{Plans: []string{a, b}, Parallel: 2})
	require.NoError(t, cmd.batch(context.Background()))
	lines := strings.Split(out.String(), "\n")
	require.True(t, len(lines) >= 4, out.String())
	assert.Contains(t, lines[0], " Optimizer ")
	assert.Contains(t, lines[2], "HEURISTIC")
	assert.Contains(t, lines[2], "JOIN_TO_SEMI_JOIN")
	assert.Contains(t, lines[2], "2 warnings")
	assert.Contains(t, lines[3], "NONE")

	cmd, out = testCommand(&options{Plans: []string{a, b}, Strategy: gaps.Strategy("GENETIC")})
	err := cmd.batch(context.Background())
	assert.EqualError(t, err, "2 of 2 plans failed")
	assert.Contains(t, out.String(), `unknown optimizer strategy "GENETIC"`)
}
