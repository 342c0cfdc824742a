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

package debug

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ebay/querygap/query/gaps"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/stats"
	"github.com/ebay/querygap/util/clocks"
	"github.com/stretchr/testify/assert"
)

func testPlan() plandef.Node {
	scan := plandef.NewScan("orders", "o",
		plandef.Column{Name: "id", Type: plandef.TypeInt},
		plandef.Column{Name: "cid", Type: plandef.TypeInt})
	return plandef.NewLimit(5, 0, plandef.NewFilter(plandef.Eq(plandef.Col("o.id"), plandef.Lit(42)), scan))
}

func Test_NoopTracker(t *testing.T) {
	out := strings.Builder{}
	d := New(false, &out, clocks.NewMock(), testPlan())
	assert.Equal(t, stats.Empty, d.Stats(stats.Empty))
	d.Analyzed(&gaps.Analysis{})
	d.Optimized(gaps.Heuristic, testPlan(), 1, nil)
	d.Close()
	assert.Equal(t, "", out.String())
}

// The tracker shouldn't barf if processing fails at one of the steps and not
// all the Tracker calls are made to it.
func Test_DebugTrackerIncomplete(t *testing.T) {
	out := strings.Builder{}
	clock := clocks.NewMock()
	d := New(true, &out, clock, testPlan())
	clock.Advance(2 * time.Millisecond)
	d.Analyzed(&gaps.Analysis{})
	clock.Advance(5 * time.Millisecond)
	d.Optimized(gaps.CostBased, nil, 0, errors.New("search failed"))
	d.Close()
	assert.Equal(t, `
Started at: 1970-01-01 00:00:00.000000 UTC
Analyzing   2ms
Optimizing  5ms
Ended at: 1970-01-01 00:00:00.007000 UTC
Total: 7ms

Input Plan:
Limit 5
	Filter o.id = 42
		Scan orders AS o

QUERY OPTIMIZER GAP ANALYSIS
============================

DETECTED GAPS
  No known gaps detected

RECOMMENDATION
  Optimizer: NONE (no optimization needed)

Optimizer COST_BASED:
Error: search failed

`, "\n"+out.String())
}

func Test_DebugTrackerComplete(t *testing.T) {
	out := strings.Builder{}
	d := New(true, &out, clocks.NewMock(), testPlan())
	provider := d.Stats(stats.Empty)
	provider.RowCount("orders")
	d.Optimized(gaps.Heuristic, testPlan(), 12.5, nil)
	d.Close()
	assert.Equal(t, `
Started at: 1970-01-01 00:00:00.000000 UTC
Optimizing  0s
Ended at: 1970-01-01 00:00:00.000000 UTC
Total: 0s

Input Plan:
Limit 5
	Filter o.id = 42
		Scan orders AS o

Optimizer HEURISTIC, cost 12.5:
Limit 5
	Filter o.id = 42
		Scan orders AS o

Statistics Used:
RowCount orders 1000 (default)

Statistics Missing (defaults used): 1
  RowCount orders

`, "\n"+out.String())
}
