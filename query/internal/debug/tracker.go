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

// Package debug generates a diagnostics report for the processing of one
// plan: timings, the input and output plans, the gap analysis and the
// statistics the optimizer looked up.
package debug

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ebay/querygap/query/gaps"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/stats"
	"github.com/ebay/querygap/util/clocks"
)

// Tracker is told about each step of processing a plan. The steps may stop
// early when one fails.
type Tracker interface {
	// Stats returns the provider the optimizer should use. It may wrap p.
	Stats(p stats.Provider) stats.Provider
	// Analyzed is called after gap detection.
	Analyzed(analysis *gaps.Analysis)
	// Optimized is called after the plan was optimized, or the optimizer
	// failed.
	Optimized(strategy gaps.Strategy, plan plandef.Node, cost float64, err error)
	// Close writes the report, if any.
	Close()
}

// New returns a Tracker. If enabled is false, the Tracker does nothing.
// Otherwise, Close writes the report to out.
func New(enabled bool, out io.Writer, clock clocks.Source, plan plandef.Node) Tracker {
	if !enabled {
		return noop{}
	}
	return &debugTracker{
		out:     out,
		clock:   clock,
		plan:    plan,
		started: clock.Now(),
	}
}

type noop struct{}

func (noop) Stats(p stats.Provider) stats.Provider { return p }

func (noop) Analyzed(*gaps.Analysis) {}

func (noop) Optimized(gaps.Strategy, plandef.Node, float64, error) {}

func (noop) Close() {}

type debugTracker struct {
	out     io.Writer
	clock   clocks.Source
	plan    plandef.Node
	started time.Time
	stats   *plannerStats

	analyzedAt time.Time
	analysis   *gaps.Analysis

	optimizedAt time.Time
	strategy    gaps.Strategy
	optimized   plandef.Node
	cost        float64
	err         error
}

func (d *debugTracker) Stats(p stats.Provider) stats.Provider {
	d.stats = &plannerStats{impl: p}
	return d.stats
}

func (d *debugTracker) Analyzed(analysis *gaps.Analysis) {
	d.analyzedAt = d.clock.Now()
	d.analysis = analysis
}

func (d *debugTracker) Optimized(strategy gaps.Strategy, plan plandef.Node, cost float64, err error) {
	d.optimizedAt = d.clock.Now()
	d.strategy = strategy
	d.optimized = plan
	d.cost = cost
	d.err = err
}

const timeFormat = "2006-01-02 15:04:05.000000 MST"

func (d *debugTracker) Close() {
	ended := d.clock.Now()
	b := new(strings.Builder)
	fmt.Fprintf(b, "Started at: %s\n", d.started.UTC().Format(timeFormat))
	last := d.started
	if !d.analyzedAt.IsZero() {
		fmt.Fprintf(b, "Analyzing   %v\n", d.analyzedAt.Sub(last))
		last = d.analyzedAt
	}
	if !d.optimizedAt.IsZero() {
		fmt.Fprintf(b, "Optimizing  %v\n", d.optimizedAt.Sub(last))
	}
	fmt.Fprintf(b, "Ended at: %s\n", ended.UTC().Format(timeFormat))
	fmt.Fprintf(b, "Total: %v\n\n", ended.Sub(d.started))

	b.WriteString("Input Plan:\n")
	if d.plan != nil {
		b.WriteString(plandef.Format(d.plan))
	}
	b.WriteString("\n")
	if d.analysis != nil {
		b.WriteString(d.analysis.Format())
		b.WriteString("\n")
	}
	if !d.optimizedAt.IsZero() {
		if d.err != nil {
			fmt.Fprintf(b, "Optimizer %v:\nError: %v\n\n", d.strategy, d.err)
		} else {
			fmt.Fprintf(b, "Optimizer %v, cost %.1f:\n%s\n", d.strategy, d.cost, plandef.Format(d.optimized))
		}
	}
	if d.stats != nil {
		b.WriteString("Statistics Used:\n")
		d.stats.dump(b)
		if missing := d.stats.missing(); len(missing) > 0 {
			fmt.Fprintf(b, "\nStatistics Missing (defaults used): %d\n", len(missing))
			for _, m := range missing {
				fmt.Fprintf(b, "  %v\n", m)
			}
		}
		b.WriteString("\n")
	}
	io.WriteString(d.out, b.String())
}
