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
	metricsutil "github.com/ebay/querygap/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type queryMetrics struct {
	analyzeDurationSeconds  prometheus.Summary
	optimizeDurationSeconds prometheus.Summary
	gapsDetected            *prometheus.CounterVec
	optimizations           *prometheus.CounterVec
	ruleApplications        *prometheus.CounterVec
	searchAlternatives      prometheus.Histogram
	budgetExhausted         prometheus.Counter
	iterationCapHits        prometheus.Counter
}

var metrics queryMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = queryMetrics{
		analyzeDurationSeconds: mr.NewSummary(prometheus.SummaryOpts{
			Namespace:  "querygap",
			Subsystem:  "query",
			Name:       "analyze_duration_seconds",
			Help:       `The time it takes to detect the gaps in a plan.`,
			Objectives: metricsutil.DefaultObjectives,
		}),
		optimizeDurationSeconds: mr.NewSummary(prometheus.SummaryOpts{
			Namespace: "querygap",
			Subsystem: "query",
			Name:      "optimize_duration_seconds",
			Help: `The time it takes to optimize a plan.

Cost-based optimizations are bounded by the configured search budget, so a
cluster of observations near the timeout means the budget is too tight for the
plans being submitted.
`,
			Objectives: metricsutil.DefaultObjectives,
		}),
		gapsDetected: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygap",
			Subsystem: "query",
			Name:      "gaps_detected_total",
			Help:      `The number of plans in which each gap was detected.`,
		}, "gap"),
		optimizations: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygap",
			Subsystem: "query",
			Name:      "optimizations_total",
			Help:      `The number of plans optimized, by strategy and outcome ("ok", "partial" or "error").`,
		}, "strategy", "outcome"),
		ruleApplications: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygap",
			Subsystem: "query",
			Name:      "rule_applications_total",
			Help: `The number of times each rule rewrote a plan.

For the cost-based optimizer, this counts the alternatives the rule added to
the search space, whether or not they were chosen.
`,
		}, "rule"),
		searchAlternatives: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: "querygap",
			Subsystem: "query",
			Name:      "search_alternatives",
			Help:      `The number of alternatives in the search space when a cost-based optimization finishes.`,
			Buckets:   prometheus.ExponentialBuckets(4, 4, 8),
		}),
		budgetExhausted: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "querygap",
			Subsystem: "query",
			Name:      "cost_budget_exhausted_total",
			Help:      `The number of cost-based optimizations that stopped at their search budget.`,
		}),
		iterationCapHits: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "querygap",
			Subsystem: "query",
			Name:      "iteration_cap_reached_total",
			Help:      `The number of heuristic optimizations that stopped at their iteration cap.`,
		}),
	}
}
