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

// Package metrics creates Prometheus collectors and registers them in one
// step.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry creates collectors registered with R. Registration panics on a
// duplicate name.
type Registry struct {
	R prometheus.Registerer
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	r.MustRegister(c)
	return c
}

// NewCounter returns a registered Counter.
func (mr Registry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	return register(mr.R, prometheus.NewCounter(opts))
}

// NewCounterVec returns a registered CounterVec with the given label names.
func (mr Registry) NewCounterVec(opts prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	return register(mr.R, prometheus.NewCounterVec(opts, labels))
}

// NewSummary returns a registered Summary.
func (mr Registry) NewSummary(opts prometheus.SummaryOpts) prometheus.Summary {
	return register(mr.R, prometheus.NewSummary(opts))
}

// NewHistogram returns a registered Histogram.
func (mr Registry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(mr.R, prometheus.NewHistogram(opts))
}

// DefaultObjectives are the summary quantiles, with their allowed errors,
// used throughout querygap.
var DefaultObjectives = map[float64]float64{
	0.5:  0.05,
	0.9:  0.01,
	0.99: 0.001,
}
