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

// Package rules defines the named plan-to-plan rewrites that the optimizers
// apply, and the immutable Catalog that holds them.
//
// A rule never modifies its input: Apply builds new nodes and shares the
// unchanged subtrees. Both optimizers call Match before Apply; Apply may still
// decline by returning a nil node.
package rules

import (
	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/query/planner/plandef"
	"github.com/ebay/querygap/stats"
)

// Category groups rules by the operators they rewrite.
type Category string

// Category values.
const (
	CategoryFilter    Category = "filter"
	CategoryProject   Category = "project"
	CategoryJoin      Category = "join"
	CategoryAggregate Category = "aggregate"
	CategorySort      Category = "sort"
	CategorySubquery  Category = "subquery"
	CategoryWindow    Category = "window"
)

// A Rule is a named, pattern-matched rewrite of a plan subtree into an
// equivalent one.
type Rule struct {
	// Unique upper-case name, such as "FILTER_INTO_JOIN".
	Name        string
	Description string
	Category    Category
	// Match returns true if Apply may rewrite n. It must not have side
	// effects.
	Match func(env *Env, n plandef.Node) bool
	// Apply returns a replacement for n that produces the same rows, or nil
	// if the rule declines.
	Apply func(env *Env, n plandef.Node) (plandef.Node, error)
}

func (r *Rule) String() string {
	return r.Name
}

// Try runs Match and then Apply on n. A panic in either is returned as an
// error. Returns a nil node if the rule doesn't match or declines.
func (r *Rule) Try(env *Env, n plandef.Node) (res plandef.Node, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = errors.Newf("rule %v panicked on %v: %v", r.Name, n, p)
		}
	}()
	if !r.Match(env, n) {
		return nil, nil
	}
	res, err = r.Apply(env, n)
	if err != nil {
		return nil, errors.Wrapf(err, "rule %v failed on %v", r.Name, n)
	}
	return res, nil
}

// Info returns the descriptive fields of the rule.
func (r *Rule) Info() Info {
	return Info{Name: r.Name, Description: r.Description, Category: r.Category}
}

// Info describes a rule.
type Info struct {
	Name        string
	Description string
	Category    Category
}

// An Estimator predicts the size of intermediate results. *cost.Model
// implements it.
type Estimator interface {
	// Rows returns the estimated number of rows produced by n.
	Rows(n plandef.Node) float64
	// Distinct returns the estimated number of distinct combinations of exprs
	// over the rows produced by n.
	Distinct(n plandef.Node, exprs []plandef.Expr) float64
}

// Options tune individual rules.
type Options struct {
	// GROUPED_TOPN_TO_LATERAL fires only when the partition keys' estimated
	// distinct count divided by the input's estimated rows is at most this
	// ratio. If zero, DefaultLateralMaxNDVRatio is used.
	LateralMaxNDVRatio float64
}

// DefaultLateralMaxNDVRatio is the default for Options.LateralMaxNDVRatio.
const DefaultLateralMaxNDVRatio = 0.01

// Env is the read-only context rules run in. It may be shared by concurrent
// optimizations.
type Env struct {
	// Statistics for unique keys and foreign keys. If nil, no statistics are
	// available.
	Stats stats.Provider
	// Cardinality estimates, used by profitability guards. If nil, rules that
	// need estimates don't fire.
	Estimator Estimator
	Options   Options
}

func (env *Env) stats() stats.Provider {
	if env == nil || env.Stats == nil {
		return stats.Empty
	}
	return env.Stats
}

func (env *Env) estimator() Estimator {
	if env == nil {
		return nil
	}
	return env.Estimator
}

func (env *Env) lateralMaxNDVRatio() float64 {
	if env == nil || env.Options.LateralMaxNDVRatio <= 0 {
		return DefaultLateralMaxNDVRatio
	}
	return env.Options.LateralMaxNDVRatio
}
