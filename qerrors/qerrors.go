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

// Package qerrors defines the kinds of errors reported while analyzing and
// rewriting query plans. Errors returned by this module can be classified with
// errors.Is against the sentinels below.
//
// Only ErrParse (and a missing input plan) is fatal to an optimization. The
// other kinds are reported as warnings next to a usable result.
package qerrors

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrParse indicates the supplied plan could not be decoded or is not a
	// valid plan.
	ErrParse = errors.New("invalid plan")
	// ErrUnsupportedConstruct indicates a plan node or expression that the cost
	// model or the rules don't understand. Such subtrees get a conservative
	// estimate and are left alone by rewrites.
	ErrUnsupportedConstruct = errors.New("unsupported construct")
	// ErrRuleNotFound indicates a rule name that isn't in the catalog.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrStatisticsMissing indicates that a statistic was not available and a
	// default was used instead.
	ErrStatisticsMissing = errors.New("statistics missing")
	// ErrIterationLimitExceeded indicates the heuristic optimizer stopped at its
	// iteration cap before reaching a fixpoint.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
	// ErrCostBudgetExceeded indicates the cost-based search stopped early
	// because it ran out of its alternatives or time budget.
	ErrCostBudgetExceeded = errors.New("cost budget exceeded")
)

// RuleNotFound returns an error for the given unknown rule name.
func RuleNotFound(name string) error {
	return errors.Wrapf(ErrRuleNotFound, "%q", name)
}

// Parsef returns a parse error with the given message.
func Parsef(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrParse)
}

// Unsupportedf returns an unsupported construct error with the given message.
func Unsupportedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupportedConstruct)
}

// Fatal returns true if the error should abort an optimization rather than
// be reported as a warning.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.IsAny(err,
		ErrUnsupportedConstruct,
		ErrRuleNotFound,
		ErrStatisticsMissing,
		ErrIterationLimitExceeded,
		ErrCostBudgetExceeded)
}
