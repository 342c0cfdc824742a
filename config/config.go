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

// Package config defines the configuration of the query gap analyzer and its
// optimizers, and loads it from JSON or YAML files.
package config

import (
	"time"
)

// Config is the top-level configuration. The zero value is usable: every
// unset field takes the default documented next to it.
type Config struct {
	// Where to load table and column statistics from. If nil, all statistics
	// resolve to defaults.
	Statistics *Statistics `json:"statistics,omitempty" yaml:"statistics,omitempty"`
	// Thresholds used to classify plans into gaps.
	Gaps Gaps `json:"gaps" yaml:"gaps"`
	// Settings for the rule-driven optimizer.
	Heuristic Heuristic `json:"heuristic" yaml:"heuristic"`
	// Settings for the cost-based optimizer.
	CostBased CostBased `json:"costBased" yaml:"costBased"`
	// Settings used by individual rules.
	Rules Rules `json:"rules" yaml:"rules"`
	// Optional: if set, spans are reported to this Jaeger collector.
	Tracing *Tracing `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// Statistics describes a statistics source.
type Statistics struct {
	// Either "file" (a JSON or YAML snapshot) or "sqlite" (a SQLite catalog
	// database). Defaults to "file".
	Type string `json:"type" yaml:"type"`
	// Path of the snapshot file or database.
	Path string `json:"path" yaml:"path"`
}

// Gaps holds the gap detector thresholds.
type Gaps struct {
	// A table with more rows than this is considered large. Defaults to
	// 1,000,000.
	LargeTableRows int64 `json:"largeTableRows" yaml:"largeTableRows"`
	// Minimum number of joined relations for a join-order gap. Defaults to 3.
	MinJoinRelations int `json:"minJoinRelations" yaml:"minJoinRelations"`
	// The largest K considered a "small" top-K bound. Defaults to 100.
	MaxTopK int64 `json:"maxTopK" yaml:"maxTopK"`
	// Minimum number of LEFT joins against one dimension relation. Defaults
	// to 3.
	MinLeftJoins int `json:"minLeftJoins" yaml:"minLeftJoins"`
}

// Heuristic holds the settings of the rule-driven optimizer.
type Heuristic struct {
	// Maximum number of full passes over the plan. Defaults to 16.
	MaxIterations int `json:"maxIterations" yaml:"maxIterations"`
}

// CostBased holds the settings of the cost-based optimizer.
type CostBased struct {
	// Maximum number of expressions in the search space. Defaults to 5000.
	MaxAlternatives int `json:"maxAlternatives" yaml:"maxAlternatives"`
	// Maximum time spent exploring alternatives, as a Go duration string.
	// Defaults to "2s".
	Timeout Duration `json:"timeout" yaml:"timeout"`
	// Unit weights of each operator type in the cost function, keyed by
	// operator name ("scan", "filter", "join", ...). Unset operators keep
	// their default weights.
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
}

// Rules holds settings used by individual rules.
type Rules struct {
	// The grouped top-N to lateral rewrite fires only when the partition keys'
	// distinct count divided by the input row count is at most this ratio.
	// Defaults to 0.01.
	LateralMaxNDVRatio float64 `json:"lateralMaxNDVRatio" yaml:"lateralMaxNDVRatio"`
}

// Tracing describes where to report OpenTracing spans.
type Tracing struct {
	// Jaeger collector endpoint accepting jaeger.thrift over HTTP.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// Duration is a time.Duration that is encoded as a string like "1.5s".
type Duration time.Duration

// Defaults.
const (
	DefaultLargeTableRows     int64 = 1000000
	DefaultMinJoinRelations         = 3
	DefaultMaxTopK            int64 = 100
	DefaultMinLeftJoins             = 3
	DefaultMaxIterations            = 16
	DefaultMaxAlternatives          = 5000
	DefaultTimeout                  = Duration(2 * time.Second)
	DefaultLateralMaxNDVRatio       = 0.01
)

// WithDefaults returns a copy of the configuration with every unset field
// replaced by its default.
func (cfg Config) WithDefaults() Config {
	if cfg.Gaps.LargeTableRows <= 0 {
		cfg.Gaps.LargeTableRows = DefaultLargeTableRows
	}
	if cfg.Gaps.MinJoinRelations <= 0 {
		cfg.Gaps.MinJoinRelations = DefaultMinJoinRelations
	}
	if cfg.Gaps.MaxTopK <= 0 {
		cfg.Gaps.MaxTopK = DefaultMaxTopK
	}
	if cfg.Gaps.MinLeftJoins <= 0 {
		cfg.Gaps.MinLeftJoins = DefaultMinLeftJoins
	}
	if cfg.Heuristic.MaxIterations <= 0 {
		cfg.Heuristic.MaxIterations = DefaultMaxIterations
	}
	if cfg.CostBased.MaxAlternatives <= 0 {
		cfg.CostBased.MaxAlternatives = DefaultMaxAlternatives
	}
	if cfg.CostBased.Timeout <= 0 {
		cfg.CostBased.Timeout = DefaultTimeout
	}
	if cfg.Rules.LateralMaxNDVRatio <= 0 {
		cfg.Rules.LateralMaxNDVRatio = DefaultLateralMaxNDVRatio
	}
	return cfg
}
