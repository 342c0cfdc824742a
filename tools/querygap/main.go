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

// Command querygap finds the query shapes a target engine's optimizer
// handles poorly and rewrites plans to repair them.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	docopt "github.com/docopt/docopt-go"
	"github.com/ebay/querygap/config"
	"github.com/ebay/querygap/query"
	"github.com/ebay/querygap/query/gaps"
	"github.com/ebay/querygap/stats"
	"github.com/ebay/querygap/util/debuglog"
	"github.com/ebay/querygap/util/tracing"
	opentracing "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var fmtr = message.NewPrinter(language.English)

const usage = `querygap finds optimizer gaps in query plans and rewrites the plans to repair them.

Usage:
  querygap [options] rules
  querygap [options] parse-rules FILE
  querygap [options] analyze [--explain=FILE] PLAN
  querygap [options] optimize [--strategy=STRATEGY] [--rules=RULES] [--explain=FILE] [--steps] [--out=FILE] PLAN
  querygap [options] batch [--strategy=STRATEGY] [--rules=RULES] [--parallel=NUM] PLAN...

Options:
  --config=FILE          JSON or YAML configuration file.
  --stats=FILE           Statistics: a JSON or YAML snapshot, or a SQLite catalog (*.db, *.sqlite).
  --trace=URL            Send OpenTracing traces to this Jaeger collector.
  --debug                Write a diagnostics report for each plan to stderr.
  -v, --verbose          Log at debug level.
  --explain=FILE         EXPLAIN output of the target engine for the plan.
  --strategy=STRATEGY    HEURISTIC, COST_BASED or NONE. Defaults to the recommended strategy.
  --rules=RULES          Comma-separated rule names. Defaults to the recommended rules.
  --steps                Print a diff of each rewrite made by the heuristic optimizer.
  --out=FILE             Write the optimized plan as JSON to this file.
  --parallel=NUM         Optimize at most this many plans at once [default: 4].

PLAN and FILE may be "-" to read from standard input.

Examples:
  # List the rules.
  querygap rules

  # Extract rule names from a free-text suggestion.
  echo "Try FILTER_INTO_JOIN, then join_commute." | querygap parse-rules -

  # Report the gaps in a plan.
  querygap --stats=stats.yaml analyze plan.json

  # Repair the gaps with the recommended optimizer and rules.
  querygap --stats=catalog.db optimize --out=optimized.json plan.json

  # Force an optimizer and rules.
  querygap optimize --strategy=COST_BASED --rules=JOIN_COMMUTE,JOIN_ASSOCIATE plan.json
`

type options struct {
	ConfigFile string `docopt:"--config"`
	StatsFile  string `docopt:"--stats"`
	Trace      string `docopt:"--trace"`
	Debug      bool   `docopt:"--debug"`
	Verbose    bool   `docopt:"--verbose"`

	// Rules
	Rules bool `docopt:"rules"`

	// ParseRules
	ParseRules bool   `docopt:"parse-rules"`
	File       string `docopt:"FILE"`

	// Analyze
	Analyze     bool   `docopt:"analyze"`
	ExplainFile string `docopt:"--explain"`
	// PLAN is repeated in the batch command, so docopt always returns a list.
	Plans    []string `docopt:"PLAN"`
	PlanFile string

	// Optimize
	Optimize       bool   `docopt:"optimize"`
	StrategyString string `docopt:"--strategy"`
	Strategy       gaps.Strategy
	RulesString    string `docopt:"--rules"`
	RuleNames      []string
	Steps          bool   `docopt:"--steps"`
	OutFile        string `docopt:"--out"`

	// Batch
	Batch          bool   `docopt:"batch"`
	ParallelString string `docopt:"--parallel"`
	Parallel       int
}

func parseArgs(args []string) (*options, error) {
	opts, err := docopt.ParseArgs(usage, args, "")
	if err != nil {
		return nil, fmt.Errorf("error parsing command-line arguments: %v", err)
	}
	var options options
	err = opts.Bind(&options)
	if err != nil {
		return nil, fmt.Errorf("error binding command-line arguments: %v\nfrom: %+v", err, opts)
	}
	if !options.Batch && len(options.Plans) > 0 {
		options.PlanFile = options.Plans[0]
		options.Plans = nil
	}
	if options.StrategyString != "" {
		s, ok := gaps.ParseStrategy(options.StrategyString)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q: expected HEURISTIC, COST_BASED or NONE", options.StrategyString)
		}
		options.Strategy = s
	}
	if options.RulesString != "" {
		for _, name := range strings.Split(options.RulesString, ",") {
			if name = strings.TrimSpace(name); name != "" {
				options.RuleNames = append(options.RuleNames, name)
			}
		}
	}
	if options.ParallelString != "" {
		options.Parallel, err = strconv.Atoi(options.ParallelString)
		if err != nil || options.Parallel < 1 {
			return nil, fmt.Errorf("invalid --parallel value %q", options.ParallelString)
		}
	}
	return &options, nil
}

// loadConfig reads the configuration file, if any, and applies the
// command-line overrides.
func loadConfig(options *options) (config.Config, error) {
	cfg := config.Config{}.WithDefaults()
	if options.ConfigFile != "" {
		loaded, err := config.Load(options.ConfigFile)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}
	if options.StatsFile != "" {
		cfg.Statistics = &config.Statistics{Path: options.StatsFile}
	}
	if options.Trace != "" {
		cfg.Tracing = &config.Tracing{Endpoint: options.Trace}
	}
	return cfg, nil
}

// loadStats returns the statistics named by the configuration, or nil if
// there are none.
func loadStats(ctx context.Context, cfg *config.Statistics) (stats.Provider, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, nil
	}
	typ := strings.ToLower(cfg.Type)
	if typ == "" {
		switch strings.ToLower(filepath.Ext(cfg.Path)) {
		case ".db", ".sqlite", ".sqlite3":
			typ = "sqlite"
		default:
			typ = "file"
		}
	}
	switch typ {
	case "sqlite":
		return stats.LoadSQLite(ctx, cfg.Path)
	case "file", "json", "yaml":
		return stats.LoadFile(cfg.Path)
	}
	return nil, errors.Newf("unknown statistics type %q", cfg.Type)
}

func main() {
	options, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	level := log.InfoLevel
	if options.Verbose {
		level = log.DebugLevel
	}
	debuglog.Configure(debuglog.Options{Level: level})
	cfg, err := loadConfig(options)
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}
	ctx := context.Background()
	if cfg.Tracing != nil {
		tracer, err := tracing.New("querygap", cfg.Tracing.Endpoint)
		if err != nil {
			log.WithError(err).Warn("Could not initialize OpenTracing tracer")
		} else {
			defer tracer.Close()
		}
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "querygap run")
	defer span.Finish()

	provider, err := loadStats(ctx, cfg.Statistics)
	if err != nil {
		log.Fatalf("Unable to load statistics: %v", err)
	}
	engine := query.New(cfg, provider, nil)
	cmd := command{
		engine:  engine,
		options: options,
		out:     os.Stdout,
		stdin:   os.Stdin,
	}
	switch {
	case options.Rules:
		cmd.listRules()
	case options.ParseRules:
		err = cmd.parseRules()
	case options.Analyze:
		err = cmd.analyze(ctx)
	case options.Optimize:
		err = cmd.optimize(ctx)
	case options.Batch:
		err = cmd.batch(ctx)
	}
	if err != nil {
		span.Finish()
		log.Fatalf("Error: %v", err)
	}
}
