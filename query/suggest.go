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
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/query/gaps"
	log "github.com/sirupsen/logrus"
)

// A Suggester asks an external collaborator, such as a language model, which
// rules to apply. It's given a prompt and returns free text. Its answer is
// untrusted: only the rule names in it that the catalog knows are used.
type Suggester func(ctx context.Context, prompt string) (string, error)

// SuggestionPrompt returns the prompt given to a Suggester: the catalog of
// rules, then the gap analysis of the plan.
func (e *Engine) SuggestionPrompt(analysis *gaps.Analysis) string {
	b := new(strings.Builder)
	b.WriteString(e.catalog.FormatRulesForPrompt())
	b.WriteString("\n")
	b.WriteString(analysis.Format())
	b.WriteString("\nReply with the names of the rules to apply, in order, separated by commas.\n")
	return b.String()
}

// SuggestRules asks 'suggest' which rules address the gaps in the analysis.
// It returns the catalog rule names found in the answer, in order of first
// appearance, which may be empty.
func (e *Engine) SuggestRules(ctx context.Context, analysis *gaps.Analysis, suggest Suggester) ([]string, error) {
	answer, err := suggest(ctx, e.SuggestionPrompt(analysis))
	if err != nil {
		return nil, errors.Wrap(err, "rule suggestion failed")
	}
	names, err := e.catalog.ParseRulesFromResponse(answer)
	if err != nil {
		return nil, errors.Wrap(err, "rule suggestion failed")
	}
	log.WithFields(log.Fields{
		"rules":       names,
		"answerBytes": len(answer),
	}).Debug("Parsed rule suggestion")
	return names, nil
}
