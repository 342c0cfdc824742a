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

package rules

import (
	"strings"

	"github.com/cockroachdb/errors"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/vektah/goparsify"
)

// ErrEmptyResponse is returned by ParseRulesFromResponse for blank input.
var ErrEmptyResponse = errors.New("empty rule suggestion response")

// ruleTokens splits text into runs of identifier characters and drops
// everything else.
var ruleTokens = goparsify.Some(goparsify.Any(
	goparsify.Chars("A-Za-z0-9_", 1).Map(func(n *goparsify.Result) {
		n.Result = n.Token
	}),
	goparsify.NotChars("A-Za-z0-9_", 1).Map(func(n *goparsify.Result) {
		n.Result = nil
	}),
))

func tokenize(text string) []string {
	state := goparsify.NewState(text)
	state.WS = goparsify.NoWhitespace
	result := goparsify.Result{}
	ruleTokens(state, &result)
	tokens := make([]string, 0, len(result.Child))
	for _, child := range result.Child {
		if token, ok := child.Result.(string); ok {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// ParseRulesFromResponse extracts rule names from free text, such as
// "Rules: FILTER_INTO_JOIN, PROJECT_MERGE" or a numbered list. Words that
// aren't rule names in the catalog are ignored, and each rule is returned
// once, in order of first appearance. Blank text returns ErrEmptyResponse;
// text without any rule name returns an empty list and no error.
func (c *Catalog) ParseRulesFromResponse(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	res := []string{}
	for _, token := range tokenize(text) {
		r, found := c.Get(token)
		if !found || !seen.Add(r.Name) {
			continue
		}
		res = append(res, r.Name)
	}
	return res, nil
}

// FormatRulesForPrompt renders the name, category and description of every
// rule, one per line, sorted by name.
func (c *Catalog) FormatRulesForPrompt() string {
	var b strings.Builder
	b.WriteString("Available optimization rules:\n")
	c.rules.Ascend(func(r *Rule) bool {
		b.WriteString("- ")
		b.WriteString(r.Name)
		b.WriteString(" (")
		b.WriteString(string(r.Category))
		b.WriteString("): ")
		b.WriteString(r.Description)
		b.WriteByte('\n')
		return true
	})
	return b.String()
}
