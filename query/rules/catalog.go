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
	"github.com/ebay/querygap/qerrors"
	"github.com/google/btree"
)

// A Catalog is an immutable set of rules indexed by name. It's safe for
// concurrent use.
type Catalog struct {
	rules *btree.BTreeG[*Rule]
}

func lessByName(a, b *Rule) bool {
	return a.Name < b.Name
}

// NormalizeName returns the catalog form of a rule name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NewCatalog returns a catalog of the given rules. Rule names are normalized
// to upper case. It returns an error if a rule has no name, no Match or Apply
// function, or if two rules share a name.
func NewCatalog(rules ...*Rule) (*Catalog, error) {
	c := &Catalog{rules: btree.NewG[*Rule](8, lessByName)}
	for _, r := range rules {
		name := NormalizeName(r.Name)
		if name == "" {
			return nil, errors.New("rule with empty name")
		}
		if r.Match == nil || r.Apply == nil {
			return nil, errors.Newf("rule %v: Match and Apply are required", name)
		}
		rule := *r
		rule.Name = name
		if _, replaced := c.rules.ReplaceOrInsert(&rule); replaced {
			return nil, errors.Newf("duplicate rule %v", name)
		}
	}
	return c, nil
}

// MustCatalog is like NewCatalog but panics on error.
func MustCatalog(rules ...*Rule) *Catalog {
	c, err := NewCatalog(rules...)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCatalog = MustCatalog(
	FilterMerge,
	FilterIntoJoin,
	FilterProjectTranspose,
	ProjectMerge,
	ProjectRemove,
	JoinCommute,
	JoinAssociate,
	MultiJoinOptimize,
	OuterJoinSimplify,
	ProjectToSemiJoin,
	JoinToSemiJoin,
	SortProjectTranspose,
	LimitMerge,
	FKJoinElimination,
	GroupedTopNToLateral,
)

// Default returns the catalog of all the rules defined in this package.
func Default() *Catalog {
	return defaultCatalog
}

// Len returns the number of rules in the catalog.
func (c *Catalog) Len() int {
	return c.rules.Len()
}

// Get returns the rule with the given name, ignoring case.
func (c *Catalog) Get(name string) (*Rule, bool) {
	return c.rules.Get(&Rule{Name: NormalizeName(name)})
}

// Info returns the description of the named rule, ignoring case.
func (c *Catalog) Info(name string) (Info, bool) {
	r, found := c.Get(name)
	if !found {
		return Info{}, false
	}
	return r.Info(), true
}

// Rules returns every rule, sorted by name.
func (c *Catalog) Rules() []*Rule {
	res := make([]*Rule, 0, c.rules.Len())
	c.rules.Ascend(func(r *Rule) bool {
		res = append(res, r)
		return true
	})
	return res
}

// Names returns the name of every rule, sorted.
func (c *Catalog) Names() []string {
	res := make([]string, 0, c.rules.Len())
	c.rules.Ascend(func(r *Rule) bool {
		res = append(res, r.Name)
		return true
	})
	return res
}

// Select looks up the named rules, keeping their order and dropping
// duplicates. Each unknown name results in a qerrors.ErrRuleNotFound error;
// the known rules are still returned.
func (c *Catalog) Select(names []string) ([]*Rule, []error) {
	var res []*Rule
	var errs []error
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		r, found := c.Get(name)
		if !found {
			errs = append(errs, qerrors.RuleNotFound(name))
			continue
		}
		if !seen[r.Name] {
			seen[r.Name] = true
			res = append(res, r)
		}
	}
	return res, errs
}
