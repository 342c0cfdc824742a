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

package search

import (
	"github.com/ebay/querygap/util/cmp"
)

// Definition plugs a concrete operator algebra into the search. The search
// itself only moves groups and expressions around; everything it knows about
// operators, costs and results comes through this interface.
type Definition interface {
	// ExplorationRules lists the rewrites tried against every expression.
	ExplorationRules() []ExplorationRule
	// LogicalProperties derives the properties of a new group from its first
	// expression.
	LogicalProperties(op Operator, inputs []LogicalProperties) LogicalProperties
	// LocalCost estimates the operator alone. Inputs have their logical
	// properties but not necessarily a Best expression yet.
	LocalCost(expr *Expr) Cost
	// CombinedCost estimates the operator together with the Best expression
	// of each input, all of which are already costed.
	CombinedCost(expr *Expr) Cost
	// MakePlanNode turns the chosen expression of a group back into a plan
	// node, given the nodes already built for its inputs.
	MakePlanNode(op Operator, inputs []PlanNode, lprop LogicalProperties) PlanNode
}

// ExplorationRule rewrites one expression into zero or more equivalent ones.
type ExplorationRule struct {
	Name  string
	Apply func(*Expr) []*IntoExpr
}

// Operator is what an Expr applies to its input groups. Operators are
// immutable; distinct operators must have distinct keys.
type Operator interface {
	String() string
	cmp.Key
}

// LogicalProperties hold for every expression of a group, for example the
// output columns and the estimated row count.
type LogicalProperties interface {
	String() string
	// DetailString may span lines.
	DetailString() string
}

// Cost orders the alternatives of a group.
type Cost interface {
	String() string
	// Infinite reports a cost that rules the expression out.
	Infinite() bool
	// Less reports whether this cost is strictly below other, which comes
	// from the same Definition.
	Less(other Cost) bool
}

// PlanNode is whatever MakePlanNode returns.
type PlanNode interface{}
