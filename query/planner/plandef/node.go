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

// Package plandef defines the logical query plans that are analyzed and
// rewritten: a tree of relational operators (Node) over scalar expressions
// (Expr).
//
// Nodes are immutable. Rewrites build new nodes that may share unchanged
// subtrees with the original plan, so a plan can be read by many goroutines
// at once. Each node caches its output schema when it is constructed; use the
// New* constructors (or WithInputs) to build nodes.
package plandef

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ebay/querygap/util/cmp"
)

// A Node is one relational operator in a logical plan.
type Node interface {
	// Returns a human-readable single-line string describing the operator,
	// excluding its inputs.
	String() string
	// OpKey writes the identity of the operator, excluding its inputs. Two
	// operators with distinct parameters must produce distinct keys.
	OpKey(b *strings.Builder)
	// Inputs returns the node's input nodes, if any.
	Inputs() []Node
	// WithInputs returns a copy of the node that reads from the given inputs
	// instead. The number of inputs must match.
	WithInputs(inputs []Node) Node
	// Schema returns the columns produced by the node.
	Schema() Schema
	aNode()
}

// ImplementNode is a list of types that implement Node.
// This serves as documentation and as a compile-time check.
var ImplementNode = []Node{
	new(Scan),
	new(Filter),
	new(Project),
	new(Join),
	new(Aggregate),
	new(Sort),
	new(Limit),
	new(Window),
	new(SetOp),
	new(Correlate),
	new(CTE),
	new(GroupRef),
}

func checkInputs(n Node, inputs []Node, want int) {
	if len(inputs) != want {
		panic(fmt.Sprintf("%T.WithInputs: got %d inputs, want %d", n, len(inputs), want))
	}
}

// Scan reads all rows of a base table.
type Scan struct {
	Table string
	// Optional name by which the rest of the plan refers to the table.
	Alias  string
	schema Schema
}

// NewScan returns a Scan of the given table. The columns only need Name and
// Type set; their qualifier and base-table fields are filled in.
func NewScan(table, alias string, columns ...Column) *Scan {
	s := &Scan{Table: table, Alias: alias}
	s.schema = make(Schema, len(columns))
	for i, c := range columns {
		s.schema[i] = Column{
			Table:      s.Qualifier(),
			Name:       c.Name,
			Type:       c.Type,
			BaseTable:  table,
			BaseColumn: c.Name,
		}
	}
	return s
}

// Qualifier returns the name the plan uses to refer to this table.
func (s *Scan) Qualifier() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Table
}

func (*Scan) aNode() {}

func (s *Scan) String() string {
	if s.Alias == "" || s.Alias == s.Table {
		return "Scan " + s.Table
	}
	return fmt.Sprintf("Scan %v AS %v", s.Table, s.Alias)
}

// OpKey implements Node.
func (s *Scan) OpKey(b *strings.Builder) {
	fmt.Fprintf(b, "scan %v as %v [", strings.ToLower(s.Table), strings.ToLower(s.Qualifier()))
	for i, c := range s.schema {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.ToLower(c.Name))
	}
	b.WriteString("]")
}

// Inputs implements Node.
func (s *Scan) Inputs() []Node { return nil }

// WithInputs implements Node.
func (s *Scan) WithInputs(inputs []Node) Node {
	checkInputs(s, inputs, 0)
	return s
}

// Schema implements Node.
func (s *Scan) Schema() Schema { return s.schema }

// Filter passes through the input rows for which Predicate is true.
type Filter struct {
	Predicate Expr
	Input     Node
}

// NewFilter returns a new Filter.
func NewFilter(predicate Expr, input Node) *Filter {
	return &Filter{Predicate: predicate, Input: input}
}

func (*Filter) aNode() {}

func (f *Filter) String() string {
	return "Filter " + f.Predicate.String()
}

// OpKey implements Node.
func (f *Filter) OpKey(b *strings.Builder) {
	b.WriteString("filter ")
	f.Predicate.Key(b)
}

// Inputs implements Node.
func (f *Filter) Inputs() []Node { return []Node{f.Input} }

// WithInputs implements Node.
func (f *Filter) WithInputs(inputs []Node) Node {
	checkInputs(f, inputs, 1)
	return NewFilter(f.Predicate, inputs[0])
}

// Schema implements Node.
func (f *Filter) Schema() Schema { return f.Input.Schema() }

// NamedExpr is an expression with an optional output name.
type NamedExpr struct {
	Expr  Expr
	Alias string
}

func (ne NamedExpr) String() string {
	if ne.Alias == "" {
		return ne.Expr.String()
	}
	return fmt.Sprintf("%v AS %v", ne.Expr, ne.Alias)
}

// Key implements cmp.Key.
func (ne NamedExpr) Key(b *strings.Builder) {
	ne.Expr.Key(b)
	if ne.Alias != "" {
		b.WriteString(" as ")
		b.WriteString(strings.ToLower(ne.Alias))
	}
}

// Output returns the column produced by this expression when evaluated
// against the input schema.
func (ne NamedExpr) Output(input Schema) Column {
	if ref, ok := ne.Expr.(*ColumnRef); ok {
		c, found := input.Resolve(ref)
		if !found {
			c = Column{Table: ref.Table, Name: ref.Name}
		}
		if ne.Alias != "" {
			c.Table = ""
			c.Name = ne.Alias
		}
		return c
	}
	name := ne.Alias
	if name == "" {
		name = ne.Expr.String()
	}
	return Column{Name: name, Type: ExprType(ne.Expr, input)}
}

// Cols is a shorthand for projecting columns by "table.name".
func Cols(qualified ...string) []NamedExpr {
	res := make([]NamedExpr, len(qualified))
	for i, q := range qualified {
		res[i] = NamedExpr{Expr: Col(q)}
	}
	return res
}

// Project computes one output column per expression.
type Project struct {
	Exprs  []NamedExpr
	Input  Node
	schema Schema
}

// NewProject returns a new Project.
func NewProject(exprs []NamedExpr, input Node) *Project {
	p := &Project{Exprs: exprs, Input: input}
	p.schema = p.derive()
	return p
}

func (p *Project) derive() Schema {
	in := p.Input.Schema()
	res := make(Schema, len(p.Exprs))
	for i, e := range p.Exprs {
		res[i] = e.Output(in)
	}
	return res
}

func (*Project) aNode() {}

func (p *Project) String() string {
	strs := make([]string, len(p.Exprs))
	for i, e := range p.Exprs {
		strs[i] = e.String()
	}
	return "Project [" + strings.Join(strs, ", ") + "]"
}

// OpKey implements Node.
func (p *Project) OpKey(b *strings.Builder) {
	b.WriteString("project [")
	cmp.JoinKeys(b, p.Exprs, ", ")
	b.WriteString("]")
}

// Inputs implements Node.
func (p *Project) Inputs() []Node { return []Node{p.Input} }

// WithInputs implements Node.
func (p *Project) WithInputs(inputs []Node) Node {
	checkInputs(p, inputs, 1)
	return NewProject(p.Exprs, inputs[0])
}

// Schema implements Node.
func (p *Project) Schema() Schema {
	if p.schema == nil {
		return p.derive()
	}
	return p.schema
}

// JoinType identifies the kind of join.
type JoinType int

// JoinType values.
const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinSemi
	JoinAnti
)

var joinTypeNames = []string{"inner", "left", "right", "full", "semi", "anti"}

func (t JoinType) String() string {
	if int(t) < len(joinTypeNames) {
		return joinTypeNames[t]
	}
	return fmt.Sprintf("JoinType(%d)", int(t))
}

// ParseJoinType returns the JoinType named s ("cross" is an inner join).
func ParseJoinType(s string) (JoinType, bool) {
	s = strings.ToLower(s)
	if s == "cross" {
		return JoinInner, true
	}
	for i, name := range joinTypeNames {
		if name == s {
			return JoinType(i), true
		}
	}
	return 0, false
}

// Join combines rows of Left and Right for which Condition holds. A nil
// Condition is a cross join. Semi and anti joins output only Left's columns.
type Join struct {
	Type      JoinType
	Condition Expr
	Left      Node
	Right     Node
	schema    Schema
}

// NewJoin returns a new Join.
func NewJoin(typ JoinType, condition Expr, left, right Node) *Join {
	j := &Join{Type: typ, Condition: condition, Left: left, Right: right}
	j.schema = j.derive()
	return j
}

func (j *Join) derive() Schema {
	if j.Type == JoinSemi || j.Type == JoinAnti {
		return j.Left.Schema()
	}
	return concatSchemas(j.Left.Schema(), j.Right.Schema())
}

func (*Join) aNode() {}

func (j *Join) String() string {
	if j.Condition == nil {
		return "Join " + j.Type.String()
	}
	return fmt.Sprintf("Join %v ON %v", j.Type, j.Condition)
}

// OpKey implements Node.
func (j *Join) OpKey(b *strings.Builder) {
	b.WriteString("join ")
	b.WriteString(j.Type.String())
	if j.Condition != nil {
		b.WriteString(" on ")
		j.Condition.Key(b)
	}
}

// Inputs implements Node.
func (j *Join) Inputs() []Node { return []Node{j.Left, j.Right} }

// WithInputs implements Node.
func (j *Join) WithInputs(inputs []Node) Node {
	checkInputs(j, inputs, 2)
	return NewJoin(j.Type, j.Condition, inputs[0], inputs[1])
}

// Schema implements Node.
func (j *Join) Schema() Schema {
	if j.schema == nil {
		return j.derive()
	}
	return j.schema
}

// AggFunc is an aggregate function name.
type AggFunc string

// AggFunc values.
const (
	AggCount AggFunc = "COUNT"
	AggSum   AggFunc = "SUM"
	AggMin   AggFunc = "MIN"
	AggMax   AggFunc = "MAX"
	AggAvg   AggFunc = "AVG"
)

// AggCall is one aggregate computed by an Aggregate. A nil Arg means "*".
type AggCall struct {
	Func     AggFunc
	Arg      Expr
	Distinct bool
	Alias    string
}

func (a AggCall) String() string {
	arg := "*"
	if a.Arg != nil {
		arg = a.Arg.String()
	}
	if a.Distinct {
		arg = "DISTINCT " + arg
	}
	return fmt.Sprintf("%v(%v) AS %v", a.Func, arg, a.Alias)
}

// Key implements cmp.Key.
func (a AggCall) Key(b *strings.Builder) {
	b.WriteString(strings.ToLower(string(a.Func)))
	b.WriteByte('(')
	if a.Distinct {
		b.WriteString("distinct ")
	}
	if a.Arg == nil {
		b.WriteByte('*')
	} else {
		a.Arg.Key(b)
	}
	b.WriteString(") as ")
	b.WriteString(strings.ToLower(a.Alias))
}

// Aggregate groups its input by GroupKeys and computes Aggs for each group.
// Without Aggs it computes the distinct values of GroupKeys.
type Aggregate struct {
	GroupKeys []Expr
	Aggs      []AggCall
	Input     Node
	schema    Schema
}

// NewAggregate returns a new Aggregate.
func NewAggregate(groupKeys []Expr, aggs []AggCall, input Node) *Aggregate {
	a := &Aggregate{GroupKeys: groupKeys, Aggs: aggs, Input: input}
	a.schema = a.derive()
	return a
}

// NewDistinct returns an Aggregate that computes the distinct values of the
// given keys.
func NewDistinct(keys []Expr, input Node) *Aggregate {
	return NewAggregate(keys, nil, input)
}

func (a *Aggregate) derive() Schema {
	in := a.Input.Schema()
	res := make(Schema, 0, len(a.GroupKeys)+len(a.Aggs))
	for _, k := range a.GroupKeys {
		res = append(res, NamedExpr{Expr: k}.Output(in))
	}
	for _, agg := range a.Aggs {
		typ := TypeFloat
		switch agg.Func {
		case AggCount:
			typ = TypeInt
		case AggMin, AggMax, AggSum:
			if agg.Arg != nil {
				typ = ExprType(agg.Arg, in)
			}
		}
		res = append(res, Column{Name: agg.Alias, Type: typ})
	}
	return res
}

// IsDistinct returns true if the Aggregate only computes distinct group keys.
func (a *Aggregate) IsDistinct() bool {
	return len(a.Aggs) == 0 && len(a.GroupKeys) > 0
}

func (*Aggregate) aNode() {}

func (a *Aggregate) String() string {
	keys := joinExprs(a.GroupKeys, ", ")
	if a.IsDistinct() {
		return "Distinct [" + keys + "]"
	}
	aggs := make([]string, len(a.Aggs))
	for i, agg := range a.Aggs {
		aggs[i] = agg.String()
	}
	return fmt.Sprintf("Aggregate [%v] [%v]", keys, strings.Join(aggs, ", "))
}

// OpKey implements Node.
func (a *Aggregate) OpKey(b *strings.Builder) {
	b.WriteString("aggregate [")
	cmp.JoinKeys(b, a.GroupKeys, ", ")
	b.WriteString("] [")
	cmp.JoinKeys(b, a.Aggs, ", ")
	b.WriteString("]")
}

// Inputs implements Node.
func (a *Aggregate) Inputs() []Node { return []Node{a.Input} }

// WithInputs implements Node.
func (a *Aggregate) WithInputs(inputs []Node) Node {
	checkInputs(a, inputs, 1)
	return NewAggregate(a.GroupKeys, a.Aggs, inputs[0])
}

// Schema implements Node.
func (a *Aggregate) Schema() Schema {
	if a.schema == nil {
		return a.derive()
	}
	return a.schema
}

// SortKey is one ordering criterion.
type SortKey struct {
	Expr Expr
	Desc bool
}

func (k SortKey) String() string {
	if k.Desc {
		return k.Expr.String() + " DESC"
	}
	return k.Expr.String()
}

// Key implements cmp.Key.
func (k SortKey) Key(b *strings.Builder) {
	k.Expr.Key(b)
	if k.Desc {
		b.WriteString(" desc")
	}
}

func sortKeysString(keys []SortKey) string {
	strs := make([]string, len(keys))
	for i, k := range keys {
		strs[i] = k.String()
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// Sort orders its input.
type Sort struct {
	Keys  []SortKey
	Input Node
}

// NewSort returns a new Sort.
func NewSort(keys []SortKey, input Node) *Sort {
	return &Sort{Keys: keys, Input: input}
}

func (*Sort) aNode() {}

func (s *Sort) String() string {
	return "Sort " + sortKeysString(s.Keys)
}

// OpKey implements Node.
func (s *Sort) OpKey(b *strings.Builder) {
	b.WriteString("sort [")
	cmp.JoinKeys(b, s.Keys, ", ")
	b.WriteString("]")
}

// Inputs implements Node.
func (s *Sort) Inputs() []Node { return []Node{s.Input} }

// WithInputs implements Node.
func (s *Sort) WithInputs(inputs []Node) Node {
	checkInputs(s, inputs, 1)
	return NewSort(s.Keys, inputs[0])
}

// Schema implements Node.
func (s *Sort) Schema() Schema { return s.Input.Schema() }

// Limit skips the first Offset input rows and passes through at most Count of
// the remaining rows.
type Limit struct {
	Count  int64
	Offset int64
	Input  Node
}

// NewLimit returns a new Limit.
func NewLimit(count, offset int64, input Node) *Limit {
	return &Limit{Count: count, Offset: offset, Input: input}
}

func (*Limit) aNode() {}

func (l *Limit) String() string {
	if l.Offset > 0 {
		return fmt.Sprintf("Limit %d OFFSET %d", l.Count, l.Offset)
	}
	return "Limit " + strconv.FormatInt(l.Count, 10)
}

// OpKey implements Node.
func (l *Limit) OpKey(b *strings.Builder) {
	fmt.Fprintf(b, "limit %d offset %d", l.Count, l.Offset)
}

// Inputs implements Node.
func (l *Limit) Inputs() []Node { return []Node{l.Input} }

// WithInputs implements Node.
func (l *Limit) WithInputs(inputs []Node) Node {
	checkInputs(l, inputs, 1)
	return NewLimit(l.Count, l.Offset, inputs[0])
}

// Schema implements Node.
func (l *Limit) Schema() Schema { return l.Input.Schema() }

// WindowFunc is a window function name.
type WindowFunc string

// WindowFunc values.
const (
	WinRowNumber WindowFunc = "ROW_NUMBER"
	WinRank      WindowFunc = "RANK"
	WinDenseRank WindowFunc = "DENSE_RANK"
	WinSum       WindowFunc = "SUM"
	WinCount     WindowFunc = "COUNT"
	WinAvg       WindowFunc = "AVG"
	WinMin       WindowFunc = "MIN"
	WinMax       WindowFunc = "MAX"
)

// Ranking returns true for ROW_NUMBER, RANK and DENSE_RANK.
func (f WindowFunc) Ranking() bool {
	switch f {
	case WinRowNumber, WinRank, WinDenseRank:
		return true
	}
	return false
}

// Window computes Func over partitions of its input and appends the result as
// a new column named Alias.
type Window struct {
	Func        WindowFunc
	Args        []Expr
	PartitionBy []Expr
	OrderBy     []SortKey
	Alias       string
	Input       Node
	schema      Schema
}

// NewWindow returns a new Window.
func NewWindow(fn WindowFunc, args []Expr, partitionBy []Expr, orderBy []SortKey, alias string, input Node) *Window {
	w := &Window{Func: fn, Args: args, PartitionBy: partitionBy, OrderBy: orderBy, Alias: alias, Input: input}
	w.schema = w.derive()
	return w
}

func (w *Window) derive() Schema {
	typ := TypeInt
	if !w.Func.Ranking() && w.Func != WinCount {
		typ = TypeFloat
	}
	return concatSchemas(w.Input.Schema(), Schema{{Name: w.Alias, Type: typ}})
}

func (*Window) aNode() {}

func (w *Window) String() string {
	var over []string
	if len(w.PartitionBy) > 0 {
		over = append(over, "PARTITION BY ["+joinExprs(w.PartitionBy, ", ")+"]")
	}
	if len(w.OrderBy) > 0 {
		over = append(over, "ORDER BY "+sortKeysString(w.OrderBy))
	}
	return fmt.Sprintf("Window %v(%v) OVER (%v) AS %v",
		w.Func, joinExprs(w.Args, ", "), strings.Join(over, " "), w.Alias)
}

// OpKey implements Node.
func (w *Window) OpKey(b *strings.Builder) {
	fmt.Fprintf(b, "window %v(", strings.ToLower(string(w.Func)))
	cmp.JoinKeys(b, w.Args, ", ")
	b.WriteString(") partition [")
	cmp.JoinKeys(b, w.PartitionBy, ", ")
	b.WriteString("] order [")
	cmp.JoinKeys(b, w.OrderBy, ", ")
	b.WriteString("] as ")
	b.WriteString(strings.ToLower(w.Alias))
}

// Inputs implements Node.
func (w *Window) Inputs() []Node { return []Node{w.Input} }

// WithInputs implements Node.
func (w *Window) WithInputs(inputs []Node) Node {
	checkInputs(w, inputs, 1)
	return NewWindow(w.Func, w.Args, w.PartitionBy, w.OrderBy, w.Alias, inputs[0])
}

// Schema implements Node.
func (w *Window) Schema() Schema {
	if w.schema == nil {
		return w.derive()
	}
	return w.schema
}

// SetOpKind identifies a set operation.
type SetOpKind int

// SetOpKind values.
const (
	Union SetOpKind = iota
	Intersect
	Except
)

var setOpNames = []string{"Union", "Intersect", "Except"}

func (k SetOpKind) String() string {
	if int(k) < len(setOpNames) {
		return setOpNames[k]
	}
	return fmt.Sprintf("SetOpKind(%d)", int(k))
}

// SetOp combines the rows of two or more inputs with matching schemas. Its
// output columns are named after the first input's.
type SetOp struct {
	Kind  SetOpKind
	All   bool
	Input []Node
}

// NewSetOp returns a new SetOp.
func NewSetOp(kind SetOpKind, all bool, inputs ...Node) *SetOp {
	return &SetOp{Kind: kind, All: all, Input: inputs}
}

func (*SetOp) aNode() {}

func (s *SetOp) String() string {
	if s.All {
		return s.Kind.String() + " All"
	}
	return s.Kind.String()
}

// OpKey implements Node.
func (s *SetOp) OpKey(b *strings.Builder) {
	b.WriteString(strings.ToLower(s.String()))
}

// Inputs implements Node.
func (s *SetOp) Inputs() []Node { return s.Input }

// WithInputs implements Node.
func (s *SetOp) WithInputs(inputs []Node) Node {
	checkInputs(s, inputs, len(s.Input))
	return NewSetOp(s.Kind, s.All, inputs...)
}

// Schema implements Node.
func (s *SetOp) Schema() Schema {
	if len(s.Input) == 0 {
		return nil
	}
	return s.Input[0].Schema()
}

// Correlate evaluates Inner once per row of Outer. Inner refers to the
// current outer row with OuterRefs. With JoinLeft, outer rows for which Inner
// is empty are kept with NULLs.
type Correlate struct {
	Type   JoinType
	Outer  Node
	Inner  Node
	schema Schema
}

// NewCorrelate returns a new Correlate. typ must be JoinInner or JoinLeft.
func NewCorrelate(typ JoinType, outer, inner Node) *Correlate {
	c := &Correlate{Type: typ, Outer: outer, Inner: inner}
	c.schema = concatSchemas(outer.Schema(), inner.Schema())
	return c
}

func (*Correlate) aNode() {}

func (c *Correlate) String() string {
	return "Correlate " + c.Type.String()
}

// OpKey implements Node.
func (c *Correlate) OpKey(b *strings.Builder) {
	b.WriteString("correlate ")
	b.WriteString(c.Type.String())
}

// Inputs implements Node.
func (c *Correlate) Inputs() []Node { return []Node{c.Outer, c.Inner} }

// WithInputs implements Node.
func (c *Correlate) WithInputs(inputs []Node) Node {
	checkInputs(c, inputs, 2)
	return NewCorrelate(c.Type, inputs[0], inputs[1])
}

// Schema implements Node.
func (c *Correlate) Schema() Schema {
	if c.schema == nil {
		return concatSchemas(c.Outer.Schema(), c.Inner.Schema())
	}
	return c.schema
}

// CTE is a named, materialized sub-result. The same *CTE may be referenced
// from several places in a plan; it is computed once.
type CTE struct {
	Name  string
	Input Node
}

// NewCTE returns a new CTE.
func NewCTE(name string, input Node) *CTE {
	return &CTE{Name: name, Input: input}
}

func (*CTE) aNode() {}

func (c *CTE) String() string {
	return "CTE " + c.Name
}

// OpKey implements Node.
func (c *CTE) OpKey(b *strings.Builder) {
	b.WriteString("cte ")
	b.WriteString(strings.ToLower(c.Name))
}

// Inputs implements Node.
func (c *CTE) Inputs() []Node { return []Node{c.Input} }

// WithInputs implements Node.
func (c *CTE) WithInputs(inputs []Node) Node {
	checkInputs(c, inputs, 1)
	return NewCTE(c.Name, inputs[0])
}

// Schema implements Node.
func (c *CTE) Schema() Schema { return c.Input.Schema() }

// GroupRef stands in for an equivalence group of the cost-based search. It
// appears only in plan fragments handed to rules during that search.
type GroupRef struct {
	ID int
	// Estimated number of rows produced by the group.
	Rows float64
	// Columns produced by the group.
	Cols Schema
}

func (*GroupRef) aNode() {}

func (g *GroupRef) String() string {
	return "Group " + strconv.Itoa(g.ID)
}

// OpKey implements Node.
func (g *GroupRef) OpKey(b *strings.Builder) {
	b.WriteString("group ")
	b.WriteString(strconv.Itoa(g.ID))
}

// Inputs implements Node.
func (g *GroupRef) Inputs() []Node { return nil }

// WithInputs implements Node.
func (g *GroupRef) WithInputs(inputs []Node) Node {
	checkInputs(g, inputs, 0)
	return g
}

// Schema implements Node.
func (g *GroupRef) Schema() Schema { return g.Cols }
