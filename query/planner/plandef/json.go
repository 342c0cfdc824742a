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

package plandef

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ebay/querygap/qerrors"
)

// The JSON form of a plan is a tree of objects, each with an "op" field
// naming the operator. A CTE is written out in full where it first appears
// (in pre-order) and by name only after that; a plan may also declare CTEs
// up front in a top-level "with" list.

type jsonPlan struct {
	With []jsonCTE `json:"with,omitempty"`
	jsonNode
}

type jsonCTE struct {
	Name string    `json:"name"`
	Plan *jsonNode `json:"plan"`
}

type jsonColumn struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type jsonNamedExpr struct {
	Expr *jsonExpr `json:"expr"`
	As   string    `json:"as,omitempty"`
}

type jsonAgg struct {
	Func     string    `json:"func"`
	Arg      *jsonExpr `json:"arg,omitempty"`
	Distinct bool      `json:"distinct,omitempty"`
	As       string    `json:"as"`
}

type jsonSortKey struct {
	Expr *jsonExpr `json:"expr"`
	Desc bool      `json:"desc,omitempty"`
}

type jsonNode struct {
	Op          string          `json:"op"`
	Table       string          `json:"table,omitempty"`
	Alias       string          `json:"alias,omitempty"`
	Columns     []jsonColumn    `json:"columns,omitempty"`
	Predicate   *jsonExpr       `json:"predicate,omitempty"`
	Exprs       []jsonNamedExpr `json:"exprs,omitempty"`
	Type        string          `json:"type,omitempty"`
	Condition   *jsonExpr       `json:"condition,omitempty"`
	GroupBy     []*jsonExpr     `json:"groupBy,omitempty"`
	Aggs        []jsonAgg       `json:"aggs,omitempty"`
	Keys        []jsonSortKey   `json:"keys,omitempty"`
	Count       *int64          `json:"count,omitempty"`
	Offset      int64           `json:"offset,omitempty"`
	Func        string          `json:"func,omitempty"`
	Args        []*jsonExpr     `json:"args,omitempty"`
	PartitionBy []*jsonExpr     `json:"partitionBy,omitempty"`
	OrderBy     []jsonSortKey   `json:"orderBy,omitempty"`
	As          string          `json:"as,omitempty"`
	All         bool            `json:"all,omitempty"`
	Name        string          `json:"name,omitempty"`
	Input       *jsonNode       `json:"input,omitempty"`
	Inputs      []*jsonNode     `json:"inputs,omitempty"`
	Left        *jsonNode       `json:"left,omitempty"`
	Right       *jsonNode       `json:"right,omitempty"`
	Outer       *jsonNode       `json:"outer,omitempty"`
	Inner       *jsonNode       `json:"inner,omitempty"`
}

type jsonExpr struct {
	Col     *string         `json:"col,omitempty"`
	Outer   *string         `json:"outer,omitempty"`
	Lit     json.RawMessage `json:"lit,omitempty"`
	Cmp     string          `json:"cmp,omitempty"`
	Left    *jsonExpr       `json:"left,omitempty"`
	Right   *jsonExpr       `json:"right,omitempty"`
	And     []*jsonExpr     `json:"and,omitempty"`
	Or      []*jsonExpr     `json:"or,omitempty"`
	Not     *jsonExpr       `json:"not,omitempty"`
	IsNull  *jsonExpr       `json:"isNull,omitempty"`
	In      *jsonExpr       `json:"in,omitempty"`
	Values  []*jsonExpr     `json:"values,omitempty"`
	Func    string          `json:"func,omitempty"`
	Args    []*jsonExpr     `json:"args,omitempty"`
	Exists  *jsonNode       `json:"exists,omitempty"`
	Negated bool            `json:"negated,omitempty"`
}

// ParsePlan decodes a plan from its JSON form. Errors are marked with
// qerrors.ErrParse.
func ParsePlan(data []byte) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, qerrors.Parsef("empty plan")
	}
	var doc jsonPlan
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, qerrors.Parsef("decoding plan: %v", err)
	}
	if dec.More() {
		return nil, qerrors.Parsef("found unexpected data after plan")
	}
	if doc.Op == "" {
		return nil, qerrors.Parsef("plan has no root operator")
	}
	d := decoder{ctes: make(map[string]*CTE)}
	for _, c := range doc.With {
		if c.Plan == nil {
			return nil, qerrors.Parsef("CTE %q has no plan", c.Name)
		}
		input, err := d.node(c.Plan)
		if err != nil {
			return nil, err
		}
		if err := d.define(NewCTE(c.Name, input)); err != nil {
			return nil, err
		}
	}
	return d.node(&doc.jsonNode)
}

type decoder struct {
	ctes map[string]*CTE
}

func (d *decoder) define(c *CTE) error {
	key := strings.ToLower(c.Name)
	if key == "" {
		return qerrors.Parsef("CTE without a name")
	}
	if _, found := d.ctes[key]; found {
		return qerrors.Parsef("CTE %q defined more than once", c.Name)
	}
	d.ctes[key] = c
	return nil
}

func (d *decoder) inputs(want int, jns ...*jsonNode) ([]Node, error) {
	res := make([]Node, 0, len(jns))
	for _, jn := range jns {
		if jn == nil {
			continue
		}
		n, err := d.node(jn)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	if want >= 0 && len(res) != want {
		return nil, qerrors.Parsef("expected %d inputs, found %d", want, len(res))
	}
	return res, nil
}

func (d *decoder) node(jn *jsonNode) (Node, error) {
	op := strings.ToLower(jn.Op)
	switch op {
	case "scan":
		if jn.Table == "" {
			return nil, qerrors.Parsef("scan without a table")
		}
		cols := make([]Column, len(jn.Columns))
		for i, c := range jn.Columns {
			if c.Name == "" {
				return nil, qerrors.Parsef("scan of %v: column %d has no name", jn.Table, i)
			}
			cols[i] = Column{Name: c.Name, Type: ParseDataType(c.Type)}
		}
		return NewScan(jn.Table, jn.Alias, cols...), nil

	case "filter":
		in, err := d.inputs(1, jn.Input)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		pred, err := d.expr(jn.Predicate)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		return NewFilter(pred, in[0]), nil

	case "project":
		in, err := d.inputs(1, jn.Input)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		exprs := make([]NamedExpr, len(jn.Exprs))
		for i, je := range jn.Exprs {
			e, err := d.expr(je.Expr)
			if err != nil {
				return nil, wrapOp(op, err)
			}
			exprs[i] = NamedExpr{Expr: e, Alias: je.As}
		}
		return NewProject(exprs, in[0]), nil

	case "join":
		typ, ok := ParseJoinType(jn.Type)
		if jn.Type == "" {
			typ, ok = JoinInner, true
		}
		if !ok {
			return nil, qerrors.Parsef("unknown join type %q", jn.Type)
		}
		if jn.Left == nil || jn.Right == nil {
			return nil, qerrors.Parsef("join requires left and right inputs")
		}
		in, err := d.inputs(2, jn.Left, jn.Right)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		var cond Expr
		if jn.Condition != nil {
			if cond, err = d.expr(jn.Condition); err != nil {
				return nil, wrapOp(op, err)
			}
		}
		return NewJoin(typ, cond, in[0], in[1]), nil

	case "aggregate", "distinct":
		in, err := d.inputs(1, jn.Input)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		keys, err := d.exprs(jn.GroupBy)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		if op == "distinct" {
			if len(keys) == 0 {
				return nil, qerrors.Parsef("distinct requires groupBy columns")
			}
			return NewDistinct(keys, in[0]), nil
		}
		aggs := make([]AggCall, len(jn.Aggs))
		for i, ja := range jn.Aggs {
			var arg Expr
			if ja.Arg != nil {
				if arg, err = d.expr(ja.Arg); err != nil {
					return nil, wrapOp(op, err)
				}
			}
			if ja.As == "" {
				return nil, qerrors.Parsef("aggregate %v has no output name", ja.Func)
			}
			aggs[i] = AggCall{Func: AggFunc(strings.ToUpper(ja.Func)), Arg: arg, Distinct: ja.Distinct, Alias: ja.As}
		}
		return NewAggregate(keys, aggs, in[0]), nil

	case "sort":
		in, err := d.inputs(1, jn.Input)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		keys, err := d.sortKeys(jn.Keys)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		return NewSort(keys, in[0]), nil

	case "limit":
		in, err := d.inputs(1, jn.Input)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		if jn.Count == nil || *jn.Count < 0 || jn.Offset < 0 {
			return nil, qerrors.Parsef("limit requires a non-negative count and offset")
		}
		return NewLimit(*jn.Count, jn.Offset, in[0]), nil

	case "window":
		in, err := d.inputs(1, jn.Input)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		args, err := d.exprs(jn.Args)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		partition, err := d.exprs(jn.PartitionBy)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		order, err := d.sortKeys(jn.OrderBy)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		if jn.Func == "" || jn.As == "" {
			return nil, qerrors.Parsef("window requires func and as")
		}
		return NewWindow(WindowFunc(strings.ToUpper(jn.Func)), args, partition, order, jn.As, in[0]), nil

	case "union", "intersect", "except":
		in, err := d.inputs(-1, jn.Inputs...)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		if len(in) < 2 {
			return nil, qerrors.Parsef("%v requires at least 2 inputs", op)
		}
		kind := map[string]SetOpKind{"union": Union, "intersect": Intersect, "except": Except}[op]
		return NewSetOp(kind, jn.All, in...), nil

	case "correlate":
		typ, ok := ParseJoinType(jn.Type)
		if jn.Type == "" {
			typ, ok = JoinInner, true
		}
		if !ok || (typ != JoinInner && typ != JoinLeft) {
			return nil, qerrors.Parsef("correlate type must be inner or left, got %q", jn.Type)
		}
		if jn.Outer == nil || jn.Inner == nil {
			return nil, qerrors.Parsef("correlate requires outer and inner inputs")
		}
		in, err := d.inputs(2, jn.Outer, jn.Inner)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		return NewCorrelate(typ, in[0], in[1]), nil

	case "cte":
		if jn.Input == nil {
			c, found := d.ctes[strings.ToLower(jn.Name)]
			if !found {
				return nil, qerrors.Parsef("reference to undefined CTE %q", jn.Name)
			}
			return c, nil
		}
		in, err := d.inputs(1, jn.Input)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		c := NewCTE(jn.Name, in[0])
		if err := d.define(c); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, qerrors.Parsef("unknown operator %q", jn.Op)
}

func wrapOp(op string, err error) error {
	return qerrors.Parsef("in %v: %v", op, err)
}

func (d *decoder) exprs(jes []*jsonExpr) ([]Expr, error) {
	res := make([]Expr, len(jes))
	for i, je := range jes {
		e, err := d.expr(je)
		if err != nil {
			return nil, err
		}
		res[i] = e
	}
	return res, nil
}

func (d *decoder) sortKeys(jks []jsonSortKey) ([]SortKey, error) {
	res := make([]SortKey, len(jks))
	for i, jk := range jks {
		e, err := d.expr(jk.Expr)
		if err != nil {
			return nil, err
		}
		res[i] = SortKey{Expr: e, Desc: jk.Desc}
	}
	return res, nil
}

func (d *decoder) expr(je *jsonExpr) (Expr, error) {
	if je == nil {
		return nil, qerrors.Parsef("missing expression")
	}
	switch {
	case je.Col != nil:
		return Col(*je.Col), nil
	case je.Outer != nil:
		ref := Col(*je.Outer)
		return &OuterRef{Table: ref.Table, Name: ref.Name}, nil
	case je.Lit != nil:
		return parseLiteral(je.Lit)
	case je.Cmp != "":
		op, ok := ParseCompareOp(je.Cmp)
		if !ok {
			return nil, qerrors.Parsef("unknown comparison %q", je.Cmp)
		}
		l, err := d.expr(je.Left)
		if err != nil {
			return nil, err
		}
		r, err := d.expr(je.Right)
		if err != nil {
			return nil, err
		}
		return Cmp(l, op, r), nil
	case je.And != nil:
		args, err := d.exprs(je.And)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, qerrors.Parsef("and requires at least 2 arguments")
		}
		return &And{Args: args}, nil
	case je.Or != nil:
		args, err := d.exprs(je.Or)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, qerrors.Parsef("or requires at least 2 arguments")
		}
		return &Or{Args: args}, nil
	case je.Not != nil:
		arg, err := d.expr(je.Not)
		if err != nil {
			return nil, err
		}
		return &Not{Arg: arg}, nil
	case je.IsNull != nil:
		arg, err := d.expr(je.IsNull)
		if err != nil {
			return nil, err
		}
		return &IsNull{Arg: arg, Negated: je.Negated}, nil
	case je.In != nil:
		arg, err := d.expr(je.In)
		if err != nil {
			return nil, err
		}
		values, err := d.exprs(je.Values)
		if err != nil {
			return nil, err
		}
		return &InList{Arg: arg, Values: values, Negated: je.Negated}, nil
	case je.Func != "":
		args, err := d.exprs(je.Args)
		if err != nil {
			return nil, err
		}
		return &Func{Name: je.Func, Args: args}, nil
	case je.Exists != nil:
		sub, err := d.node(je.Exists)
		if err != nil {
			return nil, err
		}
		return &Exists{Subquery: sub, Negated: je.Negated}, nil
	}
	return nil, qerrors.Parsef("empty expression")
}

func parseLiteral(raw json.RawMessage) (Expr, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, qerrors.Parsef("invalid literal %s: %v", raw, err)
	}
	switch v := v.(type) {
	case nil, string, bool:
		return &Literal{Value: v}, nil
	case json.Number:
		if !strings.ContainsAny(string(v), ".eE") {
			if i, err := v.Int64(); err == nil {
				return &Literal{Value: i}, nil
			}
		}
		f, err := v.Float64()
		if err != nil {
			return nil, qerrors.Parsef("invalid number %v: %v", v, err)
		}
		return &Literal{Value: f}, nil
	}
	return nil, qerrors.Parsef("literal must be a scalar, got %s", raw)
}

// MarshalPlan encodes the plan in the JSON form read by ParsePlan.
func MarshalPlan(n Node) ([]byte, error) {
	e := encoder{seen: make(map[*CTE]bool)}
	jn, err := e.node(n)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(jsonPlan{jsonNode: *jn}, "", "  ")
}

type encoder struct {
	seen map[*CTE]bool
}

func (e *encoder) node(n Node) (*jsonNode, error) {
	switch n := n.(type) {
	case *Scan:
		jn := &jsonNode{Op: "scan", Table: n.Table, Alias: n.Alias}
		for _, c := range n.Schema() {
			jn.Columns = append(jn.Columns, jsonColumn{Name: c.Name, Type: typeName(c.Type)})
		}
		return jn, nil
	case *Filter:
		in, err := e.node(n.Input)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Op: "filter", Predicate: e.expr(n.Predicate), Input: in}, nil
	case *Project:
		in, err := e.node(n.Input)
		if err != nil {
			return nil, err
		}
		jn := &jsonNode{Op: "project", Input: in}
		for _, ne := range n.Exprs {
			jn.Exprs = append(jn.Exprs, jsonNamedExpr{Expr: e.expr(ne.Expr), As: ne.Alias})
		}
		return jn, nil
	case *Join:
		l, err := e.node(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := e.node(n.Right)
		if err != nil {
			return nil, err
		}
		jn := &jsonNode{Op: "join", Type: n.Type.String(), Left: l, Right: r}
		if n.Condition != nil {
			jn.Condition = e.expr(n.Condition)
		}
		return jn, nil
	case *Aggregate:
		in, err := e.node(n.Input)
		if err != nil {
			return nil, err
		}
		jn := &jsonNode{Op: "aggregate", GroupBy: e.exprs(n.GroupKeys), Input: in}
		if n.IsDistinct() {
			jn.Op = "distinct"
		}
		for _, agg := range n.Aggs {
			ja := jsonAgg{Func: string(agg.Func), Distinct: agg.Distinct, As: agg.Alias}
			if agg.Arg != nil {
				ja.Arg = e.expr(agg.Arg)
			}
			jn.Aggs = append(jn.Aggs, ja)
		}
		return jn, nil
	case *Sort:
		in, err := e.node(n.Input)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Op: "sort", Keys: e.sortKeys(n.Keys), Input: in}, nil
	case *Limit:
		in, err := e.node(n.Input)
		if err != nil {
			return nil, err
		}
		count := n.Count
		return &jsonNode{Op: "limit", Count: &count, Offset: n.Offset, Input: in}, nil
	case *Window:
		in, err := e.node(n.Input)
		if err != nil {
			return nil, err
		}
		return &jsonNode{
			Op:          "window",
			Func:        string(n.Func),
			Args:        e.exprs(n.Args),
			PartitionBy: e.exprs(n.PartitionBy),
			OrderBy:     e.sortKeys(n.OrderBy),
			As:          n.Alias,
			Input:       in,
		}, nil
	case *SetOp:
		jn := &jsonNode{Op: strings.ToLower(n.Kind.String()), All: n.All}
		for _, input := range n.Input {
			in, err := e.node(input)
			if err != nil {
				return nil, err
			}
			jn.Inputs = append(jn.Inputs, in)
		}
		return jn, nil
	case *Correlate:
		outer, err := e.node(n.Outer)
		if err != nil {
			return nil, err
		}
		inner, err := e.node(n.Inner)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Op: "correlate", Type: n.Type.String(), Outer: outer, Inner: inner}, nil
	case *CTE:
		if e.seen[n] {
			return &jsonNode{Op: "cte", Name: n.Name}, nil
		}
		e.seen[n] = true
		in, err := e.node(n.Input)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Op: "cte", Name: n.Name, Input: in}, nil
	}
	return nil, qerrors.Unsupportedf("can't encode %T as JSON", n)
}

func typeName(t DataType) string {
	if t == TypeUnknown {
		return ""
	}
	return t.String()
}

func (e *encoder) exprs(exprs []Expr) []*jsonExpr {
	if len(exprs) == 0 {
		return nil
	}
	res := make([]*jsonExpr, len(exprs))
	for i, x := range exprs {
		res[i] = e.expr(x)
	}
	return res
}

func (e *encoder) sortKeys(keys []SortKey) []jsonSortKey {
	res := make([]jsonSortKey, len(keys))
	for i, k := range keys {
		res[i] = jsonSortKey{Expr: e.expr(k.Expr), Desc: k.Desc}
	}
	return res
}

func (e *encoder) expr(x Expr) *jsonExpr {
	switch x := x.(type) {
	case *ColumnRef:
		s := x.String()
		return &jsonExpr{Col: &s}
	case *OuterRef:
		s := x.Column().String()
		return &jsonExpr{Outer: &s}
	case *Literal:
		return &jsonExpr{Lit: literalJSON(x.Value)}
	case *Compare:
		return &jsonExpr{Cmp: x.Op.String(), Left: e.expr(x.Left), Right: e.expr(x.Right)}
	case *And:
		return &jsonExpr{And: e.exprs(x.Args)}
	case *Or:
		return &jsonExpr{Or: e.exprs(x.Args)}
	case *Not:
		return &jsonExpr{Not: e.expr(x.Arg)}
	case *IsNull:
		return &jsonExpr{IsNull: e.expr(x.Arg), Negated: x.Negated}
	case *InList:
		return &jsonExpr{In: e.expr(x.Arg), Values: e.exprs(x.Values), Negated: x.Negated}
	case *Func:
		return &jsonExpr{Func: x.Name, Args: e.exprs(x.Args)}
	case *Exists:
		sub, err := e.node(x.Subquery)
		if err != nil {
			// Only GroupRefs can't be encoded, and they never appear in
			// subqueries.
			panic(err)
		}
		return &jsonExpr{Exists: sub, Negated: x.Negated}
	}
	panic("unknown expression type")
}

func literalJSON(v interface{}) json.RawMessage {
	switch v := v.(type) {
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return json.RawMessage(s)
	case nil:
		return json.RawMessage("null")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
