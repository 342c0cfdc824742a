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
	"strings"
)

// DataType is the type of a column or scalar expression. The planner only
// needs to distinguish a few broad families.
type DataType int

// DataType values.
const (
	TypeUnknown DataType = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBool
	TypeDate
)

var dataTypeNames = map[DataType]string{
	TypeUnknown: "unknown",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeString:  "string",
	TypeBool:    "bool",
	TypeDate:    "date",
}

func (t DataType) String() string {
	return dataTypeNames[t]
}

// ParseDataType returns the DataType named s, or TypeUnknown.
func ParseDataType(s string) DataType {
	s = strings.ToLower(s)
	for t, name := range dataTypeNames {
		if name == s {
			return t
		}
	}
	return TypeUnknown
}

// A Column is one field of a node's output schema.
type Column struct {
	// The relation (alias) that qualifies the column, or "" for a computed
	// column without a qualifier.
	Table string
	Name  string
	Type  DataType
	// If the column's values are taken unmodified from a base table column,
	// these identify it. Used to look up statistics.
	BaseTable  string
	BaseColumn string
}

// Ref returns a reference to this column.
func (c Column) Ref() *ColumnRef {
	return &ColumnRef{Table: c.Table, Name: c.Name}
}

// String returns "table.name" or just "name".
func (c Column) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Schema is the ordered list of columns produced by a node. Schemas are
// immutable once built.
type Schema []Column

// Find looks up a column by its qualifier and name, ignoring case. An empty
// table matches any qualifier. It returns the first matching column.
func (s Schema) Find(table, name string) (Column, bool) {
	for _, c := range s {
		if strings.EqualFold(c.Name, name) && (table == "" || strings.EqualFold(c.Table, table)) {
			return c, true
		}
	}
	return Column{}, false
}

// Resolve looks up the column referenced by ref.
func (s Schema) Resolve(ref *ColumnRef) (Column, bool) {
	return s.Find(ref.Table, ref.Name)
}

// Has returns true if every column referenced by the expression (ignoring
// outer references) can be resolved in s.
func (s Schema) Has(e Expr) bool {
	for _, ref := range ColumnRefs(e) {
		if _, ok := s.Resolve(ref); !ok {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.String())
	}
	b.WriteByte(']')
	return b.String()
}

func concatSchemas(schemas ...Schema) Schema {
	n := 0
	for _, s := range schemas {
		n += len(s)
	}
	res := make(Schema, 0, n)
	for _, s := range schemas {
		res = append(res, s...)
	}
	return res
}
