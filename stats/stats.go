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

// Package stats holds the table and column statistics used to estimate the
// cardinality of plan operators.
//
// Statistics are loaded once into an immutable Snapshot, which is then shared
// read-only by any number of concurrent optimizations. Lookups never fail:
// anything missing resolves to one of the documented defaults below.
package stats

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	// DefaultRowCount is the row count assumed for a table without statistics.
	// It is never 0 so that join and filter arithmetic stays meaningful.
	DefaultRowCount int64 = 1000
	// DefaultNDVFraction is the fraction of a table's rows assumed to be
	// distinct in a column without an NDV statistic.
	DefaultNDVFraction = 0.1
	// DefaultSelectivity is the fraction of rows assumed to pass a predicate
	// whose selectivity can't be derived from column statistics.
	DefaultSelectivity = 1.0 / 3.0
	// MaxRowCount caps all row counts, estimated or loaded.
	MaxRowCount int64 = 1 << 50
)

// Provider gives read access to statistics. Implementations must be safe for
// concurrent use.
type Provider interface {
	// RowCount returns the number of rows in the table. It returns
	// DefaultRowCount if the table is unknown.
	RowCount(table string) int64
	// HasTable returns true if statistics were loaded for the table.
	HasTable(table string) bool
	// ColumnNDV returns the number of distinct values in the column, if known.
	ColumnNDV(table, column string) (int64, bool)
	// Selectivity returns a selectivity hint for predicates on the column, if
	// known. The result is in (0, 1].
	Selectivity(table, column string) (float64, bool)
	// IsUnique returns true if the given columns contain a verified unique key
	// of the table.
	IsUnique(table string, columns []string) bool
	// References returns true if there is a verified foreign key from
	// table.columns to refTable.refColumns. Columns are matched pairwise in
	// the given order.
	References(table string, columns []string, refTable string, refColumns []string) bool
}

// Data is the serialized form of a Snapshot.
type Data struct {
	Tables      []Table      `json:"tables" yaml:"tables"`
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty"`
}

// Table describes the statistics of one table.
type Table struct {
	Name     string   `json:"name" yaml:"name"`
	RowCount int64    `json:"rowCount" yaml:"rowCount"`
	Columns  []Column `json:"columns,omitempty" yaml:"columns,omitempty"`
	// Each entry is a set of columns that is verified to be unique.
	UniqueKeys [][]string `json:"uniqueKeys,omitempty" yaml:"uniqueKeys,omitempty"`
}

// Column describes the statistics of one column. NDV and Selectivity are
// optional.
type Column struct {
	Name        string   `json:"name" yaml:"name"`
	NDV         *int64   `json:"ndv,omitempty" yaml:"ndv,omitempty"`
	Selectivity *float64 `json:"selectivity,omitempty" yaml:"selectivity,omitempty"`
}

// ForeignKey is a verified referential-integrity constraint: every non-null
// value of Table.Columns appears in RefTable.RefColumns.
type ForeignKey struct {
	Table      string   `json:"table" yaml:"table"`
	Columns    []string `json:"columns" yaml:"columns"`
	RefTable   string   `json:"refTable" yaml:"refTable"`
	RefColumns []string `json:"refColumns" yaml:"refColumns"`
}

// Snapshot is an immutable set of statistics. It implements Provider.
type Snapshot struct {
	tables map[string]*tableStats
	fks    []ForeignKey
}

type tableStats struct {
	rows       int64
	columns    map[string]Column
	uniqueKeys [][]string
}

var _ Provider = (*Snapshot)(nil)

// Empty is a Snapshot with no statistics; every lookup returns a default.
var Empty = &Snapshot{tables: map[string]*tableStats{}}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeAll(names []string) []string {
	res := make([]string, len(names))
	for i, n := range names {
		res[i] = normalize(n)
	}
	return res
}

// NewSnapshot builds a Snapshot from the given data. Table and column names are
// case-insensitive. It returns an error for negative counts, out-of-range
// selectivities, duplicate tables, or keys that name unknown columns.
func NewSnapshot(data Data) (*Snapshot, error) {
	s := &Snapshot{tables: make(map[string]*tableStats, len(data.Tables))}
	for _, t := range data.Tables {
		name := normalize(t.Name)
		if name == "" {
			return nil, errors.New("table statistics with empty name")
		}
		if _, exists := s.tables[name]; exists {
			return nil, errors.Newf("duplicate statistics for table %q", t.Name)
		}
		if t.RowCount < 0 {
			return nil, errors.Newf("table %q: negative row count %d", t.Name, t.RowCount)
		}
		ts := &tableStats{
			rows:    min(t.RowCount, MaxRowCount),
			columns: make(map[string]Column, len(t.Columns)),
		}
		for _, c := range t.Columns {
			cname := normalize(c.Name)
			if c.NDV != nil && *c.NDV < 0 {
				return nil, errors.Newf("column %s.%s: negative NDV %d", t.Name, c.Name, *c.NDV)
			}
			if c.Selectivity != nil && (*c.Selectivity <= 0 || *c.Selectivity > 1) {
				return nil, errors.Newf("column %s.%s: selectivity %v out of range (0, 1]",
					t.Name, c.Name, *c.Selectivity)
			}
			c.Name = cname
			ts.columns[cname] = c
		}
		for _, key := range t.UniqueKeys {
			if len(key) == 0 {
				return nil, errors.Newf("table %q: empty unique key", t.Name)
			}
			ts.uniqueKeys = append(ts.uniqueKeys, normalizeAll(key))
		}
		s.tables[name] = ts
	}
	for _, fk := range data.ForeignKeys {
		if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.RefColumns) {
			return nil, errors.Newf("foreign key %s%v -> %s%v: column count mismatch",
				fk.Table, fk.Columns, fk.RefTable, fk.RefColumns)
		}
		s.fks = append(s.fks, ForeignKey{
			Table:      normalize(fk.Table),
			Columns:    normalizeAll(fk.Columns),
			RefTable:   normalize(fk.RefTable),
			RefColumns: normalizeAll(fk.RefColumns),
		})
	}
	return s, nil
}

// RowCount implements Provider.RowCount.
func (s *Snapshot) RowCount(table string) int64 {
	t, found := s.tables[normalize(table)]
	if !found {
		return DefaultRowCount
	}
	return t.rows
}

// HasTable implements Provider.HasTable.
func (s *Snapshot) HasTable(table string) bool {
	_, found := s.tables[normalize(table)]
	return found
}

// ColumnNDV implements Provider.ColumnNDV. The returned NDV never exceeds the
// table's row count.
func (s *Snapshot) ColumnNDV(table, column string) (int64, bool) {
	t, found := s.tables[normalize(table)]
	if !found {
		return 0, false
	}
	c, found := t.columns[normalize(column)]
	if !found || c.NDV == nil {
		return 0, false
	}
	return min(*c.NDV, t.rows), true
}

// Selectivity implements Provider.Selectivity.
func (s *Snapshot) Selectivity(table, column string) (float64, bool) {
	t, found := s.tables[normalize(table)]
	if !found {
		return 0, false
	}
	c, found := t.columns[normalize(column)]
	if !found || c.Selectivity == nil {
		return 0, false
	}
	return *c.Selectivity, true
}

// IsUnique implements Provider.IsUnique.
func (s *Snapshot) IsUnique(table string, columns []string) bool {
	t, found := s.tables[normalize(table)]
	if !found {
		return false
	}
	have := normalizeAll(columns)
	for _, key := range t.uniqueKeys {
		if containsAll(have, key) {
			return true
		}
	}
	return false
}

// References implements Provider.References.
func (s *Snapshot) References(table string, columns []string, refTable string, refColumns []string) bool {
	if len(columns) == 0 || len(columns) != len(refColumns) {
		return false
	}
	want := pairs(normalizeAll(columns), normalizeAll(refColumns))
	table, refTable = normalize(table), normalize(refTable)
	for _, fk := range s.fks {
		if fk.Table != table || fk.RefTable != refTable || len(fk.Columns) != len(want) {
			continue
		}
		got := pairs(fk.Columns, fk.RefColumns)
		if strings.Join(got, ",") == strings.Join(want, ",") {
			return true
		}
	}
	return false
}

// Tables returns the names of all tables with statistics, sorted.
func (s *Snapshot) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func pairs(a, b []string) []string {
	res := make([]string, len(a))
	for i := range a {
		res[i] = a[i] + "=" + b[i]
	}
	sort.Strings(res)
	return res
}

func containsAll(have []string, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
