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

package debug

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/ebay/querygap/stats"
)

// plannerStats is a stats.Provider that wraps another provider and records
// each lookup. Lookups that resolved to a default are marked as such.
type plannerStats struct {
	impl stats.Provider
	lock sync.Mutex // protects used
	used []statItem
}

type statItem struct {
	description string
	value       string
	missing     bool
}

var _ stats.Provider = (*plannerStats)(nil)

func (s *plannerStats) add(item statItem) {
	s.lock.Lock()
	s.used = append(s.used, item)
	s.lock.Unlock()
}

func (s *plannerStats) RowCount(table string) int64 {
	rows := s.impl.RowCount(table)
	s.add(statItem{
		description: fmt.Sprintf("RowCount %v", table),
		value:       fmt.Sprint(rows),
		missing:     !s.impl.HasTable(table),
	})
	return rows
}

func (s *plannerStats) HasTable(table string) bool {
	return s.impl.HasTable(table)
}

func (s *plannerStats) ColumnNDV(table, column string) (int64, bool) {
	ndv, ok := s.impl.ColumnNDV(table, column)
	item := statItem{description: fmt.Sprintf("NDV %v.%v", table, column), value: fmt.Sprint(ndv)}
	if !ok {
		item.value = "?"
		item.missing = true
	}
	s.add(item)
	return ndv, ok
}

func (s *plannerStats) Selectivity(table, column string) (float64, bool) {
	sel, ok := s.impl.Selectivity(table, column)
	item := statItem{description: fmt.Sprintf("Selectivity %v.%v", table, column), value: fmt.Sprintf("%.4g", sel)}
	if !ok {
		item.value = "?"
		item.missing = true
	}
	s.add(item)
	return sel, ok
}

func (s *plannerStats) IsUnique(table string, columns []string) bool {
	unique := s.impl.IsUnique(table, columns)
	s.add(statItem{
		description: fmt.Sprintf("IsUnique %v(%v)", table, strings.Join(columns, ", ")),
		value:       fmt.Sprint(unique),
	})
	return unique
}

func (s *plannerStats) References(table string, columns []string, refTable string, refColumns []string) bool {
	ref := s.impl.References(table, columns, refTable, refColumns)
	s.add(statItem{
		description: fmt.Sprintf("References %v(%v) -> %v(%v)",
			table, strings.Join(columns, ", "), refTable, strings.Join(refColumns, ", ")),
		value: fmt.Sprint(ref),
	})
	return ref
}

// missing returns the distinct descriptions of lookups that resolved to a
// default, in sorted order.
func (s *plannerStats) missing() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	seen := make(map[string]bool)
	var res []string
	for _, item := range s.used {
		if item.missing && !seen[item.description] {
			seen[item.description] = true
			res = append(res, item.description)
		}
	}
	sort.Strings(res)
	return res
}

// dump writes one line per distinct statistic looked up, sorted by
// description.
func (s *plannerStats) dump(w io.Writer) {
	s.lock.Lock()
	used := append([]statItem(nil), s.used...)
	s.lock.Unlock()
	sort.SliceStable(used, func(i, j int) bool {
		return used[i].description < used[j].description
	})
	width := 0
	for _, item := range used {
		if len(item.description) > width {
			width = len(item.description)
		}
	}
	for i, item := range used {
		if i > 0 && used[i-1] == item {
			continue
		}
		suffix := ""
		if item.missing {
			suffix = " (default)"
		}
		fmt.Fprintf(w, "%-*s %v%s\n", width, item.description, item.value, suffix)
	}
}
