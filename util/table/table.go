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

// Package table formats data into a text-based table for human consumption.
package table

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Options represents different ways to control how the table is generated.
type Options int

const (
	// HeaderRow if specified will format the first row in the table
	// as a header (i.e. there is a separator between it and the next row).
	HeaderRow Options = 1 << iota
	// SkipEmpty if specified will cause nothing to be generated in the case
	// that the table has no rows besides the header row.
	SkipEmpty
)

// PrettyPrint writes 't' as a left-justified table to the supplied Writer.
// Cells may span multiple lines, use \n as a line break. Rows shorter than the
// first row are padded with empty cells. Cells are written in Unicode NFC.
func PrettyPrint(dest io.Writer, t [][]string, opts Options) {
	chrome := 0
	if opts&HeaderRow != 0 {
		chrome = 1
	}
	if len(t) == 0 || (opts&SkipEmpty != 0 && len(t) <= chrome) {
		return
	}
	w := bufio.NewWriterSize(dest, 256)
	defer w.Flush()

	cols := len(t[0])
	widths := make([]int, cols)
	rows := make([][][]string, len(t))
	for ridx, row := range t {
		rows[ridx] = make([][]string, cols)
		for cidx := 0; cidx < cols; cidx++ {
			var s string
			if cidx < len(row) {
				s = row[cidx]
			}
			lines := strings.Split(norm.NFC.String(s), "\n")
			rows[ridx][cidx] = lines
			for _, l := range lines {
				widths[cidx] = max(widths[cidx], charsWide(l))
			}
		}
	}
	for ridx, row := range rows {
		height := 1
		for _, lines := range row {
			height = max(height, len(lines))
		}
		for lidx := 0; lidx < height; lidx++ {
			for cidx, lines := range row {
				var l string
				if lidx < len(lines) {
					l = lines[lidx]
				}
				io.WriteString(w, " ")
				io.WriteString(w, l)
				io.WriteString(w, strings.Repeat(" ", widths[cidx]-charsWide(l)))
				io.WriteString(w, " |")
			}
			io.WriteString(w, "\n")
		}
		if ridx == 0 && chrome == 1 {
			for _, width := range widths {
				io.WriteString(w, " ")
				io.WriteString(w, strings.Repeat("-", width))
				io.WriteString(w, " |")
			}
			io.WriteString(w, "\n")
		}
	}
}

// charsWide estimates how wide an NFC string will be on a typical terminal.
func charsWide(s string) int {
	return utf8.RuneCountInString(s)
}
