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

package table

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_PrettyPrint(t *testing.T) {
	tests := []struct {
		name  string
		table [][]string
		opts  Options
		exp   string
	}{
		{
			name:  "header",
			table: [][]string{{"rule", "category"}, {"LIMIT_MERGE", "sort"}},
			opts:  HeaderRow,
			exp: `
 rule        | category |
 ----------- | -------- |
 LIMIT_MERGE | sort     |
`,
		},
		{
			name:  "multiline",
			table: [][]string{{"a", "one\ntwo"}, {"bb", "x"}},
			exp: `
 a  | one |
    | two |
 bb | x   |
`,
		},
		{
			name:  "utf8",
			table: [][]string{{"Beyoncé"}, {"shrt"}},
			exp: `
 Beyoncé |
 shrt    |
`,
		},
		{
			name:  "skipEmpty",
			table: [][]string{{"rule", "category"}},
			opts:  HeaderRow | SkipEmpty,
			exp:   "\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf strings.Builder
			PrettyPrint(&buf, test.table, test.opts)
			assert.Equal(t, test.exp, "\n"+buf.String())
		})
	}
}

func Test_PrettyPrintWritesNFC(t *testing.T) {
	var buf strings.Builder
	PrettyPrint(&buf, [][]string{{"Beyoncé", "x"}, {"Zoë", "y"}}, 0)
	assert.Equal(t, " Beyoncé | x |\n Zoë     | y |\n", buf.String())
}
