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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Load(t *testing.T) {
	dir := t.TempDir()
	write := func(name, contents string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
		return path
	}

	t.Run("file not found", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "404.json"))
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "404.json")
		}
	})

	t.Run("file contains garbage", func(t *testing.T) {
		_, err := Load(write("garbage.json", "koala"))
		if assert.Error(t, err) {
			assert.Regexp(t, `^error decoding JSON value in .*/garbage\.json: `, err.Error())
		}
	})

	t.Run("file contains null", func(t *testing.T) {
		_, err := Load(write("null.json", "null"))
		if assert.Error(t, err) {
			assert.Regexp(t, `^loading .*/null\.json resulted in nil config$`, err.Error())
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Load(write("unknown.json", `{"roflcopter": true}`))
		if assert.Error(t, err) {
			assert.Regexp(t, `^error decoding JSON value in .*/unknown\.json: `, err.Error())
		}
	})

	t.Run("more", func(t *testing.T) {
		_, err := Load(write("more.json", "{}{}"))
		if assert.Error(t, err) {
			assert.Regexp(t, `^found unexpected data after value in .*/more\.json$`, err.Error())
		}
	})

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(write("empty.json", "{}"))
		require.NoError(t, err)
		assert.Equal(t, DefaultLargeTableRows, cfg.Gaps.LargeTableRows)
		assert.Equal(t, DefaultMaxIterations, cfg.Heuristic.MaxIterations)
		assert.Equal(t, 2*time.Second, cfg.CostBased.Timeout.Std())
		assert.Equal(t, DefaultLateralMaxNDVRatio, cfg.Rules.LateralMaxNDVRatio)
		assert.Nil(t, cfg.Statistics)
	})

	t.Run("json ok", func(t *testing.T) {
		cfg, err := Load(write("ok.json", `{
			"statistics": {"type": "sqlite", "path": "/tmp/stats.db"},
			"gaps": {"largeTableRows": 5000},
			"costBased": {"maxAlternatives": 100, "timeout": "250ms", "weights": {"join": 2.5}},
			"tracing": {"endpoint": "http://localhost:14268/api/traces"}
		}`))
		require.NoError(t, err)
		assert.Equal(t, &Statistics{Type: "sqlite", Path: "/tmp/stats.db"}, cfg.Statistics)
		assert.Equal(t, int64(5000), cfg.Gaps.LargeTableRows)
		assert.Equal(t, DefaultMinLeftJoins, cfg.Gaps.MinLeftJoins)
		assert.Equal(t, 100, cfg.CostBased.MaxAlternatives)
		assert.Equal(t, 250*time.Millisecond, cfg.CostBased.Timeout.Std())
		assert.Equal(t, 2.5, cfg.CostBased.Weights["join"])
		assert.Equal(t, "http://localhost:14268/api/traces", cfg.Tracing.Endpoint)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(write("dur.json", `{"costBased": {"timeout": "soon"}}`))
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), `invalid duration "soon"`)
		}
	})

	t.Run("yaml ok", func(t *testing.T) {
		cfg, err := Load(write("ok.yaml", `
statistics:
  type: file
  path: stats.yaml
heuristic:
  maxIterations: 4
costBased:
  timeout: 1m
rules:
  lateralMaxNDVRatio: 0.05
`))
		require.NoError(t, err)
		assert.Equal(t, "stats.yaml", cfg.Statistics.Path)
		assert.Equal(t, 4, cfg.Heuristic.MaxIterations)
		assert.Equal(t, time.Minute, cfg.CostBased.Timeout.Std())
		assert.Equal(t, 0.05, cfg.Rules.LateralMaxNDVRatio)
	})

	t.Run("yaml unknown field", func(t *testing.T) {
		_, err := Load(write("unknown.yml", "roflcopter: true\n"))
		if assert.Error(t, err) {
			assert.Regexp(t, `^error decoding YAML value in .*/unknown\.yml: `, err.Error())
		}
	})

	t.Run("yaml empty", func(t *testing.T) {
		_, err := Load(write("empty.yaml", ""))
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "empty YAML document")
		}
	})
}
