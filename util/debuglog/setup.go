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

// Package debuglog sets up Logrus the way every querygap binary logs: UTC
// timestamps with microseconds, and caller file names relative to the module
// root.
package debuglog

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options control Configure. The zero value logs at Info to the standard
// logger without colors.
type Options struct {
	// ForceColors highlights levels with ANSI colors even when the output is
	// not a terminal. CLICOLOR_FORCE=1 in the environment has the same effect.
	ForceColors bool
	// Level is the minimum level logged. PanicLevel, the zero value, means
	// Info.
	Level logrus.Level
	// Logger is set up instead of logrus.StandardLogger() when not nil.
	Logger *logrus.Logger
}

// Configure applies opts. Calling it again replaces the previous setup; it
// must not race with itself.
func Configure(opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	level := opts.Level
	if level == logrus.PanicLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(true)
	logger.ReplaceHooks(logrus.LevelHooks{})
	logger.AddHook(entryHook{trimPrefix: moduleRoot()})
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:             true,
		TimestampFormat:           "2006-01-02 15:04:05.000000 MST",
		ForceColors:               opts.ForceColors,
		EnvironmentOverrideColors: true,
	})
	logger.WithFields(logrus.Fields{
		"level":       level.String(),
		"forceColors": opts.ForceColors,
	}).Debug("Logging configured")
}

// moduleRoot returns the directory holding util/, with a trailing separator,
// or "" if the runtime can't say where this file is.
func moduleRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	root := filepath.Dir(filepath.Dir(filepath.Dir(file)))
	return root + string(filepath.Separator)
}

// entryHook rewrites every entry before it's formatted: the timestamp moves
// to UTC and the caller's file loses the module root prefix.
type entryHook struct {
	trimPrefix string
}

func (entryHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h entryHook) Fire(entry *logrus.Entry) error {
	entry.Time = entry.Time.UTC()
	if h.trimPrefix != "" && entry.HasCaller() {
		entry.Caller.File = strings.TrimPrefix(entry.Caller.File, h.trimPrefix)
	}
	return nil
}
