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
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Load parses the configuration from the given JSON or YAML file; files named
// *.yaml or *.yml are parsed as YAML, anything else as JSON. Upon success, it
// returns a non-nil configuration with defaults applied. Otherwise, it returns
// an error, which already includes the filename.
func Load(filename string) (*Config, error) {
	cfg := new(Config)
	// This **Config double-pointer is required to detect an input of "null".
	if err := DecodeFile(filename, &cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.Newf("loading %v resulted in nil config", filename)
	}
	withDefaults := cfg.WithDefaults()
	return &withDefaults, nil
}

// DecodeFile decodes the JSON or YAML file into v. Unknown fields are errors.
func DecodeFile(filename string, v interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	reader := bufio.NewReader(f)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return decodeYAML(filename, reader, v)
	default:
		return decodeJSON(filename, reader, v)
	}
}

func decodeJSON(filename string, r io.Reader, v interface{}) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.Newf("error decoding JSON value in %v: %v", filename, err)
	}
	if decoder.More() {
		return errors.Newf("found unexpected data after value in %v", filename)
	}
	return nil
}

func decodeYAML(filename string, r io.Reader, v interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "reading %v", filename)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err = decoder.Decode(v)
	if err == io.EOF {
		return errors.Newf("loading %v: empty YAML document", filename)
	}
	if err != nil {
		return errors.Newf("error decoding YAML value in %v: %v", filename, err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Newf("duration must be a string like \"1.5s\": %v", err)
	}
	return d.parse(s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
