/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package display loads display definitions and keeps running displays by id.
//
// A display file is JSON or YAML:
//
//	name: plant
//	macros:
//	  DEV: tank1
//	widgets:
//	  - name: level
//	    type: textupdate
//	    properties:
//	      text: ""
//	    scripts:
//	      - path: show.js
//	        pvs:
//	          - name: loc://$(DEV):level(0)
//	            trigger: true
//	    rules:
//	      - name: high
//	        propId: background_color
//	        expressions:
//	          - boolExp: pv0 > 10
//	            value: red
//	        pvs:
//	          - name: loc://$(DEV):level
//	            trigger: true
package display

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rulego/pvscript/utils/maps"
	"github.com/rulego/pvscript/widget"
)

// Supported definition formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned for files that are neither JSON nor YAML.
var ErrUnknownFormat = errors.New("unknown display format")

// FormatOf returns the format for a file name, empty if unknown.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}

// Parse decodes a display definition.
func Parse(data []byte, format string) (widget.DisplayDefinition, error) {
	var def widget.DisplayDefinition
	var raw map[string]interface{}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return def, fmt.Errorf("parse display: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return def, fmt.Errorf("parse display: %w", err)
		}
	default:
		return def, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := maps.Map2Struct(raw, &def); err != nil {
		return def, fmt.Errorf("decode display: %w", err)
	}
	return def, nil
}

// LoadFile reads and parses a display file. A display without name is named
// after the file.
func LoadFile(path string) (widget.DisplayDefinition, error) {
	format := FormatOf(path)
	if format == "" {
		return widget.DisplayDefinition{}, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return widget.DisplayDefinition{}, err
	}
	def, err := Parse(data, format)
	if err != nil {
		return def, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}
