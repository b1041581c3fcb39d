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

package maps

import (
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Map2Struct Decode takes an input structure and uses reflection to translate it to
// the output structure. output must be a pointer to a map or struct.
//
// Field names are matched against `json` tags, case-insensitively, so that
// definitions read from JSON or YAML decode into the same structs.
// Duration fields accept strings such as "5s".
func Map2Struct(input interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Get returns the value at a dot separated map path such as "macros.DEV".
// It returns nil if any step is missing.
func Get(input interface{}, path string) interface{} {
	if path == "" {
		return nil
	}
	current := input
	for _, key := range strings.Split(path, ".") {
		if key == "" {
			return nil
		}
		switch m := current.(type) {
		case map[string]interface{}:
			current = m[key]
		case map[string]string:
			v, ok := m[key]
			if !ok {
				return nil
			}
			current = v
		default:
			return nil
		}
	}
	return current
}
