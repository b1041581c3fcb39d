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

// Package macros substitutes $(NAME) and ${NAME} references in point names,
// script paths and other widget text.
//
// A reference may carry a default, $(NAME=default), used when no provider
// knows NAME. References without value or default are left in place so that
// ContainsMacros can report them.
package macros

import (
	"errors"
	"regexp"
	"strings"
)

// MaxRecursion limits nested substitution, e.g. $(A) -> $(B) -> ...
const MaxRecursion = 20

// ErrRecursion is returned by ReplaceE when nesting exceeds MaxRecursion.
var ErrRecursion = errors.New("macro recursion limit exceeded")

var macroRegexp = regexp.MustCompile(`\$\(([A-Za-z0-9_.:\-]+)(=([^)]*))?\)|\$\{([A-Za-z0-9_.:\-]+)(=([^}]*))?\}`)

// Provider looks up macro values.
type Provider interface {
	GetValue(name string) (string, bool)
}

// Map is a Provider backed by a map.
type Map map[string]string

func (m Map) GetValue(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Chain looks up names in each provider in order.
type Chain []Provider

func (c Chain) GetValue(name string) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if v, ok := p.GetValue(name); ok {
			return v, true
		}
	}
	return "", false
}

// ContainsMacros reports whether text still has macro references.
func ContainsMacros(text string) bool {
	return macroRegexp.MatchString(text)
}

// Replace substitutes macros in text. Unknown macros stay unchanged.
// On runaway recursion the partially substituted text is returned.
func Replace(p Provider, text string) string {
	s, _ := ReplaceE(p, text)
	return s
}

// ReplaceE is Replace reporting recursion errors.
func ReplaceE(p Provider, text string) (string, error) {
	for depth := 0; depth < MaxRecursion; depth++ {
		if !strings.Contains(text, "$") {
			return text, nil
		}
		changed := false
		text = macroRegexp.ReplaceAllStringFunc(text, func(ref string) string {
			m := macroRegexp.FindStringSubmatch(ref)
			name, hasDefault, def := m[1], m[2] != "", m[3]
			if name == "" {
				name, hasDefault, def = m[4], m[5] != "", m[6]
			}
			if p != nil {
				if v, ok := p.GetValue(name); ok {
					if v != ref {
						changed = true
					}
					return v
				}
			}
			if hasDefault {
				changed = true
				return def
			}
			return ref
		})
		if !changed {
			return text, nil
		}
	}
	if ContainsMacros(text) {
		return text, ErrRecursion
	}
	return text, nil
}
