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

package macros

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplace(t *testing.T) {
	m := Map{"S": "DEV", "N": "1", "NAME": "$(S):pv$(N)", "LOOP": "$(LOOP)x"}

	var tests = []struct {
		in, out string
	}{
		{"plain", "plain"},
		{"$(S):temp", "DEV:temp"},
		{"${S}:temp", "DEV:temp"},
		{"loc://$(NAME)", "loc://DEV:pv1"},
		{"$(MISSING):x", "$(MISSING):x"},
		{"$(MISSING=def):x", "def:x"},
		{"${S=other}", "DEV"},
		{"$(S)$(N)${N}", "DEV11"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, Replace(m, tt.in), tt.in)
	}

	s, err := ReplaceE(m, "$(LOOP)")
	assert.ErrorIs(t, err, ErrRecursion)
	assert.True(t, ContainsMacros(s))
}

func TestChain(t *testing.T) {
	widget := Map{"S": "widget"}
	global := Map{"S": "global", "G": "g"}
	c := Chain{widget, nil, global}

	assert.Equal(t, "widget/g", Replace(c, "$(S)/$(G)"))
	_, ok := c.GetValue("X")
	assert.False(t, ok)
}

func TestContainsMacros(t *testing.T) {
	assert.True(t, ContainsMacros("a$(B)c"))
	assert.True(t, ContainsMacros("${B}"))
	assert.False(t, ContainsMacros("$B"))
	assert.False(t, ContainsMacros("loc://x(3)"))
	assert.Equal(t, "$(X)", Replace(nil, "$(X)"))
}
