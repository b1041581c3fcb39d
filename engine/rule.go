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

package engine

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rulego/pvscript/api/types"
)

// rulePointVars lists the per-point variables a rule expression may use,
// with the expr function that reads them.
var rulePointVars = []struct {
	prefix string
	fn     string
}{
	{"pv", "pv"},
	{"pvInt", "pvInt"},
	{"pvStr", "pvStr"},
	{"pvSev", "pvSev"},
}

// RuleToExpr generates the expr-lang text for a rule.
//
// Each rule expression is a condition; the first one that holds selects its
// value for the rule's property. When none holds the property is set back to
// the value it had when the rule was generated.
//
//	let pv0 = pv(0);
//	setProperty("background_color", (pv0 > 10) ? ("red") : ("green"))
func RuleToExpr(subject types.Widget, rule types.RuleSpec) string {
	var current interface{}
	if subject != nil {
		current, _ = subject.GetPropertyValue(rule.PropID)
	}

	// A full parse is not needed to find the variables: a name that merely
	// appears inside a string literal just creates an unused variable.
	var used strings.Builder
	for _, e := range rule.Expressions {
		used.WriteString(e.BoolExp)
		used.WriteString(" ")
		if rule.PropAsExpr {
			used.WriteString(fmt.Sprint(e.Value))
			used.WriteString(" ")
		}
	}
	check := used.String()

	var script strings.Builder
	for i := range rule.Points {
		for _, v := range rulePointVars {
			name := v.prefix + strconv.Itoa(i)
			if containsIdent(check, name) {
				fmt.Fprintf(&script, "let %s = %s(%d);\n", name, v.fn, i)
			}
		}
	}

	value := FormatLiteral(current)
	for i := len(rule.Expressions) - 1; i >= 0; i-- {
		e := rule.Expressions[i]
		var branch string
		if rule.PropAsExpr {
			branch = JsToExprLogic(fmt.Sprint(e.Value))
		} else {
			branch = FormatLiteral(e.Value)
		}
		value = fmt.Sprintf("(%s) ? (%s) : (%s)", JsToExprLogic(e.BoolExp), branch, value)
	}
	fmt.Fprintf(&script, "setProperty(%s, %s)\n", strconv.Quote(rule.PropID), value)
	return script.String()
}

// containsIdent reports whether name occurs in text not followed by an
// identifier character, so pv1 does not match pv10.
func containsIdent(text, name string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], name)
		if i < 0 {
			return false
		}
		end := start + i + len(name)
		if end >= len(text) || !isIdentChar(text[end]) {
			return true
		}
		start = end
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// FormatLiteral formats a Go value as an expr-lang literal.
func FormatLiteral(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(vv)
	case bool:
		return strconv.FormatBool(vv)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", vv)
	case float32:
		return strconv.FormatFloat(float64(vv), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(vv, 'g', -1, 64)
	case []interface{}:
		items := make([]string, len(vv))
		for i, item := range vv {
			items[i] = FormatLiteral(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			items[i] = strconv.Quote(k) + ": " + FormatLiteral(vv[k])
		}
		return "{" + strings.Join(items, ", ") + "}"
	case fmt.Stringer:
		return strconv.Quote(vv.String())
	default:
		return strconv.Quote(fmt.Sprint(vv))
	}
}

// JsToExprLogic patches JavaScript style logic for expr-lang.
// A single '=' used as comparison becomes '=='. Quoted text is left alone.
func JsToExprLogic(text string) string {
	var result strings.Builder
	result.Grow(len(text))
	n := len(text)
	for i := 0; i < n; i++ {
		c := text[i]
		if c == '"' || c == '\'' {
			// copy quoted text, honoring escaped quotes
			j := i + 1
			for j < n && (text[j] != c || text[j-1] == '\\') {
				j++
			}
			if j >= n {
				// unmatched quote
				return text
			}
			result.WriteString(text[i : j+1])
			i = j
			continue
		}
		if c == '=' {
			prev, next := byte(0), byte(0)
			if i > 0 {
				prev = text[i-1]
			}
			if i+1 < n {
				next = text[i+1]
			}
			switch {
			case prev == '!' || prev == '<' || prev == '>':
				result.WriteByte('=')
				if prev == '!' && next == '=' {
					// JavaScript '!=='
					i++
				}
			case next == '=':
				result.WriteString("==")
				i++
				if i+1 < n && text[i+1] == '=' {
					// JavaScript '==='
					i++
				}
			default:
				result.WriteString("==")
			}
			continue
		}
		result.WriteByte(c)
	}
	return result.String()
}

// AddLineNumbers prefixes each line of text with its line number.
func AddLineNumbers(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	var buf strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&buf, "%4d: %s\n", i+1, line)
	}
	return buf.String()
}

// RuleScriptName names the generated script of a rule.
func RuleScriptName(subject types.Widget, rule types.RuleSpec) string {
	if subject == nil {
		return rule.Name + ".rule"
	}
	return subject.Type() + ":" + subject.Name() + ":" + rule.Name + ".rule"
}

// CompileRule generates and compiles the expr text of a rule.
func (s *ScriptSupport) CompileRule(host Host, rule types.RuleSpec) (*CompiledScript, error) {
	if rule.PropID == "" {
		return nil, &CompileError{Name: rule.Name, Type: types.Expr, Err: errors.New("rule has no property id")}
	}
	text := RuleToExpr(host.Subject(), rule)
	name := RuleScriptName(host.Subject(), rule)
	s.config.Debugf("compiling rule script for %s\n%s", name, AddLineNumbers(text))

	script, err := s.Compile(types.Expr, name, strings.NewReader(text))
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) {
			ce.Source = AddLineNumbers(text)
		}
		return nil, err
	}
	return script, nil
}

// NewRuleBinding compiles a rule and binds it.
// Rules wait for all points to connect before their first run only.
func NewRuleBinding(support *ScriptSupport, host Host, rule types.RuleSpec) (*TriggerBinding, error) {
	script, err := support.CompileRule(host, rule)
	if err != nil {
		return nil, err
	}
	return NewTriggerBinding(host, script, rule.Points, true, true)
}
