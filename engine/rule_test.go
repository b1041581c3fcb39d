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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/test"
)

func colorRule() types.RuleSpec {
	return types.RuleSpec{
		Name:   "alarm_color",
		PropID: "background_color",
		Expressions: []types.RuleExpression{
			{BoolExp: "pv0 > 10", Value: "red"},
			{BoolExp: "pvStr1 = 'on'", Value: "yellow"},
		},
		Points: refs("loc://level", "loc://state"),
	}
}

func TestRuleToExpr(t *testing.T) {
	w := test.NewWidget("tank", "rectangle", map[string]interface{}{"background_color": "green"})
	text := RuleToExpr(w, colorRule())
	expected := `let pv0 = pv(0);
let pvStr1 = pvStr(1);
setProperty("background_color", (pv0 > 10) ? ("red") : ((pvStr1 == 'on') ? ("yellow") : ("green")))
`
	assert.Equal(t, expected, text)
}

func TestRuleToExprPropAsExpr(t *testing.T) {
	rule := types.RuleSpec{
		Name:       "scaled",
		PropID:     "width",
		PropAsExpr: true,
		Expressions: []types.RuleExpression{
			{BoolExp: "pvSev0 == 0", Value: "pvInt0 * 2"},
		},
		Points: refs("loc://w"),
	}
	text := RuleToExpr(test.NewWidget("box", "rectangle", map[string]interface{}{"width": 40}), rule)
	expected := `let pvInt0 = pvInt(0);
let pvSev0 = pvSev(0);
setProperty("width", (pvSev0 == 0) ? (pvInt0 * 2) : (40))
`
	assert.Equal(t, expected, text)
}

func TestRuleToExprNoExpressions(t *testing.T) {
	rule := types.RuleSpec{Name: "noop", PropID: "visible", Points: refs("loc://a")}
	assert.Equal(t, "setProperty(\"visible\", nil)\n", RuleToExpr(test.NewWidget("w", "led", nil), rule))
}

func TestContainsIdent(t *testing.T) {
	assert.True(t, containsIdent("pv1 > 2", "pv1"))
	assert.False(t, containsIdent("pv10 > 2", "pv1"))
	assert.True(t, containsIdent("pv10 > 2 && pv1 < 3", "pv1"))
	assert.False(t, containsIdent("pvStr1 == ''", "pv1"))
}

func TestFormatLiteral(t *testing.T) {
	tests := []struct {
		input  interface{}
		expect string
	}{
		{nil, "nil"},
		{"a\"b", `"a\"b"`},
		{true, "true"},
		{42, "42"},
		{int64(-3), "-3"},
		{2.5, "2.5"},
		{[]interface{}{1, "x"}, `[1, "x"]`},
		{map[string]interface{}{"b": 1, "a": 2}, `{"a": 2, "b": 1}`},
		{types.SeverityMajor, `"MAJOR"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, FormatLiteral(tt.input))
	}
}

func TestJsToExprLogic(t *testing.T) {
	tests := []struct {
		input  string
		expect string
	}{
		{"pv0 = 1", "pv0 == 1"},
		{"pv0 == 1", "pv0 == 1"},
		{"pv0 === 1", "pv0 == 1"},
		{"pv0 != 1", "pv0 != 1"},
		{"pv0 !== 1", "pv0 != 1"},
		{"pv0 <= 1 && pv1 >= 2", "pv0 <= 1 && pv1 >= 2"},
		{`pvStr0 = "a=b"`, `pvStr0 == "a=b"`},
		{`pvStr0 = 'it\'s = ok'`, `pvStr0 == 'it\'s = ok'`},
		{`pvStr0 = "unterminated`, `pvStr0 = "unterminated`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, JsToExprLogic(tt.input), tt.input)
	}
}

func TestAddLineNumbers(t *testing.T) {
	assert.Equal(t, "   1: a\n   2: b\n", AddLineNumbers("a\nb\n"))
	assert.Equal(t, "   1: a\n   2: \n   3: c\n", AddLineNumbers("a\r\n\r\nc"))
}

func TestRuleScriptName(t *testing.T) {
	w := test.NewWidget("tank", "rectangle", nil)
	assert.Equal(t, "rectangle:tank:alarm_color.rule", RuleScriptName(w, colorRule()))
	assert.Equal(t, "alarm_color.rule", RuleScriptName(nil, colorRule()))
}

func TestCompileRuleErrors(t *testing.T) {
	support := NewScriptSupport(types.NewConfig(types.WithLogger(&recordLogger{})))
	defer support.Close()
	host := test.NewHost(test.NewWidget("w", "led", nil))

	_, err := support.CompileRule(host, types.RuleSpec{Name: "no_prop"})
	var ce *CompileError
	require.True(t, errors.As(err, &ce))

	bad := types.RuleSpec{
		Name:        "bad",
		PropID:      "x",
		Expressions: []types.RuleExpression{{BoolExp: "pv0 >", Value: 1}},
		Points:      refs("loc://a"),
	}
	_, err = support.CompileRule(host, bad)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, types.Expr, ce.Type)
	assert.Contains(t, ce.Source, "   1: let pv0 = pv(0);")
	assert.Contains(t, err.Error(), "led:w:bad.rule")
}

func TestRuleBindingEndToEnd(t *testing.T) {
	support := NewScriptSupport(types.NewConfig(types.WithLogger(&recordLogger{}), types.WithShutdownTimeout(2*time.Second)))
	defer support.Close()

	w := test.NewWidget("tank", "rectangle", map[string]interface{}{"background_color": "green"})
	host := test.NewHost(w)
	b, err := NewRuleBinding(support, host, colorRule())
	require.NoError(t, err)
	defer b.Dispose()
	assert.True(t, b.IsRule())
	assert.True(t, b.RequiresAllConnected())

	level := host.Factory.Get("loc://level")
	state := host.Factory.Get("loc://state")

	level.Set(20.0)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, w.Updates(), "the rule waits for all points")

	state.Set("off")
	waitProperty(t, w, "background_color", "red")

	level.Set(1.0)
	waitProperty(t, w, "background_color", "green")

	state.Set("on")
	waitProperty(t, w, "background_color", "yellow")
}

func TestRuleFallsBackToDefaultOnDisconnect(t *testing.T) {
	logger := &recordLogger{}
	support := NewScriptSupport(types.NewConfig(types.WithLogger(logger), types.WithShutdownTimeout(2*time.Second)))
	defer support.Close()

	w := test.NewWidget("tank", "rectangle", map[string]interface{}{"background_color": "green"})
	host := test.NewHost(w)
	b, err := NewRuleBinding(support, host, colorRule())
	require.NoError(t, err)
	defer b.Dispose()

	level := host.Factory.Get("loc://level")
	host.Factory.Get("loc://state").Set("off")
	level.Set(20.0)
	waitProperty(t, w, "background_color", "red")
	assert.False(t, b.RequiresAllConnected())

	// pv0 reads NaN, no condition holds and the default applies
	level.Disconnect()
	waitProperty(t, w, "background_color", "green")
	assert.False(t, logger.contains("failed"))
}

func waitProperty(t *testing.T, w *test.Widget, id string, expect interface{}) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := w.GetPropertyValue(id); v == expect {
			return
		}
		time.Sleep(time.Millisecond)
	}
	v, _ := w.GetPropertyValue(id)
	t.Fatalf("property %s = %v, want %v", id, v, expect)
}
