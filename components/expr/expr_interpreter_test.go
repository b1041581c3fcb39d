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

package expr

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/test"
)

func newInterpreter(t *testing.T, opts ...types.Option) *Interpreter {
	t.Helper()
	in, err := NewInterpreter(types.NewConfig(opts...))
	require.NoError(t, err)
	return in
}

func run(t *testing.T, in *Interpreter, ectx types.ExecutionContext, src string) error {
	t.Helper()
	unit, err := in.Compile("test.expr", strings.NewReader(src))
	require.NoError(t, err)
	in.Bind(ectx)
	defer in.Unbind()
	return in.Exec(context.Background(), unit)
}

func TestExprPointFunctions(t *testing.T) {
	in := newInterpreter(t)
	assert.Equal(t, types.Expr, in.Type())

	w := test.NewWidget("gauge", "meter", nil)
	a := test.NewPoint("loc://a")
	b := test.NewPoint("loc://b")
	a.Set(int64(7))
	b.SetValue(&types.Value{Value: "3.5", Severity: types.SeverityMinor})
	ectx := types.ExecutionContext{Subject: w, Points: []types.Point{a, b}}

	require.NoError(t, run(t, in, ectx, `setProperty("sum", pv(0) + pv(1))`))
	sum, _ := w.GetPropertyValue("sum")
	assert.Equal(t, 10.5, sum)

	require.NoError(t, run(t, in, ectx, `setProperty("text", pvStr(0) + "/" + pvStr(1))`))
	text, _ := w.GetPropertyValue("text")
	assert.Equal(t, "7/3.5", text)

	require.NoError(t, run(t, in, ectx, `setProperty("sev", pvSev(1))`))
	sev, _ := w.GetPropertyValue("sev")
	assert.Equal(t, int(types.SeverityMinor), sev)

	require.NoError(t, run(t, in, ectx, `let n = pvInt(1); setProperty("int", n * 2)`))
	n, _ := w.GetPropertyValue("int")
	assert.EqualValues(t, 6, n)
}

func TestExprPropertiesAndWrite(t *testing.T) {
	in := newInterpreter(t)
	w := test.NewWidget("w", "label", map[string]interface{}{"text": "old"})
	p := test.NewPoint("loc://out")
	ectx := types.ExecutionContext{Subject: w, Points: []types.Point{p}}

	require.NoError(t, run(t, in, ectx, `setProperty("copy", getProperty("text") + "!")`))
	c, _ := w.GetPropertyValue("copy")
	assert.Equal(t, "old!", c)

	require.NoError(t, run(t, in, ectx, `writePV(0, 12)`))
	assert.Len(t, p.Writes(), 1)
	assert.EqualValues(t, 12, p.Writes()[0])

	ro := test.NewPoint("sim://ramp")
	ro.ReadOnly = true
	err := run(t, in, types.ExecutionContext{Subject: w, Points: []types.Point{ro}}, `writePV(0, 1)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), types.ErrPointReadOnly.Error())
}

func TestExprErrors(t *testing.T) {
	in := newInterpreter(t)
	w := test.NewWidget("w", "label", nil)
	p := test.NewPoint("loc://never")

	for _, src := range []string{`setProperty("x", pvInt(0))`, `setProperty("x", pvStr(0))`} {
		err := run(t, in, types.ExecutionContext{Subject: w, Points: []types.Point{p}}, src)
		assert.Error(t, err, src)
	}
	_, ok := w.GetPropertyValue("x")
	assert.False(t, ok)

	// pv reads NaN while disconnected, so comparisons are false
	require.NoError(t, run(t, in, types.ExecutionContext{Subject: w, Points: []types.Point{p}}, `setProperty("x", pv(0))`))
	x, _ := w.GetPropertyValue("x")
	assert.True(t, math.IsNaN(x.(float64)))
	require.NoError(t, run(t, in, types.ExecutionContext{Subject: w, Points: []types.Point{p}}, `setProperty("high", pv(0) > 10)`))
	high, _ := w.GetPropertyValue("high")
	assert.Equal(t, false, high)

	err := run(t, in, types.ExecutionContext{Subject: w, Points: []types.Point{p}}, `pv(3)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrPointIndex.Error())

	require.NoError(t, run(t, in, types.ExecutionContext{Subject: w, Points: []types.Point{p}}, `setProperty("sev", pvSev(0))`))
	sev, _ := w.GetPropertyValue("sev")
	assert.Equal(t, int(types.SeverityDisconnected), sev)

	_, err = in.Compile("broken.expr", strings.NewReader(`setProperty("x", `))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken.expr")
}

func TestExprNotBound(t *testing.T) {
	in := newInterpreter(t)
	unit, err := in.Compile("unbound.expr", strings.NewReader(`pv(0)`))
	require.NoError(t, err)
	err = in.Exec(context.Background(), unit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrNotBound.Error())
}

func TestExprCancelled(t *testing.T) {
	in := newInterpreter(t)
	unit, err := in.Compile("c.expr", strings.NewReader(`setProperty("x", 1)`))
	require.NoError(t, err)
	w := test.NewWidget("w", "label", nil)
	in.Bind(types.ExecutionContext{Subject: w})
	defer in.Unbind()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(in.Exec(ctx, unit), context.Canceled))
	_, ok := w.GetPropertyValue("x")
	assert.False(t, ok)
}

func TestExprUdfAndGlobal(t *testing.T) {
	config := types.NewConfig(types.WithProperties(map[string]string{"unit": "mA"}))
	config.RegisterUdf("scale", func(v float64) float64 { return v * 10 })
	config.RegisterUdf("label", types.Script{Type: types.Expr, Content: func(s string) string { return "[" + s + "]" }})
	config.RegisterUdf("jsOnly", `function jsOnly() {}`)
	in, err := NewInterpreter(config)
	require.NoError(t, err)

	w := test.NewWidget("w", "label", nil)
	p := test.NewPoint("loc://i")
	p.Set(1.5)
	ectx := types.ExecutionContext{Subject: w, Points: []types.Point{p}}

	require.NoError(t, run(t, in, ectx, `setProperty("text", label(string(scale(pv(0)))) + global.unit)`))
	text, _ := w.GetPropertyValue("text")
	assert.Equal(t, "[15]mA", text)
	_, ok := in.env["jsOnly"]
	assert.False(t, ok)
}
