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

func refs(names ...string) []types.PointRef {
	var list []types.PointRef
	for _, n := range names {
		list = append(list, types.PointRef{Name: n, Trigger: true})
	}
	return list
}

// settle waits until the worker ran n times and then a little longer, so an
// unexpected extra run would show up
func settle(t *testing.T, f *fixture, n int) {
	t.Helper()
	require.True(t, f.interp.WaitExecs(n, 2*time.Second), "expected %d runs, got %d", n, f.interp.Execs())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, f.interp.Execs())
}

func TestBindingRunsImmediatelyWhenNotGated(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))

	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), refs("loc://a", "loc://b"), false, false)
	require.NoError(t, err)
	defer b.Dispose()

	settle(t, f, 1)
	run := f.interp.Runs()[0]
	require.Len(t, run.Values, 2)
	assert.Nil(t, run.Values[0])
	assert.Nil(t, run.Values[1])
	assert.Equal(t, 2, host.TrackedPoints())
	assert.True(t, b.IsSubscribed(0))
	assert.True(t, b.IsSubscribed(1))
}

func TestBindingConnectivityGate(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), refs("loc://a", "loc://b"), true, false)
	require.NoError(t, err)
	defer b.Dispose()

	a := host.Factory.Get("loc://a")
	bp := host.Factory.Get("loc://b")

	a.Set(1)
	settle(t, f, 0)

	bp.Set(2)
	settle(t, f, 1)
	assert.Equal(t, 1, f.interp.Runs()[0].Values[0].Value)
	assert.Equal(t, 2, f.interp.Runs()[0].Values[1].Value)

	// scripts stay gated: a disconnect is ignored, a change with a missing point too
	a.Disconnect()
	settle(t, f, 1)
	bp.Set(3)
	settle(t, f, 1)
	assert.True(t, b.RequiresAllConnected())

	a.Set(4)
	settle(t, f, 2)
}

func TestBindingNonTriggerOnlyFirstRun(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	pointRefs := []types.PointRef{
		{Name: "loc://trigger", Trigger: true},
		{Name: "loc://passive", Trigger: false},
	}
	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), pointRefs, true, false)
	require.NoError(t, err)
	defer b.Dispose()

	trigger := host.Factory.Get("loc://trigger")
	passive := host.Factory.Get("loc://passive")

	trigger.Set(1)
	settle(t, f, 0)

	// the slow non-trigger point completes the connections and starts the first run
	passive.Set(10)
	settle(t, f, 1)
	assert.True(t, b.ExecutedOnce())
	assert.False(t, b.IsSubscribed(1))
	assert.Equal(t, 0, passive.Listeners())

	passive.Set(11)
	settle(t, f, 1)

	trigger.Set(2)
	settle(t, f, 2)
	run := f.interp.Runs()[1]
	assert.Equal(t, 11, run.Values[1].Value, "the script still reads the non-trigger point")
}

func TestBindingNonTriggerDoesNotRunAgain(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	pointRefs := []types.PointRef{
		{Name: "loc://t", Trigger: true},
		{Name: "loc://n1", Trigger: false},
		{Name: "loc://n2", Trigger: false},
	}
	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), pointRefs, false, false)
	require.NoError(t, err)
	defer b.Dispose()
	settle(t, f, 1)

	host.Factory.Get("loc://n1").Set(1)
	settle(t, f, 2)
	// a second non-trigger point connecting later does not run the script again
	host.Factory.Get("loc://n2").Set(1)
	settle(t, f, 2)
	assert.False(t, b.IsSubscribed(1))
	assert.False(t, b.IsSubscribed(2))
	assert.True(t, b.IsSubscribed(0))
}

func TestBindingDisconnect(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	pointRefs := []types.PointRef{
		{Name: "loc://t", Trigger: true},
		{Name: "loc://n", Trigger: false},
	}
	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), pointRefs, false, false)
	require.NoError(t, err)
	defer b.Dispose()
	settle(t, f, 1)

	tp := host.Factory.Get("loc://t")
	tp.Set(1)
	settle(t, f, 2)

	// the script is told about its trigger point going away
	tp.Disconnect()
	settle(t, f, 3)
	assert.Nil(t, f.interp.Runs()[2].Values[0])

	b.OnDisconnected(host.Factory.Get("loc://n"))
	settle(t, f, 3)
}

func TestRuleBindingClearsGateAfterFirstRun(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	b, err := NewTriggerBinding(host, f.compile(t, "r", "x"), refs("loc://a", "loc://b"), true, true)
	require.NoError(t, err)
	defer b.Dispose()
	assert.True(t, b.IsRule())

	a := host.Factory.Get("loc://a")
	a.Disconnect()
	a.Set(1)
	settle(t, f, 0)
	host.Factory.Get("loc://b").Set(1)
	settle(t, f, 1)
	assert.False(t, b.RequiresAllConnected())

	// ungated now: disconnects and partial connections run the rule
	a.Disconnect()
	settle(t, f, 2)
	host.Factory.Get("loc://b").Set(2)
	settle(t, f, 3)
}

func TestBindingCoalescesBurst(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), refs("loc://a"), true, false)
	require.NoError(t, err)
	defer b.Dispose()

	blocker := f.occupy(t)
	a := host.Factory.Get("loc://a")
	for i := 0; i < 10; i++ {
		a.Set(i)
	}
	f.unblock()
	waitFuture(t, blocker)

	// blocker plus a single run that sees the last value
	settle(t, f, 2)
	runs := f.interp.Runs()
	assert.Equal(t, 9, runs[1].Values[0].Value)
}

func TestBindingDispose(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	pointRefs := []types.PointRef{
		{Name: "loc://t", Trigger: true},
		{Name: "loc://n", Trigger: false},
	}
	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), pointRefs, false, false)
	require.NoError(t, err)
	settle(t, f, 1)
	host.Factory.Get("loc://n").Set(1)
	settle(t, f, 2)

	b.Dispose()
	b.Dispose()
	assert.True(t, b.IsDisposed())
	assert.Equal(t, 1, host.Factory.Released("loc://t"))
	assert.Equal(t, 1, host.Factory.Released("loc://n"))
	assert.Equal(t, 0, host.TrackedPoints())
	assert.Equal(t, 0, host.Factory.Get("loc://t").Listeners())

	// late callbacks are ignored
	b.OnValueChanged(host.Factory.Get("loc://t"), types.NewValue(5))
	b.OnDisconnected(host.Factory.Get("loc://t"))
	settle(t, f, 2)
}

func TestBindingAcquireFailure(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	host.Factory.Fail = map[string]error{"bad://x": types.ErrUnknownPointType}

	_, err := NewTriggerBinding(host, f.compile(t, "s", "x"), refs("loc://ok", "bad://x"), false, false)
	var be *BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "bad://x", be.Point)
	assert.True(t, errors.Is(err, types.ErrUnknownPointType))
	assert.Equal(t, 1, host.Factory.Released("loc://ok"))
	assert.Equal(t, 0, host.TrackedPoints())
	settle(t, f, 0)
}

func TestBindingResolvesMacros(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	host.Vars["DEV"] = "pump1"

	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), refs("loc://$(DEV):speed", "loc://$(MISSING)"), true, false)
	require.NoError(t, err)
	defer b.Dispose()
	assert.Equal(t, 1, host.Factory.Acquired("loc://pump1:speed"))
	assert.Equal(t, "loc://pump1:speed", b.Points()[0].Name())
	assert.True(t, f.logger.contains("is not fully resolved"))
}

func TestBindingUnknownPoint(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), refs("loc://a"), false, false)
	require.NoError(t, err)
	defer b.Dispose()
	settle(t, f, 1)

	stranger := test.NewPoint("loc://stranger")
	stranger.Set(1)
	b.OnValueChanged(stranger, stranger.Read())
	settle(t, f, 1)
	assert.True(t, f.logger.contains("triggered by unknown point loc://stranger"))
}

func TestBindingDebugDump(t *testing.T) {
	f := newFixture(t, types.WithDebug(true))
	host := test.NewHost(test.NewWidget("w", "label", nil))
	b, err := NewTriggerBinding(host, f.compile(t, "s", "x"), refs("loc://a"), true, false)
	require.NoError(t, err)
	defer b.Dispose()

	host.Factory.Get("loc://a").Set(42)
	settle(t, f, 1)
	assert.True(t, f.logger.contains("Triggered by loc://a = 42"))
	assert.True(t, f.logger.contains("pvs[0]: loc://a = 42 - trigger!"))
}

func TestScriptBindingFromSpec(t *testing.T) {
	f := newFixture(t)
	host := test.NewHost(test.NewWidget("w", "label", nil))
	spec := types.ScriptSpec{
		Path:             "inline.mock",
		Text:             "x",
		Points:           refs("loc://a"),
		CheckConnections: true,
	}
	b, err := NewScriptBinding(f.support, host, spec)
	require.NoError(t, err)
	defer b.Dispose()
	assert.False(t, b.IsRule())
	assert.True(t, b.RequiresAllConnected())

	_, err = NewScriptBinding(f.support, host, types.ScriptSpec{Path: "broken.mock", Text: "syntax error"})
	var ce *CompileError
	assert.True(t, errors.As(err, &ce))
}
