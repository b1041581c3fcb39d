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

package pv

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rulego/pvscript/api/types"
)

type event struct {
	value        interface{}
	disconnected bool
}

// recorder is a PointListener collecting events
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) OnValueChanged(point types.Point, value *types.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{value: value.Value})
}

func (r *recorder) OnDisconnected(point types.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{disconnected: true})
}

func (r *recorder) Events() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, n int) []event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := r.Events(); len(events) >= n {
			return events
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d events, got %v", n, r.Events())
	return nil
}

func quietConfig(opts ...types.Option) types.Config {
	opts = append([]types.Option{types.WithLogger(log.New(io.Discard, "", 0))}, opts...)
	return types.NewConfig(opts...)
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		input  string
		expect string
	}{
		{"x", "loc://x"},
		{" loc://x(3) ", "loc://x"},
		{"loc://x", "loc://x"},
		{"y(\"a\")", "loc://y"},
		{"sim://sine(2)", "sim://sine(2)"},
		{"mqtt://a/b", "mqtt://a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, CanonicalName(tt.input), tt.input)
	}
}

func TestLocalInitializers(t *testing.T) {
	tests := []struct {
		name   string
		expect interface{}
	}{
		{"loc://a", 0.0},
		{"loc://b(3)", 3.0},
		{"loc://c(2.5)", 2.5},
		{"loc://d(\"on\")", "on"},
		{"loc://e(true)", true},
		{"loc://f(1, 2, \"x,y\")", []interface{}{1.0, 2.0, "x,y"}},
		{"g()", 0.0},
	}
	pool := NewPool(quietConfig())
	defer pool.Close()
	for _, tt := range tests {
		p, err := pool.Acquire(tt.name)
		require.NoError(t, err, tt.name)
		require.NotNil(t, p.Read(), tt.name)
		assert.Equal(t, tt.expect, p.Read().Value, tt.name)
	}
}

func TestLocalWriteConverts(t *testing.T) {
	pool := NewPool(quietConfig())
	defer pool.Close()

	num, err := pool.Acquire("loc://n(1)")
	require.NoError(t, err)
	require.NoError(t, num.Write("42"))
	assert.Equal(t, 42.0, num.Read().Value)
	assert.Error(t, num.Write("not a number"))

	str, err := pool.Acquire("loc://s(\"a\")")
	require.NoError(t, err)
	require.NoError(t, str.Write(7))
	assert.Equal(t, "7", str.Read().Value)

	flag, err := pool.Acquire("loc://b(false)")
	require.NoError(t, err)
	require.NoError(t, flag.Write(1))
	assert.Equal(t, true, flag.Read().Value)
}

func TestPoolSharesAndReleases(t *testing.T) {
	pool := NewPool(quietConfig())
	defer pool.Close()

	a, err := pool.Acquire("loc://x(5)")
	require.NoError(t, err)
	b, err := pool.Acquire("x")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "loc://x", a.Name())
	assert.Equal(t, 2, pool.RefCount("x"))
	assert.Equal(t, []string{"loc://x"}, pool.Names())

	// the first initializer wins
	assert.Equal(t, 5.0, b.Read().Value)

	pool.Release(a)
	assert.Equal(t, 1, pool.RefCount("x"))
	pool.Release(b)
	assert.Equal(t, 0, pool.RefCount("x"))
	assert.Empty(t, pool.Names())
	assert.ErrorIs(t, a.Write(1), types.ErrPointDisposed)
	assert.Nil(t, a.Read())

	// a later acquire creates a fresh point
	c, err := pool.Acquire("loc://x")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 0.0, c.Read().Value)
}

func TestPoolReleaseUnknown(t *testing.T) {
	pool := NewPool(quietConfig())
	defer pool.Close()
	other := NewPool(quietConfig())
	defer other.Close()

	p, err := other.Acquire("loc://x")
	require.NoError(t, err)
	pool.Release(p)
	pool.Release(nil)
	assert.Equal(t, 1, other.RefCount("x"))
}

func TestPoolUnknownType(t *testing.T) {
	pool := NewPool(quietConfig())
	defer pool.Close()

	_, err := pool.Acquire("ca://x")
	assert.True(t, errors.Is(err, types.ErrUnknownPointType))
	_, err = pool.Acquire("sim://triangle")
	assert.True(t, errors.Is(err, types.ErrUnknownPointType))
	_, err = pool.Acquire("sim://sine(-1)")
	assert.Error(t, err)
	assert.Empty(t, pool.Names())
}

func TestListenerEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	pool := NewPool(quietConfig())
	defer pool.Close()

	p, err := pool.Acquire("loc://x(1)")
	require.NoError(t, err)

	r := &recorder{}
	p.AddListener(r)
	// current value arrives on the pool
	events := r.waitFor(t, 1)
	assert.Equal(t, 1.0, events[0].value)

	require.NoError(t, p.Write(2))
	require.NoError(t, p.Write(3))
	events = r.waitFor(t, 3)
	assert.Equal(t, 2.0, events[1].value)
	assert.Equal(t, 3.0, events[2].value)

	p.RemoveListener(r)
	require.NoError(t, p.Write(4))
	assert.Len(t, r.Events(), 3)
}

func TestListenerInitialValueOnWorkerPool(t *testing.T) {
	config := quietConfig(types.WithDefaultPool())
	defer config.Pool.Release()
	pool := NewPool(config)
	defer pool.Close()

	p, err := pool.Acquire("loc://x(\"hello\")")
	require.NoError(t, err)
	r := &recorder{}
	p.AddListener(r)
	assert.Equal(t, "hello", r.waitFor(t, 1)[0].value)
}

func TestListenerInitialValueStoppedWorkerPool(t *testing.T) {
	config := quietConfig(types.WithDefaultPool())
	config.Pool.Release()
	require.Error(t, config.Pool.Submit(func() {}))

	pool := NewPool(config)
	defer pool.Close()
	p, err := pool.Acquire("loc://x(5)")
	require.NoError(t, err)
	r := &recorder{}
	p.AddListener(r)
	assert.Equal(t, 5.0, r.waitFor(t, 1)[0].value)
}

func TestSimPoints(t *testing.T) {
	defer goleak.VerifyNone(t)
	pool := NewPool(quietConfig())

	p, err := pool.Acquire("sim://ramp(0.5)")
	require.NoError(t, err)
	pt := p.(*point)
	d := pt.driver.(*simDriver)
	assert.Equal(t, 500*time.Millisecond, d.period)
	assert.Equal(t, 0.0, p.Read().Value)
	assert.ErrorIs(t, p.Write(1), types.ErrPointReadOnly)

	r := &recorder{}
	p.AddListener(r)
	r.waitFor(t, 1)
	// the cron keeps the point moving
	events := r.waitFor(t, 2)
	assert.IsType(t, 0.0, events[1].value)

	require.NoError(t, pool.Close())
	assert.Nil(t, p.Read())
}

func TestSimFunctions(t *testing.T) {
	sine := SimFunctions["sine"]
	assert.InDelta(t, 0, sine(0), 1e-9)
	assert.InDelta(t, 5*math.Sin(2*math.Pi*0.2), sine(2), 1e-9)
	assert.InDelta(t, 0, sine(simSteps), 1e-9)

	ramp := SimFunctions["ramp"]
	assert.Equal(t, 0.0, ramp(0))
	assert.Equal(t, 10.0, ramp(10))
	assert.Equal(t, 0.0, ramp(11))

	noise := SimFunctions["noise"]
	for i := 0; i < 100; i++ {
		v := noise(i).(float64)
		assert.True(t, v >= -5 && v <= 5)
		assert.False(t, math.IsNaN(v))
	}

	flipflop := SimFunctions["flipflop"]
	assert.Equal(t, false, flipflop(0))
	assert.Equal(t, true, flipflop(1))
}

func TestSimTick(t *testing.T) {
	pool := NewPool(quietConfig())
	defer pool.Close()
	p, err := pool.Acquire("sim://flipflop(60)")
	require.NoError(t, err)
	pt := p.(*point)
	d := pt.driver.(*simDriver)

	r := &recorder{}
	p.AddListener(r)
	r.waitFor(t, 1)
	d.tick(pt)
	d.tick(pt)
	events := r.waitFor(t, 3)
	assert.Equal(t, []interface{}{false, true, false}, []interface{}{events[0].value, events[1].value, events[2].value})
}

func TestSimDistinctPeriods(t *testing.T) {
	pool := NewPool(quietConfig())
	defer pool.Close()
	a, err := pool.Acquire("sim://sine")
	require.NoError(t, err)
	b, err := pool.Acquire("sim://sine(2)")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, []string{"sim://sine", "sim://sine(2)"}, pool.Names())
	assert.Len(t, pool.cron.Entries(), 2)

	pool.Release(a)
	assert.Len(t, pool.cron.Entries(), 1)
}

func TestPoolClose(t *testing.T) {
	pool := NewPool(quietConfig())
	p, err := pool.Acquire("loc://x")
	require.NoError(t, err)
	r := &recorder{}
	p.AddListener(r)
	r.waitFor(t, 1)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	events := r.waitFor(t, 2)
	assert.True(t, events[1].disconnected)

	_, err = pool.Acquire("loc://y")
	assert.ErrorIs(t, err, types.ErrPointDisposed)
}

func TestConcurrentAcquireRelease(t *testing.T) {
	pool := NewPool(quietConfig())
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("loc://p%d", i%3)
			for j := 0; j < 50; j++ {
				p, err := pool.Acquire(name)
				if !assert.NoError(t, err) {
					return
				}
				_ = p.Write(j)
				pool.Release(p)
			}
		}(i)
	}
	wg.Wait()
	assert.Empty(t, pool.Names())
}
