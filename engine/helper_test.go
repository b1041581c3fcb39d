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
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/test"
)

const mockType = "mock"

// recordLogger collects log lines
type recordLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordLogger) Printf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *recordLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func (l *recordLogger) waitFor(s string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if l.contains(s) {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return l.contains(s)
}

// gate blocks the "block" script until released
type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) exec(ctx context.Context, unit string) error {
	if unit != "block" {
		return nil
	}
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

type fixture struct {
	logger  *recordLogger
	config  types.Config
	interp  *test.Interpreter
	support *ScriptSupport
	gate    *gate
}

func newFixture(t *testing.T, opts ...types.Option) *fixture {
	t.Helper()
	logger := &recordLogger{}
	opts = append([]types.Option{types.WithLogger(logger), types.WithShutdownTimeout(2 * time.Second)}, opts...)
	config := types.NewConfig(opts...)
	interp := test.NewInterpreter(mockType)
	g := newGate()
	interp.OnExec = g.exec
	f := &fixture{
		logger:  logger,
		config:  config,
		interp:  interp,
		support: NewScriptSupport(config, WithInterpreter(interp)),
		gate:    g,
	}
	t.Cleanup(func() {
		_ = f.support.Close()
	})
	return f
}

func (f *fixture) compile(t *testing.T, name, text string) *CompiledScript {
	t.Helper()
	script, err := f.support.Compile(mockType, name, strings.NewReader(text))
	require.NoError(t, err)
	return script
}

// occupy runs the blocking script and waits until the worker is inside it
func (f *fixture) occupy(t *testing.T) *Future {
	t.Helper()
	blocker := f.compile(t, "blocker", "block")
	future := blocker.Submit(types.ExecutionContext{})
	require.NotNil(t, future)
	select {
	case <-f.gate.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not start the blocking script")
	}
	return future
}

func (f *fixture) unblock() {
	close(f.gate.release)
}

func waitFuture(t *testing.T, future *Future) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, future.Wait(ctx))
}
