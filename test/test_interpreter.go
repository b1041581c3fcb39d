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
package test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rulego/pvscript/api/types"
)

// ErrSyntax is returned by Interpreter.Compile for sources containing "syntax error".
var ErrSyntax = errors.New("syntax error")

// Run one recorded execution
type Run struct {
	Unit    string
	Subject types.Widget
	Points  []types.Point
	Values  []*types.Value
}

// Interpreter counts runs and records what was bound. The compiled unit is
// the source text. OnExec, if set, runs inside Exec and its error is returned.
type Interpreter struct {
	ScriptType string
	OnExec     func(ctx context.Context, unit string) error

	mu      sync.Mutex
	bound   *types.ExecutionContext
	runs    []Run
	closed  bool
	running int32
	overlap atomic.Bool
	execs   atomic.Int32
	unbinds atomic.Int32
}

// NewInterpreter creates an interpreter for scriptType.
func NewInterpreter(scriptType string) *Interpreter {
	return &Interpreter{ScriptType: scriptType}
}

func (in *Interpreter) Type() string { return in.ScriptType }

func (in *Interpreter) Compile(name string, src io.Reader) (types.CompiledUnit, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(b), "syntax error") {
		return nil, ErrSyntax
	}
	return string(b), nil
}

func (in *Interpreter) Bind(ectx types.ExecutionContext) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.bound = &ectx
}

func (in *Interpreter) Exec(ctx context.Context, unit types.CompiledUnit) error {
	if atomic.AddInt32(&in.running, 1) > 1 {
		in.overlap.Store(true)
	}
	defer atomic.AddInt32(&in.running, -1)
	in.execs.Add(1)

	text, _ := unit.(string)
	in.mu.Lock()
	run := Run{Unit: text}
	if in.bound != nil {
		run.Subject = in.bound.Subject
		run.Points = in.bound.Points
		for _, p := range in.bound.Points {
			run.Values = append(run.Values, p.Read())
		}
	}
	in.runs = append(in.runs, run)
	in.mu.Unlock()

	if in.OnExec != nil {
		return in.OnExec(ctx, text)
	}
	return nil
}

func (in *Interpreter) Unbind() {
	in.unbinds.Add(1)
	in.mu.Lock()
	defer in.mu.Unlock()
	in.bound = nil
}

func (in *Interpreter) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	return nil
}

// Execs returns the number of Exec calls.
func (in *Interpreter) Execs() int {
	return int(in.execs.Load())
}

// Unbinds returns the number of Unbind calls.
func (in *Interpreter) Unbinds() int {
	return int(in.unbinds.Load())
}

// Runs returns the recorded runs.
func (in *Interpreter) Runs() []Run {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Run(nil), in.runs...)
}

// Overlapped reports whether two Exec calls ever ran at the same time.
func (in *Interpreter) Overlapped() bool {
	return in.overlap.Load()
}

// Closed reports whether Close was called.
func (in *Interpreter) Closed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

// WaitExecs waits until at least n runs happened or the timeout passed.
func (in *Interpreter) WaitExecs(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if in.Execs() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return in.Execs() >= n
}
