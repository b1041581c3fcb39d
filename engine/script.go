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
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/runtime"
)

// CompiledScript is a compiled script bound to the family that runs it.
// It is immutable; compile again if the source changes.
type CompiledScript struct {
	id     string
	name   string
	unit   types.CompiledUnit
	family *family
}

func newCompiledScript(f *family, name string, unit types.CompiledUnit) *CompiledScript {
	uid, _ := uuid.NewV4()
	return &CompiledScript{
		id:     uid.String(),
		name:   name,
		unit:   unit,
		family: f,
	}
}

// Id returns a unique id of this compilation.
func (s *CompiledScript) Id() string {
	return s.id
}

// Name returns the script name used for messages.
func (s *CompiledScript) Name() string {
	return s.name
}

// Type returns the script type of the family that runs the script.
func (s *CompiledScript) Type() string {
	return s.family.interpreter.Type()
}

// Unit returns the compiled unit.
func (s *CompiledScript) Unit() types.CompiledUnit {
	return s.unit
}

func (s *CompiledScript) String() string {
	return fmt.Sprintf("%s script %s", s.Type(), s.name)
}

// Submit requests execution with ectx.
//
// It returns nil if the script is already queued and not started yet; that
// queued run will see the current point values, so nothing is lost.
func (s *CompiledScript) Submit(ectx types.ExecutionContext) *Future {
	f := s.family
	if !f.pending.MarkScheduled(s) {
		f.config.Debugf("%s is already queued", s)
		return nil
	}
	return f.engine.submit(func(ctx context.Context) {
		// may be queued again from now on
		f.pending.ClearScheduled(s)
		s.execute(ctx, ectx)
	}, func() {
		f.pending.ClearScheduled(s)
	})
}

// execute runs on the family worker. Failures are logged, never returned.
func (s *CompiledScript) execute(ctx context.Context, ectx types.ExecutionContext) {
	f := s.family
	if ctx.Err() != nil {
		return
	}
	if f.config.ScriptMaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.ScriptMaxExecutionTime)
		defer cancel()
	}

	interp := f.interpreter
	defer func() {
		// interpreter must not keep widget and points after the run
		interp.Unbind()
		if caught := recover(); caught != nil {
			f.config.Printf("%s\n%s", s.failureMessage(ectx, fmt.Errorf("panic: %v", caught)), runtime.Stack())
		}
	}()
	interp.Bind(ectx)

	start := time.Now()
	if err := interp.Exec(ctx, s.unit); err != nil {
		f.config.Printf("%s", s.failureMessage(ectx, err))
		return
	}
	f.config.Debugf("executed %s for %s in %s", s, subjectName(ectx.Subject), time.Since(start))
}

func (s *CompiledScript) failureMessage(ectx types.ExecutionContext, err error) string {
	var buf strings.Builder
	buf.WriteString("Script execution failed\n")
	buf.WriteString(subjectName(ectx.Subject))
	buf.WriteString(", ")
	buf.WriteString(s.String())
	for i, p := range ectx.Points {
		fmt.Fprintf(&buf, "\npvs[%d]: %s = %s", i, p.Name(), p.Read())
	}
	buf.WriteString("\n")
	buf.WriteString(err.Error())
	return buf.String()
}

func subjectName(w types.Widget) string {
	if w == nil {
		return "<no widget>"
	}
	return w.Type() + " '" + w.Name() + "'"
}
