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
// Package js provides the JavaScript interpreter family.
//
// All scripts of the family share one goja runtime. The engine guarantees that
// only one script runs at a time, so the runtime is never entered concurrently.
//
// Scripts see these globals while they run:
//   - widget: the subject, with getName, getType, getPropertyValue, setPropertyValue
//   - pvs: the bound points, each with getName, read, write, isConnected
//   - PVUtil: getDouble, getLong, getString, getSeverity, getTimestamp
//   - logger: info, warn
//   - global: the configured properties
package js

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"
	"github.com/rulego/pvscript/api/types"
)

const (
	// GlobalKey global properties key, call them through the global.xx method
	GlobalKey = "global"
	// WidgetKey the subject widget
	WidgetKey = "widget"
	// PointsKey the bound points
	PointsKey = "pvs"
	// PVUtilKey point helper functions
	PVUtilKey = "PVUtil"
	// LoggerKey script logger
	LoggerKey = "logger"
)

// ErrInterrupted is returned when a run was interrupted by cancellation or timeout.
var ErrInterrupted = errors.New("script interrupted")

// wrapper gives every run its own function scope, so top level let/const
// declarations do not collide between runs of the shared runtime.
const (
	wrapperHead = "(function() {"
	wrapperTail = "\n})();"
)

// Interpreter goja based interpreter family
type Interpreter struct {
	config types.Config
	vm     *goja.Runtime
}

// NewInterpreter creates the runtime and installs the configured udf
func NewInterpreter(config types.Config) (*Interpreter, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	in := &Interpreter{config: config, vm: vm}

	if len(config.Properties) != 0 {
		if err := vm.Set(GlobalKey, config.Properties); err != nil {
			config.Printf("set global properties error: %s", err.Error())
		}
	}
	if err := vm.Set(PVUtilKey, newPVUtil()); err != nil {
		return nil, err
	}
	if err := vm.Set(LoggerKey, newScriptLogger(config)); err != nil {
		return nil, err
	}
	if err := in.installUdf(); err != nil {
		return nil, err
	}
	return in, nil
}

// installUdf Process UDF functions
func (in *Interpreter) installUdf() error {
	for k, v := range in.config.Udf {
		var err error
		switch fn := v.(type) {
		case string:
			err = in.runSource(k, fn)
		case types.Script:
			if fn.Type != types.Js && fn.Type != types.AllScript {
				continue
			}
			funcName := k
			if i := strings.Index(k, types.ScriptFuncSeparator); i >= 0 {
				funcName = k[i+len(types.ScriptFuncSeparator):]
			}
			if c, ok := fn.Content.(string); ok {
				err = in.runSource(funcName, c)
			} else if fn.Content != nil {
				err = in.vm.Set(funcName, fn.Content)
			}
		default:
			err = in.vm.Set(k, v)
		}
		if err != nil {
			return fmt.Errorf("parse js udf=%s error: %w", k, err)
		}
	}
	return nil
}

func (in *Interpreter) runSource(name, src string) error {
	p, err := goja.Compile(name, src, false)
	if err != nil {
		return err
	}
	_, err = in.vm.RunProgram(p)
	return err
}

// Type returns types.Js
func (in *Interpreter) Type() string {
	return types.Js
}

// Compile reads the script text and compiles it into a *goja.Program
func (in *Interpreter) Compile(name string, src io.Reader) (types.CompiledUnit, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return goja.Compile(name, wrapperHead+string(b)+wrapperTail, false)
}

// Bind exposes the subject and its points to the next run
func (in *Interpreter) Bind(ectx types.ExecutionContext) {
	if err := in.vm.Set(WidgetKey, newScriptWidget(ectx.Subject)); err != nil {
		in.config.Printf("js bind widget error: %s", err.Error())
	}
	points := make([]interface{}, len(ectx.Points))
	for i, p := range ectx.Points {
		points[i] = &ScriptPoint{point: p}
	}
	if err := in.vm.Set(PointsKey, points); err != nil {
		in.config.Printf("js bind pvs error: %s", err.Error())
	}
}

// Exec runs the program. A watcher goroutine interrupts the runtime when ctx is done.
func (in *Interpreter) Exec(ctx context.Context, unit types.CompiledUnit) error {
	program, ok := unit.(*goja.Program)
	if !ok {
		return fmt.Errorf("js: unexpected compiled unit %T", unit)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrInterrupted, err)
	}
	done := make(chan struct{})
	watcherExited := make(chan struct{})
	go func() {
		defer close(watcherExited)
		select {
		case <-ctx.Done():
			in.vm.Interrupt(ctx.Err().Error())
		case <-done:
		}
	}()

	_, err := in.vm.RunProgram(program)
	close(done)
	<-watcherExited
	in.vm.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
	}
	return err
}

// Unbind clears the per run globals
func (in *Interpreter) Unbind() {
	_ = in.vm.Set(WidgetKey, goja.Null())
	_ = in.vm.Set(PointsKey, goja.Null())
}

// Close releases the runtime
func (in *Interpreter) Close() error {
	in.vm.Interrupt("closed")
	return nil
}
