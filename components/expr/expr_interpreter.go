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

// Package expr provides the expression interpreter family based on expr-lang.
//
// A script of this family is one expression, optionally preceded by let
// bindings. It talks to its subject and points through functions:
//
//	pv(i)              point i as a float, NaN while disconnected
//	pvInt(i)           point i as an integer
//	pvStr(i)           point i as a string
//	pvSev(i)           severity of point i, -1 while disconnected
//	getProperty(id)    a widget property, nil if unknown
//	setProperty(id, v) update a widget property, returns v
//	writePV(i, v)      write v to point i, returns v
//
// The global properties are available as global.xx.
package expr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/cast"
)

// GlobalKey global properties key, call them through the global.xx method
const GlobalKey = "global"

var (
	// ErrNotBound is returned when a function is called outside of a run.
	ErrNotBound = errors.New("no execution context bound")
	// ErrPointIndex is returned for a point index outside the bound points.
	ErrPointIndex = errors.New("point index out of range")
)

// Interpreter expr-lang interpreter family. It is driven by a single worker
// and keeps the bound context in plain fields.
type Interpreter struct {
	config  types.Config
	env     map[string]interface{}
	options []expr.Option

	// set between Bind and Unbind
	bound *types.ExecutionContext
	// set during Exec
	ctx context.Context
}

// NewInterpreter creates the family and collects the udf visible to expressions
func NewInterpreter(config types.Config) (*Interpreter, error) {
	in := &Interpreter{
		config: config,
		env:    make(map[string]interface{}),
	}
	if len(config.Properties) != 0 {
		in.env[GlobalKey] = config.Properties
	}
	for k, v := range config.Udf {
		switch fn := v.(type) {
		case string:
			// JavaScript source
			continue
		case types.Script:
			if fn.Type != types.Expr && fn.Type != types.AllScript {
				continue
			}
			if _, ok := fn.Content.(string); ok || fn.Content == nil {
				continue
			}
			name := k
			if i := strings.Index(k, types.ScriptFuncSeparator); i >= 0 {
				name = k[i+len(types.ScriptFuncSeparator):]
			}
			in.env[name] = fn.Content
		default:
			in.env[k] = v
		}
	}
	in.options = []expr.Option{
		expr.Env(in.env),
		expr.AllowUndefinedVariables(),
		expr.Function("pv", in.pv),
		expr.Function("pvInt", in.pvInt),
		expr.Function("pvStr", in.pvStr),
		expr.Function("pvSev", in.pvSev),
		expr.Function("getProperty", in.getProperty),
		expr.Function("setProperty", in.setProperty),
		expr.Function("writePV", in.writePV),
	}
	return in, nil
}

// Type returns types.Expr
func (in *Interpreter) Type() string {
	return types.Expr
}

// Compile compiles the expression into a *vm.Program
func (in *Interpreter) Compile(name string, src io.Reader) (types.CompiledUnit, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(string(b), in.options...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return program, nil
}

// Bind installs the execution context for the next run
func (in *Interpreter) Bind(ectx types.ExecutionContext) {
	in.bound = &ectx
}

// Exec runs the program. Expressions cannot be interrupted while the vm runs,
// the helper functions fail once ctx is done.
func (in *Interpreter) Exec(ctx context.Context, unit types.CompiledUnit) error {
	program, ok := unit.(*vm.Program)
	if !ok {
		return fmt.Errorf("expr: unexpected compiled unit %T", unit)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	in.ctx = ctx
	defer func() { in.ctx = nil }()
	_, err := vm.Run(program, in.env)
	return err
}

// Unbind drops the execution context
func (in *Interpreter) Unbind() {
	in.bound = nil
}

// Close has nothing to release
func (in *Interpreter) Close() error {
	return nil
}

func (in *Interpreter) check() error {
	if in.bound == nil {
		return ErrNotBound
	}
	if in.ctx != nil {
		return in.ctx.Err()
	}
	return nil
}

func (in *Interpreter) point(params []interface{}) (types.Point, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, errors.New("missing point index")
	}
	i, err := cast.ToInt64E(params[0])
	if err != nil {
		return nil, err
	}
	if i < 0 || int(i) >= len(in.bound.Points) {
		return nil, fmt.Errorf("%w: %d", ErrPointIndex, i)
	}
	return in.bound.Points[i], nil
}

func (in *Interpreter) value(params []interface{}) (interface{}, error) {
	p, err := in.point(params)
	if err != nil {
		return nil, err
	}
	v := p.Read()
	if types.IsDisconnected(v) {
		return nil, fmt.Errorf("%s is disconnected", p.Name())
	}
	return v.Value, nil
}

func (in *Interpreter) pv(params ...interface{}) (interface{}, error) {
	p, err := in.point(params)
	if err != nil {
		return nil, err
	}
	v := p.Read()
	if types.IsDisconnected(v) {
		return math.NaN(), nil
	}
	return cast.ToFloat64E(v.Value)
}

func (in *Interpreter) pvInt(params ...interface{}) (interface{}, error) {
	v, err := in.value(params)
	if err != nil {
		return nil, err
	}
	return cast.ToInt64E(v)
}

func (in *Interpreter) pvStr(params ...interface{}) (interface{}, error) {
	v, err := in.value(params)
	if err != nil {
		return nil, err
	}
	return cast.ToStringE(v)
}

func (in *Interpreter) pvSev(params ...interface{}) (interface{}, error) {
	p, err := in.point(params)
	if err != nil {
		return nil, err
	}
	return int(types.SeverityOf(p.Read())), nil
}

func (in *Interpreter) getProperty(params ...interface{}) (interface{}, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	if len(params) != 1 || in.bound.Subject == nil {
		return nil, errors.New("getProperty(id)")
	}
	v, _ := in.bound.Subject.GetPropertyValue(cast.ToString(params[0]))
	return v, nil
}

func (in *Interpreter) setProperty(params ...interface{}) (interface{}, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	if len(params) != 2 || in.bound.Subject == nil {
		return nil, errors.New("setProperty(id, value)")
	}
	if err := in.bound.Subject.SetPropertyValue(cast.ToString(params[0]), params[1]); err != nil {
		return nil, err
	}
	return params[1], nil
}

func (in *Interpreter) writePV(params ...interface{}) (interface{}, error) {
	if len(params) != 2 {
		return nil, errors.New("writePV(index, value)")
	}
	p, err := in.point(params)
	if err != nil {
		return nil, err
	}
	if err := p.Write(params[1]); err != nil {
		return nil, err
	}
	return params[1], nil
}
