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
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/macros"
)

// Host is the widget runtime a binding belongs to.
type Host interface {
	// Subject is the widget scripts run against.
	Subject() types.Widget
	// Macros resolves point names and script paths.
	Macros() macros.Provider
	// PointFactory acquires and releases points.
	PointFactory() types.PointFactory
	// AddPoint tracks a point used by the runtime.
	AddPoint(p types.Point)
	// RemovePoint stops tracking a point.
	RemovePoint(p types.Point)
	// BaseDir resolves relative script paths. Empty uses the config BaseDir.
	BaseDir() string
}

// BindingError is returned when a binding cannot acquire one of its points.
type BindingError struct {
	Script string
	Point  string
	Err    error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("%s: cannot acquire point '%s': %v", e.Script, e.Point, e.Err)
}

func (e *BindingError) Unwrap() error {
	return e.Err
}

// TriggerBinding connects one compiled script to its points and submits the
// script when the right combination of points changes.
//
//   - While requireAllConnected is set, nothing runs until every point is connected.
//   - Trigger points submit on every change. A disconnect of a trigger point
//     submits as well unless the binding waits for connections.
//   - A non-trigger point is dropped after its first change and can only cause
//     the very first run.
//   - Rules wait for connections only before their first run.
//
// TriggerBinding 将编译后的脚本与其点绑定，并在触发点变化时提交执行。
type TriggerBinding struct {
	host   Host
	config types.Config
	script *CompiledScript
	isRule bool

	// refs and points are aligned, points[i] goes with refs[i]
	refs   []types.PointRef
	points []types.Point
	// subscribed[i] is true while the binding listens to points[i]
	subscribed []atomic.Bool

	requireAllConnected atomic.Bool
	executedOnce        atomic.Bool
	disposed            atomic.Bool
}

// NewTriggerBinding acquires the points, subscribes to all of them and, if it
// does not wait for connections, submits the script right away.
func NewTriggerBinding(host Host, script *CompiledScript, refs []types.PointRef, requireAllConnected, isRule bool) (*TriggerBinding, error) {
	b := &TriggerBinding{
		host:       host,
		config:     script.family.config,
		script:     script,
		isRule:     isRule,
		refs:       refs,
		points:     make([]types.Point, len(refs)),
		subscribed: make([]atomic.Bool, len(refs)),
	}
	b.requireAllConnected.Store(requireAllConnected)

	factory := host.PointFactory()
	for i, ref := range refs {
		name := macros.Replace(host.Macros(), ref.Name)
		if macros.ContainsMacros(name) {
			b.config.Printf("%s and %s: pv%d '%s' is not fully resolved: %s",
				subjectName(host.Subject()), script, i, ref.Name, name)
		}
		p, err := factory.Acquire(name)
		if err != nil {
			b.releaseAcquired(i)
			return nil, &BindingError{Script: script.String(), Point: name, Err: err}
		}
		b.points[i] = p
		b.subscribed[i].Store(true)
		host.AddPoint(p)
	}
	// listen to all points, non-trigger points are dropped later
	for _, p := range b.points {
		p.AddListener(b)
	}

	// not awaiting connections: run now while the points are still disconnected
	if !requireAllConnected {
		b.submit()
	}
	return b, nil
}

// NewScriptBinding compiles a widget script and binds it.
func NewScriptBinding(support *ScriptSupport, host Host, spec types.ScriptSpec) (*TriggerBinding, error) {
	script, err := support.CompileScript(host, spec)
	if err != nil {
		return nil, err
	}
	return NewTriggerBinding(host, script, spec.Points, spec.CheckConnections, false)
}

func (b *TriggerBinding) releaseAcquired(n int) {
	factory := b.host.PointFactory()
	for i := 0; i < n; i++ {
		b.subscribed[i].Store(false)
		b.host.RemovePoint(b.points[i])
		factory.Release(b.points[i])
		b.points[i] = nil
	}
}

// Script returns the bound script.
func (b *TriggerBinding) Script() *CompiledScript {
	return b.script
}

// Points returns the bound points in declaration order.
func (b *TriggerBinding) Points() []types.Point {
	return b.points
}

// IsRule reports whether the binding was created for a rule.
func (b *TriggerBinding) IsRule() bool {
	return b.isRule
}

// IsSubscribed reports whether the binding still listens to point i.
func (b *TriggerBinding) IsSubscribed(i int) bool {
	return b.subscribed[i].Load()
}

// RequiresAllConnected reports whether execution still waits for all points to connect.
func (b *TriggerBinding) RequiresAllConnected() bool {
	return b.requireAllConnected.Load()
}

// ExecutedOnce reports whether a non-trigger point already caused the first run.
func (b *TriggerBinding) ExecutedOnce() bool {
	return b.executedOnce.Load()
}

// IsDisposed reports whether Dispose was called.
func (b *TriggerBinding) IsDisposed() bool {
	return b.disposed.Load()
}

// OnValueChanged implements types.PointListener.
func (b *TriggerBinding) OnValueChanged(point types.Point, value *types.Value) {
	if b.disposed.Load() {
		return
	}
	if b.config.Debug {
		b.config.Debugf("%s", b.dump(point, value))
	}

	// skip unless all points are connected
	if b.requireAllConnected.Load() {
		for _, p := range b.points {
			if types.IsDisconnected(p.Read()) {
				return
			}
		}
	}

	i := b.pointIndex(point)
	if i < 0 {
		return
	}
	// A non-trigger point only helps the first run: all trigger points may be
	// connected while a slow non-trigger point is still missing, so the last
	// one to connect starts the first run. Later changes are ignored.
	if !b.refs[i].Trigger {
		if b.subscribed[i].CompareAndSwap(true, false) {
			b.points[i].RemoveListener(b)
		}
		if b.executedOnce.Swap(true) {
			return
		}
	}

	// rules only wait for connections before the first run
	if b.isRule {
		b.requireAllConnected.CompareAndSwap(true, false)
	}

	b.submit()
}

// OnDisconnected implements types.PointListener.
func (b *TriggerBinding) OnDisconnected(point types.Point) {
	if b.disposed.Load() || b.requireAllConnected.Load() {
		return
	}
	i := b.pointIndex(point)
	if i < 0 {
		return
	}
	// the script handles disconnected points itself
	if b.refs[i].Trigger {
		b.submit()
	}
}

func (b *TriggerBinding) submit() *Future {
	return b.script.Submit(types.ExecutionContext{
		Subject: b.host.Subject(),
		Points:  b.points,
	})
}

// pointIndex returns the index of point in points, -1 if unknown.
func (b *TriggerBinding) pointIndex(point types.Point) int {
	// linear search, scripts have few points
	for i, p := range b.points {
		if p == point {
			return i
		}
	}
	b.config.Printf("%s triggered by unknown point %s", b.script, point.Name())
	return -1
}

func (b *TriggerBinding) dump(point types.Point, value *types.Value) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s\nTriggered by %s = %s\n", b.script, point.Name(), value)
	for i, p := range b.points {
		fmt.Fprintf(&buf, "pvs[%d]: %s = %s", i, p.Name(), p.Read())
		if b.refs[i].Trigger {
			buf.WriteString(" - trigger!")
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// Dispose unsubscribes from the points and releases them.
// Calling it more than once has no effect.
func (b *TriggerBinding) Dispose() {
	if !b.disposed.CompareAndSwap(false, true) {
		return
	}
	factory := b.host.PointFactory()
	for i, p := range b.points {
		if b.subscribed[i].CompareAndSwap(true, false) {
			p.RemoveListener(b)
		}
		b.host.RemovePoint(p)
		factory.Release(p)
	}
}
