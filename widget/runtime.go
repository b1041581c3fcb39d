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

package widget

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/engine"
	"github.com/rulego/pvscript/utils/macros"
)

// Definition describes one widget of a display.
type Definition struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	// Macros override the display macros for this widget.
	Macros  map[string]string  `json:"macros"`
	Scripts []types.ScriptSpec `json:"scripts"`
	Rules   []types.RuleSpec   `json:"rules"`
}

// Runtime runs the scripts and rules of one widget. It implements engine.Host.
type Runtime struct {
	widget  *Widget
	def     Definition
	support *engine.ScriptSupport
	factory types.PointFactory
	macros  macros.Provider
	dir     string

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex
	started   bool

	mu       sync.Mutex
	points   map[types.Point]int
	bindings []*engine.TriggerBinding
}

var _ engine.Host = (*Runtime)(nil)

// NewRuntime creates a stopped runtime. parent supplies display macros and may be nil.
func NewRuntime(w *Widget, def Definition, support *engine.ScriptSupport, factory types.PointFactory, parent macros.Provider, dir string) *Runtime {
	return &Runtime{
		widget:  w,
		def:     def,
		support: support,
		factory: factory,
		macros:  macros.Chain{macros.Map(def.Macros), parent, macros.Map(support.Config().Properties)},
		dir:     dir,
		points:  make(map[types.Point]int),
	}
}

func (r *Runtime) Subject() types.Widget {
	return r.widget
}

// Widget returns the widget of this runtime.
func (r *Runtime) Widget() *Widget {
	return r.widget
}

func (r *Runtime) Macros() macros.Provider {
	return r.macros
}

func (r *Runtime) PointFactory() types.PointFactory {
	return r.factory
}

func (r *Runtime) AddPoint(p types.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points[p]++
}

func (r *Runtime) RemovePoint(p types.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.points[p]--; r.points[p] <= 0 {
		delete(r.points, p)
	}
}

func (r *Runtime) BaseDir() string {
	return r.dir
}

// Points returns the points used by the running bindings, sorted by name.
func (r *Runtime) Points() []types.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]types.Point, 0, len(r.points))
	for p := range r.points {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Bindings returns the running script and rule bindings.
func (r *Runtime) Bindings() []*engine.TriggerBinding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*engine.TriggerBinding(nil), r.bindings...)
}

// Start binds every script and rule. A failing script or rule is logged and
// skipped, the others keep running; all failures are returned joined.
func (r *Runtime) Start() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.started {
		return nil
	}
	r.started = true

	config := r.support.Config()
	var errs []error
	for _, spec := range r.def.Scripts {
		b, err := engine.NewScriptBinding(r.support, r, spec)
		if err != nil {
			config.Printf("widget %s: script %s: %v", r.widget.Name(), spec.Path, err)
			errs = append(errs, err)
			continue
		}
		r.addBinding(b)
	}
	for _, rule := range r.def.Rules {
		b, err := engine.NewRuleBinding(r.support, r, rule)
		if err != nil {
			config.Printf("widget %s: rule %s: %v", r.widget.Name(), rule.Name, err)
			errs = append(errs, err)
			continue
		}
		r.addBinding(b)
	}
	return errors.Join(errs...)
}

func (r *Runtime) addBinding(b *engine.TriggerBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = append(r.bindings, b)
}

// Check compiles every script and rule without binding points.
func (r *Runtime) Check() error {
	var errs []error
	for _, spec := range r.def.Scripts {
		if _, err := r.support.CompileScript(r, spec); err != nil {
			errs = append(errs, fmt.Errorf("widget %s: %w", r.widget.Name(), err))
		}
	}
	for _, rule := range r.def.Rules {
		if _, err := r.support.CompileRule(r, rule); err != nil {
			errs = append(errs, fmt.Errorf("widget %s: %w", r.widget.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Stop disposes the bindings in reverse order. The runtime can be started again.
func (r *Runtime) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.started = false

	r.mu.Lock()
	bindings := r.bindings
	r.bindings = nil
	r.mu.Unlock()

	for i := len(bindings) - 1; i >= 0; i-- {
		bindings[i].Dispose()
	}
}
