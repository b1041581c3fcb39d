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
	"sync"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/engine"
	"github.com/rulego/pvscript/pv"
	"github.com/rulego/pvscript/utils/macros"
)

// DisplayDefinition describes a display and its widgets.
type DisplayDefinition struct {
	Name    string            `json:"name"`
	Macros  map[string]string `json:"macros"`
	Widgets []Definition      `json:"widgets"`
}

// Display runs all widget runtimes of a display. The runtimes share one
// script support, so scripts of one family never run concurrently, and one
// point pool, so widgets using the same point name share the point.
type Display struct {
	def     DisplayDefinition
	config  types.Config
	support *engine.ScriptSupport
	points  *pv.Pool

	mu       sync.Mutex
	runtimes []*Runtime
	widgets  map[string]*Widget
	running  bool
	closed   bool
}

// NewDisplay creates the widgets of def. dir resolves relative script paths.
func NewDisplay(def DisplayDefinition, config types.Config, dir string) (*Display, error) {
	d := &Display{
		def:     def,
		config:  config,
		support: engine.NewScriptSupport(config),
		points:  pv.NewPool(config),
		widgets: make(map[string]*Widget),
	}
	parent := macros.Map(def.Macros)
	for i, wd := range def.Widgets {
		if wd.Name == "" {
			wd.Name = fmt.Sprintf("%s_%d", wd.Type, i)
		}
		if _, ok := d.widgets[wd.Name]; ok {
			_ = d.Close()
			return nil, fmt.Errorf("display %s: duplicate widget name %s", def.Name, wd.Name)
		}
		w := New(wd.Name, wd.Type, wd.Properties)
		d.widgets[wd.Name] = w
		d.runtimes = append(d.runtimes, NewRuntime(w, wd, d.support, d.points, parent, dir))
	}
	return d, nil
}

// Name of the display.
func (d *Display) Name() string {
	return d.def.Name
}

// Widget returns a widget by name.
func (d *Display) Widget(name string) (*Widget, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.widgets[name]
	return w, ok
}

// Runtimes returns the widget runtimes in definition order.
func (d *Display) Runtimes() []*Runtime {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Runtime(nil), d.runtimes...)
}

// Points returns the point pool of the display.
func (d *Display) Points() *pv.Pool {
	return d.points
}

// Support returns the script support of the display.
func (d *Display) Support() *engine.ScriptSupport {
	return d.support
}

// Start starts every runtime. Failures of single scripts are returned joined,
// the remaining bindings keep running.
func (d *Display) Start() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return types.ErrEngineStopped
	}
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	runtimes := append([]*Runtime(nil), d.runtimes...)
	d.mu.Unlock()

	var errs []error
	for _, r := range runtimes {
		if err := r.Start(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Check compiles all scripts and rules without starting anything.
func (d *Display) Check() error {
	var errs []error
	for _, r := range d.Runtimes() {
		if err := r.Check(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops every runtime. The display can be started again.
func (d *Display) Stop() {
	d.mu.Lock()
	d.running = false
	runtimes := append([]*Runtime(nil), d.runtimes...)
	d.mu.Unlock()

	for i := len(runtimes) - 1; i >= 0; i-- {
		runtimes[i].Stop()
	}
}

// Close stops the display, shuts down the script engines and disposes all points.
func (d *Display) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.Stop()
	return errors.Join(d.support.Close(), d.points.Close())
}
