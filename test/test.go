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
// Package test provides fakes shared by the package tests: a widget, points,
// a point factory, a binding host and a counting interpreter.
package test

import (
	"fmt"
	"sync"
	"time"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/macros"
)

// Widget in-memory widget
type Widget struct {
	name string
	typ  string

	mu      sync.RWMutex
	props   map[string]interface{}
	updates []string
}

// NewWidget creates a widget with initial properties, props may be nil.
func NewWidget(name, typ string, props map[string]interface{}) *Widget {
	w := &Widget{name: name, typ: typ, props: make(map[string]interface{})}
	for k, v := range props {
		w.props[k] = v
	}
	return w
}

func (w *Widget) Name() string { return w.name }

func (w *Widget) Type() string { return w.typ }

func (w *Widget) GetPropertyValue(id string) (interface{}, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.props[id]
	return v, ok
}

func (w *Widget) SetPropertyValue(id string, value interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.props[id] = value
	w.updates = append(w.updates, fmt.Sprintf("%s=%v", id, value))
	return nil
}

// Updates returns every SetPropertyValue call as "id=value".
func (w *Widget) Updates() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.updates...)
}

// Point fake point, events are delivered synchronously
type Point struct {
	name string

	mu        sync.Mutex
	value     *types.Value
	listeners []types.PointListener
	writes    []interface{}
	ReadOnly  bool
}

// NewPoint creates a disconnected point.
func NewPoint(name string) *Point {
	return &Point{name: name}
}

func (p *Point) Name() string { return p.name }

func (p *Point) AddListener(l types.PointListener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	v := p.value
	p.mu.Unlock()
	if v != nil {
		l.OnValueChanged(p, v)
	}
}

func (p *Point) RemoveListener(l types.PointListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, item := range p.listeners {
		if item == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

// Listeners returns the number of subscribed listeners.
func (p *Point) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *Point) Read() *types.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *Point) Write(v interface{}) error {
	if p.ReadOnly {
		return types.ErrPointReadOnly
	}
	p.mu.Lock()
	p.writes = append(p.writes, v)
	p.mu.Unlock()
	p.Set(v)
	return nil
}

// Writes returns the values written through Write.
func (p *Point) Writes() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]interface{}(nil), p.writes...)
}

// Set connects the point with value v and notifies the listeners.
func (p *Point) Set(v interface{}) {
	p.SetValue(&types.Value{Value: v, Timestamp: time.Now()})
}

// SetValue notifies the listeners with a full value.
func (p *Point) SetValue(v *types.Value) {
	p.mu.Lock()
	p.value = v
	listeners := append([]types.PointListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnValueChanged(p, v)
	}
}

// Disconnect clears the value and notifies the listeners.
func (p *Point) Disconnect() {
	p.mu.Lock()
	p.value = nil
	listeners := append([]types.PointListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnDisconnected(p)
	}
}

// PointFactory hands out one Point per name and counts acquire/release calls.
type PointFactory struct {
	mu       sync.Mutex
	points   map[string]*Point
	acquired map[string]int
	released map[string]int
	// Fail names points that cannot be acquired
	Fail map[string]error
}

// NewPointFactory creates an empty factory.
func NewPointFactory() *PointFactory {
	return &PointFactory{
		points:   make(map[string]*Point),
		acquired: make(map[string]int),
		released: make(map[string]int),
	}
}

// Get returns the point for name, creating it if needed.
func (f *PointFactory) Get(name string) *Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.points[name]
	if !ok {
		p = NewPoint(name)
		f.points[name] = p
	}
	return p
}

func (f *PointFactory) Acquire(name string) (types.Point, error) {
	if err, ok := f.Fail[name]; ok {
		return nil, err
	}
	p := f.Get(name)
	f.mu.Lock()
	f.acquired[name]++
	f.mu.Unlock()
	return p, nil
}

func (f *PointFactory) Release(p types.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[p.Name()]++
}

// Acquired returns how often name was acquired.
func (f *PointFactory) Acquired(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired[name]
}

// Released returns how often name was released.
func (f *PointFactory) Released(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[name]
}

// TotalReleased returns the number of Release calls.
func (f *PointFactory) TotalReleased() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.released {
		n += c
	}
	return n
}

// Host fake binding host
type Host struct {
	Widget  *Widget
	Factory *PointFactory
	Vars    macros.Map
	Dir     string

	mu     sync.Mutex
	points map[types.Point]int
}

// NewHost creates a host for widget w.
func NewHost(w *Widget) *Host {
	return &Host{
		Widget:  w,
		Factory: NewPointFactory(),
		Vars:    macros.Map{},
		points:  make(map[types.Point]int),
	}
}

func (h *Host) Subject() types.Widget { return h.Widget }

func (h *Host) Macros() macros.Provider { return h.Vars }

func (h *Host) PointFactory() types.PointFactory { return h.Factory }

func (h *Host) AddPoint(p types.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points[p]++
}

func (h *Host) RemovePoint(p types.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.points[p]--; h.points[p] <= 0 {
		delete(h.points, p)
	}
}

func (h *Host) BaseDir() string { return h.Dir }

// TrackedPoints returns the number of distinct points the host tracks.
func (h *Host) TrackedPoints() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.points)
}
