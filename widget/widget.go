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

// Package widget runs the scripts and rules of display widgets.
//
// A Runtime owns one widget and the bindings of its scripts and rules.
// A Display starts the runtimes of all its widgets on a shared script
// support and point pool.
package widget

import (
	"reflect"
	"sort"
	"sync"

	"github.com/rulego/pvscript/api/types"
)

// ChangeListener is called after a property changed value.
type ChangeListener func(w *Widget, id string, old, value interface{})

// Widget is a named set of properties. It implements types.Widget.
type Widget struct {
	name string
	typ  string

	mu        sync.RWMutex
	props     map[string]interface{}
	listeners []ChangeListener
}

var _ types.Widget = (*Widget)(nil)

// New creates a widget with a copy of props.
func New(name, typ string, props map[string]interface{}) *Widget {
	w := &Widget{name: name, typ: typ, props: make(map[string]interface{}, len(props))}
	for k, v := range props {
		w.props[k] = v
	}
	return w
}

func (w *Widget) Name() string {
	return w.name
}

func (w *Widget) Type() string {
	return w.typ
}

func (w *Widget) GetPropertyValue(id string) (interface{}, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.props[id]
	return v, ok
}

// SetPropertyValue stores value and notifies the change listeners if it differs.
func (w *Widget) SetPropertyValue(id string, value interface{}) error {
	w.mu.Lock()
	old, existed := w.props[id]
	if existed && reflect.DeepEqual(old, value) {
		w.mu.Unlock()
		return nil
	}
	w.props[id] = value
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()

	for _, l := range listeners {
		l(w, id, old, value)
	}
	return nil
}

// OnChange adds a property change listener.
func (w *Widget) OnChange(l ChangeListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// PropertyIDs returns the sorted property ids.
func (w *Widget) PropertyIDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.props))
	for id := range w.props {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Properties returns a copy of all properties.
func (w *Widget) Properties() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	props := make(map[string]interface{}, len(w.props))
	for k, v := range w.props {
		props[k] = v
	}
	return props
}
