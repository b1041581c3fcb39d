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

package pv

import (
	"sync"
	"time"

	"github.com/rulego/pvscript/api/types"
)

// driver connects a point to its data source.
type driver interface {
	// start connects the point. It may publish the first value.
	start(p *point) error
	// write handles Point.Write.
	write(p *point, v interface{}) error
	// stop disconnects the point after its last release.
	stop(p *point)
}

// point is the types.Point handed out by Pool.
type point struct {
	name   string
	driver driver
	pool   *Pool
	// refs is guarded by pool.mu
	refs int

	mu        sync.Mutex
	value     *types.Value
	listeners []types.PointListener
	disposed  bool
}

func newPoint(pool *Pool, name string, d driver) *point {
	return &point{name: name, driver: d, pool: pool}
}

func (p *point) Name() string {
	return p.name
}

// AddListener subscribes l. The current value of a connected point is
// delivered on the config pool.
func (p *point) AddListener(l types.PointListener) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.listeners = append(p.listeners, l)
	connected := p.value != nil
	p.mu.Unlock()
	if !connected {
		return
	}
	p.pool.deliver(func() {
		// the value may have changed since AddListener, send the latest
		if v := p.Read(); v != nil && p.hasListener(l) {
			l.OnValueChanged(p, v)
		}
	})
}

func (p *point) RemoveListener(l types.PointListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, item := range p.listeners {
		if item == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

func (p *point) hasListener(l types.PointListener) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.listeners {
		if item == l {
			return true
		}
	}
	return false
}

func (p *point) Read() *types.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *point) Write(v interface{}) error {
	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()
	if disposed {
		return types.ErrPointDisposed
	}
	return p.driver.write(p, v)
}

// update stores v and notifies every listener on the calling goroutine.
func (p *point) update(v interface{}) {
	p.updateValue(&types.Value{Value: v, Severity: types.SeverityNone, Timestamp: time.Now()})
}

func (p *point) updateValue(v *types.Value) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.value = v
	listeners := append([]types.PointListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnValueChanged(p, v)
	}
}

// disconnect clears the value and notifies the listeners.
func (p *point) disconnect() {
	p.mu.Lock()
	if p.disposed || p.value == nil {
		p.mu.Unlock()
		return
	}
	p.value = nil
	listeners := append([]types.PointListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnDisconnected(p)
	}
}

func (p *point) dispose() {
	p.mu.Lock()
	p.disposed = true
	p.value = nil
	p.listeners = nil
	p.mu.Unlock()
	p.driver.stop(p)
}
