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

// Package pv provides the live data points scripts and rules are bound to.
//
// Points are named by a type prefix:
//
//	loc://name(initial)      writable local value, shared by name
//	sim://sine(seconds)      simulated values: sine, ramp, noise, flipflop
//	mqtt://topic             value of an MQTT topic, writes publish
//
// A name without prefix is a local point. Pool reference-counts points by
// their canonical name, see CanonicalName.
package pv

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/mqtt"
)

// Point type prefixes.
const (
	LocalPrefix = "loc://"
	SimPrefix   = "sim://"
	MqttPrefix  = "mqtt://"
)

// mqttClient is the part of mqtt.Client used by mqtt:// points.
type mqttClient interface {
	RegisterHandler(handler mqtt.Handler) error
	UnregisterHandler(topic string) error
	Publish(topic string, qos byte, data []byte) error
	Close() error
}

type mqttDialer func(ctx context.Context, conf mqtt.Config) (mqttClient, error)

func dialMqtt(ctx context.Context, conf mqtt.Config) (mqttClient, error) {
	client, err := mqtt.NewClient(ctx, conf)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Pool creates, shares and disposes points. It implements types.PointFactory.
type Pool struct {
	config types.Config

	mu     sync.Mutex
	points map[string]*point
	closed bool

	cron        *cron.Cron
	cronStarted bool

	dial mqttDialer
	mqtt mqttClient
}

var _ types.PointFactory = (*Pool)(nil)

// NewPool creates an empty pool.
func NewPool(config types.Config) *Pool {
	return &Pool{
		config: config,
		points: make(map[string]*point),
		cron:   cron.New(),
		dial:   dialMqtt,
	}
}

// CanonicalName adds the default loc:// prefix and strips a local initializer.
func CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	if !strings.Contains(name, "://") {
		name = LocalPrefix + name
	}
	if strings.HasPrefix(name, LocalPrefix) {
		base, _, _ := splitInitializer(name)
		return base
	}
	return name
}

// splitInitializer splits "name(args)" into name and args.
func splitInitializer(name string) (string, string, bool) {
	open := strings.Index(name, "(")
	if open < 0 || !strings.HasSuffix(name, ")") {
		return name, "", false
	}
	return strings.TrimSpace(name[:open]), name[open+1 : len(name)-1], true
}

// Acquire returns the point for name, creating and connecting it on first use.
func (p *Pool) Acquire(name string) (types.Point, error) {
	full := strings.TrimSpace(name)
	if !strings.Contains(full, "://") {
		full = LocalPrefix + full
	}
	key := CanonicalName(full)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("acquire %s: %w", key, types.ErrPointDisposed)
	}
	if pt, ok := p.points[key]; ok {
		pt.refs++
		return pt, nil
	}

	d, err := p.newDriver(full)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	pt := newPoint(p, key, d)
	if err := d.start(pt); err != nil {
		return nil, fmt.Errorf("connect %s: %w", key, err)
	}
	pt.refs = 1
	p.points[key] = pt
	p.config.Debugf("point %s created", key)
	return pt, nil
}

func (p *Pool) newDriver(full string) (driver, error) {
	switch {
	case strings.HasPrefix(full, LocalPrefix):
		return newLocalDriver(full)
	case strings.HasPrefix(full, SimPrefix):
		return p.newSimDriver(full)
	case strings.HasPrefix(full, MqttPrefix):
		return p.newMqttDriver(full)
	default:
		return nil, types.ErrUnknownPointType
	}
}

// Release drops one reference. The last release disconnects and disposes the point.
func (p *Pool) Release(pt types.Point) {
	if pt == nil {
		return
	}
	p.mu.Lock()
	item, ok := p.points[pt.Name()]
	if !ok || item != pt {
		p.mu.Unlock()
		p.config.Printf("release of unknown point %s", pt.Name())
		return
	}
	item.refs--
	if item.refs > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.points, item.name)
	p.mu.Unlock()

	item.dispose()
	p.config.Debugf("point %s disposed", item.name)
}

// RefCount returns the number of references held on a point, 0 if it does not exist.
func (p *Pool) RefCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pt, ok := p.points[CanonicalName(name)]; ok {
		return pt.refs
	}
	return 0
}

// Names returns the canonical names of all live points, sorted.
func (p *Pool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.points))
	for name := range p.points {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close disposes every point, stops the simulation ticker and disconnects from MQTT.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	points := make([]*point, 0, len(p.points))
	for _, pt := range p.points {
		points = append(points, pt)
	}
	p.points = make(map[string]*point)
	cronStarted := p.cronStarted
	client := p.mqtt
	p.mqtt = nil
	p.mu.Unlock()

	for _, pt := range points {
		pt.disconnect()
		pt.dispose()
	}
	if cronStarted {
		<-p.cron.Stop().Done()
	}
	if client != nil {
		return client.Close()
	}
	return nil
}

// deliver runs task on the config pool, or on a new goroutine without one.
func (p *Pool) deliver(task func()) {
	if p.config.Pool != nil {
		if err := p.config.Pool.Submit(task); err == nil {
			return
		}
	}
	go task()
}

// startCron is called with p.mu held.
func (p *Pool) startCron() {
	if !p.cronStarted {
		p.cron.Start()
		p.cronStarted = true
	}
}

// mqttClient connects on first use. Called with p.mu held.
func (p *Pool) mqttClient() (mqttClient, error) {
	if p.mqtt != nil {
		return p.mqtt, nil
	}
	conf := p.config.Mqtt
	if conf.Server == "" {
		return nil, ErrNoBroker
	}
	timeout := conf.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := p.dial(ctx, mqtt.Config{
		Server:               conf.Server,
		Username:             conf.Username,
		Password:             conf.Password,
		ClientID:             conf.ClientID,
		QOS:                  conf.QOS,
		MaxReconnectInterval: conf.MaxReconnectInterval,
		ConnectTimeout:       timeout,
		OnConnected:          p.onMqttConnected,
		OnConnectionLost:     p.onMqttConnectionLost,
	})
	if err != nil {
		return nil, err
	}
	p.mqtt = client
	return client, nil
}

func (p *Pool) onMqttConnected() {
	p.config.Debugf("mqtt connected to %s", p.config.Mqtt.Server)
}

// onMqttConnectionLost disconnects every mqtt:// point until messages arrive again.
func (p *Pool) onMqttConnectionLost(err error) {
	p.config.Printf("mqtt connection to %s lost: %v", p.config.Mqtt.Server, err)
	p.mu.Lock()
	var lost []*point
	for name, pt := range p.points {
		if strings.HasPrefix(name, MqttPrefix) {
			lost = append(lost, pt)
		}
	}
	p.mu.Unlock()
	for _, pt := range lost {
		pt.disconnect()
	}
}
