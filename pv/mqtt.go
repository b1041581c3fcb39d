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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rulego/pvscript/utils/cast"
	"github.com/rulego/pvscript/utils/mqtt"
)

// ErrNoBroker is returned when acquiring an mqtt:// point without a configured broker.
var ErrNoBroker = errors.New("no mqtt broker configured")

const defaultConnectTimeout = 10 * time.Second

// mqttDriver mirrors a topic. The point connects with the first message;
// writes are published and come back through the subscription.
type mqttDriver struct {
	topic  string
	qos    byte
	client mqttClient
}

// newMqttDriver is called with p.mu held.
func (p *Pool) newMqttDriver(full string) (*mqttDriver, error) {
	topic := strings.TrimSpace(strings.TrimPrefix(full, MqttPrefix))
	if topic == "" {
		return nil, fmt.Errorf("empty mqtt topic")
	}
	client, err := p.mqttClient()
	if err != nil {
		return nil, err
	}
	return &mqttDriver{topic: topic, qos: p.config.Mqtt.QOS, client: client}, nil
}

func (d *mqttDriver) start(p *point) error {
	return d.client.RegisterHandler(mqtt.Handler{
		Topic: d.topic,
		Qos:   d.qos,
		Handle: func(topic string, payload []byte) {
			p.update(cast.ParseLiteral(string(payload)))
		},
	})
}

func (d *mqttDriver) write(p *point, v interface{}) error {
	payload, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Errorf("write %s: %w", p.name, err)
	}
	return d.client.Publish(d.topic, d.qos, []byte(payload))
}

func (d *mqttDriver) stop(p *point) {
	if err := d.client.UnregisterHandler(d.topic); err != nil {
		p.pool.config.Printf("unsubscribe %s: %v", d.topic, err)
	}
}
