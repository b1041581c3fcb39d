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
package js

import (
	"errors"
	"fmt"
	"math"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/cast"
)

// errDisconnected is thrown into the script when it reads a disconnected point.
var errDisconnected = errors.New("point is disconnected")

// scriptWidget is the script's view of the subject.
type scriptWidget struct {
	w types.Widget
}

func newScriptWidget(w types.Widget) interface{} {
	if w == nil {
		return nil
	}
	return &scriptWidget{w: w}
}

func (s *scriptWidget) GetName() string {
	return s.w.Name()
}

func (s *scriptWidget) GetType() string {
	return s.w.Type()
}

// GetPropertyValue returns null for an unknown property.
func (s *scriptWidget) GetPropertyValue(id string) interface{} {
	v, _ := s.w.GetPropertyValue(id)
	return v
}

func (s *scriptWidget) SetPropertyValue(id string, value interface{}) error {
	return s.w.SetPropertyValue(id, value)
}

// ScriptPoint is the script's view of one bound point.
type ScriptPoint struct {
	point types.Point
}

func (p *ScriptPoint) GetName() string {
	return p.point.Name()
}

// Read returns the raw value, null while disconnected.
func (p *ScriptPoint) Read() interface{} {
	v := p.point.Read()
	if types.IsDisconnected(v) {
		return nil
	}
	return v.Value
}

func (p *ScriptPoint) Write(value interface{}) error {
	return p.point.Write(value)
}

func (p *ScriptPoint) IsConnected() bool {
	return !types.IsDisconnected(p.point.Read())
}

func (p *ScriptPoint) value() (*types.Value, error) {
	if p == nil {
		return nil, errors.New("missing point")
	}
	v := p.point.Read()
	if types.IsDisconnected(v) {
		return nil, fmt.Errorf("%s: %w", p.point.Name(), errDisconnected)
	}
	return v, nil
}

// newPVUtil the PVUtil helper object
func newPVUtil() map[string]interface{} {
	return map[string]interface{}{
		// getDouble is NaN while disconnected
		"getDouble": func(p *ScriptPoint) (float64, error) {
			if p == nil {
				return 0, errors.New("missing point")
			}
			v := p.point.Read()
			if types.IsDisconnected(v) {
				return math.NaN(), nil
			}
			return cast.ToFloat64E(v.Value)
		},
		"getLong": func(p *ScriptPoint) (int64, error) {
			v, err := p.value()
			if err != nil {
				return 0, err
			}
			return cast.ToInt64E(v.Value)
		},
		"getString": func(p *ScriptPoint) (string, error) {
			v, err := p.value()
			if err != nil {
				return "", err
			}
			return cast.ToStringE(v.Value)
		},
		"getSeverity": func(p *ScriptPoint) int {
			if p == nil {
				return int(types.SeverityDisconnected)
			}
			return int(types.SeverityOf(p.point.Read()))
		},
		// getTimestamp milliseconds since the epoch
		"getTimestamp": func(p *ScriptPoint) (int64, error) {
			v, err := p.value()
			if err != nil {
				return 0, err
			}
			return v.Timestamp.UnixMilli(), nil
		},
	}
}

func newScriptLogger(config types.Config) map[string]interface{} {
	return map[string]interface{}{
		"info": func(msg interface{}) {
			config.Printf("[script] %v", msg)
		},
		"warn": func(msg interface{}) {
			config.Printf("[script] WARNING %v", msg)
		},
	}
}
