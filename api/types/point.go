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

package types

import (
	"fmt"
	"time"
)

// Severity is the alarm severity attached to a point value.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityInvalid
	SeverityUndefined
)

// SeverityDisconnected is the severity scripts read for a disconnected point.
const SeverityDisconnected Severity = -1

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "NONE"
	case SeverityMinor:
		return "MINOR"
	case SeverityMajor:
		return "MAJOR"
	case SeverityInvalid:
		return "INVALID"
	case SeverityDisconnected:
		return "DISCONNECTED"
	default:
		return "UNDEFINED"
	}
}

// Value is one sample of a point.
type Value struct {
	// Value is a float64, int64, string, bool or a slice of those.
	Value     interface{}
	Severity  Severity
	Timestamp time.Time
}

// NewValue creates a value without alarm, stamped now.
func NewValue(v interface{}) *Value {
	return &Value{Value: v, Severity: SeverityNone, Timestamp: time.Now()}
}

func (v *Value) String() string {
	if v == nil {
		return "<disconnected>"
	}
	if v.Severity != SeverityNone {
		return fmt.Sprintf("%v %s", v.Value, v.Severity)
	}
	return fmt.Sprintf("%v", v.Value)
}

// SeverityOf returns the severity of v, SeverityDisconnected for a disconnected point.
func SeverityOf(v *Value) Severity {
	if IsDisconnected(v) {
		return SeverityDisconnected
	}
	return v.Severity
}

// IsDisconnected reports whether a value read from a point means "not connected".
func IsDisconnected(v *Value) bool {
	return v == nil
}

// PointListener receives events from a point.
// Callbacks may arrive on any goroutine and must not block.
type PointListener interface {
	OnValueChanged(point Point, value *Value)
	OnDisconnected(point Point)
}

// Point is a named live data point ("PV").
type Point interface {
	// Name is the canonical point name, e.g. loc://x for loc://x(3).
	Name() string
	// AddListener subscribes l. If the point is connected, l receives the current value.
	AddListener(l PointListener)
	// RemoveListener unsubscribes l.
	RemoveListener(l PointListener)
	// Read returns the last value, nil while disconnected.
	Read() *Value
	// Write requests a new value. Read-only points return ErrPointReadOnly.
	Write(v interface{}) error
}

// PointFactory acquires and releases points by name.
// Every successful Acquire must be paired with exactly one Release.
type PointFactory interface {
	Acquire(name string) (Point, error)
	Release(p Point)
}
