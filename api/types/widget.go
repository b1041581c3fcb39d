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

// Widget is the subject a script runs against.
// Implementations must be safe for concurrent use.
type Widget interface {
	// Name of the widget instance.
	Name() string
	// Type of the widget, e.g. "textupdate".
	Type() string
	// GetPropertyValue returns a property and whether it exists.
	GetPropertyValue(id string) (interface{}, bool)
	// SetPropertyValue updates a property.
	SetPropertyValue(id string, value interface{}) error
}

// ExecutionContext is installed into the interpreter for one script run.
type ExecutionContext struct {
	// Subject is the widget the script is attached to.
	Subject Widget
	// Points are the script's points, in declaration order.
	Points []Point
}
