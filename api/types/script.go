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
	"context"
	"io"
)

// Script types. A script type names an interpreter family.
const (
	// Js scripts run on the goja interpreter.
	Js = "js"
	// Expr scripts and rules run on the expr-lang interpreter.
	Expr = "expr"
	// AllScript scopes a Udf entry to every script type.
	AllScript = "*"
	// ScriptFuncSeparator separates script type and function name in Udf keys.
	ScriptFuncSeparator = "#"
)

// Script is a Udf entry scoped to one script type.
type Script struct {
	// Type is the script type, see Js and Expr.
	Type string
	// Content is a Go function, or source text for the type.
	Content interface{}
}

// PointRef names one point of a script and whether its changes trigger the script.
type PointRef struct {
	Name    string `json:"name"`
	Trigger bool   `json:"trigger"`
}

// ScriptSpec is the definition of a widget script.
type ScriptSpec struct {
	// Path locates the script file. With Text set it only names the script.
	Path string `json:"path"`
	// Text is the embedded script source. Empty means load Path.
	Text string `json:"text,omitempty"`
	// Type forces the interpreter family. Empty means derive from the Path extension.
	Type string `json:"type,omitempty"`
	// Points lists the script's points in order.
	Points []PointRef `json:"pvs"`
	// CheckConnections delays execution until every point is connected.
	CheckConnections bool `json:"checkConnections"`
}

// RuleExpression is one branch of a rule: when BoolExp holds, the property gets Value.
type RuleExpression struct {
	BoolExp string      `json:"boolExp"`
	Value   interface{} `json:"value"`
}

// RuleSpec is the definition of a widget rule.
type RuleSpec struct {
	Name string `json:"name"`
	// PropID is the widget property the rule sets.
	PropID string `json:"propId"`
	// PropAsExpr treats each Value as an expression instead of a literal.
	PropAsExpr  bool             `json:"propAsExpr"`
	Expressions []RuleExpression `json:"expressions"`
	Points      []PointRef       `json:"pvs"`
}

// CompiledUnit is whatever an interpreter needs to run a script again.
type CompiledUnit interface{}

// Interpreter is one interpreter family.
//
// Bind, Exec and Unbind share interpreter state and are only called from the
// family's single execution worker, never concurrently.
type Interpreter interface {
	// Type is the script type handled by this interpreter.
	Type() string
	// Compile turns source into a unit for Exec. name identifies the script in messages.
	Compile(name string, src io.Reader) (CompiledUnit, error)
	// Bind installs the subject and points for the next Exec.
	Bind(ectx ExecutionContext)
	// Exec runs a unit. Cancelling ctx must interrupt the script promptly.
	Exec(ctx context.Context, unit CompiledUnit) error
	// Unbind clears everything Bind installed.
	Unbind()
	// Close releases the interpreter.
	Close() error
}
