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

package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/macros"
)

// CompileError is returned when a script or rule does not compile.
// No binding is created for it.
type CompileError struct {
	// Name of the script
	Name string
	// Type is the script type
	Type string
	// Source is set for generated scripts, with line numbers
	Source string
	Err    error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("cannot compile %s script %s: %v", e.Type, e.Name, e.Err)
	if e.Source != "" {
		msg += "\n" + e.Source
	}
	return msg
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// family is one interpreter with its own worker and dedup set.
type family struct {
	config      types.Config
	interpreter types.Interpreter
	engine      *ExecutionEngine
	pending     *PendingSet
}

// SupportOption configures a ScriptSupport.
type SupportOption func(s *ScriptSupport)

// WithRegistry uses r instead of the default Registry.
func WithRegistry(r *InterpreterRegistry) SupportOption {
	return func(s *ScriptSupport) {
		s.registry = r
	}
}

// WithInterpreter installs an interpreter instance for its script type,
// bypassing the registry.
func WithInterpreter(interpreter types.Interpreter) SupportOption {
	return func(s *ScriptSupport) {
		s.families[interpreter.Type()] = s.newFamily(interpreter)
	}
}

// ScriptSupport owns the interpreter families of one runtime.
// Families are created on first use.
type ScriptSupport struct {
	config   types.Config
	registry *InterpreterRegistry

	lock     sync.Mutex
	families map[string]*family
	closed   bool
}

// NewScriptSupport creates a support using the default Registry.
func NewScriptSupport(config types.Config, opts ...SupportOption) *ScriptSupport {
	s := &ScriptSupport{
		config:   config,
		registry: Registry,
		families: make(map[string]*family),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the support configuration.
func (s *ScriptSupport) Config() types.Config {
	return s.config
}

func (s *ScriptSupport) newFamily(interpreter types.Interpreter) *family {
	return &family{
		config:      s.config,
		interpreter: interpreter,
		engine:      NewExecutionEngine(interpreter.Type(), s.config),
		pending:     NewPendingSet(),
	}
}

func (s *ScriptSupport) getFamily(scriptType string) (*family, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, types.ErrEngineStopped
	}
	if f, ok := s.families[scriptType]; ok {
		return f, nil
	}
	factory, ok := s.registry.Get(scriptType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrInterpreterNotFound, scriptType)
	}
	interpreter, err := factory(s.config)
	if err != nil {
		return nil, fmt.Errorf("create %s interpreter: %w", scriptType, err)
	}
	f := s.newFamily(interpreter)
	s.families[scriptType] = f
	return f, nil
}

// Engine returns the execution engine of scriptType, creating the family if needed.
func (s *ScriptSupport) Engine(scriptType string) (*ExecutionEngine, error) {
	f, err := s.getFamily(scriptType)
	if err != nil {
		return nil, err
	}
	return f.engine, nil
}

// Compile compiles src with the interpreter of scriptType.
func (s *ScriptSupport) Compile(scriptType, name string, src io.Reader) (*CompiledScript, error) {
	f, err := s.getFamily(scriptType)
	if err != nil {
		return nil, &CompileError{Name: name, Type: scriptType, Err: err}
	}
	unit, err := f.interpreter.Compile(name, src)
	if err != nil {
		return nil, &CompileError{Name: name, Type: scriptType, Err: err}
	}
	s.config.Debugf("compiled %s script %s", scriptType, name)
	return newCompiledScript(f, name, unit), nil
}

// CompileScript compiles a widget script.
// The path is macro-resolved; external files are read relative to the host directory.
func (s *ScriptSupport) CompileScript(host Host, spec types.ScriptSpec) (*CompiledScript, error) {
	name := macros.Replace(host.Macros(), spec.Path)
	scriptType := spec.Type
	if scriptType == "" {
		scriptType = ScriptTypeOf(name)
	}
	if spec.Text != "" {
		return s.Compile(scriptType, name, strings.NewReader(spec.Text))
	}

	path := s.resolve(host.BaseDir(), name)
	file, err := os.Open(path)
	if err != nil {
		return nil, &CompileError{Name: name, Type: scriptType, Err: err}
	}
	defer file.Close()
	return s.Compile(scriptType, name, file)
}

func (s *ScriptSupport) resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if dir == "" {
		dir = s.config.BaseDir
	}
	return filepath.Join(dir, name)
}

// Close shuts down every family engine, then closes the interpreters.
func (s *ScriptSupport) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	families := s.families
	s.lock.Unlock()

	var firstErr error
	for _, f := range families {
		f.engine.Shutdown()
		if err := f.interpreter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ScriptTypeOf derives the script type from a file name.
// Unknown extensions map to the extension without dot.
func ScriptTypeOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".js", ".mjs":
		return types.Js
	case ".expr", ".rule":
		return types.Expr
	default:
		return strings.TrimPrefix(ext, ".")
	}
}
