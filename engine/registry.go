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
	"errors"
	"sort"
	"sync"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/components/expr"
	"github.com/rulego/pvscript/components/js"
)

// InterpreterFactory creates one interpreter family instance.
type InterpreterFactory func(config types.Config) (types.Interpreter, error)

// Registry is the default registry of interpreter families.
var Registry = new(InterpreterRegistry)

// init registers the built-in interpreter families.
func init() {
	_ = Registry.Register(types.Js, func(config types.Config) (types.Interpreter, error) {
		return js.NewInterpreter(config)
	})
	_ = Registry.Register(types.Expr, func(config types.Config) (types.Interpreter, error) {
		return expr.NewInterpreter(config)
	})
}

// InterpreterRegistry maps script types to interpreter factories.
type InterpreterRegistry struct {
	factories map[string]InterpreterFactory
	sync.RWMutex
}

// Register adds a family. A script type can only be registered once.
func (r *InterpreterRegistry) Register(scriptType string, factory InterpreterFactory) error {
	r.Lock()
	defer r.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]InterpreterFactory)
	}
	if _, ok := r.factories[scriptType]; ok {
		return errors.New("the interpreter already exists. scriptType=" + scriptType)
	}
	r.factories[scriptType] = factory
	return nil
}

// Unregister removes a family.
func (r *InterpreterRegistry) Unregister(scriptType string) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.factories[scriptType]; !ok {
		return types.ErrInterpreterNotFound
	}
	delete(r.factories, scriptType)
	return nil
}

// Get returns the factory for scriptType.
func (r *InterpreterRegistry) Get(scriptType string) (InterpreterFactory, bool) {
	r.RLock()
	defer r.RUnlock()
	f, ok := r.factories[scriptType]
	return f, ok
}

// Types returns the registered script types, sorted.
func (r *InterpreterRegistry) Types() []string {
	r.RLock()
	defer r.RUnlock()
	var list []string
	for k := range r.factories {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}
