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

package display

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/fs"
	"github.com/rulego/pvscript/widget"
)

// Pool 显示实例池, keyed by display name
type Pool struct {
	config   types.Config
	displays sync.Map
}

// NewPool creates an empty pool. Every display gets its own script support
// and point pool built from config.
func NewPool(config types.Config) *Pool {
	return &Pool{config: config}
}

// Load 加载指定文件夹及其子文件夹所有显示配置 (.json, .yaml, .yml)
// A single file path loads just that file.
func (p *Pool) Load(path string) ([]*widget.Display, error) {
	paths := []string{path}
	if FormatOf(path) == "" {
		var err error
		if paths, err = fs.GetFilePathsMatching(path, []string{"*.json", "*.yaml", "*.yml"}); err != nil {
			return nil, err
		}
	}
	var loaded []*widget.Display
	for _, file := range paths {
		def, err := LoadFile(file)
		if err != nil {
			return loaded, err
		}
		d, err := p.New(def, filepath.Dir(file))
		if err != nil {
			return loaded, err
		}
		loaded = append(loaded, d)
	}
	return loaded, nil
}

// New creates a stopped display and stores it under its name.
// An existing display with the same name is returned unchanged.
func (p *Pool) New(def widget.DisplayDefinition, dir string) (*widget.Display, error) {
	if v, ok := p.displays.Load(def.Name); ok {
		return v.(*widget.Display), nil
	}
	d, err := widget.NewDisplay(def, p.config, dir)
	if err != nil {
		return nil, err
	}
	if v, loaded := p.displays.LoadOrStore(def.Name, d); loaded {
		_ = d.Close()
		return v.(*widget.Display), nil
	}
	return d, nil
}

// Get 获取指定名称的显示实例
func (p *Pool) Get(name string) (*widget.Display, bool) {
	v, ok := p.displays.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*widget.Display), true
}

// Del closes and removes a display.
func (p *Pool) Del(name string) error {
	v, ok := p.displays.LoadAndDelete(name)
	if !ok {
		return nil
	}
	return v.(*widget.Display).Close()
}

// Start starts every display, returning the first error.
func (p *Pool) Start() error {
	var first error
	p.Range(func(d *widget.Display) bool {
		if err := d.Start(); err != nil && first == nil {
			first = fmt.Errorf("display %s: %w", d.Name(), err)
		}
		return true
	})
	return first
}

// Stop 释放所有显示实例
func (p *Pool) Stop() {
	p.displays.Range(func(key, value any) bool {
		if err := value.(*widget.Display).Close(); err != nil {
			p.config.Printf("close display %v: %v", key, err)
		}
		p.displays.Delete(key)
		return true
	})
}

// Range calls f for every display until f returns false.
func (p *Pool) Range(f func(d *widget.Display) bool) {
	p.displays.Range(func(key, value any) bool {
		return f(value.(*widget.Display))
	})
}
