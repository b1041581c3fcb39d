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
	"fmt"
	"strings"

	"github.com/rulego/pvscript/utils/cast"
)

// localDriver keeps the value in memory. Writes are converted to the type of
// the initial value: loc://x(3) stays a number, loc://s("a") a string.
type localDriver struct {
	initial interface{}
}

func newLocalDriver(full string) (*localDriver, error) {
	_, args, ok := splitInitializer(full)
	if !ok || strings.TrimSpace(args) == "" {
		return &localDriver{initial: 0.0}, nil
	}
	items := splitArgs(args)
	if len(items) == 1 {
		return &localDriver{initial: localLiteral(items[0])}, nil
	}
	values := make([]interface{}, 0, len(items))
	for _, item := range items {
		values = append(values, localLiteral(item))
	}
	return &localDriver{initial: values}, nil
}

// localLiteral parses one initializer item, numbers are doubles
func localLiteral(text string) interface{} {
	v := cast.ParseLiteral(text)
	if i, ok := v.(int64); ok {
		return float64(i)
	}
	return v
}

func (d *localDriver) start(p *point) error {
	p.update(d.initial)
	return nil
}

func (d *localDriver) write(p *point, v interface{}) error {
	converted, err := convertLike(d.initial, v)
	if err != nil {
		return fmt.Errorf("write %s: %w", p.name, err)
	}
	p.update(converted)
	return nil
}

func (d *localDriver) stop(p *point) {}

func convertLike(sample, v interface{}) (interface{}, error) {
	switch sample.(type) {
	case float64:
		return cast.ToFloat64E(v)
	case bool:
		return cast.ToBoolE(v)
	case string:
		return cast.ToStringE(v)
	default:
		return v, nil
	}
}

// splitArgs splits on commas outside of quotes
func splitArgs(args string) []string {
	var (
		items   []string
		current strings.Builder
		quote   rune
		escaped bool
	)
	for _, r := range args {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != 0:
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == ',':
			items = append(items, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	return append(items, strings.TrimSpace(current.String()))
}
