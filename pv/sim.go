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
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/cast"
)

// DefaultSimPeriod is the update period of sim:// points without argument.
const DefaultSimPeriod = time.Second

// simulation steps per sine period and ramp cycle
const simSteps = 10

// SimFunctions are the supported sim:// generators, by name.
var SimFunctions = map[string]func(step int) interface{}{
	"sine": func(step int) interface{} {
		return 5 * math.Sin(2*math.Pi*float64(step%simSteps)/simSteps)
	},
	"ramp": func(step int) interface{} {
		return float64(step % (simSteps + 1))
	},
	"noise": func(step int) interface{} {
		return rand.Float64()*10 - 5
	},
	"flipflop": func(step int) interface{} {
		return step%2 == 1
	},
}

// simDriver produces a new value every period on the pool's cron.
type simDriver struct {
	pool   *Pool
	fn     func(step int) interface{}
	period time.Duration

	mu    sync.Mutex
	step  int
	entry cron.EntryID
}

func (p *Pool) newSimDriver(full string) (*simDriver, error) {
	name, args, _ := splitInitializer(strings.TrimPrefix(full, SimPrefix))
	fn, ok := SimFunctions[name]
	if !ok {
		return nil, fmt.Errorf("simulation %q: %w", name, types.ErrUnknownPointType)
	}
	period := DefaultSimPeriod
	if strings.TrimSpace(args) != "" {
		seconds, err := cast.ToFloat64E(args)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("simulation %q: invalid period %q", name, args)
		}
		period = time.Duration(seconds * float64(time.Second))
	}
	return &simDriver{pool: p, fn: fn, period: period}, nil
}

// start is called with pool.mu held.
func (d *simDriver) start(p *point) error {
	p.update(d.fn(0))
	// cron rounds periods below one second up to one second
	entry := d.pool.cron.Schedule(cron.Every(d.period), cron.FuncJob(func() {
		d.tick(p)
	}))
	d.mu.Lock()
	d.entry = entry
	d.mu.Unlock()
	d.pool.startCron()
	return nil
}

func (d *simDriver) tick(p *point) {
	d.mu.Lock()
	d.step++
	step := d.step
	d.mu.Unlock()
	p.update(d.fn(step))
}

func (d *simDriver) write(p *point, v interface{}) error {
	return fmt.Errorf("write %s: %w", p.name, types.ErrPointReadOnly)
}

func (d *simDriver) stop(p *point) {
	d.mu.Lock()
	entry := d.entry
	d.mu.Unlock()
	d.pool.cron.Remove(entry)
}
