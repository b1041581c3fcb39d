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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/utils/runtime"
)

// ExecutionEngine runs tasks one at a time on a single worker goroutine.
//
// One engine serves one interpreter family, so the family's shared interpreter
// state is only ever touched by one task at a time.
//
// ExecutionEngine 使用单个工作协程串行执行任务，保证同一解释器不会被并发访问。
type ExecutionEngine struct {
	name   string
	config types.Config

	lock  sync.Mutex
	queue []*Future
	// wakeup has capacity 1: a pending signal is enough to drain the queue
	wakeup chan struct{}

	// futures holds every future that may still be running or pending
	futures sync.Map

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	isShuttingDown int32
	workerDone     chan struct{}
}

// NewExecutionEngine creates an engine and starts its worker.
func NewExecutionEngine(name string, config types.Config) *ExecutionEngine {
	e := &ExecutionEngine{
		name:       name,
		config:     config,
		wakeup:     make(chan struct{}, 1),
		workerDone: make(chan struct{}),
	}
	e.shutdownCtx, e.shutdownCancel = context.WithCancel(context.Background())
	go e.work()
	return e
}

// Name returns the engine name, usually the script type it serves.
func (e *ExecutionEngine) Name() string {
	return e.name
}

// IsShuttingDown reports whether Shutdown was called.
func (e *ExecutionEngine) IsShuttingDown() bool {
	return atomic.LoadInt32(&e.isShuttingDown) == 1
}

// Submit queues task. After shutdown started it returns an already completed
// future that never runs the task.
func (e *ExecutionEngine) Submit(task Task) *Future {
	return e.submit(task, nil)
}

func (e *ExecutionEngine) submit(task Task, onSkip func()) *Future {
	if e.IsShuttingDown() {
		return e.reject(onSkip)
	}
	e.prune()

	f := newFuture(e.shutdownCtx, task, onSkip)
	e.futures.Store(f, struct{}{})

	e.lock.Lock()
	// re-check under lock, Shutdown drains the queue under the same lock
	if e.IsShuttingDown() {
		e.lock.Unlock()
		e.futures.Delete(f)
		f.cancel()
		return e.reject(onSkip)
	}
	e.queue = append(e.queue, f)
	e.lock.Unlock()

	select {
	case e.wakeup <- struct{}{}:
	default:
	}
	return f
}

func (e *ExecutionEngine) reject(onSkip func()) *Future {
	e.config.Debugf("engine %s is stopped, task rejected", e.name)
	if onSkip != nil {
		onSkip()
	}
	return completedFuture()
}

// prune drops finished futures from the tracking set.
func (e *ExecutionEngine) prune() {
	e.futures.Range(func(key, _ interface{}) bool {
		if key.(*Future).IsDone() {
			e.futures.Delete(key)
		}
		return true
	})
}

// Outstanding returns the number of tracked futures that are not done.
func (e *ExecutionEngine) Outstanding() int {
	n := 0
	e.futures.Range(func(key, _ interface{}) bool {
		if !key.(*Future).IsDone() {
			n++
		}
		return true
	})
	return n
}

// Shutdown stops accepting work, cancels every pending task, interrupts the
// running one and waits up to the configured shutdown timeout for the worker to exit.
// Calling it again has no effect.
func (e *ExecutionEngine) Shutdown() {
	if !atomic.CompareAndSwapInt32(&e.isShuttingDown, 0, 1) {
		return
	}
	e.lock.Lock()
	e.queue = nil
	e.lock.Unlock()

	e.futures.Range(func(key, _ interface{}) bool {
		key.(*Future).Cancel()
		e.futures.Delete(key)
		return true
	})
	e.shutdownCancel()

	timeout := e.config.GetShutdownTimeout()
	select {
	case <-e.workerDone:
	case <-time.After(timeout):
		e.config.Printf("engine %s: running script did not stop within %s", e.name, timeout)
	}
}

func (e *ExecutionEngine) next() *Future {
	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	f := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return f
}

func (e *ExecutionEngine) work() {
	defer close(e.workerDone)
	for {
		for f := e.next(); f != nil; f = e.next() {
			e.runSafe(f)
			if e.IsShuttingDown() {
				return
			}
		}
		select {
		case <-e.wakeup:
		case <-e.shutdownCtx.Done():
			return
		}
	}
}

// runSafe keeps the worker alive when a task panics.
func (e *ExecutionEngine) runSafe(f *Future) {
	defer func() {
		if caught := recover(); caught != nil {
			e.config.Printf("engine %s: task panic: %s\n%s", e.name, fmt.Sprint(caught), runtime.Stack())
		}
	}()
	f.run()
}
