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
	"sync"
	"sync/atomic"
)

const (
	futurePending int32 = iota
	futureRunning
	futureCompleted
	futureCancelled
)

// Task is the unit of work run by an ExecutionEngine.
// ctx is cancelled when the task's future is cancelled or the engine shuts down.
type Task func(ctx context.Context)

// Future tracks one submitted task.
type Future struct {
	state  atomic.Int32
	task   Task
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	// onSkip runs once if the task is cancelled before it started
	onSkip    func()
	closeOnce sync.Once
}

func newFuture(parent context.Context, task Task, onSkip func()) *Future {
	ctx, cancel := context.WithCancel(parent)
	return &Future{
		task:   task,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		onSkip: onSkip,
	}
}

// completedFuture is returned for work rejected after shutdown.
func completedFuture() *Future {
	f := &Future{done: make(chan struct{})}
	f.state.Store(futureCompleted)
	f.finish()
	return f
}

// Done is closed when the task has returned, or will never run.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the task finished or was cancelled.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return f.state.Load() == futureCancelled
	}
}

// IsCancelled reports whether Cancel took effect before the task completed.
func (f *Future) IsCancelled() bool {
	return f.state.Load() == futureCancelled
}

// Cancel prevents a pending task from running and interrupts a running one.
// It returns false if the task had already completed or was cancelled.
// Calling Cancel on a finished future is a no-op.
func (f *Future) Cancel() bool {
	for {
		switch s := f.state.Load(); s {
		case futurePending:
			if f.state.CompareAndSwap(futurePending, futureCancelled) {
				f.cancel()
				if f.onSkip != nil {
					f.onSkip()
				}
				f.finish()
				return true
			}
		case futureRunning:
			if f.state.CompareAndSwap(futureRunning, futureCancelled) {
				// done closes once the task returns
				f.cancel()
				return true
			}
		default:
			return false
		}
	}
}

// Wait blocks until the task is done or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the task on the calling goroutine unless it was cancelled.
func (f *Future) run() {
	if !f.state.CompareAndSwap(futurePending, futureRunning) {
		return
	}
	defer func() {
		f.state.CompareAndSwap(futureRunning, futureCompleted)
		f.cancel()
		f.finish()
	}()
	f.task(f.ctx)
}

func (f *Future) finish() {
	f.closeOnce.Do(func() {
		close(f.done)
	})
}
