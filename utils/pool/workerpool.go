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

// Package pool provides the worker pool behind types.Config.Pool.
//
// The point subsystem uses it to send the current value of a connected point
// to a listener added with AddListener, so the caller that subscribes never
// runs listener code on its own goroutine. Submit does not queue: it fails
// with ErrNoIdleWorkers when every worker is busy and with ErrPoolStopped after
// Stop. pv.Pool treats any Submit error as "deliver on a new goroutine", so a
// full or stopped pool delays nothing and drops nothing.
//
// Note: This file is inspired by:
// Valyala, A. (2023) workerpool.go (Version 1.48.0)
// [Source code]. https://github.com/valyala/fasthttp/blob/master/workerpool.go
// 1.Change the Serve(c net.Conn) method to Submit(fn func()) error method
// 2.The cleanup goroutine exits as soon as Stop is called
package pool

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

var (
	// ErrNoIdleWorkers is returned by Submit when MaxWorkersCount workers are busy.
	ErrNoIdleWorkers = errors.New("no idle workers")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// WorkerPool serves incoming functions using a pool of workers in FILO order.
// The most recently stopped worker will serve the next incoming function.
//
//	pool := &WorkerPool{MaxWorkersCount: 100}
//	pool.Start()
//	defer pool.Stop()
//	err := pool.Submit(func() {})
type WorkerPool struct {
	// MaxWorkersCount is the maximum number of workers that can be created.
	MaxWorkersCount int

	// MaxIdleWorkerDuration is how long an idle worker is kept. Default 10s.
	MaxIdleWorkerDuration time.Duration

	lock         sync.Mutex
	workersCount int
	mustStop     bool

	// ready holds idle workers in FILO order
	ready []*workerChan

	stopCh  chan struct{}
	cleanWg sync.WaitGroup

	workerChanPool sync.Pool
	startOnce      sync.Once
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan func()
}

// Start starts the pool and its idle-worker cleanup goroutine.
// Calling Start more than once has no effect.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		wp.lock.Lock()
		wp.stopCh = make(chan struct{})
		stopCh := wp.stopCh
		wp.lock.Unlock()

		wp.workerChanPool.New = func() interface{} {
			return &workerChan{
				ch: make(chan func(), workerChanCap),
			}
		}

		wp.cleanWg.Add(1)
		go func() {
			defer wp.cleanWg.Done()
			var scratch []*workerChan
			ticker := time.NewTicker(wp.getMaxIdleWorkerDuration())
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					wp.clean(&scratch)
				}
			}
		}()
	})
}

// Stop stops the pool. Idle workers exit immediately, busy workers after their current function.
func (wp *WorkerPool) Stop() {
	wp.lock.Lock()
	if wp.stopCh == nil || wp.mustStop {
		wp.lock.Unlock()
		return
	}
	close(wp.stopCh)
	ready := wp.ready
	for i := range ready {
		ready[i].ch <- nil
		ready[i] = nil
	}
	wp.ready = ready[:0]
	wp.mustStop = true
	wp.lock.Unlock()

	wp.cleanWg.Wait()
}

// Release stops the pool.
func (wp *WorkerPool) Release() {
	wp.Stop()
}

func (wp *WorkerPool) getMaxIdleWorkerDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

// clean stops workers idle for longer than MaxIdleWorkerDuration.
func (wp *WorkerPool) clean(scratch *[]*workerChan) {
	criticalTime := time.Now().Add(-wp.getMaxIdleWorkerDuration())

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready)

	// binary search for the last worker idle since before criticalTime
	l, r, mid := 0, n-1, 0
	for l <= r {
		mid = (l + r) / 2
		if criticalTime.After(wp.ready[mid].lastUseTime) {
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	i := r
	if i == -1 {
		wp.lock.Unlock()
		return
	}

	*scratch = append((*scratch)[:0], ready[:i+1]...)
	m := copy(ready, ready[i+1:])
	for i = m; i < n; i++ {
		ready[i] = nil
	}
	wp.ready = ready[:m]
	wp.lock.Unlock()

	tmp := *scratch
	for i := range tmp {
		tmp[i].ch <- nil
		tmp[i] = nil
	}
}

// Submit hands fn to an idle worker, starting one if needed.
func (wp *WorkerPool) Submit(fn func()) error {
	ch, err := wp.getCh()
	if err != nil {
		return err
	}
	ch.ch <- fn
	return nil
}

var workerChanCap = func() int {
	// Use blocking workerChan if GOMAXPROCS=1.
	// This immediately switches Submit to workerFunc.
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	// Use non-blocking workerChan if GOMAXPROCS>1,
	// since otherwise Submit would block on workerFunc.
	return 1
}()

func (wp *WorkerPool) getCh() (*workerChan, error) {
	var ch *workerChan
	createWorker := false

	wp.lock.Lock()
	if wp.mustStop || wp.stopCh == nil {
		wp.lock.Unlock()
		return nil, ErrPoolStopped
	}
	ready := wp.ready
	n := len(ready) - 1
	if n < 0 {
		if wp.workersCount < wp.MaxWorkersCount {
			createWorker = true
			wp.workersCount++
		}
	} else {
		ch = ready[n]
		ready[n] = nil
		wp.ready = ready[:n]
	}
	wp.lock.Unlock()

	if ch == nil {
		if !createWorker {
			return nil, ErrNoIdleWorkers
		}
		vch := wp.workerChanPool.Get()
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.workerChanPool.Put(vch)
		}()
	}
	return ch, nil
}

func (wp *WorkerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()

	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return false
	}
	wp.ready = append(wp.ready, ch)
	wp.lock.Unlock()
	return true
}

func (wp *WorkerPool) workerFunc(ch *workerChan) {
	var fn func()
	for fn = range ch.ch {
		if fn == nil {
			break
		}
		fn()
		fn = nil
		if !wp.release(ch) {
			break
		}
	}

	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}

// WorkersCount returns the number of live workers.
func (wp *WorkerPool) WorkersCount() int {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	return wp.workersCount
}
