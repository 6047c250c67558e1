// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tasks

import "sync"

// Future is a single-assignment completion cell. It is finished exactly
// once with a value or an error; callbacks added before completion run
// when it finishes, callbacks added after run immediately on the adding
// goroutine.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	value     T
	err       error
	finished  bool
	callbacks []func(T, error)
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// MarkFinished completes the future. Completing twice panics: a future
// is a single-assignment cell.
func (f *Future[T]) MarkFinished(val T, err error) {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		panic("tasks: future marked finished twice")
	}
	f.value, f.err = val, err
	f.finished = true
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(val, err)
	}
}

// Done is closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Finished reports whether the future has completed without blocking.
func (f *Future[T]) Finished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the future completes.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// AddCallback registers cb to run on completion. If the future already
// completed, cb runs synchronously before AddCallback returns.
func (f *Future[T]) AddCallback(cb func(T, error)) {
	f.mu.Lock()
	if !f.finished {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	val, err := f.value, f.err
	f.mu.Unlock()
	cb(val, err)
}

// Transfer returns a future equivalent to f whose continuations run on
// the given executor. If f already completed, the result completes
// immediately on the calling goroutine instead of being rescheduled.
func Transfer[T any](e Executor, f *Future[T]) *Future[T] {
	return doTransfer(e, f, false)
}

// TransferAlways is like Transfer but reschedules onto the executor even
// when f has already completed. This keeps CPU-heavy continuations off
// the completing goroutine unconditionally.
func TransferAlways[T any](e Executor, f *Future[T]) *Future[T] {
	return doTransfer(e, f, true)
}

func doTransfer[T any](e Executor, f *Future[T], always bool) *Future[T] {
	transferred := NewFuture[T]()

	f.mu.Lock()
	if f.finished && !always {
		val, err := f.value, f.err
		f.mu.Unlock()
		transferred.MarkFinished(val, err)
		return transferred
	}
	deliver := func(val T, err error) {
		if spawnErr := e.Spawn(func() { transferred.MarkFinished(val, err) }, Unstoppable()); spawnErr != nil {
			// executor rejected the task, complete inline rather than lose
			// the result
			transferred.MarkFinished(val, err)
		}
	}
	if f.finished {
		val, err := f.value, f.err
		f.mu.Unlock()
		deliver(val, err)
		return transferred
	}
	f.callbacks = append(f.callbacks, deliver)
	f.mu.Unlock()
	return transferred
}
