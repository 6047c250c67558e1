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

// SerialExecutor runs every task on the goroutine that called
// RunInSerialExecutor, in submission order, via a cooperative event
// loop. It gives deterministic single-threaded execution for tests and
// callers that want to avoid pool contention.
type SerialExecutor struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	queue    []poolTask
	finished bool
}

func newSerialExecutor() *SerialExecutor {
	se := &SerialExecutor{}
	se.notEmpty = sync.NewCond(&se.mu)
	return se
}

// Spawn enqueues a task for the event loop. Tasks may spawn further
// tasks; they run after the current one returns.
func (se *SerialExecutor) Spawn(task func(), stop StopToken) error {
	se.mu.Lock()
	defer se.mu.Unlock()
	if se.finished {
		return ErrShutdown
	}
	if err := stop.Err(); err != nil {
		return err
	}
	se.queue = append(se.queue, poolTask{fn: task, stop: stop})
	se.notEmpty.Signal()
	return nil
}

func (se *SerialExecutor) GetCapacity() int { return 1 }

func (se *SerialExecutor) markFinished() {
	se.mu.Lock()
	se.finished = true
	se.notEmpty.Broadcast()
	se.mu.Unlock()
}

// runLoop drains tasks until markFinished is called and the queue is
// empty. It runs on the caller's goroutine.
func (se *SerialExecutor) runLoop() {
	se.mu.Lock()
	for {
		if len(se.queue) == 0 {
			if se.finished {
				se.mu.Unlock()
				return
			}
			se.notEmpty.Wait()
			continue
		}
		task := se.queue[0]
		se.queue = se.queue[1:]
		se.mu.Unlock()

		if task.stop.Err() == nil {
			task.fn()
		}
		se.mu.Lock()
	}
}

// RunInSerialExecutor drives a task graph to completion on the calling
// goroutine. initial receives the executor, kicks off the top-level
// work, and returns the future for its final result; the event loop then
// runs until that future completes.
func RunInSerialExecutor[T any](initial func(*SerialExecutor) *Future[T]) (T, error) {
	se := newSerialExecutor()
	fut := initial(se)
	fut.AddCallback(func(T, error) { se.markFinished() })
	se.runLoop()
	return fut.Result()
}
