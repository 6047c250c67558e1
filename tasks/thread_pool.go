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

import (
	"fmt"
	"runtime"
	"sync"
)

type poolTask struct {
	fn   func()
	stop StopToken
}

// ThreadPool is an Executor backed by a fixed number of worker
// goroutines pulling from a FIFO queue. Capacity can be raised or
// lowered at runtime; surplus workers drain their current task and exit.
type ThreadPool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	idle     *sync.Cond

	queue    []poolTask
	desired  int
	workers  int
	running  int
	shutdown bool

	wg sync.WaitGroup
}

// DefaultCapacity is the worker count used when the caller does not
// specify one.
func DefaultCapacity() int { return runtime.NumCPU() }

// NewThreadPool creates a pool with the given number of workers.
func NewThreadPool(threads int) (*ThreadPool, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("thread pool capacity must be positive, got %d", threads)
	}
	p := &ThreadPool{desired: threads}
	p.notEmpty = sync.NewCond(&p.mu)
	p.idle = sync.NewCond(&p.mu)
	p.mu.Lock()
	p.launchWorkersLocked(threads)
	p.mu.Unlock()
	return p, nil
}

// NewDefaultThreadPool creates a pool sized to the machine.
func NewDefaultThreadPool() (*ThreadPool, error) {
	return NewThreadPool(DefaultCapacity())
}

func (p *ThreadPool) launchWorkersLocked(n int) {
	for i := 0; i < n; i++ {
		p.workers++
		p.wg.Add(1)
		go p.workerLoop()
	}
}

func (p *ThreadPool) workerLoop() {
	defer p.wg.Done()
	p.mu.Lock()
	for {
		if p.workers > p.desired {
			// capacity was lowered, let this worker retire
			p.workers--
			p.mu.Unlock()
			return
		}
		if len(p.queue) == 0 {
			if p.shutdown {
				p.workers--
				p.mu.Unlock()
				return
			}
			p.notEmpty.Wait()
			continue
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		if task.stop.Err() == nil {
			task.fn()
		}

		p.mu.Lock()
		p.running--
		if len(p.queue) == 0 && p.running == 0 {
			p.idle.Broadcast()
		}
	}
}

// Spawn enqueues a fire-and-forget task. If the stop token has already
// fired, or fires before a worker picks the task up, the task body is
// dropped without running.
func (p *ThreadPool) Spawn(task func(), stop StopToken) error {
	if task == nil {
		return fmt.Errorf("tasks: cannot spawn nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return ErrShutdown
	}
	if err := stop.Err(); err != nil {
		return err
	}
	p.queue = append(p.queue, poolTask{fn: task, stop: stop})
	p.notEmpty.Signal()
	return nil
}

// GetCapacity reports the configured number of workers.
func (p *ThreadPool) GetCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.desired
}

// SetCapacity adjusts the number of workers. Lowering capacity does not
// interrupt tasks in flight; surplus workers exit once their current
// task completes.
func (p *ThreadPool) SetCapacity(threads int) error {
	if threads <= 0 {
		return fmt.Errorf("thread pool capacity must be positive, got %d", threads)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return ErrShutdown
	}
	p.desired = threads
	if p.workers < p.desired {
		p.launchWorkersLocked(p.desired - p.workers)
	} else {
		// wake waiting workers so the surplus ones can retire
		p.notEmpty.Broadcast()
	}
	return nil
}

// WaitForIdle blocks until the queue is empty and no task is running.
func (p *ThreadPool) WaitForIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) > 0 || p.running > 0 {
		p.idle.Wait()
	}
}

// Shutdown stops the pool. With wait true, queued tasks run to
// completion first; with wait false, queued-but-unstarted tasks are
// discarded. Either way Shutdown returns only after all workers exit.
func (p *ThreadPool) Shutdown(wait bool) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return ErrShutdown
	}
	p.shutdown = true
	if !wait {
		p.queue = nil
	}
	p.notEmpty.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}
