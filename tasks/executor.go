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

// Package tasks provides the executors that run compute work off the
// calling goroutine: a fixed-capacity FIFO worker pool, a single-threaded
// serial executor for deterministic execution, single-assignment futures
// with continuation callbacks, and cooperative stop tokens.
package tasks

import (
	"sync"

	"golang.org/x/xerrors"
)

var (
	// ErrCancelled is reported by tasks skipped or interrupted after
	// their stop token fired.
	ErrCancelled = xerrors.New("operation cancelled")
	// ErrShutdown is returned when submitting to an executor that has
	// already shut down.
	ErrShutdown = xerrors.New("executor shut down")
)

// Executor runs fire-and-forget closures. Tasks submitted to the same
// executor run in FIFO order per worker; nothing orders tasks across
// workers.
type Executor interface {
	// Spawn enqueues a task. The stop token is checked when the task is
	// dequeued: if a stop was requested by then, the task body never runs.
	Spawn(task func(), stop StopToken) error
	// GetCapacity reports the number of workers executing tasks.
	GetCapacity() int
}

// Submit schedules fn on the executor and returns a future that resolves
// to fn's result. If the stop token fires before fn starts, the future
// resolves to the token's error and fn is never invoked.
func Submit[T any](e Executor, stop StopToken, fn func() (T, error)) (*Future[T], error) {
	fut := NewFuture[T]()
	err := e.Spawn(func() {
		if err := stop.Err(); err != nil {
			var zero T
			fut.MarkFinished(zero, err)
			return
		}
		v, err := fn()
		fut.MarkFinished(v, err)
	}, stop)
	if err != nil {
		return nil, err
	}
	return fut, nil
}

// StopSource produces StopTokens and carries the stop request to them.
type StopSource struct {
	mu  sync.Mutex
	err error
	ch  chan struct{}
}

func NewStopSource() *StopSource {
	return &StopSource{ch: make(chan struct{})}
}

// RequestStop asks all holders of this source's tokens to stop. Only the
// first request takes effect.
func (s *StopSource) RequestStop() { s.RequestStopWithError(ErrCancelled) }

func (s *StopSource) RequestStopWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = err
	close(s.ch)
}

func (s *StopSource) Token() StopToken { return StopToken{src: s} }

// StopToken is a cheap, copyable handle tasks poll for cancellation.
// The zero value is unstoppable.
type StopToken struct {
	src *StopSource
}

// Unstoppable returns a token that never requests a stop.
func Unstoppable() StopToken { return StopToken{} }

func (t StopToken) IsStopRequested() bool { return t.Err() != nil }

// Err returns the stop error once a stop was requested, nil before.
func (t StopToken) Err() error {
	if t.src == nil {
		return nil
	}
	select {
	case <-t.src.ch:
		t.src.mu.Lock()
		defer t.src.mu.Unlock()
		return t.src.err
	default:
		return nil
	}
}

// Done exposes the stop request as a channel for select loops. Returns
// nil for an unstoppable token.
func (t StopToken) Done() <-chan struct{} {
	if t.src == nil {
		return nil
	}
	return t.src.ch
}
