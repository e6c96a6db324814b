// Copyright 2024 Framepipe, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package utils

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/framepipe/cadence/pkg/logger"
)

type TaskQueueParams struct {
	Name  string
	Size  int
	Clock clock.Clock

	Logger logger.Logger
}

// TaskQueue serializes tasks onto a single goroutine. All tasks posted to the
// queue run in program order, including tasks posted from timer callbacks.
// Delayed tasks are armed on the queue's clock so tests can drive them with a
// mock clock.
type TaskQueue struct {
	params TaskQueueParams

	lock      sync.RWMutex
	ops       chan func()
	isStopped bool
}

func NewTaskQueue(params TaskQueueParams) *TaskQueue {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &TaskQueue{
		params: params,
		ops:    make(chan func(), params.Size),
	}
}

func (q *TaskQueue) Clock() clock.Clock {
	return q.params.Clock
}

func (q *TaskQueue) Start() {
	go q.process()
}

func (q *TaskQueue) Stop() {
	q.lock.Lock()
	if q.isStopped {
		q.lock.Unlock()
		return
	}

	q.isStopped = true
	close(q.ops)
	q.lock.Unlock()
}

// Post enqueues op for execution. Posts to a stopped queue are dropped.
func (q *TaskQueue) Post(op func()) {
	q.lock.RLock()
	if q.isStopped {
		q.lock.RUnlock()
		return
	}

	select {
	case q.ops <- op:
	default:
		q.params.Logger.Errorw("task queue full", nil, "name", q.params.Name, "size", q.params.Size)
	}
	q.lock.RUnlock()
}

// PostDelayed enqueues op after the given delay has elapsed on the queue's
// clock. A non-positive delay posts immediately. The returned timer may be
// stopped, but cancellation of already-posted tasks is the caller's
// responsibility (e.g. via generation checks in op).
func (q *TaskQueue) PostDelayed(delay time.Duration, op func()) *clock.Timer {
	if delay <= 0 {
		q.Post(op)
		return nil
	}
	return q.params.Clock.AfterFunc(delay, func() {
		q.Post(op)
	})
}

// Sync blocks until every task posted before the call has run. Intended for
// tests and orderly shutdown; a stopped queue returns immediately.
func (q *TaskQueue) Sync() {
	done := make(chan struct{})
	posted := false

	q.lock.RLock()
	if !q.isStopped {
		select {
		case q.ops <- func() { close(done) }:
			posted = true
		default:
		}
	}
	q.lock.RUnlock()

	if posted {
		<-done
	}
}

func (q *TaskQueue) process() {
	for op := range q.ops {
		op()
	}
}
