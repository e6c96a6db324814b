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

package cadence

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/framepipe/cadence/pkg/utils"
)

type refreshFrameRequesterParams struct {
	Queue       *utils.TaskQueue
	Clock       clock.Clock
	FrameDelay  time.Duration
	GracePeriod time.Duration
	OnRequest   func()
}

// refreshFrameRequester asks the capture source for a fresh frame when none
// has arrived for GracePeriod, and keeps asking once per frame period until
// one does. All state is owned by the task queue; stale timer firings are
// invalidated by a generation bump.
type refreshFrameRequester struct {
	params refreshFrameRequesterParams

	generation    int64
	running       bool
	startedAt     time.Time
	hasRequested  bool
	lastRequestAt time.Time
}

func newRefreshFrameRequester(params refreshFrameRequesterParams) *refreshFrameRequester {
	return &refreshFrameRequester{
		params: params,
	}
}

// MaybeStart arms the requester unless it is already running.
func (r *refreshFrameRequester) MaybeStart() {
	if r.running {
		return
	}
	r.running = true
	r.generation++
	r.startedAt = r.params.Clock.Now()
	r.hasRequested = false
	r.armAt(r.generation, r.startedAt.Add(r.params.GracePeriod))
}

// Stop cancels pending requests. Idempotent; stopping a non-armed requester
// is a no-op.
func (r *refreshFrameRequester) Stop() {
	r.running = false
	r.generation++
}

// CoalescedRequest handles an on-demand keyframe request arriving before any
// frame has been accepted. It shares the periodic timer's pacing: nothing is
// emitted inside the grace period or within one frame period of the previous
// request; otherwise the request fires now and the periodic phase restarts
// from this instant.
func (r *refreshFrameRequester) CoalescedRequest() {
	if !r.running {
		r.MaybeStart()
		return
	}
	now := r.params.Clock.Now()
	if now.Sub(r.startedAt) < r.params.GracePeriod {
		return
	}
	if r.hasRequested && now.Sub(r.lastRequestAt) < r.params.FrameDelay {
		return
	}
	r.generation++
	r.request(now)
	r.armAt(r.generation, now.Add(r.params.FrameDelay))
}

func (r *refreshFrameRequester) armAt(generation int64, at time.Time) {
	delay := at.Sub(r.params.Clock.Now())
	r.params.Queue.PostDelayed(delay, func() {
		r.fire(generation, at)
	})
}

func (r *refreshFrameRequester) fire(generation int64, scheduled time.Time) {
	if !r.running || generation != r.generation {
		return
	}
	r.request(scheduled)
	r.armAt(generation, scheduled.Add(r.params.FrameDelay))
}

func (r *refreshFrameRequester) request(at time.Time) {
	r.hasRequested = true
	r.lastRequestAt = at
	r.params.OnRequest()
}
