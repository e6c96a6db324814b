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
	"github.com/gammazero/deque"

	"github.com/framepipe/cadence/pkg/logger"
	"github.com/framepipe/cadence/pkg/telemetry/prometheus"
	"github.com/framepipe/cadence/pkg/utils"
)

type zeroHertzSchedulerParams struct {
	Queue                    *utils.TaskQueue
	Clock                    clock.Clock
	MaxFPS                   float64
	IdleRepeatInterval       time.Duration
	RefreshFrameGracePeriods int
	GetSink                  func() Callback
	IsClosed                 func() bool

	Logger logger.Logger
}

// scheduledRepeat tracks the current repeat chain. The chain is anchored on
// absolute scheduled times: origin is the first delivery of the frame being
// repeated and scheduled is the next fire time, both on the schedule grid
// rather than actual execution times, so queueing delay never accumulates.
type scheduledRepeat struct {
	scheduled time.Time
	idle      bool

	origin          time.Time
	originCapture   time.Time
	originReference time.Time
}

// zeroHertzScheduler decouples output cadence from input arrivals: each
// accepted frame is delivered one frame period after entry and then repeated,
// at the short period until quality converges and at the idle heartbeat
// afterwards. All methods run on the task queue.
type zeroHertzScheduler struct {
	params zeroHertzSchedulerParams

	frameDelay           time.Duration
	restrictedFrameDelay time.Duration // 0 when unrestricted

	convergence      *convergenceTracker
	refreshRequester *refreshFrameRequester

	queuedFrames    deque.Deque[VideoFrame]
	currentFrameID  int64
	scheduledRepeat *scheduledRepeat

	startTime      time.Time
	firstFrameSeen bool
	stopped        bool
}

func newZeroHertzScheduler(params zeroHertzSchedulerParams) *zeroHertzScheduler {
	s := &zeroHertzScheduler{
		params:      params,
		frameDelay:  frameDelay(params.MaxFPS),
		convergence: newConvergenceTracker(0),
		startTime:   params.Clock.Now(),
	}
	s.refreshRequester = newRefreshFrameRequester(refreshFrameRequesterParams{
		Queue:       params.Queue,
		Clock:       params.Clock,
		FrameDelay:  s.frameDelay,
		GracePeriod: time.Duration(params.RefreshFrameGracePeriods) * s.frameDelay,
		OnRequest:   s.requestRefreshFrame,
	})
	return s
}

func (s *zeroHertzScheduler) maxFPS() float64 {
	return s.params.MaxFPS
}

// reconfigure resets convergence bookkeeping for the given layer count and
// makes sure a refresh frame gets requested soon unless a frame arrives.
func (s *zeroHertzScheduler) reconfigure(numLayers int) {
	s.params.Logger.Debugw("reconfiguring decoupled scheduler", "numLayers", numLayers, "maxFPS", s.params.MaxFPS)
	s.convergence = newConvergenceTracker(numLayers)
	s.refreshRequester.MaybeStart()
}

// stop invalidates the scheduler. In-flight timer tasks become no-ops.
func (s *zeroHertzScheduler) stop() {
	s.stopped = true
	s.currentFrameID++
	s.refreshRequester.Stop()
}

func (s *zeroHertzScheduler) onFrame(postTime time.Time, frame VideoFrame) {
	s.refreshRequester.Stop()
	// frames entering need refinement before quality converges again
	s.convergence.Reset()

	if !s.firstFrameSeen {
		s.firstFrameSeen = true
		prometheus.RecordTimeUntilFirstFrame(postTime.Sub(s.startTime))
	}

	// the frame we were repeating is superseded
	if s.scheduledRepeat != nil {
		s.queuedFrames.PopFront()
	}
	s.queuedFrames.PushBack(frame)
	s.currentFrameID++
	s.scheduledRepeat = nil

	scheduled := postTime.Add(s.frameDelay)
	s.postAt(scheduled, func() {
		s.processOnDelayedCadence(scheduled)
	})
}

func (s *zeroHertzScheduler) onDiscardedFrame() {
	// a discarded frame ending a burst can freeze the last delivered content;
	// start asking for a refresh after a grace period
	s.refreshRequester.MaybeStart()
}

func (s *zeroHertzScheduler) updateLayerStatus(spatialIndex int, enabled bool) {
	s.convergence.UpdateStatus(spatialIndex, enabled)
}

func (s *zeroHertzScheduler) updateLayerQualityConvergence(spatialIndex int, converged bool) {
	s.convergence.UpdateConvergence(spatialIndex, converged)
}

// updateVideoSourceRestriction retunes the non-idle repeat rate. The
// restriction can only slow repeats down, never push them past the
// constraint ceiling. A zero maxFPS removes the restriction.
func (s *zeroHertzScheduler) updateVideoSourceRestriction(maxFPS float64) {
	if maxFPS > 0 {
		s.restrictedFrameDelay = frameDelay(maxFPS)
	} else {
		s.restrictedFrameDelay = 0
	}
}

// processKeyFrameRequest debounces on-demand keyframe requests. The next
// encoded frame will be a keyframe, so convergence always resets. A refresh
// frame is only requested when no frame has ever been accepted; otherwise a
// frame is either imminently due or an idle repeat is pulled in to a short
// repeat now.
func (s *zeroHertzScheduler) processKeyFrameRequest() {
	s.convergence.Reset()

	if s.queuedFrames.Len() == 0 {
		s.refreshRequester.CoalescedRequest()
		return
	}

	// a frame is about to go out shortly, no refresh needed
	if s.scheduledRepeat == nil || !s.scheduledRepeat.idle {
		return
	}
	now := s.params.Clock.Now()
	if s.scheduledRepeat.scheduled.Sub(now) <= s.frameDelay {
		return
	}

	// cancel the idle repeat and restart short repeating from now
	s.currentFrameID++
	s.scheduleRepeat(s.currentFrameID, false, now, s.queuedFrames.Front())
}

// processOnDelayedCadence delivers the frame at the head of the queue. Each
// queued frame has a delivery task of its own, so a burst drains in arrival
// order, one frame per slot; no frame-id check here or later arrivals would
// orphan their predecessors.
func (s *zeroHertzScheduler) processOnDelayedCadence(scheduled time.Time) {
	if s.invalidated() || s.queuedFrames.Len() == 0 {
		return
	}
	frame := s.queuedFrames.Front()

	// with successors pending, this frame needs no repeats of its own
	if s.queuedFrames.Len() > 1 {
		s.queuedFrames.PopFront()
		s.sendFrame(scheduled, frame)
		return
	}

	// arm before delivering so a slow consumer cannot shift the grid
	s.scheduleRepeat(s.currentFrameID, s.convergence.Converged(), scheduled, frame)
	s.sendFrame(scheduled, frame)
}

func (s *zeroHertzScheduler) scheduleRepeat(id int64, idle bool, deliveredAt time.Time, frame VideoFrame) {
	if s.scheduledRepeat == nil {
		s.scheduledRepeat = &scheduledRepeat{
			origin:          deliveredAt,
			originCapture:   frame.CaptureTime,
			originReference: frame.ReferenceTime,
		}
	}
	next := deliveredAt.Add(s.repeatDuration(idle))
	s.scheduledRepeat.scheduled = next
	s.scheduledRepeat.idle = idle

	s.postAt(next, func() {
		s.processRepeatedFrame(id, next)
	})
}

func (s *zeroHertzScheduler) processRepeatedFrame(id int64, scheduled time.Time) {
	if s.invalidated() || id != s.currentFrameID || s.scheduledRepeat == nil || s.queuedFrames.Len() == 0 {
		return
	}

	frame := s.queuedFrames.Front()
	elapsed := scheduled.Sub(s.scheduledRepeat.origin)
	if !s.scheduledRepeat.originCapture.IsZero() {
		frame.CaptureTime = s.scheduledRepeat.originCapture.Add(elapsed)
	}
	if !s.scheduledRepeat.originReference.IsZero() {
		frame.ReferenceTime = s.scheduledRepeat.originReference.Add(elapsed)
	}

	if s.scheduledRepeat.idle {
		prometheus.RecordFrameRepeated("idle")
	} else {
		prometheus.RecordFrameRepeated("short")
	}

	s.scheduleRepeat(id, s.convergence.Converged(), scheduled, frame)
	s.sendFrame(scheduled, frame)
}

func (s *zeroHertzScheduler) invalidated() bool {
	return s.stopped || (s.params.IsClosed != nil && s.params.IsClosed())
}

func (s *zeroHertzScheduler) repeatDuration(idle bool) time.Duration {
	if idle {
		return s.params.IdleRepeatInterval
	}
	if s.restrictedFrameDelay > s.frameDelay {
		return s.restrictedFrameDelay
	}
	return s.frameDelay
}

func (s *zeroHertzScheduler) sendFrame(deliveryTime time.Time, frame VideoFrame) {
	sink := s.params.GetSink()
	if sink == nil {
		return
	}
	prometheus.RecordFrameForwarded("decoupled")
	sink.OnFrame(deliveryTime, false, frame)
}

func (s *zeroHertzScheduler) requestRefreshFrame() {
	sink := s.params.GetSink()
	if sink == nil {
		return
	}
	prometheus.RecordRefreshRequest()
	sink.RequestRefreshFrame()
}

func (s *zeroHertzScheduler) postAt(at time.Time, op func()) {
	delay := at.Sub(s.params.Clock.Now())
	s.params.Queue.PostDelayed(delay, op)
}
