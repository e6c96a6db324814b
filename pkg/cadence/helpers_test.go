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
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/framepipe/cadence/pkg/config"
	"github.com/framepipe/cadence/pkg/utils"
)

type frameEntry struct {
	at      time.Time
	dropped bool
	frame   VideoFrame
}

type testSink struct {
	lock      sync.Mutex
	frames    []frameEntry
	discards  int
	refreshes int
}

func (s *testSink) OnFrame(deliveryTime time.Time, droppedPreviousFrame bool, frame VideoFrame) {
	s.lock.Lock()
	s.frames = append(s.frames, frameEntry{at: deliveryTime, dropped: droppedPreviousFrame, frame: frame})
	s.lock.Unlock()
}

func (s *testSink) OnDiscardedFrame() {
	s.lock.Lock()
	s.discards++
	s.lock.Unlock()
}

func (s *testSink) RequestRefreshFrame() {
	s.lock.Lock()
	s.refreshes++
	s.lock.Unlock()
}

func (s *testSink) frameCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.frames)
}

func (s *testSink) frameAt(i int) frameEntry {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.frames[i]
}

func (s *testSink) lastFrame() frameEntry {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.frames[len(s.frames)-1]
}

func (s *testSink) discardCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.discards
}

func (s *testSink) refreshCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.refreshes
}

// advanceStep keeps every deadline used in these tests on the stepping grid.
const advanceStep = 10 * time.Millisecond

type harness struct {
	t       *testing.T
	mock    *clock.Mock
	queue   *utils.TaskQueue
	sink    *testSink
	adapter FrameCadenceAdapter
}

func newHarness(t *testing.T, conf config.CadenceConfig) *harness {
	mock := clock.NewMock()
	queue := utils.NewTaskQueue(utils.TaskQueueParams{
		Name:  "cadence-test",
		Size:  conf.TaskQueueSize,
		Clock: mock,
	})
	queue.Start()
	t.Cleanup(queue.Stop)

	sink := &testSink{}
	adapter := NewFrameCadenceAdapter(FrameCadenceAdapterParams{
		Queue:  queue,
		Clock:  mock,
		Config: conf,
	})
	adapter.Initialize(sink)
	queue.Sync()
	t.Cleanup(adapter.Close)

	return &harness{
		t:       t,
		mock:    mock,
		queue:   queue,
		sink:    sink,
		adapter: adapter,
	}
}

func newDefaultHarness(t *testing.T) *harness {
	return newHarness(t, config.DefaultCadenceConfig())
}

// advance steps the mock clock forward, draining the task queue after each
// step so timer chains re-arm deterministically.
func (h *harness) advance(d time.Duration) {
	for d > 0 {
		step := advanceStep
		if d < step {
			step = d
		}
		h.mock.Add(step)
		h.queue.Sync()
		d -= step
	}
	h.queue.Sync()
}

// sync runs a single queue turn without moving time, the equivalent of
// advancing by zero.
func (h *harness) sync() {
	h.queue.Sync()
}

// scheduleAt runs fn at the given delay from now while a later advance is in
// progress.
func (h *harness) scheduleAt(delay time.Duration, fn func()) {
	h.mock.AfterFunc(delay, fn)
}

func (h *harness) passFrame() {
	h.adapter.OnFrame(VideoFrame{Buffer: struct{}{}})
}

func (h *harness) passFrameWithTimestamps() VideoFrame {
	now := h.mock.Now()
	frame := VideoFrame{Buffer: struct{}{}, CaptureTime: now, ReferenceTime: now}
	h.adapter.OnFrame(frame)
	return frame
}

// expectFrameEntriesAtDelaysFromNow advances to each delay and requires
// exactly one new delivery reported at that scheduled instant.
func (h *harness) expectFrameEntriesAtDelaysFromNow(delays ...time.Duration) {
	origin := h.mock.Now()
	seen := h.sink.frameCount()
	for _, delay := range delays {
		h.advance(origin.Add(delay).Sub(h.mock.Now()))
		require.Equal(h.t, seen+1, h.sink.frameCount(), "delivery at %v from origin", delay)
		entry := h.sink.lastFrame()
		require.Equal(h.t, origin.Add(delay), entry.at, "delivery time at %v from origin", delay)
		require.False(h.t, entry.dropped)
		seen++
	}
}

func fpsPtr(v float64) *float64 {
	return &v
}
