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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestsRefreshAfterGracePeriod(t *testing.T) {
	h := newDefaultHarness(t)
	h.enableDecoupled(1, 10)

	// grace period is three frame periods
	h.advance(290 * time.Millisecond)
	require.Equal(t, 0, h.sink.refreshCount())

	h.advance(10 * time.Millisecond)
	require.Equal(t, 1, h.sink.refreshCount())
}

func TestRequestsRefreshUntilFrameArrives(t *testing.T) {
	h := newDefaultHarness(t)
	h.enableDecoupled(1, 10)

	// one request at the grace boundary, then one per frame period
	h.advance(time.Second)
	require.Equal(t, 8, h.sink.refreshCount())

	h.passFrame()
	h.advance(time.Second)
	require.Equal(t, 8, h.sink.refreshCount())
}

func TestRequestsRefreshAfterDiscardedFrame(t *testing.T) {
	h := newDefaultHarness(t)
	h.enableDecoupled(1, 10)

	h.passFrame()
	h.advance(time.Second)
	require.Equal(t, 0, h.sink.refreshCount())

	h.adapter.OnDiscardedFrame()
	h.sync()
	h.advance(300 * time.Millisecond)
	require.Equal(t, 1, h.sink.refreshCount())

	h.advance(time.Second)
	require.Equal(t, 11, h.sink.refreshCount())

	h.passFrame()
	h.advance(time.Second)
	require.Equal(t, 11, h.sink.refreshCount())
}

func TestNoRefreshWhenFrameArrivesWithinGrace(t *testing.T) {
	h := newDefaultHarness(t)
	h.enableDecoupled(1, 10)

	h.passFrame()
	h.advance(time.Second)
	h.adapter.OnDiscardedFrame()
	h.sync()

	h.advance(290 * time.Millisecond)
	h.passFrame()
	h.advance(time.Second)

	require.Equal(t, 0, h.sink.refreshCount())
}

func TestKeyFrameRequestBeforeAnyFrame(t *testing.T) {
	h := newDefaultHarness(t)
	h.enableDecoupled(1, 10)

	// within the grace period the request rides the already-armed timer
	h.adapter.ProcessKeyFrameRequest()
	h.sync()
	require.Equal(t, 0, h.sink.refreshCount())

	h.advance(300 * time.Millisecond)
	require.Equal(t, 1, h.sink.refreshCount())

	// a second request right after a periodic one is coalesced away
	h.adapter.ProcessKeyFrameRequest()
	h.sync()
	require.Equal(t, 1, h.sink.refreshCount())
}

func TestKeyFrameRequestWithoutConstraintsIsInert(t *testing.T) {
	h := newDefaultHarness(t)
	h.adapter.SetDecoupledModeEnabled(&DecoupledModeParams{NumSpatialLayers: 1})
	h.sync()

	h.adapter.ProcessKeyFrameRequest()
	h.advance(2 * time.Second)

	require.Equal(t, 0, h.sink.refreshCount())
}

func TestKeyFrameRequestShortlyAfterFrameNeedsNoRefresh(t *testing.T) {
	h := newDefaultHarness(t)
	h.enableDecoupled(1, 10)

	h.passFrame()
	h.sync()
	h.adapter.ProcessKeyFrameRequest()
	h.advance(2 * time.Second)

	require.Equal(t, 0, h.sink.refreshCount())
}

func TestKeyFrameRequestIgnoredWhileShortRepeating(t *testing.T) {
	h := newConvergenceHarness(t, 2)

	h.passFrame()
	h.advance(2 * testPeriod)
	require.Equal(t, 2, h.sink.frameCount())

	// repeats are already running at the full cadence, nothing to do
	h.adapter.ProcessKeyFrameRequest()
	h.sync()
	require.Equal(t, 0, h.sink.refreshCount())

	h.advance(time.Second)
	require.Equal(t, 12, h.sink.frameCount())
	require.Equal(t, 0, h.sink.refreshCount())
}

func TestKeyFrameRequestJustBeforeIdleRepeatIsAbsorbed(t *testing.T) {
	h := newConvergenceHarness(t, 1)

	h.passFrame()
	h.adapter.UpdateLayerQualityConvergence(0, true)
	h.sync()

	// delivery at one period, then an idle repeat armed one second later
	h.advance(time.Second)
	require.Equal(t, 1, h.sink.frameCount())

	// the idle repeat is due within one frame period, let it carry the reset
	h.adapter.ProcessKeyFrameRequest()
	h.sync()
	require.Equal(t, 0, h.sink.refreshCount())

	// convergence was reset, so the idle repeat resumes short repeating
	h.advance(time.Second)
	require.Equal(t, 11, h.sink.frameCount())
}

func TestKeyFrameRequestConvertsIdleRepeatToShort(t *testing.T) {
	h := newConvergenceHarness(t, 1)
	t0 := h.mock.Now()

	h.passFrame()
	h.adapter.UpdateLayerQualityConvergence(0, true)
	h.sync()

	h.advance(2 * testPeriod)
	require.Equal(t, 1, h.sink.frameCount())

	// the idle repeat is still far out; pull it in to the short cadence
	h.adapter.ProcessKeyFrameRequest()
	h.sync()

	h.advance(time.Second)
	require.Equal(t, 11, h.sink.frameCount())
	require.Equal(t, t0.Add(3*testPeriod), h.sink.frameAt(1).at)
	require.Equal(t, 0, h.sink.refreshCount())
}
