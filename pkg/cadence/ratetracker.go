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
	"math"
	"time"

	"github.com/gammazero/deque"
)

type rateSample struct {
	atMs  int64
	count int64
}

// RateTracker estimates a per-second event rate over a fixed sliding window
// with millisecond resolution. Samples are never retroactively altered; the
// rate is undefined (0) until the tracker has either spanned its full window
// or collected more than one sample.
type RateTracker struct {
	windowMs    int64
	samples     deque.Deque[rateSample]
	accumulated int64
	firstAtMs   int64
}

func NewRateTracker(window time.Duration) *RateTracker {
	if window <= 0 {
		window = time.Second
	}
	return &RateTracker{
		windowMs: window.Milliseconds(),
	}
}

func (r *RateTracker) Update(count int64, now time.Time) {
	nowMs := now.UnixMilli()
	r.eraseOld(nowMs)
	if r.samples.Len() == 0 {
		// a fresh burst of activity anchors a new active window
		r.firstAtMs = nowMs
	}
	r.samples.PushBack(rateSample{atMs: nowMs, count: count})
	r.accumulated += count
}

// Rate returns the windowed rate in events per second, rounded to the
// nearest integer value, or 0 while undefined.
func (r *RateTracker) Rate(now time.Time) float64 {
	nowMs := now.UnixMilli()
	r.eraseOld(nowMs)
	if r.samples.Len() == 0 {
		return 0
	}

	// the active window grows from the burst's first sample and saturates at
	// the configured width; expiring samples do not shrink it back
	activeWindowMs := nowMs - r.firstAtMs + 1
	if activeWindowMs > r.windowMs {
		activeWindowMs = r.windowMs
	}
	if activeWindowMs <= 1 || (r.samples.Len() <= 1 && activeWindowMs < r.windowMs) {
		return 0
	}
	return math.Round(float64(r.accumulated) * 1000 / float64(activeWindowMs))
}

func (r *RateTracker) eraseOld(nowMs int64) {
	for r.samples.Len() > 0 && r.samples.Front().atMs <= nowMs-r.windowMs {
		r.accumulated -= r.samples.PopFront().count
	}
}
