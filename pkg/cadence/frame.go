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
)

// VideoFrame is the unit passed through the scheduler. The payload is opaque
// and never inspected or mutated. A zero CaptureTime or ReferenceTime means
// the timestamp is unset; unset timestamps are propagated as-is on repeats.
type VideoFrame struct {
	Buffer any

	CaptureTime   time.Time
	ReferenceTime time.Time
}

// Constraints are the consumer-provided frame rate bounds. MaxFPS bounds the
// short-repeat cadence in decoupled mode and pins the reported input rate.
type Constraints struct {
	MinFPS float64
	MaxFPS float64
}

// DecoupledModeParams enables decoupled (zero-hertz) scheduling.
type DecoupledModeParams struct {
	NumSpatialLayers int
}

func frameDelay(maxFPS float64) time.Duration {
	if maxFPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / maxFPS)
}
