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

type layerState struct {
	enabled   bool
	converged bool
}

// convergenceTracker keeps per-spatial-layer quality convergence. Feedback
// for indices beyond the configured layer count is stored but excluded from
// the aggregate, so stale callers can never fault the tracker.
type convergenceTracker struct {
	configured int
	layers     map[int]*layerState
}

func newConvergenceTracker(numLayers int) *convergenceTracker {
	t := &convergenceTracker{
		configured: numLayers,
		layers:     make(map[int]*layerState, numLayers),
	}
	for i := 0; i < numLayers; i++ {
		// newly configured layers start enabled and unconverged
		t.layers[i] = &layerState{enabled: true}
	}
	return t
}

func (t *convergenceTracker) upsert(spatialIndex int) *layerState {
	s := t.layers[spatialIndex]
	if s == nil {
		s = &layerState{}
		t.layers[spatialIndex] = s
	}
	return s
}

func (t *convergenceTracker) UpdateStatus(spatialIndex int, enabled bool) {
	s := t.upsert(spatialIndex)
	if enabled && !s.enabled {
		// a freshly enabled layer has unknown quality
		s.converged = false
	}
	s.enabled = enabled
}

func (t *convergenceTracker) UpdateConvergence(spatialIndex int, converged bool) {
	t.upsert(spatialIndex).converged = converged
}

// Reset marks every enabled layer unconverged. Used on frame entry, keyframe
// requests and reconfiguration, since all of those lead to frames needing
// refinement.
func (t *convergenceTracker) Reset() {
	for _, s := range t.layers {
		if s.enabled {
			s.converged = false
		}
	}
}

// Converged reports the aggregate: a non-empty configured layer set with
// every enabled layer converged. An empty set counts as unconverged to keep
// short repeating until the layer configuration arrives.
func (t *convergenceTracker) Converged() bool {
	if t.configured == 0 {
		return false
	}
	for i := 0; i < t.configured; i++ {
		s := t.layers[i]
		if s == nil {
			return false
		}
		if s.enabled && !s.converged {
			return false
		}
	}
	return true
}
