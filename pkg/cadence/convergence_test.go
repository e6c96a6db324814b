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

	"github.com/stretchr/testify/require"
)

func TestConvergenceEmptyConfiguration(t *testing.T) {
	tr := newConvergenceTracker(0)
	require.False(t, tr.Converged())
}

func TestConvergenceStartsUnconverged(t *testing.T) {
	tr := newConvergenceTracker(2)
	require.False(t, tr.Converged())
}

func TestConvergenceAllLayersConverged(t *testing.T) {
	tr := newConvergenceTracker(2)
	tr.UpdateConvergence(0, true)
	require.False(t, tr.Converged())
	tr.UpdateConvergence(1, true)
	require.True(t, tr.Converged())
}

func TestConvergenceDisabledLayersExcluded(t *testing.T) {
	tr := newConvergenceTracker(2)
	tr.UpdateStatus(1, false)
	tr.UpdateConvergence(0, true)
	require.True(t, tr.Converged())
}

func TestConvergenceReenabledLayerResets(t *testing.T) {
	tr := newConvergenceTracker(2)
	tr.UpdateConvergence(0, true)
	tr.UpdateConvergence(1, true)
	require.True(t, tr.Converged())

	tr.UpdateStatus(1, false)
	tr.UpdateStatus(1, true)
	require.False(t, tr.Converged())
}

func TestConvergenceEnabledStatusRepeatKeepsState(t *testing.T) {
	tr := newConvergenceTracker(1)
	tr.UpdateConvergence(0, true)
	tr.UpdateStatus(0, true)
	require.True(t, tr.Converged())
}

func TestConvergenceResetAffectsEnabledLayers(t *testing.T) {
	tr := newConvergenceTracker(2)
	tr.UpdateStatus(1, false)
	tr.UpdateConvergence(0, true)
	tr.UpdateConvergence(1, true)

	tr.Reset()
	require.False(t, tr.Converged())

	// the disabled layer kept its state and still does not participate
	tr.UpdateConvergence(0, true)
	require.True(t, tr.Converged())
}

func TestConvergenceOutOfRangeFeedbackIgnored(t *testing.T) {
	tr := newConvergenceTracker(1)
	tr.UpdateConvergence(5, true)
	tr.UpdateStatus(5, true)
	require.False(t, tr.Converged())

	tr.UpdateConvergence(0, true)
	require.True(t, tr.Converged())
}
