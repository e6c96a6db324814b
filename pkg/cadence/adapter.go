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
	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/framepipe/cadence/pkg/config"
	"github.com/framepipe/cadence/pkg/logger"
	"github.com/framepipe/cadence/pkg/telemetry/prometheus"
	"github.com/framepipe/cadence/pkg/utils"
)

// Callback is the sink receiving scheduled deliveries. Ownership of the frame
// transfers to the sink only for the duration of the call; sinks that need
// the frame longer must copy it.
type Callback interface {
	// OnFrame delivers a frame. droppedPreviousFrame reports that at least
	// one earlier frame was superseded since the last delivery.
	OnFrame(deliveryTime time.Time, droppedPreviousFrame bool, frame VideoFrame)

	// OnDiscardedFrame reports a frame the capture source discarded.
	OnDiscardedFrame()

	// RequestRefreshFrame asks the capture source for a fresh frame.
	RequestRefreshFrame()
}

// FrameCadenceAdapter sits between an irregular capture source and a
// fixed-cadence consumer. In passthrough mode frames forward as they arrive;
// in decoupled mode delivery runs on a repeat/idle timer chain gated by
// per-layer quality convergence.
//
// All entry points may be invoked from any goroutine; they serialize onto the
// adapter's task queue. Close guarantees no callback fires afterwards.
type FrameCadenceAdapter interface {
	Initialize(callback Callback)

	OnFrame(frame VideoFrame)
	OnDiscardedFrame()

	OnConstraintsChanged(constraints Constraints)
	SetDecoupledModeEnabled(params *DecoupledModeParams)
	UpdateVideoSourceRestriction(maxFPS *float64)

	UpdateLayerStatus(spatialIndex int, enabled bool)
	UpdateLayerQualityConvergence(spatialIndex int, converged bool)
	ProcessKeyFrameRequest()

	UpdateFrameRate()
	GetInputFrameRateFps() float64

	Close()
}

type FrameCadenceAdapterParams struct {
	Queue  *utils.TaskQueue
	Clock  clock.Clock
	Config config.CadenceConfig

	Logger logger.Logger
}

type frameCadenceAdapter struct {
	params FrameCadenceAdapterParams

	done core.Fuse

	// frames posted but not yet picked up by a queue turn
	framesScheduled atomic.Int32

	inputFrameRate atomic.Float64

	// fields below are owned by the task queue
	callback         Callback
	rateTracker      *RateTracker
	constraints      *Constraints
	decoupledParams  *DecoupledModeParams
	restrictedMaxFPS *float64
	scheduler        *zeroHertzScheduler
	collapsed        bool
}

func NewFrameCadenceAdapter(params FrameCadenceAdapterParams) FrameCadenceAdapter {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &frameCadenceAdapter{
		params:      params,
		done:        core.NewFuse(),
		rateTracker: NewRateTracker(params.Config.FrameRateWindow),
	}
}

func (a *frameCadenceAdapter) Initialize(callback Callback) {
	a.postTask(func() {
		a.callback = callback
	})
}

func (a *frameCadenceAdapter) OnFrame(frame VideoFrame) {
	postTime := a.params.Clock.Now()
	a.framesScheduled.Inc()
	a.postTask(func() {
		a.onFrameOnQueue(postTime, frame)
	})
}

func (a *frameCadenceAdapter) onFrameOnQueue(postTime time.Time, frame VideoFrame) {
	last := a.framesScheduled.Dec() == 0

	if a.scheduler != nil {
		// the scheduler consumes every frame, bursts are held in its frame
		// queue rather than collapsed
		a.collapsed = false
		a.scheduler.onFrame(postTime, frame)
		return
	}

	if !last {
		// a newer frame is already queued behind us, let it carry the delivery
		a.collapsed = true
		return
	}

	dropped := a.collapsed
	a.collapsed = false
	if a.callback != nil {
		prometheus.RecordFrameForwarded("passthrough")
		a.callback.OnFrame(postTime, dropped, frame)
	}
}

func (a *frameCadenceAdapter) OnDiscardedFrame() {
	a.postTask(func() {
		if a.callback != nil {
			a.callback.OnDiscardedFrame()
		}
		if a.scheduler != nil {
			a.scheduler.onDiscardedFrame()
		}
	})
}

func (a *frameCadenceAdapter) OnConstraintsChanged(constraints Constraints) {
	a.params.Logger.Debugw("constraints changed", "minFPS", constraints.MinFPS, "maxFPS", constraints.MaxFPS)
	a.postTask(func() {
		wasActive := a.scheduler != nil
		a.constraints = &constraints
		if a.restrictedMaxFPS != nil && constraints.MaxFPS < *a.restrictedMaxFPS {
			// the new ceiling is below the restriction, which makes it moot
			a.restrictedMaxFPS = nil
		}
		a.reconfigureOnQueue(wasActive)
	})
}

func (a *frameCadenceAdapter) SetDecoupledModeEnabled(params *DecoupledModeParams) {
	a.postTask(func() {
		wasActive := a.scheduler != nil
		if params != nil {
			p := *params
			a.decoupledParams = &p
		} else {
			a.decoupledParams = nil
		}
		a.reconfigureOnQueue(wasActive)
	})
}

func (a *frameCadenceAdapter) UpdateVideoSourceRestriction(maxFPS *float64) {
	a.postTask(func() {
		if maxFPS != nil {
			v := *maxFPS
			a.restrictedMaxFPS = &v
		} else {
			a.restrictedMaxFPS = nil
		}
		if a.scheduler != nil {
			a.scheduler.updateVideoSourceRestriction(a.restrictedMaxFPSValue())
		}
	})
}

func (a *frameCadenceAdapter) UpdateLayerStatus(spatialIndex int, enabled bool) {
	a.postTask(func() {
		if a.scheduler != nil {
			a.scheduler.updateLayerStatus(spatialIndex, enabled)
		}
	})
}

func (a *frameCadenceAdapter) UpdateLayerQualityConvergence(spatialIndex int, converged bool) {
	a.postTask(func() {
		if a.scheduler != nil {
			a.scheduler.updateLayerQualityConvergence(spatialIndex, converged)
		}
	})
}

func (a *frameCadenceAdapter) ProcessKeyFrameRequest() {
	a.postTask(func() {
		if a.scheduler != nil {
			a.scheduler.processKeyFrameRequest()
		}
	})
}

func (a *frameCadenceAdapter) UpdateFrameRate() {
	now := a.params.Clock.Now()
	a.postTask(func() {
		// the rate tracker follows input regardless of mode so the estimate
		// is warm when decoupled mode deactivates
		a.rateTracker.Update(1, now)
		if a.scheduler != nil {
			a.inputFrameRate.Store(a.scheduler.maxFPS())
		} else {
			a.inputFrameRate.Store(a.rateTracker.Rate(now))
		}
	})
}

// GetInputFrameRateFps is a snapshot read of the value last computed on the
// task queue.
func (a *frameCadenceAdapter) GetInputFrameRateFps() float64 {
	return a.inputFrameRate.Load()
}

func (a *frameCadenceAdapter) Close() {
	a.done.Break()
}

// reconfigureOnQueue selects the active mode. Decoupled scheduling engages
// only when allowed by configuration, requested by the source and constrained
// to a finite max rate with an unconstrained min rate.
func (a *frameCadenceAdapter) reconfigureOnQueue(wasActive bool) {
	isActive := a.params.Config.DecoupledMode &&
		a.decoupledParams != nil &&
		a.constraints != nil &&
		a.constraints.MinFPS == 0 &&
		a.constraints.MaxFPS > 0

	if !isActive {
		if wasActive {
			a.params.Logger.Infow("decoupled mode deactivated")
			a.scheduler.stop()
			a.scheduler = nil
		}
		return
	}

	maxFPS := a.constraints.MaxFPS
	if !wasActive || a.scheduler.maxFPS() != maxFPS {
		// (re)build the scheduler; the repeat chain resumes on the next frame
		if a.scheduler != nil {
			a.scheduler.stop()
		}
		a.params.Logger.Infow("decoupled mode activated", "maxFPS", maxFPS)
		a.scheduler = newZeroHertzScheduler(zeroHertzSchedulerParams{
			Queue:                    a.params.Queue,
			Clock:                    a.params.Clock,
			MaxFPS:                   maxFPS,
			IdleRepeatInterval:       a.params.Config.IdleRepeatInterval,
			RefreshFrameGracePeriods: a.params.Config.RefreshFrameGracePeriods,
			GetSink:                  a.sink,
			IsClosed:                 a.done.IsBroken,
			Logger:                   a.params.Logger,
		})
		a.scheduler.updateVideoSourceRestriction(a.restrictedMaxFPSValue())
	}
	a.scheduler.reconfigure(a.decoupledParamsLayers())
	a.inputFrameRate.Store(maxFPS)
}

func (a *frameCadenceAdapter) decoupledParamsLayers() int {
	if a.decoupledParams == nil {
		return 0
	}
	return a.decoupledParams.NumSpatialLayers
}

func (a *frameCadenceAdapter) restrictedMaxFPSValue() float64 {
	if a.restrictedMaxFPS == nil {
		return 0
	}
	return *a.restrictedMaxFPS
}

// sink returns the callback, or nil once teardown has begun. Every deferred
// effect resolves the sink through here so no callback fires past Close.
func (a *frameCadenceAdapter) sink() Callback {
	if a.done.IsBroken() {
		return nil
	}
	return a.callback
}

func (a *frameCadenceAdapter) postTask(op func()) {
	a.params.Queue.Post(func() {
		if a.done.IsBroken() {
			return
		}
		op()
	})
}
