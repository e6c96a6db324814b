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

package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const cadenceNamespace = "framepipe"

var (
	initOnce sync.Once

	timeUntilFirstFrame prometheus.Histogram
	framesForwarded     *prometheus.CounterVec
	framesRepeated      *prometheus.CounterVec
	refreshRequests     prometheus.Counter
)

func initCadenceStats() {
	timeUntilFirstFrame = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cadenceNamespace,
		Subsystem: "cadence",
		Name:      "time_until_first_frame_seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	framesForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cadenceNamespace,
		Subsystem: "cadence",
		Name:      "frames_forwarded",
	}, []string{"mode"})
	framesRepeated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cadenceNamespace,
		Subsystem: "cadence",
		Name:      "frames_repeated",
	}, []string{"kind"})
	refreshRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cadenceNamespace,
		Subsystem: "cadence",
		Name:      "refresh_requests",
	})

	prometheus.MustRegister(timeUntilFirstFrame)
	prometheus.MustRegister(framesForwarded)
	prometheus.MustRegister(framesRepeated)
	prometheus.MustRegister(refreshRequests)
}

func RecordTimeUntilFirstFrame(d time.Duration) {
	initOnce.Do(initCadenceStats)
	timeUntilFirstFrame.Observe(d.Seconds())
}

// RecordFrameForwarded counts a frame delivered to the sink, mode is
// "passthrough" or "decoupled".
func RecordFrameForwarded(mode string) {
	initOnce.Do(initCadenceStats)
	framesForwarded.WithLabelValues(mode).Inc()
}

// RecordFrameRepeated counts a re-delivery, kind is "short" or "idle".
func RecordFrameRepeated(kind string) {
	initOnce.Do(initCadenceStats)
	framesRepeated.WithLabelValues(kind).Inc()
}

func RecordRefreshRequest() {
	initOnce.Do(initCadenceStats)
	refreshRequests.Inc()
}
