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

package config

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultIdleRepeatInterval       = time.Second
	DefaultRefreshFrameGracePeriods = 3
	DefaultFrameRateWindow          = time.Second
	DefaultTaskQueueSize            = 256
)

type Config struct {
	Cadence CadenceConfig `yaml:"cadence,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// CadenceConfig carries the capability set resolved once at adapter
// construction: whether decoupled (zero-hertz) scheduling may be used at all,
// plus the tunable periods.
type CadenceConfig struct {
	// allows decoupled mode when the source asks for it
	DecoupledMode bool `yaml:"decoupled_mode"`
	// heartbeat between repeats once quality has converged
	IdleRepeatInterval time.Duration `yaml:"idle_repeat_interval,omitempty"`
	// frame periods without input before refresh requests start
	RefreshFrameGracePeriods int `yaml:"refresh_frame_grace_periods,omitempty"`
	// averaging window for the passthrough input-rate estimate
	FrameRateWindow time.Duration `yaml:"frame_rate_window,omitempty"`
	// capacity of the adapter's serialized task queue
	TaskQueueSize int `yaml:"task_queue_size,omitempty"`
}

type LoggingConfig struct {
	Level       string `yaml:"level,omitempty"`
	Development bool   `yaml:"development,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Cadence: DefaultCadenceConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func DefaultCadenceConfig() CadenceConfig {
	return CadenceConfig{
		DecoupledMode:            true,
		IdleRepeatInterval:       DefaultIdleRepeatInterval,
		RefreshFrameGracePeriods: DefaultRefreshFrameGracePeriods,
		FrameRateWindow:          DefaultFrameRateWindow,
		TaskQueueSize:            DefaultTaskQueueSize,
	}
}

// NewConfig parses a YAML document on top of the defaults.
func NewConfig(confString string) (*Config, error) {
	conf := DefaultConfig()
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.Wrap(err, "could not parse config")
		}
	}
	conf.Cadence.applyDefaults()
	return conf, nil
}

func (c *CadenceConfig) applyDefaults() {
	if c.IdleRepeatInterval <= 0 {
		c.IdleRepeatInterval = DefaultIdleRepeatInterval
	}
	if c.RefreshFrameGracePeriods <= 0 {
		c.RefreshFrameGracePeriods = DefaultRefreshFrameGracePeriods
	}
	if c.FrameRateWindow <= 0 {
		c.FrameRateWindow = DefaultFrameRateWindow
	}
	if c.TaskQueueSize <= 0 {
		c.TaskQueueSize = DefaultTaskQueueSize
	}
}
