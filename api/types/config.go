/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"math"
	"time"

	"github.com/rulego/pvscript/utils/pool"
)

// DefaultShutdownTimeout bounds how long an engine waits for its worker to exit.
const DefaultShutdownTimeout = 10 * time.Second

// Pool is the goroutine pool used to deliver point events off the caller's goroutine.
type Pool interface {
	// Submit hands a task to the pool. It returns an error if the pool is full or stopped.
	Submit(task func()) error
	// Release stops the pool.
	Release()
}

// MqttConfig configures the shared MQTT connection used by mqtt:// points.
type MqttConfig struct {
	// Server broker address, e.g. tcp://127.0.0.1:1883. Empty disables mqtt:// points.
	Server   string
	Username string
	Password string
	// ClientID defaults to a random id.
	ClientID string
	QOS      uint8
	// MaxReconnectInterval defaults to 60s.
	MaxReconnectInterval time.Duration
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

// Config defines the configuration shared by interpreters, engines and point pools.
type Config struct {
	// Logger is the logging interface, defaulting to `DefaultLogger()`.
	Logger Logger
	// Debug enables verbose scheduling output: skipped duplicates,
	// submissions after shutdown and per-trigger point dumps.
	Debug bool
	// ScriptMaxExecutionTime bounds a single script run. 0 means unlimited.
	ScriptMaxExecutionTime time.Duration
	// ShutdownTimeout bounds how long an engine waits for a running script
	// to observe interruption. 0 uses DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
	// Pool delivers initial point values to newly added listeners.
	// If nil, a goroutine is started per delivery.
	Pool Pool
	// Properties are global macros visible to every widget, e.g. ${S}.
	// Widget macros take precedence.
	Properties map[string]string
	// Udf registers Go functions and script snippets callable from scripts.
	// Use RegisterUdf to scope an entry to one script type.
	Udf map[string]interface{}
	// Mqtt configures mqtt:// points.
	Mqtt MqttConfig
	// BaseDir resolves relative script paths when the widget runtime has no own directory.
	BaseDir string
}

// RegisterUdf registers a custom function. Function names can be repeated for different script types.
func (c *Config) RegisterUdf(name string, value interface{}) {
	if c.Udf == nil {
		c.Udf = make(map[string]interface{})
	}
	if script, ok := value.(Script); ok {
		name = script.Type + ScriptFuncSeparator + name
	}
	c.Udf[name] = value
}

// GetShutdownTimeout returns ShutdownTimeout or its default.
func (c Config) GetShutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}
	return c.ShutdownTimeout
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		Logger:          DefaultLogger(),
		ShutdownTimeout: DefaultShutdownTimeout,
		Properties:      make(map[string]string),
	}
	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}

// DefaultPool provides a default goroutine pool.
func DefaultPool() Pool {
	wp := &pool.WorkerPool{MaxWorkersCount: math.MaxInt32}
	wp.Start()
	return wp
}
