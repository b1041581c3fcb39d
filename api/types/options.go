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
	"time"
)

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithDebug enables verbose scheduling output.
func WithDebug(debug bool) Option {
	return func(c *Config) error {
		c.Debug = debug
		return nil
	}
}

// WithScriptMaxExecutionTime is an option that sets the max execution time of one script run.
func WithScriptMaxExecutionTime(scriptMaxExecutionTime time.Duration) Option {
	return func(c *Config) error {
		c.ScriptMaxExecutionTime = scriptMaxExecutionTime
		return nil
	}
}

// WithShutdownTimeout sets how long an engine waits for its worker on shutdown.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.ShutdownTimeout = timeout
		return nil
	}
}

// WithPool is an option that sets the pool of the Config.
func WithPool(pool Pool) Option {
	return func(c *Config) error {
		c.Pool = pool
		return nil
	}
}

// WithDefaultPool starts a default worker pool.
func WithDefaultPool() Option {
	return func(c *Config) error {
		c.Pool = DefaultPool()
		return nil
	}
}

// WithProperties adds global macros.
func WithProperties(properties map[string]string) Option {
	return func(c *Config) error {
		if c.Properties == nil {
			c.Properties = make(map[string]string)
		}
		for k, v := range properties {
			c.Properties[k] = v
		}
		return nil
	}
}

// WithUdf registers a function or script snippet visible to scripts.
func WithUdf(name string, value interface{}) Option {
	return func(c *Config) error {
		c.RegisterUdf(name, value)
		return nil
	}
}

// WithMqtt configures mqtt:// points.
func WithMqtt(mqtt MqttConfig) Option {
	return func(c *Config) error {
		c.Mqtt = mqtt
		return nil
	}
}

// WithBaseDir sets the directory used to resolve relative script paths.
func WithBaseDir(dir string) Option {
	return func(c *Config) error {
		c.BaseDir = dir
		return nil
	}
}
