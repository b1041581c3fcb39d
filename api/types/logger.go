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
	"log"
	"os"
)

// Logger is the logging interface used across the runtime.
// Any *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...interface{})
}

// this is a safeguard, breaking on compile time in case
// `log.Logger` does not adhere to our `Logger` interface.
var _ Logger = &log.Logger{}

// DefaultLogger returns a `Logger` implementation writing to stdout.
func DefaultLogger() *log.Logger {
	return log.New(os.Stdout, "", log.LstdFlags)
}

// NewLogger returns custom, or the default logger if custom is nil.
func NewLogger(custom Logger) Logger {
	if custom != nil {
		return custom
	}
	return DefaultLogger()
}

// Debugf prints through the config logger only when debug output is enabled.
// Scheduling chatter such as skipped duplicates goes here.
func (c Config) Debugf(format string, v ...interface{}) {
	if c.Debug && c.Logger != nil {
		c.Logger.Printf(format, v...)
	}
}

// Printf prints through the config logger, falling back to the default logger.
func (c Config) Printf(format string, v ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, v...)
		return
	}
	DefaultLogger().Printf(format, v...)
}
