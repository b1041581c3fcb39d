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

import "errors"

var (
	// ErrInterpreterNotFound occurs when no interpreter family handles a script type.
	ErrInterpreterNotFound = errors.New("interpreter not found")
	// ErrEngineStopped is reported by futures returned after shutdown started.
	ErrEngineStopped = errors.New("execution engine stopped")
	// ErrUnknownPointType occurs when a point name has an unsupported prefix.
	ErrUnknownPointType = errors.New("unknown point type")
	// ErrPointReadOnly is returned when writing to a point that does not accept writes.
	ErrPointReadOnly = errors.New("point is read-only")
	// ErrPointDisposed is returned when using a point after its last release.
	ErrPointDisposed = errors.New("point is disposed")
)
