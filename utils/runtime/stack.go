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

// Package runtime formats compact stack traces for panic logs.
package runtime

import (
	"fmt"
	"runtime"
	"strings"
)

// maxFrames bounds the frames reported by Stack.
const maxFrames = 32

// Stack 获取堆栈信息
//
// It returns one " file:line function" line per frame of the calling
// goroutine, starting at the caller of Stack. Called from a deferred recover
// the panicking frame is included.
func Stack() string {
	pc := make([]uintptr, maxFrames)
	n := runtime.Callers(2, pc)
	frames := runtime.CallersFrames(pc[:n])

	var build strings.Builder
	for {
		frame, more := frames.Next()
		build.WriteString(fmt.Sprintf(" %s:%d %s\n", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return build.String()
}
