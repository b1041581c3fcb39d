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

package engine

import "sync"

// PendingSet records which compiled scripts have a queued invocation that has
// not started yet. At most one such invocation exists per script: a burst of
// triggers collapses into a single run that sees the freshest point values.
//
// PendingSet 记录已排队但尚未开始执行的脚本，每个脚本最多只有一个待执行调用。
type PendingSet struct {
	scheduled sync.Map
}

// NewPendingSet creates an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{}
}

// MarkScheduled inserts script if absent.
// It returns true if this call inserted it, i.e. the caller should submit.
func (p *PendingSet) MarkScheduled(script *CompiledScript) bool {
	_, loaded := p.scheduled.LoadOrStore(script, struct{}{})
	return !loaded
}

// ClearScheduled removes script so that it may be queued again.
// The worker calls it as soon as the script's task starts.
func (p *PendingSet) ClearScheduled(script *CompiledScript) {
	p.scheduled.Delete(script)
}

// IsScheduled reports whether script has a queued, not yet started invocation.
func (p *PendingSet) IsScheduled(script *CompiledScript) bool {
	_, ok := p.scheduled.Load(script)
	return ok
}
