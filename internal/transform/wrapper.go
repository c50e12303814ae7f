// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package transform

import "github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"

// Wrapper is the envelope a chain threads through its transforms. Each
// transform reads Message, optionally calls CallNext to recurse into the
// remainder of the chain, and returns its own result upward. NextTransform
// is the cursor: it names the index of the transform that should run next.
type Wrapper struct {
	Message message.Messages

	// NextTransform is the index, within the owning chain's transform
	// slice, of the transform CallNext will invoke next.
	NextTransform int

	// Modified is set by a transform that rewrote Message in a way later
	// transforms (and metrics) should be aware of.
	Modified bool

	// Clock counts how many times this wrapper has been reset and
	// resubmitted to a chain (e.g. by Scatter cloning one wrapper per
	// route). It has no effect on execution; it exists for diagnostics.
	Clock uint32
}

// NewWrapper builds a Wrapper positioned at the start of a chain.
func NewWrapper(m message.Messages) *Wrapper {
	return &Wrapper{Message: m, NextTransform: 0}
}

// Reset rewinds the cursor to the start of the chain and bumps Clock, in
// place on this wrapper.
func (w *Wrapper) Reset() {
	w.NextTransform = 0
	w.Clock++
}

// Clone produces an independent wrapper carrying the same message batch,
// positioned at the start of the chain. Scatter uses this so each route
// gets its own cursor rather than sharing the parent's.
func (w *Wrapper) Clone() *Wrapper {
	return &Wrapper{Message: w.Message, NextTransform: 0, Clock: w.Clock + 1}
}
