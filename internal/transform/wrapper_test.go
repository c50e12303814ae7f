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

import (
	"testing"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

func TestWrapperResetRewindsCursorAndBumpsClock(t *testing.T) {
	w := NewWrapper(message.NewBypassMessages([]byte("x")))
	w.NextTransform = 3
	w.Reset()
	if w.NextTransform != 0 {
		t.Fatalf("expected cursor rewound to 0, got %d", w.NextTransform)
	}
	if w.Clock != 1 {
		t.Fatalf("expected clock bumped to 1, got %d", w.Clock)
	}
}

func TestWrapperCloneStartsAtZeroIndependentOfParent(t *testing.T) {
	w := NewWrapper(message.NewBypassMessages([]byte("x")))
	w.NextTransform = 5
	clone := w.Clone()
	if clone.NextTransform != 0 {
		t.Fatalf("expected clone cursor 0, got %d", clone.NextTransform)
	}
	if w.NextTransform != 5 {
		t.Fatalf("clone must not mutate the parent wrapper's cursor")
	}
}
