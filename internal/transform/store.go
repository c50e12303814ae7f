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
	"sync"
	"sync/atomic"
)

// Store is a single-writer, multi-reader key/value snapshot. Readers never
// block and never see a torn write: Get reads an atomically-swapped map
// snapshot, and Set applies to a pending copy that is published by Commit.
// TransformChain embeds one as its chain-local store; Pool shares one
// global store across every sub-chain it owns, matching chain.rs's split
// between Wrapper-local and chain-global key/value state.
type Store struct {
	snapshot atomic.Pointer[map[string]any]

	mu      sync.Mutex
	pending map[string]any
}

// NewStore returns an empty, ready-to-use Store.
func NewStore() *Store {
	s := &Store{pending: make(map[string]any)}
	empty := map[string]any{}
	s.snapshot.Store(&empty)
	return s
}

// Get reads a value from the most recently committed snapshot. It never
// blocks on a concurrent Set/Commit.
func (s *Store) Get(key string) (any, bool) {
	m := *s.snapshot.Load()
	v, ok := m[key]
	return v, ok
}

// Set stages a value into the pending snapshot. It is not visible to Get
// until the next Commit.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = value
}

// Commit publishes a copy of the pending snapshot atomically, making every
// staged Set visible to subsequent Get calls. A background goroutine (one
// per chain) calls Commit on a short interval so readers stay eventually
// consistent without taking a lock on the hot path.
func (s *Store) Commit() {
	s.mu.Lock()
	next := make(map[string]any, len(s.pending))
	for k, v := range s.pending {
		next[k] = v
	}
	s.mu.Unlock()
	s.snapshot.Store(&next)
}
