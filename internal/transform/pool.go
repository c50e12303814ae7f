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
	"context"
	"sync"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// poolMembers is the bookkeeping collective to every per-connection clone of
// one ConnectionBalanceAndPool: the buffered member chains, the template
// they are built from, and the mutex serializing growth and recycling.
// Every clone of the pool transform shares one poolMembers by pointer; only
// the per-connection active pin (on ConnectionBalanceAndPool itself) differs
// per clone.
type poolMembers struct {
	name     string
	template *TransformChain
	size     int
	global   *Store

	mu      sync.Mutex
	members []*BufferedChain // front = next to recycle, tail = most recently pinned
}

// ConnectionBalanceAndPool balances requests from many concurrent client
// connections across a bounded number of buffered sub-chains built from the
// same template. Unlike a plain per-request rotator, each per-connection
// clone pins exactly one member chain for its lifetime on first use: the
// pool grows lazily (one new buffered member per distinct connection) until
// it reaches its configured size, after which further distinct connections
// recycle the least-recently-pinned member instead of growing further, so
// multiple connections can end up sharing one buffered chain once the pool
// is saturated. Grounded in original_source/load_balance.rs's
// ConnectionBalanceAndPool, whose active_connection/other_connections split
// is exactly this active/poolMembers split.
type ConnectionBalanceAndPool struct {
	shared *poolMembers
	active *BufferedChain // nil until this clone's first request
}

// NewConnectionBalanceAndPool builds an empty pool (no member chains yet)
// that will grow to at most size buffered chains cloned from template, all
// sharing one global Store. A write there by one member's transforms is
// readable by the others only after a Commit on that Store; the members'
// refresh loops commit only their own local stores.
func NewConnectionBalanceAndPool(name string, template *TransformChain, size int) *ConnectionBalanceAndPool {
	if size <= 0 {
		size = 1
	}
	return &ConnectionBalanceAndPool{
		shared: &poolMembers{
			name:     name,
			template: template,
			size:     size,
			global:   NewStore(),
		},
	}
}

// Size returns the number of buffered member chains the pool has built so
// far. It starts at 0 and grows lazily up to the configured size as
// distinct per-connection clones make their first request; at steady state
// under at least `size` concurrent connections, it stays at exactly size.
func (p *ConnectionBalanceAndPool) Size() int {
	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	return len(p.shared.members)
}

// Name identifies the pool transform in metrics and logs.
func (p *ConnectionBalanceAndPool) Name() string { return p.shared.name }

func (p *ConnectionBalanceAndPool) PrepChain(*TransformChain) error { return nil }

// Clone returns a new per-connection view of the same pool: it shares the
// pool's member bookkeeping but starts with no active pin of its own, so
// the new connection acquires (grows or recycles) on its own first request.
func (p *ConnectionBalanceAndPool) Clone() Transform {
	return &ConnectionBalanceAndPool{shared: p.shared}
}

// acquire implements the pool's lazy-growth-then-recycle contract: while the
// pool has not yet reached its configured size, build and append a new
// buffered member cloned from the template; once saturated, pop the
// least-recently-pinned member from the front and push it back to the tail,
// so a member can be pinned by more than one connection once growth stops.
func (p *ConnectionBalanceAndPool) acquire() *BufferedChain {
	s := p.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.members) < s.size {
		clone := s.template.Clone()
		clone.UseGlobalStore(s.global)
		clone.name = s.name
		member := NewBufferedChain(clone, DefaultBufferDepth)
		s.members = append(s.members, member)
		return member
	}

	member := s.members[0]
	s.members = append(s.members[1:], member)
	return member
}

// Transform pins this connection's active member chain on first use (lazy
// growth or recycling per acquire), then always routes through that same
// member for the lifetime of this chain clone. It never calls CallNext: the
// pinned member owns the rest of request handling.
func (p *ConnectionBalanceAndPool) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	if p.active == nil {
		p.active = p.acquire()
	}
	sub := NewWrapper(wrapper.Message)
	return p.active.ProcessRequest(ctx, sub, clientIdentifier(ctx))
}
