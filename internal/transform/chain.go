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
	"time"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// storeRefreshInterval is how often a chain's background goroutine commits
// its pending Store writes into the readable snapshot.
const storeRefreshInterval = 50 * time.Millisecond

// TransformChain is an ordered, named list of Transforms plus the
// chain-local key/value Store they can use to pass state between
// themselves across requests. One TransformChain is built per topology
// chain entry; per-connection use goes through Clone, which gives each
// connection its own copy of every transform.
type TransformChain struct {
	name       string
	transforms []Transform
	metrics    *Metrics

	local  *Store
	global *Store // nil unless shared explicitly (e.g. by Pool across its sub-chains)

	stopCh chan struct{}
}

// NewTransformChain builds a chain from an ordered transform list and calls
// PrepChain on each before the chain ever processes a request; the first
// PrepChain error aborts the build.
func NewTransformChain(name string, transforms []Transform, metrics *Metrics) (*TransformChain, error) {
	c := &TransformChain{
		name:       name,
		transforms: transforms,
		metrics:    metrics,
		local:      NewStore(),
		stopCh:     make(chan struct{}),
	}
	for _, t := range transforms {
		if err := t.PrepChain(c); err != nil {
			return nil, err
		}
	}
	go c.refreshLoop()
	return c, nil
}

// Name returns the chain's configured name, used in chain_* metric labels.
func (c *TransformChain) Name() string { return c.name }

// LocalStore returns the chain's own key/value snapshot store.
func (c *TransformChain) LocalStore() *Store { return c.local }

// UseGlobalStore points this chain at a shared Store instead of its own
// local one, e.g. when Pool wants every sub-chain consulting the same
// store. It must be called before the chain processes any request.
func (c *TransformChain) UseGlobalStore(s *Store) { c.global = s }

// GlobalStore returns the shared global store if one was set via
// UseGlobalStore, otherwise the chain's own local store.
func (c *TransformChain) GlobalStore() *Store {
	if c.global != nil {
		return c.global
	}
	return c.local
}

func (c *TransformChain) refreshLoop() {
	ticker := time.NewTicker(storeRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.local.Commit()
		case <-c.stopCh:
			return
		}
	}
}

// Close stops the chain's background store-refresh goroutine. It does not
// close any topic channels the chain's transforms may hold.
func (c *TransformChain) Close() {
	close(c.stopCh)
}

// Clone returns a new chain with its own local store, background refresh
// goroutine, and its own deep copy of every transform (via Transform.Clone),
// but the same global store reference as this chain. Each transform decides
// for itself what "deep copy" means: per-connection-only state starts fresh,
// while state collective to the whole transform (e.g. a pool's member list)
// is carried forward by reference so every clone still observes it. This is
// what makes it safe to hand one TransformChain instance to N accepted
// connections via N independent Clone calls.
func (c *TransformChain) Clone() *TransformChain {
	transforms := make([]Transform, len(c.transforms))
	for i, t := range c.transforms {
		transforms[i] = t.Clone()
	}
	clone := &TransformChain{
		name:       c.name,
		transforms: transforms,
		metrics:    c.metrics,
		local:      NewStore(),
		global:     c.global,
		stopCh:     make(chan struct{}),
	}
	for _, t := range transforms {
		if err := t.PrepChain(clone); err != nil {
			// PrepChain already validated successfully once against the
			// template; a clone failing the identical check would mean a
			// transform's PrepChain is not idempotent, a bug in that
			// transform, not a condition callers can recover from here.
			panic("transform: PrepChain failed on a chain clone: " + err.Error())
		}
	}
	go clone.refreshLoop()
	return clone
}

// ProcessRequest runs wrapper through the chain starting at its current
// cursor (0 for a freshly built wrapper) and records chain_total,
// chain_failures and chain_latency{chain,client}. clientID identifies the
// calling connection for the chain_latency client label, and becomes the
// ctx client identifier only when ctx does not already carry one; an empty
// chain is a ChainProcessingError, never a silent no-op passthrough.
func (c *TransformChain) ProcessRequest(ctx context.Context, wrapper *Wrapper, clientID string) (message.Messages, error) {
	if len(c.transforms) == 0 {
		return nil, NewChainProcessingError("chain " + c.name + " has no transforms")
	}
	idx := wrapper.NextTransform
	if idx >= len(c.transforms) {
		return nil, NewChainProcessingError("cursor past the end of the chain")
	}
	if clientID != "" {
		if _, ok := ctx.Value(clientIDKey{}).(string); !ok {
			ctx = WithClientIdentifier(ctx, clientID)
		}
	}
	start := time.Now()
	wrapper.NextTransform = idx + 1
	result, err := c.instrumented(ctx, c.transforms[idx], wrapper)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.m.chainTotal.WithLabelValues(c.name).Inc()
		c.metrics.m.chainLatency.WithLabelValues(c.name, clientID).Observe(elapsed.Seconds())
		if err != nil {
			c.metrics.m.chainFailures.WithLabelValues(c.name).Inc()
		}
	}
	return result, err
}

// Process is a convenience wrapper building a fresh Wrapper from m and
// running it through ProcessRequest under the given client identifier.
func (c *TransformChain) Process(ctx context.Context, m message.Messages, clientID string) (message.Messages, error) {
	return c.ProcessRequest(ctx, NewWrapper(m), clientID)
}
