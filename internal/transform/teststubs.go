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
	"sync/atomic"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// ReturnerTransform is a terminal stub that always returns a fixed
// verdict, ok or a ChainProcessingError, without touching a real backend.
// Used to exercise pool balancing and chain-engine tests in isolation.
type ReturnerTransform struct {
	OK bool
}

func (r *ReturnerTransform) Name() string { return "ReturnerTransform" }

func (r *ReturnerTransform) PrepChain(*TransformChain) error { return nil }

func (r *ReturnerTransform) Clone() Transform { return &ReturnerTransform{OK: r.OK} }

func (r *ReturnerTransform) Transform(_ context.Context, wrapper *Wrapper) (message.Messages, error) {
	if !r.OK {
		return nil, NewChainProcessingError("ReturnerTransform configured to fail")
	}
	return message.NewResponseMessages(message.Response{}), nil
}

// CounterTransform is a passthrough transform counting how many times it
// has been invoked, used to verify per-sub-chain processed counts.
type CounterTransform struct {
	count atomic.Int64
	chain *TransformChain
}

func (c *CounterTransform) Name() string { return "CounterTransform" }

func (c *CounterTransform) PrepChain(chain *TransformChain) error {
	c.chain = chain
	return nil
}

func (c *CounterTransform) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	c.count.Add(1)
	return CallNext(ctx, c.chain, wrapper)
}

// Count returns the number of times Transform has run.
func (c *CounterTransform) Count() int64 { return c.count.Load() }

// Clone returns a fresh counter starting at zero: the count is
// per-connection state, not collective bookkeeping, so a pool of N clones
// must end up with N independent counters rather than one shared one.
func (c *CounterTransform) Clone() Transform { return &CounterTransform{} }
