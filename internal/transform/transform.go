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

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// Transform is the unit of composition for a chain. Implementations read
// wrapper.Message, do their work, and either return a result directly
// (terminal transforms) or call CallNext(ctx, chain, wrapper) to recurse
// into whatever comes after them.
type Transform interface {
	// Transform executes this step. ctx carries request-scoped deadline
	// and cancellation.
	Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error)

	// Name identifies the transform in metrics and logs.
	Name() string

	// PrepChain is called once, after the chain's full transform slice is
	// known, so a transform can validate its position (e.g. a terminal
	// sink refusing to be anything but last) or cache a reference to
	// chain-local state. Most transforms no-op here.
	PrepChain(chain *TransformChain) error

	// Clone returns an independent copy of this transform for a new
	// per-connection chain instance. Per-connection state (counters,
	// cursors, a dialed backend connection) must not be shared across
	// clones; state collective to the whole transform (a pool's member
	// list, a throttle's token buckets, a shared client) is carried
	// forward by reference so every clone still sees and mutates the
	// same collective state. PrepChain is called again on the clone once
	// it is placed into its own chain.
	Clone() Transform
}

// CallNext advances wrapper's cursor and invokes the next transform in
// chain. Terminal transforms never call this; composite and passthrough
// transforms call it after doing their own work. Calling it past the end
// of the chain is a ChainProcessingError, not a panic: a misconfigured
// topology must fail a request, not the process.
func CallNext(ctx context.Context, chain *TransformChain, wrapper *Wrapper) (message.Messages, error) {
	idx := wrapper.NextTransform
	if idx >= len(chain.transforms) {
		return nil, NewChainProcessingError("call_next invoked past the end of the chain")
	}
	next := chain.transforms[idx]
	wrapper.NextTransform = idx + 1
	return chain.instrumented(ctx, next, wrapper)
}
