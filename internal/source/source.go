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

// Package source implements the listener side of the topology: accepting
// client connections (or, for an Mpsc source, draining a named topic) and
// feeding each request into the chain the topology bound it to. Wire
// parsing is out of scope here; sources only ever carry opaque Bypass
// frames or whatever a topic already produced.
package source

import (
	"context"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/topic"
	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/transform"
)

// Handle is returned by Instantiate. Closing it gracefully terminates the
// source's accept loop or topic-drain loop and waits for in-flight work
// spawned by it to finish.
type Handle interface {
	Close() error
}

// Source is the contract the topology builder invokes once per
// source_to_chain_mapping entry: bind a configured listener to chain,
// handing out topics to whichever variant needs them (Mpsc reads its rx
// from here; Cassandra/Tcp never touch topics at all).
type Source interface {
	Instantiate(ctx context.Context, chain *transform.TransformChain, topics *topic.Holder) (Handle, error)
}
