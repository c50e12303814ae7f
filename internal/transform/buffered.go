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
	"log"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// DefaultBufferDepth is the default bounded queue depth for a BufferedChain.
// A buffered chain fronts a single serialized backend connection rather than
// a high-throughput coalescing lane, so a small queue is enough to smooth
// out bursts without building up unbounded latency.
const DefaultBufferDepth = 5

// bufferedJob is one unit of work handed to the worker goroutine: the
// wrapper to run, the client identifier for chain_latency's client label,
// and an optional reply channel the caller is waiting on.
type bufferedJob struct {
	ctx      context.Context
	wrap     *Wrapper
	clientID string
	reply    chan bufferedResult // nil for fire-and-forget
}

type bufferedResult struct {
	messages message.Messages
	err      error
}

// BufferedChain runs a single underlying TransformChain on a dedicated
// worker goroutine, serializing every request through one FIFO queue. This
// gives the chain single-writer semantics (useful ahead of a
// non-concurrency-safe terminal transform) at the cost of queueing delay.
// It runs the same single-goroutine, bounded-channel worker loop shape used
// elsewhere in this package for serializing work onto one lane.
type BufferedChain struct {
	chain *TransformChain
	in    chan bufferedJob

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBufferedChain starts the worker goroutine over chain with a queue of
// depth capacity (DefaultBufferDepth if capacity <= 0).
func NewBufferedChain(chain *TransformChain, capacity int) *BufferedChain {
	if capacity <= 0 {
		capacity = DefaultBufferDepth
	}
	b := &BufferedChain{
		chain:  chain,
		in:     make(chan bufferedJob, capacity),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *BufferedChain) run() {
	defer close(b.doneCh)
	for {
		select {
		case job := <-b.in:
			result, err := b.chain.ProcessRequest(job.ctx, job.wrap, job.clientID)
			if job.reply == nil {
				continue
			}
			// Never block the worker on a caller that stopped waiting
			// (e.g. its own context deadline fired first): a dropped
			// receiver must not be fatal to the chain.
			select {
			case job.reply <- bufferedResult{messages: result, err: err}:
			default:
				log.Printf("buffered chain %s: reply dropped, receiver gone", b.chain.Name())
			}
		case <-b.stopCh:
			return
		}
	}
}

// ProcessRequest enqueues wrapper and blocks until the worker has processed
// it or ctx is done, whichever comes first. Timeout enforcement is the
// caller's responsibility via ctx (e.g. context.WithTimeout): the worker
// itself never times out a job once it has started running it, so an
// expired caller context does not cancel in-flight backend work.
func (b *BufferedChain) ProcessRequest(ctx context.Context, wrapper *Wrapper, clientID string) (message.Messages, error) {
	reply := make(chan bufferedResult, 1)
	job := bufferedJob{ctx: ctx, wrap: wrapper, clientID: clientID, reply: reply}

	select {
	case b.in <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.messages, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessRequestNoWait enqueues wrapper for processing without waiting for
// or returning its result. Unlike ProcessRequest, a full queue does not
// hand ctx.Err() back to the caller: the caller awaits capacity the same as
// any other sender, and only ctx's own cancellation aborts the enqueue.
// This is the chain engine's backpressure primitive for fire-and-forget
// work (e.g. Tee's side publish to its topic), where callers care that
// the request runs, not that it has finished running.
func (b *BufferedChain) ProcessRequestNoWait(ctx context.Context, wrapper *Wrapper, clientID string) error {
	job := bufferedJob{ctx: ctx, wrap: wrapper, clientID: clientID, reply: nil}
	select {
	case b.in <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker goroutine after it drains any job already taken
// off the queue. Jobs still sitting in the queue are abandoned.
func (b *BufferedChain) Close() {
	close(b.stopCh)
	<-b.doneCh
}
