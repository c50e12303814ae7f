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
	"time"

	"golang.org/x/time/rate"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
	"github.com/yuzhouchen-instaclustr/shotover-proxy/pkg/vsa"
)

// throttleState is the bookkeeping collective to every per-connection clone
// of one RequestThrottling: the token buckets are keyed by logical client
// identifier, not by physical connection, so every clone of the same
// configured transform must consult and refill the same map through the
// same mutex and the same single refill goroutine.
type throttleState struct {
	capacity     int64
	refillAmount int64
	refillEvery  time.Duration

	mu      sync.Mutex
	buckets map[string]*vsa.VSA

	limiter *rate.Limiter
	stopCh  chan struct{}
}

// RequestThrottling admits or rejects requests per client using a VSA as a
// token bucket: scalar holds the burst capacity, vector holds tokens
// currently consumed, and Available() is the headroom left this window.
// A background goroutine, paced by a rate.Limiter the same way
// core/worker.go paces its commit cycle, periodically returns consumed
// tokens to the bucket.
type RequestThrottling struct {
	state *throttleState
	chain *TransformChain
}

// NewRequestThrottling builds a throttle admitting up to capacity requests
// per client before refill, returning refillAmount tokens every
// refillEvery.
func NewRequestThrottling(capacity, refillAmount int64, refillEvery time.Duration) *RequestThrottling {
	s := &throttleState{
		capacity:     capacity,
		refillAmount: refillAmount,
		refillEvery:  refillEvery,
		buckets:      make(map[string]*vsa.VSA),
		limiter:      rate.NewLimiter(rate.Every(refillEvery), 1),
		stopCh:       make(chan struct{}),
	}
	go s.refillLoop()
	return &RequestThrottling{state: s}
}

func (t *RequestThrottling) Name() string { return "RequestThrottling" }

func (t *RequestThrottling) PrepChain(chain *TransformChain) error {
	t.chain = chain
	return nil
}

// Clone shares the throttle's buckets, mutex and refill goroutine across
// every per-connection clone: throttling is keyed by logical client
// identity, collective state, not per-physical-connection state, and a
// second refill goroutine per clone would double-refill every bucket.
func (t *RequestThrottling) Clone() Transform { return &RequestThrottling{state: t.state} }

func (s *throttleState) bucketFor(client string) *vsa.VSA {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[client]
	if !ok {
		b = vsa.New(s.capacity)
		s.buckets[client] = b
	}
	return b
}

func (t *RequestThrottling) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	client := clientIdentifier(ctx)
	bucket := t.state.bucketFor(client)

	if !bucket.TryConsume(1) {
		return nil, &Overloaded{Reason: "request throttled for client " + client}
	}
	return CallNext(ctx, t.chain, wrapper)
}

// refillLoop wakes up every refillEvery (paced by the same rate.Limiter
// every tick must wait on, so a burst of manual Wait callers elsewhere
// would share the pacing) and returns refillAmount tokens to every
// client's bucket, floored at zero consumed.
func (s *throttleState) refillLoop() {
	ticker := time.NewTicker(s.refillEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.limiter.Wait(context.Background())
			s.refillAll()
		case <-s.stopCh:
			return
		}
	}
}

func (s *throttleState) refillAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buckets {
		_, vector := b.State()
		if vector <= 0 {
			continue
		}
		give := s.refillAmount
		if give > vector {
			give = vector
		}
		b.Update(-give)
	}
}

// Close stops the background refill goroutine shared by every clone of this
// throttle. It must only be called once the whole transform (not a single
// connection's clone) is being torn down.
func (t *RequestThrottling) Close() { close(t.state.stopCh) }

type clientIDKey struct{}

// WithClientIdentifier returns a context carrying the client identity used
// to key throttle buckets and the chain_latency client metric label.
func WithClientIdentifier(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

func clientIdentifier(ctx context.Context) string {
	if id, ok := ctx.Value(clientIDKey{}).(string); ok && id != "" {
		return id
	}
	return "unknown"
}
