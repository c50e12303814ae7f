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
	"testing"
	"time"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

func TestBufferedChainServesEveryConcurrentRequest(t *testing.T) {
	var mu sync.Mutex
	var order []int

	chain, _ := NewTransformChain("buf", []Transform{&orderRecorder{mu: &mu, order: &order}}, nil)
	defer chain.Close()
	b := NewBufferedChain(chain, 16)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := WithClientIdentifier(context.Background(), "c")
			_, _ = b.ProcessRequest(ctx, NewWrapper(message.NewBypassMessages([]byte{byte(i)})), "c")
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 8 {
		t.Fatalf("expected 8 recorded invocations, got %d", len(order))
	}
}

func TestBufferedChainDroppedReceiverIsNonFatal(t *testing.T) {
	chain, _ := NewTransformChain("buf2", []Transform{&ReturnerTransform{OK: true}}, nil)
	defer chain.Close()
	b := NewBufferedChain(chain, 4)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond) // ensure ctx is already done before enqueue races the worker

	_, err := b.ProcessRequest(ctx, NewWrapper(message.NewBypassMessages([]byte("x"))), "client")
	if err == nil {
		t.Fatalf("expected the already-expired context to surface an error")
	}

	// The worker must still be alive and able to serve a fresh request.
	result, err := b.ProcessRequest(context.Background(), NewWrapper(message.NewBypassMessages([]byte("y"))), "client")
	if err != nil {
		t.Fatalf("worker should survive a dropped receiver: %v", err)
	}
	if result == nil {
		t.Fatalf("expected a result")
	}
}

func TestProcessRequestNoWaitStillExecutesButDiscardsResult(t *testing.T) {
	var mu sync.Mutex
	var order []int

	chain, _ := NewTransformChain("buf3", []Transform{&orderRecorder{mu: &mu, order: &order}}, nil)
	defer chain.Close()
	b := NewBufferedChain(chain, 4)
	defer b.Close()

	if err := b.ProcessRequestNoWait(context.Background(), NewWrapper(message.NewBypassMessages([]byte("x"))), "client"); err != nil {
		t.Fatalf("ProcessRequestNoWait: %v", err)
	}

	// The no-wait call itself returns before the worker necessarily runs
	// the job; use a following ordinary ProcessRequest to know both jobs
	// have drained the queue.
	if _, err := b.ProcessRequest(context.Background(), NewWrapper(message.NewBypassMessages([]byte("y"))), "client"); err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 {
		t.Fatalf("expected the no-wait job to have executed alongside the waited one, got %d invocations", len(order))
	}
}

func TestProcessRequestNoWaitAwaitsCapacityRatherThanDropping(t *testing.T) {
	block := make(chan struct{})
	chain, _ := NewTransformChain("buf4", []Transform{&blockingTransform{release: block}}, nil)
	defer chain.Close()
	b := NewBufferedChain(chain, 1)
	defer b.Close()

	// Fill the one worker slot (taken off the queue immediately and
	// blocked inside blockingTransform) plus the depth-1 queue itself, so
	// a third enqueue attempt has no capacity until something is
	// released.
	if err := b.ProcessRequestNoWait(context.Background(), NewWrapper(message.NewBypassMessages([]byte("a"))), "client"); err != nil {
		t.Fatalf("first ProcessRequestNoWait: %v", err)
	}
	if err := b.ProcessRequestNoWait(context.Background(), NewWrapper(message.NewBypassMessages([]byte("b"))), "client"); err != nil {
		t.Fatalf("second ProcessRequestNoWait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := b.ProcessRequestNoWait(ctx, NewWrapper(message.NewBypassMessages([]byte("c"))), "client"); err == nil {
		t.Fatalf("expected the third no-wait enqueue to await capacity and time out, not succeed immediately")
	}

	close(block)
}

type blockingTransform struct {
	release chan struct{}
}

func (b *blockingTransform) Name() string                    { return "blockingTransform" }
func (b *blockingTransform) PrepChain(*TransformChain) error { return nil }
func (b *blockingTransform) Clone() Transform                { return b }
func (b *blockingTransform) Transform(_ context.Context, _ *Wrapper) (message.Messages, error) {
	<-b.release
	return message.NewResponseMessages(message.Response{}), nil
}

type orderRecorder struct {
	mu    *sync.Mutex
	order *[]int
	n     int
}

func (o *orderRecorder) Name() string                    { return "orderRecorder" }
func (o *orderRecorder) PrepChain(*TransformChain) error { return nil }
func (o *orderRecorder) Clone() Transform                { return o }
func (o *orderRecorder) Transform(_ context.Context, w *Wrapper) (message.Messages, error) {
	o.mu.Lock()
	o.n++
	*o.order = append(*o.order, o.n)
	o.mu.Unlock()
	return message.NewResponseMessages(message.Response{}), nil
}
