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
	"testing"
	"time"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

func TestRequestThrottlingAdmitsUpToCapacity(t *testing.T) {
	throttle := NewRequestThrottling(50, 10, time.Hour)
	defer throttle.Close()
	chain, _ := NewTransformChain("throttled", []Transform{throttle, &ReturnerTransform{OK: true}}, nil)
	defer chain.Close()

	ctx := WithClientIdentifier(context.Background(), "client-a")
	succeeded := 0
	for i := 0; i < 50; i++ {
		if _, err := chain.Process(ctx, message.NewBypassMessages([]byte("x")), "ignored"); err == nil {
			succeeded++
		}
	}
	if succeeded != 50 {
		t.Fatalf("expected all 50 requests within burst capacity to succeed, got %d", succeeded)
	}

	_, err := chain.Process(ctx, message.NewBypassMessages([]byte("x")), "ignored")
	if _, ok := err.(*Overloaded); !ok {
		t.Fatalf("expected Overloaded once capacity is exhausted, got %v", err)
	}
}

func TestRequestThrottlingRefillsOverTime(t *testing.T) {
	throttle := NewRequestThrottling(5, 5, 20*time.Millisecond)
	defer throttle.Close()
	chain, _ := NewTransformChain("throttled2", []Transform{throttle, &ReturnerTransform{OK: true}}, nil)
	defer chain.Close()

	ctx := WithClientIdentifier(context.Background(), "client-b")
	for i := 0; i < 5; i++ {
		if _, err := chain.Process(ctx, message.NewBypassMessages([]byte("x")), "ignored"); err != nil {
			t.Fatalf("request %d should be within capacity: %v", i, err)
		}
	}
	if _, err := chain.Process(ctx, message.NewBypassMessages([]byte("x")), "ignored"); err == nil {
		t.Fatalf("expected the 6th immediate request to be throttled")
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := chain.Process(ctx, message.NewBypassMessages([]byte("x")), "ignored"); err != nil {
		t.Fatalf("expected a refill to have restored capacity: %v", err)
	}
}

func TestRequestThrottlingIsPerClient(t *testing.T) {
	throttle := NewRequestThrottling(1, 1, time.Hour)
	defer throttle.Close()
	chain, _ := NewTransformChain("throttled3", []Transform{throttle, &ReturnerTransform{OK: true}}, nil)
	defer chain.Close()

	a := WithClientIdentifier(context.Background(), "a")
	b := WithClientIdentifier(context.Background(), "b")

	if _, err := chain.Process(a, message.NewBypassMessages([]byte("x")), "ignored"); err != nil {
		t.Fatalf("client a's first request should succeed: %v", err)
	}
	if _, err := chain.Process(a, message.NewBypassMessages([]byte("x")), "ignored"); err == nil {
		t.Fatalf("client a's second request should be throttled")
	}
	if _, err := chain.Process(b, message.NewBypassMessages([]byte("x")), "ignored"); err != nil {
		t.Fatalf("client b should have its own independent bucket: %v", err)
	}
}
