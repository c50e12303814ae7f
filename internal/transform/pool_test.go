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

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

func TestPoolGrowsLazilyThenStabilizesAtParallelism(t *testing.T) {
	// A fresh pool has no member chains until a connection actually asks for
	// one; each of the first `size` distinct connections grows the pool by
	// one, and every connection after that recycles an existing member
	// instead of growing past size.
	template, _ := NewTransformChain("pool", []Transform{&ReturnerTransform{OK: true}}, nil)
	defer template.Close()

	pool := NewConnectionBalanceAndPool("pool", template, 3)
	if pool.Size() != 0 {
		t.Fatalf("expected a freshly built pool to have no members yet, got %d", pool.Size())
	}

	conns := make([]*ConnectionBalanceAndPool, 6)
	for i := range conns {
		conns[i] = pool.Clone().(*ConnectionBalanceAndPool)
	}

	for i, c := range conns {
		m := message.NewQueryMessages(message.Query{Namespace: []string{"ks", "t"}})
		if _, err := c.Transform(context.Background(), NewWrapper(m)); err != nil {
			t.Fatalf("connection %d first request failed: %v", i, err)
		}
		want := i + 1
		if want > 3 {
			want = 3
		}
		if pool.Size() != want {
			t.Fatalf("after connection %d's first request, expected pool size %d, got %d", i, want, pool.Size())
		}
	}

	// Further traffic on already-pinned connections must not grow the pool
	// any further.
	for i := 0; i < 90; i++ {
		m := message.NewQueryMessages(message.Query{Namespace: []string{"ks", "t"}})
		c := conns[i%len(conns)]
		if _, err := c.Transform(context.Background(), NewWrapper(m)); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if pool.Size() != 3 {
		t.Fatalf("pool size changed after load: %d", pool.Size())
	}
}

func TestPoolPinsOneMemberPerConnectionForItsLifetime(t *testing.T) {
	counter := &CounterTransform{}
	template, _ := NewTransformChain("pool2", []Transform{counter, &ReturnerTransform{OK: true}}, nil)
	defer template.Close()

	pool := NewConnectionBalanceAndPool("pool2", template, 2)
	connA := pool.Clone().(*ConnectionBalanceAndPool)
	connB := pool.Clone().(*ConnectionBalanceAndPool)

	for i := 0; i < 5; i++ {
		m := message.NewQueryMessages(message.Query{Namespace: []string{"ks", "t"}})
		if _, err := connA.Transform(context.Background(), NewWrapper(m)); err != nil {
			t.Fatalf("connA request %d: %v", i, err)
		}
	}
	m := message.NewQueryMessages(message.Query{Namespace: []string{"ks", "t"}})
	if _, err := connB.Transform(context.Background(), NewWrapper(m)); err != nil {
		t.Fatalf("connB first request: %v", err)
	}

	if connA.active == nil || connB.active == nil {
		t.Fatalf("expected both connections to have pinned an active member")
	}
	if connA.active == connB.active {
		t.Fatalf("expected distinct connections to pin distinct members while the pool has room to grow")
	}
	if pool.Size() != 2 {
		t.Fatalf("expected pool to have grown to exactly 2 members, got %d", pool.Size())
	}
}

func TestPoolRecyclesOldestMemberOnceSaturated(t *testing.T) {
	template, _ := NewTransformChain("pool3", []Transform{&ReturnerTransform{OK: true}}, nil)
	defer template.Close()

	pool := NewConnectionBalanceAndPool("pool3", template, 1)
	connA := pool.Clone().(*ConnectionBalanceAndPool)
	connB := pool.Clone().(*ConnectionBalanceAndPool)

	m := message.NewQueryMessages(message.Query{Namespace: []string{"ks", "t"}})
	if _, err := connA.Transform(context.Background(), NewWrapper(m)); err != nil {
		t.Fatalf("connA request: %v", err)
	}
	m2 := message.NewQueryMessages(message.Query{Namespace: []string{"ks", "t"}})
	if _, err := connB.Transform(context.Background(), NewWrapper(m2)); err != nil {
		t.Fatalf("connB request: %v", err)
	}

	if pool.Size() != 1 {
		t.Fatalf("expected the saturated pool to stay at size 1, got %d", pool.Size())
	}
	if connA.active != connB.active {
		t.Fatalf("expected the single member to be recycled across both connections once the pool is saturated")
	}
}
