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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

func TestProcessRequestRunsEveryTransformOnce(t *testing.T) {
	// Every transform in the chain runs exactly once per request.
	c1, c2 := &CounterTransform{}, &CounterTransform{}
	term := &ReturnerTransform{OK: true}
	chain, err := NewTransformChain("test", []Transform{c1, c2, term}, nil)
	if err != nil {
		t.Fatalf("NewTransformChain: %v", err)
	}
	defer chain.Close()

	_, err = chain.Process(context.Background(), message.NewBypassMessages([]byte("x")), "client")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if c1.Count() != 1 || c2.Count() != 1 {
		t.Fatalf("expected each passthrough transform run exactly once, got %d %d", c1.Count(), c2.Count())
	}
}

func TestEmptyChainIsChainProcessingError(t *testing.T) {
	chain, err := NewTransformChain("empty", nil, nil)
	if err != nil {
		t.Fatalf("NewTransformChain: %v", err)
	}
	defer chain.Close()

	_, err = chain.Process(context.Background(), message.NewBypassMessages([]byte("x")), "client")
	if _, ok := err.(*ChainProcessingError); !ok {
		t.Fatalf("expected ChainProcessingError, got %v", err)
	}
}

func TestChainMetricsCountOnce(t *testing.T) {
	// chain_total/chain_failures and transform_total each record exactly
	// one entry per request.
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := &ReturnerTransform{OK: true}
	chainOK, _ := NewTransformChain("ok-chain", []Transform{ok}, m)
	defer chainOK.Close()
	if _, err := chainOK.Process(context.Background(), message.NewBypassMessages([]byte("a")), "client"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fail := &ReturnerTransform{OK: false}
	chainFail, _ := NewTransformChain("fail-chain", []Transform{fail}, m)
	defer chainFail.Close()
	if _, err := chainFail.Process(context.Background(), message.NewBypassMessages([]byte("a")), "client"); err == nil {
		t.Fatalf("expected error")
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range metricFamilies {
		for _, metric := range mf.GetMetric() {
			counts[mf.GetName()] += metric.GetCounter().GetValue()
		}
	}
	if counts["shotover_chain_total"] != 2 {
		t.Fatalf("expected chain_total=2, got %v", counts["shotover_chain_total"])
	}
	if counts["shotover_chain_failures"] != 1 {
		t.Fatalf("expected chain_failures=1, got %v", counts["shotover_chain_failures"])
	}
	if counts["shotover_transform_total"] != 2 {
		t.Fatalf("expected transform_total=2, got %v", counts["shotover_transform_total"])
	}
}

func TestCloneYieldsIndependentLocalSharedGlobal(t *testing.T) {
	// Cloning a chain yields independent per-transform state but identical
	// handles to the shared (global) store.
	global := NewStore()
	term := &ReturnerTransform{OK: true}
	chain, _ := NewTransformChain("base", []Transform{term}, nil)
	chain.UseGlobalStore(global)
	defer chain.Close()

	clone := chain.Clone()
	defer clone.Close()

	chain.LocalStore().Set("k", "from-original")
	chain.LocalStore().Commit()
	clone.LocalStore().Set("k", "from-clone")
	clone.LocalStore().Commit()

	v1, _ := chain.LocalStore().Get("k")
	v2, _ := clone.LocalStore().Get("k")
	if v1 == v2 {
		t.Fatalf("expected independent local stores, both read %v", v1)
	}

	chain.GlobalStore().Set("shared", 1)
	chain.GlobalStore().Commit()
	if v, ok := clone.GlobalStore().Get("shared"); !ok || v != 1 {
		t.Fatalf("expected clone to see writes through the shared global store")
	}
}

func TestCloneDeepCopiesPerTransformState(t *testing.T) {
	// Three independent clones of a chain containing a CounterTransform
	// must end up with three independent counters, not one shared
	// instance, the same way three pool sub-chains built from one
	// template must each count their own traffic.
	counter := &CounterTransform{}
	template, _ := NewTransformChain("base", []Transform{counter, &ReturnerTransform{OK: true}}, nil)
	defer template.Close()

	clones := make([]*TransformChain, 3)
	for i := range clones {
		clones[i] = template.Clone()
		defer clones[i].Close()
	}

	for i, c := range clones {
		for j := 0; j <= i; j++ {
			if _, err := c.Process(context.Background(), message.NewBypassMessages([]byte("x")), "client"); err != nil {
				t.Fatalf("clone %d request %d: %v", i, j, err)
			}
		}
	}

	if counter.Count() != 0 {
		t.Fatalf("template's own counter must stay untouched by clone traffic, got %d", counter.Count())
	}
	for i, c := range clones {
		got := c.transforms[0].(*CounterTransform).Count()
		want := int64(i + 1)
		if got != want {
			t.Fatalf("clone %d counter = %d, want %d (each clone must have its own independent counter)", i, got, want)
		}
	}
}

func TestCallNextPastEndOfChainIsChainProcessingError(t *testing.T) {
	chain, _ := NewTransformChain("short", []Transform{&ReturnerTransform{OK: true}}, nil)
	defer chain.Close()
	wrapper := NewWrapper(message.NewBypassMessages([]byte("x")))
	wrapper.NextTransform = 1 // past the only transform
	_, err := CallNext(context.Background(), chain, wrapper)
	if _, ok := err.(*ChainProcessingError); !ok {
		t.Fatalf("expected ChainProcessingError, got %v", err)
	}
}
