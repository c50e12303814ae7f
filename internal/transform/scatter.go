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
	"fmt"
	"sync"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// FirstSuccess reduces a multi-route fan-out by returning the first route
// whose call did not error, or the last error seen if every route failed.
// It is the reduction ScriptEngine.CallScatterHandle falls back to when a
// script defines no handle function.
func FirstSuccess(routes []string, results []message.Messages, errs []error) (message.Messages, error) {
	var lastErr error
	for i := range results {
		if errs[i] == nil {
			return results[i], nil
		}
		lastErr = errs[i]
	}
	return nil, lastErr
}

// Scatter fans a request out to a subset of named destination chains,
// chosen per-request by Engine.CallScatterRoute. A single selected route
// runs inline and its result is returned directly; two or more routes run
// concurrently, each against its own wrapper clone so its cursor starts at
// 0 independent of the parent's position (matching scatter.rs's per-route
// message clone), and are then either reduced via Engine.CallScatterHandle
// (ReduceResults true) or, in fire-and-forget mode (ReduceResults false),
// simply checked for success and discarded.
type Scatter struct {
	Routes        map[string]*TransformChain
	Engine        ScriptEngine
	ReduceResults bool
}

// NewScatter builds a Scatter over the given named destination chains. A
// nil engine defaults to AllRoutes.
func NewScatter(routes map[string]*TransformChain, engine ScriptEngine, reduceResults bool) *Scatter {
	if engine == nil {
		engine = AllRoutes{}
	}
	return &Scatter{Routes: routes, Engine: engine, ReduceResults: reduceResults}
}

func (s *Scatter) Name() string { return "Scatter" }

func (s *Scatter) PrepChain(*TransformChain) error {
	if len(s.Routes) == 0 {
		return NewChainProcessingError("scatter configured with no routes")
	}
	return nil
}

// Clone deep-clones every named route chain (matching the Rust original's
// derived Clone recursing into route_map's TransformChain values) while
// sharing the script engine and reduction mode, neither of which carries
// any per-connection state.
func (s *Scatter) Clone() Transform {
	routes := make(map[string]*TransformChain, len(s.Routes))
	for name, chain := range s.Routes {
		routes[name] = chain.Clone()
	}
	return &Scatter{Routes: routes, Engine: s.Engine, ReduceResults: s.ReduceResults}
}

func (s *Scatter) allRouteNames() []string {
	names := make([]string, 0, len(s.Routes))
	for name := range s.Routes {
		names = append(names, name)
	}
	return names
}

func (s *Scatter) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	selected, err := s.Engine.CallScatterRoute(namespaceOf(wrapper.Message), s.allRouteNames())
	if err != nil {
		return nil, fmt.Errorf("scatter route selection: %w", err)
	}
	if len(selected) == 0 {
		return nil, &RoutingError{Reason: "scatter route selection returned no destinations"}
	}

	chains := make([]*TransformChain, 0, len(selected))
	for _, name := range selected {
		chain, ok := s.Routes[name]
		if !ok {
			return nil, &RoutingError{Reason: fmt.Sprintf("undefined route %q", name)}
		}
		chains = append(chains, chain)
	}

	clientID := clientIdentifier(ctx)

	if len(chains) == 1 {
		sub := wrapper.Clone()
		return chains[0].ProcessRequest(ctx, sub, clientID)
	}

	results := make([]message.Messages, len(chains))
	errs := make([]error, len(chains))
	var wg sync.WaitGroup
	for i, chain := range chains {
		wg.Add(1)
		go func(i int, c *TransformChain) {
			defer wg.Done()
			sub := wrapper.Clone()
			results[i], errs[i] = c.ProcessRequest(ctx, sub, clientID)
		}(i, chain)
	}
	wg.Wait()

	if !s.ReduceResults {
		for i, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("scatter route %q failed: %w", selected[i], err)
			}
		}
		return message.Messages{}, nil
	}

	return s.Engine.CallScatterHandle(selected, results, errs)
}
