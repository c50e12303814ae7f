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
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// ScriptEngine is the embedded-interpreter boundary a Scatter calls into for
// both halves of its policy: which of its named routes a request fans out
// to, and how the per-route results of a multi-route fan-out get folded
// back into the single reply the caller sees. Keeping both decisions behind
// one interface lets a topology express arbitrary routing and reduction
// policy in script, without a Go code change, using the same source.
type ScriptEngine interface {
	// CallScatterRoute returns the subset of allRoutes a request carrying
	// namespace should be sent to.
	CallScatterRoute(namespace []string, allRoutes []string) ([]string, error)

	// CallScatterHandle reduces the results of a multi-route fan-out,
	// aligned index-for-index with routes, into the single Messages
	// batch Scatter returns to its caller.
	CallScatterHandle(routes []string, results []message.Messages, errs []error) (message.Messages, error)
}

// AllRoutes is the default ScriptEngine: every configured route receives
// every request, and a multi-route fan-out reduces to the first successful
// result.
type AllRoutes struct{}

func (AllRoutes) CallScatterRoute(_ []string, allRoutes []string) ([]string, error) {
	return allRoutes, nil
}

func (AllRoutes) CallScatterHandle(routes []string, results []message.Messages, errs []error) (message.Messages, error) {
	return FirstSuccess(routes, results, errs)
}

// LuaScriptEngine evaluates a small embedded script to make both scatter
// decisions, letting a topology express routing and reduction policy (e.g.
// "replicate writes to every region, but only count it a success once the
// primary region acknowledges") without a Go code change. The script must
// define a global function `select_routes(namespace, routes)` returning a
// table of route names to fan out to. It may additionally define
// `handle(routes, ok)` returning a table of route names whose results
// should be merged into the final reply; a script with no `handle` falls
// back to FirstSuccess.
type LuaScriptEngine struct {
	source    string
	hasHandle bool
}

// NewLuaScriptEngine compiles source once at construction time so a syntax
// error, or a script missing select_routes, surfaces as a ConfigError
// during topology build rather than on the first request.
func NewLuaScriptEngine(source string) (*LuaScriptEngine, error) {
	state := lua.NewState()
	defer state.Close()
	if err := state.DoString(source); err != nil {
		return nil, fmt.Errorf("compiling scatter script: %w", err)
	}
	if state.GetGlobal("select_routes") == lua.LNil {
		return nil, fmt.Errorf("scatter script does not define select_routes")
	}
	hasHandle := state.GetGlobal("handle") != lua.LNil
	return &LuaScriptEngine{source: source, hasHandle: hasHandle}, nil
}

func (s *LuaScriptEngine) CallScatterRoute(namespace []string, allRoutes []string) ([]string, error) {
	state := lua.NewState()
	defer state.Close()

	if err := state.DoString(s.source); err != nil {
		return nil, fmt.Errorf("loading scatter script: %w", err)
	}

	nsTable := state.NewTable()
	for i, n := range namespace {
		nsTable.RawSetInt(i+1, lua.LString(n))
	}
	routesTable := state.NewTable()
	for i, r := range allRoutes {
		routesTable.RawSetInt(i+1, lua.LString(r))
	}

	fn := state.GetGlobal("select_routes")
	if err := state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, nsTable, routesTable); err != nil {
		return nil, fmt.Errorf("running select_routes: %w", err)
	}

	ret := state.Get(-1)
	state.Pop(1)
	table, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("select_routes must return a table of route names")
	}

	var selected []string
	table.ForEach(func(_, v lua.LValue) {
		if str, ok := v.(lua.LString); ok {
			selected = append(selected, string(str))
		}
	})
	return selected, nil
}

func (s *LuaScriptEngine) CallScatterHandle(routes []string, results []message.Messages, errs []error) (message.Messages, error) {
	if !s.hasHandle {
		return FirstSuccess(routes, results, errs)
	}

	state := lua.NewState()
	defer state.Close()
	if err := state.DoString(s.source); err != nil {
		return nil, fmt.Errorf("loading scatter script: %w", err)
	}

	routesTable := state.NewTable()
	okTable := state.NewTable()
	for i, r := range routes {
		routesTable.RawSetInt(i+1, lua.LString(r))
		okTable.RawSetInt(i+1, lua.LBool(errs[i] == nil))
	}

	fn := state.GetGlobal("handle")
	if err := state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, routesTable, okTable); err != nil {
		return nil, fmt.Errorf("running handle: %w", err)
	}

	ret := state.Get(-1)
	state.Pop(1)
	table, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("handle must return a table of route names to merge")
	}

	var chosen []string
	table.ForEach(func(_, v lua.LValue) {
		if str, ok := v.(lua.LString); ok {
			chosen = append(chosen, string(str))
		}
	})
	if len(chosen) == 0 {
		return nil, &RoutingError{Reason: "handle script selected no routes to merge"}
	}

	merged := make(message.Messages, 0, len(chosen))
	for _, name := range chosen {
		idx := indexOfRoute(routes, name)
		if idx < 0 {
			return nil, &RoutingError{Reason: fmt.Sprintf("handle script selected unknown route %q", name)}
		}
		if errs[idx] != nil {
			return nil, fmt.Errorf("handle script selected failed route %q: %w", name, errs[idx])
		}
		merged = append(merged, results[idx]...)
	}
	return merged, nil
}

func indexOfRoute(routes []string, name string) int {
	for i, r := range routes {
		if r == name {
			return i
		}
	}
	return -1
}

// namespaceOf is a small helper shared by Scatter so it does not need to
// import message internals directly in scatter.go.
func namespaceOf(m message.Messages) []string { return m.Namespace() }
