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

// PeersRewrite rewrites a configured column's value wherever it appears in
// the response of a query against a configured namespace (e.g. replacing
// the real native_port with the proxy's own listen port in
// system.peers_v2, so clients discover the proxy rather than the real
// cluster). It never touches the request, and it passes a
// BackendProtocolError through byte-identical: a rewrite only ever applies
// to a successful result set.
type PeersRewrite struct {
	namespace []string
	column    string
	from, to  int64
	chain     *TransformChain
}

// NewPeersRewrite rewrites occurrences of column's value equal to from into
// to, only for responses to queries against namespace.
func NewPeersRewrite(namespace []string, column string, from, to int64) *PeersRewrite {
	return &PeersRewrite{namespace: namespace, column: column, from: from, to: to}
}

func (p *PeersRewrite) Name() string { return "PeersRewrite" }

func (p *PeersRewrite) PrepChain(chain *TransformChain) error {
	p.chain = chain
	return nil
}

// Clone is a plain value copy: PeersRewrite carries no per-connection state
// beyond chain, which is left nil and set again by PrepChain.
func (p *PeersRewrite) Clone() Transform {
	return &PeersRewrite{namespace: p.namespace, column: p.column, from: p.from, to: p.to}
}

func (p *PeersRewrite) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	result, err := CallNext(ctx, p.chain, wrapper)
	if err != nil {
		return result, err
	}
	for i := range result {
		resp := result[i].Response
		if resp == nil || resp.Error != nil {
			continue
		}
		if resp.MatchingQuery == nil || !namespaceMatches(resp.MatchingQuery.Namespace, p.namespace) {
			continue
		}
		p.rewrite(resp)
	}
	return result, nil
}

func (p *PeersRewrite) rewrite(resp *message.Response) {
	sel := resp.MatchingQuery.Select
	for r, row := range resp.Result {
		for c := range row {
			var sourceName string
			if c < len(sel) {
				sourceName = sel[c].Name
			} else {
				sourceName = row[c].Name
			}
			if sourceName != p.column {
				continue
			}
			if row[c].Value.Kind == message.KindNull {
				continue
			}
			if row[c].Value.Int == p.from {
				resp.Result[r][c].Value.Int = p.to
			}
		}
	}
}

func namespaceMatches(ns, want []string) bool {
	if len(ns) != len(want) {
		return false
	}
	for i := range ns {
		if ns[i] != want[i] {
			return false
		}
	}
	return true
}
