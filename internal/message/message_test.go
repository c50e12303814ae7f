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

package message

import "testing"

func TestMessagesNamespace(t *testing.T) {
	ms := NewQueryMessages(Query{
		QueryString: "SELECT * FROM system.peers_v2",
		QueryType:   Read,
		Namespace:   []string{"system", "peers_v2"},
	})
	ns := ms.Namespace()
	if len(ns) != 2 || ns[0] != "system" || ns[1] != "peers_v2" {
		t.Fatalf("unexpected namespace: %v", ns)
	}
}

func TestMessagesNamespaceEmptyForBypass(t *testing.T) {
	ms := NewBypassMessages([]byte("raw"))
	if ms.Namespace() != nil {
		t.Fatalf("expected nil namespace for bypass-only batch")
	}
	if !ms.IsBypass() {
		t.Fatalf("expected IsBypass true")
	}
}

func TestMessagesIsBypassMixedBatch(t *testing.T) {
	ms := Messages{
		{Bypass: &Bypass{Raw: []byte("x")}},
		{Query: &Query{QueryString: "SELECT 1"}},
	}
	if ms.IsBypass() {
		t.Fatalf("mixed batch must not report IsBypass")
	}
}

func TestBypassRoundTripByteIdentical(t *testing.T) {
	// A Bypass{bytes} passing through a chain of non-mutating transforms
	// emerges with byte-identical payload. The message model's job is to
	// make that trivially true: Bypass never decodes its payload.
	raw := []byte{0xca, 0xfe, 0xba, 0xbe}
	ms := NewBypassMessages(raw)
	out := ms[0].Bypass.Raw
	if len(out) != len(raw) {
		t.Fatalf("length changed")
	}
	for i := range raw {
		if out[i] != raw[i] {
			t.Fatalf("byte %d mutated: %x vs %x", i, out[i], raw[i])
		}
	}
}
