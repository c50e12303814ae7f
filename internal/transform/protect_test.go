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
	"crypto/rand"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// stubKMS is an in-memory stand-in for a live KMS endpoint: it hands back a
// random 32-byte plaintext key and "wraps" it by returning the plaintext
// itself as the ciphertext blob (fine for a test double, never for
// production). Decrypt just echoes the blob back as the plaintext key.
type stubKMS struct{}

func (stubKMS) GenerateDataKey(_ context.Context, _ *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return &kms.GenerateDataKeyOutput{Plaintext: key, CiphertextBlob: key}, nil
}

func (stubKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	return &kms.DecryptOutput{Plaintext: in.CiphertextBlob}, nil
}

func TestProtectRoundTripsConfiguredColumn(t *testing.T) {
	protect := &Protect{client: stubKMS{}, keyID: "test-key", columns: map[string]bool{"ssn": true}}
	echo := &echoWriteAsRead{}
	chain, _ := NewTransformChain("protect", []Transform{protect, echo}, nil)
	defer chain.Close()
	protect.PrepChain(chain)

	q := message.Query{
		QueryType: message.Write,
		Values:    []message.Column{{Name: "ssn", Value: message.Value{Kind: message.KindVarchar, Text: "123-45-6789"}}},
	}
	result, err := chain.Process(context.Background(), message.NewQueryMessages(q), "client")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := result[0].Response.Result[0][0].Value.Text
	if got != "123-45-6789" {
		t.Fatalf("expected decrypted round trip, got %q", got)
	}
}

// echoWriteAsRead is a terminal stub turning a write Query's Values into a
// single-row Response, so Protect's decryptIncoming path has something to
// operate on in the same request.
type echoWriteAsRead struct{ chain *TransformChain }

func (e *echoWriteAsRead) Name() string                    { return "echoWriteAsRead" }
func (e *echoWriteAsRead) PrepChain(chain *TransformChain) error { e.chain = chain; return nil }
func (e *echoWriteAsRead) Clone() Transform                      { return &echoWriteAsRead{} }
func (e *echoWriteAsRead) Transform(_ context.Context, w *Wrapper) (message.Messages, error) {
	q := w.Message[0].Query
	row := make(message.Row, len(q.Values))
	for i, v := range q.Values {
		row[i] = message.Column{Name: v.Name, Value: v.Value}
	}
	return message.Messages{{Response: &message.Response{MatchingQuery: q, Result: []message.Row{row}}}}, nil
}
