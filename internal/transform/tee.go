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
	"log"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/topic"
)

// topicPublisher is the single terminal transform backing a Tee's side
// chain: it publishes the wrapper's message onto tx and returns it
// unchanged. It exists so the publish runs through a BufferedChain's own
// worker and queue instead of being called inline from the main request
// path.
type topicPublisher struct {
	tx chan<- message.Messages
}

func (p *topicPublisher) Name() string { return "topicPublisher" }

func (p *topicPublisher) PrepChain(*TransformChain) error { return nil }

func (p *topicPublisher) Clone() Transform { return &topicPublisher{tx: p.tx} }

func (p *topicPublisher) Transform(_ context.Context, wrapper *Wrapper) (message.Messages, error) {
	topic.TrySend(p.tx, wrapper.Message)
	return wrapper.Message, nil
}

// Tee is a passthrough transform that also publishes a copy of the request
// to a named topic. The publish runs on a dedicated side BufferedChain,
// enqueued via ProcessRequestNoWait: a fire-and-forget caller that discards
// the side chain's result but still waits for queue capacity, never for
// the publish itself to complete. It is an MPSC producer: many Tee
// instances (one per client connection's chain clone) may share the same
// topic's sending end. The main request path always proceeds via CallNext
// regardless of whether the side publish was enqueued.
type Tee struct {
	Topic string
	tx    chan<- message.Messages
	chain *TransformChain
	side  *BufferedChain
}

// NewTee builds a Tee publishing onto tx, which must be the sending end of
// a topic previously registered in the topology's topic.Holder.
func NewTee(topicName string, tx chan<- message.Messages) *Tee {
	return &Tee{Topic: topicName, tx: tx}
}

func (t *Tee) Name() string { return "Tee" }

func (t *Tee) PrepChain(chain *TransformChain) error {
	t.chain = chain
	sideChain, err := NewTransformChain("tee:"+t.Topic, []Transform{&topicPublisher{tx: t.tx}}, nil)
	if err != nil {
		return err
	}
	t.side = NewBufferedChain(sideChain, DefaultBufferDepth)
	return nil
}

// Clone shares the topic's sending end across every per-connection clone
// (it is an MPSC producer built for exactly that); chain and side are left
// nil and rebuilt by PrepChain once the clone is placed into its own chain.
func (t *Tee) Clone() Transform { return &Tee{Topic: t.Topic, tx: t.tx} }

func (t *Tee) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	if err := t.side.ProcessRequestNoWait(ctx, wrapper.Clone(), clientIdentifier(ctx)); err != nil {
		log.Printf("tee %s: side publish not enqueued: %v", t.Topic, err)
	}
	return CallNext(ctx, t.chain, wrapper)
}
