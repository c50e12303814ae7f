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

package source

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/topic"
	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/transform"
)

// MpscSource drains a named topic's receiving end and runs each message
// that arrives on it through the bound chain. It is the asynchronous
// counterpart to a client-facing listener: whatever fed the topic (usually
// a Tee elsewhere in the topology) is this source's "client". Grounded in
// original_source's async_chain/mpsc_chan topology fixture, where a Kafka
// destination chain is fed purely by an Mpsc source rather than a direct
// client connection.
type MpscSource struct {
	TopicName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMpscSource builds a source that will drain topicName's rx once
// Instantiate is called.
func NewMpscSource(topicName string) *MpscSource {
	return &MpscSource{TopicName: topicName}
}

func (s *MpscSource) Instantiate(ctx context.Context, chain *transform.TransformChain, topics *topic.Holder) (Handle, error) {
	rx, ok := topics.GetRx(s.TopicName)
	if !ok {
		return nil, fmt.Errorf("mpsc source: topic %q not available (already claimed or undeclared)", s.TopicName)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.drain(runCtx, rx, chain)
	return s, nil
}

func (s *MpscSource) drain(ctx context.Context, rx <-chan message.Messages, chain *transform.TransformChain) {
	defer s.wg.Done()
	clientID := "topic:" + s.TopicName
	for {
		select {
		case m, ok := <-rx:
			if !ok {
				return
			}
			if _, err := chain.Process(ctx, m, clientID); err != nil {
				log.Printf("mpsc source %s: chain error: %v", s.TopicName, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops draining the topic. The topic's tx side may still be held
// by other transforms (e.g. a Tee); Close never closes the channel itself,
// only this source's consumption of it.
func (s *MpscSource) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}
