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
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// kafkaEnvelope is the on-wire JSON shape published for every message.
type kafkaEnvelope struct {
	Key       string `json:"key"`
	Namespace string `json:"namespace,omitempty"`
	Kind      string `json:"kind"`
	Payload   any    `json:"payload"`
}

// KafkaDestination is a terminal sink publishing every PubSubMessage (and,
// when configured, every Response) onto a Kafka topic via franz-go.
type KafkaDestination struct {
	client *kgo.Client
	topic  string
	mirrorResponses bool
}

// NewKafkaDestination dials brokers and prepares to publish onto topic.
func NewKafkaDestination(brokers []string, topic string, mirrorResponses bool) (*KafkaDestination, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("connecting to kafka: %v", err)}
	}
	return &KafkaDestination{client: client, topic: topic, mirrorResponses: mirrorResponses}, nil
}

func (k *KafkaDestination) Name() string { return "KafkaDestination" }

func (k *KafkaDestination) PrepChain(*TransformChain) error { return nil }

// Clone shares the underlying kgo.Client, which is safe for concurrent
// produces from multiple goroutines, across every per-connection clone.
func (k *KafkaDestination) Clone() Transform {
	return &KafkaDestination{client: k.client, topic: k.topic, mirrorResponses: k.mirrorResponses}
}

func (k *KafkaDestination) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	for _, m := range wrapper.Message {
		if m.Query != nil && m.Query.QueryType == message.PubSubMessage {
			if err := k.publish(ctx, "pubsub", m.Query.Namespace, m); err != nil {
				return nil, &UpstreamError{Backend: "kafka", Cause: err}
			}
			continue
		}
		if k.mirrorResponses && m.Response != nil {
			ns := []string{}
			if m.Response.MatchingQuery != nil {
				ns = m.Response.MatchingQuery.Namespace
			}
			if err := k.publish(ctx, "response", ns, m); err != nil {
				return nil, &UpstreamError{Backend: "kafka", Cause: err}
			}
		}
	}
	return wrapper.Message, nil
}

func (k *KafkaDestination) publish(ctx context.Context, kind string, namespace []string, m message.Message) error {
	key := uuid.NewString()
	body, err := json.Marshal(kafkaEnvelope{
		Key:       key,
		Namespace: joinNamespace(namespace),
		Kind:      kind,
		Payload:   m,
	})
	if err != nil {
		return fmt.Errorf("marshaling kafka envelope: %w", err)
	}
	record := &kgo.Record{Topic: k.topic, Key: []byte(key), Value: body}
	result := k.client.ProduceSync(ctx, record)
	return result.FirstErr()
}

func joinNamespace(ns []string) string {
	out := ""
	for i, n := range ns {
		if i > 0 {
			out += "."
		}
		out += n
	}
	return out
}
