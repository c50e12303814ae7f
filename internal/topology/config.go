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

// Package topology parses a topology YAML document and wires it into a
// running set of chains and sources, matching config/topology.rs's
// Topology::new_from_yaml followed by Topology::run_chains.
package topology

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Topology is the deserialized shape of a topology YAML document: named
// sources, named chains, topics shared between them, and the mapping that
// binds each source to the chain it feeds.
type Topology struct {
	Sources              map[string]SourceConfig    `yaml:"sources"`
	ChainConfig          map[string][]TransformConfig `yaml:"chain_config"`
	NamedTopics          []string                   `yaml:"named_topics"`
	SourceToChainMapping map[string]string          `yaml:"source_to_chain_mapping"`
}

// singleKeyVariant decodes node, which must be a one-entry YAML mapping
// (the serde-style internally-tagged-enum-as-map shape used throughout
// original_source's config fixtures), and returns the sole key and the
// node holding its value.
func singleKeyVariant(node *yaml.Node, what string) (string, *yaml.Node, error) {
	if node.Kind != yaml.MappingNode {
		return "", nil, fmt.Errorf("%s: expected a single-key mapping, got %v", what, node.Kind)
	}
	if len(node.Content) != 2 {
		return "", nil, fmt.Errorf("%s: expected exactly one variant key, found %d", what, len(node.Content)/2)
	}
	return node.Content[0].Value, node.Content[1], nil
}

// SourceConfig is a tagged union over the source variants a topology can
// declare. Exactly one of the pointer fields is non-nil after decoding.
type SourceConfig struct {
	Cassandra *CassandraSourceConfig
	Mpsc      *MpscSourceConfig
}

type CassandraSourceConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type MpscSourceConfig struct {
	TopicName string `yaml:"topic_name"`
}

func (s *SourceConfig) UnmarshalYAML(node *yaml.Node) error {
	tag, value, err := singleKeyVariant(node, "source")
	if err != nil {
		return err
	}
	switch tag {
	case "Cassandra", "Tcp":
		var c CassandraSourceConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("source %s: %w", tag, err)
		}
		s.Cassandra = &c
	case "Mpsc":
		var m MpscSourceConfig
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("source Mpsc: %w", err)
		}
		s.Mpsc = &m
	default:
		return fmt.Errorf("source: unknown variant %q", tag)
	}
	return nil
}

// TransformConfig is a tagged union over every transform variant a chain
// entry can name. Exactly one pointer field is non-nil after decoding.
type TransformConfig struct {
	CodecDestination         *CodecDestinationConfig
	CassandraDestination     *CassandraDestinationConfig
	KafkaDestination         *KafkaDestinationConfig
	MPSCTee                  *MPSCTeeConfig
	RedisCache               *RedisCacheConfig
	Protect                  *ProtectConfig
	PeersRewrite             *PeersRewriteConfig
	RequestThrottling        *RequestThrottlingConfig
	ConnectionBalanceAndPool *ConnectionBalanceAndPoolConfig
	Scatter                  *ScatterConfig
	Returner                 *ReturnerConfig
}

type CodecDestinationConfig struct {
	RemoteAddress string `yaml:"remote_address"`
}

type CassandraDestinationConfig struct {
	Hosts    []string `yaml:"hosts"`
	Keyspace string   `yaml:"keyspace"`
}

type KafkaDestinationConfig struct {
	Brokers         []string `yaml:"brokers"`
	Topic           string   `yaml:"topic"`
	MirrorResponses bool     `yaml:"mirror_responses"`
}

type MPSCTeeConfig struct {
	TopicName string `yaml:"topic_name"`
}

type RedisCacheConfig struct {
	Address    string `yaml:"address"`
	TTLSeconds int64  `yaml:"ttl_seconds"`
}

type ProtectConfig struct {
	KeyID   string   `yaml:"key_id"`
	Columns []string `yaml:"columns"`
}

type PeersRewriteConfig struct {
	Namespace []string `yaml:"namespace"`
	Column    string   `yaml:"column"`
	From      int64    `yaml:"from_port"`
	To        int64    `yaml:"to_port"`
}

type RequestThrottlingConfig struct {
	Capacity        int64 `yaml:"capacity"`
	RefillAmount    int64 `yaml:"refill_amount"`
	RefillEveryMS   int64 `yaml:"refill_every_ms"`
}

type ConnectionBalanceAndPoolConfig struct {
	Name  string            `yaml:"name"`
	Size  int               `yaml:"size"`
	Chain []TransformConfig `yaml:"chain"`
}

type ScatterConfig struct {
	Routes        map[string][]TransformConfig `yaml:"routes"`
	Script        string                       `yaml:"script"`
	ReduceResults bool                         `yaml:"reduce_results"`
}

// ReturnerConfig is a test/stub terminal transform that always answers OK
// or an error without reaching any real backend, useful for smoke-testing
// a topology wiring before a real destination is configured.
type ReturnerConfig struct {
	OK bool `yaml:"ok"`
}

func (t *TransformConfig) UnmarshalYAML(node *yaml.Node) error {
	tag, value, err := singleKeyVariant(node, "transform")
	if err != nil {
		return err
	}
	switch tag {
	case "CodecDestination":
		var c CodecDestinationConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform CodecDestination: %w", err)
		}
		t.CodecDestination = &c
	case "CassandraDestination":
		var c CassandraDestinationConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform CassandraDestination: %w", err)
		}
		t.CassandraDestination = &c
	case "KafkaDestination":
		var c KafkaDestinationConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform KafkaDestination: %w", err)
		}
		t.KafkaDestination = &c
	case "MPSCTee":
		var c MPSCTeeConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform MPSCTee: %w", err)
		}
		t.MPSCTee = &c
	case "RedisCache":
		var c RedisCacheConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform RedisCache: %w", err)
		}
		t.RedisCache = &c
	case "Protect":
		var c ProtectConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform Protect: %w", err)
		}
		t.Protect = &c
	case "PeersRewrite":
		var c PeersRewriteConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform PeersRewrite: %w", err)
		}
		t.PeersRewrite = &c
	case "RequestThrottling":
		var c RequestThrottlingConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform RequestThrottling: %w", err)
		}
		t.RequestThrottling = &c
	case "ConnectionBalanceAndPool":
		var c ConnectionBalanceAndPoolConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform ConnectionBalanceAndPool: %w", err)
		}
		t.ConnectionBalanceAndPool = &c
	case "Scatter":
		var c ScatterConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform Scatter: %w", err)
		}
		t.Scatter = &c
	case "Returner":
		var c ReturnerConfig
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("transform Returner: %w", err)
		}
		t.Returner = &c
	default:
		return fmt.Errorf("transform: unknown variant %q", tag)
	}
	return nil
}

// ParseTopology deserializes a topology YAML document.
func ParseTopology(data []byte) (*Topology, error) {
	var top Topology
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	return &top, nil
}
