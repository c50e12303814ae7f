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

package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/source"
	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/topic"
	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/transform"
)

// ConfigError is returned by Build for any reference a topology makes to a
// chain, topic, or source variant that does not resolve, matching
// topology.rs's practice of failing construction rather than starting with
// a half-wired pipeline.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("topology config error: %s", e.Reason)
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// Running is the result of a successful Build: every source's Handle,
// ready to be closed for a graceful shutdown.
type Running struct {
	Handles []source.Handle
	Topics  *topic.Holder
}

// Close closes every source handle in slice order without stopping at a
// failure, and returns the first error encountered (nil if none).
func (r *Running) Close() error {
	var first error
	for _, h := range r.Handles {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build parses a topology YAML document and brings it fully up: topics,
// then every named chain (recursively, for composites that own
// sub-chains), then one running source per source_to_chain_mapping entry.
// This mirrors topology.rs's run_chains order exactly, since a chain that
// references an undeclared topic or a source that references an undeclared
// chain are both configuration mistakes that must fail before anything
// starts accepting connections.
func Build(ctx context.Context, data []byte, metrics *transform.Metrics) (*Running, error) {
	top, err := ParseTopology(data)
	if err != nil {
		return nil, err
	}

	topics := topic.NewHolder(top.NamedTopics)

	chains := make(map[string]*transform.TransformChain, len(top.ChainConfig))
	for name, entries := range top.ChainConfig {
		chain, err := buildChain(name, entries, metrics, topics)
		if err != nil {
			return nil, configErrorf("chain %q: %v", name, err)
		}
		chains[name] = chain
	}

	if len(top.SourceToChainMapping) == 0 {
		return nil, configErrorf("source_to_chain_mapping is empty: topology accepts no connections")
	}

	running := &Running{Topics: topics}
	for sourceName, chainName := range top.SourceToChainMapping {
		srcConfig, ok := top.Sources[sourceName]
		if !ok {
			return nil, configErrorf("source_to_chain_mapping references undeclared source %q", sourceName)
		}
		chain, ok := chains[chainName]
		if !ok {
			return nil, configErrorf("source %q maps to undeclared chain %q", sourceName, chainName)
		}
		src, err := buildSource(srcConfig)
		if err != nil {
			return nil, configErrorf("source %q: %v", sourceName, err)
		}
		handle, err := src.Instantiate(ctx, chain, topics)
		if err != nil {
			_ = running.Close()
			return nil, configErrorf("source %q: instantiate: %v", sourceName, err)
		}
		running.Handles = append(running.Handles, handle)
	}
	return running, nil
}

func buildSource(cfg SourceConfig) (source.Source, error) {
	switch {
	case cfg.Cassandra != nil:
		return source.NewTCPSource(cfg.Cassandra.ListenAddr), nil
	case cfg.Mpsc != nil:
		return source.NewMpscSource(cfg.Mpsc.TopicName), nil
	default:
		return nil, configErrorf("source config names no variant")
	}
}

// buildChain builds a named, top-level TransformChain. Like every chain
// NewTransformChain or Clone returns (including Pool and Scatter
// sub-chains), it runs its own background store-refresh goroutine.
func buildChain(name string, entries []TransformConfig, metrics *transform.Metrics, topics *topic.Holder) (*transform.TransformChain, error) {
	transforms, err := buildTransforms(name, entries, metrics, topics)
	if err != nil {
		return nil, err
	}
	return transform.NewTransformChain(name, transforms, metrics)
}

func buildTransforms(chainName string, entries []TransformConfig, metrics *transform.Metrics, topics *topic.Holder) ([]transform.Transform, error) {
	out := make([]transform.Transform, 0, len(entries))
	for i, entry := range entries {
		t, err := buildTransform(chainName, i, entry, metrics, topics)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func buildTransform(chainName string, index int, cfg TransformConfig, metrics *transform.Metrics, topics *topic.Holder) (transform.Transform, error) {
	switch {
	case cfg.CodecDestination != nil:
		return transform.NewCodecDestination(transform.NewTCPCodec(cfg.CodecDestination.RemoteAddress)), nil

	case cfg.CassandraDestination != nil:
		return transform.NewCassandraDestination(cfg.CassandraDestination.Hosts, cfg.CassandraDestination.Keyspace)

	case cfg.KafkaDestination != nil:
		return transform.NewKafkaDestination(cfg.KafkaDestination.Brokers, cfg.KafkaDestination.Topic, cfg.KafkaDestination.MirrorResponses)

	case cfg.MPSCTee != nil:
		if !topics.Has(cfg.MPSCTee.TopicName) {
			return nil, topic.ErrUnknownTopic{Name: cfg.MPSCTee.TopicName}
		}
		tx, ok := topics.GetTx(cfg.MPSCTee.TopicName)
		if !ok {
			return nil, topic.ErrUnknownTopic{Name: cfg.MPSCTee.TopicName}
		}
		return transform.NewTee(cfg.MPSCTee.TopicName, tx), nil

	case cfg.RedisCache != nil:
		ttl := time.Duration(cfg.RedisCache.TTLSeconds) * time.Second
		return transform.NewRedisCache(cfg.RedisCache.Address, ttl, nil), nil

	case cfg.Protect != nil:
		return transform.NewProtect(context.Background(), cfg.Protect.KeyID, cfg.Protect.Columns)

	case cfg.PeersRewrite != nil:
		return transform.NewPeersRewrite(cfg.PeersRewrite.Namespace, cfg.PeersRewrite.Column, cfg.PeersRewrite.From, cfg.PeersRewrite.To), nil

	case cfg.RequestThrottling != nil:
		refillEvery := time.Duration(cfg.RequestThrottling.RefillEveryMS) * time.Millisecond
		return transform.NewRequestThrottling(cfg.RequestThrottling.Capacity, cfg.RequestThrottling.RefillAmount, refillEvery), nil

	case cfg.ConnectionBalanceAndPool != nil:
		poolName := fmt.Sprintf("%s[%d]:%s", chainName, index, cfg.ConnectionBalanceAndPool.Name)
		sub, err := buildTransforms(poolName, cfg.ConnectionBalanceAndPool.Chain, metrics, topics)
		if err != nil {
			return nil, err
		}
		template, err := transform.NewTransformChain(poolName, sub, metrics)
		if err != nil {
			return nil, err
		}
		return transform.NewConnectionBalanceAndPool(cfg.ConnectionBalanceAndPool.Name, template, cfg.ConnectionBalanceAndPool.Size), nil

	case cfg.Scatter != nil:
		routes := make(map[string]*transform.TransformChain, len(cfg.Scatter.Routes))
		for routeName, routeEntries := range cfg.Scatter.Routes {
			routeChainName := fmt.Sprintf("%s[%d]:%s", chainName, index, routeName)
			routeTransforms, err := buildTransforms(routeChainName, routeEntries, metrics, topics)
			if err != nil {
				return nil, err
			}
			routeChain, err := transform.NewTransformChain(routeChainName, routeTransforms, metrics)
			if err != nil {
				return nil, err
			}
			routes[routeName] = routeChain
		}
		var engine transform.ScriptEngine
		if cfg.Scatter.Script != "" {
			e, err := transform.NewLuaScriptEngine(cfg.Scatter.Script)
			if err != nil {
				return nil, err
			}
			engine = e
		}
		return transform.NewScatter(routes, engine, cfg.Scatter.ReduceResults), nil

	case cfg.Returner != nil:
		return &transform.ReturnerTransform{OK: cfg.Returner.OK}, nil

	default:
		return nil, configErrorf("chain %q entry %d: names no transform variant", chainName, index)
	}
}
