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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// metrics holds the six named families every transform and chain call is
// measured against. A process registers exactly one instance and shares it
// across every chain built from the topology.
type metrics struct {
	transformTotal    *prometheus.CounterVec
	transformFailures *prometheus.CounterVec
	transformLatency  *prometheus.HistogramVec
	chainTotal        *prometheus.CounterVec
	chainFailures     *prometheus.CounterVec
	chainLatency      *prometheus.HistogramVec
}

// NewMetrics registers the transform/chain metric families against reg and
// returns the handle chains use to instrument themselves. Call it once per
// process; pass the same handle to every TransformChain.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &metrics{
		transformTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shotover_transform_total",
			Help: "Number of times a transform has been executed.",
		}, []string{"transform"}),
		transformFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shotover_transform_failures",
			Help: "Number of times a transform has returned an error.",
		}, []string{"transform"}),
		transformLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "shotover_transform_latency",
			Help: "Latency, in seconds, of a single transform invocation.",
		}, []string{"transform"}),
		chainTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shotover_chain_total",
			Help: "Number of times a chain has processed a request.",
		}, []string{"chain"}),
		chainFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shotover_chain_failures",
			Help: "Number of times a chain's processing of a request has failed.",
		}, []string{"chain"}),
		chainLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "shotover_chain_latency",
			Help: "Latency, in seconds, of a full chain invocation.",
		}, []string{"chain", "client"}),
	}
	reg.MustRegister(
		m.transformTotal, m.transformFailures, m.transformLatency,
		m.chainTotal, m.chainFailures, m.chainLatency,
	)
	return &Metrics{m: m}
}

// Metrics is the process-wide handle passed to every chain at construction.
type Metrics struct{ m *metrics }

// instrumented wraps a single transform invocation with the transform_*
// metric family, covering both normal returns and errors.
func (c *TransformChain) instrumented(ctx context.Context, t Transform, wrapper *Wrapper) (message.Messages, error) {
	name := t.Name()
	start := time.Now()
	result, err := t.Transform(ctx, wrapper)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.m.transformTotal.WithLabelValues(name).Inc()
		c.metrics.m.transformLatency.WithLabelValues(name).Observe(elapsed.Seconds())
		if err != nil {
			c.metrics.m.transformFailures.WithLabelValues(name).Inc()
		}
	}
	return result, err
}
