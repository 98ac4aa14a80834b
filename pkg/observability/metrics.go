// Copyright 2025 Plansight
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

// Package observability exposes the metrics sink the pipeline reports
// LLM usage and stage latencies to.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink receives usage and latency telemetry from the pipeline.
type MetricsSink interface {
	// RecordLLMCall logs one completed LLM invocation.
	RecordLLMCall(provider, model string, tokensIn, tokensOut int, costUSD float64, latencyMS int64)

	// RecordEmbedding logs one embedding batch.
	RecordEmbedding(model string, texts int, costUSD float64, latencyMS int64)

	// RecordStage logs one pipeline stage duration.
	RecordStage(stage string, latencyMS int64)
}

// NopSink discards all telemetry.
type NopSink struct{}

func (NopSink) RecordLLMCall(string, string, int, int, float64, int64) {}
func (NopSink) RecordEmbedding(string, int, float64, int64)            {}
func (NopSink) RecordStage(string, int64)                              {}

// PrometheusSink exports telemetry as prometheus metrics.
type PrometheusSink struct {
	llmCalls     *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	llmCost      *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
	embedBatches *prometheus.CounterVec
	embedCost    *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
}

// NewPrometheusSink creates a sink registered against reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "takeoff_llm_calls_total",
			Help: "Completed LLM invocations.",
		}, []string{"provider", "model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "takeoff_llm_tokens_total",
			Help: "Tokens consumed by LLM invocations.",
		}, []string{"provider", "model", "direction"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "takeoff_llm_cost_usd_total",
			Help: "Estimated LLM spend in USD.",
		}, []string{"provider", "model"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "takeoff_llm_latency_seconds",
			Help:    "LLM call latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider", "model"}),
		embedBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "takeoff_embedding_batches_total",
			Help: "Embedding batches processed.",
		}, []string{"model"}),
		embedCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "takeoff_embedding_cost_usd_total",
			Help: "Estimated embedding spend in USD.",
		}, []string{"model"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "takeoff_stage_latency_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
	}

	reg.MustRegister(s.llmCalls, s.llmTokens, s.llmCost, s.llmLatency,
		s.embedBatches, s.embedCost, s.stageLatency)
	return s
}

func (s *PrometheusSink) RecordLLMCall(provider, model string, tokensIn, tokensOut int, costUSD float64, latencyMS int64) {
	s.llmCalls.WithLabelValues(provider, model).Inc()
	s.llmTokens.WithLabelValues(provider, model, "input").Add(float64(tokensIn))
	s.llmTokens.WithLabelValues(provider, model, "output").Add(float64(tokensOut))
	s.llmCost.WithLabelValues(provider, model).Add(costUSD)
	s.llmLatency.WithLabelValues(provider, model).Observe(float64(latencyMS) / 1000)
}

func (s *PrometheusSink) RecordEmbedding(model string, texts int, costUSD float64, latencyMS int64) {
	s.embedBatches.WithLabelValues(model).Inc()
	s.embedCost.WithLabelValues(model).Add(costUSD)
}

func (s *PrometheusSink) RecordStage(stage string, latencyMS int64) {
	s.stageLatency.WithLabelValues(stage).Observe(float64(latencyMS) / 1000)
}

// Ensure implementations satisfy MetricsSink.
var (
	_ MetricsSink = NopSink{}
	_ MetricsSink = (*PrometheusSink)(nil)
)
