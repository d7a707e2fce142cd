// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the gateway.
//
// # Description
//
// This package implements Prometheus metrics for monitoring chat-completion
// traffic. Metrics include:
//   - Request counters (by provider, model, status)
//   - Token usage (input/output tokens by model)
//   - Latency histograms (end-to-end request duration)
//   - Judge task counters (completed, abandoned)
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "veilgate"

// Subsystem for gateway metrics
const gatewaySubsystem = "gateway"

// GatewayMetrics holds all Prometheus metrics for chat-completion traffic.
//
// # Description
//
// Provides counters and histograms for monitoring request volume, token
// usage and judge-task health. Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type GatewayMetrics struct {
	// RequestsTotal counts chat-completion requests.
	// Labels: model, status (success, error)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures end-to-end request duration.
	// Labels: model
	RequestDurationSeconds *prometheus.HistogramVec

	// TokensTotal counts tokens processed by direction and model.
	// Labels: direction (input, output), model
	TokensTotal *prometheus.CounterVec

	// PIIRewritesTotal counts messages rewritten by PII mode.
	// Labels: mode (masking, replace)
	PIIRewritesTotal *prometheus.CounterVec

	// JudgeTasksTotal counts judge task outcomes.
	// Labels: outcome (completed, abandoned)
	JudgeTasksTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of GatewayMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *GatewayMetrics

// InitMetrics initializes the default metrics instance against the default
// Prometheus registry. Call once at application startup; a second call
// panics on duplicate registration.
func InitMetrics() *GatewayMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics creates a metrics instance registered on the given registerer.
// Tests pass a private registry to avoid duplicate-registration panics.
func NewMetrics(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)
	return &GatewayMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "requests_total",
				Help:      "Total chat-completion requests by model and status",
			},
			[]string{"model", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end chat-completion duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"model"},
		),

		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "tokens_total",
				Help:      "Total tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),

		PIIRewritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "pii_rewrites_total",
				Help:      "Total messages rewritten by PII handling mode",
			},
			[]string{"mode"},
		),

		JudgeTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "judge_tasks_total",
				Help:      "Total judge task outcomes",
			},
			[]string{"outcome"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records one completed chat-completion request.
func (m *GatewayMetrics) RecordRequest(model string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(model, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(model).Observe(seconds)
}

// RecordTokens records token usage.
func (m *GatewayMetrics) RecordTokens(inputTokens, outputTokens int, model string) {
	m.TokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
}

// RecordPIIRewrite records messages rewritten under one PII mode.
func (m *GatewayMetrics) RecordPIIRewrite(mode string, count int) {
	m.PIIRewritesTotal.WithLabelValues(mode).Add(float64(count))
}

// RecordJudgeTask records a judge task outcome.
func (m *GatewayMetrics) RecordJudgeTask(completed bool) {
	outcome := "completed"
	if !completed {
		outcome = "abandoned"
	}
	m.JudgeTasksTotal.WithLabelValues(outcome).Inc()
}
