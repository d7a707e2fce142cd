// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Construction Tests
// =============================================================================

func newTestMetrics(t *testing.T) *GatewayMetrics {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	require.NotNil(t, m)
	return m
}

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordRequest("gpt-4o", 0.5, true)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "veilgate_gateway_requests_total")
	assert.Contains(t, names, "veilgate_gateway_request_duration_seconds")
}

func TestNewMetrics_TwoPrivateRegistries(t *testing.T) {
	// Separate registries must not collide on registration.
	newTestMetrics(t)
	newTestMetrics(t)
}

// =============================================================================
// Recording Tests
// =============================================================================

func TestRecordRequest_StatusLabel(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest("gpt-4o", 0.2, true)
	m.RecordRequest("gpt-4o", 0.3, true)
	m.RecordRequest("gpt-4o", 1.2, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("gpt-4o", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("gpt-4o", "error")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.RequestDurationSeconds))
}

func TestRecordTokens_Directions(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTokens(5, 2, "gpt-4o")
	m.RecordTokens(10, 4, "gpt-4o")

	assert.Equal(t, 15.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("input", "gpt-4o")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("output", "gpt-4o")))
}

func TestRecordPIIRewrite(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordPIIRewrite("masking", 3)
	m.RecordPIIRewrite("replace", 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PIIRewritesTotal.WithLabelValues("masking")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PIIRewritesTotal.WithLabelValues("replace")))
}

func TestRecordJudgeTask_Outcomes(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordJudgeTask(true)
	m.RecordJudgeTask(true)
	m.RecordJudgeTask(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JudgeTasksTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JudgeTasksTotal.WithLabelValues("abandoned")))
}
