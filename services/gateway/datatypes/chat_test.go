// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Validation Tests
// =============================================================================

func validRequest() ChatRequest {
	return ChatRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: "user", Content: "hello"}},
	}
}

func TestChatRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *ChatRequest)
		wantErr bool
	}{
		{"valid", func(r *ChatRequest) {}, false},
		{"all roles accepted", func(r *ChatRequest) {
			r.Messages = []Message{
				{Role: "system", Content: "a"},
				{Role: "user", Content: "b"},
				{Role: "assistant", Content: "c"},
				{Role: "tool", Content: "d"},
			}
		}, false},
		{"unknown role", func(r *ChatRequest) { r.Messages[0].Role = "wizard" }, true},
		{"missing model", func(r *ChatRequest) { r.Model = "" }, true},
		{"no messages", func(r *ChatRequest) { r.Messages = nil }, true},
		{"oversized content", func(r *ChatRequest) {
			r.Messages[0].Content = strings.Repeat("x", MaxMessageContentBytes+1)
		}, true},
		{"content at the byte limit", func(r *ChatRequest) {
			r.Messages[0].Content = strings.Repeat("x", MaxMessageContentBytes)
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// =============================================================================
// Clone Tests
// =============================================================================

func TestChatRequest_CloneIsDeep(t *testing.T) {
	temp := float32(0.7)
	judge := true
	req := validRequest()
	req.Temperature = &temp
	req.Stop = []string{"END"}
	req.LMConfig = &LMConfig{JudgeEvaluation: &judge}

	clone := req.Clone()
	clone.Messages[0].Content = "overwritten"
	clone.Stop[0] = "HALT"
	clone.LMConfig.JudgeEvaluation = nil

	assert.Equal(t, "hello", req.Messages[0].Content)
	assert.Equal(t, "END", req.Stop[0])
	require.NotNil(t, req.LMConfig.JudgeEvaluation)
	assert.True(t, *req.LMConfig.JudgeEvaluation)
}

// =============================================================================
// Response Tests
// =============================================================================

func TestChatResponse_Empty(t *testing.T) {
	assert.True(t, ChatResponse{}.Empty())
	assert.False(t, ChatResponse{Choices: []Choice{{}}}.Empty())
}

// =============================================================================
// LMConfig Tests
// =============================================================================

func TestLMConfig_Merge(t *testing.T) {
	off := false
	on := true
	stored := LMConfig{PIIRemoval: PIIMasking, JudgeEvaluation: &off}

	assert.Equal(t, stored, stored.Merge(nil))

	merged := stored.Merge(&LMConfig{PIIRemoval: PIIReplace, JudgeEvaluation: &on})
	assert.Equal(t, PIIReplace, merged.PIIRemoval)
	assert.True(t, merged.JudgeEnabled())

	// Unset override fields keep the stored values.
	merged = stored.Merge(&LMConfig{JudgeWithPII: &on})
	assert.Equal(t, PIIMasking, merged.PIIRemoval)
	assert.False(t, merged.JudgeEnabled())
	assert.True(t, merged.JudgeSeesPII())
}

func TestLMConfig_JudgeFlags(t *testing.T) {
	on := true
	assert.False(t, LMConfig{}.JudgeEnabled())
	assert.False(t, LMConfig{}.JudgeSeesPII())
	assert.True(t, LMConfig{JudgeEvaluation: &on}.JudgeEnabled())
	assert.True(t, LMConfig{JudgeWithPII: &on}.JudgeSeesPII())
}
