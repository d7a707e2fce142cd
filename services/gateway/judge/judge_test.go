// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
	"github.com/AleutianAI/veilgate/services/gateway/providers"
)

// =============================================================================
// Test Setup
// =============================================================================

// scriptedCaller answers the reference call and then the judge call,
// recording every request it sees.
type scriptedCaller struct {
	replies  []string
	err      error
	requests []datatypes.ChatRequest
}

func (c *scriptedCaller) Complete(_ context.Context, _ datatypes.APIKeys, req datatypes.ChatRequest) (datatypes.ChatResponse, error) {
	if c.err != nil {
		return datatypes.ChatResponse{}, c.err
	}
	c.requests = append(c.requests, req)
	reply := ""
	if len(c.replies) > 0 {
		reply = c.replies[0]
		c.replies = c.replies[1:]
	}
	return datatypes.ChatResponse{
		ID:    "resp",
		Model: req.Model,
		Choices: []datatypes.Choice{{
			Message:      datatypes.Message{Role: "assistant", Content: reply},
			FinishReason: datatypes.FinishStop,
		}},
	}, nil
}

func userRequest(content string) datatypes.ChatRequest {
	return datatypes.ChatRequest{
		Model:    "gpt-4o",
		Messages: []datatypes.Message{{Role: "user", Content: content}},
	}
}

func assistantResponse(content string) datatypes.ChatResponse {
	return datatypes.ChatResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o",
		Choices: []datatypes.Choice{{
			Message:      datatypes.Message{Role: "assistant", Content: content},
			FinishReason: datatypes.FinishStop,
		}},
	}
}

// =============================================================================
// ParseScore Tests
// =============================================================================

func TestParseScore(t *testing.T) {
	cases := []struct {
		reply string
		want  float64
	}{
		{"0.8", 0.8},
		{"Score: 0.35", 0.35},
		{"1", 1.0},
		{"I'd rate this 0.9 out of 1.0", 0.9},
		{"2.5", 1.0},  // clamped high
		{"-0.3", 0.0}, // clamped low
		{"no number here", 0.0},
		{"", 0.0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseScore(tc.reply), "reply %q", tc.reply)
	}
}

// =============================================================================
// Score Tests
// =============================================================================

// TestScore_CalibratedPrompt verifies the two-call shape: first a reference
// answer from the cheaper model, then a judge call whose few-shot exemplar
// anchors that reference at 0.5.
func TestScore_CalibratedPrompt(t *testing.T) {
	caller := &scriptedCaller{replies: []string{"reference answer", "0.8"}}
	req := userRequest("What is 2+2?")
	resp := assistantResponse("4")

	score, err := Score(context.Background(), caller, datatypes.APIKeys{}, req, resp)
	require.NoError(t, err)
	assert.Equal(t, 0.8, score.Value)

	require.Len(t, caller.requests, 2)

	refReq := caller.requests[0]
	assert.Equal(t, ReferenceModel, refReq.Model)
	assert.Equal(t, req.Messages, refReq.Messages)

	judgeReq := caller.requests[1]
	assert.Equal(t, JudgeModel, judgeReq.Model)
	require.Len(t, judgeReq.Messages, 4)
	assert.Equal(t, "system", judgeReq.Messages[0].Role)
	assert.Equal(t, "user", judgeReq.Messages[1].Role)
	assert.Contains(t, judgeReq.Messages[1].Content, "reference answer")
	assert.Equal(t, "assistant", judgeReq.Messages[2].Role)
	assert.Equal(t, "0.5", judgeReq.Messages[2].Content)
	assert.Equal(t, "user", judgeReq.Messages[3].Role)
	assert.Contains(t, judgeReq.Messages[3].Content, "[user] What is 2+2?")
	assert.True(t, strings.HasSuffix(judgeReq.Messages[3].Content, "Response:\n4"))
}

func TestScore_UnusableReplyScoresZero(t *testing.T) {
	caller := &scriptedCaller{replies: []string{"reference answer", "I decline to judge"}}

	score, err := Score(context.Background(), caller, datatypes.APIKeys{},
		userRequest("hi"), assistantResponse("hello"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Value)
}

func TestScore_CallerFailure(t *testing.T) {
	caller := &scriptedCaller{err: errors.New("no route")}

	_, err := Score(context.Background(), caller, datatypes.APIKeys{},
		userRequest("hi"), assistantResponse("hello"))
	assert.ErrorIs(t, err, ErrJudge)
}

// =============================================================================
// ScoreOp Tests
// =============================================================================

func TestScoreOp_Evaluate(t *testing.T) {
	caller := &scriptedCaller{replies: []string{"reference answer", "0.6"}}
	env := providers.EnvWith(graph.NewEnv(nil), caller)

	node := graph.New(&ScoreOp{},
		graph.NewConst(datatypes.APIKeys{OpenAI: "sk-oa"}),
		graph.NewConst(userRequest("hi")),
		graph.NewConst(assistantResponse("hello")),
	)

	value, err := graph.Evaluate(context.Background(), node, env)
	require.NoError(t, err)

	score, err := graph.As[datatypes.Score](value)
	require.NoError(t, err)
	assert.Equal(t, 0.6, score.Value)
}

func TestScoreOp_MissingDispatcher(t *testing.T) {
	node := graph.New(&ScoreOp{},
		graph.NewConst(datatypes.APIKeys{}),
		graph.NewConst(userRequest("hi")),
		graph.NewConst(assistantResponse("hello")),
	)

	_, err := graph.Evaluate(context.Background(), node, graph.NewEnv(nil))
	assert.Error(t, err)
}
