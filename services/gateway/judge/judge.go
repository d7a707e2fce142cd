// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package judge scores a chat exchange with an LLM judge. Scoring is
// calibrated by a few-shot exemplar: the judge first sees an independent
// reference answer to the same request anchored at a fixed score, then the
// exchange under evaluation.
package judge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
	"github.com/AleutianAI/veilgate/services/gateway/providers"
)

const (
	// ReferenceModel produces the anchor answer for calibration.
	ReferenceModel = "gpt-4o-mini"

	// JudgeModel evaluates the exchange.
	JudgeModel = "gpt-4o"

	// anchorScore is the score assigned to the reference answer in the
	// few-shot exemplar.
	anchorScore = 0.5

	systemInstruction = "You are an impartial judge of assistant answers. " +
		"Given a user request and an assistant response, rate how well the " +
		"response answers the request on a scale from 0.0 (useless) to 1.0 " +
		"(perfect). Reply with the numeric score only."
)

// ErrJudge wraps judge failures, including an unusable reference or judge
// model reply.
var ErrJudge = errors.New("judge evaluation failed")

// decimalPattern matches the first decimal number in the judge's reply.
var decimalPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func init() {
	graph.Register("judge.score", func() graph.Op { return &ScoreOp{} })
}

// Score obtains a reference answer to the request, builds the calibrated
// judge prompt, and returns the judge's score clamped to [0, 1]. A reply
// with no number in it scores 0.0.
func Score(ctx context.Context, caller providers.Caller, keys datatypes.APIKeys, req datatypes.ChatRequest, resp datatypes.ChatResponse) (datatypes.Score, error) {
	refReq := req.Clone()
	refReq.Model = ReferenceModel
	refResp, err := caller.Complete(ctx, keys, refReq)
	if err != nil {
		return datatypes.Score{}, fmt.Errorf("%w: reference call: %w", ErrJudge, err)
	}

	judgeReq := datatypes.ChatRequest{
		Model: JudgeModel,
		Messages: []datatypes.Message{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: exchangePrompt(req, refResp)},
			{Role: "assistant", Content: strconv.FormatFloat(anchorScore, 'f', 1, 64)},
			{Role: "user", Content: exchangePrompt(req, resp)},
		},
	}
	judgeResp, err := caller.Complete(ctx, keys, judgeReq)
	if err != nil {
		return datatypes.Score{}, fmt.Errorf("%w: judge call: %w", ErrJudge, err)
	}
	return datatypes.Score{Value: ParseScore(firstContent(judgeResp))}, nil
}

// ParseScore extracts the first decimal number from a judge reply and
// clamps it to [0, 1]. No number means 0.0.
func ParseScore(reply string) float64 {
	match := decimalPattern.FindString(reply)
	if match == "" {
		return 0.0
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0.0
	}
	if value < 0 {
		return 0.0
	}
	if value > 1 {
		return 1.0
	}
	return value
}

// exchangePrompt renders one request/response pair for the judge.
func exchangePrompt(req datatypes.ChatRequest, resp datatypes.ChatResponse) string {
	var b strings.Builder
	b.WriteString("Request:\n")
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	b.WriteString("\nResponse:\n")
	b.WriteString(firstContent(resp))
	return b.String()
}

func firstContent(resp datatypes.ChatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// ScoreOp scores one exchange inside a computation pass. It resolves the
// provider dispatcher from the environment so the op can run deferred on
// the task queue against a fresh environment.
//
// Args: [api keys, request, response]. Yields a datatypes.Score.
type ScoreOp struct{}

// Name implements graph.Op.
func (o *ScoreOp) Name() string { return "judge.score" }

// Call implements graph.Op.
func (o *ScoreOp) Call(ctx context.Context, env *graph.Env, args []any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("judge.score expects 3 args, got %d", len(args))
	}
	caller, err := providers.CallerFrom(env)
	if err != nil {
		return nil, err
	}
	keys, err := graph.As[datatypes.APIKeys](args[0])
	if err != nil {
		return nil, err
	}
	req, err := graph.As[datatypes.ChatRequest](args[1])
	if err != nil {
		return nil, err
	}
	resp, err := graph.As[datatypes.ChatResponse](args[2])
	if err != nil {
		return nil, err
	}
	return Score(ctx, caller, keys, req, resp)
}
