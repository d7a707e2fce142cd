// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
)

// openAIModelPrefixes matches the chat-completion families the adapter
// serves.
var openAIModelPrefixes = []string{"gpt-", "chatgpt-", "o1", "o3", "o4"}

// OpenAIAdapter maps generic requests onto the OpenAI chat-completions API
// via the go-openai client.
type OpenAIAdapter struct {
	// baseURL overrides the API endpoint. Empty means the public API.
	baseURL string
	logger  *slog.Logger
}

// NewOpenAIAdapter creates the adapter. baseURL is for test servers and
// self-hosted compatible endpoints; pass "" for api.openai.com.
func NewOpenAIAdapter(baseURL string) *OpenAIAdapter {
	return &OpenAIAdapter{baseURL: baseURL, logger: slog.Default()}
}

// Provider implements Adapter.
func (a *OpenAIAdapter) Provider() string { return "openai" }

// Supports implements Adapter.
func (a *OpenAIAdapter) Supports(model string) bool {
	return supportsPrefix(model, openAIModelPrefixes)
}

// ToProviderRequest implements Adapter.
func (a *OpenAIAdapter) ToProviderRequest(req datatypes.ChatRequest) (any, error) {
	out := openai.ChatCompletionRequest{
		Model: req.Model,
		User:  req.User,
		Stop:  req.Stop,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.N != nil {
		out.N = *req.N
	}
	out.Seed = req.Seed
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}
	if req.Logprobs != nil {
		out.LogProbs = *req.Logprobs
	}
	if req.TopLogprobs != nil {
		out.TopLogProbs = *req.TopLogprobs
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type != "" {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatType(req.ResponseFormat.Type),
		}
	}
	return out, nil
}

// Call implements Adapter. Upstream failures become an empty envelope.
func (a *OpenAIAdapter) Call(ctx context.Context, apiKey string, providerReq any) (any, error) {
	req, ok := providerReq.(openai.ChatCompletionRequest)
	if !ok {
		return nil, fmt.Errorf("openai adapter: unexpected request type %T", providerReq)
	}
	cfg := openai.DefaultConfig(apiKey)
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	client := openai.NewClientWithConfig(cfg)
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		a.logger.Warn("openai call failed",
			slog.String("model", req.Model),
			slog.String("error", errors.Join(ErrUpstream, err).Error()),
		)
		return openai.ChatCompletionResponse{Model: req.Model}, nil
	}
	return resp, nil
}

// ToGenericResponse implements Adapter.
func (a *OpenAIAdapter) ToGenericResponse(providerResp any) (datatypes.ChatResponse, error) {
	resp, ok := providerResp.(openai.ChatCompletionResponse)
	if !ok {
		return datatypes.ChatResponse{}, fmt.Errorf("openai adapter: unexpected response type %T", providerResp)
	}
	if len(resp.Choices) == 0 {
		return errorEnvelope(resp.Model), nil
	}
	out := datatypes.ChatResponse{
		ID:      resp.ID,
		Created: resp.Created,
		Model:   resp.Model,
		Object:  resp.Object,
		Usage: &datatypes.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		choice := datatypes.Choice{
			Index: c.Index,
			Message: datatypes.Message{
				Role:    c.Message.Role,
				Content: c.Message.Content,
			},
			FinishReason: normalizeOpenAIFinish(c.FinishReason),
		}
		if c.LogProbs != nil {
			lp := &datatypes.ChoiceLogprobs{}
			for _, t := range c.LogProbs.Content {
				tok := datatypes.TokenLogprob{Token: t.Token, Logprob: t.LogProb}
				for _, alt := range t.TopLogProbs {
					tok.TopLogprobs = append(tok.TopLogprobs, datatypes.TopLogprob{
						Token:   alt.Token,
						Logprob: alt.LogProb,
					})
				}
				lp.Content = append(lp.Content, tok)
			}
			choice.Logprobs = lp
		}
		out.Choices = append(out.Choices, choice)
	}
	return out, nil
}

func normalizeOpenAIFinish(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonStop:
		return datatypes.FinishStop
	case openai.FinishReasonLength:
		return datatypes.FinishLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return datatypes.FinishToolCalls
	case openai.FinishReasonContentFilter:
		return datatypes.FinishContentFilter
	}
	return string(reason)
}
