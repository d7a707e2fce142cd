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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
)

const defaultMistralBaseURL = "https://api.mistral.ai"

var mistralModelPrefixes = []string{
	"mistral-", "ministral-", "codestral-",
	"open-mistral", "open-mixtral", "pixtral-",
}

// mistralMessage is the wire shape of one chat message.
type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// mistralRequest is the wire shape of a chat-completion request. Note the
// random_seed rename: the generic schema calls this field seed.
type mistralRequest struct {
	Model          string                    `json:"model"`
	Messages       []mistralMessage          `json:"messages"`
	MaxTokens      *int                      `json:"max_tokens,omitempty"`
	N              *int                      `json:"n,omitempty"`
	RandomSeed     *int                      `json:"random_seed,omitempty"`
	Temperature    *float32                  `json:"temperature,omitempty"`
	TopP           *float32                  `json:"top_p,omitempty"`
	Stop           []string                  `json:"stop,omitempty"`
	SafePrompt     *bool                     `json:"safe_prompt,omitempty"`
	ResponseFormat *datatypes.ResponseFormat `json:"response_format,omitempty"`
	Stream         bool                      `json:"stream"`
}

type mistralResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int            `json:"index"`
		Message      mistralMessage `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// MistralAdapter maps generic requests onto the Mistral chat API.
type MistralAdapter struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewMistralAdapter creates the adapter. baseURL is for test servers; pass
// "" for api.mistral.ai.
func NewMistralAdapter(baseURL string) *MistralAdapter {
	if baseURL == "" {
		baseURL = defaultMistralBaseURL
	}
	return &MistralAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  slog.Default(),
	}
}

// Provider implements Adapter.
func (a *MistralAdapter) Provider() string { return "mistral" }

// Supports implements Adapter.
func (a *MistralAdapter) Supports(model string) bool {
	return supportsPrefix(model, mistralModelPrefixes)
}

// ToProviderRequest implements Adapter.
func (a *MistralAdapter) ToProviderRequest(req datatypes.ChatRequest) (any, error) {
	out := mistralRequest{
		Model:          req.Model,
		MaxTokens:      req.MaxTokens,
		N:              req.N,
		RandomSeed:     req.Seed,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		Stop:           req.Stop,
		SafePrompt:     req.SafePrompt,
		ResponseFormat: req.ResponseFormat,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, mistralMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// Call implements Adapter. Upstream failures become an empty envelope.
func (a *MistralAdapter) Call(ctx context.Context, apiKey string, providerReq any) (any, error) {
	req, ok := providerReq.(mistralRequest)
	if !ok {
		return nil, fmt.Errorf("mistral adapter: unexpected request type %T", providerReq)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mistral adapter: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mistral adapter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		a.logger.Warn("mistral call failed",
			slog.String("model", req.Model), slog.Any("error", err))
		return mistralResponse{Model: req.Model}, nil
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("mistral adapter: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		a.logger.Warn("mistral returned non-2xx",
			slog.String("model", req.Model),
			slog.Int("status", httpResp.StatusCode),
			slog.String("body", string(raw)),
		)
		return mistralResponse{Model: req.Model}, nil
	}

	var resp mistralResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		a.logger.Warn("mistral returned unparseable body",
			slog.String("model", req.Model), slog.Any("error", err))
		return mistralResponse{Model: req.Model}, nil
	}
	return resp, nil
}

// ToGenericResponse implements Adapter.
func (a *MistralAdapter) ToGenericResponse(providerResp any) (datatypes.ChatResponse, error) {
	resp, ok := providerResp.(mistralResponse)
	if !ok {
		return datatypes.ChatResponse{}, fmt.Errorf("mistral adapter: unexpected response type %T", providerResp)
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
		out.Choices = append(out.Choices, datatypes.Choice{
			Index: c.Index,
			Message: datatypes.Message{
				Role:    c.Message.Role,
				Content: c.Message.Content,
			},
			FinishReason: normalizeMistralFinish(c.FinishReason),
		})
	}
	return out, nil
}

func normalizeMistralFinish(reason string) string {
	switch reason {
	case "stop":
		return datatypes.FinishStop
	case "length", "model_length":
		return datatypes.FinishLength
	case "tool_calls":
		return datatypes.FinishToolCalls
	}
	return reason
}
