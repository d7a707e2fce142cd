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

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"

	// anthropicDefaultMaxTokens is applied when the generic request leaves
	// max_tokens unset; the Messages API requires the field.
	anthropicDefaultMaxTokens = 1024
)

var anthropicModelPrefixes = []string{"claude-"}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicRequest is the wire shape of a Messages API request. System
// prompts live in a dedicated top-level field, not in the messages list.
type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Temperature   *float32           `json:"temperature,omitempty"`
	TopP          *float32           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicAdapter maps generic requests onto the Anthropic Messages API.
type AnthropicAdapter struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewAnthropicAdapter creates the adapter. baseURL is for test servers;
// pass "" for api.anthropic.com.
func NewAnthropicAdapter(baseURL string) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  slog.Default(),
	}
}

// Provider implements Adapter.
func (a *AnthropicAdapter) Provider() string { return "anthropic" }

// Supports implements Adapter.
func (a *AnthropicAdapter) Supports(model string) bool {
	return supportsPrefix(model, anthropicModelPrefixes)
}

// ToProviderRequest implements Adapter. System messages are concatenated
// into the top-level system field; tool messages are folded into user turns
// since the Messages API accepts only user and assistant roles.
func (a *AnthropicAdapter) ToProviderRequest(req datatypes.ChatRequest) (any, error) {
	out := anthropicRequest{
		Model:         req.Model,
		MaxTokens:     anthropicDefaultMaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if out.System != "" {
				out.System += "\n"
			}
			out.System += m.Content
		case "assistant":
			out.Messages = append(out.Messages, anthropicMessage{Role: "assistant", Content: m.Content})
		default:
			out.Messages = append(out.Messages, anthropicMessage{Role: "user", Content: m.Content})
		}
	}
	return out, nil
}

// Call implements Adapter. Upstream failures become an empty envelope.
func (a *AnthropicAdapter) Call(ctx context.Context, apiKey string, providerReq any) (any, error) {
	req, ok := providerReq.(anthropicRequest)
	if !ok {
		return nil, fmt.Errorf("anthropic adapter: unexpected request type %T", providerReq)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic adapter: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic adapter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		a.logger.Warn("anthropic call failed",
			slog.String("model", req.Model), slog.Any("error", err))
		return anthropicResponse{Model: req.Model}, nil
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic adapter: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		a.logger.Warn("anthropic returned non-2xx",
			slog.String("model", req.Model),
			slog.Int("status", httpResp.StatusCode),
			slog.String("body", string(raw)),
		)
		return anthropicResponse{Model: req.Model}, nil
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		a.logger.Warn("anthropic returned unparseable body",
			slog.String("model", req.Model), slog.Any("error", err))
		return anthropicResponse{Model: req.Model}, nil
	}
	return resp, nil
}

// ToGenericResponse implements Adapter. The content blocks are concatenated
// into one assistant message; usage counters map input/output tokens onto
// the prompt/completion fields.
func (a *AnthropicAdapter) ToGenericResponse(providerResp any) (datatypes.ChatResponse, error) {
	resp, ok := providerResp.(anthropicResponse)
	if !ok {
		return datatypes.ChatResponse{}, fmt.Errorf("anthropic adapter: unexpected response type %T", providerResp)
	}
	if len(resp.Content) == 0 {
		return errorEnvelope(resp.Model), nil
	}
	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return datatypes.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Choices: []datatypes.Choice{{
			Index:        0,
			Message:      datatypes.Message{Role: "assistant", Content: content},
			FinishReason: normalizeAnthropicFinish(resp.StopReason),
		}},
		Usage: &datatypes.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func normalizeAnthropicFinish(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return datatypes.FinishStop
	case "max_tokens":
		return datatypes.FinishLength
	case "tool_use":
		return datatypes.FinishToolCalls
	}
	return reason
}
