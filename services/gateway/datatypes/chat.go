// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the gateway service.
//
// This file contains the provider-agnostic chat-completion request and
// response shapes. Every provider adapter maps between these types and its
// native wire format; the rest of the gateway only ever sees these.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	MaxMessagesPerRequest = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length (not rune count) so oversized payloads
// are rejected before they reach a provider.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Request Types
// =============================================================================

// Message is a single chat message in the provider-agnostic shape.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant tool"`
	Content string `json:"content" validate:"maxbytes"`
	Name    string `json:"name,omitempty"`
}

// ResponseFormat selects plain-text or JSON-mode output.
type ResponseFormat struct {
	Type string `json:"type,omitempty"` // "text" or "json_object"
}

// ChatRequest is the provider-agnostic chat-completion request.
//
// Optional sampling fields are pointers so that "unset" survives the mapping
// to provider wire formats (several providers treat 0 and "absent"
// differently).
type ChatRequest struct {
	Messages       []Message       `json:"messages" validate:"required,min=1,max=100,dive"`
	Model          string          `json:"model" validate:"required"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	N              *int            `json:"n,omitempty"`
	Seed           *int            `json:"seed,omitempty"`
	Temperature    *float32        `json:"temperature,omitempty"`
	TopP           *float32        `json:"top_p,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	Logprobs       *bool           `json:"logprobs,omitempty"`
	TopLogprobs    *int            `json:"top_logprobs,omitempty"`
	SafePrompt     *bool           `json:"safe_prompt,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	User           string          `json:"user,omitempty"`

	// LMConfig is an optional per-call override for the owner's stored
	// gateway configuration (PII handling, judge evaluation).
	LMConfig *LMConfig `json:"lm_config,omitempty"`
}

// Validate checks the request against the shared validator rules.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// Clone returns a deep copy of the request. The gateway mutates message
// content during PII processing and must never touch the caller's struct.
func (r ChatRequest) Clone() ChatRequest {
	out := r
	out.Messages = make([]Message, len(r.Messages))
	copy(out.Messages, r.Messages)
	if r.Stop != nil {
		out.Stop = append([]string(nil), r.Stop...)
	}
	if r.LMConfig != nil {
		cfg := *r.LMConfig
		out.LMConfig = &cfg
	}
	return out
}

// =============================================================================
// Response Types
// =============================================================================

// Normalized finish reasons. Adapters translate provider-specific
// enumerations into these values.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
)

// TopLogprob is one alternative token with its log-probability.
type TopLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// TokenLogprob is one emitted token with its log-probability. The
// concatenation of Token over a choice's logprob content reproduces the
// choice's message content exactly, in order, with no gaps.
type TokenLogprob struct {
	Token       string       `json:"token"`
	Logprob     float64      `json:"logprob"`
	TopLogprobs []TopLogprob `json:"top_logprobs,omitempty"`
}

// ChoiceLogprobs carries the per-token log-probabilities of one choice.
type ChoiceLogprobs struct {
	Content []TokenLogprob `json:"content,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      Message         `json:"message"`
	FinishReason string          `json:"finish_reason"`
	Logprobs     *ChoiceLogprobs `json:"logprobs,omitempty"`
}

// Usage is the normalized token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the provider-agnostic chat-completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model"`
	Object  string   `json:"object,omitempty"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Empty reports whether the response carries no usable content. Adapters
// return an empty response envelope, not an error, for non-2xx upstreams.
func (r ChatResponse) Empty() bool {
	return len(r.Choices) == 0
}
