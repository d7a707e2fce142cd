// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
)

// The provider-native endpoints accept each provider's own request wire
// format, map it onto the generic shape, and run the identical pipeline.
// Responses come back in the generic, normalized shape.

// OpenAIChatCompletion handles POST /v1/openai/chat/completions. The OpenAI
// wire format matches the generic schema field for field.
func (s *Service) OpenAIChatCompletion(c *gin.Context) {
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.completeChat(c, req)
}

// mistralNativeRequest is the Mistral wire shape; random_seed maps onto the
// generic seed field.
type mistralNativeRequest struct {
	Model          string                    `json:"model"`
	Messages       []datatypes.Message       `json:"messages"`
	MaxTokens      *int                      `json:"max_tokens,omitempty"`
	N              *int                      `json:"n,omitempty"`
	RandomSeed     *int                      `json:"random_seed,omitempty"`
	Temperature    *float32                  `json:"temperature,omitempty"`
	TopP           *float32                  `json:"top_p,omitempty"`
	Stop           []string                  `json:"stop,omitempty"`
	SafePrompt     *bool                     `json:"safe_prompt,omitempty"`
	ResponseFormat *datatypes.ResponseFormat `json:"response_format,omitempty"`
	LMConfig       *datatypes.LMConfig       `json:"lm_config,omitempty"`
}

// MistralChatCompletion handles POST /v1/mistral/chat/completions.
func (s *Service) MistralChatCompletion(c *gin.Context) {
	var native mistralNativeRequest
	if err := c.ShouldBindJSON(&native); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.completeChat(c, datatypes.ChatRequest{
		Messages:       native.Messages,
		Model:          native.Model,
		MaxTokens:      native.MaxTokens,
		N:              native.N,
		Seed:           native.RandomSeed,
		Temperature:    native.Temperature,
		TopP:           native.TopP,
		Stop:           native.Stop,
		SafePrompt:     native.SafePrompt,
		ResponseFormat: native.ResponseFormat,
		LMConfig:       native.LMConfig,
	})
}

// anthropicNativeRequest is the Messages API wire shape; the system prompt
// becomes a leading system message in the generic schema.
type anthropicNativeRequest struct {
	Model         string              `json:"model"`
	MaxTokens     *int                `json:"max_tokens,omitempty"`
	System        string              `json:"system,omitempty"`
	Messages      []datatypes.Message `json:"messages"`
	Temperature   *float32            `json:"temperature,omitempty"`
	TopP          *float32            `json:"top_p,omitempty"`
	StopSequences []string            `json:"stop_sequences,omitempty"`
	LMConfig      *datatypes.LMConfig `json:"lm_config,omitempty"`
}

// AnthropicMessages handles POST /v1/anthropic/messages.
func (s *Service) AnthropicMessages(c *gin.Context) {
	var native anthropicNativeRequest
	if err := c.ShouldBindJSON(&native); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	messages := native.Messages
	if native.System != "" {
		messages = append([]datatypes.Message{{Role: "system", Content: native.System}}, messages...)
	}
	s.completeChat(c, datatypes.ChatRequest{
		Messages:    messages,
		Model:       native.Model,
		MaxTokens:   native.MaxTokens,
		Temperature: native.Temperature,
		TopP:        native.TopP,
		Stop:        native.StopSequences,
		LMConfig:    native.LMConfig,
	})
}
