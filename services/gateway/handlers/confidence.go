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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/veilgate/services/gateway/confidence"
	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
)

// confidenceBody pairs a model's JSON output with the per-token
// log-probabilities the provider returned for it. Callers typically take
// both straight from a chat-completion choice made with logprobs enabled
// and a JSON response format.
type confidenceBody struct {
	Text   string                   `json:"text" binding:"required"`
	Tokens []datatypes.TokenLogprob `json:"tokens" binding:"required"`
}

// Confidence handles POST /v1/confidence: annotates the JSON output with
// per-value confidence derived from the token log-probabilities.
func (s *Service) Confidence(c *gin.Context) {
	var body confidenceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	annotated, err := confidence.Extract(body.Text, body.Tokens)
	if err != nil {
		if errors.Is(err, confidence.ErrNotJSON) {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, annotated)
}
