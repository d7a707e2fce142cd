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

	"github.com/AleutianAI/veilgate/services/gateway/middleware"
	"github.com/AleutianAI/veilgate/services/gateway/settings"
)

// settingBody is the wire shape of one stored setting. Values are write
// only over the API: provider keys must not be readable back out.
type settingBody struct {
	Name    string `json:"name" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// PutSetting handles POST /v1/settings: stores one owner-scoped setting
// (provider API keys, PII_REMOVAL, JUDGE_EVALUATION, JUDGE_WITH_PII).
func (s *Service) PutSetting(c *gin.Context) {
	var body settingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := middleware.GetOwner(c)
	if err := s.Settings.Put(owner, body.Name, body.Content); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": body.Name})
}

// GetSetting handles GET /v1/settings/:name. Secret-bearing settings
// report presence only.
func (s *Service) GetSetting(c *gin.Context) {
	owner := middleware.GetOwner(c)
	name := c.Param("name")

	value, ok, err := s.Settings.GetLatest(owner, name)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "setting not found"})
		return
	}
	if isSecretSetting(name) {
		c.JSON(http.StatusOK, gin.H{"name": name, "set": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "content": value})
}

func isSecretSetting(name string) bool {
	switch name {
	case settings.KeyOpenAI, settings.KeyMistral, settings.KeyAnthropic:
		return true
	}
	return false
}
