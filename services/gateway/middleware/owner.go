// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the gateway service.
//
// # Owner Resolution
//
// Every audit event, stored setting and judge evaluation is scoped to one
// owner. The owner middleware resolves the owner id from the X-Owner-ID
// header and stores it in the Gin context for downstream handlers.
//
// # Open Source Behavior
//
// When the header is absent, requests are attributed to "local-owner".
// This enables single-user deployments to function without any identity
// infrastructure. Enterprise deployments put an authenticating proxy in
// front that sets the header from a validated token.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// Context Keys
// =============================================================================

// ownerKey is the context key for storing the resolved owner id.
const ownerKey = "veilgate_owner_id"

// OwnerHeader is the request header carrying the owner id.
const OwnerHeader = "X-Owner-ID"

// DefaultOwner attributes requests that carry no owner header.
const DefaultOwner = "local-owner"

// =============================================================================
// Context Helpers
// =============================================================================

// SetOwner stores the resolved owner id in the Gin context.
func SetOwner(c *gin.Context, ownerID string) {
	c.Set(ownerKey, ownerID)
}

// GetOwner retrieves the resolved owner id from the Gin context. Returns
// DefaultOwner if the owner middleware did not run.
func GetOwner(c *gin.Context) string {
	if v, exists := c.Get(ownerKey); exists {
		if ownerID, ok := v.(string); ok && ownerID != "" {
			return ownerID
		}
	}
	return DefaultOwner
}

// =============================================================================
// Owner Middleware
// =============================================================================

// OwnerMiddleware creates a Gin middleware that resolves the request owner.
//
// # Description
//
// Reads the X-Owner-ID header, trims whitespace, and falls back to
// DefaultOwner when the header is absent or blank. The resolved id is
// stored in the context for handlers via GetOwner.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func OwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if ownerID == "" {
			ownerID = DefaultOwner
		}
		SetOwner(c, ownerID)
		c.Next()
	}
}
