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
	"github.com/AleutianAI/veilgate/services/gateway/events"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
	"github.com/AleutianAI/veilgate/services/gateway/middleware"
)

// =============================================================================
// Out-Of-Band Logging Pair
// =============================================================================

// The out-of-band pair serves callers that talk to a provider directly but
// still want the exchange in the audit trail: first log the request, then
// attach the response to the returned event id.

// LogChatRequest handles POST /v1/chat/completions/request. It persists a
// request event without dispatching anything and returns the event, whose
// id the caller passes back when logging the response.
func (s *Service) LogChatRequest(c *gin.Context) {
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	owner := middleware.GetOwner(c)

	value, err := graph.Evaluate(c.Request.Context(),
		graph.New(&events.LogOp{Event: events.NameRequest},
			graph.NewConst(owner), graph.NewConst(nil), graph.NewConst(req)),
		s.NewEnv())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

// attachResponseBody is the wire shape of the response half of the pair.
type attachResponseBody struct {
	RequestEventID string                 `json:"request_event_id" binding:"required"`
	Request        datatypes.ChatRequest  `json:"request"`
	Response       datatypes.ChatResponse `json:"response"`
}

// LogChatResponse handles POST /v1/chat/completions/response. It logs the
// config and response events under the previously logged request event,
// registers the response id, and schedules the judge when enabled.
func (s *Service) LogChatResponse(c *gin.Context) {
	var body attachResponseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	owner := middleware.GetOwner(c)
	env := s.NewEnv()

	reqEvent, err := s.ownedEvent(c, body.RequestEventID)
	if err != nil {
		return
	}
	config, err := s.resolveConfig(ctx, env, owner, nil)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	parent := graph.NewConst(reqEvent)
	configEvent := graph.New(&events.LogOp{Event: events.NameLMConfig},
		graph.NewConst(owner), parent, graph.NewConst(config))
	responseEvent := graph.New(&events.LogOp{Event: events.NameResponse},
		graph.NewConst(owner), parent, graph.NewConst(body.Response))
	identifier := graph.New(&events.RegisterIdentifierOp{}, parent, graph.NewConst(body.Response))

	value, err := graph.Evaluate(ctx,
		graph.New(&graph.Tup{}, configEvent, responseEvent, identifier), env)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	results, err := graph.As[[]any](value)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	if config.JudgeEnabled() {
		s.enqueueJudge(owner, reqEvent.ID, body.Request, body.Response)
	}
	c.JSON(http.StatusOK, results[1])
}

// =============================================================================
// Administrative API
// =============================================================================

// ListEvents handles GET /v1/events. The optional name query parameter
// filters by event name.
func (s *Service) ListEvents(c *gin.Context) {
	owner := middleware.GetOwner(c)
	evs, err := s.Events.ListByOwner(owner, c.Query("name"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": evs, "count": len(evs)})
}

// GetEvent handles GET /v1/events/:id.
func (s *Service) GetEvent(c *gin.Context) {
	ev, err := s.ownedEvent(c, c.Param("id"))
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, ev)
}

// DeleteEvent handles DELETE /v1/events/:id. Deletion cascades to every
// descendant event and registered identifier.
func (s *Service) DeleteEvent(c *gin.Context) {
	ev, err := s.ownedEvent(c, c.Param("id"))
	if err != nil {
		return
	}
	if err := s.Events.Delete(ev.ID); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}

// GetEventByIdentifier handles GET /v1/events/identifier/:identifier.
func (s *Service) GetEventByIdentifier(c *gin.Context) {
	ev, err := s.Events.ResolveIdentifier(c.Param("identifier"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if ev.OwnerID != middleware.GetOwner(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not the event owner"})
		return
	}
	c.JSON(http.StatusOK, ev)
}

// ownedEvent fetches an event and enforces that the request owner owns it.
// On failure it writes the error response and returns a non-nil error.
func (s *Service) ownedEvent(c *gin.Context, id string) (*events.Event, error) {
	ev, err := s.Events.Get(id)
	if err != nil {
		s.abortWithError(c, err)
		return nil, err
	}
	if ev.OwnerID != middleware.GetOwner(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not the event owner"})
		return nil, events.ErrNotFound
	}
	return ev, nil
}
