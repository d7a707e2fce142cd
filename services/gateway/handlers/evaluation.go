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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/events"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
	"github.com/AleutianAI/veilgate/services/gateway/middleware"
)

// Evaluation handles POST /v1/evaluation: a user attaches a score to a
// past exchange by the provider response id it came back with. The score
// is logged as a user_evaluation event under the original request event.
func (s *Service) Evaluation(c *gin.Context) {
	var eval datatypes.Evaluation
	if err := c.ShouldBindJSON(&eval); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := eval.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s.logUserEvaluation(c, eval.Identifier, eval.Score)
}

// EvaluationGet handles GET /v1/evaluation/:identifier/:score, the
// link-friendly variant of the evaluation endpoint.
func (s *Service) EvaluationGet(c *gin.Context) {
	value, err := strconv.ParseFloat(c.Param("score"), 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "score must be a number"})
		return
	}
	eval := datatypes.Evaluation{Identifier: c.Param("identifier"), Score: datatypes.Score{Value: value}}
	if err := eval.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s.logUserEvaluation(c, eval.Identifier, eval.Score)
}

func (s *Service) logUserEvaluation(c *gin.Context, identifier string, score datatypes.Score) {
	owner := middleware.GetOwner(c)

	ev, err := s.Events.ResolveIdentifier(identifier)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if ev.OwnerID != owner {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not the event owner"})
		return
	}

	value, err := graph.Evaluate(c.Request.Context(),
		graph.New(&events.LogOp{Event: events.NameUserEvaluation},
			graph.NewConst(owner), graph.NewConst(ev), graph.NewConst(score)),
		s.NewEnv())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}
