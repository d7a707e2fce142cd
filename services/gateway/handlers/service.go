// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gateway's HTTP surface and the
// chat-completion pipeline that ties the computation engine, the event
// log, the PII rewriters, the provider dispatcher and the judge queue
// together.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/veilgate/services/gateway/events"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
	"github.com/AleutianAI/veilgate/services/gateway/middleware"
	"github.com/AleutianAI/veilgate/services/gateway/observability"
	"github.com/AleutianAI/veilgate/services/gateway/privacy"
	"github.com/AleutianAI/veilgate/services/gateway/providers"
	"github.com/AleutianAI/veilgate/services/gateway/queue"
	"github.com/AleutianAI/veilgate/services/gateway/settings"
)

// Service bundles the gateway's collaborators and exposes the HTTP routes.
//
// Thread Safety: safe for concurrent use; every request builds its own
// computation graph and pass environment.
type Service struct {
	Events        *events.Store
	Settings      *settings.Store
	Caller        providers.Caller
	Masker        *privacy.Masker
	Pseudonymizer *privacy.Pseudonymizer
	Queue         *queue.Queue
	Metrics       *observability.GatewayMetrics
	Logger        *slog.Logger
}

// NewService creates the gateway service. A nil logger means
// slog.Default(); a nil metrics instance disables recording.
func NewService(
	eventStore *events.Store,
	settingStore *settings.Store,
	caller providers.Caller,
	masker *privacy.Masker,
	pseudonymizer *privacy.Pseudonymizer,
	taskQueue *queue.Queue,
	metrics *observability.GatewayMetrics,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Events:        eventStore,
		Settings:      settingStore,
		Caller:        caller,
		Masker:        masker,
		Pseudonymizer: pseudonymizer,
		Queue:         taskQueue,
		Metrics:       metrics,
		Logger:        logger,
	}
}

// NewEnv builds a fresh pass environment carrying every collaborator the
// registered ops resolve at evaluation time. The queue worker uses the same
// factory so deferred graphs see live stores, not enqueue-time snapshots.
func (s *Service) NewEnv() *graph.Env {
	env := graph.NewEnv(s.Logger)
	env = events.EnvWith(env, s.Events)
	env = settings.EnvWith(env, s.Settings)
	env = providers.EnvWith(env, s.Caller)
	env = privacy.EnvWith(env, s.Masker, s.Pseudonymizer)
	return env
}

// RegisterRoutes attaches the gateway's endpoints to the router.
func (s *Service) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", s.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.OwnerMiddleware())
	{
		v1.POST("/chat/completions", s.ChatCompletion)
		v1.POST("/openai/chat/completions", s.OpenAIChatCompletion)
		v1.POST("/mistral/chat/completions", s.MistralChatCompletion)
		v1.POST("/anthropic/messages", s.AnthropicMessages)

		v1.POST("/chat/completions/request", s.LogChatRequest)
		v1.POST("/chat/completions/response", s.LogChatResponse)

		v1.POST("/settings", s.PutSetting)
		v1.GET("/settings/:name", s.GetSetting)

		v1.POST("/evaluation", s.Evaluation)
		v1.GET("/evaluation/:identifier/:score", s.EvaluationGet)

		v1.POST("/confidence", s.Confidence)

		v1.GET("/events", s.ListEvents)
		v1.GET("/events/:id", s.GetEvent)
		v1.DELETE("/events/:id", s.DeleteEvent)
		v1.GET("/events/identifier/:identifier", s.GetEventByIdentifier)
	}
}

// Health reports liveness.
func (s *Service) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// abortWithError maps domain errors onto HTTP statuses and writes the
// error response.
func (s *Service) abortWithError(c *gin.Context, err error) {
	var vErrs validator.ValidationErrors
	switch {
	case errors.As(err, &vErrs):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, events.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, events.ErrIdentifierTaken):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, providers.ErrUnknownModel):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, privacy.ErrDetector):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("request failed", slog.Any("error", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
