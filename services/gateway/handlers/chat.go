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
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/events"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
	"github.com/AleutianAI/veilgate/services/gateway/judge"
	"github.com/AleutianAI/veilgate/services/gateway/middleware"
	"github.com/AleutianAI/veilgate/services/gateway/privacy"
	"github.com/AleutianAI/veilgate/services/gateway/providers"
	"github.com/AleutianAI/veilgate/services/gateway/settings"
)

// ChatCompletion handles POST /v1/chat/completions: the provider-agnostic
// entry point.
func (s *Service) ChatCompletion(c *gin.Context) {
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.completeChat(c, req)
}

// completeChat runs the full pipeline for one validated request:
//
//	log request -> log config -> PII rewrite -> log modified request ->
//	dispatch -> log response -> register identifier -> respond ->
//	(deferred) judge -> log judge evaluation
//
// Everything up to the identifier registration evaluates in one graph pass
// and must succeed before the caller sees a response. The judge graph is
// serialized onto the durable queue and never blocks or fails the request.
func (s *Service) completeChat(c *gin.Context, req datatypes.ChatRequest) {
	started := time.Now()
	ctx := c.Request.Context()
	owner := middleware.GetOwner(c)

	if err := req.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	env := s.NewEnv()

	// The config gates the PII stage, so it resolves in a pass of its own
	// before the main graph is built.
	config, err := s.resolveConfig(ctx, env, owner, req.LMConfig)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	original := req.Clone()
	modified, mapping, err := s.rewritePII(ctx, env, config.PIIRemoval, req)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	isModified := config.PIIRemoval == datatypes.PIIMasking || config.PIIRemoval == datatypes.PIIReplace

	// Main pass. The request event node is shared by every child event, so
	// it persists exactly once however many branches hang off it.
	requestEvent := graph.New(&events.LogOp{Event: events.NameRequest},
		graph.NewConst(owner), graph.NewConst(nil), graph.NewConst(original))
	configEvent := graph.New(&events.LogOp{Event: events.NameLMConfig},
		graph.NewConst(owner), requestEvent, graph.NewConst(config))
	dispatch := graph.New(&providers.DispatchOp{},
		settings.KeysGraph(owner), graph.NewConst(modified))
	responseEvent := graph.New(&events.LogOp{Event: events.NameResponse},
		graph.NewConst(owner), requestEvent, dispatch)
	identifier := graph.New(&events.RegisterIdentifierOp{}, requestEvent, dispatch)

	branches := []*graph.Node{requestEvent, configEvent}
	if isModified {
		branches = append(branches, graph.New(&events.LogOp{Event: events.NameModifiedRequest},
			graph.NewConst(owner), requestEvent, graph.NewConst(modified)))
	}
	branches = append(branches, responseEvent, identifier, dispatch)

	value, err := graph.Evaluate(ctx, graph.New(&graph.Tup{}, branches...), env)
	if err != nil {
		s.recordRequest(req.Model, started, false)
		s.abortWithError(c, err)
		return
	}
	results, err := graph.As[[]any](value)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	reqEvent, err := graph.As[*events.Event](results[0])
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	resp, err := graph.As[datatypes.ChatResponse](results[len(results)-1])
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	if config.PIIRemoval == datatypes.PIIReplace {
		for i := range resp.Choices {
			resp.Choices[i].Message.Content = privacy.ReplaceBack(resp.Choices[i].Message.Content, mapping)
		}
	}

	if config.JudgeEnabled() {
		judged := modified
		if config.JudgeSeesPII() {
			judged = original
		}
		s.enqueueJudge(owner, reqEvent.ID, judged, resp)
	}

	s.recordRequest(req.Model, started, len(resp.Choices) > 0 && resp.Choices[0].FinishReason != datatypes.FinishError)
	if s.Metrics != nil && resp.Usage != nil {
		s.Metrics.RecordTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Model)
	}
	c.JSON(http.StatusOK, resp)
}

// resolveConfig evaluates the owner's stored configuration merged with the
// per-call override.
func (s *Service) resolveConfig(ctx context.Context, env *graph.Env, owner string, override *datatypes.LMConfig) (datatypes.LMConfig, error) {
	value, err := graph.Evaluate(ctx,
		graph.New(&settings.ConfigOp{Owner: owner, Override: override}), env)
	if err != nil {
		return datatypes.LMConfig{}, err
	}
	return graph.As[datatypes.LMConfig](value)
}

// rewritePII processes every message's content concurrently, one task per
// message, and returns the rewritten request. Under replace mode the
// per-message mappings are merged into one fake-to-real mapping for
// restoring the answer.
func (s *Service) rewritePII(ctx context.Context, env *graph.Env, mode datatypes.PIIMode, req datatypes.ChatRequest) (datatypes.ChatRequest, privacy.Mapping, error) {
	modified := req.Clone()
	if mode != datatypes.PIIMasking && mode != datatypes.PIIReplace {
		return modified, nil, nil
	}

	mappings := make([]privacy.Mapping, len(modified.Messages))
	g, gctx := errgroup.WithContext(ctx)
	for i := range modified.Messages {
		g.Go(func() error {
			switch mode {
			case datatypes.PIIMasking:
				value, err := graph.Evaluate(gctx,
					graph.New(&privacy.MaskOp{}, graph.NewConst(modified.Messages[i].Content)), env)
				if err != nil {
					return err
				}
				masked, err := graph.As[string](value)
				if err != nil {
					return err
				}
				modified.Messages[i].Content = masked
			case datatypes.PIIReplace:
				value, err := graph.Evaluate(gctx,
					graph.New(&privacy.PseudonymizeOp{}, graph.NewConst(modified.Messages[i].Content)), env)
				if err != nil {
					return err
				}
				result, err := graph.As[privacy.PseudonymizeResult](value)
				if err != nil {
					return err
				}
				modified.Messages[i].Content = result.Text
				mappings[i] = result.Mapping
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return datatypes.ChatRequest{}, nil, err
	}

	merged := privacy.Mapping{}
	for _, m := range mappings {
		for fake, real := range m {
			merged[fake] = real
		}
	}
	if s.Metrics != nil {
		s.Metrics.RecordPIIRewrite(string(mode), len(modified.Messages))
	}
	return modified, merged, nil
}

// enqueueJudge serializes the judge graph and hands it to the durable
// queue. The score node is shared between the Then root and the event
// node, so the deferred pass scores once and logs once. Enqueue failure is
// logged and swallowed; it never affects the caller's response.
func (s *Service) enqueueJudge(owner, requestEventID string, req datatypes.ChatRequest, resp datatypes.ChatResponse) {
	if s.Queue == nil {
		return
	}
	score := graph.New(&judge.ScoreOp{},
		settings.KeysGraph(owner), graph.NewConst(req), graph.NewConst(resp))
	scoreEvent := graph.New(&events.LogOp{Event: events.NameJudgeEvaluation},
		graph.NewConst(owner), graph.New(&events.GetOp{ID: requestEventID}), score)
	root := graph.New(&graph.Then{}, score, scoreEvent)

	taskID, err := s.Queue.Enqueue(root)
	if err != nil {
		s.Logger.Error("enqueue judge task",
			slog.String("request_event_id", requestEventID), slog.Any("error", err))
		return
	}
	s.Logger.Debug("judge task enqueued",
		slog.String("task_id", taskID), slog.String("request_event_id", requestEventID))
}

func (s *Service) recordRequest(model string, started time.Time, success bool) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.RecordRequest(model, time.Since(started).Seconds(), success)
}
