// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers contains the per-backend adapters and the
// dispatch-by-model-name router.
//
// Each adapter is a pure mapping pair (generic request -> provider request,
// provider response -> generic response) around exactly one outbound HTTP
// call. A non-2xx upstream never raises: the adapter returns a well-formed
// envelope with an "error" finish reason and empty content, so the caller
// and the audit trail always see a response shape.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
)

var (
	// ErrUnknownModel is returned when no adapter recognizes the requested
	// model name.
	ErrUnknownModel = errors.New("unknown model")

	// ErrUpstream tags provider transport failures in logs. It never crosses
	// the adapter boundary; adapters convert it to an error envelope.
	ErrUpstream = errors.New("upstream provider failed")
)

func init() {
	graph.Register("providers.dispatch", func() graph.Op { return &DispatchOp{} })
}

// Adapter normalizes one backend.
type Adapter interface {
	// Provider is the backend's stable name: openai, mistral or anthropic.
	Provider() string

	// Supports reports whether this adapter serves the model name.
	Supports(model string) bool

	// ToProviderRequest maps the generic request to the provider's native
	// request shape. Pure.
	ToProviderRequest(req datatypes.ChatRequest) (any, error)

	// Call performs the one outbound network call. A non-2xx status yields
	// an empty-content provider response, not an error.
	Call(ctx context.Context, apiKey string, providerReq any) (any, error)

	// ToGenericResponse maps the provider's native response back to the
	// generic shape, normalizing finish reasons, usage counters and
	// per-token log-probabilities. Pure.
	ToGenericResponse(providerResp any) (datatypes.ChatResponse, error)
}

// Caller is the dispatch surface the pipeline and the judge depend on.
type Caller interface {
	Complete(ctx context.Context, keys datatypes.APIKeys, req datatypes.ChatRequest) (datatypes.ChatResponse, error)
}

// supportsPrefix is the shared model-list predicate.
func supportsPrefix(model string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// errorEnvelope is the adapter-level empty content marker for failed
// upstream calls.
func errorEnvelope(model string) datatypes.ChatResponse {
	return datatypes.ChatResponse{
		Model: model,
		Choices: []datatypes.Choice{{
			Index:        0,
			Message:      datatypes.Message{Role: "assistant", Content: ""},
			FinishReason: datatypes.FinishError,
		}},
	}
}

// Dispatcher routes a generic request to the first adapter, in a fixed
// priority order, whose supported-model list matches the requested model.
type Dispatcher struct {
	adapters []Adapter
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with the default priority order
// (openai, mistral, anthropic). A nil logger means slog.Default().
func NewDispatcher(logger *slog.Logger, adapters ...Adapter) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if len(adapters) == 0 {
		adapters = []Adapter{
			NewOpenAIAdapter(""),
			NewMistralAdapter(""),
			NewAnthropicAdapter(""),
		}
	}
	return &Dispatcher{adapters: adapters, logger: logger}
}

// Complete implements Caller.
func (d *Dispatcher) Complete(ctx context.Context, keys datatypes.APIKeys, req datatypes.ChatRequest) (datatypes.ChatResponse, error) {
	for _, adapter := range d.adapters {
		if !adapter.Supports(req.Model) {
			continue
		}
		providerReq, err := adapter.ToProviderRequest(req)
		if err != nil {
			return datatypes.ChatResponse{}, err
		}
		providerResp, err := adapter.Call(ctx, keyFor(keys, adapter.Provider()), providerReq)
		if err != nil {
			return datatypes.ChatResponse{}, err
		}
		resp, err := adapter.ToGenericResponse(providerResp)
		if err != nil {
			return datatypes.ChatResponse{}, err
		}
		d.logger.Debug("dispatched request",
			slog.String("provider", adapter.Provider()),
			slog.String("model", req.Model),
			slog.String("finish_reason", firstFinishReason(resp)),
		)
		return resp, nil
	}
	return datatypes.ChatResponse{}, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
}

func keyFor(keys datatypes.APIKeys, provider string) string {
	switch provider {
	case "openai":
		return keys.OpenAI
	case "mistral":
		return keys.Mistral
	case "anthropic":
		return keys.Anthropic
	}
	return ""
}

func firstFinishReason(resp datatypes.ChatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].FinishReason
}

// =============================================================================
// Dispatch Op
// =============================================================================

type envKey struct{}

// EnvWith attaches the dispatch surface to a pass environment.
func EnvWith(env *graph.Env, caller Caller) *graph.Env {
	return env.With(envKey{}, caller)
}

// CallerFrom returns the dispatch surface of a pass environment.
func CallerFrom(env *graph.Env) (Caller, error) {
	caller, _ := env.Value(envKey{}).(Caller)
	if caller == nil {
		return nil, errors.New("provider dispatcher missing from environment")
	}
	return caller, nil
}

// DispatchOp routes one generic request through the environment's
// dispatcher.
//
// Args: [api keys, generic request]. Yields the generic response.
type DispatchOp struct{}

// Name implements graph.Op.
func (o *DispatchOp) Name() string { return "providers.dispatch" }

// Call implements graph.Op.
func (o *DispatchOp) Call(ctx context.Context, env *graph.Env, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("providers.dispatch expects 2 args, got %d", len(args))
	}
	caller, err := CallerFrom(env)
	if err != nil {
		return nil, err
	}
	keys, err := graph.As[datatypes.APIKeys](args[0])
	if err != nil {
		return nil, err
	}
	req, err := graph.As[datatypes.ChatRequest](args[1])
	if err != nil {
		return nil, err
	}
	return caller.Complete(ctx, keys, req)
}
