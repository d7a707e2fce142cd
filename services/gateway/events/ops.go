// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
)

func init() {
	graph.Register("events.log", func() graph.Op { return &LogOp{} })
	graph.Register("events.register_identifier", func() graph.Op { return &RegisterIdentifierOp{} })
	graph.Register("events.get", func() graph.Op { return &GetOp{} })
}

// envKey stashes the Store in a graph environment.
type envKey struct{}

// EnvWith attaches the event store to a pass environment.
func EnvWith(env *graph.Env, store *Store) *graph.Env {
	return env.With(envKey{}, store)
}

func storeFrom(env *graph.Env) (*Store, error) {
	store, _ := env.Value(envKey{}).(*Store)
	if store == nil {
		return nil, errors.New("event store missing from environment")
	}
	return store, nil
}

// asEvent normalizes an evaluated parent argument. It may be nil (root
// events), a live *Event from a shared node, or generic JSON after an
// interchange round-trip.
func asEvent(v any) (*Event, error) {
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case *Event:
		return typed, nil
	case Event:
		return &typed, nil
	default:
		ev, err := graph.As[Event](v)
		if err != nil {
			return nil, err
		}
		return &ev, nil
	}
}

// LogOp persists one event.
//
// Args: [owner id string, parent event or nil, payload]. The payload is
// serialized to JSON and stored as the event content; the op yields the
// persisted *Event.
type LogOp struct {
	// Event is the event name: request, modified_request, response,
	// lm_config, lm_judge_evaluation or user_evaluation.
	Event string `json:"event"`
}

// Name implements graph.Op.
func (o *LogOp) Name() string { return "events.log" }

// Call implements graph.Op.
func (o *LogOp) Call(_ context.Context, env *graph.Env, args []any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("events.log expects 3 args, got %d", len(args))
	}
	store, err := storeFrom(env)
	if err != nil {
		return nil, err
	}
	owner, err := graph.As[string](args[0])
	if err != nil {
		return nil, err
	}
	parent, err := asEvent(args[1])
	if err != nil {
		return nil, fmt.Errorf("parent arg: %w", err)
	}
	content, err := marshalContent(args[2])
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	parentID := ""
	if parent != nil {
		parentID = parent.ID
	}
	return store.Insert(o.Event, owner, parentID, content)
}

// marshalContent serializes an event payload without HTML escaping, so
// stored content reads back exactly as the payload was written. Message
// text routinely carries angle brackets, masking placeholders included.
func marshalContent(payload any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", err
	}
	// Encode appends a newline the stored content does not want.
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// RegisterIdentifierOp maps a provider response id to the event that
// originated it.
//
// Args: [event, response]. The response's id becomes the external
// identifier; the op yields that identifier.
type RegisterIdentifierOp struct{}

// Name implements graph.Op.
func (o *RegisterIdentifierOp) Name() string { return "events.register_identifier" }

// Call implements graph.Op.
func (o *RegisterIdentifierOp) Call(_ context.Context, env *graph.Env, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("events.register_identifier expects 2 args, got %d", len(args))
	}
	store, err := storeFrom(env)
	if err != nil {
		return nil, err
	}
	ev, err := asEvent(args[0])
	if err != nil || ev == nil {
		return nil, fmt.Errorf("event arg: %w", err)
	}
	resp, err := graph.As[datatypes.ChatResponse](args[1])
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		// An empty upstream envelope has no provider id to register.
		return "", nil
	}
	if err := store.RegisterIdentifier(resp.ID, ev.ID); err != nil {
		return nil, err
	}
	return resp.ID, nil
}

// GetOp fetches an event by id. Used as the parent reference inside
// deferred computations, where the live *Event no longer exists.
type GetOp struct {
	ID string `json:"id"`
}

// Name implements graph.Op.
func (o *GetOp) Name() string { return "events.get" }

// Call implements graph.Op.
func (o *GetOp) Call(_ context.Context, env *graph.Env, _ []any) (any, error) {
	store, err := storeFrom(env)
	if err != nil {
		return nil, err
	}
	return store.Get(o.ID)
}
