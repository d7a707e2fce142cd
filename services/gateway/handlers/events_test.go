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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/events"
	"github.com/AleutianAI/veilgate/services/gateway/settings"
)

// =============================================================================
// Out-Of-Band Logging Tests
// =============================================================================

// logRequest posts a request-only event and returns it.
func logRequest(t *testing.T, g *testGateway, model, content string) events.Event {
	t.Helper()
	w := g.perform(t, "POST", "/v1/chat/completions/request", chatBody(model, content))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeBody[events.Event](t, w)
}

func TestLogChatRequest(t *testing.T) {
	g := newTestGateway(t, nil)

	ev := logRequest(t, g, "gpt-4o", "offline exchange")
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, events.NameRequest, ev.Name)
	assert.Equal(t, testOwner, ev.OwnerID)
	assert.Empty(t, ev.ParentID)
	assert.Contains(t, ev.Content, "offline exchange")

	// Nothing was dispatched.
	assert.Empty(t, g.caller.recorded())
}

func TestLogChatRequest_ValidationFailure(t *testing.T) {
	g := newTestGateway(t, nil)

	body := datatypes.ChatRequest{
		Model:    "gpt-4o",
		Messages: []datatypes.Message{{Role: "oracle", Content: "hi"}},
	}
	w := g.perform(t, "POST", "/v1/chat/completions/request", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLogChatResponse(t *testing.T) {
	g := newTestGateway(t, nil)
	reqEvent := logRequest(t, g, "gpt-4o", "offline exchange")

	resp := datatypes.ChatResponse{
		ID:    "chatcmpl-oob",
		Model: "gpt-4o",
		Choices: []datatypes.Choice{{
			Message:      datatypes.Message{Role: "assistant", Content: "noted"},
			FinishReason: datatypes.FinishStop,
		}},
	}
	body := map[string]any{
		"request_event_id": reqEvent.ID,
		"request":          chatBody("gpt-4o", "offline exchange"),
		"response":         resp,
	}
	w := g.perform(t, "POST", "/v1/chat/completions/response", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	returned := decodeBody[events.Event](t, w)
	assert.Equal(t, events.NameResponse, returned.Name)
	assert.Equal(t, reqEvent.ID, returned.ParentID)

	children, err := g.svc.Events.ListChildren(reqEvent.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(children))
	for _, child := range children {
		names = append(names, child.Name)
	}
	assert.ElementsMatch(t, []string{events.NameLMConfig, events.NameResponse}, names)

	resolved, err := g.svc.Events.ResolveIdentifier("chatcmpl-oob")
	require.NoError(t, err)
	assert.Equal(t, reqEvent.ID, resolved.ID)
}

func TestLogChatResponse_UnknownRequestEvent(t *testing.T) {
	g := newTestGateway(t, nil)

	body := map[string]any{
		"request_event_id": "no-such-event",
		"response":         datatypes.ChatResponse{ID: "x"},
	}
	w := g.perform(t, "POST", "/v1/chat/completions/response", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogChatResponse_MissingEventID(t *testing.T) {
	g := newTestGateway(t, nil)

	w := g.perform(t, "POST", "/v1/chat/completions/response",
		map[string]any{"response": datatypes.ChatResponse{ID: "x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestLogChatResponse_JudgeEnabled verifies the out-of-band pair schedules
// the same deferred scoring as the live pipeline.
func TestLogChatResponse_JudgeEnabled(t *testing.T) {
	g := newTestGateway(t, nil)
	g.putSetting(t, settings.KeyJudge, "true")
	g.caller.replyFn = func(datatypes.ChatRequest) string { return "0.9" }

	reqEvent := logRequest(t, g, "gpt-4o", "offline exchange")
	body := map[string]any{
		"request_event_id": reqEvent.ID,
		"request":          chatBody("gpt-4o", "offline exchange"),
		"response": datatypes.ChatResponse{
			ID: "chatcmpl-oob",
			Choices: []datatypes.Choice{{
				Message: datatypes.Message{Role: "assistant", Content: "noted"},
			}},
		},
	}
	w := g.perform(t, "POST", "/v1/chat/completions/response", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	g.queue.RunNow(context.Background())

	scores, err := g.svc.Events.ListByOwner(testOwner, events.NameJudgeEvaluation)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, reqEvent.ID, scores[0].ParentID)
}

// =============================================================================
// Administrative API Tests
// =============================================================================

func TestListEvents_NameFilter(t *testing.T) {
	g := newTestGateway(t, nil)
	g.perform(t, "POST", "/v1/chat/completions", chatBody("gpt-4o", "one"))
	g.perform(t, "POST", "/v1/chat/completions", chatBody("gpt-4o", "two"))

	w := g.perform(t, "GET", "/v1/events?name=request", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[struct {
		Data  []events.Event `json:"data"`
		Count int            `json:"count"`
	}](t, w)
	assert.Equal(t, 2, body.Count)
	for _, ev := range body.Data {
		assert.Equal(t, events.NameRequest, ev.Name)
	}

	// Unfiltered listing includes the response and config events too.
	w = g.perform(t, "GET", "/v1/events", nil)
	all := decodeBody[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, 6, all.Count)
}

func TestGetEvent(t *testing.T) {
	g := newTestGateway(t, nil)
	ev := logRequest(t, g, "gpt-4o", "lookup me")

	w := g.perform(t, "GET", "/v1/events/"+ev.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[events.Event](t, w)
	assert.Equal(t, ev.ID, got.ID)

	w = g.perform(t, "GET", "/v1/events/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetEvent_WrongOwner(t *testing.T) {
	g := newTestGateway(t, nil)
	ev := logRequest(t, g, "gpt-4o", "private")

	req, err := http.NewRequest("GET", "/v1/events/"+ev.ID, nil)
	require.NoError(t, err)
	// No owner header, so the request runs as the default owner.
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteEvent_Cascades(t *testing.T) {
	g := newTestGateway(t, nil)
	w := g.perform(t, "POST", "/v1/chat/completions", chatBody("gpt-4o", "hello"))
	require.Equal(t, http.StatusOK, w.Code)

	requests, err := g.svc.Events.ListByOwner(testOwner, events.NameRequest)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	w = g.perform(t, "DELETE", "/v1/events/"+requests[0].ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "event deleted", decodeBody[map[string]any](t, w)["message"])

	remaining, err := g.svc.Events.ListByOwner(testOwner, "")
	require.NoError(t, err)
	assert.Empty(t, remaining, "cascade must remove the config and response children")

	_, err = g.svc.Events.ResolveIdentifier("chatcmpl-1")
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestGetEventByIdentifier(t *testing.T) {
	g := newTestGateway(t, nil)
	w := g.perform(t, "POST", "/v1/chat/completions", chatBody("gpt-4o", "hello"))
	require.Equal(t, http.StatusOK, w.Code)

	w = g.perform(t, "GET", "/v1/events/identifier/chatcmpl-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[events.Event](t, w)
	assert.Equal(t, events.NameRequest, got.Name)

	w = g.perform(t, "GET", "/v1/events/identifier/unseen", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req, err := http.NewRequest("GET", "/v1/events/identifier/chatcmpl-1", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "other owners cannot resolve the identifier")
}
