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
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
)

// =============================================================================
// Confidence API Tests
// =============================================================================

func TestConfidence_AnnotatesOutput(t *testing.T) {
	g := newTestGateway(t, nil)

	// Tokens tile the text `{"ok": true}` exactly; the boolean spans only
	// the fourth token.
	body := map[string]any{
		"text": `{"ok": true}`,
		"tokens": []datatypes.TokenLogprob{
			{Token: `{"`, Logprob: -0.1},
			{Token: `ok`, Logprob: -0.3},
			{Token: `":`, Logprob: -0.05},
			{Token: ` true`, Logprob: -0.2},
			{Token: `}`, Logprob: -0.01},
		},
	}
	w := g.perform(t, "POST", "/v1/confidence", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	annotated := decodeBody[map[string]any](t, w)
	assert.Equal(t, true, annotated["ok"])
	require.Contains(t, annotated, "ok_logprob")
	assert.InDelta(t, -0.2, annotated["ok_logprob"], 1e-12)
	assert.InDelta(t, math.Exp(-0.2)*100, annotated["ok_probability"], 1e-9)
}

func TestConfidence_NotJSON(t *testing.T) {
	g := newTestGateway(t, nil)

	body := map[string]any{
		"text":   "certainly, here is the answer",
		"tokens": []datatypes.TokenLogprob{{Token: "certainly", Logprob: -0.1}},
	}
	w := g.perform(t, "POST", "/v1/confidence", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestConfidence_MissingFields(t *testing.T) {
	g := newTestGateway(t, nil)

	w := g.perform(t, "POST", "/v1/confidence", map[string]any{"text": `{"a": 1}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
