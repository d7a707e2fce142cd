// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
)

// =============================================================================
// Fixture
// =============================================================================

// sampleTokens concatenate to {"a": "hello", "b": 12, "c": [{"d":42}, 11]}.
// The token boundaries deliberately cut through keys, quotes and
// punctuation, the way real provider tokenizers do.
func sampleTokens() []datatypes.TokenLogprob {
	return []datatypes.TokenLogprob{
		{Token: `{`, Logprob: -1.9365e-07},    // 0
		{Token: `"a"`, Logprob: -0.01117},     // 1
		{Token: `: "`, Logprob: -0.00279},     // 2
		{Token: `he`, Logprob: -1.1472e-06},   // 3
		{Token: `llo"`, Logprob: -0.00851},    // 4
		{Token: `, "`, Logprob: -0.00851},     // 5
		{Token: `b`, Logprob: -0.00851},       // 6
		{Token: `": `, Logprob: -0.00851},     // 7
		{Token: `12`, Logprob: -0.00851},      // 8
		{Token: `, "`, Logprob: -1.265e-07},   // 9
		{Token: `c"`, Logprob: -0.00851},      // 10
		{Token: `: [{"`, Logprob: -0.00851},   // 11
		{Token: `d`, Logprob: -1.265e-07},     // 12
		{Token: `":`, Logprob: -0.00851},      // 13
		{Token: `42`, Logprob: -0.00851},      // 14
		{Token: `}, `, Logprob: -1.265e-07},   // 15
		{Token: `11`, Logprob: -0.00851},      // 16
		{Token: `]}`, Logprob: -1.265e-07},    // 17
	}
}

const sampleText = `{"a": "hello", "b": 12, "c": [{"d":42}, 11]}`

// =============================================================================
// MapTokens Tests
// =============================================================================

func TestMapTokens(t *testing.T) {
	want := []int{
		0,
		1, 1, 1,
		2, 2, 2,
		3, 3,
		4, 4, 4, 4,
		5, 5, 5,
		6,
		7, 7, 7,
		8, 8,
		9, 9, 9,
		10, 10,
		11, 11, 11, 11, 11,
		12,
		13, 13,
		14, 14,
		15, 15, 15,
		16, 16,
		17, 17,
	}

	got := MapTokens(sampleTokens())
	assert.Equal(t, want, got)
	assert.Len(t, got, len(sampleText))
}

func TestMapTokens_Empty(t *testing.T) {
	assert.Empty(t, MapTokens(nil))
}

// =============================================================================
// Extract Tests
// =============================================================================

// TestExtract_AnnotatesObjectMembers verifies the full annotation shape:
// every scalar object member gains a _logprob sibling summed over the
// tokens of its raw value, quotes included, and a _probability sibling of
// exp(sum) * 100. Array elements stay bare.
func TestExtract_AnnotatesObjectMembers(t *testing.T) {
	value, err := Extract(sampleText, sampleTokens())
	require.NoError(t, err)

	root, ok := value.(map[string]any)
	require.True(t, ok)

	// "hello" spans the closing quote of its own tokens: the sum covers the
	// `: "`, `he` and `llo"` tokens.
	assert.Equal(t, "hello", root["a"])
	assert.Equal(t, -0.0113011472, root["a_logprob"])
	assert.InDelta(t, 98.8762470886041, root["a_probability"], 1e-9)

	assert.Equal(t, 12.0, root["b"])
	assert.Equal(t, -0.00851, root["b_logprob"])
	assert.InDelta(t, 99.15261075523148, root["b_probability"], 1e-9)

	list, ok := root["c"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)

	nested, ok := list[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 42.0, nested["d"])
	assert.Equal(t, -0.00851, nested["d_logprob"])
	assert.InDelta(t, 99.15261075523148, nested["d_probability"], 1e-9)

	// The bare array element carries no annotation.
	assert.Equal(t, 11.0, list[1])

	assert.Len(t, root, 8)
	assert.Len(t, nested, 3)
}

// TestExtract_FinalSpanIncludesLastToken verifies the boundary rule: a value
// whose raw text runs to the end of the output sums through the final token.
func TestExtract_FinalSpanIncludesLastToken(t *testing.T) {
	tokens := []datatypes.TokenLogprob{
		{Token: `{"n": `, Logprob: -0.5},
		{Token: `4`, Logprob: -0.25},
		{Token: `2`, Logprob: -0.125},
	}
	value, err := Extract(`{"n": 42}`, tokens)
	require.NoError(t, err)

	root := value.(map[string]any)
	assert.Equal(t, 42.0, root["n"])
	// The raw `42` ends past the last mapped character, so the token range
	// is clamped to include the final token.
	assert.Equal(t, -0.375, root["n_logprob"])
}

func TestExtract_BooleansAnnotated(t *testing.T) {
	tokens := []datatypes.TokenLogprob{
		{Token: `{"ok": `, Logprob: -0.5},
		{Token: `true`, Logprob: -0.125},
		{Token: `}`, Logprob: -0.25},
	}
	value, err := Extract(`{"ok": true}`, tokens)
	require.NoError(t, err)

	root := value.(map[string]any)
	assert.Equal(t, true, root["ok"])
	assert.Equal(t, -0.125, root["ok_logprob"])
}

func TestExtract_NullStaysBare(t *testing.T) {
	tokens := []datatypes.TokenLogprob{
		{Token: `{"x": `, Logprob: -0.5},
		{Token: `null`, Logprob: -0.125},
		{Token: `}`, Logprob: -0.25},
	}
	value, err := Extract(`{"x": null}`, tokens)
	require.NoError(t, err)

	root := value.(map[string]any)
	require.Contains(t, root, "x")
	assert.Nil(t, root["x"])
	assert.NotContains(t, root, "x_logprob")
	assert.NotContains(t, root, "x_probability")
}

func TestExtract_LeadingWhitespace(t *testing.T) {
	tokens := []datatypes.TokenLogprob{
		{Token: "  ", Logprob: -0.5},
		{Token: `{"n": `, Logprob: -0.5},
		{Token: `7`, Logprob: -0.25},
		{Token: `}`, Logprob: -0.125},
	}
	value, err := Extract(`  {"n": 7}`, tokens)
	require.NoError(t, err)

	root := value.(map[string]any)
	assert.Equal(t, 7.0, root["n"])
	assert.Equal(t, -0.25, root["n_logprob"])
}

func TestExtract_NotJSON(t *testing.T) {
	_, err := Extract("I would rather chat", nil)
	assert.ErrorIs(t, err, ErrNotJSON)
}
