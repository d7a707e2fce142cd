// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package confidence annotates a model's JSON output with per-value
// confidence derived from the per-token log-probabilities the provider
// returned alongside it.
package confidence

import (
	"errors"
	"math"

	"github.com/tidwall/gjson"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
)

// ErrNotJSON is returned when the model output does not parse as JSON.
var ErrNotJSON = errors.New("output is not valid JSON")

// MapTokens builds the character-to-token-index array: position i holds the
// index of the token that produced character i of the concatenated output.
func MapTokens(tokens []datatypes.TokenLogprob) []int {
	total := 0
	for _, t := range tokens {
		total += len(t.Token)
	}
	indices := make([]int, 0, total)
	for idx, t := range tokens {
		for i := 0; i < len(t.Token); i++ {
			indices = append(indices, idx)
		}
	}
	return indices
}

// Extract parses text as JSON and returns the value tree with confidence
// annotations. For every object member whose value is a string, number or
// boolean, two sibling keys are added: <key>_logprob holds the sum of the
// log-probabilities of the tokens that produced the value (string quotes
// included), and <key>_probability holds exp(sum) * 100.
//
// Array elements and null values stay bare. Containers get no annotation
// of their own; confidence is a leaf property.
func Extract(text string, tokens []datatypes.TokenLogprob) (any, error) {
	if !gjson.Valid(text) {
		return nil, ErrNotJSON
	}
	indices := MapTokens(tokens)
	root := gjson.Parse(text)

	// Children of the Parse root carry indices that are absolute in text,
	// leading whitespace included, so the root walks with a zero base.
	e := extractor{tokens: tokens, indices: indices}
	return e.walk(root, 0), nil
}

type extractor struct {
	tokens  []datatypes.TokenLogprob
	indices []int
}

// walk rebuilds the value tree rooted at result. base shifts each child's
// Index to an absolute text offset: zero for the Parse root (its children
// already index into the whole text) and the child's own absolute offset
// for nested results (their children index into the parent's Raw slice).
func (e *extractor) walk(result gjson.Result, base int) any {
	switch {
	case result.IsObject():
		out := map[string]any{}
		result.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			abs := base + value.Index
			if leaf, ok := e.leaf(value, abs); ok {
				out[name] = leaf.value
				out[name+"_logprob"] = leaf.logprob
				out[name+"_probability"] = leaf.probability
				return true
			}
			out[name] = e.walkChild(value, abs)
			return true
		})
		return out
	case result.IsArray():
		out := []any{}
		result.ForEach(func(_, value gjson.Result) bool {
			out = append(out, e.walkChild(value, base+value.Index))
			return true
		})
		return out
	}
	return result.Value()
}

// walkChild handles one nested value: containers recurse, everything else
// yields its bare value.
func (e *extractor) walkChild(value gjson.Result, abs int) any {
	if value.IsObject() || value.IsArray() {
		return e.walk(value, abs)
	}
	return value.Value()
}

type leafConfidence struct {
	value       any
	logprob     float64
	probability float64
}

// leaf computes the confidence of one scalar value at absolute offset abs.
// Null reports ok=false: it carries no token span worth annotating.
func (e *extractor) leaf(value gjson.Result, abs int) (leafConfidence, bool) {
	switch value.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
	default:
		return leafConfidence{}, false
	}
	sum := e.sumLogprobs(abs, abs+len(value.Raw))
	return leafConfidence{
		value:       value.Value(),
		logprob:     sum,
		probability: math.Exp(sum) * 100,
	}, true
}

// sumLogprobs sums token log-probabilities over the character span
// [start, end). The token range runs from the token covering start up to
// but excluding the token covering end; a span that reaches the end of the
// output includes the final token.
func (e *extractor) sumLogprobs(start, end int) float64 {
	if start < 0 || start >= len(e.indices) {
		return 0
	}
	tokenStart := e.indices[start]
	tokenEnd := len(e.tokens)
	if end < len(e.indices) {
		tokenEnd = e.indices[end]
	}
	sum := 0.0
	for i := tokenStart; i < tokenEnd; i++ {
		sum += e.tokens[i].Logprob
	}
	return sum
}
