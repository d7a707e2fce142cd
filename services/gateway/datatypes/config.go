// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// PIIMode selects how personal data in message content is handled before a
// request leaves the gateway.
type PIIMode string

const (
	// PIINone forwards message content untouched.
	PIINone PIIMode = "none"

	// PIIMasking irreversibly replaces detected spans with category
	// placeholders.
	PIIMasking PIIMode = "masking"

	// PIIReplace reversibly replaces detected spans with deterministic fake
	// values and retains the fake-to-real mapping for the response.
	PIIReplace PIIMode = "replace"
)

// LMConfig is the per-owner gateway configuration. A per-call override
// supplied on the request takes precedence field by field over stored
// settings; pointer fields distinguish "unset" from "false".
type LMConfig struct {
	PIIRemoval      PIIMode `json:"pii_removal,omitempty"`
	JudgeEvaluation *bool   `json:"judge_evaluation,omitempty"`
	JudgeWithPII    *bool   `json:"judge_with_pii,omitempty"`
}

// JudgeEnabled reports whether out-of-band judge scoring is on.
func (c LMConfig) JudgeEnabled() bool {
	return c.JudgeEvaluation != nil && *c.JudgeEvaluation
}

// JudgeSeesPII reports whether the judge scores the original request rather
// than the de-identified one.
func (c LMConfig) JudgeSeesPII() bool {
	return c.JudgeWithPII != nil && *c.JudgeWithPII
}

// Merge returns c with every set field of override taking precedence.
func (c LMConfig) Merge(override *LMConfig) LMConfig {
	if override == nil {
		return c
	}
	out := c
	if override.PIIRemoval != "" {
		out.PIIRemoval = override.PIIRemoval
	}
	if override.JudgeEvaluation != nil {
		out.JudgeEvaluation = override.JudgeEvaluation
	}
	if override.JudgeWithPII != nil {
		out.JudgeWithPII = override.JudgeWithPII
	}
	return out
}

// APIKeys bundles the per-owner provider credentials. Request-scoped, never
// shared across concurrent requests.
type APIKeys struct {
	OpenAI    string `json:"openai_api_key"`
	Mistral   string `json:"mistral_api_key"`
	Anthropic string `json:"anthropic_api_key"`
}
