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

// Score is a quality score in [0,1].
type Score struct {
	Value float64 `json:"value" validate:"gte=0,lte=1"`
}

// Evaluation attaches a score to a previously returned response, located by
// the external identifier the provider response carried.
type Evaluation struct {
	Identifier string `json:"identifier" validate:"required"`
	Score      Score  `json:"score"`
}

// Validate checks the evaluation against the shared validator rules.
func (e *Evaluation) Validate() error {
	return chatValidate.Struct(e)
}
