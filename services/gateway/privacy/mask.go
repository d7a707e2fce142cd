// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package privacy

import (
	"context"
	"sort"
)

// DefaultPlaceholder replaces spans whose category has no configured
// placeholder.
const DefaultPlaceholder = "<REDACTED>"

// DefaultPlaceholders maps the detector's entity types to the placeholder
// text that stands in for them under masking mode.
func DefaultPlaceholders() map[string]string {
	return map[string]string{
		"PERSON":        "<PERSON>",
		"PHONE_NUMBER":  "<PHONE>",
		"LOCATION":      "<LOCATION>",
		"CREDIT_CARD":   "<CREDIT_CARD>",
		"EMAIL_ADDRESS": "<EMAIL>",
		"IBAN_CODE":     "<IBAN>",
		"URL":           "<URL>",
		"IP_ADDRESS":    "<IP>",
	}
}

// Masker replaces detected PII spans with category placeholders. Masking is
// one-way; the original values are not recoverable.
type Masker struct {
	detector     Detector
	placeholders map[string]string
}

// NewMasker creates a masker. A nil placeholder map means
// DefaultPlaceholders.
func NewMasker(detector Detector, placeholders map[string]string) *Masker {
	if placeholders == nil {
		placeholders = DefaultPlaceholders()
	}
	return &Masker{detector: detector, placeholders: placeholders}
}

// Mask detects PII in text and replaces every span with its category
// placeholder. Spans are applied from the highest offset down so earlier
// replacements cannot shift the offsets of later ones.
func (m *Masker) Mask(ctx context.Context, text string) (string, error) {
	spans, err := m.detector.Detect(ctx, text)
	if err != nil {
		return "", err
	}
	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	runes := []rune(text)
	for _, span := range ordered {
		start, end := clampSpan(span, len(runes))
		if start >= end {
			continue
		}
		placeholder, ok := m.placeholders[span.EntityType]
		if !ok {
			placeholder = DefaultPlaceholder
		}
		replaced := append([]rune(nil), runes[:start]...)
		replaced = append(replaced, []rune(placeholder)...)
		replaced = append(replaced, runes[end:]...)
		runes = replaced
	}
	return string(runes), nil
}

// clampSpan bounds a detector span to the text. Offsets are clamped rather
// than rejected because pseudonymization's in-order substitution can leave
// trailing spans pointing past the end of a shortened text.
func clampSpan(span Span, length int) (int, int) {
	start, end := span.Start, span.End
	if start < 0 {
		start = 0
	}
	if end > length {
		end = length
	}
	if start > length {
		start = length
	}
	return start, end
}
