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
	"hash/fnv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// Mapping records the substitutions of one pseudonymization pass, keyed
// fake value -> real value, so the model's answer can be restored.
type Mapping map[string]string

// Pseudonymizer replaces PII spans with deterministic fake values. The fake
// for a span is derived from a hash of the span text plus the whole input
// text, so the same real value yields the same fake everywhere within one
// input, while different inputs get unrelated fakes.
type Pseudonymizer struct {
	detector Detector
}

// NewPseudonymizer creates a pseudonymizer over the given detector.
func NewPseudonymizer(detector Detector) *Pseudonymizer {
	return &Pseudonymizer{detector: detector}
}

// Pseudonymize detects PII in text and substitutes fake values for the
// person, phone, location, credit-card, email and IBAN categories; all
// other categories pass through unchanged. It returns the rewritten text
// and the fake -> real mapping of every substitution that changed the text.
//
// Spans are substituted by direct slicing in the detector's original order
// using the detector's original offsets. When a fake value's length differs
// from the real one, the offsets of later spans are stale and the slice
// lands on shifted text. This reproduces the long-standing behavior of the
// pipeline; the regression test in pseudonym_test.go pins it. Do not
// reorder the substitutions without migrating stored mappings.
func (p *Pseudonymizer) Pseudonymize(ctx context.Context, text string) (string, Mapping, error) {
	spans, err := p.detector.Detect(ctx, text)
	if err != nil {
		return "", nil, err
	}

	mapping := Mapping{}
	runes := []rune(text)
	for _, span := range spans {
		start, end := clampSpan(span, len(runes))
		if start >= end {
			continue
		}
		original := string(runes[start:end])
		fake, ok := fakeFor(span.EntityType, original, text)
		if !ok {
			continue
		}
		if fake == original {
			continue
		}
		replaced := append([]rune(nil), runes[:start]...)
		replaced = append(replaced, []rune(fake)...)
		replaced = append(replaced, runes[end:]...)
		runes = replaced
		mapping[fake] = original
	}
	return string(runes), mapping, nil
}

// ReplaceBack restores the real values in a model answer by substituting
// each fake value from the mapping with the real one it stands for.
func ReplaceBack(text string, mapping Mapping) string {
	for fake, real := range mapping {
		text = strings.ReplaceAll(text, fake, real)
	}
	return text
}

// fakeFor returns the deterministic fake for one span, or ok=false for
// categories that pass through.
func fakeFor(entityType, spanText, wholeText string) (string, bool) {
	faker := gofakeit.New(seedFor(spanText, wholeText))
	switch entityType {
	case "PERSON":
		return faker.Name(), true
	case "PHONE_NUMBER":
		return faker.Phone(), true
	case "LOCATION":
		return faker.City(), true
	case "CREDIT_CARD":
		return faker.CreditCardNumber(nil), true
	case "EMAIL_ADDRESS":
		return faker.Email(), true
	case "IBAN_CODE":
		return faker.Numerify("DE####################"), true
	}
	return "", false
}

// seedFor hashes the span text concatenated with the whole input text.
// Including the whole text keeps fakes stable within one input but
// uncorrelated across inputs, which limits what a downstream reader can
// infer by comparing fakes between requests.
func seedFor(spanText, wholeText string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(spanText))
	_, _ = h.Write([]byte(wholeText))
	return h.Sum64()
}
