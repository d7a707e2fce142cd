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
	"errors"
	"fmt"

	"github.com/AleutianAI/veilgate/services/gateway/graph"
)

func init() {
	graph.Register("privacy.mask", func() graph.Op { return &MaskOp{} })
	graph.Register("privacy.pseudonymize", func() graph.Op { return &PseudonymizeOp{} })
}

type envKey struct{}

// envBag bundles the two rewriters behind one environment key.
type envBag struct {
	masker        *Masker
	pseudonymizer *Pseudonymizer
}

// EnvWith attaches the PII rewriters to a pass environment.
func EnvWith(env *graph.Env, masker *Masker, pseudonymizer *Pseudonymizer) *graph.Env {
	return env.With(envKey{}, envBag{masker: masker, pseudonymizer: pseudonymizer})
}

func bagFrom(env *graph.Env) (envBag, error) {
	bag, ok := env.Value(envKey{}).(envBag)
	if !ok {
		return envBag{}, errors.New("privacy rewriters missing from environment")
	}
	return bag, nil
}

// PseudonymizeResult is the value yielded by PseudonymizeOp.
type PseudonymizeResult struct {
	Text    string  `json:"text"`
	Mapping Mapping `json:"mapping"`
}

// MaskOp replaces PII in one text with category placeholders.
//
// Args: [text]. Yields the masked text.
type MaskOp struct{}

// Name implements graph.Op.
func (o *MaskOp) Name() string { return "privacy.mask" }

// Call implements graph.Op.
func (o *MaskOp) Call(ctx context.Context, env *graph.Env, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("privacy.mask expects 1 arg, got %d", len(args))
	}
	bag, err := bagFrom(env)
	if err != nil {
		return nil, err
	}
	text, err := graph.As[string](args[0])
	if err != nil {
		return nil, err
	}
	return bag.masker.Mask(ctx, text)
}

// PseudonymizeOp replaces PII in one text with deterministic fakes.
//
// Args: [text]. Yields a PseudonymizeResult.
type PseudonymizeOp struct{}

// Name implements graph.Op.
func (o *PseudonymizeOp) Name() string { return "privacy.pseudonymize" }

// Call implements graph.Op.
func (o *PseudonymizeOp) Call(ctx context.Context, env *graph.Env, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("privacy.pseudonymize expects 1 arg, got %d", len(args))
	}
	bag, err := bagFrom(env)
	if err != nil {
		return nil, err
	}
	text, err := graph.As[string](args[0])
	if err != nil {
		return nil, err
	}
	rewritten, mapping, err := bag.pseudonymizer.Pseudonymize(ctx, text)
	if err != nil {
		return nil, err
	}
	return PseudonymizeResult{Text: rewritten, Mapping: mapping}, nil
}
