// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"encoding/json"
	"fmt"
)

func init() {
	Register("const", func() Op { return &Const{} })
	Register("then", func() Op { return &Then{} })
	Register("tup", func() Op { return &Tup{} })
}

// Const yields a fixed value. After an interchange round-trip the value is
// whatever encoding/json produces (map[string]any for structs); consumers
// use As to recover a typed view.
type Const struct {
	Value any `json:"value"`
}

// Name implements Op.
func (o *Const) Name() string { return "const" }

// Call implements Op.
func (o *Const) Call(_ context.Context, _ *Env, _ []any) (any, error) {
	return o.Value, nil
}

// Then evaluates both arguments and yields the second. Used to sequence a
// value-producing node with a side-effecting one that consumes it.
type Then struct{}

// Name implements Op.
func (o *Then) Name() string { return "then" }

// Call implements Op.
func (o *Then) Call(_ context.Context, _ *Env, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("then expects 2 args, got %d", len(args))
	}
	return args[1], nil
}

// Tup gathers its arguments into a slice, forcing them to all complete in
// the same pass. It is the usual root of a pipeline graph.
type Tup struct{}

// Name implements Op.
func (o *Tup) Name() string { return "tup" }

// Call implements Op.
func (o *Tup) Call(_ context.Context, _ *Env, args []any) (any, error) {
	out := make([]any, len(args))
	copy(out, args)
	return out, nil
}

// As converts an evaluated argument to T. Values flowing through a live
// graph keep their Go type and hit the fast path; values restored from the
// interchange form arrive as generic JSON and are re-decoded.
func As[T any](v any) (T, error) {
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	var out T
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("convert arg: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("convert arg to %T: %w", out, err)
	}
	return out, nil
}
