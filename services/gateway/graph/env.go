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

import "log/slog"

// Env is the per-pass collaborator bundle handed to every op of one
// evaluation pass. Collaborator packages stash their store or client under a
// private key type (the context.Context value pattern) so the engine stays
// generic.
//
// An Env is never serialized. A deferred computation is re-evaluated against
// a freshly built Env with its own persistence handles.
type Env struct {
	logger *slog.Logger
	values map[any]any
}

// NewEnv creates an empty environment. A nil logger means slog.Default().
func NewEnv(logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{logger: logger, values: make(map[any]any)}
}

// Logger returns the pass logger.
func (e *Env) Logger() *slog.Logger {
	return e.logger
}

// With stores a collaborator under key and returns the env for chaining.
func (e *Env) With(key, value any) *Env {
	e.values[key] = value
	return e
}

// Value returns the collaborator stored under key, or nil.
func (e *Env) Value(key any) any {
	return e.values[key]
}
