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
	"errors"
	"fmt"
)

var (
	// ErrNilNode is returned when a nil node is evaluated or encoded.
	ErrNilNode = errors.New("node must not be nil")

	// ErrNilContext is returned when Evaluate is called with a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownOp is returned when decoding meets an op name that was never
	// registered.
	ErrUnknownOp = errors.New("unknown op")

	// ErrBadEncoding is returned when an interchange form is malformed
	// (bad argument index, forward reference, invalid op data).
	ErrBadEncoding = errors.New("malformed graph encoding")
)

// OpError wraps a failure of one op with the op's name so callers can tell
// which node of a pass failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("op %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
