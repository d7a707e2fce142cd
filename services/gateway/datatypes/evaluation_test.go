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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		eval    Evaluation
		wantErr bool
	}{
		{"valid", Evaluation{Identifier: "chatcmpl-1", Score: Score{Value: 0.5}}, false},
		{"zero score", Evaluation{Identifier: "chatcmpl-1", Score: Score{Value: 0}}, false},
		{"full score", Evaluation{Identifier: "chatcmpl-1", Score: Score{Value: 1}}, false},
		{"missing identifier", Evaluation{Score: Score{Value: 0.5}}, true},
		{"negative score", Evaluation{Identifier: "chatcmpl-1", Score: Score{Value: -0.1}}, true},
		{"score above one", Evaluation{Identifier: "chatcmpl-1", Score: Score{Value: 1.5}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.eval.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
