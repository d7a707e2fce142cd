// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package privacy implements PII masking and reversible pseudonymization
// over an external entity-detection service.
package privacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDetector wraps failures of the entity-detection service. Unlike
// provider upstreams, detector failure fails the request: silently passing
// unmasked PII through would defeat the feature.
var ErrDetector = errors.New("entity detection failed")

// Span is one detected entity over the input text. Start and End are
// character offsets, End exclusive.
type Span struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Detector finds PII spans in text.
type Detector interface {
	Detect(ctx context.Context, text string) ([]Span, error)
}

// analyzeRequest is the analyzer's wire shape.
type analyzeRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Entities []string `json:"entities,omitempty"`
}

// Client calls a presidio-analyzer compatible HTTP endpoint.
type Client struct {
	baseURL  string
	language string
	client   *http.Client
}

// NewClient creates a detector client for the given analyzer base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  baseURL,
		language: "en",
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Detect implements Detector. The analyzer returns spans in its own
// detection order; callers must not assume they are sorted by offset.
func (c *Client) Detect(ctx context.Context, text string) ([]Span, error) {
	body, err := json.Marshal(analyzeRequest{Text: text, Language: c.language})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %w", ErrDetector, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrDetector, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetector, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrDetector, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: analyzer returned %d: %s", ErrDetector, resp.StatusCode, raw)
	}

	var spans []Span
	if err := json.Unmarshal(raw, &spans); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrDetector, err)
	}
	return spans, nil
}
