// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report is the client for the external report generator.
//
// The generator consumes the per-source session cache entries and renders
// a downloadable artifact (spreadsheet/slides). This service only decides
// WHETHER to invoke it (the relevance gate) and WHAT cached data to hand
// it; rendering internals stay on the other side of the HTTP boundary.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

// Generator produces a report artifact from per-source retrieval results.
type Generator interface {
	Generate(ctx context.Context, sessionID string,
		entries map[datatypes.Source][]datatypes.RetrievalResult) (*datatypes.ArtifactRef, error)
}

type generateRequest struct {
	SessionId string                                            `json:"session_id"`
	Entries   map[datatypes.Source][]datatypes.RetrievalResult `json:"entries"`
}

// Client calls the report service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a report client from REPORT_SERVICE_URL.
func NewClient() (*Client, error) {
	baseURL := os.Getenv("REPORT_SERVICE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("REPORT_SERVICE_URL environment variable not set")
	}
	baseURL = strings.TrimSuffix(strings.Trim(baseURL, "\"' "), "/")
	slog.Info("Initializing report client", "base_url", baseURL)
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    baseURL,
	}, nil
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, sessionID string,
	entries map[datatypes.Source][]datatypes.RetrievalResult) (*datatypes.ArtifactRef, error) {

	payload, err := json.Marshal(generateRequest{SessionId: sessionID, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/reports", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("report service returned status %d: %s",
			resp.StatusCode, string(body))
	}

	var ref datatypes.ArtifactRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return nil, fmt.Errorf("failed to parse report response: %w", err)
	}
	return &ref, nil
}

// Compile-time interface check.
var _ Generator = (*Client)(nil)
