// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"

	"github.com/google/uuid"
)

// AskRequest is the inbound question about the catalog.
type AskRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionId string `json:"session_id"`
}

// EnsureSessionId returns the request's session ID, generating one when
// the caller did not supply it.
func (r *AskRequest) EnsureSessionId() string {
	if r.SessionId == "" {
		r.SessionId = fmt.Sprintf("sess_%s", uuid.New().String())
	}
	return r.SessionId
}

// AskResponse is the non-streaming response shape: either a synthesized
// answer over the aggregated documents, or a report artifact reference
// when the gate decided the documents justify one.
type AskResponse struct {
	SessionId string               `json:"session_id"`
	Decision  GateDecision         `json:"decision"`
	Documents []AggregatedDocument `json:"documents"`
	Answer    string               `json:"answer,omitempty"`
	Report    *ArtifactRef         `json:"report,omitempty"`
	Usage     []TokenUsageRecord   `json:"usage,omitempty"`
}
