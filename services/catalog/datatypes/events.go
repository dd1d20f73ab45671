// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Event types for the ask stream. Progress markers and payload values are
// distinct, explicitly tagged kinds on one stream; consumers switch on
// Type and never have to sniff a payload to work out what they received.
const (
	// EventProgress is an intermediate {step, message} marker.
	EventProgress = "progress"

	// EventDocuments carries the aggregated document list.
	EventDocuments = "documents"

	// EventAnswer carries a synthesized direct answer.
	EventAnswer = "answer"

	// EventReport carries a report artifact reference.
	EventReport = "report"

	// EventError carries a sanitized error message.
	EventError = "error"

	// EventDone terminates the stream and echoes the session ID.
	EventDone = "done"
)

// StreamEvent is one SSE event on the ask stream.
//
// Exactly one payload group is populated per event, selected by Type:
// progress events fill Step/Message, documents events fill Documents,
// answer events fill Answer plus Decision, report events fill Report.
type StreamEvent struct {
	Id        string `json:"id,omitempty"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at,omitempty"`

	// Progress payload.
	Step    string `json:"step,omitempty"`
	Message string `json:"message,omitempty"`

	// Result payloads.
	Documents []AggregatedDocument `json:"documents,omitempty"`
	Answer    string               `json:"answer,omitempty"`
	Decision  *GateDecision        `json:"decision,omitempty"`
	Report    *ArtifactRef         `json:"report,omitempty"`

	Error     string `json:"error,omitempty"`
	SessionId string `json:"session_id,omitempty"`
}

// ArtifactRef points at a downloadable report artifact produced by the
// external report generator.
type ArtifactRef struct {
	Id       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url"`
}
