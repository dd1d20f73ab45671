// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline implements the multi-source retrieval orchestration
// for catalog Q&A: term extraction, fan-out to the three retrieval
// backends with per-source failure isolation, aggregation with stable
// document numbering, session-scoped caching, and the two-stage LLM
// classification that gates report generation.
//
// Components are constructed once at process start and wired together by
// dependency injection; nothing in this package reaches for globals.
package pipeline

import (
	"context"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

// Retriever is the contract implemented by the three source adapters.
//
// The vector and graph adapters never return an error: backend failures
// degrade to placeholder results inside the adapter. The relational
// adapter MAY return an error (agent retries exhausted); converting that
// into a substitute document is the coordinator's job, so callers other
// than the coordinator should not invoke it directly.
type Retriever interface {
	Retrieve(ctx context.Context, query string, sessionID string) ([]datatypes.RetrievalResult, error)
}

// ProgressSink receives intermediate {step, message} progress markers.
// Payload values travel separately; a sink never sees result data.
type ProgressSink interface {
	Progress(step, message string)
}

// NopSink discards progress events. Used by tests and non-streaming
// callers.
type NopSink struct{}

// Progress implements ProgressSink.
func (NopSink) Progress(step, message string) {}
