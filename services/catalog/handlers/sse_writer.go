// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

// SSEWriter writes tagged stream events in SSE wire format
// (event: type\ndata: json\n\n). Implementations must be safe for
// concurrent use: retrieval sources emit progress events from their own
// goroutines.
type SSEWriter interface {
	// WriteEvent writes one event. Id and CreatedAt are auto-populated.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteProgress writes a progress marker for the given step.
	WriteProgress(step, message string) error

	// WriteError writes a sanitized error event. The stream should be
	// closed afterwards.
	WriteError(errMsg string) error

	// WriteDone writes the terminal event, echoing the session ID.
	WriteDone(sessionID string) error
}

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter wraps a ResponseWriter that supports flushing. The
// caller must set SSE headers first (see SetSSEHeaders).
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// SetSSEHeaders sets the response headers required for SSE streaming,
// including the anti-buffering hint proxies look for.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteProgress(step, message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.EventProgress,
		Step:    step,
		Message: message,
	})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.EventError,
		Error: errMsg,
	})
}

func (w *sseWriter) WriteDone(sessionID string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.EventDone,
		SessionId: sessionID,
	})
}

// Compile-time interface check.
var _ SSEWriter = (*sseWriter)(nil)
