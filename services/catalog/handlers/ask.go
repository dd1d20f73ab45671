// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/pipeline"
)

// HandleAsk runs the pipeline synchronously and returns the full
// outcome as one JSON payload.
//
// # Description
//
// Binds an AskRequest, assigns a session ID when the client did not
// send one, and runs extraction, retrieval, gate classification, and the
// report/answer branch before responding. The gate verdict is always
// present in the response, including "unknown".
//
// # Inputs
//
//   - svc: The wired pipeline service.
//
// # Outputs
//
//   - gin.HandlerFunc: 200 with AskResponse, 400 on a malformed body.
func HandleAsk(svc *pipeline.AskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		req.EnsureSessionId()

		outcome, err := svc.Ask(c.Request.Context(), req.Query, req.SessionId, pipeline.NopSink{})
		if err != nil {
			slog.Error("Ask pipeline aborted", "session_id", req.SessionId, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled or timed out"})
			return
		}

		c.JSON(http.StatusOK, datatypes.AskResponse{
			SessionId: req.SessionId,
			Decision:  outcome.Decision,
			Documents: outcome.Documents,
			Answer:    outcome.Answer,
			Report:    outcome.Report,
			Usage:     outcome.Usage,
		})
	}
}

// sseSink bridges pipeline progress markers onto the SSE stream. Write
// failures are logged and swallowed; a slow client must not stall
// retrieval.
type sseSink struct {
	writer SSEWriter
}

func (s sseSink) Progress(step, message string) {
	if err := s.writer.WriteProgress(step, message); err != nil {
		slog.Debug("Failed to write progress event", "step", step, "error", err)
	}
}

// HandleAskStream runs the pipeline and streams tagged events: progress
// markers as sources complete, then the documents payload, then either
// a report reference or a synthesized answer, then done.
func HandleAskStream(svc *pipeline.AskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		req.EnsureSessionId()

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		outcome, err := svc.Ask(c.Request.Context(), req.Query, req.SessionId, sseSink{writer: writer})
		if err != nil {
			writer.WriteError("request cancelled or timed out")
			return
		}

		writer.WriteEvent(datatypes.StreamEvent{
			Type:      datatypes.EventDocuments,
			Documents: outcome.Documents,
		})
		if outcome.Report != nil {
			writer.WriteEvent(datatypes.StreamEvent{
				Type:     datatypes.EventReport,
				Decision: &outcome.Decision,
				Report:   outcome.Report,
			})
		} else {
			writer.WriteEvent(datatypes.StreamEvent{
				Type:     datatypes.EventAnswer,
				Decision: &outcome.Decision,
				Answer:   outcome.Answer,
			})
		}
		writer.WriteDone(req.SessionId)
	}
}
