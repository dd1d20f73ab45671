// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anchorline/catalogiq/services/catalog/cache"
	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

// HandleLogout deletes every cache entry for a session: the combined
// entry plus the per-source entries. TTL expiry would get there
// eventually; logout makes it immediate.
func HandleLogout(sessions cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session id required"})
			return
		}

		// The combined entry is the bare session ID; per-source entries live
		// under "{sessionID}:". Sweeping the bare ID as a prefix would also
		// catch sibling sessions whose IDs merely start with this one
		// ("sess_1" vs "sess_12"), so the exact key and the colon-delimited
		// namespace are deleted separately.
		ctx := c.Request.Context()
		existed, err := sessions.Delete(ctx, sessionID)
		if err != nil {
			slog.Error("Failed to delete session cache entry", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
			return
		}
		deleted, err := sessions.DeletePrefix(ctx, sessionID+":")
		if err != nil {
			slog.Error("Failed to delete session cache entries", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
			return
		}
		if existed {
			deleted++
		}

		slog.Info("Session logged out", "session_id", sessionID, "entries_deleted", deleted)
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "entries_deleted": deleted})
	}
}

// HandleGetSessionDocuments returns the cached aggregated documents for
// a session, or 404 when the entry is missing or expired.
func HandleGetSessionDocuments(sessions cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session id required"})
			return
		}

		raw, found, err := sessions.Get(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("Failed to read session cache", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cached documents for session"})
			return
		}

		var docs []datatypes.AggregatedDocument
		if err := json.Unmarshal(raw, &docs); err != nil {
			slog.Error("Corrupt session cache entry", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "corrupt session entry"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "documents": docs})
	}
}
