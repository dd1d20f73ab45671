// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anchorline/catalogiq/services/catalog/cache"
	"github.com/anchorline/catalogiq/services/catalog/handlers"
	"github.com/anchorline/catalogiq/services/catalog/pipeline"
)

// SetupRoutes registers every HTTP endpoint on the router.
func SetupRoutes(router *gin.Engine, svc *pipeline.AskService, sessions cache.Cache) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/ask", handlers.HandleAsk(svc))
		v1.POST("/ask/stream", handlers.HandleAskStream(svc))

		sessionRoutes := v1.Group("/sessions")
		{
			sessionRoutes.GET("/:sessionId/documents", handlers.HandleGetSessionDocuments(sessions))
			sessionRoutes.DELETE("/:sessionId", handlers.HandleLogout(sessions))
		}
	}
}
