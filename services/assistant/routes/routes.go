// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finsight-ai/finsight/services/assistant"
	"github.com/finsight-ai/finsight/services/assistant/handlers"
)

// SetupRoutes registers the assistant's HTTP surface on router.
func SetupRoutes(router *gin.Engine, a *assistant.Assistant) {
	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/turns", handlers.HandleTurn(a))
	}
}
